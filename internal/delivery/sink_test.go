package delivery

import (
	"testing"
	"time"

	"github.com/espegro/fact-agent/internal/config"
	"github.com/espegro/fact-agent/internal/types"
)

func TestBackoffDoublesAndCaps(t *testing.T) {
	b := newBackoff(1000, 8000)

	expected := []time.Duration{
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		8 * time.Second, // capped
		8 * time.Second,
	}

	for i, want := range expected {
		if got := b.next(); got != want {
			t.Errorf("attempt %d: delay = %v, want %v", i, got, want)
		}
	}
}

func TestBackoffReset(t *testing.T) {
	b := newBackoff(500, 4000)
	b.next()
	b.next()

	b.reset()
	if got := b.next(); got != 500*time.Millisecond {
		t.Errorf("delay after reset = %v, want 500ms", got)
	}
}

func TestBackoffDefaults(t *testing.T) {
	b := newBackoff(0, 0)
	if got := b.next(); got != time.Second {
		t.Errorf("default initial = %v, want 1s", got)
	}
}

func sampleEvent() *types.Event {
	return &types.Event{
		Type:        types.ActivityOpen,
		TimestampNS: 42,
		Filename:    "/etc/hosts",
		Inode:       types.InodeKey{Inode: 17, Dev: 0x801},
		Process: types.Process{
			Comm:    "vim",
			Args:    []string{"vim", "/etc/hosts"},
			ExePath: "/usr/bin/vim",
			UID:     1000,
			GID:     1000,
			PID:     4242,
			Lineage: []types.LineageEntry{{UID: 1000, ExePath: "/usr/bin/bash"}},
		},
	}
}

func TestFromEvent(t *testing.T) {
	activity := FromEvent(sampleEvent())

	if activity.Type != 0 {
		t.Errorf("Type = %d, want 0 (OPEN)", activity.Type)
	}
	if activity.Timestamp != 42 {
		t.Errorf("Timestamp = %d", activity.Timestamp)
	}
	if activity.Filename != "/etc/hosts" {
		t.Errorf("Filename = %q", activity.Filename)
	}
	if activity.Inode == nil || activity.Inode.Inode != 17 || activity.Inode.Dev != 0x801 {
		t.Errorf("Inode = %+v", activity.Inode)
	}
	if activity.Process.Comm != "vim" || activity.Process.PID != 4242 {
		t.Errorf("Process = %+v", activity.Process)
	}
	if len(activity.Process.Lineage) != 1 || activity.Process.Lineage[0].ExePath != "/usr/bin/bash" {
		t.Errorf("Lineage = %+v", activity.Process.Lineage)
	}
	if activity.Chmod != nil || activity.Chown != nil {
		t.Error("OPEN activity carries a payload")
	}
}

func TestFromEventZeroInodeOmitted(t *testing.T) {
	e := sampleEvent()
	e.Inode = types.InodeKey{}

	activity := FromEvent(e)
	if activity.Inode != nil {
		t.Errorf("zero inode key should be omitted, got %+v", activity.Inode)
	}
}

func TestFromEventChown(t *testing.T) {
	e := sampleEvent()
	e.Type = types.ActivityChown
	e.Chown = &types.ChownPayload{OldUID: 0, OldGID: 0, NewUID: 1000, NewGID: 100}

	activity := FromEvent(e)
	if activity.Chown == nil {
		t.Fatal("Chown payload missing")
	}
	if activity.Chown.New.UID != 1000 || activity.Chown.New.GID != 100 {
		t.Errorf("Chown.New = %+v", activity.Chown.New)
	}
	if activity.Chown.Old.UID != 0 || activity.Chown.Old.GID != 0 {
		t.Errorf("Chown.Old = %+v", activity.Chown.Old)
	}
}

func TestInitActivity(t *testing.T) {
	activity := initActivity(99)

	if activity.Type != int32(types.ActivityInit) {
		t.Errorf("Type = %d, want %d", activity.Type, types.ActivityInit)
	}
	if activity.Timestamp != 99 {
		t.Errorf("Timestamp = %d", activity.Timestamp)
	}
	if activity.Process.PID == 0 {
		t.Error("init record should carry the agent's own pid")
	}
}

func TestEnqueueDropsWhenQueueFull(t *testing.T) {
	sink, err := NewSink(
		config.DeliveryConfig{URL: "dns:///sensor:9999", QueueSize: 2},
		config.PerformanceConfig{DropPolicy: "newest"},
	)
	if err != nil {
		t.Fatal(err)
	}

	if !sink.Enqueue(sampleEvent()) {
		t.Error("first enqueue should succeed")
	}
	if !sink.Enqueue(sampleEvent()) {
		t.Error("second enqueue should succeed")
	}
	if sink.Enqueue(sampleEvent()) {
		t.Error("third enqueue should be dropped (queue size 2)")
	}
	if sink.QueueDepth() != 2 {
		t.Errorf("queue depth = %d, want 2", sink.QueueDepth())
	}
}

func TestEnqueueOldestPolicyKeepsNewest(t *testing.T) {
	sink, err := NewSink(
		config.DeliveryConfig{URL: "dns:///sensor:9999", QueueSize: 1},
		config.PerformanceConfig{DropPolicy: "oldest"},
	)
	if err != nil {
		t.Fatal(err)
	}

	first := sampleEvent()
	second := sampleEvent()
	second.Filename = "/etc/shadow"

	sink.Enqueue(first)
	if !sink.Enqueue(second) {
		t.Error("oldest policy should accept the new event")
	}

	got := <-sink.queue
	if got.Filename != "/etc/shadow" {
		t.Errorf("queued filename = %q, want newest event", got.Filename)
	}
}
