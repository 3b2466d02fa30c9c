package pump

import (
	"testing"
	"time"

	"github.com/espegro/fact-agent/internal/types"
)

type tableResolver map[types.InodeKey]string

func (r tableResolver) Resolve(key types.InodeKey) (string, bool) {
	path, ok := r[key]
	return path, ok
}

func TestFillHostPath(t *testing.T) {
	key := types.InodeKey{Inode: 17, Dev: 0x801}
	p := &Pump{hostPaths: tableResolver{key: "/etc/hosts"}}

	event := &types.Event{Inode: key}
	p.fillHostPath(event)
	if event.HostFile != "/etc/hosts" {
		t.Errorf("HostFile = %q, want resolved path", event.HostFile)
	}
}

func TestFillHostPathKeepsKernelResult(t *testing.T) {
	key := types.InodeKey{Inode: 17, Dev: 0x801}
	p := &Pump{hostPaths: tableResolver{key: "/stale/path"}}

	event := &types.Event{Inode: key, HostFile: "/etc/hosts"}
	p.fillHostPath(event)
	if event.HostFile != "/etc/hosts" {
		t.Errorf("kernel-resolved host path was overwritten: %q", event.HostFile)
	}
}

func TestFillHostPathSkipsAbsentInode(t *testing.T) {
	p := &Pump{hostPaths: tableResolver{}}

	event := &types.Event{} // zero inode key
	p.fillHostPath(event)
	if event.HostFile != "" {
		t.Errorf("HostFile = %q for event without an inode", event.HostFile)
	}
}

func TestBootClockConversion(t *testing.T) {
	clock, err := newBootClock()
	if err != nil {
		t.Fatalf("newBootClock: %v", err)
	}

	// A kernel timestamp taken "now" must convert to roughly now
	now := time.Now()
	ns := uint64(now.Sub(clock.bootEpoch))
	converted := clock.toWall(ns)

	diff := converted.Sub(now)
	if diff < -time.Second || diff > time.Second {
		t.Errorf("converted timestamp off by %v", diff)
	}

	// Ordering is preserved
	if !clock.toWall(1000).Before(clock.toWall(2000)) {
		t.Error("conversion does not preserve ordering")
	}
}
