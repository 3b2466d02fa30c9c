package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/espegro/fact-agent/internal/types"
)

func getCounterValue(counter prometheus.Counter) float64 {
	var m dto.Metric
	if err := counter.Write(&m); err != nil {
		return 0
	}
	return m.Counter.GetValue()
}

func getGaugeValue(gauge prometheus.Gauge) float64 {
	var m dto.Metric
	if err := gauge.Write(&m); err != nil {
		return 0
	}
	return m.Gauge.GetValue()
}

func TestEventsDecoded(t *testing.T) {
	initial := getCounterValue(EventsDecoded)
	EventsDecoded.Inc()
	EventsDecoded.Inc()
	final := getCounterValue(EventsDecoded)

	if final-initial != 2 {
		t.Errorf("Expected 2 events decoded, got %.0f", final-initial)
	}
}

func TestDecodeErrors(t *testing.T) {
	initial := getCounterValue(DecodeErrors)
	DecodeErrors.Inc()
	final := getCounterValue(DecodeErrors)

	if final-initial != 1 {
		t.Errorf("Expected 1 decode error, got %.0f", final-initial)
	}
}

func TestEventsDelivered(t *testing.T) {
	initial := getCounterValue(EventsDelivered)
	EventsDelivered.Inc()
	final := getCounterValue(EventsDelivered)

	if final-initial != 1 {
		t.Errorf("Expected 1 event delivered, got %.0f", final-initial)
	}
}

func TestEventsDropped(t *testing.T) {
	initial := getCounterValue(EventsDropped)
	EventsDropped.Inc()
	final := getCounterValue(EventsDropped)

	if final-initial != 1 {
		t.Errorf("Expected 1 event dropped, got %.0f", final-initial)
	}
}

func TestPublishHookMetrics(t *testing.T) {
	PublishHookMetrics(types.HookFileOpen, types.HookMetrics{
		Total:          10,
		Added:          4,
		Error:          1,
		Ignored:        3,
		RingbufferFull: 2,
	})

	tests := []struct {
		result   string
		expected float64
	}{
		{"total", 10},
		{"added", 4},
		{"error", 1},
		{"ignored", 3},
		{"ringbuffer_full", 2},
	}

	for _, tt := range tests {
		g := HookEvents.WithLabelValues("file_open", tt.result)
		if v := getGaugeValue(g); v != tt.expected {
			t.Errorf("fact_hook_events{hook=file_open,result=%s} = %.0f, want %.0f",
				tt.result, v, tt.expected)
		}
	}
}

func TestPublishHookMetricsOverwrites(t *testing.T) {
	PublishHookMetrics(types.HookPathUnlink, types.HookMetrics{Total: 1})
	PublishHookMetrics(types.HookPathUnlink, types.HookMetrics{Total: 7})

	g := HookEvents.WithLabelValues("path_unlink", "total")
	if v := getGaugeValue(g); v != 7 {
		t.Errorf("snapshot should overwrite, got %.0f want 7", v)
	}
}

func TestRecordCacheHitMiss(t *testing.T) {
	hit := CacheLookups.WithLabelValues("user", "hit")
	miss := CacheLookups.WithLabelValues("user", "miss")
	initialHit := getCounterValue(hit)
	initialMiss := getCounterValue(miss)

	RecordCacheHit("user")
	RecordCacheMiss("user")
	RecordCacheMiss("user")

	if v := getCounterValue(hit) - initialHit; v != 1 {
		t.Errorf("Expected 1 hit, got %.0f", v)
	}
	if v := getCounterValue(miss) - initialMiss; v != 2 {
		t.Errorf("Expected 2 misses, got %.0f", v)
	}
}

func TestInodesMonitored(t *testing.T) {
	InodesMonitored.Set(3)
	if v := getGaugeValue(InodesMonitored); v != 3 {
		t.Errorf("Expected 3 inodes monitored, got %.0f", v)
	}

	InodesMonitored.Set(5)
	if v := getGaugeValue(InodesMonitored); v != 5 {
		t.Errorf("Expected 5 inodes monitored, got %.0f", v)
	}
}

func TestConnectedToConsumer(t *testing.T) {
	ConnectedToConsumer.Set(1)
	if v := getGaugeValue(ConnectedToConsumer); v != 1 {
		t.Errorf("Expected connected=1, got %.0f", v)
	}
	ConnectedToConsumer.Set(0)
	if v := getGaugeValue(ConnectedToConsumer); v != 0 {
		t.Errorf("Expected connected=0, got %.0f", v)
	}
}
