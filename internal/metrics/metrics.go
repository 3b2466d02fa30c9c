package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/espegro/fact-agent/internal/types"
)

// Metrics for the fact-agent pipeline. The per-hook kernel counters
// live in a per-CPU BPF map and are mirrored here by the periodic
// snapshotter; everything else is counted directly in userspace.
var (
	// HookEvents mirrors the kernel's per-hook counters
	// (total/added/error/ignored/ringbuffer_full), summed across CPUs.
	// A gauge rather than a counter: the authoritative monotonic value
	// is kernel-side, the snapshot just publishes it.
	HookEvents = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fact_hook_events",
			Help: "Kernel per-hook event counters, summed across CPUs",
		},
		[]string{"hook", "result"},
	)

	// Pump counters
	EventsDecoded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fact_events_decoded_total",
		Help: "Total number of events decoded from the ring buffer",
	})

	DecodeErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fact_decode_errors_total",
		Help: "Total number of malformed ring buffer frames dropped",
	})

	// Delivery counters
	EventsDelivered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fact_events_delivered_total",
		Help: "Total number of events sent to the consumer",
	})

	EventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fact_events_dropped_total",
		Help: "Total number of events dropped due to queue/rate limits",
	})

	Reconnects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fact_delivery_reconnects_total",
		Help: "Total number of gRPC session re-establishment attempts",
	})

	ConnectedToConsumer = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fact_delivery_connected",
		Help: "Whether a gRPC session to the consumer is established (0/1)",
	})

	// Cache metrics
	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fact_cache_lookups_total",
			Help: "Total number of username/container-ID cache lookups",
		},
		[]string{"cache", "result"}, // cache: "user"|"container", result: "hit"|"miss"
	)

	// Host scan
	InodesMonitored = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fact_inodes_monitored",
		Help: "Number of inode keys seeded by the host scanner",
	})
)

// PublishHookMetrics pushes one snapshot of the kernel counters for a
// single hook into the registry.
func PublishHookMetrics(hook types.HookID, m types.HookMetrics) {
	h := hook.String()
	HookEvents.WithLabelValues(h, "total").Set(float64(m.Total))
	HookEvents.WithLabelValues(h, "added").Set(float64(m.Added))
	HookEvents.WithLabelValues(h, "error").Set(float64(m.Error))
	HookEvents.WithLabelValues(h, "ignored").Set(float64(m.Ignored))
	HookEvents.WithLabelValues(h, "ringbuffer_full").Set(float64(m.RingbufferFull))
}

// RecordCacheHit records a cache hit
func RecordCacheHit(cache string) {
	CacheLookups.WithLabelValues(cache, "hit").Inc()
}

// RecordCacheMiss records a cache miss
func RecordCacheMiss(cache string) {
	CacheLookups.WithLabelValues(cache, "miss").Inc()
}
