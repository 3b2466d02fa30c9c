package ebpf

import (
	"github.com/espegro/fact-agent/internal/types"
)

// hookCounters mirrors metrics_by_hook_t in bpf/types.h
type hookCounters struct {
	Total          uint64
	Added          uint64
	Error          uint64
	Ignored        uint64
	RingbufferFull uint64
}

// metricsRecord mirrors metrics_t: one block of counters per hook.
// The kernel keeps one record per CPU; readers sum across CPUs.
type metricsRecord struct {
	FileOpen   hookCounters
	PathUnlink hookCounters
	PathChmod  hookCounters
	PathChown  hookCounters
}

func (c hookCounters) add(into *types.HookMetrics) {
	into.Total += c.Total
	into.Added += c.Added
	into.Error += c.Error
	into.Ignored += c.Ignored
	into.RingbufferFull += c.RingbufferFull
}

// sumHookMetrics folds the per-CPU records into one set of counters
// per hook.
func sumHookMetrics(percpu []metricsRecord) map[types.HookID]types.HookMetrics {
	out := make(map[types.HookID]types.HookMetrics, types.HookCount)
	for hook := types.HookFileOpen; hook < types.HookCount; hook++ {
		out[hook] = types.HookMetrics{}
	}

	for _, rec := range percpu {
		for hook, counters := range map[types.HookID]hookCounters{
			types.HookFileOpen:   rec.FileOpen,
			types.HookPathUnlink: rec.PathUnlink,
			types.HookPathChmod:  rec.PathChmod,
			types.HookPathChown:  rec.PathChown,
		} {
			m := out[hook]
			counters.add(&m)
			out[hook] = m
		}
	}
	return out
}
