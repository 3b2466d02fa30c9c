package ebpf

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/cilium/ebpf"
	"github.com/cilium/ebpf/link"
	"github.com/cilium/ebpf/ringbuf"
	"github.com/cilium/ebpf/rlimit"

	"github.com/espegro/fact-agent/internal/logger"
	"github.com/espegro/fact-agent/internal/types"
)

// Monitor manages the LSM programs and their maps
type Monitor struct {
	objs   *factAgentObjects
	links  []link.Link
	reader *ringbuf.Reader

	closeOnce sync.Once
	closeErr  error
}

// NewMonitor loads the compiled LSM programs and their maps into the
// kernel and seeds the host mount-namespace id. Hooks are not attached
// yet; call SetDPathSupport and ApplyPathConfig first, then
// AttachHooks.
func NewMonitor() (*Monitor, error) {
	if err := rlimit.RemoveMemlock(); err != nil {
		return nil, fmt.Errorf("removing memlock limit: %w", err)
	}

	objs := &factAgentObjects{}
	if err := loadFactAgentObjects(objs, nil); err != nil {
		return nil, fmt.Errorf("loading eBPF objects: %w", err)
	}

	m := &Monitor{objs: objs}

	ns, err := hostMountNamespace()
	if err != nil {
		objs.Close()
		return nil, fmt.Errorf("reading host mount namespace: %w", err)
	}
	if err := objs.HostMountNsMap.Put(uint32(0), ns); err != nil {
		objs.Close()
		return nil, fmt.Errorf("seeding host_mount_ns map: %w", err)
	}

	return m, nil
}

// hostMountNamespace reads the agent's own mount-namespace id, which
// is the host's as long as the agent runs in the initial namespace (or
// a container sharing it).
func hostMountNamespace() (uint64, error) {
	target, err := os.Readlink("/proc/self/ns/mnt")
	if err != nil {
		return 0, err
	}
	return parseNamespaceID(target)
}

// parseNamespaceID extracts the inode from a "mnt:[4026531841]" link
func parseNamespaceID(link string) (uint64, error) {
	start := strings.IndexByte(link, '[')
	end := strings.IndexByte(link, ']')
	if start < 0 || end <= start {
		return 0, fmt.Errorf("unexpected namespace link format %q", link)
	}
	id, err := strconv.ParseUint(link[start+1:end], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing namespace id from %q: %w", link, err)
	}
	return id, nil
}

// SetDPathSupport publishes the per-hook bpf_d_path probe results into
// the native_d_path_support map. Must run before AttachHooks so the
// hooks never observe a half-initialized flag set.
func (m *Monitor) SetDPathSupport(f Features) error {
	for hook := types.HookFileOpen; hook < types.HookCount; hook++ {
		var v uint8
		if f.DPathSupport[hook] {
			v = 1
		}
		if err := m.objs.NativeDPathSupport.Put(uint32(hook), v); err != nil {
			return fmt.Errorf("setting d_path support for %s: %w", hook, err)
		}
	}
	return nil
}

// ApplyPathConfig installs the monitored path prefixes into the LPM
// trie and sets the filter_by_prefix flag.
func (m *Monitor) ApplyPathConfig(prefixes []string) error {
	return applyPathConfig(m.objs.PathPrefix, m.objs.FilterByPrefixMap, prefixes)
}

// AttachHooks attaches the LSM programs. file_open and path_unlink are
// mandatory; chmod/chown attachment failures are reported and skipped.
func (m *Monitor) AttachHooks() error {
	mandatory := []struct {
		name string
		prog *ebpf.Program
	}{
		{"file_open", m.objs.TraceFileOpen},
		{"path_unlink", m.objs.TracePathUnlink},
	}
	for _, h := range mandatory {
		l, err := link.AttachLSM(link.LSMOptions{Program: h.prog})
		if err != nil {
			return fmt.Errorf("attaching lsm/%s: %w", h.name, err)
		}
		m.links = append(m.links, l)
		logger.Info("Attached lsm/%s", h.name)
	}

	optional := []struct {
		name string
		prog *ebpf.Program
	}{
		{"path_chmod", m.objs.TracePathChmod},
		{"path_chown", m.objs.TracePathChown},
	}
	for _, h := range optional {
		l, err := link.AttachLSM(link.LSMOptions{Program: h.prog})
		if err != nil {
			logger.Warn("Failed to attach lsm/%s, %s events will not be reported: %v", h.name, h.name, err)
			continue
		}
		m.links = append(m.links, l)
		logger.Info("Attached lsm/%s", h.name)
	}

	return nil
}

// RingbufReader opens (once) and returns the ring buffer reader
func (m *Monitor) RingbufReader() (*ringbuf.Reader, error) {
	if m.reader != nil {
		return m.reader, nil
	}
	rd, err := ringbuf.NewReader(m.objs.Rb)
	if err != nil {
		return nil, fmt.Errorf("opening ring buffer reader: %w", err)
	}
	m.reader = rd
	return rd, nil
}

// InodeMap returns the monitored-inode map for the host scanner to seed
func (m *Monitor) InodeMap() *ebpf.Map {
	return m.objs.InodeMap
}

// ReadHookMetrics reads the per-CPU kernel counters and sums them
func (m *Monitor) ReadHookMetrics() (map[types.HookID]types.HookMetrics, error) {
	var percpu []metricsRecord
	if err := m.objs.Metrics.Lookup(uint32(0), &percpu); err != nil {
		return nil, fmt.Errorf("reading metrics map: %w", err)
	}
	return sumHookMetrics(percpu), nil
}

// Close detaches all hooks and releases maps. Safe to call more than
// once; repeated calls return the first result.
func (m *Monitor) Close() error {
	m.closeOnce.Do(func() {
		var errs []error

		if m.reader != nil {
			if err := m.reader.Close(); err != nil {
				errs = append(errs, fmt.Errorf("closing ring buffer reader: %w", err))
			}
		}

		for _, l := range m.links {
			if err := l.Close(); err != nil {
				errs = append(errs, fmt.Errorf("detaching link: %w", err))
			}
		}
		m.links = nil

		if m.objs != nil {
			if err := m.objs.Close(); err != nil {
				errs = append(errs, fmt.Errorf("closing eBPF objects: %w", err))
			}
		}

		m.closeErr = errors.Join(errs...)
	})
	return m.closeErr
}
