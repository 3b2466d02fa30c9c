// Package hostscan walks the configured path prefixes on the host
// filesystem and seeds the monitored-inode state: the kernel's inode
// map (so files that already exist under a monitored prefix are
// tracked from agent start, not only from their next create) and a
// userspace inode-to-path table used to recover host paths for events
// the kernel could not resolve one for.
package hostscan

import (
	"io/fs"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/espegro/fact-agent/internal/logger"
	"github.com/espegro/fact-agent/internal/metrics"
	"github.com/espegro/fact-agent/internal/types"
)

// InodeMapWriter is the slice of the kernel inode map the scanner
// needs; *ebpf.Map satisfies it.
type InodeMapWriter interface {
	Put(key, value interface{}) error
}

// Scanner maintains the monitored-inode seed state
type Scanner struct {
	prefixes  []string
	kernelMap InodeMapWriter

	mu    sync.RWMutex
	table map[types.InodeKey]string
}

// New creates a scanner over the given path prefixes. kernelMap may be
// nil, in which case only the userspace table is maintained.
func New(prefixes []string, kernelMap InodeMapWriter) *Scanner {
	return &Scanner{
		prefixes:  prefixes,
		kernelMap: kernelMap,
		table:     make(map[types.InodeKey]string),
	}
}

// Scan walks every configured prefix once. Unreadable entries are
// skipped: a monitored directory with a permission hole still yields
// everything reachable.
func (s *Scanner) Scan() error {
	for _, prefix := range s.prefixes {
		err := filepath.WalkDir(prefix, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				logger.Debug("Host scan skipping %s: %v", path, err)
				return nil
			}
			if !d.Type().IsRegular() {
				return nil
			}
			s.addFile(path)
			return nil
		})
		if err != nil {
			return err
		}
		logger.Debug("Host scan of %s done", prefix)
	}

	s.mu.RLock()
	metrics.InodesMonitored.Set(float64(len(s.table)))
	s.mu.RUnlock()
	return nil
}

func (s *Scanner) addFile(path string) {
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		logger.Debug("Host scan could not stat %s: %v", path, err)
		return
	}

	// stat() reports device numbers in the same packed form the
	// kernel core writes into inode keys (see bpf/kdev.h).
	key := types.InodeKey{
		Inode: uint32(st.Ino),
		Dev:   uint32(st.Dev),
	}

	if s.kernelMap != nil {
		if err := s.kernelMap.Put(key, uint8(1)); err != nil {
			logger.Warn("Failed to seed kernel inode map for %s: %v", path, err)
		}
	}

	s.Record(key, path)
}

// Record stores or replaces the host path for an inode key. The event
// processor in cmd/fact-agent calls this on CREATE events so the table tracks files born after the
// initial scan.
func (s *Scanner) Record(key types.InodeKey, path string) {
	s.mu.Lock()
	s.table[key] = path
	s.mu.Unlock()
}

// Forget drops an inode key, called on UNLINK events
func (s *Scanner) Forget(key types.InodeKey) {
	s.mu.Lock()
	delete(s.table, key)
	s.mu.Unlock()
}

// Resolve maps an inode key back to its host path
func (s *Scanner) Resolve(key types.InodeKey) (string, bool) {
	s.mu.RLock()
	path, ok := s.table[key]
	s.mu.RUnlock()
	return path, ok
}

// Len reports the number of tracked inodes
func (s *Scanner) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.table)
}

// Start runs periodic rescans until the stop channel closes. A zero interval means startup-scan only. Rescans remediate
// inconsistencies from missed events (e.g. renames into a monitored
// prefix from outside it).
func (s *Scanner) Start(stop <-chan struct{}, interval time.Duration) {
	if interval <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := s.Scan(); err != nil {
					logger.Warn("Periodic host scan failed: %v", err)
				}
			case <-stop:
				return
			}
		}
	}()
}
