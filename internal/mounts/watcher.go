package mounts

import (
	"bytes"
	"os"
	"sync"
	"time"

	"github.com/espegro/fact-agent/internal/logger"
)

// MountWatcher monitors /proc/mounts for changes. cmd/fact-agent
// registers a callback so any change to the mount table triggers a
// rescan of the monitored prefixes.
type MountWatcher struct {
	interval      time.Duration
	lastContent   []byte
	callbacks     []func(map[uint32]MountInfo)
	mu            sync.RWMutex
	stopChan      chan struct{}
	stoppedChan   chan struct{}
	currentMounts map[uint32]MountInfo
}

// NewMountWatcher creates a new mount watcher
func NewMountWatcher(interval time.Duration) *MountWatcher {
	return &MountWatcher{
		interval:    interval,
		callbacks:   make([]func(map[uint32]MountInfo), 0),
		stopChan:    make(chan struct{}),
		stoppedChan: make(chan struct{}),
	}
}

// OnChange registers a callback for mount changes
func (w *MountWatcher) OnChange(callback func(map[uint32]MountInfo)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, callback)
}

// GetCurrentMounts returns a copy of the current mount table
func (w *MountWatcher) GetCurrentMounts() map[uint32]MountInfo {
	w.mu.RLock()
	defer w.mu.RUnlock()

	result := make(map[uint32]MountInfo)
	for k, v := range w.currentMounts {
		result[k] = v
	}
	return result
}

// Start begins watching for mount changes
func (w *MountWatcher) Start() error {
	// Initial read
	content, err := os.ReadFile("/proc/mounts")
	if err != nil {
		return err
	}
	w.lastContent = content

	// Initial mount detection
	mounts, err := DetectMounts()
	if err != nil {
		return err
	}
	w.mu.Lock()
	w.currentMounts = mounts
	w.mu.Unlock()

	// Start watching
	go w.watch()
	return nil
}

// Stop stops the watcher
func (w *MountWatcher) Stop() {
	close(w.stopChan)
	<-w.stoppedChan
}

func (w *MountWatcher) watch() {
	defer close(w.stoppedChan)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopChan:
			return
		case <-ticker.C:
			w.checkForChanges()
		}
	}
}

func (w *MountWatcher) checkForChanges() {
	content, err := os.ReadFile("/proc/mounts")
	if err != nil {
		logger.Error("Error reading /proc/mounts: %v", err)
		return
	}

	// Check if content changed
	if bytes.Equal(content, w.lastContent) {
		return
	}
	w.lastContent = content

	newMounts, err := DetectMounts()
	if err != nil {
		logger.Error("Error detecting mounts: %v", err)
		return
	}

	w.mu.Lock()
	oldMounts := w.currentMounts
	w.currentMounts = newMounts
	w.mu.Unlock()

	if !mountsEqual(oldMounts, newMounts) {
		added, removed := diffMounts(oldMounts, newMounts)
		for _, m := range added {
			logger.Info("New mount detected: %s on %s (device_id: %d)",
				m.Device, m.Mountpoint, m.DeviceID)
		}
		for _, m := range removed {
			logger.Info("Mount removed: %s on %s (device_id: %d)",
				m.Device, m.Mountpoint, m.DeviceID)
		}

		// Notify callbacks
		w.mu.RLock()
		callbacks := w.callbacks
		w.mu.RUnlock()

		for _, cb := range callbacks {
			cb(newMounts)
		}
	}
}

func mountsEqual(a, b map[uint32]MountInfo) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if bv, ok := b[k]; !ok || bv.Mountpoint != v.Mountpoint {
			return false
		}
	}
	return true
}

func diffMounts(old, new map[uint32]MountInfo) (added, removed []MountInfo) {
	for k, v := range new {
		if _, ok := old[k]; !ok {
			added = append(added, v)
		}
	}
	for k, v := range old {
		if _, ok := new[k]; !ok {
			removed = append(removed, v)
		}
	}
	return
}
