package mounts

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"strings"

	"golang.org/x/sys/unix"
)

// MountInfo holds information about a mounted filesystem
type MountInfo struct {
	Device     string // e.g., "/dev/nvme0n1p2"
	Mountpoint string // e.g., "/var"
	FSType     string // e.g., "ext4"
	DeviceID   uint32 // stat() st_dev, truncated to the agent's 32-bit key width
}

// virtualFSTypes are mounts that can never back a monitored file; they
// only add noise to the device table.
var virtualFSTypes = map[string]bool{
	"proc":        true,
	"sysfs":       true,
	"devpts":      true,
	"cgroup":      true,
	"cgroup2":     true,
	"bpf":         true,
	"securityfs":  true,
	"debugfs":     true,
	"tracefs":     true,
	"mqueue":      true,
	"hugetlbfs":   true,
	"pstore":      true,
	"configfs":    true,
	"fusectl":     true,
	"binfmt_misc": true,
}

// DetectMounts parses /proc/mounts and returns the host's mount table
// keyed by device ID. The device ID matches the dev field of
// kernel-produced inode keys, so events can be mapped back to the
// filesystem they happened on.
func DetectMounts() (map[uint32]MountInfo, error) {
	mounts := make(map[uint32]MountInfo)

	data, err := os.ReadFile("/proc/mounts")
	if err != nil {
		return nil, fmt.Errorf("reading /proc/mounts: %w", err)
	}

	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 3 {
			continue
		}

		device := fields[0]
		mountpoint := fields[1]
		fstype := fields[2]

		if virtualFSTypes[fstype] {
			continue
		}

		// Get device ID via stat (st_dev); this is what the kernel
		// core writes into inode keys, modulo the 32-bit truncation.
		var statbuf unix.Stat_t
		if err := unix.Stat(mountpoint, &statbuf); err != nil {
			// Skip mounts we can't stat (might be unmounted or permission issues)
			continue
		}

		devID := uint32(statbuf.Dev)

		// Keep the shortest mountpoint per device: a bind mount of an
		// already-recorded filesystem should not shadow its root.
		if existing, ok := mounts[devID]; ok && len(existing.Mountpoint) <= len(mountpoint) {
			continue
		}

		mounts[devID] = MountInfo{
			Device:     device,
			Mountpoint: mountpoint,
			FSType:     fstype,
			DeviceID:   devID,
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanning /proc/mounts: %w", err)
	}

	return mounts, nil
}

// GetMountPointByDeviceID returns the mountpoint for a given device ID
func GetMountPointByDeviceID(mounts map[uint32]MountInfo, deviceID uint32) string {
	if mount, ok := mounts[deviceID]; ok {
		return mount.Mountpoint
	}
	return ""
}
