// Package types holds the decoded, userspace-facing representation of
// file-activity events. The wire layout each event is decoded from
// lives in internal/pump; this package is the shape everything
// downstream of the pump (enrichment, delivery, debug output) works
// with.
package types

import "time"

// ActivityType identifies which security hook produced an event.
type ActivityType int32

const (
	ActivityInit   ActivityType = -1
	ActivityOpen   ActivityType = 0
	ActivityCreate ActivityType = 1
	ActivityUnlink ActivityType = 2
	ActivityChmod  ActivityType = 3
	ActivityChown  ActivityType = 4
)

func (a ActivityType) String() string {
	switch a {
	case ActivityOpen:
		return "open"
	case ActivityCreate:
		return "create"
	case ActivityUnlink:
		return "unlink"
	case ActivityChmod:
		return "chmod"
	case ActivityChown:
		return "chown"
	default:
		return "init"
	}
}

// InodeKey is the (inode-number, device-number) stable identity for a
// filesystem object, zero-valued when not applicable to an event.
type InodeKey struct {
	Inode uint32
	Dev   uint32
}

// Present reports whether the key refers to an actual inode.
func (k InodeKey) Present() bool {
	return k.Inode != 0 || k.Dev != 0
}

// LineageEntry is one ancestor in a process's parent chain.
type LineageEntry struct {
	UID     uint32
	ExePath string
}

// Process is the enrichment attached to every emitted event.
type Process struct {
	Comm          string
	Args          []string
	ExePath       string
	MemoryCgroup  string
	ContainerID   string
	UID           uint32
	GID           uint32
	LoginUID      uint32
	PID           uint32
	InRootMountNS bool
	Lineage       []LineageEntry

	// Populated by internal/enrichment, not carried over the wire
	// from the kernel.
	Username string
}

// Metadata is the best-effort inode metadata attached to path events.
type Metadata struct {
	Mode uint16
	UID  uint32
	GID  uint32
	Size uint64
}

// ChmodPayload carries the permission change for a CHMOD event.
type ChmodPayload struct {
	OldMode uint16
	NewMode uint16
}

// ChownPayload carries the ownership change for a CHOWN event.
type ChownPayload struct {
	OldUID uint32
	OldGID uint32
	NewUID uint32
	NewGID uint32
}

// Event is a fully decoded file-activity record, ready for enrichment
// and delivery.
type Event struct {
	Type        ActivityType
	TimestampNS uint64    // ns since boot, as produced by the kernel
	Timestamp   time.Time // wall-clock conversion, filled by the pump
	Process     Process
	Inode     InodeKey
	Filename  string
	HostFile  string
	Metadata  Metadata

	Chmod *ChmodPayload
	Chown *ChownPayload
}

// HookID identifies one of the four attached security hooks, used to
// index per-hook metrics and feature-probe results.
type HookID int

const (
	HookFileOpen HookID = iota
	HookPathUnlink
	HookPathChmod
	HookPathChown
	HookCount
)

func (h HookID) String() string {
	switch h {
	case HookFileOpen:
		return "file_open"
	case HookPathUnlink:
		return "path_unlink"
	case HookPathChmod:
		return "path_chmod"
	case HookPathChown:
		return "path_chown"
	default:
		return "unknown"
	}
}

// HookMetrics mirrors bpf/types.h's metrics_by_hook_t after summing
// across CPUs: five counters, each monotonically non-decreasing.
type HookMetrics struct {
	Total          uint64
	Added          uint64
	Error          uint64
	Ignored        uint64
	RingbufferFull uint64
}
