package delivery

import (
	"os"

	"github.com/espegro/fact-agent/internal/types"
)

// The wire messages mirror proto/fact.proto. They are marshaled by the
// registered codec (see codec.go); field names follow the proto's
// json_name mapping so a protobuf-speaking consumer sees the same
// document shape.

// InodeKey is the stable identity of a filesystem object
type InodeKey struct {
	Inode uint32 `json:"inode"`
	Dev   uint32 `json:"dev"`
}

// Lineage is one ancestor in the originating process's parent chain
type Lineage struct {
	UID     uint32 `json:"uid"`
	ExePath string `json:"exePath"`
}

// Process is the originating-process descriptor attached to every
// activity record
type Process struct {
	Comm          string    `json:"comm"`
	Args          []string  `json:"args,omitempty"`
	ExePath       string    `json:"exePath"`
	MemoryCgroup  string    `json:"memoryCgroup,omitempty"`
	ContainerID   string    `json:"containerId,omitempty"`
	UID           uint32    `json:"uid"`
	GID           uint32    `json:"gid"`
	LoginUID      uint32    `json:"loginUid"`
	PID           uint32    `json:"pid"`
	Username      string    `json:"username,omitempty"`
	Lineage       []Lineage `json:"lineage,omitempty"`
	InRootMountNS bool      `json:"inRootMountNs"`
}

// ChmodPayload carries a permission change
type ChmodPayload struct {
	OldMode uint32 `json:"oldMode"`
	NewMode uint32 `json:"newMode"`
}

// Owner is a (uid, gid) pair
type Owner struct {
	UID uint32 `json:"uid"`
	GID uint32 `json:"gid"`
}

// ChownPayload carries an ownership change
type ChownPayload struct {
	Old Owner `json:"old"`
	New Owner `json:"new"`
}

// FileActivity is one observed file operation, the unit shipped to the
// consumer over the Report stream.
type FileActivity struct {
	Timestamp uint64  `json:"timestamp"` // ns since boot
	Type      int32   `json:"type"`      // -1 INIT, 0 OPEN, 1 CREATE, 2 UNLINK, 3 CHMOD, 4 CHOWN
	Process   Process `json:"process"`

	Inode    *InodeKey `json:"inode,omitempty"`
	Filename string    `json:"filename,omitempty"`
	HostFile string    `json:"hostFile,omitempty"`

	Chmod *ChmodPayload `json:"chmod,omitempty"`
	Chown *ChownPayload `json:"chown,omitempty"`
}

// FromEvent converts a decoded event into its wire form
func FromEvent(e *types.Event) *FileActivity {
	activity := &FileActivity{
		Timestamp: e.TimestampNS,
		Type:      int32(e.Type),
		Filename:  e.Filename,
		HostFile:  e.HostFile,
		Process: Process{
			Comm:          e.Process.Comm,
			Args:          e.Process.Args,
			ExePath:       e.Process.ExePath,
			MemoryCgroup:  e.Process.MemoryCgroup,
			ContainerID:   e.Process.ContainerID,
			UID:           e.Process.UID,
			GID:           e.Process.GID,
			LoginUID:      e.Process.LoginUID,
			PID:           e.Process.PID,
			Username:      e.Process.Username,
			InRootMountNS: e.Process.InRootMountNS,
		},
	}

	if e.Inode.Present() {
		activity.Inode = &InodeKey{Inode: e.Inode.Inode, Dev: e.Inode.Dev}
	}

	for _, l := range e.Process.Lineage {
		activity.Process.Lineage = append(activity.Process.Lineage, Lineage{
			UID:     l.UID,
			ExePath: l.ExePath,
		})
	}

	switch {
	case e.Chmod != nil:
		activity.Chmod = &ChmodPayload{
			OldMode: uint32(e.Chmod.OldMode),
			NewMode: uint32(e.Chmod.NewMode),
		}
	case e.Chown != nil:
		activity.Chown = &ChownPayload{
			Old: Owner{UID: e.Chown.OldUID, GID: e.Chown.OldGID},
			New: Owner{UID: e.Chown.NewUID, GID: e.Chown.NewGID},
		}
	}

	return activity
}

// initActivity is sent once per established stream so the consumer can
// mark (re)connection epochs. It identifies the agent itself.
func initActivity(timestampNS uint64) *FileActivity {
	exe, _ := os.Executable()
	return &FileActivity{
		Timestamp: timestampNS,
		Type:      int32(types.ActivityInit),
		Process: Process{
			Comm:          "fact-agent",
			ExePath:       exe,
			UID:           uint32(os.Getuid()),
			GID:           uint32(os.Getgid()),
			PID:           uint32(os.Getpid()),
			InRootMountNS: true,
		},
	}
}
