package pump

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/espegro/fact-agent/internal/types"
)

// Frame layout constants, mirroring event_t in bpf/types.h including
// the C compiler's alignment padding. The kernel reserves exactly
// sizeof(event_t) per frame, so every field lives at a fixed offset.
const (
	PathMax     = 4096
	TaskCommLen = 16
	LineageMax  = 2

	offType      = 0
	offTimestamp = 8 // 4 bytes padding after the i32 type

	offProcess  = 16
	offComm     = offProcess
	offArgs     = offComm + TaskCommLen
	offArgsLen  = offArgs + PathMax
	offExePath  = offArgsLen + 4
	offCgroup   = offExePath + PathMax
	offUID      = offCgroup + PathMax
	offGID      = offUID + 4
	offLoginUID = offGID + 4
	offPID      = offLoginUID + 4

	offLineage    = offPID + 4
	lineageStride = 4 + PathMax
	offLineageLen = offLineage + LineageMax*lineageStride
	offInRootNS   = offLineageLen + 4

	offInode    = offInRootNS + 1 + 3 // process_t tail padding
	offFilename = offInode + 8
	offHostFile = offFilename + PathMax

	offMetadata = offHostFile + PathMax + 4 // align to the u64 size field
	offMetaMode = offMetadata
	offMetaUID  = offMetadata + 4
	offMetaGID  = offMetadata + 8
	offMetaSize = offMetadata + 16

	offPayload = offMetadata + 24

	// FrameSize is sizeof(event_t)
	FrameSize = offPayload + 16
)

// DecodeError marks a malformed ring buffer frame; the pump counts and
// drops these without tearing down the pipeline.
type DecodeError struct {
	Reason string
}

func (e *DecodeError) Error() string {
	return "malformed event frame: " + e.Reason
}

func decodeErrorf(format string, args ...interface{}) error {
	return &DecodeError{Reason: fmt.Sprintf(format, args...)}
}

// cstr reads a NUL-terminated string from a fixed-size field
func cstr(data []byte, off, size int) string {
	field := data[off : off+size]
	if n := bytes.IndexByte(field, 0); n >= 0 {
		field = field[:n]
	}
	return string(field)
}

func u16(data []byte, off int) uint16 { return binary.LittleEndian.Uint16(data[off:]) }
func u32(data []byte, off int) uint32 { return binary.LittleEndian.Uint32(data[off:]) }
func u64(data []byte, off int) uint64 { return binary.LittleEndian.Uint64(data[off:]) }

// splitArgs splits the NUL-separated argv blob. The kernel writes
// argsLen bytes copied straight from the task's argv region, each
// argument NUL-terminated.
func splitArgs(blob []byte, argsLen uint32) []string {
	if argsLen == 0 {
		return nil
	}
	blob = blob[:argsLen]
	// Trailing NUL terminates the last argument; don't produce an
	// empty final element for it.
	blob = bytes.TrimSuffix(blob, []byte{0})
	if len(blob) == 0 {
		return nil
	}

	parts := bytes.Split(blob, []byte{0})
	args := make([]string, 0, len(parts))
	for _, p := range parts {
		if len(p) == 0 {
			continue
		}
		args = append(args, string(p))
	}
	if len(args) == 0 {
		return nil
	}
	return args
}

// Decode turns one raw ring buffer frame into a decoded event. Every
// read is within the frame: the single length check up front covers
// all fixed offsets, and the variable-length fields (args, lineage)
// are validated against their maxima before use.
func Decode(data []byte) (*types.Event, error) {
	if len(data) < FrameSize {
		return nil, decodeErrorf("frame too short: %d bytes, want %d", len(data), FrameSize)
	}

	typ := types.ActivityType(int32(u32(data, offType)))
	switch typ {
	case types.ActivityOpen, types.ActivityCreate, types.ActivityUnlink,
		types.ActivityChmod, types.ActivityChown:
	default:
		return nil, decodeErrorf("unknown event type %d", typ)
	}

	event := &types.Event{
		Type:        typ,
		TimestampNS: u64(data, offTimestamp),
	}

	argsLen := u32(data, offArgsLen)
	if argsLen > PathMax {
		return nil, decodeErrorf("args length %d exceeds %d", argsLen, PathMax)
	}
	lineageLen := u32(data, offLineageLen)
	if lineageLen > LineageMax {
		return nil, decodeErrorf("lineage length %d exceeds %d", lineageLen, LineageMax)
	}

	event.Process = types.Process{
		Comm:          cstr(data, offComm, TaskCommLen),
		Args:          splitArgs(data[offArgs:offArgs+PathMax], argsLen),
		ExePath:       cstr(data, offExePath, PathMax),
		MemoryCgroup:  cstr(data, offCgroup, PathMax),
		UID:           u32(data, offUID),
		GID:           u32(data, offGID),
		LoginUID:      u32(data, offLoginUID),
		PID:           u32(data, offPID),
		InRootMountNS: data[offInRootNS] != 0,
	}

	for i := 0; i < int(lineageLen); i++ {
		base := offLineage + i*lineageStride
		event.Process.Lineage = append(event.Process.Lineage, types.LineageEntry{
			UID:     u32(data, base),
			ExePath: cstr(data, base+4, PathMax),
		})
	}

	event.Inode = types.InodeKey{
		Inode: u32(data, offInode),
		Dev:   u32(data, offInode+4),
	}
	event.Filename = cstr(data, offFilename, PathMax)
	event.HostFile = cstr(data, offHostFile, PathMax)

	event.Metadata = types.Metadata{
		Mode: u16(data, offMetaMode),
		UID:  u32(data, offMetaUID),
		GID:  u32(data, offMetaGID),
		Size: u64(data, offMetaSize),
	}

	switch typ {
	case types.ActivityChmod:
		event.Chmod = &types.ChmodPayload{
			OldMode: u16(data, offPayload),
			NewMode: u16(data, offPayload+2),
		}
	case types.ActivityChown:
		event.Chown = &types.ChownPayload{
			OldUID: u32(data, offPayload),
			OldGID: u32(data, offPayload+4),
			NewUID: u32(data, offPayload+8),
			NewGID: u32(data, offPayload+12),
		}
	}

	return event, nil
}
