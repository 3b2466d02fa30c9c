package output

import (
	"fmt"

	"github.com/espegro/fact-agent/internal/types"
)

// ecsDocument maps a decoded event onto an Elastic Common Schema style
// JSON document, shared by the stdout and file loggers.
func ecsDocument(event *types.Event) map[string]interface{} {
	doc := map[string]interface{}{
		"@timestamp": event.Timestamp.Format("2006-01-02T15:04:05.000Z07:00"),
		"event": map[string]interface{}{
			"kind":   "event",
			"action": fmt.Sprintf("file-%s", event.Type.String()),
		},
		"file": map[string]interface{}{
			"path":   sanitizeString(event.Filename),
			"inode":  fmt.Sprintf("%d", event.Inode.Inode),
			"device": fmt.Sprintf("%d", event.Inode.Dev),
		},
		"process": map[string]interface{}{
			"pid":        event.Process.PID,
			"name":       sanitizeString(event.Process.Comm),
			"executable": sanitizeString(event.Process.ExePath),
			"args":       sanitizeStrings(event.Process.Args),
		},
		"user": map[string]interface{}{
			"id":   fmt.Sprintf("%d", event.Process.UID),
			"name": sanitizeString(event.Process.Username),
		},
		"group": map[string]interface{}{
			"id": fmt.Sprintf("%d", event.Process.GID),
		},
	}

	if event.HostFile != "" {
		doc["file"].(map[string]interface{})["target_path"] = sanitizeString(event.HostFile)
	}

	if event.Process.ContainerID != "" {
		doc["container"] = map[string]interface{}{
			"id": event.Process.ContainerID,
		}
	}

	if len(event.Process.Lineage) > 0 {
		parent := event.Process.Lineage[0]
		doc["process"].(map[string]interface{})["parent"] = map[string]interface{}{
			"executable": sanitizeString(parent.ExePath),
			"user":       map[string]interface{}{"id": fmt.Sprintf("%d", parent.UID)},
		}
	}

	switch {
	case event.Chmod != nil:
		doc["file"].(map[string]interface{})["mode"] = fmt.Sprintf("%04o", event.Chmod.NewMode)
		doc["fact"] = map[string]interface{}{
			"chmod": map[string]interface{}{
				"old": fmt.Sprintf("%04o", event.Chmod.OldMode),
				"new": fmt.Sprintf("%04o", event.Chmod.NewMode),
			},
		}
	case event.Chown != nil:
		doc["fact"] = map[string]interface{}{
			"chown": map[string]interface{}{
				"old_uid": event.Chown.OldUID,
				"old_gid": event.Chown.OldGID,
				"new_uid": event.Chown.NewUID,
				"new_gid": event.Chown.NewGID,
			},
		}
	}

	return doc
}

func sanitizeStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = sanitizeString(s)
	}
	return out
}
