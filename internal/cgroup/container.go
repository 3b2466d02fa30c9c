// Package cgroup derives container identity from the cgroup paths the
// kernel core attaches to events. Container runtimes name the leaf
// cgroup after the container ID: a 64-hex-character string, optionally
// with a runtime prefix ("docker-", "cri-containerd-", "libpod-…") and
// a ".scope" suffix under systemd.
package cgroup

import (
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/espegro/fact-agent/internal/metrics"
)

const containerIDLength = 64

// shortIDLength is what the agent reports: the familiar 12-character
// short form.
const shortIDLength = 12

// ExtractContainerID returns the short container ID encoded in a
// cgroup leaf name, or "" when the name does not follow the runtime
// convention.
func ExtractContainerID(cgroup string) string {
	if cgroup == "" {
		return ""
	}

	cgroup = strings.TrimSuffix(cgroup, ".scope")
	if len(cgroup) < containerIDLength {
		return ""
	}

	prefix := cgroup[:len(cgroup)-containerIDLength]
	id := cgroup[len(cgroup)-containerIDLength:]

	// A runtime prefix always ends in '-' ("docker-", "libpod-", ...);
	// anything else is a systemd unit that happens to be long.
	if prefix != "" && !strings.HasSuffix(prefix, "-") {
		return ""
	}

	for i := 0; i < len(id); i++ {
		if !isHexDigit(id[i]) {
			return ""
		}
	}

	return id[:shortIDLength]
}

func isHexDigit(c byte) bool {
	return c >= '0' && c <= '9' || c >= 'a' && c <= 'f' || c >= 'A' && c <= 'F'
}

// FromPath walks a full cgroup path from its leaf upward and returns
// the first component carrying a container ID. Nested cgroups below
// the container's own (e.g. systemd payload groups inside the
// container) therefore still resolve to the enclosing container.
func FromPath(path string) string {
	for path != "" {
		var leaf string
		if i := strings.LastIndexByte(path, '/'); i >= 0 {
			leaf, path = path[i+1:], path[:i]
		} else {
			leaf, path = path, ""
		}
		if id := ExtractContainerID(leaf); id != "" {
			return id
		}
	}
	return ""
}

// Cache memoizes FromPath per cgroup path. Event streams repeat the
// same few cgroup paths heavily, and the negative result ("not a
// container") is as valuable to cache as a hit.
type Cache struct {
	cache *lru.Cache[string, string]
}

// NewCache creates a container-ID cache holding up to size paths
func NewCache(size int) *Cache {
	if size <= 0 {
		size = 10000
	}
	cache, _ := lru.New[string, string](size)
	return &Cache{cache: cache}
}

// Lookup resolves the container ID for a cgroup path
func (c *Cache) Lookup(cgroupPath string) string {
	if cgroupPath == "" {
		return ""
	}

	if id, ok := c.cache.Get(cgroupPath); ok {
		metrics.RecordCacheHit("container")
		return id
	}
	metrics.RecordCacheMiss("container")

	id := FromPath(cgroupPath)
	c.cache.Add(cgroupPath, id)
	return id
}
