package enrichment

import (
	"fmt"
	"os/user"
	"strconv"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/espegro/fact-agent/internal/metrics"
)

const (
	// LookupTimeout prevents blocking on slow NSS backends (LDAP/NIS)
	LookupTimeout = 2 * time.Second
)

// UserCache caches UID-to-username lookups with LRU eviction and TTL
// expiry. The pipeline calls it on the hot path (once per event for
// the process uid), so a miss must never block longer than
// LookupTimeout.
type UserCache struct {
	cache *lru.Cache[uint32, *cacheEntry]
	ttl   time.Duration
}

type cacheEntry struct {
	name      string
	timestamp time.Time
}

// NewUserCache creates a username cache with an LRU size limit
func NewUserCache(ttl time.Duration, size int) *UserCache {
	if size <= 0 {
		size = 10000 // Default fallback
	}
	cache, _ := lru.New[uint32, *cacheEntry](size)

	return &UserCache{
		cache: cache,
		ttl:   ttl,
	}
}

// GetUsername returns the username for a given UID. Unresolvable UIDs
// report as "uid:<n>", and that fallback is cached like a real name.
func (c *UserCache) GetUsername(uid uint32) string {
	if entry, ok := c.cache.Get(uid); ok {
		if time.Since(entry.timestamp) < c.ttl {
			metrics.RecordCacheHit("user")
			return entry.name
		}
	}

	metrics.RecordCacheMiss("user")
	name := lookupWithTimeout(uid)

	c.cache.Add(uid, &cacheEntry{
		name:      name,
		timestamp: time.Now(),
	})

	return name
}

// lookupWithTimeout queries NSS in a goroutine so a hung backend costs
// at most LookupTimeout, not a stalled pipeline.
func lookupWithTimeout(uid uint32) string {
	resultChan := make(chan string, 1)
	go func() {
		u, err := user.LookupId(strconv.FormatUint(uint64(uid), 10))
		if err != nil {
			resultChan <- fmt.Sprintf("uid:%d", uid)
		} else {
			resultChan <- u.Username
		}
	}()

	select {
	case name := <-resultChan:
		return name
	case <-time.After(LookupTimeout):
		return fmt.Sprintf("uid:%d", uid)
	}
}
