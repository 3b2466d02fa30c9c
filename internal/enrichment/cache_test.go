package enrichment

import (
	"fmt"
	"os"
	"testing"
	"time"
)

func TestGetUsernameSelf(t *testing.T) {
	c := NewUserCache(time.Minute, 16)

	uid := uint32(os.Getuid())
	name := c.GetUsername(uid)
	if name == "" {
		t.Fatal("GetUsername returned empty string")
	}

	// Second lookup must come from the cache and agree
	if again := c.GetUsername(uid); again != name {
		t.Errorf("cached lookup = %q, first = %q", again, name)
	}
}

func TestGetUsernameUnknownUID(t *testing.T) {
	c := NewUserCache(time.Minute, 16)

	// UIDs in this range should not exist on any sane test host
	const bogus = uint32(4000000000)
	want := fmt.Sprintf("uid:%d", bogus)
	if got := c.GetUsername(bogus); got != want {
		t.Errorf("GetUsername(bogus) = %q, want %q", got, want)
	}
}

func TestCacheTTLExpiry(t *testing.T) {
	c := NewUserCache(10*time.Millisecond, 16)

	uid := uint32(os.Getuid())
	first := c.GetUsername(uid)

	time.Sleep(20 * time.Millisecond)

	// Entry expired; a fresh lookup still returns the same name
	if got := c.GetUsername(uid); got != first {
		t.Errorf("post-expiry lookup = %q, want %q", got, first)
	}
}

func TestCacheSizeFallback(t *testing.T) {
	// A non-positive size must not produce an unusable cache
	c := NewUserCache(time.Minute, 0)
	if c.GetUsername(uint32(os.Getuid())) == "" {
		t.Error("cache with default size failed lookup")
	}
}
