package ebpf

import (
	"fmt"
)

// LPMSizeMax is the byte capacity of one trie key, matching
// LPM_SIZE_MAX in bpf/types.h. Longer prefixes are clamped.
const LPMSizeMax = 256

// TrieKey is the LPM trie key layout: prefix bit length followed by
// the prefix bytes, matching path_prefix_t in bpf/types.h.
type TrieKey struct {
	BitLen uint32
	Data   [LPMSizeMax]byte
}

// NewTrieKey builds the trie key for a path prefix. Prefixes longer
// than LPMSizeMax bytes are clamped to their first LPMSizeMax bytes.
func NewTrieKey(prefix string) TrieKey {
	b := []byte(prefix)
	if len(b) > LPMSizeMax {
		b = b[:LPMSizeMax]
	}

	var key TrieKey
	key.BitLen = uint32(8 * len(b))
	copy(key.Data[:], b)
	return key
}

// mapPutter is the slice of *ebpf.Map used here, split out so path
// configuration is testable without a loaded kernel object.
type mapPutter interface {
	Put(key, value interface{}) error
}

// applyPathConfig populates the prefix trie and the filter flag. An
// empty prefix list disables prefix filtering entirely: the trie stays
// empty and only the inode set is consulted.
func applyPathConfig(trie, filterFlag mapPutter, prefixes []string) error {
	if len(prefixes) == 0 {
		if err := filterFlag.Put(uint32(0), uint8(0)); err != nil {
			return fmt.Errorf("disabling prefix filter: %w", err)
		}
		return nil
	}

	for _, prefix := range prefixes {
		key := NewTrieKey(prefix)
		if err := trie.Put(key, uint8(1)); err != nil {
			return fmt.Errorf("inserting prefix %q into trie: %w", prefix, err)
		}
	}

	if err := filterFlag.Put(uint32(0), uint8(1)); err != nil {
		return fmt.Errorf("enabling prefix filter: %w", err)
	}
	return nil
}
