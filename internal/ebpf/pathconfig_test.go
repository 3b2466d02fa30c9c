package ebpf

import (
	"bytes"
	"strings"
	"testing"
)

type fakeMap struct {
	puts map[interface{}]interface{}
	keys []interface{}
}

func newFakeMap() *fakeMap {
	return &fakeMap{puts: make(map[interface{}]interface{})}
}

func (f *fakeMap) Put(key, value interface{}) error {
	f.puts[key] = value
	f.keys = append(f.keys, key)
	return nil
}

func TestNewTrieKey(t *testing.T) {
	key := NewTrieKey("/etc/")

	if key.BitLen != 8*5 {
		t.Errorf("BitLen = %d, want %d", key.BitLen, 8*5)
	}
	if !bytes.Equal(key.Data[:5], []byte("/etc/")) {
		t.Errorf("Data prefix = %q", key.Data[:5])
	}
	for i := 5; i < LPMSizeMax; i++ {
		if key.Data[i] != 0 {
			t.Fatalf("Data[%d] = %d, want zero padding", i, key.Data[i])
		}
	}
}

func TestNewTrieKeyClampsLongPrefix(t *testing.T) {
	long := "/" + strings.Repeat("a", 2*LPMSizeMax)
	key := NewTrieKey(long)

	if key.BitLen != 8*LPMSizeMax {
		t.Errorf("BitLen = %d, want %d", key.BitLen, 8*LPMSizeMax)
	}
	if !bytes.Equal(key.Data[:], []byte(long[:LPMSizeMax])) {
		t.Error("clamped key bytes do not match prefix head")
	}
}

func TestApplyPathConfigEmptyDisablesFilter(t *testing.T) {
	trie := newFakeMap()
	flag := newFakeMap()

	if err := applyPathConfig(trie, flag, nil); err != nil {
		t.Fatal(err)
	}

	if len(trie.puts) != 0 {
		t.Errorf("trie received %d entries, want 0", len(trie.puts))
	}
	if v := flag.puts[uint32(0)]; v != uint8(0) {
		t.Errorf("filter flag = %v, want 0", v)
	}
}

func TestApplyPathConfigInstallsPrefixes(t *testing.T) {
	trie := newFakeMap()
	flag := newFakeMap()

	prefixes := []string{"/etc/", "/var/lib/app/"}
	if err := applyPathConfig(trie, flag, prefixes); err != nil {
		t.Fatal(err)
	}

	if len(trie.keys) != 2 {
		t.Fatalf("trie received %d entries, want 2", len(trie.keys))
	}
	first, ok := trie.keys[0].(TrieKey)
	if !ok {
		t.Fatalf("trie key has type %T", trie.keys[0])
	}
	if first.BitLen != uint32(8*len("/etc/")) {
		t.Errorf("first key BitLen = %d", first.BitLen)
	}

	if v := flag.puts[uint32(0)]; v != uint8(1) {
		t.Errorf("filter flag = %v, want 1", v)
	}
}
