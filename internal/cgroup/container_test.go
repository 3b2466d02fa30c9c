package cgroup

import "testing"

func TestExtractContainerID(t *testing.T) {
	tests := []struct {
		cgroup   string
		expected string
	}{
		{"e73c55f3e7f5b6a9cfc32a89bf13e44d348bcc4fa7b079f804d61fb1532ddbe5", "e73c55f3e7f5"},
		{"cri-containerd-219d7afb8e7450929eaeb06f2d27cbf7183bfa5b55b7275696f3df4154a979af.scope", "219d7afb8e74"},
		{"kubelet-kubepods-burstable-pod469726a5_079d_4d15_a259_1f654b534b44.slice", ""},
		{"libpod-conmon-a2d2a36121868d946af912b931fc5f6b42bf84c700cef67784422b1e2c8585ee.scope", "a2d2a3612186"},
		{"init.scope", ""},
		{"app-flatpak-com.github.IsmaelMartinez.teams_for_linux-384393947.scope", ""},
		{"", ""},
	}

	for _, tt := range tests {
		got := ExtractContainerID(tt.cgroup)
		if got != tt.expected {
			t.Errorf("ExtractContainerID(%q) = %q, want %q", tt.cgroup, got, tt.expected)
		}
	}
}

func TestFromPath(t *testing.T) {
	tests := []struct {
		path     string
		expected string
	}{
		{
			"/kubepods.slice/kubepods-burstable.slice/cri-containerd-219d7afb8e7450929eaeb06f2d27cbf7183bfa5b55b7275696f3df4154a979af.scope",
			"219d7afb8e74",
		},
		{
			// Nested group inside a container resolves to the container
			"/system.slice/docker-e73c55f3e7f5b6a9cfc32a89bf13e44d348bcc4fa7b079f804d61fb1532ddbe5.scope/payload",
			"e73c55f3e7f5",
		},
		{"/user.slice/user-1000.slice/session-2.scope", ""},
		{"/", ""},
		{"", ""},
	}

	for _, tt := range tests {
		got := FromPath(tt.path)
		if got != tt.expected {
			t.Errorf("FromPath(%q) = %q, want %q", tt.path, got, tt.expected)
		}
	}
}

func TestCacheLookup(t *testing.T) {
	c := NewCache(4)

	path := "/system.slice/docker-e73c55f3e7f5b6a9cfc32a89bf13e44d348bcc4fa7b079f804d61fb1532ddbe5.scope"
	first := c.Lookup(path)
	second := c.Lookup(path)

	if first != "e73c55f3e7f5" || second != first {
		t.Errorf("Lookup = %q then %q", first, second)
	}

	// Negative results are cached too
	if got := c.Lookup("/user.slice"); got != "" {
		t.Errorf("Lookup(non-container) = %q", got)
	}
	if got := c.Lookup("/user.slice"); got != "" {
		t.Errorf("cached Lookup(non-container) = %q", got)
	}
}
