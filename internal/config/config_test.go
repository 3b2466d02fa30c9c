package config

import (
	"errors"
	"flag"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Delivery.QueueSize != 4096 {
		t.Errorf("default queue size = %d, want 4096", cfg.Delivery.QueueSize)
	}
	if cfg.Performance.DropPolicy != "newest" {
		t.Errorf("default drop policy = %q, want newest", cfg.Performance.DropPolicy)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("default log level = %q, want info", cfg.Logging.Level)
	}
	if len(cfg.Paths) != 0 {
		t.Errorf("default paths = %v, want empty", cfg.Paths)
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fact-agent.yaml")

	content := `
paths:
  - /etc/
  - /var/lib/app/
delivery:
  url: "dns:///sensor:9999"
  queue_size: 128
logging:
  level: debug
metrics:
  enabled: true
  port: 9100
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if !reflect.DeepEqual(cfg.Paths, []string{"/etc/", "/var/lib/app/"}) {
		t.Errorf("paths = %v", cfg.Paths)
	}
	if cfg.Delivery.URL != "dns:///sensor:9999" {
		t.Errorf("delivery url = %q", cfg.Delivery.URL)
	}
	if cfg.Delivery.QueueSize != 128 {
		t.Errorf("queue size = %d", cfg.Delivery.QueueSize)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("log level = %q", cfg.Logging.Level)
	}
	if !cfg.Metrics.Enabled || cfg.Metrics.Port != 9100 {
		t.Errorf("metrics = %+v", cfg.Metrics)
	}
	// Untouched sections keep defaults
	if cfg.Performance.ChannelBufferSize != 10000 {
		t.Errorf("channel buffer = %d, want default", cfg.Performance.ChannelBufferSize)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig("/nonexistent/fact-agent.yaml")
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if !os.IsNotExist(errors.Unwrap(err)) {
		t.Errorf("expected wrapped not-exist error, got %v", err)
	}
}

func TestSplitPathList(t *testing.T) {
	tests := []struct {
		input    string
		expected []string
	}{
		{"", nil},
		{"/etc/", []string{"/etc/"}},
		{"/etc/,/var/", []string{"/etc/", "/var/"}},
		{"/etc/\n/var/", []string{"/etc/", "/var/"}},
		{"/etc/, /var/\n/tmp/watch/", []string{"/etc/", "/var/", "/tmp/watch/"}},
		{" , \n ,", nil},
	}

	for _, tt := range tests {
		got := SplitPathList(tt.input)
		if !reflect.DeepEqual(got, tt.expected) {
			t.Errorf("SplitPathList(%q) = %v, want %v", tt.input, got, tt.expected)
		}
	}
}

func TestUnionPaths(t *testing.T) {
	got := UnionPaths(
		[]string{"/etc/", "/var/"},
		[]string{"/var/", "/tmp/"},
		[]string{"", "/etc/"},
	)
	want := []string{"/etc/", "/var/", "/tmp/"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("UnionPaths = %v, want %v", got, want)
	}
}

func TestApplyEnvironment(t *testing.T) {
	t.Setenv("FACT_PATHS", "/tmp/watch/,/etc/")
	t.Setenv("FACT_LOGLEVEL", "debug")

	cfg := DefaultConfig()
	cfg.Paths = []string{"/etc/", "/srv/"}
	cfg.ApplyEnvironment()

	want := []string{"/etc/", "/srv/", "/tmp/watch/"}
	if !reflect.DeepEqual(cfg.Paths, want) {
		t.Errorf("paths after env = %v, want %v", cfg.Paths, want)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("log level after env = %q, want debug", cfg.Logging.Level)
	}
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); !errors.Is(err, ErrNoSink) {
		t.Errorf("Validate with no sink = %v, want ErrNoSink", err)
	}

	cfg.Delivery.URL = "dns:///sensor:9999"
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate with delivery url = %v", err)
	}

	cfg.Delivery.URL = ""
	cfg.Output.Type = "stdout"
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate with stdout output = %v", err)
	}

	cfg.Performance.DropPolicy = "sideways"
	if err := cfg.Validate(); err == nil {
		t.Error("Validate accepted unknown drop policy")
	}
}

func TestPathListFlag(t *testing.T) {
	var paths PathList
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.Var(&paths, "paths", "")
	fs.Var(&paths, "p", "")

	args := []string{"--paths", "/etc/", "-p", "/var/lib/app/", "--paths", "/a/,/b/"}
	if err := fs.Parse(args); err != nil {
		t.Fatal(err)
	}

	want := PathList{"/etc/", "/var/lib/app/", "/a/", "/b/"}
	if !reflect.DeepEqual(paths, want) {
		t.Errorf("parsed paths = %v, want %v", paths, want)
	}
}
