package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrNoSink is returned by Validate when the agent has nowhere to send
// events; main translates it into the missing-configuration exit code.
var ErrNoSink = errors.New("no delivery URL and no local output configured")

// Config represents the application configuration
type Config struct {
	// Paths are the monitored path prefixes. The effective set is the
	// union of this list, the FACT_PATHS environment variable and the
	// repeatable --paths/-p CLI flag.
	Paths []string `yaml:"paths"`

	SkipPreFlight bool `yaml:"skip_pre_flight"`

	Delivery    DeliveryConfig    `yaml:"delivery"`
	Output      OutputConfig      `yaml:"output"`
	Performance PerformanceConfig `yaml:"performance"`
	Logging     LoggingConfig     `yaml:"logging"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Health      HealthConfig      `yaml:"health"`
	Profiler    ProfilerConfig    `yaml:"profiler"`
}

// DeliveryConfig specifies the gRPC consumer endpoint
type DeliveryConfig struct {
	URL       string `yaml:"url"`       // e.g. "dns:///sensor.example.svc:9999"
	CertsDir  string `yaml:"certs_dir"` // directory holding ca.pem, cert.pem, key.pem; empty = plaintext
	QueueSize int    `yaml:"queue_size"`

	BackoffInitialMS int `yaml:"backoff_initial_ms"`
	BackoffMaxMS     int `yaml:"backoff_max_ms"`
}

// OutputConfig specifies optional local event output, used for
// debugging alongside (or instead of) gRPC delivery
type OutputConfig struct {
	Type string           `yaml:"type"` // "", stdout, simple, file
	File FileOutputConfig `yaml:"file"`
}

// FileOutputConfig for file-based output
type FileOutputConfig struct {
	Path       string `yaml:"path"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// PerformanceConfig for performance tuning
type PerformanceConfig struct {
	Cache                CacheConfig `yaml:"cache"`
	ChannelBufferSize    int         `yaml:"channel_buffer_size"`     // pump-to-sink channel buffer
	MaxEventsPerSec      int         `yaml:"max_events_per_sec"`      // Max events/sec (0 = unlimited)
	DropPolicy           string      `yaml:"drop_policy"`             // "oldest" or "newest"
	LogDroppedEvents     bool        `yaml:"log_dropped_events"`      // Log when events are dropped
	DropStatsIntervalSec int         `yaml:"drop_stats_interval_sec"` // Log drop stats every N seconds (0 = disabled)
	HostScanIntervalSec  int         `yaml:"host_scan_interval_sec"`  // Rescan monitored prefixes every N seconds (0 = startup only)
}

// CacheConfig for username and container-ID caching
type CacheConfig struct {
	Size       int `yaml:"size"`
	TTLSeconds int `yaml:"ttl_seconds"`
}

// LoggingConfig for the agent's own logging
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Output string `yaml:"output"` // stdout, stderr, file path
}

// MetricsConfig for the Prometheus endpoint and kernel-counter snapshots
type MetricsConfig struct {
	Enabled             bool `yaml:"enabled"`
	Port                int  `yaml:"port"`
	SnapshotIntervalSec int  `yaml:"snapshot_interval_sec"`
}

// HealthConfig for the readiness endpoint
type HealthConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// ProfilerConfig gates the pprof endpoint
type ProfilerConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		Paths: []string{},
		Delivery: DeliveryConfig{
			QueueSize:        4096,
			BackoffInitialMS: 1000,
			BackoffMaxMS:     30000,
		},
		Output: OutputConfig{
			Type: "",
			File: FileOutputConfig{
				Path:       "/var/log/fact-agent/events.json",
				MaxSizeMB:  100,
				MaxBackups: 10,
				MaxAgeDays: 30,
				Compress:   true,
			},
		},
		Performance: PerformanceConfig{
			ChannelBufferSize:    10000,
			MaxEventsPerSec:      0, // Unlimited by default
			DropPolicy:           "newest",
			LogDroppedEvents:     true,
			DropStatsIntervalSec: 30,
			HostScanIntervalSec:  0,
			Cache: CacheConfig{
				Size:       10000,
				TTLSeconds: 300, // 5 minutes
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: "stdout",
		},
		Metrics: MetricsConfig{
			Enabled:             false,
			Port:                9090,
			SnapshotIntervalSec: 10,
		},
		Health: HealthConfig{
			Enabled: false,
			Port:    9000,
		},
		Profiler: ProfilerConfig{
			Enabled: false,
			Port:    6060,
		},
	}
}

// LoadConfig loads configuration from a YAML file
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	return cfg, nil
}

// ApplyEnvironment folds FACT_* environment variables into the
// configuration: FACT_PATHS is unioned with the existing prefix list,
// FACT_LOGLEVEL overrides the log level.
func (c *Config) ApplyEnvironment() {
	if v := os.Getenv("FACT_PATHS"); v != "" {
		c.Paths = UnionPaths(c.Paths, SplitPathList(v))
	}
	if v := os.Getenv("FACT_LOGLEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// Validate checks that the configuration names at least one event sink
func (c *Config) Validate() error {
	if c.Delivery.URL == "" && c.Output.Type == "" {
		return ErrNoSink
	}
	switch c.Performance.DropPolicy {
	case "", "oldest", "newest":
	default:
		return fmt.Errorf("unknown drop_policy %q", c.Performance.DropPolicy)
	}
	return nil
}

// SplitPathList splits a FACT_PATHS-style value on newlines and commas,
// trimming whitespace and dropping empty entries.
func SplitPathList(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		for _, p := range strings.Split(line, ",") {
			p = strings.TrimSpace(p)
			if p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

// UnionPaths merges prefix lists preserving first-seen order
func UnionPaths(lists ...[]string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, list := range lists {
		for _, p := range list {
			if p == "" || seen[p] {
				continue
			}
			seen[p] = true
			out = append(out, p)
		}
	}
	return out
}

// PathList is a repeatable CLI flag value for --paths/-p
type PathList []string

func (p *PathList) String() string {
	return strings.Join(*p, ",")
}

// Set appends one flag occurrence; a single occurrence may itself carry
// a comma-separated list.
func (p *PathList) Set(value string) error {
	*p = append(*p, SplitPathList(value)...)
	return nil
}
