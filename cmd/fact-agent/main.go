package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/espegro/fact-agent/internal/cgroup"
	"github.com/espegro/fact-agent/internal/config"
	"github.com/espegro/fact-agent/internal/delivery"
	"github.com/espegro/fact-agent/internal/ebpf"
	"github.com/espegro/fact-agent/internal/enrichment"
	"github.com/espegro/fact-agent/internal/health"
	"github.com/espegro/fact-agent/internal/hostscan"
	"github.com/espegro/fact-agent/internal/logger"
	"github.com/espegro/fact-agent/internal/metrics"
	"github.com/espegro/fact-agent/internal/mounts"
	"github.com/espegro/fact-agent/internal/output"
	"github.com/espegro/fact-agent/internal/pump"
	"github.com/espegro/fact-agent/internal/types"
)

// Exit codes. Pre-flight and startup failures get distinct codes so
// orchestration can tell a missing kernel feature from a bad config.
const (
	exitOK            = 0
	exitMissingConfig = 6
	exitPreflight     = 7
	exitLoadFailure   = 8
	exitAttachFailure = 9
	exitRuntime       = 10
)

// shutdownGrace bounds how long workers may drain after a signal
const shutdownGrace = 5 * time.Second

var (
	configPath    = flag.String("config", "/etc/fact-agent/fact-agent.yaml", "Path to configuration file")
	skipPreFlight = flag.Bool("skip-pre-flight", false, "Skip startup kernel feature checks")
	debug         = flag.Bool("debug", false, "Enable debug mode (human-readable stdout output when no output type is configured)")
)

func main() {
	var cliPaths config.PathList
	flag.Var(&cliPaths, "paths", "Monitored path prefix (repeatable)")
	flag.Var(&cliPaths, "p", "Monitored path prefix (repeatable, shorthand)")
	flag.Parse()

	os.Exit(run(cliPaths))
}

// run carries the whole agent lifecycle so deferred cleanup executes
// before the process exits with a code.
func run(cliPaths config.PathList) int {
	cfg, err := loadConfiguration(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		return exitMissingConfig
	}

	cfg.ApplyEnvironment()
	cfg.Paths = config.UnionPaths(cfg.Paths, cliPaths)
	if *skipPreFlight {
		cfg.SkipPreFlight = true
	}
	if *debug && cfg.Output.Type == "" {
		cfg.Output.Type = "simple"
	}

	if err := logger.Init(cfg.Logging.Level, cfg.Logging.Output); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logging: %v\n", err)
		return exitMissingConfig
	}
	defer logger.GetLogger().Sync()

	if err := cfg.Validate(); err != nil {
		logger.Error("Invalid configuration: %v", err)
		return exitMissingConfig
	}

	logger.Info("Fact agent starting (paths: %v)", cfg.Paths)

	// Pre-flight checks
	if cfg.SkipPreFlight {
		logger.Warn("Skipping pre-flight kernel feature checks")
	} else {
		if err := ebpf.Preflight(); err != nil {
			logger.Error("Pre-flight check failed: %v", err)
			return exitPreflight
		}
		logger.Info("Pre-flight checks passed")
	}

	// Per-hook feature probes, published before the hooks attach
	features, err := ebpf.ProbeFeatures()
	if err != nil {
		logger.Error("Feature probing failed: %v", err)
		return exitLoadFailure
	}

	logger.Info("Loading eBPF programs...")
	monitor, err := ebpf.NewMonitor()
	if err != nil {
		logger.Error("Failed to load eBPF programs: %v", err)
		return exitLoadFailure
	}
	defer monitor.Close()

	if err := monitor.SetDPathSupport(features); err != nil {
		logger.Error("Failed to publish feature flags: %v", err)
		return exitLoadFailure
	}
	if err := monitor.ApplyPathConfig(cfg.Paths); err != nil {
		logger.Error("Failed to apply path configuration: %v", err)
		return exitLoadFailure
	}

	// Seed monitored-inode state from files already on disk
	scanner := hostscan.New(cfg.Paths, monitor.InodeMap())
	if len(cfg.Paths) > 0 {
		logger.Info("Scanning monitored prefixes...")
		if err := scanner.Scan(); err != nil {
			logger.Warn("Host scan incomplete: %v", err)
		}
		logger.Info("Host scan seeded %d inodes", scanner.Len())
	}

	// Rescan the monitored prefixes on any mount-table change
	mountWatcher := mounts.NewMountWatcher(5 * time.Second)
	mountWatcher.OnChange(func(map[uint32]mounts.MountInfo) {
		go func() {
			if err := scanner.Scan(); err != nil {
				logger.Warn("Rescan after mount change failed: %v", err)
			}
		}()
	})
	if err := mountWatcher.Start(); err != nil {
		logger.Warn("Mount watcher unavailable: %v", err)
	} else {
		defer mountWatcher.Stop()
	}

	logger.Info("Attaching LSM hooks...")
	if err := monitor.AttachHooks(); err != nil {
		logger.Error("Failed to attach hooks: %v", err)
		return exitAttachFailure
	}

	reader, err := monitor.RingbufReader()
	if err != nil {
		logger.Error("Failed to open ring buffer: %v", err)
		return exitLoadFailure
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan struct{})
	defer close(stop)
	scanner.Start(stop, time.Duration(cfg.Performance.HostScanIntervalSec)*time.Second)

	// Downstream wiring
	bufferSize := cfg.Performance.ChannelBufferSize
	if bufferSize <= 0 {
		bufferSize = 1000
	}
	eventChan := make(chan *types.Event, bufferSize)

	var sink *delivery.Sink
	if cfg.Delivery.URL != "" {
		sink, err = delivery.NewSink(cfg.Delivery, cfg.Performance)
		if err != nil {
			logger.Error("Failed to create delivery sink: %v", err)
			return exitMissingConfig
		}
	}

	localLogger, err := newLocalLogger(cfg)
	if err != nil {
		logger.Error("Failed to create output logger: %v", err)
		return exitMissingConfig
	}
	if localLogger != nil {
		defer localLogger.Close()
	}

	userCache := enrichment.NewUserCache(
		time.Duration(cfg.Performance.Cache.TTLSeconds)*time.Second,
		cfg.Performance.Cache.Size,
	)
	containerCache := cgroup.NewCache(cfg.Performance.Cache.Size)

	var wg sync.WaitGroup

	// Event processor: enrichment, monitored-inode table upkeep, fan-out
	wg.Add(1)
	go func() {
		defer wg.Done()
		for event := range eventChan {
			event.Process.Username = userCache.GetUsername(event.Process.UID)
			event.Process.ContainerID = containerCache.Lookup(event.Process.MemoryCgroup)

			switch event.Type {
			case types.ActivityCreate:
				if event.Inode.Present() {
					path := event.HostFile
					if path == "" {
						path = event.Filename
					}
					scanner.Record(event.Inode, path)
				}
			case types.ActivityUnlink:
				scanner.Forget(event.Inode)
			}

			if sink != nil {
				sink.Enqueue(event)
			}
			if localLogger != nil {
				if err := localLogger.LogEvent(event); err != nil {
					logger.Error("Error logging event: %v", err)
				}
			}
		}
	}()

	// Delivery worker
	if sink != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sink.Run(ctx)
		}()
	}

	// Kernel-counter snapshotter and metrics endpoint
	var metricsServer *metrics.Server
	if cfg.Metrics.Enabled {
		metricsServer = metrics.NewServer(cfg.Metrics.Port)
		if err := metricsServer.Start(); err != nil {
			logger.Warn("Metrics server failed to start: %v", err)
		} else {
			defer metricsServer.Stop()
		}
	}
	snapshotInterval := time.Duration(cfg.Metrics.SnapshotIntervalSec) * time.Second
	if snapshotInterval <= 0 {
		snapshotInterval = 10 * time.Second
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		snapshotLoop(ctx, monitor, snapshotInterval)
	}()

	var healthServer *health.Server
	if cfg.Health.Enabled {
		healthServer = health.NewServer(cfg.Health.Port)
		if err := healthServer.Start(); err != nil {
			logger.Warn("Health server failed to start: %v", err)
		} else {
			healthServer.Ready()
			defer healthServer.Stop()
		}
	}

	if cfg.Profiler.Enabled {
		go func() {
			addr := fmt.Sprintf(":%d", cfg.Profiler.Port)
			logger.Info("Profiler endpoint listening on %s", addr)
			if err := http.ListenAndServe(addr, nil); err != nil {
				logger.Warn("Profiler server error: %v", err)
			}
		}()
	}

	// Pump: the single ring buffer consumer
	eventPump, err := pump.New(reader, scanner, eventChan)
	if err != nil {
		logger.Error("Failed to create event pump: %v", err)
		return exitLoadFailure
	}
	pumpErr := make(chan error, 1)
	go func() {
		pumpErr <- eventPump.Run(ctx)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logger.Info("Fact agent is running")

	exitCode := exitOK
	pumpStopped := false
	select {
	case sig := <-sigChan:
		logger.Info("Received %v, shutting down...", sig)
	case err := <-pumpErr:
		// The pump only stops on its own when the ring buffer fails
		// out from under it.
		pumpStopped = true
		if err != nil {
			logger.Error("Event pump failed: %v", err)
		} else {
			logger.Error("Event pump stopped unexpectedly")
		}
		exitCode = exitRuntime
	}

	// Stop producing: cancel workers, let the pump drain out, then
	// close the event channel so the processor finishes.
	cancel()
	if !pumpStopped {
		select {
		case <-pumpErr:
		case <-time.After(shutdownGrace):
			logger.Warn("Pump did not stop within grace period")
		}
	}
	close(eventChan)

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(shutdownGrace):
		logger.Warn("Workers did not drain within grace period")
	}

	// Detach hooks and release maps (idempotent; also runs deferred)
	if err := monitor.Close(); err != nil {
		logger.Error("Error detaching: %v", err)
	}

	logger.Info("Fact agent stopped")
	return exitCode
}

// snapshotLoop periodically mirrors the kernel per-hook counters into
// the Prometheus registry.
func snapshotLoop(ctx context.Context, monitor *ebpf.Monitor, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			snapshot, err := monitor.ReadHookMetrics()
			if err != nil {
				logger.Debug("Failed to read kernel metrics: %v", err)
				continue
			}
			for hook, m := range snapshot {
				metrics.PublishHookMetrics(hook, m)
			}
		case <-ctx.Done():
			return
		}
	}
}

func newLocalLogger(cfg *config.Config) (output.Logger, error) {
	switch cfg.Output.Type {
	case "":
		return nil, nil
	case "stdout":
		return output.NewStdoutLogger(), nil
	case "simple":
		return output.NewSimpleLogger(), nil
	case "file":
		return output.NewFileLogger(output.FileLoggerConfig{
			Path:       cfg.Output.File.Path,
			MaxSizeMB:  cfg.Output.File.MaxSizeMB,
			MaxBackups: cfg.Output.File.MaxBackups,
			MaxAgeDays: cfg.Output.File.MaxAgeDays,
			Compress:   cfg.Output.File.Compress,
		})
	default:
		return nil, fmt.Errorf("unknown output type %q", cfg.Output.Type)
	}
}

func loadConfiguration(path string) (*config.Config, error) {
	cfg, err := config.LoadConfig(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return config.DefaultConfig(), nil
		}
		return nil, err
	}

	return cfg, nil
}
