package output

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/espegro/fact-agent/internal/types"
)

// FileLogger writes events to a file with rotation support
type FileLogger struct {
	logger  *lumberjack.Logger
	encoder *json.Encoder
	mu      sync.Mutex
}

// FileLoggerConfig holds configuration for the file logger
type FileLoggerConfig struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// NewFileLogger creates a new file logger with rotation
func NewFileLogger(cfg FileLoggerConfig) (*FileLogger, error) {
	// Ensure directory exists
	dir := filepath.Dir(cfg.Path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating log directory %s: %w", dir, err)
	}

	// Set defaults if not specified
	if cfg.MaxSizeMB <= 0 {
		cfg.MaxSizeMB = 100
	}
	if cfg.MaxBackups <= 0 {
		cfg.MaxBackups = 10
	}
	if cfg.MaxAgeDays <= 0 {
		cfg.MaxAgeDays = 30
	}

	logger := &lumberjack.Logger{
		Filename:   cfg.Path,
		MaxSize:    cfg.MaxSizeMB, // megabytes
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays, // days
		Compress:   cfg.Compress,
		LocalTime:  true,
	}

	return &FileLogger{
		logger:  logger,
		encoder: json.NewEncoder(logger),
	}, nil
}

// LogEvent writes a file-activity event to the log file
func (l *FileLogger) LogEvent(event *types.Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.encoder.Encode(ecsDocument(event))
}

// Close closes the file logger
func (l *FileLogger) Close() error {
	return l.logger.Close()
}
