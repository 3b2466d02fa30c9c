package output

import "github.com/espegro/fact-agent/internal/types"

// Logger is the interface for local event output, used for debugging
// and for running the agent without a gRPC consumer.
type Logger interface {
	// LogEvent logs a single decoded file-activity event
	LogEvent(event *types.Event) error

	// Close closes the logger and flushes any buffered data
	Close() error
}
