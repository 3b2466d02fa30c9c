package output

import (
	"encoding/json"
	"os"

	"github.com/espegro/fact-agent/internal/types"
)

// StdoutLogger writes events to stdout in JSON format
type StdoutLogger struct {
	encoder *json.Encoder
}

// NewStdoutLogger creates a new stdout logger
func NewStdoutLogger() *StdoutLogger {
	return &StdoutLogger{
		encoder: json.NewEncoder(os.Stdout),
	}
}

// LogEvent writes a file event to stdout as JSON
func (l *StdoutLogger) LogEvent(event *types.Event) error {
	return l.encoder.Encode(ecsDocument(event))
}

// Close closes the logger (noop for stdout)
func (l *StdoutLogger) Close() error {
	return nil
}
