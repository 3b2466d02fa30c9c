package output

import (
	"fmt"

	"github.com/espegro/fact-agent/internal/types"
)

// SimpleLogger writes events in human-readable one-line format,
// designed for interactive debugging of the monitored-path setup
type SimpleLogger struct {
	headerPrinted bool
}

// NewSimpleLogger creates a new simple logger
func NewSimpleLogger() *SimpleLogger {
	return &SimpleLogger{
		headerPrinted: false,
	}
}

// printHeader prints the column headers
func (l *SimpleLogger) printHeader() {
	if !l.headerPrinted {
		fmt.Println("──────────────────────────────────────────────────────────────────────────────")
		fmt.Printf("%-8s %-7s %-16s %-7s %-12s %s\n",
			"TIME", "OP", "USER", "UID", "PROCESS", "PATH [DETAIL]")
		fmt.Println("──────────────────────────────────────────────────────────────────────────────")
		l.headerPrinted = true
	}
}

// LogEvent writes a single event as a human-readable one-liner
func (l *SimpleLogger) LogEvent(event *types.Event) error {
	l.printHeader()

	timestamp := event.Timestamp.Format("15:04:05")

	detail := ""
	switch {
	case event.Chmod != nil:
		detail = fmt.Sprintf(" [%04o -> %04o]", event.Chmod.OldMode, event.Chmod.NewMode)
	case event.Chown != nil:
		detail = fmt.Sprintf(" [%d:%d -> %d:%d]",
			event.Chown.OldUID, event.Chown.OldGID,
			event.Chown.NewUID, event.Chown.NewGID)
	case event.Process.ContainerID != "":
		detail = fmt.Sprintf(" [container %s]", event.Process.ContainerID)
	}

	user := event.Process.Username
	if user == "" {
		user = fmt.Sprintf("uid:%d", event.Process.UID)
	}

	fmt.Printf("%s %-7s %-16s (%-5d) %-12s %s%s\n",
		timestamp,
		event.Type.String(),
		truncateString(user, 16),
		event.Process.UID,
		truncateString(event.Process.Comm, 12),
		sanitizeString(event.Filename),
		detail,
	)

	return nil
}

// Close closes the logger (noop for simple output)
func (l *SimpleLogger) Close() error {
	return nil
}

// truncateString truncates a string to maxLen, adding ... if truncated
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
