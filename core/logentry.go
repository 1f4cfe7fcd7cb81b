package core

import "time"

// LogLevel is the severity of an execution log entry.
type LogLevel string

// Log levels in increasing severity.
const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// LogEntry is one record in a run's append-only execution log. After being
// appended it should be treated as immutable. Entries are ordered by actual
// completion time, not by step declaration order, so parallel strategies
// produce interleaved logs.
type LogEntry struct {
	// Timestamp is the UTC time the entry was recorded.
	Timestamp time.Time `json:"timestamp"`
	// Level is the entry severity.
	Level LogLevel `json:"level"`
	// Message is the human-readable description.
	Message string `json:"message"`
	// StepID references the step the entry concerns, when any.
	StepID string `json:"step_id,omitempty"`
	// Metadata carries structured detail such as attempt counts and
	// execution times. Credential material is never recorded here.
	Metadata map[string]any `json:"metadata,omitempty"`
}

// NewLogEntry creates a log entry stamped with the current UTC time.
func NewLogEntry(level LogLevel, message, stepID string, metadata map[string]any) LogEntry {
	return LogEntry{
		Timestamp: time.Now().UTC(),
		Level:     level,
		Message:   message,
		StepID:    stepID,
		Metadata:  metadata,
	}
}
