package logging

import "github.com/hashicorp/go-hclog"

// HclogAdapter wraps a hashicorp/go-hclog logger to implement the Logger
// interface, for deployments that already standardize on hclog.
type HclogAdapter struct {
	logger hclog.Logger
}

// NewHclogAdapter creates a Logger backed by the given hclog logger. A nil
// logger falls back to hclog.Default().
func NewHclogAdapter(logger hclog.Logger) Logger {
	if logger == nil {
		logger = hclog.Default()
	}
	return &HclogAdapter{logger: logger}
}

// NewNamedHclogLogger creates a Logger backed by a fresh named hclog logger.
func NewNamedHclogLogger(name string) Logger {
	return &HclogAdapter{logger: hclog.New(&hclog.LoggerOptions{Name: name})}
}

// Debug logs a debug message.
func (h *HclogAdapter) Debug(msg string, args ...any) { h.logger.Debug(msg, args...) }

// Info logs an informational message.
func (h *HclogAdapter) Info(msg string, args ...any) { h.logger.Info(msg, args...) }

// Warn logs a warning message.
func (h *HclogAdapter) Warn(msg string, args ...any) { h.logger.Warn(msg, args...) }

// Error logs an error message.
func (h *HclogAdapter) Error(msg string, args ...any) { h.logger.Error(msg, args...) }
