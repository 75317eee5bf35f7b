package webmod

// Logger defines the interface for framework logging.
// It uses structured logging with key-value pairs:
//
//	logger.Info("message", "key1", "value1", "key2", "value2")
//
// *slog.Logger satisfies it directly.
type Logger interface {
	// Info logs an informational message with optional key-value pairs.
	// Used for boot progress, provider resolution and shutdown.
	Info(msg string, args ...any)

	// Error logs an error message with optional key-value pairs.
	// Used for recovered panics, failed compression and stream producer errors.
	Error(msg string, args ...any)

	// Warn logs a warning message with optional key-value pairs.
	Warn(msg string, args ...any)

	// Debug logs a debug message with optional key-value pairs.
	Debug(msg string, args ...any)
}

// NopLogger discards everything.
type NopLogger struct{}

func (NopLogger) Info(string, ...any)  {}
func (NopLogger) Error(string, ...any) {}
func (NopLogger) Warn(string, ...any)  {}
func (NopLogger) Debug(string, ...any) {}
