package msgrelay

// Logger provides structured logging hooks.
// *slog.Logger satisfies it directly.
type Logger interface {
	// Debug logs a debug message.
	Debug(msg string, args ...any)
	// Info logs an informational message.
	Info(msg string, args ...any)
	// Warn logs a warning message.
	Warn(msg string, args ...any)
	// Error logs an error message.
	Error(msg string, args ...any)
}

// NopLogger is a no-op logger.
type NopLogger struct{}

// Debug implements Logger.
func (NopLogger) Debug(string, ...any) {}

// Info implements Logger.
func (NopLogger) Info(string, ...any) {}

// Warn implements Logger.
func (NopLogger) Warn(string, ...any) {}

// Error implements Logger.
func (NopLogger) Error(string, ...any) {}

// EventCode identifies a class of log event. Every warning and error the
// server emits carries one under the "code" key.
type EventCode int

const (
	// CodeConfigRead marks a configuration read failure; defaults are kept.
	CodeConfigRead EventCode = 41
	// CodeStopping marks a loop that did not stop within its join window.
	CodeStopping EventCode = 42
	// CodeQueueLength reports the queue length at shutdown.
	CodeQueueLength EventCode = 43
	// CodeStoreConnect marks a store connection failure.
	CodeStoreConnect EventCode = 81
	// CodeStoreExecute marks a rejected store write.
	CodeStoreExecute EventCode = 82
	// CodeStarting marks a failure to start the server.
	CodeStarting EventCode = 83
	// CodeThreading marks a listener or worker failure.
	CodeThreading EventCode = 84
)

// String returns the event name.
func (c EventCode) String() string {
	switch c {
	case CodeConfigRead:
		return "config_read"
	case CodeStopping:
		return "stopping"
	case CodeQueueLength:
		return "queue_length"
	case CodeStoreConnect:
		return "store_connect"
	case CodeStoreExecute:
		return "store_execute"
	case CodeStarting:
		return "starting"
	case CodeThreading:
		return "threading"
	default:
		return "unknown"
	}
}
