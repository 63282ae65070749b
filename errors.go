package msgrelay

import "errors"

var (
	// ErrConnectionStringRequired is returned by Start when no store connection string is configured.
	ErrConnectionStringRequired = errors.New("msgrelay connection string is required")
	// ErrAlreadyStarted is returned when Start is called on a running server.
	ErrAlreadyStarted = errors.New("msgrelay server already started")
	// ErrNotStarted is returned when Stop is called before Start.
	ErrNotStarted = errors.New("msgrelay server not started")
	// ErrStoreUnavailable marks store errors that should keep the message queued for the next tick.
	ErrStoreUnavailable = errors.New("msgrelay store unavailable")
	// ErrShutdownTimeout indicates a loop did not exit within its bounded join window.
	ErrShutdownTimeout = errors.New("msgrelay shutdown timed out")
	// ErrWorkerPanic indicates a relay goroutine panic.
	ErrWorkerPanic = errors.New("msgrelay worker panic")
	// ErrQueueFull is reported when a bounded queue rejects a message.
	ErrQueueFull = errors.New("msgrelay queue is full")
)
