package msgrelay

import "context"

// Store opens connections to the destination for queued messages.
type Store interface {
	// Open connects to the store. An error abandons the current tick without touching the queue.
	Open(ctx context.Context) (Session, error)
}

// Session is one open store connection used for a forwarder tick.
type Session interface {
	// Insert persists a single message. Parameterized writes are required.
	Insert(ctx context.Context, message string) error
	// Close releases the connection.
	Close() error
}

// Channel is the local message-framed endpoint producers connect to.
type Channel interface {
	// Listen binds one pool instance to the endpoint.
	Listen(ctx context.Context) (Listener, error)
	// Close stops the endpoint and unblocks every parked Receive.
	Close() error
}

// Listener is a single pool instance serving one connection per lifetime.
type Listener interface {
	// Receive blocks until a producer connects and returns its single message.
	Receive(ctx context.Context) (string, error)
	// Close releases the instance.
	Close() error
}
