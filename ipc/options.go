package ipc

import (
	"os"
	"path/filepath"
	"time"
)

const (
	// DefaultSocketName is the well-known endpoint file name shared by producers and the server.
	DefaultSocketName = "msgrelay.sock"
	// DefaultSubmitTimeout bounds how long a producer waits to connect.
	DefaultSubmitTimeout = 100 * time.Millisecond
	// DefaultMaxMessageSize is the receive buffer size for one message.
	DefaultMaxMessageSize = 64 * 1024
	// DefaultBacklog is the accept backlog when none is configured.
	DefaultBacklog = 16

	defaultReadTimeout = 5 * time.Second
	defaultMode        = 0o666
)

// DefaultPath returns the well-known endpoint path: $XDG_RUNTIME_DIR/msgrelay.sock when
// the runtime dir is set, the system temp dir otherwise.
func DefaultPath() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, DefaultSocketName)
	}

	return filepath.Join(os.TempDir(), DefaultSocketName)
}

// Config defines endpoint behavior.
type Config struct {
	MaxMessageSize int
	ReadTimeout    time.Duration
	// Backlog bounds the connections the kernel accepts before a slot picks them up.
	// Linux lets one connection more than Backlog wait; beyond that SubmitTo fails fast.
	Backlog int
	// Mode is applied to the socket file. Producers are not authenticated, so the default is world-writable.
	Mode os.FileMode
}

func (c Config) withDefaults() Config {
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = DefaultMaxMessageSize
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = defaultReadTimeout
	}
	if c.Backlog <= 0 {
		c.Backlog = DefaultBacklog
	}
	if c.Mode == 0 {
		c.Mode = defaultMode
	}

	return c
}

// Option configures the endpoint.
type Option func(*Config)

// WithMaxMessageSize sets the largest accepted message in bytes.
func WithMaxMessageSize(size int) Option {
	return func(c *Config) {
		c.MaxMessageSize = size
	}
}

// WithReadTimeout bounds how long a slot waits for the payload after a producer connects.
func WithReadTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		c.ReadTimeout = timeout
	}
}

// WithBacklog bounds the accept backlog. The daemon sets it to the pool size so producers
// are refused while every slot is busy.
func WithBacklog(backlog int) Option {
	return func(c *Config) {
		c.Backlog = backlog
	}
}

// WithMode sets the socket file permissions.
func WithMode(mode os.FileMode) Option {
	return func(c *Config) {
		c.Mode = mode
	}
}
