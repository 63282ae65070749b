package msgrelay

import "time"

const (
	defaultPoolSize        = 3
	defaultMonitorInterval = 100 * time.Millisecond
	defaultForwardInterval = 100 * time.Millisecond
	defaultSlotJoinTimeout = time.Second
	defaultInsertRetries   = 3
)

// Config defines how the Server listens, supervises and forwards.
type Config struct {
	// ConnectionString identifies the store. Start refuses to run without it.
	ConnectionString string
	PoolSize         int
	MonitorInterval  time.Duration
	ForwardInterval  time.Duration
	// MaxQueueLength bounds the queue; zero keeps it unbounded.
	MaxQueueLength  int
	SlotJoinTimeout time.Duration
	// MaxInsertRetries is how many ticks a head message classified FailureRetry stays queued
	// before it is dropped as poison. Connect failures on Open are never counted.
	MaxInsertRetries  int
	Logger            Logger
	Metrics           Metrics
	FailureClassifier FailureClassifier
}

func (c Config) withDefaults() Config {
	if c.PoolSize <= 0 {
		c.PoolSize = defaultPoolSize
	}
	if c.MonitorInterval <= 0 {
		c.MonitorInterval = defaultMonitorInterval
	}
	if c.ForwardInterval <= 0 {
		c.ForwardInterval = defaultForwardInterval
	}
	if c.MaxQueueLength < 0 {
		c.MaxQueueLength = 0
	}
	if c.SlotJoinTimeout <= 0 {
		c.SlotJoinTimeout = defaultSlotJoinTimeout
	}
	if c.MaxInsertRetries <= 0 {
		c.MaxInsertRetries = defaultInsertRetries
	}
	if c.Logger == nil {
		c.Logger = NopLogger{}
	}
	if c.Metrics == nil {
		c.Metrics = NopMetrics{}
	}
	if c.FailureClassifier == nil {
		c.FailureClassifier = defaultFailureClassifier
	}

	return c
}

// Option configures Server behavior.
type Option func(*Config)

// WithConnectionString sets the store connection string checked by Start.
func WithConnectionString(dsn string) Option {
	return func(c *Config) {
		c.ConnectionString = dsn
	}
}

// WithPoolSize sets the number of listener slots.
func WithPoolSize(size int) Option {
	return func(c *Config) {
		c.PoolSize = size
	}
}

// WithMonitorInterval sets the supervisor tick interval.
func WithMonitorInterval(interval time.Duration) Option {
	return func(c *Config) {
		c.MonitorInterval = interval
	}
}

// WithForwardInterval sets the forwarder tick interval.
func WithForwardInterval(interval time.Duration) Option {
	return func(c *Config) {
		c.ForwardInterval = interval
	}
}

// WithMaxQueueLength bounds the queue. Messages arriving at a full queue are dropped and logged.
// Zero keeps the queue unbounded, which is the default.
func WithMaxQueueLength(length int) Option {
	return func(c *Config) {
		c.MaxQueueLength = length
	}
}

// WithSlotJoinTimeout sets how long Stop waits for listener slots after closing the channel.
func WithSlotJoinTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		c.SlotJoinTimeout = timeout
	}
}

// WithMaxInsertRetries sets how many ticks a retryable insert failure may hold the head message.
func WithMaxInsertRetries(retries int) Option {
	return func(c *Config) {
		c.MaxInsertRetries = retries
	}
}

// WithLogger sets the server logger.
func WithLogger(logger Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// WithMetrics sets the server metrics recorder.
func WithMetrics(metrics Metrics) Option {
	return func(c *Config) {
		c.Metrics = metrics
	}
}

// WithFailureClassifier sets the classifier for drop/retry decisions on insert errors.
func WithFailureClassifier(classifier FailureClassifier) Option {
	return func(c *Config) {
		c.FailureClassifier = classifier
	}
}
