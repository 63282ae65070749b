package config

import (
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/velmie/msgrelay"
	"github.com/velmie/msgrelay/ipc"
)

// Setting keys.
const (
	KeyConnectionString = "ConnectionString"
	KeyMonitorSleepTime = "MonitorSleepTime"
	KeyForwardSleepTime = "ForwardSleepTime"
	KeyNumThreads       = "NumThreads"
	KeyEndpoint         = "Endpoint"
	KeyDriver           = "Driver"
	KeyTable            = "Table"
	KeyMaxQueueLength   = "MaxQueueLength"
	KeyLogLevel         = "LogLevel"
)

// Supported store drivers.
const (
	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite"
)

const (
	defaultSleepTime  = 100 * time.Millisecond
	defaultNumThreads = 3
)

// Settings is the resolved daemon configuration.
type Settings struct {
	ConnectionString string
	MonitorInterval  time.Duration
	ForwardInterval  time.Duration
	PoolSize         int
	Endpoint         string
	Driver           string
	// Table overrides the store's default table when set.
	Table          string
	MaxQueueLength int
	LogLevel       slog.Level
}

// Defaults returns the settings used for every key a source does not provide.
func Defaults() Settings {
	return Settings{
		MonitorInterval: defaultSleepTime,
		ForwardInterval: defaultSleepTime,
		PoolSize:        defaultNumThreads,
		Endpoint:        ipc.DefaultPath(),
		Driver:          DriverMySQL,
		LogLevel:        slog.LevelInfo,
	}
}

// Load resolves settings from src. It never fails: unreadable or invalid values are
// logged with msgrelay.CodeConfigRead and the default is kept.
func Load(src Source, logger msgrelay.Logger) Settings {
	if logger == nil {
		logger = msgrelay.NopLogger{}
	}
	l := loader{src: src, logger: logger, warned: make(map[string]struct{})}
	s := Defaults()

	l.text(KeyConnectionString, &s.ConnectionString)
	l.millis(KeyMonitorSleepTime, &s.MonitorInterval)
	l.millis(KeyForwardSleepTime, &s.ForwardInterval)
	l.positive(KeyNumThreads, &s.PoolSize)
	l.text(KeyEndpoint, &s.Endpoint)
	l.text(KeyDriver, &s.Driver)
	l.text(KeyTable, &s.Table)
	l.nonNegative(KeyMaxQueueLength, &s.MaxQueueLength)
	l.level(KeyLogLevel, &s.LogLevel)

	return s
}

// Validate reports whether the settings can start a server.
func (s Settings) Validate() error {
	if s.ConnectionString == "" {
		return msgrelay.ErrConnectionStringRequired
	}
	if s.Endpoint == "" {
		return ErrEndpointRequired
	}
	switch s.Driver {
	case DriverMySQL, DriverSQLite:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownDriver, s.Driver)
	}

	return nil
}

// Options converts the settings into server options.
func (s Settings) Options() []msgrelay.Option {
	return []msgrelay.Option{
		msgrelay.WithConnectionString(s.ConnectionString),
		msgrelay.WithPoolSize(s.PoolSize),
		msgrelay.WithMonitorInterval(s.MonitorInterval),
		msgrelay.WithForwardInterval(s.ForwardInterval),
		msgrelay.WithMaxQueueLength(s.MaxQueueLength),
	}
}

type loader struct {
	src    Source
	logger msgrelay.Logger
	warned map[string]struct{}
}

func (l loader) lookup(key string) (string, bool) {
	value, ok, err := l.src.Lookup(key)
	if err != nil {
		// Report each distinct source error once.
		if _, seen := l.warned[err.Error()]; !seen {
			l.warned[err.Error()] = struct{}{}
			l.logger.Warn("config source read failed, keeping defaults", "code", msgrelay.CodeConfigRead, "key", key, "err", err)
		}
	}

	return value, ok
}

func (l loader) invalid(key, value, reason string) {
	l.logger.Warn("invalid config value, keeping default",
		"code", msgrelay.CodeConfigRead,
		"key", key,
		"value", value,
		"reason", reason,
	)
}

func (l loader) text(key string, dst *string) {
	if value, ok := l.lookup(key); ok {
		*dst = value
	}
}

func (l loader) integer(key string) (int, string, bool) {
	value, ok := l.lookup(key)
	if !ok {
		return 0, "", false
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		l.invalid(key, value, "not an integer")
		return 0, value, false
	}

	return n, value, true
}

func (l loader) millis(key string, dst *time.Duration) {
	n, raw, ok := l.integer(key)
	if !ok {
		return
	}
	if n <= 0 {
		l.invalid(key, raw, "must be positive")
		return
	}
	*dst = time.Duration(n) * time.Millisecond
}

func (l loader) positive(key string, dst *int) {
	n, raw, ok := l.integer(key)
	if !ok {
		return
	}
	if n <= 0 {
		l.invalid(key, raw, "must be positive")
		return
	}
	*dst = n
}

func (l loader) nonNegative(key string, dst *int) {
	n, raw, ok := l.integer(key)
	if !ok {
		return
	}
	if n < 0 {
		l.invalid(key, raw, "must not be negative")
		return
	}
	*dst = n
}

func (l loader) level(key string, dst *slog.Level) {
	value, ok := l.lookup(key)
	if !ok {
		return
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(value)); err != nil {
		l.invalid(key, value, "unknown log level")
		return
	}
	*dst = level
}
