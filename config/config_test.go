package config

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/velmie/msgrelay"
)

type warning struct {
	msg  string
	args []any
}

type captureLogger struct {
	msgrelay.NopLogger
	mu    sync.Mutex
	warns []warning
}

func (l *captureLogger) Warn(msg string, args ...any) {
	l.mu.Lock()
	l.warns = append(l.warns, warning{msg: msg, args: args})
	l.mu.Unlock()
}

func (l *captureLogger) codes() []any {
	var out []any
	for _, w := range l.warns {
		for i := 0; i+1 < len(w.args); i += 2 {
			if w.args[i] == "code" {
				out = append(out, w.args[i+1])
			}
		}
	}
	return out
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("XDG_RUNTIME_DIR", "/run/user/1000")
	logger := &captureLogger{}

	s := Load(Map{}, logger)

	if s.ConnectionString != "" {
		t.Fatalf("expected empty connection string, got %q", s.ConnectionString)
	}
	if s.MonitorInterval != 100*time.Millisecond || s.ForwardInterval != 100*time.Millisecond {
		t.Fatalf("unexpected intervals: %v %v", s.MonitorInterval, s.ForwardInterval)
	}
	if s.PoolSize != 3 {
		t.Fatalf("expected pool size 3, got %d", s.PoolSize)
	}
	if s.Endpoint != "/run/user/1000/msgrelay.sock" {
		t.Fatalf("unexpected endpoint: %s", s.Endpoint)
	}
	if s.Driver != DriverMySQL || s.LogLevel != slog.LevelInfo {
		t.Fatalf("unexpected driver or level: %s %v", s.Driver, s.LogLevel)
	}
	if len(logger.warns) != 0 {
		t.Fatalf("expected no warnings, got %v", logger.warns)
	}
	if err := s.Validate(); !errors.Is(err, msgrelay.ErrConnectionStringRequired) {
		t.Fatalf("expected ErrConnectionStringRequired, got %v", err)
	}
}

func TestLoadValues(t *testing.T) {
	s := Load(Map{
		KeyConnectionString: "relay:secret@tcp(db:3306)/relay",
		KeyMonitorSleepTime: "250",
		KeyForwardSleepTime: "50",
		KeyNumThreads:       "8",
		KeyEndpoint:         "/tmp/relay.sock",
		KeyDriver:           DriverSQLite,
		KeyTable:            "audit_log",
		KeyMaxQueueLength:   "1000",
		KeyLogLevel:         "debug",
	}, nil)

	want := Settings{
		ConnectionString: "relay:secret@tcp(db:3306)/relay",
		MonitorInterval:  250 * time.Millisecond,
		ForwardInterval:  50 * time.Millisecond,
		PoolSize:         8,
		Endpoint:         "/tmp/relay.sock",
		Driver:           DriverSQLite,
		Table:            "audit_log",
		MaxQueueLength:   1000,
		LogLevel:         slog.LevelDebug,
	}
	if s != want {
		t.Fatalf("unexpected settings:\n got %+v\nwant %+v", s, want)
	}
	if err := s.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if len(s.Options()) != 5 {
		t.Fatalf("expected 5 server options, got %d", len(s.Options()))
	}
}

func TestLoadInvalidValuesKeepDefaults(t *testing.T) {
	logger := &captureLogger{}
	s := Load(Map{
		KeyMonitorSleepTime: "fast",
		KeyForwardSleepTime: "0",
		KeyNumThreads:       "-2",
		KeyMaxQueueLength:   "-1",
		KeyLogLevel:         "chatty",
	}, logger)

	defaults := Defaults()
	if s.MonitorInterval != defaults.MonitorInterval || s.ForwardInterval != defaults.ForwardInterval {
		t.Fatalf("expected default intervals, got %v %v", s.MonitorInterval, s.ForwardInterval)
	}
	if s.PoolSize != defaults.PoolSize || s.MaxQueueLength != 0 || s.LogLevel != slog.LevelInfo {
		t.Fatalf("expected defaults, got %+v", s)
	}
	codes := logger.codes()
	if len(codes) != 5 {
		t.Fatalf("expected 5 warnings, got %d", len(codes))
	}
	for _, code := range codes {
		if code != msgrelay.CodeConfigRead {
			t.Fatalf("expected code %d, got %v", msgrelay.CodeConfigRead, code)
		}
	}
}

func TestFileSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "msgrelay.yaml")
	data := []byte(`ConnectionString: "relay:secret@tcp(127.0.0.1:3306)/relay"
NumThreads: 5
ForwardSleepTime: 20
Driver: mysql
`)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	s := Load(File(path), nil)
	if s.ConnectionString != "relay:secret@tcp(127.0.0.1:3306)/relay" {
		t.Fatalf("unexpected connection string: %q", s.ConnectionString)
	}
	if s.PoolSize != 5 || s.ForwardInterval != 20*time.Millisecond {
		t.Fatalf("unexpected settings: %+v", s)
	}
}

func TestFileSourceErrorsWarnOnce(t *testing.T) {
	logger := &captureLogger{}
	s := Load(File(filepath.Join(t.TempDir(), "missing.yaml")), logger)

	if s.PoolSize != defaultNumThreads {
		t.Fatalf("expected default pool size, got %d", s.PoolSize)
	}
	if len(logger.warns) != 1 {
		t.Fatalf("expected one warning for the unreadable file, got %d", len(logger.warns))
	}
}

func TestFileSourceRejectsNestedValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "msgrelay.yaml")
	if err := os.WriteFile(path, []byte("NumThreads:\n  - 1\n  - 2\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	if _, _, err := File(path).Lookup(KeyNumThreads); err == nil {
		t.Fatalf("expected error for non-scalar value")
	}
}

func TestEnvSource(t *testing.T) {
	t.Setenv("MSGRELAY_CONNECTION_STRING", "from-env")
	t.Setenv("MSGRELAY_NUM_THREADS", "7")

	s := Load(Env("MSGRELAY"), nil)
	if s.ConnectionString != "from-env" || s.PoolSize != 7 {
		t.Fatalf("unexpected settings: %+v", s)
	}
}

func TestEnvName(t *testing.T) {
	cases := map[string]string{
		KeyConnectionString: "MSGRELAY_CONNECTION_STRING",
		KeyMonitorSleepTime: "MSGRELAY_MONITOR_SLEEP_TIME",
		KeyNumThreads:       "MSGRELAY_NUM_THREADS",
		KeyLogLevel:         "MSGRELAY_LOG_LEVEL",
	}
	for key, want := range cases {
		if got := EnvName("msgrelay", key); got != want {
			t.Fatalf("EnvName(%s) = %s, want %s", key, got, want)
		}
	}
	if got := EnvName("", "Driver"); got != "DRIVER" {
		t.Fatalf("unexpected name without prefix: %s", got)
	}
}

func TestChainFirstHitWins(t *testing.T) {
	logger := &captureLogger{}
	src := Chain(
		Map{KeyNumThreads: "9"},
		File(filepath.Join(t.TempDir(), "missing.yaml")),
		Map{KeyNumThreads: "1", KeyDriver: DriverSQLite},
	)

	s := Load(src, logger)
	if s.PoolSize != 9 {
		t.Fatalf("expected first source to win, got %d", s.PoolSize)
	}
	if s.Driver != DriverSQLite {
		t.Fatalf("expected fallthrough past broken source, got %s", s.Driver)
	}
	if len(logger.warns) != 1 {
		t.Fatalf("expected broken source reported once, got %d", len(logger.warns))
	}
}

func TestValidateDriver(t *testing.T) {
	s := Defaults()
	s.ConnectionString = "dsn"
	s.Driver = "postgres"
	if err := s.Validate(); !errors.Is(err, ErrUnknownDriver) {
		t.Fatalf("expected ErrUnknownDriver, got %v", err)
	}

	s.Driver = DriverMySQL
	s.Endpoint = ""
	if err := s.Validate(); !errors.Is(err, ErrEndpointRequired) {
		t.Fatalf("expected ErrEndpointRequired, got %v", err)
	}
}
