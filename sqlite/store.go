package sqlite

import (
	"context"
	"fmt"
	"log/slog"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/velmie/msgrelay"
)

const (
	defaultTable    = "relay_messages"
	defaultPoolSize = 2
)

const schemaTemplate = `CREATE TABLE IF NOT EXISTS %s (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	message TEXT NOT NULL,
	created_at TEXT NOT NULL DEFAULT (strftime('%%Y-%%m-%%dT%%H:%%M:%%fZ', 'now'))
);`

var pragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA synchronous=NORMAL",
	"PRAGMA busy_timeout=5000",
	"PRAGMA temp_store=MEMORY",
}

// Config holds the parameters for opening a SQLite message store.
// Path is required; all other fields have defaults.
type Config struct {
	// Path is the database file. The parent directory must exist.
	Path string

	// Table is the destination table. Default: relay_messages.
	Table string

	// PoolSize is the number of pooled connections. The forwarder holds at most one at a
	// time, the second serves inspection queries. Default: 2.
	PoolSize int

	// Logger receives pool open/close messages. If nil, a no-op logger is used.
	Logger *slog.Logger

	// OnConnect runs once per connection after the table exists. Use it for extra
	// schema such as triggers or indexes.
	OnConnect func(conn *sqlite.Conn) error
}

// Store implements msgrelay.Store on a SQLite table with a single text column.
type Store struct {
	pool   *sqlitex.Pool
	logger *slog.Logger
	path   string
	table  string
	insert string
}

var _ msgrelay.Store = (*Store)(nil)

// Open creates the connection pool. Connections are initialized lazily on first use.
func Open(cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, ErrPathRequired
	}
	table := cfg.Table
	if table == "" {
		table = defaultTable
	}
	if !validTableName(table) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidTableName, table)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = defaultPoolSize
	}

	pool, err := sqlitex.NewPool(cfg.Path, sqlitex.PoolOptions{
		PoolSize: poolSize,
		PrepareConn: func(conn *sqlite.Conn) error {
			return prepareConnection(conn, table, cfg.OnConnect)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("msgrelay sqlite: opening %s: %w", cfg.Path, err)
	}

	logger.Info("sqlite store opened", "path", cfg.Path, "table", table, "pool_size", poolSize)

	return &Store{
		pool:   pool,
		logger: logger,
		path:   cfg.Path,
		table:  table,
		insert: fmt.Sprintf("INSERT INTO %s (message) VALUES (?)", table),
	}, nil
}

// Open takes a pooled connection for one forwarder tick.
func (s *Store) Open(ctx context.Context) (msgrelay.Session, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("msgrelay sqlite: take: %w", err)
	}

	return &session{conn: conn, store: s}, nil
}

// Schema returns the DDL executed on every new connection for table.
func Schema(table string) (string, error) {
	if table == "" {
		table = defaultTable
	}
	if !validTableName(table) {
		return "", fmt.Errorf("%w: %s", ErrInvalidTableName, table)
	}

	return fmt.Sprintf(schemaTemplate, table), nil
}

// Close closes every connection. It blocks until borrowed connections are returned.
func (s *Store) Close() error {
	if err := s.pool.Close(); err != nil {
		s.logger.Error("sqlite store close error", "path", s.path, "error", err)

		return fmt.Errorf("msgrelay sqlite: closing %s: %w", s.path, err)
	}
	s.logger.Info("sqlite store closed", "path", s.path)

	return nil
}

// Count returns the number of persisted messages.
func (s *Store) Count(ctx context.Context) (int, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return 0, fmt.Errorf("msgrelay sqlite: take: %w", err)
	}
	defer s.pool.Put(conn)

	var count int
	err = sqlitex.Execute(conn, fmt.Sprintf("SELECT COUNT(*) FROM %s", s.table), &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			count = stmt.ColumnInt(0)
			return nil
		},
	})
	if err != nil {
		return 0, fmt.Errorf("msgrelay sqlite: count: %w", err)
	}

	return count, nil
}

// Messages returns every persisted message in insertion order.
func (s *Store) Messages(ctx context.Context) ([]string, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("msgrelay sqlite: take: %w", err)
	}
	defer s.pool.Put(conn)

	var messages []string
	err = sqlitex.Execute(conn, fmt.Sprintf("SELECT message FROM %s ORDER BY id ASC", s.table), &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			messages = append(messages, stmt.ColumnText(0))
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("msgrelay sqlite: select: %w", err)
	}

	return messages, nil
}

type session struct {
	conn  *sqlite.Conn
	store *Store
}

// Insert writes one message with a bound parameter. Cancelling ctx interrupts the statement.
func (s *session) Insert(ctx context.Context, message string) error {
	if s.conn == nil {
		return fmt.Errorf("%w: %w", msgrelay.ErrStoreUnavailable, ErrSessionClosed)
	}

	prev := s.conn.SetInterrupt(ctx.Done())
	defer s.conn.SetInterrupt(prev)

	err := sqlitex.Execute(s.conn, s.store.insert, &sqlitex.ExecOptions{
		Args: []any{message},
	})
	if err != nil {
		return fmt.Errorf("msgrelay sqlite: insert: %w", classify(err))
	}

	return nil
}

// Close puts the connection back into the pool.
func (s *session) Close() error {
	if s.conn == nil {
		return nil
	}
	s.store.pool.Put(s.conn)
	s.conn = nil

	return nil
}

func prepareConnection(conn *sqlite.Conn, table string, onConnect func(*sqlite.Conn) error) error {
	for _, pragma := range pragmas {
		if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
			return fmt.Errorf("msgrelay sqlite: %s: %w", pragma, err)
		}
	}
	if err := sqlitex.ExecuteScript(conn, fmt.Sprintf(schemaTemplate, table), nil); err != nil {
		return fmt.Errorf("msgrelay sqlite: create table: %w", err)
	}
	if onConnect != nil {
		if err := onConnect(conn); err != nil {
			return fmt.Errorf("msgrelay sqlite: OnConnect: %w", err)
		}
	}

	return nil
}

// classify marks lock contention that outlasted busy_timeout, and interrupted statements,
// as msgrelay.ErrStoreUnavailable. Anything else is a failure of this message.
func classify(err error) error {
	switch sqlite.ErrCode(err).ToPrimary() {
	case sqlite.ResultBusy, sqlite.ResultLocked, sqlite.ResultInterrupt:
		return fmt.Errorf("%w: %w", msgrelay.ErrStoreUnavailable, err)
	default:
		return err
	}
}

func validTableName(name string) bool {
	if name == "" {
		return false
	}
	for _, r := range name {
		if r == '_' || (r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
			continue
		}

		return false
	}

	return true
}
