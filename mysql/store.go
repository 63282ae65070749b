package mysql

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"unicode/utf8"

	mysqldriver "github.com/go-sql-driver/mysql"

	"github.com/velmie/msgrelay"
)

// errServerShutdown is reported on a connection the server is closing.
const errServerShutdown = 1053

// Executor is the subset of *sql.Conn a session needs.
type Executor interface {
	// ExecContext executes a statement with the provided context.
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	// Close returns the connection to the pool.
	Close() error
}

// Store implements msgrelay.Store on a MySQL table with a single text column.
type Store struct {
	db      *sql.DB
	cfg     Config
	queries queries
	table   string
}

var _ msgrelay.Store = (*Store)(nil)

// NewStore constructs a MySQL store with validated configuration.
func NewStore(db *sql.DB, opts ...Option) (*Store, error) {
	if db == nil {
		return nil, ErrDBRequired
	}

	var cfg Config
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg = cfg.withDefaults()

	table, err := sanitizeTableName(cfg.Table)
	if err != nil {
		return nil, err
	}

	return &Store{
		db:      db,
		cfg:     cfg,
		queries: newQueries(table),
		table:   table,
	}, nil
}

// MustNewStore constructs a MySQL store or panics on error.
func MustNewStore(db *sql.DB, opts ...Option) *Store {
	store, err := NewStore(db, opts...)
	if err != nil {
		panic(err)
	}

	return store
}

// OpenDB builds a *sql.DB from a go-sql-driver DSN, applying a dial timeout when the DSN has none.
func OpenDB(dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, ErrDSNRequired
	}

	cfg, err := mysqldriver.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("msgrelay mysql: parse dsn: %w", err)
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultDialTimeout
	}

	connector, err := mysqldriver.NewConnector(cfg)
	if err != nil {
		return nil, fmt.Errorf("msgrelay mysql: connector: %w", err)
	}

	return sql.OpenDB(connector), nil
}

// Table returns the sanitized destination table name.
func (s *Store) Table() string {
	return s.table
}

// EnsureSchema creates the destination table if it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	schema, err := Schema(s.table)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("msgrelay mysql: create table failed: %w", err)
	}

	return nil
}

// Open takes a dedicated connection and verifies the server is reachable.
func (s *Store) Open(ctx context.Context) (msgrelay.Session, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("msgrelay mysql: connect failed: %w", err)
	}
	if err := conn.PingContext(ctx); err != nil {
		closeErr := conn.Close()

		return nil, errors.Join(fmt.Errorf("msgrelay mysql: ping failed: %w", err), closeErr)
	}

	return s.newSession(conn), nil
}

func (s *Store) newSession(conn Executor) *session {
	return &session{conn: conn, store: s}
}

// Count returns the number of persisted messages.
func (s *Store) Count(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, s.queries.count).Scan(&count); err != nil {
		return 0, fmt.Errorf("msgrelay mysql: count failed: %w", err)
	}

	return count, nil
}

// Messages returns every persisted message in insertion order.
func (s *Store) Messages(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, s.queries.selectAll)
	if err != nil {
		return nil, fmt.Errorf("msgrelay mysql: select failed: %w", err)
	}
	defer rows.Close()

	var messages []string
	for rows.Next() {
		var message string
		if err := rows.Scan(&message); err != nil {
			return nil, fmt.Errorf("msgrelay mysql: scan failed: %w", err)
		}
		messages = append(messages, message)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("msgrelay mysql: rows failed: %w", err)
	}

	return messages, nil
}

type session struct {
	conn   Executor
	store  *Store
	closed bool
}

// Insert writes one message with a bound parameter.
func (s *session) Insert(ctx context.Context, message string) error {
	if s.closed {
		return fmt.Errorf("%w: %w", msgrelay.ErrStoreUnavailable, ErrSessionClosed)
	}
	if s.store.cfg.ValidateUTF8 && !utf8.ValidString(message) {
		return ErrInvalidMessage
	}

	if _, err := s.conn.ExecContext(ctx, s.store.queries.insert, message); err != nil {
		return fmt.Errorf("msgrelay mysql: insert failed: %w", classify(err))
	}

	return nil
}

// Close returns the connection to the pool.
func (s *session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	return s.conn.Close()
}

// classify marks lost connections as msgrelay.ErrStoreUnavailable. Statement-level errors,
// deadlocks and lock waits included, stay as they are and drop the message.
func classify(err error) error {
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, mysqldriver.ErrInvalidConn) || errors.Is(err, sql.ErrConnDone) {
		return fmt.Errorf("%w: %w", msgrelay.ErrStoreUnavailable, err)
	}

	var myErr *mysqldriver.MySQLError
	if errors.As(err, &myErr) && myErr.Number == errServerShutdown {
		return fmt.Errorf("%w: %w", msgrelay.ErrStoreUnavailable, err)
	}

	return err
}
