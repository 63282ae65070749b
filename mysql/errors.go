package mysql

import "errors"

var (
	// ErrDBRequired is returned when a nil *sql.DB is provided.
	ErrDBRequired = errors.New("msgrelay mysql: db is required")
	// ErrDSNRequired is returned when OpenDB gets an empty DSN.
	ErrDSNRequired = errors.New("msgrelay mysql: dsn is required")
	// ErrTableNameRequired is returned when the table name is empty.
	ErrTableNameRequired = errors.New("msgrelay mysql: table name is required")
	// ErrInvalidTableName is returned when the table name has disallowed characters.
	ErrInvalidTableName = errors.New("msgrelay mysql: invalid table name")
	// ErrInvalidMessage is returned when a message is not valid UTF-8.
	ErrInvalidMessage = errors.New("msgrelay mysql: message must be valid UTF-8")
	// ErrSessionClosed is returned by Insert after the session is closed.
	ErrSessionClosed = errors.New("msgrelay mysql: session is closed")
)
