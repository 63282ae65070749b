package sqlite

import "errors"

var (
	// ErrPathRequired is returned when Config.Path is empty.
	ErrPathRequired = errors.New("msgrelay sqlite: path is required")
	// ErrInvalidTableName is returned when the table name has disallowed characters.
	ErrInvalidTableName = errors.New("msgrelay sqlite: invalid table name")
	// ErrSessionClosed is returned by Insert after the session is closed.
	ErrSessionClosed = errors.New("msgrelay sqlite: session is closed")
)
