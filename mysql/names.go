package mysql

import (
	"fmt"
	"strings"
)

// maxIdentifierLength is the MySQL limit for database and table names.
const maxIdentifierLength = 64

// sanitizeTableName accepts "table" or "database.table". Identifiers are limited to ASCII
// letters, digits and underscores because the name is spliced into SQL text.
func sanitizeTableName(name string) (string, error) {
	if name == "" {
		return "", ErrTableNameRequired
	}

	database, table, qualified := strings.Cut(name, ".")
	if qualified && !validIdentifier(database) {
		return "", fmt.Errorf("%w: %s", ErrInvalidTableName, name)
	}
	if !qualified {
		table = database
	}
	if !validIdentifier(table) {
		return "", fmt.Errorf("%w: %s", ErrInvalidTableName, name)
	}

	return name, nil
}

func validIdentifier(ident string) bool {
	if ident == "" || len(ident) > maxIdentifierLength {
		return false
	}

	return strings.IndexFunc(ident, func(r rune) bool {
		return r != '_' && (r < '0' || r > '9') && (r < 'a' || r > 'z') && (r < 'A' || r > 'Z')
	}) < 0
}
