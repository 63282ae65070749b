package mysql

import "fmt"

type queries struct {
	insert    string
	count     string
	selectAll string
}

func newQueries(table string) queries {
	return queries{
		insert:    fmt.Sprintf("INSERT INTO %s (message) VALUES (?)", table),
		count:     fmt.Sprintf("SELECT COUNT(*) FROM %s", table),
		selectAll: fmt.Sprintf("SELECT message FROM %s ORDER BY id ASC", table),
	}
}
