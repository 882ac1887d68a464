package core

import (
	"context"
	"database/sql"
	"regexp"
)

type (
	DBExecutor interface {
		Exec(query string, args ...interface{}) (sql.Result, error)
		ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
		Query(query string, args ...interface{}) (*sql.Rows, error)
		QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
		QueryRow(query string, args ...interface{}) *sql.Row
		QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	}

	DB interface {
		DBExecutor

		Begin() (*sql.Tx, error)
		BeginTx(context.Context, *sql.TxOptions) (*sql.Tx, error)
	}
)

type DBOrdering struct {
	Field     string
	Ascending bool
}

var orderingFieldRx = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

// IsValid reports whether Field is a plain column identifier. Field ends up
// interpolated into an ORDER BY clause, so anything else must be rejected.
func (ord DBOrdering) IsValid() bool {
	return orderingFieldRx.MatchString(ord.Field)
}

func (ord DBOrdering) String() string {
	direction := "DESC"
	if ord.Ascending {
		direction = "ASC"
	}
	return ord.Field + " " + direction
}
