// Package sqlxrepos implements the repositories on PostgreSQL, with sqlx row mapping.
package sqlxrepos

import (
	"context"
	"database/sql"
	"strings"

	"github.com/jackc/pgerrcode"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/cs61as/coursesite/core"
)

var errNoRows = sql.ErrNoRows

// base holds the default executor of a repository; services may pass a transaction instead.
type base struct {
	exec core.DBExecutor
}

func (b base) getExec(svcExec []core.DBExecutor) core.DBExecutor {
	if len(svcExec) > 0 && svcExec[0] != nil {
		return svcExec[0]
	}
	return b.exec
}

// selectRows runs query and maps every row onto T by `db` tags.
func selectRows[T any](ctx context.Context, exec core.DBExecutor, query string, args ...interface{}) ([]T, error) {
	rows, err := exec.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	dest := make([]T, 0)
	if err = sqlx.StructScan(rows, &dest); err != nil {
		return nil, err
	}
	return dest, nil
}

// selectOne is selectRows for a single row: notFound is returned when there is none.
func selectOne[T any](ctx context.Context, exec core.DBExecutor, notFound error, query string, args ...interface{}) (T, error) {
	var zero T
	rows, err := selectRows[T](ctx, exec, query, args...)
	if err != nil {
		return zero, err
	}
	if len(rows) == 0 {
		return zero, notFound
	}
	return rows[0], nil
}

// in expands `?` bind vars (and slice args) into postgres `$n` placeholders.
func in(query string, args ...interface{}) (string, []interface{}, error) {
	q, args, err := sqlx.In(query, args...)
	if err != nil {
		return "", nil, err
	}
	return sqlx.Rebind(sqlx.DOLLAR, q), args, nil
}

func isUniqueViolation(err error) bool {
	pqErr, ok := errors.Cause(err).(*pq.Error)
	return ok && pqErr.Code == pgerrcode.UniqueViolation
}

// affected maps a zero-row statement result to notFound.
func affected(res interface{ RowsAffected() (int64, error) }, notFound error) (int, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n == 0 && notFound != nil {
		return 0, notFound
	}
	return int(n), nil
}

// trapNotFound maps "no rows" to notFound, passes notFound through and wraps any other error.
func trapNotFound(err, notFound error, msg string) error {
	if err == notFound || errors.Cause(err) == errNoRows {
		return notFound
	}
	return errors.Wrap(checkSchema(err), msg)
}

// checkSchema turns a missing table or column into a shutdown error: the migrations are behind the binary.
func checkSchema(err error) error {
	pqErr, ok := errors.Cause(err).(*pq.Error)
	if !ok {
		return err
	}
	switch pqErr.Code {
	case pgerrcode.UndefinedTable, pgerrcode.UndefinedColumn:
		return core.NewShutdownError("database schema is out of date: " + pqErr.Message)
	}
	return err
}

// orderBy builds an ORDER BY list from whitelisted fields, or returns def.
func orderBy(ordering []core.DBOrdering, fields map[string]string, def string) string {
	parts := make([]string, 0, len(ordering))
	for _, ord := range ordering {
		col, ok := fields[ord.Field]
		if !ok {
			continue
		}
		parts = append(parts, core.DBOrdering{Field: col, Ascending: ord.Ascending}.String())
	}
	if len(parts) == 0 {
		return def
	}
	return strings.Join(parts, ", ")
}
