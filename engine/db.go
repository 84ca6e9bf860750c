package engine

import (
	"context"
	"database/sql"
	"unicode/utf8"

	"github.com/jmoiron/sqlx"
	"github.com/nyaruka/partition"
)

// Queryer is the part of sqlx.DB and sqlx.Tx that statements are executed against
type Queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
	QueryxContext(ctx context.Context, query string, args ...any) (*sqlx.Rows, error)
}

// DB executes compiled statements. Errors from the database are returned as is.
type DB struct {
	q Queryer
}

// NewDB creates a new executor over a database handle or transaction
func NewDB(q Queryer) *DB {
	return &DB{q: q}
}

// Insert executes an insert statement, returning the value of its returning column if it has one
func (d *DB) Insert(ctx context.Context, s *Statement) (any, error) {
	if s.Returning == "" {
		_, err := d.q.ExecContext(ctx, s.SQL, s.Args...)
		return nil, err
	}

	var id any
	if err := d.q.GetContext(ctx, &id, s.SQL, s.Args...); err != nil {
		return nil, err
	}
	return id, nil
}

// Exec executes an update or delete statement, returning the number of affected rows
func (d *DB) Exec(ctx context.Context, s *Statement) (int64, error) {
	res, err := d.q.ExecContext(ctx, s.SQL, s.Args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Query executes a select statement, returning each row as a record in column order
func (d *DB) Query(ctx context.Context, s *Statement) ([]partition.Record, error) {
	rows, err := d.q.QueryxContext(ctx, s.SQL, s.Args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	records := make([]partition.Record, 0, 10)
	for rows.Next() {
		values, err := rows.SliceScan()
		if err != nil {
			return nil, err
		}

		rec := make(partition.Record, len(cols))
		for i, c := range cols {
			rec[i] = partition.Column{Name: c, Value: textValue(values[i])}
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Select executes a select statement, scanning rows into dest which should be a pointer to a slice of structs
func (d *DB) Select(ctx context.Context, dest any, s *Statement) error {
	return d.q.SelectContext(ctx, dest, s.SQL, s.Args...)
}

// the driver gives us raw bytes for some types like numeric, return those as strings when they're valid text
func textValue(v any) any {
	if b, ok := v.([]byte); ok && utf8.Valid(b) {
		return string(b)
	}
	return v
}
