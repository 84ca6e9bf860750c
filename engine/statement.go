package engine

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/lib/pq"
	"github.com/nyaruka/partition"
)

// Statement is a compiled SQL statement and its bind parameters
type Statement struct {
	SQL       string
	Args      []any
	Returning string
}

func (s *Statement) String() string { return s.SQL }

// Quote quotes a column name for use in SQL
func Quote(column string) string { return pq.QuoteIdentifier(column) }

// Qualify quotes a column name and qualifies it with the given table
func Qualify(table partition.Table, column string) string {
	return table.Quoted() + "." + pq.QuoteIdentifier(column)
}

// Order returns an ordering on the given column of the given table
func Order(table partition.Table, column string, desc bool) string {
	if desc {
		return Qualify(table, column) + " DESC"
	}
	return Qualify(table, column) + " ASC"
}

// Star returns the projection of all columns of the given table
func Star(table partition.Table) string { return table.Quoted() + ".*" }

// Insert compiles an insert of the given values into the given table. An empty set of values inserts a row of
// defaults. If returning is non-empty, that column of the new row is returned.
func Insert(table partition.Table, values partition.Record, returning string) *Statement {
	var sb strings.Builder
	sb.WriteString("INSERT INTO ")
	sb.WriteString(table.Quoted())

	if len(values) == 0 {
		sb.WriteString(" DEFAULT VALUES")
	} else {
		sb.WriteString("(")
		for i, col := range values {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(Quote(col.Name))
		}
		sb.WriteString(") VALUES(")
		for i := range values {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(bind(i + 1))
		}
		sb.WriteString(")")
	}

	if returning != "" {
		sb.WriteString(" RETURNING ")
		sb.WriteString(Quote(returning))
	}

	return &Statement{SQL: sb.String(), Args: values.Values(), Returning: returning}
}

// Update compiles an update of the given values in the given table, constrained to the row with the given
// primary key value
func Update(table partition.Table, values partition.Record, pk string, id any) *Statement {
	var sb strings.Builder
	sb.WriteString("UPDATE ")
	sb.WriteString(table.Quoted())
	sb.WriteString(" SET ")

	for i, col := range values {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(Quote(col.Name))
		sb.WriteString(" = ")
		sb.WriteString(bind(i + 1))
	}

	sb.WriteString(" WHERE ")
	sb.WriteString(Quote(pk))
	sb.WriteString(" = ")
	sb.WriteString(bind(len(values) + 1))

	args := append(values.Values(), id)
	return &Statement{SQL: sb.String(), Args: args}
}

// Delete compiles a delete from the given table of the row with the given primary key value
func Delete(table partition.Table, pk string, id any) *Statement {
	return &Statement{
		SQL:  fmt.Sprintf("DELETE FROM %s WHERE %s = $1", table.Quoted(), Quote(pk)),
		Args: []any{id},
	}
}

// Query is the shape of a select against a single table
type Query struct {
	Table      partition.Table
	Projection []string
	Where      partition.Record
	OrderBy    []string
	Limit      int
}

// Select compiles a select query. Projection expressions are used as given, an empty projection selects all
// columns of the table. Where values are compared for equality, with nulls compared using IS NULL.
func Select(q *Query) *Statement {
	var sb strings.Builder
	sb.WriteString("SELECT ")

	if len(q.Projection) == 0 {
		sb.WriteString(Star(q.Table))
	} else {
		sb.WriteString(strings.Join(q.Projection, ", "))
	}

	sb.WriteString(" FROM ")
	sb.WriteString(q.Table.Quoted())

	args := make([]any, 0, len(q.Where))
	for i, col := range q.Where {
		if i == 0 {
			sb.WriteString(" WHERE ")
		} else {
			sb.WriteString(" AND ")
		}
		sb.WriteString(Qualify(q.Table, col.Name))

		if partition.IsNull(col.Value) {
			sb.WriteString(" IS NULL")
		} else {
			args = append(args, col.Value)
			sb.WriteString(" = ")
			sb.WriteString(bind(len(args)))
		}
	}

	if len(q.OrderBy) > 0 {
		sb.WriteString(" ORDER BY ")
		sb.WriteString(strings.Join(q.OrderBy, ", "))
	}

	if q.Limit > 0 {
		sb.WriteString(" LIMIT ")
		sb.WriteString(strconv.Itoa(q.Limit))
	}

	return &Statement{SQL: sb.String(), Args: args}
}

func bind(n int) string { return "$" + strconv.Itoa(n) }
