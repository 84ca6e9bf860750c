package router

import (
	"context"
	"database/sql"
	"slices"
	"time"

	"github.com/nyaruka/partition"
	"github.com/nyaruka/partition/engine"
	"github.com/pkg/errors"
)

// Relation is a select against the single partition of a model resolved from a set of partition key values.
// Relations are immutable, each refinement returns a new one.
type Relation struct {
	router  *Router
	model   *partition.Model
	table   partition.Table
	selects []string
	where   partition.Record
	orderBy []ordering
	limit   int
}

// an ordering is either a column of the model or a raw expression
type ordering struct {
	column string
	desc   bool
	expr   string
}

// Scope resolves the partition of the given model for the given key values and returns a relation over it
func (r *Router) Scope(m *partition.Model, keys partition.Record) (*Relation, error) {
	table, err := m.Resolve(keys)
	if err != nil {
		return nil, err
	}
	return &Relation{router: r, model: m, table: table}, nil
}

// Find loads the record with the given primary key from the partition resolved from the given key values.
// Returns sql.ErrNoRows if there is no such record.
func (r *Router) Find(ctx context.Context, m *partition.Model, keys partition.Record, id any) (partition.Record, error) {
	rel, err := r.Scope(m, keys)
	if err != nil {
		return nil, err
	}

	rows, err := rel.Where(m.PrimaryKey(), id).Limit(1).All(ctx)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, sql.ErrNoRows
	}
	return rows[0], nil
}

// Table returns the partition table this relation selects from
func (rel *Relation) Table() partition.Table { return rel.table }

// Select sets the projection. Names of model columns are qualified with the partition table, anything else is
// used as a raw expression.
func (rel *Relation) Select(fields ...string) *Relation {
	c := rel.clone()
	c.selects = append(c.selects, fields...)
	return c
}

// Where adds an equality condition on the given column
func (rel *Relation) Where(column string, value any) *Relation {
	c := rel.clone()
	c.where = c.where.With(column, value)
	return c
}

// OrderBy adds raw ordering expressions, which must never come from user input
func (rel *Relation) OrderBy(exprs ...string) *Relation {
	c := rel.clone()
	for _, e := range exprs {
		c.orderBy = append(c.orderBy, ordering{expr: e})
	}
	return c
}

// Sort adds an ordering on a column of the model, which is checked against the model's columns when the relation
// is compiled
func (rel *Relation) Sort(column string, desc bool) *Relation {
	c := rel.clone()
	c.orderBy = append(c.orderBy, ordering{column: column, desc: desc})
	return c
}

// Limit limits the number of rows returned
func (rel *Relation) Limit(n int) *Relation {
	c := rel.clone()
	c.limit = n
	return c
}

// Statement compiles this relation into a select statement. Returns ErrUnknownColumn if a condition or sort
// refers to a column the model doesn't have.
func (rel *Relation) Statement(ctx context.Context) (*engine.Statement, error) {
	columns, err := rel.router.declaredColumns(ctx, rel.model)
	if err != nil {
		return nil, err
	}

	var projection []string
	if len(rel.selects) > 0 {
		projection = make([]string, len(rel.selects))
		for i, f := range rel.selects {
			if slices.Contains(columns, f) {
				projection[i] = engine.Qualify(rel.table, f)
			} else {
				projection[i] = f
			}
		}
	}

	for _, col := range rel.where {
		if err := rel.checkColumn(columns, col.Name); err != nil {
			return nil, err
		}
	}

	orderBy := make([]string, len(rel.orderBy))
	for i, o := range rel.orderBy {
		if o.column == "" {
			orderBy[i] = o.expr
			continue
		}
		if err := rel.checkColumn(columns, o.column); err != nil {
			return nil, err
		}
		orderBy[i] = engine.Order(rel.table, o.column, o.desc)
	}

	return engine.Select(&engine.Query{
		Table:      rel.table,
		Projection: projection,
		Where:      rel.where,
		OrderBy:    orderBy,
		Limit:      rel.limit,
	}), nil
}

// columns can only be checked if we know what they are, otherwise they're still quoted
func (rel *Relation) checkColumn(columns []string, column string) error {
	if column == "" || (len(columns) > 0 && !slices.Contains(columns, column)) {
		return errors.Wrapf(partition.ErrUnknownColumn, "%s has no column %q", rel.model.Name(), column)
	}
	return nil
}

// All executes this relation, returning the matching rows as records
func (rel *Relation) All(ctx context.Context) ([]partition.Record, error) {
	stmt, err := rel.Statement(ctx)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	rows, err := rel.router.reader.Query(ctx, stmt)
	rel.router.recordStatement(partition.OpSelect, rel.model, rel.table, start, err)
	return rows, err
}

// Load executes this relation, scanning the matching rows into dest which should be a pointer to a slice of structs
func (rel *Relation) Load(ctx context.Context, dest any) error {
	stmt, err := rel.Statement(ctx)
	if err != nil {
		return err
	}

	start := time.Now()
	err = rel.router.reader.Select(ctx, dest, stmt)
	rel.router.recordStatement(partition.OpSelect, rel.model, rel.table, start, err)
	return err
}

func (rel *Relation) clone() *Relation {
	return &Relation{
		router:  rel.router,
		model:   rel.model,
		table:   rel.table,
		selects: slices.Clone(rel.selects),
		where:   slices.Clone(rel.where),
		orderBy: slices.Clone(rel.orderBy),
		limit:   rel.limit,
	}
}
