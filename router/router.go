package router

import (
	"context"
	"database/sql/driver"
	"log/slog"
	"reflect"
	"time"

	"github.com/nyaruka/partition"
	"github.com/nyaruka/partition/engine"
	"github.com/pkg/errors"
	"github.com/samber/lo"
)

// Executor executes compiled statements against the database
type Executor interface {
	Insert(ctx context.Context, s *engine.Statement) (any, error)
	Exec(ctx context.Context, s *engine.Statement) (int64, error)
	Query(ctx context.Context, s *engine.Statement) ([]partition.Record, error)
	Select(ctx context.Context, dest any, s *engine.Statement) error
}

// Sequencer provides primary key values ahead of inserts
type Sequencer interface {
	NextValue(ctx context.Context, name string) (int64, error)
}

// ColumnSource provides the columns of tables for models which don't declare them
type ColumnSource interface {
	Columns(ctx context.Context, table partition.Table) ([]string, error)
}

// Router routes the inserts, updates, deletes and selects of models to the partition tables resolved from
// their records. It holds no per-operation state and is safe for concurrent use.
type Router struct {
	exec    Executor
	reader  Executor
	seq     Sequencer
	columns ColumnSource
	stats   *partition.StatsCollector
	log     *slog.Logger
}

// Option configures a router
type Option func(*Router)

// WithReader sets a separate executor, e.g. a read replica, for selects
func WithReader(exec Executor) Option { return func(r *Router) { r.reader = exec } }

// WithSequencer sets the source of prefetched primary keys
func WithSequencer(seq Sequencer) Option { return func(r *Router) { r.seq = seq } }

// WithColumns sets the source of columns for models which don't declare them
func WithColumns(src ColumnSource) Option { return func(r *Router) { r.columns = src } }

// WithStats sets a collector which will record every routed statement
func WithStats(c *partition.StatsCollector) Option { return func(r *Router) { r.stats = c } }

// WithLogger sets the logger used for routed statements
func WithLogger(l *slog.Logger) Option { return func(r *Router) { r.log = l } }

// New creates a new router which executes statements with the given executor
func New(exec Executor, opts ...Option) *Router {
	r := &Router{exec: exec, reader: exec, log: slog.With("comp", "router")}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Create inserts the given record into the partition of the given model it resolves to, returning its primary
// key. If the model prefetches keys and the record doesn't have one, one is fetched before the insert and
// that is what's returned, otherwise the key is the one supplied or generated by the database.
func (r *Router) Create(ctx context.Context, m *partition.Model, rec partition.Record) (any, error) {
	pk := m.PrimaryKey()
	prefetch := pk != "" && m.Prefetch() && !hasValue(rec, pk)

	// check what we can before using up a sequence value
	var skip []string
	if prefetch {
		skip = append(skip, pk)
	}
	if err := m.CheckKeys(rec, skip...); err != nil {
		return nil, err
	}

	var id any
	if prefetch {
		prefetched, err := r.prefetch(ctx, m)
		if err != nil {
			return nil, err
		}
		id = prefetched
		rec = rec.With(pk, prefetched)
	} else if pk != "" && hasValue(rec, pk) {
		id, _ = rec.Get(pk)
	}

	names, err := r.insertColumns(ctx, m, rec, prefetch)
	if err != nil {
		return nil, err
	}

	table, err := m.Resolve(rec)
	if err != nil {
		return nil, err
	}

	stmt := engine.Insert(table, rec.Only(names...), pk)

	start := time.Now()
	newID, err := r.exec.Insert(ctx, stmt)
	r.recordStatement(partition.OpInsert, m, table, start, err)
	if err != nil {
		return nil, err
	}

	if id == nil {
		id = newID
	}
	return id, nil
}

// Update applies the given changes to the record whose current state is given. The partition is resolved from
// the current state merged with the changes and the update is constrained to the record's current primary key,
// even if the changes include a new one. Returns the number of rows updated.
func (r *Router) Update(ctx context.Context, m *partition.Model, current, changes partition.Record) (int64, error) {
	pk := m.PrimaryKey()
	id, err := primaryKeyValue(m, current)
	if err != nil {
		return 0, err
	}
	if len(changes) == 0 {
		return 0, nil
	}

	state := current.Merge(changes)
	table, err := m.Resolve(state)
	if err != nil {
		return 0, err
	}

	if m.IsPartitioned() && lo.SomeBy(changes.Names(), m.IsPartitionKey) {
		if prev, err := m.Resolve(current); err == nil && prev != table {
			return 0, errors.Wrapf(partition.ErrPartitionChanged, "can't move %s %v from %s to %s", m.Name(), id, prev, table)
		}
	}

	declared, err := r.declaredColumns(ctx, m)
	if err != nil {
		return 0, err
	}
	set := restrict(changes, declared)
	if len(set) == 0 {
		return 0, nil
	}

	stmt := engine.Update(table, set, pk, id)

	start := time.Now()
	n, err := r.exec.Exec(ctx, stmt)
	r.recordStatement(partition.OpUpdate, m, table, start, err)
	return n, err
}

// Delete deletes the given loaded record from the partition it resolves to, returning the number of rows deleted
func (r *Router) Delete(ctx context.Context, m *partition.Model, rec partition.Record) (int64, error) {
	id, err := primaryKeyValue(m, rec)
	if err != nil {
		return 0, err
	}

	table, err := m.Resolve(rec)
	if err != nil {
		return 0, err
	}

	stmt := engine.Delete(table, m.PrimaryKey(), id)

	start := time.Now()
	n, err := r.exec.Exec(ctx, stmt)
	r.recordStatement(partition.OpDelete, m, table, start, err)
	return n, err
}

// works out which columns of a new record to insert: those which differ from their schema defaults, plus the
// partition keys and a prefetched primary key, limited to the columns the table actually has. A null primary key
// is left out so the database can generate one.
func (r *Router) insertColumns(ctx context.Context, m *partition.Model, rec partition.Record, prefetched bool) ([]string, error) {
	pk := m.PrimaryKey()
	names := lo.Filter(rec.Names(), func(n string, _ int) bool {
		if n == pk && !hasValue(rec, n) {
			return false
		}
		def, hasDefault := m.Default(n)
		v, _ := rec.Get(n)
		return !hasDefault || !sameValue(v, def)
	})

	names = append(names, m.PartitionKeys()...)
	if prefetched {
		names = append(names, pk)
	}
	names = lo.Uniq(names)

	declared, err := r.declaredColumns(ctx, m)
	if err != nil {
		return nil, err
	}
	if len(declared) > 0 {
		names = lo.Intersect(declared, names)
	}
	return names, nil
}

// gets the columns of the given model, either as declared or as looked up from its table
func (r *Router) declaredColumns(ctx context.Context, m *partition.Model) ([]string, error) {
	if cols := m.Columns(); len(cols) > 0 {
		return cols, nil
	}
	if r.columns != nil {
		return r.columns.Columns(ctx, m.Table())
	}
	return nil, nil
}

func (r *Router) recordStatement(op partition.Operation, m *partition.Model, table partition.Table, start time.Time, err error) {
	elapsed := time.Since(start)
	r.stats.RecordStatement(op, table, err == nil, elapsed)

	if err != nil {
		r.log.Debug("routed statement failed", "op", op, "model", m.Name(), "table", table.String(), "error", err)
	} else {
		r.log.Debug("routed statement", "op", op, "model", m.Name(), "table", table.String(), "elapsed", elapsed)
	}
}

func primaryKeyValue(m *partition.Model, rec partition.Record) (any, error) {
	if m.PrimaryKey() == "" {
		return nil, errors.Wrapf(partition.ErrMissingPrimaryKey, "model %s has no primary key", m.Name())
	}

	id, ok := rec.Get(m.PrimaryKey())
	if !ok || partition.IsNull(id) {
		return nil, errors.Wrapf(partition.ErrMissingPrimaryKey, "%s record has no value for %s", m.Name(), m.PrimaryKey())
	}
	return id, nil
}

func hasValue(rec partition.Record, column string) bool {
	v, ok := rec.Get(column)
	return ok && !partition.IsNull(v)
}

// restricts a record to the given columns, or returns it as is if there are none
func restrict(rec partition.Record, columns []string) partition.Record {
	if len(columns) == 0 {
		return rec
	}
	return rec.Only(columns...)
}

// compares values the way the driver will see them, so that int(1) and int64(1) are the same
func sameValue(a, b any) bool {
	av, aErr := driver.DefaultParameterConverter.ConvertValue(a)
	bv, bErr := driver.DefaultParameterConverter.ConvertValue(b)
	if aErr != nil || bErr != nil {
		return reflect.DeepEqual(a, b)
	}
	return reflect.DeepEqual(av, bv)
}
