package partition

import (
	"slices"
)

// TableResolver maps the partition key values of a record to the physical table which holds it. Implementations
// must be deterministic and safe for concurrent use.
type TableResolver interface {
	ResolveTable(logical Table, keys Record) (Table, error)
}

// ResolverFunc is an adapter to allow the use of ordinary functions as table resolvers
type ResolverFunc func(logical Table, keys Record) (Table, error)

// ResolveTable calls f(logical, keys)
func (f ResolverFunc) ResolveTable(logical Table, keys Record) (Table, error) { return f(logical, keys) }

// Partitioning is the partitioning configuration of a model: the columns which determine partition routing and
// the resolver which maps their values to a table
type Partitioning struct {
	Keys     []string
	Resolver TableResolver
}

// Model is the metadata of a logical table. A model without partitioning always resolves to its logical table.
// Models are immutable once created and can be shared between goroutines.
type Model struct {
	name         string
	table        Table
	primaryKey   string
	columns      []string
	defaults     map[string]any
	sequence     string
	prefetch     bool
	partitioning *Partitioning
}

// ModelOption configures a model when it is created
type ModelOption func(*Model)

// WithName sets the name of the model, defaults to the logical table name
func WithName(name string) ModelOption {
	return func(m *Model) { m.name = name }
}

// WithColumns declares the columns of the model, writes are restricted to these
func WithColumns(columns ...string) ModelOption {
	return func(m *Model) { m.columns = append(m.columns, columns...) }
}

// WithDefault declares the schema default of a column. Columns which still hold their default are omitted
// from inserts unless they are partition keys.
func WithDefault(column string, value any) ModelOption {
	return func(m *Model) { m.defaults[column] = value }
}

// WithSequence sets the name of the sequence used to prefetch primary keys
func WithSequence(name string) ModelOption {
	return func(m *Model) { m.sequence = name }
}

// WithPrefetch makes inserts fetch a primary key from the model's sequence when the record doesn't have one
func WithPrefetch() ModelOption {
	return func(m *Model) { m.prefetch = true }
}

// WithPartitioning partitions the model by the given key columns using the given resolver. Without keys or a
// resolver the model is left unpartitioned.
func WithPartitioning(resolver TableResolver, keys ...string) ModelOption {
	return func(m *Model) {
		m.partitioning = &Partitioning{Keys: slices.Clone(keys), Resolver: resolver}
	}
}

// NewModel creates a new model for the given logical table (optionally schema qualified) and primary key column
func NewModel(table string, primaryKey string, opts ...ModelOption) *Model {
	m := &Model{
		table:      ParseTable(table),
		primaryKey: primaryKey,
		defaults:   make(map[string]any),
	}
	for _, o := range opts {
		o(m)
	}

	if m.name == "" {
		m.name = m.table.Name
	}
	if m.sequence == "" && m.primaryKey != "" {
		m.sequence = m.table.WithName(m.table.Name + "_" + m.primaryKey + "_seq").String()
	}
	if m.partitioning != nil && (len(m.partitioning.Keys) == 0 || m.partitioning.Resolver == nil) {
		m.partitioning = nil
	}
	return m
}

func (m *Model) Name() string       { return m.name }
func (m *Model) Table() Table       { return m.table }
func (m *Model) PrimaryKey() string { return m.primaryKey }
func (m *Model) Sequence() string   { return m.sequence }
func (m *Model) Prefetch() bool     { return m.prefetch }

// Columns returns the declared columns of this model, which may be empty
func (m *Model) Columns() []string { return slices.Clone(m.columns) }

// Default returns the schema default of the given column if one was declared
func (m *Model) Default(column string) (any, bool) {
	v, ok := m.defaults[column]
	return v, ok
}

// IsPartitioned returns whether this model routes records to partitions
func (m *Model) IsPartitioned() bool { return m.partitioning != nil }

// PartitionKeys returns the columns which determine partition routing
func (m *Model) PartitionKeys() []string {
	if m.partitioning == nil {
		return nil
	}
	return slices.Clone(m.partitioning.Keys)
}

// IsPartitionKey returns whether the given column is one of this model's partition keys
func (m *Model) IsPartitionKey(column string) bool {
	return m.partitioning != nil && slices.Contains(m.partitioning.Keys, column)
}

// CheckKeys checks that the given record has values for all partition keys, except those in skip
func (m *Model) CheckKeys(r Record, skip ...string) error {
	if m.partitioning == nil {
		return nil
	}

	for _, k := range m.partitioning.Keys {
		if slices.Contains(skip, k) {
			continue
		}
		if v, ok := r.Get(k); !ok || IsNull(v) {
			return &MissingPartitionKeyError{Model: m.name, Column: k}
		}
	}
	return nil
}

// Resolve returns the physical table for the given record. Unpartitioned models always resolve to their
// logical table.
func (m *Model) Resolve(r Record) (Table, error) {
	if m.partitioning == nil {
		return m.table, nil
	}

	if err := m.CheckKeys(r); err != nil {
		return Table{}, err
	}

	return m.partitioning.Resolver.ResolveTable(m.table, r.Only(m.partitioning.Keys...))
}
