package partition

import (
	"strings"

	"github.com/lib/pq"
)

// Table is a reference to a physical table, optionally qualified by schema
type Table struct {
	Schema string
	Name   string
}

// ParseTable parses a table reference like "orders" or "sales.orders"
func ParseTable(s string) Table {
	if i := strings.LastIndexByte(s, '.'); i >= 0 {
		return Table{Schema: s[:i], Name: s[i+1:]}
	}
	return Table{Name: s}
}

// WithName returns a reference to a table with the given name in the same schema as this table
func (t Table) WithName(name string) Table { return Table{Schema: t.Schema, Name: name} }

// IsZero returns whether this is an empty table reference
func (t Table) IsZero() bool { return t.Name == "" }

// String returns the unquoted, schema qualified name of this table
func (t Table) String() string {
	if t.Schema != "" {
		return t.Schema + "." + t.Name
	}
	return t.Name
}

// Quoted returns the schema qualified name of this table with each part quoted for use in SQL
func (t Table) Quoted() string {
	if t.Schema != "" {
		return pq.QuoteIdentifier(t.Schema) + "." + pq.QuoteIdentifier(t.Name)
	}
	return pq.QuoteIdentifier(t.Name)
}
