package partition

import (
	"database/sql/driver"
	"reflect"
)

// Column is a single named value in a record
type Column struct {
	Name  string
	Value any
}

// Record is an ordered set of column values representing one row to be written, read or deleted
type Record []Column

// NewRecord creates a record from alternating name and value arguments, e.g. NewRecord("id", 1, "region", "us")
func NewRecord(pairs ...any) Record {
	if len(pairs)%2 != 0 {
		panic("partition: NewRecord requires name/value pairs")
	}

	r := make(Record, 0, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		r = r.With(pairs[i].(string), pairs[i+1])
	}
	return r
}

// RecordFromMap creates a record from the passed in map, columns are ordered as given by names
func RecordFromMap(m map[string]any, names ...string) Record {
	r := make(Record, 0, len(names))
	for _, n := range names {
		if v, ok := m[n]; ok {
			r = append(r, Column{Name: n, Value: v})
		}
	}
	return r
}

func (r Record) index(name string) int {
	for i := range r {
		if r[i].Name == name {
			return i
		}
	}
	return -1
}

// Get returns the value of the named column and whether it was present
func (r Record) Get(name string) (any, bool) {
	if i := r.index(name); i >= 0 {
		return r[i].Value, true
	}
	return nil, false
}

// Has returns whether the named column is present, regardless of its value
func (r Record) Has(name string) bool { return r.index(name) >= 0 }

// With returns a copy of this record with the named column set to the given value. An existing column keeps
// its position, a new one is appended.
func (r Record) With(name string, value any) Record {
	c := make(Record, len(r), len(r)+1)
	copy(c, r)

	if i := c.index(name); i >= 0 {
		c[i].Value = value
		return c
	}
	return append(c, Column{Name: name, Value: value})
}

// Only returns a copy of this record restricted to the given column names, in this record's order
func (r Record) Only(names ...string) Record {
	c := make(Record, 0, len(names))
	for _, col := range r {
		for _, n := range names {
			if col.Name == n {
				c = append(c, col)
				break
			}
		}
	}
	return c
}

// Without returns a copy of this record with the given columns removed
func (r Record) Without(names ...string) Record {
	c := make(Record, 0, len(r))
outer:
	for _, col := range r {
		for _, n := range names {
			if col.Name == n {
				continue outer
			}
		}
		c = append(c, col)
	}
	return c
}

// Merge returns a copy of this record overlaid with the values in other. Columns keep the position of their
// first appearance.
func (r Record) Merge(other Record) Record {
	c := make(Record, len(r), len(r)+len(other))
	copy(c, r)

	for _, col := range other {
		if i := c.index(col.Name); i >= 0 {
			c[i].Value = col.Value
		} else {
			c = append(c, col)
		}
	}
	return c
}

// Names returns the column names of this record in order
func (r Record) Names() []string {
	names := make([]string, len(r))
	for i := range r {
		names[i] = r[i].Name
	}
	return names
}

// Values returns the column values of this record in order
func (r Record) Values() []any {
	values := make([]any, len(r))
	for i := range r {
		values[i] = r[i].Value
	}
	return values
}

// Map returns the values of this record keyed by column name
func (r Record) Map() map[string]any {
	m := make(map[string]any, len(r))
	for _, col := range r {
		m[col.Name] = col.Value
	}
	return m
}

// IsNull returns whether the given value should be treated as SQL NULL. Valuers such as null.String and
// null.Int are asked for their driver value.
func IsNull(value any) bool {
	if value == nil {
		return true
	}

	if v, ok := value.(driver.Valuer); ok {
		rv := reflect.ValueOf(v)
		if rv.Kind() == reflect.Pointer && rv.IsNil() {
			return true
		}
		dv, err := v.Value()
		return err == nil && dv == nil
	}

	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface:
		return rv.IsNil()
	}
	return false
}
