package schemes

import (
	"fmt"
	"slices"
	"strings"

	"github.com/nyaruka/partition"
)

// Part computes one component of a partition table suffix from the partition key values of a record
type Part interface {
	Column() string
	Suffix(keys partition.Record) (string, error)
}

// Scheme is a table resolver which names partitions as the logical table name followed by the suffixes of its
// parts, e.g. orders_us_202401
type Scheme struct {
	parts []Part
}

// Composite creates a scheme from the given parts, their suffixes are joined by underscores
func Composite(parts ...Part) *Scheme {
	return &Scheme{parts: parts}
}

// Keys returns the columns used by this scheme, in order
func (s *Scheme) Keys() []string {
	keys := make([]string, 0, len(s.parts))
	for _, p := range s.parts {
		if c := p.Column(); c != "" && !slices.Contains(keys, c) {
			keys = append(keys, c)
		}
	}
	return keys
}

// ResolveTable resolves the partition table for the given key values
func (s *Scheme) ResolveTable(logical partition.Table, keys partition.Record) (partition.Table, error) {
	var sb strings.Builder
	sb.WriteString(logical.Name)

	for _, p := range s.parts {
		suffix, err := p.Suffix(keys)
		if err != nil {
			return partition.Table{}, err
		}
		sb.WriteByte('_')
		sb.WriteString(suffix)
	}

	return logical.WithName(sb.String()), nil
}

// InvalidPartitionValueError is returned when a partition key value can't be mapped to a suffix
type InvalidPartitionValueError struct {
	Column string
	Value  any
	Reason string
}

func (e *InvalidPartitionValueError) Error() string {
	return fmt.Sprintf("invalid value %v for partition key %q: %s", e.Value, e.Column, e.Reason)
}

func (e *InvalidPartitionValueError) Is(target error) bool {
	return target == partition.ErrInvalidPartitionValue
}

// looks up a key column, treating nulls as missing
func keyValue(keys partition.Record, column string) (any, error) {
	v, ok := keys.Get(column)
	if !ok || partition.IsNull(v) {
		return nil, &partition.MissingPartitionKeyError{Column: column}
	}
	return v, nil
}
