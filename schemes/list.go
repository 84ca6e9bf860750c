package schemes

import (
	"regexp"
	"strings"

	"github.com/nyaruka/partition"
)

// ListPart is a suffix looked up from an explicit mapping of column values, e.g. countries to regions
type ListPart struct {
	column   string
	values   map[string]string
	fallback string
}

// ListOf creates a list part. Values not in the mapping use the fallback suffix, or fail if that is empty.
func ListOf(column string, values map[string]string, fallback string) *ListPart {
	vs := make(map[string]string, len(values))
	for k, v := range values {
		vs[k] = v
	}
	return &ListPart{column: column, values: vs, fallback: fallback}
}

func (p *ListPart) Column() string { return p.column }

func (p *ListPart) Suffix(keys partition.Record) (string, error) {
	v, err := keyValue(keys, p.column)
	if err != nil {
		return "", err
	}

	s, ok := toString(v)
	if !ok {
		return "", &InvalidPartitionValueError{Column: p.column, Value: v, Reason: "not a string"}
	}

	if suffix, found := p.values[s]; found {
		return suffix, nil
	}
	if p.fallback != "" {
		return p.fallback, nil
	}
	return "", &InvalidPartitionValueError{Column: p.column, Value: v, Reason: "no partition for value"}
}

// List partitions by an explicit mapping of values to suffixes
func List(column string, values map[string]string, fallback string) *Scheme {
	return Composite(ListOf(column, values, fallback))
}

var invalidSuffixChars = regexp.MustCompile(`[^a-z0-9_]+`)

// ValuePart uses the column value itself as the suffix, lowercased with anything other than letters, digits
// and underscores replaced
type ValuePart struct {
	column string
}

// ValueOf creates a value part
func ValueOf(column string) *ValuePart { return &ValuePart{column: column} }

func (p *ValuePart) Column() string { return p.column }

func (p *ValuePart) Suffix(keys partition.Record) (string, error) {
	v, err := keyValue(keys, p.column)
	if err != nil {
		return "", err
	}

	s, ok := toString(v)
	if !ok {
		return "", &InvalidPartitionValueError{Column: p.column, Value: v, Reason: "not a string"}
	}

	suffix := strings.Trim(invalidSuffixChars.ReplaceAllString(strings.ToLower(s), "_"), "_")
	if suffix == "" {
		return "", &InvalidPartitionValueError{Column: p.column, Value: v, Reason: "empty suffix"}
	}
	return suffix, nil
}

// Value partitions by the value of a column, e.g. a tenant id
func Value(column string) *Scheme { return Composite(ValueOf(column)) }
