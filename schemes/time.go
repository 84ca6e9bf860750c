package schemes

import (
	"github.com/nyaruka/partition"
)

// TimePart is a suffix computed by formatting a date or time column with a layout, in UTC
type TimePart struct {
	column string
	layout string
}

// Time creates a time part with the given layout, e.g. Time("placed_at", "200601") gives suffixes like 202401
func Time(column, layout string) *TimePart {
	return &TimePart{column: column, layout: layout}
}

func (p *TimePart) Column() string { return p.column }

func (p *TimePart) Suffix(keys partition.Record) (string, error) {
	v, err := keyValue(keys, p.column)
	if err != nil {
		return "", err
	}

	t, ok := toTime(v)
	if !ok {
		return "", &InvalidPartitionValueError{Column: p.column, Value: v, Reason: "not a date or time"}
	}
	return t.UTC().Format(p.layout), nil
}

// Yearly partitions by year of the given column, e.g. orders_2024
func Yearly(column string) *Scheme { return Composite(Time(column, "2006")) }

// Monthly partitions by month of the given column, e.g. orders_2024_03
func Monthly(column string) *Scheme { return Composite(Time(column, "2006_01")) }

// Daily partitions by day of the given column, e.g. orders_2024_03_01
func Daily(column string) *Scheme { return Composite(Time(column, "2006_01_02")) }
