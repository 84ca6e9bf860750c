package schemes

import (
	"fmt"
	"hash/crc32"

	"github.com/nyaruka/partition"
)

// HashPart is a suffix computed by taking a column value modulo a number of shards. Integer values are used
// directly, anything else is hashed with CRC32.
type HashPart struct {
	column string
	shards int64
	format string
}

// HashOf creates a hash part over the given number of shards
func HashOf(column string, shards int) *HashPart {
	if shards < 1 {
		panic("schemes: hash requires at least one shard")
	}

	var format string
	switch {
	case shards <= 10:
		format = "%01d"
	case shards <= 100:
		format = "%02d"
	case shards <= 1000:
		format = "%03d"
	default:
		format = "%04d"
	}

	return &HashPart{column: column, shards: int64(shards), format: format}
}

func (p *HashPart) Column() string { return p.column }

func (p *HashPart) Suffix(keys partition.Record) (string, error) {
	v, err := keyValue(keys, p.column)
	if err != nil {
		return "", err
	}

	var n uint64
	if i, ok := magnitude(v); ok {
		n = i
	} else if s, ok := toString(v); ok {
		n = uint64(crc32.ChecksumIEEE([]byte(s)))
	} else {
		return "", &InvalidPartitionValueError{Column: p.column, Value: v, Reason: "not an integer or string"}
	}

	return fmt.Sprintf(p.format, n%uint64(p.shards)), nil
}

// gets the absolute value of an integer value as a uint64, which can hold the magnitude of every int64
func magnitude(v any) (uint64, bool) {
	switch typed := driverValue(v).(type) {
	case uint64:
		return typed, true
	case uint:
		return uint64(typed), true
	}

	i, ok := toInt(v)
	if !ok {
		return 0, false
	}
	if i < 0 {
		return uint64(-(i + 1)) + 1, true
	}
	return uint64(i), true
}

// Hash partitions by a column value modulo the given number of shards, e.g. orders_07
func Hash(column string, shards int) *Scheme { return Composite(HashOf(column, shards)) }
