package partition

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrMissingPartitionKey is returned when a record lacks a value for one of its model's partition keys
	ErrMissingPartitionKey = errors.New("missing partition key")

	// ErrInvalidPartitionValue is returned when a partition key value can't be mapped to a partition
	ErrInvalidPartitionValue = errors.New("invalid partition key value")

	// ErrPrefetchFailed is returned when a primary key couldn't be fetched ahead of an insert
	ErrPrefetchFailed = errors.New("primary key prefetch failed")

	// ErrMissingPrimaryKey is returned when an update or delete is attempted on a record without a primary key
	ErrMissingPrimaryKey = errors.New("missing primary key")

	// ErrPartitionChanged is returned when an update would move a record to a different partition
	ErrPartitionChanged = errors.New("update changes record partition")

	// ErrUnknownColumn is returned when a query refers to a column its model doesn't have
	ErrUnknownColumn = errors.New("unknown column")

	// ErrUnknownModel is returned when looking up a model which hasn't been registered
	ErrUnknownModel = errors.New("unknown model")
)

// MissingPartitionKeyError is returned when resolving a partition for a record which has no value for a key
type MissingPartitionKeyError struct {
	Model  string
	Column string
}

func (e *MissingPartitionKeyError) Error() string {
	return fmt.Sprintf("missing value for partition key %q of model %q", e.Column, e.Model)
}

func (e *MissingPartitionKeyError) Is(target error) bool { return target == ErrMissingPartitionKey }

// PrefetchError is returned when the sequence used to prefetch primary keys can't be reached
type PrefetchError struct {
	Model    string
	Sequence string
	Err      error
}

func (e *PrefetchError) Error() string {
	return fmt.Sprintf("unable to prefetch primary key for model %q from sequence %q: %s", e.Model, e.Sequence, e.Err)
}

func (e *PrefetchError) Is(target error) bool { return target == ErrPrefetchFailed }
func (e *PrefetchError) Unwrap() error        { return e.Err }
