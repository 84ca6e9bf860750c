package test

import (
	"context"
	"sync"
)

// MockSequencer is a mocked sequence source which counts up from a starting value
type MockSequencer struct {
	mutex sync.Mutex
	calls []string
	next  int64
	err   error
}

// NewMockSequencer returns a new mock sequencer whose first value will be the given one
func NewMockSequencer(first int64) *MockSequencer {
	return &MockSequencer{next: first}
}

// NextValue returns the next value, or the configured error
func (ms *MockSequencer) NextValue(ctx context.Context, name string) (int64, error) {
	ms.mutex.Lock()
	defer ms.mutex.Unlock()

	ms.calls = append(ms.calls, name)
	if ms.err != nil {
		return 0, ms.err
	}

	v := ms.next
	ms.next++
	return v, nil
}

// SetError makes all following calls fail with the given error
func (ms *MockSequencer) SetError(err error) {
	ms.mutex.Lock()
	defer ms.mutex.Unlock()

	ms.err = err
}

// Calls returns the names of the sequences values have been requested from
func (ms *MockSequencer) Calls() []string {
	ms.mutex.Lock()
	defer ms.mutex.Unlock()

	return append([]string(nil), ms.calls...)
}
