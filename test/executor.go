package test

import (
	"context"
	"sync"

	"github.com/nyaruka/partition"
	"github.com/nyaruka/partition/engine"
)

// MockExecutor is a mocked executor which records statements rather than running them against a database
type MockExecutor struct {
	mutex      sync.RWMutex
	statements []*engine.Statement

	nextID   int64
	affected int64
	rows     []partition.Record
	err      error
}

// NewMockExecutor returns a new mock executor which generates ids from 1 and reports one row affected
func NewMockExecutor() *MockExecutor {
	return &MockExecutor{nextID: 1, affected: 1}
}

// Insert records the given insert and returns the next generated id if it has a returning column
func (me *MockExecutor) Insert(ctx context.Context, s *engine.Statement) (any, error) {
	me.mutex.Lock()
	defer me.mutex.Unlock()

	me.statements = append(me.statements, s)
	if me.err != nil {
		return nil, me.err
	}
	if s.Returning == "" {
		return nil, nil
	}

	id := me.nextID
	me.nextID++
	return id, nil
}

// Exec records the given update or delete
func (me *MockExecutor) Exec(ctx context.Context, s *engine.Statement) (int64, error) {
	me.mutex.Lock()
	defer me.mutex.Unlock()

	me.statements = append(me.statements, s)
	if me.err != nil {
		return 0, me.err
	}
	return me.affected, nil
}

// Query records the given select and returns the canned rows
func (me *MockExecutor) Query(ctx context.Context, s *engine.Statement) ([]partition.Record, error) {
	me.mutex.Lock()
	defer me.mutex.Unlock()

	me.statements = append(me.statements, s)
	if me.err != nil {
		return nil, me.err
	}
	return me.rows, nil
}

// Select records the given select, dest is left as is
func (me *MockExecutor) Select(ctx context.Context, dest any, s *engine.Statement) error {
	me.mutex.Lock()
	defer me.mutex.Unlock()

	me.statements = append(me.statements, s)
	return me.err
}

// SetError makes all following statements fail with the given error
func (me *MockExecutor) SetError(err error) {
	me.mutex.Lock()
	defer me.mutex.Unlock()

	me.err = err
}

// SetNextID sets the next id generated for inserts
func (me *MockExecutor) SetNextID(id int64) {
	me.mutex.Lock()
	defer me.mutex.Unlock()

	me.nextID = id
}

// SetAffected sets the number of rows updates and deletes report as affected
func (me *MockExecutor) SetAffected(n int64) {
	me.mutex.Lock()
	defer me.mutex.Unlock()

	me.affected = n
}

// SetRows sets the rows returned by queries
func (me *MockExecutor) SetRows(rows ...partition.Record) {
	me.mutex.Lock()
	defer me.mutex.Unlock()

	me.rows = rows
}

// Statements returns the statements executed so far
func (me *MockExecutor) Statements() []*engine.Statement {
	me.mutex.RLock()
	defer me.mutex.RUnlock()

	return append([]*engine.Statement(nil), me.statements...)
}

// LastStatement returns the last statement executed or nil if there have been none
func (me *MockExecutor) LastStatement() *engine.Statement {
	me.mutex.RLock()
	defer me.mutex.RUnlock()

	if len(me.statements) == 0 {
		return nil
	}
	return me.statements[len(me.statements)-1]
}

// Reset clears recorded statements
func (me *MockExecutor) Reset() {
	me.mutex.Lock()
	defer me.mutex.Unlock()

	me.statements = nil
}
