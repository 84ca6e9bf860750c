package partition

import (
	"sort"
	"sync"
	"time"
)

// Operation is a kind of routed statement
type Operation string

// Possible values for Operation
const (
	OpInsert Operation = "insert"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
	OpSelect Operation = "select"
)

// CountByTable is a count of statements per physical table
type CountByTable map[string]int

// Stats is a snapshot of routing activity
type Stats struct {
	Statements CountByTable               `json:"statements"`
	Errors     CountByTable               `json:"errors"`
	ByOp       map[Operation]CountByTable `json:"by_op"`
	Prefetches int                        `json:"prefetches"`
	Duration   time.Duration              `json:"duration_ns"`
	Since      time.Time                  `json:"since"`
}

func newStats() *Stats {
	return &Stats{
		Statements: make(CountByTable),
		Errors:     make(CountByTable),
		ByOp:       make(map[Operation]CountByTable),
		Since:      time.Now(),
	}
}

// Tables returns the sorted names of all tables which have seen statements
func (s *Stats) Tables() []string {
	tables := make([]string, 0, len(s.Statements))
	for t := range s.Statements {
		tables = append(tables, t)
	}
	sort.Strings(tables)
	return tables
}

// Gauges converts these stats into named values for reporting, with totals, counts per operation and counts per
// table
func (s *Stats) Gauges() map[string]float64 {
	g := make(map[string]float64, len(s.Statements)+len(s.ByOp)+4)

	total, errs := 0, 0
	for t, n := range s.Statements {
		total += n
		g["partition.table_"+t] = float64(n)
	}
	for _, n := range s.Errors {
		errs += n
	}
	for op, counts := range s.ByOp {
		sum := 0
		for _, n := range counts {
			sum += n
		}
		g["partition."+string(op)] = float64(sum)
	}

	g["partition.statements"] = float64(total)
	g["partition.errors"] = float64(errs)
	g["partition.prefetches"] = float64(s.Prefetches)
	if total > 0 {
		g["partition.statement_avg_ms"] = float64(s.Duration/time.Duration(total)) / float64(time.Millisecond)
	}
	return g
}

// StatsCollector provides threadsafe stats collection
type StatsCollector struct {
	mutex sync.Mutex
	stats *Stats
}

// NewStatsCollector creates a new stats collector
func NewStatsCollector() *StatsCollector {
	return &StatsCollector{stats: newStats()}
}

// RecordStatement records a statement routed to the given table
func (c *StatsCollector) RecordStatement(op Operation, table Table, success bool, d time.Duration) {
	if c == nil {
		return
	}

	name := table.String()

	c.mutex.Lock()
	c.stats.Statements[name]++
	if !success {
		c.stats.Errors[name]++
	}
	if c.stats.ByOp[op] == nil {
		c.stats.ByOp[op] = make(CountByTable)
	}
	c.stats.ByOp[op][name]++
	c.stats.Duration += d
	c.mutex.Unlock()
}

// RecordPrefetch records a primary key prefetch
func (c *StatsCollector) RecordPrefetch() {
	if c == nil {
		return
	}

	c.mutex.Lock()
	c.stats.Prefetches++
	c.mutex.Unlock()
}

// Extract returns the stats for the period since the last call and resets them
func (c *StatsCollector) Extract() *Stats {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	s := c.stats
	c.stats = newStats()
	return s
}

// Snapshot returns a copy of the current stats without resetting them
func (c *StatsCollector) Snapshot() *Stats {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	s := &Stats{
		Statements: make(CountByTable, len(c.stats.Statements)),
		Errors:     make(CountByTable, len(c.stats.Errors)),
		ByOp:       make(map[Operation]CountByTable, len(c.stats.ByOp)),
		Prefetches: c.stats.Prefetches,
		Duration:   c.stats.Duration,
		Since:      c.stats.Since,
	}
	for t, n := range c.stats.Statements {
		s.Statements[t] = n
	}
	for t, n := range c.stats.Errors {
		s.Errors[t] = n
	}
	for op, counts := range c.stats.ByOp {
		s.ByOp[op] = make(CountByTable, len(counts))
		for t, n := range counts {
			s.ByOp[op][t] = n
		}
	}
	return s
}
