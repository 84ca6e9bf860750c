package engine

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/gomodule/redigo/redis"
	"github.com/nyaruka/partition"
	"github.com/nyaruka/redisx"
	"github.com/patrickmn/go-cache"
	"github.com/pkg/errors"
)

const sqlSelectColumns = `
  SELECT column_name
    FROM information_schema.columns
   WHERE table_schema = COALESCE(NULLIF($1, ''), current_schema()) AND table_name = $2
ORDER BY ordinal_position`

// ColumnCache looks up the columns of tables from the database, caching them for a period
type ColumnCache struct {
	q     Queryer
	cache *cache.Cache

	rp     *redis.Pool
	shared *redisx.IntervalHash
}

// NewColumnCache creates a new column cache with the given expiration
func NewColumnCache(q Queryer, ttl time.Duration) *ColumnCache {
	return &ColumnCache{q: q, cache: cache.New(ttl, ttl*2)}
}

// WithShared makes this cache share looked up columns with other instances through Redis, so that only one
// instance per hour has to query the database for each table
func (c *ColumnCache) WithShared(rp *redis.Pool) *ColumnCache {
	c.rp = rp
	c.shared = redisx.NewIntervalHash("partition:columns", time.Hour, 2)
	return c
}

// Columns returns the columns of the given table in ordinal order, or an empty slice if the table doesn't exist
func (c *ColumnCache) Columns(ctx context.Context, table partition.Table) ([]string, error) {
	key := table.String()
	if cached, found := c.cache.Get(key); found {
		return cached.([]string), nil
	}

	if cols := c.getShared(ctx, key); cols != nil {
		c.cache.Set(key, cols, cache.DefaultExpiration)
		return cols, nil
	}

	cols := make([]string, 0, 10)
	if err := c.q.SelectContext(ctx, &cols, sqlSelectColumns, table.Schema, table.Name); err != nil {
		return nil, errors.Wrapf(err, "error looking up columns of %s", table)
	}

	c.cache.Set(key, cols, cache.DefaultExpiration)
	c.setShared(ctx, key, cols)
	return cols, nil
}

// Forget removes any locally cached columns for the given table, e.g. after a migration
func (c *ColumnCache) Forget(table partition.Table) {
	c.cache.Delete(table.String())
}

// the shared tier is best effort, errors just mean we go to the database
func (c *ColumnCache) getShared(ctx context.Context, key string) []string {
	if c.shared == nil {
		return nil
	}

	rc, err := c.rp.GetContext(ctx)
	if err != nil {
		slog.Warn("unable to get redis connection for column cache", "comp", "columns", "error", err)
		return nil
	}
	defer rc.Close()

	value, err := c.shared.Get(rc, key)
	if err != nil {
		slog.Warn("error reading shared column cache", "comp", "columns", "table", key, "error", err)
		return nil
	}
	if value == "" {
		return nil
	}
	return strings.Split(value, ",")
}

func (c *ColumnCache) setShared(ctx context.Context, key string, cols []string) {
	if c.shared == nil || len(cols) == 0 {
		return
	}

	rc, err := c.rp.GetContext(ctx)
	if err != nil {
		slog.Warn("unable to get redis connection for column cache", "comp", "columns", "error", err)
		return
	}
	defer rc.Close()

	if err := c.shared.Set(rc, key, strings.Join(cols, ",")); err != nil {
		slog.Warn("error writing shared column cache", "comp", "columns", "table", key, "error", err)
	}
}
