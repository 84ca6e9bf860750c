package runtime

import (
	"context"
	"log/slog"
	"time"

	"github.com/gomodule/redigo/redis"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/nyaruka/partition"
	"github.com/nyaruka/partition/engine"
	"github.com/nyaruka/partition/registry"
	"github.com/nyaruka/partition/router"
	"github.com/nyaruka/partition/sequence"
	"github.com/pkg/errors"
)

const sqlSequenceLastValue = `SELECT COALESCE(pg_sequence_last_value($1::regclass), 0)`

// Runtime holds the connections and services shared by everything in the daemon
type Runtime struct {
	Config     *partition.Config
	DB         *sqlx.DB
	ReadonlyDB *sqlx.DB
	RP         *redis.Pool
	Columns    *engine.ColumnCache
	Stats      *partition.StatsCollector
	Models     *registry.Registry
	Router     *router.Router

	redisSequences *sequence.Redis
}

// NewRuntime creates a new runtime from the given config. Connections are opened lazily.
func NewRuntime(cfg *partition.Config) (*Runtime, error) {
	rt := &Runtime{Config: cfg, Stats: partition.NewStatsCollector()}

	var err error

	rt.DB, err = sqlx.Open("postgres", cfg.DB)
	if err != nil {
		return nil, errors.Wrap(err, "error creating Postgres connection pool")
	}
	rt.DB.SetMaxIdleConns(4)
	rt.DB.SetMaxOpenConns(16)

	if cfg.ReadonlyDB != "" {
		rt.ReadonlyDB, err = sqlx.Open("postgres", cfg.ReadonlyDB)
		if err != nil {
			return nil, errors.Wrap(err, "error creating readonly Postgres connection pool")
		}
		rt.ReadonlyDB.SetMaxIdleConns(4)
		rt.ReadonlyDB.SetMaxOpenConns(16)
	}

	rt.RP = &redis.Pool{
		Wait:        true,              // makes callers wait for a connection
		MaxActive:   8,                 // only open this many concurrent connections at once
		MaxIdle:     4,                 // only keep up to this many idle
		IdleTimeout: 240 * time.Second, // how long to wait before reaping a connection
		DialContext: func(ctx context.Context) (redis.Conn, error) {
			return redis.DialURLContext(ctx, cfg.Redis)
		},
	}

	if cfg.ModelsFile != "" {
		rt.Models, err = registry.Load(cfg.ModelsFile)
		if err != nil {
			return nil, err
		}
	} else {
		rt.Models = registry.New()
	}

	opts := []router.Option{
		router.WithStats(rt.Stats),
		router.WithLogger(slog.With("comp", "router")),
	}

	switch cfg.SequenceSource {
	case "redis":
		rt.redisSequences = sequence.NewRedis(rt.RP)
		opts = append(opts, router.WithSequencer(rt.redisSequences))
	default:
		opts = append(opts, router.WithSequencer(sequence.NewPostgres(rt.DB)))
	}

	if cfg.ColumnCacheTTL > 0 {
		rt.Columns = engine.NewColumnCache(rt.DB, time.Duration(cfg.ColumnCacheTTL)*time.Second)
		if cfg.SharedColumns {
			rt.Columns.WithShared(rt.RP)
		}
		opts = append(opts, router.WithColumns(rt.Columns))
	}

	if rt.ReadonlyDB != nil {
		opts = append(opts, router.WithReader(engine.NewDB(rt.ReadonlyDB)))
	}

	rt.Router = router.New(engine.NewDB(rt.DB), opts...)

	slog.Info("runtime created", "comp", "runtime", "models", rt.Models.Names(), "sequences", cfg.SequenceSource)
	return rt, nil
}

// SeedSequences moves the Redis counters of prefetching models past the last values of their Postgres
// sequences, so that prefetched keys never collide with existing rows. Does nothing unless keys come from Redis.
func (rt *Runtime) SeedSequences(ctx context.Context) error {
	if rt.redisSequences == nil {
		return nil
	}

	for _, name := range rt.Models.Names() {
		m, _ := rt.Models.Get(name)
		if !m.Prefetch() {
			continue
		}

		var last int64
		if err := rt.DB.GetContext(ctx, &last, sqlSequenceLastValue, m.Sequence()); err != nil {
			return errors.Wrapf(err, "error reading sequence %s", m.Sequence())
		}
		if err := rt.redisSequences.Seed(ctx, m.Sequence(), last); err != nil {
			return errors.Wrapf(err, "error seeding sequence %s", m.Sequence())
		}

		slog.Info("seeded sequence", "comp", "runtime", "model", m.Name(), "sequence", m.Sequence(), "value", last)
	}
	return nil
}

// Health checks our connections, returning a description of each problem found
func (rt *Runtime) Health(ctx context.Context) []string {
	var problems []string

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if rt.DB != nil {
		if err := rt.DB.PingContext(ctx); err != nil {
			problems = append(problems, "db: "+err.Error())
		}
	}
	if rt.ReadonlyDB != nil {
		if err := rt.ReadonlyDB.PingContext(ctx); err != nil {
			problems = append(problems, "readonly db: "+err.Error())
		}
	}

	if rt.RP != nil && rt.Config.SequenceSource == "redis" {
		rc, err := rt.RP.GetContext(ctx)
		if err == nil {
			_, err = redis.DoContext(rc, ctx, "PING")
			rc.Close()
		}
		if err != nil {
			problems = append(problems, "redis: "+err.Error())
		}
	}

	return problems
}

// Close closes all our connections
func (rt *Runtime) Close() {
	rt.DB.Close()
	if rt.ReadonlyDB != nil {
		rt.ReadonlyDB.Close()
	}
	rt.RP.Close()
}
