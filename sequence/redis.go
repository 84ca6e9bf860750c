package sequence

import (
	"context"
	"fmt"

	"github.com/gomodule/redigo/redis"
)

// Redis fetches values from counters in Redis. Counters must be seeded above any existing keys of the tables
// they are used for.
type Redis struct {
	rp     *redis.Pool
	prefix string
}

// NewRedis creates a new Redis sequence source, counters are stored in keys like seq:<name>
func NewRedis(rp *redis.Pool) *Redis {
	return &Redis{rp: rp, prefix: "seq"}
}

func (r *Redis) key(name string) string { return fmt.Sprintf("%s:%s", r.prefix, name) }

// NextValue returns the next value of the named sequence
func (r *Redis) NextValue(ctx context.Context, name string) (int64, error) {
	rc, err := r.rp.GetContext(ctx)
	if err != nil {
		return 0, err
	}
	defer rc.Close()

	return redis.Int64(redis.DoContext(rc, ctx, "INCR", r.key(name)))
}

// Seed sets the named sequence so that the next value returned is greater than the given value, it never
// moves a sequence backwards
func (r *Redis) Seed(ctx context.Context, name string, value int64) error {
	rc, err := r.rp.GetContext(ctx)
	if err != nil {
		return err
	}
	defer rc.Close()

	_, err = luaSeed.Do(rc, r.key(name), value)
	return err
}

var luaSeed = redis.NewScript(1, `-- KEYS: [SequenceKey] ARGV: [Value]
	local current = tonumber(redis.call("GET", KEYS[1]) or "0")
	if current < tonumber(ARGV[1]) then
		redis.call("SET", KEYS[1], ARGV[1])
	end
	return 1
`)
