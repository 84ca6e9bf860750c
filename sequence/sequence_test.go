package sequence_test

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/gomodule/redigo/redis"
	"github.com/nyaruka/partition/sequence"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGetter struct {
	names []any
	next  int64
	err   error
}

func (g *fakeGetter) GetContext(ctx context.Context, dest any, query string, args ...any) error {
	if g.err != nil {
		return g.err
	}
	g.names = append(g.names, args...)
	g.next++
	*(dest.(*int64)) = g.next
	return nil
}

func TestPostgres(t *testing.T) {
	ctx := context.Background()
	g := &fakeGetter{next: 100}
	seq := sequence.NewPostgres(g)

	id, err := seq.NextValue(ctx, "orders_id_seq")
	require.NoError(t, err)
	assert.Equal(t, int64(101), id)

	id, err = seq.NextValue(ctx, "orders_id_seq")
	require.NoError(t, err)
	assert.Equal(t, int64(102), id)
	assert.Equal(t, []any{"orders_id_seq", "orders_id_seq"}, g.names)

	g.err = errors.New("pq: relation \"orders_id_seq\" does not exist")
	_, err = seq.NextValue(ctx, "orders_id_seq")
	assert.Equal(t, g.err, err)
}

// in-memory connection which understands just enough commands for sequences
type fakeConn struct {
	mutex *sync.Mutex
	data  map[string]int64
}

var _ redis.ConnWithContext = (*fakeConn)(nil)

func (c *fakeConn) Close() error { return nil }
func (c *fakeConn) Err() error   { return nil }
func (c *fakeConn) Flush() error { return nil }

func (c *fakeConn) Send(string, ...any) error {
	return errors.New("pipelining not supported")
}

func (c *fakeConn) Receive() (any, error) {
	return nil, errors.New("pipelining not supported")
}

func (c *fakeConn) ReceiveContext(ctx context.Context) (any, error) {
	return c.Receive()
}

func (c *fakeConn) DoContext(ctx context.Context, cmd string, args ...any) (any, error) {
	return c.Do(cmd, args...)
}

func (c *fakeConn) Do(cmd string, args ...any) (any, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	switch strings.ToUpper(cmd) {
	case "":
		return nil, nil
	case "INCR":
		key := args[0].(string)
		c.data[key]++
		return c.data[key], nil
	case "EVALSHA":
		return nil, redis.Error("NOSCRIPT No matching script")
	case "EVAL":
		// only our seed script: [script, 1, key, value]
		key, value := args[2].(string), args[3].(int64)
		if c.data[key] < value {
			c.data[key] = value
		}
		return int64(1), nil
	}
	return nil, errors.Errorf("unsupported command %s", cmd)
}

func newFakePool() *redis.Pool {
	conn := &fakeConn{mutex: &sync.Mutex{}, data: make(map[string]int64)}
	return &redis.Pool{
		MaxIdle: 1,
		Dial:    func() (redis.Conn, error) { return conn, nil },
	}
}

func TestRedis(t *testing.T) {
	ctx := context.Background()
	seq := sequence.NewRedis(newFakePool())

	id, err := seq.NextValue(ctx, "orders_id_seq")
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)

	id, err = seq.NextValue(ctx, "orders_id_seq")
	require.NoError(t, err)
	assert.Equal(t, int64(2), id)

	// sequences are independent
	id, err = seq.NextValue(ctx, "events_id_seq")
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)

	// seeding moves sequences forward but never back
	require.NoError(t, seq.Seed(ctx, "orders_id_seq", 1000))
	id, err = seq.NextValue(ctx, "orders_id_seq")
	require.NoError(t, err)
	assert.Equal(t, int64(1001), id)

	require.NoError(t, seq.Seed(ctx, "orders_id_seq", 10))
	id, err = seq.NextValue(ctx, "orders_id_seq")
	require.NoError(t, err)
	assert.Equal(t, int64(1002), id)
}

func TestRedisUnreachable(t *testing.T) {
	rp := &redis.Pool{Dial: func() (redis.Conn, error) { return nil, errors.New("dial tcp: connection refused") }}
	seq := sequence.NewRedis(rp)

	_, err := seq.NextValue(context.Background(), "orders_id_seq")
	assert.EqualError(t, err, "dial tcp: connection refused")
}
