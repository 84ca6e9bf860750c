package router_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/nyaruka/partition"
	"github.com/nyaruka/partition/router"
	"github.com/nyaruka/partition/test"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/suite"
)

type columnSource map[string][]string

func (s columnSource) Columns(ctx context.Context, table partition.Table) ([]string, error) {
	if cols, ok := s[table.String()]; ok {
		return cols, nil
	}
	return nil, errors.Errorf("no such table %s", table)
}

type RouterTestSuite struct {
	suite.Suite
	ctx   context.Context
	exec  *test.MockExecutor
	seq   *test.MockSequencer
	stats *partition.StatsCollector
	r     *router.Router
}

func (ts *RouterTestSuite) SetupTest() {
	ts.ctx = context.Background()
	ts.exec = test.NewMockExecutor()
	ts.seq = test.NewMockSequencer(1001)
	ts.stats = partition.NewStatsCollector()
	ts.r = router.New(ts.exec,
		router.WithSequencer(ts.seq),
		router.WithStats(ts.stats),
		router.WithColumns(columnSource{"events": {"id", "kind", "payload"}}),
	)
}

func (ts *RouterTestSuite) assertStatement(sql string, args ...any) {
	s := ts.exec.LastStatement()
	if ts.NotNil(s, "expected a statement") {
		ts.Equal(sql, s.SQL)
		if len(args) == 0 {
			ts.Empty(s.Args)
		} else {
			ts.Equal(args, s.Args)
		}
	}
}

func (ts *RouterTestSuite) TestCreate() {
	orders := test.OrdersModel()
	placed := time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC)

	id, err := ts.r.Create(ts.ctx, orders, partition.NewRecord("placed_at", placed, "status", "S", "total", 10))
	ts.NoError(err)
	ts.Equal(int64(1), id)
	ts.assertStatement(`INSERT INTO "orders_2024_03"("placed_at", "status", "total") VALUES($1, $2, $3) RETURNING "id"`, placed, "S", 10)

	// columns equal to their defaults are left to the database
	id, err = ts.r.Create(ts.ctx, orders, partition.NewRecord("placed_at", placed, "status", "P", "total", 12))
	ts.NoError(err)
	ts.Equal(int64(2), id)
	ts.assertStatement(`INSERT INTO "orders_2024_03"("placed_at", "total") VALUES($1, $2) RETURNING "id"`, placed, 12)

	// a supplied primary key is inserted and returned
	id, err = ts.r.Create(ts.ctx, orders, partition.NewRecord("id", 500, "placed_at", "2024-04-02"))
	ts.NoError(err)
	ts.Equal(500, id)
	ts.assertStatement(`INSERT INTO "orders_2024_04"("id", "placed_at") VALUES($1, $2) RETURNING "id"`, 500, "2024-04-02")

	// columns the model doesn't declare are dropped
	_, err = ts.r.Create(ts.ctx, orders, partition.NewRecord("placed_at", placed, "notes", "fragile"))
	ts.NoError(err)
	ts.assertStatement(`INSERT INTO "orders_2024_03"("placed_at") VALUES($1) RETURNING "id"`, placed)

	ts.Len(ts.seq.Calls(), 0)
	ts.Equal(4, ts.stats.Snapshot().ByOp[partition.OpInsert]["orders_2024_03"]+ts.stats.Snapshot().ByOp[partition.OpInsert]["orders_2024_04"])
}

func (ts *RouterTestSuite) TestCreateWithNullPrimaryKey() {
	// a null key is left for the database to generate
	id, err := ts.r.Create(ts.ctx, test.OrdersModel(), partition.NewRecord("id", nil, "placed_at", "2024-03-01"))
	ts.NoError(err)
	ts.Equal(int64(1), id)
	ts.assertStatement(`INSERT INTO "orders_2024_03"("placed_at") VALUES($1) RETURNING "id"`, "2024-03-01")
	ts.Len(ts.seq.Calls(), 0)

	// or prefetched if the model prefetches
	id, err = ts.r.Create(ts.ctx, test.RegionalOrdersModel(), partition.NewRecord("id", nil, "region", "us", "date", "2024-01-15"))
	ts.NoError(err)
	ts.Equal(int64(1001), id)
	ts.assertStatement(`INSERT INTO "orders_us_202401"("id", "region", "date") VALUES($1, $2, $3) RETURNING "id"`, int64(1001), "us", "2024-01-15")
}

func (ts *RouterTestSuite) TestCreateComparesDefaultsAsDriverValues() {
	orders := test.OrdersModel(partition.WithDefault("total", 0))

	_, err := ts.r.Create(ts.ctx, orders, partition.NewRecord("placed_at", "2024-03-01", "total", int64(0)))
	ts.NoError(err)
	ts.assertStatement(`INSERT INTO "orders_2024_03"("placed_at") VALUES($1) RETURNING "id"`, "2024-03-01")
}

func (ts *RouterTestSuite) TestCreateWithPrefetch() {
	orders := test.RegionalOrdersModel()

	id, err := ts.r.Create(ts.ctx, orders, partition.NewRecord("region", "us", "date", "2024-01-15"))
	ts.NoError(err)
	ts.Equal(int64(1001), id)
	ts.Equal([]string{"orders_id_seq"}, ts.seq.Calls())

	// region is included even though it equals its default because it's a partition key
	ts.assertStatement(`INSERT INTO "orders_us_202401"("region", "date", "id") VALUES($1, $2, $3) RETURNING "id"`, "us", "2024-01-15", int64(1001))

	id, err = ts.r.Create(ts.ctx, orders, partition.NewRecord("region", "eu", "date", "2024-02-01", "status", "S"))
	ts.NoError(err)
	ts.Equal(int64(1002), id)
	ts.assertStatement(`INSERT INTO "orders_eu_202402"("region", "date", "status", "id") VALUES($1, $2, $3, $4) RETURNING "id"`, "eu", "2024-02-01", "S", int64(1002))

	// no prefetch if the record already has a key
	id, err = ts.r.Create(ts.ctx, orders, partition.NewRecord("id", int64(7), "region", "eu", "date", "2024-02-01"))
	ts.NoError(err)
	ts.Equal(int64(7), id)
	ts.Len(ts.seq.Calls(), 2)
	ts.Equal(2, ts.stats.Snapshot().Prefetches)
}

func (ts *RouterTestSuite) TestCreateWithMissingPartitionKey() {
	orders := test.RegionalOrdersModel()

	for _, rec := range []partition.Record{
		partition.NewRecord("date", "2024-01-15"),
		partition.NewRecord("region", nil, "date", "2024-01-15"),
		partition.NewRecord("region", "us"),
	} {
		_, err := ts.r.Create(ts.ctx, orders, rec)
		ts.ErrorIs(err, partition.ErrMissingPartitionKey)

		var keyErr *partition.MissingPartitionKeyError
		ts.ErrorAs(err, &keyErr)
		ts.Equal("orders", keyErr.Model)
	}

	// nothing fetched or executed
	ts.Len(ts.seq.Calls(), 0)
	ts.Len(ts.exec.Statements(), 0)
}

func (ts *RouterTestSuite) TestCreateWithInvalidPartitionValue() {
	_, err := ts.r.Create(ts.ctx, test.OrdersModel(), partition.NewRecord("placed_at", "soon"))
	ts.ErrorIs(err, partition.ErrInvalidPartitionValue)
	ts.Len(ts.exec.Statements(), 0)
}

func (ts *RouterTestSuite) TestCreateWithPrefetchFailure() {
	orders := test.RegionalOrdersModel()
	ts.seq.SetError(errors.New("connection refused"))

	_, err := ts.r.Create(ts.ctx, orders, partition.NewRecord("region", "us", "date", "2024-01-15"))
	ts.EqualError(err, `unable to prefetch primary key for model "orders" from sequence "orders_id_seq": connection refused`)
	ts.ErrorIs(err, partition.ErrPrefetchFailed)

	var prefetchErr *partition.PrefetchError
	ts.ErrorAs(err, &prefetchErr)
	ts.Equal("orders_id_seq", prefetchErr.Sequence)

	// one attempt, no insert
	ts.Len(ts.seq.Calls(), 1)
	ts.Len(ts.exec.Statements(), 0)

	// a router without a sequence source can't prefetch at all
	r := router.New(ts.exec)
	_, err = r.Create(ts.ctx, orders, partition.NewRecord("region", "us", "date", "2024-01-15"))
	ts.ErrorIs(err, partition.ErrPrefetchFailed)
	ts.Len(ts.exec.Statements(), 0)
}

func (ts *RouterTestSuite) TestCreateWithDatabaseError() {
	dbErr := errors.New(`pq: relation "orders_us_202401" does not exist`)
	ts.exec.SetError(dbErr)

	_, err := ts.r.Create(ts.ctx, test.RegionalOrdersModel(), partition.NewRecord("region", "us", "date", "2024-01-15"))
	ts.Equal(dbErr, err)
	ts.Len(ts.seq.Calls(), 1)
	ts.Equal(1, ts.stats.Snapshot().Errors["orders_us_202401"])
}

func (ts *RouterTestSuite) TestCreateUnpartitioned() {
	events := test.EventsModel()

	// columns come from the column source
	id, err := ts.r.Create(ts.ctx, events, partition.NewRecord("kind", "opened", "extra", true))
	ts.NoError(err)
	ts.Equal(int64(1), id)
	ts.assertStatement(`INSERT INTO "events"("kind") VALUES($1) RETURNING "id"`, "opened")

	_, err = ts.r.Create(ts.ctx, events, partition.Record{})
	ts.NoError(err)
	ts.assertStatement(`INSERT INTO "events" DEFAULT VALUES RETURNING "id"`)

	// column lookup errors are returned
	_, err = ts.r.Create(ts.ctx, partition.NewModel("audits", "id"), partition.NewRecord("kind", "opened"))
	ts.EqualError(err, "no such table audits")

	// without a column source everything is inserted
	r := router.New(ts.exec)
	_, err = r.Create(ts.ctx, events, partition.NewRecord("kind", "opened", "extra", true))
	ts.NoError(err)
	ts.assertStatement(`INSERT INTO "events"("kind", "extra") VALUES($1, $2) RETURNING "id"`, "opened", true)
}

func (ts *RouterTestSuite) TestUpdate() {
	orders := test.RegionalOrdersModel()
	current := partition.NewRecord("id", 7, "region", "us", "date", "2024-01-15", "status", "P")

	n, err := ts.r.Update(ts.ctx, orders, current, partition.NewRecord("status", "S"))
	ts.NoError(err)
	ts.Equal(int64(1), n)
	ts.assertStatement(`UPDATE "orders_us_202401" SET "status" = $1 WHERE "id" = $2`, "S", 7)

	// changing a key within the same partition is fine
	_, err = ts.r.Update(ts.ctx, orders, current, partition.NewRecord("date", "2024-01-20"))
	ts.NoError(err)
	ts.assertStatement(`UPDATE "orders_us_202401" SET "date" = $1 WHERE "id" = $2`, "2024-01-20", 7)

	// changing the primary key still targets the current row
	_, err = ts.r.Update(ts.ctx, orders, current, partition.NewRecord("id", 9, "status", "S"))
	ts.NoError(err)
	ts.assertStatement(`UPDATE "orders_us_202401" SET "id" = $1, "status" = $2 WHERE "id" = $3`, 9, "S", 7)

	// undeclared columns are dropped, which can leave nothing to do
	ts.exec.Reset()
	n, err = ts.r.Update(ts.ctx, orders, current, partition.NewRecord("notes", "fragile"))
	ts.NoError(err)
	ts.Equal(int64(0), n)
	ts.Len(ts.exec.Statements(), 0)

	n, err = ts.r.Update(ts.ctx, orders, current, nil)
	ts.NoError(err)
	ts.Equal(int64(0), n)
	ts.Len(ts.exec.Statements(), 0)
}

func (ts *RouterTestSuite) TestUpdateErrors() {
	orders := test.RegionalOrdersModel()
	current := partition.NewRecord("id", 7, "region", "us", "date", "2024-01-15", "status", "P")
	changes := partition.NewRecord("status", "S")

	// moving a record between partitions isn't supported
	_, err := ts.r.Update(ts.ctx, orders, current, partition.NewRecord("date", "2024-02-01"))
	ts.ErrorIs(err, partition.ErrPartitionChanged)
	ts.EqualError(err, "can't move orders 7 from orders_us_202401 to orders_us_202402: update changes record partition")

	_, err = ts.r.Update(ts.ctx, orders, current, partition.NewRecord("region", nil))
	ts.ErrorIs(err, partition.ErrMissingPartitionKey)

	_, err = ts.r.Update(ts.ctx, orders, current.Without("id"), changes)
	ts.ErrorIs(err, partition.ErrMissingPrimaryKey)

	_, err = ts.r.Update(ts.ctx, partition.NewModel("logs", ""), current, changes)
	ts.ErrorIs(err, partition.ErrMissingPrimaryKey)

	ts.Len(ts.exec.Statements(), 0)

	// database errors come back as is and leave the given records untouched
	dbErr := errors.New("pq: deadlock detected")
	ts.exec.SetError(dbErr)

	_, err = ts.r.Update(ts.ctx, orders, current, changes)
	ts.Equal(dbErr, err)
	ts.Equal(partition.NewRecord("id", 7, "region", "us", "date", "2024-01-15", "status", "P"), current)
	ts.Equal(partition.NewRecord("status", "S"), changes)

	// as is the model, which still has its logical table
	ts.Equal(partition.Table{Name: "orders"}, orders.Table())
	table, err := orders.Resolve(current)
	ts.NoError(err)
	ts.Equal(partition.Table{Name: "orders_us_202401"}, table)

	// and the next update is built from the same state
	ts.exec.SetError(nil)
	_, err = ts.r.Update(ts.ctx, orders, current, changes)
	ts.NoError(err)
	ts.assertStatement(`UPDATE "orders_us_202401" SET "status" = $1 WHERE "id" = $2`, "S", 7)
}

func (ts *RouterTestSuite) TestDelete() {
	orders := test.RegionalOrdersModel()

	n, err := ts.r.Delete(ts.ctx, orders, partition.NewRecord("id", 3, "region", "us", "date", "2024-01-15", "status", "S"))
	ts.NoError(err)
	ts.Equal(int64(1), n)
	ts.assertStatement(`DELETE FROM "orders_us_202401" WHERE "id" = $1`, 3)

	ts.exec.SetAffected(0)
	n, err = ts.r.Delete(ts.ctx, test.EventsModel(), partition.NewRecord("id", 4))
	ts.NoError(err)
	ts.Equal(int64(0), n)
	ts.assertStatement(`DELETE FROM "events" WHERE "id" = $1`, 4)

	ts.exec.Reset()
	_, err = ts.r.Delete(ts.ctx, orders, partition.NewRecord("id", 3, "date", "2024-01-15"))
	ts.ErrorIs(err, partition.ErrMissingPartitionKey)

	_, err = ts.r.Delete(ts.ctx, orders, partition.NewRecord("region", "us", "date", "2024-01-15"))
	ts.ErrorIs(err, partition.ErrMissingPrimaryKey)
	ts.Len(ts.exec.Statements(), 0)

	dbErr := errors.New("pq: permission denied")
	ts.exec.SetError(dbErr)
	_, err = ts.r.Delete(ts.ctx, orders, partition.NewRecord("id", 3, "region", "us", "date", "2024-01-15"))
	ts.Equal(dbErr, err)
}

func (ts *RouterTestSuite) TestMonthlyOrders() {
	orders := test.OrdersModel()
	march := time.Date(2024, 3, 14, 9, 0, 0, 0, time.UTC)
	april := time.Date(2024, 4, 2, 17, 45, 0, 0, time.UTC)

	id1, err := ts.r.Create(ts.ctx, orders, partition.NewRecord("placed_at", march, "total", 25))
	ts.NoError(err)
	ts.assertStatement(`INSERT INTO "orders_2024_03"("placed_at", "total") VALUES($1, $2) RETURNING "id"`, march, 25)

	_, err = ts.r.Create(ts.ctx, orders, partition.NewRecord("placed_at", april, "total", 40))
	ts.NoError(err)
	ts.assertStatement(`INSERT INTO "orders_2024_04"("placed_at", "total") VALUES($1, $2) RETURNING "id"`, april, 40)

	// updating the march order stays in its partition
	current := partition.NewRecord("id", id1, "placed_at", march, "status", "P", "total", 25)
	_, err = ts.r.Update(ts.ctx, orders, current, partition.NewRecord("status", "S"))
	ts.NoError(err)
	ts.assertStatement(`UPDATE "orders_2024_03" SET "status" = $1 WHERE "id" = $2`, "S", int64(1))

	rel, err := ts.r.Scope(orders, partition.NewRecord("placed_at", march))
	ts.NoError(err)
	_, err = rel.All(ts.ctx)
	ts.NoError(err)
	ts.assertStatement(`SELECT "orders_2024_03".* FROM "orders_2024_03"`)

	ts.Equal([]string{"orders_2024_03", "orders_2024_04"}, ts.stats.Snapshot().Tables())
}

func (ts *RouterTestSuite) TestConcurrentCreates() {
	orders := test.RegionalOrdersModel()

	wg := &sync.WaitGroup{}
	ids := make([]any, 24)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			date := fmt.Sprintf("2024-%02d-01", i%12+1)
			id, err := ts.r.Create(ts.ctx, orders, partition.NewRecord("region", "us", "date", date))
			ts.NoError(err)
			ids[i] = id
		}(i)
	}
	wg.Wait()

	// every insert got its own key
	seen := make(map[any]bool)
	for _, id := range ids {
		ts.False(seen[id], "duplicate id %v", id)
		seen[id] = true
	}

	stats := ts.stats.Snapshot()
	ts.Equal(24, stats.Prefetches)
	ts.Len(stats.Tables(), 12)
	for _, s := range ts.exec.Statements() {
		// the partition matches the date bound in the statement
		date := s.Args[1].(string)
		ts.Contains(s.SQL, fmt.Sprintf(`"orders_us_2024%s"`, date[5:7]))
	}
}

func TestRouter(t *testing.T) {
	suite.Run(t, new(RouterTestSuite))
}
