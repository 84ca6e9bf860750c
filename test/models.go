package test

import (
	"github.com/nyaruka/partition"
	"github.com/nyaruka/partition/schemes"
)

// OrdersModel returns a model of orders partitioned by the month they were placed in
func OrdersModel(opts ...partition.ModelOption) *partition.Model {
	opts = append([]partition.ModelOption{
		partition.WithColumns("id", "placed_at", "status", "total"),
		partition.WithDefault("status", "P"),
		partition.WithPartitioning(schemes.Monthly("placed_at"), "placed_at"),
	}, opts...)
	return partition.NewModel("orders", "id", opts...)
}

// RegionalOrdersModel returns a model of orders partitioned by region then month, with prefetched ids
func RegionalOrdersModel(opts ...partition.ModelOption) *partition.Model {
	scheme := schemes.Composite(schemes.ValueOf("region"), schemes.Time("date", "200601"))
	opts = append([]partition.ModelOption{
		partition.WithColumns("id", "region", "date", "status"),
		partition.WithDefault("region", "us"),
		partition.WithPartitioning(scheme, scheme.Keys()...),
		partition.WithPrefetch(),
	}, opts...)
	return partition.NewModel("orders", "id", opts...)
}

// EventsModel returns an unpartitioned model with no declared columns
func EventsModel(opts ...partition.ModelOption) *partition.Model {
	return partition.NewModel("events", "id", opts...)
}
