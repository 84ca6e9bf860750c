package router

import (
	"context"

	"github.com/nyaruka/partition"
	"github.com/pkg/errors"
)

// fetches the primary key for a new record of the given model from its sequence. Only one attempt is made, a
// failure means nothing is inserted.
func (r *Router) prefetch(ctx context.Context, m *partition.Model) (int64, error) {
	if r.seq == nil {
		return 0, &partition.PrefetchError{Model: m.Name(), Sequence: m.Sequence(), Err: errors.New("no sequence source configured")}
	}

	id, err := r.seq.NextValue(ctx, m.Sequence())
	if err != nil {
		return 0, &partition.PrefetchError{Model: m.Name(), Sequence: m.Sequence(), Err: err}
	}

	r.stats.RecordPrefetch()
	r.log.Debug("prefetched primary key", "model", m.Name(), "sequence", m.Sequence(), "id", id)
	return id, nil
}
