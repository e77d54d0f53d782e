// Package forwarder moves unforwarded accounting rows from the source store
// to the sink store and drives the notify/poll orchestration loop.
package forwarder

import (
	"context"
	"log/slog"
	"time"

	"github.com/edgeisp/acctforward/record"
)

// Source is what the cycle needs from the operational store.
type Source interface {
	FetchUnforwarded(ctx context.Context, limit int) ([]record.Raw, error)
	MarkForwarded(ctx context.Context, ids []int64) error
}

// Sink is what the cycle needs from the analytic store.
type Sink interface {
	WriteBatch(ctx context.Context, rows []record.Row) error
}

// Cycle forwards one batch per Run: fetch, normalize, write, then mark. Rows
// are marked forwarded only after the sink accepted the whole batch, so a
// failure anywhere leaves the cursor untouched and the batch is re-delivered.
type Cycle struct {
	Source    Source
	Sink      Sink
	BatchSize int
	SiteID    string
	Now       func() time.Time
	Log       *slog.Logger
}

// Run forwards at most one batch and returns the number of rows forwarded.
// A zero count with a nil error means the backlog is drained.
func (c *Cycle) Run(ctx context.Context) (int, error) {
	raws, err := c.Source.FetchUnforwarded(ctx, c.BatchSize)
	if err != nil {
		return 0, sourceErr(err)
	}
	if len(raws) == 0 {
		return 0, nil
	}

	now := c.Now()
	rows := make([]record.Row, len(raws))
	ids := make([]int64, len(raws))
	for i := range raws {
		rows[i] = record.Normalize(&raws[i], now, c.SiteID)
		ids[i] = raws[i].RadAcctID
	}

	if err := c.Sink.WriteBatch(ctx, rows); err != nil {
		return 0, sinkErr(err)
	}
	if err := c.Source.MarkForwarded(ctx, ids); err != nil {
		// The batch reached the sink; on this failure it stays fetchable and
		// is re-delivered until marking succeeds. Duplicates are absorbed by
		// the sink's acctuniqueid handling.
		return 0, sourceErr(err)
	}

	c.Log.Info("forwarded accounting records",
		slog.Int("count", len(rows)),
		slog.Int64("first", ids[0]),
		slog.Int64("last", ids[len(ids)-1]))
	return len(rows), nil
}
