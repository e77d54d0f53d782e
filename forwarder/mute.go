package forwarder

import (
	"time"
)

// batchMute throttles repeated error logs by limiting count per interval, so
// a store outage does not flood the log sink once per second.
type batchMute struct {
	batchTime     time.Time
	resetInterval time.Duration
	ctr           int
	max           int
}

func newBatchMute(resetInterval time.Duration, max int) *batchMute {
	return &batchMute{
		batchTime:     time.Now().UTC(),
		resetInterval: resetInterval,
		max:           max,
	}
}

func (b *batchMute) increment(val int, t time.Time) (muted bool, skipped int) {

	if b.max == 0 || b.resetInterval == 0 {
		return muted, skipped
	}

	if b.ctr >= b.max {
		skipped = b.ctr - b.max
	}

	if t.Sub(b.batchTime) > b.resetInterval {
		b.ctr = 0
		b.batchTime = t
	}
	b.ctr += val

	return b.max > 0 && b.ctr > b.max, skipped
}

// Increment records a single error and reports whether muting applies.
func (b *batchMute) Increment() (muting bool, skipped int) {
	return b.increment(1, time.Now().UTC())
}
