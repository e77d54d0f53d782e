package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRecorder(t *testing.T) {
	start := time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)

	t.Run("Fresh recorder reports zero totals", func(t *testing.T) {
		snap := NewRecorder(start).Snapshot()

		assert.Equal(t, uint64(0), snap.TotalForwarded)
		assert.Equal(t, uint64(0), snap.TotalBatches)
		assert.Equal(t, uint64(0), snap.TotalErrors)
		assert.Equal(t, start, snap.StartedAt)
		assert.True(t, snap.LastForwardTime.IsZero())
	})

	t.Run("Batches accumulate records and advance last forward time", func(t *testing.T) {
		rec := NewRecorder(start)
		rec.Batch(500, start.Add(time.Second))
		rec.Batch(42, start.Add(2*time.Second))

		snap := rec.Snapshot()
		assert.Equal(t, uint64(542), snap.TotalForwarded)
		assert.Equal(t, uint64(2), snap.TotalBatches)
		assert.Equal(t, start.Add(2*time.Second), snap.LastForwardTime)
	})

	t.Run("Errors count separately from batches", func(t *testing.T) {
		rec := NewRecorder(start)
		rec.Error()
		rec.Error()
		rec.Batch(10, start.Add(time.Second))

		snap := rec.Snapshot()
		assert.Equal(t, uint64(2), snap.TotalErrors)
		assert.Equal(t, uint64(1), snap.TotalBatches)
	})
}
