package source

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"

	"github.com/edgeisp/acctforward/config"
)

func testStore(notify chan *pq.Notification) *Store {
	return &Store{
		log:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		notify: notify,
	}
}

func TestWaitNotifications(t *testing.T) {
	t.Run("Returns zero on timeout", func(t *testing.T) {
		s := testStore(make(chan *pq.Notification, 1))

		start := time.Now()
		n := s.WaitNotifications(context.Background(), 10*time.Millisecond)

		assert.Equal(t, 0, n)
		assert.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)
	})

	t.Run("Drains all queued notifications after the first", func(t *testing.T) {
		ch := make(chan *pq.Notification, 4)
		for i := 0; i < 3; i++ {
			ch <- &pq.Notification{Channel: "radacct_change"}
		}
		s := testStore(ch)

		n := s.WaitNotifications(context.Background(), time.Second)

		assert.Equal(t, 3, n)
	})

	t.Run("Does not block past the queue snapshot", func(t *testing.T) {
		ch := make(chan *pq.Notification, 1)
		ch <- &pq.Notification{Channel: "radacct_change"}
		s := testStore(ch)

		done := make(chan int, 1)
		go func() { done <- s.WaitNotifications(context.Background(), time.Second) }()

		select {
		case n := <-done:
			assert.Equal(t, 1, n)
		case <-time.After(500 * time.Millisecond):
			t.Fatal("WaitNotifications kept blocking after draining the queue")
		}
	})

	t.Run("Ignores nil notifications from driver reconnects", func(t *testing.T) {
		ch := make(chan *pq.Notification, 2)
		ch <- nil
		ch <- &pq.Notification{Channel: "radacct_change"}
		s := testStore(ch)

		n := s.WaitNotifications(context.Background(), time.Second)

		assert.Equal(t, 1, n)
	})

	t.Run("Cancelled context returns immediately", func(t *testing.T) {
		s := testStore(make(chan *pq.Notification))
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		start := time.Now()
		n := s.WaitNotifications(ctx, time.Second)

		assert.Equal(t, 0, n)
		assert.Less(t, time.Since(start), 500*time.Millisecond)
	})
}

func TestConninfo(t *testing.T) {
	s := &Store{cfg: config.StoreConfig{
		Host:     "pg.internal",
		Port:     5433,
		Database: "edge_db",
		User:     "postgres",
		Password: config.Password("secret"),
	}}

	info := s.conninfo()
	assert.Contains(t, info, "host=pg.internal")
	assert.Contains(t, info, "port=5433")
	assert.Contains(t, info, "dbname=edge_db")
	assert.Contains(t, info, "password=secret")
	assert.Contains(t, info, "sslmode=disable")
}
