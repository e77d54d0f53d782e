// Package sink bulk-inserts normalized accounting rows into ClickHouse.
package sink

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	ch "github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/edgeisp/acctforward/config"
	"github.com/edgeisp/acctforward/record"
)

const (
	connectRetryInterval = 5 * time.Second

	dialTimeout     = 10 * time.Second
	readTimeout     = 30 * time.Second
	connMaxLifetime = 10 * time.Minute
)

// The sink table handles duplicate acctuniqueid rows itself; block-level
// dedup would hide legitimate re-deliveries from ReplacingMergeTree.
const insertQuery = `
	INSERT INTO radius_accounting (
		radacctid, acctsessionid, acctuniqueid, username, realm,
		nasipaddress, nasportid, nasporttype,
		acctstarttime, acctupdatetime, acctstoptime,
		acctinterval, acctsessiontime, acctauthentic,
		connectinfo_start, connectinfo_stop,
		acctinputoctets, acctoutputoctets,
		calledstationid, callingstationid, acctterminatecause,
		servicetype, framedprotocol, framedipaddress,
		event_type, edge_site_id
	)`

// Writer owns the ClickHouse connection. It is used from a single goroutine.
type Writer struct {
	cfg  config.StoreConfig
	log  *slog.Logger
	conn driver.Conn
}

// Open dials ClickHouse, retrying with a fixed delay until a live connection
// exists or ctx is cancelled.
func Open(ctx context.Context, cfg config.StoreConfig, log *slog.Logger) (*Writer, error) {
	w := &Writer{cfg: cfg, log: log}
	if err := w.connect(ctx); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *Writer) options() *ch.Options {
	return &ch.Options{
		Protocol: ch.Native,
		Addr:     []string{w.cfg.Addr()},
		Auth: ch.Auth{
			Database: w.cfg.Database,
			Username: w.cfg.User,
			Password: w.cfg.Password.Expose(),
		},
		Settings: ch.Settings{
			"insert_deduplicate": 0,
		},
		Compression: &ch.Compression{
			Method: ch.CompressionLZ4,
		},
		DialTimeout:     dialTimeout,
		ReadTimeout:     readTimeout,
		ConnMaxLifetime: connMaxLifetime,
	}
}

func (w *Writer) connect(ctx context.Context) error {
	for {
		conn, err := ch.Open(w.options())
		if err == nil {
			pingCtx, cancel := context.WithTimeout(ctx, dialTimeout)
			err = conn.Ping(pingCtx)
			cancel()
			if err == nil {
				w.conn = conn
				w.log.Info("connected to ClickHouse",
					slog.String("addr", w.cfg.Addr()),
					slog.String("database", w.cfg.Database))
				return nil
			}
			conn.Close()
		}
		w.log.Error("failed to connect to ClickHouse", slog.String("error", err.Error()))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(connectRetryInterval):
		}
	}
}

// WriteBatch bulk-inserts the rows in one call. Either the whole batch is
// accepted or an error is returned and nothing should be marked forwarded.
func (w *Writer) WriteBatch(ctx context.Context, rows []record.Row) error {
	batch, err := w.conn.PrepareBatch(ctx, insertQuery)
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}
	for i := range rows {
		if err := batch.AppendStruct(&rows[i]); err != nil {
			batch.Abort()
			return fmt.Errorf("failed to append row %d to batch: %w", rows[i].RadAcctID, err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send batch of %d rows: %w", len(rows), err)
	}
	return nil
}

// Reconnect closes the current connection and dials again.
func (w *Writer) Reconnect(ctx context.Context) error {
	w.Close()
	return w.connect(ctx)
}

func (w *Writer) Close() {
	if w.conn != nil {
		if err := w.conn.Close(); err != nil {
			w.log.Error("failed to close ClickHouse connection", slog.String("error", err.Error()))
		}
		w.conn = nil
	}
}
