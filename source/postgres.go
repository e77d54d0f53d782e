// Package source reads unforwarded accounting rows from the PostgreSQL
// radacct table and maintains the forwarded cursor on them.
package source

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"

	"github.com/edgeisp/acctforward/config"
	"github.com/edgeisp/acctforward/record"
)

const (
	connectRetryInterval = 5 * time.Second
	connectTimeout       = 10 * time.Second

	listenerMinReconnect = 10 * time.Second
	listenerMaxReconnect = time.Minute
)

const fetchQuery = `
	SELECT radacctid, acctsessionid, acctuniqueid, username, realm,
	       host(nasipaddress) as nasipaddress, nasportid, nasporttype,
	       acctstarttime, acctupdatetime, acctstoptime,
	       acctinterval, acctsessiontime, acctauthentic,
	       connectinfo_start, connectinfo_stop,
	       acctinputoctets, acctoutputoctets,
	       calledstationid, callingstationid, acctterminatecause,
	       servicetype, framedprotocol,
	       COALESCE(host(framedipaddress), '') as framedipaddress
	FROM radacct
	WHERE forwarded_to_ch = false
	ORDER BY radacctid ASC
	LIMIT $1`

const markForwardedQuery = `
	UPDATE radacct SET forwarded_to_ch = true WHERE radacctid = ANY($1)`

// Store owns the PostgreSQL connection and the notification listener. It is
// used from a single goroutine.
type Store struct {
	cfg config.StoreConfig
	log *slog.Logger

	db       *sql.DB
	listener *pq.Listener
	notify   <-chan *pq.Notification
	channel  string
}

// Open dials PostgreSQL, retrying with a fixed delay until a live connection
// exists or ctx is cancelled.
func Open(ctx context.Context, cfg config.StoreConfig, log *slog.Logger) (*Store, error) {
	s := &Store{cfg: cfg, log: log}
	if err := s.connect(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) conninfo() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=disable connect_timeout=%d",
		s.cfg.Host, s.cfg.Port, s.cfg.Database, s.cfg.User, s.cfg.Password.Expose(),
		int(connectTimeout.Seconds()),
	)
}

func (s *Store) connect(ctx context.Context) error {
	for {
		db, err := sql.Open("postgres", s.conninfo())
		if err == nil {
			pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
			err = db.PingContext(pingCtx)
			cancel()
			if err == nil {
				s.db = db
				s.log.Info("connected to PostgreSQL",
					slog.String("addr", s.cfg.Addr()),
					slog.String("database", s.cfg.Database))
				return nil
			}
			db.Close()
		}
		s.log.Error("failed to connect to PostgreSQL", slog.String("error", err.Error()))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(connectRetryInterval):
		}
	}
}

// Listen issues a one-time subscription on the notification channel. The
// subscription survives Reconnect.
func (s *Store) Listen(channel string) error {
	listener := pq.NewListener(s.conninfo(), listenerMinReconnect, listenerMaxReconnect,
		func(ev pq.ListenerEventType, err error) {
			if err != nil {
				s.log.Error("listener event", slog.Int("event", int(ev)), slog.String("error", err.Error()))
			}
		})
	if err := listener.Listen(channel); err != nil {
		listener.Close()
		return fmt.Errorf("failed to listen on %s: %w", channel, err)
	}
	s.listener = listener
	s.notify = listener.Notify
	s.channel = channel
	s.log.Info("listening for notifications", slog.String("channel", channel))
	return nil
}

// WaitNotifications blocks up to timeout for a notification, then drains the
// current queue snapshot without blocking further. Returns the number of
// notifications received. Nil notifications, dispatched by the driver after
// its own reconnect, are not counted.
func (s *Store) WaitNotifications(ctx context.Context, timeout time.Duration) int {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var n int
	select {
	case <-ctx.Done():
		return 0
	case <-timer.C:
		return 0
	case notif, ok := <-s.notify:
		if !ok {
			return 0
		}
		if notif != nil {
			s.log.Debug("received notification", slog.String("payload", notif.Extra))
			n++
		}
	}
	for {
		select {
		case notif, ok := <-s.notify:
			if !ok {
				return n
			}
			if notif != nil {
				s.log.Debug("received notification", slog.String("payload", notif.Extra))
				n++
			}
		default:
			return n
		}
	}
}

// FetchUnforwarded returns up to limit rows with an unset forwarded flag, in
// ascending radacctid order.
func (s *Store) FetchUnforwarded(ctx context.Context, limit int) ([]record.Raw, error) {
	rows, err := s.db.QueryContext(ctx, fetchQuery, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch unforwarded rows: %w", err)
	}
	defer rows.Close()

	var records []record.Raw
	for rows.Next() {
		var r record.Raw
		if err := rows.Scan(
			&r.RadAcctID, &r.AcctSessionID, &r.AcctUniqueID, &r.Username, &r.Realm,
			&r.NASIPAddress, &r.NASPortID, &r.NASPortType,
			&r.AcctStartTime, &r.AcctUpdateTime, &r.AcctStopTime,
			&r.AcctInterval, &r.AcctSessionTime, &r.AcctAuthentic,
			&r.ConnectInfoStart, &r.ConnectInfoStop,
			&r.AcctInputOctets, &r.AcctOutputOctets,
			&r.CalledStationID, &r.CallingStationID, &r.AcctTerminateCause,
			&r.ServiceType, &r.FramedProtocol, &r.FramedIPAddress,
		); err != nil {
			return nil, fmt.Errorf("failed to scan radacct row: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read radacct rows: %w", err)
	}
	return records, nil
}

// MarkForwarded sets the forwarded flag on the given rows. Called only after
// the sink accepted the batch.
func (s *Store) MarkForwarded(ctx context.Context, ids []int64) error {
	if _, err := s.db.ExecContext(ctx, markForwardedQuery, pq.Array(ids)); err != nil {
		return fmt.Errorf("failed to mark %d rows forwarded: %w", len(ids), err)
	}
	return nil
}

// Reconnect tears down both the connection and the listener and dials again,
// re-subscribing to the previous notification channel.
func (s *Store) Reconnect(ctx context.Context) error {
	s.Close()
	if err := s.connect(ctx); err != nil {
		return err
	}
	if s.channel != "" {
		return s.Listen(s.channel)
	}
	return nil
}

func (s *Store) Close() {
	if s.listener != nil {
		if err := s.listener.Close(); err != nil {
			s.log.Error("failed to close listener", slog.String("error", err.Error()))
		}
		s.listener = nil
		s.notify = nil
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.log.Error("failed to close PostgreSQL connection", slog.String("error", err.Error()))
		}
		s.db = nil
	}
}
