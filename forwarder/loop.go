package forwarder

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/edgeisp/acctforward/metrics"
)

// Notifier is the bounded wait on the source's change-notification channel.
type Notifier interface {
	WaitNotifications(ctx context.Context, timeout time.Duration) int
}

// Reconnector rebuilds a store connection, retrying internally until it
// succeeds or ctx is cancelled.
type Reconnector interface {
	Reconnect(ctx context.Context) error
}

type state int

const (
	stateAwaitingEvent state = iota
	stateForwardingFromNotify
	statePollDue
	stateForwardingFromPoll
	stateReconnectingSource
	stateReconnectingSink
	stateShuttingDown
)

func (s state) String() string {
	switch s {
	case stateAwaitingEvent:
		return "awaiting_event"
	case stateForwardingFromNotify:
		return "forwarding_from_notify"
	case statePollDue:
		return "poll_due"
	case stateForwardingFromPoll:
		return "forwarding_from_poll"
	case stateReconnectingSource:
		return "reconnecting_source"
	case stateReconnectingSink:
		return "reconnecting_sink"
	case stateShuttingDown:
		return "shutting_down"
	}
	return "unknown"
}

const (
	defaultNotifyWait = time.Second

	errMuteInterval = time.Minute
	errMuteMax      = 10
)

// Loop runs the forwarder until ctx is cancelled. It alternates between a
// bounded wait on the notification channel and a fixed-interval poll that
// drains the whole backlog. All store access happens from this single
// goroutine.
type Loop struct {
	Cycle        *Cycle
	Notifier     Notifier
	SourceConn   Reconnector
	SinkConn     Reconnector
	PollInterval time.Duration
	NotifyWait   time.Duration
	Metrics      *metrics.Recorder
	Log          *slog.Logger

	// Now is overridable for tests; defaults to time.Now.
	Now func() time.Time

	state    state
	lastPoll time.Time
	pending  int
	mute     *batchMute
}

func (l *Loop) Run(ctx context.Context) {
	if l.Now == nil {
		l.Now = time.Now
	}
	if l.NotifyWait == 0 {
		l.NotifyWait = defaultNotifyWait
	}
	l.mute = newBatchMute(errMuteInterval, errMuteMax)
	l.state = stateAwaitingEvent

	for ctx.Err() == nil {
		l.step(ctx)
	}
	l.state = stateShuttingDown
	l.Log.Info("orchestration loop stopped")
}

// step advances the state machine by one transition.
func (l *Loop) step(ctx context.Context) {
	switch l.state {
	case stateAwaitingEvent:
		if n := l.Notifier.WaitNotifications(ctx, l.NotifyWait); n > 0 {
			l.pending = n
			l.state = stateForwardingFromNotify
			return
		}
		if l.Now().Sub(l.lastPoll) >= l.PollInterval {
			l.state = statePollDue
		}

	case stateForwardingFromNotify:
		// One cycle per drained notification, best effort. A burst can leave
		// backlog behind; the poll path catches it.
		for l.pending > 0 && ctx.Err() == nil {
			l.pending--
			count, err := l.Cycle.Run(ctx)
			if err != nil {
				l.pending = 0
				l.fail(err)
				return
			}
			if count > 0 {
				l.Metrics.Batch(count, l.Now())
			}
		}
		l.state = stateAwaitingEvent

	case statePollDue:
		l.lastPoll = l.Now()
		l.state = stateForwardingFromPoll

	case stateForwardingFromPoll:
		var total int
		for ctx.Err() == nil {
			count, err := l.Cycle.Run(ctx)
			if err != nil {
				l.fail(err)
				return
			}
			if count == 0 {
				break
			}
			total += count
			l.Metrics.Batch(count, l.Now())
		}
		if total > 0 {
			l.Log.Info("poll cycle forwarded records", slog.Int("total", total))
		}
		l.state = stateAwaitingEvent

	case stateReconnectingSource:
		if err := l.SourceConn.Reconnect(ctx); err != nil {
			// Only a cancelled context stops the reconnect retries.
			return
		}
		l.state = stateAwaitingEvent

	case stateReconnectingSink:
		if err := l.SinkConn.Reconnect(ctx); err != nil {
			return
		}
		l.state = stateAwaitingEvent
	}
}

// fail counts the error, logs it unless muted, and routes the loop to the
// reconnect state for whichever store failed.
func (l *Loop) fail(err error) {
	l.Metrics.Error()
	if muting, skipped := l.mute.Increment(); !muting {
		l.Log.Error("forward cycle failed",
			slog.String("state", l.state.String()),
			slog.String("error", err.Error()))
	} else if skipped == 0 {
		l.Log.Warn("muting repeated forward errors", slog.Duration("interval", errMuteInterval))
	}
	if errors.Is(err, ErrSinkStore) {
		l.state = stateReconnectingSink
		return
	}
	l.state = stateReconnectingSource
}
