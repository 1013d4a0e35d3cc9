package workers

import (
	"chat-pair/domain"
	"context"
	"log/slog"
	"time"
)

type WaitingExpirer interface {
	ExpireWaiting(ctx context.Context)
}

type StateRequester interface {
	RequestState(ctx context.Context)
}

type ClosedSessionEvicter interface {
	EvictClosed(before time.Time) []domain.SessionID
}

// MatchTimeoutWorker removes the local participants nobody was found for in time.
type MatchTimeoutWorker struct {
	log      *slog.Logger
	interval time.Duration
	queue    WaitingExpirer
}

func NewMatchTimeoutWorker(log *slog.Logger, interval time.Duration, queue WaitingExpirer) *MatchTimeoutWorker {
	return &MatchTimeoutWorker{log: log, interval: interval, queue: queue}
}

func (w *MatchTimeoutWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.queue.ExpireWaiting(ctx)
		}
	}
}

// StateSyncWorker periodically asks the other observers for their queue.
// Merging the answers repairs the envelopes this observer missed.
type StateSyncWorker struct {
	log      *slog.Logger
	interval time.Duration
	queue    StateRequester
}

func NewStateSyncWorker(log *slog.Logger, interval time.Duration, queue StateRequester) *StateSyncWorker {
	return &StateSyncWorker{log: log, interval: interval, queue: queue}
}

func (w *StateSyncWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.log.Debug("Requesting queue state from other observers")
			w.queue.RequestState(ctx)
		}
	}
}

// SessionEvictionWorker forgets the sessions closed for longer than the retention.
// onEvict runs for every evicted session, to drop what other components keep about it.
type SessionEvictionWorker struct {
	log       *slog.Logger
	interval  time.Duration
	retention time.Duration
	sessions  ClosedSessionEvicter
	onEvict   func(domain.SessionID)
	now       func() time.Time
}

func NewSessionEvictionWorker(log *slog.Logger, interval, retention time.Duration,
	sessions ClosedSessionEvicter, onEvict func(domain.SessionID)) *SessionEvictionWorker {
	return &SessionEvictionWorker{
		log:       log,
		interval:  interval,
		retention: retention,
		sessions:  sessions,
		onEvict:   onEvict,
		now:       time.Now,
	}
}

func (w *SessionEvictionWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.Sweep()
		}
	}
}

// Sweep evicts once.
func (w *SessionEvictionWorker) Sweep() int {
	evicted := w.sessions.EvictClosed(w.now().Add(-w.retention))
	for _, id := range evicted {
		if w.onEvict != nil {
			w.onEvict(id)
		}
	}
	if len(evicted) > 0 {
		w.log.Debug("Closed sessions evicted", "count", len(evicted))
	}
	return len(evicted)
}
