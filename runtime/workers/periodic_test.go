package workers

import (
	"chat-pair/domain"
	"chat-pair/domain/event"
	"chat-pair/mocks"
	"chat-pair/observability"
	"context"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type tickingQueue struct {
	expired   atomic.Int32
	requested atomic.Int32
}

func (q *tickingQueue) ExpireWaiting(context.Context) { q.expired.Add(1) }
func (q *tickingQueue) RequestState(context.Context)  { q.requested.Add(1) }
func (q *tickingQueue) Size() int                     { return 3 }

func runFor(t *testing.T, worker interface{ Run(context.Context) error }, d time.Duration) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	require.NoError(t, worker.Run(ctx))
}

func TestMatchTimeoutWorker_Expires_On_Every_Tick(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	queue := &tickingQueue{}

	runFor(t, NewMatchTimeoutWorker(log, 10*time.Millisecond, queue), 100*time.Millisecond)

	req.GreaterOrEqual(queue.expired.Load(), int32(2))
	req.Zero(queue.requested.Load())
}

func TestStateSyncWorker_Requests_State_On_Every_Tick(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	queue := &tickingQueue{}

	runFor(t, NewStateSyncWorker(log, 10*time.Millisecond, queue), 100*time.Millisecond)

	req.GreaterOrEqual(queue.requested.Load(), int32(2))
	req.Zero(queue.expired.Load())
}

func TestHeartbeatWorker_Refreshes_Stats(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	counter := event.NewCounter()
	monitoring := observability.NewMonitoringManager(log, "observer-a", "peer", counter)

	runFor(t, NewHeartbeatWorker(log, 10*time.Millisecond, &tickingQueue{}, monitoring), 60*time.Millisecond)

	stats := monitoring.GetLatest()
	req.Equal(3, stats.QueueSize)
	req.NotEmpty(stats.UpdatedAt)
}

func TestSessionEvictionWorker_Sweep(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	ctrl := gomock.NewController(t)
	registry := mocks.NewMockIRegistry(ctrl)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	// Given one session closed for longer than the retention
	registry.EXPECT().EvictClosed(now.Add(-5 * time.Minute)).Return([]domain.SessionID{"1v1-old"})
	var discarded []domain.SessionID
	worker := NewSessionEvictionWorker(log, time.Minute, 5*time.Minute, registry, func(id domain.SessionID) {
		discarded = append(discarded, id)
	})
	worker.now = func() time.Time { return now }

	// When the worker sweeps
	count := worker.Sweep()

	// Then the evicted session is dropped everywhere else too
	req.Equal(1, count)
	req.Equal([]domain.SessionID{"1v1-old"}, discarded)
}
