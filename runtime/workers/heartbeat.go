package workers

import (
	"chat-pair/observability"
	"context"
	"log/slog"
	"time"
)

type QueueSizer interface {
	Size() int
}

// HeartbeatWorker refreshes the monitoring stats and logs them at a fixed interval.
type HeartbeatWorker struct {
	log        *slog.Logger
	interval   time.Duration
	queue      QueueSizer
	monitoring *observability.MonitoringManager
}

func NewHeartbeatWorker(log *slog.Logger, interval time.Duration, queue QueueSizer,
	monitoring *observability.MonitoringManager) *HeartbeatWorker {
	return &HeartbeatWorker{log: log, interval: interval, queue: queue, monitoring: monitoring}
}

func (w *HeartbeatWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			stats := w.monitoring.Refresh(w.queue.Size())
			w.log.Debug("Heartbeat",
				"observer", stats.ObserverID,
				"queue_size", stats.QueueSize,
				"rss_bytes", stats.RSSBytes,
				"cpu_percent", stats.CPUPercent,
				"goroutines", stats.Goroutines)
		}
	}
}
