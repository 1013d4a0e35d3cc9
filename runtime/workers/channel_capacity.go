package workers

import (
	"context"
	"log/slog"
	"reflect"
	"time"
)

const DefaultLowCapacityThreshold = 0.8

type NamedChannel struct {
	Name    string
	Channel any
}

type ChannelRecorder interface {
	RecordChannel(name string, length, capacity int)
}

// ChannelCapacityWorker periodically samples the length and capacity of buffered channels.
// Reading len(channel) and cap(channel) is non-blocking, so this won't interfere
// with the goroutines producing or consuming them.
type ChannelCapacityWorker struct {
	log            *slog.Logger
	channels       []NamedChannel
	recorder       ChannelRecorder
	metricInterval time.Duration
	threshold      float64
}

// NewChannelCapacityWorker warns whenever a channel is filled above threshold (a ratio in ]0, 1]).
func NewChannelCapacityWorker(log *slog.Logger, channels []NamedChannel, recorder ChannelRecorder,
	metricInterval time.Duration, threshold float64) *ChannelCapacityWorker {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultLowCapacityThreshold
	}
	return &ChannelCapacityWorker{
		log:            log,
		channels:       channels,
		recorder:       recorder,
		metricInterval: metricInterval,
		threshold:      threshold,
	}
}

func (w *ChannelCapacityWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.metricInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.sample()
		}
	}
}

func (w *ChannelCapacityWorker) sample() {
	for _, nc := range w.channels {
		v := reflect.ValueOf(nc.Channel)
		if v.Kind() != reflect.Chan {
			w.log.Error("Provided object is not a channel", "name", nc.Name)
			continue
		}
		capacity, length := v.Cap(), v.Len()
		if w.recorder != nil {
			w.recorder.RecordChannel(nc.Name, length, capacity)
		}
		if capacity > 0 && float64(length) >= w.threshold*float64(capacity) {
			w.log.Warn("Channel close to full, events may be dropped",
				"name", nc.Name, "length", length, "capacity", capacity)
		}
	}
}
