package workers

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

type recordedChannel struct {
	length, capacity int
}

type channelRecorder struct {
	mu      sync.Mutex
	samples map[string]recordedChannel
}

func (r *channelRecorder) RecordChannel(name string, length, capacity int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.samples[name] = recordedChannel{length: length, capacity: capacity}
}

func (r *channelRecorder) get(name string) (recordedChannel, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.samples[name]
	return s, ok
}

func TestChannelCapacityWorker_Samples_Channels(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	recorder := &channelRecorder{samples: make(map[string]recordedChannel)}

	// Given a channel holding 3 of its 4 slots and a value that is not a channel
	events := make(chan int, 4)
	events <- 1
	events <- 2
	events <- 3
	var received <-chan int = events
	worker := NewChannelCapacityWorker(log, []NamedChannel{
		{Name: "events", Channel: received},
		{Name: "bogus", Channel: 42},
	}, recorder, 10*time.Millisecond, 0.5)

	// When the worker runs
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- worker.Run(ctx) }()

	// Then the channel fill level is recorded and the bogus entry skipped
	req.Eventually(func() bool {
		s, ok := recorder.get("events")
		return ok && s == recordedChannel{length: 3, capacity: 4}
	}, time.Second, 5*time.Millisecond)
	_, ok := recorder.get("bogus")
	req.False(ok)

	cancel()
	req.NoError(<-done)
}
