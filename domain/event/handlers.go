package event

import (
	"log/slog"
	"maps"
	"sync"
	"time"
)

// Handler Each kind of event has his own handler
// Based on the Chain of responsibility pattern
type Handler interface {
	Handle(event DomainEvent)
}

// Counter keeps one counter per event type.
type Counter struct {
	mu     sync.RWMutex
	counts map[Type]uint64
}

func NewCounter() *Counter {
	return &Counter{counts: make(map[Type]uint64)}
}

func (c *Counter) Increment(t Type) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts[t]++
}

func (c *Counter) Get(t Type) uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.counts[t]
}

func (c *Counter) Snapshot() map[Type]uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return maps.Clone(c.counts)
}

// CountingHandler counts every event it sees, by type.
type CountingHandler struct {
	counter *Counter
}

func NewCountingHandler(counter *Counter) *CountingHandler {
	return &CountingHandler{counter: counter}
}

func (h *CountingHandler) Handle(e DomainEvent) {
	h.counter.Increment(e.Type())
}

// LatencyHandler reports how long translations took to resolve.
type LatencyHandler struct {
	log              *slog.Logger
	latencyThreshold time.Duration
}

func NewLatencyHandler(log *slog.Logger, latencyThreshold time.Duration) *LatencyHandler {
	return &LatencyHandler{log: log, latencyThreshold: latencyThreshold}
}

func (h *LatencyHandler) Handle(e DomainEvent) {
	payload, ok := e.(MessageTranslated)
	if !ok {
		return
	}
	h.log.Debug("telemetry: translation latency",
		"session_id", payload.SessionID,
		"message_id", payload.MessageID,
		"languages", len(payload.Translations),
		"lead_time_ms", payload.Latency.Milliseconds())

	if payload.Latency > h.latencyThreshold {
		h.log.Warn("high translation latency detected", "lead_time", payload.Latency)
	}
}
