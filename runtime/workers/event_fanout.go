package workers

import (
	"chat-pair/contract"
	"chat-pair/domain/event"
	"context"
	"log/slog"
	"time"
)

// EventFanout delivers domain events to the connections of their recipients,
// to the permanent sinks and to the in-process handlers.
//
// Delivery is best-effort: a sink failing or exceeding the sink timeout loses the event,
// the others still get it. Events are delivered one at a time, in channel order,
// so that every recipient sees them in the order they were published.
type EventFanout struct {
	log            *slog.Logger
	registry       contract.IRegistry
	events         <-chan event.DomainEvent
	sinkTimeout    time.Duration
	permanentSinks []contract.EventSink
	handlers       []event.Handler
}

func NewEventFanout(log *slog.Logger, registry contract.IRegistry, events <-chan event.DomainEvent,
	sinkTimeout time.Duration, permanentSinks ...contract.EventSink) *EventFanout {
	return &EventFanout{
		log:            log,
		registry:       registry,
		events:         events,
		sinkTimeout:    sinkTimeout,
		permanentSinks: permanentSinks,
	}
}

// WithHandlers registers handlers observing every event, before any sink.
func (w *EventFanout) WithHandlers(handlers ...event.Handler) *EventFanout {
	w.handlers = append(w.handlers, handlers...)
	return w
}

func (w *EventFanout) Run(ctx context.Context) error {
	for {
		select {
		case evt := <-w.events:
			w.Fanout(ctx, evt)
		case <-ctx.Done():
			w.log.Debug("Context done, stopping event fanout")
			return nil
		}
	}
}

// Fanout One sink for each event
func (w *EventFanout) Fanout(ctx context.Context, evt event.DomainEvent) {
	for _, handler := range w.handlers {
		handler.Handle(evt)
	}
	sinks := append(append([]contract.EventSink(nil), w.permanentSinks...), w.registry.SinksFor(evt.Recipients())...)
	for _, sink := range sinks {
		w.consume(ctx, sink, evt)
	}
}

func (w *EventFanout) consume(ctx context.Context, sink contract.EventSink, evt event.DomainEvent) {
	sinkCtx, cancel := context.WithTimeout(ctx, w.sinkTimeout)
	defer cancel()
	if err := sink.Consume(sinkCtx, evt); err != nil {
		w.log.Warn("Sink failed to consume event", "type", evt.Type(), "error", err)
	}
}
