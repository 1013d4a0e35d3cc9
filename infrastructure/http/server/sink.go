package server

import (
	"chat-pair/domain/event"
	"context"
	"log/slog"
)

// ConnectionSink buffers the events of one connected participant.
// The websocket handler owning the connection drains it.
type ConnectionSink struct {
	log                *slog.Logger
	participantID      string
	ConnectedUserEvent chan event.DomainEvent
}

func NewConnectionSink(log *slog.Logger, participantID string, bufferSize int) *ConnectionSink {
	return &ConnectionSink{
		log:                log,
		participantID:      participantID,
		ConnectedUserEvent: make(chan event.DomainEvent, bufferSize),
	}
}

// Consume is called by fanout. A full buffer drops the event: the participant is too slow.
func (s *ConnectionSink) Consume(ctx context.Context, e event.DomainEvent) error {
	select {
	case s.ConnectedUserEvent <- e:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		s.log.Warn("Connection buffer full, event dropped", "participant_id", s.participantID, "type", e.Type())
		return nil
	}
}
