package workers

import (
	"chat-pair/contract"
	"chat-pair/domain"
	"chat-pair/errors"
	"context"
	"log/slog"
)

type EnvelopeHandler interface {
	Handle(ctx context.Context, envelope domain.Envelope) error
}

// TransportListener feeds the envelopes received from the other observers into the queue.
// A malformed envelope is logged and skipped; a closed transport ends the worker with an error
// so that the supervisor restarts it once the transport reconnects.
type TransportListener struct {
	log       *slog.Logger
	transport contract.Transport
	handler   EnvelopeHandler
}

func NewTransportListener(log *slog.Logger, transport contract.Transport, handler EnvelopeHandler) *TransportListener {
	return &TransportListener{log: log, transport: transport, handler: handler}
}

func (w *TransportListener) Run(ctx context.Context) error {
	received := w.transport.Receive()
	for {
		select {
		case <-ctx.Done():
			return nil
		case envelope, ok := <-received:
			if !ok {
				return errors.ErrTransportClosed
			}
			if err := w.handler.Handle(ctx, envelope); err != nil {
				w.log.Warn("Coordination envelope rejected",
					"type", envelope.Type, "origin", envelope.Origin, "error", err)
			}
		}
	}
}
