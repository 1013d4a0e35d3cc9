// Package transport carries coordination envelopes between the observers of a queue.
package transport

import (
	"chat-pair/domain"
	"chat-pair/errors"
	"context"
	"log/slog"
	"sync"
)

const DefaultBufferSize = 256

// Bus is an in-process broadcast medium. Each observer attaches its own LocalTransport.
type Bus struct {
	log        *slog.Logger
	bufferSize int

	mu      sync.RWMutex
	members map[*LocalTransport]struct{}
}

func NewBus(log *slog.Logger, bufferSize int) *Bus {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &Bus{log: log, bufferSize: bufferSize, members: make(map[*LocalTransport]struct{})}
}

// Attach creates a transport receiving every envelope published on the bus from now on.
func (b *Bus) Attach() *LocalTransport {
	t := &LocalTransport{bus: b, received: make(chan domain.Envelope, b.bufferSize)}
	b.mu.Lock()
	b.members[t] = struct{}{}
	b.mu.Unlock()
	return t
}

func (b *Bus) broadcast(envelope domain.Envelope) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for member := range b.members {
		select {
		case member.received <- envelope:
		default:
			b.log.Warn("Coordination envelope dropped, receiver is full", "type", envelope.Type)
		}
	}
}

func (b *Bus) detach(t *LocalTransport) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.members[t]; ok {
		delete(b.members, t)
		close(t.received)
	}
}

// LocalTransport is the handle of one observer on a Bus.
type LocalTransport struct {
	bus      *Bus
	received chan domain.Envelope
	closed   sync.Once
	done     bool
	mu       sync.RWMutex
}

func (t *LocalTransport) Publish(ctx context.Context, envelope domain.Envelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.done {
		return errors.ErrTransportClosed
	}
	t.bus.broadcast(envelope)
	return nil
}

func (t *LocalTransport) Connected() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return !t.done
}

func (t *LocalTransport) Receive() <-chan domain.Envelope {
	return t.received
}

func (t *LocalTransport) Close() error {
	t.closed.Do(func() {
		t.mu.Lock()
		t.done = true
		t.mu.Unlock()
		t.bus.detach(t)
	})
	return nil
}
