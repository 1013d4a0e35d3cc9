package workers

import (
	"chat-pair/domain"
	"chat-pair/errors"
	"chat-pair/matchmaking"
	"chat-pair/mocks"
	"chat-pair/transport"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestTransportListener_Feeds_Queue(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	sessions := mocks.NewMockSessionStore(ctrl)
	bus := transport.NewBus(log, 16)

	// Given two observers sharing the bus
	announcing := matchmaking.NewQueue(log, matchmaking.Config{ObserverID: "observer-a"}, bus.Attach(), sessions, nil)
	followerTransport := bus.Attach()
	follower := matchmaking.NewQueue(log, matchmaking.Config{ObserverID: "observer-b", Mode: matchmaking.ModeFollower},
		followerTransport, sessions, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- NewTransportListener(log, followerTransport, follower).Run(ctx) }()

	// When a participant joins on the first observer
	_, err := announcing.Join(ctx, domain.NewParticipant("Alice", "en", time.Now()))
	req.NoError(err)

	// Then the second observer learns about it through the transport
	req.Eventually(func() bool { return follower.Size() == 1 }, time.Second, 10*time.Millisecond)

	cancel()
	req.NoError(<-done)
}

func TestTransportListener_Skips_Rejected_Envelopes(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	sessions := mocks.NewMockSessionStore(ctrl)
	bus := transport.NewBus(log, 16)
	publisher, receiver := bus.Attach(), bus.Attach()
	queue := matchmaking.NewQueue(log, matchmaking.Config{ObserverID: "observer-b", Mode: matchmaking.ModeFollower},
		nil, sessions, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = NewTransportListener(log, receiver, queue).Run(ctx) }()

	// Given an envelope the queue rejects, followed by a valid one
	req.NoError(publisher.Publish(ctx, domain.Envelope{Type: "BOGUS", Origin: "observer-a"}))
	req.NoError(publisher.Publish(ctx, domain.NewJoinedEnvelope("observer-a",
		domain.NewParticipant("Bob", "es", time.Now()))))

	// Then the listener keeps going
	req.Eventually(func() bool { return queue.Size() == 1 }, time.Second, 10*time.Millisecond)
}

func TestTransportListener_Stops_When_Transport_Closes(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	tr := mocks.NewMockTransport(ctrl)
	received := make(chan domain.Envelope)
	tr.EXPECT().Receive().Return((<-chan domain.Envelope)(received))
	close(received)

	err := NewTransportListener(log, tr, nil).Run(context.Background())

	req.ErrorIs(err, errors.ErrTransportClosed)
}
