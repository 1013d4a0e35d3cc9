package runtime

import (
	"chat-pair/contract"
	"chat-pair/domain"
	"chat-pair/domain/event"
	"chat-pair/errors"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type Sink struct {
	name string
}

func (s *Sink) Consume(ctx context.Context, e event.DomainEvent) error {
	return nil
}

func pair() (domain.Participant, domain.Participant) {
	now := time.Now()
	return domain.NewParticipant("alice", "en", now), domain.NewParticipant("bob", "es", now.Add(time.Millisecond))
}

func TestRegistry_Create_Is_Idempotent(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry(nil)
	alice, bob := pair()

	// When the same pair is created twice, in any order
	first, created := registry.Create(alice, bob)
	req.True(created)
	second, created := registry.Create(bob, alice)

	// Then the existing session is returned
	req.False(created)
	req.Equal(first, second)
	req.Equal(domain.CanonicalSessionID(alice, bob), first.ID)
	req.Equal(domain.SessionActive, first.State)

	session, ok := registry.SessionOf(bob.ID)
	req.True(ok)
	req.Equal(first.ID, session.ID)
}

func TestRegistry_Get_Unknown_Session(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry(nil)

	_, err := registry.Get("1v1-unknown")

	req.ErrorIs(err, errors.ErrSessionNotFound)
}

func TestRegistry_MarkLeft_Then_Closed(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry(nil)
	alice, bob := pair()
	session, _ := registry.Create(alice, bob)

	// When the first member leaves
	session, err := registry.MarkLeft(session.ID, alice.ID)

	// Then the partner is left alone
	req.NoError(err)
	req.Equal(domain.SessionPartnerLeft, session.State)
	req.Equal(alice.ID, session.LeftBy)

	// When the same member leaves again
	session, err = registry.MarkLeft(session.ID, alice.ID)
	req.NoError(err)
	req.Equal(domain.SessionPartnerLeft, session.State)

	// When the second member leaves too
	session, err = registry.MarkLeft(session.ID, bob.ID)

	// Then the session is closed
	req.NoError(err)
	req.Equal(domain.SessionClosed, session.State)
}

func TestRegistry_MarkLeft_Stranger(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry(nil)
	alice, bob := pair()
	session, _ := registry.Create(alice, bob)

	_, err := registry.MarkLeft(session.ID, "user-stranger")

	req.ErrorIs(err, errors.ErrNotSessionMember)
}

func TestRegistry_Close(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry(nil)
	alice, bob := pair()
	session, _ := registry.Create(alice, bob)

	closed, err := registry.Close(session.ID)

	req.NoError(err)
	req.Equal(domain.SessionClosed, closed.State)
	_, err = registry.Close("1v1-unknown")
	req.ErrorIs(err, errors.ErrSessionNotFound)
}

func TestRegistry_Connect_Multiple_Participants(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry(nil)
	sink1 := &Sink{name: "alice"}
	sink2 := &Sink{name: "bob"}

	// Given no user is connected
	req.Empty(registry.SinksFor([]string{"alice", "bob"}))

	// When participants connect
	registry.Connect("alice", sink1)
	registry.Connect("bob", sink2)

	// Then
	req.True(registry.IsConnected("alice"))
	req.Len(registry.SinksFor([]string{"alice", "bob", "carol"}), 2)
	req.Contains(registry.SinksFor([]string{"alice"}), sink1)
}

func TestRegistry_Disconnect_Keeps_Newer_Connection(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry(nil)
	stale := &Sink{name: "first tab"}
	fresh := &Sink{name: "second tab"}

	// Given a participant reconnected before the first connection was cleaned up
	registry.Connect("alice", stale)
	registry.Connect("alice", fresh)

	// When the old connection disconnects
	registry.Disconnect("alice", stale)

	// Then the fresh one is still registered
	req.Equal([]contract.EventSink{fresh}, registry.SinksFor([]string{"alice"}))

	// When the fresh one disconnects
	registry.Disconnect("alice", fresh)

	// Then the participant is gone
	req.False(registry.IsConnected("alice"))
}

func TestRegistry_EvictClosed(t *testing.T) {
	req := require.New(t)
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	registry := NewRegistry(func() time.Time { return clock })
	alice, bob := pair()
	closed, _ := registry.Create(alice, bob)
	carol := domain.NewParticipant("carol", "fr", time.Now())
	dave := domain.NewParticipant("dave", "de", time.Now().Add(time.Millisecond))
	active, _ := registry.Create(carol, dave)

	// Given a session closed by both departures, and an active one
	_, err := registry.MarkLeft(closed.ID, alice.ID)
	req.NoError(err)
	closed, err = registry.MarkLeft(closed.ID, bob.ID)
	req.NoError(err)
	req.Equal(clock, closed.ClosedAt)

	// When nothing closed before the cut-off
	req.Empty(registry.EvictClosed(clock))

	// When the retention elapsed
	evicted := registry.EvictClosed(clock.Add(time.Minute))

	// Then only the closed session and its members are forgotten
	req.Equal([]domain.SessionID{closed.ID}, evicted)
	_, err = registry.Get(closed.ID)
	req.ErrorIs(err, errors.ErrSessionNotFound)
	_, ok := registry.SessionOf(alice.ID)
	req.False(ok)
	_, err = registry.Get(active.ID)
	req.NoError(err)
	_, ok = registry.SessionOf(carol.ID)
	req.True(ok)
}

func TestRegistry_Close_Keeps_First_ClosedAt(t *testing.T) {
	req := require.New(t)
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	registry := NewRegistry(func() time.Time { return clock })
	alice, bob := pair()
	session, _ := registry.Create(alice, bob)

	first, err := registry.Close(session.ID)
	req.NoError(err)
	clock = clock.Add(time.Hour)
	second, err := registry.Close(session.ID)
	req.NoError(err)

	req.Equal(first.ClosedAt, second.ClosedAt)
}
