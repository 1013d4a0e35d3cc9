package services

import (
	"chat-pair/domain"
	"chat-pair/domain/event"
	"chat-pair/errors"
	"chat-pair/matchmaking"
	"chat-pair/mocks"
	"chat-pair/runtime"
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type recordingDispatcher struct {
	mu     sync.Mutex
	events []event.DomainEvent
}

func (d *recordingDispatcher) Dispatch(evt event.DomainEvent) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, evt)
}

func (d *recordingDispatcher) all() []event.DomainEvent {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]event.DomainEvent(nil), d.events...)
}

type serviceFixture struct {
	service    *ChatService
	gateway    *mocks.MockTranslationGateway
	dispatcher *recordingDispatcher
	router     *runtime.MessageRouter
}

func newServiceFixture(t *testing.T) *serviceFixture {
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	ctrl := gomock.NewController(t)
	registry := runtime.NewRegistry(nil)
	f := &serviceFixture{gateway: mocks.NewMockTranslationGateway(ctrl), dispatcher: &recordingDispatcher{}}
	queue := matchmaking.NewQueue(log, matchmaking.Config{ObserverID: "observer-a"}, nil, registry, nil)
	f.router = runtime.NewMessageRouter(log, runtime.RouterConfig{}, registry, f.gateway, nil, make(chan event.DomainEvent, 16))
	t.Cleanup(f.router.Close)
	sessions := runtime.NewSessionRelay(log, "observer-a", nil, registry, f.router, f.dispatcher.Dispatch)
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f.service = NewChatService(log, queue, registry, f.router, sessions, func() time.Time {
		clock = clock.Add(100 * time.Millisecond)
		return clock
	})
	return f
}

// pair joins two participants and returns them with their session.
func (f *serviceFixture) pair(t *testing.T) (domain.Participant, domain.Participant, domain.Session) {
	req := require.New(t)
	alice, first, err := f.service.Join(context.Background(), JoinRequest{DisplayName: "Alice", Language: "English"})
	req.NoError(err)
	req.False(first.Paired())
	bob, second, err := f.service.Join(context.Background(), JoinRequest{DisplayName: "Bob", Language: "es"})
	req.NoError(err)
	req.True(second.Paired())
	return alice, bob, *second.Session
}

func TestChatService_Join_Pairs_And_Normalises_Language(t *testing.T) {
	req := require.New(t)
	f := newServiceFixture(t)

	alice, bob, session := f.pair(t)

	req.Equal("en", alice.PreferredLanguage)
	req.Equal("es", bob.PreferredLanguage)
	req.Equal(domain.CanonicalSessionID(alice, bob), session.ID)
	req.Zero(f.service.QueueSize())

	stored, err := f.service.Session(session.ID)
	req.NoError(err)
	req.Equal(domain.SessionActive, stored.State)
}

func TestChatService_Join_Rejects_Invalid_Request(t *testing.T) {
	req := require.New(t)
	f := newServiceFixture(t)

	_, _, err := f.service.Join(context.Background(), JoinRequest{DisplayName: "   ", Language: "en"})
	req.ErrorIs(err, errors.ErrInvalidRequest)

	_, _, err = f.service.Join(context.Background(), JoinRequest{DisplayName: "Alice"})
	req.ErrorIs(err, errors.ErrInvalidRequest)
	req.Zero(f.service.QueueSize())
}

func TestChatService_Position_And_Leave(t *testing.T) {
	req := require.New(t)
	f := newServiceFixture(t)

	alice, result, err := f.service.Join(context.Background(), JoinRequest{DisplayName: "Alice", Language: "fr"})
	req.NoError(err)
	req.Equal(1, result.Position)
	position, ok := f.service.Position(alice.ID)
	req.True(ok)
	req.Equal(1, position)

	f.service.Leave(context.Background(), alice.ID)

	_, ok = f.service.Position(alice.ID)
	req.False(ok)
	req.Zero(f.service.QueueSize())
}

func TestChatService_LeaveSession_Notifies_Then_Closes(t *testing.T) {
	req := require.New(t)
	f := newServiceFixture(t)
	alice, bob, session := f.pair(t)

	// When alice leaves
	left, err := f.service.LeaveSession(context.Background(), session.ID, alice.ID)
	req.NoError(err)
	req.Equal(domain.SessionPartnerLeft, left.State)

	// Then bob is told
	req.Equal([]event.DomainEvent{
		event.PartnerLeft{SessionID: session.ID, ParticipantID: alice.ID, To: []string{bob.ID}},
	}, f.dispatcher.all())

	// When alice leaves again, nothing new happens
	_, err = f.service.LeaveSession(context.Background(), session.ID, alice.ID)
	req.NoError(err)
	req.Len(f.dispatcher.all(), 1)

	// When bob leaves too, the session is closed for both
	closed, err := f.service.LeaveSession(context.Background(), session.ID, bob.ID)
	req.NoError(err)
	req.Equal(domain.SessionClosed, closed.State)
	events := f.dispatcher.all()
	req.Len(events, 2)
	req.Equal(event.SessionClosed{SessionID: session.ID, To: []string{alice.ID, bob.ID}}, events[1])
}

func TestChatService_LeaveSession_Stranger(t *testing.T) {
	req := require.New(t)
	f := newServiceFixture(t)
	_, _, session := f.pair(t)

	_, err := f.service.LeaveSession(context.Background(), session.ID, "mallory")

	req.ErrorIs(err, errors.ErrNotSessionMember)
	req.Empty(f.dispatcher.all())
}

func TestChatService_Messages_Then_Close(t *testing.T) {
	req := require.New(t)
	f := newServiceFixture(t)
	alice, bob, session := f.pair(t)
	f.gateway.EXPECT().DetectLanguage(gomock.Any(), "hello").Return(domain.Detection{Language: "en", Confidence: 0.9}, nil)
	f.gateway.EXPECT().Translate(gomock.Any(), "hello", "en", "es").Return("hola", nil)

	// Given alice sent a message
	_, err := f.service.SendMessage(context.Background(), session.ID, SendMessageRequest{SenderID: alice.ID, Text: "hello"})
	req.NoError(err)
	f.router.Wait()

	// Then bob reads it with its translations
	messages, err := f.service.Messages(session.ID, bob.ID)
	req.NoError(err)
	req.Len(messages, 1)
	req.Equal(map[string]string{"en": "hello", "es": "hola"}, messages[0].Translations)

	// And a stranger cannot
	_, err = f.service.Messages(session.ID, "mallory")
	req.ErrorIs(err, errors.ErrNotSessionMember)

	// When the session is closed
	_, err = f.service.CloseSession(context.Background(), session.ID)
	req.NoError(err)

	// Then the log is gone and sending fails
	messages, err = f.service.Messages(session.ID, bob.ID)
	req.NoError(err)
	req.Empty(messages)
	_, err = f.service.SendMessage(context.Background(), session.ID, SendMessageRequest{SenderID: bob.ID, Text: "still there?"})
	req.ErrorIs(err, errors.ErrSessionInactive)
	req.Equal([]event.DomainEvent{event.SessionClosed{SessionID: session.ID, To: []string{alice.ID, bob.ID}}}, f.dispatcher.all())
}

func TestChatService_SendMessage_Rejects_Invalid_Request(t *testing.T) {
	req := require.New(t)
	f := newServiceFixture(t)
	_, _, session := f.pair(t)

	_, err := f.service.SendMessage(context.Background(), session.ID, SendMessageRequest{Text: "hello"})

	req.ErrorIs(err, errors.ErrInvalidRequest)
}

func TestChatService_Typing_Reaches_Partner_Only(t *testing.T) {
	req := require.New(t)
	f := newServiceFixture(t)
	alice, bob, session := f.pair(t)

	// When alice types
	req.NoError(f.service.Typing(context.Background(), session.ID, alice.ID))

	// Then only bob is told
	req.Equal([]event.DomainEvent{
		event.Typing{SessionID: session.ID, ParticipantID: alice.ID, To: []string{bob.ID}},
	}, f.dispatcher.all())

	// And strangers or departed members cannot type
	req.ErrorIs(f.service.Typing(context.Background(), session.ID, "mallory"), errors.ErrNotSessionMember)
	_, err := f.service.LeaveSession(context.Background(), session.ID, bob.ID)
	req.NoError(err)
	req.ErrorIs(f.service.Typing(context.Background(), session.ID, alice.ID), errors.ErrSessionInactive)
}
