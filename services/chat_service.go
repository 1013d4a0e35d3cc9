package services

import (
	"chat-pair/contract"
	"chat-pair/domain"
	"chat-pair/errors"
	"chat-pair/matchmaking"
	"chat-pair/runtime"
	"context"
	"log/slog"
	"time"
)

type IChatService interface {
	Join(ctx context.Context, req JoinRequest) (domain.Participant, matchmaking.JoinResult, error)
	Leave(ctx context.Context, participantID string)
	Retry(ctx context.Context, participantID string) (matchmaking.JoinResult, error)
	QueueSize() int
	Position(participantID string) (int, bool)
	Session(sessionID domain.SessionID) (domain.Session, error)
	SendMessage(ctx context.Context, sessionID domain.SessionID, req SendMessageRequest) (domain.Message, error)
	Messages(sessionID domain.SessionID, participantID string) ([]domain.Message, error)
	LeaveSession(ctx context.Context, sessionID domain.SessionID, participantID string) (domain.Session, error)
	CloseSession(ctx context.Context, sessionID domain.SessionID) (domain.Session, error)
	Typing(ctx context.Context, sessionID domain.SessionID, participantID string) error
	Connect(ctx context.Context, participantID string, sink contract.EventSink)
	Disconnect(participantID string, sink contract.EventSink)
}

type ChatService struct {
	log      *slog.Logger
	queue    *matchmaking.Queue
	registry contract.IRegistry
	router   *runtime.MessageRouter
	sessions *runtime.SessionRelay
	now      func() time.Time
}

func NewChatService(log *slog.Logger, queue *matchmaking.Queue, registry contract.IRegistry,
	router *runtime.MessageRouter, sessions *runtime.SessionRelay, now func() time.Time) *ChatService {
	if now == nil {
		now = time.Now
	}
	return &ChatService{log: log, queue: queue, registry: registry, router: router, sessions: sessions, now: now}
}

// Join creates an anonymous participant and queues it on this observer.
func (s *ChatService) Join(ctx context.Context, req JoinRequest) (domain.Participant, matchmaking.JoinResult, error) {
	req, err := ValidateJoin(req)
	if err != nil {
		return domain.Participant{}, matchmaking.JoinResult{}, err
	}
	participant := domain.NewParticipant(req.DisplayName, req.Language, s.now())
	result, err := s.queue.Join(ctx, participant)
	if err != nil {
		return participant, result, err
	}
	s.log.Info("Participant joined", "participant_id", participant.ID, "language", participant.PreferredLanguage,
		"position", result.Position, "paired", result.Paired())
	return participant, result, nil
}

func (s *ChatService) Leave(ctx context.Context, participantID string) {
	s.queue.Leave(ctx, participantID)
}

func (s *ChatService) Retry(ctx context.Context, participantID string) (matchmaking.JoinResult, error) {
	return s.queue.Retry(ctx, participantID)
}

func (s *ChatService) QueueSize() int {
	return s.queue.Size()
}

func (s *ChatService) Position(participantID string) (int, bool) {
	return s.queue.Position(participantID)
}

func (s *ChatService) Session(sessionID domain.SessionID) (domain.Session, error) {
	return s.registry.Get(sessionID)
}

func (s *ChatService) SendMessage(ctx context.Context, sessionID domain.SessionID, req SendMessageRequest) (domain.Message, error) {
	if err := ValidateSendMessage(req); err != nil {
		return domain.Message{}, err
	}
	return s.router.Send(ctx, sessionID, req.SenderID, req.Text)
}

// Messages returns the log of a session to one of its members.
func (s *ChatService) Messages(sessionID domain.SessionID, participantID string) ([]domain.Message, error) {
	session, err := s.registry.Get(sessionID)
	if err != nil {
		return nil, err
	}
	if !session.HasMember(participantID) {
		return nil, errors.ErrNotSessionMember
	}
	return s.router.Messages(sessionID), nil
}

// LeaveSession records that a member left, here and on the other observers.
func (s *ChatService) LeaveSession(ctx context.Context, sessionID domain.SessionID, participantID string) (domain.Session, error) {
	return s.sessions.Leave(ctx, sessionID, participantID)
}

func (s *ChatService) CloseSession(ctx context.Context, sessionID domain.SessionID) (domain.Session, error) {
	return s.sessions.Close(ctx, sessionID)
}

func (s *ChatService) Typing(ctx context.Context, sessionID domain.SessionID, participantID string) error {
	return s.sessions.Typing(ctx, sessionID, participantID)
}

// Connect attaches the event stream of a participant. A participant still in a session
// catches up with the messages other observers hold for it.
func (s *ChatService) Connect(ctx context.Context, participantID string, sink contract.EventSink) {
	s.registry.Connect(participantID, sink)
	if session, ok := s.registry.SessionOf(participantID); ok && session.State != domain.SessionClosed {
		s.sessions.RequestHistory(ctx, session.ID)
	}
}

func (s *ChatService) Disconnect(participantID string, sink contract.EventSink) {
	s.registry.Disconnect(participantID, sink)
}
