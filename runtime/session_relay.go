package runtime

import (
	"chat-pair/contract"
	"chat-pair/domain"
	"chat-pair/domain/event"
	"chat-pair/errors"
	"context"
	"fmt"
	"log/slog"
	"time"
)

// SessionRelay keeps the sessions of this observer in step with the other observers.
// Departures, closures, typing notices and message history are applied locally, dispatched to
// the members connected here, then announced as session envelopes. The envelopes received
// from the other observers go through the same path, without being announced again.
type SessionRelay struct {
	announcer
	log      *slog.Logger
	registry contract.IRegistry
	router   *MessageRouter
	dispatch func(event.DomainEvent)
	now      func() time.Time
}

// NewSessionRelay builds a relay. transport may be nil for a lone observer.
func NewSessionRelay(log *slog.Logger, observerID string, transport contract.Transport, registry contract.IRegistry,
	router *MessageRouter, dispatch func(event.DomainEvent)) *SessionRelay {
	return &SessionRelay{
		announcer: announcer{log: log, observerID: observerID, transport: transport},
		log:       log,
		registry:  registry,
		router:    router,
		dispatch:  dispatch,
		now:       time.Now,
	}
}

// Leave records that a member left. The remaining member is told, and once both left
// the session is closed and its log discarded. Repeated departures change nothing.
func (s *SessionRelay) Leave(ctx context.Context, sessionID domain.SessionID, participantID string) (domain.Session, error) {
	session, changed, err := s.markLeft(sessionID, participantID)
	if err != nil || !changed {
		return session, err
	}
	s.announce(ctx, domain.NewSessionLeftEnvelope(s.observerID, sessionID, participantID, s.now()))
	return session, nil
}

// Close ends a session whatever its state.
func (s *SessionRelay) Close(ctx context.Context, sessionID domain.SessionID) (domain.Session, error) {
	session, changed, err := s.close(sessionID)
	if err != nil || !changed {
		return session, err
	}
	s.announce(ctx, domain.NewSessionClosedEnvelope(s.observerID, sessionID, s.now()))
	return session, nil
}

// Typing tells the partner that a member is composing a message.
func (s *SessionRelay) Typing(ctx context.Context, sessionID domain.SessionID, participantID string) error {
	session, err := s.registry.Get(sessionID)
	if err != nil {
		return err
	}
	if !session.HasMember(participantID) {
		return errors.ErrNotSessionMember
	}
	if session.State != domain.SessionActive {
		return errors.ErrSessionInactive
	}
	s.notifyTyping(session, participantID)
	s.announce(ctx, domain.NewTypingEnvelope(s.observerID, sessionID, participantID))
	return nil
}

// RequestHistory asks the other observers for the messages of a session.
// The answers are merged into the log and delivered to the members connected here.
func (s *SessionRelay) RequestHistory(ctx context.Context, sessionID domain.SessionID) {
	s.announce(ctx, domain.NewHistoryRequestEnvelope(s.observerID, sessionID))
}

// Handle applies a session envelope received from another observer.
func (s *SessionRelay) Handle(ctx context.Context, envelope domain.Envelope) error {
	if envelope.Origin == s.observerID {
		return nil
	}
	switch envelope.Type {
	case domain.EnvelopeMessage:
		if envelope.Message == nil {
			return fmt.Errorf("%w: MESSAGE without message", errors.ErrInvalidPayload)
		}
		return s.router.Deliver(ctx, *envelope.Message)
	case domain.EnvelopeMessageTranslated:
		if envelope.Message == nil {
			return fmt.Errorf("%w: MESSAGE_TRANSLATED without message", errors.ErrInvalidPayload)
		}
		return s.router.DeliverTranslations(ctx, *envelope.Message)
	case domain.EnvelopeTyping:
		session, err := s.registry.Get(envelope.SessionID)
		if err != nil {
			return err
		}
		if !session.HasMember(envelope.ParticipantID) {
			return errors.ErrNotSessionMember
		}
		if session.State == domain.SessionActive {
			s.notifyTyping(session, envelope.ParticipantID)
		}
	case domain.EnvelopeSessionLeft:
		_, _, err := s.markLeft(envelope.SessionID, envelope.ParticipantID)
		return err
	case domain.EnvelopeSessionClosed:
		_, _, err := s.close(envelope.SessionID)
		return err
	case domain.EnvelopeHistoryRequest:
		history := s.router.Messages(envelope.SessionID)
		if len(history) > 0 {
			s.announce(ctx, domain.NewHistoryResponseEnvelope(s.observerID, envelope.RequesterID, envelope.SessionID, history))
		}
	case domain.EnvelopeHistoryResponse:
		if envelope.RequesterID != s.observerID {
			return nil
		}
		if imported := s.router.Import(ctx, envelope.SessionID, envelope.History); imported > 0 {
			s.log.Debug("Session history imported", "session_id", envelope.SessionID, "from", envelope.Origin, "messages", imported)
		}
	default:
		return fmt.Errorf("%w: %q", errors.ErrUnknownEnvelope, envelope.Type)
	}
	return nil
}

func (s *SessionRelay) markLeft(sessionID domain.SessionID, participantID string) (domain.Session, bool, error) {
	before, err := s.registry.Get(sessionID)
	if err != nil {
		return before, false, err
	}
	session, err := s.registry.MarkLeft(sessionID, participantID)
	if err != nil || session.State == before.State {
		return session, false, err
	}
	switch session.State {
	case domain.SessionPartnerLeft:
		partner, _ := session.Partner(participantID)
		s.dispatch(event.PartnerLeft{SessionID: sessionID, ParticipantID: participantID, To: []string{partner.ID}})
	case domain.SessionClosed:
		s.router.Discard(sessionID)
		s.dispatch(event.SessionClosed{SessionID: sessionID, To: session.MemberIDs()})
	}
	s.log.Info("Participant left session", "session_id", sessionID, "participant_id", participantID, "state", session.State)
	return session, true, nil
}

func (s *SessionRelay) close(sessionID domain.SessionID) (domain.Session, bool, error) {
	before, err := s.registry.Get(sessionID)
	if err != nil {
		return before, false, err
	}
	session, err := s.registry.Close(sessionID)
	if err != nil || before.State == domain.SessionClosed {
		return session, false, err
	}
	s.router.Discard(sessionID)
	s.dispatch(event.SessionClosed{SessionID: sessionID, To: session.MemberIDs()})
	s.log.Info("Session closed", "session_id", sessionID)
	return session, true, nil
}

func (s *SessionRelay) notifyTyping(session domain.Session, participantID string) {
	partner, _ := session.Partner(participantID)
	s.dispatch(event.Typing{SessionID: session.ID, ParticipantID: participantID, To: []string{partner.ID}})
}
