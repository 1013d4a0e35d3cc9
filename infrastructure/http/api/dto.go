// Package api holds the JSON forms exchanged with the presentation layer,
// over the REST routes and the websocket event stream.
package api

import (
	"chat-pair/domain"
	"chat-pair/domain/event"
	"chat-pair/errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

type ParticipantDTO struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Language string `json:"language"`
	JoinedAt int64  `json:"joinedAt"`
}

type SessionDTO struct {
	ID        string           `json:"id"`
	State     string           `json:"state"`
	Members   []ParticipantDTO `json:"members"`
	CreatedAt time.Time        `json:"createdAt"`
	LeftBy    string           `json:"leftBy,omitempty"`
}

type JoinResponse struct {
	Participant ParticipantDTO `json:"participant"`
	Position    int            `json:"position,omitempty"`
	Session     *SessionDTO    `json:"session,omitempty"`
}

type QueueSizeResponse struct {
	Size int `json:"size"`
}

type MessageDTO struct {
	ID               string            `json:"id"`
	SessionID        string            `json:"sessionId"`
	SenderID         string            `json:"senderId"`
	OriginalText     string            `json:"originalText"`
	OriginalLanguage string            `json:"originalLanguage"`
	DetectedLanguage string            `json:"detectedLanguage,omitempty"`
	Translations     map[string]string `json:"translations"`
	Translating      bool              `json:"translating"`
	SentAt           time.Time         `json:"sentAt"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

// EventDTO is one frame of the event stream. Only the fields of its type are set.
type EventDTO struct {
	Type             event.Type        `json:"type"`
	SessionID        string            `json:"sessionId,omitempty"`
	ParticipantID    string            `json:"participantId,omitempty"`
	Partner          *ParticipantDTO   `json:"partner,omitempty"`
	QueueSize        int               `json:"queueSize,omitempty"`
	WaitedMs         int64             `json:"waitedMs,omitempty"`
	Message          *MessageDTO       `json:"message,omitempty"`
	MessageID        string            `json:"messageId,omitempty"`
	DetectedLanguage string            `json:"detectedLanguage,omitempty"`
	Translations     map[string]string `json:"translations,omitempty"`
	LatencyMs        int64             `json:"latencyMs,omitempty"`
}

func FromParticipant(p domain.Participant) ParticipantDTO {
	return ParticipantDTO{ID: p.ID, Username: p.DisplayName, Language: p.PreferredLanguage, JoinedAt: p.JoinedAt.UnixMilli()}
}

func FromSession(s domain.Session) SessionDTO {
	return SessionDTO{
		ID:        string(s.ID),
		State:     s.State.String(),
		Members:   lo.Map(s.Members[:], func(p domain.Participant, _ int) ParticipantDTO { return FromParticipant(p) }),
		CreatedAt: s.CreatedAt,
		LeftBy:    s.LeftBy,
	}
}

func FromMessage(m domain.Message) MessageDTO {
	return MessageDTO{
		ID:               m.ID.String(),
		SessionID:        string(m.SessionID),
		SenderID:         m.SenderID,
		OriginalText:     m.OriginalText,
		OriginalLanguage: m.OriginalLanguage,
		DetectedLanguage: m.DetectedLanguage,
		Translations:     lo.Assign(map[string]string{}, m.Translations),
		Translating:      m.Translating,
		SentAt:           m.SentAt,
	}
}

func FromMessages(messages []domain.Message) []MessageDTO {
	return lo.Map(messages, func(m domain.Message, _ int) MessageDTO { return FromMessage(m) })
}

func (m MessageDTO) ToMessage() (domain.Message, error) {
	id, err := uuid.Parse(m.ID)
	if err != nil {
		return domain.Message{}, fmt.Errorf("%w: message id %q", errors.ErrInvalidPayload, m.ID)
	}
	return domain.Message{
		ID:               id,
		SessionID:        domain.SessionID(m.SessionID),
		SenderID:         m.SenderID,
		OriginalText:     m.OriginalText,
		OriginalLanguage: m.OriginalLanguage,
		DetectedLanguage: m.DetectedLanguage,
		Translations:     lo.Assign(map[string]string{}, m.Translations),
		Translating:      m.Translating,
		SentAt:           m.SentAt,
	}, nil
}

// FromEvent maps a domain event to its stream frame. Unknown events are not streamed.
func FromEvent(e event.DomainEvent) (EventDTO, bool) {
	dto := EventDTO{Type: e.Type()}
	switch evt := e.(type) {
	case event.Paired:
		dto.SessionID = string(evt.SessionID)
		dto.ParticipantID = evt.ParticipantID
		dto.Partner = lo.ToPtr(FromParticipant(evt.Partner))
	case event.QueueUpdated:
		dto.QueueSize = evt.Size
	case event.MatchTimedOut:
		dto.ParticipantID = evt.ParticipantID
		dto.WaitedMs = evt.Waited.Milliseconds()
	case event.MessageSent:
		dto.SessionID = string(evt.Message.SessionID)
		dto.Message = lo.ToPtr(FromMessage(evt.Message))
	case event.MessageTranslated:
		dto.SessionID = string(evt.SessionID)
		dto.MessageID = evt.MessageID.String()
		dto.DetectedLanguage = evt.DetectedLanguage
		dto.Translations = evt.Translations
		dto.LatencyMs = evt.Latency.Milliseconds()
	case event.PartnerLeft:
		dto.SessionID = string(evt.SessionID)
		dto.ParticipantID = evt.ParticipantID
	case event.SessionClosed:
		dto.SessionID = string(evt.SessionID)
	case event.Typing:
		dto.SessionID = string(evt.SessionID)
		dto.ParticipantID = evt.ParticipantID
	default:
		return EventDTO{}, false
	}
	return dto, true
}

// ToEvent rebuilds the domain event of a received frame. Recipients are not part of the frame.
func (d EventDTO) ToEvent() (event.DomainEvent, error) {
	sessionID := domain.SessionID(d.SessionID)
	switch d.Type {
	case event.PairedType:
		paired := event.Paired{SessionID: sessionID, ParticipantID: d.ParticipantID}
		if d.Partner != nil {
			paired.Partner = domain.Participant{
				ID: d.Partner.ID, DisplayName: d.Partner.Username, PreferredLanguage: d.Partner.Language,
				JoinedAt: time.UnixMilli(d.Partner.JoinedAt).UTC(),
			}
		}
		return paired, nil
	case event.QueueUpdatedType:
		return event.QueueUpdated{Size: d.QueueSize}, nil
	case event.MatchTimedOutType:
		return event.MatchTimedOut{ParticipantID: d.ParticipantID, Waited: time.Duration(d.WaitedMs) * time.Millisecond}, nil
	case event.MessageSentType:
		if d.Message == nil {
			return nil, fmt.Errorf("%w: %s without message", errors.ErrInvalidPayload, d.Type)
		}
		message, err := d.Message.ToMessage()
		if err != nil {
			return nil, err
		}
		return event.MessageSent{Message: message}, nil
	case event.MessageTranslatedType:
		id, err := uuid.Parse(d.MessageID)
		if err != nil {
			return nil, fmt.Errorf("%w: message id %q", errors.ErrInvalidPayload, d.MessageID)
		}
		return event.MessageTranslated{
			SessionID: sessionID, MessageID: id, DetectedLanguage: d.DetectedLanguage,
			Translations: d.Translations, Latency: time.Duration(d.LatencyMs) * time.Millisecond,
		}, nil
	case event.PartnerLeftType:
		return event.PartnerLeft{SessionID: sessionID, ParticipantID: d.ParticipantID}, nil
	case event.SessionClosedType:
		return event.SessionClosed{SessionID: sessionID}, nil
	case event.TypingType:
		return event.Typing{SessionID: sessionID, ParticipantID: d.ParticipantID}, nil
	default:
		return nil, fmt.Errorf("%w: event type %q", errors.ErrInvalidPayload, d.Type)
	}
}
