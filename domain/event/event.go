package event

import (
	"chat-pair/domain"
	"time"

	"github.com/google/uuid"
)

type Type string

const (
	PairedType            Type = "PAIRED"
	QueueUpdatedType      Type = "QUEUE_UPDATED"
	MatchTimedOutType     Type = "MATCH_TIMED_OUT"
	MessageSentType       Type = "MESSAGE_SENT"
	MessageTranslatedType Type = "MESSAGE_TRANSLATED"
	PartnerLeftType       Type = "PARTNER_LEFT"
	SessionClosedType     Type = "SESSION_CLOSED"
	TypingType            Type = "TYPING"
)

// DomainEvent is delivered to the sinks of its recipients.
type DomainEvent interface {
	Type() Type
	Recipients() []string
}

// Paired tells a participant that a partner was found.
type Paired struct {
	SessionID     domain.SessionID
	ParticipantID string
	Partner       domain.Participant
	At            time.Time
}

func (e Paired) Type() Type           { return PairedType }
func (e Paired) Recipients() []string { return []string{e.ParticipantID} }

// QueueUpdated carries the queue size to the participants still waiting.
type QueueUpdated struct {
	Waiting []string
	Size    int
}

func (e QueueUpdated) Type() Type           { return QueueUpdatedType }
func (e QueueUpdated) Recipients() []string { return e.Waiting }

// MatchTimedOut is emitted when nobody was found in time; the participant may retry.
type MatchTimedOut struct {
	ParticipantID string
	Waited        time.Duration
}

func (e MatchTimedOut) Type() Type           { return MatchTimedOutType }
func (e MatchTimedOut) Recipients() []string { return []string{e.ParticipantID} }

// MessageSent is published as soon as a message is accepted, before any translation.
type MessageSent struct {
	Message domain.Message
	To      []string
}

func (e MessageSent) Type() Type           { return MessageSentType }
func (e MessageSent) Recipients() []string { return e.To }

// MessageTranslated carries every translation of a message once they all resolved.
type MessageTranslated struct {
	SessionID        domain.SessionID
	MessageID        uuid.UUID
	DetectedLanguage string
	Translations     map[string]string
	Latency          time.Duration
	To               []string
}

func (e MessageTranslated) Type() Type           { return MessageTranslatedType }
func (e MessageTranslated) Recipients() []string { return e.To }

// PartnerLeft tells the remaining member that the other one left the session.
type PartnerLeft struct {
	SessionID     domain.SessionID
	ParticipantID string
	To            []string
}

func (e PartnerLeft) Type() Type           { return PartnerLeftType }
func (e PartnerLeft) Recipients() []string { return e.To }

type SessionClosed struct {
	SessionID domain.SessionID
	To        []string
}

func (e SessionClosed) Type() Type           { return SessionClosedType }
func (e SessionClosed) Recipients() []string { return e.To }

// Typing tells a member that the partner is composing a message.
type Typing struct {
	SessionID     domain.SessionID
	ParticipantID string
	To            []string
}

func (e Typing) Type() Type           { return TypingType }
func (e Typing) Recipients() []string { return e.To }
