package domain

import (
	"maps"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// EnvelopeType names a coordination protocol message exchanged between observers.
type EnvelopeType string

const (
	EnvelopeJoined        EnvelopeType = "JOINED"
	EnvelopeLeft          EnvelopeType = "LEFT"
	EnvelopePaired        EnvelopeType = "PAIRED"
	EnvelopeStateRequest  EnvelopeType = "STATE_REQUEST"
	EnvelopeStateResponse EnvelopeType = "STATE_RESPONSE"

	EnvelopeMessage           EnvelopeType = "MESSAGE"
	EnvelopeMessageTranslated EnvelopeType = "MESSAGE_TRANSLATED"
	EnvelopeTyping            EnvelopeType = "TYPING"
	EnvelopeSessionLeft       EnvelopeType = "SESSION_LEFT"
	EnvelopeSessionClosed     EnvelopeType = "SESSION_CLOSED"
	EnvelopeHistoryRequest    EnvelopeType = "HISTORY_REQUEST"
	EnvelopeHistoryResponse   EnvelopeType = "HISTORY_RESPONSE"
)

// SessionScoped reports whether the envelope carries the traffic of a session
// rather than the state of the queue.
func (t EnvelopeType) SessionScoped() bool {
	switch t {
	case EnvelopeMessage, EnvelopeMessageTranslated, EnvelopeTyping, EnvelopeSessionLeft,
		EnvelopeSessionClosed, EnvelopeHistoryRequest, EnvelopeHistoryResponse:
		return true
	default:
		return false
	}
}

// SnapshotRecord is the wire and storage form of a queue entry.
// Timestamp is the JoinedAt in unix milliseconds.
type SnapshotRecord struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	Language  string `json:"language"`
	Timestamp int64  `json:"timestamp"`
}

func ToRecord(p Participant) SnapshotRecord {
	return SnapshotRecord{
		ID:        p.ID,
		Username:  p.DisplayName,
		Language:  p.PreferredLanguage,
		Timestamp: p.JoinedAt.UnixMilli(),
	}
}

func (r SnapshotRecord) Participant() Participant {
	return Participant{
		ID:                r.ID,
		DisplayName:       r.Username,
		PreferredLanguage: NormalizeLanguage(r.Language),
		JoinedAt:          time.UnixMilli(r.Timestamp).UTC(),
	}
}

func ToRecords(participants []Participant) []SnapshotRecord {
	return lo.Map(participants, func(p Participant, _ int) SnapshotRecord { return ToRecord(p) })
}

// MessageRecord is the wire form of a chat message.
type MessageRecord struct {
	ID               uuid.UUID         `json:"id"`
	SessionID        SessionID         `json:"sessionId"`
	SenderID         string            `json:"senderId"`
	Text             string            `json:"text"`
	Language         string            `json:"language"`
	DetectedLanguage string            `json:"detectedLanguage,omitempty"`
	Translations     map[string]string `json:"translations,omitempty"`
	SentAt           time.Time         `json:"sentAt"`
}

func ToMessageRecord(m Message) MessageRecord {
	return MessageRecord{
		ID:               m.ID,
		SessionID:        m.SessionID,
		SenderID:         m.SenderID,
		Text:             m.OriginalText,
		Language:         m.OriginalLanguage,
		DetectedLanguage: m.DetectedLanguage,
		Translations:     maps.Clone(m.Translations),
		SentAt:           m.SentAt,
	}
}

// Message rebuilds the message as it was sent, translations left out.
func (r MessageRecord) Message() Message {
	return Message{
		ID:               r.ID,
		SessionID:        r.SessionID,
		SenderID:         r.SenderID,
		OriginalText:     r.Text,
		OriginalLanguage: r.Language,
		Translations:     make(map[string]string),
		Translating:      true,
		SentAt:           r.SentAt,
	}
}

// Envelope is a single message on the coordination transport.
// Origin identifies the observer that emitted it; observers ignore their own envelopes.
type Envelope struct {
	Type          EnvelopeType     `json:"type"`
	Origin        string           `json:"origin"`
	Participant   *SnapshotRecord  `json:"participant,omitempty"`
	ParticipantID string           `json:"participantId,omitempty"`
	PartnerID     string           `json:"partnerId,omitempty"`
	SessionID     SessionID        `json:"sessionId,omitempty"`
	Members       []SnapshotRecord `json:"members,omitempty"`
	RequesterID   string           `json:"requesterId,omitempty"`
	Queue         []SnapshotRecord `json:"queue,omitempty"`
	At            int64            `json:"at,omitempty"`
	Message       *MessageRecord   `json:"message,omitempty"`
	History       []MessageRecord  `json:"history,omitempty"`
}

func NewJoinedEnvelope(origin string, p Participant) Envelope {
	return Envelope{Type: EnvelopeJoined, Origin: origin, Participant: lo.ToPtr(ToRecord(p))}
}

func NewLeftEnvelope(origin, participantID string, at time.Time) Envelope {
	return Envelope{Type: EnvelopeLeft, Origin: origin, ParticipantID: participantID, At: at.UnixMilli()}
}

func NewPairedEnvelope(origin string, s Session) Envelope {
	return Envelope{
		Type:          EnvelopePaired,
		Origin:        origin,
		SessionID:     s.ID,
		ParticipantID: s.Members[0].ID,
		PartnerID:     s.Members[1].ID,
		Members:       ToRecords(s.Members[:]),
	}
}

func NewStateRequestEnvelope(origin string) Envelope {
	return Envelope{Type: EnvelopeStateRequest, Origin: origin, RequesterID: origin}
}

func NewStateResponseEnvelope(origin, requesterID string, queue []Participant) Envelope {
	return Envelope{Type: EnvelopeStateResponse, Origin: origin, RequesterID: requesterID, Queue: ToRecords(queue)}
}

func NewMessageEnvelope(origin string, m Message) Envelope {
	return Envelope{Type: EnvelopeMessage, Origin: origin, SessionID: m.SessionID, Message: lo.ToPtr(ToMessageRecord(m))}
}

// NewMessageTranslatedEnvelope carries the message together with its translations, so that an
// observer that missed the MESSAGE envelope can still deliver it.
func NewMessageTranslatedEnvelope(origin string, m Message) Envelope {
	return Envelope{Type: EnvelopeMessageTranslated, Origin: origin, SessionID: m.SessionID, Message: lo.ToPtr(ToMessageRecord(m))}
}

func NewTypingEnvelope(origin string, sessionID SessionID, participantID string) Envelope {
	return Envelope{Type: EnvelopeTyping, Origin: origin, SessionID: sessionID, ParticipantID: participantID}
}

func NewSessionLeftEnvelope(origin string, sessionID SessionID, participantID string, at time.Time) Envelope {
	return Envelope{Type: EnvelopeSessionLeft, Origin: origin, SessionID: sessionID, ParticipantID: participantID, At: at.UnixMilli()}
}

func NewSessionClosedEnvelope(origin string, sessionID SessionID, at time.Time) Envelope {
	return Envelope{Type: EnvelopeSessionClosed, Origin: origin, SessionID: sessionID, At: at.UnixMilli()}
}

func NewHistoryRequestEnvelope(origin string, sessionID SessionID) Envelope {
	return Envelope{Type: EnvelopeHistoryRequest, Origin: origin, SessionID: sessionID, RequesterID: origin}
}

func NewHistoryResponseEnvelope(origin, requesterID string, sessionID SessionID, history []Message) Envelope {
	return Envelope{
		Type:        EnvelopeHistoryResponse,
		Origin:      origin,
		RequesterID: requesterID,
		SessionID:   sessionID,
		History:     lo.Map(history, func(m Message, _ int) MessageRecord { return ToMessageRecord(m) }),
	}
}
