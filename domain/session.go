package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/samber/lo"
)

const sessionIDPrefix = "1v1-"

// SessionID is the opaque room key handed to the presentation layer.
type SessionID string

type SessionState int

const (
	SessionActive SessionState = iota
	SessionPartnerLeft
	SessionClosed
)

func (s SessionState) String() string {
	switch s {
	case SessionActive:
		return "ACTIVE"
	case SessionPartnerLeft:
		return "PARTNER_LEFT"
	case SessionClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// Session is a two-party chat formed by a pairing.
// Members keep the FIFO order of the pairing: the oldest entry comes first.
type Session struct {
	ID        SessionID
	Members   [2]Participant
	CreatedAt time.Time
	State     SessionState
	// LeftBy is the member that left first, empty while the session is active.
	LeftBy string
	// ClosedAt is set once the session reaches SessionClosed.
	ClosedAt time.Time
}

// CanonicalSessionID derives the session id of a pair.
// The ids are sorted lexicographically, length-prefixed and concatenated with the earliest
// JoinedAt in unix milliseconds, so that every observer discovering the same pair computes
// the same id, whatever the order in which it saw the two participants.
// A retry (fresh JoinedAt) yields a new id.
func CanonicalSessionID(a, b Participant) SessionID {
	low, high := a.ID, b.ID
	if high < low {
		low, high = high, low
	}
	earliest := min(a.JoinedAt.UnixMilli(), b.JoinedAt.UnixMilli())
	sum := sha256.Sum256([]byte(fmt.Sprintf("%d:%s|%d:%s|%d", len(low), low, len(high), high, earliest)))
	return SessionID(sessionIDPrefix + hex.EncodeToString(sum[:16]))
}

// NewSession builds an active session for a pair, oldest participant first.
func NewSession(a, b Participant, createdAt time.Time) Session {
	first, second := a, b
	if (QueueEntry{Participant: b}).Before(QueueEntry{Participant: a}) {
		first, second = b, a
	}
	return Session{
		ID:        CanonicalSessionID(a, b),
		Members:   [2]Participant{first, second},
		CreatedAt: createdAt,
		State:     SessionActive,
	}
}

func (s Session) HasMember(participantID string) bool {
	return s.Members[0].ID == participantID || s.Members[1].ID == participantID
}

// Partner returns the other member of the session.
func (s Session) Partner(participantID string) (Participant, bool) {
	switch participantID {
	case s.Members[0].ID:
		return s.Members[1], true
	case s.Members[1].ID:
		return s.Members[0], true
	default:
		return Participant{}, false
	}
}

func (s Session) Member(participantID string) (Participant, bool) {
	return lo.Find(s.Members[:], func(p Participant) bool { return p.ID == participantID })
}

func (s Session) MemberIDs() []string {
	return []string{s.Members[0].ID, s.Members[1].ID}
}

// Languages returns the distinct preferred languages of the members, in member order.
func (s Session) Languages() []string {
	return lo.Uniq(lo.Map(s.Members[:], func(p Participant, _ int) string {
		return p.PreferredLanguage
	}))
}
