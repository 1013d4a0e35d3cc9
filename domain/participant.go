// Package domain contains core concepts of the chat system.
// This file defines Participant entities and related invariants.
// No runtime, network, or UI logic should be added here.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Participant is an anonymous user waiting for, or taking part in, a chat.
// It is immutable once created: a retry produces a new value through Rejoin.
type Participant struct {
	ID                string
	DisplayName       string
	PreferredLanguage string
	JoinedAt          time.Time
}

// NewParticipant creates a participant with a fresh identifier.
// JoinedAt is kept at millisecond precision so that every observer computes
// the same canonical session id from the wire representation.
func NewParticipant(displayName, language string, joinedAt time.Time) Participant {
	return Participant{
		ID:                "user-" + uuid.NewString(),
		DisplayName:       displayName,
		PreferredLanguage: NormalizeLanguage(language),
		JoinedAt:          toMillis(joinedAt),
	}
}

// Rejoin returns the same participant with a fresh JoinedAt.
// The new value takes a new queue position and never resumes the old one.
func (p Participant) Rejoin(at time.Time) Participant {
	p.JoinedAt = toMillis(at)
	return p
}

func toMillis(t time.Time) time.Time {
	return time.UnixMilli(t.UnixMilli()).UTC()
}

// QueueEntry is a participant waiting in a pairing queue.
// Its position is implicit: entries are ordered by JoinedAt, then by ID.
type QueueEntry struct {
	Participant
	// Origin is the observer that first announced the entry.
	Origin string
}

// Before reports whether e must be paired before o.
func (e QueueEntry) Before(o QueueEntry) bool {
	if !e.JoinedAt.Equal(o.JoinedAt) {
		return e.JoinedAt.Before(o.JoinedAt)
	}
	return e.ID < o.ID
}

// Expired reports whether the entry outlived the queue TTL.
func (e QueueEntry) Expired(now time.Time, ttl time.Duration) bool {
	return now.Sub(e.JoinedAt) >= ttl
}
