// Package domain contains core concepts of the chat system.
// This file defines Message events and related rules.
// A message is immutable except for its translations, which are filled once per language.
package domain

import (
	"maps"
	"time"

	"github.com/google/uuid"
)

// Message represents a chat line sent inside a session.
type Message struct {
	ID               uuid.UUID
	SessionID        SessionID
	SenderID         string
	OriginalText     string
	OriginalLanguage string // language selected by the sender, not necessarily the detected one
	DetectedLanguage string // empty until detection completes
	Translations     map[string]string
	Translating      bool
	SentAt           time.Time
}

func NewMessage(sessionID SessionID, sender Participant, text string, sentAt time.Time) Message {
	return Message{
		ID:               uuid.New(),
		SessionID:        sessionID,
		SenderID:         sender.ID,
		OriginalText:     text,
		OriginalLanguage: sender.PreferredLanguage,
		Translations:     make(map[string]string),
		Translating:      true,
		SentAt:           sentAt,
	}
}

// Clone returns a copy that does not share the translation map.
func (m Message) Clone() Message {
	m.Translations = maps.Clone(m.Translations)
	if m.Translations == nil {
		m.Translations = make(map[string]string)
	}
	return m
}

// ApplyTranslations attaches the translation results.
// A language that already has a translation is left untouched, so replays are harmless.
// It returns the number of languages actually written.
func (m *Message) ApplyTranslations(detected string, translations map[string]string) int {
	if m.Translations == nil {
		m.Translations = make(map[string]string)
	}
	if m.DetectedLanguage == "" {
		m.DetectedLanguage = detected
	}
	applied := 0
	for lang, text := range translations {
		if _, ok := m.Translations[lang]; ok {
			continue
		}
		m.Translations[lang] = text
		applied++
	}
	m.Translating = false
	return applied
}
