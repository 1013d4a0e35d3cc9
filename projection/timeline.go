// Package projection builds local timelines from observed events.
// Handles ordering, deduplication, and projections.
// Does not emit events or interact with UI directly.
package projection

import (
	"chat-pair/domain"
	"chat-pair/domain/event"
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// Timeline holds the messages of one session as seen by one participant.
// Events may arrive duplicated, and a translation may arrive before its message.
type Timeline struct {
	Owner     string
	SessionID domain.SessionID

	mu      sync.RWMutex
	order   []uuid.UUID
	byID    map[uuid.UUID]*domain.Message
	pending map[uuid.UUID]event.MessageTranslated
	closed  bool
	// typing is the member announced as typing, until a message of theirs arrives.
	typing string
}

func NewTimeline(owner string, sessionID domain.SessionID) *Timeline {
	return &Timeline{
		Owner:     owner,
		SessionID: sessionID,
		byID:      make(map[uuid.UUID]*domain.Message),
		pending:   make(map[uuid.UUID]event.MessageTranslated),
	}
}

func (t *Timeline) Consume(_ context.Context, e event.DomainEvent) error {
	switch evt := e.(type) {
	case event.MessageSent:
		t.Record(evt.Message)
	case event.MessageTranslated:
		if evt.SessionID == t.SessionID {
			t.applyTranslations(evt)
		}
	case event.SessionClosed:
		if evt.SessionID == t.SessionID {
			t.mu.Lock()
			t.closed = true
			t.typing = ""
			t.mu.Unlock()
		}
	case event.Typing:
		if evt.SessionID == t.SessionID && evt.ParticipantID != t.Owner {
			t.mu.Lock()
			t.typing = evt.ParticipantID
			t.mu.Unlock()
		}
	}
	return nil
}

// Record adds a message, typically the one the owner just sent. A known id is ignored.
func (t *Timeline) Record(message domain.Message) {
	if message.SessionID != t.SessionID {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.typing == message.SenderID {
		t.typing = ""
	}
	if _, ok := t.byID[message.ID]; ok {
		return
	}
	stored := message.Clone()
	t.byID[message.ID] = &stored
	t.order = append(t.order, message.ID)
	if evt, ok := t.pending[message.ID]; ok {
		delete(t.pending, message.ID)
		stored.ApplyTranslations(evt.DetectedLanguage, evt.Translations)
	}
}

func (t *Timeline) applyTranslations(evt event.MessageTranslated) {
	t.mu.Lock()
	defer t.mu.Unlock()
	message, ok := t.byID[evt.MessageID]
	if !ok {
		t.pending[evt.MessageID] = evt
		return
	}
	message.ApplyTranslations(evt.DetectedLanguage, evt.Translations)
}

// Messages returns the messages in arrival order.
func (t *Timeline) Messages() []domain.Message {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return lo.Map(t.order, func(id uuid.UUID, _ int) domain.Message { return t.byID[id].Clone() })
}

// Text returns what the owner reads for a message: the translation into language when there is one.
func (t *Timeline) Text(messageID uuid.UUID, language string) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	message, ok := t.byID[messageID]
	if !ok {
		return "", false
	}
	if translated, ok := message.Translations[domain.NormalizeLanguage(language)]; ok {
		return translated, true
	}
	return message.OriginalText, true
}

func (t *Timeline) Closed() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.closed
}

// PartnerTyping reports whether the partner was announced typing and has not sent since.
func (t *Timeline) PartnerTyping() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.typing != ""
}
