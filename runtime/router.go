package runtime

import (
	"chat-pair/contract"
	"chat-pair/domain"
	"chat-pair/domain/event"
	"chat-pair/errors"
	"chat-pair/moderation"
	"context"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/sourcegraph/conc/pool"
)

const (
	DefaultTranslationTimeout = 10 * time.Second
	DefaultMessageLogSize     = 500
)

type RouterConfig struct {
	TranslationTimeout time.Duration
	// MessageLogSize bounds the messages kept per session, oldest dropped first.
	MessageLogSize int
	Now            func() time.Time
}

// MessageRouter accepts the messages of a session and attaches their translations asynchronously.
// Every member gets the message at once, untranslated, then a single MessageTranslated
// carrying one text per distinct member language.
// Once bound to a transport, the messages and their translations are also announced to the
// other observers, which deliver them to the members they hold.
type MessageRouter struct {
	announcer
	log                *slog.Logger
	sessions           contract.SessionStore
	gateway            contract.TranslationGateway
	moderator          *moderation.Moderator
	events             chan<- event.DomainEvent
	translationTimeout time.Duration
	logSize            int
	now                func() time.Time

	mu       sync.Mutex
	messages map[domain.SessionID][]uuid.UUID
	index    map[uuid.UUID]*domain.Message

	inflight sync.WaitGroup
	// background outlives the requests; it only ends with Close.
	background context.Context
	cancel     context.CancelFunc
}

// NewMessageRouter builds a router. moderator may be nil.
func NewMessageRouter(log *slog.Logger, config RouterConfig, sessions contract.SessionStore,
	gateway contract.TranslationGateway, moderator *moderation.Moderator, events chan<- event.DomainEvent) *MessageRouter {
	r := &MessageRouter{
		log:                log,
		sessions:           sessions,
		gateway:            gateway,
		moderator:          moderator,
		events:             events,
		translationTimeout: lo.CoalesceOrEmpty(config.TranslationTimeout, DefaultTranslationTimeout),
		logSize:            lo.CoalesceOrEmpty(config.MessageLogSize, DefaultMessageLogSize),
		now:                config.Now,
		messages:           make(map[domain.SessionID][]uuid.UUID),
		index:              make(map[uuid.UUID]*domain.Message),
	}
	if r.now == nil {
		r.now = time.Now
	}
	r.background, r.cancel = context.WithCancel(context.Background())
	return r
}

// WithTransport announces the messages accepted here to the other observers.
// It must be called before the router is used.
func (r *MessageRouter) WithTransport(observerID string, transport contract.Transport) *MessageRouter {
	r.announcer = announcer{log: r.log, observerID: observerID, transport: transport}
	return r
}

// Send accepts a message and returns it before any translation is known.
func (r *MessageRouter) Send(ctx context.Context, sessionID domain.SessionID, senderID, text string) (domain.Message, error) {
	if strings.TrimSpace(text) == "" {
		return domain.Message{}, errors.ErrEmptyText
	}
	session, err := r.sessions.Get(sessionID)
	if err != nil {
		return domain.Message{}, err
	}
	sender, ok := session.Member(senderID)
	if !ok {
		return domain.Message{}, errors.ErrNotSessionMember
	}
	if session.State != domain.SessionActive {
		return domain.Message{}, errors.ErrSessionInactive
	}

	if r.moderator != nil {
		if censored, words := r.moderator.Censor(text); len(words) > 0 {
			r.log.Info("Message censored", "session_id", sessionID, "participant_id", senderID, "words", len(words))
			text = censored
		}
	}

	message := domain.NewMessage(sessionID, sender, text, r.now())
	r.storeNew(message)

	partner, _ := session.Partner(senderID)
	r.publish(ctx, event.MessageSent{Message: message.Clone(), To: []string{partner.ID}})
	r.announce(ctx, domain.NewMessageEnvelope(r.observerID, message))

	r.inflight.Add(1)
	go func() {
		defer r.inflight.Done()
		r.translate(session, message.ID, text, message.SentAt)
	}()
	return message.Clone(), nil
}

// Deliver accepts a message sent through another observer and hands it to the partner of its
// sender. A message already known is ignored.
func (r *MessageRouter) Deliver(ctx context.Context, record domain.MessageRecord) error {
	session, err := r.receivable(record)
	if err != nil {
		return err
	}
	message := record.Message()
	if !r.storeNew(message) {
		return nil
	}
	partner, _ := session.Partner(message.SenderID)
	r.publish(ctx, event.MessageSent{Message: message.Clone(), To: []string{partner.ID}})
	return nil
}

// DeliverTranslations applies the translations resolved by the observer of the sender.
// The message itself is delivered first when its MESSAGE envelope was missed.
func (r *MessageRouter) DeliverTranslations(ctx context.Context, record domain.MessageRecord) error {
	if err := r.Deliver(ctx, record); err != nil {
		return err
	}
	if len(record.Translations) == 0 {
		return nil
	}
	r.complete(ctx, record.SessionID, record.ID, record.DetectedLanguage, record.Translations, record.SentAt)
	return nil
}

// Import merges the history of a session received from another observer.
// Unknown messages are delivered to every member, known ones only gain their missing translations.
// It returns the number of messages added to the log.
func (r *MessageRouter) Import(ctx context.Context, sessionID domain.SessionID, records []domain.MessageRecord) int {
	records = slices.Clone(records)
	slices.SortStableFunc(records, func(a, b domain.MessageRecord) int { return a.SentAt.Compare(b.SentAt) })

	imported := 0
	for _, record := range records {
		if record.SessionID != sessionID {
			continue
		}
		session, err := r.receivable(record)
		if err != nil {
			r.log.Debug("History entry skipped", "session_id", sessionID, "message_id", record.ID, "error", err)
			continue
		}
		message := record.Message()
		if len(record.Translations) > 0 {
			message.ApplyTranslations(record.DetectedLanguage, record.Translations)
		}
		if r.storeNew(message) {
			imported++
			r.publish(ctx, event.MessageSent{Message: message.Clone(), To: session.MemberIDs()})
			continue
		}
		if len(record.Translations) > 0 {
			r.complete(ctx, sessionID, record.ID, record.DetectedLanguage, record.Translations, record.SentAt)
		}
	}
	return imported
}

func (r *MessageRouter) receivable(record domain.MessageRecord) (domain.Session, error) {
	session, err := r.sessions.Get(record.SessionID)
	if err != nil {
		return session, err
	}
	if !session.HasMember(record.SenderID) {
		return session, errors.ErrNotSessionMember
	}
	if session.State == domain.SessionClosed {
		return session, errors.ErrSessionInactive
	}
	return session, nil
}

// Messages returns the session log, oldest first.
func (r *MessageRouter) Messages(sessionID domain.SessionID) []domain.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return lo.FilterMap(r.messages[sessionID], func(id uuid.UUID, _ int) (domain.Message, bool) {
		m, ok := r.index[id]
		if !ok {
			return domain.Message{}, false
		}
		return m.Clone(), true
	})
}

// Discard forgets the log of a closed session. Pending translations for it are dropped on completion.
func (r *MessageRouter) Discard(sessionID domain.SessionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range r.messages[sessionID] {
		delete(r.index, id)
	}
	delete(r.messages, sessionID)
}

// Wait blocks until every pending translation completed.
func (r *MessageRouter) Wait() {
	r.inflight.Wait()
}

// Close aborts pending translations and waits for them.
func (r *MessageRouter) Close() {
	r.cancel()
	r.inflight.Wait()
}

// storeNew adds a message to its session log, ordered by SentAt.
// It returns false when the message id is already known.
func (r *MessageRouter) storeNew(message domain.Message) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.index[message.ID]; ok {
		return false
	}
	stored := message.Clone()
	r.index[message.ID] = &stored

	ids := r.messages[message.SessionID]
	at := len(ids)
	for at > 0 && r.index[ids[at-1]].SentAt.After(message.SentAt) {
		at--
	}
	ids = slices.Insert(ids, at, message.ID)
	if overflow := len(ids) - r.logSize; overflow > 0 {
		for _, id := range ids[:overflow] {
			delete(r.index, id)
		}
		ids = ids[overflow:]
	}
	r.messages[message.SessionID] = ids
	return true
}

type translationResult struct {
	language string
	text     string
}

// translate detects the source language once, then translates concurrently for every
// distinct member language. It is detached from the sender request: leaving never cancels it.
func (r *MessageRouter) translate(session domain.Session, messageID uuid.UUID, text string, sentAt time.Time) {
	ctx := r.background
	detected := r.detect(ctx, text)

	p := pool.NewWithResults[translationResult]()
	for _, language := range session.Languages() {
		if language == detected {
			p.Go(func() translationResult { return translationResult{language: language, text: text} })
			continue
		}
		p.Go(func() translationResult {
			callCtx, cancel := context.WithTimeout(ctx, r.translationTimeout)
			defer cancel()
			translated, err := r.gateway.Translate(callCtx, text, detected, language)
			if err != nil {
				r.log.Warn("Translation unavailable",
					"session_id", session.ID, "message_id", messageID, "to", language, "error", err)
				translated = domain.UnavailableTranslation(text)
			}
			return translationResult{language: language, text: translated}
		})
	}
	translations := lo.SliceToMap(p.Wait(), func(t translationResult) (string, string) {
		return t.language, t.text
	})

	if message, ok := r.complete(ctx, session.ID, messageID, detected, translations, sentAt); ok {
		r.announce(ctx, domain.NewMessageTranslatedEnvelope(r.observerID, message))
	}
}

// complete applies translations to a logged message and tells the members about the new ones.
// Nothing happens once the session is closed or the message left the log.
func (r *MessageRouter) complete(ctx context.Context, sessionID domain.SessionID, messageID uuid.UUID,
	detected string, translations map[string]string, sentAt time.Time) (domain.Message, bool) {
	session, err := r.sessions.Get(sessionID)
	if err != nil || session.State == domain.SessionClosed {
		r.log.Debug("Session closed before translations completed", "session_id", sessionID, "message_id", messageID)
		return domain.Message{}, false
	}

	r.mu.Lock()
	message, ok := r.index[messageID]
	applied := 0
	var updated domain.Message
	if ok {
		applied = message.ApplyTranslations(detected, translations)
		translations = lo.PickByKeys(message.Translations, lo.Keys(translations))
		updated = message.Clone()
	}
	r.mu.Unlock()
	if !ok || applied == 0 {
		return domain.Message{}, false
	}

	r.publish(ctx, event.MessageTranslated{
		SessionID:        sessionID,
		MessageID:        messageID,
		DetectedLanguage: updated.DetectedLanguage,
		Translations:     translations,
		Latency:          r.now().Sub(sentAt),
		To:               session.MemberIDs(),
	})
	return updated, true
}

func (r *MessageRouter) detect(ctx context.Context, text string) string {
	ctx, cancel := context.WithTimeout(ctx, r.translationTimeout)
	defer cancel()
	detection, err := r.gateway.DetectLanguage(ctx, text)
	if err != nil || detection.Language == "" {
		r.log.Warn("Language detection failed, using default", "default", domain.DefaultLanguage, "error", err)
		return domain.DefaultLanguage
	}
	return domain.NormalizeLanguage(detection.Language)
}

func (r *MessageRouter) publish(ctx context.Context, e event.DomainEvent) {
	select {
	case r.events <- e:
	case <-ctx.Done():
		r.log.Warn("Event dropped, context done", "type", e.Type(), "error", ctx.Err())
	}
}

// announcer publishes session envelopes on the coordination transport, best effort.
// Without a transport the observer is alone and nothing is sent.
type announcer struct {
	log        *slog.Logger
	observerID string
	transport  contract.Transport
}

func (a announcer) announce(ctx context.Context, envelope domain.Envelope) {
	if a.transport == nil {
		return
	}
	if err := a.transport.Publish(ctx, envelope); err != nil {
		a.log.Warn("Session envelope not published", "type", envelope.Type, "session_id", envelope.SessionID, "error", err)
	}
}
