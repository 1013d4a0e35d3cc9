package runtime

import (
	"chat-pair/contract"
	"chat-pair/domain"
	"chat-pair/errors"
	"sync"
	"time"
)

// Registry owns the sessions of an observer and the live connection (sink) of each participant.
// Sessions are keyed by their canonical id, so that creating the same pair twice is a no-op.
type Registry struct {
	mu           sync.RWMutex
	now          func() time.Time
	sinks        map[string]contract.EventSink // map participant -> Sink
	sessions     map[domain.SessionID]domain.Session
	participants map[string]domain.SessionID // map participant -> last session
}

func NewRegistry(now func() time.Time) *Registry {
	if now == nil {
		now = time.Now
	}
	return &Registry{
		now:          now,
		sinks:        make(map[string]contract.EventSink),
		sessions:     make(map[domain.SessionID]domain.Session),
		participants: make(map[string]domain.SessionID),
	}
}

// Create registers the session of a pair.
// It returns false, together with the existing session, when the canonical id is already known.
func (r *Registry) Create(a, b domain.Participant) (domain.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := domain.CanonicalSessionID(a, b)
	if existing, ok := r.sessions[id]; ok {
		return existing, false
	}
	session := domain.NewSession(a, b, r.now())
	r.sessions[id] = session
	r.participants[a.ID] = id
	r.participants[b.ID] = id
	return session, true
}

func (r *Registry) Get(sessionID domain.SessionID) (domain.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	session, ok := r.sessions[sessionID]
	if !ok {
		return domain.Session{}, errors.ErrSessionNotFound
	}
	return session, nil
}

// SessionOf returns the latest session of a participant.
func (r *Registry) SessionOf(participantID string) (domain.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.participants[participantID]
	if !ok {
		return domain.Session{}, false
	}
	session, ok := r.sessions[id]
	return session, ok
}

// MarkLeft records that a member left.
// The first departure turns an active session into PartnerLeft, the second one closes it.
func (r *Registry) MarkLeft(sessionID domain.SessionID, participantID string) (domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[sessionID]
	if !ok {
		return domain.Session{}, errors.ErrSessionNotFound
	}
	if !session.HasMember(participantID) {
		return domain.Session{}, errors.ErrNotSessionMember
	}
	switch session.State {
	case domain.SessionActive:
		session.State = domain.SessionPartnerLeft
		session.LeftBy = participantID
	case domain.SessionPartnerLeft:
		if session.LeftBy != participantID {
			session.State = domain.SessionClosed
			session.ClosedAt = r.now()
		}
	}
	r.sessions[sessionID] = session
	return session, nil
}

// Close ends a session whatever its state. Closing it again keeps the first ClosedAt.
func (r *Registry) Close(sessionID domain.SessionID) (domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[sessionID]
	if !ok {
		return domain.Session{}, errors.ErrSessionNotFound
	}
	if session.State != domain.SessionClosed {
		session.State = domain.SessionClosed
		session.ClosedAt = r.now()
		r.sessions[sessionID] = session
	}
	return session, nil
}

// EvictClosed forgets the sessions closed before the given time and returns their ids.
// A participant whose latest session is evicted no longer resolves through SessionOf.
func (r *Registry) EvictClosed(before time.Time) []domain.SessionID {
	r.mu.Lock()
	defer r.mu.Unlock()

	var evicted []domain.SessionID
	for id, session := range r.sessions {
		if session.State != domain.SessionClosed || !session.ClosedAt.Before(before) {
			continue
		}
		delete(r.sessions, id)
		for _, member := range session.MemberIDs() {
			if r.participants[member] == id {
				delete(r.participants, member)
			}
		}
		evicted = append(evicted, id)
	}
	return evicted
}

// Connect attaches the live connection of a participant, replacing the previous one.
func (r *Registry) Connect(participantID string, sink contract.EventSink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sinks[participantID] = sink
}

// Disconnect detaches a connection, only if it is still the current one:
// a reconnection racing with the cleanup of the old connection must survive.
func (r *Registry) Disconnect(participantID string, sink contract.EventSink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if current, ok := r.sinks[participantID]; ok && current == sink {
		delete(r.sinks, participantID)
	}
}

func (r *Registry) IsConnected(participantID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.sinks[participantID]
	return ok
}

// SinksFor resolves participant ids into their connections, skipping the disconnected ones.
func (r *Registry) SinksFor(participantIDs []string) []contract.EventSink {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var sinks []contract.EventSink
	for _, id := range participantIDs {
		if sink, ok := r.sinks[id]; ok {
			sinks = append(sinks, sink)
		}
	}
	return sinks
}
