// Package matchmaking pairs waiting participants into two-party sessions.
// Every observer owns one Queue; observers sharing a coordination transport converge
// to the same membership by merging entries by id and honouring removal tombstones.
package matchmaking

import (
	"chat-pair/contract"
	"chat-pair/domain"
	"chat-pair/domain/event"
	"chat-pair/errors"
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/samber/lo"
)

const (
	DefaultTTL          = 5 * time.Minute
	DefaultMatchTimeout = 60 * time.Second
)

// Mode decides whether an observer forms pairs itself.
type Mode string

const (
	// ModePeer pairs on every membership change. A single peer observer acts as the arbiter.
	ModePeer Mode = "peer"
	// ModeFollower never pairs and applies the PAIRED announcements of an arbiter.
	ModeFollower Mode = "follower"
)

type Config struct {
	ObserverID   string
	Mode         Mode
	TTL          time.Duration
	MatchTimeout time.Duration
	Now          func() time.Time
}

// JoinResult is either a queue position (1-based) or the session formed by the join.
type JoinResult struct {
	Position int
	Session  *domain.Session
}

func (r JoinResult) Paired() bool { return r.Session != nil }

type Queue struct {
	mu           sync.Mutex
	log          *slog.Logger
	observerID   string
	mode         Mode
	ttl          time.Duration
	matchTimeout time.Duration
	now          func() time.Time
	transport    contract.Transport
	sessions     contract.SessionStore
	snapshots    contract.SnapshotStore

	entries []domain.QueueEntry
	// tombstones reject any incarnation of an id joined at or before the recorded time.
	tombstones map[string]time.Time
	local      map[string]domain.Participant
	timedOut   map[string]domain.Participant
	pairedWith map[string]domain.SessionID
	notified   map[string]time.Time

	onPaired  observers[event.Paired]
	onUpdate  observers[event.QueueUpdated]
	onTimeout observers[event.MatchTimedOut]
}

// NewQueue builds the queue of one observer. transport and snapshots may be nil:
// the queue then behaves as a lone, non-durable observer.
func NewQueue(log *slog.Logger, config Config, transport contract.Transport,
	sessions contract.SessionStore, snapshots contract.SnapshotStore) *Queue {
	q := &Queue{
		log:          log,
		observerID:   config.ObserverID,
		mode:         lo.CoalesceOrEmpty(config.Mode, ModePeer),
		ttl:          lo.CoalesceOrEmpty(config.TTL, DefaultTTL),
		matchTimeout: lo.CoalesceOrEmpty(config.MatchTimeout, DefaultMatchTimeout),
		now:          config.Now,
		transport:    transport,
		sessions:     sessions,
		snapshots:    snapshots,
		tombstones:   make(map[string]time.Time),
		local:        make(map[string]domain.Participant),
		timedOut:     make(map[string]domain.Participant),
		pairedWith:   make(map[string]domain.SessionID),
		notified:     make(map[string]time.Time),
	}
	if q.now == nil {
		q.now = time.Now
	}
	return q
}

func (q *Queue) ObserverID() string { return q.observerID }

// OnPaired registers a listener called once per local participant and pairing.
func (q *Queue) OnPaired(fn func(event.Paired)) (unsubscribe func()) {
	return q.onPaired.add(fn)
}

// OnQueueUpdate registers a listener called whenever the membership changed.
func (q *Queue) OnQueueUpdate(fn func(event.QueueUpdated)) (unsubscribe func()) {
	return q.onUpdate.add(fn)
}

func (q *Queue) OnTimeout(fn func(event.MatchTimedOut)) (unsubscribe func()) {
	return q.onTimeout.add(fn)
}

// outcome collects what a mutation has to publish once the lock is released.
type outcome struct {
	envelopes []domain.Envelope
	paired    []event.Paired
	timeouts  []event.MatchTimedOut
	sessions  []domain.Session
	changed   bool
	update    event.QueueUpdated
	snapshot  []domain.SnapshotRecord
}

// Start warms the queue up from the snapshot store and asks the other observers for their view.
func (q *Queue) Start(ctx context.Context) {
	if q.snapshots != nil {
		records, err := q.snapshots.LoadSnapshot()
		if err != nil {
			q.log.Warn("Unable to load queue snapshot", "error", err)
		} else {
			q.Merge(ctx, records)
		}
	}
	q.RequestState(ctx)
}

// RequestState broadcasts a STATE_REQUEST, answered by every listening observer.
func (q *Queue) RequestState(ctx context.Context) {
	q.publish(ctx, domain.NewStateRequestEnvelope(q.observerID))
}

// Join inserts the participant unless an entry with the same id already exists,
// then pairs synchronously. The participant becomes local to this observer:
// it is the one receiving its Paired and MatchTimedOut events.
func (q *Queue) Join(ctx context.Context, p domain.Participant) (JoinResult, error) {
	q.mu.Lock()
	var out outcome
	now := q.now()
	q.purgeLocked(now, &out)

	if idx := q.indexLocked(p.ID); idx >= 0 {
		q.local[p.ID] = q.entries[idx].Participant
		q.finishLocked(&out)
		q.mu.Unlock()
		q.flush(ctx, out)
		return JoinResult{Position: idx + 1}, nil
	}

	if !q.acceptableLocked(p, now) {
		sessionID, paired := q.pairedWith[p.ID]
		q.finishLocked(&out)
		q.mu.Unlock()
		q.flush(ctx, out)
		if paired {
			if session, err := q.sessions.Get(sessionID); err == nil {
				return JoinResult{Session: &session}, nil
			}
		}
		return JoinResult{}, errors.ErrStaleParticipant
	}

	q.local[p.ID] = p
	delete(q.timedOut, p.ID)
	q.insertLocked(domain.QueueEntry{Participant: p, Origin: q.observerID}, &out)
	out.envelopes = append(out.envelopes, domain.NewJoinedEnvelope(q.observerID, p))
	q.pairLocked(now, &out)

	result := JoinResult{Position: q.indexLocked(p.ID) + 1}
	if session, ok := lo.Find(out.sessions, func(s domain.Session) bool { return s.HasMember(p.ID) }); ok {
		result = JoinResult{Session: &session}
	}
	q.finishLocked(&out)
	q.mu.Unlock()

	q.flush(ctx, out)
	return result, nil
}

// Leave removes the participant. It is idempotent and always broadcasts LEFT,
// so that observers still holding the entry drop it too.
func (q *Queue) Leave(ctx context.Context, participantID string) {
	q.mu.Lock()
	var out outcome
	now := q.now()
	q.purgeLocked(now, &out)
	q.removeLocked(participantID, &out)
	q.tombstoneLocked(participantID, now)
	delete(q.local, participantID)
	delete(q.timedOut, participantID)
	out.envelopes = append(out.envelopes, domain.NewLeftEnvelope(q.observerID, participantID, now))
	q.finishLocked(&out)
	q.mu.Unlock()

	q.flush(ctx, out)
}

// Retry re-joins a participant whose match timed out, with a fresh JoinedAt.
// A participant still waiting keeps its current position.
func (q *Queue) Retry(ctx context.Context, participantID string) (JoinResult, error) {
	q.mu.Lock()
	if idx := q.indexLocked(participantID); idx >= 0 {
		q.mu.Unlock()
		return JoinResult{Position: idx + 1}, nil
	}
	p, ok := q.timedOut[participantID]
	at := millis(q.now())
	if removedAt, found := q.tombstones[participantID]; found && !at.After(removedAt) {
		at = removedAt.Add(time.Millisecond)
	}
	q.mu.Unlock()
	if !ok {
		return JoinResult{}, errors.ErrParticipantNotFound
	}
	return q.Join(ctx, p.Rejoin(at))
}

// ExpireWaiting removes the local participants that waited longer than the match timeout.
// They receive a MatchTimedOut event and may Retry.
func (q *Queue) ExpireWaiting(ctx context.Context) {
	q.mu.Lock()
	var out outcome
	now := q.now()
	q.purgeLocked(now, &out)
	for _, entry := range slices.Clone(q.entries) {
		if _, ok := q.local[entry.ID]; !ok || now.Sub(entry.JoinedAt) < q.matchTimeout {
			continue
		}
		q.removeLocked(entry.ID, &out)
		q.tombstoneLocked(entry.ID, now)
		delete(q.local, entry.ID)
		q.timedOut[entry.ID] = entry.Participant
		out.envelopes = append(out.envelopes, domain.NewLeftEnvelope(q.observerID, entry.ID, now))
		out.timeouts = append(out.timeouts, event.MatchTimedOut{
			ParticipantID: entry.ID,
			Waited:        now.Sub(entry.JoinedAt),
		})
	}
	q.finishLocked(&out)
	q.mu.Unlock()

	q.flush(ctx, out)
}

func (q *Queue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.purgeLocked(q.now(), &outcome{})
	return len(q.entries)
}

// Position returns the 1-based position of a waiting participant.
func (q *Queue) Position(participantID string) (int, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.purgeLocked(q.now(), &outcome{})
	idx := q.indexLocked(participantID)
	return idx + 1, idx >= 0
}

// Snapshot returns the waiting participants in FIFO order.
func (q *Queue) Snapshot() []domain.Participant {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.purgeLocked(q.now(), &outcome{})
	return q.participantsLocked()
}

// SessionOf returns the last session a local participant was paired into.
func (q *Queue) SessionOf(participantID string) (domain.SessionID, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	id, ok := q.pairedWith[participantID]
	return id, ok
}

func (q *Queue) participantsLocked() []domain.Participant {
	return lo.Map(q.entries, func(e domain.QueueEntry, _ int) domain.Participant { return e.Participant })
}

func (q *Queue) indexLocked(participantID string) int {
	return slices.IndexFunc(q.entries, func(e domain.QueueEntry) bool { return e.ID == participantID })
}

func (q *Queue) insertLocked(entry domain.QueueEntry, out *outcome) {
	idx, _ := slices.BinarySearchFunc(q.entries, entry, compareEntries)
	q.entries = slices.Insert(q.entries, idx, entry)
	out.changed = true
}

func (q *Queue) removeLocked(participantID string, out *outcome) (domain.QueueEntry, bool) {
	idx := q.indexLocked(participantID)
	if idx < 0 {
		return domain.QueueEntry{}, false
	}
	entry := q.entries[idx]
	q.entries = slices.Delete(q.entries, idx, idx+1)
	out.changed = true
	return entry, true
}

func (q *Queue) acceptableLocked(p domain.Participant, now time.Time) bool {
	if (domain.QueueEntry{Participant: p}).Expired(now, q.ttl) {
		return false
	}
	if removedAt, ok := q.tombstones[p.ID]; ok && !p.JoinedAt.After(removedAt) {
		return false
	}
	return true
}

func (q *Queue) tombstoneLocked(participantID string, at time.Time) {
	at = millis(at)
	if current, ok := q.tombstones[participantID]; !ok || at.After(current) {
		q.tombstones[participantID] = at
	}
}

// purgeLocked drops stale entries silently, along with the bookkeeping they no longer need.
func (q *Queue) purgeLocked(now time.Time, out *outcome) {
	before := len(q.entries)
	q.entries = slices.DeleteFunc(q.entries, func(e domain.QueueEntry) bool {
		return e.Expired(now, q.ttl)
	})
	if len(q.entries) != before {
		out.changed = true
	}
	for id, at := range q.tombstones {
		if now.Sub(at) >= q.ttl {
			delete(q.tombstones, id)
		}
	}
	for key, at := range q.notified {
		if now.Sub(at) >= q.ttl {
			delete(q.notified, key)
		}
	}
}

// pairLocked takes the two oldest entries while at least two are waiting.
func (q *Queue) pairLocked(now time.Time, out *outcome) {
	if q.mode == ModeFollower {
		return
	}
	for len(q.entries) >= 2 {
		a, b := q.entries[0], q.entries[1]
		q.entries = slices.Delete(q.entries, 0, 2)
		q.tombstoneLocked(a.ID, a.JoinedAt)
		q.tombstoneLocked(b.ID, b.JoinedAt)
		out.changed = true

		session, created := q.sessions.Create(a.Participant, b.Participant)
		out.sessions = append(out.sessions, session)
		if created {
			q.log.Info("Participants paired",
				"session_id", session.ID, "first", a.ID, "second", b.ID, "observer", q.observerID)
			out.envelopes = append(out.envelopes, domain.NewPairedEnvelope(q.observerID, session))
		} else {
			q.log.Debug("Pairing already registered, treated as confirmation", "session_id", session.ID)
		}
		q.notifyLocked(session, now, out)
	}
}

// notifyLocked queues one Paired event per local member, once per canonical session id.
func (q *Queue) notifyLocked(session domain.Session, now time.Time, out *outcome) {
	for _, member := range session.Members {
		if _, ok := q.local[member.ID]; !ok {
			continue
		}
		key := string(session.ID) + "/" + member.ID
		if _, done := q.notified[key]; done {
			continue
		}
		if previous, ok := q.pairedWith[member.ID]; ok && previous != session.ID {
			q.log.Warn("Pairing conflict: participant announced in two sessions",
				"participant_id", member.ID, "previous", previous, "session_id", session.ID)
		}
		q.notified[key] = now
		q.pairedWith[member.ID] = session.ID
		delete(q.local, member.ID)
		partner, _ := session.Partner(member.ID)
		out.paired = append(out.paired, event.Paired{
			SessionID:     session.ID,
			ParticipantID: member.ID,
			Partner:       partner,
			At:            now,
		})
	}
}

func (q *Queue) finishLocked(out *outcome) {
	if !out.changed {
		return
	}
	participants := q.participantsLocked()
	out.snapshot = domain.ToRecords(participants)
	out.update = event.QueueUpdated{
		Size: len(participants),
		Waiting: lo.FilterMap(participants, func(p domain.Participant, _ int) (string, bool) {
			_, ok := q.local[p.ID]
			return p.ID, ok
		}),
	}
}

// flush publishes what a mutation produced. It runs without the lock.
func (q *Queue) flush(ctx context.Context, out outcome) {
	for _, envelope := range out.envelopes {
		q.publish(ctx, envelope)
	}
	for _, paired := range out.paired {
		q.onPaired.emit(paired)
	}
	for _, timeout := range out.timeouts {
		q.onTimeout.emit(timeout)
	}
	if !out.changed {
		return
	}
	q.onUpdate.emit(out.update)
	if q.snapshots != nil {
		if err := q.snapshots.SaveSnapshot(out.snapshot); err != nil {
			q.log.Warn("Unable to save queue snapshot", "error", err)
		}
	}
}

// publish is best effort: a failed send is logged and never retried,
// the next mutation or state sync re-broadcasts the state.
func (q *Queue) publish(ctx context.Context, envelope domain.Envelope) {
	if q.transport == nil {
		return
	}
	if err := q.transport.Publish(ctx, envelope); err != nil {
		q.log.Warn("Coordination broadcast failed",
			"type", envelope.Type, "observer", q.observerID, "error", err)
	}
}

func millis(t time.Time) time.Time {
	return time.UnixMilli(t.UnixMilli()).UTC()
}

func compareEntries(a, b domain.QueueEntry) int {
	switch {
	case a.Before(b):
		return -1
	case b.Before(a):
		return 1
	default:
		return 0
	}
}
