package matchmaking

import (
	"chat-pair/domain"
	"chat-pair/errors"
	"context"
	"fmt"
	"time"

	"github.com/samber/lo"
)

// Handle applies an envelope received from another observer.
// Envelopes emitted by this observer are ignored. Replays are harmless: every
// branch is idempotent and removals are remembered as tombstones.
func (q *Queue) Handle(ctx context.Context, envelope domain.Envelope) error {
	if envelope.Origin == q.observerID {
		return nil
	}
	switch envelope.Type {
	case domain.EnvelopeJoined:
		if envelope.Participant == nil || envelope.Participant.ID == "" {
			return fmt.Errorf("%w: JOINED without participant", errors.ErrInvalidPayload)
		}
		q.merge(ctx, []domain.SnapshotRecord{*envelope.Participant}, envelope.Origin)
	case domain.EnvelopeLeft:
		if envelope.ParticipantID == "" {
			return fmt.Errorf("%w: LEFT without participant id", errors.ErrInvalidPayload)
		}
		q.handleLeft(ctx, envelope)
	case domain.EnvelopePaired:
		return q.handlePaired(ctx, envelope)
	case domain.EnvelopeStateRequest:
		q.publish(ctx, domain.NewStateResponseEnvelope(q.observerID, envelope.RequesterID, q.Snapshot()))
	case domain.EnvelopeStateResponse:
		q.merge(ctx, envelope.Queue, envelope.Origin)
	default:
		return fmt.Errorf("%w: %q", errors.ErrUnknownEnvelope, envelope.Type)
	}
	return nil
}

// Merge folds records into the queue: union by id, earliest JoinedAt wins.
// Stale and tombstoned records are skipped.
func (q *Queue) Merge(ctx context.Context, records []domain.SnapshotRecord) {
	q.merge(ctx, records, q.observerID)
}

func (q *Queue) merge(ctx context.Context, records []domain.SnapshotRecord, origin string) {
	q.mu.Lock()
	var out outcome
	now := q.now()
	q.purgeLocked(now, &out)
	for _, record := range records {
		if record.ID == "" {
			continue
		}
		entry := domain.QueueEntry{Participant: record.Participant(), Origin: origin}
		if !q.acceptableLocked(entry.Participant, now) {
			continue
		}
		if idx := q.indexLocked(entry.ID); idx >= 0 {
			if !entry.JoinedAt.Before(q.entries[idx].JoinedAt) {
				continue
			}
			existing, _ := q.removeLocked(entry.ID, &out)
			entry.Origin = existing.Origin
		}
		q.insertLocked(entry, &out)
	}
	q.pairLocked(now, &out)
	q.finishLocked(&out)
	q.mu.Unlock()

	q.flush(ctx, out)
}

func (q *Queue) handleLeft(ctx context.Context, envelope domain.Envelope) {
	q.mu.Lock()
	var out outcome
	now := q.now()
	q.purgeLocked(now, &out)
	leftAt := now
	if envelope.At > 0 {
		leftAt = time.UnixMilli(envelope.At).UTC()
	}
	q.removeLocked(envelope.ParticipantID, &out)
	q.tombstoneLocked(envelope.ParticipantID, leftAt)
	delete(q.local, envelope.ParticipantID)
	q.finishLocked(&out)
	q.mu.Unlock()

	q.flush(ctx, out)
}

// handlePaired removes both members and registers the announced session.
// The session id is recomputed from the members and must match the announced one.
func (q *Queue) handlePaired(ctx context.Context, envelope domain.Envelope) error {
	var members []domain.Participant
	if len(envelope.Members) == 2 {
		members = lo.Map(envelope.Members, func(r domain.SnapshotRecord, _ int) domain.Participant {
			return r.Participant()
		})
		if id := domain.CanonicalSessionID(members[0], members[1]); id != envelope.SessionID {
			return fmt.Errorf("%w: announced %s, computed %s", errors.ErrCanonicalIDMismatch, envelope.SessionID, id)
		}
	}

	q.mu.Lock()
	var out outcome
	now := q.now()
	q.purgeLocked(now, &out)
	if members == nil {
		// Legacy announcement without member records: only the removal can be applied.
		for _, id := range []string{envelope.ParticipantID, envelope.PartnerID} {
			if id == "" {
				continue
			}
			entry, ok := q.removeLocked(id, &out)
			q.tombstoneLocked(id, lo.Ternary(ok, entry.JoinedAt, now))
		}
	} else {
		for _, member := range members {
			q.removeLocked(member.ID, &out)
			q.tombstoneLocked(member.ID, member.JoinedAt)
		}
		session, _ := q.sessions.Create(members[0], members[1])
		q.notifyLocked(session, now, &out)
	}
	q.pairLocked(now, &out)
	q.finishLocked(&out)
	q.mu.Unlock()

	q.flush(ctx, out)
	return nil
}
