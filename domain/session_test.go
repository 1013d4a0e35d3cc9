package domain

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCanonicalSessionID(t *testing.T) {
	req := require.New(t)
	joinedAt := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	alice := Participant{ID: "user-a", JoinedAt: joinedAt}
	bob := Participant{ID: "user-b", JoinedAt: joinedAt.Add(time.Second)}

	// Then the id does not depend on the order the pair was discovered in
	id := CanonicalSessionID(alice, bob)
	req.Equal(id, CanonicalSessionID(bob, alice))
	req.True(strings.HasPrefix(string(id), "1v1-"))
	req.Len(string(id), len("1v1-")+32)

	// And a retry with a fresh JoinedAt yields another session
	req.NotEqual(id, CanonicalSessionID(alice.Rejoin(joinedAt.Add(time.Minute)), bob.Rejoin(joinedAt.Add(time.Minute))))

	// And sub-millisecond noise is ignored
	noisy := alice
	noisy.JoinedAt = joinedAt.Add(300 * time.Microsecond)
	req.Equal(id, CanonicalSessionID(noisy, bob))

	// And ids containing the separator cannot be shifted into one another
	req.NotEqual(
		CanonicalSessionID(Participant{ID: "a|b", JoinedAt: joinedAt}, Participant{ID: "c", JoinedAt: joinedAt}),
		CanonicalSessionID(Participant{ID: "a", JoinedAt: joinedAt}, Participant{ID: "b|c", JoinedAt: joinedAt}))
}

func TestNewSession_Ties_Keep_ID_Order(t *testing.T) {
	req := require.New(t)
	at := time.UnixMilli(1_700_000_000_000)

	session := NewSession(Participant{ID: "user-b", JoinedAt: at}, Participant{ID: "user-a", JoinedAt: at}, at)

	req.Equal([]string{"user-a", "user-b"}, session.MemberIDs())
}

func TestNewSession_Orders_Members_Oldest_First(t *testing.T) {
	req := require.New(t)
	now := time.Now()
	older := NewParticipant("Alice", "en", now)
	younger := NewParticipant("Bob", "Spanish", now.Add(time.Millisecond))

	session := NewSession(younger, older, now)

	req.Equal(SessionActive, session.State)
	req.Equal([]string{older.ID, younger.ID}, session.MemberIDs())
	req.Equal([]string{"en", "es"}, session.Languages())

	partner, ok := session.Partner(older.ID)
	req.True(ok)
	req.Equal(younger.ID, partner.ID)
	_, ok = session.Partner("stranger")
	req.False(ok)
	req.False(session.HasMember("stranger"))
}

func TestSession_Languages_Are_Distinct(t *testing.T) {
	now := time.Now()
	session := NewSession(NewParticipant("A", "fr", now), NewParticipant("B", "French", now), now)
	require.Equal(t, []string{"fr"}, session.Languages())
}

func TestQueueEntry_Before_Breaks_Ties_By_ID(t *testing.T) {
	req := require.New(t)
	at := time.UnixMilli(1_700_000_000_000)
	a := QueueEntry{Participant: Participant{ID: "a", JoinedAt: at}}
	b := QueueEntry{Participant: Participant{ID: "b", JoinedAt: at}}
	late := QueueEntry{Participant: Participant{ID: "0", JoinedAt: at.Add(time.Millisecond)}}

	req.True(a.Before(b))
	req.False(b.Before(a))
	req.True(b.Before(late))
	req.True(late.Expired(at.Add(5*time.Minute+time.Millisecond), 5*time.Minute))
	req.False(late.Expired(at.Add(time.Minute), 5*time.Minute))
}

func TestSessionState_String(t *testing.T) {
	req := require.New(t)
	req.Equal("ACTIVE", SessionActive.String())
	req.Equal("PARTNER_LEFT", SessionPartnerLeft.String())
	req.Equal("CLOSED", SessionClosed.String())
	req.Equal("UNKNOWN", SessionState(42).String())
}
