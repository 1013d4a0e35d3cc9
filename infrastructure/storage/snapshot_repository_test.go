package storage

import (
	"chat-pair/domain"
	"log/slog"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

func openInMemory(t *testing.T) *badger.DB {
	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	db, err := badger.Open(opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestSnapshotRepository_Save_Then_Load(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	repository := NewSnapshotRepository(openInMemory(t), log, "")
	joinedAt := time.UnixMilli(1_700_000_000_000).UTC()
	records := domain.ToRecords([]domain.Participant{
		{ID: "alice", DisplayName: "Alice", PreferredLanguage: "en", JoinedAt: joinedAt},
		{ID: "bob", DisplayName: "Bob", PreferredLanguage: "es", JoinedAt: joinedAt.Add(time.Second)},
	})

	req.NoError(repository.SaveSnapshot(records))

	loaded, err := repository.LoadSnapshot()
	req.NoError(err)
	req.Equal(records, loaded)
}

func TestSnapshotRepository_Overwrites_Previous_Snapshot(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	repository := NewSnapshotRepository(openInMemory(t), log, "")

	req.NoError(repository.SaveSnapshot([]domain.SnapshotRecord{{ID: "alice", Timestamp: 1}}))
	req.NoError(repository.SaveSnapshot(nil))

	loaded, err := repository.LoadSnapshot()
	req.NoError(err)
	req.Empty(loaded)
}

func TestSnapshotRepository_Load_Nothing_Stored(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	repository := NewSnapshotRepository(openInMemory(t), log, "")

	loaded, err := repository.LoadSnapshot()

	req.NoError(err)
	req.Nil(loaded)
}

func TestSnapshotRepository_Namespaces_Are_Isolated(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	db := openInMemory(t)
	first := NewSnapshotRepository(db, log, "observer-a")
	second := NewSnapshotRepository(db, log, "observer-b")

	req.NoError(first.SaveSnapshot([]domain.SnapshotRecord{{ID: "alice", Timestamp: 1}}))

	loaded, err := second.LoadSnapshot()
	req.NoError(err)
	req.Nil(loaded)
}
