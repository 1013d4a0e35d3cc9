package internal

import (
	"chat-pair/domain"
	"chat-pair/infrastructure/storage"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

func TestInspectHandler_Renders_Snapshot_Rows(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	req.NoError(err)
	defer db.Close()

	// Given a stored snapshot with two waiting participants
	joinedAt := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	repository := storage.NewSnapshotRepository(db, log, "")
	req.NoError(repository.SaveSnapshot([]domain.SnapshotRecord{
		{ID: "p-alice", Username: "Alice", Language: "en", Timestamp: joinedAt.UnixMilli()},
		{ID: "p-bob", Username: "Bob", Language: "es", Timestamp: joinedAt.Add(time.Second).UnixMilli()},
	}))

	now := func() time.Time { return joinedAt.Add(time.Minute) }
	handler := InspectHandler(db, SnapshotMapper(now), func() map[string]any {
		return map[string]any{"observer": "observer-a"}
	})

	// When the inspector page is requested
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/inspect", nil))

	// Then every participant is listed with its waiting time
	req.Equal(http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	req.NoError(err)
	req.Contains(string(body), "p-alice")
	req.Contains(string(body), "p-bob")
	req.Contains(string(body), "1m0s")
	req.Contains(string(body), "observer-a")
}

func TestSnapshotMapper_Malformed_Value(t *testing.T) {
	rows := SnapshotMapper(time.Now)("queue:snapshot", []byte("{oops"))
	require.Len(t, rows, 1)
	require.Equal(t, "Error: unmarshal failed", rows[0].Detail)
}

func TestSnapshotMapper_Empty_Queue(t *testing.T) {
	rows := SnapshotMapper(time.Now)("queue:snapshot", []byte("[]"))
	require.Len(t, rows, 1)
	require.Equal(t, "Empty queue", rows[0].Detail)
}
