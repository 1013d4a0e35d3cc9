package internal

import (
	"chat-pair/domain"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/dgraph-io/badger/v4"
)

//go:embed inspect.html
var templatesFS embed.FS

const DefaultInspectPrefix = "queue:"

type InspectRow struct {
	Key           string
	ParticipantID string
	Username      string
	Language      string
	JoinedAt      string
	Waited        string
	Detail        string
}

// RowMapper turns one stored value into the rows displayed for it.
type RowMapper func(key string, val []byte) []InspectRow
type StatsProvider func() map[string]any

type PageData struct {
	Prefix string
	Items  []InspectRow
	Stats  map[string]any
}

// InspectHandler renders every key under the ?prefix= query parameter, DefaultInspectPrefix otherwise.
func InspectHandler(db *badger.DB, mapper RowMapper, statsProvider StatsProvider) http.Handler {
	tmpl := template.Must(template.ParseFS(templatesFS, "inspect.html"))
	if mapper == nil {
		mapper = DefaultMapper
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		prefix := r.URL.Query().Get("prefix")
		if prefix == "" {
			prefix = DefaultInspectPrefix
		}

		data := PageData{Prefix: prefix, Stats: make(map[string]any)}
		if statsProvider != nil {
			data.Stats = statsProvider()
		}

		err := db.View(func(txn *badger.Txn) error {
			it := txn.NewIterator(badger.DefaultIteratorOptions)
			defer it.Close()
			for it.Seek([]byte(prefix)); it.ValidForPrefix([]byte(prefix)); it.Next() {
				item := it.Item()
				key := string(item.KeyCopy(nil))
				if err := item.Value(func(val []byte) error {
					data.Items = append(data.Items, mapper(key, val)...)
					return nil
				}); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_ = tmpl.Execute(w, data)
	})
}

// StartDebugServer serves the inspector on every interface until Shutdown is called on the returned server.
func StartDebugServer(log *slog.Logger, db *badger.DB, port int, endpoint string, mapper RowMapper, statsProvider StatsProvider) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(endpoint, InspectHandler(db, mapper, statsProvider))
	srv := &http.Server{Addr: fmt.Sprintf("0.0.0.0:%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn("Debug inspector stopped", "error", err)
		}
	}()
	return srv
}

func DefaultMapper(key string, val []byte) []InspectRow {
	return []InspectRow{{Key: key, Detail: fmt.Sprintf("Size: %d bytes", len(val))}}
}

// SnapshotMapper expands a stored queue snapshot into one row per waiting participant.
func SnapshotMapper(now func() time.Time) RowMapper {
	return func(key string, val []byte) []InspectRow {
		var records []domain.SnapshotRecord
		if err := json.Unmarshal(val, &records); err != nil {
			row := DefaultMapper(key, val)[0]
			row.Detail = "Error: unmarshal failed"
			return []InspectRow{row}
		}
		if len(records) == 0 {
			return []InspectRow{{Key: key, Detail: "Empty queue"}}
		}

		rows := make([]InspectRow, 0, len(records))
		for i, record := range records {
			joinedAt := time.UnixMilli(record.Timestamp)
			rows = append(rows, InspectRow{
				Key:           key,
				ParticipantID: record.ID,
				Username:      record.Username,
				Language:      record.Language,
				JoinedAt:      joinedAt.UTC().Format("15:04:05.000"),
				Waited:        now().Sub(joinedAt).Truncate(time.Second).String(),
				Detail:        fmt.Sprintf("Position %d", i+1),
			})
		}
		return rows
	}
}
