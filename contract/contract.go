//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"chat-pair/domain"
	"chat-pair/domain/event"
	"context"
	"reflect"
	"time"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

type WorkerName string

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker initialization
// or lifecycle events, avoiding the need for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

type EventSink interface {
	Consume(ctx context.Context, e event.DomainEvent) error
}

// Transport is the broadcast channel shared by every observer of a queue.
// Delivery is at-least-once and unordered; observers that are not listening miss messages.
type Transport interface {
	Publish(ctx context.Context, envelope domain.Envelope) error
	Receive() <-chan domain.Envelope
	Close() error
}

type Translator interface {
	Translate(ctx context.Context, text, fromLanguage, toLanguage string) (string, error)
}

type LanguageDetector interface {
	DetectLanguage(ctx context.Context, text string) (domain.Detection, error)
}

// TranslationGateway is the external translation collaborator.
type TranslationGateway interface {
	Translator
	LanguageDetector
}

// SnapshotStore keeps the last known queue so that a restarted observer can warm up.
type SnapshotStore interface {
	SaveSnapshot(records []domain.SnapshotRecord) error
	LoadSnapshot() ([]domain.SnapshotRecord, error)
}

// SessionStore is the part of the session registry the pairing queue relies on.
type SessionStore interface {
	Create(a, b domain.Participant) (domain.Session, bool)
	Get(sessionID domain.SessionID) (domain.Session, error)
}

type IRegistry interface {
	SessionStore
	SessionOf(participantID string) (domain.Session, bool)
	MarkLeft(sessionID domain.SessionID, participantID string) (domain.Session, error)
	Close(sessionID domain.SessionID) (domain.Session, error)
	EvictClosed(before time.Time) []domain.SessionID
	Connect(participantID string, sink EventSink)
	Disconnect(participantID string, sink EventSink)
	IsConnected(participantID string) bool
	SinksFor(participantIDs []string) []EventSink
}
