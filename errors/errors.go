package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrWorkerPanic         = fmt.Errorf("worker panic")
	ErrInvalidPayload      = fmt.Errorf("invalid event payload")
	ErrUnknownEnvelope     = fmt.Errorf("unknown coordination envelope")
	ErrCanonicalIDMismatch = fmt.Errorf("session id does not match its members")
	ErrTransportClosed     = fmt.Errorf("coordination transport closed")

	ErrParticipantNotFound = fmt.Errorf("participant not found")
	ErrStaleParticipant    = fmt.Errorf("participant entry is stale")
	ErrSessionNotFound     = fmt.Errorf("session not found")
	ErrSessionInactive     = fmt.Errorf("session is not active")
	ErrNotSessionMember    = fmt.Errorf("participant is not a member of the session")
	ErrSameParticipant     = fmt.Errorf("a participant cannot be paired with itself")
	ErrEmptyText           = fmt.Errorf("message text is empty")
	ErrInvalidRequest      = fmt.Errorf("invalid request")

	ErrTranslationFailed = fmt.Errorf("translation failed")
	ErrDetectionFailed   = fmt.Errorf("language detection failed")
	ErrCircuitOpen       = fmt.Errorf("translation gateway circuit open")

	ErrEmptyWords = fmt.Errorf("no censored words loaded")
)

// MapToHTTPStatus translates domain errors into the status code returned by the HTTP API.
func MapToHTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrParticipantNotFound), errors.Is(err, ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrNotSessionMember):
		return http.StatusForbidden
	case errors.Is(err, ErrSessionInactive):
		return http.StatusConflict
	case errors.Is(err, ErrStaleParticipant):
		return http.StatusGone
	case errors.Is(err, ErrEmptyText), errors.Is(err, ErrSameParticipant), errors.Is(err, ErrInvalidRequest),
		errors.Is(err, ErrInvalidPayload):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
