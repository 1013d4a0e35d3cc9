package translation

import (
	"chat-pair/errors"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

func newTranslationServer(t *testing.T, calls *atomic.Int32) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/translate", func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		var req translateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if req.ToLanguage == "xx" {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_ = json.NewEncoder(w).Encode(translateResponse{TranslatedText: "[" + req.ToLanguage + "] " + req.Text})
	})
	mux.HandleFunc("/detect-language", func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_ = json.NewEncoder(w).Encode(detectResponse{DetectedLanguage: "Spanish", Confidence: 0.9})
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestHTTPGateway_Translate(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	var calls atomic.Int32
	server := newTranslationServer(t, &calls)
	gateway := NewHTTPGateway(log, server.Client(), server.URL+"/", time.Second, nil)

	// When a text is translated
	translated, err := gateway.Translate(context.Background(), "hola", "es", "en")

	// Then the service answer is returned
	req.NoError(err)
	req.Equal("[en] hola", translated)
	req.Equal(int32(1), calls.Load())
}

func TestHTTPGateway_Translate_Same_Language_Skips_The_Service(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	var calls atomic.Int32
	server := newTranslationServer(t, &calls)
	gateway := NewHTTPGateway(log, server.Client(), server.URL, time.Second, nil)

	translated, err := gateway.Translate(context.Background(), "hola", "spanish", "es")

	req.NoError(err)
	req.Equal("hola", translated)
	req.Zero(calls.Load())
}

func TestHTTPGateway_Translate_Service_Error(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	var calls atomic.Int32
	server := newTranslationServer(t, &calls)
	gateway := NewHTTPGateway(log, server.Client(), server.URL, time.Second, nil)

	_, err := gateway.Translate(context.Background(), "hola", "es", "xx")

	req.ErrorIs(err, errors.ErrTranslationFailed)
}

func TestHTTPGateway_Translate_Timeout(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(server.Close)
	t.Cleanup(func() { close(release) })
	gateway := NewHTTPGateway(log, server.Client(), server.URL, 50*time.Millisecond, nil)

	// When the service never answers
	_, err := gateway.Translate(context.Background(), "hola", "es", "en")

	// Then the call is bounded by the per-call timeout
	req.ErrorIs(err, errors.ErrTranslationFailed)
	req.ErrorIs(err, context.DeadlineExceeded)
}

func TestHTTPGateway_DetectLanguage(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	var calls atomic.Int32
	server := newTranslationServer(t, &calls)
	gateway := NewHTTPGateway(log, server.Client(), server.URL, time.Second, nil)

	// When a text is detected by a service answering with language names
	detection, err := gateway.DetectLanguage(context.Background(), "hola amigos")

	// Then the language is normalised to its code
	req.NoError(err)
	req.Equal("es", detection.Language)
	req.InDelta(0.9, detection.Confidence, 0.001)
}

func TestHTTPGateway_DetectLanguage_Short_Text(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	var calls atomic.Int32
	server := newTranslationServer(t, &calls)
	gateway := NewHTTPGateway(log, server.Client(), server.URL, time.Second, nil)

	detection, err := gateway.DetectLanguage(context.Background(), " ok ")

	req.NoError(err)
	req.Equal("en", detection.Language)
	req.Equal(ShortTextConfidence, detection.Confidence)
	req.Zero(calls.Load())
}

func TestHTTPGateway_Circuit_Opens_After_Failures(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	var calls atomic.Int32
	server := newTranslationServer(t, &calls)
	breaker := NewCircuitBreaker(log, "translation", 2, time.Minute)
	gateway := NewHTTPGateway(log, server.Client(), server.URL, time.Second, breaker)
	ctx := context.Background()

	// Given two failed calls
	for i := 0; i < 2; i++ {
		_, err := gateway.Translate(ctx, "hola", "es", "xx")
		req.Error(err)
	}

	// When a third call is made
	_, err := gateway.Translate(ctx, "hola", "es", "en")

	// Then the service is not called anymore
	req.ErrorIs(err, errors.ErrCircuitOpen)
	req.ErrorIs(err, errors.ErrTranslationFailed)
	req.Equal(int32(2), calls.Load())
}
