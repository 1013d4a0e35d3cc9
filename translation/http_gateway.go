// Package translation talks to the external translation service and wraps it with
// local detection, caching and a circuit breaker.
package translation

import (
	"bytes"
	"chat-pair/domain"
	"chat-pair/errors"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"
)

// MinDetectableLength is the shortest text sent to a detector; shorter texts get the default language.
const MinDetectableLength = 3

// ShortTextConfidence is the confidence reported for texts too short to be detected.
const ShortTextConfidence = 0.5

type translateRequest struct {
	Text         string `json:"text"`
	FromLanguage string `json:"fromLanguage"`
	ToLanguage   string `json:"toLanguage"`
}

type translateResponse struct {
	TranslatedText string `json:"translatedText"`
	Error          string `json:"error,omitempty"`
}

type detectRequest struct {
	Text string `json:"text"`
}

type detectResponse struct {
	DetectedLanguage string  `json:"detectedLanguage"`
	Confidence       float64 `json:"confidence"`
	Error            string  `json:"error,omitempty"`
}

// HTTPGateway calls the translation service over HTTP:
// POST {base}/translate and POST {base}/detect-language.
type HTTPGateway struct {
	log     *slog.Logger
	client  *http.Client
	baseURL string
	timeout time.Duration
	breaker *CircuitBreaker
}

func NewHTTPGateway(log *slog.Logger, client *http.Client, baseURL string, timeout time.Duration, breaker *CircuitBreaker) *HTTPGateway {
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPGateway{
		log:     log,
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: timeout,
		breaker: breaker,
	}
}

// Translate returns the text unchanged when both languages are the same.
func (g *HTTPGateway) Translate(ctx context.Context, text, fromLanguage, toLanguage string) (string, error) {
	from, to := domain.NormalizeLanguage(fromLanguage), domain.NormalizeLanguage(toLanguage)
	if from == to || strings.TrimSpace(text) == "" {
		return text, nil
	}

	var resp translateResponse
	err := g.call(ctx, "/translate", translateRequest{Text: text, FromLanguage: from, ToLanguage: to}, &resp)
	if err != nil {
		return "", fmt.Errorf("%w: %s->%s: %w", errors.ErrTranslationFailed, from, to, err)
	}
	if resp.Error != "" || resp.TranslatedText == "" {
		return "", fmt.Errorf("%w: %s->%s: %s", errors.ErrTranslationFailed, from, to, resp.Error)
	}
	return resp.TranslatedText, nil
}

// DetectLanguage normalises the detected language to its ISO 639-1 code.
func (g *HTTPGateway) DetectLanguage(ctx context.Context, text string) (domain.Detection, error) {
	if detection, ok := shortTextDetection(text); ok {
		return detection, nil
	}

	var resp detectResponse
	if err := g.call(ctx, "/detect-language", detectRequest{Text: text}, &resp); err != nil {
		return domain.Detection{}, fmt.Errorf("%w: %w", errors.ErrDetectionFailed, err)
	}
	if resp.Error != "" || resp.DetectedLanguage == "" {
		return domain.Detection{}, fmt.Errorf("%w: %s", errors.ErrDetectionFailed, resp.Error)
	}
	return domain.Detection{
		Language:   domain.NormalizeLanguage(resp.DetectedLanguage),
		Confidence: resp.Confidence,
	}, nil
}

func (g *HTTPGateway) call(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}
	do := func(ctx context.Context) error {
		if g.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, g.timeout)
			defer cancel()
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := g.client.Do(req)
		if err != nil {
			return fmt.Errorf("failed to send request: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
			return fmt.Errorf("translation service error: status %d, body: %s", resp.StatusCode, string(bodyBytes))
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
		return nil
	}

	start := time.Now()
	if g.breaker != nil {
		err = g.breaker.Execute(ctx, do)
	} else {
		err = do(ctx)
	}
	g.log.Debug("Translation service call", "path", path, "duration", time.Since(start), "error", err)
	return err
}

func shortTextDetection(text string) (domain.Detection, bool) {
	if utf8.RuneCountInString(strings.TrimSpace(text)) < MinDetectableLength {
		return domain.Detection{Language: domain.DefaultLanguage, Confidence: ShortTextConfidence}, true
	}
	return domain.Detection{}, false
}
