package translation

import (
	"chat-pair/contract"
	"chat-pair/domain"
	"context"
	"fmt"

	"github.com/dgraph-io/ristretto/v2"
)

// CachedGateway memoizes successful translations (keyed by from, to and text) and detections.
// Failures are never cached so that a recovered service is used again at once.
type CachedGateway struct {
	next         contract.TranslationGateway
	translations *ristretto.Cache[string, string]
	detections   *ristretto.Cache[string, domain.Detection]
}

// NewCachedGateway bounds each cache to maxCost bytes of text.
func NewCachedGateway(next contract.TranslationGateway, maxCost int64) (*CachedGateway, error) {
	translations, err := ristretto.NewCache(&ristretto.Config[string, string]{
		NumCounters: maxCost / 10,
		MaxCost:     maxCost,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	detections, err := ristretto.NewCache(&ristretto.Config[string, domain.Detection]{
		NumCounters: maxCost / 10,
		MaxCost:     maxCost,
		BufferItems: 64,
	})
	if err != nil {
		translations.Close()
		return nil, err
	}
	return &CachedGateway{next: next, translations: translations, detections: detections}, nil
}

func (c *CachedGateway) Translate(ctx context.Context, text, fromLanguage, toLanguage string) (string, error) {
	key := fmt.Sprintf("%s-%s-%s", domain.NormalizeLanguage(fromLanguage), domain.NormalizeLanguage(toLanguage), text)
	if translated, ok := c.translations.Get(key); ok {
		return translated, nil
	}
	translated, err := c.next.Translate(ctx, text, fromLanguage, toLanguage)
	if err != nil {
		return "", err
	}
	c.translations.Set(key, translated, int64(len(key)+len(translated)))
	return translated, nil
}

func (c *CachedGateway) DetectLanguage(ctx context.Context, text string) (domain.Detection, error) {
	if detection, ok := c.detections.Get(text); ok {
		return detection, nil
	}
	detection, err := c.next.DetectLanguage(ctx, text)
	if err != nil {
		return domain.Detection{}, err
	}
	c.detections.Set(text, detection, int64(len(text)+1))
	return detection, nil
}

// Wait blocks until pending cache writes are visible.
func (c *CachedGateway) Wait() {
	c.translations.Wait()
	c.detections.Wait()
}

func (c *CachedGateway) Close() {
	c.translations.Close()
	c.detections.Close()
}
