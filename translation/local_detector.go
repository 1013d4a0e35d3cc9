package translation

import (
	"chat-pair/contract"
	"chat-pair/domain"
	"chat-pair/errors"
	"context"
	"fmt"

	"github.com/abadojack/whatlanggo"
)

// LocalDetector detects languages in-process, without any network round trip.
type LocalDetector struct{}

func NewLocalDetector() *LocalDetector {
	return &LocalDetector{}
}

func (d *LocalDetector) DetectLanguage(_ context.Context, text string) (domain.Detection, error) {
	if detection, ok := shortTextDetection(text); ok {
		return detection, nil
	}
	info := whatlanggo.Detect(text)
	code := info.Lang.Iso6391()
	if code == "" {
		return domain.Detection{}, fmt.Errorf("%w: unknown language", errors.ErrDetectionFailed)
	}
	return domain.Detection{Language: domain.NormalizeLanguage(code), Confidence: info.Confidence}, nil
}

// Gateway pairs a translator with a detector that may live elsewhere.
type Gateway struct {
	contract.Translator
	contract.LanguageDetector
}

func NewGateway(translator contract.Translator, detector contract.LanguageDetector) *Gateway {
	return &Gateway{Translator: translator, LanguageDetector: detector}
}
