package translation

import (
	"chat-pair/domain"
	"chat-pair/errors"
	"chat-pair/mocks"
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestCachedGateway_Translate_Hits_The_Service_Once(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	next := mocks.NewMockTranslationGateway(ctrl)
	gateway, err := NewCachedGateway(next, 1<<20)
	req.NoError(err)
	defer gateway.Close()
	ctx := context.Background()

	// Given the service translates once
	next.EXPECT().Translate(gomock.Any(), "hola", "es", "en").Return("hello", nil).Times(1)

	// When the same translation is asked twice
	first, err := gateway.Translate(ctx, "hola", "es", "en")
	req.NoError(err)
	gateway.Wait()
	second, err := gateway.Translate(ctx, "hola", "es", "en")

	// Then the second answer comes from the cache
	req.NoError(err)
	req.Equal("hello", first)
	req.Equal("hello", second)
}

func TestCachedGateway_Failures_Are_Not_Cached(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	next := mocks.NewMockTranslationGateway(ctrl)
	gateway, err := NewCachedGateway(next, 1<<20)
	req.NoError(err)
	defer gateway.Close()
	ctx := context.Background()

	gomock.InOrder(
		next.EXPECT().Translate(gomock.Any(), "hola", "es", "fr").Return("", errors.ErrTranslationFailed),
		next.EXPECT().Translate(gomock.Any(), "hola", "es", "fr").Return("salut", nil),
	)

	_, err = gateway.Translate(ctx, "hola", "es", "fr")
	req.ErrorIs(err, errors.ErrTranslationFailed)
	gateway.Wait()

	translated, err := gateway.Translate(ctx, "hola", "es", "fr")
	req.NoError(err)
	req.Equal("salut", translated)
}

func TestCachedGateway_DetectLanguage(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	next := mocks.NewMockTranslationGateway(ctrl)
	gateway, err := NewCachedGateway(next, 1<<20)
	req.NoError(err)
	defer gateway.Close()
	ctx := context.Background()

	next.EXPECT().DetectLanguage(gomock.Any(), "bonjour à tous").
		Return(domain.Detection{Language: "fr", Confidence: 0.8}, nil).Times(1)

	_, err = gateway.DetectLanguage(ctx, "bonjour à tous")
	req.NoError(err)
	gateway.Wait()
	detection, err := gateway.DetectLanguage(ctx, "bonjour à tous")

	req.NoError(err)
	req.Equal("fr", detection.Language)
}
