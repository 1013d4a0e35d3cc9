package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNormalizeLanguage(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"en", "en"},
		{" ES ", "es"},
		{"Spanish", "es"},
		{"japanese", "ja"},
		{"klingon", "klingon"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			require.Equal(t, tt.expected, NormalizeLanguage(tt.input))
		})
	}
}

func TestLanguageName(t *testing.T) {
	req := require.New(t)
	req.Equal("French", LanguageName("fr"))
	req.Equal("French", LanguageName("French"))
	req.Equal("xx", LanguageName("xx"))
	req.True(IsSupportedLanguage("German"))
	req.False(IsSupportedLanguage("xx"))
}

func TestMessage_ApplyTranslations_Once_Per_Language(t *testing.T) {
	req := require.New(t)
	sender := NewParticipant("Bob", "es", time.Now())
	message := NewMessage("1v1-abc", sender, "hola", time.Now())
	req.True(message.Translating)
	req.Equal("es", message.OriginalLanguage)

	// When translations are applied twice
	applied := message.ApplyTranslations("es", map[string]string{"en": "hello", "es": "hola"})
	replayed := message.ApplyTranslations("fr", map[string]string{"en": "hi", "fr": "salut"})

	// Then the first value of each language wins and the detection is kept
	req.Equal(2, applied)
	req.Equal(1, replayed)
	req.Equal("hello", message.Translations["en"])
	req.Equal("salut", message.Translations["fr"])
	req.Equal("es", message.DetectedLanguage)
	req.False(message.Translating)

	// And a clone does not share its translations
	clone := message.Clone()
	clone.Translations["de"] = "hallo"
	req.NotContains(message.Translations, "de")
}

func TestUnavailableTranslation(t *testing.T) {
	require.Equal(t, "[Translation unavailable] hola", UnavailableTranslation("hola"))
}
