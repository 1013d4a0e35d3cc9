package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEnvelopeType_SessionScoped(t *testing.T) {
	req := require.New(t)

	for _, queueType := range []EnvelopeType{EnvelopeJoined, EnvelopeLeft, EnvelopePaired, EnvelopeStateRequest, EnvelopeStateResponse} {
		req.False(queueType.SessionScoped(), queueType)
	}
	for _, sessionType := range []EnvelopeType{EnvelopeMessage, EnvelopeMessageTranslated, EnvelopeTyping,
		EnvelopeSessionLeft, EnvelopeSessionClosed, EnvelopeHistoryRequest, EnvelopeHistoryResponse} {
		req.True(sessionType.SessionScoped(), sessionType)
	}
}

func TestMessageRecord_Message_Leaves_Translations_Out(t *testing.T) {
	req := require.New(t)
	sender := Participant{ID: "user-a", PreferredLanguage: "es"}
	message := NewMessage("1v1-abc", sender, "hola", time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	message.ApplyTranslations("es", map[string]string{"en": "hello"})

	record := ToMessageRecord(message)
	req.Equal("es", record.DetectedLanguage)
	req.Equal(map[string]string{"en": "hello"}, record.Translations)

	rebuilt := record.Message()
	req.Equal(message.ID, rebuilt.ID)
	req.Equal("es", rebuilt.OriginalLanguage)
	req.True(rebuilt.Translating)
	req.Empty(rebuilt.Translations)
	req.Empty(rebuilt.DetectedLanguage)

	// The record does not share the translations of the message
	record.Translations["fr"] = "salut"
	req.NotContains(message.Translations, "fr")
}
