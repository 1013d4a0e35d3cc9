package moderation

import (
	"log/slog"
	"testing"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

const replacementChar = '*'

func TestModerator_Censor(t *testing.T) {
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	mod, err := NewModerator([]string{"idiot", "tonto", "crétin"}, replacementChar, log)
	require.NoError(t, err)

	tests := []struct {
		name     string
		message  string
		expected string
		words    []string
	}{
		{
			name:     "plain word, spacing kept",
			message:  "you are an idiot, right",
			expected: "you are an *****, right",
			words:    []string{"idiot"},
		},
		{
			name:     "every occurrence",
			message:  "tonto y tonto",
			expected: "***** y *****",
			words:    []string{"tonto", "tonto"},
		},
		{
			name:     "digits and symbols standing for letters",
			message:  "what an 1d10t",
			expected: "what an *****",
			words:    []string{"idiot"},
		},
		{
			name:     "separators inside the word are masked too",
			message:  "T.O.N.T.O amigo",
			expected: "********* amigo",
			words:    []string{"tonto"},
		},
		{
			name:     "accented dictionary word",
			message:  "quel Crétin !",
			expected: "quel ****** !",
			words:    []string{"crétin"},
		},
		{
			name:     "clean message",
			message:  "hello, how are you?",
			expected: "hello, how are you?",
		},
		{
			name: "empty message",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			content, words := mod.Censor(tt.message)
			req.Equal(tt.expected, content)
			req.Equal(tt.words, words)
		})
	}
}

func TestModerator_Skips_Words_Without_Letters(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)

	// Given a dictionary polluted with punctuation-only entries
	mod, err := NewModerator([]string{"...", ",,,", "", "loser"}, replacementChar, log)
	req.NoError(err)

	// Then only the real word is censored
	content, words := mod.Censor("what a loser...")
	req.Equal("what a *****...", content)
	req.Equal([]string{"loser"}, words)

	content, words = mod.Censor("wait ...")
	req.Equal("wait ...", content)
	req.Nil(words)
}

func TestModerator_Empty_Dictionary(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)

	mod, err := NewModerator(nil, replacementChar, log)
	req.NoError(err)

	content, words := mod.Censor("anything goes")
	req.Equal("anything goes", content)
	req.Nil(words)
}
