// Package moderation masks dictionary words in chat messages before they reach the other member
// or the translation service.
package moderation

import (
	"log/slog"
	"unicode"

	goahocorasick "github.com/anknown/ahocorasick"
)

// Moderator matches every dictionary word in a single pass over a message.
type Moderator struct {
	log          *slog.Logger
	matcher      *goahocorasick.Machine
	censoredChar rune
}

// folded is a message reduced to its letters, each one remembering its rune index in the message.
type folded struct {
	letters   []rune
	positions []int
}

// NewModerator builds the automaton from the folded form of each word.
// Words made only of punctuation or spaces fold to nothing and are skipped.
func NewModerator(censoredWords []string, censoredChar rune, log *slog.Logger) (*Moderator, error) {
	var patterns [][]rune
	seen := make(map[string]struct{})
	for _, word := range censoredWords {
		pattern := fold(word).letters
		if len(pattern) == 0 {
			continue
		}
		if _, ok := seen[string(pattern)]; ok {
			continue
		}
		seen[string(pattern)] = struct{}{}
		patterns = append(patterns, pattern)
	}

	mod := &Moderator{log: log, censoredChar: censoredChar}
	if len(patterns) > 0 {
		mod.matcher = new(goahocorasick.Machine)
		if err := mod.matcher.Build(patterns); err != nil {
			return nil, err
		}
	}
	log.Debug("Moderator built", "patterns", len(patterns))
	return mod, nil
}

// Censor masks every rune of a matched word, the separators hidden inside it included,
// and returns the dictionary words found in order of appearance.
// Text outside a match is left untouched.
func (m *Moderator) Censor(text string) (string, []string) {
	if m.matcher == nil {
		return text, nil
	}
	f := fold(text)
	if len(f.letters) == 0 {
		return text, nil
	}
	hits := m.matcher.MultiPatternSearch(f.letters, false)
	if len(hits) == 0 {
		return text, nil
	}

	runes := []rune(text)
	words := make([]string, 0, len(hits))
	for _, hit := range hits {
		last := hit.Pos + len(hit.Word) - 1
		if hit.Pos < 0 || last >= len(f.positions) {
			continue
		}
		for i := f.positions[hit.Pos]; i <= f.positions[last]; i++ {
			runes[i] = m.censoredChar
		}
		words = append(words, string(hit.Word))
	}
	if len(words) == 0 {
		return text, nil
	}
	m.log.Debug("Message censored", "words", len(words))
	return string(runes), words
}

func fold(text string) folded {
	runes := []rune(text)
	f := folded{letters: make([]rune, 0, len(runes)), positions: make([]int, 0, len(runes))}
	for i, r := range runes {
		r = unleet(r)
		if unicode.IsPunct(r) || unicode.IsSpace(r) || unicode.IsSymbol(r) {
			continue
		}
		f.letters = append(f.letters, unicode.ToLower(r))
		f.positions = append(f.positions, i)
	}
	return f
}

// unleet maps the usual digit and symbol substitutes back to letters.
func unleet(r rune) rune {
	switch r {
	case '4', '@':
		return 'a'
	case '3', '€':
		return 'e'
	case '1', '!', '|':
		return 'i'
	case '0':
		return 'o'
	case '5', '$':
		return 's'
	default:
		return r
	}
}
