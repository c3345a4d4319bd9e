package cardid

import (
	"strings"

	"github.com/conorfennell/leitner/internal/domain"
	"github.com/google/uuid"
)

// Namespace scopes the name-based UUIDs generated for word cards.
var Namespace = uuid.MustParse("6f1c3a52-9d4e-4b7a-8c2f-0e5d7b9a1c34")

// Normalize concatenates the word's fields after cleaning each part.
// It trims whitespace, lowercases, and normalizes line endings for each field
// before joining them.
func Normalize(word domain.Word) string {
	normalizePart := func(part string) string {
		p := strings.ToLower(part)
		p = strings.TrimSpace(p)
		p = strings.ReplaceAll(p, "\r\n", "\n")
		return p
	}

	// Joined with a newline so "ab"+"c" and "a"+"bc" stay distinct.
	return strings.Join([]string{
		normalizePart(word.LanguageCode),
		normalizePart(word.Text),
		normalizePart(word.Meaning),
	}, "\n")
}

// ID returns a stable identity for the word. Words that normalize to the same
// text always get the same ID, so re-importing a deck does not duplicate cards.
// The example sentence is not part of the identity.
func ID(word domain.Word) uuid.UUID {
	return uuid.NewSHA1(Namespace, []byte(Normalize(word)))
}

// NewCard builds a card for the word using its stable ID.
func NewCard(word domain.Word) domain.Card {
	return domain.Card{ID: ID(word), Word: word}
}
