package domain

import (
	"time"

	"github.com/google/uuid"
)

// Word is the content carried by a card. The scheduler never looks inside it.
type Word struct {
	Text            string
	LanguageCode    string
	Meaning         string
	ExampleSentence string // empty when the word has no example
}

// Card is a single review item. Cards are never mutated once created; the
// scheduler only moves them between boxes.
type Card struct {
	ID   uuid.UUID
	Word Word
}

// NewCard creates a card with a fresh random identity.
func NewCard(word Word) Card {
	return Card{ID: uuid.New(), Word: word}
}

// RetiredBox is the ToBox value of a review that removed the card from the system.
const RetiredBox = -1

// ReviewLog records a single review event for a card.
type ReviewLog struct {
	CardID    uuid.UUID
	Timestamp time.Time
	Correct   bool
	FromBox   int
	ToBox     int
}
