package leitner

import (
	"time"

	"github.com/conorfennell/leitner/internal/domain"
)

// Box is an ordered group of cards sharing a review interval.
type Box struct {
	Cards []domain.Card
	// ReviewInterval is the number of days between reviews of this box.
	ReviewInterval int
	// LastReviewed is set when the box was last emptied. Nil means the box
	// has never been cleared and is always due.
	LastReviewed *time.Time
}

// NextReviewDate returns LastReviewed plus ReviewInterval calendar days, or
// now if the box has never been cleared.
func (b Box) NextReviewDate(now time.Time) time.Time {
	if b.LastReviewed == nil {
		return now
	}
	return b.LastReviewed.AddDate(0, 0, b.ReviewInterval)
}

// IsDue reports whether the box should be reviewed on the calendar day of now.
func (b Box) IsDue(now time.Time) bool {
	if b.LastReviewed == nil {
		return true
	}
	return !b.NextReviewDate(now).After(startOfDay(now))
}

func (b Box) clone() Box {
	out := Box{ReviewInterval: b.ReviewInterval}
	if b.Cards != nil {
		out.Cards = make([]domain.Card, len(b.Cards))
		copy(out.Cards, b.Cards)
	}
	if b.LastReviewed != nil {
		t := *b.LastReviewed
		out.LastReviewed = &t
	}
	return out
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
