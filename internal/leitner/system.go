package leitner

import (
	"log/slog"
	"time"

	"github.com/conorfennell/leitner/internal/domain"
	"github.com/google/uuid"
)

const (
	// DefaultBoxCount is the number of boxes used when none is configured.
	DefaultBoxCount = 5
	// DefaultDueLimit is the usual page size for DueForReview.
	DefaultDueLimit = 10

	minBoxCount = 2
)

var baseIntervals = []int{1, 3, 7, 14, 30, 60}

// ReviewIntervals returns the review interval in days for each of n boxes.
// The first six follow a fixed sequence; each box after that doubles the
// interval of the one before it.
func ReviewIntervals(n int) []int {
	intervals := make([]int, 0, max(n, 0))
	for i := 0; i < n; i++ {
		if i < len(baseIntervals) {
			intervals = append(intervals, baseIntervals[i])
		} else {
			intervals = append(intervals, intervals[i-1]*2)
		}
	}
	return intervals
}

// System is a Leitner box scheduler. It is not safe for concurrent use;
// callers that share a System must serialize mutations.
type System struct {
	boxes []Box
	now   func() time.Time
}

// Option configures a System.
type Option func(*System)

// WithClock replaces time.Now as the source of the current time.
func WithClock(now func() time.Time) Option {
	return func(s *System) {
		s.now = now
	}
}

// New creates a System with boxCount empty boxes. Counts below two are
// raised to two.
func New(boxCount int, opts ...Option) *System {
	if boxCount < minBoxCount {
		slog.Warn("Box count too small, using minimum", "requested", boxCount, "boxes", minBoxCount)
		boxCount = minBoxCount
	}

	s := &System{now: time.Now}
	for _, opt := range opts {
		opt(s)
	}

	for _, interval := range ReviewIntervals(boxCount) {
		s.boxes = append(s.boxes, Box{ReviewInterval: interval})
	}
	return s
}

// AddCard places a new card at the end of the first box.
func (s *System) AddCard(card domain.Card) {
	s.boxes[0].Cards = append(s.boxes[0].Cards, card)
}

// UpdateCard moves a card according to the review outcome. A correct answer
// promotes the card one box, or retires it when it is already in the last
// box. A wrong answer sends it back to the first box. When the card's box is
// left empty, the box is marked as reviewed now.
func (s *System) UpdateCard(card domain.Card, correct bool) error {
	from, pos, ok := s.locate(card.ID)
	if !ok {
		return ErrCardNotFound
	}

	origin := &s.boxes[from]
	moved := origin.Cards[pos]
	origin.Cards = append(origin.Cards[:pos], origin.Cards[pos+1:]...)

	switch {
	case correct && from == len(s.boxes)-1:
		// retired
	case correct:
		s.boxes[from+1].Cards = append(s.boxes[from+1].Cards, moved)
	default:
		s.boxes[0].Cards = append(s.boxes[0].Cards, moved)
	}

	if len(s.boxes[from].Cards) == 0 {
		now := s.now()
		s.boxes[from].LastReviewed = &now
	}
	return nil
}

// RemoveCard takes the card with the given id out of its box without
// counting as a review, so the box's last reviewed date is left alone.
// It reports whether the card was found.
func (s *System) RemoveCard(id uuid.UUID) bool {
	box, pos, ok := s.locate(id)
	if !ok {
		return false
	}
	b := &s.boxes[box]
	b.Cards = append(b.Cards[:pos], b.Cards[pos+1:]...)
	return true
}

// DueForReview returns up to limit cards from every box that is due today,
// lower boxes first and each box in arrival order.
func (s *System) DueForReview(limit int) []domain.Card {
	now := s.now()
	due := []domain.Card{}
	for _, box := range s.boxes {
		if len(due) >= limit {
			break
		}
		if box.IsDue(now) {
			due = append(due, box.Cards...)
		}
	}
	if len(due) > limit {
		due = due[:max(limit, 0)]
	}
	return due
}

// LoadBoxes replaces the entire box state. The boxes are used as given.
func (s *System) LoadBoxes(boxes []Box) {
	s.boxes = make([]Box, len(boxes))
	for i, b := range boxes {
		s.boxes[i] = b.clone()
	}
}

// Boxes returns a copy of the current box state, suitable for persisting
// and passing back to LoadBoxes.
func (s *System) Boxes() []Box {
	out := make([]Box, len(s.boxes))
	for i, b := range s.boxes {
		out[i] = b.clone()
	}
	return out
}

// CardCountsPerBox returns the number of cards in each box.
func (s *System) CardCountsPerBox() []int {
	counts := make([]int, len(s.boxes))
	for i, b := range s.boxes {
		counts[i] = len(b.Cards)
	}
	return counts
}

// BoxOf returns the index of the first box holding the card with the given id.
func (s *System) BoxOf(id uuid.UUID) (int, bool) {
	box, _, ok := s.locate(id)
	return box, ok
}

// Len returns the number of boxes.
func (s *System) Len() int {
	return len(s.boxes)
}

func (s *System) locate(id uuid.UUID) (box, pos int, ok bool) {
	for i, b := range s.boxes {
		for j, c := range b.Cards {
			if c.ID == id {
				return i, j, true
			}
		}
	}
	return 0, 0, false
}
