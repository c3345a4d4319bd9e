package leitner

import "errors"

// ErrCardNotFound is returned by UpdateCard when no box holds the card.
var ErrCardNotFound = errors.New("leitner: card not found")

// ReviewProcessError reports box state that cannot be scheduled, such as a
// negative interval or a card without an id in restored data.
type ReviewProcessError struct {
	Reason string
}

func (e *ReviewProcessError) Error() string {
	if e.Reason == "" {
		return "leitner: review process error"
	}
	return "leitner: review process error: " + e.Reason
}
