// Package snapshot reads and writes the box state of a Leitner system as a
// YAML document, for backups and for moving decks between databases.
package snapshot

import (
	"fmt"
	"io"
	"time"

	"github.com/conorfennell/leitner/internal/domain"
	"github.com/conorfennell/leitner/internal/leitner"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

type document struct {
	Boxes []box `yaml:"boxes" validate:"min=1,dive"`
}

type box struct {
	Interval     int    `yaml:"interval" validate:"gte=0"`
	LastReviewed string `yaml:"last_reviewed,omitempty"`
	Cards        []card `yaml:"cards,omitempty" validate:"dive"`
}

type card struct {
	ID       string `yaml:"id" validate:"required,uuid"`
	Word     string `yaml:"word" validate:"required"`
	Language string `yaml:"language,omitempty"`
	Meaning  string `yaml:"meaning,omitempty"`
	Example  string `yaml:"example,omitempty"`
}

// Export writes boxes to w as YAML.
func Export(w io.Writer, boxes []leitner.Box) error {
	doc := document{Boxes: make([]box, 0, len(boxes))}
	for _, b := range boxes {
		out := box{Interval: b.ReviewInterval}
		if b.LastReviewed != nil {
			out.LastReviewed = b.LastReviewed.Format(time.RFC3339Nano)
		}
		for _, c := range b.Cards {
			out.Cards = append(out.Cards, card{
				ID:       c.ID.String(),
				Word:     c.Word.Text,
				Language: c.Word.LanguageCode,
				Meaning:  c.Word.Meaning,
				Example:  c.Word.ExampleSentence,
			})
		}
		doc.Boxes = append(doc.Boxes, out)
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return enc.Close()
}

// Import reads boxes written by Export. Documents with invalid fields or a
// card id that appears more than once are rejected with a
// *leitner.ReviewProcessError.
func Import(r io.Reader) ([]leitner.Box, error) {
	var doc document
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	if err := validate.Struct(doc); err != nil {
		return nil, &leitner.ReviewProcessError{Reason: err.Error()}
	}

	seen := make(map[uuid.UUID]bool)
	boxes := make([]leitner.Box, 0, len(doc.Boxes))
	for i, b := range doc.Boxes {
		out := leitner.Box{ReviewInterval: b.Interval}
		if b.LastReviewed != "" {
			t, err := time.Parse(time.RFC3339Nano, b.LastReviewed)
			if err != nil {
				return nil, &leitner.ReviewProcessError{Reason: fmt.Sprintf("box %d: %v", i, err)}
			}
			out.LastReviewed = &t
		}
		for _, c := range b.Cards {
			id := uuid.MustParse(c.ID)
			if seen[id] {
				return nil, &leitner.ReviewProcessError{Reason: fmt.Sprintf("card %s appears more than once", id)}
			}
			seen[id] = true
			out.Cards = append(out.Cards, domain.Card{
				ID: id,
				Word: domain.Word{
					Text:            c.Word,
					LanguageCode:    c.Language,
					Meaning:         c.Meaning,
					ExampleSentence: c.Example,
				},
			})
		}
		boxes = append(boxes, out)
	}
	return boxes, nil
}
