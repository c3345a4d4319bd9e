package storage

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/conorfennell/leitner/internal/domain"
	"github.com/conorfennell/leitner/internal/leitner"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	_ "modernc.org/sqlite" // Registers the sqlite driver
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// DB represents a wrapper around the SQL database connection.
type DB struct {
	conn *sql.DB
}

// Open creates a new database connection and ensures the schema is up to date.
func Open(dsn string) (*DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Execute the schema to create tables if they don't exist.
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &DB{conn: db}, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

type boxRow struct {
	Position       int `validate:"gte=0"`
	ReviewInterval int `validate:"gte=0"`
	LastReviewed   sql.NullTime
}

type cardRow struct {
	ID              string `validate:"required,uuid"`
	BoxPosition     int    `validate:"gte=0"`
	Word            string `validate:"required"`
	LanguageCode    string
	Meaning         string
	ExampleSentence string
}

// SaveBoxes replaces the stored box state with boxes in a single transaction.
func (db *DB) SaveBoxes(boxes []leitner.Box) (err error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if _, err = tx.Exec(`DELETE FROM cards`); err != nil {
		return fmt.Errorf("failed to clear cards: %w", err)
	}
	if _, err = tx.Exec(`DELETE FROM boxes`); err != nil {
		return fmt.Errorf("failed to clear boxes: %w", err)
	}

	for position, box := range boxes {
		var lastReviewed sql.NullTime
		if box.LastReviewed != nil {
			lastReviewed = sql.NullTime{Time: *box.LastReviewed, Valid: true}
		}
		if _, err = tx.Exec(`
			INSERT INTO boxes (position, review_interval, last_reviewed)
			VALUES (?, ?, ?)
		`, position, box.ReviewInterval, lastReviewed); err != nil {
			return fmt.Errorf("failed to insert box %d: %w", position, err)
		}

		for seq, card := range box.Cards {
			if _, err = tx.Exec(`
				INSERT INTO cards (id, box_position, seq, word, language_code, meaning, example_sentence)
				VALUES (?, ?, ?, ?, ?, ?, ?)
			`,
				card.ID.String(),
				position,
				seq,
				card.Word.Text,
				card.Word.LanguageCode,
				card.Word.Meaning,
				card.Word.ExampleSentence,
			); err != nil {
				return fmt.Errorf("failed to insert card %s: %w", card.ID, err)
			}
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit boxes: %w", err)
	}
	return nil
}

// LoadBoxes reads the stored box state. It returns nil when nothing has been
// saved yet, and a *leitner.ReviewProcessError when stored rows are malformed.
func (db *DB) LoadBoxes() ([]leitner.Box, error) {
	rows, err := db.conn.Query(`
		SELECT position, review_interval, last_reviewed
		FROM boxes ORDER BY position
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to get boxes: %w", err)
	}
	defer rows.Close()

	var boxes []leitner.Box
	for rows.Next() {
		var r boxRow
		if err := rows.Scan(&r.Position, &r.ReviewInterval, &r.LastReviewed); err != nil {
			return nil, fmt.Errorf("failed to scan box row: %w", err)
		}
		if err := validate.Struct(r); err != nil {
			return nil, &leitner.ReviewProcessError{Reason: fmt.Sprintf("box %d: %v", r.Position, err)}
		}
		if r.Position != len(boxes) {
			return nil, &leitner.ReviewProcessError{Reason: fmt.Sprintf("box %d missing", len(boxes))}
		}

		box := leitner.Box{ReviewInterval: r.ReviewInterval}
		if r.LastReviewed.Valid {
			t := r.LastReviewed.Time
			box.LastReviewed = &t
		}
		boxes = append(boxes, box)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read box rows: %w", err)
	}
	if len(boxes) == 0 {
		return nil, nil
	}

	if err := db.loadCards(boxes); err != nil {
		return nil, err
	}
	return boxes, nil
}

func (db *DB) loadCards(boxes []leitner.Box) error {
	rows, err := db.conn.Query(`
		SELECT id, box_position, word, language_code, meaning, example_sentence
		FROM cards ORDER BY box_position, seq
	`)
	if err != nil {
		return fmt.Errorf("failed to get cards: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var r cardRow
		if err := rows.Scan(
			&r.ID,
			&r.BoxPosition,
			&r.Word,
			&r.LanguageCode,
			&r.Meaning,
			&r.ExampleSentence,
		); err != nil {
			return fmt.Errorf("failed to scan card row: %w", err)
		}
		if err := validate.Struct(r); err != nil {
			return &leitner.ReviewProcessError{Reason: fmt.Sprintf("card %q: %v", r.ID, err)}
		}
		if r.BoxPosition >= len(boxes) {
			return &leitner.ReviewProcessError{Reason: fmt.Sprintf("card %s is in unknown box %d", r.ID, r.BoxPosition)}
		}

		boxes[r.BoxPosition].Cards = append(boxes[r.BoxPosition].Cards, domain.Card{
			ID: uuid.MustParse(r.ID),
			Word: domain.Word{
				Text:            r.Word,
				LanguageCode:    r.LanguageCode,
				Meaning:         r.Meaning,
				ExampleSentence: r.ExampleSentence,
			},
		})
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to read card rows: %w", err)
	}
	return nil
}

// InsertReviewLog records a review outcome.
func (db *DB) InsertReviewLog(log domain.ReviewLog) error {
	_, err := db.conn.Exec(`
		INSERT INTO review_logs (card_id, reviewed_at, correct, from_box, to_box)
		VALUES (?, ?, ?, ?, ?)
	`,
		log.CardID.String(),
		log.Timestamp,
		log.Correct,
		log.FromBox,
		log.ToBox,
	)
	if err != nil {
		return fmt.Errorf("failed to insert review log for card %s: %w", log.CardID, err)
	}
	return nil
}

// GetReviewLogs retrieves the review history of a card, oldest first.
func (db *DB) GetReviewLogs(cardID uuid.UUID) ([]domain.ReviewLog, error) {
	rows, err := db.conn.Query(`
		SELECT reviewed_at, correct, from_box, to_box
		FROM review_logs WHERE card_id = ? ORDER BY id
	`, cardID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to get review logs for card %s: %w", cardID, err)
	}
	defer rows.Close()

	var logs []domain.ReviewLog
	for rows.Next() {
		l := domain.ReviewLog{CardID: cardID}
		if err := rows.Scan(&l.Timestamp, &l.Correct, &l.FromBox, &l.ToBox); err != nil {
			return nil, fmt.Errorf("failed to scan review log row for card %s: %w", cardID, err)
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

// Source represents a deck source, either a local path or a Git URL.
type Source struct {
	ID          int64
	Path        string
	Type        string
	LastScanned sql.NullTime
}

// InsertSource inserts a new source path into the database and returns its ID.
func (db *DB) InsertSource(path, sourceType string) (int64, error) {
	res, err := db.conn.Exec(`
		INSERT INTO sources (path, type)
		VALUES (?, ?)
	`, path, sourceType)
	if err != nil {
		return 0, fmt.Errorf("failed to insert source %s: %w", path, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for source %s: %w", path, err)
	}
	return id, nil
}

// FindSourceByPath retrieves a source from the database by its path.
func (db *DB) FindSourceByPath(path string) (*Source, error) {
	var s Source
	row := db.conn.QueryRow(`
		SELECT id, path, type, last_scanned
		FROM sources WHERE path = ?
	`, path)

	err := row.Scan(&s.ID, &s.Path, &s.Type, &s.LastScanned)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Source not found
		}
		return nil, fmt.Errorf("failed to find source by path %s: %w", path, err)
	}
	return &s, nil
}

// GetAllSources retrieves all stored sources from the database.
func (db *DB) GetAllSources() ([]Source, error) {
	rows, err := db.conn.Query(`
		SELECT id, path, type, last_scanned
		FROM sources ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to get all sources: %w", err)
	}
	defer rows.Close()

	var sources []Source
	for rows.Next() {
		var s Source
		if err := rows.Scan(&s.ID, &s.Path, &s.Type, &s.LastScanned); err != nil {
			return nil, fmt.Errorf("failed to scan source row: %w", err)
		}
		sources = append(sources, s)
	}
	return sources, rows.Err()
}

// UpdateSourceLastScanned updates the last_scanned timestamp for a source.
func (db *DB) UpdateSourceLastScanned(sourceID int64) error {
	_, err := db.conn.Exec(`
		UPDATE sources
		SET last_scanned = ?
		WHERE id = ?
	`, time.Now(), sourceID)
	if err != nil {
		return fmt.Errorf("failed to update last scanned for source ID %d: %w", sourceID, err)
	}
	return nil
}

// DeleteSource removes a source and its card links. It returns the ids of
// cards that no other source provides, which the caller should take out of
// the system.
func (db *DB) DeleteSource(sourceID int64) (orphaned []uuid.UUID, err error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	orphaned, err = queryIDs(tx, `
		SELECT card_id FROM card_sources
		WHERE source_id = ?
		AND card_id NOT IN (SELECT card_id FROM card_sources WHERE source_id != ?)
		ORDER BY card_id
	`, sourceID, sourceID)
	if err != nil {
		return nil, fmt.Errorf("failed to get cards of source ID %d: %w", sourceID, err)
	}

	if _, err = tx.Exec(`DELETE FROM card_sources WHERE source_id = ?`, sourceID); err != nil {
		return nil, fmt.Errorf("failed to delete card links of source ID %d: %w", sourceID, err)
	}
	if _, err = tx.Exec(`DELETE FROM sources WHERE id = ?`, sourceID); err != nil {
		return nil, fmt.Errorf("failed to delete source with ID %d: %w", sourceID, err)
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit source deletion: %w", err)
	}
	return orphaned, nil
}

// ReplaceSourceCards records ids as the full set of cards provided by a
// source. It returns the previously linked ids that are no longer provided
// by this source nor by any other.
func (db *DB) ReplaceSourceCards(sourceID int64, ids []uuid.UUID) (orphaned []uuid.UUID, err error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	previous, err := queryIDs(tx, `
		SELECT card_id FROM card_sources WHERE source_id = ? ORDER BY card_id
	`, sourceID)
	if err != nil {
		return nil, fmt.Errorf("failed to get cards of source ID %d: %w", sourceID, err)
	}

	if _, err = tx.Exec(`DELETE FROM card_sources WHERE source_id = ?`, sourceID); err != nil {
		return nil, fmt.Errorf("failed to clear card links of source ID %d: %w", sourceID, err)
	}
	current := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		if current[id] {
			continue
		}
		current[id] = true
		if _, err = tx.Exec(`
			INSERT INTO card_sources (card_id, source_id) VALUES (?, ?)
		`, id.String(), sourceID); err != nil {
			return nil, fmt.Errorf("failed to link card %s to source ID %d: %w", id, sourceID, err)
		}
	}

	for _, id := range previous {
		if current[id] {
			continue
		}
		var others int
		if err = tx.QueryRow(`
			SELECT COUNT(*) FROM card_sources WHERE card_id = ?
		`, id.String()).Scan(&others); err != nil {
			return nil, fmt.Errorf("failed to count sources of card %s: %w", id, err)
		}
		if others == 0 {
			orphaned = append(orphaned, id)
		}
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit card links: %w", err)
	}
	return orphaned, nil
}

func queryIDs(tx *sql.Tx, query string, args ...any) ([]uuid.UUID, error) {
	rows, err := tx.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, &leitner.ReviewProcessError{Reason: fmt.Sprintf("card link %q: %v", raw, err)}
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// RetiredCardIDs returns the ids of cards that have been retired from the
// system by a correct answer in the last box.
func (db *DB) RetiredCardIDs() (map[uuid.UUID]bool, error) {
	rows, err := db.conn.Query(`
		SELECT DISTINCT card_id FROM review_logs WHERE to_box = ?
	`, domain.RetiredBox)
	if err != nil {
		return nil, fmt.Errorf("failed to get retired cards: %w", err)
	}
	defer rows.Close()

	retired := make(map[uuid.UUID]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan retired card row: %w", err)
		}
		parsed, err := uuid.Parse(id)
		if err != nil {
			return nil, &leitner.ReviewProcessError{Reason: fmt.Sprintf("review log card %q: %v", id, err)}
		}
		retired[parsed] = true
	}
	return retired, rows.Err()
}
