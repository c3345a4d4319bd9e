package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/conorfennell/leitner/internal/config"
	"github.com/conorfennell/leitner/internal/domain"
	"github.com/conorfennell/leitner/internal/leitner"
	"github.com/conorfennell/leitner/internal/snapshot"
	"github.com/conorfennell/leitner/internal/storage"
	"github.com/conorfennell/leitner/internal/sync"
	"github.com/google/uuid"
	"github.com/spf13/pflag"
)

type actions struct {
	addSource    string
	removeSource string
	sync         bool
	review       string
	correct      bool
	exportPath   string
	importPath   string
}

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		slog.Error("leitner failed", "error", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	// 1. Define and parse command-line flags
	flags := pflag.NewFlagSet("leitner", pflag.ContinueOnError)
	config.RegisterFlags(flags)
	var act actions
	flags.StringVar(&act.addSource, "add-source", "", "Add a deck source (local directory or git URL)")
	flags.StringVar(&act.removeSource, "remove-source", "", "Remove a deck source and the cards only it provides")
	flags.BoolVar(&act.sync, "sync", false, "Import new words from all sources")
	flags.StringVar(&act.review, "review", "", "ID of the card to record a review for")
	flags.BoolVar(&act.correct, "correct", false, "Whether the reviewed card was answered correctly")
	flags.StringVar(&act.exportPath, "export", "", "Write the box state to a YAML file")
	flags.StringVar(&act.importPath, "import", "", "Replace the box state with a YAML file")
	if err := flags.Parse(args); err != nil {
		return err
	}

	// 2. Load configuration and set up logging
	cfg, err := config.Load(flags)
	if err != nil {
		return err
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()})))

	// 3. Open the database and restore the boxes
	db, err := storage.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()
	slog.Debug("Database opened successfully", "path", cfg.DBPath)

	system, err := loadSystem(db, cfg.BoxCount)
	if err != nil {
		return err
	}

	// 4. Apply the requested actions
	dirty := false
	if act.importPath != "" {
		if err := importSnapshot(system, act.importPath); err != nil {
			return err
		}
		dirty = true
	}
	if act.addSource != "" {
		if _, err := sync.AddSource(db, act.addSource); err != nil {
			return err
		}
	}
	if act.removeSource != "" {
		removed, err := sync.RemoveSource(db, system, act.removeSource)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Removed source, %d cards removed.\n", removed)
		dirty = dirty || removed > 0
	}
	if act.sync {
		report, err := sync.RunSync(db, system, sync.Options{ReposDir: cfg.ReposDir, DefaultLanguage: cfg.Language})
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Parsed %d cards, added %d, removed %d, %d errors.\n", report.Parsed, report.Added, report.Removed, len(report.Errors))
		for _, e := range report.Errors {
			fmt.Fprintf(out, "- %s\n", e)
		}
		dirty = dirty || report.Added > 0 || report.Removed > 0
	}
	if act.review != "" {
		if err := review(db, system, act.review, act.correct); err != nil {
			return err
		}
		dirty = true
	}

	if dirty {
		if err := db.SaveBoxes(system.Boxes()); err != nil {
			return err
		}
	}
	if act.exportPath != "" {
		if err := exportSnapshot(system, act.exportPath); err != nil {
			return err
		}
	}

	// 5. Print the final report
	printStatus(out, system, cfg.DueLimit)
	return nil
}

func loadSystem(db *storage.DB, boxCount int) (*leitner.System, error) {
	system := leitner.New(boxCount)
	boxes, err := db.LoadBoxes()
	if err != nil {
		return nil, err
	}
	if boxes != nil {
		system.LoadBoxes(boxes)
	}
	return system, nil
}

func review(db *storage.DB, system *leitner.System, rawID string, correct bool) error {
	id, err := uuid.Parse(rawID)
	if err != nil {
		return fmt.Errorf("invalid card id %q: %w", rawID, err)
	}

	from, ok := system.BoxOf(id)
	if !ok {
		return fmt.Errorf("card %s: %w", id, leitner.ErrCardNotFound)
	}
	if err := system.UpdateCard(domain.Card{ID: id}, correct); err != nil {
		return err
	}

	to, ok := system.BoxOf(id)
	if !ok {
		to = domain.RetiredBox
	}
	slog.Info("Card reviewed", "id", id, "correct", correct, "from_box", from, "to_box", to)
	return db.InsertReviewLog(domain.ReviewLog{
		CardID:    id,
		Timestamp: time.Now(),
		Correct:   correct,
		FromBox:   from,
		ToBox:     to,
	})
}

func importSnapshot(system *leitner.System, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open snapshot %s: %w", path, err)
	}
	defer f.Close()

	boxes, err := snapshot.Import(f)
	if err != nil {
		var procErr *leitner.ReviewProcessError
		if errors.As(err, &procErr) {
			return fmt.Errorf("snapshot %s rejected: %w", path, err)
		}
		return err
	}
	system.LoadBoxes(boxes)
	slog.Info("Snapshot imported", "path", path, "boxes", len(boxes))
	return nil
}

func exportSnapshot(system *leitner.System, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create snapshot %s: %w", path, err)
	}
	if err := snapshot.Export(f, system.Boxes()); err != nil {
		f.Close()
		return err
	}
	slog.Info("Snapshot exported", "path", path)
	return f.Close()
}

func printStatus(out io.Writer, system *leitner.System, limit int) {
	fmt.Fprintln(out, "Cards per box:")
	for i, n := range system.CardCountsPerBox() {
		fmt.Fprintf(out, "  box %d: %d\n", i+1, n)
	}

	due := system.DueForReview(limit)
	if len(due) == 0 {
		fmt.Fprintln(out, "Nothing due for review.")
		return
	}
	fmt.Fprintf(out, "Due for review (%d):\n", len(due))
	for _, card := range due {
		fmt.Fprintf(out, "  %s  %s [%s]\n", card.ID, card.Word.Text, card.Word.LanguageCode)
	}
}
