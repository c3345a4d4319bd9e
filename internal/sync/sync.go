package sync

import (
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/conorfennell/leitner/internal/cardid"
	"github.com/conorfennell/leitner/internal/gitsource"
	"github.com/conorfennell/leitner/internal/leitner"
	"github.com/conorfennell/leitner/internal/parser"
	"github.com/conorfennell/leitner/internal/storage"
	"github.com/google/uuid"
)

const (
	SourceLocal = "local"
	SourceGit   = "git"
)

// Options controls where git sources are checked out and how imported words
// are completed.
type Options struct {
	ReposDir        string
	DefaultLanguage string
}

// Report summarizes a sync run.
type Report struct {
	Parsed  int
	Added   int
	Removed int
	Errors  []error
}

// AddSource registers a deck source, detecting whether it is a git URL or a
// local directory. Adding a known path is a no-op.
func AddSource(db *storage.DB, path string) (*storage.Source, error) {
	existing, err := db.FindSourceByPath(path)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	sourceType := SourceLocal
	if gitsource.IsGitURL(path) {
		sourceType = SourceGit
	}
	if _, err := db.InsertSource(path, sourceType); err != nil {
		return nil, err
	}
	slog.Info("Source added", "path", path, "type", sourceType)
	return db.FindSourceByPath(path)
}

// RemoveSource unregisters a deck source and takes out of the system every
// card that no remaining source provides. It returns the number of cards
// removed.
func RemoveSource(db *storage.DB, system *leitner.System, path string) (int, error) {
	source, err := db.FindSourceByPath(path)
	if err != nil {
		return 0, err
	}
	if source == nil {
		return 0, fmt.Errorf("source not found: %s", path)
	}

	orphaned, err := db.DeleteSource(source.ID)
	if err != nil {
		return 0, err
	}
	removed := removeCards(system, orphaned)
	slog.Info("Source removed", "path", path, "removed_cards", removed)
	return removed, nil
}

// RunSync walks every source and adds cards for words that are not yet in
// any box of the system. Cards already in the system are left where they
// are, so progress survives re-imports, and retired cards are not brought
// back. Cards whose word has disappeared from every source that provided
// it are removed, but only for sources that were read without errors.
func RunSync(db *storage.DB, system *leitner.System, opts Options) (Report, error) {
	var report Report

	slog.Info("Starting sync process for all sources...")
	sources, err := db.GetAllSources()
	if err != nil {
		return report, fmt.Errorf("failed to get sources: %w", err)
	}

	if len(sources) == 0 {
		slog.Info("No sources configured. Add one with --add-source <path/or/url.git>")
		return report, nil
	}

	retired, err := db.RetiredCardIDs()
	if err != nil {
		return report, err
	}

	for _, source := range sources {
		slog.Info("Syncing source", "id", source.ID, "type", source.Type, "path", source.Path)

		root := source.Path
		if source.Type == SourceGit {
			localRepoPath, err := gitsource.LocalPath(opts.ReposDir, source.Path)
			if err != nil {
				slog.Error("Error determining local path for git repo", "url", source.Path, "error", err)
				report.Errors = append(report.Errors, err)
				continue
			}
			if err := gitsource.Sync(source.Path, localRepoPath); err != nil {
				slog.Error("Error syncing git repo", "url", source.Path, "error", err)
				report.Errors = append(report.Errors, err)
				continue
			}
			root = localRepoPath
		}

		errorsBefore := len(report.Errors)
		found, err := importDir(system, root, retired, opts, &report)
		if err != nil {
			slog.Error("Error walking directory", "path", root, "error", err)
			report.Errors = append(report.Errors, err)
			continue
		}

		if len(report.Errors) == errorsBefore {
			orphaned, err := db.ReplaceSourceCards(source.ID, found)
			if err != nil {
				slog.Error("Error recording cards of source", "source_id", source.ID, "error", err)
				report.Errors = append(report.Errors, err)
				continue
			}
			report.Removed += removeCards(system, orphaned)
		} else {
			slog.Warn("Source had parse errors, keeping its existing cards", "source_id", source.ID)
		}

		if err := db.UpdateSourceLastScanned(source.ID); err != nil {
			slog.Warn("Failed to update last scanned for source", "source_id", source.ID, "error", err)
		}
	}

	slog.Info("Sync process complete.",
		"parsed_cards", report.Parsed,
		"added_cards", report.Added,
		"removed_cards", report.Removed,
		"errors", len(report.Errors),
	)
	return report, nil
}

func removeCards(system *leitner.System, ids []uuid.UUID) int {
	removed := 0
	for _, id := range ids {
		if system.RemoveCard(id) {
			slog.Debug("Orphaned card, removing", "id", id)
			removed++
		}
	}
	return removed
}

// importDir adds the cards of every markdown file under root and returns the
// ids of all cards found, whether new or not.
func importDir(system *leitner.System, root string, retired map[uuid.UUID]bool, opts Options, report *Report) ([]uuid.UUID, error) {
	var found []uuid.UUID
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(strings.ToLower(d.Name()), ".md") {
			return nil
		}

		words, parseErr := parser.ParseFile(path)
		if parseErr != nil {
			report.Errors = append(report.Errors, fmt.Errorf("parsing %s: %w", path, parseErr))
			return nil
		}
		for _, word := range words {
			// The id is derived from the word as written, so changing the
			// default language does not re-key existing cards.
			card := cardid.NewCard(word)
			if card.Word.LanguageCode == "" {
				card.Word.LanguageCode = opts.DefaultLanguage
			}
			report.Parsed++
			found = append(found, card.ID)
			if _, ok := system.BoxOf(card.ID); ok || retired[card.ID] {
				continue
			}
			slog.Debug("New card found, adding to first box", "id", card.ID, "word", word.Text)
			system.AddCard(card)
			report.Added++
		}
		return nil
	})
	return found, err
}
