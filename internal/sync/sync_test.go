package sync

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/conorfennell/leitner/internal/cardid"
	"github.com/conorfennell/leitner/internal/domain"
	"github.com/conorfennell/leitner/internal/leitner"
	"github.com/conorfennell/leitner/internal/storage"
)

func setup(t *testing.T, files map[string]string) (*storage.DB, string) {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "leitner.db"))
	if err != nil {
		t.Fatalf("Open() returned an unexpected error: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	dir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("Failed to create fixture dir: %v", err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("Failed to write fixture: %v", err)
		}
	}
	return db, dir
}

func TestAddSource(t *testing.T) {
	db, dir := setup(t, nil)

	source, err := AddSource(db, dir)
	if err != nil {
		t.Fatalf("AddSource() returned an unexpected error: %v", err)
	}
	if source.Type != SourceLocal {
		t.Errorf("Expected a local source, but got '%s'", source.Type)
	}

	again, err := AddSource(db, dir)
	if err != nil {
		t.Fatalf("AddSource() returned an unexpected error on a known path: %v", err)
	}
	if again.ID != source.ID {
		t.Errorf("Expected the existing source %d, but got %d", source.ID, again.ID)
	}

	git, err := AddSource(db, "https://github.com/user/decks.git")
	if err != nil {
		t.Fatalf("AddSource() returned an unexpected error: %v", err)
	}
	if git.Type != SourceGit {
		t.Errorf("Expected a git source, but got '%s'", git.Type)
	}
}

func TestRunSync(t *testing.T) {
	db, dir := setup(t, map[string]string{
		"german.md":        "W: Hund\nM: dog\nL: de\n---\nW: Katze\nM: cat\nL: de\n",
		"nested/french.md": "W: chien\nM: dog\n",
		"notes.txt":        "W: ignored\nM: not markdown\n",
	})
	if _, err := AddSource(db, dir); err != nil {
		t.Fatalf("AddSource() returned an unexpected error: %v", err)
	}
	system := leitner.New(leitner.DefaultBoxCount)
	opts := Options{ReposDir: t.TempDir(), DefaultLanguage: "fr"}

	report, err := RunSync(db, system, opts)
	if err != nil {
		t.Fatalf("RunSync() returned an unexpected error: %v", err)
	}
	if report.Parsed != 3 || report.Added != 3 || len(report.Errors) != 0 {
		t.Errorf("Expected 3 parsed and 3 added without errors, but got %+v", report)
	}
	if !reflect.DeepEqual(system.CardCountsPerBox(), []int{3, 0, 0, 0, 0}) {
		t.Errorf("Expected all cards in the first box, but got %v", system.CardCountsPerBox())
	}

	chien := cardid.ID(domain.Word{Text: "chien", Meaning: "dog"})
	if box, ok := system.BoxOf(chien); !ok {
		t.Error("Expected the word without a language to be keyed as written")
	} else if got := system.Boxes()[box].Cards; got[len(got)-1].Word.LanguageCode != "fr" {
		t.Errorf("Expected the default language to be applied, but got %+v", got[len(got)-1].Word)
	}

	sources, _ := db.GetAllSources()
	if len(sources) != 1 || !sources[0].LastScanned.Valid {
		t.Errorf("Expected the source to be marked scanned, but got %+v", sources)
	}

	t.Run("re-sync keeps progress", func(t *testing.T) {
		hund := cardid.NewCard(domain.Word{Text: "Hund", LanguageCode: "de", Meaning: "dog"})
		if err := system.UpdateCard(hund, true); err != nil {
			t.Fatalf("UpdateCard() returned an unexpected error: %v", err)
		}

		report, err := RunSync(db, system, opts)
		if err != nil {
			t.Fatalf("RunSync() returned an unexpected error: %v", err)
		}
		if report.Added != 0 {
			t.Errorf("Expected no new cards, but %d were added", report.Added)
		}
		if !reflect.DeepEqual(system.CardCountsPerBox(), []int{2, 1, 0, 0, 0}) {
			t.Errorf("Expected counts [2 1 0 0 0], but got %v", system.CardCountsPerBox())
		}
	})

	t.Run("retired cards are not re-added", func(t *testing.T) {
		katze := cardid.NewCard(domain.Word{Text: "Katze", LanguageCode: "de", Meaning: "cat"})
		err := db.InsertReviewLog(domain.ReviewLog{
			CardID:    katze.ID,
			Timestamp: time.Now(),
			Correct:   true,
			FromBox:   4,
			ToBox:     domain.RetiredBox,
		})
		if err != nil {
			t.Fatalf("InsertReviewLog() returned an unexpected error: %v", err)
		}

		fresh := leitner.New(leitner.DefaultBoxCount)
		report, err := RunSync(db, fresh, opts)
		if err != nil {
			t.Fatalf("RunSync() returned an unexpected error: %v", err)
		}
		if report.Added != 2 {
			t.Errorf("Expected 2 cards added, but got %d", report.Added)
		}
		if _, ok := fresh.BoxOf(katze.ID); ok {
			t.Error("Expected the retired card to stay out of the system")
		}
	})
}

func TestRunSyncWithoutSources(t *testing.T) {
	db, _ := setup(t, nil)
	system := leitner.New(leitner.DefaultBoxCount)

	report, err := RunSync(db, system, Options{})
	if err != nil {
		t.Fatalf("RunSync() returned an unexpected error: %v", err)
	}
	if report.Parsed != 0 || report.Added != 0 {
		t.Errorf("Expected an empty report, but got %+v", report)
	}
}

func TestRunSyncMissingDirectory(t *testing.T) {
	db, dir := setup(t, nil)
	missing := filepath.Join(dir, "gone")
	if _, err := AddSource(db, missing); err != nil {
		t.Fatalf("AddSource() returned an unexpected error: %v", err)
	}

	report, err := RunSync(db, leitner.New(leitner.DefaultBoxCount), Options{})
	if err != nil {
		t.Fatalf("RunSync() returned an unexpected error: %v", err)
	}
	if len(report.Errors) != 1 {
		t.Errorf("Expected 1 error for the missing directory, but got %d", len(report.Errors))
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write fixture: %v", err)
	}
}

func TestRunSyncDefaultLanguageChange(t *testing.T) {
	db, dir := setup(t, map[string]string{"french.md": "W: chien\nM: dog\n"})
	if _, err := AddSource(db, dir); err != nil {
		t.Fatalf("AddSource() returned an unexpected error: %v", err)
	}
	system := leitner.New(leitner.DefaultBoxCount)

	if _, err := RunSync(db, system, Options{DefaultLanguage: "fr"}); err != nil {
		t.Fatalf("RunSync() returned an unexpected error: %v", err)
	}
	report, err := RunSync(db, system, Options{DefaultLanguage: "de"})
	if err != nil {
		t.Fatalf("RunSync() returned an unexpected error: %v", err)
	}
	if report.Added != 0 || report.Removed != 0 {
		t.Errorf("Expected no cards added or removed, but got %+v", report)
	}
	if !reflect.DeepEqual(system.CardCountsPerBox(), []int{1, 0, 0, 0, 0}) {
		t.Errorf("Expected a single card, but got counts %v", system.CardCountsPerBox())
	}
}

func TestRunSyncRemovesOrphanedCards(t *testing.T) {
	t.Run("edited word replaces the old card", func(t *testing.T) {
		db, dir := setup(t, map[string]string{"german.md": "W: Hund\nM: dgo\nL: de\n"})
		if _, err := AddSource(db, dir); err != nil {
			t.Fatalf("AddSource() returned an unexpected error: %v", err)
		}
		system := leitner.New(leitner.DefaultBoxCount)
		if _, err := RunSync(db, system, Options{}); err != nil {
			t.Fatalf("RunSync() returned an unexpected error: %v", err)
		}

		writeFile(t, filepath.Join(dir, "german.md"), "W: Hund\nM: dog\nL: de\n")
		report, err := RunSync(db, system, Options{})
		if err != nil {
			t.Fatalf("RunSync() returned an unexpected error: %v", err)
		}
		if report.Added != 1 || report.Removed != 1 {
			t.Errorf("Expected 1 added and 1 removed, but got %+v", report)
		}
		if !reflect.DeepEqual(system.CardCountsPerBox(), []int{1, 0, 0, 0, 0}) {
			t.Errorf("Expected counts [1 0 0 0 0], but got %v", system.CardCountsPerBox())
		}
		typo := cardid.ID(domain.Word{Text: "Hund", LanguageCode: "de", Meaning: "dgo"})
		if _, ok := system.BoxOf(typo); ok {
			t.Error("Expected the misspelled card to be removed")
		}
	})

	t.Run("deleted file removes its cards", func(t *testing.T) {
		db, dir := setup(t, map[string]string{
			"german.md":  "W: Hund\nM: dog\nL: de\n",
			"spanish.md": "W: perro\nM: dog\nL: es\n",
		})
		if _, err := AddSource(db, dir); err != nil {
			t.Fatalf("AddSource() returned an unexpected error: %v", err)
		}
		system := leitner.New(leitner.DefaultBoxCount)
		if _, err := RunSync(db, system, Options{}); err != nil {
			t.Fatalf("RunSync() returned an unexpected error: %v", err)
		}

		if err := os.Remove(filepath.Join(dir, "spanish.md")); err != nil {
			t.Fatalf("Failed to remove fixture: %v", err)
		}
		report, err := RunSync(db, system, Options{})
		if err != nil {
			t.Fatalf("RunSync() returned an unexpected error: %v", err)
		}
		if report.Removed != 1 {
			t.Errorf("Expected 1 card removed, but got %+v", report)
		}
		perro := cardid.ID(domain.Word{Text: "perro", LanguageCode: "es", Meaning: "dog"})
		if _, ok := system.BoxOf(perro); ok {
			t.Error("Expected the card of the deleted file to be removed")
		}
	})

	t.Run("cards are kept when a file cannot be read", func(t *testing.T) {
		db, dir := setup(t, map[string]string{
			"german.md":  "W: Hund\nM: dog\nL: de\n",
			"spanish.md": "W: perro\nM: dog\nL: es\n",
		})
		if _, err := AddSource(db, dir); err != nil {
			t.Fatalf("AddSource() returned an unexpected error: %v", err)
		}
		system := leitner.New(leitner.DefaultBoxCount)
		if _, err := RunSync(db, system, Options{}); err != nil {
			t.Fatalf("RunSync() returned an unexpected error: %v", err)
		}

		// A line longer than the scanner buffer fails the parse.
		writeFile(t, filepath.Join(dir, "spanish.md"), "W: perro\nM: "+strings.Repeat("x", 70000)+"\n")
		report, err := RunSync(db, system, Options{})
		if err != nil {
			t.Fatalf("RunSync() returned an unexpected error: %v", err)
		}
		if len(report.Errors) != 1 || report.Removed != 0 {
			t.Errorf("Expected 1 error and no removals, but got %+v", report)
		}
		if !reflect.DeepEqual(system.CardCountsPerBox(), []int{2, 0, 0, 0, 0}) {
			t.Errorf("Expected counts [2 0 0 0 0], but got %v", system.CardCountsPerBox())
		}
	})

	t.Run("word shared by two sources survives one of them", func(t *testing.T) {
		db, first := setup(t, map[string]string{"german.md": "W: Hund\nM: dog\nL: de\n"})
		second := t.TempDir()
		writeFile(t, filepath.Join(second, "animals.md"), "W: Hund\nM: dog\nL: de\n")
		for _, dir := range []string{first, second} {
			if _, err := AddSource(db, dir); err != nil {
				t.Fatalf("AddSource() returned an unexpected error: %v", err)
			}
		}
		system := leitner.New(leitner.DefaultBoxCount)
		if _, err := RunSync(db, system, Options{}); err != nil {
			t.Fatalf("RunSync() returned an unexpected error: %v", err)
		}

		writeFile(t, filepath.Join(first, "german.md"), "")
		report, err := RunSync(db, system, Options{})
		if err != nil {
			t.Fatalf("RunSync() returned an unexpected error: %v", err)
		}
		if report.Removed != 0 {
			t.Errorf("Expected no cards removed, but got %+v", report)
		}
		if !reflect.DeepEqual(system.CardCountsPerBox(), []int{1, 0, 0, 0, 0}) {
			t.Errorf("Expected counts [1 0 0 0 0], but got %v", system.CardCountsPerBox())
		}
	})
}

func TestRemoveSource(t *testing.T) {
	db, dir := setup(t, map[string]string{"german.md": "W: Hund\nM: dog\nL: de\n---\nW: Katze\nM: cat\nL: de\n"})
	if _, err := AddSource(db, dir); err != nil {
		t.Fatalf("AddSource() returned an unexpected error: %v", err)
	}
	system := leitner.New(leitner.DefaultBoxCount)
	if _, err := RunSync(db, system, Options{}); err != nil {
		t.Fatalf("RunSync() returned an unexpected error: %v", err)
	}

	removed, err := RemoveSource(db, system, dir)
	if err != nil {
		t.Fatalf("RemoveSource() returned an unexpected error: %v", err)
	}
	if removed != 2 {
		t.Errorf("Expected 2 cards removed, but got %d", removed)
	}
	if !reflect.DeepEqual(system.CardCountsPerBox(), []int{0, 0, 0, 0, 0}) {
		t.Errorf("Expected every box to be empty, but got %v", system.CardCountsPerBox())
	}
	if sources, _ := db.GetAllSources(); len(sources) != 0 {
		t.Errorf("Expected no sources left, but got %+v", sources)
	}

	if _, err := RemoveSource(db, system, dir); err == nil {
		t.Error("Expected an error removing an unknown source")
	}
}
