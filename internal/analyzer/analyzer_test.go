package analyzer

import (
	"database/sql"
	"io"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/forensics-go/sqlforensic/internal/config"
	"github.com/forensics-go/sqlforensic/internal/logging"
)

// buildFixture writes a real SQLite database to dir using modernc.org/sqlite,
// so the analyzer under test runs against byte-real pages rather than
// hand-assembled fixtures, per SPEC_FULL.md's test-tooling note.
func buildFixture(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "fixture.db")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open fixture db: %v", err)
	}
	defer db.Close()

	stmts := []string{
		"CREATE TABLE notes(id INTEGER PRIMARY KEY, body TEXT)",
		"INSERT INTO notes(id, body) VALUES (1, 'first')",
		"INSERT INTO notes(id, body) VALUES (2, 'second')",
		"DELETE FROM notes WHERE id = 1",
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			t.Fatalf("exec %q: %v", s, err)
		}
	}
	return path
}

func TestRunDecodesFixtureTableHistory(t *testing.T) {
	dir := t.TempDir()
	path := buildFixture(t, dir)

	cfg := &config.Config{
		DatabasePath:         path,
		NoJournal:            true,
		StrictFormatChecking: false,
	}
	logger := logging.New(io.Discard, logging.LevelError, logging.FormatText)

	res, err := Run(cfg, logger)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Meta.ContentHash == "" {
		t.Error("expected a populated content hash")
	}
	if res.FileSize == 0 {
		t.Error("expected a nonzero file size")
	}

	found := false
	for _, table := range res.Tables {
		if table.TableName == "notes" {
			found = true
			if len(table.Rows) == 0 {
				t.Error("expected at least one reported row for notes")
			}
		}
	}
	if !found {
		t.Fatal("expected a report for table notes")
	}
}
