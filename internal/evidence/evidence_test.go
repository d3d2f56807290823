package evidence

import (
	"strings"
	"testing"
	"time"
)

func TestHashFileIsDeterministic(t *testing.T) {
	h1, err := HashFile(strings.NewReader("forensic payload"))
	if err != nil {
		t.Fatalf("HashFile: %v", err)
	}
	h2, err := HashFile(strings.NewReader("forensic payload"))
	if err != nil {
		t.Fatalf("HashFile: %v", err)
	}
	if h1 != h2 {
		t.Errorf("HashFile not deterministic: %s != %s", h1, h2)
	}
	if len(h1) != 64 {
		t.Errorf("len(hash) = %d, want 64 hex chars for a 32-byte digest", len(h1))
	}
}

func TestHashFileDiffersOnContentChange(t *testing.T) {
	h1, _ := HashFile(strings.NewReader("a"))
	h2, _ := HashFile(strings.NewReader("b"))
	if h1 == h2 {
		t.Error("HashFile should differ for different content")
	}
}

func TestNewCaseMetadata(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	meta, err := NewCaseMetadata("evidence.db", strings.NewReader("bytes"), now)
	if err != nil {
		t.Fatalf("NewCaseMetadata: %v", err)
	}
	if meta.DatabasePath != "evidence.db" {
		t.Errorf("DatabasePath = %q", meta.DatabasePath)
	}
	if meta.GeneratedAt != now {
		t.Errorf("GeneratedAt = %v, want %v", meta.GeneratedAt, now)
	}
	if meta.RunID == "" {
		t.Error("RunID should be populated")
	}
	if meta.ContentHash == "" {
		t.Error("ContentHash should be populated")
	}
}

func TestNewRunIDIsUnique(t *testing.T) {
	if NewRunID() == NewRunID() {
		t.Error("NewRunID should not repeat")
	}
}
