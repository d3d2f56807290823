// Package evidence computes the chain-of-custody metadata attached to a
// run's exports: a whole-file integrity hash and a run identifier.
// Grounded on original_source/sqlite_dissect/export/case_export.py's run
// metadata block, which tags every export with a run identifier and a
// hash of the source file distinct from the per-cell fingerprint used
// for change detection.
package evidence

import (
	"encoding/hex"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/zeebo/blake3"
)

// CaseMetadata is the evidentiary record attached to every writer's
// output for one analysis run.
type CaseMetadata struct {
	RunID        string
	DatabasePath string
	ContentHash  string // hex BLAKE3 of the analyzed file, as opened
	GeneratedAt  time.Time
}

// NewRunID generates a fresh run identifier (uuid v4), per
// case_export.py's per-export run correlation id.
func NewRunID() string { return uuid.NewString() }

// HashFile computes the BLAKE3 digest of r's entire contents. This is
// deliberately not the crypto/md5 digest used for per-cell
// fingerprinting (spec.md §4.6/§4.8): that MD5 usage is a forensic
// invariant of the carver's change-detection and duplicate-suppression
// algorithms, not a hashing-algorithm choice, and stays crypto/md5
// regardless of what this package uses for whole-file integrity.
func HashFile(r io.Reader) (string, error) {
	h := blake3.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", fmt.Errorf("evidence: hash file: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// NewCaseMetadata builds a CaseMetadata for databasePath, hashing r for
// the content hash and generating a fresh run id. now is passed in by
// the caller rather than taken from time.Now() here, keeping this
// package free of hidden clock reads.
func NewCaseMetadata(databasePath string, r io.Reader, now time.Time) (CaseMetadata, error) {
	hash, err := HashFile(r)
	if err != nil {
		return CaseMetadata{}, err
	}
	return CaseMetadata{
		RunID:        NewRunID(),
		DatabasePath: databasePath,
		ContentHash:  hash,
		GeneratedAt:  now,
	}, nil
}
