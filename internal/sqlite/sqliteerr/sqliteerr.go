// Package sqliteerr defines the core error taxonomy: sentinel errors for
// each family plus typed wrapper structs carrying offset/field detail, so
// callers can errors.Is against a family or errors.As for structured
// context.
package sqliteerr

import (
	"errors"
	"fmt"
)

// Parsing-error family sentinels.
var (
	ErrHeaderParsing           = errors.New("header parsing error")
	ErrMasterSchemaRowParsing  = errors.New("master schema row parsing error")
	ErrPageParsing             = errors.New("page parsing error")
	ErrBTreePageParsing        = errors.New("b-tree page parsing error")
	ErrCellParsing             = errors.New("cell parsing error")
	ErrRecordParsing           = errors.New("record parsing error")
)

// Version-parsing-error family sentinels.
var (
	ErrDatabaseParsing        = errors.New("database parsing error")
	ErrWalParsing             = errors.New("wal parsing error")
	ErrWalFrameParsing        = errors.New("wal frame parsing error")
	ErrWalCommitRecordParsing = errors.New("wal commit record parsing error")
)

// Signature and carving sentinels.
var (
	ErrSignature     = errors.New("signature error")
	ErrCellCarving   = errors.New("cell carving error")
	ErrInvalidVarInt = errors.New("invalid varint error")
)

// ParsingError wraps a structural violation encountered while decoding a
// fixed-layout region of a database, page, cell, or record. Offset is
// relative to the start of the region named by Field.
type ParsingError struct {
	Kind   error // one of the Err*Parsing sentinels above
	Field  string
	Offset int64
	Err    error
}

func (e *ParsingError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s at offset %d: %v", e.Kind, e.Field, e.Offset, e.Err)
	}
	return fmt.Sprintf("%s at offset %d: %v", e.Kind, e.Offset, e.Err)
}

func (e *ParsingError) Unwrap() error {
	if e.Err != nil {
		return errors.Join(e.Kind, e.Err)
	}
	return e.Kind
}

// NewParsingError builds a ParsingError for one of the Err*Parsing sentinels.
func NewParsingError(kind error, field string, offset int64, err error) *ParsingError {
	return &ParsingError{Kind: kind, Field: field, Offset: offset, Err: err}
}

// VersionParsingError wraps a structural violation encountered while
// reconstructing the database/WAL version chain.
type VersionParsingError struct {
	Kind        error // one of the Err{Database,Wal,WalFrame,WalCommitRecord}Parsing sentinels
	VersionNum  int
	FrameNumber int
	Err         error
}

func (e *VersionParsingError) Error() string {
	return fmt.Sprintf("%s: version %d frame %d: %v", e.Kind, e.VersionNum, e.FrameNumber, e.Err)
}

func (e *VersionParsingError) Unwrap() error {
	if e.Err != nil {
		return errors.Join(e.Kind, e.Err)
	}
	return e.Kind
}

// SignatureError reports an attempt to generate a signature for an
// unsupported master-schema entry kind (virtual table, without-rowid
// table, or internal schema object lacking SQL).
type SignatureError struct {
	TableName string
	Reason    string
}

func (e *SignatureError) Error() string {
	return fmt.Sprintf("signature error for table %q: %s", e.TableName, e.Reason)
}

func (e *SignatureError) Unwrap() error { return ErrSignature }

// CarvingError wraps a failed carve attempt. Per the core's error-handling
// policy, carving failures are local to the carver: callers record them but
// never propagate them as a fatal operation error, and no cell is emitted.
type CarvingError struct {
	Kind   error // ErrCellCarving or ErrInvalidVarInt
	Page   int
	Offset int
	Err    error
}

func (e *CarvingError) Error() string {
	return fmt.Sprintf("%s: page %d offset %d: %v", e.Kind, e.Page, e.Offset, e.Err)
}

func (e *CarvingError) Unwrap() error {
	if e.Err != nil {
		return errors.Join(e.Kind, e.Err)
	}
	return e.Kind
}

// Is wraps errors.Is for convenience, matching the teacher's errors package.
func Is(err, target error) bool { return errors.Is(err, target) }

// As wraps errors.As for convenience.
func As(err error, target interface{}) bool { return errors.As(err, target) }
