// Package fileformat decodes the fixed-layout headers that open a SQLite
// database file, WAL file, WAL frame, rollback journal, and WAL-index.
// Every decoder here is a total function over a fixed byte window: it
// never panics on malformed input. Validation runs inside each decoder:
// in strict mode a violation is returned as an error with no header; in
// non-strict mode the header is returned together with a Warning for
// each violation.
package fileformat

import (
	"encoding/binary"
	"fmt"

	"github.com/forensics-go/sqlforensic/internal/sqlite/sqliteerr"
)

// Database header layout (see https://sqlite.org/fileformat2.html#the_database_header).
const (
	HeaderSize = 100

	MagicString = "SQLite format 3\000"

	MinPageSize = 512
	MaxPageSize = 65536
)

const (
	offsetMagic             = 0
	offsetPageSize          = 16
	offsetWriteVersion      = 18
	offsetReadVersion       = 19
	offsetReservedSpace     = 20
	offsetMaxPayloadFrac    = 21
	offsetMinPayloadFrac    = 22
	offsetLeafPayloadFrac   = 23
	offsetFileChangeCounter = 24
	offsetDatabaseSize      = 28
	offsetFirstFreelist     = 32
	offsetFreelistCount     = 36
	offsetSchemaCookie      = 40
	offsetSchemaFormat      = 44
	offsetDefaultCacheSize  = 48
	offsetLargestRootPage   = 52
	offsetTextEncoding      = 56
	offsetUserVersion       = 60
	offsetIncrVacuum        = 64
	offsetAppID             = 68
	offsetReserved          = 72
	offsetVersionValidFor   = 92
	offsetSQLiteVersion     = 96
)

// Text encodings stored at offsetTextEncoding.
const (
	EncodingUTF8    = 1
	EncodingUTF16LE = 2
	EncodingUTF16BE = 3
)

// Header is the 100-byte SQLite database file header.
type Header struct {
	PageSize          uint16 // raw field; 1 means 65536 — use GetPageSize
	WriteVersion      uint8
	ReadVersion       uint8
	ReservedSpace     uint8
	MaxPayloadFrac    uint8
	MinPayloadFrac    uint8
	LeafPayloadFrac   uint8
	FileChangeCounter uint32
	DatabaseSize      uint32
	FirstFreelist     uint32
	FreelistCount     uint32
	SchemaCookie      uint32
	SchemaFormat      uint32
	DefaultCacheSize  uint32
	LargestRootPage   uint32
	TextEncoding      uint32
	UserVersion       uint32
	IncrVacuum        uint32
	AppID             uint32
	VersionValidFor   uint32
	SQLiteVersion     uint32
}

// ParseHeader decodes the 100-byte database header from data. In strict
// mode, a magic mismatch, an invalid page size, an out-of-range reserved
// space, payload fractions other than 64/32/32, a text encoding outside
// {1,2,3}, or a schema format outside {1..4} all fail with a
// *sqliteerr.ParsingError wrapping ErrHeaderParsing. In non-strict mode
// those same conditions are returned as warnings (see Warnings) and
// decoding proceeds with the declared (possibly nonsensical) values, which
// downstream decoders must defend against.
func ParseHeader(data []byte, strict bool) (*Header, []Warning, error) {
	if len(data) < HeaderSize {
		return nil, nil, sqliteerr.NewParsingError(sqliteerr.ErrHeaderParsing, "header", 0,
			fmt.Errorf("short read: got %d bytes, want %d", len(data), HeaderSize))
	}

	var warnings []Warning
	fail := func(field string, offset int64, err error) (*Header, []Warning, error) {
		return nil, warnings, sqliteerr.NewParsingError(sqliteerr.ErrHeaderParsing, field, offset, err)
	}
	warn := func(field string, offset int64, err error) {
		warnings = append(warnings, Warning{Field: field, Offset: offset, Err: err})
	}

	if string(data[offsetMagic:offsetMagic+16]) != MagicString {
		err := fmt.Errorf("invalid magic header: %q", data[offsetMagic:offsetMagic+16])
		if strict {
			return fail("magic", offsetMagic, err)
		}
		warn("magic", offsetMagic, err)
	}

	h := &Header{
		PageSize:          binary.BigEndian.Uint16(data[offsetPageSize:]),
		WriteVersion:      data[offsetWriteVersion],
		ReadVersion:       data[offsetReadVersion],
		ReservedSpace:     data[offsetReservedSpace],
		MaxPayloadFrac:    data[offsetMaxPayloadFrac],
		MinPayloadFrac:    data[offsetMinPayloadFrac],
		LeafPayloadFrac:   data[offsetLeafPayloadFrac],
		FileChangeCounter: binary.BigEndian.Uint32(data[offsetFileChangeCounter:]),
		DatabaseSize:      binary.BigEndian.Uint32(data[offsetDatabaseSize:]),
		FirstFreelist:     binary.BigEndian.Uint32(data[offsetFirstFreelist:]),
		FreelistCount:     binary.BigEndian.Uint32(data[offsetFreelistCount:]),
		SchemaCookie:      binary.BigEndian.Uint32(data[offsetSchemaCookie:]),
		SchemaFormat:      binary.BigEndian.Uint32(data[offsetSchemaFormat:]),
		DefaultCacheSize:  binary.BigEndian.Uint32(data[offsetDefaultCacheSize:]),
		LargestRootPage:   binary.BigEndian.Uint32(data[offsetLargestRootPage:]),
		TextEncoding:      binary.BigEndian.Uint32(data[offsetTextEncoding:]),
		UserVersion:       binary.BigEndian.Uint32(data[offsetUserVersion:]),
		IncrVacuum:        binary.BigEndian.Uint32(data[offsetIncrVacuum:]),
		AppID:             binary.BigEndian.Uint32(data[offsetAppID:]),
		VersionValidFor:   binary.BigEndian.Uint32(data[offsetVersionValidFor:]),
		SQLiteVersion:     binary.BigEndian.Uint32(data[offsetSQLiteVersion:]),
	}

	pageSize := h.GetPageSize()
	if !IsValidPageSize(pageSize) {
		err := fmt.Errorf("invalid page size: %d", pageSize)
		if strict {
			return fail("page_size", offsetPageSize, err)
		}
		warn("page_size", offsetPageSize, err)
	}

	if int(h.ReservedSpace) > 255 {
		err := fmt.Errorf("reserved space out of range: %d", h.ReservedSpace)
		if strict {
			return fail("reserved_space", offsetReservedSpace, err)
		}
		warn("reserved_space", offsetReservedSpace, err)
	}

	if h.MaxPayloadFrac != 64 || h.MinPayloadFrac != 32 || h.LeafPayloadFrac != 32 {
		err := fmt.Errorf("unexpected payload fractions: max=%d min=%d leaf=%d",
			h.MaxPayloadFrac, h.MinPayloadFrac, h.LeafPayloadFrac)
		if strict {
			return fail("payload_fractions", offsetMaxPayloadFrac, err)
		}
		warn("payload_fractions", offsetMaxPayloadFrac, err)
	}

	if h.TextEncoding < EncodingUTF8 || h.TextEncoding > EncodingUTF16BE {
		err := fmt.Errorf("invalid text encoding: %d", h.TextEncoding)
		if strict {
			return fail("text_encoding", offsetTextEncoding, err)
		}
		warn("text_encoding", offsetTextEncoding, err)
	}

	if h.SchemaFormat < 1 || h.SchemaFormat > 4 {
		err := fmt.Errorf("invalid schema format: %d", h.SchemaFormat)
		if strict {
			return fail("schema_format", offsetSchemaFormat, err)
		}
		warn("schema_format", offsetSchemaFormat, err)
	}

	return h, warnings, nil
}

// GetPageSize returns the actual page size, handling the special case
// where a stored value of 1 means 65536.
func (h *Header) GetPageSize() int {
	if h.PageSize == 1 {
		return MaxPageSize
	}
	return int(h.PageSize)
}

// DatabaseSizeInPages resolves the size-in-pages field per §4.2: the
// header value is trusted only when VersionValidFor equals
// FileChangeCounter; otherwise it is derived from the file length, per the
// implementer-judgment call recorded for this open question.
func (h *Header) DatabaseSizeInPages(fileLength int64) uint32 {
	if h.VersionValidFor == h.FileChangeCounter && h.DatabaseSize != 0 {
		return h.DatabaseSize
	}
	pageSize := int64(h.GetPageSize())
	if pageSize == 0 {
		return h.DatabaseSize
	}
	return uint32(fileLength / pageSize)
}

// IsValidPageSize reports whether size is a power of two in [512, 65536].
func IsValidPageSize(size int) bool {
	if size < MinPageSize || size > MaxPageSize {
		return false
	}
	return size&(size-1) == 0
}

// Warning carries a downgraded validation failure from non-strict mode.
type Warning struct {
	Field  string
	Offset int64
	Err    error
}

func (w Warning) String() string {
	return fmt.Sprintf("%s at offset %d: %v", w.Field, w.Offset, w.Err)
}
