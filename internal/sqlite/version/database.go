// Package version resolves the database header file plus its WAL into an
// ordered chain of immutable snapshots, per spec.md §4.5: the original
// on-disk database is Version 0 (the base), and each committed WAL
// transaction appends one more Version layered on top of the one before
// it. Every Version implements page.Source, so everything downstream
// (schema parsing, history, carving) reads through the same interface
// whether a page comes from the base file or an overlaid WAL frame.
package version

import (
	"fmt"
	"io"

	"github.com/forensics-go/sqlforensic/internal/sqlite/fileformat"
	"github.com/forensics-go/sqlforensic/internal/sqlite/page"
	"github.com/forensics-go/sqlforensic/internal/sqlite/sqliteerr"
)

var _ page.Source = (*Database)(nil)

// Database is the base snapshot: the database file as it stood before any
// WAL frame is applied.
type Database struct {
	reader     io.ReaderAt
	fileLength int64
	header     *fileformat.Header
	pageSize   int
	usableSize int
}

// OpenDatabase decodes the 100-byte database header and wraps reader as a
// page source for the base snapshot.
func OpenDatabase(reader io.ReaderAt, fileLength int64, strict bool) (*Database, []fileformat.Warning, error) {
	headerData := make([]byte, fileformat.HeaderSize)
	if _, err := reader.ReadAt(headerData, 0); err != nil && err != io.EOF {
		return nil, nil, sqliteerr.NewParsingError(sqliteerr.ErrDatabaseParsing, "header", 0, err)
	}
	h, warnings, err := fileformat.ParseHeader(headerData, strict)
	if err != nil {
		return nil, warnings, err
	}
	pageSize := h.GetPageSize()
	return &Database{
		reader:     reader,
		fileLength: fileLength,
		header:     h,
		pageSize:   pageSize,
		usableSize: pageSize - int(h.ReservedSpace),
	}, warnings, nil
}

// Header returns the decoded base-file header.
func (d *Database) Header() *fileformat.Header { return d.header }

// PageSize returns the full on-disk page size (including reserved space).
func (d *Database) PageSize() int { return d.pageSize }

// UsableSize implements page.Source.
func (d *Database) UsableSize() int { return d.usableSize }

// PageCount resolves the size-in-pages field per the header's own
// trust rule: VersionValidFor must match FileChangeCounter, otherwise the
// file length governs.
func (d *Database) PageCount() uint32 { return d.header.DatabaseSizeInPages(d.fileLength) }

// PageBytes implements page.Source by reading the page directly off the
// underlying file at its fixed offset.
func (d *Database) PageBytes(number uint32) ([]byte, error) {
	if number == 0 {
		return nil, sqliteerr.NewParsingError(sqliteerr.ErrDatabaseParsing, "page_number", 0,
			fmt.Errorf("page 0 does not exist"))
	}
	buf := make([]byte, d.pageSize)
	offset := int64(number-1) * int64(d.pageSize)
	n, err := d.reader.ReadAt(buf, offset)
	if err != nil && err != io.EOF {
		return nil, sqliteerr.NewParsingError(sqliteerr.ErrDatabaseParsing, "page", offset, err)
	}
	if n < d.pageSize {
		return nil, sqliteerr.NewParsingError(sqliteerr.ErrDatabaseParsing, "page", offset,
			fmt.Errorf("short read: got %d bytes, want %d", n, d.pageSize))
	}
	return buf, nil
}
