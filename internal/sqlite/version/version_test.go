package version

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/forensics-go/sqlforensic/internal/sqlite/fileformat"
)

// buildHeader lays out a valid 100-byte database header with the given
// page size and schema cookie, mirroring real SQLite's field values for
// payload fractions and text encoding so strict parsing succeeds.
func buildHeader(pageSize uint16, schemaCookie uint32) []byte {
	h := make([]byte, fileformat.HeaderSize)
	copy(h, fileformat.MagicString)
	binary.BigEndian.PutUint16(h[16:], pageSize)
	h[18] = 1 // write version
	h[19] = 1 // read version
	h[21] = 64
	h[22] = 32
	h[23] = 32
	binary.BigEndian.PutUint32(h[40:], schemaCookie)
	binary.BigEndian.PutUint32(h[44:], 4) // schema format
	binary.BigEndian.PutUint32(h[56:], fileformat.EncodingUTF8)
	return h
}

// buildDatabaseFile lays out a full database file: a page-1 header
// followed by numPages-1 further zero-filled pages, with pageContent
// overrides applied by 1-based page number.
func buildDatabaseFile(pageSize int, numPages int, schemaCookie uint32, overrides map[uint32][]byte) []byte {
	buf := make([]byte, pageSize*numPages)
	copy(buf, buildHeader(uint16(pageSize), schemaCookie))
	for pn, content := range overrides {
		start := int(pn-1) * pageSize
		copy(buf[start:], content)
	}
	return buf
}

func TestOpenDatabaseParsesHeaderAndPageBytes(t *testing.T) {
	pageContent := bytes.Repeat([]byte{0xAB}, 512)
	file := buildDatabaseFile(512, 3, 7, map[uint32][]byte{2: pageContent})

	db, warnings, err := OpenDatabase(bytes.NewReader(file), int64(len(file)), true)
	if err != nil {
		t.Fatalf("OpenDatabase: %v (warnings=%v)", err, warnings)
	}
	if db.Header().SchemaCookie != 7 {
		t.Errorf("SchemaCookie = %d, want 7", db.Header().SchemaCookie)
	}
	if db.UsableSize() != 512 {
		t.Errorf("UsableSize() = %d, want 512", db.UsableSize())
	}

	page2, err := db.PageBytes(2)
	if err != nil {
		t.Fatalf("PageBytes(2): %v", err)
	}
	if !bytes.Equal(page2, pageContent) {
		t.Errorf("PageBytes(2) mismatch")
	}

	if _, err := db.PageBytes(0); err == nil {
		t.Error("PageBytes(0) should fail")
	}
}

// buildWalFrame lays out one 24-byte WAL frame header followed by a
// pageSize page image.
func buildWalFrame(pageNumber, dbSizeAfterCommit uint32, pageSize int, fill byte) []byte {
	buf := make([]byte, fileformat.WalFrameHeaderSize+pageSize)
	binary.BigEndian.PutUint32(buf[0:], pageNumber)
	binary.BigEndian.PutUint32(buf[4:], dbSizeAfterCommit)
	for i := fileformat.WalFrameHeaderSize; i < len(buf); i++ {
		buf[i] = fill
	}
	return buf
}

func buildWalHeader(pageSize uint32) []byte {
	h := make([]byte, fileformat.WalHeaderSize)
	binary.BigEndian.PutUint32(h[0:], fileformat.WalMagicBigEndian)
	binary.BigEndian.PutUint32(h[4:], fileformat.WalFileFormatVersion)
	binary.BigEndian.PutUint32(h[8:], pageSize)
	return h
}

func TestReadWalGroupsFramesIntoCommits(t *testing.T) {
	pageSize := 512
	var buf bytes.Buffer
	buf.Write(buildWalHeader(uint32(pageSize)))
	buf.Write(buildWalFrame(2, 0, pageSize, 0x11))   // non-commit
	buf.Write(buildWalFrame(3, 5, pageSize, 0x22))   // commits the transaction
	buf.Write(buildWalFrame(2, 0, pageSize, 0x33))   // trailing, uncommitted

	data := buf.Bytes()
	wal, warnings, err := ReadWal(bytes.NewReader(data), int64(len(data)), true)
	if err != nil {
		t.Fatalf("ReadWal: %v (warnings=%v)", err, warnings)
	}
	if len(wal.Commits) != 1 {
		t.Fatalf("len(Commits) = %d, want 1", len(wal.Commits))
	}
	if len(wal.Commits[0].Frames) != 2 {
		t.Fatalf("len(Commits[0].Frames) = %d, want 2", len(wal.Commits[0].Frames))
	}
	if wal.Commits[0].DBSizeAfterCommit != 5 {
		t.Errorf("DBSizeAfterCommit = %d, want 5", wal.Commits[0].DBSizeAfterCommit)
	}
	if len(wal.TrailingFrames) != 1 {
		t.Fatalf("len(TrailingFrames) = %d, want 1", len(wal.TrailingFrames))
	}
}

func TestVersionPageBytesOverlaysAndFallsBack(t *testing.T) {
	pageSize := 512
	basePage2 := bytes.Repeat([]byte{0xAA}, pageSize)
	basePage3 := bytes.Repeat([]byte{0xBB}, pageSize)
	file := buildDatabaseFile(pageSize, 4, 1, map[uint32][]byte{2: basePage2, 3: basePage3})
	db, _, err := OpenDatabase(bytes.NewReader(file), int64(len(file)), true)
	if err != nil {
		t.Fatalf("OpenDatabase: %v", err)
	}

	var buf bytes.Buffer
	buf.Write(buildWalHeader(uint32(pageSize)))
	buf.Write(buildWalFrame(2, 4, pageSize, 0xCC)) // overlay page 2, commits immediately
	walData := buf.Bytes()
	wal, _, err := ReadWal(bytes.NewReader(walData), int64(len(walData)), true)
	if err != nil {
		t.Fatalf("ReadWal: %v", err)
	}

	chain := BuildChain(db, wal)
	if len(chain) != 2 {
		t.Fatalf("len(chain) = %d, want 2", len(chain))
	}
	base, v1 := chain[0], chain[1]

	p2, err := base.PageBytes(2)
	if err != nil {
		t.Fatalf("base.PageBytes(2): %v", err)
	}
	if !bytes.Equal(p2, basePage2) {
		t.Error("base.PageBytes(2) should return the base page")
	}

	overlaid, err := v1.PageBytes(2)
	if err != nil {
		t.Fatalf("v1.PageBytes(2): %v", err)
	}
	if !bytes.Equal(overlaid, bytes.Repeat([]byte{0xCC}, pageSize)) {
		t.Error("v1.PageBytes(2) should return the WAL-overlaid page")
	}

	fallback, err := v1.PageBytes(3)
	if err != nil {
		t.Fatalf("v1.PageBytes(3): %v", err)
	}
	if !bytes.Equal(fallback, basePage3) {
		t.Error("v1.PageBytes(3) should fall back to the base snapshot")
	}

	if Latest(chain) != v1 {
		t.Error("Latest(chain) should be v1")
	}
	if base.IsBase() != true || v1.IsBase() != false {
		t.Error("IsBase mismatch")
	}
	if v1.PageCount() != 4 {
		t.Errorf("v1.PageCount() = %d, want 4", v1.PageCount())
	}
}

func TestVersionHeaderResolvesNewestSchemaCookie(t *testing.T) {
	pageSize := 512
	file := buildDatabaseFile(pageSize, 2, 1, nil)
	db, _, err := OpenDatabase(bytes.NewReader(file), int64(len(file)), true)
	if err != nil {
		t.Fatalf("OpenDatabase: %v", err)
	}

	newPage1 := buildHeader(uint16(pageSize), 9)
	fullPage1 := make([]byte, pageSize)
	copy(fullPage1, newPage1)

	var buf bytes.Buffer
	buf.Write(buildWalHeader(uint32(pageSize)))
	frame := make([]byte, fileformat.WalFrameHeaderSize+pageSize)
	binary.BigEndian.PutUint32(frame[0:], 1)
	binary.BigEndian.PutUint32(frame[4:], 2)
	copy(frame[fileformat.WalFrameHeaderSize:], fullPage1)
	buf.Write(frame)
	walData := buf.Bytes()

	wal, _, err := ReadWal(bytes.NewReader(walData), int64(len(walData)), true)
	if err != nil {
		t.Fatalf("ReadWal: %v", err)
	}
	chain := BuildChain(db, wal)

	baseHeader, _, err := chain[0].Header(true)
	if err != nil {
		t.Fatalf("base Header: %v", err)
	}
	if baseHeader.SchemaCookie != 1 {
		t.Errorf("base SchemaCookie = %d, want 1", baseHeader.SchemaCookie)
	}

	latestHeader, _, err := Latest(chain).Header(true)
	if err != nil {
		t.Fatalf("latest Header: %v", err)
	}
	if latestHeader.SchemaCookie != 9 {
		t.Errorf("latest SchemaCookie = %d, want 9", latestHeader.SchemaCookie)
	}
}
