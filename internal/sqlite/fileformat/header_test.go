package fileformat

import (
	"encoding/binary"
	"testing"
)

func validHeaderBytes(pageSize uint16) []byte {
	data := make([]byte, HeaderSize)
	copy(data[offsetMagic:], MagicString)
	binary.BigEndian.PutUint16(data[offsetPageSize:], pageSize)
	data[offsetWriteVersion] = 1
	data[offsetReadVersion] = 1
	data[offsetMaxPayloadFrac] = 64
	data[offsetMinPayloadFrac] = 32
	data[offsetLeafPayloadFrac] = 32
	binary.BigEndian.PutUint32(data[offsetSchemaFormat:], 4)
	binary.BigEndian.PutUint32(data[offsetTextEncoding:], EncodingUTF8)
	binary.BigEndian.PutUint32(data[offsetFileChangeCounter:], 7)
	binary.BigEndian.PutUint32(data[offsetVersionValidFor:], 7)
	binary.BigEndian.PutUint32(data[offsetDatabaseSize:], 3)
	return data
}

func TestParseHeaderValid(t *testing.T) {
	data := validHeaderBytes(4096)
	h, warnings, err := ParseHeader(data, true)
	if err != nil {
		t.Fatalf("ParseHeader: %v", err)
	}
	if len(warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", warnings)
	}
	if h.GetPageSize() != 4096 {
		t.Errorf("GetPageSize() = %d, want 4096", h.GetPageSize())
	}
}

func TestParseHeaderPageSize65536(t *testing.T) {
	data := validHeaderBytes(1) // 1 means 65536
	h, _, err := ParseHeader(data, true)
	if err != nil {
		t.Fatalf("ParseHeader: %v", err)
	}
	if h.GetPageSize() != 65536 {
		t.Errorf("GetPageSize() = %d, want 65536", h.GetPageSize())
	}
}

func TestParseHeaderStrictRejectsBadMagic(t *testing.T) {
	data := validHeaderBytes(4096)
	data[0] = 'X'
	if _, _, err := ParseHeader(data, true); err == nil {
		t.Fatal("expected strict-mode error for bad magic")
	}
}

func TestParseHeaderNonStrictWarnsOnBadPayloadFraction(t *testing.T) {
	data := validHeaderBytes(4096)
	data[offsetReservedSpace] = 200 // in range, raises no warning; the payload-fraction violation below does
	data[offsetMaxPayloadFrac] = 10
	h, warnings, err := ParseHeader(data, false)
	if err != nil {
		t.Fatalf("non-strict mode must not fail: %v", err)
	}
	if h == nil {
		t.Fatal("expected a header even with warnings")
	}
	if len(warnings) == 0 {
		t.Fatal("expected at least one warning")
	}
}

func TestDatabaseSizeInPagesPrefersHeaderWhenValid(t *testing.T) {
	h := &Header{DatabaseSize: 10, FileChangeCounter: 5, VersionValidFor: 5, PageSize: 4096}
	if got := h.DatabaseSizeInPages(999999); got != 10 {
		t.Errorf("DatabaseSizeInPages() = %d, want 10", got)
	}
}

func TestDatabaseSizeInPagesDerivesFromFileLengthWhenStale(t *testing.T) {
	h := &Header{DatabaseSize: 0, FileChangeCounter: 5, VersionValidFor: 9, PageSize: 4096}
	if got := h.DatabaseSizeInPages(4096 * 3); got != 3 {
		t.Errorf("DatabaseSizeInPages() = %d, want 3", got)
	}
}

func TestIsValidPageSize(t *testing.T) {
	tests := []struct {
		size int
		want bool
	}{
		{512, true}, {65536, true}, {4096, true},
		{511, false}, {65537, false}, {4097, false}, {0, false},
	}
	for _, tt := range tests {
		if got := IsValidPageSize(tt.size); got != tt.want {
			t.Errorf("IsValidPageSize(%d) = %v, want %v", tt.size, got, tt.want)
		}
	}
}

func TestParseWalHeaderLittleEndianMagic(t *testing.T) {
	data := make([]byte, WalHeaderSize)
	binary.BigEndian.PutUint32(data[0:4], WalMagicLittleEndian)
	binary.BigEndian.PutUint32(data[4:8], WalFileFormatVersion)
	binary.BigEndian.PutUint32(data[8:12], 4096)

	h, warnings, err := ParseWalHeader(data, true)
	if err != nil {
		t.Fatalf("ParseWalHeader: %v", err)
	}
	if len(warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", warnings)
	}
	if h.BigEndianChecksums() {
		t.Error("expected little-endian checksums")
	}
}

func TestParseWalHeaderBigEndianMagic(t *testing.T) {
	data := make([]byte, WalHeaderSize)
	binary.BigEndian.PutUint32(data[0:4], WalMagicBigEndian)
	binary.BigEndian.PutUint32(data[4:8], WalFileFormatVersion)

	h, _, err := ParseWalHeader(data, true)
	if err != nil {
		t.Fatalf("ParseWalHeader: %v", err)
	}
	if !h.BigEndianChecksums() {
		t.Error("expected big-endian checksums")
	}
}

func TestParseWalFrameHeaderCommitFrame(t *testing.T) {
	data := make([]byte, WalFrameHeaderSize)
	binary.BigEndian.PutUint32(data[0:4], 5)
	binary.BigEndian.PutUint32(data[4:8], 12) // nonzero => commit frame

	h, err := ParseWalFrameHeader(data)
	if err != nil {
		t.Fatalf("ParseWalFrameHeader: %v", err)
	}
	if h.PageNumber != 5 {
		t.Errorf("PageNumber = %d, want 5", h.PageNumber)
	}
	if !h.IsCommitFrame() {
		t.Error("expected commit frame")
	}
}

func TestParseJournalHeaderMagic(t *testing.T) {
	data := make([]byte, JournalHeaderSize)
	binary.BigEndian.PutUint32(data[0:4], JournalMagicHigh32)
	binary.BigEndian.PutUint32(data[4:8], JournalMagicLow32)
	binary.BigEndian.PutUint32(data[8:12], 0xffffffff) // -1 sentinel

	h, warnings, err := ParseJournalHeader(data, true)
	if err != nil {
		t.Fatalf("ParseJournalHeader: %v", err)
	}
	if len(warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", warnings)
	}
	if h.PageCount != -1 {
		t.Errorf("PageCount = %d, want -1", h.PageCount)
	}
}

func TestParseWalIndexHeaderAgreement(t *testing.T) {
	sub := make([]byte, WalIndexSubHeaderSize)
	binary.LittleEndian.PutUint32(sub[16:20], 42) // MaxFrame

	data := make([]byte, WalIndexHeaderSize)
	copy(data[0:WalIndexSubHeaderSize], sub)
	copy(data[WalIndexSubHeaderSize:2*WalIndexSubHeaderSize], sub)

	h, err := ParseWalIndexHeader(data)
	if err != nil {
		t.Fatalf("ParseWalIndexHeader: %v", err)
	}
	if !h.Valid {
		t.Error("expected agreeing copies to be Valid")
	}
	if h.Copy1.MaxFrame != 42 {
		t.Errorf("MaxFrame = %d, want 42", h.Copy1.MaxFrame)
	}
}

func TestParseWalIndexHeaderDisagreementIsAdvisoryOnly(t *testing.T) {
	sub1 := make([]byte, WalIndexSubHeaderSize)
	sub2 := make([]byte, WalIndexSubHeaderSize)
	binary.LittleEndian.PutUint32(sub2[16:20], 7)

	data := make([]byte, WalIndexHeaderSize)
	copy(data[0:WalIndexSubHeaderSize], sub1)
	copy(data[WalIndexSubHeaderSize:2*WalIndexSubHeaderSize], sub2)

	h, err := ParseWalIndexHeader(data)
	if err != nil {
		t.Fatalf("disagreement must not be an error: %v", err)
	}
	if h.Valid {
		t.Error("expected disagreeing copies to be invalid, not an error")
	}
}
