// Package page decodes SQLite b-tree pages, overflow pages, freelist
// trunk/leaf pages, and pointer-map pages, and exposes their cells,
// freeblocks, fragments, and unallocated spans.
package page

import (
	"encoding/binary"
	"fmt"

	"github.com/forensics-go/sqlforensic/internal/sqlite/fileformat"
	"github.com/forensics-go/sqlforensic/internal/sqlite/sqliteerr"
)

// Page type byte values, the first byte of a b-tree page's payload area.
const (
	TypeInteriorIndex = 0x02
	TypeInteriorTable = 0x05
	TypeLeafIndex     = 0x0a
	TypeLeafTable     = 0x0d
)

const (
	headerSizeLeaf     = 8
	headerSizeInterior = 12
)

// Header is the parsed b-tree page header. On page 1 the header starts
// after the 100-byte database header; everywhere else it starts at
// offset 0.
type Header struct {
	Type             byte
	FirstFreeblock   uint16
	CellCount        uint16
	CellContentStart uint16 // 0 means 65536
	FragmentedBytes  uint8
	RightmostChild   uint32 // interior only

	HeaderOffset int // where this header begins within the page buffer
	HeaderSize   int // 8 (leaf) or 12 (interior)
}

func (h *Header) IsLeaf() bool     { return h.Type == TypeLeafTable || h.Type == TypeLeafIndex }
func (h *Header) IsInterior() bool { return !h.IsLeaf() }
func (h *Header) IsTable() bool    { return h.Type == TypeLeafTable || h.Type == TypeInteriorTable }
func (h *Header) IsIndex() bool    { return !h.IsTable() }

// CellContentStartResolved returns CellContentStart, translating the 0
// sentinel to 65536.
func (h *Header) CellContentStartResolved() int {
	if h.CellContentStart == 0 {
		return 65536
	}
	return int(h.CellContentStart)
}

// ParseHeader parses a b-tree page header out of a full page buffer.
// pageNumber is 1-based; page 1 has its header offset by the 100-byte
// database header.
func ParseHeader(data []byte, pageNumber uint32) (*Header, error) {
	offset := 0
	if pageNumber == 1 {
		offset = fileformat.HeaderSize
	}
	if len(data) < offset+headerSizeLeaf {
		return nil, sqliteerr.NewParsingError(sqliteerr.ErrBTreePageParsing, "header", int64(offset),
			fmt.Errorf("page too small: %d bytes", len(data)))
	}

	h := &Header{
		Type:             data[offset],
		FirstFreeblock:   binary.BigEndian.Uint16(data[offset+1:]),
		CellCount:        binary.BigEndian.Uint16(data[offset+3:]),
		CellContentStart: binary.BigEndian.Uint16(data[offset+5:]),
		FragmentedBytes:  data[offset+7],
		HeaderOffset:     offset,
	}

	switch h.Type {
	case TypeInteriorIndex, TypeInteriorTable:
		if len(data) < offset+headerSizeInterior {
			return nil, sqliteerr.NewParsingError(sqliteerr.ErrBTreePageParsing, "rightmost_child", int64(offset+8),
				fmt.Errorf("interior page too small: %d bytes", len(data)))
		}
		h.RightmostChild = binary.BigEndian.Uint32(data[offset+8:])
		h.HeaderSize = headerSizeInterior
	case TypeLeafIndex, TypeLeafTable:
		h.HeaderSize = headerSizeLeaf
	default:
		return nil, sqliteerr.NewParsingError(sqliteerr.ErrBTreePageParsing, "type", int64(offset),
			fmt.Errorf("invalid page type byte: %#x", h.Type))
	}

	return h, nil
}

// CellPointerArrayOffset returns the offset of the first entry of the
// 2-byte-per-cell pointer array.
func (h *Header) CellPointerArrayOffset() int {
	return h.HeaderOffset + h.HeaderSize
}

// CellPointerArrayEnd returns the offset just past the cell pointer array.
func (h *Header) CellPointerArrayEnd() int {
	return h.CellPointerArrayOffset() + int(h.CellCount)*2
}

// CellPointer returns the content offset of the i-th cell (0-based).
func (h *Header) CellPointer(data []byte, i int) (uint16, error) {
	if i < 0 || i >= int(h.CellCount) {
		return 0, fmt.Errorf("cell index %d out of range [0,%d)", i, h.CellCount)
	}
	off := h.CellPointerArrayOffset() + i*2
	if off+2 > len(data) {
		return 0, fmt.Errorf("cell pointer %d out of bounds", i)
	}
	return binary.BigEndian.Uint16(data[off:]), nil
}

// CellPointers returns the full cell pointer array.
func (h *Header) CellPointers(data []byte) ([]uint16, error) {
	ptrs := make([]uint16, h.CellCount)
	for i := range ptrs {
		p, err := h.CellPointer(data, i)
		if err != nil {
			return nil, err
		}
		ptrs[i] = p
	}
	return ptrs, nil
}
