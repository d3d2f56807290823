package page

import (
	"encoding/binary"
	"fmt"

	"github.com/forensics-go/sqlforensic/internal/sqlite/sqliteerr"
)

// Freeblock is one entry of a b-tree page's free list: a reclaimable gap
// of at least 4 bytes, linked via the 2-byte next-offset field at its
// start.
type Freeblock struct {
	Offset int
	Size   int // total size of the gap, including the 4-byte link header
}

// End returns the offset one past the end of the freeblock.
func (f Freeblock) End() int { return f.Offset + f.Size }

// WalkFreeblocks follows the freeblock chain starting at header's
// FirstFreeblock and returns the list in increasing offset order. Per
// spec.md §3's invariant, the chain must be strictly increasing and
// non-overlapping; a violation is reported as a PageParsingError rather
// than silently truncating the list, since a corrupt free list would
// otherwise make later freeblock-carving conclusions unsound.
func WalkFreeblocks(data []byte, h *Header) ([]Freeblock, error) {
	var blocks []Freeblock
	offset := int(h.FirstFreeblock)
	prevEnd := -1
	for offset != 0 {
		if offset+4 > len(data) {
			return nil, sqliteerr.NewParsingError(sqliteerr.ErrBTreePageParsing, "freeblock", int64(offset),
				fmt.Errorf("freeblock header out of bounds"))
		}
		next := int(binary.BigEndian.Uint16(data[offset:]))
		size := int(binary.BigEndian.Uint16(data[offset+2:]))
		if size < 4 {
			return nil, sqliteerr.NewParsingError(sqliteerr.ErrBTreePageParsing, "freeblock_size", int64(offset),
				fmt.Errorf("freeblock size %d below minimum of 4", size))
		}
		if offset <= prevEnd {
			return nil, sqliteerr.NewParsingError(sqliteerr.ErrBTreePageParsing, "freeblock_order", int64(offset),
				fmt.Errorf("freeblock chain not strictly increasing"))
		}
		blocks = append(blocks, Freeblock{Offset: offset, Size: size})
		prevEnd = offset + size
		offset = next
	}
	return blocks, nil
}

// UnallocatedSpan returns the inclusive byte range
// [end_of_cell_pointer_array, cell_content_start) that holds neither a
// live cell nor a linked freeblock.
func UnallocatedSpan(h *Header) (start, end int) {
	return h.CellPointerArrayEnd(), h.CellContentStartResolved()
}
