package page

import (
	"encoding/binary"
	"fmt"

	"github.com/forensics-go/sqlforensic/internal/sqlite/sqliteerr"
)

// Overflow is one page of an overflow chain: a 4-byte next-page pointer
// (0 terminates the chain) followed by raw content bytes.
type Overflow struct {
	NextPage uint32
	Content  []byte
}

// ParseOverflow decodes an overflow page. usableSize bounds how much of
// the page is content versus reserved space.
func ParseOverflow(data []byte, usableSize int) (*Overflow, error) {
	if len(data) < 4 {
		return nil, sqliteerr.NewParsingError(sqliteerr.ErrPageParsing, "overflow_next", 0,
			fmt.Errorf("overflow page too small"))
	}
	end := usableSize
	if end > len(data) {
		end = len(data)
	}
	return &Overflow{
		NextPage: binary.BigEndian.Uint32(data),
		Content:  data[4:end],
	}, nil
}

// FreelistTrunk is a freelist trunk page: a pointer to the next trunk
// page, a count of leaf pages it lists, and the list of leaf page
// numbers themselves.
type FreelistTrunk struct {
	NextTrunk uint32
	Leaves    []uint32
}

// ParseFreelistTrunk decodes a freelist trunk page.
func ParseFreelistTrunk(data []byte) (*FreelistTrunk, error) {
	if len(data) < 8 {
		return nil, sqliteerr.NewParsingError(sqliteerr.ErrPageParsing, "freelist_trunk", 0,
			fmt.Errorf("freelist trunk page too small"))
	}
	next := binary.BigEndian.Uint32(data[0:4])
	count := binary.BigEndian.Uint32(data[4:8])
	need := 8 + int(count)*4
	if need > len(data) {
		return nil, sqliteerr.NewParsingError(sqliteerr.ErrPageParsing, "freelist_leaves", 8,
			fmt.Errorf("leaf count %d exceeds page size", count))
	}
	leaves := make([]uint32, count)
	for i := range leaves {
		leaves[i] = binary.BigEndian.Uint32(data[8+i*4:])
	}
	return &FreelistTrunk{NextTrunk: next, Leaves: leaves}, nil
}

// PointerMapEntry maps one database page to its parent and the kind of
// relationship, present only in auto-vacuum mode.
type PointerMapEntry struct {
	Type       uint8 // 1..5
	ParentPage uint32
}

// IsPointerMapPage reports whether pageNumber is one of the pointer-map
// pages for a database whose usable page size is usableSize, per
// spec.md §3: pages 2, 2+N, 2+2N, ... where N = (U-5)/5 + 1.
func IsPointerMapPage(pageNumber uint32, usableSize int) bool {
	if pageNumber < 2 {
		return false
	}
	n := uint32((usableSize-5)/5 + 1)
	if n == 0 {
		return false
	}
	return (pageNumber-2)%n == 0
}

// ParsePointerMap decodes a pointer-map page's entries.
func ParsePointerMap(data []byte, usableSize int) ([]PointerMapEntry, error) {
	count := (usableSize - 5) / 5
	if count < 0 {
		count = 0
	}
	if count*5 > len(data) {
		return nil, sqliteerr.NewParsingError(sqliteerr.ErrPageParsing, "pointer_map", 0,
			fmt.Errorf("pointer map entries exceed page size"))
	}
	entries := make([]PointerMapEntry, 0, count)
	for i := 0; i < count; i++ {
		off := i * 5
		t := data[off]
		if t == 0 {
			break // trailing zero-filled entries mark the end of used slots
		}
		if t > 5 {
			return nil, sqliteerr.NewParsingError(sqliteerr.ErrPageParsing, "pointer_map_type", int64(off),
				fmt.Errorf("invalid pointer map entry type: %d", t))
		}
		entries = append(entries, PointerMapEntry{
			Type:       t,
			ParentPage: binary.BigEndian.Uint32(data[off+1:]),
		})
	}
	return entries, nil
}
