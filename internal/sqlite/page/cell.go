package page

import (
	"encoding/binary"
	"fmt"

	"github.com/forensics-go/sqlforensic/internal/sqlite/sqliteerr"
	"github.com/forensics-go/sqlforensic/internal/sqlite/varint"
)

// Source resolves page numbers to page bytes for overflow-chain walks.
// Implementations are read-only and never mutate the returned slice.
type Source interface {
	PageBytes(number uint32) ([]byte, error)
	UsableSize() int
}

// Cell is the decoded shape of a single b-tree cell, tagged by PageType.
// Only the fields relevant to the cell's page type are populated.
type Cell struct {
	PageType byte

	RowID        int64  // table-leaf, table-interior
	ChildPage    uint32 // table-interior, index-interior
	PayloadSize  uint32 // leaf/index cells with a payload
	LocalPayload []byte // the inline portion of the payload, a view into the page buffer
	OverflowPage uint32 // first overflow page, 0 if none
	Size         int    // total on-page size of this cell, in bytes
}

// HasPayload reports whether this cell kind carries a record payload
// (everything except table-interior cells, which are pure routing cells).
func (c *Cell) HasPayload() bool { return c.PageType != TypeInteriorTable }

// maxLocal returns the largest payload size, in bytes, that SQLite will
// store entirely inline for a cell of the given page type, per
// https://sqlite.org/fileformat2.html#b_tree_pages. Table-leaf cells use
// usable-35; every other payload-bearing cell kind uses the 64/255
// fraction formula.
func maxLocal(usableSize int, pageType byte) int {
	if pageType == TypeLeafTable {
		return usableSize - 35
	}
	return (usableSize-12)*64/255 - 23
}

// minLocal is the M from spec.md §3: the minimum payload bytes kept
// inline once a payload overflows, shared by every payload-bearing cell
// kind.
func minLocal(usableSize int) int {
	return (usableSize-12)*32/255 - 23
}

// localPayloadSize computes the inline/overflow split per spec.md §3:
// a payload of at most maxLocal bytes is stored whole; otherwise
// inline = M + ((P-M) mod (U-4)) when that is at most maxLocal, and M
// itself when it is not.
func localPayloadSize(payloadSize, usableSize int, pageType byte) int {
	max := maxLocal(usableSize, pageType)
	if payloadSize <= max {
		return payloadSize
	}
	m := minLocal(usableSize)
	surplus := m + (payloadSize-m)%(usableSize-4)
	if surplus > max {
		return m
	}
	return surplus
}

// ParseCell decodes a single cell starting at cellData[0], per the page
// type's format. usableSize is the database's usable page size
// (page_size - reserved_space), needed for the inline/overflow split.
func ParseCell(pageType byte, cellData []byte, usableSize int) (*Cell, error) {
	switch pageType {
	case TypeLeafTable:
		return parseTableLeaf(cellData, usableSize)
	case TypeInteriorTable:
		return parseTableInterior(cellData)
	case TypeLeafIndex:
		return parsePayloadCell(pageType, cellData, usableSize, false)
	case TypeInteriorIndex:
		return parsePayloadCell(pageType, cellData, usableSize, true)
	default:
		return nil, sqliteerr.NewParsingError(sqliteerr.ErrCellParsing, "page_type", 0,
			fmt.Errorf("invalid page type: %#x", pageType))
	}
}

func parseTableLeaf(cellData []byte, usableSize int) (*Cell, error) {
	if len(cellData) == 0 {
		return nil, sqliteerr.NewParsingError(sqliteerr.ErrCellParsing, "cell", 0, fmt.Errorf("empty cell"))
	}
	payloadSize, n1 := varint.Decode(cellData)
	if n1 == 0 {
		return nil, sqliteerr.NewParsingError(sqliteerr.ErrCellParsing, "payload_size", 0, fmt.Errorf("truncated varint"))
	}
	rowid, n2 := varint.Decode(cellData[n1:])
	if n2 == 0 {
		return nil, sqliteerr.NewParsingError(sqliteerr.ErrCellParsing, "rowid", int64(n1), fmt.Errorf("truncated varint"))
	}

	c := &Cell{PageType: TypeLeafTable, RowID: int64(rowid), PayloadSize: uint32(payloadSize)}
	return finishPayloadCell(c, cellData, n1+n2, int(payloadSize), usableSize)
}

func parseTableInterior(cellData []byte) (*Cell, error) {
	if len(cellData) < 4 {
		return nil, sqliteerr.NewParsingError(sqliteerr.ErrCellParsing, "child_page", 0, fmt.Errorf("cell too small"))
	}
	childPage := binary.BigEndian.Uint32(cellData)
	rowid, n := varint.Decode(cellData[4:])
	if n == 0 {
		return nil, sqliteerr.NewParsingError(sqliteerr.ErrCellParsing, "rowid", 4, fmt.Errorf("truncated varint"))
	}
	return &Cell{PageType: TypeInteriorTable, ChildPage: childPage, RowID: int64(rowid), Size: 4 + n}, nil
}

func parsePayloadCell(pageType byte, cellData []byte, usableSize int, hasChildPage bool) (*Cell, error) {
	offset := 0
	var childPage uint32
	if hasChildPage {
		if len(cellData) < 4 {
			return nil, sqliteerr.NewParsingError(sqliteerr.ErrCellParsing, "child_page", 0, fmt.Errorf("cell too small"))
		}
		childPage = binary.BigEndian.Uint32(cellData)
		offset = 4
	}
	payloadSize, n := varint.Decode(cellData[offset:])
	if n == 0 {
		return nil, sqliteerr.NewParsingError(sqliteerr.ErrCellParsing, "payload_size", int64(offset), fmt.Errorf("truncated varint"))
	}
	c := &Cell{PageType: pageType, ChildPage: childPage, PayloadSize: uint32(payloadSize)}
	return finishPayloadCell(c, cellData, offset+n, int(payloadSize), usableSize)
}

func finishPayloadCell(c *Cell, cellData []byte, headerLen, payloadSize, usableSize int) (*Cell, error) {
	local := localPayloadSize(payloadSize, usableSize, c.PageType)
	if headerLen+local > len(cellData) {
		return nil, sqliteerr.NewParsingError(sqliteerr.ErrCellParsing, "payload", int64(headerLen),
			fmt.Errorf("cell truncated: need %d bytes, have %d", headerLen+local, len(cellData)))
	}
	c.LocalPayload = cellData[headerLen : headerLen+local]
	c.Size = headerLen + local

	if local < payloadSize {
		overflowOffset := headerLen + local
		if overflowOffset+4 > len(cellData) {
			return nil, sqliteerr.NewParsingError(sqliteerr.ErrCellParsing, "overflow_page", int64(overflowOffset),
				fmt.Errorf("overflow pointer truncated"))
		}
		c.OverflowPage = binary.BigEndian.Uint32(cellData[overflowOffset:])
		c.Size += 4
	}
	return c, nil
}

// ReadFullPayload returns the complete payload for a cell, following its
// overflow chain if any. The chain is walked from src and must terminate
// at a page whose next-pointer is 0; a cycle or premature truncation is
// reported as a CellParsingError. Total bytes read always equals
// PayloadSize, per spec.md §3's invariant.
func (c *Cell) ReadFullPayload(src Source) ([]byte, error) {
	if uint32(len(c.LocalPayload)) == c.PayloadSize {
		return c.LocalPayload, nil
	}
	out := make([]byte, 0, c.PayloadSize)
	out = append(out, c.LocalPayload...)

	usable := src.UsableSize()
	next := c.OverflowPage
	seen := map[uint32]bool{}
	for next != 0 {
		if seen[next] {
			return nil, sqliteerr.NewParsingError(sqliteerr.ErrCellParsing, "overflow_chain", 0,
				fmt.Errorf("cycle detected at page %d", next))
		}
		seen[next] = true

		pageData, err := src.PageBytes(next)
		if err != nil {
			return nil, err
		}
		ov, err := ParseOverflow(pageData, usable)
		if err != nil {
			return nil, err
		}
		remaining := int(c.PayloadSize) - len(out)
		take := len(ov.Content)
		if take > remaining {
			take = remaining
		}
		out = append(out, ov.Content[:take]...)
		next = ov.NextPage
	}
	if uint32(len(out)) != c.PayloadSize {
		return nil, sqliteerr.NewParsingError(sqliteerr.ErrCellParsing, "overflow_chain", 0,
			fmt.Errorf("overflow chain produced %d bytes, want %d", len(out), c.PayloadSize))
	}
	return out, nil
}
