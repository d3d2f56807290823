package page

import (
	"strconv"

	"github.com/forensics-go/sqlforensic/internal/sqlite/sqliteerr"
)

// BTreePage is a fully decoded b-tree page: header, cells (resolved by
// type), freeblock chain, and unallocated span. Payload bytes for a cell
// are retained as a view into Data; overflow chains are followed only on
// demand via Cell.ReadFullPayload.
type BTreePage struct {
	Number     uint32
	Data       []byte // the full raw page buffer
	UsableSize int
	Header     *Header
	Cells      []*Cell
	Freeblocks []Freeblock
}

// DecodeBTreePage performs the full C3 decode sequence: header, cell
// pointer array, cell dispatch, freeblock walk. It does not validate that
// freeblocks avoid overlapping cells, and neither does Validate, which
// checks only the page's byte-accounting total.
func DecodeBTreePage(number uint32, data []byte, usableSize int) (*BTreePage, error) {
	h, err := ParseHeader(data, number)
	if err != nil {
		return nil, err
	}

	ptrs, err := h.CellPointers(data)
	if err != nil {
		return nil, sqliteerr.NewParsingError(sqliteerr.ErrBTreePageParsing, "cell_pointers", 0, err)
	}

	cells := make([]*Cell, len(ptrs))
	for i, ptr := range ptrs {
		if int(ptr) >= len(data) {
			return nil, sqliteerr.NewParsingError(sqliteerr.ErrCellParsing, "cell", int64(ptr), errOutOfBounds)
		}
		c, err := ParseCell(h.Type, data[ptr:], usableSize)
		if err != nil {
			return nil, err
		}
		cells[i] = c
	}

	freeblocks, err := WalkFreeblocks(data, h)
	if err != nil {
		return nil, err
	}

	return &BTreePage{
		Number:     number,
		Data:       data,
		UsableSize: usableSize,
		Header:     h,
		Cells:      cells,
		Freeblocks: freeblocks,
	}, nil
}

var errOutOfBounds = pageOutOfBoundsError{}

type pageOutOfBoundsError struct{}

func (pageOutOfBoundsError) Error() string { return "cell pointer out of page bounds" }

// UnallocatedSpan returns this page's unallocated byte range.
func (p *BTreePage) UnallocatedSpan() (start, end int) {
	return UnallocatedSpan(p.Header)
}

// FragmentBytes returns the trailing sub-4-byte gaps recorded in the
// header's fragmented-byte count.
func (p *BTreePage) FragmentBytes() int { return int(p.Header.FragmentedBytes) }

// Validate checks the page-size accounting invariant from spec.md §8:
// sum(cell sizes) + sum(freeblock sizes) + fragment_count + unallocated
// size + header size + cell pointer array size == usable page size
// (page 1 implicitly excludes the 100-byte file header, already
// reflected in Header.HeaderOffset).
func (p *BTreePage) Validate() error {
	total := p.Header.HeaderSize + int(p.Header.CellCount)*2
	for _, c := range p.Cells {
		total += c.Size
	}
	for _, fb := range p.Freeblocks {
		total += fb.Size
	}
	total += p.FragmentBytes()

	start, end := p.UnallocatedSpan()
	total += end - start

	want := p.UsableSize - p.Header.HeaderOffset
	if total != want {
		return sqliteerr.NewParsingError(sqliteerr.ErrBTreePageParsing, "layout", 0,
			layoutMismatchError{got: total, want: want})
	}
	return nil
}

type layoutMismatchError struct{ got, want int }

func (e layoutMismatchError) Error() string {
	return "page layout accounting mismatch: got " + strconv.Itoa(e.got) + ", want " + strconv.Itoa(e.want)
}
