// Package history turns a version chain into a per-table sequence of
// Commits: which rows were added, removed, or updated between one
// version and the next, plus any cells a Carver recovers from that
// version's freeblocks, unallocated space, or freelist pages. It has no
// analog in the teacher (no version/WAL concept exists there at all) and
// is grounded on sqlite_dissect's version_history.py, translated from its
// StopIteration-based generator into a Go pull iterator.
package history

import (
	"crypto/md5"

	"golang.org/x/exp/slices"

	"github.com/forensics-go/sqlforensic/internal/sqlite/page"
	"github.com/forensics-go/sqlforensic/internal/sqlite/record"
	"github.com/forensics-go/sqlforensic/internal/sqlite/sqliteerr"
	"github.com/forensics-go/sqlforensic/internal/sqlite/varint"
	"github.com/forensics-go/sqlforensic/internal/sqlite/version"
)

// CellSource identifies where a carved cell was recovered from.
type CellSource string

const (
	CellSourceBTree    CellSource = "b_tree"
	CellSourceFreelist CellSource = "freelist"
)

// CarvedColumn is one column of a carved cell's record, per spec.md
// §4.8's carved-cell output shape.
type CarvedColumn struct {
	SerialType varint.SerialType
	Value      record.Value
	Truncated  bool // this column's declared bytes ran past the recoverable region
}

// CarvedCell is a candidate cell recovered by a Carver from a freeblock,
// an unallocated region, or a freelist page.
type CarvedCell struct {
	PageNumber uint32
	Offset     int // start offset of the record header on this page
	EndOffset  int // one past the last recovered body byte

	Source     CellSource
	RowID      int64
	RowIDKnown bool // false when the preceding varints couldn't be reverse-parsed
	Truncated  bool // fewer columns were recovered than the signature declares
	Columns    []CarvedColumn

	Payload []byte // header + body bytes actually recovered, [Offset:EndOffset)
	MD5     [16]byte
}

// Carver generates candidate cells from the unformatted regions of a
// page, scoped to one table's signature. Implemented by
// internal/sqlite/carve; this package only depends on the interface, so
// carve depends on history (for CarvedCell) rather than the reverse.
type Carver interface {
	CarveFreeblocks(v *version.Version, source CellSource, pageNumber uint32, freeblocks []page.Freeblock, pageData []byte) ([]CarvedCell, error)
	CarveUnallocated(v *version.Version, source CellSource, pageNumber uint32, pageData []byte, start, end int) ([]CarvedCell, error)
}

// LiveDigestSetter is optionally implemented by a Carver that wants to
// suppress carved cells duplicating a table's current live rows, per
// spec.md §4.8's "carved cells whose MD5 digest matches any live-cell
// digest ... are dropped." TableHistory calls SetLiveDigests once per
// version, before any carve call for that version, with every live
// cell's content fingerprint.
type LiveDigestSetter interface {
	SetLiveDigests(digests map[[16]byte]bool)
}

// CellRecord is one leaf cell's rowid and payload, fingerprinted so it
// can be compared across versions without re-reading its full content.
type CellRecord struct {
	RowID   int64
	Payload []byte
	MD5     [16]byte
}

func fingerprint(payload []byte) [16]byte { return md5.Sum(payload) }

// Commit is one version's delta for a single table or index, per
// spec.md §4.6.
type Commit struct {
	VersionNumber       int
	RootPageNumber      uint32
	BTreePageNumbers    []uint32
	FreelistPageNumbers []uint32

	// UpdatedRootBTreePageNumbers is the symmetric difference of this
	// version's and the previous version's BTreePageNumbers sets, per
	// spec.md §4.6: a page present in exactly one of the two sets, sorted
	// ascending. Empty for the first version in a TableHistory's range,
	// since there is no previous set to diff against.
	UpdatedRootBTreePageNumbers []uint32

	Added   []CellRecord
	Removed []CellRecord
	Updated []CellRecord // only populated for table-leaf (rowid) b-trees

	CarvedCells         []CarvedCell
	FreelistPagesCarved bool
}

// Changed reports whether this commit carries any live or carved delta.
func (c *Commit) Changed() bool {
	return len(c.Added) > 0 || len(c.Removed) > 0 || len(c.Updated) > 0 || len(c.CarvedCells) > 0
}

// TableHistory pulls one Commit per version of a chain for a single
// table's (or index's) b-tree. Root page numbers are looked up per
// version since a table's root page can move across a VACUUM.
type TableHistory struct {
	chain         []*version.Version
	rootPages     map[int]uint32
	isLeafTable   bool // table-leaf (rowid) vs index-leaf b-tree
	carver        Carver
	carveFreelist bool

	startVersion, endVersion, current int

	previousCells map[[16]byte]CellRecord
	previousPages map[uint32]bool
	carvedSeen    map[[16]byte]bool
}

// NewTableHistory builds a pull iterator over chain[startVersion..endVersion]
// (inclusive) for one master-schema entry's b-tree. carver may be nil, in
// which case no carving is attempted. carveFreelist additionally carves
// this table's database's freelist pages on every version where it runs —
// only meaningful when carver is non-nil and isLeafTable is true, per
// spec.md §4.7's Non-goal excluding index-leaf carving.
func NewTableHistory(chain []*version.Version, rootPages map[int]uint32, isLeafTable bool,
	startVersion, endVersion int, carver Carver, carveFreelist bool) *TableHistory {
	return &TableHistory{
		chain:         chain,
		rootPages:     rootPages,
		isLeafTable:   isLeafTable,
		carver:        carver,
		carveFreelist: carveFreelist,
		startVersion:  startVersion,
		endVersion:    endVersion,
		current:       startVersion,
		previousCells: map[[16]byte]CellRecord{},
		previousPages: map[uint32]bool{},
		carvedSeen:    map[[16]byte]bool{},
	}
}

// Next pulls the next Commit. done is false once every version through
// endVersion has been returned.
func (h *TableHistory) Next() (commit *Commit, done bool, err error) {
	if h.current > h.endVersion {
		return nil, false, nil
	}
	versionIndex := h.current
	v := h.chain[versionIndex]
	rootPage := h.rootPages[versionIndex]

	pages, err := page.WalkBTree(rootPage, v)
	if err != nil {
		return nil, false, sqliteerr.NewParsingError(sqliteerr.ErrWalCommitRecordParsing, "b_tree", int64(versionIndex), err)
	}

	c := &Commit{
		VersionNumber:    versionIndex,
		RootPageNumber:   rootPage,
		BTreePageNumbers: page.PageNumbers(pages),
	}

	cells, err := leafCellRecords(pages, v)
	if err != nil {
		return nil, false, err
	}
	h.diffCells(c, cells)
	h.previousCells = cells

	currentPages := pageSet(c.BTreePageNumbers)
	if versionIndex != h.startVersion {
		c.UpdatedRootBTreePageNumbers = symmetricDifference(h.previousPages, currentPages)
	}
	h.previousPages = currentPages

	if h.carver != nil && h.isLeafTable && (versionIndex == h.startVersion || c.Changed()) {
		if setter, ok := h.carver.(LiveDigestSetter); ok {
			digests := make(map[[16]byte]bool, len(cells))
			for k := range cells {
				digests[k] = true
			}
			setter.SetLiveDigests(digests)
		}
		for _, p := range pages {
			if err := h.carvePage(c, v, p); err != nil {
				return nil, false, err
			}
		}
		if h.carveFreelist {
			if err := h.carveFreelistPages(c, v); err != nil {
				return nil, false, err
			}
		}
	}

	h.current++
	return c, true, nil
}

func leafCellRecords(pages []*page.BTreePage, v *version.Version) (map[[16]byte]CellRecord, error) {
	cells := make(map[[16]byte]CellRecord)
	for _, cell := range page.LeafCells(pages) {
		payload, err := cell.ReadFullPayload(v)
		if err != nil {
			return nil, err
		}
		sum := fingerprint(payload)
		cells[sum] = CellRecord{RowID: cell.RowID, Payload: payload, MD5: sum}
	}
	return cells, nil
}

// diffCells computes added/removed/updated against h.previousCells, per
// spec.md §4.6: a rowid that disappears from one md5 digest and
// reappears under another in the same version is an update, not an
// independent delete+add. Index b-trees have no rowid to key updates on,
// so they only ever report added/removed.
func (h *TableHistory) diffCells(c *Commit, cells map[[16]byte]CellRecord) {
	added := map[[16]byte]CellRecord{}
	for k, cr := range cells {
		if _, ok := h.previousCells[k]; !ok {
			added[k] = cr
		}
	}
	removed := map[[16]byte]CellRecord{}
	for k, cr := range h.previousCells {
		if _, ok := cells[k]; !ok {
			removed[k] = cr
		}
	}

	if h.isLeafTable {
		removedByRowID := map[int64]bool{}
		for _, cr := range removed {
			removedByRowID[cr.RowID] = true
		}
		for k, cr := range added {
			if removedByRowID[cr.RowID] {
				c.Updated = append(c.Updated, cr)
				delete(added, k)
			}
		}
		updatedRowIDs := map[int64]bool{}
		for _, cr := range c.Updated {
			updatedRowIDs[cr.RowID] = true
		}
		for k, cr := range removed {
			if updatedRowIDs[cr.RowID] {
				delete(removed, k)
			}
		}
	}

	for _, cr := range added {
		c.Added = append(c.Added, cr)
	}
	for _, cr := range removed {
		c.Removed = append(c.Removed, cr)
	}
}

func pageSet(pages []uint32) map[uint32]bool {
	set := make(map[uint32]bool, len(pages))
	for _, p := range pages {
		set[p] = true
	}
	return set
}

// symmetricDifference returns the pages present in exactly one of prev and
// cur, sorted ascending, per spec.md §4.6's
// updated_root_b_tree_page_numbers.
func symmetricDifference(prev, cur map[uint32]bool) []uint32 {
	var diff []uint32
	for p := range cur {
		if !prev[p] {
			diff = append(diff, p)
		}
	}
	for p := range prev {
		if !cur[p] {
			diff = append(diff, p)
		}
	}
	slices.Sort(diff)
	return diff
}

func (h *TableHistory) carvePage(c *Commit, v *version.Version, p *page.BTreePage) error {
	if len(p.Freeblocks) > 0 {
		cells, err := h.carver.CarveFreeblocks(v, CellSourceBTree, p.Number, p.Freeblocks, p.Data)
		if err != nil {
			return err
		}
		c.CarvedCells = append(c.CarvedCells, h.dedupCarved(cells)...)
	}
	start, end := p.UnallocatedSpan()
	if end > start {
		cells, err := h.carver.CarveUnallocated(v, CellSourceBTree, p.Number, p.Data, start, end)
		if err != nil {
			return err
		}
		c.CarvedCells = append(c.CarvedCells, h.dedupCarved(cells)...)
	}
	return nil
}

// carveFreelistPages walks the version's freelist trunk chain and carves
// every trunk's trailing unallocated space plus every leaf page's entire
// body (a freelist leaf carries no structure of its own — it's whatever
// was on the page before it was freed), per spec.md §4.8's freelist
// carving supplement.
func (h *TableHistory) carveFreelistPages(c *Commit, v *version.Version) error {
	header, _, err := v.Header(false)
	if err != nil || header.FirstFreelist == 0 {
		return nil
	}
	usable := v.UsableSize()
	seen := map[uint32]bool{}
	next := header.FirstFreelist
	for next != 0 && !seen[next] {
		seen[next] = true
		c.FreelistPageNumbers = append(c.FreelistPageNumbers, next)

		data, err := v.PageBytes(next)
		if err != nil {
			return err
		}
		trunk, err := page.ParseFreelistTrunk(data)
		if err != nil {
			return err
		}
		trunkBodyEnd := 8 + len(trunk.Leaves)*4
		if usable > trunkBodyEnd {
			cells, err := h.carver.CarveUnallocated(v, CellSourceFreelist, next, data, trunkBodyEnd, usable)
			if err != nil {
				return err
			}
			c.CarvedCells = append(c.CarvedCells, h.dedupCarved(cells)...)
		}

		for _, leaf := range trunk.Leaves {
			c.FreelistPageNumbers = append(c.FreelistPageNumbers, leaf)
			leafData, err := v.PageBytes(leaf)
			if err != nil {
				return err
			}
			cells, err := h.carver.CarveUnallocated(v, CellSourceFreelist, leaf, leafData, 0, usable)
			if err != nil {
				return err
			}
			c.CarvedCells = append(c.CarvedCells, h.dedupCarved(cells)...)
		}
		next = trunk.NextTrunk
	}
	c.FreelistPagesCarved = true
	return nil
}

func (h *TableHistory) dedupCarved(cells []CarvedCell) []CarvedCell {
	out := make([]CarvedCell, 0, len(cells))
	for _, cc := range cells {
		if h.carvedSeen[cc.MD5] {
			continue
		}
		h.carvedSeen[cc.MD5] = true
		out = append(out, cc)
	}
	return out
}
