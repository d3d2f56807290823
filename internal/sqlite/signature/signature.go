// Package signature derives, per table, the four signature flavors used
// by the carver to recognize a table's rows inside freeblocks and
// unallocated space: schema (declared affinity only), simplified
// (observed storage classes), focused (observed serial types with
// integer widths collapsed), and probabilistic (normalized frequency of
// observed storage classes). Grounded on sqlite_dissect's
// carving/signature.py, collapsed from its row/column dual-signature
// object graph into one running-stats struct per column.
package signature

import (
	"crypto/md5"
	"strings"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/forensics-go/sqlforensic/internal/sqlite/page"
	"github.com/forensics-go/sqlforensic/internal/sqlite/record"
	"github.com/forensics-go/sqlforensic/internal/sqlite/schema"
	"github.com/forensics-go/sqlforensic/internal/sqlite/sqliteerr"
	"github.com/forensics-go/sqlforensic/internal/sqlite/varint"
	"github.com/forensics-go/sqlforensic/internal/sqlite/version"
)

// SerialTypeSet is a column's allowed or observed set of serial types.
// TEXT and BLOB are open-ended (any length is a distinct serial type),
// so they're tracked as a width-independent flag rather than one entry
// per observed length.
type SerialTypeSet struct {
	fixed map[varint.SerialType]bool
	text  bool
	blob  bool
}

func (s *SerialTypeSet) add(sts ...varint.SerialType) {
	if s.fixed == nil {
		s.fixed = make(map[varint.SerialType]bool, len(sts))
	}
	for _, t := range sts {
		s.fixed[t] = true
	}
}

// Contains reports whether st belongs to the set.
func (s SerialTypeSet) Contains(st varint.SerialType) bool {
	if s.fixed[st] {
		return true
	}
	if s.text && st.IsText() {
		return true
	}
	if s.blob && st.IsBlob() {
		return true
	}
	return false
}

// ContentLengthBounds returns the minimum and maximum body-content
// length any serial type in the set can occupy. unbounded is true when
// the set admits TEXT or BLOB, whose length isn't capped by the
// signature alone.
func (s SerialTypeSet) ContentLengthBounds() (min, max int, unbounded bool) {
	min, max = -1, 0
	for st := range s.fixed {
		n := st.ContentLength()
		if min == -1 || n < min {
			min = n
		}
		if n > max {
			max = n
		}
	}
	if s.text || s.blob {
		unbounded = true
	}
	if min == -1 {
		min = 0
	}
	return min, max, unbounded
}

// schemaAllowedSet implements spec.md §4.7's affinity-to-allowed-serial-type
// mapping for the schema flavor. notNull removes the NULL serial type (0).
func schemaAllowedSet(aff schema.Affinity, notNull bool) SerialTypeSet {
	var s SerialTypeSet
	switch aff {
	case schema.AffinityText:
		s.text = true
	case schema.AffinityReal:
		s.add(varint.SerialTypeFloat64)
	case schema.AffinityNumeric:
		s.add(1, 2, 3, 4, 5, 6, 7, 8, 9)
		s.text = true
	case schema.AffinityInteger:
		s.add(1, 2, 3, 4, 5, 6, 8, 9)
	default: // AffinityNone
		s.blob = true
	}
	if !notNull {
		s.add(varint.SerialTypeNull)
	}
	return s
}

// focusedType collapses every integer-storage serial type (1..6, 8, 9)
// to one canonical representative, per spec.md §4.7's focused flavor:
// "INTEGER width collapsed but distinguishing TEXT/BLOB from NULL and
// from numerics." Non-integer serial types pass through unchanged.
func focusedType(st varint.SerialType) varint.SerialType {
	switch {
	case st >= 1 && st <= 6, st == varint.SerialTypeZero, st == varint.SerialTypeOne:
		return varint.SerialTypeInt64
	default:
		return st
	}
}

// ColumnSignature accumulates the schema-derived allowed set plus
// running observation counts for one column across every row Observe
// has seen.
type ColumnSignature struct {
	Index    int
	Name     string
	Affinity schema.Affinity
	NotNull  bool

	SchemaAllowed SerialTypeSet

	presentRows      int
	simplifiedCounts map[varint.SimpleType]int
	focusedCounts    map[varint.SerialType]int
}

func newColumnSignature(index int, col *schema.Column) *ColumnSignature {
	allowed := schemaAllowedSet(col.Affinity, col.NotNull)
	if col.PrimaryKey && strings.EqualFold(col.TypeName, "INTEGER") {
		// An INTEGER PRIMARY KEY column aliases the rowid and is stored
		// as NULL in the record body.
		allowed = SerialTypeSet{}
		allowed.add(varint.SerialTypeNull)
	}
	return &ColumnSignature{
		Index:            index,
		Name:             col.Name,
		Affinity:         col.Affinity,
		NotNull:          col.NotNull,
		SchemaAllowed:    allowed,
		simplifiedCounts: make(map[varint.SimpleType]int),
		focusedCounts:    make(map[varint.SerialType]int),
	}
}

func (c *ColumnSignature) observe(v record.Value) {
	c.presentRows++
	c.simplifiedCounts[varint.Simplify(v.SerialType)]++
	c.focusedCounts[focusedType(v.SerialType)]++
}

// PresentRows is the number of observed rows that had a value for this
// column — fewer than the table's total row count for a column added by
// a later ALTER TABLE, per spec.md §4.7's presence statistic.
func (c *ColumnSignature) PresentRows() int { return c.presentRows }

// SimplifiedSignature is the set of observed simplified (NULL/INTEGER/
// REAL/TEXT/BLOB) storage classes for this column, sorted for stable
// output.
func (c *ColumnSignature) SimplifiedSignature() []varint.SimpleType {
	types := maps.Keys(c.simplifiedCounts)
	slices.Sort(types)
	return types
}

// FocusedSignature is the set of observed serial types with integer
// widths collapsed, sorted for stable output.
func (c *ColumnSignature) FocusedSignature() []varint.SerialType {
	types := maps.Keys(c.focusedCounts)
	slices.Sort(types)
	return types
}

// ProbabilisticSignature is the observed simplified-type frequency,
// normalized over every row that had a value for this column.
func (c *ColumnSignature) ProbabilisticSignature() map[varint.SimpleType]float64 {
	out := make(map[varint.SimpleType]float64, len(c.simplifiedCounts))
	if c.presentRows == 0 {
		return out
	}
	for st, n := range c.simplifiedCounts {
		out[st] = float64(n) / float64(c.presentRows)
	}
	return out
}

// AllowedForCarving is the set the carver matches candidate bytes
// against: the union of observed focused serial types (TEXT/BLOB
// widened back to the open-ended flag, since carved payload lengths
// vary from whatever was observed), falling back to the schema-derived
// set when no rows were ever observed for this column — the teacher's
// "use the recommended schema signature" fallback in carver.py.
func (c *ColumnSignature) AllowedForCarving() SerialTypeSet {
	if len(c.focusedCounts) == 0 {
		return c.SchemaAllowed
	}
	var s SerialTypeSet
	for st := range c.focusedCounts {
		switch {
		case st.IsText():
			s.text = true
		case st.IsBlob():
			s.blob = true
		case st == varint.SerialTypeInt64:
			// focusedType folds every integer width into this one
			// representative, so any integer width matches.
			s.add(1, 2, 3, 4, 5, 6, 8, 9)
		default:
			s.add(st)
		}
	}
	return s
}

// TableSignature is the aggregate signature for one ordinary rowid
// table, with one ColumnSignature per declared column.
type TableSignature struct {
	TableName string
	Columns   []*ColumnSignature
	RowCount  int
}

// NewTableSignature builds the schema-derived portion of a table's
// signature, with no rows observed yet. entry must be an ordinary,
// rowid, CREATE TABLE master-schema row; every other master-schema row
// kind (virtual table, without-rowid table, index, view, trigger) is
// rejected per spec.md §4.7's construction skip-list.
func NewTableSignature(entry schema.MasterRow) (*TableSignature, error) {
	table, ok := entry.(*schema.OrdinaryTableRow)
	if !ok {
		return nil, &sqliteerr.SignatureError{
			TableName: entry.TableName(),
			Reason:    "not an ordinary rowid table",
		}
	}
	if table.Table.WithoutRowID {
		return nil, &sqliteerr.SignatureError{
			TableName: table.TableName(),
			Reason:    "without-rowid tables have no rowid to key carved cells on",
		}
	}
	if table.Table.SQL == "" {
		return nil, &sqliteerr.SignatureError{
			TableName: table.TableName(),
			Reason:    "no SQL text to derive column definitions from",
		}
	}

	ts := &TableSignature{TableName: table.TableName()}
	for i, col := range table.Table.Columns {
		ts.Columns = append(ts.Columns, newColumnSignature(i, col))
	}
	return ts, nil
}

// Observe folds one row's decoded column values into the running
// signature. Values beyond the number of declared columns are ignored;
// fewer values than declared columns is the normal altered-table case
// and simply leaves the missing columns' presence counts lower than
// RowCount.
func (ts *TableSignature) Observe(values []record.Value) {
	ts.RowCount++
	for i, v := range values {
		if i >= len(ts.Columns) {
			break
		}
		ts.Columns[i].observe(v)
	}
}

// Generate builds a table's signature from every table-leaf record
// reachable from rootPage in a single version, per spec.md §4.7's
// "aggregate of all table-leaf records reachable from the table's root
// across one reference version."
func Generate(entry schema.MasterRow, rootPage uint32, src page.Source, textEncoding uint32) (*TableSignature, error) {
	ts, err := NewTableSignature(entry)
	if err != nil {
		return nil, err
	}
	pages, err := page.WalkBTree(rootPage, src)
	if err != nil {
		return nil, err
	}
	for _, cell := range page.LeafCells(pages) {
		payload, err := cell.ReadFullPayload(src)
		if err != nil {
			return nil, err
		}
		values, err := record.Decode(payload, textEncoding)
		if err != nil {
			return nil, err
		}
		ts.Observe(values)
	}
	return ts, nil
}

// GenerateAcrossVersions builds a table's signature from every distinct
// table-leaf record (by content MD5, deduplicated across versions)
// reachable from the table's root page across chain, per spec.md
// §4.7's "or the version history, for stronger coverage." rootPages
// maps a chain index to that version's root page number for this
// table, since a table's root page can move across a VACUUM.
func GenerateAcrossVersions(entry schema.MasterRow, rootPages map[int]uint32, chain []*version.Version, textEncoding uint32) (*TableSignature, error) {
	ts, err := NewTableSignature(entry)
	if err != nil {
		return nil, err
	}
	seen := map[[16]byte]bool{}
	for i, v := range chain {
		root, ok := rootPages[i]
		if !ok || root == 0 {
			continue
		}
		pages, err := page.WalkBTree(root, v)
		if err != nil {
			return nil, err
		}
		for _, cell := range page.LeafCells(pages) {
			payload, err := cell.ReadFullPayload(v)
			if err != nil {
				return nil, err
			}
			sum := md5.Sum(payload)
			if seen[sum] {
				continue
			}
			seen[sum] = true
			values, err := record.Decode(payload, textEncoding)
			if err != nil {
				return nil, err
			}
			ts.Observe(values)
		}
	}
	return ts, nil
}
