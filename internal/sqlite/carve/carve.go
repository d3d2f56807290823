// Package carve applies one table's signature (internal/sqlite/signature)
// to the freeblocks and unallocated regions of that table's leaf pages,
// recovering candidate deleted records per spec.md §4.8. Grounded on
// sqlite_dissect's carving/carver.go and carving/carved_cell.py: those
// scan forward for signature matches and then walk the match list in
// reverse to resolve cutoff offsets between overlapping candidates,
// since cells (and freeblock reuse) grow backward from the end of a
// page. This package reproduces that reverse-processing-order shape in
// Go rather than Python's compiled-regex matching.
package carve

import (
	"crypto/md5"

	"github.com/forensics-go/sqlforensic/internal/sqlite/history"
	"github.com/forensics-go/sqlforensic/internal/sqlite/page"
	"github.com/forensics-go/sqlforensic/internal/sqlite/record"
	"github.com/forensics-go/sqlforensic/internal/sqlite/signature"
	"github.com/forensics-go/sqlforensic/internal/sqlite/varint"
	"github.com/forensics-go/sqlforensic/internal/sqlite/version"
)

var (
	_ history.Carver           = (*TableCarver)(nil)
	_ history.LiveDigestSetter = (*TableCarver)(nil)
)

// TableCarver carves one table's signature against freeblocks and
// unallocated space. A TableCarver is built once per (table,
// reference-version) signature and reused across every version of the
// chain the carver runs against, per spec.md §3's signature lifecycle.
type TableCarver struct {
	signature   *signature.TableSignature
	encoding    uint32
	liveDigests map[[16]byte]bool
}

// New builds a TableCarver from a previously generated table signature.
// encoding selects how TEXT columns in recovered records are decoded,
// matching the database's text encoding (spec.md §3).
func New(ts *signature.TableSignature, encoding uint32) *TableCarver {
	return &TableCarver{signature: ts, encoding: encoding}
}

// SetLiveDigests implements history.LiveDigestSetter: cells whose MD5
// digest matches a live row in the version currently being carved are
// dropped, per spec.md §4.8's duplicate-suppression rule.
func (c *TableCarver) SetLiveDigests(digests map[[16]byte]bool) {
	c.liveDigests = digests
}

func (c *TableCarver) isDuplicate(sum [16]byte) bool {
	return c.liveDigests != nil && c.liveDigests[sum]
}

// columnCount is the number of declared columns in the signature's table.
func (c *TableCarver) columnCount() int { return len(c.signature.Columns) }

func (c *TableCarver) allowed(colIndex int) signature.SerialTypeSet {
	return c.signature.Columns[colIndex].AllowedForCarving()
}

// recoverRowID reverse-parses the varint immediately preceding offset,
// per spec.md §4.8's "preceding 1-4 varints (payload-length, rowid) are
// recovered by reverse-varint reading from offset". Only the rowid
// varint (the one immediately before the record header) is surfaced;
// CarvedCell has no field for the recovered payload-length, which this
// repository's carving only used to validate the reverse walk's sanity
// in the reference implementation. A negative rowid (a 9-byte varint)
// cannot be distinguished from a truncated reverse scan and is reported
// as unrecoverable, per spec.md §4.8.
func (c *TableCarver) recoverRowID(pageData []byte, offset int) (int64, bool) {
	if offset <= 0 {
		return 0, false
	}
	v, _, err := varint.DecodeReverse(pageData, offset)
	if err != nil {
		return 0, false
	}
	return int64(v), true
}

// forwardMatchColumns greedily matches as many columns starting at
// startCol as the signature allows, reading serial-type varints directly
// from data[0:] with no header-length prefix (the prefix having been
// destroyed — by a freeblock's link fields, or by the start of the
// record being outside the carved window). It stops at the first
// disallowed serial type, per spec.md §4.8's "a mismatch at column k
// truncates the cell at k-1". The returned body is built immediately
// following the matched varint run, using each matched serial type's
// declared content length.
func (c *TableCarver) forwardMatchColumns(data []byte, startCol int) (cols []history.CarvedColumn, consumed int, matchedThrough int, ok bool) {
	offset := 0
	var serialTypes []varint.SerialType
	matchedThrough = startCol
	for i := startCol; i < c.columnCount(); i++ {
		if offset >= len(data) {
			break
		}
		stVal, n := varint.Decode(data[offset:])
		if n == 0 {
			break
		}
		st := varint.SerialType(stVal)
		if !c.allowed(i).Contains(st) {
			break
		}
		serialTypes = append(serialTypes, st)
		offset += n
		matchedThrough = i + 1
	}
	if len(serialTypes) == 0 {
		return nil, 0, startCol, false
	}

	bodyOffset := offset
	cols = make([]history.CarvedColumn, 0, len(serialTypes))
	for i, st := range serialTypes {
		n := st.ContentLength()
		if bodyOffset+n > len(data) {
			matchedThrough = startCol + i
			break
		}
		val, err := record.DecodeColumn(st, data[bodyOffset:bodyOffset+n], c.encoding)
		if err != nil {
			matchedThrough = startCol + i
			break
		}
		cols = append(cols, history.CarvedColumn{SerialType: st, Value: val})
		bodyOffset += n
	}
	if len(cols) == 0 {
		return nil, 0, startCol, false
	}
	return cols, bodyOffset, matchedThrough, true
}

// matchFullHeader attempts a literal record-header parse starting at
// offset within data: a header-length varint, then one serial-type
// varint per column until the declared header length is exhausted.
// Fewer than the table's full column count is tolerated (the
// altered-by-ALTER-TABLE case, per spec.md §4.7's presence statistic) as
// long as the serial-type run lands exactly on the declared header
// boundary. The body immediately follows, per column content length.
// The header itself (the structural part: header-length varint plus
// every serial-type varint) must be fully present and valid; only the
// body that follows it may run off the end of data, in which case the
// trailing columns are dropped and truncated is reported, per spec.md
// §4.8's "first k columns would extend past the cutoff" case applied to
// running off the end of the carved window instead of a neighboring cell.
func (c *TableCarver) matchFullHeader(data []byte, offset int) (cols []history.CarvedColumn, totalLen int, truncated bool, ok bool) {
	hl, n := varint.Decode(data[offset:])
	if n == 0 || int(hl) < n {
		return nil, 0, false, false
	}
	headerOffset := offset + n
	headerEnd := offset + int(hl)
	if headerEnd > len(data) || headerEnd <= headerOffset {
		return nil, 0, false, false
	}

	var serialTypes []varint.SerialType
	o := headerOffset
	for i := 0; i < c.columnCount() && o < headerEnd; i++ {
		stVal, k := varint.Decode(data[o:])
		if k == 0 {
			return nil, 0, false, false
		}
		st := varint.SerialType(stVal)
		if !c.allowed(i).Contains(st) {
			return nil, 0, false, false
		}
		serialTypes = append(serialTypes, st)
		o += k
	}
	if o != headerEnd {
		return nil, 0, false, false
	}

	bodyOffset := headerEnd
	cols = make([]history.CarvedColumn, 0, len(serialTypes))
	for _, st := range serialTypes {
		ln := st.ContentLength()
		if bodyOffset+ln > len(data) {
			truncated = true
			break
		}
		val, err := record.DecodeColumn(st, data[bodyOffset:bodyOffset+ln], c.encoding)
		if err != nil {
			truncated = true
			break
		}
		cols = append(cols, history.CarvedColumn{SerialType: st, Value: val})
		bodyOffset += ln
	}
	if len(cols) == 0 {
		return nil, 0, false, false
	}
	return cols, bodyOffset - offset, truncated, true
}

// CarveFreeblocks implements history.Carver. Per spec.md §4.8, the
// freeblock's own 4-byte link header (next-offset, size) overwrites the
// start of whatever cell used to occupy that space — almost always
// destroying the deleted cell's payload-length varint, rowid varint, and
// record header-length varint, and usually its first serial type too.
// Matching therefore starts at column 1, skipping the column most likely
// to have been clobbered, per the same reasoning sqlite_dissect's
// carve_freeblocks applies when it strips the first column's serial
// types from the signature before compiling its match pattern.
func (c *TableCarver) CarveFreeblocks(v *version.Version, source history.CellSource, pageNumber uint32, freeblocks []page.Freeblock, pageData []byte) ([]history.CarvedCell, error) {
	var out []history.CarvedCell
	for _, fb := range freeblocks {
		if fb.Size <= 4 {
			continue
		}
		region := pageData[fb.Offset+4 : fb.End()]
		if len(region) < 2 {
			continue
		}
		cols, consumed, _, ok := c.forwardMatchColumns(region, 1)
		if !ok {
			continue
		}

		start := fb.Offset + 4
		end := start + consumed
		payload := pageData[start:end]
		sum := md5.Sum(payload)
		if c.isDuplicate(sum) {
			continue
		}
		cc := history.CarvedCell{
			PageNumber: pageNumber,
			Offset:     start,
			EndOffset:  end,
			Source:     source,
			Truncated:  len(cols) < c.columnCount(),
			Columns:    cols,
			Payload:    payload,
			MD5:        sum,
		}
		if rid, known := c.recoverRowID(pageData, fb.Offset); known {
			cc.RowID, cc.RowIDKnown = rid, true
		}
		out = append(out, cc)
	}
	return out, nil
}

// foundCell is an internal candidate recovered by CarveUnallocated before
// cutoff resolution is applied.
type foundCell struct {
	offset, end int
	truncated   bool
	cols        []history.CarvedColumn
}

// CarveUnallocated implements history.Carver. Per spec.md §4.8, cells are
// added to a page growing backward from the end, so a record whose tail
// is still present in the unallocated span is more likely intact than
// its head. This scans the whole span forward for literal, full-header
// matches (the record header here is never overwritten by a structural
// field the way a freeblock's is, so the literal form is tried first,
// unlike CarveFreeblocks), then walks the match list from the
// highest offset down, resolving cutoffs between overlapping candidates
// and filling the gaps left behind with partial, tail-columns-only
// matches — the "first k columns extend past the cutoff" truncation case.
func (c *TableCarver) CarveUnallocated(v *version.Version, source history.CellSource, pageNumber uint32, pageData []byte, start, end int) ([]history.CarvedCell, error) {
	if end <= start {
		return nil, nil
	}
	span := pageData[start:end]

	var fulls []foundCell
	for o := 0; o < len(span); o++ {
		if cols, length, truncated, ok := c.matchFullHeader(span, o); ok {
			fulls = append(fulls, foundCell{offset: o, end: o + length, truncated: truncated, cols: cols})
		}
	}

	var out []history.CarvedCell
	cutoff := len(span)
	emit := func(f foundCell) {
		e := f.end
		if e > cutoff {
			e = cutoff
			f.truncated = true
		}
		if e <= f.offset {
			return
		}
		pageStart, pageEnd := start+f.offset, start+e
		payload := pageData[pageStart:pageEnd]
		sum := md5.Sum(payload)
		if c.isDuplicate(sum) {
			cutoff = f.offset
			return
		}
		cc := history.CarvedCell{
			PageNumber: pageNumber,
			Offset:     pageStart,
			EndOffset:  pageEnd,
			Source:     source,
			Truncated:  f.truncated,
			Columns:    f.cols,
			Payload:    payload,
			MD5:        sum,
		}
		if rid, known := c.recoverRowID(pageData, pageStart); known {
			cc.RowID, cc.RowIDKnown = rid, true
		}
		out = append(out, cc)
		cutoff = f.offset
	}

	fillGap := func(gapStart, gapEnd int) {
		if gapEnd <= gapStart {
			return
		}
		cols, consumed, _, ok := c.forwardMatchColumns(span[gapStart:gapEnd], 1)
		if !ok {
			return
		}
		emit(foundCell{
			offset:    gapStart,
			end:       gapStart + consumed,
			truncated: len(cols) < c.columnCount(),
			cols:      cols,
		})
	}

	for i := len(fulls) - 1; i >= 0; i-- {
		f := fulls[i]
		if f.offset >= cutoff {
			continue
		}
		fillGap(f.end, cutoff)
		emit(f)
	}
	fillGap(0, cutoff)

	for l, r := 0, len(out)-1; l < r; l, r = l+1, r-1 {
		out[l], out[r] = out[r], out[l]
	}
	return out, nil
}
