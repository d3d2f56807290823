package signature

import (
	"testing"

	"github.com/forensics-go/sqlforensic/internal/sqlite/page"
	"github.com/forensics-go/sqlforensic/internal/sqlite/schema"
	"github.com/forensics-go/sqlforensic/internal/sqlite/varint"
)

type fakeSource struct {
	pages      map[uint32][]byte
	usableSize int
}

func (f *fakeSource) PageBytes(n uint32) ([]byte, error) { return f.pages[n], nil }
func (f *fakeSource) UsableSize() int                    { return f.usableSize }

func encodeLeafCell(rowid int64, payload []byte) []byte {
	buf := make([]byte, 9+9+len(payload))
	n := varint.Encode(buf, uint64(len(payload)))
	n += varint.Encode(buf[n:], uint64(rowid))
	n += copy(buf[n:], payload)
	return buf[:n]
}

// encodeRecord builds a record body from a header-length-prefixed list
// of serial types and the raw bytes each one occupies, in column order.
func encodeRecord(cols []struct {
	st  varint.SerialType
	raw []byte
}) []byte {
	var header []byte
	for _, c := range cols {
		b := make([]byte, 9)
		n := varint.Encode(b, uint64(c.st))
		header = append(header, b[:n]...)
	}
	hlenBuf := make([]byte, 9)
	n := varint.Encode(hlenBuf, uint64(len(header)+1))
	out := append(append([]byte{}, hlenBuf[:n]...), header...)
	for _, c := range cols {
		out = append(out, c.raw...)
	}
	return out
}

func buildLeafPage(usableSize int, rows [][2]interface{}) []byte {
	data := make([]byte, usableSize)
	contentEnd := usableSize
	cellBytes := make([][]byte, len(rows))
	for i, r := range rows {
		cellBytes[i] = encodeLeafCell(r[0].(int64), r[1].([]byte))
	}
	offsets := make([]int, len(rows))
	for i := len(rows) - 1; i >= 0; i-- {
		contentEnd -= len(cellBytes[i])
		copy(data[contentEnd:], cellBytes[i])
		offsets[i] = contentEnd
	}
	data[0] = page.TypeLeafTable
	data[3] = byte(len(rows) >> 8)
	data[4] = byte(len(rows))
	data[5] = byte(contentEnd >> 8)
	data[6] = byte(contentEnd)
	for i, off := range offsets {
		data[8+i*2] = byte(off >> 8)
		data[8+i*2+1] = byte(off)
	}
	return data
}

func intRecord(id int64, name string) []byte {
	return encodeRecord([]struct {
		st  varint.SerialType
		raw []byte
	}{
		{varint.SerialTypeNull, nil}, // integer primary key alias stored as NULL
		{varint.SerialType(13 + 2*len(name)), []byte(name)},
	})
}

func testTable() *schema.Table {
	return &schema.Table{
		Name: "widgets",
		SQL:  "CREATE TABLE widgets(id INTEGER PRIMARY KEY, name TEXT)",
		Columns: []*schema.Column{
			{Name: "id", Affinity: schema.AffinityInteger, PrimaryKey: true},
			{Name: "name", Affinity: schema.AffinityText},
		},
	}
}

func TestNewTableSignatureRejectsUnsupportedKinds(t *testing.T) {
	wr := &schema.OrdinaryTableRow{Table: &schema.Table{Name: "u", SQL: "x", WithoutRowID: true}}
	if _, err := NewTableSignature(wr); err == nil {
		t.Fatal("expected SignatureError for without-rowid table")
	}

	idx := &schema.IndexRow{}
	if _, err := NewTableSignature(idx); err == nil {
		t.Fatal("expected SignatureError for index row")
	}
}

func TestSchemaAllowedSetPerAffinity(t *testing.T) {
	textSet := schemaAllowedSet(schema.AffinityText, false)
	if !textSet.Contains(varint.SerialTypeNull) {
		t.Error("nullable TEXT column should allow serial type 0")
	}
	if !textSet.Contains(varint.SerialType(15)) {
		t.Error("TEXT column should allow text serial types")
	}
	if textSet.Contains(varint.SerialType(14)) {
		t.Error("TEXT column should not allow blob serial types")
	}

	notNullInt := schemaAllowedSet(schema.AffinityInteger, true)
	if notNullInt.Contains(varint.SerialTypeNull) {
		t.Error("NOT NULL column should not allow serial type 0")
	}
	if !notNullInt.Contains(varint.SerialTypeOne) {
		t.Error("INTEGER column should allow serial type 9 (constant 1)")
	}
	if notNullInt.Contains(varint.SerialType(15)) {
		t.Error("INTEGER column should not allow text serial types")
	}
}

func TestGenerateAggregatesObservedColumnTypes(t *testing.T) {
	row := &schema.OrdinaryTableRow{Table: testTable()}

	usable := 512
	leaf := buildLeafPage(usable, [][2]interface{}{
		{int64(1), intRecord(1, "alpha")},
		{int64(2), intRecord(2, "b")},
	})
	src := &fakeSource{pages: map[uint32][]byte{2: leaf}, usableSize: usable}

	ts, err := Generate(row, 2, src, 1)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if ts.RowCount != 2 {
		t.Fatalf("RowCount = %d, want 2", ts.RowCount)
	}
	idCol, nameCol := ts.Columns[0], ts.Columns[1]
	if idCol.PresentRows() != 2 {
		t.Errorf("id PresentRows = %d, want 2", idCol.PresentRows())
	}
	simplified := idCol.SimplifiedSignature()
	if len(simplified) != 1 || simplified[0] != varint.SimpleNull {
		t.Errorf("id SimplifiedSignature = %v, want [NULL] (rowid alias stored as NULL)", simplified)
	}
	nameSimplified := nameCol.SimplifiedSignature()
	if len(nameSimplified) != 1 || nameSimplified[0] != varint.SimpleText {
		t.Errorf("name SimplifiedSignature = %v, want [TEXT]", nameSimplified)
	}

	probs := nameCol.ProbabilisticSignature()
	if probs[varint.SimpleText] != 1.0 {
		t.Errorf("name TEXT probability = %v, want 1.0", probs[varint.SimpleText])
	}
}

func TestAllowedForCarvingFallsBackToSchemaWhenNoRows(t *testing.T) {
	row := &schema.OrdinaryTableRow{Table: testTable()}
	ts, err := NewTableSignature(row)
	if err != nil {
		t.Fatalf("NewTableSignature: %v", err)
	}
	allowed := ts.Columns[1].AllowedForCarving()
	if !allowed.Contains(varint.SerialType(15)) {
		t.Error("empty-observation fallback should still allow TEXT for a TEXT-affinity column")
	}
}
