package export

import (
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/forensics-go/sqlforensic/internal/sqlite/record"
	"github.com/forensics-go/sqlforensic/internal/sqlite/varint"
)

// valueToAny converts a decoded column value to a Go value suitable for
// a database/sql parameter or JSON encoding.
func valueToAny(v record.Value) any {
	switch {
	case v.IsNull():
		return nil
	case v.SerialType.IsBlob():
		return v.Blob()
	case v.SerialType.IsText():
		return v.Text()
	case v.SerialType == varint.SerialTypeFloat64:
		return v.Float()
	default:
		return v.Int()
	}
}

// valueToCSVString renders v for a CSV/XLSX cell, per spec.md §6's rule
// that a cell whose first character is "=" is prefixed with a single
// space to defuse formula injection in spreadsheet consumers.
func valueToCSVString(v record.Value) string {
	var s string
	switch {
	case v.IsNull():
		return ""
	case v.SerialType.IsBlob():
		s = hex.EncodeToString(v.Blob())
	case v.SerialType.IsText():
		s = v.Text()
	case v.SerialType == varint.SerialTypeFloat64:
		s = strconv.FormatFloat(v.Float(), 'g', -1, 64)
	default:
		s = strconv.FormatInt(v.Int(), 10)
	}
	if strings.HasPrefix(s, "=") {
		s = " " + s
	}
	return s
}
