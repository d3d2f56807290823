// Package record decodes the body of a b-tree cell's payload into typed
// column values, per the record format at
// https://sqlite.org/fileformat2.html#record_format.
package record

import (
	"fmt"
	"math"

	"golang.org/x/text/encoding/unicode"

	"github.com/forensics-go/sqlforensic/internal/sqlite/fileformat"
	"github.com/forensics-go/sqlforensic/internal/sqlite/sqliteerr"
	"github.com/forensics-go/sqlforensic/internal/sqlite/varint"
)

// Value is one decoded column value, tagged by its original serial type.
// Exactly one of the typed accessors is meaningful for a given SerialType;
// NULL values carry no payload.
type Value struct {
	SerialType varint.SerialType
	intVal     int64
	floatVal   float64
	text       string
	blob       []byte
}

func (v Value) IsNull() bool { return v.SerialType == varint.SerialTypeNull }
func (v Value) Int() int64   { return v.intVal }
func (v Value) Float() float64 {
	if v.SerialType == varint.SerialTypeFloat64 {
		return v.floatVal
	}
	return float64(v.intVal)
}
func (v Value) Text() string { return v.text }
func (v Value) Blob() []byte { return v.blob }

// Decode parses a record's header (header-length varint, then one
// serial-type varint per column) and body (packed column values in
// header order) out of payload. encoding selects how TEXT serial types
// are decoded.
func Decode(payload []byte, encoding uint32) ([]Value, error) {
	headerLen, n := varint.Decode(payload)
	if n == 0 {
		return nil, sqliteerr.NewParsingError(sqliteerr.ErrRecordParsing, "header_length", 0,
			fmt.Errorf("truncated varint"))
	}
	if int(headerLen) > len(payload) {
		return nil, sqliteerr.NewParsingError(sqliteerr.ErrRecordParsing, "header_length", 0,
			fmt.Errorf("header length %d exceeds payload size %d", headerLen, len(payload)))
	}

	var serialTypes []varint.SerialType
	offset := n
	for offset < int(headerLen) {
		st, k := varint.Decode(payload[offset:])
		if k == 0 {
			return nil, sqliteerr.NewParsingError(sqliteerr.ErrRecordParsing, "serial_type", int64(offset),
				fmt.Errorf("truncated varint"))
		}
		serialTypes = append(serialTypes, varint.SerialType(st))
		offset += k
	}

	body := payload[headerLen:]
	bodyOffset := 0
	values := make([]Value, len(serialTypes))
	for i, st := range serialTypes {
		n := st.ContentLength()
		if bodyOffset+n > len(body) {
			return nil, sqliteerr.NewParsingError(sqliteerr.ErrRecordParsing, "body", int64(headerLen)+int64(bodyOffset),
				fmt.Errorf("column %d: need %d body bytes, have %d", i, n, len(body)-bodyOffset))
		}
		v, err := decodeValue(st, body[bodyOffset:bodyOffset+n], encoding)
		if err != nil {
			return nil, err
		}
		values[i] = v
		bodyOffset += n
	}
	return values, nil
}

// DecodeColumn decodes a single column's already-isolated body bytes
// into a Value, given the serial type its header declared. Exported for
// the carver, which recovers serial types and body spans independently
// of a full, well-formed record.
func DecodeColumn(st varint.SerialType, raw []byte, encoding uint32) (Value, error) {
	return decodeValue(st, raw, encoding)
}

func decodeValue(st varint.SerialType, raw []byte, encoding uint32) (Value, error) {
	v := Value{SerialType: st}
	switch {
	case st == varint.SerialTypeNull:
	case st == varint.SerialTypeZero:
		v.intVal = 0
	case st == varint.SerialTypeOne:
		v.intVal = 1
	case st >= 1 && st <= 6:
		v.intVal = decodeBigEndianInt(raw)
	case st == varint.SerialTypeFloat64:
		var bits uint64
		for _, b := range raw {
			bits = bits<<8 | uint64(b)
		}
		v.floatVal = math.Float64frombits(bits)
	case st.IsBlob():
		v.blob = raw
	case st.IsText():
		text, err := decodeText(raw, encoding)
		if err != nil {
			return Value{}, err
		}
		v.text = text
	case st.IsReserved():
		// No defined meaning; treated as NULL per varint.Simplify.
	}
	return v, nil
}

func decodeBigEndianInt(raw []byte) int64 {
	if len(raw) == 0 {
		return 0
	}
	// Sign-extend from the width of raw.
	v := int64(int8(raw[0]))
	for _, b := range raw[1:] {
		v = v<<8 | int64(b)
	}
	return v
}

func decodeText(raw []byte, encoding uint32) (string, error) {
	switch encoding {
	case fileformat.EncodingUTF16LE:
		return decodeUTF16(raw, unicode.LittleEndian)
	case fileformat.EncodingUTF16BE:
		return decodeUTF16(raw, unicode.BigEndian)
	default:
		return string(raw), nil
	}
}

func decodeUTF16(raw []byte, endian unicode.Endianness) (string, error) {
	dec := unicode.UTF16(endian, unicode.IgnoreBOM).NewDecoder()
	out, err := dec.Bytes(raw)
	if err != nil {
		return "", sqliteerr.NewParsingError(sqliteerr.ErrRecordParsing, "text", 0, err)
	}
	return string(out), nil
}
