package record

import (
	"math"
	"testing"

	"github.com/forensics-go/sqlforensic/internal/sqlite/fileformat"
	"github.com/forensics-go/sqlforensic/internal/sqlite/varint"
)

func buildRecord(serialTypes []varint.SerialType, body []byte) []byte {
	headerBuf := make([]byte, 9*(len(serialTypes)+1))
	n := 0
	for _, st := range serialTypes {
		n += varint.Encode(headerBuf[n:], uint64(st))
	}
	headerLen := 0 // placeholder, fixed below
	_ = headerLen

	// header_length varint must include itself; try increasing widths until stable.
	hlBuf := make([]byte, 9)
	guess := n + 1
	for {
		w := varint.Encode(hlBuf, uint64(guess))
		if w+n == guess {
			break
		}
		guess = w + n
	}
	out := make([]byte, 0, guess+len(body))
	out = append(out, hlBuf[:varint.Len(uint64(guess))]...)
	out = append(out, headerBuf[:n]...)
	out = append(out, body...)
	return out
}

func TestDecodeIntegerAndText(t *testing.T) {
	text := []byte("hello")
	raw := buildRecord(
		[]varint.SerialType{varint.SerialTypeInt8, varint.SerialType(13 + 2*len(text))},
		append([]byte{42}, text...),
	)

	values, err := Decode(raw, fileformat.EncodingUTF8)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(values) != 2 {
		t.Fatalf("len(values) = %d, want 2", len(values))
	}
	if values[0].Int() != 42 {
		t.Errorf("values[0].Int() = %d, want 42", values[0].Int())
	}
	if values[1].Text() != "hello" {
		t.Errorf("values[1].Text() = %q, want %q", values[1].Text(), "hello")
	}
}

func TestDecodeNullZeroOne(t *testing.T) {
	raw := buildRecord(
		[]varint.SerialType{varint.SerialTypeNull, varint.SerialTypeZero, varint.SerialTypeOne},
		nil,
	)
	values, err := Decode(raw, fileformat.EncodingUTF8)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !values[0].IsNull() {
		t.Error("values[0] should be NULL")
	}
	if values[1].Int() != 0 {
		t.Errorf("values[1].Int() = %d, want 0", values[1].Int())
	}
	if values[2].Int() != 1 {
		t.Errorf("values[2].Int() = %d, want 1", values[2].Int())
	}
}

func TestDecodeFloat64(t *testing.T) {
	bits := math.Float64bits(3.14159)
	body := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		body[i] = byte(bits)
		bits >>= 8
	}
	raw := buildRecord([]varint.SerialType{varint.SerialTypeFloat64}, body)

	values, err := Decode(raw, fileformat.EncodingUTF8)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if values[0].Float() != 3.14159 {
		t.Errorf("values[0].Float() = %v, want 3.14159", values[0].Float())
	}
}

func TestDecodeBlob(t *testing.T) {
	blob := []byte{0xde, 0xad, 0xbe, 0xef}
	raw := buildRecord([]varint.SerialType{varint.SerialType(12 + 2*len(blob))}, blob)

	values, err := Decode(raw, fileformat.EncodingUTF8)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if string(values[0].Blob()) != string(blob) {
		t.Errorf("values[0].Blob() = %x, want %x", values[0].Blob(), blob)
	}
}

func TestDecodeNegativeInteger(t *testing.T) {
	raw := buildRecord([]varint.SerialType{varint.SerialTypeInt8}, []byte{0xff}) // -1
	values, err := Decode(raw, fileformat.EncodingUTF8)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if values[0].Int() != -1 {
		t.Errorf("values[0].Int() = %d, want -1", values[0].Int())
	}
}

func TestDecodeTruncatedHeaderErrors(t *testing.T) {
	if _, err := Decode([]byte{9, 1}, fileformat.EncodingUTF8); err == nil {
		t.Fatal("expected error for header length exceeding payload size")
	}
}
