package varint

import "testing"

func TestEncodeDecodeRoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		value uint64
		want  int
	}{
		{"1-byte", 0x00, 1},
		{"1-byte max", 0x7f, 1},
		{"2-byte min", 0x80, 2},
		{"2-byte max", 0x3fff, 2},
		{"3-byte min", 0x4000, 3},
		{"3-byte max", 0x1fffff, 3},
		{"4-byte min", 0x200000, 4},
		{"4-byte max", 0xfffffff, 4},
		{"5-byte", 0x12345678, 5},
		{"8-byte max", 0xffffffffffffff, 8},
		{"9-byte min", 0x100000000000000, 9},
		{"9-byte max", 0xffffffffffffffff, 9},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf [9]byte
			n := Encode(buf[:], tt.value)
			if n != tt.want {
				t.Fatalf("Encode() length = %d, want %d", n, tt.want)
			}
			if got := Len(tt.value); got != tt.want {
				t.Fatalf("Len() = %d, want %d", got, tt.want)
			}
			got, m := Decode(buf[:n])
			if got != tt.value {
				t.Fatalf("Decode() = %#x, want %#x", got, tt.value)
			}
			if m != n {
				t.Fatalf("Decode() length = %d, want %d", m, n)
			}
		})
	}
}

func TestDecodeReverseMatchesForward(t *testing.T) {
	values := []uint64{0, 1, 0x7f, 0x80, 0x3fff, 0x4000, 0x1fffff, 0x200000, 0xfffffff, 0xffffffffffffff}
	for _, v := range values {
		var buf [16]byte
		n := Encode(buf[4:], v)
		end := 4 + n
		got, start, err := DecodeReverse(buf[:], end)
		if err != nil {
			t.Fatalf("DecodeReverse(%#x) unexpected error: %v", v, err)
		}
		if got != v {
			t.Fatalf("DecodeReverse(%#x) = %#x", v, got)
		}
		if start != 4 {
			t.Fatalf("DecodeReverse(%#x) start = %d, want 4", v, start)
		}
	}
}

func TestDecodeReverseRejectsNineByteVarint(t *testing.T) {
	var buf [16]byte
	n := Encode(buf[4:], 0xffffffffffffffff)
	if n != 9 {
		t.Fatalf("setup: expected 9-byte varint, got %d", n)
	}
	_, _, err := DecodeReverse(buf[:], 4+n)
	if err == nil {
		t.Fatal("expected InvalidVarIntError for 9-byte reverse decode")
	}
}

func TestSerialTypeContentLength(t *testing.T) {
	tests := []struct {
		t    SerialType
		want int
	}{
		{0, 0}, {8, 0}, {9, 0}, {10, 0}, {11, 0},
		{1, 1}, {2, 2}, {3, 3}, {4, 4}, {5, 6}, {6, 8}, {7, 8},
		{12, 0}, {13, 0}, {14, 1}, {15, 1}, {16, 2}, {23, 5},
	}
	for _, tt := range tests {
		if got := tt.t.ContentLength(); got != tt.want {
			t.Errorf("SerialType(%d).ContentLength() = %d, want %d", tt.t, got, tt.want)
		}
	}
}

func TestSimplify(t *testing.T) {
	tests := []struct {
		t    SerialType
		want SimpleType
	}{
		{0, SimpleNull},
		{1, SimpleInteger}, {6, SimpleInteger}, {8, SimpleInteger}, {9, SimpleInteger},
		{7, SimpleReal},
		{13, SimpleText}, {23, SimpleText},
		{12, SimpleBlob}, {22, SimpleBlob},
	}
	for _, tt := range tests {
		if got := Simplify(tt.t); got != tt.want {
			t.Errorf("Simplify(%d) = %v, want %v", tt.t, got, tt.want)
		}
	}
}
