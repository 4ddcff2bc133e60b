package pager

import (
	"bytes"
	"testing"
)

func TestEncodeRecordRoundTrip(t *testing.T) {
	cases := [][]any{
		{nil},
		{int64(0)},
		{int64(-1), int64(127), int64(-128)},
		{int64(32767), int64(-32768)},                       // int16 width
		{int64(1 << 22), int64(-(1 << 23))},                 // int24 width
		{int64(1 << 30), int64(-(1 << 31))},                 // int32 width
		{int64(1 << 45), int64(-(1 << 46))},                 // int48 width
		{int64(1 << 60), int64(-1 << 62)},                   // int64 width
		{3.14159, -0.5},
		{"", "hello", "naïve"},
		{[]byte{}, []byte{0x00, 0xFF, 0x10}},
		{nil, int64(42), 2.5, "mixed", []byte("blob")},
	}
	for _, cols := range cases {
		enc := EncodeRecord(cols)
		vals, err := DecodeRecord(enc)
		if err != nil {
			t.Fatalf("decode %v: %v", cols, err)
		}
		if len(vals) != len(cols) {
			t.Fatalf("decode %v: got %d values", cols, len(vals))
		}
		// Re-encoding the decoded values reproduces the original bytes.
		back := make([]any, len(vals))
		for i, v := range vals {
			switch v.Kind {
			case RefNull:
				back[i] = nil
			case RefInteger:
				back[i] = v.I
			case RefFloat:
				back[i] = v.F
			case RefText:
				back[i] = string(v.S)
			case RefBlob:
				back[i] = append([]byte(nil), v.S...)
			}
		}
		if !bytes.Equal(EncodeRecord(back), enc) {
			t.Fatalf("re-encode of %v is not byte-identical", cols)
		}
	}
}

func TestDecodeRecordRejectsTruncatedHeader(t *testing.T) {
	enc := EncodeRecord([]any{"some text", int64(7)})
	if _, err := DecodeRecord(enc[:1]); err == nil {
		t.Fatal("truncated record should not decode")
	}
}

func TestCompareTypeClassOrder(t *testing.T) {
	null := RefValue{Kind: RefNull}
	intv := RefValue{Kind: RefInteger, I: 5}
	flt := RefValue{Kind: RefFloat, F: 5.5}
	txt := RefValue{Kind: RefText, S: []byte("a")}
	blob := RefValue{Kind: RefBlob, S: []byte("a")}

	// NULL < numeric < TEXT < BLOB.
	ordered := []RefValue{null, intv, txt, blob}
	for i := 0; i < len(ordered)-1; i++ {
		if Compare(ordered[i], ordered[i+1]) >= 0 {
			t.Fatalf("position %d: expected strictly ascending type classes", i)
		}
	}
	// INT and REAL share a class and compare numerically.
	if Compare(intv, flt) >= 0 {
		t.Fatal("5 should order before 5.5")
	}
	if Compare(RefValue{Kind: RefFloat, F: 5}, intv) != 0 {
		t.Fatal("5.0 and 5 should compare equal")
	}
}

func TestCompareCollated(t *testing.T) {
	text := func(s string) RefValue { return RefValue{Kind: RefText, S: []byte(s)} }

	cases := []struct {
		a, b string
		coll Collation
		want int
	}{
		{"abc", "ABC", CollationBinary, 1},  // lower > upper in raw bytes
		{"abc", "ABC", CollationNoCase, 0},  // folded equal
		{"héllo", "HÉLLO", CollationNoCase, 0},
		{"a  ", "a", CollationRTrim, 0},
		{"a  ", "a", CollationBinary, 1},
		{"a", "b", CollationNoCase, -1},
	}
	for _, tc := range cases {
		got := CompareCollated(text(tc.a), text(tc.b), tc.coll)
		norm := 0
		if got < 0 {
			norm = -1
		} else if got > 0 {
			norm = 1
		}
		if norm != tc.want {
			t.Fatalf("CompareCollated(%q, %q, %v) = %d, want sign %d", tc.a, tc.b, tc.coll, got, tc.want)
		}
	}
}

func TestParseCollation(t *testing.T) {
	cases := map[string]Collation{
		"binary":  CollationBinary,
		"BINARY":  CollationBinary,
		"nocase":  CollationNoCase,
		"RTRIM":   CollationRTrim,
		"unknown": CollationBinary,
	}
	for name, want := range cases {
		if got := ParseCollation(name); got != want {
			t.Fatalf("ParseCollation(%q) = %v, want %v", name, got, want)
		}
	}
}
