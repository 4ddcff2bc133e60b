package pager

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"strings"

	"golang.org/x/text/cases"
)

// ───────────────────────────────────────────────────────────────────────────
// Record codec
// ───────────────────────────────────────────────────────────────────────────
//
// Self-describing tuple format: a varint-prefixed header of per-column type
// codes followed by the concatenated column bodies. Integer columns pick the
// narrowest width that holds the value (1/2/3/4/6/8 bytes); this keeps small
// rowid-like integers cheap without a fixed-width tax on every row.
//
// Wire format:
//   [varint headerLen] [type code]* [body]*
//
// Type codes (mirrors the type classes used for ordering — see Compare):
//   0  — NULL                  (no body)
//   1  — INT8                  (1 byte, sign-extended)
//   2  — INT16                 (2 bytes LE, sign-extended)
//   3  — INT24                 (3 bytes LE, sign-extended)
//   4  — INT32                 (4 bytes LE, sign-extended)
//   5  — INT48                 (6 bytes LE, sign-extended)
//   6  — INT64                 (8 bytes LE)
//   7  — FLOAT64                (8 bytes LE, IEEE 754)
//   N>=12, even — BLOB of length (N-12)/2
//   N>=13, odd  — TEXT of length (N-13)/2
//
// The even/odd length-encodes-into-the-type-code trick for TEXT/BLOB matches
// the reference single-file format this engine targets wire compatibility
// with: a reader never needs a separate length field for variable-length
// columns, only the header's type code.

const (
	rcTypeNull    = 0
	rcTypeInt8    = 1
	rcTypeInt16   = 2
	rcTypeInt24   = 3
	rcTypeInt32   = 4
	rcTypeInt48   = 5
	rcTypeInt64   = 6
	rcTypeFloat64 = 7
	rcTypeBlobMin = 12
)

// RefValue is a zero-copy decoded column value. Text and Blob alias the
// original record buffer; callers that retain a RefValue past the buffer's
// lifetime must copy.
type RefValue struct {
	Kind RefKind
	I    int64
	F    float64
	S    []byte // Text or Blob payload
}

// RefKind identifies which field of a RefValue is populated.
type RefKind uint8

const (
	RefNull RefKind = iota
	RefInteger
	RefFloat
	RefText
	RefBlob
)

// typeClass orders NULL < INT=REAL < TEXT < BLOB, matching the reference
// format's comparison rules.
func (v RefValue) typeClass() int {
	switch v.Kind {
	case RefNull:
		return 0
	case RefInteger, RefFloat:
		return 1
	case RefText:
		return 2
	case RefBlob:
		return 3
	}
	return 0
}

func putVarint(buf []byte, v uint64) []byte {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	return append(buf, tmp[:n]...)
}

// EncodeRecord serializes column values into the on-disk record format.
func EncodeRecord(cols []any) []byte {
	typeCodes := make([]byte, 0, len(cols))
	bodies := make([]byte, 0, len(cols)*8)

	for _, v := range cols {
		switch val := v.(type) {
		case nil:
			typeCodes = append(typeCodes, rcTypeNull)
		case bool:
			i := int64(0)
			if val {
				i = 1
			}
			typeCodes, bodies = encodeInt(typeCodes, bodies, i)
		case int:
			typeCodes, bodies = encodeInt(typeCodes, bodies, int64(val))
		case int64:
			typeCodes, bodies = encodeInt(typeCodes, bodies, val)
		case float64:
			typeCodes = append(typeCodes, rcTypeFloat64)
			var b [8]byte
			binary.LittleEndian.PutUint64(b[:], math.Float64bits(val))
			bodies = append(bodies, b[:]...)
		case string:
			code := rcTypeBlobMin + 1 + 2*len(val) // odd => text
			typeCodes = appendTypeCode(typeCodes, code)
			bodies = append(bodies, val...)
		case []byte:
			code := rcTypeBlobMin + 2*len(val) // even => blob
			typeCodes = appendTypeCode(typeCodes, code)
			bodies = append(bodies, val...)
		default:
			s := fmt.Sprint(val)
			code := rcTypeBlobMin + 1 + 2*len(s)
			typeCodes = appendTypeCode(typeCodes, code)
			bodies = append(bodies, s...)
		}
	}

	hdr := putVarint(nil, uint64(len(typeCodes)))
	out := make([]byte, 0, len(hdr)+len(typeCodes)+len(bodies))
	out = append(out, hdr...)
	out = append(out, typeCodes...)
	out = append(out, bodies...)
	return out
}

func appendTypeCode(typeCodes []byte, code int) []byte {
	return putVarint(typeCodes, uint64(code))
}

func encodeInt(typeCodes, bodies []byte, v int64) ([]byte, []byte) {
	switch {
	case v >= math.MinInt8 && v <= math.MaxInt8:
		typeCodes = append(typeCodes, rcTypeInt8)
		bodies = append(bodies, byte(v))
	case v >= math.MinInt16 && v <= math.MaxInt16:
		typeCodes = append(typeCodes, rcTypeInt16)
		var b [2]byte
		binary.LittleEndian.PutUint16(b[:], uint16(v))
		bodies = append(bodies, b[:]...)
	case v >= -(1<<23) && v <= (1<<23)-1:
		typeCodes = append(typeCodes, rcTypeInt24)
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], uint32(v)&0xFFFFFF)
		bodies = append(bodies, b[:3]...)
	case v >= math.MinInt32 && v <= math.MaxInt32:
		typeCodes = append(typeCodes, rcTypeInt32)
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], uint32(v))
		bodies = append(bodies, b[:]...)
	case v >= -(1<<47) && v <= (1<<47)-1:
		typeCodes = append(typeCodes, rcTypeInt48)
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], uint64(v)&0xFFFFFFFFFFFF)
		bodies = append(bodies, b[:6]...)
	default:
		typeCodes = append(typeCodes, rcTypeInt64)
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], uint64(v))
		bodies = append(bodies, b[:]...)
	}
	return typeCodes, bodies
}

// DecodeRecord parses the record format into zero-copy RefValues. Text and
// Blob values alias data; callers must copy if they retain the slice beyond
// data's lifetime.
func DecodeRecord(data []byte) ([]RefValue, error) {
	hdrLen, n := binary.Uvarint(data)
	if n <= 0 {
		return nil, fmt.Errorf("record: bad header varint")
	}
	if int(hdrLen)+n > len(data) {
		return nil, fmt.Errorf("record: header length %d exceeds record size", hdrLen)
	}
	typeCodes := data[n : n+int(hdrLen)]
	body := data[n+int(hdrLen):]

	var vals []RefValue
	off := 0
	for len(typeCodes) > 0 {
		code, m := binary.Uvarint(typeCodes)
		if m <= 0 {
			return nil, fmt.Errorf("record: bad type code varint")
		}
		typeCodes = typeCodes[m:]

		switch {
		case code == rcTypeNull:
			vals = append(vals, RefValue{Kind: RefNull})
		case code == rcTypeInt8:
			if off+1 > len(body) {
				return nil, fmt.Errorf("record: truncated int8")
			}
			vals = append(vals, RefValue{Kind: RefInteger, I: int64(int8(body[off]))})
			off++
		case code == rcTypeInt16:
			if off+2 > len(body) {
				return nil, fmt.Errorf("record: truncated int16")
			}
			vals = append(vals, RefValue{Kind: RefInteger, I: int64(int16(binary.LittleEndian.Uint16(body[off : off+2])))})
			off += 2
		case code == rcTypeInt24:
			if off+3 > len(body) {
				return nil, fmt.Errorf("record: truncated int24")
			}
			u := uint32(body[off]) | uint32(body[off+1])<<8 | uint32(body[off+2])<<16
			if u&0x800000 != 0 {
				u |= 0xFF000000
			}
			vals = append(vals, RefValue{Kind: RefInteger, I: int64(int32(u))})
			off += 3
		case code == rcTypeInt32:
			if off+4 > len(body) {
				return nil, fmt.Errorf("record: truncated int32")
			}
			vals = append(vals, RefValue{Kind: RefInteger, I: int64(int32(binary.LittleEndian.Uint32(body[off : off+4])))})
			off += 4
		case code == rcTypeInt48:
			if off+6 > len(body) {
				return nil, fmt.Errorf("record: truncated int48")
			}
			var b8 [8]byte
			copy(b8[:6], body[off:off+6])
			u := binary.LittleEndian.Uint64(b8[:])
			if u&0x800000000000 != 0 {
				u |= 0xFFFF000000000000
			}
			vals = append(vals, RefValue{Kind: RefInteger, I: int64(u)})
			off += 6
		case code == rcTypeInt64:
			if off+8 > len(body) {
				return nil, fmt.Errorf("record: truncated int64")
			}
			vals = append(vals, RefValue{Kind: RefInteger, I: int64(binary.LittleEndian.Uint64(body[off : off+8]))})
			off += 8
		case code == rcTypeFloat64:
			if off+8 > len(body) {
				return nil, fmt.Errorf("record: truncated float64")
			}
			vals = append(vals, RefValue{Kind: RefFloat, F: math.Float64frombits(binary.LittleEndian.Uint64(body[off : off+8]))})
			off += 8
		case code >= rcTypeBlobMin:
			length := int((code - rcTypeBlobMin) / 2)
			if off+length > len(body) {
				return nil, fmt.Errorf("record: truncated text/blob")
			}
			s := body[off : off+length]
			off += length
			if (code-rcTypeBlobMin)%2 == 1 {
				vals = append(vals, RefValue{Kind: RefText, S: s})
			} else {
				vals = append(vals, RefValue{Kind: RefBlob, S: s})
			}
		default:
			return nil, fmt.Errorf("record: unknown type code %d", code)
		}
	}
	return vals, nil
}

// Compare orders two RefValues per the reference collation rules:
// NULL < INT=REAL < TEXT < BLOB, comparing within a type class numerically
// or byte-lexicographically.
func Compare(a, b RefValue) int {
	ca, cb := a.typeClass(), b.typeClass()
	if ca != cb {
		if ca < cb {
			return -1
		}
		return 1
	}
	switch a.Kind {
	case RefNull:
		return 0
	case RefInteger, RefFloat:
		af, bf := numericValue(a), numericValue(b)
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		default:
			return 0
		}
	case RefText, RefBlob:
		return compareBytes(a.S, b.S)
	}
	return 0
}

// Collation names one of the three built-in column/index collating
// functions: BINARY compares raw bytes, NOCASE folds Unicode case before
// comparing (so 'é' and 'É' collide, unlike an ASCII-only toupper), and
// RTRIM ignores trailing whitespace.
type Collation uint8

const (
	CollationBinary Collation = iota
	CollationNoCase
	CollationRTrim
)

// ParseCollation maps a COLLATE clause's identifier (case-insensitive) to a
// Collation, defaulting to BINARY for anything unrecognized.
func ParseCollation(name string) Collation {
	switch strings.ToUpper(name) {
	case "NOCASE":
		return CollationNoCase
	case "RTRIM":
		return CollationRTrim
	default:
		return CollationBinary
	}
}

var nocaseFold = cases.Fold()

// CompareCollated orders two RefValues the way Compare does, except TEXT
// columns are compared under the given collation instead of always BINARY.
func CompareCollated(a, b RefValue, c Collation) int {
	if c == CollationBinary || a.Kind != RefText || b.Kind != RefText {
		return Compare(a, b)
	}
	sa, sb := a.S, b.S
	if c == CollationRTrim {
		sa = bytes.TrimRight(sa, " ")
		sb = bytes.TrimRight(sb, " ")
	}
	// NOCASE also applies Unicode case folding on top of any RTRIM already
	// performed, matching the reference's "NOCASE ignores case, RTRIM ignores
	// trailing spaces" composability.
	fa, fb := sa, sb
	if c == CollationNoCase {
		fa = []byte(nocaseFold.String(string(sa)))
		fb = []byte(nocaseFold.String(string(sb)))
	}
	return compareBytes(fa, fb)
}

func numericValue(v RefValue) float64 {
	if v.Kind == RefInteger {
		return float64(v.I)
	}
	return v.F
}

func compareBytes(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	default:
		return 0
	}
}

// MarshalRow and UnmarshalRow adapt the []any row shape used by the VDBE's
// MakeRecord/Column opcodes onto EncodeRecord/DecodeRecord, preserving the
// call shape the rest of the engine already depends on.
func MarshalRow(row []any, _ []byte) []byte {
	return EncodeRecord(row)
}

func UnmarshalRow(data []byte) ([]any, error) {
	vals, err := DecodeRecord(data)
	if err != nil {
		return nil, err
	}
	out := make([]any, len(vals))
	for i, v := range vals {
		switch v.Kind {
		case RefNull:
			out[i] = nil
		case RefInteger:
			out[i] = float64(v.I)
		case RefFloat:
			out[i] = v.F
		case RefText:
			out[i] = string(v.S)
		case RefBlob:
			dst := make([]byte, len(v.S))
			copy(dst, v.S)
			out[i] = dst
		}
	}
	return out, nil
}
