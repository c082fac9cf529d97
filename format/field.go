// Package format describes records as an ordered tuple of typed
// members. A Format[T] knows how to validate and parse the delimited
// text encoding used during ingestion and how to read and write the
// self-delimiting binary encoding used by the compressed on-disk files,
// without the caller needing two separate descriptions of the same
// record.
//
// Unlike the source this catalogue is modelled on, members are backed
// by ordinary exported fields on T rather than an opaque displacement
// table: each Field closes over a getter/setter pair supplied by the
// record's own package, so the codec never needs reflection or
// unsafe.Pointer arithmetic to reach a member.
package format

import (
	"math"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Field describes one member of a record of type T: how it reads and
// writes in both the text and binary encodings.
//
// Variable-length members (String, StringNull, Int32List) have
// FixedSize == 0 and LengthIdx set to the index of the Field that
// carries their byte length; that Field in turn has IsLength set. The
// binary encoding requires the length member to precede the member it
// describes, which is enforced by NewFormat.
type Field[T any] struct {
	Name      string
	FixedSize int  // binary width in bytes; 0 for variable-length members
	IsLength  bool // true if this field's decoded value is another field's byte length
	LengthIdx int  // index of the Field supplying this field's byte length; -1 if FixedSize > 0
	NoBinary  bool // true for text-only members (ingestion columns dropped from the binary record)

	DecodeBinary func(buf []byte, rec *T)
	EncodeBinary func(rec *T) []byte

	ValidateText func(tok string) bool
	ParseText    func(tok string, rec *T) error
	PrintText    func(rec *T) string

	// TextElementCount, when set, reports the declared-length-bearing
	// count a text token represents (string byte length, or list
	// element count). Validate uses it to check the list-length
	// pairing invariant between this field and the LengthField that
	// precedes it.
	TextElementCount func(tok string) (int, bool)
}

// Format is an ordered list of Fields sharing a single text separator
// (or Sep == 0 to denote a binary-only format with no text form).
type Format[T any] struct {
	Fields []Field[T]
	Sep    byte
}

// NewFormat validates the list-length pairing invariant (every
// variable-length member's LengthIdx must name an earlier field marked
// IsLength) and returns the assembled Format.
func NewFormat[T any](sep byte, fields ...Field[T]) (*Format[T], error) {
	for i, f := range fields {
		if f.NoBinary || f.FixedSize > 0 {
			continue
		}
		if f.LengthIdx < 0 || f.LengthIdx >= i {
			return nil, errors.Errorf("format: field %q has no valid preceding length field", f.Name)
		}
		if !fields[f.LengthIdx].IsLength {
			return nil, errors.Errorf("format: field %q pairs with %q, which is not a length field", f.Name, fields[f.LengthIdx].Name)
		}
	}
	return &Format[T]{Fields: fields, Sep: sep}, nil
}

// Validate reports whether line tokenizes into exactly len(Fields)
// members, each individually valid for its type.
func (f *Format[T]) Validate(line string) bool {
	toks := strings.Split(line, string(f.Sep))
	if len(toks) != len(f.Fields) {
		return false
	}
	for i, fld := range f.Fields {
		if !fld.ValidateText(toks[i]) {
			return false
		}
	}
	for i, fld := range f.Fields {
		if fld.TextElementCount == nil {
			continue
		}
		declared, err := strconv.Atoi(toks[fld.LengthIdx])
		if err != nil {
			return false
		}
		actual, ok := fld.TextElementCount(toks[i])
		if !ok || declared != actual {
			return false
		}
	}
	return true
}

// Parse validates and parses line into a T. On any failure it returns
// the zero value and false; no partial record is ever exposed.
func (f *Format[T]) Parse(line string) (T, bool) {
	var zero T
	if !f.Validate(line) {
		return zero, false
	}
	return f.ParseUnsafe(line), true
}

// ParseUnsafe parses line without re-validating it, for text that has
// already been through Validate (or is known-good, such as data read
// back from a file this program wrote).
func (f *Format[T]) ParseUnsafe(line string) T {
	toks := strings.Split(line, string(f.Sep))
	var rec T
	for i, fld := range f.Fields {
		// ParseText errors are unreachable once Validate has passed;
		// ParseUnsafe callers are expected to have validated upstream.
		_ = fld.ParseText(toks[i], &rec)
	}
	return rec
}

// Print renders rec in the text encoding, separator-joined in field
// order.
func (f *Format[T]) Print(rec T) string {
	parts := make([]string, len(f.Fields))
	for i, fld := range f.Fields {
		parts[i] = fld.PrintText(&rec)
	}
	return strings.Join(parts, string(f.Sep))
}

// WriteBinary encodes rec as a self-delimiting byte slice in the binary
// encoding described by §6.
func (f *Format[T]) WriteBinary(rec T) []byte {
	var out []byte
	for _, fld := range f.Fields {
		if fld.NoBinary {
			continue
		}
		out = append(out, fld.EncodeBinary(&rec)...)
	}
	return out
}

// ReadBinary decodes a record starting at buf[0] and returns it along
// with the number of bytes consumed.
func (f *Format[T]) ReadBinary(buf []byte) (T, int) {
	var rec T
	lengths := make([]int, len(f.Fields))
	pos := 0
	for i, fld := range f.Fields {
		if fld.NoBinary {
			continue
		}
		size := fld.FixedSize
		if size == 0 {
			size = lengths[fld.LengthIdx]
		}
		fld.DecodeBinary(buf[pos:pos+size], &rec)
		if fld.IsLength {
			lengths[i] = int(beUint32(buf[pos : pos+size]))
		}
		pos += size
	}
	return rec, pos
}

func beUint32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

// --- field constructors -----------------------------------------------

// Int32Field describes a plain non-negative integer member.
func Int32Field[T any](name string, get func(*T) int32, set func(*T, int32)) Field[T] {
	return Field[T]{
		Name:      name,
		FixedSize: 4,
		LengthIdx: -1,
		DecodeBinary: func(buf []byte, rec *T) {
			set(rec, int32(beUint32(buf)))
		},
		EncodeBinary: func(rec *T) []byte {
			b := make([]byte, 4)
			v := get(rec)
			b[0], b[1], b[2], b[3] = byte(v>>24), byte(v>>16), byte(v>>8), byte(v)
			return b
		},
		ValidateText: func(tok string) bool {
			v, err := strconv.ParseInt(tok, 10, 32)
			return err == nil && v >= 0
		},
		ParseText: func(tok string, rec *T) error {
			v, err := strconv.ParseInt(tok, 10, 32)
			if err != nil {
				return err
			}
			set(rec, int32(v))
			return nil
		},
		PrintText: func(rec *T) string { return strconv.Itoa(int(get(rec))) },
	}
}

// LengthField describes an Int32 member whose value is always the byte
// (for binary) or element (for text lists) length of another field,
// computed from that field's current value rather than stored
// independently. count is evaluated against rec, so it stays consistent
// by construction.
func LengthField[T any](name string, count func(rec *T) int) Field[T] {
	return Field[T]{
		Name:      name,
		FixedSize: 4,
		IsLength:  true,
		LengthIdx: -1,
		DecodeBinary: func(buf []byte, rec *T) {
			// The decoded value is picked up by the engine's length
			// table; the field itself carries no independent state.
		},
		EncodeBinary: func(rec *T) []byte {
			b := make([]byte, 4)
			v := uint32(count(rec))
			b[0], b[1], b[2], b[3] = byte(v>>24), byte(v>>16), byte(v>>8), byte(v)
			return b
		},
		ValidateText: func(tok string) bool {
			v, err := strconv.ParseInt(tok, 10, 32)
			return err == nil && v >= 0
		},
		ParseText: func(tok string, rec *T) error {
			// The declared count is cross-checked against the paired
			// member by Format.Validate; nothing to store here.
			_, err := strconv.ParseInt(tok, 10, 32)
			return err
		},
		PrintText: func(rec *T) string { return strconv.Itoa(count(rec)) },
	}
}

// BoolField describes a True/False text member stored as a single byte.
func BoolField[T any](name string, get func(*T) bool, set func(*T, bool)) Field[T] {
	return Field[T]{
		Name:      name,
		FixedSize: 1,
		LengthIdx: -1,
		DecodeBinary: func(buf []byte, rec *T) {
			set(rec, buf[0] != 0)
		},
		EncodeBinary: func(rec *T) []byte {
			if get(rec) {
				return []byte{1}
			}
			return []byte{0}
		},
		ValidateText: func(tok string) bool { return tok == "True" || tok == "False" },
		ParseText: func(tok string, rec *T) error {
			set(rec, tok == "True")
			return nil
		},
		PrintText: func(rec *T) string {
			if get(rec) {
				return "True"
			}
			return "False"
		},
	}
}

// EnumField describes a member drawn from a small closed text
// vocabulary (e.g. account Kind), stored as a single byte index into
// values.
func EnumField[T any, E ~uint8](name string, values []string, get func(*T) E, set func(*T, E)) Field[T] {
	index := func(tok string) (E, bool) {
		for i, v := range values {
			if v == tok {
				return E(i), true
			}
		}
		return 0, false
	}
	return Field[T]{
		Name:      name,
		FixedSize: 1,
		LengthIdx: -1,
		DecodeBinary: func(buf []byte, rec *T) {
			set(rec, E(buf[0]))
		},
		EncodeBinary: func(rec *T) []byte {
			return []byte{byte(get(rec))}
		},
		ValidateText: func(tok string) bool { _, ok := index(tok); return ok },
		ParseText: func(tok string, rec *T) error {
			v, ok := index(tok)
			if !ok {
				return errors.Errorf("format: unknown enum value %q for %s", tok, name)
			}
			set(rec, v)
			return nil
		},
		PrintText: func(rec *T) string {
			v := get(rec)
			if int(v) < 0 || int(v) >= len(values) {
				return ""
			}
			return values[v]
		},
	}
}

// StringField describes a non-empty variable-length text member paired
// with an earlier LengthField at lengthIdx.
func StringField[T any](name string, lengthIdx int, get func(*T) string, set func(*T, string)) Field[T] {
	return stringField[T](name, lengthIdx, get, set, false)
}

// StringNullField is StringField but permits an empty string in the
// text encoding (used for nullable members such as a repository's
// description).
func StringNullField[T any](name string, lengthIdx int, get func(*T) string, set func(*T, string)) Field[T] {
	return stringField[T](name, lengthIdx, get, set, true)
}

func stringField[T any](name string, lengthIdx int, get func(*T) string, set func(*T, string), nullable bool) Field[T] {
	return Field[T]{
		Name:      name,
		FixedSize: 0,
		LengthIdx: lengthIdx,
		DecodeBinary: func(buf []byte, rec *T) {
			set(rec, string(buf))
		},
		EncodeBinary: func(rec *T) []byte {
			return []byte(get(rec))
		},
		ValidateText: func(tok string) bool {
			if nullable {
				return true
			}
			return tok != ""
		},
		ParseText: func(tok string, rec *T) error {
			set(rec, tok)
			return nil
		},
		PrintText:        func(rec *T) string { return get(rec) },
		TextElementCount: func(tok string) (int, bool) { return len(tok), true },
	}
}

// Int32ListField describes a "[a, b, c]" text member and its 4·n-byte
// binary form, paired with an earlier LengthField at lengthIdx.
func Int32ListField[T any](name string, lengthIdx int, get func(*T) []int32, set func(*T, []int32)) Field[T] {
	return Field[T]{
		Name:      name,
		FixedSize: 0,
		LengthIdx: lengthIdx,
		DecodeBinary: func(buf []byte, rec *T) {
			n := len(buf) / 4
			list := make([]int32, n)
			for i := 0; i < n; i++ {
				list[i] = int32(beUint32(buf[i*4 : i*4+4]))
			}
			set(rec, list)
		},
		EncodeBinary: func(rec *T) []byte {
			list := get(rec)
			out := make([]byte, 4*len(list))
			for i, v := range list {
				out[i*4], out[i*4+1], out[i*4+2], out[i*4+3] = byte(v>>24), byte(v>>16), byte(v>>8), byte(v)
			}
			return out
		},
		ValidateText: func(tok string) bool {
			_, err := parseInt32List(tok)
			return err == nil
		},
		ParseText: func(tok string, rec *T) error {
			list, err := parseInt32List(tok)
			if err != nil {
				return err
			}
			set(rec, list)
			return nil
		},
		PrintText: func(rec *T) string { return printInt32List(get(rec)) },
		TextElementCount: func(tok string) (int, bool) {
			list, err := parseInt32List(tok)
			if err != nil {
				return 0, false
			}
			return len(list), true
		},
	}
}

func parseInt32List(tok string) ([]int32, error) {
	tok = strings.TrimSpace(tok)
	if !strings.HasPrefix(tok, "[") || !strings.HasSuffix(tok, "]") {
		return nil, errors.Errorf("format: malformed list %q", tok)
	}
	inner := strings.TrimSpace(tok[1 : len(tok)-1])
	if inner == "" {
		return []int32{}, nil
	}
	parts := strings.Split(inner, ", ")
	out := make([]int32, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseInt(strings.TrimSpace(p), 10, 32)
		if err != nil {
			return nil, errors.Wrapf(err, "format: malformed list element %q", p)
		}
		out[i] = int32(v)
	}
	return out, nil
}

func printInt32List(list []int32) string {
	parts := make([]string, len(list))
	for i, v := range list {
		parts[i] = strconv.Itoa(int(v))
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// DateTimeField describes a "YYYY-MM-DD HH:MM:SS" text member, packed
// to 4 bytes in the binary encoding.
func DateTimeField[T any](name string, get func(*T) DateTime, set func(*T, DateTime)) Field[T] {
	return Field[T]{
		Name:      name,
		FixedSize: 4,
		LengthIdx: -1,
		DecodeBinary: func(buf []byte, rec *T) {
			set(rec, Unpack(beUint32(buf)))
		},
		EncodeBinary: func(rec *T) []byte {
			v, _ := Pack(get(rec))
			b := make([]byte, 4)
			b[0], b[1], b[2], b[3] = byte(v>>24), byte(v>>16), byte(v>>8), byte(v)
			return b
		},
		ValidateText: func(tok string) bool {
			_, err := ParseDateTime(tok)
			return err == nil
		},
		ParseText: func(tok string, rec *T) error {
			d, err := ParseDateTime(tok)
			if err != nil {
				return err
			}
			set(rec, d)
			return nil
		},
		PrintText: func(rec *T) string { return get(rec).String() },
	}
}

// DoubleField describes an 8-byte big-endian IEEE-754 double, used only by the
// persisted static-queries header (§6); it has no text representation.
func DoubleField[T any](name string, get func(*T) float64, set func(*T, float64)) Field[T] {
	return Field[T]{
		Name:      name,
		FixedSize: 8,
		LengthIdx: -1,
		DecodeBinary: func(buf []byte, rec *T) {
			var bits uint64
			for i := 0; i < 8; i++ {
				bits = bits<<8 | uint64(buf[i])
			}
			set(rec, math.Float64frombits(bits))
		},
		EncodeBinary: func(rec *T) []byte {
			bits := math.Float64bits(get(rec))
			b := make([]byte, 8)
			for i := 7; i >= 0; i-- {
				b[i] = byte(bits)
				bits >>= 8
			}
			return b
		},
		ValidateText: func(tok string) bool { return false },
		ParseText:    func(tok string, rec *T) error { return errors.New("format: double has no text form") },
		PrintText:    func(rec *T) string { return "" },
	}
}

// RawStringField describes a non-empty plain text member with no
// paired length column in the text encoding (e.g. a CSV login or
// full-name column). It carries no binary form; use StringField for a
// member that also needs a binary encoding.
func RawStringField[T any](name string, get func(*T) string, set func(*T, string)) Field[T] {
	return Field[T]{
		Name:         name,
		FixedSize:    0,
		LengthIdx:    -1,
		NoBinary:     true,
		DecodeBinary: func(buf []byte, rec *T) {},
		EncodeBinary: func(rec *T) []byte { return nil },
		ValidateText: func(tok string) bool { return tok != "" },
		ParseText: func(tok string, rec *T) error {
			set(rec, tok)
			return nil
		},
		PrintText: func(rec *T) string { return get(rec) },
	}
}

// RawStringNullField is RawStringField but accepts an empty token.
func RawStringNullField[T any](name string, get func(*T) string, set func(*T, string)) Field[T] {
	fld := RawStringField(name, get, set)
	fld.ValidateText = func(tok string) bool { return true }
	return fld
}

// SkipDateTimeField describes a text date-time column that ingestion
// validates but never participates in the binary encoding, such as an
// account's creation-date-time, which no query consumes. The raw token
// round-trips through get/set so print_text(parse(t)) == t still holds;
// only the binary encoding drops it.
func SkipDateTimeField[T any](name string, get func(*T) string, set func(*T, string)) Field[T] {
	return Field[T]{
		Name:         name,
		FixedSize:    0,
		LengthIdx:    -1,
		NoBinary:     true,
		DecodeBinary: func(buf []byte, rec *T) {},
		EncodeBinary: func(rec *T) []byte { return nil },
		ValidateText: func(tok string) bool {
			_, err := ParseDateTime(tok)
			return err == nil
		},
		ParseText: func(tok string, rec *T) error {
			if _, err := ParseDateTime(tok); err != nil {
				return err
			}
			set(rec, tok)
			return nil
		},
		PrintText: func(rec *T) string { return get(rec) },
	}
}

// SkipField describes a text column that ingestion reads for framing
// purposes but never participates in the binary encoding (e.g. an
// account's public-gists count, which no query consumes). The raw
// token round-trips through get/set so print_text(parse(t)) == t still
// holds; only the binary encoding drops it.
func SkipField[T any](name string, get func(*T) string, set func(*T, string)) Field[T] {
	return Field[T]{
		Name:         name,
		FixedSize:    0,
		LengthIdx:    -1,
		NoBinary:     true,
		DecodeBinary: func(buf []byte, rec *T) {},
		EncodeBinary: func(rec *T) []byte { return nil },
		ValidateText: func(tok string) bool { return true },
		ParseText: func(tok string, rec *T) error {
			set(rec, tok)
			return nil
		},
		PrintText: func(rec *T) string { return get(rec) },
	}
}
