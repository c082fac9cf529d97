// Package lazy implements View, a handle onto a binary record resident
// in a backing file that decodes individual members on demand through
// the block cache. A single View can be rebound to scan a whole file of
// fixed-format records without re-allocating per record.
package lazy

import (
	"github.com/ghcatalog/engine/block"
	"github.com/ghcatalog/engine/format"
)

// View is a lazy handle onto one binary record of type T. Members are
// decoded only when Get or Mutate touches them; PositionAfter
// materializes every member's offset, which is the cheapest way to
// advance past a record whose size is not yet known.
type View[T any] struct {
	format *format.Format[T]
	cache  *block.Cache
	file   *block.File
	base   int64

	rec     T
	loaded  []bool
	altered []bool
	offsets []int64 // relative to base; -1 until computed
	lengths []int   // decoded byte-length of each variable member, valid once loaded[lengthIdx]
}

// New creates a View bound to fmt's members, reading and writing through
// cache.
func New[T any](fmt *format.Format[T], cache *block.Cache) *View[T] {
	n := len(fmt.Fields)
	v := &View[T]{
		format:  fmt,
		cache:   cache,
		loaded:  make([]bool, n),
		altered: make([]bool, n),
		offsets: make([]int64, n),
		lengths: make([]int, n),
	}
	v.resetOffsets()
	return v
}

func (v *View[T]) resetOffsets() {
	for i := range v.offsets {
		v.offsets[i] = -1
		v.loaded[i] = false
		v.altered[i] = false
	}
}

// Rebind releases any loaded members and moves the view to address base
// in file, ready to decode a new record.
func (v *View[T]) Rebind(file *block.File, base int64) {
	v.file = file
	v.base = base
	var zero T
	v.rec = zero
	v.resetOffsets()
}

// offsetFor returns member i's byte offset relative to base, ensuring
// every preceding member has been loaded (so its binary size is known).
func (v *View[T]) offsetFor(i int) (int64, error) {
	if v.offsets[i] >= 0 {
		return v.offsets[i], nil
	}
	if i == 0 {
		v.offsets[0] = 0
		return 0, nil
	}
	prevOff, err := v.offsetFor(i - 1)
	if err != nil {
		return 0, err
	}
	if err := v.ensure(i - 1); err != nil {
		return 0, err
	}
	off := prevOff + int64(v.sizeOf(i-1))
	v.offsets[i] = off
	return off, nil
}

func (v *View[T]) sizeOf(i int) int {
	fld := v.format.Fields[i]
	if fld.FixedSize > 0 {
		return fld.FixedSize
	}
	return v.lengths[fld.LengthIdx]
}

// ensure loads member i if it has not already been loaded, recursively
// ensuring every preceding member first so offsets and lengths line up.
func (v *View[T]) ensure(i int) error {
	if v.loaded[i] {
		return nil
	}
	off, err := v.offsetFor(i)
	if err != nil {
		return err
	}
	fld := v.format.Fields[i]
	size := fld.FixedSize
	if size == 0 {
		size = v.lengths[fld.LengthIdx]
	}
	buf := make([]byte, size)
	if err := v.cache.ReadBytes(v.file, v.base+off, buf); err != nil {
		return err
	}
	fld.DecodeBinary(buf, &v.rec)
	if fld.IsLength && size == 4 {
		v.lengths[i] = int(buf[0])<<24 | int(buf[1])<<16 | int(buf[2])<<8 | int(buf[3])
	}
	v.loaded[i] = true
	return nil
}

// Get decodes member i if necessary and returns the current record,
// whose field the caller should read immediately (the returned value
// is a snapshot; further Get/Mutate calls may change other members).
func (v *View[T]) Get(i int) (T, error) {
	if err := v.ensure(i); err != nil {
		var zero T
		return zero, err
	}
	return v.rec, nil
}

// Mutate marks member i as loaded and altered and lets fn set its new
// value directly on the record. The caller must assign through fn
// before the next FlushToFile.
func (v *View[T]) Mutate(i int, fn func(rec *T)) error {
	if _, err := v.offsetFor(i); err != nil {
		return err
	}
	fn(&v.rec)
	v.loaded[i] = true
	v.altered[i] = true
	return nil
}

// FlushToFile writes every altered member back to its offset through
// the cache.
func (v *View[T]) FlushToFile() error {
	for i, fld := range v.format.Fields {
		if !v.altered[i] {
			continue
		}
		off, err := v.offsetFor(i)
		if err != nil {
			return err
		}
		if err := v.cache.SetBytes(v.file, v.base+off, fld.EncodeBinary(&v.rec)); err != nil {
			return err
		}
		v.altered[i] = false
	}
	return nil
}

// PositionAfter materializes every member's offset and returns the
// absolute file position just past this record, the cheapest way to
// advance a scan without decoding members the caller does not need.
func (v *View[T]) PositionAfter() (int64, error) {
	last := len(v.format.Fields) - 1
	if last < 0 {
		return v.base, nil
	}
	off, err := v.offsetFor(last)
	if err != nil {
		return 0, err
	}
	if err := v.ensure(last); err != nil {
		return 0, err
	}
	return v.base + off + int64(v.sizeOf(last)), nil
}
