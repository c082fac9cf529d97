package index

import (
	"sort"

	"github.com/pkg/errors"
)

// Group assumes the index has already been Sort()-ed. It traverses the
// sorted entries and, per spec.md §4.4, writes a posting list per
// distinct key to valuesPath (a 32-bit count followed by that many
// 64-bit values) and rewrites the index file to hold exactly one entry
// per distinct key: (key, offset-into-valuesPath). When dedup is set,
// each posting list's values are sorted and deduplicated before being
// written, matching the collaborators index's semantics.
//
// A descending key observed mid-scan means Sort's invariant was
// violated (a programmer error per spec.md §4.4/§7); Group detects it
// and aborts before any output is written, leaving the on-disk index
// file untouched.
func (ix *Indexer) Group(valuesPath string, dedup bool) error {
	if !ix.sorted {
		return errors.New("index: Group called on an unsorted indexer")
	}
	if ix.grouped {
		return nil
	}

	keys, groups, err := ix.scanGroups(dedup)
	if err != nil {
		return err
	}

	vf, err := ix.cache.Open(valuesPath)
	if err != nil {
		return err
	}
	if err := ix.cache.Truncate(vf, 0); err != nil {
		return err
	}

	offsets := make([]uint64, len(groups))
	pos := int64(0)
	for i, g := range groups {
		offsets[i] = uint64(pos)
		hdr := make([]byte, groupHeaderSize)
		putUint32(hdr, uint32(len(g)))
		if err := ix.cache.SetBytes(vf, pos, hdr); err != nil {
			return err
		}
		pos += groupHeaderSize
		buf := make([]byte, 8*len(g))
		for j, v := range g {
			putUint64(buf[j*8:j*8+8], v)
		}
		if err := ix.cache.SetBytes(vf, pos, buf); err != nil {
			return err
		}
		pos += int64(len(buf))
	}
	if err := ix.cache.Flush(vf); err != nil {
		return err
	}

	if err := ix.cache.Truncate(ix.indexFile, 0); err != nil {
		return err
	}
	buf := make([]byte, entrySize)
	for i, k := range keys {
		putUint64(buf[0:8], k)
		putUint64(buf[8:16], offsets[i])
		if err := ix.cache.SetBytes(ix.indexFile, int64(i)*entrySize, buf); err != nil {
			return err
		}
	}
	if err := ix.cache.Flush(ix.indexFile); err != nil {
		return err
	}

	ix.valuesFile = vf
	ix.count = len(keys)
	ix.grouped = true
	return nil
}

// scanGroups walks the sorted entries once, returning the distinct keys
// in order and, per key, the values that shared it.
func (ix *Indexer) scanGroups(dedup bool) ([]uint64, [][]uint64, error) {
	var keys []uint64
	var groups [][]uint64

	var prevKey uint64
	have := false
	for i := 0; i < ix.count; i++ {
		k, v, err := ix.entryAt(i)
		if err != nil {
			return nil, nil, err
		}
		if have && ix.cmp(ix.cache, ix.keysFile, k, prevKey) < 0 {
			return nil, nil, errors.Errorf("index: Group observed a descending key at ordinal %d; the sort invariant was violated", i)
		}
		if !have || ix.cmp(ix.cache, ix.keysFile, k, prevKey) != 0 {
			keys = append(keys, k)
			groups = append(groups, nil)
			prevKey = k
			have = true
		}
		last := len(groups) - 1
		groups[last] = append(groups[last], v)
	}

	if dedup {
		for i, g := range groups {
			groups[i] = dedupUint64(g)
		}
	}
	return keys, groups, nil
}

func dedupUint64(vals []uint64) []uint64 {
	sorted := append([]uint64(nil), vals...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	out := sorted[:0]
	for i, v := range sorted {
		if i == 0 || v != sorted[i-1] {
			out = append(out, v)
		}
	}
	return out
}
