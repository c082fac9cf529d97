// Package index implements the external-memory indexer described in
// §4.4: a file of fixed-size (key, value) entries that can be appended
// to unsorted, sorted with an external k-way merge, optionally grouped
// into per-key posting lists, and then searched by binary search or
// scanned in key order — entirely through the block cache.
package index

import (
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/ghcatalog/engine/block"
)

// entrySize is the on-disk width of one (key, value) pair: two
// big-endian 64-bit words, per §6.
const entrySize = 16

// groupHeaderSize is the width of a posting list's element count.
const groupHeaderSize = 4

// Comparator orders two key words. For an embedded-key index the words
// are the keys themselves; for an indirect-key index the words are
// offsets into keysFile and the comparator must resolve them through
// cache. cache and keysFile are nil-safe: an embedded comparator ignores
// them.
type Comparator func(cache *block.Cache, keysFile *block.File, a, b uint64) int

// CompareEmbedded orders two embedded key words as plain unsigned
// integers (account ids, repo ids, packed date-times).
func CompareEmbedded(_ *block.Cache, _ *block.File, a, b uint64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// Indexer is an external-memory (key, value) index backed by an index
// file, an optional keys file (for indirect keys) and, once grouped, a
// values file of posting lists.
type Indexer struct {
	cache *block.Cache

	indexFile  *block.File
	keysFile   *block.File // nil for embedded keys
	valuesFile *block.File // nil until Group is called

	cmp         Comparator
	logger      *zap.Logger
	sorted      bool
	grouped     bool
	count       int // element count; distinct-key count once grouped
	runCapacity int // entries per external sort run; 0 means defaultRunCapacity
}

// Sorted reports whether Sort has been called.
func (ix *Indexer) Sorted() bool { return ix.sorted }

// Grouped reports whether Group has been called.
func (ix *Indexer) Grouped() bool { return ix.grouped }

// Open creates or reopens an indexer backed by indexPath. keysFile may
// be nil for an embedded-key index; cmp may be nil to default to
// CompareEmbedded.
func Open(cache *block.Cache, indexPath string, keysFile *block.File, cmp Comparator, logger *zap.Logger) (*Indexer, error) {
	f, err := cache.Open(indexPath)
	if err != nil {
		return nil, errors.Wrapf(err, "index: open %s", indexPath)
	}
	if cmp == nil {
		cmp = CompareEmbedded
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	ix := &Indexer{
		cache:     cache,
		indexFile: f,
		keysFile:  keysFile,
		cmp:       cmp,
		logger:    logger.With(zap.String("component", "index.Indexer"), zap.String("path", indexPath)),
	}
	n, err := fileEntryCount(cache, f)
	if err != nil {
		return nil, err
	}
	ix.count = n
	return ix, nil
}

// Reopen marks ix as already sorted (and, if valuesPath is non-empty,
// already grouped) from a prior build, so that catalog.Open's
// idempotent-load path (spec.md §4.5) need not re-run Sort/Group
// against index files it trusts from disk.
func (ix *Indexer) Reopen(valuesPath string) error {
	ix.sorted = true
	if valuesPath == "" {
		return nil
	}
	vf, err := ix.cache.Open(valuesPath)
	if err != nil {
		return err
	}
	ix.valuesFile = vf
	ix.grouped = true
	return nil
}

func fileEntryCount(cache *block.Cache, f *block.File) (int, error) {
	return int(cache.Size(f) / entrySize), nil
}

// Insert appends a (key, value) entry to the unsorted index file.
// Callers must not call Insert concurrently on the same Indexer (§5).
func (ix *Indexer) Insert(key, value uint64) error {
	if ix.sorted {
		return errors.New("index: cannot insert after sort; build the index before sorting")
	}
	buf := make([]byte, entrySize)
	putUint64(buf[0:8], key)
	putUint64(buf[8:16], value)
	off := int64(ix.count) * entrySize
	if err := ix.cache.SetBytes(ix.indexFile, off, buf); err != nil {
		return err
	}
	ix.count++
	return nil
}

// ElementCount returns the number of entries, or after Group, the
// number of distinct keys.
func (ix *Indexer) ElementCount() int { return ix.count }

func (ix *Indexer) entryAt(ord int) (uint64, uint64, error) {
	if ord < 0 || ord >= ix.count {
		return 0, 0, errors.Errorf("index: ordinal %d out of range [0,%d)", ord, ix.count)
	}
	buf := make([]byte, entrySize)
	if err := ix.cache.ReadBytes(ix.indexFile, int64(ord)*entrySize, buf); err != nil {
		return 0, 0, err
	}
	return getUint64(buf[0:8]), getUint64(buf[8:16]), nil
}

// KeyAt returns the embedded (or indirect) key word at ordinal ord.
func (ix *Indexer) KeyAt(ord int) (uint64, error) {
	k, _, err := ix.entryAt(ord)
	return k, err
}

// ValueAt returns the embedded value word at ordinal ord.
func (ix *Indexer) ValueAt(ord int) (uint64, error) {
	_, v, err := ix.entryAt(ord)
	return v, err
}

func (ix *Indexer) compareKeyAt(ord int, key uint64) int {
	k, _, err := ix.entryAt(ord)
	if err != nil {
		return 0
	}
	return ix.cmp(ix.cache, ix.keysFile, k, key)
}

// LowerBound returns the smallest ordinal i whose key is >= key, or
// ElementCount() if none. The index must be sorted.
func (ix *Indexer) LowerBound(key uint64) int {
	lo, hi := 0, ix.count
	for lo < hi {
		mid := (lo + hi) / 2
		if ix.compareKeyAt(mid, key) < 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

// FindKey binary searches for key and returns its ordinal, or false if
// not present. The index must be sorted.
func (ix *Indexer) FindKey(key uint64) (int, bool) {
	i := ix.LowerBound(key)
	if i < ix.count && ix.compareKeyAt(i, key) == 0 {
		return i, true
	}
	return 0, false
}

// GroupSize returns the number of elements in the posting list at
// groupOffset (a value returned by FindKey/ValueAt on a grouped index).
func (ix *Indexer) GroupSize(groupOffset uint64) (int, error) {
	if !ix.grouped {
		return 0, errors.New("index: GroupSize called on an ungrouped indexer")
	}
	buf := make([]byte, groupHeaderSize)
	if err := ix.cache.ReadBytes(ix.valuesFile, int64(groupOffset), buf); err != nil {
		return 0, err
	}
	return int(getUint32(buf)), nil
}

// GroupElem returns the i'th element of the posting list at groupOffset.
func (ix *Indexer) GroupElem(groupOffset uint64, i int) (uint64, error) {
	buf := make([]byte, 8)
	off := int64(groupOffset) + groupHeaderSize + int64(i)*8
	if err := ix.cache.ReadBytes(ix.valuesFile, off, buf); err != nil {
		return 0, err
	}
	return getUint64(buf), nil
}

// Close releases the indexer's file handles, flushing any pending
// writes first.
func (ix *Indexer) Close() error {
	var err error
	if e := ix.cache.Close(ix.indexFile); e != nil {
		err = e
	}
	if ix.valuesFile != nil {
		if e := ix.cache.Close(ix.valuesFile); e != nil && err == nil {
			err = e
		}
	}
	return err
}
