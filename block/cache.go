// Package block implements a fixed-capacity page cache shared by every
// component that touches the on-disk catalogue: the ingestion codec, the
// lazy record views and the external-memory indexer all read and write
// through a *Cache rather than hitting files directly.
//
// A Cache holds a fixed number of page frames, each covering a PageSize
// aligned window of exactly one backing file. Eviction is LRU with
// write-back; a frame that is dirty when evicted is written to its old
// file/offset before it is repurposed.
package block

import (
	"container/list"
	"io"
	"os"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// PageSize is the aligned window size of a single cache frame.
const PageSize = 1024

// File is an opaque, cache-registered handle to a backing file. Every
// operation on a Cache takes a *File rather than a path or *os.File so
// that frames can be identified by a cheap integer rather than a string.
type File struct {
	id   uint64
	path string
	fd   *os.File

	mu     sync.Mutex
	closed bool
	size   int64 // logical length, including bytes only resident in dirty frames
}

// Path returns the filesystem path backing f.
func (f *File) Path() string { return f.path }

// growTo extends f's logical size if end exceeds the current watermark.
// Called whenever a write lands past the previously known end of file, so
// that Cache.Size reflects appends still resident only in dirty frames.
func (f *File) growTo(end int64) {
	f.mu.Lock()
	if end > f.size {
		f.size = end
	}
	f.mu.Unlock()
}

var nextFileID uint64

type pageKey struct {
	file   uint64
	offset int64
}

type frame struct {
	mu sync.Mutex

	file   *File
	offset int64 // aligned to PageSize
	loaded bool
	dirty  bool
	data   [PageSize]byte
}

// Cache is a fixed-size LRU page cache with write-back.
//
// Locking order: the global mutex guards the LRU list and the index map;
// a frame's own mutex guards its data, loaded and dirty flags. Locks are
// taken global first, frame second, never the reverse. The eviction paths
// (getFrame's miss path and evictMatching) briefly lock a frame while
// still holding the global lock, to read or reset its identity and flags;
// disk reads and writes happen with only the frame lock held, never while
// the global lock is held.
type Cache struct {
	mu      sync.Mutex
	lru     *list.List // list of *frame, front = most recently used
	elems   map[*frame]*list.Element
	byKey   map[pageKey]*frame
	logger  *zap.Logger

	hits   int64
	misses int64
}

// New creates a Cache with the given number of page frames. capacity must
// be at least 1.
func New(capacity int, logger *zap.Logger) *Cache {
	if capacity < 1 {
		capacity = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Cache{
		lru:    list.New(),
		elems:  make(map[*frame]*list.Element, capacity),
		byKey:  make(map[pageKey]*frame, capacity),
		logger: logger.With(zap.String("component", "block.Cache")),
	}
	for i := 0; i < capacity; i++ {
		fr := &frame{}
		el := c.lru.PushBack(fr)
		c.elems[fr] = el
	}
	return c
}

// WithLogger replaces the cache's logger with log, tagged with the
// block.Cache component name.
func (c *Cache) WithLogger(log *zap.Logger) {
	c.logger = log.With(zap.String("component", "block.Cache"))
}

// Open registers path with the cache and returns a handle. The file is
// created if it does not exist.
func (c *Cache) Open(path string) (*File, error) {
	fd, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, errors.Wrapf(err, "block: open %s", path)
	}
	info, err := fd.Stat()
	if err != nil {
		return nil, errors.Wrapf(err, "block: stat %s", path)
	}
	return &File{
		id:   atomic.AddUint64(&nextFileID, 1),
		path: path,
		fd:   fd,
		size: info.Size(),
	}, nil
}

// Size returns f's logical length: the greater of its on-disk size and
// the highest offset written through the cache so far, so that appends
// still resident only in dirty frames are visible to callers (such as
// the indexer) that size the file to learn an element count.
func (c *Cache) Size(f *File) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.size
}

// Close flushes any dirty frames belonging to f, evicts them from the
// cache and closes the underlying descriptor.
func (c *Cache) Close(f *File) error {
	if err := c.Clear(f); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil
	}
	f.closed = true
	return errors.Wrapf(f.fd.Close(), "block: close %s", f.path)
}

// HitRate returns the fraction of getFrame calls that were cache hits,
// for diagnostics only.
func (c *Cache) HitRate() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := c.hits + c.misses
	if total == 0 {
		return 0
	}
	return float64(c.hits) / float64(total)
}

// getFrame returns the frame covering offset in f, promoting it to MRU.
// On a miss the LRU frame is evicted (writing it back if dirty) and
// repurposed for the requested page.
func (c *Cache) getFrame(f *File, offset int64) (*frame, error) {
	aligned := offset - offset%PageSize
	key := pageKey{file: f.id, offset: aligned}

	c.mu.Lock()
	fr, hit := c.byKey[key]

	var oldFile *File
	var oldOffset int64
	var wasDirty bool

	if hit {
		c.hits++
	} else {
		c.misses++
		el := c.lru.Back()
		fr = el.Value.(*frame)

		fr.mu.Lock()
		oldFile, oldOffset, wasDirty = fr.file, fr.offset, fr.dirty
		fr.mu.Unlock()

		if fr.loaded {
			delete(c.byKey, pageKey{file: oldFileID(oldFile), offset: oldOffset})
		}
		c.byKey[key] = fr
	}

	el := c.elems[fr]
	c.lru.MoveToFront(el)
	c.mu.Unlock()

	fr.mu.Lock()
	defer fr.mu.Unlock()

	if !hit {
		fr.file = f
		fr.offset = aligned
		fr.loaded = false
	}

	if wasDirty && oldFile != nil {
		if err := writeFrame(oldFile, oldOffset, fr.data[:]); err != nil {
			c.logger.Warn("write-back failed, frame stays dirty", zap.Error(err), zap.String("path", oldFile.path))
			fr.dirty = true
		} else {
			fr.dirty = false
		}
	}

	if !fr.loaded || fr.file != f || fr.offset != aligned {
		fr.file = f
		fr.offset = aligned
		if err := readFrame(f, aligned, fr.data[:]); err != nil {
			return nil, err
		}
		fr.loaded = true
		fr.dirty = false
	}

	return fr, nil
}

func oldFileID(f *File) uint64 {
	if f == nil {
		return 0
	}
	return f.id
}

func readFrame(f *File, offset int64, buf []byte) error {
	n, err := f.fd.ReadAt(buf, offset)
	if err != nil && err != io.EOF {
		return errors.Wrapf(err, "block: read %s @%d", f.path, offset)
	}
	for i := n; i < len(buf); i++ {
		buf[i] = 0
	}
	return nil
}

func writeFrame(f *File, offset int64, buf []byte) error {
	f.mu.Lock()
	closed := f.closed
	size := f.size
	f.mu.Unlock()
	if closed {
		return errors.Errorf("block: write-back to closed file %s", f.path)
	}
	// Only the part of the page inside the logical length is written, so
	// write-back never pads a file out to a page boundary.
	if end := size - offset; end < int64(len(buf)) {
		if end <= 0 {
			return nil
		}
		buf = buf[:end]
	}
	n, err := f.fd.WriteAt(buf, offset)
	if err != nil {
		return errors.Wrapf(err, "block: write %s @%d", f.path, offset)
	}
	if n < len(buf) {
		return errors.Errorf("block: short write to %s @%d (%d/%d bytes)", f.path, offset, n, len(buf))
	}
	return nil
}

// ReadLine copies bytes starting at offset into buf until the first
// newline, the first zero byte, or len(buf)-1 bytes have been written,
// whichever comes first. A single trailing carriage return before the
// newline is dropped. buf receives a terminating zero byte unless the
// buffer was exhausted. The number of bytes written, excluding the
// terminator, is returned.
func (c *Cache) ReadLine(f *File, offset int64, buf []byte) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}
	fr, err := c.getFrame(f, offset)
	if err != nil {
		return 0, err
	}

	fr.mu.Lock()
	linePos := int(offset % PageSize)
	avail := PageSize - linePos
	page := fr.data[linePos:]
	fr.mu.Unlock()

	max := len(buf) - 1
	n := 0
	for n < avail && n < max {
		b := page[n]
		if b == '\n' || b == 0 {
			break
		}
		buf[n] = b
		n++
	}

	switch {
	case n < avail && n < max && (page[n] == '\n' || page[n] == 0):
		if n > 0 && buf[n-1] == '\r' && page[n] == '\n' {
			n--
		}
		buf[n] = 0
		return n, nil
	case n == avail && n < max:
		more, err := c.ReadLine(f, offset+int64(avail), buf[avail:])
		if err != nil {
			return 0, err
		}
		return avail + more, nil
	default:
		// Buffer exhausted before a terminator was found.
		return n, nil
	}
}

// ReadBytes copies exactly len(buf) bytes starting at offset, spanning as
// many pages as necessary. Bytes past end of file read as zero.
func (c *Cache) ReadBytes(f *File, offset int64, buf []byte) error {
	for len(buf) > 0 {
		fr, err := c.getFrame(f, offset)
		if err != nil {
			return err
		}
		linePos := int(offset % PageSize)
		n := PageSize - linePos
		if n > len(buf) {
			n = len(buf)
		}
		fr.mu.Lock()
		copy(buf[:n], fr.data[linePos:linePos+n])
		fr.mu.Unlock()

		buf = buf[n:]
		offset += int64(n)
	}
	return nil
}

// GetUint32 reads a big-endian uint32 at offset.
func (c *Cache) GetUint32(f *File, offset int64) (uint32, error) {
	var buf [4]byte
	if err := c.ReadBytes(f, offset, buf[:]); err != nil {
		return 0, err
	}
	return beUint32(buf[:]), nil
}

// GetUint64 reads a big-endian uint64 at offset (used for index entries
// and record-file positions).
func (c *Cache) GetUint64(f *File, offset int64) (uint64, error) {
	var buf [8]byte
	if err := c.ReadBytes(f, offset, buf[:]); err != nil {
		return 0, err
	}
	return beUint64(buf[:]), nil
}

// SetBytes writes len(buf) bytes at offset, marking every touched frame
// dirty. No fsync is issued; durability is established by Flush.
func (c *Cache) SetBytes(f *File, offset int64, buf []byte) error {
	end := offset + int64(len(buf))
	f.growTo(end)
	for len(buf) > 0 {
		fr, err := c.getFrame(f, offset)
		if err != nil {
			return err
		}
		linePos := int(offset % PageSize)
		n := PageSize - linePos
		if n > len(buf) {
			n = len(buf)
		}
		fr.mu.Lock()
		copy(fr.data[linePos:linePos+n], buf[:n])
		fr.dirty = true
		fr.mu.Unlock()

		buf = buf[n:]
		offset += int64(n)
	}
	return nil
}

// Truncate resets f's logical length to n, for callers (such as the
// indexer's Group and Sort) that rewrite a file shorter than its
// previous content. Every frame of f is evicted without being written
// back, so pending writes below n are discarded as well as those in the
// tail.
func (c *Cache) Truncate(f *File, n int64) error {
	if err := c.Refresh(f); err != nil {
		return err
	}
	f.mu.Lock()
	f.size = n
	f.mu.Unlock()
	return errors.Wrapf(f.fd.Truncate(n), "block: truncate %s", f.path)
}

// SetUint32 writes v as a big-endian uint32 at offset.
func (c *Cache) SetUint32(f *File, offset int64, v uint32) error {
	var buf [4]byte
	putBeUint32(buf[:], v)
	return c.SetBytes(f, offset, buf[:])
}

// SetUint64 writes v as a big-endian uint64 at offset.
func (c *Cache) SetUint64(f *File, offset int64, v uint64) error {
	var buf [8]byte
	putBeUint64(buf[:], v)
	return c.SetBytes(f, offset, buf[:])
}

// Flush writes back every dirty frame belonging to f.
func (c *Cache) Flush(f *File) error {
	return c.forEachMatching(f, func(fr *frame) error {
		return c.flushFrame(fr)
	})
}

// FlushAll writes back every dirty frame in the cache.
func (c *Cache) FlushAll() error {
	return c.forEachMatching(nil, func(fr *frame) error {
		return c.flushFrame(fr)
	})
}

func (c *Cache) flushFrame(fr *frame) error {
	fr.mu.Lock()
	defer fr.mu.Unlock()
	if !fr.dirty {
		return nil
	}
	if err := writeFrame(fr.file, fr.offset, fr.data[:]); err != nil {
		c.logger.Warn("flush failed, frame stays dirty", zap.Error(err))
		return err
	}
	fr.dirty = false
	return nil
}

// Refresh evicts every frame belonging to f, discarding any pending
// writes without flushing them.
func (c *Cache) Refresh(f *File) error {
	return c.evictMatching(f, false)
}

// RefreshAll evicts every frame in the cache, discarding pending writes.
func (c *Cache) RefreshAll() error {
	return c.evictMatching(nil, false)
}

// Clear flushes and then evicts every frame belonging to f.
func (c *Cache) Clear(f *File) error {
	return c.evictMatching(f, true)
}

// ClearAll flushes and then evicts every frame in the cache.
func (c *Cache) ClearAll() error {
	return c.evictMatching(nil, true)
}

func (c *Cache) forEachMatching(f *File, fn func(*frame) error) error {
	c.mu.Lock()
	var frames []*frame
	for key, fr := range c.byKey {
		if f == nil || key.file == f.id {
			frames = append(frames, fr)
		}
	}
	c.mu.Unlock()

	var firstErr error
	for _, fr := range frames {
		if err := fn(fr); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (c *Cache) evictMatching(f *File, flush bool) error {
	var firstErr error
	if flush {
		firstErr = c.forEachMatching(f, c.flushFrame)
	}

	c.mu.Lock()
	for key, fr := range c.byKey {
		if f != nil && key.file != f.id {
			continue
		}
		delete(c.byKey, key)
		fr.mu.Lock()
		fr.loaded = false
		fr.dirty = false
		fr.mu.Unlock()
	}
	c.mu.Unlock()

	return firstErr
}
