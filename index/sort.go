package index

import (
	"container/heap"
	"fmt"
	"os"
	"sort"

	"github.com/ghcatalog/engine/block"
)

// defaultRunCapacity bounds an in-memory sort run to roughly 128 MiB of
// 16-byte entries, per spec.md §4.4.
const defaultRunCapacity = 128 * 1024 * 1024 / entrySize

// SetRunCapacity overrides the number of entries buffered per external
// sort run. Tests use a small value to exercise the multi-run merge path
// without generating gigabytes of fixtures.
func (ix *Indexer) SetRunCapacity(n int) {
	if n < 1 {
		n = 1
	}
	ix.runCapacity = n
}

func (ix *Indexer) effectiveRunCapacity() int {
	if ix.runCapacity > 0 {
		return ix.runCapacity
	}
	return defaultRunCapacity
}

type sortEntry struct {
	key, value uint64
}

// Sort performs the external-memory k-way merge sort described in
// spec.md §4.4: the unsorted index file is partitioned into in-memory
// runs no larger than effectiveRunCapacity entries, each sorted and
// spilled to a scratch file, then merged via a container/heap min-heap
// keyed by ix.cmp (grounded on the teacher's heap-based result-set
// merge in storage/reads/merge.go). The index file's cached pages are
// invalidated once the merged output has replaced it.
func (ix *Indexer) Sort() error {
	if ix.sorted {
		return nil
	}
	if ix.count == 0 {
		ix.sorted = true
		return nil
	}

	runs, err := ix.buildRuns()
	if err != nil {
		return err
	}
	defer func() {
		for _, r := range runs {
			ix.cache.Close(r.file)
			os.Remove(r.file.Path())
		}
	}()

	if err := ix.mergeRuns(runs); err != nil {
		return err
	}

	if err := ix.cache.Refresh(ix.indexFile); err != nil {
		return err
	}
	ix.sorted = true
	return nil
}

// buildRuns reads the unsorted index file in effectiveRunCapacity-sized
// chunks, sorts each chunk in memory against ix.cmp, and spills it to
// its own scratch file through the cache.
func (ix *Indexer) buildRuns() ([]*sortRun, error) {
	capacity := ix.effectiveRunCapacity()
	var runs []*sortRun
	remaining := ix.count
	base := 0
	runNo := 0

	for remaining > 0 {
		n := capacity
		if n > remaining {
			n = remaining
		}
		entries := make([]sortEntry, n)
		for i := 0; i < n; i++ {
			k, v, err := ix.entryAt(base + i)
			if err != nil {
				return nil, err
			}
			entries[i] = sortEntry{k, v}
		}

		sort.Slice(entries, func(i, j int) bool {
			return ix.cmp(ix.cache, ix.keysFile, entries[i].key, entries[j].key) < 0
		})

		path := fmt.Sprintf("%s.run%d", ix.indexFile.Path(), runNo)
		rf, err := ix.cache.Open(path)
		if err != nil {
			return nil, err
		}
		buf := make([]byte, entrySize)
		for i, e := range entries {
			putUint64(buf[0:8], e.key)
			putUint64(buf[8:16], e.value)
			if err := ix.cache.SetBytes(rf, int64(i)*entrySize, buf); err != nil {
				return nil, err
			}
		}
		if err := ix.cache.Flush(rf); err != nil {
			return nil, err
		}
		runs = append(runs, &sortRun{file: rf, count: n})

		base += n
		remaining -= n
		runNo++
	}
	return runs, nil
}

type sortRun struct {
	file  *block.File
	count int
	pos   int
}

func (r *sortRun) done() bool { return r.pos >= r.count }

func (ix *Indexer) readRunEntry(r *sortRun) (sortEntry, error) {
	buf := make([]byte, entrySize)
	if err := ix.cache.ReadBytes(r.file, int64(r.pos)*entrySize, buf); err != nil {
		return sortEntry{}, err
	}
	return sortEntry{getUint64(buf[0:8]), getUint64(buf[8:16])}, nil
}

// runHeap is a container/heap min-heap over run heads, in the shape of
// the teacher's resultSetHeap (storage/reads/merge.go).
type runHeap struct {
	ix    *Indexer
	runs  []*sortRun
	heads []sortEntry
}

func (h *runHeap) Len() int { return len(h.runs) }
func (h *runHeap) Less(i, j int) bool {
	return h.ix.cmp(h.ix.cache, h.ix.keysFile, h.heads[i].key, h.heads[j].key) < 0
}
func (h *runHeap) Swap(i, j int) {
	h.runs[i], h.runs[j] = h.runs[j], h.runs[i]
	h.heads[i], h.heads[j] = h.heads[j], h.heads[i]
}
func (h *runHeap) Push(x interface{}) { panic("index: runHeap.Push not supported") }
func (h *runHeap) Pop() interface{} {
	n := len(h.runs)
	r := h.runs[n-1]
	h.runs = h.runs[:n-1]
	h.heads = h.heads[:n-1]
	return r
}

func (ix *Indexer) mergeRuns(runs []*sortRun) error {
	h := &runHeap{ix: ix}
	for _, r := range runs {
		e, err := ix.readRunEntry(r)
		if err != nil {
			return err
		}
		r.pos++
		h.runs = append(h.runs, r)
		h.heads = append(h.heads, e)
	}
	heap.Init(h)

	if err := ix.cache.Truncate(ix.indexFile, 0); err != nil {
		return err
	}

	out := 0
	buf := make([]byte, entrySize)
	for h.Len() > 0 {
		e := h.heads[0]
		putUint64(buf[0:8], e.key)
		putUint64(buf[8:16], e.value)
		if err := ix.cache.SetBytes(ix.indexFile, int64(out)*entrySize, buf); err != nil {
			return err
		}
		out++

		r := h.runs[0]
		if r.done() {
			heap.Pop(h)
			continue
		}
		next, err := ix.readRunEntry(r)
		if err != nil {
			return err
		}
		r.pos++
		h.heads[0] = next
		heap.Fix(h, 0)
	}
	return ix.cache.Flush(ix.indexFile)
}
