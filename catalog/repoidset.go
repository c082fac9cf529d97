package catalog

import (
	"sync"

	"github.com/RoaringBitmap/roaring"
)

// idSet is a lockable membership set of int32 ids, modeled on the
// teacher's tsdb.SeriesIDSet. The builder keeps one for unfiltered
// repository ids (populated by the step-2 pre-scan) and one for known
// account ids (populated while parsing accounts), both consulted while
// filtering commits and repositories in spec.md §4.5.
type idSet struct {
	mu     sync.RWMutex
	bitmap *roaring.Bitmap
}

func newIDSet() *idSet {
	return &idSet{bitmap: roaring.NewBitmap()}
}

func (s *idSet) Add(id int32) {
	s.mu.Lock()
	s.bitmap.Add(uint32(id))
	s.mu.Unlock()
}

func (s *idSet) Contains(id int32) bool {
	s.mu.RLock()
	x := s.bitmap.Contains(uint32(id))
	s.mu.RUnlock()
	return x
}
