package index_test

import (
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ghcatalog/engine/block"
	"github.com/ghcatalog/engine/index"
)

func newTestIndexer(t *testing.T, cache *block.Cache, name string) *index.Indexer {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	ix, err := index.Open(cache, path, nil, index.CompareEmbedded, nil)
	require.NoError(t, err)
	return ix
}

// TestSortAndFindKey exercises the external k-way merge across multiple
// runs, then checks that FindKey/LowerBound agree with a sorted model.
func TestSortAndFindKey(t *testing.T) {
	cache := block.New(256, nil)
	ix := newTestIndexer(t, cache, "idx.indx")
	ix.SetRunCapacity(8) // force several small runs through the merge path

	rng := rand.New(rand.NewSource(1))
	want := make(map[uint64]uint64)
	for i := 0; i < 100; i++ {
		key := uint64(rng.Intn(500))
		value := uint64(i)
		require.NoError(t, ix.Insert(key, value))
		want[key] = value // only the key set is checked below
	}

	require.NoError(t, ix.Sort())
	require.True(t, ix.Sorted())
	require.Equal(t, 100, ix.ElementCount())

	var prev uint64
	for i := 0; i < ix.ElementCount(); i++ {
		k, err := ix.KeyAt(i)
		require.NoError(t, err)
		if i > 0 {
			require.LessOrEqual(t, prev, k, "index must be sorted ascending")
		}
		prev = k
	}

	for key := range want {
		ord, ok := ix.FindKey(key)
		require.True(t, ok)
		k, err := ix.KeyAt(ord)
		require.NoError(t, err)
		require.Equal(t, key, k)
	}

	_, ok := ix.FindKey(999999)
	require.False(t, ok)
}

// TestInsertAfterSortRejected enforces that the index is insert-only
// until sorted, per the build/query separation.
func TestInsertAfterSortRejected(t *testing.T) {
	cache := block.New(64, nil)
	ix := newTestIndexer(t, cache, "idx.indx")
	require.NoError(t, ix.Insert(1, 1))
	require.NoError(t, ix.Sort())
	require.Error(t, ix.Insert(2, 2))
}

// TestGroupDedup checks that Group with dedup=true collapses repeated
// (key, value) pairs within a key's posting list, as collaborators does.
func TestGroupDedup(t *testing.T) {
	cache := block.New(64, nil)
	ix := newTestIndexer(t, cache, "idx.indx")
	entries := []struct{ key, value uint64 }{
		{1, 10}, {1, 10}, {1, 20}, {2, 30}, {1, 20},
	}
	for _, e := range entries {
		require.NoError(t, ix.Insert(e.key, e.value))
	}
	require.NoError(t, ix.Sort())

	valuesPath := filepath.Join(t.TempDir(), "idx.dat")
	require.NoError(t, ix.Group(valuesPath, true))
	require.True(t, ix.Grouped())

	ord, ok := ix.FindKey(1)
	require.True(t, ok)
	groupOffset, err := ix.ValueAt(ord)
	require.NoError(t, err)
	size, err := ix.GroupSize(groupOffset)
	require.NoError(t, err)
	require.Equal(t, 2, size, "duplicate (1,10) and (1,20) pairs must collapse to one each")

	seen := make(map[uint64]bool)
	for i := 0; i < size; i++ {
		v, err := ix.GroupElem(groupOffset, i)
		require.NoError(t, err)
		seen[v] = true
	}
	require.True(t, seen[10])
	require.True(t, seen[20])
}

// TestGroupWithoutDedup preserves repeated values, as commits-by-repo
// does (the same repo legitimately receives many distinct commits).
func TestGroupWithoutDedup(t *testing.T) {
	cache := block.New(64, nil)
	ix := newTestIndexer(t, cache, "idx.indx")
	for i := 0; i < 3; i++ {
		require.NoError(t, ix.Insert(7, uint64(100+i)))
	}
	require.NoError(t, ix.Sort())

	valuesPath := filepath.Join(t.TempDir(), "idx.dat")
	require.NoError(t, ix.Group(valuesPath, false))

	ord, ok := ix.FindKey(7)
	require.True(t, ok)
	groupOffset, err := ix.ValueAt(ord)
	require.NoError(t, err)
	size, err := ix.GroupSize(groupOffset)
	require.NoError(t, err)
	require.Equal(t, 3, size)
}

// TestLowerBoundEmptyIndex exercises the zero-entry edge case.
func TestLowerBoundEmptyIndex(t *testing.T) {
	cache := block.New(16, nil)
	ix := newTestIndexer(t, cache, "idx.indx")
	require.NoError(t, ix.Sort())
	require.Equal(t, 0, ix.LowerBound(42))
	_, ok := ix.FindKey(42)
	require.False(t, ok)
}
