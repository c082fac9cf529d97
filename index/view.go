package index

import (
	"github.com/ghcatalog/engine/block"
	"github.com/ghcatalog/engine/lazy"
)

// ValueAsView rebinds view to the records-file address stored as the
// embedded value at ordinal ord. Go methods cannot carry their own type
// parameter, so this and its siblings below are free functions rather
// than methods on *Indexer.
func ValueAsView[T any](ix *Indexer, ord int, file *block.File, view *lazy.View[T]) error {
	v, err := ix.ValueAt(ord)
	if err != nil {
		return err
	}
	view.Rebind(file, int64(v))
	return nil
}

// FindValueAsView looks up key in ix and, if present, rebinds view to
// the records-file address stored as its value.
func FindValueAsView[T any](ix *Indexer, key uint64, file *block.File, view *lazy.View[T]) (bool, error) {
	ord, ok := ix.FindKey(key)
	if !ok {
		return false, nil
	}
	if err := ValueAsView(ix, ord, file, view); err != nil {
		return false, err
	}
	return true, nil
}

// GroupElemAsView rebinds view to the records-file address stored as
// the i'th element of the posting list at groupOffset.
func GroupElemAsView[T any](ix *Indexer, groupOffset uint64, i int, file *block.File, view *lazy.View[T]) error {
	v, err := ix.GroupElem(groupOffset, i)
	if err != nil {
		return err
	}
	view.Rebind(file, int64(v))
	return nil
}
