package lazy_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ghcatalog/engine/block"
	"github.com/ghcatalog/engine/format"
	"github.com/ghcatalog/engine/lazy"
)

type widget struct {
	ID      int32
	NameLen int32
	Name    string
	Active  bool
}

func widgetFormat(t *testing.T) *format.Format[widget] {
	t.Helper()
	f, err := format.NewFormat[widget](0,
		format.Int32Field("id", func(w *widget) int32 { return w.ID }, func(w *widget, v int32) { w.ID = v }),
		format.LengthField("name_len", func(w *widget) int { return len(w.Name) }),
		format.StringField[widget]("name", 1, func(w *widget) string { return w.Name }, func(w *widget, v string) { w.Name = v }),
		format.BoolField("active", func(w *widget) bool { return w.Active }, func(w *widget, v bool) { w.Active = v }),
	)
	require.NoError(t, err)
	return f
}

func TestLazyViewReadsOnlyTouchedMembers(t *testing.T) {
	fmtr := widgetFormat(t)
	dir := t.TempDir()
	c := block.New(8, nil)
	f, err := c.Open(dir + "/widgets.dat")
	require.NoError(t, err)

	rec := widget{ID: 7, Name: "lantern", Active: true}
	require.NoError(t, c.SetBytes(f, 0, fmtr.WriteBinary(rec)))
	require.NoError(t, c.Flush(f))

	v := lazy.New(fmtr, c)
	v.Rebind(f, 0)

	got, err := v.Get(3)
	require.NoError(t, err)
	require.True(t, got.Active)
	require.Equal(t, "lantern", got.Name, "offset of member 3 required decoding the preceding length and string members")
}

func TestLazyViewMutateAndFlush(t *testing.T) {
	fmtr := widgetFormat(t)
	dir := t.TempDir()
	c := block.New(8, nil)
	f, err := c.Open(dir + "/widgets.dat")
	require.NoError(t, err)

	rec := widget{ID: 1, Name: "abc", Active: false}
	require.NoError(t, c.SetBytes(f, 0, fmtr.WriteBinary(rec)))
	require.NoError(t, c.Flush(f))

	v := lazy.New(fmtr, c)
	v.Rebind(f, 0)
	require.NoError(t, v.Mutate(3, func(w *widget) { w.Active = true }))
	require.NoError(t, v.FlushToFile())

	v2 := lazy.New(fmtr, c)
	v2.Rebind(f, 0)
	got, err := v2.Get(3)
	require.NoError(t, err)
	require.True(t, got.Active)
	require.Equal(t, "abc", got.Name)
}

func TestLazyViewPositionAfterAndRebind(t *testing.T) {
	fmtr := widgetFormat(t)
	dir := t.TempDir()
	c := block.New(8, nil)
	f, err := c.Open(dir + "/widgets.dat")
	require.NoError(t, err)

	r1 := widget{ID: 1, Name: "aa", Active: true}
	r2 := widget{ID: 2, Name: "bbbbb", Active: false}
	b1 := fmtr.WriteBinary(r1)
	b2 := fmtr.WriteBinary(r2)
	require.NoError(t, c.SetBytes(f, 0, b1))
	require.NoError(t, c.SetBytes(f, int64(len(b1)), b2))
	require.NoError(t, c.Flush(f))

	v := lazy.New(fmtr, c)
	v.Rebind(f, 0)
	next, err := v.PositionAfter()
	require.NoError(t, err)
	require.Equal(t, int64(len(b1)), next)

	v.Rebind(f, next)
	got, err := v.Get(0)
	require.NoError(t, err)
	require.Equal(t, int32(2), got.ID)
}
