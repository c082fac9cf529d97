package block_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ghcatalog/engine/block"
)

func mustTempPath(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	return filepath.Join(dir, "page.dat")
}

func TestCacheReadWriteRoundTrip(t *testing.T) {
	path := mustTempPath(t)
	c := block.New(4, nil)
	f, err := c.Open(path)
	require.NoError(t, err)

	require.NoError(t, c.SetBytes(f, 10, []byte("hello, catalogue")))
	require.NoError(t, c.Flush(f))

	buf := make([]byte, len("hello, catalogue"))
	require.NoError(t, c.ReadBytes(f, 10, buf))
	require.Equal(t, "hello, catalogue", string(buf))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "hello, catalogue", string(raw[10:10+len(buf)]))
}

func TestCacheTransparentAcrossCapacities(t *testing.T) {
	// Property 5: reads through the cache return the same bytes regardless
	// of cache capacity.
	path := mustTempPath(t)
	seed := block.New(1, nil)
	f, err := seed.Open(path)
	require.NoError(t, err)
	payload := make([]byte, block.PageSize*6+37)
	for i := range payload {
		payload[i] = byte(i % 251)
	}
	require.NoError(t, seed.SetBytes(f, 0, payload))
	require.NoError(t, seed.Flush(f))
	require.NoError(t, seed.Close(f))

	for _, capacity := range []int{1, 8, 1024} {
		c := block.New(capacity, nil)
		f, err := c.Open(path)
		require.NoError(t, err)

		buf := make([]byte, len(payload))
		require.NoError(t, c.ReadBytes(f, 0, buf))
		require.Equal(t, payload, buf, "capacity=%d", capacity)
	}
}

func TestCacheReadLineHandlesTerminators(t *testing.T) {
	path := mustTempPath(t)
	c := block.New(2, nil)
	f, err := c.Open(path)
	require.NoError(t, err)

	require.NoError(t, c.SetBytes(f, 0, []byte("first line\r\nsecond\x00tail")))
	require.NoError(t, c.Flush(f))

	buf := make([]byte, 64)
	n, err := c.ReadLine(f, 0, buf)
	require.NoError(t, err)
	require.Equal(t, "first line", string(buf[:n]))

	n, err = c.ReadLine(f, 12, buf)
	require.NoError(t, err)
	require.Equal(t, "second", string(buf[:n]))
}

func TestCacheReadLineSpansPageBoundary(t *testing.T) {
	path := mustTempPath(t)
	c := block.New(1, nil)
	f, err := c.Open(path)
	require.NoError(t, err)

	line := make([]byte, block.PageSize+50)
	for i := range line {
		line[i] = 'a'
	}
	line[len(line)-1] = '\n'
	require.NoError(t, c.SetBytes(f, 0, line))
	require.NoError(t, c.Flush(f))

	buf := make([]byte, len(line)+1)
	n, err := c.ReadLine(f, 0, buf)
	require.NoError(t, err)
	require.Equal(t, len(line)-1, n)
}

func TestCacheReadPastEOFZeroPads(t *testing.T) {
	path := mustTempPath(t)
	c := block.New(2, nil)
	f, err := c.Open(path)
	require.NoError(t, err)
	require.NoError(t, c.SetBytes(f, 0, []byte("ab")))
	require.NoError(t, c.Flush(f))

	buf := make([]byte, 10)
	require.NoError(t, c.ReadBytes(f, 0, buf))
	require.Equal(t, byte('a'), buf[0])
	require.Equal(t, byte('b'), buf[1])
	for _, b := range buf[2:] {
		require.Equal(t, byte(0), b)
	}
}

func TestCacheFlushDurability(t *testing.T) {
	// Property 6: after Flush, writes are visible to a fresh reader.
	path := mustTempPath(t)
	writer := block.New(3, nil)
	f, err := writer.Open(path)
	require.NoError(t, err)
	require.NoError(t, writer.SetUint32(f, 0, 0xdeadbeef))
	require.NoError(t, writer.Flush(f))

	reader := block.New(3, nil)
	rf, err := reader.Open(path)
	require.NoError(t, err)
	v, err := reader.GetUint32(rf, 0)
	require.NoError(t, err)
	require.Equal(t, uint32(0xdeadbeef), v)
}

func TestCacheRefreshDiscardsPendingWrites(t *testing.T) {
	path := mustTempPath(t)
	c := block.New(2, nil)
	f, err := c.Open(path)
	require.NoError(t, err)
	require.NoError(t, c.SetUint32(f, 0, 1))
	require.NoError(t, c.Flush(f))

	require.NoError(t, c.SetUint32(f, 0, 2))
	require.NoError(t, c.Refresh(f))

	v, err := c.GetUint32(f, 0)
	require.NoError(t, err)
	require.Equal(t, uint32(1), v)
}

func TestCacheEvictsLRUAndWritesBack(t *testing.T) {
	path := mustTempPath(t)
	c := block.New(1, nil)
	f, err := c.Open(path)
	require.NoError(t, err)

	require.NoError(t, c.SetUint32(f, 0, 111))
	// Force eviction of the only frame by touching a different page.
	require.NoError(t, c.SetUint32(f, block.PageSize*3, 222))

	v, err := c.GetUint32(f, 0)
	require.NoError(t, err)
	require.Equal(t, uint32(111), v, "dirty frame should be written back on eviction")
}
