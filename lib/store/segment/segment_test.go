package segment

import (
	"errors"
	"fmt"
	"hash/crc32"
	"os"
	"testing"
	"time"

	"github.com/ValentinKolb/shmkv/lib/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/bytebufferpool"
)

func testBackends() []common.Backend {
	if HasNativeBackend() {
		return []common.Backend{common.BackendFile, common.BackendNative}
	}
	return []common.Backend{common.BackendFile}
}

func testKey(t *testing.T) uint32 {
	return crc32.ChecksumIEEE([]byte(fmt.Sprintf("%s/%d/%d", t.Name(), os.Getpid(), time.Now().UnixNano())))
}

// openTestSegment opens a segment and removes it from the system when the test ends.
func openTestSegment(t *testing.T, key uint32, size int, opts *Options) ISegment {
	s, err := Open(key, size, opts)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = s.Close()
		if opts.Backend == common.BackendNative {
			_ = DestroyKey(key)
		}
	})
	return s
}

func TestTableOrdering(t *testing.T) {
	var tbl table
	tbl.put(3, []byte("c"))
	tbl.put(1, []byte("a"))
	tbl.put(2, []byte("b"))
	tbl.put(1, []byte("A"))

	require.Len(t, tbl, 3)
	for i, want := range []VarKey{1, 2, 3} {
		assert.Equal(t, want, tbl[i].key)
	}
	v, ok := tbl.get(1)
	assert.True(t, ok)
	assert.Equal(t, []byte("A"), v)

	assert.True(t, tbl.remove(2))
	assert.False(t, tbl.remove(2))
	_, ok = tbl.get(2)
	assert.False(t, ok)
	assert.Len(t, tbl, 2)
}

func TestBinaryRoundTrip(t *testing.T) {
	tbl := table{
		{key: 1, payload: []byte{}},
		{key: 7, payload: []byte("abc")},
		{key: 9, payload: []byte("0123456789")},
	}
	mem := make([]byte, headerSize+tbl.binaryLen())
	assert.Equal(t, 4+8+8+4+8+12, tbl.binaryLen())
	tbl.encodeBinary(mem)

	got, err := decodeBinary(mem)
	require.NoError(t, err)
	require.Len(t, got, 3)
	for i := range tbl {
		assert.Equal(t, tbl[i].key, got[i].key)
		assert.Equal(t, len(tbl[i].payload), len(got[i].payload))
		assert.Equal(t, string(tbl[i].payload), string(got[i].payload))
	}

	empty, err := decodeBinary(make([]byte, 64))
	require.NoError(t, err)
	assert.Empty(t, empty)

	copy(mem[4:8], []byte{0xff, 0xff, 0, 0})
	_, err = decodeBinary(mem)
	assert.True(t, errors.Is(err, ErrCorrupt))
}

func TestRecordRoundTrip(t *testing.T) {
	tbl := table{
		{key: 1, payload: []byte{unitSep, recordSep, 0}},
		{key: 4294967295, payload: []byte("value")},
	}
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)
	tbl.encodeRecords(buf)

	got, err := decodeRecords(buf.B)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, tbl[0].payload, got[0].payload)
	assert.Equal(t, VarKey(4294967295), got[1].key)

	_, err = decodeRecords([]byte("12\x1fAAAA"))
	assert.True(t, errors.Is(err, ErrCorrupt))
	_, err = decodeRecords([]byte("x\x1fAAAA\x1e"))
	assert.True(t, errors.Is(err, ErrCorrupt))
}

func TestSegmentOperations(t *testing.T) {
	for _, backend := range testBackends() {
		t.Run(string(backend), func(t *testing.T) {
			opts := &Options{Backend: backend, Dir: t.TempDir()}
			s := openTestSegment(t, testKey(t), 4096, opts)
			assert.Equal(t, backend, s.Backend())

			found, err := s.Has(1)
			require.NoError(t, err)
			assert.False(t, found)

			require.NoError(t, s.Put(1, []byte("one")))
			require.NoError(t, s.Put(2, []byte("two")))
			require.NoError(t, s.Put(1, []byte("uno")))

			v, found, err := s.Get(1)
			require.NoError(t, err)
			assert.True(t, found)
			assert.Equal(t, []byte("uno"), v)

			removed, err := s.Remove(1)
			require.NoError(t, err)
			assert.True(t, removed)
			removed, err = s.Remove(1)
			require.NoError(t, err)
			assert.False(t, removed)

			found, err = s.Has(2)
			require.NoError(t, err)
			assert.True(t, found)
		})
	}
}

func TestSegmentShared(t *testing.T) {
	for _, backend := range testBackends() {
		t.Run(string(backend), func(t *testing.T) {
			key := testKey(t)
			opts := &Options{Backend: backend, Dir: t.TempDir()}
			a := openTestSegment(t, key, 4096, opts)
			b := openTestSegment(t, key, 4096, opts)

			require.NoError(t, a.Put(5, []byte("x")))
			v, found, err := b.Get(5)
			require.NoError(t, err)
			assert.True(t, found)
			assert.Equal(t, []byte("x"), v)

			_, err = b.Remove(5)
			require.NoError(t, err)
			found, err = a.Has(5)
			require.NoError(t, err)
			assert.False(t, found)
		})
	}
}

func TestSegmentRefreshAfterDestroy(t *testing.T) {
	for _, backend := range testBackends() {
		t.Run(string(backend), func(t *testing.T) {
			key := testKey(t)
			opts := &Options{Backend: backend, Dir: t.TempDir()}
			a := openTestSegment(t, key, 4096, opts)
			b := openTestSegment(t, key, 4096, opts)

			require.NoError(t, a.Put(1, []byte("old")))
			require.NoError(t, a.Destroy())
			assert.True(t, errors.Is(a.Put(1, nil), ErrClosed))

			c := openTestSegment(t, key, 4096, opts)
			require.NoError(t, c.Put(2, []byte("new")))

			require.NoError(t, b.Refresh())
			found, err := b.Has(1)
			require.NoError(t, err)
			assert.False(t, found)
			v, found, err := b.Get(2)
			require.NoError(t, err)
			assert.True(t, found)
			assert.Equal(t, []byte("new"), v)

			// nothing changed, refresh is a no-op
			require.NoError(t, b.Refresh())
		})
	}
}

func TestNativeNoSpace(t *testing.T) {
	if !HasNativeBackend() {
		t.Skip("native shared memory unavailable")
	}
	opts := &Options{Backend: common.BackendNative}
	s := openTestSegment(t, testKey(t), 64, opts)
	assert.GreaterOrEqual(t, s.Size(), 64)

	err := s.Put(1, make([]byte, s.Size()))
	assert.True(t, errors.Is(err, ErrNoSpace))

	found, err := s.Has(1)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestFileSegmentPath(t *testing.T) {
	dir := t.TempDir()
	key := testKey(t)
	s := openTestSegment(t, key, 0, &Options{Backend: common.BackendFile, Dir: dir})
	require.NoError(t, s.Put(3, []byte("v")))
	assert.FileExists(t, FilePath(dir, key))
	assert.Equal(t, 0, s.Size())

	require.NoError(t, s.Destroy())
	assert.NoFileExists(t, FilePath(dir, key))
}

func TestSegmentExists(t *testing.T) {
	for _, backend := range testBackends() {
		t.Run(string(backend), func(t *testing.T) {
			key := testKey(t)
			opts := &Options{Backend: backend, Dir: t.TempDir()}

			exists, err := Exists(key, opts)
			require.NoError(t, err)
			assert.False(t, exists)

			s := openTestSegment(t, key, 4096, opts)
			exists, err = Exists(key, opts)
			require.NoError(t, err)
			assert.True(t, exists)

			require.NoError(t, s.Destroy())
			exists, err = Exists(key, opts)
			require.NoError(t, err)
			assert.False(t, exists)
		})
	}
}
