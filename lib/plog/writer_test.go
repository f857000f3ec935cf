package plog

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/ValentinKolb/shmkv/lib/common"
	"github.com/ValentinKolb/shmkv/lib/mutex"
	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testMutexOptions(t *testing.T) *mutex.Options {
	return &mutex.Options{
		Backend:  common.BackendFile,
		Dir:      t.TempDir(),
		Registry: mutex.NewRegistry(),
	}
}

func readLines(t *testing.T, r io.Reader) []string {
	t.Helper()
	var lines []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	require.NoError(t, sc.Err())
	return lines
}

func TestLinesDoNotInterleave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	mopts := testMutexOptions(t)

	const writers, lines = 4, 200
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		w, err := NewWriter(path, &Options{MutexOptions: mopts, BufferLines: i * 3})
		require.NoError(t, err)

		wg.Add(1)
		go func(i int, w *Writer) {
			defer wg.Done()
			defer w.Close()
			for j := 0; j < lines; j++ {
				// written in two parts to exercise partial line buffering
				fmt.Fprintf(w, "writer-%d ", i)
				fmt.Fprintf(w, "line-%d\n", j)
			}
		}(i, w)
	}
	wg.Wait()

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	got := readLines(t, f)
	require.Len(t, got, writers*lines)

	next := make(map[string]int)
	for _, line := range got {
		var writer, n int
		_, err := fmt.Sscanf(line, "writer-%d line-%d", &writer, &n)
		require.NoError(t, err, "malformed line %q", line)
		key := fmt.Sprint(writer)
		assert.Equal(t, next[key], n, "lines of writer %d out of order", writer)
		next[key] = n + 1
	}
}

func TestGzipMembers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log.gz")
	w, err := NewWriter(path, &Options{MutexOptions: testMutexOptions(t), Gzip: true})
	require.NoError(t, err)

	_, err = w.Write([]byte("first\nsecond\n"))
	require.NoError(t, err)
	_, err = w.Write([]byte("third"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	zr, err := gzip.NewReader(f)
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second", "third"}, readLines(t, zr))
}

func TestLazyOpenAndBuffering(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "app.log")
	w, err := NewWriter(path, &Options{MutexOptions: testMutexOptions(t), BufferLines: 3})
	require.NoError(t, err)
	assert.Equal(t, path, w.Path())

	_, err = w.Write([]byte("a\nb\n"))
	require.NoError(t, err)
	assert.NoFileExists(t, path)

	_, err = w.Write([]byte("c\n"))
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "a\nb\nc\n", string(data))

	require.NoError(t, w.Close())
	require.NoError(t, w.Close())

	_, err = w.Write([]byte("d\n"))
	assert.ErrorIs(t, err, os.ErrClosed)
}

func TestSuppliedMutexStaysOpen(t *testing.T) {
	m, err := mutex.NewNamedMutex("plog-test", testMutexOptions(t))
	require.NoError(t, err)
	defer m.Close()

	path := filepath.Join(t.TempDir(), "app.log")
	w, err := NewWriter(path, &Options{Mutex: m})
	require.NoError(t, err)

	// a caller holding the mutex can flush without deadlocking
	require.NoError(t, m.Acquire())
	_, err = w.Write([]byte("held\n"))
	require.NoError(t, err)
	assert.True(t, m.IsAcquired())
	require.NoError(t, m.Release())

	require.NoError(t, w.Close())
	assert.False(t, m.IsAcquired())

	ok, err := m.TryAcquire()
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, m.Release())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "held"))
}

// failingReleaseMutex is a mutex whose Release always fails after giving the lock back.
type failingReleaseMutex struct {
	mutex.INamedMutex
}

func (m failingReleaseMutex) Release() error {
	_ = m.INamedMutex.Release()
	return errors.New("release failed")
}

func TestReleaseErrorIsReturned(t *testing.T) {
	inner, err := mutex.NewNamedMutex("plog-release-error", testMutexOptions(t))
	require.NoError(t, err)
	defer inner.Close()

	w, err := NewWriter(filepath.Join(t.TempDir(), "app.log"), &Options{Mutex: failingReleaseMutex{inner}})
	require.NoError(t, err)

	_, err = w.Write([]byte("line\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "release failed")
	assert.False(t, inner.IsAcquired())

	data, rerr := os.ReadFile(w.Path())
	require.NoError(t, rerr)
	assert.Equal(t, "line\n", string(data))
	_ = w.Close()
}
