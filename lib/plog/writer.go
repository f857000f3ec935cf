package plog

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/ValentinKolb/shmkv/lib/mutex"
	"github.com/klauspost/compress/gzip"
	"github.com/valyala/bytebufferpool"
)

// Options configures NewWriter.
type Options struct {
	Mutex        mutex.INamedMutex // Mutex guarding the file (nil = named after the file)
	MutexOptions *mutex.Options    // Options for the mutex created when Mutex is nil
	Gzip         bool              // Write every flush as a gzip member
	BufferLines  int               // Flush after this many complete lines (0 or 1 = every line)
}

// Writer appends whole lines to a file shared with other processes. Lines are buffered
// and written while holding a named mutex, so lines of different processes never interleave.
//
// Thread-safety: All methods are thread-safe and can be called concurrently.
type Writer struct {
	path      string
	gzip      bool
	bufLines  int
	m         mutex.INamedMutex
	ownsMutex bool

	mu      sync.Mutex // guards the fields below
	pending *bytebufferpool.ByteBuffer
	partial []byte
	lines   int
	closed  bool

	flushMu sync.Mutex // serialises file access of this process
	file    *os.File
}

// NewWriter creates a writer for path. The file is opened on the first flush.
func NewWriter(path string, opts *Options) (*Writer, error) {
	if opts == nil {
		opts = &Options{}
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	w := &Writer{
		path:     abs,
		gzip:     opts.Gzip,
		bufLines: opts.BufferLines,
		m:        opts.Mutex,
		pending:  bytebufferpool.Get(),
	}
	if w.m == nil {
		if w.m, err = mutex.NewNamedMutex("plog:"+abs, opts.MutexOptions); err != nil {
			return nil, err
		}
		w.ownsMutex = true
	}
	return w, nil
}

// Path returns the absolute path of the log file.
func (w *Writer) Path() string {
	return w.path
}

// Write buffers p. Complete lines are flushed once BufferLines lines are pending;
// an incomplete trailing line is kept until its newline arrives (or Close).
func (w *Writer) Write(p []byte) (int, error) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return 0, os.ErrClosed
	}

	data := p
	if len(w.partial) > 0 {
		data = append(w.partial, p...)
		w.partial = nil
	}
	if i := bytes.LastIndexByte(data, '\n'); i >= 0 {
		_, _ = w.pending.Write(data[:i+1])
		w.lines += bytes.Count(data[:i+1], []byte{'\n'})
		data = data[i+1:]
	}
	if len(data) > 0 {
		w.partial = append([]byte(nil), data...)
	}
	flush := w.lines >= max(w.bufLines, 1)
	w.mu.Unlock()

	if flush {
		if err := w.Flush(); err != nil {
			return len(p), err
		}
	}
	return len(p), nil
}

// Flush writes all pending complete lines to the file.
func (w *Writer) Flush() error {
	return w.flush(false)
}

func (w *Writer) flush(withPartial bool) (err error) {
	w.flushMu.Lock()
	defer w.flushMu.Unlock()

	w.mu.Lock()
	if withPartial && len(w.partial) > 0 {
		_, _ = w.pending.Write(w.partial)
		_ = w.pending.WriteByte('\n')
		w.partial = nil
	}
	if w.pending.Len() == 0 {
		w.mu.Unlock()
		return nil
	}
	data := w.pending
	w.pending = bytebufferpool.Get()
	w.lines = 0
	w.mu.Unlock()
	defer bytebufferpool.Put(data)

	if w.file == nil {
		if err := os.MkdirAll(filepath.Dir(w.path), 0o777); err != nil {
			return fmt.Errorf("create log directory: %w", err)
		}
		f, err := os.OpenFile(w.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o666)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		w.file = f
	}

	if !w.m.IsAcquired() {
		if err := w.m.Acquire(); err != nil {
			return err
		}
		defer func() {
			if rerr := w.m.Release(); rerr != nil && err == nil {
				err = fmt.Errorf("release log mutex: %w", rerr)
			}
		}()
	}

	if w.gzip {
		return w.writeGzip(data.B)
	}
	_, err = w.file.Write(data.B)
	return err
}

// writeGzip appends data as one gzip member; concatenated members form a valid gzip stream.
func (w *Writer) writeGzip(data []byte) error {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	zw := gzip.NewWriter(buf)
	if _, err := zw.Write(data); err != nil {
		return err
	}
	if err := zw.Close(); err != nil {
		return err
	}
	_, err := w.file.Write(buf.B)
	return err
}

// Close flushes everything including an incomplete last line, closes the file and, if the
// writer created it, the mutex.
func (w *Writer) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.mu.Unlock()

	err := w.flush(true)

	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()

	w.flushMu.Lock()
	if w.file != nil {
		if cerr := w.file.Close(); cerr != nil && err == nil {
			err = cerr
		}
		w.file = nil
	}
	w.flushMu.Unlock()

	if w.ownsMutex {
		if cerr := w.m.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}
