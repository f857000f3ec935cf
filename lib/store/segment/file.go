package segment

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/ValentinKolb/shmkv/lib/common"
	"github.com/valyala/bytebufferpool"
)

// fileSegment emulates a segment with a flat file that is read and rewritten as a whole
// on every operation. A crash during a rewrite can leave a truncated file behind.
type fileSegment struct {
	path string
	file *os.File
}

// FilePath returns the segment file used by the file backend for key.
func FilePath(dir string, key uint32) string {
	if dir == "" {
		dir = common.DefaultDir()
	}
	return filepath.Join(dir, fmt.Sprintf("shmkv-%08x.seg", key))
}

func openFile(key uint32, dir string) (ISegment, error) {
	if err := os.MkdirAll(dir, 0o777); err != nil {
		return nil, fmt.Errorf("create segment directory: %w", err)
	}
	s := &fileSegment{path: FilePath(dir, key)}
	if err := s.open(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *fileSegment) open() error {
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_RDWR, 0o666)
	if err != nil {
		return fmt.Errorf("open segment file: %w", err)
	}
	s.file = f
	return nil
}

func (s *fileSegment) load() (table, error) {
	if s.file == nil {
		return nil, ErrClosed
	}
	if _, err := s.file.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	data, err := io.ReadAll(s.file)
	if err != nil {
		return nil, fmt.Errorf("read segment file: %w", err)
	}
	return decodeRecords(data)
}

func (s *fileSegment) store(t table) error {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)
	t.encodeRecords(buf)

	if err := s.file.Truncate(0); err != nil {
		return fmt.Errorf("truncate segment file: %w", err)
	}
	if _, err := s.file.WriteAt(buf.B, 0); err != nil {
		return fmt.Errorf("write segment file: %w", err)
	}
	return nil
}

// --------------------------------------------------------------------------
// Interface Methods (docu see segment.ISegment)
// --------------------------------------------------------------------------

func (s *fileSegment) Has(key VarKey) (bool, error) {
	t, err := s.load()
	if err != nil {
		return false, err
	}
	_, ok := t.find(key)
	return ok, nil
}

func (s *fileSegment) Get(key VarKey) ([]byte, bool, error) {
	t, err := s.load()
	if err != nil {
		return nil, false, err
	}
	payload, ok := t.get(key)
	return payload, ok, nil
}

func (s *fileSegment) Put(key VarKey, payload []byte) error {
	t, err := s.load()
	if err != nil {
		return err
	}
	p := make([]byte, len(payload))
	copy(p, payload)
	t.put(key, p)
	return s.store(t)
}

func (s *fileSegment) Remove(key VarKey) (bool, error) {
	t, err := s.load()
	if err != nil {
		return false, err
	}
	if !t.remove(key) {
		return false, nil
	}
	return true, s.store(t)
}

func (s *fileSegment) Refresh() error {
	if s.file == nil {
		return ErrClosed
	}
	current, err := s.file.Stat()
	if err != nil {
		return fmt.Errorf("stat segment file: %w", err)
	}
	onDisk, err := os.Stat(s.path)
	if err == nil && os.SameFile(current, onDisk) {
		return nil
	}
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat segment file: %w", err)
	}

	log.Debugf("segment file %s was replaced, re-opening", s.path)
	_ = s.file.Close()
	s.file = nil
	return s.open()
}

func (s *fileSegment) Destroy() error {
	if s.file == nil {
		return ErrClosed
	}
	_ = s.file.Close()
	s.file = nil
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove segment file: %w", err)
	}
	destroyedCounter(common.BackendFile).Inc()
	log.Debugf("destroyed segment file %s", s.path)
	return nil
}

func (s *fileSegment) Close() error {
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

func (s *fileSegment) Size() int {
	return 0
}

func (s *fileSegment) Backend() common.Backend {
	return common.BackendFile
}
