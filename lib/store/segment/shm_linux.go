//go:build linux

package segment

import (
	"errors"
	"fmt"

	"github.com/ValentinKolb/shmkv/lib/common"
	"golang.org/x/sys/unix"
)

// minShmSize is the smallest segment that can hold an empty table.
const minShmSize = headerSize + tableCountSize

// shmSegment is a SysV shared memory segment attached to this process.
type shmSegment struct {
	key  uint32
	size int // requested size, used when the segment has to be re-created
	id   int
	mem  []byte
}

func probeShm() bool {
	id, err := unix.SysvShmGet(unix.IPC_PRIVATE, minShmSize, unix.IPC_CREAT|0o600)
	if err != nil {
		return false
	}
	_, err = unix.SysvShmCtl(id, unix.IPC_RMID, nil)
	return err == nil
}

// getOrCreateShm returns the id of the segment for key, creating it with size bytes if needed.
func getOrCreateShm(key uint32, size int) (int, error) {
	sysvKey := int(int32(key))
	for {
		id, err := unix.SysvShmGet(sysvKey, 0, 0o666)
		if err == nil {
			return id, nil
		}
		if !errors.Is(err, unix.ENOENT) {
			return -1, err
		}

		id, err = unix.SysvShmGet(sysvKey, size, unix.IPC_CREAT|unix.IPC_EXCL|0o666)
		if err == nil {
			log.Debugf("created shared memory segment %d for key %08x (%d bytes)", id, key, size)
			return id, nil
		}
		if !errors.Is(err, unix.EEXIST) {
			return -1, err
		}
		// created by another process in the meantime, open it
	}
}

func openShm(key uint32, size int) (ISegment, error) {
	if size < minShmSize {
		size = minShmSize
	}
	s := &shmSegment{key: key, size: size, id: -1}
	if err := s.attach(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *shmSegment) attach() error {
	id, err := getOrCreateShm(s.key, s.size)
	if err != nil {
		return fmt.Errorf("open shared memory segment %08x: %w", s.key, err)
	}
	mem, err := unix.SysvShmAttach(id, 0, 0)
	if err != nil {
		return fmt.Errorf("attach shared memory segment %08x: %w", s.key, err)
	}
	s.id, s.mem = id, mem
	return nil
}

func (s *shmSegment) detach() error {
	if s.mem == nil {
		return nil
	}
	err := unix.SysvShmDetach(s.mem)
	s.mem = nil
	return err
}

func (s *shmSegment) load() (table, error) {
	if s.mem == nil {
		return nil, ErrClosed
	}
	return decodeBinary(s.mem)
}

// --------------------------------------------------------------------------
// Interface Methods (docu see segment.ISegment)
// --------------------------------------------------------------------------

func (s *shmSegment) Has(key VarKey) (bool, error) {
	t, err := s.load()
	if err != nil {
		return false, err
	}
	_, ok := t.find(key)
	return ok, nil
}

func (s *shmSegment) Get(key VarKey) ([]byte, bool, error) {
	t, err := s.load()
	if err != nil {
		return nil, false, err
	}
	payload, ok := t.get(key)
	return payload, ok, nil
}

func (s *shmSegment) Put(key VarKey, payload []byte) error {
	t, err := s.load()
	if err != nil {
		return err
	}
	t.put(key, payload)
	if need := headerSize + t.binaryLen(); need > len(s.mem) {
		return fmt.Errorf("%w: need %d bytes, segment has %d", ErrNoSpace, need, len(s.mem))
	}
	t.encodeBinary(s.mem)
	return nil
}

func (s *shmSegment) Remove(key VarKey) (bool, error) {
	t, err := s.load()
	if err != nil {
		return false, err
	}
	if !t.remove(key) {
		return false, nil
	}
	t.encodeBinary(s.mem)
	return true, nil
}

func (s *shmSegment) Refresh() error {
	if s.mem == nil {
		return ErrClosed
	}
	id, err := unix.SysvShmGet(int(int32(s.key)), 0, 0o666)
	if err == nil && id == s.id {
		return nil
	}
	if err != nil && !errors.Is(err, unix.ENOENT) {
		return fmt.Errorf("open shared memory segment %08x: %w", s.key, err)
	}

	log.Debugf("shared memory segment %08x was replaced, re-attaching", s.key)
	if err := s.detach(); err != nil {
		return err
	}
	return s.attach()
}

func (s *shmSegment) Destroy() error {
	if s.mem == nil {
		return ErrClosed
	}
	if _, err := unix.SysvShmCtl(s.id, unix.IPC_RMID, nil); err != nil && !errors.Is(err, unix.EINVAL) && !errors.Is(err, unix.EIDRM) {
		return fmt.Errorf("remove shared memory segment %08x: %w", s.key, err)
	}
	destroyedCounter(common.BackendNative).Inc()
	log.Debugf("destroyed shared memory segment %08x", s.key)
	return s.detach()
}

func (s *shmSegment) Close() error {
	return s.detach()
}

func (s *shmSegment) Size() int {
	return len(s.mem)
}

func (s *shmSegment) Backend() common.Backend {
	return common.BackendNative
}

// DestroyKey removes the native segment for key without attaching it.
func DestroyKey(key uint32) error {
	id, err := unix.SysvShmGet(int(int32(key)), 0, 0o666)
	if errors.Is(err, unix.ENOENT) {
		return nil
	}
	if err != nil {
		return err
	}
	_, err = unix.SysvShmCtl(id, unix.IPC_RMID, nil)
	return err
}

func shmExists(key uint32) (bool, error) {
	_, err := unix.SysvShmGet(int(int32(key)), 0, 0o666)
	if errors.Is(err, unix.ENOENT) {
		return false, nil
	}
	return err == nil, err
}
