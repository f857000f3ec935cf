package store

import (
	"errors"
	"reflect"
	"sync/atomic"

	"github.com/ValentinKolb/shmkv/lib/codec"
	"github.com/ValentinKolb/shmkv/lib/mutex"
	"github.com/ValentinKolb/shmkv/lib/store/segment"
)

type sharedStoreImpl struct {
	m          mutex.INamedMutex
	seg        segment.ISegment
	serializer codec.IValueSerializer
	names      *NameRegistry
	destroyed  atomic.Bool
}

// NewSharedStore opens the store that belongs to the mutex m. The segment key is the LockKey
// of m, so every process that uses a mutex with the same key shares the store.
// The store borrows m; it never closes it.
//
// If opts is nil, DefaultOptions() is used.
func NewSharedStore(m mutex.INamedMutex, opts *Options) (ISharedStore, error) {
	if m == nil {
		return nil, NewError(RetCInvalidOperation, "mutex must not be nil")
	}
	if opts == nil {
		opts = DefaultOptions()
	}
	if opts.SizeHint < 0 {
		return nil, NewError(RetCInvalidOperation, "size hint must not be negative")
	}

	s := &sharedStoreImpl{
		m:          m,
		serializer: opts.Serializer,
		names:      opts.Names,
	}
	if s.serializer == nil {
		s.serializer = codec.Default()
	}
	if s.names == nil {
		s.names = DefaultNameRegistry()
	}

	budget := DefaultSegmentSize
	if opts.SizeHint > 0 {
		budget = opts.SizeHint + bookkeepingBytes()
	}

	seg, err := segment.Open(uint32(m.LockKey()), budget, &segment.Options{Backend: opts.Backend, Dir: opts.Dir})
	if err != nil {
		observe("open", err)
		return nil, wrapError(RetCOpenFailed, err, "cannot open segment %s", m.LockKey())
	}
	s.seg = seg

	err = s.withLock(func() error {
		if err := s.seg.Refresh(); err != nil {
			return wrapError(RetCOpenFailed, err, "cannot refresh segment %s", m.LockKey())
		}
		if _, err := s.add(procCountName, int64(1)); err != nil {
			return err
		}
		found, err := s.has(varCountName)
		if err != nil || found {
			return err
		}
		return s.put(varCountName, int64(0))
	})
	observe("open", err)
	if err != nil {
		_ = seg.Close()
		return nil, err
	}

	log.Debugf("attached %s store %s (%d bytes)", seg.Backend(), m.LockKey(), seg.Size())
	return s, nil
}

// --------------------------------------------------------------------------
// Locking
// --------------------------------------------------------------------------

// withLock runs fn while holding the mutex. The mutex is only acquired (and released) here
// if the caller does not hold it already.
func (s *sharedStoreImpl) withLock(fn func() error) (err error) {
	if !s.m.IsAcquired() {
		if err := s.m.Acquire(); err != nil {
			return wrapError(RetCLockFailed, err, "cannot acquire mutex %s", s.m.LockKey())
		}
		defer func() {
			if rerr := s.m.Release(); rerr != nil && err == nil {
				err = wrapError(RetCLockFailed, rerr, "cannot release mutex %s", s.m.LockKey())
			}
		}()
	}
	return fn()
}

func (s *sharedStoreImpl) checkAlive() error {
	if s.destroyed.Load() {
		return NewError(RetCDestroyed, "store was closed")
	}
	return nil
}

// --------------------------------------------------------------------------
// Unlocked Helpers (the mutex must be held)
// --------------------------------------------------------------------------

func (s *sharedStoreImpl) key(name string) (segment.VarKey, error) {
	return s.names.Resolve(name)
}

func (s *sharedStoreImpl) has(name string) (bool, error) {
	key, err := s.key(name)
	if err != nil {
		return false, err
	}
	found, err := s.seg.Has(key)
	if err != nil {
		return false, wrapError(RetCInternalError, err, "cannot read %q", name)
	}
	return found, nil
}

func (s *sharedStoreImpl) get(name string, def any) (any, error) {
	key, err := s.key(name)
	if err != nil {
		return nil, err
	}
	payload, found, err := s.seg.Get(key)
	if err != nil {
		return nil, wrapError(RetCInternalError, err, "cannot read %q", name)
	}
	if !found {
		return def, nil
	}
	v, err := s.serializer.Deserialize(payload)
	if err != nil {
		return nil, wrapError(RetCInternalError, err, "cannot decode %q", name)
	}
	return v, nil
}

func (s *sharedStoreImpl) put(name string, value any) error {
	key, err := s.key(name)
	if err != nil {
		return err
	}
	payload, err := s.serializer.Serialize(value)
	if err != nil {
		return wrapError(RetCInvalidOperation, err, "cannot serialize value of type %T", value)
	}

	found, err := s.seg.Has(key)
	if err != nil {
		return wrapError(RetCInternalError, err, "cannot read %q", name)
	}
	if err := s.seg.Put(key, payload); err != nil {
		if errors.Is(err, segment.ErrNoSpace) {
			return wrapError(RetCNoSpace, err, "cannot write %q", name)
		}
		return wrapError(RetCInternalError, err, "cannot write %q", name)
	}

	if !found && !isReserved(name) {
		_, err = s.add(varCountName, int64(1))
	}
	return err
}

func (s *sharedStoreImpl) add(name string, delta any) (any, error) {
	current, err := s.get(name, int64(0))
	if err != nil {
		return nil, err
	}
	sum, err := codec.Add(current, delta)
	if err != nil {
		return nil, wrapError(RetCInvalidOperation, err, "cannot add to %q", name)
	}
	if err := s.put(name, sum); err != nil {
		return nil, err
	}
	return sum, nil
}

func (s *sharedStoreImpl) count(name string) (int64, error) {
	v, err := s.get(name, int64(0))
	if err != nil {
		return 0, err
	}
	n, ok := codec.ToInt64(v)
	if !ok {
		return 0, wrapError(RetCInternalError, nil, "bookkeeping entry %q holds %T", name, v)
	}
	return n, nil
}

// --------------------------------------------------------------------------
// Interface Methods (docu see store.ISharedStore)
// --------------------------------------------------------------------------

func (s *sharedStoreImpl) HasVar(name string) (found bool, err error) {
	defer func() { observe("has", err) }()
	if err := s.checkAlive(); err != nil {
		return false, err
	}
	err = s.withLock(func() error {
		found, err = s.has(name)
		return err
	})
	return found, err
}

func (s *sharedStoreImpl) PutVar(name string, value any) (err error) {
	defer func() { observe("put", err) }()
	if err := s.checkAlive(); err != nil {
		return err
	}
	if isNil(value) {
		return NewError(RetCInvalidOperation, "cannot store nil, use RemoveVar instead")
	}
	return s.withLock(func() error {
		return s.put(name, value)
	})
}

func (s *sharedStoreImpl) GetVar(name string, def any) (value any, err error) {
	defer func() { observe("get", err) }()
	if err := s.checkAlive(); err != nil {
		return nil, err
	}
	err = s.withLock(func() error {
		value, err = s.get(name, def)
		return err
	})
	return value, err
}

func (s *sharedStoreImpl) RemoveVar(name string) (err error) {
	defer func() { observe("remove", err) }()
	if err := s.checkAlive(); err != nil {
		return err
	}
	return s.withLock(func() error {
		key, err := s.key(name)
		if err != nil {
			return err
		}
		removed, rmErr := s.seg.Remove(key)

		if !isReserved(name) {
			if _, err := s.add(varCountName, int64(-1)); err != nil {
				return err
			}
		}

		if rmErr != nil {
			return wrapError(RetCInternalError, rmErr, "cannot remove %q", name)
		}
		if !removed {
			return wrapError(RetCInvalidOperation, nil, "variable %q does not exist", name)
		}
		return nil
	})
}

func (s *sharedStoreImpl) AddToVar(name string, delta any) (value any, err error) {
	defer func() { observe("add", err) }()
	if err := s.checkAlive(); err != nil {
		return nil, err
	}
	if !codec.IsNumeric(delta) {
		return nil, wrapError(RetCInvalidOperation, nil, "delta of type %T is not numeric", delta)
	}
	err = s.withLock(func() error {
		value, err = s.add(name, delta)
		return err
	})
	return value, err
}

func (s *sharedStoreImpl) SegmentKey() mutex.LockKey {
	return s.m.LockKey()
}

func (s *sharedStoreImpl) IsDestroyed() bool {
	return s.destroyed.Load()
}

func (s *sharedStoreImpl) Close() (err error) {
	if !s.destroyed.CompareAndSwap(false, true) {
		return nil
	}
	defer func() { observe("close", err) }()

	err = s.withLock(func() error {
		procs, err := s.count(procCountName)
		if err != nil {
			return err
		}
		vars, err := s.count(varCountName)
		if err != nil {
			return err
		}

		if procs == 1 && vars < 1 {
			log.Debugf("last instance of store %s detached, destroying segment", s.m.LockKey())
			if err := s.seg.Destroy(); err != nil {
				return wrapError(RetCInternalError, err, "cannot destroy segment %s", s.m.LockKey())
			}
			return nil
		}
		if procs > 0 {
			if _, err := s.add(procCountName, int64(-1)); err != nil {
				return err
			}
		}
		return nil
	})

	if cerr := s.seg.Close(); cerr != nil && err == nil {
		err = wrapError(RetCInternalError, cerr, "cannot detach segment %s", s.m.LockKey())
	}
	return err
}

// isNil reports whether v represents "no value".
func isNil(v any) bool {
	if v == nil {
		return true
	}
	switch rv := reflect.ValueOf(v); rv.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Interface, reflect.Chan, reflect.Func:
		return rv.IsNil()
	default:
		return false
	}
}
