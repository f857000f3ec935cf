package mutex

import (
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/shmkv/lib/common"
)

type namedMutexImpl struct {
	key     LockKey
	mode    KeyMode
	backend common.Backend
	h       handle
	held    atomic.Bool
	closed  atomic.Bool
}

// NewNamedMutex creates a named mutex for lockParam (see ResolveKey).
// The key is recorded in the registry with its mode; using the same key with the other mode
// fails with a MutexConflict error. If opts is nil, DefaultOptions() is used.
//
// The OS object is created or opened before NewNamedMutex returns; any failure is reported as
// a MutexError and no instance is returned.
func NewNamedMutex(lockParam any, opts *Options) (INamedMutex, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	reg := opts.Registry
	if reg == nil {
		reg = DefaultRegistry()
	}

	key, mode, err := ResolveKey(lockParam)
	if err != nil {
		return nil, err
	}
	native := HasNativeBackend()
	backend := opts.Backend.Resolve(native)
	if backend == common.BackendNative && !native {
		return nil, newError(RetCMutexError, nil, "native backend requested but SysV semaphores are unavailable")
	}

	added, err := reg.register(key, mode)
	if err != nil {
		return nil, err
	}

	h, err := openHandle(key, backend, opts, reg)
	if err != nil {
		// a failed construction leaves no trace in the registry
		if added {
			reg.unregister(key)
		}
		return nil, err
	}

	log.Debugf("opened %s mutex %s (%s)", backend, key, mode)
	return &namedMutexImpl{
		key:     key,
		mode:    mode,
		backend: backend,
		h:       h,
	}, nil
}

func (m *namedMutexImpl) Acquire() error {
	if m.closed.Load() {
		return newError(RetCMutexError, nil, "mutex %s is closed", m.key)
	}
	if m.held.Load() {
		return newError(RetCMutexError, nil, "mutex %s is already held by this instance", m.key)
	}

	start := time.Now()
	if err := m.h.lock(); err != nil {
		acquireErrorCounter(m.backend).Inc()
		return err
	}
	observeWait(m.backend, start)
	acquireCounter(m.backend).Inc()

	m.held.Store(true)
	return nil
}

func (m *namedMutexImpl) TryAcquire() (bool, error) {
	if m.closed.Load() {
		return false, newError(RetCMutexError, nil, "mutex %s is closed", m.key)
	}
	if m.held.Load() {
		return false, newError(RetCMutexError, nil, "mutex %s is already held by this instance", m.key)
	}

	ok, err := m.h.tryLock()
	if err != nil {
		acquireErrorCounter(m.backend).Inc()
		return false, err
	}
	if ok {
		acquireCounter(m.backend).Inc()
		m.held.Store(true)
	}
	return ok, nil
}

func (m *namedMutexImpl) Release() error {
	if !m.held.Load() {
		return newError(RetCMutexError, nil, "mutex %s is not held by this instance", m.key)
	}
	if err := m.h.unlock(); err != nil {
		return err
	}
	m.held.Store(false)
	return nil
}

func (m *namedMutexImpl) IsAcquired() bool {
	return m.held.Load()
}

func (m *namedMutexImpl) LockKey() LockKey {
	return m.key
}

func (m *namedMutexImpl) Mode() KeyMode {
	return m.mode
}

func (m *namedMutexImpl) Backend() common.Backend {
	return m.backend
}

func (m *namedMutexImpl) Close() error {
	if !m.closed.CompareAndSwap(false, true) {
		return nil
	}

	var releaseErr error
	if m.held.Load() {
		if releaseErr = m.h.unlock(); releaseErr == nil {
			m.held.Store(false)
		}
	}
	if err := m.h.close(); err != nil && releaseErr == nil {
		return newError(RetCMutexError, err, "close mutex %s", m.key)
	}
	m.held.Store(false)
	return releaseErr
}
