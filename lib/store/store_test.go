package store_test

import (
	"errors"
	"fmt"
	"math"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/ValentinKolb/shmkv/lib/codec"
	"github.com/ValentinKolb/shmkv/lib/common"
	"github.com/ValentinKolb/shmkv/lib/mutex"
	"github.com/ValentinKolb/shmkv/lib/store"
	"github.com/ValentinKolb/shmkv/lib/store/segment"
	"github.com/ValentinKolb/shmkv/lib/store/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testDir holds the lock and segment files of all tests in this package (and of helper processes).
var testDir string

func TestMain(m *testing.M) {
	if mode := os.Getenv("SHMKV_HELPER_MODE"); mode != "" {
		os.Exit(helperMain(mode))
	}

	var err error
	if testDir, err = os.MkdirTemp("", "shmkv-store-test"); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	code := m.Run()
	_ = os.RemoveAll(testDir)
	os.Exit(code)
}

func testBackends() []common.Backend {
	if mutex.HasNativeBackend() && segment.HasNativeBackend() {
		return []common.Backend{common.BackendFile, common.BackendNative}
	}
	return []common.Backend{common.BackendFile}
}

// openStore opens a store for key and cleans up mutex and segment when the test ends.
func openStore(t *testing.T, key mutex.LockKey, backend common.Backend, opts *store.Options) (store.ISharedStore, mutex.INamedMutex) {
	t.Helper()
	m, err := mutex.NewNamedMutex(key, &mutex.Options{Backend: backend, Dir: testDir})
	require.NoError(t, err)

	if opts == nil {
		opts = &store.Options{}
	}
	opts.Backend, opts.Dir = backend, testDir

	s, err := store.NewSharedStore(m, opts)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = s.Close()
		_ = m.Close()
		if backend == common.BackendNative {
			_ = segment.DestroyKey(uint32(key))
			_ = mutex.Destroy(key)
		}
	})
	return s, m
}

func factoryFor(backend common.Backend, serializer codec.IValueSerializer) storetest.StoreFactory {
	return func(t *testing.T, key mutex.LockKey) (store.ISharedStore, mutex.INamedMutex) {
		return openStore(t, key, backend, &store.Options{Serializer: serializer})
	}
}

func existsFor(backend common.Backend) storetest.ExistsFunc {
	return func(t *testing.T, key mutex.LockKey) bool {
		exists, err := segment.Exists(uint32(key), &segment.Options{Backend: backend, Dir: testDir})
		require.NoError(t, err)
		return exists
	}
}

func TestSharedStore(t *testing.T) {
	for _, backend := range testBackends() {
		storetest.RunStoreTests(t, string(backend)+"/msgpack", factoryFor(backend, codec.NewMsgpackSerializer()), existsFor(backend))
		storetest.RunStoreTests(t, string(backend)+"/json", factoryFor(backend, codec.NewJSONSerializer()), existsFor(backend))
	}
}

func TestAddToVarOverflow(t *testing.T) {
	s, _ := openStore(t, storetest.NewKey(t), common.BackendFile, nil)

	require.NoError(t, s.PutVar("n", int64(math.MaxInt64)))
	_, err := s.AddToVar("n", 1)
	var serr *store.Error
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, store.RetCInvalidOperation, serr.Code)
	assert.ErrorIs(t, err, codec.ErrOverflow)

	v, err := s.GetVar("n", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(math.MaxInt64), v)

	require.NoError(t, s.PutVar("u", uint64(math.MaxUint64)))
	_, err = s.AddToVar("u", 1)
	assert.ErrorIs(t, err, codec.ErrOverflow)

	require.NoError(t, s.RemoveVar("n"))
	require.NoError(t, s.RemoveVar("u"))
}

func TestGetRequiredBytes(t *testing.T) {
	n, err := store.GetRequiredBytes()
	require.NoError(t, err)
	assert.Equal(t, 36, n)

	// msgpack encodes 1000000 in 5 bytes: (24 + 8 + 8) * 1.5
	n, err = store.GetRequiredBytes(1000000)
	require.NoError(t, err)
	assert.Equal(t, 60, n)

	_, err = store.GetRequiredBytes(make(chan int))
	assert.True(t, errors.Is(err, store.ErrStore))
}

func TestSizeHintIsSufficient(t *testing.T) {
	hint, err := store.GetRequiredBytes(1000000)
	require.NoError(t, err)

	for _, backend := range testBackends() {
		t.Run(string(backend), func(t *testing.T) {
			s, _ := openStore(t, storetest.NewKey(t), backend, &store.Options{SizeHint: hint})
			require.NoError(t, s.PutVar("x", 1000000))
			require.NoError(t, s.PutVar("x", 1000000))
			v, err := s.GetVar("x", nil)
			require.NoError(t, err)
			assert.Equal(t, int64(1000000), v)
			require.NoError(t, s.RemoveVar("x"))
		})
	}
}

func TestNoSpace(t *testing.T) {
	if !mutex.HasNativeBackend() || !segment.HasNativeBackend() {
		t.Skip("native backend unavailable")
	}
	s, _ := openStore(t, storetest.NewKey(t), common.BackendNative, &store.Options{SizeHint: 1})

	err := s.PutVar("big", strings.Repeat("x", 1000))
	var serr *store.Error
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, store.RetCNoSpace, serr.Code)

	found, err := s.HasVar("big")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestNameCollision(t *testing.T) {
	names := store.NewNameRegistry()
	s, _ := openStore(t, storetest.NewKey(t), common.BackendFile, &store.Options{Names: names})

	// crc32("plumless") == crc32("buckeroo")
	require.NoError(t, s.PutVar("plumless", 1))
	err := s.PutVar("buckeroo", 2)
	var serr *store.Error
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, store.RetCKeyCollision, serr.Code)

	_, err = s.HasVar("buckeroo")
	assert.True(t, errors.Is(err, store.ErrStore))

	v, err := s.GetVar("plumless", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)
	require.NoError(t, s.RemoveVar("plumless"))
}

func TestDefaultNameRegistryReset(t *testing.T) {
	store.ResetDefaultNameRegistry()
	t.Cleanup(store.ResetDefaultNameRegistry)

	_, err := store.DefaultNameRegistry().Resolve("plumless")
	require.NoError(t, err)
	_, err = store.DefaultNameRegistry().Resolve("buckeroo")
	assert.Error(t, err)

	store.ResetDefaultNameRegistry()
	assert.Equal(t, 0, store.DefaultNameRegistry().Len())
	_, err = store.DefaultNameRegistry().Resolve("buckeroo")
	assert.NoError(t, err)
}

func TestNilMutex(t *testing.T) {
	_, err := store.NewSharedStore(nil, nil)
	assert.True(t, errors.Is(err, store.ErrStore))
}

func TestCloseAfterMutexClosed(t *testing.T) {
	key := storetest.NewKey(t)
	m, err := mutex.NewNamedMutex(key, &mutex.Options{Backend: common.BackendFile, Dir: testDir})
	require.NoError(t, err)
	s, err := store.NewSharedStore(m, &store.Options{Backend: common.BackendFile, Dir: testDir})
	require.NoError(t, err)

	require.NoError(t, m.Close())

	err = s.Close()
	var serr *store.Error
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, store.RetCLockFailed, serr.Code)
	assert.True(t, s.IsDestroyed())

	_ = os.Remove(segment.FilePath(testDir, uint32(key)))
}

// --------------------------------------------------------------------------
// Multi process tests
// --------------------------------------------------------------------------

// helperMain is the entry point of helper processes started by the tests below.
func helperMain(mode string) int {
	key, _ := strconv.ParseUint(os.Getenv("SHMKV_HELPER_KEY"), 10, 32)
	backend := common.Backend(os.Getenv("SHMKV_HELPER_BACKEND"))
	dir := os.Getenv("SHMKV_HELPER_DIR")

	m, err := mutex.NewNamedMutex(uint32(key), &mutex.Options{Backend: backend, Dir: dir})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	defer m.Close()

	s, err := store.NewSharedStore(m, &store.Options{Backend: backend, Dir: dir})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	defer s.Close()

	switch mode {
	case "add":
		rounds, _ := strconv.Atoi(os.Getenv("SHMKV_HELPER_ROUNDS"))
		for i := 0; i < rounds; i++ {
			if _, err := s.AddToVar("counter", 1); err != nil {
				fmt.Fprintln(os.Stderr, err)
				return 2
			}
		}
	case "take-x":
		v, err := s.GetVar("x", nil)
		if err != nil || v != int64(7) {
			fmt.Fprintf(os.Stderr, "expected x=7, got %v (%v)\n", v, err)
			return 3
		}
		if err := s.RemoveVar("x"); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 2
		}
	default:
		return 4
	}
	return 0
}

func helperCommand(t *testing.T, mode string, key mutex.LockKey, backend common.Backend, extraEnv ...string) *exec.Cmd {
	cmd := exec.Command(os.Args[0], "-test.run=^$")
	cmd.Env = append(os.Environ(),
		"SHMKV_HELPER_MODE="+mode,
		fmt.Sprintf("SHMKV_HELPER_KEY=%d", uint32(key)),
		"SHMKV_HELPER_BACKEND="+string(backend),
		"SHMKV_HELPER_DIR="+testDir,
	)
	cmd.Env = append(cmd.Env, extraEnv...)
	return cmd
}

func TestCrossProcessVisibility(t *testing.T) {
	const key = mutex.LockKey(42)

	for _, backend := range testBackends() {
		t.Run(string(backend), func(t *testing.T) {
			if backend == common.BackendNative {
				_ = segment.DestroyKey(uint32(key))
			}
			a, _ := openStore(t, key, backend, nil)
			require.NoError(t, a.PutVar("x", 7))

			out, err := helperCommand(t, "take-x", key, backend).CombinedOutput()
			require.NoError(t, err, string(out))

			found, err := a.HasVar("x")
			require.NoError(t, err)
			assert.False(t, found)
		})
	}
}

func TestCrossProcessAddToVar(t *testing.T) {
	const processes, rounds = 4, 25

	for _, backend := range testBackends() {
		t.Run(string(backend), func(t *testing.T) {
			key := storetest.NewKey(t)
			s, _ := openStore(t, key, backend, nil)

			var wg sync.WaitGroup
			errs := make([]error, processes)
			outs := make([][]byte, processes)
			for i := 0; i < processes; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					cmd := helperCommand(t, "add", key, backend, fmt.Sprintf("SHMKV_HELPER_ROUNDS=%d", rounds))
					outs[i], errs[i] = cmd.CombinedOutput()
				}(i)
			}
			wg.Wait()

			for i, err := range errs {
				require.NoError(t, err, string(outs[i]))
			}

			v, err := s.GetVar("counter", nil)
			require.NoError(t, err)
			assert.Equal(t, int64(processes*rounds), v)

			require.NoError(t, s.RemoveVar("counter"))
		})
	}
}
