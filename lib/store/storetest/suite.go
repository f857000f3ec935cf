package storetest

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ValentinKolb/shmkv/lib/mutex"
	"github.com/ValentinKolb/shmkv/lib/store"
)

// StoreFactory opens a store together with the mutex it uses. Stores opened with the same
// key must share their segment. The factory is responsible for cleaning up mutex and
// segment when the test ends.
type StoreFactory func(t *testing.T, key mutex.LockKey) (store.ISharedStore, mutex.INamedMutex)

// ExistsFunc reports whether the backing segment of key exists on the system.
type ExistsFunc func(t *testing.T, key mutex.LockKey) bool

var keySeq atomic.Uint32

// NewKey returns a lock key that is unique for this test process.
func NewKey(t testing.TB) mutex.LockKey {
	return mutex.HashName(fmt.Sprintf("storetest/%s/%d/%d/%d", t.Name(), os.Getpid(), time.Now().UnixNano(), keySeq.Add(1)))
}

// RunStoreTests runs a comprehensive test suite for an ISharedStore implementation.
// exists is used by the lifetime tests to check whether a segment was destroyed.
func RunStoreTests(t *testing.T, name string, factory StoreFactory, exists ExistsFunc) {
	t.Run(name, func(t *testing.T) {
		t.Run("Put&Get", func(t *testing.T) {
			testPutGet(t, factory)
		})

		t.Run("PutNil", func(t *testing.T) {
			testPutNil(t, factory)
		})

		t.Run("Has", func(t *testing.T) {
			testHas(t, factory)
		})

		t.Run("Remove", func(t *testing.T) {
			testRemove(t, factory)
		})

		t.Run("AddToVar", func(t *testing.T) {
			testAddToVar(t, factory)
		})

		t.Run("ConcurrentAdd", func(t *testing.T) {
			testConcurrentAdd(t, factory)
		})

		t.Run("SharedInstances", func(t *testing.T) {
			testSharedInstances(t, factory)
		})

		t.Run("CallerHeldMutex", func(t *testing.T) {
			testCallerHeldMutex(t, factory)
		})

		t.Run("Lifetime", func(t *testing.T) {
			testLifetime(t, factory, exists)
		})

		t.Run("Closed", func(t *testing.T) {
			testClosed(t, factory)
		})
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

func mustPut(t *testing.T, s store.ISharedStore, name string, value any) {
	t.Helper()
	if err := s.PutVar(name, value); err != nil {
		t.Fatalf("PutVar(%q) failed: %v", name, err)
	}
}

func mustGet(t *testing.T, s store.ISharedStore, name string) any {
	t.Helper()
	v, err := s.GetVar(name, nil)
	if err != nil {
		t.Fatalf("GetVar(%q) failed: %v", name, err)
	}
	return v
}

func mustHas(t *testing.T, s store.ISharedStore, name string) bool {
	t.Helper()
	found, err := s.HasVar(name)
	if err != nil {
		t.Fatalf("HasVar(%q) failed: %v", name, err)
	}
	return found
}

func hasCode(err error, code store.RetCode) bool {
	var e *store.Error
	return errors.As(err, &e) && e.Code == code
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testPutGet(t *testing.T, factory StoreFactory) {
	s, _ := factory(t, NewKey(t))

	values := []struct {
		in   any
		want any
	}{
		{7, int64(7)},
		{-1000000, int64(-1000000)},
		{3.5, 3.5},
		{"hello", "hello"},
		{true, true},
		{[]any{1, "two", 3.0}, []any{int64(1), "two", 3.0}},
		{map[string]any{"a": []int{1, 2}, "b": map[string]any{"c": "d"}},
			map[string]any{"a": []any{int64(1), int64(2)}, "b": map[string]any{"c": "d"}}},
	}

	for i, v := range values {
		name := fmt.Sprintf("var-%d", i)
		mustPut(t, s, name, v.in)
		if got := mustGet(t, s, name); !reflect.DeepEqual(got, v.want) {
			t.Errorf("Expected %s to be %#v, got %#v", name, v.want, got)
		}
	}

	mustPut(t, s, "var-0", "overwritten")
	if got := mustGet(t, s, "var-0"); got != "overwritten" {
		t.Errorf("Expected overwritten value, got %#v", got)
	}

	got, err := s.GetVar("missing", "default")
	if err != nil {
		t.Fatalf("GetVar failed: %v", err)
	}
	if got != "default" {
		t.Errorf("Expected default value for missing variable, got %#v", got)
	}
}

func testPutNil(t *testing.T, factory StoreFactory) {
	s, _ := factory(t, NewKey(t))

	err := s.PutVar("x", nil)
	if !errors.Is(err, store.ErrStore) || !hasCode(err, store.RetCInvalidOperation) {
		t.Errorf("Expected InvalidOperation for nil value, got %v", err)
	}
	if mustHas(t, s, "x") {
		t.Errorf("Expected failed PutVar to leave no variable behind")
	}

	mustPut(t, s, "x", 1)
	var nilMap map[string]any
	if err := s.PutVar("x", nilMap); !hasCode(err, store.RetCInvalidOperation) {
		t.Errorf("Expected InvalidOperation for nil map, got %v", err)
	}
	if got := mustGet(t, s, "x"); got != int64(1) {
		t.Errorf("Expected prior value to be unchanged, got %#v", got)
	}
}

func testHas(t *testing.T, factory StoreFactory) {
	s, _ := factory(t, NewKey(t))

	if mustHas(t, s, "x") {
		t.Errorf("Expected HasVar to be false before PutVar")
	}
	mustPut(t, s, "x", "value")
	if !mustHas(t, s, "x") {
		t.Errorf("Expected HasVar to be true after PutVar")
	}
}

func testRemove(t *testing.T, factory StoreFactory) {
	s, _ := factory(t, NewKey(t))

	mustPut(t, s, "x", 1)
	mustPut(t, s, "y", 2)
	if err := s.RemoveVar("x"); err != nil {
		t.Fatalf("RemoveVar failed: %v", err)
	}
	if mustHas(t, s, "x") {
		t.Errorf("Expected HasVar to be false after RemoveVar")
	}
	if got := mustGet(t, s, "y"); got != int64(2) {
		t.Errorf("Expected other variables to be untouched, got %#v", got)
	}
	if got := mustGet(t, s, "__var_count"); got != int64(1) {
		t.Errorf("Expected __var_count 1, got %#v", got)
	}

	if err := s.RemoveVar("x"); !errors.Is(err, store.ErrStore) {
		t.Errorf("Expected StoreError when removing a missing variable, got %v", err)
	}
}

func testAddToVar(t *testing.T, factory StoreFactory) {
	s, _ := factory(t, NewKey(t))

	v, err := s.AddToVar("n", 5)
	if err != nil {
		t.Fatalf("AddToVar failed: %v", err)
	}
	if v != int64(5) {
		t.Errorf("Expected missing variable to count as 0, got %#v", v)
	}

	if v, _ = s.AddToVar("n", -2); v != int64(3) {
		t.Errorf("Expected 3, got %#v", v)
	}
	if got := mustGet(t, s, "n"); got != int64(3) {
		t.Errorf("Expected stored value 3, got %#v", got)
	}

	if v, _ = s.AddToVar("n", 0.5); v != 3.5 {
		t.Errorf("Expected float result 3.5, got %#v", v)
	}

	if _, err := s.AddToVar("n", "1"); !hasCode(err, store.RetCInvalidOperation) {
		t.Errorf("Expected InvalidOperation for non numeric delta, got %v", err)
	}

	mustPut(t, s, "s", "text")
	if _, err := s.AddToVar("s", 1); !hasCode(err, store.RetCInvalidOperation) {
		t.Errorf("Expected InvalidOperation for non numeric variable, got %v", err)
	}
	if got := mustGet(t, s, "s"); got != "text" {
		t.Errorf("Expected failed AddToVar to leave the value unchanged, got %#v", got)
	}
}

func testConcurrentAdd(t *testing.T, factory StoreFactory) {
	key := NewKey(t)
	const workers, rounds = 8, 50

	stores := make([]store.ISharedStore, workers)
	for i := range stores {
		stores[i], _ = factory(t, key)
	}

	var wg sync.WaitGroup
	var failures atomic.Int32
	for _, s := range stores {
		wg.Add(1)
		go func(s store.ISharedStore) {
			defer wg.Done()
			for i := 0; i < rounds; i++ {
				if _, err := s.AddToVar("counter", 1); err != nil {
					failures.Add(1)
					return
				}
			}
		}(s)
	}
	wg.Wait()

	if failures.Load() > 0 {
		t.Fatalf("%d workers failed", failures.Load())
	}
	if got := mustGet(t, stores[0], "counter"); got != int64(workers*rounds) {
		t.Errorf("Expected counter %d, got %#v", workers*rounds, got)
	}
}

func testSharedInstances(t *testing.T, factory StoreFactory) {
	key := NewKey(t)
	a, _ := factory(t, key)
	mustPut(t, a, "x", 7)

	b, _ := factory(t, key)
	if b.SegmentKey() != key || a.SegmentKey() != key {
		t.Errorf("Expected both stores to use segment key %s", key)
	}
	if got := mustGet(t, b, "x"); got != int64(7) {
		t.Errorf("Expected second instance to see x=7, got %#v", got)
	}
	if got := mustGet(t, b, "__proc_count"); got != int64(2) {
		t.Errorf("Expected __proc_count 2, got %#v", got)
	}

	if err := b.RemoveVar("x"); err != nil {
		t.Fatalf("RemoveVar failed: %v", err)
	}
	if mustHas(t, a, "x") {
		t.Errorf("Expected first instance to see the removal")
	}
}

func testCallerHeldMutex(t *testing.T, factory StoreFactory) {
	s, m := factory(t, NewKey(t))

	if err := m.Acquire(); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	mustPut(t, s, "a", 1)
	if _, err := s.AddToVar("a", 1); err != nil {
		t.Fatalf("AddToVar failed: %v", err)
	}
	if !m.IsAcquired() {
		t.Errorf("Expected store operations to keep the caller's lock")
	}
	if err := m.Release(); err != nil {
		t.Fatalf("Release failed: %v", err)
	}

	if got := mustGet(t, s, "a"); got != int64(2) {
		t.Errorf("Expected 2, got %#v", got)
	}
	if m.IsAcquired() {
		t.Errorf("Expected store operations to release a lock they acquired")
	}
}

func testLifetime(t *testing.T, factory StoreFactory, exists ExistsFunc) {
	t.Run("LastInstanceWithoutVars", func(t *testing.T) {
		key := NewKey(t)
		a, _ := factory(t, key)
		mustPut(t, a, "marker", 1)
		if err := a.RemoveVar("marker"); err != nil {
			t.Fatalf("RemoveVar failed: %v", err)
		}
		if !exists(t, key) {
			t.Fatalf("Expected segment to exist while an instance is attached")
		}
		if err := a.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
		if exists(t, key) {
			t.Errorf("Expected segment to be destroyed by the last Close")
		}

		b, _ := factory(t, key)
		if got := mustGet(t, b, "__proc_count"); got != int64(1) {
			t.Errorf("Expected a fresh segment with __proc_count 1, got %#v", got)
		}
	})

	t.Run("OtherInstanceAttached", func(t *testing.T) {
		key := NewKey(t)
		a, _ := factory(t, key)
		b, _ := factory(t, key)
		if err := a.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
		if !exists(t, key) {
			t.Errorf("Expected segment to survive while another instance is attached")
		}

		mustPut(t, b, "x", 1)
		if got := mustGet(t, b, "__proc_count"); got != int64(1) {
			t.Errorf("Expected __proc_count 1 after one of two instances closed, got %#v", got)
		}
		if err := b.RemoveVar("x"); err != nil {
			t.Fatalf("RemoveVar failed: %v", err)
		}
		if err := b.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
		if exists(t, key) {
			t.Errorf("Expected segment to be destroyed by the last Close")
		}
	})

	t.Run("VariablesRemain", func(t *testing.T) {
		key := NewKey(t)
		a, _ := factory(t, key)
		mustPut(t, a, "x", "kept")
		if err := a.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
		if !exists(t, key) {
			t.Errorf("Expected segment with variables to survive the last Close")
		}

		b, _ := factory(t, key)
		if got := mustGet(t, b, "x"); got != "kept" {
			t.Errorf("Expected variable to survive the last Close, got %#v", got)
		}
		if got := mustGet(t, b, "__proc_count"); got != int64(1) {
			t.Errorf("Expected __proc_count 1, got %#v", got)
		}
		if err := b.RemoveVar("x"); err != nil {
			t.Fatalf("RemoveVar failed: %v", err)
		}
	})
}

func testClosed(t *testing.T, factory StoreFactory) {
	s, _ := factory(t, NewKey(t))

	if s.IsDestroyed() {
		t.Errorf("Expected new store not to be destroyed")
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if !s.IsDestroyed() {
		t.Errorf("Expected store to be destroyed after Close")
	}
	if err := s.Close(); err != nil {
		t.Errorf("Expected second Close to be a no-op, got %v", err)
	}

	if _, err := s.HasVar("x"); !hasCode(err, store.RetCDestroyed) {
		t.Errorf("Expected RetCDestroyed from HasVar, got %v", err)
	}
	if err := s.PutVar("x", 1); !hasCode(err, store.RetCDestroyed) {
		t.Errorf("Expected RetCDestroyed from PutVar, got %v", err)
	}
	if _, err := s.AddToVar("x", 1); !hasCode(err, store.RetCDestroyed) {
		t.Errorf("Expected RetCDestroyed from AddToVar, got %v", err)
	}
}
