// Package store provides a key-value store that is shared between processes on the same host.
// It serves as an abstraction layer over the segment backends, adding name to key mapping,
// reference counting of attached instances and standardized error reporting.
//
// The package focuses on:
//   - A unified interface (ISharedStore) for variable operations across backends
//   - Mutual exclusion between processes through a borrowed named mutex
//
// Key Components:
//
//   - ISharedStore Interface: HasVar, PutVar, GetVar, RemoveVar and AddToVar. Every
//     operation takes the mutex of the store unless the caller already holds it. Callers
//     can therefore hold the mutex themselves to run several operations as one critical
//     section, while a single AddToVar is already atomic across processes.
//
//   - Error System: All failures are reported as *Error with a RetCode. errors.Is(err, ErrStore)
//     matches every error of this package.
//
//   - NameRegistry: Variables are addressed by a 32-bit VarKey derived from the name. The
//     process-wide registry detects two names that map to the same key and reports a
//     RetCKeyCollision error instead of letting them overwrite each other.
//
//   - Sizing: Native segments have a fixed capacity chosen by the first process that opens
//     them. GetRequiredBytes estimates the capacity needed for a set of values.
//
// Lifetime:
//
//	Two bookkeeping entries live in every segment: __proc_count counts the attached
//	instances of all processes, __var_count counts the user variables. Close decrements
//	__proc_count; the instance that finds itself to be the last one attached while no user
//	variables remain removes the segment from the system. A segment that still holds
//	variables survives the exit of all processes and is picked up by the next one.
//
// Example:
//
//	m, _ := mutex.NewNamedMutex("counters", nil)
//	defer m.Close()
//
//	s, err := store.NewSharedStore(m, nil)
//	if err != nil {
//	    return err
//	}
//	defer s.Close()
//
//	n, err := s.AddToVar("visits", 1)
package store

import "github.com/lni/dragonboat/v4/logger"

var log = logger.GetLogger("store")
