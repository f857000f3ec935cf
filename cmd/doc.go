// Package cmd implements the command-line interface of shmkv. It provides commands to
// inspect and modify shared stores and to use named mutexes from shell scripts.
//
// The package is organized into several subpackages:
//
//   - kv: Commands for shared store operations (get, put, rm, add, etc.)
//   - lock: Commands for named mutexes (key, run, destroy)
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// All flags can also be set as environment variables with the prefix SHMKV_
// (e.g. SHMKV_BACKEND=file). See shmkv -help for a list of all commands.
package cmd
