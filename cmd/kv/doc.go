// Package kv contains the commands of the "shmkv kv" group. Every command opens the
// segment selected with --segment, runs one store operation and closes it again.
// A segment outlives the command only if it still holds variables.
package kv

import "github.com/lni/dragonboat/v4/logger"

var log = logger.GetLogger("cmd")
