// Package lock contains the commands of the "shmkv lock" group.
//
// Example:
//
//	shmkv lock run --timeout 10s backup -- rsync -a /data /backup
package lock

import "github.com/lni/dragonboat/v4/logger"

var log = logger.GetLogger("cmd")
