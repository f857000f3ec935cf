package segment

import (
	"fmt"

	"github.com/ValentinKolb/shmkv/lib/common"
	"github.com/VictoriaMetrics/metrics"
)

func destroyedCounter(backend common.Backend) *metrics.Counter {
	return metrics.GetOrCreateCounter(fmt.Sprintf(`shmkv_segment_destroyed_total{backend=%q}`, backend))
}
