package mutex

import (
	"fmt"
	"time"

	"github.com/ValentinKolb/shmkv/lib/common"
	"github.com/VictoriaMetrics/metrics"
)

func acquireCounter(backend common.Backend) *metrics.Counter {
	return metrics.GetOrCreateCounter(fmt.Sprintf(`shmkv_mutex_acquire_total{backend=%q}`, backend))
}

func acquireErrorCounter(backend common.Backend) *metrics.Counter {
	return metrics.GetOrCreateCounter(fmt.Sprintf(`shmkv_mutex_acquire_errors_total{backend=%q}`, backend))
}

// observeWait records how long an Acquire call blocked.
func observeWait(backend common.Backend, start time.Time) {
	metrics.GetOrCreateHistogram(fmt.Sprintf(`shmkv_mutex_wait_seconds{backend=%q}`, backend)).
		Update(time.Since(start).Seconds())
}
