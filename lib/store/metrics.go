package store

import (
	"fmt"

	"github.com/VictoriaMetrics/metrics"
)

// observe counts one store operation and, if err is set, one failed operation.
func observe(op string, err error) {
	metrics.GetOrCreateCounter(fmt.Sprintf(`shmkv_store_ops_total{op=%q}`, op)).Inc()
	if err != nil {
		metrics.GetOrCreateCounter(fmt.Sprintf(`shmkv_store_errors_total{op=%q}`, op)).Inc()
	}
}
