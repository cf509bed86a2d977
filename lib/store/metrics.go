package store

import (
	"fmt"
	"io"
	"time"

	"github.com/VictoriaMetrics/metrics"
)

// set holds the metrics of this package, see WritePrometheus
var set = metrics.NewSet()

// observe records one operation. Use it as
//
//	defer observe("get", time.Now(), &err)
func observe(op string, start time.Time, err *error) {
	set.GetOrCreateCounter(fmt.Sprintf(`dockv_store_ops_total{op=%q}`, op)).Inc()
	set.GetOrCreateHistogram(fmt.Sprintf(`dockv_store_op_duration_seconds{op=%q}`, op)).Update(time.Since(start).Seconds())
	if err != nil && *err != nil {
		set.GetOrCreateCounter(fmt.Sprintf(`dockv_store_errors_total{op=%q}`, op)).Inc()
	}
}

// WritePrometheus writes the operation metrics (counters, errors and durations
// per operation) in Prometheus text format to w.
func WritePrometheus(w io.Writer) {
	set.WritePrometheus(w)
}
