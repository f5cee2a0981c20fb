package metrics

import "time"

// RecordQuery records a catalog query observation. Helper shared by the
// store so call sites stay one line.
func RecordQuery(operation string, start time.Time, err error) {
	duration := time.Since(start).Seconds()
	status := "success"
	if err != nil {
		status = "error"
	}
	DBQueryTotal.WithLabelValues(operation, status).Inc()
	DBQueryDuration.WithLabelValues(operation).Observe(duration)
}
