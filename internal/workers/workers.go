package workers

import (
	"os"
	"runtime"
	"strconv"
)

// Count returns the optimal number of workers for a given task type.
//
// The multiplier adjusts for task characteristics: 1.0 for CPU-bound
// tasks, more when workers also wait on I/O. The limit parameter caps
// the worker count; use 0 for no limit. Can be overridden with the
// SCAN_WORKERS environment variable.
func Count(multiplier float64, limit int) int {
	if override := os.Getenv("SCAN_WORKERS"); override != "" {
		if count, err := strconv.Atoi(override); err == nil && count > 0 {
			if limit > 0 && count > limit {
				return limit
			}
			return count
		}
	}

	available := runtime.GOMAXPROCS(0)
	workers := int(float64(available) * multiplier)
	if workers < 1 {
		workers = 1
	}
	if limit > 0 && workers > limit {
		workers = limit
	}
	return workers
}

// ForMixed returns the worker count for tasks that interleave I/O with
// CPU work (1.5 per CPU).
func ForMixed(limit int) int {
	return Count(1.5, limit)
}
