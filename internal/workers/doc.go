// Package workers provides helpers for sizing the scan worker pool.
//
// Worker counts are derived from GOMAXPROCS so container CPU limits are
// respected (Go 1.19+ sets GOMAXPROCS from cgroup limits, while
// runtime.NumCPU still reports the host). The SCAN_WORKERS environment
// variable overrides the automatic calculation.
package workers
