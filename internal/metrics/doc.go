// Package metrics defines the Prometheus instrumentation for the
// scan/stage/ingest pipeline and the catalog store.
//
// All metrics are registered via promauto at package init and exported
// from the serve command's /metrics endpoint.
package metrics
