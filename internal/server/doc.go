// Package server exposes the catalog's query surface as read-only JSON
// endpoints, plus Prometheus metrics. It serves presentation layers;
// nothing here mutates the catalog.
package server
