// Package query is the read-only surface over the catalog, shaped for
// presentation layers: aggregate stats, worst health scores, footprint,
// duplicate clusters, hotspots and device rankings, with sizes
// pre-formatted for humans.
package query
