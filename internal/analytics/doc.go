// Package analytics derives metric tables from the ingested catalog.
//
// Every metric is stateless and rebuilt wholesale on refresh: the
// scope's derived rows are deleted and recomputed from the normalized
// tables inside one transaction. Nothing here is a source of truth.
package analytics
