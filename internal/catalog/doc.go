// Package catalog defines the shared data model of the pipeline: scopes,
// content kinds, file records, parsed documents and their structural
// entities, reference edges, and the backup-path exclusion rules.
package catalog
