// Package ingest merges staged JSONL streams into the SQLite catalog.
//
// Each stream carries a committed byte offset in the database. A batch
// of rows and the offset advance commit in one transaction, so a crash
// or constraint failure leaves both untouched and re-running ingestion
// is always safe: already-merged lines are never read twice, and
// replayed lines land on natural keys.
package ingest
