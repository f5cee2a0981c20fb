// Package store owns the SQLite catalog: schema creation, per-scope
// table access, batched transactions and the ingest offset bookkeeping
// that makes re-ingestion idempotent.
package store
