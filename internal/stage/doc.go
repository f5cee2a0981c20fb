// Package stage persists scan output as append-only JSONL streams in
// the catalog directory, one file per (scope, stream). Appends are
// whole lines written in a single call so concurrent writers never
// interleave, and ingestion can tail the files by byte offset.
package stage
