// Package scan walks a scope root, decides per file whether anything
// changed since the last run, and stages records for everything that
// did. Hashing and document extraction run on a bounded worker pool;
// the walk itself is deterministic (lexicographic) so checkpoints mark
// a meaningful resume point.
package scan
