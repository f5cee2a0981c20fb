package scan

import "livecat/internal/store"

// Decision classifies a file against its prior catalog record.
type Decision string

const (
	// DecisionUnseen means no prior record exists; always processed.
	DecisionUnseen Decision = "unseen"
	// DecisionUnchanged means size and mtime match; skipped entirely.
	DecisionUnchanged Decision = "unchanged"
	// DecisionMetadataChanged means size or mtime diverged; the file is
	// re-processed and, for hashing modes that allow it, re-hashed.
	DecisionMetadataChanged Decision = "metadata_changed"
	// DecisionContentChanged means the content hash diverged while the
	// metadata did not: clock skew, or a restore that preserved mtime.
	DecisionContentChanged Decision = "content_changed"
)

// Decide compares observed metadata against the prior record. Hash
// comparison happens later, after the (expensive) hash is computed;
// Refine upgrades the decision when the hash disagrees.
func Decide(prior *store.PriorFile, size, mtime int64) Decision {
	if prior == nil {
		return DecisionUnseen
	}
	if prior.Size != size || prior.MTime != mtime {
		return DecisionMetadataChanged
	}
	return DecisionUnchanged
}

// Refine upgrades an Unchanged decision to ContentChanged when a fresh
// hash disagrees with the stored one. Any other decision stands: a
// metadata change already forces re-processing.
func Refine(d Decision, priorSHA1, freshSHA1 string) Decision {
	if d == DecisionUnchanged && priorSHA1 != "" && freshSHA1 != "" && priorSHA1 != freshSHA1 {
		return DecisionContentChanged
	}
	return d
}

// Processed reports whether a decision results in staging work.
func (d Decision) Processed() bool {
	return d != DecisionUnchanged
}
