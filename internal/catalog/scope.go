package catalog

import "fmt"

// Scope is a named partition of the catalog. Every entity belongs to
// exactly one scope; scopes never share identity.
type Scope string

const (
	// ScopeRecordings holds the user's working project tree.
	ScopeRecordings Scope = "recordings"
	// ScopeLibrary holds the shared user library.
	ScopeLibrary Scope = "library"
	// ScopePreferences holds application preference trees.
	ScopePreferences Scope = "preferences"
)

// Scopes lists all known scopes in a stable order.
var Scopes = []Scope{ScopeRecordings, ScopeLibrary, ScopePreferences}

// ParseScope validates a scope name from user input.
func ParseScope(s string) (Scope, error) {
	switch Scope(s) {
	case ScopeRecordings, ScopeLibrary, ScopePreferences:
		return Scope(s), nil
	}
	return "", fmt.Errorf("unknown scope %q (want recordings, library or preferences)", s)
}

// TableSuffix returns the per-scope table and stream suffix. The
// recordings scope uses unsuffixed names, matching the earliest catalog
// layouts so existing databases stay readable.
func (s Scope) TableSuffix() string {
	if s == ScopeRecordings {
		return ""
	}
	return "_" + string(s)
}

// StreamName returns the staged stream file name for this scope,
// e.g. StreamName("file_index") -> "file_index_library.jsonl".
func (s Scope) StreamName(base string) string {
	return base + s.TableSuffix() + ".jsonl"
}

// CheckpointName returns the scan checkpoint file name for this scope.
func (s Scope) CheckpointName() string {
	return "checkpoint" + s.TableSuffix() + ".json"
}
