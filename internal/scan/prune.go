package scan

import (
	"errors"
	"os"
	"path/filepath"
	"sort"

	"livecat/internal/catalog"
	"livecat/internal/logging"
	"livecat/internal/store"
)

// Prune removes catalog rows for indexed paths that no longer exist
// under the root. Absence from a scan is only a signal; this is the
// explicit maintenance operation that acts on it.
func Prune(st *store.Store, scope catalog.Scope, root string) (int, error) {
	prior, err := st.LoadFileIndex(scope)
	if err != nil {
		return 0, err
	}

	var gone []string
	for path := range prior {
		_, statErr := os.Stat(filepath.Join(root, filepath.FromSlash(path)))
		if errors.Is(statErr, os.ErrNotExist) {
			gone = append(gone, path)
		}
	}
	if len(gone) == 0 {
		return 0, nil
	}
	sort.Strings(gone)

	tx, err := st.BeginBatch()
	if err != nil {
		return 0, err
	}
	batchErr := store.DeleteFileRecords(tx, scope, gone)
	if batchErr == nil {
		batchErr = store.DeleteDocuments(tx, scope, gone)
	}
	if err := st.EndBatch(tx, batchErr); err != nil {
		return 0, err
	}

	logging.Info("Pruned %d vanished paths from scope %s", len(gone), scope)
	return len(gone), st.RefreshCatalogDocs(scope)
}
