package store

import (
	"fmt"
	"time"

	"livecat/internal/catalog"
	"livecat/internal/metrics"
)

// RefreshCatalogDocs rebuilds the denormalized catalog_docs rows for a
// scope from the normalized tables. The table is purely derived, so the
// rebuild is a delete-and-reselect.
func (s *Store) RefreshCatalogDocs(scope catalog.Scope) error {
	start := time.Now()
	sfx := scope.TableSuffix()

	tx, err := s.BeginBatch()
	if err != nil {
		return err
	}

	err = func() error {
		if _, err := tx.Exec("DELETE FROM catalog_docs WHERE scope = ?", string(scope)); err != nil {
			return fmt.Errorf("clearing catalog_docs: %w", err)
		}

		query := fmt.Sprintf(`
			INSERT INTO catalog_docs
				(scope, path, ext, kind, status, tracks_total, clips_total,
				 device_count, ref_count, missing_refs, tempo, size, mtime, refreshed_at)
			SELECT
				?, d.path, d.ext, d.kind, d.status, d.tracks_total, d.clips_total,
				(SELECT COUNT(*) FROM entities%[1]s e WHERE e.doc_path = d.path AND e.entity = 'device'),
				(SELECT COUNT(*) FROM refs%[1]s r WHERE r.doc_path = d.path),
				(SELECT COUNT(*) FROM refs%[1]s r WHERE r.doc_path = d.path AND r.exists_now = 0),
				d.tempo, f.size, f.mtime, ?
			FROM docs%[1]s d
			LEFT JOIN file_index%[1]s f ON f.path = d.path`, sfx)

		if _, err := tx.Exec(query, string(scope), time.Now().Unix()); err != nil {
			return fmt.Errorf("rebuilding catalog_docs for %s: %w", scope, err)
		}
		return nil
	}()

	metrics.RecordQuery("refresh_catalog_docs", start, err)
	return s.EndBatch(tx, err)
}
