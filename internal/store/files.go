package store

import (
	"database/sql"
	"fmt"
	"time"

	"livecat/internal/catalog"
	"livecat/internal/metrics"
)

// PriorFile is the slice of a file record the scan decision engine
// compares against: size, mtime and the last known content hash.
type PriorFile struct {
	Size  int64
	MTime int64
	SHA1  string
}

// LoadFileIndex returns the prior state of every indexed file in a
// scope, keyed by scope-relative path.
func (s *Store) LoadFileIndex(scope catalog.Scope) (map[string]PriorFile, error) {
	start := time.Now()
	query := fmt.Sprintf(
		"SELECT path, size, mtime, COALESCE(sha1, '') FROM file_index%s", scope.TableSuffix())

	rows, err := s.db.Query(query)
	metrics.RecordQuery("load_file_index", start, err)
	if err != nil {
		return nil, fmt.Errorf("loading file index for %s: %w", scope, err)
	}
	defer rows.Close()

	prior := make(map[string]PriorFile)
	for rows.Next() {
		var path string
		var pf PriorFile
		if err := rows.Scan(&path, &pf.Size, &pf.MTime, &pf.SHA1); err != nil {
			return nil, fmt.Errorf("scanning file index row: %w", err)
		}
		prior[path] = pf
	}
	return prior, rows.Err()
}

// UpsertFileRecord merges one file record on its path key.
func UpsertFileRecord(tx *sql.Tx, scope catalog.Scope, r *catalog.FileRecord) error {
	query := fmt.Sprintf(`
		INSERT INTO file_index%s (path, name, parent, ext, size, mtime, ctime, kind, sha1, sha1_error, scanned_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			name = excluded.name,
			parent = excluded.parent,
			ext = excluded.ext,
			size = excluded.size,
			mtime = excluded.mtime,
			ctime = excluded.ctime,
			kind = excluded.kind,
			sha1 = COALESCE(excluded.sha1, file_index%s.sha1),
			sha1_error = excluded.sha1_error,
			scanned_at = excluded.scanned_at`,
		scope.TableSuffix(), scope.TableSuffix())

	_, err := tx.Exec(query,
		r.Path, r.Name, r.Parent, r.Ext, r.Size, r.ModTime, nullableInt(r.CTime),
		string(r.Kind), nullableStr(r.SHA1), nullableStr(r.HashError), r.ScannedAt)
	if err != nil {
		return fmt.Errorf("upserting file %s: %w", r.Path, err)
	}
	return nil
}

// DeleteFileRecords removes paths that disappeared between scans.
func DeleteFileRecords(tx *sql.Tx, scope catalog.Scope, paths []string) error {
	stmt, err := tx.Prepare(fmt.Sprintf("DELETE FROM file_index%s WHERE path = ?", scope.TableSuffix()))
	if err != nil {
		return fmt.Errorf("preparing delete: %w", err)
	}
	defer stmt.Close()

	for _, p := range paths {
		if _, err := stmt.Exec(p); err != nil {
			return fmt.Errorf("deleting file %s: %w", p, err)
		}
	}
	return nil
}

// GetOffset returns the committed ingest offset for a stream, or 0 if
// the stream has never been ingested.
func (s *Store) GetOffset(scope catalog.Scope, stream string) (int64, error) {
	start := time.Now()
	var offset int64
	err := s.db.QueryRow(
		"SELECT offset FROM ingest_offsets WHERE scope = ? AND stream = ?",
		string(scope), stream).Scan(&offset)
	if err == sql.ErrNoRows {
		metrics.RecordQuery("get_offset", start, nil)
		return 0, nil
	}
	metrics.RecordQuery("get_offset", start, err)
	if err != nil {
		return 0, fmt.Errorf("reading ingest offset for %s/%s: %w", scope, stream, err)
	}
	return offset, nil
}

// SetOffset records the new ingest offset inside the batch transaction,
// so rows and cursor advance together or not at all.
func SetOffset(tx *sql.Tx, scope catalog.Scope, stream string, offset int64) error {
	_, err := tx.Exec(`
		INSERT INTO ingest_offsets (scope, stream, offset, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(scope, stream) DO UPDATE SET
			offset = excluded.offset,
			updated_at = excluded.updated_at`,
		string(scope), stream, offset, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("advancing ingest offset for %s/%s: %w", scope, stream, err)
	}
	return nil
}

func nullableStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullableInt(n int64) any {
	if n == 0 {
		return nil
	}
	return n
}
