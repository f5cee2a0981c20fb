package store

import (
	"database/sql"
	"fmt"
	"strings"

	"livecat/internal/catalog"
	"livecat/internal/logging"
)

// Per-scope tables are created once for every known scope at open time,
// so ingestion never races schema creation. Scope is encoded in the
// table name suffix rather than a column; the scopes never join.
const scopedSchema = `
CREATE TABLE IF NOT EXISTS file_index%[1]s (
	path TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	parent TEXT NOT NULL,
	ext TEXT NOT NULL,
	size INTEGER NOT NULL,
	mtime INTEGER NOT NULL,
	ctime INTEGER,
	kind TEXT NOT NULL,
	sha1 TEXT,
	sha1_error TEXT,
	scanned_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_file_index%[1]s_parent ON file_index%[1]s(parent);
CREATE INDEX IF NOT EXISTS idx_file_index%[1]s_kind ON file_index%[1]s(kind);
CREATE INDEX IF NOT EXISTS idx_file_index%[1]s_sha1 ON file_index%[1]s(sha1) WHERE sha1 IS NOT NULL;

CREATE TABLE IF NOT EXISTS docs%[1]s (
	path TEXT PRIMARY KEY,
	ext TEXT NOT NULL,
	kind TEXT NOT NULL,
	status TEXT NOT NULL,
	error TEXT,
	tracks_audio INTEGER NOT NULL DEFAULT 0,
	tracks_midi INTEGER NOT NULL DEFAULT 0,
	tracks_return INTEGER NOT NULL DEFAULT 0,
	tracks_master INTEGER NOT NULL DEFAULT 0,
	tracks_total INTEGER NOT NULL DEFAULT 0,
	clips_audio INTEGER NOT NULL DEFAULT 0,
	clips_midi INTEGER NOT NULL DEFAULT 0,
	clips_total INTEGER NOT NULL DEFAULT 0,
	devices_total INTEGER NOT NULL DEFAULT 0,
	routing_total INTEGER NOT NULL DEFAULT 0,
	tempo REAL,
	scanned_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_docs%[1]s_status ON docs%[1]s(status);

CREATE TABLE IF NOT EXISTS entities%[1]s (
	doc_path TEXT NOT NULL,
	entity TEXT NOT NULL,
	idx INTEGER NOT NULL,
	track_index INTEGER NOT NULL DEFAULT -1,
	type TEXT,
	name TEXT,
	length REAL,
	direction TEXT,
	value TEXT,
	meta TEXT,
	PRIMARY KEY (doc_path, entity, idx)
);
CREATE INDEX IF NOT EXISTS idx_entities%[1]s_kind_name ON entities%[1]s(entity, name);

CREATE TABLE IF NOT EXISTS refs%[1]s (
	doc_path TEXT NOT NULL,
	ref_path TEXT NOT NULL,
	ref_kind TEXT NOT NULL,
	resolved_path TEXT,
	exists_now INTEGER NOT NULL,
	scanned_at INTEGER NOT NULL,
	PRIMARY KEY (doc_path, ref_path)
);
CREATE INDEX IF NOT EXISTS idx_refs%[1]s_missing ON refs%[1]s(exists_now) WHERE exists_now = 0;
`

// Shared tables: ingest bookkeeping and derived analytics. Analytics
// tables are recomputed wholesale, so they carry a computed_at stamp
// instead of per-row provenance.
const sharedSchema = `
CREATE TABLE IF NOT EXISTS ingest_offsets (
	scope TEXT NOT NULL,
	stream TEXT NOT NULL,
	offset INTEGER NOT NULL DEFAULT 0,
	updated_at INTEGER NOT NULL,
	PRIMARY KEY (scope, stream)
);

CREATE TABLE IF NOT EXISTS set_health (
	scope TEXT NOT NULL,
	doc_path TEXT NOT NULL,
	score REAL NOT NULL,
	missing_refs INTEGER NOT NULL,
	silent_tracks INTEGER NOT NULL,
	empty_tracks INTEGER NOT NULL,
	computed_at INTEGER NOT NULL,
	PRIMARY KEY (scope, doc_path)
);

CREATE TABLE IF NOT EXISTS audio_footprint (
	scope TEXT PRIMARY KEY,
	total_bytes INTEGER NOT NULL,
	referenced_bytes INTEGER NOT NULL,
	unreferenced_bytes INTEGER NOT NULL,
	media_files INTEGER NOT NULL,
	computed_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS device_cooccurrence (
	scope TEXT NOT NULL,
	device_a TEXT NOT NULL,
	device_b TEXT NOT NULL,
	doc_count INTEGER NOT NULL,
	computed_at INTEGER NOT NULL,
	PRIMARY KEY (scope, device_a, device_b)
);

CREATE TABLE IF NOT EXISTS device_usage (
	scope TEXT NOT NULL,
	device TEXT NOT NULL,
	doc_count INTEGER NOT NULL,
	instance_count INTEGER NOT NULL,
	computed_at INTEGER NOT NULL,
	PRIMARY KEY (scope, device)
);

CREATE TABLE IF NOT EXISTS device_chains (
	scope TEXT NOT NULL,
	chain TEXT NOT NULL,
	doc_count INTEGER NOT NULL,
	computed_at INTEGER NOT NULL,
	PRIMARY KEY (scope, chain)
);

CREATE TABLE IF NOT EXISTS duplicates (
	scope TEXT NOT NULL,
	sha1 TEXT NOT NULL,
	size INTEGER NOT NULL,
	copies INTEGER NOT NULL,
	paths TEXT NOT NULL,
	computed_at INTEGER NOT NULL,
	PRIMARY KEY (scope, sha1, size)
);

CREATE TABLE IF NOT EXISTS missing_ref_hotspots (
	scope TEXT NOT NULL,
	parent TEXT NOT NULL,
	missing_count INTEGER NOT NULL,
	doc_count INTEGER NOT NULL,
	computed_at INTEGER NOT NULL,
	PRIMARY KEY (scope, parent)
);

CREATE TABLE IF NOT EXISTS activity_windows (
	scope TEXT NOT NULL,
	window_days INTEGER NOT NULL,
	files INTEGER NOT NULL,
	bytes INTEGER NOT NULL,
	prior_files INTEGER NOT NULL,
	prior_bytes INTEGER NOT NULL,
	computed_at INTEGER NOT NULL,
	PRIMARY KEY (scope, window_days)
);

CREATE TABLE IF NOT EXISTS library_growth (
	scope TEXT NOT NULL,
	month TEXT NOT NULL,
	files_added INTEGER NOT NULL,
	bytes_added INTEGER NOT NULL,
	computed_at INTEGER NOT NULL,
	PRIMARY KEY (scope, month)
);

CREATE TABLE IF NOT EXISTS catalog_docs (
	scope TEXT NOT NULL,
	path TEXT NOT NULL,
	ext TEXT NOT NULL,
	kind TEXT NOT NULL,
	status TEXT NOT NULL,
	tracks_total INTEGER NOT NULL,
	clips_total INTEGER NOT NULL,
	device_count INTEGER NOT NULL,
	ref_count INTEGER NOT NULL,
	missing_refs INTEGER NOT NULL,
	tempo REAL,
	size INTEGER,
	mtime INTEGER,
	refreshed_at INTEGER NOT NULL,
	PRIMARY KEY (scope, path)
);
`

func (s *Store) initSchema() error {
	var sb strings.Builder
	for _, scope := range catalog.Scopes {
		fmt.Fprintf(&sb, scopedSchema, scope.TableSuffix())
	}
	sb.WriteString(sharedSchema)

	if _, err := s.db.Exec(sb.String()); err != nil {
		return fmt.Errorf("initializing schema: %w", err)
	}
	return s.runMigrations()
}

// runMigrations adds columns introduced after the initial schema so
// older catalog files keep working. CREATE TABLE IF NOT EXISTS never
// touches existing tables, so late columns need explicit ALTERs.
func (s *Store) runMigrations() error {
	for _, scope := range catalog.Scopes {
		sfx := scope.TableSuffix()
		migrations := []struct {
			table, column, decl string
		}{
			{"file_index" + sfx, "ctime", "INTEGER"},
			{"file_index" + sfx, "sha1_error", "TEXT"},
			{"docs" + sfx, "tempo", "REAL"},
			{"docs" + sfx, "devices_total", "INTEGER NOT NULL DEFAULT 0"},
			{"docs" + sfx, "routing_total", "INTEGER NOT NULL DEFAULT 0"},
			{"refs" + sfx, "ref_kind", "TEXT NOT NULL DEFAULT 'media'"},
			{"refs" + sfx, "resolved_path", "TEXT"},
		}
		for _, m := range migrations {
			if err := s.ensureColumn(m.table, m.column, m.decl); err != nil {
				return err
			}
		}
	}
	return nil
}

// ensureColumn adds a column if the table does not already have it.
func (s *Store) ensureColumn(table, column, decl string) error {
	rows, err := s.db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return fmt.Errorf("inspecting %s: %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var cid int
		var name, ctype string
		var notNull, pk int
		var dflt sql.NullString
		if err := rows.Scan(&cid, &name, &ctype, &notNull, &dflt, &pk); err != nil {
			return fmt.Errorf("scanning table info for %s: %w", table, err)
		}
		if name == column {
			return nil
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	if _, err := s.db.Exec(fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, decl)); err != nil {
		return fmt.Errorf("adding column %s.%s: %w", table, column, err)
	}
	logging.Info("Migrated schema: added column %s.%s", table, column)
	return nil
}
