package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"livecat/internal/catalog"
)

// UpsertDocument merges a document summary row. Stale child rows from a
// previous parse of the same document are removed here, before the
// entity and ref streams for the new parse are ingested.
func UpsertDocument(tx *sql.Tx, scope catalog.Scope, d *catalog.Document) error {
	sfx := scope.TableSuffix()

	for _, table := range []string{"entities", "refs"} {
		if _, err := tx.Exec(
			fmt.Sprintf("DELETE FROM %s%s WHERE doc_path = ?", table, sfx), d.Path); err != nil {
			return fmt.Errorf("clearing %s for %s: %w", table, d.Path, err)
		}
	}

	query := fmt.Sprintf(`
		INSERT OR REPLACE INTO docs%s
			(path, ext, kind, status, error,
			 tracks_audio, tracks_midi, tracks_return, tracks_master, tracks_total,
			 clips_audio, clips_midi, clips_total, devices_total, routing_total,
			 tempo, scanned_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, sfx)

	_, err := tx.Exec(query,
		d.Path, d.Ext, string(d.Kind), string(d.Status), nullableStr(d.Error),
		d.AudioTracks, d.MidiTracks, d.ReturnTrk, d.MasterTrk, d.TotalTracks,
		d.AudioClips, d.MidiClips, d.TotalClips, d.DevicesTotal, d.RoutingTotal,
		nullableFloat(d.Tempo), d.ScannedAt)
	if err != nil {
		return fmt.Errorf("upserting document %s: %w", d.Path, err)
	}
	return nil
}

// UpsertEntity merges one structural entity on (doc_path, entity, idx).
func UpsertEntity(tx *sql.Tx, scope catalog.Scope, e *catalog.Entity) error {
	var meta any
	if len(e.Meta) > 0 {
		b, err := json.Marshal(e.Meta)
		if err != nil {
			return fmt.Errorf("marshaling entity meta: %w", err)
		}
		meta = string(b)
	}

	query := fmt.Sprintf(`
		INSERT OR REPLACE INTO entities%s
			(doc_path, entity, idx, track_index, type, name, length, direction, value, meta)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, scope.TableSuffix())

	_, err := tx.Exec(query,
		e.DocPath, string(e.Kind), e.Index, e.TrackIndex,
		nullableStr(e.Type), nullableStr(e.Name), nullableFloat(e.Length),
		nullableStr(e.Direction), nullableStr(e.Value), meta)
	if err != nil {
		return fmt.Errorf("upserting entity %s/%s/%d: %w", e.DocPath, e.Kind, e.Index, err)
	}
	return nil
}

// TrimDocEntities removes entity rows beyond the per-kind totals of the
// document's latest parse. A document staged twice before one ingest
// merges the union of both parses' entity blocks: overlapping indices
// land on their natural keys, but the earlier parse's higher indices
// would survive without this trim.
func TrimDocEntities(tx *sql.Tx, scope catalog.Scope, d *catalog.Document) error {
	stmt, err := tx.Prepare(fmt.Sprintf(
		"DELETE FROM entities%s WHERE doc_path = ? AND entity = ? AND idx >= ?", scope.TableSuffix()))
	if err != nil {
		return fmt.Errorf("preparing entity trim: %w", err)
	}
	defer stmt.Close()

	counts := map[catalog.EntityKind]int{
		catalog.EntityTrack:   d.TotalTracks,
		catalog.EntityClip:    d.TotalClips,
		catalog.EntityDevice:  d.DevicesTotal,
		catalog.EntityRouting: d.RoutingTotal,
	}
	for kind, count := range counts {
		if _, err := stmt.Exec(d.Path, string(kind), count); err != nil {
			return fmt.Errorf("trimming stale %s rows for %s: %w", kind, d.Path, err)
		}
	}
	return nil
}

// UpsertRef merges one reference edge on (doc_path, ref_path).
func UpsertRef(tx *sql.Tx, scope catalog.Scope, r *catalog.ReferenceEdge) error {
	query := fmt.Sprintf(`
		INSERT OR REPLACE INTO refs%s (doc_path, ref_path, ref_kind, resolved_path, exists_now, scanned_at)
		VALUES (?, ?, ?, ?, ?, ?)`, scope.TableSuffix())

	_, err := tx.Exec(query, r.DocPath, r.RefPath, r.RefKind, nullableStr(r.ResolvedPath), boolInt(r.Exists), r.ScannedAt)
	if err != nil {
		return fmt.Errorf("upserting ref %s -> %s: %w", r.DocPath, r.RefPath, err)
	}
	return nil
}

// DeleteDocuments removes document rows and their children for paths
// that no longer exist. Only maintenance pruning calls this; normal
// scans never delete.
func DeleteDocuments(tx *sql.Tx, scope catalog.Scope, paths []string) error {
	sfx := scope.TableSuffix()
	for _, table := range []string{"docs", "entities", "refs"} {
		column := "path"
		if table != "docs" {
			column = "doc_path"
		}
		stmt, err := tx.Prepare(fmt.Sprintf("DELETE FROM %s%s WHERE %s = ?", table, sfx, column))
		if err != nil {
			return fmt.Errorf("preparing %s delete: %w", table, err)
		}
		for _, p := range paths {
			if _, err := stmt.Exec(p); err != nil {
				stmt.Close()
				return fmt.Errorf("deleting %s rows for %s: %w", table, p, err)
			}
		}
		stmt.Close()
	}
	return nil
}

func nullableFloat(f float64) any {
	if f == 0 {
		return nil
	}
	return f
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
