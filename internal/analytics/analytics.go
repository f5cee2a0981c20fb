package analytics

import (
	"database/sql"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	"livecat/internal/catalog"
	"livecat/internal/logging"
	"livecat/internal/metrics"
	"livecat/internal/prefs"
	"livecat/internal/store"
)

// maxDevicesPerDoc skips pathological documents in the co-occurrence
// pass: a doc with hundreds of distinct devices would contribute a
// quadratic blob of pairs that says nothing about pairing habits.
const maxDevicesPerDoc = 50

// Options carry the configured knobs for derived metrics.
type Options struct {
	Weights     prefs.HealthWeights
	WindowsDays []int
	ChainLength int
}

// Refresh recomputes every derived metric table for a scope.
func Refresh(st *store.Store, scope catalog.Scope, opts Options) error {
	metrics.AnalyticsRunsTotal.Inc()
	if opts.ChainLength < 2 {
		opts.ChainLength = 3
	}
	if len(opts.WindowsDays) == 0 {
		opts.WindowsDays = []int{30, 90}
	}

	start := time.Now()
	passes := []struct {
		name string
		fn   func(*store.Store, catalog.Scope, Options) error
	}{
		{"set_health", refreshSetHealth},
		{"audio_footprint", refreshFootprint},
		{"device_usage", refreshDeviceUsage},
		{"device_cooccurrence", refreshCooccurrence},
		{"device_chains", refreshChains},
		{"duplicates", refreshDuplicates},
		{"missing_ref_hotspots", refreshHotspots},
		{"activity_windows", refreshActivity},
		{"library_growth", refreshGrowth},
	}
	for _, p := range passes {
		passStart := time.Now()
		err := p.fn(st, scope, opts)
		metrics.AnalyticsDuration.WithLabelValues(p.name).Observe(time.Since(passStart).Seconds())
		if err != nil {
			return fmt.Errorf("analytics pass %s for %s: %w", p.name, scope, err)
		}
	}

	logging.Info("Analytics for scope %s refreshed in %v", scope, time.Since(start).Round(time.Millisecond))
	return nil
}

// rebuild wraps the delete-and-recompute discipline shared by every
// pass: clear the scope's derived rows, run the computation, commit.
func rebuild(st *store.Store, scope catalog.Scope, table string, compute func(*sql.Tx) error) error {
	tx, err := st.BeginBatch()
	if err != nil {
		return err
	}
	batchErr := func() error {
		if _, err := tx.Exec(fmt.Sprintf("DELETE FROM %s WHERE scope = ?", table), string(scope)); err != nil {
			return fmt.Errorf("clearing %s: %w", table, err)
		}
		return compute(tx)
	}()
	return st.EndBatch(tx, batchErr)
}

// HealthScore applies the configured deductions, clamped at zero.
func HealthScore(w prefs.HealthWeights, missingRefs, silentTracks, emptyTracks int) float64 {
	score := 100.0 -
		w.MissingRef*float64(missingRefs) -
		w.SilentTrack*float64(silentTracks) -
		w.EmptyTrack*float64(emptyTracks)
	if score < 0 {
		return 0
	}
	return score
}

func refreshSetHealth(st *store.Store, scope catalog.Scope, opts Options) error {
	sfx := scope.TableSuffix()
	query := fmt.Sprintf(`
		SELECT d.path,
			(SELECT COUNT(*) FROM refs%[1]s r
			 WHERE r.doc_path = d.path AND r.exists_now = 0),
			(SELECT COUNT(*) FROM entities%[1]s t
			 WHERE t.doc_path = d.path AND t.entity = 'track'
			   AND NOT EXISTS (SELECT 1 FROM entities%[1]s dev
			                   WHERE dev.doc_path = d.path AND dev.entity = 'device'
			                     AND dev.track_index = t.idx)),
			(SELECT COUNT(*) FROM entities%[1]s t
			 WHERE t.doc_path = d.path AND t.entity = 'track'
			   AND NOT EXISTS (SELECT 1 FROM entities%[1]s c
			                   WHERE c.doc_path = d.path AND c.entity = 'clip'
			                     AND c.track_index = t.idx))
		FROM docs%[1]s d
		WHERE d.kind = 'document'`, sfx)

	type row struct {
		path                   string
		missing, silent, empty int
	}
	rows, err := st.Conn().Query(query)
	if err != nil {
		return err
	}
	var all []row
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.path, &r.missing, &r.silent, &r.empty); err != nil {
			rows.Close()
			return err
		}
		all = append(all, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	now := time.Now().Unix()
	return rebuild(st, scope, "set_health", func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`
			INSERT INTO set_health (scope, doc_path, score, missing_refs, silent_tracks, empty_tracks, computed_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, r := range all {
			score := HealthScore(opts.Weights, r.missing, r.silent, r.empty)
			if _, err := stmt.Exec(string(scope), r.path, score, r.missing, r.silent, r.empty, now); err != nil {
				return err
			}
		}
		return nil
	})
}

func refreshFootprint(st *store.Store, scope catalog.Scope, _ Options) error {
	sfx := scope.TableSuffix()
	db := st.Conn()

	var totalBytes, mediaFiles int64
	err := db.QueryRow(fmt.Sprintf(
		"SELECT COALESCE(SUM(size), 0), COUNT(*) FROM file_index%s WHERE kind = 'media'", sfx)).
		Scan(&totalBytes, &mediaFiles)
	if err != nil {
		return err
	}

	var referencedBytes int64
	err = db.QueryRow(fmt.Sprintf(`
		SELECT COALESCE(SUM(size), 0) FROM file_index%[1]s
		WHERE kind = 'media' AND path IN
			(SELECT resolved_path FROM refs%[1]s
			 WHERE exists_now = 1 AND resolved_path IS NOT NULL)`, sfx)).
		Scan(&referencedBytes)
	if err != nil {
		return err
	}

	now := time.Now().Unix()
	return rebuild(st, scope, "audio_footprint", func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO audio_footprint (scope, total_bytes, referenced_bytes, unreferenced_bytes, media_files, computed_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			string(scope), totalBytes, referencedBytes, totalBytes-referencedBytes, mediaFiles, now)
		return err
	})
}

func refreshDeviceUsage(st *store.Store, scope catalog.Scope, _ Options) error {
	now := time.Now().Unix()
	return rebuild(st, scope, "device_usage", func(tx *sql.Tx) error {
		_, err := tx.Exec(fmt.Sprintf(`
			INSERT INTO device_usage (scope, device, doc_count, instance_count, computed_at)
			SELECT ?, name, COUNT(DISTINCT doc_path), COUNT(*), ?
			FROM entities%s
			WHERE entity = 'device' AND name IS NOT NULL
			GROUP BY name`, scope.TableSuffix()),
			string(scope), now)
		return err
	})
}

// docDevices returns device names per document, ordered by appearance.
func docDevices(st *store.Store, scope catalog.Scope) (map[string][]string, error) {
	rows, err := st.Conn().Query(fmt.Sprintf(`
		SELECT doc_path, name FROM entities%s
		WHERE entity = 'device' AND name IS NOT NULL
		ORDER BY doc_path, idx`, scope.TableSuffix()))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byDoc := make(map[string][]string)
	for rows.Next() {
		var doc, name string
		if err := rows.Scan(&doc, &name); err != nil {
			return nil, err
		}
		byDoc[doc] = append(byDoc[doc], name)
	}
	return byDoc, rows.Err()
}

func refreshCooccurrence(st *store.Store, scope catalog.Scope, _ Options) error {
	byDoc, err := docDevices(st, scope)
	if err != nil {
		return err
	}

	type pair struct{ a, b string }
	counts := make(map[pair]int)
	for doc, seq := range byDoc {
		distinct := make(map[string]bool)
		for _, name := range seq {
			distinct[name] = true
		}
		if len(distinct) > maxDevicesPerDoc {
			logging.Debug("Skipping %s in co-occurrence: %d distinct devices", doc, len(distinct))
			continue
		}
		names := make([]string, 0, len(distinct))
		for name := range distinct {
			names = append(names, name)
		}
		sort.Strings(names)
		for i := 0; i < len(names); i++ {
			for j := i + 1; j < len(names); j++ {
				counts[pair{names[i], names[j]}]++
			}
		}
	}

	now := time.Now().Unix()
	return rebuild(st, scope, "device_cooccurrence", func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`
			INSERT INTO device_cooccurrence (scope, device_a, device_b, doc_count, computed_at)
			VALUES (?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for p, n := range counts {
			if _, err := stmt.Exec(string(scope), p.a, p.b, n, now); err != nil {
				return err
			}
		}
		return nil
	})
}

func refreshChains(st *store.Store, scope catalog.Scope, opts Options) error {
	byDoc, err := docDevices(st, scope)
	if err != nil {
		return err
	}

	counts := make(map[string]int)
	for _, seq := range byDoc {
		seen := make(map[string]bool)
		for i := 0; i+opts.ChainLength <= len(seq); i++ {
			chain := strings.Join(seq[i:i+opts.ChainLength], " > ")
			if !seen[chain] {
				seen[chain] = true
				counts[chain]++
			}
		}
	}

	now := time.Now().Unix()
	return rebuild(st, scope, "device_chains", func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`
			INSERT INTO device_chains (scope, chain, doc_count, computed_at)
			VALUES (?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for chain, n := range counts {
			if _, err := stmt.Exec(string(scope), chain, n, now); err != nil {
				return err
			}
		}
		return nil
	})
}

func refreshDuplicates(st *store.Store, scope catalog.Scope, _ Options) error {
	now := time.Now().Unix()
	return rebuild(st, scope, "duplicates", func(tx *sql.Tx) error {
		_, err := tx.Exec(fmt.Sprintf(`
			INSERT INTO duplicates (scope, sha1, size, copies, paths, computed_at)
			SELECT ?, sha1, size, COUNT(*), json_group_array(path), ?
			FROM file_index%s
			WHERE sha1 IS NOT NULL
			GROUP BY sha1, size
			HAVING COUNT(*) > 1`, scope.TableSuffix()),
			string(scope), now)
		return err
	})
}

func refreshHotspots(st *store.Store, scope catalog.Scope, _ Options) error {
	rows, err := st.Conn().Query(fmt.Sprintf(
		"SELECT doc_path, ref_path FROM refs%s WHERE exists_now = 0", scope.TableSuffix()))
	if err != nil {
		return err
	}

	type hotspot struct {
		missing int
		docs    map[string]bool
	}
	byParent := make(map[string]*hotspot)
	for rows.Next() {
		var doc, ref string
		if err := rows.Scan(&doc, &ref); err != nil {
			rows.Close()
			return err
		}
		parent := path.Dir(strings.ReplaceAll(ref, "\\", "/"))
		h := byParent[parent]
		if h == nil {
			h = &hotspot{docs: make(map[string]bool)}
			byParent[parent] = h
		}
		h.missing++
		h.docs[doc] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	now := time.Now().Unix()
	return rebuild(st, scope, "missing_ref_hotspots", func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`
			INSERT INTO missing_ref_hotspots (scope, parent, missing_count, doc_count, computed_at)
			VALUES (?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for parent, h := range byParent {
			if _, err := stmt.Exec(string(scope), parent, h.missing, len(h.docs), now); err != nil {
				return err
			}
		}
		return nil
	})
}

func refreshActivity(st *store.Store, scope catalog.Scope, opts Options) error {
	sfx := scope.TableSuffix()
	db := st.Conn()
	now := time.Now()

	type window struct {
		days              int
		files, priorFiles int64
		bytes, priorBytes int64
	}
	var windows []window
	for _, days := range opts.WindowsDays {
		cutoff := now.AddDate(0, 0, -days).Unix()
		priorCutoff := now.AddDate(0, 0, -2*days).Unix()

		var w window
		w.days = days
		if err := db.QueryRow(fmt.Sprintf(
			"SELECT COUNT(*), COALESCE(SUM(size), 0) FROM file_index%s WHERE mtime >= ?", sfx),
			cutoff).Scan(&w.files, &w.bytes); err != nil {
			return err
		}
		if err := db.QueryRow(fmt.Sprintf(
			"SELECT COUNT(*), COALESCE(SUM(size), 0) FROM file_index%s WHERE mtime >= ? AND mtime < ?", sfx),
			priorCutoff, cutoff).Scan(&w.priorFiles, &w.priorBytes); err != nil {
			return err
		}
		windows = append(windows, w)
	}

	return rebuild(st, scope, "activity_windows", func(tx *sql.Tx) error {
		for _, w := range windows {
			if _, err := tx.Exec(`
				INSERT INTO activity_windows (scope, window_days, files, bytes, prior_files, prior_bytes, computed_at)
				VALUES (?, ?, ?, ?, ?, ?, ?)`,
				string(scope), w.days, w.files, w.bytes, w.priorFiles, w.priorBytes, now.Unix()); err != nil {
				return err
			}
		}
		return nil
	})
}

func refreshGrowth(st *store.Store, scope catalog.Scope, _ Options) error {
	now := time.Now().Unix()
	return rebuild(st, scope, "library_growth", func(tx *sql.Tx) error {
		_, err := tx.Exec(fmt.Sprintf(`
			INSERT INTO library_growth (scope, month, files_added, bytes_added, computed_at)
			SELECT ?, strftime('%%Y-%%m', mtime, 'unixepoch'), COUNT(*), COALESCE(SUM(size), 0), ?
			FROM file_index%s
			GROUP BY 2`, scope.TableSuffix()),
			string(scope), now)
		return err
	})
}
