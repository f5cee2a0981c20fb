package query

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"

	"livecat/internal/catalog"
	"livecat/internal/metrics"
	"livecat/internal/store"
)

// Service answers read-only questions about one catalog.
type Service struct {
	st *store.Store
}

// New wraps a store in a query service.
func New(st *store.Store) *Service {
	return &Service{st: st}
}

// Stats is the scope-level aggregate view.
type Stats struct {
	Scope       catalog.Scope `json:"scope"`
	Files       int64         `json:"files"`
	Documents   int64         `json:"documents"`
	ParseFailed int64         `json:"parse_failed"`
	Entities    int64         `json:"entities"`
	References  int64         `json:"references"`
	MissingRefs int64         `json:"missing_refs"`
	TotalBytes  int64         `json:"total_bytes"`
	TotalSize   string        `json:"total_size"`
}

// Stats aggregates the scope's normalized tables.
func (s *Service) Stats(scope catalog.Scope) (*Stats, error) {
	start := time.Now()
	sfx := scope.TableSuffix()
	db := s.st.Conn()
	out := &Stats{Scope: scope}

	err := func() error {
		if err := db.QueryRow(fmt.Sprintf(
			"SELECT COUNT(*), COALESCE(SUM(size), 0) FROM file_index%s", sfx)).
			Scan(&out.Files, &out.TotalBytes); err != nil {
			return err
		}
		if err := db.QueryRow(fmt.Sprintf(
			"SELECT COUNT(*), COALESCE(SUM(status = 'failed'), 0) FROM docs%s", sfx)).
			Scan(&out.Documents, &out.ParseFailed); err != nil {
			return err
		}
		if err := db.QueryRow(fmt.Sprintf(
			"SELECT COUNT(*) FROM entities%s", sfx)).Scan(&out.Entities); err != nil {
			return err
		}
		return db.QueryRow(fmt.Sprintf(
			"SELECT COUNT(*), COALESCE(SUM(exists_now = 0), 0) FROM refs%s", sfx)).
			Scan(&out.References, &out.MissingRefs)
	}()
	metrics.RecordQuery("stats", start, err)
	if err != nil {
		return nil, fmt.Errorf("computing stats for %s: %w", scope, err)
	}

	out.TotalSize = humanize.Bytes(uint64(out.TotalBytes))
	return out, nil
}

// HealthRow is one document's health summary.
type HealthRow struct {
	Path         string  `json:"path"`
	Score        float64 `json:"score"`
	MissingRefs  int     `json:"missing_refs"`
	SilentTracks int     `json:"silent_tracks"`
	EmptyTracks  int     `json:"empty_tracks"`
}

// WorstHealth lists the lowest-scoring documents first.
func (s *Service) WorstHealth(scope catalog.Scope, limit int) ([]HealthRow, error) {
	start := time.Now()
	rows, err := s.st.Conn().Query(`
		SELECT doc_path, score, missing_refs, silent_tracks, empty_tracks
		FROM set_health WHERE scope = ?
		ORDER BY score ASC, doc_path
		LIMIT ?`, string(scope), clampLimit(limit))
	metrics.RecordQuery("worst_health", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []HealthRow
	for rows.Next() {
		var h HealthRow
		if err := rows.Scan(&h.Path, &h.Score, &h.MissingRefs, &h.SilentTracks, &h.EmptyTracks); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// Footprint is the humanized audio footprint for a scope.
type Footprint struct {
	Scope        catalog.Scope `json:"scope"`
	MediaFiles   int64         `json:"media_files"`
	Total        string        `json:"total"`
	Referenced   string        `json:"referenced"`
	Unreferenced string        `json:"unreferenced"`
	TotalBytes   int64         `json:"total_bytes"`
	RefBytes     int64         `json:"referenced_bytes"`
	UnrefBytes   int64         `json:"unreferenced_bytes"`
}

// Footprint reads the derived audio footprint row.
func (s *Service) Footprint(scope catalog.Scope) (*Footprint, error) {
	start := time.Now()
	out := &Footprint{Scope: scope}
	err := s.st.Conn().QueryRow(`
		SELECT total_bytes, referenced_bytes, unreferenced_bytes, media_files
		FROM audio_footprint WHERE scope = ?`, string(scope)).
		Scan(&out.TotalBytes, &out.RefBytes, &out.UnrefBytes, &out.MediaFiles)
	if err == sql.ErrNoRows {
		// Analytics never ran for this scope; an all-zero footprint is
		// more useful to callers than an error.
		err = nil
	}
	metrics.RecordQuery("footprint", start, err)
	if err != nil {
		return nil, err
	}

	out.Total = humanize.Bytes(uint64(out.TotalBytes))
	out.Referenced = humanize.Bytes(uint64(out.RefBytes))
	out.Unreferenced = humanize.Bytes(uint64(out.UnrefBytes))
	return out, nil
}

// DuplicateCluster is one group of byte-identical files.
type DuplicateCluster struct {
	SHA1   string   `json:"sha1"`
	Size   string   `json:"size"`
	Bytes  int64    `json:"bytes"`
	Copies int      `json:"copies"`
	Wasted string   `json:"wasted"`
	Paths  []string `json:"paths"`
}

// Duplicates lists duplicate clusters, largest waste first.
func (s *Service) Duplicates(scope catalog.Scope, limit int) ([]DuplicateCluster, error) {
	start := time.Now()
	rows, err := s.st.Conn().Query(`
		SELECT sha1, size, copies, paths
		FROM duplicates WHERE scope = ?
		ORDER BY size * (copies - 1) DESC
		LIMIT ?`, string(scope), clampLimit(limit))
	metrics.RecordQuery("duplicates", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DuplicateCluster
	for rows.Next() {
		var c DuplicateCluster
		var paths string
		if err := rows.Scan(&c.SHA1, &c.Bytes, &c.Copies, &paths); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(paths), &c.Paths); err != nil {
			c.Paths = []string{paths}
		}
		c.Size = humanize.Bytes(uint64(c.Bytes))
		c.Wasted = humanize.Bytes(uint64(c.Bytes * int64(c.Copies-1)))
		out = append(out, c)
	}
	return out, rows.Err()
}

// Hotspot is one folder ranked by missing references into it.
type Hotspot struct {
	Parent       string `json:"parent"`
	MissingCount int    `json:"missing_count"`
	DocCount     int    `json:"doc_count"`
}

// Hotspots ranks folders by missing-reference count.
func (s *Service) Hotspots(scope catalog.Scope, limit int) ([]Hotspot, error) {
	start := time.Now()
	rows, err := s.st.Conn().Query(`
		SELECT parent, missing_count, doc_count
		FROM missing_ref_hotspots WHERE scope = ?
		ORDER BY missing_count DESC, parent
		LIMIT ?`, string(scope), clampLimit(limit))
	metrics.RecordQuery("hotspots", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Hotspot
	for rows.Next() {
		var h Hotspot
		if err := rows.Scan(&h.Parent, &h.MissingCount, &h.DocCount); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// DeviceRank is one device usage row.
type DeviceRank struct {
	Device    string `json:"device"`
	DocCount  int    `json:"doc_count"`
	Instances int    `json:"instances"`
}

// TopDevices ranks devices by the number of documents using them.
func (s *Service) TopDevices(scope catalog.Scope, limit int) ([]DeviceRank, error) {
	start := time.Now()
	rows, err := s.st.Conn().Query(`
		SELECT device, doc_count, instance_count
		FROM device_usage WHERE scope = ?
		ORDER BY doc_count DESC, device
		LIMIT ?`, string(scope), clampLimit(limit))
	metrics.RecordQuery("top_devices", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DeviceRank
	for rows.Next() {
		var d DeviceRank
		if err := rows.Scan(&d.Device, &d.DocCount, &d.Instances); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// PairRank is one device co-occurrence row.
type PairRank struct {
	DeviceA  string `json:"device_a"`
	DeviceB  string `json:"device_b"`
	DocCount int    `json:"doc_count"`
}

// TopPairs ranks unordered device pairs by shared documents.
func (s *Service) TopPairs(scope catalog.Scope, limit int) ([]PairRank, error) {
	start := time.Now()
	rows, err := s.st.Conn().Query(`
		SELECT device_a, device_b, doc_count
		FROM device_cooccurrence WHERE scope = ?
		ORDER BY doc_count DESC, device_a, device_b
		LIMIT ?`, string(scope), clampLimit(limit))
	metrics.RecordQuery("top_pairs", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PairRank
	for rows.Next() {
		var p PairRank
		if err := rows.Scan(&p.DeviceA, &p.DeviceB, &p.DocCount); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ChainRank is one device chain row.
type ChainRank struct {
	Chain    string `json:"chain"`
	DocCount int    `json:"doc_count"`
}

// TopChains ranks ordered device chains by the documents they appear in.
func (s *Service) TopChains(scope catalog.Scope, limit int) ([]ChainRank, error) {
	start := time.Now()
	rows, err := s.st.Conn().Query(`
		SELECT chain, doc_count
		FROM device_chains WHERE scope = ?
		ORDER BY doc_count DESC, chain
		LIMIT ?`, string(scope), clampLimit(limit))
	metrics.RecordQuery("top_chains", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ChainRank
	for rows.Next() {
		var c ChainRank
		if err := rows.Scan(&c.Chain, &c.DocCount); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// LargestSet is one catalog_docs row ranked by file size.
type LargestSet struct {
	Path   string `json:"path"`
	Size   string `json:"size"`
	Bytes  int64  `json:"bytes"`
	Tracks int    `json:"tracks"`
	Clips  int    `json:"clips"`
}

// LargestSets ranks documents by on-disk size, from the denormalized
// summary table.
func (s *Service) LargestSets(scope catalog.Scope, limit int) ([]LargestSet, error) {
	start := time.Now()
	rows, err := s.st.Conn().Query(`
		SELECT path, COALESCE(size, 0), tracks_total, clips_total
		FROM catalog_docs WHERE scope = ?
		ORDER BY size DESC, path
		LIMIT ?`, string(scope), clampLimit(limit))
	metrics.RecordQuery("largest_sets", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []LargestSet
	for rows.Next() {
		var l LargestSet
		if err := rows.Scan(&l.Path, &l.Bytes, &l.Tracks, &l.Clips); err != nil {
			return nil, err
		}
		l.Size = humanize.Bytes(uint64(l.Bytes))
		out = append(out, l)
	}
	return out, rows.Err()
}

// ActivityWindow is one trailing-window activity row.
type ActivityWindow struct {
	WindowDays int    `json:"window_days"`
	Files      int64  `json:"files"`
	Bytes      int64  `json:"bytes"`
	Size       string `json:"size"`
	PriorFiles int64  `json:"prior_files"`
	PriorBytes int64  `json:"prior_bytes"`
	PriorSize  string `json:"prior_size"`
}

// Activity returns the trailing activity windows for a scope.
func (s *Service) Activity(scope catalog.Scope) ([]ActivityWindow, error) {
	start := time.Now()
	rows, err := s.st.Conn().Query(`
		SELECT window_days, files, bytes, prior_files, prior_bytes
		FROM activity_windows WHERE scope = ?
		ORDER BY window_days`, string(scope))
	metrics.RecordQuery("activity", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ActivityWindow
	for rows.Next() {
		var w ActivityWindow
		if err := rows.Scan(&w.WindowDays, &w.Files, &w.Bytes, &w.PriorFiles, &w.PriorBytes); err != nil {
			return nil, err
		}
		w.Size = humanize.Bytes(uint64(w.Bytes))
		w.PriorSize = humanize.Bytes(uint64(w.PriorBytes))
		out = append(out, w)
	}
	return out, rows.Err()
}

// GrowthMonth is one month of library growth, keyed by file mtime.
type GrowthMonth struct {
	Month string `json:"month"`
	Files int64  `json:"files"`
	Bytes int64  `json:"bytes"`
	Size  string `json:"size"`
}

// Growth returns the monthly file and byte histogram for a scope.
func (s *Service) Growth(scope catalog.Scope) ([]GrowthMonth, error) {
	start := time.Now()
	rows, err := s.st.Conn().Query(`
		SELECT month, files_added, bytes_added
		FROM library_growth WHERE scope = ?
		ORDER BY month`, string(scope))
	metrics.RecordQuery("growth", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []GrowthMonth
	for rows.Next() {
		var g GrowthMonth
		if err := rows.Scan(&g.Month, &g.Files, &g.Bytes); err != nil {
			return nil, err
		}
		g.Size = humanize.Bytes(uint64(g.Bytes))
		out = append(out, g)
	}
	return out, rows.Err()
}

func clampLimit(limit int) int {
	if limit < 1 || limit > 500 {
		return 25
	}
	return limit
}
