package analytics

import (
	"path/filepath"
	"testing"
	"time"

	"livecat/internal/catalog"
	"livecat/internal/prefs"
	"livecat/internal/store"
)

func defaultOptions() Options {
	return Options{
		Weights:     prefs.HealthWeights{MissingRef: 15, SilentTrack: 5, EmptyTrack: 3},
		WindowsDays: []int{30, 90},
		ChainLength: 3,
	}
}

// seed fills the recordings scope with a small but complete catalog:
// one set with a silent and an empty track, one missing and one live
// reference, referenced and unreferenced media, and a duplicate pair.
func seed(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "catalog.sqlite"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	scope := catalog.ScopeRecordings
	now := time.Now().Unix()
	tx, err := s.BeginBatch()
	if err != nil {
		t.Fatal(err)
	}

	files := []catalog.FileRecord{
		{Path: "Samples/kick.wav", Name: "kick.wav", Parent: "Samples", Ext: ".wav",
			Size: 100, ModTime: now - 5*86400, Kind: catalog.KindMedia, SHA1: "hash-kick", ScannedAt: now},
		{Path: "Samples/unused.wav", Name: "unused.wav", Parent: "Samples", Ext: ".wav",
			Size: 200, ModTime: now - 40*86400, Kind: catalog.KindMedia, SHA1: "hash-unused", ScannedAt: now},
		{Path: "song.als", Name: "song.als", Parent: ".", Ext: ".als",
			Size: 50, ModTime: now - 5*86400, Kind: catalog.KindDocument, SHA1: "hash-song", ScannedAt: now},
		{Path: "copy of song.als", Name: "copy of song.als", Parent: ".", Ext: ".als",
			Size: 50, ModTime: now - 5*86400, Kind: catalog.KindDocument, SHA1: "hash-song", ScannedAt: now},
	}
	for i := range files {
		if err := store.UpsertFileRecord(tx, scope, &files[i]); err != nil {
			t.Fatal(err)
		}
	}

	doc := catalog.Document{Path: "song.als", Ext: ".als", Kind: catalog.DocKindDocument,
		Status: catalog.ParseOK, TotalTracks: 2, TotalClips: 1, ScannedAt: now}
	if err := store.UpsertDocument(tx, scope, &doc); err != nil {
		t.Fatal(err)
	}

	entities := []catalog.Entity{
		{DocPath: "song.als", Kind: catalog.EntityTrack, Index: 0, TrackIndex: 0, Type: "audio", Name: "Drums"},
		{DocPath: "song.als", Kind: catalog.EntityTrack, Index: 1, TrackIndex: 1, Type: "midi", Name: "Spare"},
		{DocPath: "song.als", Kind: catalog.EntityClip, Index: 0, TrackIndex: 0, Type: "audio", Name: "kick"},
		{DocPath: "song.als", Kind: catalog.EntityDevice, Index: 0, TrackIndex: 0, Name: "Operator"},
		{DocPath: "song.als", Kind: catalog.EntityDevice, Index: 1, TrackIndex: 0, Name: "Reverb"},
		{DocPath: "song.als", Kind: catalog.EntityDevice, Index: 2, TrackIndex: 0, Name: "Compressor"},
	}
	for i := range entities {
		if err := store.UpsertEntity(tx, scope, &entities[i]); err != nil {
			t.Fatal(err)
		}
	}

	refs := []catalog.ReferenceEdge{
		{DocPath: "song.als", RefPath: "Samples/kick.wav", RefKind: "media",
			ResolvedPath: "Samples/kick.wav", Exists: true, ScannedAt: now},
		{DocPath: "song.als", RefPath: "Samples/gone.wav", RefKind: "media",
			Exists: false, ScannedAt: now},
	}
	for i := range refs {
		if err := store.UpsertRef(tx, scope, &refs[i]); err != nil {
			t.Fatal(err)
		}
	}

	if err := s.EndBatch(tx, nil); err != nil {
		t.Fatal(err)
	}
	return s
}

func TestHealthScore(t *testing.T) {
	w := defaultOptions().Weights

	if got := HealthScore(w, 0, 0, 0); got != 100 {
		t.Errorf("Clean set should score 100, got %v", got)
	}
	if got := HealthScore(w, 1, 1, 1); got != 77 {
		t.Errorf("Expected 100-15-5-3=77, got %v", got)
	}
	if got := HealthScore(w, 10, 10, 10); got != 0 {
		t.Errorf("Score must clamp at 0, got %v", got)
	}
}

func TestRefreshSetHealth(t *testing.T) {
	s := seed(t)
	if err := Refresh(s, catalog.ScopeRecordings, defaultOptions()); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}

	var score float64
	var missing, silent, empty int
	err := s.Conn().QueryRow(
		"SELECT score, missing_refs, silent_tracks, empty_tracks FROM set_health WHERE doc_path = 'song.als'").
		Scan(&score, &missing, &silent, &empty)
	if err != nil {
		t.Fatalf("Health row missing: %v", err)
	}
	if missing != 1 {
		t.Errorf("Expected 1 missing ref, got %d", missing)
	}
	if silent != 1 {
		t.Errorf("Expected 1 silent track (Spare has no devices), got %d", silent)
	}
	if empty != 1 {
		t.Errorf("Expected 1 empty track (Spare has no clips), got %d", empty)
	}
	if score != 77 {
		t.Errorf("Expected score 77, got %v", score)
	}
}

func TestRefreshFootprint(t *testing.T) {
	s := seed(t)
	if err := Refresh(s, catalog.ScopeRecordings, defaultOptions()); err != nil {
		t.Fatal(err)
	}

	var total, referenced, unreferenced, mediaFiles int64
	err := s.Conn().QueryRow(
		"SELECT total_bytes, referenced_bytes, unreferenced_bytes, media_files FROM audio_footprint WHERE scope = 'recordings'").
		Scan(&total, &referenced, &unreferenced, &mediaFiles)
	if err != nil {
		t.Fatalf("Footprint row missing: %v", err)
	}
	if total != 300 || referenced != 100 || unreferenced != 200 {
		t.Errorf("Expected 300/100/200, got %d/%d/%d", total, referenced, unreferenced)
	}
	if mediaFiles != 2 {
		t.Errorf("Expected 2 media files, got %d", mediaFiles)
	}
}

func TestRefreshDuplicates(t *testing.T) {
	s := seed(t)
	if err := Refresh(s, catalog.ScopeRecordings, defaultOptions()); err != nil {
		t.Fatal(err)
	}

	var clusters int
	s.Conn().QueryRow("SELECT COUNT(*) FROM duplicates WHERE scope = 'recordings'").Scan(&clusters)
	if clusters != 1 {
		t.Fatalf("Expected exactly 1 duplicate cluster, got %d", clusters)
	}

	var copies int
	var paths string
	s.Conn().QueryRow("SELECT copies, paths FROM duplicates WHERE sha1 = 'hash-song'").Scan(&copies, &paths)
	if copies != 2 {
		t.Errorf("Expected 2 copies, got %d", copies)
	}
	if paths == "" {
		t.Error("Cluster should list member paths")
	}
}

func TestRefreshDeviceMetrics(t *testing.T) {
	s := seed(t)
	if err := Refresh(s, catalog.ScopeRecordings, defaultOptions()); err != nil {
		t.Fatal(err)
	}

	var docCount, instances int
	err := s.Conn().QueryRow(
		"SELECT doc_count, instance_count FROM device_usage WHERE device = 'Operator'").
		Scan(&docCount, &instances)
	if err != nil {
		t.Fatalf("Usage row missing: %v", err)
	}
	if docCount != 1 || instances != 1 {
		t.Errorf("Expected 1/1 for Operator, got %d/%d", docCount, instances)
	}

	// Three devices in one doc: 3 unordered pairs.
	var pairs int
	s.Conn().QueryRow("SELECT COUNT(*) FROM device_cooccurrence WHERE scope = 'recordings'").Scan(&pairs)
	if pairs != 3 {
		t.Errorf("Expected 3 co-occurrence pairs, got %d", pairs)
	}

	var pairCount int
	s.Conn().QueryRow(
		"SELECT doc_count FROM device_cooccurrence WHERE device_a = 'Operator' AND device_b = 'Reverb'").
		Scan(&pairCount)
	if pairCount != 1 {
		t.Errorf("Operator+Reverb should co-occur in 1 doc, got %d", pairCount)
	}

	var chain string
	var chainDocs int
	err = s.Conn().QueryRow(
		"SELECT chain, doc_count FROM device_chains WHERE scope = 'recordings'").
		Scan(&chain, &chainDocs)
	if err != nil {
		t.Fatalf("Chain row missing: %v", err)
	}
	if chain != "Operator > Reverb > Compressor" || chainDocs != 1 {
		t.Errorf("Unexpected chain %q (%d)", chain, chainDocs)
	}
}

func TestRefreshHotspots(t *testing.T) {
	s := seed(t)
	if err := Refresh(s, catalog.ScopeRecordings, defaultOptions()); err != nil {
		t.Fatal(err)
	}

	var missing, docs int
	err := s.Conn().QueryRow(
		"SELECT missing_count, doc_count FROM missing_ref_hotspots WHERE parent = 'Samples'").
		Scan(&missing, &docs)
	if err != nil {
		t.Fatalf("Hotspot row missing: %v", err)
	}
	if missing != 1 || docs != 1 {
		t.Errorf("Expected 1 missing ref from 1 doc, got %d/%d", missing, docs)
	}
}

func TestRefreshActivityWindows(t *testing.T) {
	s := seed(t)
	if err := Refresh(s, catalog.ScopeRecordings, defaultOptions()); err != nil {
		t.Fatal(err)
	}

	// Three files touched 5 days ago fall in the 30-day window; the
	// 40-day-old file falls in the prior window.
	var files, bytes, priorFiles, priorBytes int64
	err := s.Conn().QueryRow(
		"SELECT files, bytes, prior_files, prior_bytes FROM activity_windows WHERE window_days = 30").
		Scan(&files, &bytes, &priorFiles, &priorBytes)
	if err != nil {
		t.Fatalf("Window row missing: %v", err)
	}
	if files != 3 || bytes != 200 {
		t.Errorf("Expected 3 files / 200 bytes in 30d window, got %d/%d", files, bytes)
	}
	if priorFiles != 1 || priorBytes != 200 {
		t.Errorf("Expected 1 file / 200 bytes in prior window, got %d/%d", priorFiles, priorBytes)
	}

	var windows int
	s.Conn().QueryRow("SELECT COUNT(*) FROM activity_windows WHERE scope = 'recordings'").Scan(&windows)
	if windows != 2 {
		t.Errorf("Expected rows for both configured windows, got %d", windows)
	}
}

func TestRefreshIsIdempotent(t *testing.T) {
	s := seed(t)
	for i := 0; i < 2; i++ {
		if err := Refresh(s, catalog.ScopeRecordings, defaultOptions()); err != nil {
			t.Fatalf("Refresh %d failed: %v", i, err)
		}
	}

	for _, table := range []string{"set_health", "audio_footprint", "device_usage", "library_growth"} {
		var count int
		s.Conn().QueryRow("SELECT COUNT(*) FROM " + table + " WHERE scope = 'recordings'").Scan(&count)
		if count == 0 {
			t.Errorf("Table %s empty after refresh", table)
		}
	}

	var health int
	s.Conn().QueryRow("SELECT COUNT(*) FROM set_health WHERE scope = 'recordings'").Scan(&health)
	if health != 1 {
		t.Errorf("Wholesale recompute should not accumulate rows, got %d", health)
	}
}
