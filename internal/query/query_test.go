package query

import (
	"path/filepath"
	"testing"
	"time"

	"livecat/internal/analytics"
	"livecat/internal/catalog"
	"livecat/internal/prefs"
	"livecat/internal/store"
)

func seededService(t *testing.T) *Service {
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

	store.UpsertFileRecord(tx, scope, &catalog.FileRecord{
		Path: "song.als", Name: "song.als", Parent: ".", Ext: ".als",
		Size: 2048, ModTime: now, Kind: catalog.KindDocument, SHA1: "dup", ScannedAt: now,
	})
	store.UpsertFileRecord(tx, scope, &catalog.FileRecord{
		Path: "song copy.als", Name: "song copy.als", Parent: ".", Ext: ".als",
		Size: 2048, ModTime: now, Kind: catalog.KindDocument, SHA1: "dup", ScannedAt: now,
	})
	store.UpsertDocument(tx, scope, &catalog.Document{
		Path: "song.als", Ext: ".als", Kind: catalog.DocKindDocument,
		Status: catalog.ParseOK, TotalTracks: 2, TotalClips: 4, ScannedAt: now,
	})
	store.UpsertEntity(tx, scope, &catalog.Entity{
		DocPath: "song.als", Kind: catalog.EntityDevice, Index: 0, TrackIndex: 0, Name: "Wavetable",
	})
	store.UpsertRef(tx, scope, &catalog.ReferenceEdge{
		DocPath: "song.als", RefPath: "Samples/gone.wav", RefKind: "media", ScannedAt: now,
	})
	if err := s.EndBatch(tx, nil); err != nil {
		t.Fatal(err)
	}

	if err := s.RefreshCatalogDocs(scope); err != nil {
		t.Fatal(err)
	}
	opts := analytics.Options{
		Weights:     prefs.HealthWeights{MissingRef: 15, SilentTrack: 5, EmptyTrack: 3},
		WindowsDays: []int{30, 90},
		ChainLength: 3,
	}
	if err := analytics.Refresh(s, scope, opts); err != nil {
		t.Fatal(err)
	}
	return New(s)
}

func TestStats(t *testing.T) {
	svc := seededService(t)

	stats, err := svc.Stats(catalog.ScopeRecordings)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.Files != 2 || stats.Documents != 1 {
		t.Errorf("Expected 2 files / 1 doc, got %d/%d", stats.Files, stats.Documents)
	}
	if stats.MissingRefs != 1 {
		t.Errorf("Expected 1 missing ref, got %d", stats.MissingRefs)
	}
	if stats.TotalBytes != 4096 {
		t.Errorf("Expected 4096 total bytes, got %d", stats.TotalBytes)
	}
	if stats.TotalSize == "" {
		t.Error("TotalSize should be humanized, got empty string")
	}
}

func TestWorstHealth(t *testing.T) {
	svc := seededService(t)

	rows, err := svc.WorstHealth(catalog.ScopeRecordings, 10)
	if err != nil {
		t.Fatalf("WorstHealth failed: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("Expected 1 health row, got %d", len(rows))
	}
	if rows[0].Path != "song.als" || rows[0].MissingRefs != 1 {
		t.Errorf("Unexpected row: %+v", rows[0])
	}
	if rows[0].Score >= 100 {
		t.Errorf("Set with problems should score below 100, got %v", rows[0].Score)
	}
}

func TestDuplicates(t *testing.T) {
	svc := seededService(t)

	clusters, err := svc.Duplicates(catalog.ScopeRecordings, 10)
	if err != nil {
		t.Fatalf("Duplicates failed: %v", err)
	}
	if len(clusters) != 1 {
		t.Fatalf("Expected 1 cluster, got %d", len(clusters))
	}
	c := clusters[0]
	if c.Copies != 2 || len(c.Paths) != 2 {
		t.Errorf("Unexpected cluster: %+v", c)
	}
	if c.Wasted == "" || c.Size == "" {
		t.Error("Cluster sizes should be humanized")
	}
}

func TestHotspotsAndDevices(t *testing.T) {
	svc := seededService(t)

	hotspots, err := svc.Hotspots(catalog.ScopeRecordings, 5)
	if err != nil {
		t.Fatalf("Hotspots failed: %v", err)
	}
	if len(hotspots) != 1 || hotspots[0].Parent != "Samples" {
		t.Errorf("Unexpected hotspots: %+v", hotspots)
	}

	devices, err := svc.TopDevices(catalog.ScopeRecordings, 5)
	if err != nil {
		t.Fatalf("TopDevices failed: %v", err)
	}
	if len(devices) != 1 || devices[0].Device != "Wavetable" {
		t.Errorf("Unexpected devices: %+v", devices)
	}
}

func TestLargestSetsAndActivity(t *testing.T) {
	svc := seededService(t)

	sets, err := svc.LargestSets(catalog.ScopeRecordings, 5)
	if err != nil {
		t.Fatalf("LargestSets failed: %v", err)
	}
	if len(sets) != 1 || sets[0].Bytes != 2048 || sets[0].Tracks != 2 {
		t.Errorf("Unexpected sets: %+v", sets)
	}

	windows, err := svc.Activity(catalog.ScopeRecordings)
	if err != nil {
		t.Fatalf("Activity failed: %v", err)
	}
	if len(windows) != 2 {
		t.Fatalf("Expected 2 windows, got %d", len(windows))
	}
	if windows[0].WindowDays != 30 || windows[0].Files != 2 {
		t.Errorf("Unexpected 30d window: %+v", windows[0])
	}
}

func TestGrowth(t *testing.T) {
	svc := seededService(t)

	months, err := svc.Growth(catalog.ScopeRecordings)
	if err != nil {
		t.Fatalf("Growth failed: %v", err)
	}
	if len(months) != 1 {
		t.Fatalf("All files share one mtime month, got %d rows", len(months))
	}
	if months[0].Files != 2 || months[0].Bytes != 4096 {
		t.Errorf("Unexpected growth month: %+v", months[0])
	}
	if months[0].Size == "" {
		t.Error("Size should be humanized")
	}
}

func TestEmptyScope(t *testing.T) {
	svc := seededService(t)

	stats, err := svc.Stats(catalog.ScopeLibrary)
	if err != nil {
		t.Fatalf("Stats on empty scope failed: %v", err)
	}
	if stats.Files != 0 {
		t.Errorf("Empty scope should have 0 files, got %d", stats.Files)
	}

	rows, err := svc.WorstHealth(catalog.ScopeLibrary, 10)
	if err != nil {
		t.Fatalf("WorstHealth on empty scope failed: %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("Empty scope returned %d health rows", len(rows))
	}
}
