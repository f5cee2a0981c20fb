package scan

import (
	"bytes"
	"compress/gzip"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"livecat/internal/catalog"
	"livecat/internal/ingest"
	"livecat/internal/prefs"
	"livecat/internal/stage"
	"livecat/internal/store"
)

const songXML = `<Ableton><LiveSet>
  <Tempo Value="120"/>
  <Tracks>
    <AudioTrack Name="Drums">
      <AudioClip Name="kick" Length="4">
        <SampleRef RelativePath="Samples/kick.wav"/>
      </AudioClip>
    </AudioTrack>
  </Tracks>
</LiveSet></Ableton>`

func writeSet(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	gz.Write([]byte(songXML))
	gz.Close()
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
}

type fixture struct {
	root       string
	catalogDir string
	store      *store.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	base := t.TempDir()
	f := &fixture{
		root:       filepath.Join(base, "root"),
		catalogDir: filepath.Join(base, "catalog"),
	}
	s, err := store.Open(filepath.Join(f.catalogDir, "catalog.sqlite"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	f.store = s

	writeSet(t, filepath.Join(f.root, "Song Project", "song.als"))
	if err := os.MkdirAll(filepath.Join(f.root, "Song Project", "Samples"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(f.root, "Song Project", "Samples", "kick.wav"),
		[]byte("RIFF0000WAVE"), 0o644); err != nil {
		t.Fatal(err)
	}
	return f
}

func (f *fixture) scan(t *testing.T, mutate func(*Options)) *Summary {
	t.Helper()
	opts := Options{
		Scope:        catalog.ScopeRecordings,
		Root:         f.root,
		CatalogDir:   f.catalogDir,
		Workers:      2,
		Hash:         prefs.HashChanged,
		IncludeMedia: true,
	}
	if mutate != nil {
		mutate(&opts)
	}
	sc, err := New(f.store, opts)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	sum, err := sc.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	return sum
}

func (f *fixture) ingest(t *testing.T) {
	t.Helper()
	if _, err := ingest.Run(f.store, f.catalogDir, catalog.ScopeRecordings); err != nil {
		t.Fatalf("ingest failed: %v", err)
	}
}

func TestScanCatalogsDocumentWithTrackClipAndRef(t *testing.T) {
	f := newFixture(t)
	sum := f.scan(t, nil)
	f.ingest(t)

	if sum.Indexed != 2 {
		t.Errorf("Expected 2 indexed files (set + sample), got %d", sum.Indexed)
	}
	if sum.Decisions[DecisionUnseen] != 2 {
		t.Errorf("Expected 2 unseen decisions, got %v", sum.Decisions)
	}

	db := f.store.Conn()
	var status string
	var tracks, clips int
	if err := db.QueryRow(
		"SELECT status, tracks_total, clips_total FROM docs WHERE path = 'Song Project/song.als'").
		Scan(&status, &tracks, &clips); err != nil {
		t.Fatalf("Document row missing: %v", err)
	}
	if status != "ok" || tracks != 1 || clips != 1 {
		t.Errorf("Expected ok/1/1, got %s/%d/%d", status, tracks, clips)
	}

	var exists int
	if err := db.QueryRow(
		"SELECT exists_now FROM refs WHERE doc_path = 'Song Project/song.als'").
		Scan(&exists); err != nil {
		t.Fatalf("Reference edge missing: %v", err)
	}
	if exists != 1 {
		t.Error("Reference to existing sample should have existence=true")
	}
}

func TestRescanOfUnchangedTreeSkipsEverything(t *testing.T) {
	f := newFixture(t)
	f.scan(t, nil)
	f.ingest(t)

	sum := f.scan(t, nil)
	if sum.Indexed != 0 {
		t.Errorf("Unchanged tree indexed %d files", sum.Indexed)
	}
	if sum.Decisions[DecisionUnchanged] != 2 {
		t.Errorf("Expected 2 unchanged decisions, got %v", sum.Decisions)
	}
}

func TestBackupExclusion(t *testing.T) {
	f := newFixture(t)
	writeSet(t, filepath.Join(f.root, "Song Project", "Backup", "song [2026-01-19 123456].als"))
	writeSet(t, filepath.Join(f.root, "Song Project", "song [2026-02-01 9].als"))

	sum := f.scan(t, nil)
	if sum.Indexed != 2 {
		t.Errorf("Default scan should exclude backups, indexed %d", sum.Indexed)
	}
	if sum.Skipped == 0 {
		t.Error("Backup exclusions should be counted as skips")
	}

	f.ingest(t)
	sum = f.scan(t, func(o *Options) { o.IncludeBackups = true })
	if sum.Decisions[DecisionUnseen] != 2 {
		t.Errorf("Include-backups rerun should pick up 2 backup copies, got %v", sum.Decisions)
	}

	f.ingest(t)
	var count int
	f.store.Conn().QueryRow(
		"SELECT COUNT(*) FROM docs WHERE path LIKE '%Backup%' OR path LIKE '%[2026-%'").Scan(&count)
	if count != 2 {
		t.Errorf("Backup copies should be cataloged under distinct paths, got %d", count)
	}
}

func TestDeletedRefFlipsExistence(t *testing.T) {
	f := newFixture(t)
	f.scan(t, nil)
	f.ingest(t)

	if err := os.Remove(filepath.Join(f.root, "Song Project", "Samples", "kick.wav")); err != nil {
		t.Fatal(err)
	}
	// Touch the set so the rescan re-extracts it.
	future := time.Now().Add(time.Hour)
	setPath := filepath.Join(f.root, "Song Project", "song.als")
	if err := os.Chtimes(setPath, future, future); err != nil {
		t.Fatal(err)
	}

	sum := f.scan(t, nil)
	if sum.Decisions[DecisionMetadataChanged] != 1 {
		t.Errorf("Expected 1 metadata-changed decision, got %v", sum.Decisions)
	}
	f.ingest(t)

	var exists int
	f.store.Conn().QueryRow(
		"SELECT exists_now FROM refs WHERE doc_path = 'Song Project/song.als'").Scan(&exists)
	if exists != 0 {
		t.Error("Existence flag should flip to false after the sample is deleted")
	}
}

func TestContentChangedDetectionUnderFullRehash(t *testing.T) {
	f := newFixture(t)
	f.scan(t, func(o *Options) { o.Hash = prefs.HashFull })
	f.ingest(t)

	// Rewrite the sample with same-size content and restore its mtime:
	// only the hash can notice.
	path := filepath.Join(f.root, "Song Project", "Samples", "kick.wav")
	info, _ := os.Stat(path)
	if err := os.WriteFile(path, []byte("RIFF1111WAVE"), 0o644); err != nil {
		t.Fatal(err)
	}
	os.Chtimes(path, info.ModTime(), info.ModTime())

	sum := f.scan(t, func(o *Options) { o.Hash = prefs.HashFull })
	if sum.Decisions[DecisionContentChanged] != 1 {
		t.Errorf("Expected 1 content-changed decision, got %v", sum.Decisions)
	}
}

func TestCancelledScanPersistsIncompleteCheckpoint(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sc, err := New(f.store, Options{
		Scope: catalog.ScopeRecordings, Root: f.root, CatalogDir: f.catalogDir,
		Workers: 1, Hash: prefs.HashOff, IncludeMedia: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	sum, err := sc.Run(ctx)
	if err != nil {
		t.Fatalf("Cancelled run should not error: %v", err)
	}
	if !sum.Cancelled {
		t.Error("Summary should report cancellation")
	}

	cp, err := stage.LoadCheckpoint(f.catalogDir, catalog.ScopeRecordings)
	if err != nil || cp == nil {
		t.Fatalf("Checkpoint missing after cancel: %v", err)
	}
	if cp.Complete {
		t.Error("Cancelled scan must persist an incomplete checkpoint")
	}
}

func TestResumeScansSiblingVisitedAfterCheckpoint(t *testing.T) {
	f := newFixture(t)
	// The walk descends into proj/ before reaching proj-1.als because
	// directory entries order by name, yet "proj-1.als" < "proj/z.als"
	// as a raw string. A resume cursor at proj/z.als must not skip it.
	writeSet(t, filepath.Join(f.root, "proj", "z.als"))
	writeSet(t, filepath.Join(f.root, "proj-1.als"))

	cp := &catalog.Checkpoint{
		Version:  1,
		Scope:    catalog.ScopeRecordings,
		LastPath: "proj/z.als",
	}
	if err := stage.SaveCheckpoint(f.catalogDir, cp); err != nil {
		t.Fatal(err)
	}

	sum := f.scan(t, func(o *Options) { o.Resume = true })
	if sum.Decisions[DecisionUnseen] != 1 || sum.Indexed != 1 {
		t.Fatalf("Resumed scan should pick up exactly the sibling after the cursor, got %v (indexed %d)",
			sum.Decisions, sum.Indexed)
	}

	f.ingest(t)
	var path string
	if err := f.store.Conn().QueryRow("SELECT path FROM file_index").Scan(&path); err != nil {
		t.Fatalf("Resumed file missing from catalog: %v", err)
	}
	if path != "proj-1.als" {
		t.Errorf("Expected proj-1.als to be cataloged, got %q", path)
	}
}

func TestProgressCallbacksAreRateLimited(t *testing.T) {
	f := newFixture(t)
	calls := 0
	f.scan(t, func(o *Options) {
		o.OnProgress = func(Progress) { calls++ }
	})
	// Two files scan in well under the emission interval.
	if calls > 1 {
		t.Errorf("Progress fired %d times for a near-instant scan", calls)
	}
}

func TestPruneRemovesVanishedPaths(t *testing.T) {
	f := newFixture(t)
	f.scan(t, nil)
	f.ingest(t)

	if err := os.Remove(filepath.Join(f.root, "Song Project", "song.als")); err != nil {
		t.Fatal(err)
	}

	n, err := Prune(f.store, catalog.ScopeRecordings, f.root)
	if err != nil {
		t.Fatalf("Prune failed: %v", err)
	}
	if n != 1 {
		t.Errorf("Expected 1 pruned path, got %d", n)
	}

	var files, docs int
	f.store.Conn().QueryRow("SELECT COUNT(*) FROM file_index").Scan(&files)
	f.store.Conn().QueryRow("SELECT COUNT(*) FROM docs").Scan(&docs)
	if files != 1 || docs != 0 {
		t.Errorf("Expected 1 file and 0 docs after prune, got %d/%d", files, docs)
	}
}

func TestSHA1File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x")
	if err := os.WriteFile(path, []byte("abc"), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := SHA1File(path)
	if err != nil {
		t.Fatalf("SHA1File failed: %v", err)
	}
	if got != "a9993e364706816aba3e25717850c26c9cd0d89d" {
		t.Errorf("Unexpected digest %s", got)
	}
}
