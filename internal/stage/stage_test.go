package stage

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"livecat/internal/catalog"
)

func TestWriterAppendsLines(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir, catalog.ScopeRecordings, StreamFileIndex)
	if err != nil {
		t.Fatalf("NewWriter failed: %v", err)
	}

	recs := []catalog.FileRecord{
		{Path: "a.als", Size: 10, Kind: catalog.KindDocument},
		{Path: "b.wav", Size: 20, Kind: catalog.KindMedia},
	}
	for _, r := range recs {
		if err := w.Append(r); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	f, err := os.Open(filepath.Join(dir, "file_index.jsonl"))
	if err != nil {
		t.Fatalf("Stream file missing: %v", err)
	}
	defer f.Close()

	var got []catalog.FileRecord
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var r catalog.FileRecord
		if err := json.Unmarshal(scanner.Bytes(), &r); err != nil {
			t.Fatalf("Line is not valid JSON: %v", err)
		}
		got = append(got, r)
	}
	if len(got) != 2 || got[0].Path != "a.als" || got[1].Path != "b.wav" {
		t.Errorf("Unexpected records: %+v", got)
	}
}

func TestWriterAppendsAcrossReopens(t *testing.T) {
	dir := t.TempDir()

	for i := 0; i < 3; i++ {
		w, err := NewWriter(dir, catalog.ScopeLibrary, StreamDocs)
		if err != nil {
			t.Fatalf("NewWriter failed: %v", err)
		}
		if err := w.Append(catalog.Document{Path: "x.als"}); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
		w.Close()
	}

	data, err := os.ReadFile(filepath.Join(dir, "docs_library.jsonl"))
	if err != nil {
		t.Fatal(err)
	}
	lines := 0
	for _, b := range data {
		if b == '\n' {
			lines++
		}
	}
	if lines != 3 {
		t.Errorf("Expected 3 lines after 3 reopened appends, got %d", lines)
	}
}

func TestWriterConcurrentAppends(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir, catalog.ScopeRecordings, StreamEntities)
	if err != nil {
		t.Fatalf("NewWriter failed: %v", err)
	}

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			w.Append(catalog.Entity{DocPath: "d.als", Kind: catalog.EntityTrack, Index: i})
		}(i)
	}
	wg.Wait()
	w.Close()

	f, err := os.Open(w.Path())
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	count := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var e catalog.Entity
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			t.Fatalf("Interleaved or corrupt line: %v", err)
		}
		count++
	}
	if count != n {
		t.Errorf("Expected %d lines, got %d", n, count)
	}
}

func TestCheckpointRoundTrip(t *testing.T) {
	dir := t.TempDir()

	cp := &catalog.Checkpoint{
		Version:   1,
		Scope:     catalog.ScopeRecordings,
		LastPath:  "Projects/Song Project/song.als",
		Scanned:   120,
		Indexed:   40,
		Skipped:   7,
		Complete:  false,
		StartedAt: time.Now().Truncate(time.Second),
		UpdatedAt: time.Now().Truncate(time.Second),
	}
	if err := SaveCheckpoint(dir, cp); err != nil {
		t.Fatalf("SaveCheckpoint failed: %v", err)
	}

	got, err := LoadCheckpoint(dir, catalog.ScopeRecordings)
	if err != nil {
		t.Fatalf("LoadCheckpoint failed: %v", err)
	}
	if got == nil {
		t.Fatal("Expected checkpoint, got nil")
	}
	if got.LastPath != cp.LastPath || got.Scanned != cp.Scanned || got.Complete {
		t.Errorf("Round trip mismatch: %+v", got)
	}

	// No stray temp files after the rename.
	entries, _ := os.ReadDir(dir)
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".tmp" {
			t.Errorf("Leftover temp file %s", e.Name())
		}
	}
}

func TestLoadCheckpointMissingIsNil(t *testing.T) {
	got, err := LoadCheckpoint(t.TempDir(), catalog.ScopeLibrary)
	if err != nil {
		t.Fatalf("Missing checkpoint should not error: %v", err)
	}
	if got != nil {
		t.Errorf("Expected nil checkpoint, got %+v", got)
	}
}

func TestLoadCheckpointScopeMismatch(t *testing.T) {
	dir := t.TempDir()
	cp := &catalog.Checkpoint{Version: 1, Scope: catalog.ScopeLibrary}
	if err := SaveCheckpoint(dir, cp); err != nil {
		t.Fatal(err)
	}

	// Write the library checkpoint under the recordings name.
	data, _ := os.ReadFile(filepath.Join(dir, "checkpoint_library.json"))
	os.WriteFile(filepath.Join(dir, "checkpoint.json"), data, 0o644)

	if _, err := LoadCheckpoint(dir, catalog.ScopeRecordings); err == nil {
		t.Error("Expected error for scope mismatch")
	}
}

func TestOpenSet(t *testing.T) {
	dir := t.TempDir()
	set, err := OpenSet(dir, catalog.ScopePreferences)
	if err != nil {
		t.Fatalf("OpenSet failed: %v", err)
	}
	defer set.Close()

	for _, name := range []string{
		"file_index_preferences.jsonl",
		"docs_preferences.jsonl",
		"entities_preferences.jsonl",
		"refs_preferences.jsonl",
	} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("Expected stream file %s: %v", name, err)
		}
	}
}
