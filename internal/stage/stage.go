package stage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"livecat/internal/catalog"
	"livecat/internal/logging"
	"livecat/internal/metrics"
)

// Stream names shared by the stager and the ingestor.
const (
	StreamFileIndex = "file_index"
	StreamDocs      = "docs"
	StreamEntities  = "entities"
	StreamRefs      = "refs"
)

// Streams lists all stream bases in ingestion order.
var Streams = []string{StreamFileIndex, StreamDocs, StreamEntities, StreamRefs}

// Writer appends JSON lines to one stream file. Safe for concurrent
// use; each record becomes exactly one line via a single Write call.
type Writer struct {
	scope  catalog.Scope
	stream string
	path   string

	mu   sync.Mutex
	file *os.File
}

// NewWriter opens (creating if needed) the stream file for append.
func NewWriter(dir string, scope catalog.Scope, stream string) (*Writer, error) {
	path := filepath.Join(dir, scope.StreamName(stream))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating catalog dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening stream %s: %w", path, err)
	}
	return &Writer{scope: scope, stream: stream, path: path, file: f}, nil
}

// Path returns the stream file path.
func (w *Writer) Path() string {
	return w.path
}

// Append marshals v and appends it as one line.
func (w *Writer) Append(v any) error {
	line, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling %s record: %w", w.stream, err)
	}
	line = append(line, '\n')

	w.mu.Lock()
	defer w.mu.Unlock()
	n, err := w.file.Write(line)
	if err != nil {
		return fmt.Errorf("appending to %s: %w", w.path, err)
	}

	metrics.StageAppends.WithLabelValues(string(w.scope), w.stream).Inc()
	metrics.StageBytes.WithLabelValues(string(w.scope), w.stream).Add(float64(n))
	return nil
}

// Close flushes and closes the stream file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.file.Sync(); err != nil {
		logging.Warn("Sync on %s failed: %v", w.path, err)
	}
	return w.file.Close()
}

// Set bundles the four writers a scan produces for one scope.
type Set struct {
	Files    *Writer
	Docs     *Writer
	Entities *Writer
	Refs     *Writer
}

// OpenSet opens all four stream writers for a scope.
func OpenSet(dir string, scope catalog.Scope) (*Set, error) {
	s := &Set{}
	var err error
	if s.Files, err = NewWriter(dir, scope, StreamFileIndex); err != nil {
		return nil, err
	}
	if s.Docs, err = NewWriter(dir, scope, StreamDocs); err != nil {
		s.Close()
		return nil, err
	}
	if s.Entities, err = NewWriter(dir, scope, StreamEntities); err != nil {
		s.Close()
		return nil, err
	}
	if s.Refs, err = NewWriter(dir, scope, StreamRefs); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// Close closes every open writer, joining errors.
func (s *Set) Close() error {
	var errs []error
	for _, w := range []*Writer{s.Files, s.Docs, s.Entities, s.Refs} {
		if w != nil {
			if err := w.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// SaveCheckpoint writes the scan cursor atomically: a temp file in the
// same directory is renamed over the target, so readers only ever see a
// complete checkpoint.
func SaveCheckpoint(dir string, cp *catalog.Checkpoint) error {
	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling checkpoint: %w", err)
	}

	target := filepath.Join(dir, cp.Scope.CheckpointName())
	tmp, err := os.CreateTemp(dir, ".checkpoint-*.tmp")
	if err != nil {
		return fmt.Errorf("creating checkpoint temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing checkpoint: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("syncing checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing checkpoint temp file: %w", err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replacing checkpoint: %w", err)
	}
	return nil
}

// LoadCheckpoint reads the scan cursor for a scope. A missing file is
// not an error; it returns (nil, nil) so callers start fresh.
func LoadCheckpoint(dir string, scope catalog.Scope) (*catalog.Checkpoint, error) {
	data, err := os.ReadFile(filepath.Join(dir, scope.CheckpointName()))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading checkpoint: %w", err)
	}

	cp := &catalog.Checkpoint{}
	if err := json.Unmarshal(data, cp); err != nil {
		return nil, fmt.Errorf("decoding checkpoint: %w", err)
	}
	if cp.Scope != scope {
		return nil, fmt.Errorf("checkpoint scope mismatch: file says %s, expected %s", cp.Scope, scope)
	}
	return cp, nil
}
