package ingest

import (
	"bufio"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"livecat/internal/catalog"
	"livecat/internal/logging"
	"livecat/internal/metrics"
	"livecat/internal/stage"
	"livecat/internal/store"
)

// StreamResult reports what one stream pass did.
type StreamResult struct {
	Stream      string `json:"stream"`
	Rows        int    `json:"rows"`
	Malformed   int    `json:"malformed"`
	StartOffset int64  `json:"start_offset"`
	EndOffset   int64  `json:"end_offset"`
}

// Result reports one ingest run over a scope.
type Result struct {
	Scope   catalog.Scope  `json:"scope"`
	Streams []StreamResult `json:"streams"`
}

// Rows returns the total merged row count across streams.
func (r *Result) Rows() int {
	total := 0
	for _, s := range r.Streams {
		total += s.Rows
	}
	return total
}

// Malformed returns the total skipped line count across streams.
func (r *Result) Malformed() int {
	total := 0
	for _, s := range r.Streams {
		total += s.Malformed
	}
	return total
}

// runState carries the document rows merged earlier in a run, so the
// entities pass can trim rows the latest parse of a document no longer
// produces.
type runState struct {
	docs map[string]*catalog.Document
}

// Run ingests every stream for a scope in dependency order (files,
// docs, entities, refs) and then refreshes the denormalized summary.
func Run(st *store.Store, catalogDir string, scope catalog.Scope) (*Result, error) {
	start := time.Now()
	res := &Result{Scope: scope}
	state := &runState{docs: make(map[string]*catalog.Document)}

	for _, stream := range stage.Streams {
		sr, err := ingestStream(st, catalogDir, scope, stream, state)
		if err != nil {
			return res, fmt.Errorf("ingesting %s/%s: %w", scope, stream, err)
		}
		res.Streams = append(res.Streams, *sr)
	}

	if err := st.RefreshCatalogDocs(scope); err != nil {
		return res, err
	}

	metrics.IngestBatchDuration.WithLabelValues(string(scope)).Observe(time.Since(start).Seconds())
	logging.Info("Ingested scope %s: %d rows, %d malformed in %v",
		scope, res.Rows(), res.Malformed(), time.Since(start).Round(time.Millisecond))
	return res, nil
}

// ingestStream tails one stream file from its committed offset. The new
// offset commits in the same transaction as the merged rows.
func ingestStream(st *store.Store, dir string, scope catalog.Scope, stream string, state *runState) (*StreamResult, error) {
	path := filepath.Join(dir, scope.StreamName(stream))

	offset, err := st.GetOffset(scope, stream)
	if err != nil {
		return nil, err
	}
	sr := &StreamResult{Stream: stream, StartOffset: offset, EndOffset: offset}

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return sr, nil
		}
		return nil, fmt.Errorf("opening stream: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat stream: %w", err)
	}
	if offset > info.Size() {
		// The stream file was truncated or replaced since the last
		// ingest; replay it from the start.
		logging.Warn("Offset %d beyond end of %s (%d bytes), resetting to 0", offset, path, info.Size())
		offset = 0
		sr.StartOffset = 0
		sr.EndOffset = 0
	}
	if offset == info.Size() {
		return sr, nil
	}
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seeking to offset %d: %w", offset, err)
	}

	tx, err := st.BeginBatch()
	if err != nil {
		return nil, err
	}

	batchErr := func() error {
		reader := bufio.NewReaderSize(f, 1<<20)
		for {
			line, err := reader.ReadBytes('\n')
			if err == io.EOF {
				// A trailing line without a newline may still be
				// mid-append; leave it for the next run.
				return nil
			}
			if err != nil {
				return fmt.Errorf("reading stream: %w", err)
			}

			if mergeErr := mergeLine(tx, scope, stream, line, state); mergeErr != nil {
				if errors.Is(mergeErr, errMalformed) {
					sr.Malformed++
					metrics.IngestMalformed.WithLabelValues(string(scope), stream).Inc()
				} else {
					return mergeErr
				}
			} else {
				sr.Rows++
				metrics.IngestRows.WithLabelValues(string(scope), stream).Inc()
			}
			// Malformed lines are consumed too: re-reading them would
			// never succeed.
			offset += int64(len(line))
		}
	}()

	if batchErr == nil && stream == stage.StreamEntities {
		for _, d := range state.docs {
			if batchErr = store.TrimDocEntities(tx, scope, d); batchErr != nil {
				break
			}
		}
	}
	if batchErr == nil {
		batchErr = store.SetOffset(tx, scope, stream, offset)
	}
	if err := st.EndBatch(tx, batchErr); err != nil {
		return nil, err
	}

	sr.EndOffset = offset
	if sr.Malformed > 0 {
		logging.Warn("Stream %s/%s: skipped %d malformed lines", scope, stream, sr.Malformed)
	}
	return sr, nil
}

// errMalformed marks lines that are skippable rather than fatal.
var errMalformed = errors.New("malformed staged line")

func mergeLine(tx *sql.Tx, scope catalog.Scope, stream string, line []byte, state *runState) error {
	switch stream {
	case stage.StreamFileIndex:
		var r catalog.FileRecord
		if err := json.Unmarshal(line, &r); err != nil || r.Path == "" {
			return errMalformed
		}
		return store.UpsertFileRecord(tx, scope, &r)

	case stage.StreamDocs:
		var d catalog.Document
		if err := json.Unmarshal(line, &d); err != nil || d.Path == "" {
			return errMalformed
		}
		// Last parse wins; its totals bound the entities pass.
		state.docs[d.Path] = &d
		return store.UpsertDocument(tx, scope, &d)

	case stage.StreamEntities:
		var e catalog.Entity
		if err := json.Unmarshal(line, &e); err != nil || e.DocPath == "" || e.Kind == "" {
			return errMalformed
		}
		return store.UpsertEntity(tx, scope, &e)

	case stage.StreamRefs:
		var r catalog.ReferenceEdge
		if err := json.Unmarshal(line, &r); err != nil || r.DocPath == "" || r.RefPath == "" {
			return errMalformed
		}
		return store.UpsertRef(tx, scope, &r)
	}
	return fmt.Errorf("unknown stream %q", stream)
}
