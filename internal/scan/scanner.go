package scan

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"livecat/internal/catalog"
	"livecat/internal/extract"
	"livecat/internal/logging"
	"livecat/internal/metrics"
	"livecat/internal/prefs"
	"livecat/internal/stage"
	"livecat/internal/store"
)

// Progress is handed to the progress callback at a bounded rate, never
// per file.
type Progress struct {
	Scope   catalog.Scope
	Scanned int64
	Indexed int64
	Skipped int64
}

// progressInterval bounds how often the progress callback fires.
const progressInterval = 500 * time.Millisecond

// Options configure one scan run over one scope.
type Options struct {
	Scope          catalog.Scope
	Root           string
	CatalogDir     string
	Workers        int
	Hash           prefs.HashMode
	Rehash         bool // force full rehash regardless of Hash
	Resume         bool
	IncludeMedia   bool
	IncludeBackups bool
	FastDirs       bool
	OnProgress     func(Progress)
}

// Summary is the outcome of a scan run.
type Summary struct {
	Scope     catalog.Scope      `json:"scope"`
	Scanned   int64              `json:"scanned"`
	Indexed   int64              `json:"indexed"`
	Skipped   int64              `json:"skipped"`
	Decisions map[Decision]int64 `json:"decisions"`
	Cancelled bool               `json:"cancelled"`
	Duration  time.Duration      `json:"duration"`
}

// job is one file handed to the worker pool.
type job struct {
	relPath  string
	absPath  string
	size     int64
	mtime    int64
	kind     catalog.ContentKind
	prior    *store.PriorFile
	decision Decision
	needHash bool
}

// result is one counted event: a processed file from a worker, an
// unchanged file, or an exclusion. The collector goroutine is the only
// mutator of the summary, so the walker reports through here too.
type result struct {
	scanned    bool
	skipReason string
	decision   Decision
	record     *catalog.FileRecord
	doc        *catalog.Document
	entities   []catalog.Entity
	refs       []catalog.ReferenceEdge
}

// Scanner runs incremental scans for one scope.
type Scanner struct {
	opts  Options
	prior map[string]store.PriorFile
}

// New prepares a scanner, loading prior file state from the catalog.
func New(st *store.Store, opts Options) (*Scanner, error) {
	if opts.Root == "" {
		return nil, fmt.Errorf("scan root must not be empty")
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	prior, err := st.LoadFileIndex(opts.Scope)
	if err != nil {
		return nil, err
	}
	return &Scanner{opts: opts, prior: prior}, nil
}

// Run walks the root and stages everything that changed. Cancellation
// is honored at file granularity; a checkpoint is persisted before
// returning either way, so the next run can resume.
func (s *Scanner) Run(ctx context.Context) (*Summary, error) {
	start := time.Now()
	opts := s.opts

	metrics.ScanRunsTotal.Inc()
	metrics.ScanIsRunning.Set(1)
	metrics.ScanWorkers.Set(float64(opts.Workers))
	defer metrics.ScanIsRunning.Set(0)

	cp, err := s.loadResumePoint()
	if err != nil {
		return nil, err
	}
	resumeAfter := ""
	if cp != nil {
		resumeAfter = cp.LastPath
		logging.Info("Resuming scope %s after %q", opts.Scope, resumeAfter)
	}

	var dirCache *DirCache
	if opts.FastDirs && !opts.Rehash {
		var priorDirs map[string]int64
		if cp != nil {
			priorDirs = cp.DirMtimes
		} else if prev, err := stage.LoadCheckpoint(opts.CatalogDir, opts.Scope); err == nil && prev != nil && prev.Complete {
			priorDirs = prev.DirMtimes
		}
		dirCache = NewDirCache(priorDirs)
	}

	streams, err := stage.OpenSet(opts.CatalogDir, opts.Scope)
	if err != nil {
		return nil, err
	}
	defer streams.Close()

	sum := &Summary{Scope: opts.Scope, Decisions: make(map[Decision]int64)}
	if cp != nil {
		sum.Scanned = cp.Scanned
		sum.Indexed = cp.Indexed
		sum.Skipped = cp.Skipped
	}

	jobs := make(chan job, opts.Workers*2)
	results := make(chan result, opts.Workers*2)

	var workerWG sync.WaitGroup
	for i := 0; i < opts.Workers; i++ {
		workerWG.Add(1)
		go func() {
			defer workerWG.Done()
			for j := range jobs {
				results <- s.process(j)
			}
		}()
	}

	var collectErr error
	collectDone := make(chan struct{})
	go func() {
		defer close(collectDone)
		lastProgress := time.Now()
		for r := range results {
			if err := s.collect(streams, sum, r); err != nil && collectErr == nil {
				collectErr = err
			}
			if opts.OnProgress != nil && time.Since(lastProgress) >= progressInterval {
				lastProgress = time.Now()
				opts.OnProgress(Progress{Scope: opts.Scope, Scanned: sum.Scanned, Indexed: sum.Indexed, Skipped: sum.Skipped})
			}
		}
	}()

	lastPath, walkErr := s.walk(ctx, jobs, results, dirCache, resumeAfter)
	close(jobs)
	workerWG.Wait()
	close(results)
	<-collectDone

	cancelled := errors.Is(walkErr, context.Canceled) || errors.Is(walkErr, context.DeadlineExceeded)
	sum.Cancelled = cancelled
	sum.Duration = time.Since(start)

	if err := s.saveCheckpoint(cp, sum, lastPath, dirCache, !cancelled && walkErr == nil && collectErr == nil); err != nil {
		logging.Error("Persisting checkpoint for %s failed: %v", opts.Scope, err)
		if walkErr == nil && collectErr == nil {
			collectErr = err
		}
	}

	metrics.ScanDuration.WithLabelValues(string(opts.Scope)).Observe(sum.Duration.Seconds())
	logging.Info("Scan of %s finished: scanned=%d indexed=%d skipped=%d cancelled=%t in %v",
		opts.Scope, sum.Scanned, sum.Indexed, sum.Skipped, cancelled, sum.Duration.Round(time.Millisecond))

	if walkErr != nil && !cancelled {
		return sum, walkErr
	}
	return sum, collectErr
}

// loadResumePoint returns the incomplete checkpoint to resume from, or
// nil for a fresh run.
func (s *Scanner) loadResumePoint() (*catalog.Checkpoint, error) {
	if !s.opts.Resume {
		return nil, nil
	}
	cp, err := stage.LoadCheckpoint(s.opts.CatalogDir, s.opts.Scope)
	if err != nil {
		return nil, fmt.Errorf("loading checkpoint: %w", err)
	}
	if cp == nil || cp.Complete {
		return nil, nil
	}
	return cp, nil
}

// walk traverses the root lexicographically, applying exclusions and
// decisions, and dispatches work. Returns the last dispatched path;
// because cancellation is only acted on between files and the pool is
// drained before checkpointing, every dispatched path has completed by
// the time the checkpoint is written.
func (s *Scanner) walk(ctx context.Context, jobs chan<- job, results chan<- result, dirCache *DirCache, resumeAfter string) (string, error) {
	opts := s.opts
	lastPath := resumeAfter
	resumeKey := traversalKey(resumeAfter)

	err := filepath.WalkDir(opts.Root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			results <- result{skipReason: "io"}
			logging.Debug("Skipping unreadable path %s: %v", path, err)
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}

		rel, relErr := filepath.Rel(opts.Root, path)
		if relErr != nil {
			return relErr
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			return s.walkDir(rel, d, results, dirCache)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if resumeAfter != "" && traversalKey(rel) <= resumeKey {
			return nil
		}

		if j, r, dispatch := s.classify(path, rel, d); dispatch {
			jobs <- j
			lastPath = rel
		} else {
			results <- r
		}
		return nil
	})
	return lastPath, err
}

func (s *Scanner) walkDir(rel string, d fs.DirEntry, results chan<- result, dirCache *DirCache) error {
	opts := s.opts
	name := d.Name()
	isRoot := rel == "."

	if !isRoot {
		if catalog.IsAlwaysSkippedDir(name) {
			return fs.SkipDir
		}
		if !opts.IncludeBackups && catalog.IsBackupDir(name) {
			results <- result{skipReason: "backup"}
			return fs.SkipDir
		}
	}

	if dirCache != nil {
		info, err := d.Info()
		if err != nil {
			return nil
		}
		parent := ""
		if !isRoot {
			parent = filepath.ToSlash(filepath.Dir(rel))
		}
		skip := dirCache.Visit(rel, parent, info.ModTime().Unix())
		if skip && !isRoot {
			metrics.ScanDirsShortCircuited.WithLabelValues(string(opts.Scope)).Inc()
			return fs.SkipDir
		}
	}
	return nil
}

// classify applies per-file exclusions and the change decision, and
// decides whether hashing is needed. Unchanged files never reach the
// pool; they (and exclusions) come back as a counting-only result.
func (s *Scanner) classify(path, rel string, d fs.DirEntry) (job, result, bool) {
	opts := s.opts
	name := d.Name()

	if !opts.IncludeBackups && catalog.IsBackupFile(name) {
		return job{}, result{skipReason: "backup"}, false
	}

	kind := catalog.Classify(name)
	switch kind {
	case catalog.KindOther:
		return job{}, result{skipReason: "kind"}, false
	case catalog.KindMedia:
		if !opts.IncludeMedia {
			return job{}, result{skipReason: "media"}, false
		}
	}

	info, err := d.Info()
	if err != nil {
		return job{}, result{skipReason: "io"}, false
	}

	var prior *store.PriorFile
	if p, ok := s.prior[rel]; ok {
		prior = &p
	}
	decision := Decide(prior, info.Size(), info.ModTime().Unix())

	fullHash := opts.Hash == prefs.HashFull || opts.Rehash
	needHash := fullHash ||
		(opts.Hash == prefs.HashChanged && decision != DecisionUnchanged)

	if decision == DecisionUnchanged && !fullHash {
		return job{}, result{scanned: true, decision: DecisionUnchanged}, false
	}

	return job{
		relPath:  rel,
		absPath:  path,
		size:     info.Size(),
		mtime:    info.ModTime().Unix(),
		kind:     kind,
		prior:    prior,
		decision: decision,
		needHash: needHash,
	}, result{}, true
}

// process runs on the worker pool: hashing, decision refinement and
// document extraction.
func (s *Scanner) process(j job) result {
	now := time.Now().Unix()
	rec := &catalog.FileRecord{
		Path:      j.relPath,
		Name:      filepath.Base(j.relPath),
		Parent:    parentDir(j.relPath),
		Ext:       strings.ToLower(filepath.Ext(j.relPath)),
		Size:      j.size,
		ModTime:   j.mtime,
		CTime:     createdTime(j.absPath),
		Kind:      j.kind,
		ScannedAt: now,
	}

	decision := j.decision
	if j.needHash {
		sha, err := SHA1File(j.absPath)
		if err != nil {
			rec.HashError = err.Error()
			logging.Debug("Hashing %s failed: %v", j.relPath, err)
		} else {
			rec.SHA1 = sha
			var priorSHA string
			if j.prior != nil {
				priorSHA = j.prior.SHA1
			}
			decision = Refine(decision, priorSHA, sha)
		}
	}

	res := result{scanned: true, decision: decision, record: rec}
	if !decision.Processed() {
		res.record = nil
		return res
	}

	if j.kind == catalog.KindDocument || j.kind == catalog.KindArtifact {
		res.doc, res.entities, res.refs = s.extractDocument(j, rec, now)
	}
	return res
}

func (s *Scanner) extractDocument(j job, rec *catalog.FileRecord, now int64) (*catalog.Document, []catalog.Entity, []catalog.ReferenceEdge) {
	doc := &catalog.Document{
		Path:      j.relPath,
		Ext:       rec.Ext,
		Kind:      catalog.DocKindDocument,
		ScannedAt: now,
	}
	if j.kind == catalog.KindArtifact {
		doc.Kind = catalog.DocKindArtifact
	}

	raw, err := os.ReadFile(j.absPath)
	if err != nil {
		doc.Status = catalog.ParseFailed
		doc.Error = err.Error()
		metrics.ExtractDocsTotal.WithLabelValues(string(s.opts.Scope), string(doc.Status)).Inc()
		return doc, nil, nil
	}

	extractStart := time.Now()
	ex := extract.Extract(raw)
	metrics.ExtractDuration.Observe(time.Since(extractStart).Seconds())

	doc.Status = ex.Status
	doc.Error = ex.Error
	doc.Tempo = ex.Tempo
	doc.AudioTracks, doc.MidiTracks, doc.ReturnTrk, doc.MasterTrk, doc.TotalTracks = ex.TrackCounts()
	doc.AudioClips, doc.MidiClips, doc.TotalClips = ex.ClipCounts()
	doc.DevicesTotal, doc.RoutingTotal = ex.EntityCounts()
	metrics.ExtractDocsTotal.WithLabelValues(string(s.opts.Scope), string(doc.Status)).Inc()

	entities := ex.Entities
	for i := range entities {
		entities[i].DocPath = j.relPath
	}
	refs := extract.ResolveRefs(j.relPath, s.opts.Root, ex.RefCandidates, time.Unix(now, 0))
	return doc, entities, refs
}

// collect is the single mutator of the summary and the single stream
// writer: one goroutine appends all records and tallies all counters.
func (s *Scanner) collect(streams *stage.Set, sum *Summary, r result) error {
	if r.scanned {
		sum.Scanned++
	}
	if r.skipReason != "" {
		sum.Skipped++
		metrics.ScanFilesSkipped.WithLabelValues(string(s.opts.Scope), r.skipReason).Inc()
		return nil
	}

	sum.Decisions[r.decision]++
	metrics.ScanDecisions.WithLabelValues(string(s.opts.Scope), string(r.decision)).Inc()

	if r.record == nil {
		sum.Skipped++
		return nil
	}
	if err := streams.Files.Append(r.record); err != nil {
		return err
	}
	if r.doc != nil {
		if err := streams.Docs.Append(r.doc); err != nil {
			return err
		}
		for i := range r.entities {
			if err := streams.Entities.Append(&r.entities[i]); err != nil {
				return err
			}
		}
		for i := range r.refs {
			if err := streams.Refs.Append(&r.refs[i]); err != nil {
				return err
			}
		}
	}
	sum.Indexed++
	return nil
}

func (s *Scanner) saveCheckpoint(prev *catalog.Checkpoint, sum *Summary, lastPath string, dirCache *DirCache, complete bool) error {
	cp := &catalog.Checkpoint{
		Version:   1,
		Scope:     s.opts.Scope,
		LastPath:  lastPath,
		Scanned:   sum.Scanned,
		Indexed:   sum.Indexed,
		Skipped:   sum.Skipped,
		Complete:  complete,
		StartedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if prev != nil {
		cp.StartedAt = prev.StartedAt
	}
	if dirCache != nil && complete {
		cp.DirMtimes = dirCache.Snapshot()
	} else if prev != nil {
		cp.DirMtimes = prev.DirMtimes
	}
	return stage.SaveCheckpoint(s.opts.CatalogDir, cp)
}

func parentDir(rel string) string {
	parent := filepath.ToSlash(filepath.Dir(rel))
	return parent
}

// traversalKey encodes a relative path so plain string comparison
// matches WalkDir's visit order. Entries sort per directory, so the
// separator must rank below every byte a file name can contain;
// comparing raw paths would place a sibling like "proj-1.als" before
// the already visited contents of "proj/".
func traversalKey(rel string) string {
	return strings.ReplaceAll(rel, "/", "\x00")
}
