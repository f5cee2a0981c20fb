package catalog

import "time"

// FileRecord describes one scanned file. Identity is (scope, path);
// path is scope-relative with forward-slash separators.
type FileRecord struct {
	Path      string      `json:"path"`
	Name      string      `json:"name"`
	Parent    string      `json:"parent"`
	Ext       string      `json:"ext"`
	Size      int64       `json:"size"`
	ModTime   int64       `json:"mtime"`
	CTime     int64       `json:"ctime,omitempty"`
	Kind      ContentKind `json:"kind"`
	SHA1      string      `json:"sha1,omitempty"`
	HashError string      `json:"sha1_error,omitempty"`
	ScannedAt int64       `json:"scanned_at"`
}

// ParseStatus reports how far document extraction got.
type ParseStatus string

const (
	// ParseOK means the whole document was traversed.
	ParseOK ParseStatus = "ok"
	// ParsePartial means extraction stopped early; entities up to the
	// failure point are kept.
	ParsePartial ParseStatus = "partial"
	// ParseFailed means the document could not be decoded at all. The
	// document row is still recorded so its absence is distinguishable
	// from "not yet scanned".
	ParseFailed ParseStatus = "failed"
)

// DocumentKind separates full project documents from artifacts.
type DocumentKind string

const (
	DocKindDocument DocumentKind = "document"
	DocKindArtifact DocumentKind = "artifact"
)

// Document is the summary row for one parsed project/artifact file.
type Document struct {
	Path        string       `json:"path"`
	Ext         string       `json:"ext"`
	Kind        DocumentKind `json:"kind"`
	Status      ParseStatus  `json:"status"`
	Error       string       `json:"error,omitempty"`
	AudioTracks int          `json:"tracks_audio"`
	MidiTracks  int          `json:"tracks_midi"`
	ReturnTrk   int          `json:"tracks_return"`
	MasterTrk   int          `json:"tracks_master"`
	TotalTracks int          `json:"tracks_total"`
	AudioClips  int          `json:"clips_audio"`
	MidiClips   int          `json:"clips_midi"`
	TotalClips  int          `json:"clips_total"`
	// Per-kind entity totals of this parse. Ingestion uses them to drop
	// rows an earlier parse of the same document staged at higher
	// indices.
	DevicesTotal int     `json:"devices_total"`
	RoutingTotal int     `json:"routing_total"`
	Tempo        float64 `json:"tempo,omitempty"`
	ScannedAt    int64   `json:"scanned_at"`
}

// EntityKind discriminates the structural entity payloads.
type EntityKind string

const (
	EntityTrack   EntityKind = "track"
	EntityClip    EntityKind = "clip"
	EntityDevice  EntityKind = "device"
	EntityRouting EntityKind = "routing"
)

// Entity is one structural element owned by a Document. Index is the
// entity-local id, unique per (document, kind). TrackIndex links clips,
// devices and routing edges to their owning track (-1 when unknown).
// Meta carries attributes not promoted to first-class columns.
type Entity struct {
	DocPath    string            `json:"doc_path"`
	Kind       EntityKind        `json:"entity"`
	Index      int               `json:"index"`
	TrackIndex int               `json:"track_index"`
	Type       string            `json:"type,omitempty"`
	Name       string            `json:"name,omitempty"`
	Length     float64           `json:"length,omitempty"`
	Direction  string            `json:"direction,omitempty"`
	Value      string            `json:"value,omitempty"`
	Meta       map[string]string `json:"meta,omitempty"`
}

// ReferenceEdge links a document to an asset path it references. Exists
// is re-evaluated against the filesystem on every scan, never cached.
// ResolvedPath is the scope-relative path of the target when it lives
// under the scan root; empty for external or missing targets.
type ReferenceEdge struct {
	DocPath      string `json:"src"`
	RefPath      string `json:"ref_path"`
	RefKind      string `json:"ref_kind"`
	ResolvedPath string `json:"resolved_path,omitempty"`
	Exists       bool   `json:"exists"`
	ScannedAt    int64  `json:"scanned_at"`
}

// Checkpoint is the per-scope scan cursor. It is replaced atomically
// each run and lets an interrupted scan resume instead of restarting.
type Checkpoint struct {
	Version   int              `json:"version"`
	Scope     Scope            `json:"scope"`
	LastPath  string           `json:"last_path"`
	Scanned   int64            `json:"scanned"`
	Indexed   int64            `json:"indexed"`
	Skipped   int64            `json:"skipped"`
	Complete  bool             `json:"complete"`
	StartedAt time.Time        `json:"started_at"`
	UpdatedAt time.Time        `json:"updated_at"`
	DirMtimes map[string]int64 `json:"dir_mtimes,omitempty"`
}
