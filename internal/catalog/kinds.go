package catalog

import (
	"path/filepath"
	"strings"
)

// ContentKind classifies a file by extension.
type ContentKind string

const (
	// KindDocument is a Live set or clip file (gzipped XML).
	KindDocument ContentKind = "document"
	// KindArtifact is a rack, preset, groove or pack file.
	KindArtifact ContentKind = "artifact"
	// KindMedia is an audio media file.
	KindMedia ContentKind = "media"
	// KindOther is anything unrecognized.
	KindOther ContentKind = "other"
)

// DocumentExtensions maps extensions to whether they are parseable
// project documents.
var DocumentExtensions = map[string]bool{
	".als": true,
	".alc": true,
}

// ArtifactExtensions maps extensions to whether they are project
// artifacts (racks/presets/grooves/packs).
var ArtifactExtensions = map[string]bool{
	".adg": true,
	".adv": true,
	".agr": true,
	".alp": true,
}

// MediaExtensions maps extensions to whether they are audio media.
var MediaExtensions = map[string]bool{
	".wav":  true,
	".aif":  true,
	".aiff": true,
	".flac": true,
	".mp3":  true,
	".m4a":  true,
	".ogg":  true,
}

// Classify returns the content kind for a path based on its extension.
func Classify(path string) ContentKind {
	ext := strings.ToLower(filepath.Ext(path))
	switch {
	case DocumentExtensions[ext]:
		return KindDocument
	case ArtifactExtensions[ext]:
		return KindArtifact
	case MediaExtensions[ext]:
		return KindMedia
	default:
		return KindOther
	}
}

// IsMediaReference reports whether a string lexically looks like a path
// to a media asset (used by the extractor to spot reference candidates
// anywhere in a document, including .asd analysis sidecars).
func IsMediaReference(value string) bool {
	ext := strings.ToLower(filepath.Ext(strings.TrimSpace(value)))
	return MediaExtensions[ext] || ext == ".asd"
}
