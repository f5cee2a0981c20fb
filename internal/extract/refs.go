package extract

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"livecat/internal/catalog"
)

// ResolveRefs turns raw reference candidates into edges with existence
// resolved against the filesystem. Absolute candidates are checked
// directly; relative ones are joined to the document's directory under
// the scan root. Stat errors count as not-exists.
func ResolveRefs(docPath string, root string, candidates []string, scannedAt time.Time) []catalog.ReferenceEdge {
	if len(candidates) == 0 {
		return nil
	}

	docDir := filepath.Dir(filepath.Join(root, filepath.FromSlash(docPath)))
	edges := make([]catalog.ReferenceEdge, 0, len(candidates))
	for _, cand := range candidates {
		target := filepath.FromSlash(cand)
		if !filepath.IsAbs(target) {
			target = filepath.Join(docDir, target)
		}
		info, err := os.Stat(target)
		exists := err == nil && !info.IsDir()

		// Targets under the root get a scope-relative path so the
		// catalog can join edges back to indexed files.
		resolved := ""
		if exists {
			if rel, relErr := filepath.Rel(root, target); relErr == nil && !strings.HasPrefix(rel, "..") {
				resolved = filepath.ToSlash(rel)
			}
		}

		edges = append(edges, catalog.ReferenceEdge{
			DocPath:      docPath,
			RefPath:      cand,
			RefKind:      refKind(cand),
			ResolvedPath: resolved,
			Exists:       exists,
			ScannedAt:    scannedAt.Unix(),
		})
	}
	return edges
}

func refKind(ref string) string {
	ext := strings.ToLower(filepath.Ext(ref))
	if ext == ".asd" {
		return "analysis"
	}
	if catalog.MediaExtensions[ext] {
		return "media"
	}
	return "other"
}
