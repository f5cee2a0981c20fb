package catalog

import (
	"regexp"
	"strings"
)

// Directory names that are never scanned regardless of options.
var alwaysSkippedDirs = map[string]bool{
	".git":        true,
	".venv":       true,
	"venv":        true,
	"__pycache__": true,
	".DS_Store":   true,
}

// backupDirName is the reserved autosave directory name.
const backupDirName = "backup"

// Autosave copies carry a bracketed timestamp, e.g.
// "My Set [2026-01-19 123456].als".
var backupStampPattern = regexp.MustCompile(`\[[0-9]{4}-[0-9]{2}-[0-9]{2} [0-9]+\]`)

// IsAlwaysSkippedDir reports whether a directory name is excluded from
// traversal unconditionally (tooling and VCS litter).
func IsAlwaysSkippedDir(name string) bool {
	return alwaysSkippedDirs[name]
}

// IsBackupDir reports whether a directory name marks the reserved
// backup area. Excluded by default, included with the backups option.
func IsBackupDir(name string) bool {
	return strings.EqualFold(name, backupDirName)
}

// IsBackupFile reports whether a file name looks like an autosave copy
// (bracketed timestamp suffix).
func IsBackupFile(name string) bool {
	return backupStampPattern.MatchString(name)
}
