package prefs

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"

	"livecat/internal/catalog"
)

// HashMode controls content hashing during scans.
type HashMode string

const (
	// HashOff disables content hashing entirely.
	HashOff HashMode = "off"
	// HashChanged hashes only files whose size or mtime changed.
	HashChanged HashMode = "changed-only"
	// HashFull re-hashes every file, even metadata-unchanged ones.
	HashFull HashMode = "full"
)

// ParseHashMode validates a hash mode from user input.
func ParseHashMode(s string) (HashMode, error) {
	switch HashMode(s) {
	case HashOff, HashChanged, HashFull:
		return HashMode(s), nil
	}
	return "", fmt.Errorf("unknown hash mode %q (want off, changed-only or full)", s)
}

// HealthWeights are the configured deductions for the set health score.
type HealthWeights struct {
	MissingRef  float64
	SilentTrack float64
	EmptyTrack  float64
}

// Config is the resolved pipeline configuration.
type Config struct {
	CatalogDir string
	DBPath     string
	Roots      map[catalog.Scope]string

	Workers        int
	Hash           HashMode
	IncludeMedia   bool
	IncludeBackups bool
	FastDirs       bool

	Health      HealthWeights
	WindowsDays []int
	ChainLength int
}

// SetDefaults registers every known key with viper. Called once from
// the command layer before Load.
func SetDefaults() {
	viper.SetDefault("catalog_dir", ".livecat")
	viper.SetDefault("db_path", "")
	viper.SetDefault("roots.recordings", "")
	viper.SetDefault("roots.library", "")
	viper.SetDefault("roots.preferences", "")
	viper.SetDefault("workers", 0)
	viper.SetDefault("hash", string(HashOff))
	viper.SetDefault("include_media", false)
	viper.SetDefault("include_backups", false)
	viper.SetDefault("fast_dirs", false)
	viper.SetDefault("health.missing_ref", 15.0)
	viper.SetDefault("health.silent_track", 5.0)
	viper.SetDefault("health.empty_track", 3.0)
	viper.SetDefault("windows_days", []int{30, 90})
	viper.SetDefault("chain_length", 3)
}

// Load reads the resolved configuration from viper and validates it.
// Invalid values fail loudly before any scanning begins.
func Load() (*Config, error) {
	hash, err := ParseHashMode(viper.GetString("hash"))
	if err != nil {
		return nil, err
	}

	catalogDir := viper.GetString("catalog_dir")
	if catalogDir == "" {
		return nil, fmt.Errorf("catalog_dir must not be empty")
	}
	catalogDir, err = filepath.Abs(catalogDir)
	if err != nil {
		return nil, fmt.Errorf("resolving catalog_dir: %w", err)
	}

	dbPath := viper.GetString("db_path")
	if dbPath == "" {
		dbPath = filepath.Join(catalogDir, "catalog.sqlite")
	}

	cfg := &Config{
		CatalogDir: catalogDir,
		DBPath:     dbPath,
		Roots: map[catalog.Scope]string{
			catalog.ScopeRecordings:  viper.GetString("roots.recordings"),
			catalog.ScopeLibrary:     viper.GetString("roots.library"),
			catalog.ScopePreferences: viper.GetString("roots.preferences"),
		},
		Workers:        viper.GetInt("workers"),
		Hash:           hash,
		IncludeMedia:   viper.GetBool("include_media"),
		IncludeBackups: viper.GetBool("include_backups"),
		FastDirs:       viper.GetBool("fast_dirs"),
		Health: HealthWeights{
			MissingRef:  viper.GetFloat64("health.missing_ref"),
			SilentTrack: viper.GetFloat64("health.silent_track"),
			EmptyTrack:  viper.GetFloat64("health.empty_track"),
		},
		WindowsDays: viper.GetIntSlice("windows_days"),
		ChainLength: viper.GetInt("chain_length"),
	}

	if len(cfg.WindowsDays) == 0 {
		cfg.WindowsDays = []int{30, 90}
	}
	if cfg.ChainLength < 2 {
		cfg.ChainLength = 3
	}
	return cfg, nil
}

// Root returns the configured root for a scope, validating that it
// exists and is a directory.
func (c *Config) Root(scope catalog.Scope) (string, error) {
	root := c.Roots[scope]
	if root == "" {
		return "", fmt.Errorf("no root configured for scope %s (set roots.%s)", scope, scope)
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolving root for scope %s: %w", scope, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("root for scope %s: %w", scope, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("root for scope %s is not a directory: %s", scope, abs)
	}
	return abs, nil
}
