package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/apollo-com-ph/apollo-claude/internal/fileutil"
)

const (
	patternsFileName = "patterns.json"
	markerFileName   = "patterns.last_update"
	configFileName   = "config.yaml"
	historyFileName  = "history.db"

	// EnvStateDir overrides the state directory (tests, containers).
	EnvStateDir = "SAFE_BASH_DIR"
)

// StateDir returns the safe-bash state directory and creates it if needed.
func StateDir() string {
	if dir := os.Getenv(EnvStateDir); dir != "" {
		_ = fileutil.SecureMkdirAll(dir) //nolint:errcheck // best effort - dir may exist
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		home = "/tmp" // Fallback if home dir unavailable
	}
	dir := filepath.Join(home, ".safe-bash")
	_ = fileutil.SecureMkdirAll(dir) //nolint:errcheck // best effort - dir may exist
	return dir
}

// PatternsPath returns the path of the live user rule document.
func PatternsPath() string {
	return filepath.Join(StateDir(), patternsFileName)
}

// MarkerPath returns the path of the staleness marker file. Only the file's
// mtime carries meaning; its contents are informational.
func MarkerPath() string {
	return filepath.Join(StateDir(), markerFileName)
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	return filepath.Join(StateDir(), configFileName)
}

// HistoryDBPath returns the default decision history database path.
func HistoryDBPath() string {
	return filepath.Join(StateDir(), historyFileName)
}

// DisplayPath returns a display-friendly path using ~ for the home directory.
func DisplayPath(p string) string {
	if home, err := os.UserHomeDir(); err == nil {
		if rel, err := filepath.Rel(home, p); err == nil && !filepath.IsAbs(rel) && !strings.HasPrefix(rel, "..") {
			return "~/" + rel
		}
	}
	return p
}
