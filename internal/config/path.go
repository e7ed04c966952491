package config

import (
	"os"
	"path/filepath"
)

const appName = "backlog"

// DefaultDataDir returns the default data directory for the host. XDG_DATA_HOME
// wins, then /var/lib, then the per-user application directories on macOS and
// Windows, then ~/.backlog. Without a home directory it returns ./data.
func DefaultDataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, appName)
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return "./data"
	}
	candidates := []struct{ probe, dir string }{
		{"/var/lib", filepath.Join("/var/lib", appName)},
		{filepath.Join(home, "Library"), filepath.Join(home, "Library", "Application Support", "Backlog")},
		{filepath.Join(home, "AppData"), filepath.Join(home, "AppData", "Local", "Backlog")},
	}
	for _, c := range candidates {
		if isDir(c.probe) {
			return c.dir
		}
	}
	return filepath.Join(home, "."+appName)
}

// CursorDBDir is where the pebble cursor backend keeps its database.
func CursorDBDir(dataDir string) string {
	return filepath.Join(dataDir, "cursor.db")
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}
