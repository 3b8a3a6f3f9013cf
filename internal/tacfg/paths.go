// Package tacfg resolves XDG-style per-user paths and loads/saves the
// YAML user config.
package tacfg

import (
	"os"
	"path/filepath"
	"runtime"
)

const (
	platformLinux  = "linux"
	platformDarwin = "darwin"
)

// appName names the per-user directory tacl keeps its config and data
// under.
const appName = "tacl"

// configFileName and sessionFileName are the two YAML files tacl persists.
const (
	configFileName  = "config"
	sessionFileName = "session"
)

// ConfigDir returns the platform-specific directory for the config file.
// Respects XDG_CONFIG_HOME on Linux.
func ConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	switch runtime.GOOS {
	case platformLinux:
		return linuxDir(home, "XDG_CONFIG_HOME", ".config")
	case platformDarwin:
		return filepath.Join(home, "Library", "Application Support", appName)
	default:
		return filepath.Join(home, ".config", appName)
	}
}

// DataDir returns the platform-specific directory for application data: the
// session file and the SQLite request caches. Respects XDG_DATA_HOME on
// Linux.
func DataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	switch runtime.GOOS {
	case platformLinux:
		return linuxDir(home, "XDG_DATA_HOME", ".local/share")
	case platformDarwin:
		return filepath.Join(home, "Library", "Application Support", appName)
	default:
		return filepath.Join(home, ".local", "share", appName)
	}
}

func linuxDir(home, envVar, fallback string) string {
	if xdg := os.Getenv(envVar); xdg != "" {
		return filepath.Join(xdg, appName)
	}

	return filepath.Join(home, filepath.FromSlash(fallback), appName)
}

// ConfigPath returns the full path to the default config file.
func ConfigPath() string {
	dir := ConfigDir()
	if dir == "" {
		return ""
	}

	return filepath.Join(dir, configFileName)
}

// SessionPath returns the full path to the default session file.
func SessionPath() string {
	dir := DataDir()
	if dir == "" {
		return ""
	}

	return filepath.Join(dir, sessionFileName)
}

// CacheDir returns the directory the SQLite request caches live under.
func CacheDir() string {
	return filepath.Join(DataDir(), "cache")
}
