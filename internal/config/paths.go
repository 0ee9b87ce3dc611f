package config

import (
	"os"
	"path/filepath"
	"strings"
)

// HomeEnv overrides the shellboot home directory.
const HomeEnv = "SHELLBOOT_HOME"

// Paths contains the on-disk layout of a shellboot home.
type Paths struct {
	Home       string // Home directory
	Config     string // config.yaml read by Load
	PluginDir  string // Plugin modules (plugin.yaml + main.js per directory)
	ResourceDB string // SQLite resource repository
	Logs       string // Logs directory
}

// GetPaths returns the layout rooted at GetHome.
func GetPaths() Paths {
	return PathsFor(GetHome())
}

// PathsFor returns the layout rooted at home.
func PathsFor(home string) Paths {
	return Paths{
		Home:       home,
		Config:     filepath.Join(home, "config.yaml"),
		PluginDir:  filepath.Join(home, "plugins"),
		ResourceDB: filepath.Join(home, "resources.db"),
		Logs:       filepath.Join(home, "logs"),
	}
}

// GetHome returns $SHELLBOOT_HOME, or ~/.shellboot when unset.
func GetHome() string {
	if home := strings.TrimSpace(os.Getenv(HomeEnv)); home != "" {
		return ExpandPath(home)
	}
	userHome, _ := os.UserHomeDir()
	return filepath.Join(userHome, ".shellboot")
}

// ExpandPath expands ~ to the user home directory.
func ExpandPath(path string) string {
	if len(path) == 0 {
		return path
	}
	if path[0] == '~' {
		home, _ := os.UserHomeDir()
		if len(path) == 1 {
			return home
		}
		if path[1] == '/' || path[1] == os.PathSeparator {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}

// EnsureDirs creates the directory structure of p if it does not exist.
func EnsureDirs(p Paths) error {
	for _, dir := range []string{p.Home, p.PluginDir, p.Logs} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return nil
}
