package config

import (
	"os"
	"path/filepath"
)

// defaultHomeDir returns $HOME/.pennsieve, the on-disk root for the
// database file, cache directory, and (out of scope) config.ini, per
// spec.md §6.
func defaultHomeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".pennsieve")
}
