// Package config provides configuration management for the lazybd CLI.
package config

import (
	"os"
	"path/filepath"
)

// Dir returns the lazybd config directory.
// Uses XDG_CONFIG_HOME/lazybd, defaulting to ~/.config/lazybd.
func Dir() (string, error) {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "lazybd"), nil
}
