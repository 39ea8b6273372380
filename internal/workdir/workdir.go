// Package workdir provides utilities for managing the dictation working directory.
package workdir

import (
	"fmt"
	"os"
	"path/filepath"
)

// Root returns the base directory for all dictation working files.
// The path is expanded at runtime to resolve to:
//
//	$HOME/.dictate
func Root() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(home, ".dictate"), nil
}

// Resolve returns the working directory, preferring the override when set.
func Resolve(override string) (string, error) {
	if override != "" {
		return override, nil
	}
	return Root()
}

// TakesPath returns the directory where recorded takes are kept.
func TakesPath(dir string) string {
	return filepath.Join(dir, "takes")
}

// DBPath returns the path of the correction history database.
func DBPath(dir string) string {
	return filepath.Join(dir, "corrections.db")
}

// Prep ensures that the working directory and its subdirectories exist.
func Prep(dir string) error {
	if err := os.MkdirAll(TakesPath(dir), 0755); err != nil {
		return fmt.Errorf("failed to create working directory %s: %w", dir, err)
	}

	return nil
}
