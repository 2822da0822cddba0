package utils

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

var ErrNoDirectory = errors.New("no usable directory")

// DefaultROMDirs are searched when no ROM directory is given.
var DefaultROMDirs = []string{"roms", "space-invaders-source", "."}

func GetPathInfo(relPath string) (fullPath string, parentDir string, err error) {
	// Convert to absolute path (resolves ../../ and cleans the path)
	fullPath, err = filepath.Abs(relPath)
	if err != nil {
		return "", "", err
	}

	parentDir = filepath.Dir(fullPath)

	return fullPath, parentDir, nil
}

// ResolveDir returns the absolute path of the first candidate that is an
// existing directory. Empty candidates are skipped.
func ResolveDir(candidates ...string) (string, error) {
	for _, c := range candidates {
		if c == "" {
			continue
		}
		full, _, err := GetPathInfo(c)
		if err != nil {
			continue
		}
		if info, err := os.Stat(full); err == nil && info.IsDir() {
			return full, nil
		}
	}
	return "", fmt.Errorf("%w: tried %q", ErrNoDirectory, candidates)
}
