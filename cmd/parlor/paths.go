package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

const defaultProjectFile = "parlor.toml"

// projectCandidates are tried in order when --project was left at its default.
var projectCandidates = []string{"parlor.toml", "parlor.yaml", "parlor.yml", "parlor.json"}

// stdinIsTTY is a small seam for tests.
var stdinIsTTY = isTTY

// resolveProjectPath returns the project file to load. An explicit path must
// exist; the default name falls back to the other supported extensions in
// the same directory.
func resolveProjectPath(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		path = defaultProjectFile
	}
	path = filepath.Clean(path)
	if fileExists(path) {
		return path, nil
	}
	if filepath.Base(path) != defaultProjectFile {
		return "", fmt.Errorf("project file %s: %w", path, fs.ErrNotExist)
	}
	dir := filepath.Dir(path)
	for _, name := range projectCandidates {
		candidate := filepath.Join(dir, name)
		if fileExists(candidate) {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("no project file in %s (tried %s): %w",
		dir, strings.Join(projectCandidates, ", "), fs.ErrNotExist)
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	st, err := os.Stat(path)
	return err == nil && !st.IsDir()
}

func isNotExist(err error) bool { return errors.Is(err, fs.ErrNotExist) }

func isTTY() bool {
	st, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (st.Mode() & os.ModeCharDevice) != 0
}
