package tools

import (
	"os"
	"path/filepath"
)

// evalSymlinksBestEffort resolves symlinks in path, walking up to the
// longest existing ancestor when path itself does not yet exist (e.g. a
// file about to be created by `edit`), then re-appending the missing tail.
func evalSymlinksBestEffort(path string) (string, error) {
	if _, err := os.Lstat(path); err == nil {
		return filepath.EvalSymlinks(path)
	}

	dir, tail := filepath.Split(path)
	if dir == "" || dir == string(filepath.Separator) {
		return path, nil
	}
	resolvedDir, err := evalSymlinksBestEffort(filepath.Clean(dir))
	if err != nil {
		return "", err
	}
	return filepath.Join(resolvedDir, tail), nil
}
