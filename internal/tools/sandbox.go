package tools

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ErrSandboxViolation is returned by ResolvePath when the requested path
// escapes the workspace root after symlink resolution.
type ErrSandboxViolation struct {
	Path string
}

func (e *ErrSandboxViolation) Error() string {
	return fmt.Sprintf("path escapes workspace root: %s", e.Path)
}

// ResolvePath joins root and rel, resolves symlinks, and verifies the
// result is still contained within root. Tools must call this before any
// filesystem I/O, per the sandbox contract in spec §4.2.
func ResolvePath(root, rel string) (string, error) {
	if root == "" {
		return "", fmt.Errorf("workspace root is required")
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolve workspace root: %w", err)
	}
	joined := filepath.Join(absRoot, rel)

	resolvedRoot, err := evalSymlinksBestEffort(absRoot)
	if err != nil {
		return "", err
	}
	resolved, err := evalSymlinksBestEffort(joined)
	if err != nil {
		return "", err
	}

	if !withinRoot(resolvedRoot, resolved) {
		return "", &ErrSandboxViolation{Path: rel}
	}
	return joined, nil
}

func withinRoot(root, candidate string) bool {
	rel, err := filepath.Rel(root, candidate)
	if err != nil {
		return false
	}
	if rel == "." {
		return true
	}
	return !strings.HasPrefix(rel, "..")
}
