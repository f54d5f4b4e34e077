package gitexec

import (
	"os"
	"path"
	"path/filepath"
	"strings"
)

// EnsurePathWithinRepo validates a repo-relative file path from a binding
// and returns its cleaned slash form. Absolute paths, traversal and NUL
// bytes are rejected before anything touches the filesystem.
func EnsurePathWithinRepo(repoRoot string, filePath string) (string, error) {
	trimmed := strings.TrimSpace(filePath)
	if trimmed == "" {
		return "", NewBindingError(
			CodeInvalidPath,
			"File path is required.",
			"Provide a path relative to the repository root.",
		)
	}

	if strings.ContainsRune(trimmed, '\x00') {
		return "", NewBindingError(
			CodeInvalidPath,
			"Invalid file path.",
			"NUL bytes are not allowed in paths.",
		)
	}

	normalizedInput := strings.ReplaceAll(filepath.ToSlash(trimmed), "\\", "/")
	normalized := path.Clean(normalizedInput)
	if normalized == "." || normalized == ".." || strings.HasPrefix(normalized, "../") || strings.HasPrefix(normalized, "/") {
		return "", NewBindingError(
			CodeInvalidPath,
			"Invalid file path.",
			"Only relative paths inside the repository are allowed.",
		)
	}
	if filepath.IsAbs(trimmed) {
		return "", NewBindingError(
			CodeInvalidPath,
			"Invalid file path.",
			"Only relative paths inside the repository are allowed.",
		)
	}

	rootAbs, err := filepath.Abs(filepath.FromSlash(NormalizeRepoPath(repoRoot)))
	if err != nil {
		return "", NewBindingError(
			CodeRepoNotFound,
			"Failed to validate repository scope.",
			err.Error(),
		)
	}
	targetAbs, err := filepath.Abs(filepath.Join(rootAbs, filepath.FromSlash(normalized)))
	if err != nil {
		return "", NewBindingError(
			CodeInvalidPath,
			"Invalid file path.",
			err.Error(),
		)
	}

	relPath, err := filepath.Rel(rootAbs, targetAbs)
	if err != nil {
		return "", NewBindingError(
			CodeInvalidPath,
			"Invalid file path.",
			err.Error(),
		)
	}
	if relPath == "." || relPath == ".." || strings.HasPrefix(relPath, ".."+string(os.PathSeparator)) {
		return "", NewBindingError(
			CodeRepoOutOfScope,
			"Path escapes the repository.",
			normalized,
		)
	}

	return normalized, nil
}
