package rebase

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/Redysz/Graphoria/internal/gitexec"
)

// Edit-stop file utilities. These are thin pass-throughs for the UI's
// "modify the commit before continuing" flow; the only state they need
// is an active rebase stop, verified on every call.

func (s *Service) requireEditStop(ctx context.Context, repoPath string) (string, error) {
	root, err := s.runner.EnsureWorkingCopy(ctx, repoPath)
	if err != nil {
		return "", err
	}
	if !s.isRebaseInProgress(ctx, root) {
		return "", noRebaseError(root)
	}
	return root, nil
}

// StoppedCommitFiles lists the paths the currently-stopped commit touches.
func (s *Service) StoppedCommitFiles(ctx context.Context, repoPath string) ([]string, error) {
	root, err := s.requireEditStop(ctx, repoPath)
	if err != nil {
		return nil, err
	}

	out, err := s.runner.RunRaw(ctx, root, "diff-tree", "--no-commit-id", "--name-only", "-r", "-z", "REBASE_HEAD")
	if err != nil {
		return nil, err
	}

	files := make([]string, 0)
	for _, path := range strings.Split(out, "\x00") {
		if strings.TrimSpace(path) != "" {
			files = append(files, path)
		}
	}
	return files, nil
}

// ReadWorktreeFile returns the current on-disk content of a file.
func (s *Service) ReadWorktreeFile(ctx context.Context, repoPath string, filePath string) (string, error) {
	root, err := s.requireEditStop(ctx, repoPath)
	if err != nil {
		return "", err
	}
	relPath, err := gitexec.EnsurePathWithinRepo(root, filePath)
	if err != nil {
		return "", err
	}

	payload, readErr := os.ReadFile(filepath.Join(filepath.FromSlash(root), filepath.FromSlash(relPath)))
	if readErr != nil {
		return "", gitexec.NewBindingError(
			gitexec.CodeInvalidPath,
			"Failed to read file.",
			readErr.Error(),
		)
	}
	if strings.Contains(string(payload), "\x00") {
		return "", gitexec.NewBindingError(
			gitexec.CodeBinaryUnsupported,
			"Binary file preview is not supported.",
			relPath,
		)
	}
	return string(payload), nil
}

// WriteWorktreeFile replaces a file's content and stages it so the change
// lands in the stopped commit on the next amend or continue.
func (s *Service) WriteWorktreeFile(ctx context.Context, repoPath string, filePath string, content string) error {
	root, err := s.requireEditStop(ctx, repoPath)
	if err != nil {
		return err
	}
	relPath, err := gitexec.EnsurePathWithinRepo(root, filePath)
	if err != nil {
		return err
	}

	return s.locks.WithRepoLock(root, func() error {
		target := filepath.Join(filepath.FromSlash(root), filepath.FromSlash(relPath))
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return gitexec.NewBindingError(gitexec.CodeUnknown, "Failed to write file.", err.Error())
		}
		if err := os.WriteFile(target, []byte(content), 0o644); err != nil {
			return gitexec.NewBindingError(gitexec.CodeUnknown, "Failed to write file.", err.Error())
		}
		_, err := s.runner.RunWrite(ctx, root, "add", "--", relPath)
		return err
	})
}

// RenameWorktreeFile moves a file through git so the index follows.
func (s *Service) RenameWorktreeFile(ctx context.Context, repoPath string, fromPath string, toPath string) error {
	root, err := s.requireEditStop(ctx, repoPath)
	if err != nil {
		return err
	}
	from, err := gitexec.EnsurePathWithinRepo(root, fromPath)
	if err != nil {
		return err
	}
	to, err := gitexec.EnsurePathWithinRepo(root, toPath)
	if err != nil {
		return err
	}

	return s.locks.WithRepoLock(root, func() error {
		_, err := s.runner.RunWrite(ctx, root, "mv", "--", from, to)
		return err
	})
}

// DeleteWorktreeFile removes a file and stages the removal.
func (s *Service) DeleteWorktreeFile(ctx context.Context, repoPath string, filePath string) error {
	root, err := s.requireEditStop(ctx, repoPath)
	if err != nil {
		return err
	}
	relPath, err := gitexec.EnsurePathWithinRepo(root, filePath)
	if err != nil {
		return err
	}

	return s.locks.WithRepoLock(root, func() error {
		_, err := s.runner.RunWrite(ctx, root, "rm", "-f", "--", relPath)
		return err
	})
}

// RestoreFileFromHead discards edits to a file, restoring the stopped
// commit's version in both index and working tree.
func (s *Service) RestoreFileFromHead(ctx context.Context, repoPath string, filePath string) error {
	root, err := s.requireEditStop(ctx, repoPath)
	if err != nil {
		return err
	}
	relPath, err := gitexec.EnsurePathWithinRepo(root, filePath)
	if err != nil {
		return err
	}

	return s.locks.WithRepoLock(root, func() error {
		_, err := s.runner.RunWrite(ctx, root, "checkout", "HEAD", "--", relPath)
		return err
	})
}
