package conflicts

import (
	"context"
	"os"
	"path/filepath"

	"github.com/Redysz/Graphoria/internal/gitexec"
)

// TakeOurs resolves a conflicted path with the local side. A path the
// local side deleted is resolved by confirming the deletion; a rename
// conflict drops the incoming name first so both names do not linger.
func (s *Service) TakeOurs(ctx context.Context, repoPath string, filePath string) error {
	root, relPath, err := s.resolveTarget(ctx, repoPath, filePath)
	if err != nil {
		return err
	}

	return s.locks.WithRepoLock(root, func() error {
		set, unmerged, err := s.stageSet(ctx, root, relPath)
		if err != nil {
			return err
		}
		if !unmerged {
			return notConflictedError(relPath)
		}

		if !set[2] {
			if _, err := s.runner.RunWrite(ctx, root, "rm", "-f", "--", relPath); err != nil {
				return err
			}
			s.emitConflictsChanged(root)
			return nil
		}

		if rename := s.detectIncomingRename(ctx, root, relPath); rename.newPath != "" {
			if _, err := s.runner.RunWrite(ctx, root, "rm", "-f", "--ignore-unmatch", "--", rename.newPath); err != nil {
				return err
			}
		}

		if _, err := s.runner.RunWrite(ctx, root, "checkout", "--ours", "--", relPath); err != nil {
			return err
		}
		if _, err := s.runner.RunWrite(ctx, root, "add", "--", relPath); err != nil {
			return err
		}
		s.emitConflictsChanged(root)
		return nil
	})
}

// TakeTheirs resolves a conflicted path with the incoming side. When the
// incoming side renamed the file, its content lands at the renamed path
// and the original path is removed; when the incoming side deleted it,
// the deletion is confirmed.
func (s *Service) TakeTheirs(ctx context.Context, repoPath string, filePath string) error {
	root, relPath, err := s.resolveTarget(ctx, repoPath, filePath)
	if err != nil {
		return err
	}

	return s.locks.WithRepoLock(root, func() error {
		set, unmerged, err := s.stageSet(ctx, root, relPath)
		if err != nil {
			return err
		}
		if !unmerged {
			return notConflictedError(relPath)
		}

		if !set[3] {
			if rename := s.detectIncomingRename(ctx, root, relPath); rename.newPath != "" {
				ref := s.theirsRef(ctx, root)
				if _, err := s.runner.RunWrite(ctx, root, "checkout", ref, "--", rename.newPath); err != nil {
					return err
				}
				if _, err := s.runner.RunWrite(ctx, root, "add", "--", rename.newPath); err != nil {
					return err
				}
				if _, err := s.runner.RunWrite(ctx, root, "rm", "-f", "--ignore-unmatch", "--", relPath); err != nil {
					return err
				}
				s.emitConflictsChanged(root)
				return nil
			}

			if _, err := s.runner.RunWrite(ctx, root, "rm", "-f", "--", relPath); err != nil {
				return err
			}
			s.emitConflictsChanged(root)
			return nil
		}

		if _, err := s.runner.RunWrite(ctx, root, "checkout", "--theirs", "--", relPath); err != nil {
			return err
		}
		if _, err := s.runner.RunWrite(ctx, root, "add", "--", relPath); err != nil {
			return err
		}
		s.emitConflictsChanged(root)
		return nil
	})
}

// ResolveRename settles a rename conflict from two explicit choices: which
// filename survives and which side's content fills it. The unused
// counterpart path is removed from both index and working tree.
func (s *Service) ResolveRename(ctx context.Context, repoPath string, filePath string, keepName Side, keepContent Side) error {
	if keepName != SideOurs && keepName != SideTheirs {
		return gitexec.NewBindingError(
			gitexec.CodeValidation,
			"keepName must be 'ours' or 'theirs'.",
			string(keepName),
		)
	}
	if keepContent != SideOurs && keepContent != SideTheirs {
		return gitexec.NewBindingError(
			gitexec.CodeValidation,
			"keepContent must be 'ours' or 'theirs'.",
			string(keepContent),
		)
	}

	root, relPath, err := s.resolveTarget(ctx, repoPath, filePath)
	if err != nil {
		return err
	}

	return s.locks.WithRepoLock(root, func() error {
		rename := s.detectIncomingRename(ctx, root, relPath)
		if rename.newPath == "" {
			return gitexec.NewBindingError(
				gitexec.CodeRenameUndetected,
				"No incoming rename detected for this file.",
				relPath,
			)
		}

		finalPath := rename.oldPath
		counterpart := rename.newPath
		if keepName == SideTheirs {
			finalPath = rename.newPath
			counterpart = rename.oldPath
		}

		var content string
		if keepContent == SideOurs {
			got, ok := s.stageContent(ctx, root, 2, rename.oldPath)
			if !ok {
				got, _ = s.refContent(ctx, root, "HEAD", rename.oldPath)
			}
			content = got
		} else {
			ref := s.theirsRef(ctx, root)
			got, ok := s.refContent(ctx, root, ref, rename.newPath)
			if !ok {
				got, _ = s.stageContent(ctx, root, 3, rename.oldPath)
			}
			content = got
		}

		if err := writeWorktreeFile(root, finalPath, content); err != nil {
			return err
		}
		if _, err := s.runner.RunWrite(ctx, root, "add", "--", finalPath); err != nil {
			return err
		}
		if _, err := s.runner.RunWrite(ctx, root, "rm", "-f", "--ignore-unmatch", "--", counterpart); err != nil {
			return err
		}
		// rm --ignore-unmatch leaves a stray untracked file behind when
		// the counterpart never made it into the index.
		_ = os.Remove(filepath.Join(filepath.FromSlash(root), filepath.FromSlash(counterpart)))

		s.emitConflictsChanged(root)
		return nil
	})
}

// ApplyAndStage writes caller-provided resolved content to a path and
// stages it, the manual-resolution endpoint of the conflict editor.
func (s *Service) ApplyAndStage(ctx context.Context, repoPath string, filePath string, content string) error {
	root, relPath, err := s.resolveTarget(ctx, repoPath, filePath)
	if err != nil {
		return err
	}

	return s.locks.WithRepoLock(root, func() error {
		if err := writeWorktreeFile(root, relPath, content); err != nil {
			return err
		}
		if _, err := s.runner.RunWrite(ctx, root, "add", "--", relPath); err != nil {
			return err
		}

		s.emitConflictsChanged(root)
		return nil
	})
}

func (s *Service) resolveTarget(ctx context.Context, repoPath string, filePath string) (string, string, error) {
	root, err := s.runner.EnsureWorkingCopy(ctx, repoPath)
	if err != nil {
		return "", "", err
	}
	relPath, err := gitexec.EnsurePathWithinRepo(root, filePath)
	if err != nil {
		return "", "", err
	}
	return root, relPath, nil
}

func (s *Service) stageSet(ctx context.Context, repoRoot string, relPath string) ([4]bool, bool, error) {
	stageOut, err := s.runner.RunRaw(ctx, repoRoot, "ls-files", "-u", "-z", "--", relPath)
	if err != nil {
		return [4]bool{}, false, err
	}
	set, unmerged := parseUnmergedStagesZ(stageOut)[relPath]
	return set, unmerged, nil
}

func notConflictedError(relPath string) error {
	return gitexec.NewBindingError(
		gitexec.CodeValidation,
		"File has no conflict to resolve.",
		relPath,
	)
}

func writeWorktreeFile(repoRoot string, relPath string, content string) error {
	target := filepath.Join(filepath.FromSlash(repoRoot), filepath.FromSlash(relPath))
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return gitexec.NewBindingError(
			gitexec.CodeUnknown,
			"Failed to write resolved content.",
			err.Error(),
		)
	}
	if err := os.WriteFile(target, []byte(content), 0o644); err != nil {
		return gitexec.NewBindingError(
			gitexec.CodeUnknown,
			"Failed to write resolved content.",
			err.Error(),
		)
	}
	return nil
}
