package rebase

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Redysz/Graphoria/internal/conflicts"
	"github.com/Redysz/Graphoria/internal/gitexec"
)

// Start translates the plan, injects it through the sequence editor and
// drives the rebase until it completes, hits conflicts or parks at a
// genuine edit stop.
func (s *Service) Start(ctx context.Context, repoPath string, baseRef string, entries []TodoEntry) (*Result, error) {
	root, err := s.runner.EnsureWorkingCopy(ctx, repoPath)
	if err != nil {
		return nil, err
	}

	base := strings.TrimSpace(baseRef)
	if base == "" {
		return nil, gitexec.NewBindingError(
			gitexec.CodeValidation,
			"A base reference is required.",
			"Pass the commit to rebase onto.",
		)
	}
	if len(entries) == 0 {
		return nil, gitexec.NewBindingError(
			gitexec.CodeValidation,
			"No commits selected for rebase.",
			"",
		)
	}

	probe, err := s.conflicts.ProbeRepo(ctx, root)
	if err != nil {
		return nil, err
	}
	if kind := conflicts.DetectOperation(probe); kind != conflicts.KindIdle {
		return nil, gitexec.NewBindingError(
			gitexec.CodeOpInProgress,
			fmt.Sprintf("A %s operation is already in progress. Resolve or abort it first.", kind),
			root,
		)
	}

	lines, rewords, err := buildTodo(entries)
	if err != nil {
		return nil, err
	}

	var result *Result
	lockErr := s.locks.WithRepoLock(root, func() error {
		// An all-drop plan degenerates to moving the branch tip; no
		// rebase is run at all.
		if len(lines) == 0 {
			if _, err := s.runner.RunWrite(ctx, root, "reset", "--hard", base); err != nil {
				return err
			}
			result = &Result{
				Status:        StatusCompleted,
				Message:       "All commits dropped; branch reset to base.",
				ConflictFiles: []string{},
			}
			s.emitProgress(root, result.Status)
			return nil
		}

		tempDir, err := os.MkdirTemp("", "graphoria-rebase-")
		if err != nil {
			return gitexec.NewBindingError(
				gitexec.CodeUnknown,
				"Failed to prepare rebase plan.",
				err.Error(),
			)
		}
		defer os.RemoveAll(tempDir)

		todoPath := filepath.Join(tempDir, "todo.txt")
		todoContent := strings.Join(lines, "\n") + "\n"
		if err := os.WriteFile(todoPath, []byte(todoContent), 0o644); err != nil {
			return gitexec.NewBindingError(
				gitexec.CodeUnknown,
				"Failed to prepare rebase plan.",
				err.Error(),
			)
		}

		s.saveRewordMap(ctx, root, rewords)

		env := append(gitexec.NoEditorEnv(), "GIT_SEQUENCE_EDITOR="+sequenceEditorScript(todoPath))
		out, runErr := s.runner.RunEnv(ctx, root, env, "rebase", "-i", "--autostash", base)

		if !s.isRebaseInProgress(ctx, root) {
			s.cleanupRewordMap(ctx, root)
			if runErr != nil {
				// Failed before anything started (bad base, dirty
				// tree the autostash could not handle).
				return runErr
			}
			result = &Result{
				Status:        StatusCompleted,
				Message:       completionMessage(out),
				ConflictFiles: []string{},
			}
			s.emitProgress(root, result.Status)
			return nil
		}

		state := s.detectState(ctx, root)
		if state.Status == StatusConflicts {
			result = state
			s.emitProgress(root, result.Status)
			return nil
		}

		advanced, err := s.autoAdvance(ctx, root)
		if err != nil {
			return err
		}
		result = advanced
		s.emitProgress(root, result.Status)
		return nil
	})
	if lockErr != nil {
		return nil, lockErr
	}
	return result, nil
}

// Continue resumes after a user-handled edit stop or resolved conflicts,
// then re-enters the auto-advance loop so trailing reword stops still
// resolve without round trips.
func (s *Service) Continue(ctx context.Context, repoPath string) (*Result, error) {
	root, err := s.runner.EnsureWorkingCopy(ctx, repoPath)
	if err != nil {
		return nil, err
	}

	var result *Result
	lockErr := s.locks.WithRepoLock(root, func() error {
		if !s.isRebaseInProgress(ctx, root) {
			return noRebaseError(root)
		}

		_, runErr := s.runner.RunWriteEnv(ctx, root, continueEnv(), "rebase", "--continue")

		if !s.isRebaseInProgress(ctx, root) {
			s.cleanupRewordMap(ctx, root)
			result = &Result{
				Status:        StatusCompleted,
				Message:       "Rebase completed successfully.",
				ConflictFiles: []string{},
			}
			s.emitProgress(root, result.Status)
			return nil
		}

		state := s.detectState(ctx, root)
		if state.Status == StatusStoppedAtEdit {
			advanced, err := s.autoAdvance(ctx, root)
			if err != nil {
				return err
			}
			result = advanced
			s.emitProgress(root, result.Status)
			return nil
		}
		if state.Status == StatusConflicts {
			result = state
			s.emitProgress(root, result.Status)
			return nil
		}
		if runErr != nil {
			return runErr
		}
		result = state
		s.emitProgress(root, result.Status)
		return nil
	})
	if lockErr != nil {
		return nil, lockErr
	}
	return result, nil
}

// autoAdvance amends and continues through consecutive reword stops until
// the rebase completes, conflicts, or parks at a stop the map does not
// cover. Each applied entry is consumed from the side file, so a stop
// seen twice is by definition a genuine edit.
func (s *Service) autoAdvance(ctx context.Context, repoRoot string) (*Result, error) {
	rewords := s.loadRewordMap(ctx, repoRoot)

	for {
		if !s.isRebaseInProgress(ctx, repoRoot) {
			s.cleanupRewordMap(ctx, repoRoot)
			return &Result{
				Status:        StatusCompleted,
				Message:       "Rebase completed successfully.",
				ConflictFiles: []string{},
			}, nil
		}

		state := s.detectState(ctx, repoRoot)
		if state.Status == StatusConflicts {
			return state, nil
		}

		entry, key, found := rewords.findRewordEntry(s.stoppedHash(ctx, repoRoot))
		if !found {
			// A genuine edit stop: hand control back to the user.
			return state, nil
		}

		if _, err := s.runner.RunWriteEnv(ctx, repoRoot, gitexec.NoEditorEnv(), amendArgs(entry.Message, entry.Author)...); err != nil {
			return nil, err
		}
		delete(rewords, key)
		s.saveRewordMap(ctx, repoRoot, rewords)

		if _, err := s.runner.RunWriteEnv(ctx, repoRoot, continueEnv(), "rebase", "--continue"); err != nil {
			// A failing continue usually means the next step stopped
			// on conflicts; the loop's re-probe settles it. Anything
			// that ended the rebase is a real failure.
			if !s.isRebaseInProgress(ctx, repoRoot) {
				return nil, err
			}
		}
	}
}

// AmendStopped rewrites the commit the rebase is parked on. The caller
// invokes Continue separately once done editing.
func (s *Service) AmendStopped(ctx context.Context, repoPath string, message string, author string) (string, error) {
	root, err := s.runner.EnsureWorkingCopy(ctx, repoPath)
	if err != nil {
		return "", err
	}

	var out string
	lockErr := s.locks.WithRepoLock(root, func() error {
		if !s.isRebaseInProgress(ctx, root) {
			return noRebaseError(root)
		}

		var msgPtr, authorPtr *string
		if strings.TrimSpace(message) != "" {
			msgPtr = &message
		}
		if strings.TrimSpace(author) != "" {
			authorPtr = &author
		}

		amended, err := s.runner.RunWriteEnv(ctx, root, gitexec.NoEditorEnv(), amendArgs(msgPtr, authorPtr)...)
		if err != nil {
			return err
		}
		out = amended
		return nil
	})
	return out, lockErr
}

// Abort discards the rebase and the reword side file.
func (s *Service) Abort(ctx context.Context, repoPath string) error {
	root, err := s.runner.EnsureWorkingCopy(ctx, repoPath)
	if err != nil {
		return err
	}

	return s.locks.WithRepoLock(root, func() error {
		if !s.isRebaseInProgress(ctx, root) {
			return noRebaseError(root)
		}
		if _, err := s.runner.RunWrite(ctx, root, "rebase", "--abort"); err != nil {
			return err
		}
		s.cleanupRewordMap(ctx, root)
		s.emitProgress(root, "aborted")
		return nil
	})
}

// amendArgs builds the no-verify amend invocation: a nil message keeps
// the commit's message, a nil author keeps its author.
func amendArgs(message *string, author *string) []string {
	args := []string{"commit", "--amend", "--no-verify"}
	if message != nil && strings.TrimSpace(*message) != "" {
		args = append(args, "-m", *message)
	} else {
		args = append(args, "--no-edit")
	}
	if author != nil && strings.TrimSpace(*author) != "" {
		args = append(args, "--author", *author)
	}
	return args
}

// continueEnv suppresses both the commit editor and the sequence editor;
// a continue must never reopen the todo.
func continueEnv() []string {
	return append(gitexec.NoEditorEnv(), "GIT_SEQUENCE_EDITOR=true")
}

func completionMessage(out string) string {
	if strings.TrimSpace(out) != "" {
		return strings.TrimSpace(out)
	}
	return "Rebase completed successfully."
}

func noRebaseError(root string) error {
	return gitexec.NewBindingError(
		gitexec.CodeNoOperation,
		"No interactive rebase is in progress.",
		root,
	)
}
