package conflicts

import (
	"context"

	"github.com/Redysz/Graphoria/internal/gitexec"
)

// mergeContinue bridges git version skew: `merge --continue` appeared in
// git 2.12; older versions conclude a resolved merge with a plain commit.
var mergeContinue = gitexec.FallbackStrategy{
	Primary:  []string{"merge", "--continue"},
	Fallback: []string{"commit", "--no-edit"},
}

// Continue resumes the operation owning the current conflict state and
// returns the kind detected after the command. A zero exit never implies
// the operation finished; a rebase routinely stops again on the next
// commit, so only the re-probe decides.
func (s *Service) Continue(ctx context.Context, repoPath string) (OperationKind, error) {
	return s.dispatchContinuation(ctx, repoPath, func(root string, kind OperationKind) error {
		env := gitexec.NoEditorEnv()
		var err error
		switch kind {
		case KindMerge:
			_, err = mergeContinue.Run(ctx, s.runner, root, env)
		case KindRebase:
			_, err = s.runner.RunWriteEnv(ctx, root, env, "rebase", "--continue")
		case KindCherryPick:
			_, err = s.runner.RunWriteEnv(ctx, root, env, "cherry-pick", "--continue")
		case KindMailboxApply:
			_, err = s.runner.RunWriteEnv(ctx, root, env, "am", "--continue")
		}
		return err
	})
}

// Abort discards the operation owning the current conflict state.
func (s *Service) Abort(ctx context.Context, repoPath string) (OperationKind, error) {
	return s.dispatchContinuation(ctx, repoPath, func(root string, kind OperationKind) error {
		var err error
		switch kind {
		case KindMerge:
			_, err = s.runner.RunWrite(ctx, root, "merge", "--abort")
		case KindRebase:
			_, err = s.runner.RunWrite(ctx, root, "rebase", "--abort")
		case KindCherryPick:
			_, err = s.runner.RunWrite(ctx, root, "cherry-pick", "--abort")
		case KindMailboxApply:
			_, err = s.runner.RunWrite(ctx, root, "am", "--abort")
		}
		return err
	})
}

// Skip drops the current step of a stepped operation. A merge has no
// steps to skip.
func (s *Service) Skip(ctx context.Context, repoPath string) (OperationKind, error) {
	return s.dispatchContinuation(ctx, repoPath, func(root string, kind OperationKind) error {
		env := gitexec.NoEditorEnv()
		var err error
		switch kind {
		case KindMerge:
			return gitexec.NewBindingError(
				gitexec.CodeValidation,
				"A merge has no step to skip.",
				"Use continue or abort instead.",
			)
		case KindRebase:
			_, err = s.runner.RunWriteEnv(ctx, root, env, "rebase", "--skip")
		case KindCherryPick:
			_, err = s.runner.RunWriteEnv(ctx, root, env, "cherry-pick", "--skip")
		case KindMailboxApply:
			_, err = s.runner.RunWriteEnv(ctx, root, env, "am", "--skip")
		}
		return err
	})
}

func (s *Service) dispatchContinuation(ctx context.Context, repoPath string, run func(root string, kind OperationKind) error) (OperationKind, error) {
	root, err := s.runner.EnsureWorkingCopy(ctx, repoPath)
	if err != nil {
		return KindIdle, err
	}

	var after OperationKind
	lockErr := s.locks.WithRepoLock(root, func() error {
		probe, err := s.ProbeRepo(ctx, root)
		if err != nil {
			return err
		}
		kind := DetectOperation(probe)
		if kind == KindIdle {
			return gitexec.NewBindingError(
				gitexec.CodeNoOperation,
				"No merge, rebase, cherry-pick or mailbox apply is in progress.",
				root,
			)
		}

		if err := run(root, kind); err != nil {
			return err
		}

		reprobe, err := s.ProbeRepo(ctx, root)
		if err != nil {
			return err
		}
		after = DetectOperation(reprobe)
		s.emitConflictsChanged(root)
		return nil
	})
	if lockErr != nil {
		return KindIdle, lockErr
	}
	return after, nil
}
