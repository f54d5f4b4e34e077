package patches

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/Redysz/Graphoria/internal/gitexec"
)

// EventEmitter delivers change notifications to the frontend.
type EventEmitter func(eventName string, data interface{})

const (
	eventStatusChanged    = "git:status_changed"
	eventConflictsChanged = "git:conflicts_changed"
)

// Service predicts and applies patch files.
type Service struct {
	runner *gitexec.Runner
	locks  *gitexec.Locks
	emit   EventEmitter
}

func NewService(runner *gitexec.Runner, locks *gitexec.Locks, emit EventEmitter) *Service {
	if emit == nil {
		emit = func(string, interface{}) {}
	}
	return &Service{runner: runner, locks: locks, emit: emit}
}

func normalizeMethod(method string) (Method, error) {
	switch Method(strings.ToLower(strings.TrimSpace(method))) {
	case MethodDirect:
		return MethodDirect, nil
	case MethodMailbox:
		return MethodMailbox, nil
	default:
		return "", gitexec.NewBindingError(
			gitexec.CodeValidation,
			"Patch method must be 'apply' or 'am'.",
			method,
		)
	}
}

func readPatchFile(patchPath string) (string, error) {
	path := strings.TrimSpace(patchPath)
	if path == "" {
		return "", gitexec.NewBindingError(
			gitexec.CodeValidation,
			"A patch file path is required.",
			"",
		)
	}
	payload, err := os.ReadFile(path)
	if err != nil {
		return "", gitexec.NewBindingError(
			gitexec.CodePatchInvalid,
			"Failed to read patch file.",
			err.Error(),
		)
	}
	return string(payload), nil
}

// Predict runs a non-mutating applicability check: the touched paths come
// from static header inspection, the verdict from `apply --check` fed the
// raw diff over stdin. A failed check is a result, not an error.
func (s *Service) Predict(ctx context.Context, repoPath string, patchPath string, method string) (*PredictResult, error) {
	root, err := s.runner.EnsureWorkingCopy(ctx, repoPath)
	if err != nil {
		return nil, err
	}
	normalized, err := normalizeMethod(method)
	if err != nil {
		return nil, err
	}
	text, err := readPatchFile(patchPath)
	if err != nil {
		return nil, err
	}

	files := touchedPaths(text)
	if len(files) == 0 {
		return nil, gitexec.NewBindingError(
			gitexec.CodePatchInvalid,
			"The file does not look like a patch.",
			"No diff headers found.",
		)
	}

	payload := text
	if normalized == MethodMailbox {
		payload = diffPayload(text)
	}

	var result *PredictResult
	lockErr := s.locks.WithRepoLock(root, func() error {
		out, checkErr := s.runner.RunWithStdin(ctx, root, payload, "apply", "--check", "--", "-")
		if checkErr == nil {
			message := strings.TrimSpace(out)
			if message == "" {
				message = "ok"
			}
			result = &PredictResult{OK: true, Message: message, Files: files, ConflictFiles: []string{}}
			return nil
		}

		bindErr := gitexec.AsBindingError(checkErr)
		if bindErr == nil || bindErr.Code != gitexec.CodeCommandFailed {
			return checkErr
		}
		result = &PredictResult{
			OK:            false,
			Message:       bindErr.Message,
			Files:         files,
			ConflictFiles: conflictPathsFromDiagnostic(bindErr.Message),
		}
		return nil
	})
	if lockErr != nil {
		return nil, lockErr
	}
	return result, nil
}

// Apply applies a patch file. The direct method patches the working tree
// only; the mailbox method replays the contained commits with a 3-way
// fallback, so a non-clean application surfaces as resolvable conflicts
// instead of an outright failure.
func (s *Service) Apply(ctx context.Context, repoPath string, patchPath string, method string) (string, error) {
	root, err := s.runner.EnsureWorkingCopy(ctx, repoPath)
	if err != nil {
		return "", err
	}
	normalized, err := normalizeMethod(method)
	if err != nil {
		return "", err
	}
	path := strings.TrimSpace(patchPath)
	if path == "" {
		return "", gitexec.NewBindingError(
			gitexec.CodeValidation,
			"A patch file path is required.",
			"",
		)
	}

	var out string
	lockErr := s.locks.WithRepoLock(root, func() error {
		if normalized == MethodDirect {
			applied, err := s.runner.RunWrite(ctx, root, "apply", "--", path)
			if err != nil {
				return err
			}
			out = applied
			return nil
		}

		if s.mailboxApplyInProgress(ctx, root) {
			return gitexec.NewBindingError(
				gitexec.CodeOpInProgress,
				"A previous mailbox apply or rebase is still in progress. Continue or abort it first.",
				root,
			)
		}

		applied, err := s.runner.RunWriteEnv(ctx, root, gitexec.NoEditorEnv(), "am", "-3", "--", path)
		if err != nil {
			return err
		}
		out = applied
		return nil
	})
	if lockErr != nil {
		return "", lockErr
	}

	s.emit(eventStatusChanged, map[string]string{"repoPath": root})
	if normalized == MethodMailbox {
		s.emit(eventConflictsChanged, map[string]string{"repoPath": root})
	}
	return out, nil
}

// Export writes one commit as a mailbox-formatted patch file.
func (s *Service) Export(ctx context.Context, repoPath string, commit string, outPath string) error {
	root, err := s.runner.EnsureWorkingCopy(ctx, repoPath)
	if err != nil {
		return err
	}
	rev := strings.TrimSpace(commit)
	if rev == "" {
		return gitexec.NewBindingError(gitexec.CodeValidation, "A commit is required.", "")
	}
	target := strings.TrimSpace(outPath)
	if target == "" {
		return gitexec.NewBindingError(gitexec.CodeValidation, "An output path is required.", "")
	}

	return s.locks.WithRepoLock(root, func() error {
		raw, err := s.runner.RunRaw(ctx, root, "format-patch", "-1", "--stdout", rev)
		if err != nil {
			return err
		}
		if writeErr := os.WriteFile(target, []byte(raw), 0o644); writeErr != nil {
			return gitexec.NewBindingError(
				gitexec.CodeUnknown,
				"Failed to write patch file.",
				writeErr.Error(),
			)
		}
		return nil
	})
}

// mailboxApplyInProgress checks the rebase-apply metadata directory, which
// both `am` and legacy rebases leave behind while mid-flight.
func (s *Service) mailboxApplyInProgress(ctx context.Context, repoRoot string) bool {
	out, err := s.runner.Run(ctx, repoRoot, "rev-parse", "--git-path", "rebase-apply")
	if err != nil || strings.TrimSpace(out) == "" {
		return false
	}
	dir := strings.TrimSpace(out)
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(filepath.FromSlash(repoRoot), dir)
	}
	info, statErr := os.Stat(dir)
	return statErr == nil && info.IsDir()
}
