package rebase

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/Redysz/Graphoria/internal/conflicts"
	"github.com/Redysz/Graphoria/internal/gitexec"
)

// EventEmitter delivers change notifications to the frontend.
type EventEmitter func(eventName string, data interface{})

const eventRebaseProgress = "git:rebase_progress"

// Service orchestrates interactive rebases: plan translation, sequence
// editor injection, reword auto-advance and progress reporting.
type Service struct {
	runner    *gitexec.Runner
	locks     *gitexec.Locks
	conflicts *conflicts.Service
	emit      EventEmitter
}

func NewService(runner *gitexec.Runner, locks *gitexec.Locks, conflictSvc *conflicts.Service, emit EventEmitter) *Service {
	if emit == nil {
		emit = func(string, interface{}) {}
	}
	return &Service{runner: runner, locks: locks, conflicts: conflictSvc, emit: emit}
}

func (s *Service) emitProgress(repoRoot string, status string) {
	s.emit(eventRebaseProgress, map[string]string{"repoPath": repoRoot, "status": status})
}

// gitPath resolves a path inside the git dir, following worktree
// indirection.
func (s *Service) gitPath(ctx context.Context, repoRoot string, name string) (string, bool) {
	out, err := s.runner.Run(ctx, repoRoot, "rev-parse", "--git-path", name)
	if err != nil || strings.TrimSpace(out) == "" {
		return "", false
	}
	resolved := strings.TrimSpace(out)
	if !filepath.IsAbs(resolved) {
		resolved = filepath.Join(filepath.FromSlash(repoRoot), resolved)
	}
	return filepath.Clean(resolved), true
}

func (s *Service) rebaseMergeDirExists(ctx context.Context, repoRoot string) bool {
	dir, ok := s.gitPath(ctx, repoRoot, "rebase-merge")
	if !ok {
		return false
	}
	info, err := os.Stat(dir)
	return err == nil && info.IsDir()
}

func (s *Service) isRebaseInProgress(ctx context.Context, repoRoot string) bool {
	if ok, _, _, err := s.runner.RunStatus(ctx, repoRoot, "rev-parse", "--verify", "-q", "REBASE_HEAD"); err == nil && ok {
		return true
	}
	if s.rebaseMergeDirExists(ctx, repoRoot) {
		return true
	}
	dir, ok := s.gitPath(ctx, repoRoot, "rebase-apply")
	if !ok {
		return false
	}
	info, err := os.Stat(dir)
	return err == nil && info.IsDir()
}

// readRebaseFile reads one progress file from rebase-merge, falling back
// to the legacy rebase-apply location.
func (s *Service) readRebaseFile(ctx context.Context, repoRoot string, name string) string {
	for _, dir := range []string{"rebase-merge", "rebase-apply"} {
		base, ok := s.gitPath(ctx, repoRoot, dir)
		if !ok {
			continue
		}
		payload, err := os.ReadFile(filepath.Join(base, name))
		if err == nil {
			return strings.TrimSpace(string(payload))
		}
	}
	return ""
}

func (s *Service) readRebaseStep(ctx context.Context, repoRoot string, name string) int {
	value, err := strconv.Atoi(s.readRebaseFile(ctx, repoRoot, name))
	if err != nil {
		return 0
	}
	return value
}

// stoppedHash prefers the rebase-merge sentinel and falls back to
// REBASE_HEAD.
func (s *Service) stoppedHash(ctx context.Context, repoRoot string) string {
	if sha := s.readRebaseFile(ctx, repoRoot, "stopped-sha"); sha != "" {
		return sha
	}
	out, err := s.runner.Run(ctx, repoRoot, "rev-parse", "--verify", "-q", "REBASE_HEAD")
	if err != nil {
		return ""
	}
	return strings.TrimSpace(out)
}

// unmergedFiles lists conflicted paths, degrading to empty on failure.
func (s *Service) unmergedFiles(ctx context.Context, repoRoot string) []string {
	out, err := s.runner.RunRaw(ctx, repoRoot, "diff", "--name-only", "--diff-filter=U", "-z")
	if err != nil {
		return []string{}
	}
	files := make([]string, 0)
	for _, path := range strings.Split(out, "\x00") {
		if strings.TrimSpace(path) != "" {
			files = append(files, path)
		}
	}
	return files
}

// detectState derives where the rebase currently stands from sentinels,
// never from exit codes.
func (s *Service) detectState(ctx context.Context, repoRoot string) *Result {
	if !s.isRebaseInProgress(ctx, repoRoot) {
		return &Result{
			Status:        StatusCompleted,
			Message:       "Rebase completed successfully.",
			ConflictFiles: []string{},
		}
	}

	result := &Result{
		CurrentStep:    s.readRebaseStep(ctx, repoRoot, "msgnum"),
		TotalSteps:     s.readRebaseStep(ctx, repoRoot, "end"),
		StoppedHash:    s.stoppedHash(ctx, repoRoot),
		StoppedMessage: s.readRebaseFile(ctx, repoRoot, "message"),
		ConflictFiles:  s.unmergedFiles(ctx, repoRoot),
	}

	if len(result.ConflictFiles) > 0 {
		result.Status = StatusConflicts
		result.Message = "Rebase stopped due to conflicts."
		return result
	}

	result.Status = StatusStoppedAtEdit
	result.Message = "Rebase stopped for editing."
	return result
}

// Status reports the poll-friendly view of the current rebase.
func (s *Service) Status(ctx context.Context, repoPath string) (*StatusInfo, error) {
	root, err := s.runner.EnsureWorkingCopy(ctx, repoPath)
	if err != nil {
		return nil, err
	}

	if !s.isRebaseInProgress(ctx, root) {
		return &StatusInfo{ConflictFiles: []string{}}, nil
	}

	conflictFiles := s.unmergedFiles(ctx, root)
	return &StatusInfo{
		InProgress:     true,
		CurrentStep:    s.readRebaseStep(ctx, root, "msgnum"),
		TotalSteps:     s.readRebaseStep(ctx, root, "end"),
		StoppedHash:    s.stoppedHash(ctx, root),
		StoppedMessage: s.readRebaseFile(ctx, root, "message"),
		ConflictFiles:  conflictFiles,
		AwaitingEdit:   len(conflictFiles) == 0,
	}, nil
}
