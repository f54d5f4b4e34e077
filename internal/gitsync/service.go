package gitsync

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/Redysz/Graphoria/internal/conflicts"
	"github.com/Redysz/Graphoria/internal/gitexec"
)

// EventEmitter delivers change notifications to the frontend.
type EventEmitter func(eventName string, data interface{})

const eventStatusChanged = "git:status_changed"

// Service covers remote synchronization: fetch, pull in both flavors,
// divergence counting and pull prediction.
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

func defaultRemote(remote string) string {
	if trimmed := strings.TrimSpace(remote); trimmed != "" {
		return trimmed
	}
	return "origin"
}

// headBranch returns the current branch short name, or false when HEAD
// is detached.
func (s *Service) headBranch(ctx context.Context, repoRoot string) (string, bool) {
	ok, out, _, err := s.runner.RunStatus(ctx, repoRoot, "symbolic-ref", "--quiet", "--short", "HEAD")
	if err != nil || !ok || strings.TrimSpace(out) == "" {
		return "", false
	}
	return strings.TrimSpace(out), true
}

// inferUpstream resolves the configured upstream, falling back to the
// same-named branch on the remote when no upstream is set.
func (s *Service) inferUpstream(ctx context.Context, repoRoot string, remote string, headName string) string {
	if ok, out, _, err := s.runner.RunStatus(ctx, repoRoot, "rev-parse", "--abbrev-ref", "--symbolic-full-name", "@{u}"); err == nil && ok && strings.TrimSpace(out) != "" {
		return strings.TrimSpace(out)
	}
	if headName == "" {
		return ""
	}
	candidate := remote + "/" + headName
	if ok, _, _, err := s.runner.RunStatus(ctx, repoRoot, "show-ref", "--verify", "--quiet", "refs/remotes/"+candidate); err == nil && ok {
		return candidate
	}
	return ""
}

// AheadBehind counts the commits HEAD and its upstream have over each
// other. No upstream is not an error.
func (s *Service) AheadBehind(ctx context.Context, repoPath string, remote string) (*AheadBehind, error) {
	root, err := s.runner.EnsureWorkingCopy(ctx, repoPath)
	if err != nil {
		return nil, err
	}

	headName, _ := s.headBranch(ctx, root)
	upstream := s.inferUpstream(ctx, root, defaultRemote(remote), headName)
	if upstream == "" {
		return &AheadBehind{}, nil
	}

	out, err := s.runner.Run(ctx, root, "rev-list", "--left-right", "--count", upstream+"...HEAD")
	if err != nil {
		return nil, err
	}
	behind, ahead := parseLeftRightCount(out)
	return &AheadBehind{Ahead: ahead, Behind: behind, Upstream: upstream, HasUpstream: true}, nil
}

// parseLeftRightCount reads "behind<TAB>ahead" for an upstream...HEAD range.
func parseLeftRightCount(out string) (behind int, ahead int) {
	fields := strings.Fields(strings.TrimSpace(out))
	if len(fields) > 0 {
		behind, _ = strconv.Atoi(fields[0])
	}
	if len(fields) > 1 {
		ahead, _ = strconv.Atoi(fields[1])
	}
	return behind, ahead
}

// Fetch updates remote tracking refs. Callers dispatch it off the UI
// thread; it still takes the repo lock so it serializes with mutations.
func (s *Service) Fetch(ctx context.Context, repoPath string, remote string) (string, error) {
	root, err := s.runner.EnsureWorkingCopy(ctx, repoPath)
	if err != nil {
		return "", err
	}

	var out string
	lockErr := s.locks.WithRepoLock(root, func() error {
		fetched, err := s.runner.Run(ctx, root, "fetch", defaultRemote(remote))
		if err != nil {
			return err
		}
		out = fetched
		return nil
	})
	if lockErr != nil {
		return "", lockErr
	}
	s.emit(eventStatusChanged, map[string]string{"repoPath": root})
	return out, nil
}

// Pull merges the remote branch into HEAD.
func (s *Service) Pull(ctx context.Context, repoPath string, remote string) (*PullResult, error) {
	return s.pull(ctx, repoPath, remote, false)
}

// PullRebase replays local commits on top of the remote branch.
func (s *Service) PullRebase(ctx context.Context, repoPath string, remote string) (*PullResult, error) {
	return s.pull(ctx, repoPath, remote, true)
}

func (s *Service) pull(ctx context.Context, repoPath string, remote string, rebase bool) (*PullResult, error) {
	root, err := s.runner.EnsureWorkingCopy(ctx, repoPath)
	if err != nil {
		return nil, err
	}

	headName, onBranch := s.headBranch(ctx, root)
	if !onBranch {
		return nil, gitexec.NewBindingError(
			gitexec.CodeValidation,
			"Cannot pull from a detached HEAD.",
			root,
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

	args := []string{"pull"}
	if rebase {
		args = append(args, "--rebase")
	}
	args = append(args, defaultRemote(remote), headName)

	var result *PullResult
	lockErr := s.locks.WithRepoLock(root, func() error {
		ok, stdout, stderr, runErr := s.runner.RunStatus(ctx, root, args...)
		if runErr != nil {
			return runErr
		}

		operation := "merge"
		if rebase {
			operation = "rebase"
		}
		if ok {
			message := stdout
			if strings.TrimSpace(message) == "" {
				message = stderr
			}
			result = &PullResult{
				Status:        PullStatusOK,
				Operation:     operation,
				Message:       strings.TrimSpace(message),
				ConflictFiles: []string{},
			}
			return nil
		}

		message := stderr
		if strings.TrimSpace(message) == "" {
			message = stdout
		}
		message = strings.TrimSpace(message)

		// The failed pull may have left the repo mid-operation; only the
		// sentinels decide, never the exit code.
		stoppedIn := s.stoppedOperation(ctx, root, operation)
		conflictFiles := s.unmergedFiles(ctx, root)
		if len(conflictFiles) == 0 {
			conflictFiles = parsePullConflictLines(message)
		}

		if stoppedIn != "" || len(conflictFiles) > 0 {
			if stoppedIn == "" {
				stoppedIn = operation
			}
			result = &PullResult{
				Status:        PullStatusConflicts,
				Operation:     stoppedIn,
				Message:       message,
				ConflictFiles: conflictFiles,
			}
			return nil
		}

		return gitexec.NewBindingError(gitexec.CodeCommandFailed, message, "cmd=git "+strings.Join(args, " "))
	})
	if lockErr != nil {
		return nil, lockErr
	}
	s.emit(eventStatusChanged, map[string]string{"repoPath": root})
	return result, nil
}

// stoppedOperation reports which composite operation the repo is parked
// in after a failed pull, preferring the flavor the pull used.
func (s *Service) stoppedOperation(ctx context.Context, repoRoot string, preferred string) string {
	probe, err := s.conflicts.ProbeRepo(ctx, repoRoot)
	if err != nil {
		return ""
	}
	switch conflicts.DetectOperation(probe) {
	case conflicts.KindMerge:
		return "merge"
	case conflicts.KindRebase:
		return "rebase"
	case conflicts.KindIdle:
		return ""
	default:
		return preferred
	}
}

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

// PredictPull fetches and then previews what a pull would do, including
// the conflict paths a merge would produce, without touching the working
// tree.
func (s *Service) PredictPull(ctx context.Context, repoPath string, remote string, rebase bool) (*PullPrediction, error) {
	root, err := s.runner.EnsureWorkingCopy(ctx, repoPath)
	if err != nil {
		return nil, err
	}

	remoteName := defaultRemote(remote)
	var prediction *PullPrediction
	lockErr := s.locks.WithRepoLock(root, func() error {
		if _, err := s.runner.Run(ctx, root, "fetch", remoteName); err != nil {
			return err
		}

		headName, onBranch := s.headBranch(ctx, root)
		if !onBranch {
			return gitexec.NewBindingError(
				gitexec.CodeValidation,
				"Cannot predict a pull from a detached HEAD.",
				root,
			)
		}

		upstream := s.inferUpstream(ctx, root, remoteName, headName)
		if upstream == "" {
			prediction = &PullPrediction{Action: "no-upstream", ConflictFiles: []string{}}
			return nil
		}

		out, err := s.runner.Run(ctx, root, "rev-list", "--left-right", "--count", upstream+"...HEAD")
		if err != nil {
			return err
		}
		behind, ahead := parseLeftRightCount(out)

		action := "noop"
		switch {
		case behind == 0:
		case ahead == 0:
			action = "fast-forward"
		case rebase:
			action = "rebase"
		default:
			action = "merge-commit"
		}

		conflictFiles := []string{}
		if behind > 0 {
			conflictFiles = s.predictMergeConflicts(ctx, root, upstream)
		}

		prediction = &PullPrediction{
			Upstream:      upstream,
			Ahead:         ahead,
			Behind:        behind,
			Action:        action,
			ConflictFiles: conflictFiles,
		}
		return nil
	})
	if lockErr != nil {
		return nil, lockErr
	}
	return prediction, nil
}

// predictMergeConflicts dry-runs the merge in memory via merge-tree.
// Exit 1 means "conflicts found"; anything else (including a git too old
// for --write-tree) degrades to an empty prediction.
func (s *Service) predictMergeConflicts(ctx context.Context, repoRoot string, upstream string) []string {
	base, err := s.runner.Run(ctx, repoRoot, "merge-base", "HEAD", upstream)
	if err != nil || strings.TrimSpace(base) == "" {
		return []string{}
	}

	ok, stdout, stderr, err := s.runner.RunStatus(ctx, repoRoot,
		"merge-tree", "--write-tree", "--messages", "--merge-base", strings.TrimSpace(base), "HEAD", upstream)
	if err != nil {
		return []string{}
	}
	if ok {
		return []string{}
	}

	combined := stdout
	if strings.TrimSpace(stderr) != "" {
		combined += "\n" + stderr
	}
	return parseMergeTreeConflictPaths(combined)
}

// ConflictPreview renders a diff3-style merge of one path's base, local
// and upstream versions, without touching the working tree.
func (s *Service) ConflictPreview(ctx context.Context, repoPath string, upstream string, path string) (string, error) {
	root, err := s.runner.EnsureWorkingCopy(ctx, repoPath)
	if err != nil {
		return "", err
	}
	relPath, err := gitexec.EnsurePathWithinRepo(root, path)
	if err != nil {
		return "", err
	}
	ref := strings.TrimSpace(upstream)
	if ref == "" {
		return "", gitexec.NewBindingError(gitexec.CodeValidation, "An upstream reference is required.", "")
	}

	base, err := s.runner.Run(ctx, root, "merge-base", "HEAD", ref)
	if err != nil {
		return "", err
	}
	base = strings.TrimSpace(base)
	if base == "" {
		return "", gitexec.NewBindingError(gitexec.CodeCommandFailed, "Failed to determine the merge base.", ref)
	}

	baseContent := s.showOrEmpty(ctx, root, base, relPath)
	ourContent := s.showOrEmpty(ctx, root, "HEAD", relPath)
	theirContent := s.showOrEmpty(ctx, root, ref, relPath)
	for _, content := range []string{baseContent, ourContent, theirContent} {
		if strings.Contains(content, "\x00") {
			return "", gitexec.NewBindingError(
				gitexec.CodeBinaryUnsupported,
				"Binary file preview is not supported.",
				relPath,
			)
		}
	}

	dir, err := os.MkdirTemp("", "graphoria-preview-")
	if err != nil {
		return "", gitexec.NewBindingError(gitexec.CodeUnknown, "Failed to prepare preview.", err.Error())
	}
	defer os.RemoveAll(dir)

	names := map[string]string{"ours.txt": ourContent, "base.txt": baseContent, "theirs.txt": theirContent}
	for name, content := range names {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			return "", gitexec.NewBindingError(gitexec.CodeUnknown, "Failed to prepare preview.", err.Error())
		}
	}

	// merge-file exits 1 when the merge has conflicts, which is exactly
	// the interesting case.
	ok, stdout, stderr, err := s.runner.RunStatus(ctx, root,
		"merge-file", "-p", "--diff3",
		"-L", "ours", "-L", "base", "-L", "theirs",
		filepath.Join(dir, "ours.txt"), filepath.Join(dir, "base.txt"), filepath.Join(dir, "theirs.txt"))
	if err != nil {
		return "", err
	}
	if !ok && strings.TrimSpace(stdout) == "" && strings.TrimSpace(stderr) != "" {
		return "", gitexec.NewBindingError(gitexec.CodeCommandFailed, stderr, "cmd=git merge-file")
	}
	return stdout, nil
}

// showOrEmpty reads a blob at a revision, treating "path missing there"
// as empty content.
func (s *Service) showOrEmpty(ctx context.Context, repoRoot string, rev string, relPath string) string {
	out, err := s.runner.RunRaw(ctx, repoRoot, "show", rev+":"+relPath)
	if err != nil {
		return ""
	}
	return out
}
