package gitexec

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

// ExecGitFunc is the low-level seam for spawning git. Tests inject fakes;
// production uses defaultExecGit. extraEnv entries are appended to the
// inherited environment.
type ExecGitFunc func(ctx context.Context, stdin string, extraEnv []string, args ...string) (stdout string, stderr string, exitCode int, err error)

type backoffSleeper func(ctx context.Context, d time.Duration) error

var writeRetryBackoffs = []time.Duration{
	80 * time.Millisecond,
	160 * time.Millisecond,
	320 * time.Millisecond,
}

// Runner builds and executes git invocations pinned to a repository root.
// Every command runs as:
//
//	git [-c safe.directory=<root>] -c core.quotepath=false -C <root> <args...>
//
// so output paths stay byte-exact and the working directory of the host
// process never matters.
type Runner struct {
	execGit ExecGitFunc
	trust   *TrustRegistry
	sleep   backoffSleeper
}

func NewRunner(trust *TrustRegistry) *Runner {
	return &Runner{
		execGit: defaultExecGit,
		trust:   trust,
		sleep:   sleepWithContext,
	}
}

// NewRunnerWithExec builds a runner around an injected exec function.
// Intended for tests in the service packages.
func NewRunnerWithExec(trust *TrustRegistry, execGit ExecGitFunc) *Runner {
	r := NewRunner(trust)
	if execGit != nil {
		r.execGit = execGit
	}
	return r
}

func defaultExecGit(ctx context.Context, stdin string, extraEnv []string, args ...string) (string, string, int, error) {
	gitPath, lookErr := exec.LookPath("git")
	if lookErr != nil {
		return "", "", -1, NewBindingError(
			CodeGitUnavailable,
			"Git executable not found on PATH.",
			lookErr.Error(),
		)
	}

	cmd := exec.CommandContext(ctx, gitPath, args...)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if stdin != "" {
		cmd.Stdin = strings.NewReader(stdin)
	}
	if len(extraEnv) > 0 {
		cmd.Env = append(os.Environ(), extraEnv...)
	}

	runErr := cmd.Run()
	exitCode := 0
	if runErr != nil {
		if exitErr, ok := runErr.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
			runErr = nil
		}
	}

	return stdout.String(), stderr.String(), exitCode, runErr
}

// NormalizeRepoPath canonicalizes a repository root for use as a lock and
// trust key: trimmed, forward slashes, no trailing slash (bare roots kept),
// case-folded only on Windows.
func NormalizeRepoPath(repoPath string) string {
	normalized := strings.ReplaceAll(strings.TrimSpace(repoPath), "\\", "/")
	for len(normalized) > 1 && strings.HasSuffix(normalized, "/") && !strings.HasSuffix(normalized, ":/") {
		normalized = normalized[:len(normalized)-1]
	}
	if runtime.GOOS == "windows" {
		normalized = strings.ToLower(normalized)
	}
	return normalized
}

func (r *Runner) argsFor(repoRoot string, args []string) []string {
	full := make([]string, 0, len(args)+6)
	if r.trust != nil && r.trust.IsTrusted(repoRoot) {
		full = append(full, "-c", "safe.directory="+repoRoot)
	}
	full = append(full, "-c", "core.quotepath=false", "-C", repoRoot)
	return append(full, args...)
}

func (r *Runner) run(ctx context.Context, repoRoot string, stdin string, extraEnv []string, trim bool, args []string) (string, error) {
	root := NormalizeRepoPath(repoRoot)
	if root == "" {
		return "", NewBindingError(
			CodeRepoNotResolved,
			"Repository path is required.",
			"Provide an absolute repository root.",
		)
	}

	stdout, stderr, exitCode, err := r.execGit(ctx, stdin, extraEnv, r.argsFor(root, args)...)
	if err != nil {
		if bindingErr := AsBindingError(err); bindingErr != nil {
			return "", bindingErr
		}
		return "", NewBindingError(
			CodeCommandFailed,
			"Failed to launch git.",
			formatCommandFailureDetails(stderr, exitCode, err),
		)
	}
	if exitCode != 0 {
		return "", commandFailure(args, stdout, stderr, exitCode)
	}

	if trim {
		return strings.TrimRight(stdout, "\r\n"), nil
	}
	return stdout, nil
}

// Run executes git in the repository and returns trimmed stdout.
func (r *Runner) Run(ctx context.Context, repoRoot string, args ...string) (string, error) {
	return r.run(ctx, repoRoot, "", nil, true, args)
}

// RunRaw is Run without output trimming, for byte-exact file content.
func (r *Runner) RunRaw(ctx context.Context, repoRoot string, args ...string) (string, error) {
	return r.run(ctx, repoRoot, "", nil, false, args)
}

// RunWithStdin executes git with the given stdin and returns trimmed stdout.
func (r *Runner) RunWithStdin(ctx context.Context, repoRoot string, stdin string, args ...string) (string, error) {
	return r.run(ctx, repoRoot, stdin, nil, true, args)
}

// RunEnv executes git with extra environment entries, used to suppress
// editors on continuation commands.
func (r *Runner) RunEnv(ctx context.Context, repoRoot string, extraEnv []string, args ...string) (string, error) {
	return r.run(ctx, repoRoot, "", extraEnv, true, args)
}

// RunStatus executes git and reports success instead of mapping a nonzero
// exit to an error. Callers use it where exit status is a signal, not a
// failure (diff --quiet, rev-parse --verify -q probes).
func (r *Runner) RunStatus(ctx context.Context, repoRoot string, args ...string) (ok bool, stdout string, stderr string, err error) {
	root := NormalizeRepoPath(repoRoot)
	if root == "" {
		return false, "", "", NewBindingError(
			CodeRepoNotResolved,
			"Repository path is required.",
			"Provide an absolute repository root.",
		)
	}

	out, errOut, exitCode, runErr := r.execGit(ctx, "", nil, r.argsFor(root, args)...)
	if runErr != nil {
		if bindingErr := AsBindingError(runErr); bindingErr != nil {
			return false, out, errOut, bindingErr
		}
		return false, out, errOut, NewBindingError(
			CodeCommandFailed,
			"Failed to launch git.",
			formatCommandFailureDetails(errOut, exitCode, runErr),
		)
	}
	return exitCode == 0, strings.TrimRight(out, "\r\n"), strings.TrimSpace(errOut), nil
}

// RunWrite executes a mutating git command, retrying transient index.lock
// contention with a short backoff ladder.
func (r *Runner) RunWrite(ctx context.Context, repoRoot string, args ...string) (string, error) {
	return r.RunWriteEnv(ctx, repoRoot, nil, args...)
}

func (r *Runner) RunWriteEnv(ctx context.Context, repoRoot string, extraEnv []string, args ...string) (string, error) {
	var out string
	var err error
	for attempt := 0; ; attempt++ {
		out, err = r.run(ctx, repoRoot, "", extraEnv, true, args)
		if err == nil {
			return out, nil
		}

		bindingErr := AsBindingError(err)
		if bindingErr == nil || !isTransientIndexLockError(bindingErr.Message+" "+bindingErr.Details) || attempt >= len(writeRetryBackoffs) {
			return out, err
		}
		if sleepErr := r.sleep(ctx, writeRetryBackoffs[attempt]); sleepErr != nil {
			return out, err
		}
	}
}

// RunWriteStdin is RunWrite with stdin, used for patch application.
func (r *Runner) RunWriteStdin(ctx context.Context, repoRoot string, stdin string, args ...string) (string, error) {
	var out string
	var err error
	for attempt := 0; ; attempt++ {
		out, err = r.run(ctx, repoRoot, stdin, nil, true, args)
		if err == nil {
			return out, nil
		}

		bindingErr := AsBindingError(err)
		if bindingErr == nil || !isTransientIndexLockError(bindingErr.Message+" "+bindingErr.Details) || attempt >= len(writeRetryBackoffs) {
			return out, err
		}
		if sleepErr := r.sleep(ctx, writeRetryBackoffs[attempt]); sleepErr != nil {
			return out, err
		}
	}
}

// RunGlobal executes git outside any repository (global config writes).
func (r *Runner) RunGlobal(ctx context.Context, args ...string) (string, error) {
	stdout, stderr, exitCode, err := r.execGit(ctx, "", nil, args...)
	if err != nil {
		if bindingErr := AsBindingError(err); bindingErr != nil {
			return "", bindingErr
		}
		return "", NewBindingError(
			CodeCommandFailed,
			"Failed to launch git.",
			formatCommandFailureDetails(stderr, exitCode, err),
		)
	}
	if exitCode != 0 {
		return "", commandFailure(args, stdout, stderr, exitCode)
	}
	return strings.TrimRight(stdout, "\r\n"), nil
}

// EnsureWorkingCopy validates that repoRoot is the toplevel of a git
// working copy and returns the normalized root. A root that is merely a
// subdirectory of a repository is rejected; dubious-ownership refusals are
// surfaced with a recognizable detail so the UI can offer trust.
func (r *Runner) EnsureWorkingCopy(ctx context.Context, repoRoot string) (string, error) {
	root := NormalizeRepoPath(repoRoot)
	if root == "" {
		return "", NewBindingError(
			CodeRepoNotResolved,
			"Repository path is required.",
			"Provide an absolute repository root.",
		)
	}

	info, statErr := os.Stat(filepath.FromSlash(root))
	if statErr != nil || !info.IsDir() {
		return "", NewBindingError(
			CodeRepoNotFound,
			"Repository directory not found.",
			root,
		)
	}

	ok, stdout, stderr, err := r.RunStatus(ctx, root, "rev-parse", "--show-toplevel")
	if err != nil {
		return "", err
	}
	if !ok {
		details := strings.TrimSpace(stderr)
		if isDubiousOwnership(details) {
			return "", NewBindingError(
				CodeRepoNotGit,
				"Repository is owned by another user.",
				"dubious_ownership: "+root,
			)
		}
		return "", NewBindingError(
			CodeRepoNotGit,
			"Path is not a git working copy.",
			formatCommandFailureDetails(details, 0, nil),
		)
	}

	toplevel := NormalizeRepoPath(stdout)
	if toplevel != root {
		return "", NewBindingError(
			CodeRepoNotGit,
			"Path is not the root of a git working copy.",
			fmt.Sprintf("toplevel=%s requested=%s", toplevel, root),
		)
	}
	return root, nil
}

// GitDir resolves the repository's git directory as an absolute path,
// following .git-file worktree indirection via rev-parse.
func (r *Runner) GitDir(ctx context.Context, repoRoot string) (string, error) {
	out, err := r.Run(ctx, repoRoot, "rev-parse", "--git-dir")
	if err != nil {
		return "", err
	}
	gitDir := strings.TrimSpace(out)
	if gitDir == "" {
		return "", NewBindingError(
			CodeRepoNotGit,
			"Could not resolve the git directory.",
			repoRoot,
		)
	}
	if !filepath.IsAbs(gitDir) {
		gitDir = filepath.Join(filepath.FromSlash(NormalizeRepoPath(repoRoot)), gitDir)
	}
	return filepath.Clean(gitDir), nil
}

func isDubiousOwnership(stderr string) bool {
	lowered := strings.ToLower(stderr)
	return strings.Contains(lowered, "dubious ownership") || strings.Contains(lowered, "safe.directory")
}

func commandFailure(args []string, stdout string, stderr string, exitCode int) *BindingError {
	message := strings.TrimSpace(stderr)
	if message == "" {
		message = strings.TrimSpace(stdout)
	}
	if message == "" {
		message = fmt.Sprintf("git exited with status %d", exitCode)
	}

	return NewBindingError(
		CodeCommandFailed,
		message,
		fmt.Sprintf("cmd=git %s | exit_code=%d", strings.Join(args, " "), exitCode),
	)
}

func formatCommandFailureDetails(stderr string, exitCode int, err error) string {
	parts := make([]string, 0, 3)

	trimmedStderr := strings.TrimSpace(stderr)
	if trimmedStderr != "" {
		parts = append(parts, trimmedStderr)
	}
	if exitCode != 0 {
		parts = append(parts, fmt.Sprintf("exit_code=%d", exitCode))
	}
	if err != nil && strings.TrimSpace(err.Error()) != "" {
		parts = append(parts, err.Error())
	}

	return strings.Join(parts, " | ")
}

func isTransientIndexLockError(diagnostic string) bool {
	combined := strings.ToLower(strings.TrimSpace(diagnostic))
	return strings.Contains(combined, "index.lock")
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// NoEditorEnv suppresses every editor git might spawn during continuation
// commands. Callers append GIT_SEQUENCE_EDITOR separately when a todo must
// be injected instead of suppressed.
func NoEditorEnv() []string {
	return []string{
		"GIT_EDITOR=true",
		"EDITOR=true",
		"VISUAL=true",
	}
}
