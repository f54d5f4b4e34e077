package gitexec

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"
)

type fakeCall struct {
	stdin string
	env   []string
	args  []string
}

func newRecordingRunner(trust *TrustRegistry, respond func(call fakeCall) (string, string, int, error)) (*Runner, *[]fakeCall) {
	calls := &[]fakeCall{}
	runner := NewRunnerWithExec(trust, func(ctx context.Context, stdin string, extraEnv []string, args ...string) (string, string, int, error) {
		call := fakeCall{stdin: stdin, env: extraEnv, args: args}
		*calls = append(*calls, call)
		return respond(call)
	})
	runner.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	return runner, calls
}

func TestRunPinsRepositoryAndDisablesQuotepath(t *testing.T) {
	runner, calls := newRecordingRunner(nil, func(fakeCall) (string, string, int, error) {
		return "ok\n", "", 0, nil
	})

	out, err := runner.Run(context.Background(), "/repo/", "status")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "ok" {
		t.Fatalf("expected trimmed stdout, got %q", out)
	}

	got := strings.Join((*calls)[0].args, " ")
	want := "-c core.quotepath=false -C /repo status"
	if got != want {
		t.Fatalf("unexpected args: got=%q want=%q", got, want)
	}
}

func TestRunInjectsSafeDirectoryForTrustedRoot(t *testing.T) {
	trust := NewTrustRegistry()
	trust.TrustSession("/repo")

	runner, calls := newRecordingRunner(trust, func(fakeCall) (string, string, int, error) {
		return "", "", 0, nil
	})

	if _, err := runner.Run(context.Background(), "/repo", "status"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := strings.Join((*calls)[0].args, " ")
	if !strings.HasPrefix(got, "-c safe.directory=/repo ") {
		t.Fatalf("expected safe.directory injection, got %q", got)
	}
}

func TestRunMapsNonzeroExitToCommandFailed(t *testing.T) {
	runner, _ := newRecordingRunner(nil, func(fakeCall) (string, string, int, error) {
		return "", "fatal: bad revision\n", 128, nil
	})

	_, err := runner.Run(context.Background(), "/repo", "rev-parse", "nope")
	bindingErr := AsBindingError(err)
	if bindingErr == nil || bindingErr.Code != CodeCommandFailed {
		t.Fatalf("expected %s, got %v", CodeCommandFailed, err)
	}
	if bindingErr.Message != "fatal: bad revision" {
		t.Fatalf("expected stderr message, got %q", bindingErr.Message)
	}
	if !strings.Contains(bindingErr.Details, "exit_code=128") {
		t.Fatalf("expected exit code in details, got %q", bindingErr.Details)
	}
}

func TestRunFailureMessageFallsBackToStdoutThenStatus(t *testing.T) {
	runner, _ := newRecordingRunner(nil, func(fakeCall) (string, string, int, error) {
		return "stdout only\n", "", 1, nil
	})
	_, err := runner.Run(context.Background(), "/repo", "apply")
	if got := AsBindingError(err).Message; got != "stdout only" {
		t.Fatalf("expected stdout fallback, got %q", got)
	}

	runner, _ = newRecordingRunner(nil, func(fakeCall) (string, string, int, error) {
		return "", "", 3, nil
	})
	_, err = runner.Run(context.Background(), "/repo", "apply")
	if got := AsBindingError(err).Message; got != "git exited with status 3" {
		t.Fatalf("expected status fallback, got %q", got)
	}
}

func TestRunStatusReportsExitWithoutError(t *testing.T) {
	runner, _ := newRecordingRunner(nil, func(fakeCall) (string, string, int, error) {
		return "", "not found\n", 1, nil
	})

	ok, _, stderr, err := runner.RunStatus(context.Background(), "/repo", "rev-parse", "--verify", "-q", "MERGE_HEAD")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatalf("expected ok=false on exit 1")
	}
	if stderr != "not found" {
		t.Fatalf("unexpected stderr: %q", stderr)
	}
}

func TestRunWriteRetriesIndexLockContention(t *testing.T) {
	attempts := 0
	runner, _ := newRecordingRunner(nil, func(fakeCall) (string, string, int, error) {
		attempts++
		if attempts < 3 {
			return "", "fatal: Unable to create '/repo/.git/index.lock': File exists.\n", 128, nil
		}
		return "done", "", 0, nil
	})

	out, err := runner.RunWrite(context.Background(), "/repo", "add", "--", "file.txt")
	if err != nil {
		t.Fatalf("expected retry to succeed, got: %v", err)
	}
	if out != "done" || attempts != 3 {
		t.Fatalf("unexpected outcome: out=%q attempts=%d", out, attempts)
	}
}

func TestRunWriteGivesUpAfterBackoffLadder(t *testing.T) {
	attempts := 0
	runner, _ := newRecordingRunner(nil, func(fakeCall) (string, string, int, error) {
		attempts++
		return "", "fatal: Unable to create '/repo/.git/index.lock': File exists.\n", 128, nil
	})

	_, err := runner.RunWrite(context.Background(), "/repo", "add", "--", "file.txt")
	if err == nil {
		t.Fatalf("expected failure after exhausted retries")
	}
	if attempts != len(writeRetryBackoffs)+1 {
		t.Fatalf("unexpected attempt count: %d", attempts)
	}
}

func TestFallbackStrategyDowngradesUnsupportedFlag(t *testing.T) {
	var seen []string
	runner, _ := newRecordingRunner(nil, func(call fakeCall) (string, string, int, error) {
		seen = append(seen, strings.Join(call.args, " "))
		if strings.Contains(strings.Join(call.args, " "), "merge --continue") {
			return "", "error: unknown option `continue'\n", 129, nil
		}
		return "", "", 0, nil
	})

	strategy := FallbackStrategy{
		Primary:  []string{"merge", "--continue"},
		Fallback: []string{"commit", "--no-edit"},
	}
	if _, err := strategy.Run(context.Background(), runner, "/repo", NoEditorEnv()); err != nil {
		t.Fatalf("expected fallback to succeed, got: %v", err)
	}
	if len(seen) != 2 || !strings.HasSuffix(seen[1], "commit --no-edit") {
		t.Fatalf("expected downgrade to commit --no-edit, got %v", seen)
	}
}

func TestFallbackStrategyDoesNotRetryRealConflicts(t *testing.T) {
	calls := 0
	runner, _ := newRecordingRunner(nil, func(fakeCall) (string, string, int, error) {
		calls++
		return "", "error: Committing is not possible because you have unmerged files.\n", 128, nil
	})

	strategy := FallbackStrategy{
		Primary:  []string{"merge", "--continue"},
		Fallback: []string{"commit", "--no-edit"},
	}
	_, err := strategy.Run(context.Background(), runner, "/repo", nil)
	if err == nil {
		t.Fatalf("expected failure to propagate")
	}
	if calls != 1 {
		t.Fatalf("expected a single attempt, got %d", calls)
	}
}

func TestNormalizeRepoPath(t *testing.T) {
	cases := map[string]string{
		"  /work/repo/  ": "/work/repo",
		"/work/repo//":    "/work/repo",
		`C:\work\repo\`:   `C:/work/repo`,
		"/":               "/",
	}
	for input, want := range cases {
		if got := NormalizeRepoPath(input); got != want {
			t.Fatalf("NormalizeRepoPath(%q): got=%q want=%q", input, got, want)
		}
	}
}

func TestWithRepoLockSerializesSameRoot(t *testing.T) {
	locks := NewLocks()

	var mu sync.Mutex
	var active, maxActive int

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = locks.WithRepoLock("/repo/", func() error {
				mu.Lock()
				active++
				if active > maxActive {
					maxActive = active
				}
				mu.Unlock()

				time.Sleep(2 * time.Millisecond)

				mu.Lock()
				active--
				mu.Unlock()
				return nil
			})
		}()
	}
	wg.Wait()

	if maxActive != 1 {
		t.Fatalf("expected serialized execution, saw %d concurrent holders", maxActive)
	}
}

func TestEnsurePathWithinRepoRejectsTraversal(t *testing.T) {
	repoRoot := t.TempDir()

	for _, bad := range []string{"", "../outside", "/etc/passwd", "a/../../b", "a\x00b"} {
		if _, err := EnsurePathWithinRepo(repoRoot, bad); err == nil {
			t.Fatalf("expected rejection for %q", bad)
		}
	}

	got, err := EnsurePathWithinRepo(repoRoot, `src\nested\file.txt`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "src/nested/file.txt" {
		t.Fatalf("unexpected normalized path: %q", got)
	}
}
