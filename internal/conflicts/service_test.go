package conflicts

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Redysz/Graphoria/internal/gitexec"
)

// fakeRepo is a fake-backed service over a real temp directory so the
// sentinel probes see an actual git dir layout.
type fakeRepo struct {
	root    string
	gitDir  string
	refs    map[string]bool
	calls   *[]string
	respond func(args []string) (string, string, int)
}

func newFakeRepo(t *testing.T) *fakeRepo {
	t.Helper()
	root := t.TempDir()
	gitDir := filepath.Join(root, ".git")
	if err := os.MkdirAll(gitDir, 0o755); err != nil {
		t.Fatalf("mkdir git dir: %v", err)
	}
	return &fakeRepo{
		root:   root,
		gitDir: gitDir,
		refs:   map[string]bool{},
		calls:  &[]string{},
	}
}

func (f *fakeRepo) service() *Service {
	runner := gitexec.NewRunnerWithExec(nil, func(ctx context.Context, stdin string, extraEnv []string, args ...string) (string, string, int, error) {
		logical := args
		for i := 0; i < len(args); i++ {
			if args[i] == "-C" && i+1 < len(args) {
				logical = args[i+2:]
				break
			}
		}
		*f.calls = append(*f.calls, strings.Join(logical, " "))

		if len(logical) >= 2 && logical[0] == "rev-parse" {
			switch logical[1] {
			case "--show-toplevel":
				return f.root + "\n", "", 0, nil
			case "--git-dir":
				return f.gitDir + "\n", "", 0, nil
			case "--verify":
				if f.refs[logical[len(logical)-1]] {
					return "deadbeef\n", "", 0, nil
				}
				return "", "", 1, nil
			}
		}
		if f.respond != nil {
			stdout, stderr, exit := f.respond(logical)
			return stdout, stderr, exit, nil
		}
		return "", "", 0, nil
	})
	return NewService(runner, gitexec.NewLocks(), nil)
}

func (f *fakeRepo) touchSentinel(t *testing.T, parts ...string) {
	t.Helper()
	target := filepath.Join(append([]string{f.gitDir}, parts...)...)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(target, []byte("1\n"), 0o644); err != nil {
		t.Fatalf("write sentinel: %v", err)
	}
}

func unmergedRecord(stage string, path string) string {
	return "100644 abcdef1234 " + stage + "\t" + path
}

func TestStateListsUnmergedFilesWithAnnotations(t *testing.T) {
	repo := newFakeRepo(t)
	repo.refs["MERGE_HEAD"] = true
	repo.respond = func(args []string) (string, string, int) {
		switch args[0] {
		case "diff":
			return "both.txt\x00they-deleted.txt\x00", "", 0
		case "ls-files":
			records := []string{
				unmergedRecord("1", "both.txt"),
				unmergedRecord("2", "both.txt"),
				unmergedRecord("3", "both.txt"),
				unmergedRecord("1", "they-deleted.txt"),
				unmergedRecord("2", "they-deleted.txt"),
				unmergedRecord("7", "they-deleted.txt"), // unknown stage, ignored
			}
			return strings.Join(records, "\x00") + "\x00", "", 0
		case "status":
			return "UU both.txt\x00UD they-deleted.txt\x00", "", 0
		}
		return "", "", 0
	}

	state, err := repo.service().State(context.Background(), repo.root)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if state.Kind != KindMerge || !state.InProgress {
		t.Fatalf("expected in-progress merge, got %+v", state)
	}
	if len(state.Files) != 2 {
		t.Fatalf("expected 2 unmerged files, got %+v", state.Files)
	}

	both := state.Files[0]
	if both.Status != "UU" || !both.HasBase || !both.HasOurs || !both.HasTheirs {
		t.Fatalf("unexpected annotations for both.txt: %+v", both)
	}
	deleted := state.Files[1]
	if deleted.Status != "UD" || !deleted.HasBase || !deleted.HasOurs || deleted.HasTheirs {
		t.Fatalf("unexpected annotations for they-deleted.txt: %+v", deleted)
	}
}

func TestStateAnnotationFailuresDegradeToDefaults(t *testing.T) {
	repo := newFakeRepo(t)
	repo.refs["MERGE_HEAD"] = true
	repo.respond = func(args []string) (string, string, int) {
		switch args[0] {
		case "diff":
			return "f.txt\x00", "", 0
		case "ls-files", "status":
			return "", "fatal: annotation query broke\n", 128
		}
		return "", "", 0
	}

	state, err := repo.service().State(context.Background(), repo.root)
	if err != nil {
		t.Fatalf("annotation failures must not fail the listing: %v", err)
	}
	if len(state.Files) != 1 {
		t.Fatalf("expected one file, got %+v", state.Files)
	}
	entry := state.Files[0]
	if entry.Status != "U" || entry.HasBase || entry.HasOurs || entry.HasTheirs {
		t.Fatalf("expected degraded defaults, got %+v", entry)
	}
}

func TestStateIdleSkipsFileListing(t *testing.T) {
	repo := newFakeRepo(t)

	state, err := repo.service().State(context.Background(), repo.root)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state.InProgress || state.Kind != KindIdle || len(state.Files) != 0 {
		t.Fatalf("expected idle empty state, got %+v", state)
	}
	for _, call := range *repo.calls {
		if strings.HasPrefix(call, "ls-files") {
			t.Fatalf("idle state must not list unmerged files: %v", *repo.calls)
		}
	}
}

func TestFileVersionsModifyDeleteOnOurSide(t *testing.T) {
	repo := newFakeRepo(t)
	repo.refs["MERGE_HEAD"] = true
	repo.respond = func(args []string) (string, string, int) {
		switch args[0] {
		case "show":
			if strings.HasPrefix(args[1], ":2:") {
				return "", "fatal: path 'f.txt' is in the index, but not at stage 2\n", 128
			}
			return "some content\n", "", 0
		case "cat-file":
			return "", "", 1 // path absent in HEAD
		case "diff":
			return "", "", 0
		}
		return "", "", 0
	}

	versions, err := repo.service().FileVersions(context.Background(), repo.root, "f.txt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if versions.Ours != "" || !versions.OursDeleted {
		t.Fatalf("expected empty ours marked deleted: %+v", versions)
	}
	if versions.Kind != ConflictModifyDelete {
		t.Fatalf("expected modify/delete kind, got %s", versions.Kind)
	}
	if versions.TheirsDeleted {
		t.Fatalf("stage 3 present, theirs must not be marked deleted")
	}
}

func TestFileVersionsTheirsDeleted(t *testing.T) {
	repo := newFakeRepo(t)
	repo.refs["MERGE_HEAD"] = true
	repo.respond = func(args []string) (string, string, int) {
		switch args[0] {
		case "show":
			if strings.HasPrefix(args[1], ":3:") {
				return "", "fatal: not at stage 3\n", 128
			}
			return "local edit\n", "", 0
		case "cat-file":
			if strings.HasPrefix(args[len(args)-1], "MERGE_HEAD:") {
				return "", "", 1
			}
			return "", "", 0
		case "diff":
			return "", "", 0
		}
		return "", "", 0
	}

	versions, err := repo.service().FileVersions(context.Background(), repo.root, "f.txt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !versions.TheirsDeleted || versions.OursDeleted {
		t.Fatalf("expected theirs-only deletion: %+v", versions)
	}
	if versions.Kind != ConflictModifyDelete {
		t.Fatalf("expected modify/delete kind, got %s", versions.Kind)
	}
}

func TestFileVersionsResolvesIncomingRenameTargetContent(t *testing.T) {
	repo := newFakeRepo(t)
	repo.refs["MERGE_HEAD"] = true
	repo.respond = func(args []string) (string, string, int) {
		switch args[0] {
		case "show":
			if args[1] == "MERGE_HEAD:new.txt" {
				return "renamed content\n", "", 0
			}
			if strings.HasPrefix(args[1], ":3:") {
				return "", "fatal: not at stage 3\n", 128
			}
			return "text\n", "", 0
		case "diff":
			return "M\tunrelated.txt\nR087\told.txt\tnew.txt\n", "", 0
		case "cat-file":
			return "", "", 0
		}
		return "", "", 0
	}

	versions, err := repo.service().FileVersions(context.Background(), repo.root, "old.txt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if versions.Kind != ConflictRename || versions.TheirsPath != "new.txt" {
		t.Fatalf("expected rename classification, got %+v", versions)
	}
	if versions.Theirs != "renamed content\n" {
		t.Fatalf("expected theirs content from rename target, got %q", versions.Theirs)
	}
}

func TestFileVersionsRejectsBinaryContent(t *testing.T) {
	repo := newFakeRepo(t)
	repo.refs["MERGE_HEAD"] = true
	repo.respond = func(args []string) (string, string, int) {
		if args[0] == "show" {
			return "PK\x00\x04binary", "", 0
		}
		return "", "", 0
	}

	_, err := repo.service().FileVersions(context.Background(), repo.root, "blob.bin")
	bindingErr := gitexec.AsBindingError(err)
	if bindingErr == nil || bindingErr.Code != gitexec.CodeBinaryUnsupported {
		t.Fatalf("expected %s, got %v", gitexec.CodeBinaryUnsupported, err)
	}
}

func TestTakeOursConfirmsDeletionWhenOursSideIsGone(t *testing.T) {
	repo := newFakeRepo(t)
	repo.refs["MERGE_HEAD"] = true
	repo.respond = func(args []string) (string, string, int) {
		if args[0] == "ls-files" {
			records := []string{
				unmergedRecord("1", "gone.txt"),
				unmergedRecord("3", "gone.txt"),
			}
			return strings.Join(records, "\x00") + "\x00", "", 0
		}
		return "", "", 0
	}

	if err := repo.service().TakeOurs(context.Background(), repo.root, "gone.txt"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	sawRm := false
	for _, call := range *repo.calls {
		if strings.HasPrefix(call, "rm -f -- gone.txt") {
			sawRm = true
		}
		if strings.HasPrefix(call, "checkout") {
			t.Fatalf("deleted side must not be checked out: %v", *repo.calls)
		}
	}
	if !sawRm {
		t.Fatalf("expected git rm for deleted ours side: %v", *repo.calls)
	}
}

func TestTakeTheirsPlacesRenamedContentAtNewPath(t *testing.T) {
	repo := newFakeRepo(t)
	repo.refs["MERGE_HEAD"] = true
	repo.respond = func(args []string) (string, string, int) {
		switch args[0] {
		case "ls-files":
			records := []string{
				unmergedRecord("1", "old.txt"),
				unmergedRecord("2", "old.txt"),
			}
			return strings.Join(records, "\x00") + "\x00", "", 0
		case "diff":
			return "R100\told.txt\tnew.txt\n", "", 0
		}
		return "", "", 0
	}

	if err := repo.service().TakeTheirs(context.Background(), repo.root, "old.txt"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	joined := strings.Join(*repo.calls, "\n")
	for _, want := range []string{
		"checkout MERGE_HEAD -- new.txt",
		"add -- new.txt",
		"rm -f --ignore-unmatch -- old.txt",
	} {
		if !strings.Contains(joined, want) {
			t.Fatalf("missing %q in calls:\n%s", want, joined)
		}
	}
}

func TestResolveRenameWithoutDetectionFails(t *testing.T) {
	repo := newFakeRepo(t)
	repo.refs["MERGE_HEAD"] = true
	repo.respond = func(args []string) (string, string, int) {
		if args[0] == "diff" {
			return "M\tsomething-else.txt\n", "", 0
		}
		return "", "", 0
	}

	err := repo.service().ResolveRename(context.Background(), repo.root, "f.txt", SideTheirs, SideTheirs)
	bindingErr := gitexec.AsBindingError(err)
	if bindingErr == nil || bindingErr.Code != gitexec.CodeRenameUndetected {
		t.Fatalf("expected %s, got %v", gitexec.CodeRenameUndetected, err)
	}
}

func TestResolveRenameKeepsChosenNameAndContent(t *testing.T) {
	repo := newFakeRepo(t)
	repo.refs["MERGE_HEAD"] = true
	repo.respond = func(args []string) (string, string, int) {
		switch args[0] {
		case "diff":
			return "R095\told.txt\tnew.txt\n", "", 0
		case "show":
			if args[1] == ":2:old.txt" {
				return "ours content\n", "", 0
			}
			return "theirs content\n", "", 0
		}
		return "", "", 0
	}

	err := repo.service().ResolveRename(context.Background(), repo.root, "old.txt", SideTheirs, SideOurs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	written, readErr := os.ReadFile(filepath.Join(repo.root, "new.txt"))
	if readErr != nil {
		t.Fatalf("expected final file at kept name: %v", readErr)
	}
	if string(written) != "ours content\n" {
		t.Fatalf("expected ours content at theirs name, got %q", written)
	}

	joined := strings.Join(*repo.calls, "\n")
	if !strings.Contains(joined, "add -- new.txt") || !strings.Contains(joined, "rm -f --ignore-unmatch -- old.txt") {
		t.Fatalf("expected add of kept path and removal of counterpart:\n%s", joined)
	}
}

func TestApplyAndStageWritesContentAndStages(t *testing.T) {
	repo := newFakeRepo(t)
	repo.refs["MERGE_HEAD"] = true

	err := repo.service().ApplyAndStage(context.Background(), repo.root, "dir/resolved.txt", "merged result\n")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	written, readErr := os.ReadFile(filepath.Join(repo.root, "dir", "resolved.txt"))
	if readErr != nil || string(written) != "merged result\n" {
		t.Fatalf("expected content on disk, got %q err=%v", written, readErr)
	}

	joined := strings.Join(*repo.calls, "\n")
	if !strings.Contains(joined, "add -- dir/resolved.txt") {
		t.Fatalf("expected staging call:\n%s", joined)
	}
}

func TestContinueWithoutOperationFails(t *testing.T) {
	repo := newFakeRepo(t)

	_, err := repo.service().Continue(context.Background(), repo.root)
	bindingErr := gitexec.AsBindingError(err)
	if bindingErr == nil || bindingErr.Code != gitexec.CodeNoOperation {
		t.Fatalf("expected %s, got %v", gitexec.CodeNoOperation, err)
	}
}

func TestContinueReprobesInsteadOfTrustingExitCode(t *testing.T) {
	repo := newFakeRepo(t)
	repo.touchSentinel(t, "rebase-merge", "msgnum")

	// rebase --continue exits 0 but the rebase-merge dir is still there:
	// the rebase stopped on the next step.
	after, err := repo.service().Continue(context.Background(), repo.root)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if after != KindRebase {
		t.Fatalf("expected re-probe to report rebase still in progress, got %s", after)
	}
}

func TestSkipRejectsMerge(t *testing.T) {
	repo := newFakeRepo(t)
	repo.refs["MERGE_HEAD"] = true

	_, err := repo.service().Skip(context.Background(), repo.root)
	bindingErr := gitexec.AsBindingError(err)
	if bindingErr == nil || bindingErr.Code != gitexec.CodeValidation {
		t.Fatalf("expected validation error for merge skip, got %v", err)
	}
}

func TestMailboxApplySentinelWinsInProbe(t *testing.T) {
	repo := newFakeRepo(t)
	repo.touchSentinel(t, "rebase-apply", "applying")

	state, err := repo.service().State(context.Background(), repo.root)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state.Kind != KindMailboxApply {
		t.Fatalf("expected mailbox apply, got %s", state.Kind)
	}
}
