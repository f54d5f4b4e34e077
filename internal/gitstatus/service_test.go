package gitstatus

import (
	"context"
	"strings"
	"testing"

	"github.com/Redysz/Graphoria/internal/gitexec"
)

// gitArgs strips the invocation prefix (-c flags and -C root) so tests
// dispatch on the logical git command.
func gitArgs(args []string) []string {
	for i := 0; i < len(args); i++ {
		if args[i] == "-C" && i+1 < len(args) {
			return args[i+2:]
		}
	}
	return args
}

func newFakeService(root string, respond func(args []string) (string, string, int)) *Service {
	runner := gitexec.NewRunnerWithExec(nil, func(ctx context.Context, stdin string, extraEnv []string, args ...string) (string, string, int, error) {
		logical := gitArgs(args)
		if len(logical) >= 2 && logical[0] == "rev-parse" && logical[1] == "--show-toplevel" {
			return root + "\n", "", 0, nil
		}
		stdout, stderr, exit := respond(logical)
		return stdout, stderr, exit, nil
	})
	return NewService(runner)
}

func TestStatusParsesBranchHeaderAndEntries(t *testing.T) {
	root := t.TempDir()
	raw := strings.Join([]string{
		"## main...origin/main [ahead 2, behind 1]",
		"M  staged.txt",
		" M worktree.txt",
		"R  renamed-new.txt", "renamed-old.txt",
		"UU conflicted.txt",
		"?? fresh.txt",
	}, "\x00") + "\x00"

	svc := newFakeService(root, func(args []string) (string, string, int) {
		if args[0] == "status" {
			return raw, "", 0
		}
		return "", "", 0
	})

	report, err := svc.Status(context.Background(), root)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	branch := report.Branch
	if branch.Name != "main" || branch.Upstream != "origin/main" || branch.Ahead != 2 || branch.Behind != 1 {
		t.Fatalf("unexpected branch info: %+v", branch)
	}

	if len(report.Entries) != 5 {
		t.Fatalf("expected 5 entries, got %d: %+v", len(report.Entries), report.Entries)
	}

	rename := report.Entries[2]
	if rename.Path != "renamed-new.txt" || rename.OrigPath != "renamed-old.txt" || rename.IndexState != "R" {
		t.Fatalf("rename record not consumed correctly: %+v", rename)
	}

	if !report.Entries[3].Conflicted {
		t.Fatalf("expected UU entry to be conflicted: %+v", report.Entries[3])
	}
	if !report.Entries[4].Untracked {
		t.Fatalf("expected ?? entry to be untracked: %+v", report.Entries[4])
	}
}

func TestStatusReconcilesUnstagedRename(t *testing.T) {
	root := t.TempDir()
	raw := strings.Join([]string{
		"## main",
		" D old/name.txt",
		"?? new/name.txt",
	}, "\x00") + "\x00"

	svc := newFakeService(root, func(args []string) (string, string, int) {
		switch args[0] {
		case "status":
			return raw, "", 0
		case "ls-tree":
			return "100644 blob aaaa1111\told/name.txt\n", "", 0
		case "hash-object":
			return "aaaa1111\n", "", 0
		}
		return "", "", 0
	})

	report, err := svc.Status(context.Background(), root)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(report.Entries) != 1 {
		t.Fatalf("expected delete+add collapsed to one entry, got %+v", report.Entries)
	}
	entry := report.Entries[0]
	if entry.WorktreeState != "R" || entry.Path != "new/name.txt" || entry.OrigPath != "old/name.txt" {
		t.Fatalf("unexpected rename entry: %+v", entry)
	}
}

func TestStatusReconcilesStagedDeletePlusUntrackedAdd(t *testing.T) {
	root := t.TempDir()
	raw := strings.Join([]string{
		"## main",
		"D  old/name.txt",
		"?? new/name.txt",
	}, "\x00") + "\x00"

	svc := newFakeService(root, func(args []string) (string, string, int) {
		switch args[0] {
		case "status":
			return raw, "", 0
		case "ls-tree":
			return "100644 blob aaaa1111\told/name.txt\n", "", 0
		case "hash-object":
			return "aaaa1111\n", "", 0
		}
		return "", "", 0
	})

	report, err := svc.Status(context.Background(), root)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(report.Entries) != 1 {
		t.Fatalf("staged delete + untracked add not reconciled: %+v", report.Entries)
	}
	entry := report.Entries[0]
	if entry.WorktreeState != "R" || entry.Path != "new/name.txt" || entry.OrigPath != "old/name.txt" {
		t.Fatalf("unexpected rename entry: %+v", entry)
	}
}

func TestStatusRequestsPerFileUntrackedEntries(t *testing.T) {
	root := t.TempDir()
	// A move into a brand-new directory only reconciles when status lists
	// the file itself rather than a collapsed newdir/ record.
	raw := strings.Join([]string{
		"## main",
		" D flat.txt",
		"?? newdir/flat.txt",
	}, "\x00") + "\x00"

	var statusArgs []string
	svc := newFakeService(root, func(args []string) (string, string, int) {
		switch args[0] {
		case "status":
			statusArgs = args
			return raw, "", 0
		case "ls-tree":
			return "100644 blob bbbb2222\tflat.txt\n", "", 0
		case "hash-object":
			return "bbbb2222\n", "", 0
		}
		return "", "", 0
	})

	report, err := svc.Status(context.Background(), root)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	flags := strings.Join(statusArgs, " ")
	if !strings.Contains(flags, "--untracked-files=all") || !strings.Contains(flags, "--find-renames") {
		t.Fatalf("status invocation missing rename-friendly flags: %v", statusArgs)
	}

	if len(report.Entries) != 1 {
		t.Fatalf("move into new directory not reconciled: %+v", report.Entries)
	}
	if report.Entries[0].Path != "newdir/flat.txt" || report.Entries[0].OrigPath != "flat.txt" {
		t.Fatalf("unexpected rename entry: %+v", report.Entries[0])
	}
}

func TestStatusRenamePassSkipsResolvedRenames(t *testing.T) {
	root := t.TempDir()
	raw := strings.Join([]string{
		"## main",
		"R  moved-new.txt", "moved-old.txt",
		"?? other.txt",
	}, "\x00") + "\x00"

	svc := newFakeService(root, func(args []string) (string, string, int) {
		switch args[0] {
		case "status":
			return raw, "", 0
		case "ls-tree", "hash-object":
			t.Fatalf("resolved rename must not trigger reconciliation: %v", args)
		}
		return "", "", 0
	})

	report, err := svc.Status(context.Background(), root)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(report.Entries) != 2 {
		t.Fatalf("expected entries untouched, got %+v", report.Entries)
	}
}

func TestStatusRenamePassDegradesOnSubcommandFailure(t *testing.T) {
	root := t.TempDir()
	raw := strings.Join([]string{
		" D old.txt",
		"?? new.txt",
	}, "\x00") + "\x00"

	svc := newFakeService(root, func(args []string) (string, string, int) {
		switch args[0] {
		case "status":
			return raw, "", 0
		case "ls-tree":
			return "", "fatal: not a tree object\n", 128
		}
		return "", "", 0
	})

	report, err := svc.Status(context.Background(), root)
	if err != nil {
		t.Fatalf("reconciliation failure must not fail status: %v", err)
	}
	if len(report.Entries) != 2 {
		t.Fatalf("expected unreconciled entries, got %+v", report.Entries)
	}
}

func TestStatusRenamePairsAmbiguousHashesInStableOrder(t *testing.T) {
	root := t.TempDir()
	raw := strings.Join([]string{
		" D a-old.txt",
		" D b-old.txt",
		"?? a-new.txt",
		"?? b-new.txt",
	}, "\x00") + "\x00"

	svc := newFakeService(root, func(args []string) (string, string, int) {
		switch args[0] {
		case "status":
			return raw, "", 0
		case "ls-tree":
			return "100644 blob samehash\ta-old.txt\n100644 blob samehash\tb-old.txt\n", "", 0
		case "hash-object":
			return "samehash\nsamehash\n", "", 0
		}
		return "", "", 0
	})

	report, err := svc.Status(context.Background(), root)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(report.Entries) != 2 {
		t.Fatalf("expected two rename entries, got %+v", report.Entries)
	}
	if report.Entries[0].OrigPath != "a-old.txt" || report.Entries[1].OrigPath != "b-old.txt" {
		t.Fatalf("expected stable pairing order, got %+v", report.Entries)
	}
}

func TestHasStagedChanges(t *testing.T) {
	root := t.TempDir()

	svc := newFakeService(root, func(args []string) (string, string, int) {
		return "", "", 1
	})
	has, err := svc.HasStagedChanges(context.Background(), root)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !has {
		t.Fatalf("exit 1 from diff --cached --quiet means staged changes")
	}

	svc = newFakeService(root, func(args []string) (string, string, int) {
		return "", "fatal: bad revision\n", 128
	})
	if _, err := svc.HasStagedChanges(context.Background(), root); err == nil {
		t.Fatalf("expected loud diff failure to surface")
	}
}

func TestParseBranchHeaderVariants(t *testing.T) {
	detached := parseBranchHeader("## HEAD (no branch)")
	if !detached.Detached {
		t.Fatalf("expected detached head: %+v", detached)
	}

	fresh := parseBranchHeader("## No commits yet on trunk")
	if fresh.Name != "trunk" || fresh.Upstream != "" {
		t.Fatalf("unexpected fresh-repo header: %+v", fresh)
	}

	local := parseBranchHeader("## feature/x")
	if local.Name != "feature/x" || local.Upstream != "" {
		t.Fatalf("unexpected local-only header: %+v", local)
	}
}
