package conflicts

import (
	"context"
	"os"
	"path/filepath"
)

// DetectOperation maps sentinel presence to the owning operation. The
// probing order is load-bearing: a conflicted `git am` leaves
// rebase-apply/applying behind, which must win over the rebase sentinels
// it shares a directory with, and REBASE_HEAD must win over MERGE_HEAD
// because a rebase stopped on a merge commit can expose both.
func DetectOperation(p SentinelProbe) OperationKind {
	switch {
	case p.MailboxApplying:
		return KindMailboxApply
	case p.RebaseHead || p.RebaseMergeDir || p.RebaseApplyDir:
		return KindRebase
	case p.MergeHead:
		return KindMerge
	case p.CherryPickHead:
		return KindCherryPick
	default:
		return KindIdle
	}
}

// ProbeRepo fills a SentinelProbe from the repository's git directory and
// ref store.
func (s *Service) ProbeRepo(ctx context.Context, repoPath string) (SentinelProbe, error) {
	probe := SentinelProbe{}

	gitDir, err := s.runner.GitDir(ctx, repoPath)
	if err != nil {
		return probe, err
	}

	probe.MailboxApplying = fileExists(filepath.Join(gitDir, "rebase-apply", "applying"))
	probe.RebaseMergeDir = dirExists(filepath.Join(gitDir, "rebase-merge"))
	probe.RebaseApplyDir = dirExists(filepath.Join(gitDir, "rebase-apply"))

	probe.RebaseHead = s.refResolves(ctx, repoPath, "REBASE_HEAD")
	probe.MergeHead = s.refResolves(ctx, repoPath, "MERGE_HEAD")
	probe.CherryPickHead = s.refResolves(ctx, repoPath, "CHERRY_PICK_HEAD")

	return probe, nil
}

func (s *Service) refResolves(ctx context.Context, repoPath string, ref string) bool {
	ok, _, _, err := s.runner.RunStatus(ctx, repoPath, "rev-parse", "--verify", "-q", ref)
	return err == nil && ok
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
