package gitstatus

import (
	"context"
	"strconv"
	"strings"

	"github.com/Redysz/Graphoria/internal/gitexec"
)

var conflictStatuses = map[string]struct{}{
	"UU": {},
	"AA": {},
	"DD": {},
	"AU": {},
	"UA": {},
	"DU": {},
	"UD": {},
}

// Service reads and reconciles working-copy status.
type Service struct {
	runner *gitexec.Runner
}

func NewService(runner *gitexec.Runner) *Service {
	return &Service{runner: runner}
}

// Status returns the parsed porcelain status with unstaged renames
// reconciled. The reconciliation pass is best effort: any failure in its
// sub-commands degrades to the plain entry list, never to an error.
func (s *Service) Status(ctx context.Context, repoPath string) (*Report, error) {
	root, err := s.runner.EnsureWorkingCopy(ctx, repoPath)
	if err != nil {
		return nil, err
	}

	// --untracked-files=all keeps moves into fresh directories visible as
	// per-file entries instead of a collapsed dir/ record.
	raw, err := s.runner.RunRaw(ctx, root, "status", "--porcelain=v1", "-z", "--branch", "--find-renames", "--untracked-files=all")
	if err != nil {
		return nil, err
	}

	report := parsePorcelainStatusZ(raw)
	report.Entries = s.reconcileUnstagedRenames(ctx, root, report.Entries)
	return report, nil
}

// Summary aggregates entry counts without the reconciliation pass.
func (s *Service) Summary(ctx context.Context, repoPath string) (*Summary, error) {
	report, err := s.Status(ctx, repoPath)
	if err != nil {
		return nil, err
	}

	summary := &Summary{}
	for _, entry := range report.Entries {
		switch {
		case entry.Conflicted:
			summary.Conflicted++
		case entry.Untracked:
			summary.Untracked++
		default:
			if entry.IndexState != " " && entry.IndexState != "" {
				summary.Staged++
			}
			if entry.WorktreeState != " " && entry.WorktreeState != "" {
				summary.Unstaged++
			}
		}
	}
	return summary, nil
}

// HasStagedChanges reports whether the index differs from HEAD.
func (s *Service) HasStagedChanges(ctx context.Context, repoPath string) (bool, error) {
	ok, _, stderr, err := s.runner.RunStatus(ctx, repoPath, "diff", "--cached", "--quiet")
	if err != nil {
		return false, err
	}
	if ok {
		return false, nil
	}
	// diff --quiet exits 1 when differences exist; anything louder is a
	// real failure.
	if strings.TrimSpace(stderr) != "" {
		return false, gitexec.NewBindingError(
			gitexec.CodeCommandFailed,
			"Failed to inspect staged changes.",
			stderr,
		)
	}
	return true, nil
}

func parsePorcelainStatusZ(raw string) *Report {
	report := &Report{Entries: make([]StatusEntry, 0)}

	records := strings.Split(raw, "\x00")
	for i := 0; i < len(records); i++ {
		record := strings.TrimRight(records[i], "\r\n")
		if strings.TrimSpace(record) == "" {
			continue
		}

		if strings.HasPrefix(record, "## ") {
			report.Branch = parseBranchHeader(record)
			continue
		}

		if len(record) < 3 {
			continue
		}

		xy := record[:2]
		path := record[3:]
		if strings.TrimSpace(path) == "" {
			continue
		}

		origPath := ""
		if porcelainEntryHasSecondaryPath(xy) && i+1 < len(records) {
			origPath = records[i+1]
			i++
		}

		_, conflicted := conflictStatuses[xy]
		report.Entries = append(report.Entries, StatusEntry{
			Path:          path,
			OrigPath:      origPath,
			IndexState:    xy[:1],
			WorktreeState: xy[1:],
			Conflicted:    conflicted,
			Untracked:     xy == "??",
		})
	}

	return report
}

// Renamed and copied records carry the origin path as an extra
// NUL-separated token.
func porcelainEntryHasSecondaryPath(xy string) bool {
	return strings.ContainsAny(xy, "RC")
}

func parseBranchHeader(record string) BranchInfo {
	info := BranchInfo{}
	header := strings.TrimPrefix(record, "## ")

	if strings.HasPrefix(header, "HEAD (no branch)") {
		info.Detached = true
		info.Name = "HEAD"
		return info
	}
	if rest, ok := strings.CutPrefix(header, "No commits yet on "); ok {
		info.Name = strings.TrimSpace(rest)
		return info
	}

	if idx := strings.Index(header, " ["); idx >= 0 {
		counters := header[idx+2:]
		counters = strings.TrimSuffix(counters, "]")
		for _, part := range strings.Split(counters, ",") {
			part = strings.TrimSpace(part)
			if rest, ok := strings.CutPrefix(part, "ahead "); ok {
				info.Ahead, _ = strconv.Atoi(rest)
			}
			if rest, ok := strings.CutPrefix(part, "behind "); ok {
				info.Behind, _ = strconv.Atoi(rest)
			}
		}
		header = header[:idx]
	}

	if name, upstream, ok := strings.Cut(header, "..."); ok {
		info.Name = name
		info.Upstream = upstream
	} else {
		info.Name = header
	}
	return info
}
