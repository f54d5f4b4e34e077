package rebase

import (
	"context"
	"strings"
)

// logFieldSep and logRecordSep keep free-form commit bodies parseable.
const (
	logFieldSep  = "\x1f"
	logRecordSep = "\x1e"
)

var commitLogFormat = strings.Join([]string{
	"%H", "%h", "%s", "%b", "%an", "%ae", "%aI",
}, "%x1f") + "%x1e"

// EligibleCommits lists the commits a rebase plan may cover, newest
// first. With no base the range ends at the upstream; a branch without
// an upstream falls back to the full history.
func (s *Service) EligibleCommits(ctx context.Context, repoPath string, baseRef string) ([]CommitInfo, error) {
	root, err := s.runner.EnsureWorkingCopy(ctx, repoPath)
	if err != nil {
		return nil, err
	}

	base := strings.TrimSpace(baseRef)
	if base == "" {
		if upstream, err := s.runner.Run(ctx, root, "rev-parse", "--abbrev-ref", "--symbolic-full-name", "@{u}"); err == nil {
			base = strings.TrimSpace(upstream)
		}
	}

	args := []string{"log", "--no-show-signature", "--pretty=format:" + commitLogFormat}
	if base == "" {
		args = append(args, "HEAD")
	} else {
		args = append(args, base+"..HEAD")
	}

	out, err := s.runner.RunRaw(ctx, root, args...)
	if err != nil {
		return nil, err
	}

	pushed := s.pushedHashes(ctx, root)

	commits := make([]CommitInfo, 0)
	for _, record := range strings.Split(out, logRecordSep) {
		fields := strings.Split(strings.TrimLeft(record, "\r\n"), logFieldSep)
		if len(fields) < 7 || strings.TrimSpace(fields[0]) == "" {
			continue
		}
		commits = append(commits, CommitInfo{
			Hash:        fields[0],
			ShortHash:   fields[1],
			Subject:     fields[2],
			Body:        strings.TrimRight(fields[3], "\r\n"),
			AuthorName:  fields[4],
			AuthorEmail: fields[5],
			AuthorDate:  fields[6],
			IsPushed:    pushed[fields[0]],
		})
	}
	return commits, nil
}

// pushedHashes collects every commit reachable from a remote ref, so
// the UI can warn before rewriting published history. Failure degrades
// to "nothing pushed".
func (s *Service) pushedHashes(ctx context.Context, repoRoot string) map[string]bool {
	out, err := s.runner.RunRaw(ctx, repoRoot, "rev-list", "--remotes")
	if err != nil {
		return map[string]bool{}
	}
	pushed := make(map[string]bool)
	for _, line := range strings.Split(out, "\n") {
		hash := strings.TrimSpace(line)
		if hash != "" {
			pushed[hash] = true
		}
	}
	return pushed
}
