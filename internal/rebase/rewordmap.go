package rebase

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
)

const rewordMapFileName = "graphoria-reword-map.json"

// rewordEntry records what to apply when the rebase stops on a commit:
// a nil field means "keep what the commit already has".
type rewordEntry struct {
	Message *string `json:"message"`
	Author  *string `json:"author"`
}

// rewordMap keys are the full commit hashes from the submitted plan.
// It lives as a JSON side file in the git dir for the duration of one
// interactive rebase, so a process restart mid-rebase can still resolve
// pending rewords.
type rewordMap map[string]rewordEntry

func (s *Service) rewordMapPath(ctx context.Context, repoRoot string) (string, error) {
	gitDir, err := s.runner.GitDir(ctx, repoRoot)
	if err != nil {
		return "", err
	}
	return filepath.Join(gitDir, rewordMapFileName), nil
}

func (s *Service) saveRewordMap(ctx context.Context, repoRoot string, m rewordMap) {
	path, err := s.rewordMapPath(ctx, repoRoot)
	if err != nil {
		return
	}
	payload, err := json.Marshal(m)
	if err != nil {
		return
	}
	_ = os.WriteFile(path, payload, 0o644)
}

func (s *Service) loadRewordMap(ctx context.Context, repoRoot string) rewordMap {
	path, err := s.rewordMapPath(ctx, repoRoot)
	if err != nil {
		return rewordMap{}
	}
	payload, err := os.ReadFile(path)
	if err != nil {
		return rewordMap{}
	}
	var m rewordMap
	if err := json.Unmarshal(payload, &m); err != nil || m == nil {
		return rewordMap{}
	}
	return m
}

func (s *Service) cleanupRewordMap(ctx context.Context, repoRoot string) {
	if path, err := s.rewordMapPath(ctx, repoRoot); err == nil {
		_ = os.Remove(path)
	}
}

// findRewordEntry prefix-matches a stopped-sha against the map keys in
// both directions, since either side may carry an abbreviated hash.
func (m rewordMap) findRewordEntry(stoppedSHA string) (rewordEntry, string, bool) {
	stopped := strings.TrimSpace(stoppedSHA)
	if stopped == "" {
		return rewordEntry{}, "", false
	}
	for key, entry := range m {
		if strings.HasPrefix(key, stopped) || strings.HasPrefix(stopped, key) {
			return entry, key, true
		}
	}
	return rewordEntry{}, "", false
}
