package gitstatus

import (
	"context"
	"strings"
)

// reconcileUnstagedRenames pairs deletions with additions or untracked
// files whose content hashes match, collapsing each pair into a single
// rename entry. git only detects renames through the index, so a rename
// done on disk (mv without git mv) shows up as an unrelated delete + add
// until this pass runs. Either status column counts: a staged delete
// re-added elsewhere is the same move.
//
// The pass never fails the status call: if ls-tree or hash-object errors,
// the unreconciled entries are returned as-is.
func (s *Service) reconcileUnstagedRenames(ctx context.Context, repoRoot string, entries []StatusEntry) []StatusEntry {
	var deleteIdx, addIdx []int
	for i, entry := range entries {
		if entry.Conflicted {
			continue
		}
		xy := entry.IndexState + entry.WorktreeState
		// Entries git already resolved as renames or copies stay as-is.
		if strings.ContainsAny(xy, "RC") {
			continue
		}
		if strings.Contains(xy, "D") {
			deleteIdx = append(deleteIdx, i)
		}
		if entry.Untracked || strings.Contains(xy, "A") {
			addIdx = append(addIdx, i)
		}
	}
	if len(deleteIdx) == 0 || len(addIdx) == 0 {
		return entries
	}

	deletedHashes := s.blobHashesAtHead(ctx, repoRoot, entries, deleteIdx)
	if deletedHashes == nil {
		return entries
	}
	addedHashes := s.worktreeContentHashes(ctx, repoRoot, entries, addIdx)
	if addedHashes == nil {
		return entries
	}

	// Queue delete candidates per hash in entry order so ambiguous
	// matches pair deterministically and each hash pairs at most once.
	deleteQueue := make(map[string][]int)
	for _, i := range deleteIdx {
		hash, ok := deletedHashes[entries[i].Path]
		if !ok {
			continue
		}
		deleteQueue[hash] = append(deleteQueue[hash], i)
	}

	consumedDeletes := make(map[int]struct{})
	renameOrigin := make(map[int]string)
	for pos, i := range addIdx {
		hash := addedHashes[pos]
		if hash == "" {
			continue
		}
		queue := deleteQueue[hash]
		if len(queue) == 0 {
			continue
		}
		deleteEntry := queue[0]
		deleteQueue[hash] = queue[1:]
		consumedDeletes[deleteEntry] = struct{}{}
		renameOrigin[i] = entries[deleteEntry].Path
	}
	if len(renameOrigin) == 0 {
		return entries
	}

	reconciled := make([]StatusEntry, 0, len(entries))
	for i, entry := range entries {
		if _, consumed := consumedDeletes[i]; consumed {
			continue
		}
		if origin, renamed := renameOrigin[i]; renamed {
			reconciled = append(reconciled, StatusEntry{
				Path:          entry.Path,
				OrigPath:      origin,
				IndexState:    " ",
				WorktreeState: "R",
			})
			continue
		}
		reconciled = append(reconciled, entry)
	}
	return reconciled
}

// blobHashesAtHead returns path -> blob hash for the given delete entries,
// read from HEAD in a single ls-tree call. nil means the lookup failed.
func (s *Service) blobHashesAtHead(ctx context.Context, repoRoot string, entries []StatusEntry, deleteIdx []int) map[string]string {
	args := make([]string, 0, len(deleteIdx)+3)
	args = append(args, "ls-tree", "HEAD", "--")
	for _, i := range deleteIdx {
		args = append(args, entries[i].Path)
	}

	out, err := s.runner.Run(ctx, repoRoot, args...)
	if err != nil {
		return nil
	}

	hashes := make(map[string]string)
	for _, line := range strings.Split(out, "\n") {
		// <mode> blob <hash>\t<path>
		meta, path, ok := strings.Cut(line, "\t")
		if !ok {
			continue
		}
		fields := strings.Fields(meta)
		if len(fields) < 3 || fields[1] != "blob" {
			continue
		}
		hashes[path] = fields[2]
	}
	return hashes
}

// worktreeContentHashes hashes the given add entries' on-disk content,
// one output line per input path in order. nil means the hashing failed.
func (s *Service) worktreeContentHashes(ctx context.Context, repoRoot string, entries []StatusEntry, addIdx []int) []string {
	args := make([]string, 0, len(addIdx)+2)
	args = append(args, "hash-object", "--")
	for _, i := range addIdx {
		args = append(args, entries[i].Path)
	}

	out, err := s.runner.Run(ctx, repoRoot, args...)
	if err != nil {
		return nil
	}

	lines := strings.Split(out, "\n")
	hashes := make([]string, len(addIdx))
	for i := range addIdx {
		if i < len(lines) {
			hashes[i] = strings.TrimSpace(lines[i])
		}
	}
	return hashes
}
