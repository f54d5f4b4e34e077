package conflicts

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Redysz/Graphoria/internal/gitexec"
)

// EventEmitter delivers change notifications to the frontend.
type EventEmitter func(eventName string, data interface{})

const (
	eventConflictsChanged = "git:conflicts_changed"
)

// Service owns conflict inspection and resolution for merge, rebase,
// cherry-pick and mailbox-apply operations.
type Service struct {
	runner *gitexec.Runner
	locks  *gitexec.Locks
	emit   EventEmitter
}

func NewService(runner *gitexec.Runner, locks *gitexec.Locks, emit EventEmitter) *Service {
	if emit == nil {
		emit = func(string, interface{}) {}
	}
	return &Service{runner: runner, locks: locks, emit: emit}
}

func (s *Service) emitConflictsChanged(repoRoot string) {
	s.emit(eventConflictsChanged, map[string]string{"repoPath": repoRoot})
}

// State probes the owning operation and lists unmerged paths. The status
// code and stage-set annotations come from secondary queries and degrade
// to "U" and an empty set instead of failing the listing.
func (s *Service) State(ctx context.Context, repoPath string) (*State, error) {
	root, err := s.runner.EnsureWorkingCopy(ctx, repoPath)
	if err != nil {
		return nil, err
	}

	probe, err := s.ProbeRepo(ctx, root)
	if err != nil {
		return nil, err
	}

	state := &State{
		Kind:  DetectOperation(probe),
		Files: make([]FileEntry, 0),
	}
	if state.Kind == KindIdle {
		return state, nil
	}
	state.InProgress = true

	unmerged, err := s.runner.RunRaw(ctx, root, "diff", "--name-only", "--diff-filter=U", "-z")
	if err != nil {
		return nil, err
	}

	stages := map[string][4]bool{}
	if stageOut, stageErr := s.runner.RunRaw(ctx, root, "ls-files", "-u", "-z"); stageErr == nil {
		stages = parseUnmergedStagesZ(stageOut)
	}
	statusCodes := s.conflictStatusCodes(ctx, root)

	for _, path := range strings.Split(unmerged, "\x00") {
		if strings.TrimSpace(path) == "" {
			continue
		}
		entry := FileEntry{Path: path, Status: "U"}
		if code, ok := statusCodes[path]; ok {
			entry.Status = code
		}
		if set, ok := stages[path]; ok {
			entry.HasBase = set[1]
			entry.HasOurs = set[2]
			entry.HasTheirs = set[3]
		}
		state.Files = append(state.Files, entry)
	}
	return state, nil
}

// conflictStatusCodes maps unmerged paths to their porcelain XY code.
// Best effort; a failed status call yields no annotations.
func (s *Service) conflictStatusCodes(ctx context.Context, repoRoot string) map[string]string {
	codes := make(map[string]string)
	raw, err := s.runner.RunRaw(ctx, repoRoot, "status", "--porcelain=v1", "-z")
	if err != nil {
		return codes
	}

	records := strings.Split(raw, "\x00")
	for i := 0; i < len(records); i++ {
		record := records[i]
		if len(record) < 4 {
			continue
		}
		xy := record[:2]
		path := record[3:]
		if strings.ContainsAny(xy, "RC") && i+1 < len(records) {
			i++
		}
		if strings.ContainsAny(xy, "U") || xy == "AA" || xy == "DD" {
			codes[path] = xy
		}
	}
	return codes
}

// parseUnmergedStagesZ reads `ls-files -u -z` records of the form
// "<mode> <hash> <stage>\t<path>" into per-path stage sets. Stage numbers
// outside 1..3 are ignored rather than rejected.
func parseUnmergedStagesZ(raw string) map[string][4]bool {
	stages := make(map[string][4]bool)
	for _, record := range strings.Split(raw, "\x00") {
		meta, path, ok := strings.Cut(record, "\t")
		if !ok || strings.TrimSpace(path) == "" {
			continue
		}
		fields := strings.Fields(meta)
		if len(fields) < 3 {
			continue
		}
		set := stages[path]
		switch fields[2] {
		case "1":
			set[1] = true
		case "2":
			set[2] = true
		case "3":
			set[3] = true
		default:
			continue
		}
		stages[path] = set
	}
	return stages
}

// theirsRef resolves the ref naming the incoming side of the current
// operation: the first of MERGE_HEAD, CHERRY_PICK_HEAD, REBASE_HEAD that
// resolves.
func (s *Service) theirsRef(ctx context.Context, repoRoot string) string {
	for _, ref := range []string{"MERGE_HEAD", "CHERRY_PICK_HEAD", "REBASE_HEAD"} {
		if s.refResolves(ctx, repoRoot, ref) {
			return ref
		}
	}
	return ""
}

// FileVersions loads every side of a conflicted path and classifies the
// conflict. Each fetch treats "object not found at this stage" as empty
// content, never an error; content containing NUL bytes aborts with
// E_BINARY_UNSUPPORTED before classification.
func (s *Service) FileVersions(ctx context.Context, repoPath string, filePath string) (*FileVersions, error) {
	root, err := s.runner.EnsureWorkingCopy(ctx, repoPath)
	if err != nil {
		return nil, err
	}
	relPath, err := gitexec.EnsurePathWithinRepo(root, filePath)
	if err != nil {
		return nil, err
	}

	versions := &FileVersions{
		Path:     relPath,
		OursPath: relPath,
		Kind:     ConflictText,
	}

	var hasOurs, hasTheirs bool
	versions.Base, _ = s.stageContent(ctx, root, 1, relPath)
	versions.Ours, hasOurs = s.stageContent(ctx, root, 2, relPath)
	versions.Theirs, hasTheirs = s.stageContent(ctx, root, 3, relPath)

	if working, readErr := os.ReadFile(filepath.Join(filepath.FromSlash(root), filepath.FromSlash(relPath))); readErr == nil {
		versions.Working = string(working)
	}

	theirs := s.theirsRef(ctx, root)

	if !hasOurs && !s.pathExistsAt(ctx, root, "HEAD", relPath) {
		versions.OursDeleted = true
	}

	if !hasTheirs && theirs != "" {
		if rename := s.detectIncomingRename(ctx, root, relPath); rename.newPath != "" {
			versions.Kind = ConflictRename
			versions.TheirsPath = rename.newPath
			if content, ok := s.refContent(ctx, root, theirs, rename.newPath); ok {
				versions.Theirs = content
				hasTheirs = true
			}
		} else if !s.pathExistsAt(ctx, root, theirs, relPath) {
			versions.TheirsDeleted = true
			versions.Kind = ConflictModifyDelete
		}
	}

	if versions.Kind == ConflictText && (hasOurs != hasTheirs) {
		versions.Kind = ConflictModifyDelete
		if !hasOurs {
			versions.OursDeleted = true
		} else {
			versions.TheirsDeleted = true
		}
	}

	for _, content := range []string{versions.Base, versions.Ours, versions.Theirs, versions.Working} {
		if strings.ContainsRune(content, '\x00') {
			return nil, gitexec.NewBindingError(
				gitexec.CodeBinaryUnsupported,
				"Binary file preview is not supported.",
				relPath,
			)
		}
	}

	return versions, nil
}

// stageContent reads one index stage of a path. The boolean reports
// whether the stage existed; a missing stage degrades to empty content.
func (s *Service) stageContent(ctx context.Context, repoRoot string, stage int, relPath string) (string, bool) {
	out, err := s.runner.RunRaw(ctx, repoRoot, "show", fmt.Sprintf(":%d:%s", stage, relPath))
	if err != nil {
		return "", false
	}
	return out, true
}

func (s *Service) refContent(ctx context.Context, repoRoot string, ref string, relPath string) (string, bool) {
	out, err := s.runner.RunRaw(ctx, repoRoot, "show", ref+":"+relPath)
	if err != nil {
		return "", false
	}
	return out, true
}

func (s *Service) pathExistsAt(ctx context.Context, repoRoot string, ref string, relPath string) bool {
	ok, _, _, err := s.runner.RunStatus(ctx, repoRoot, "cat-file", "-e", ref+":"+relPath)
	return err == nil && ok
}

type incomingRename struct {
	oldPath string
	newPath string
}

// detectIncomingRename checks whether the incoming side renamed the path,
// using a 50% similarity threshold against the theirs ref. Best effort:
// any failure reports no rename.
func (s *Service) detectIncomingRename(ctx context.Context, repoRoot string, relPath string) incomingRename {
	ref := s.theirsRef(ctx, repoRoot)
	if ref == "" {
		return incomingRename{}
	}

	out, err := s.runner.Run(ctx, repoRoot, "diff", "--name-status", "-M50", "HEAD", ref)
	if err != nil {
		return incomingRename{}
	}

	for _, line := range strings.Split(out, "\n") {
		fields := strings.Split(line, "\t")
		if len(fields) != 3 || !strings.HasPrefix(fields[0], "R") {
			continue
		}
		if fields[1] == relPath {
			return incomingRename{oldPath: fields[1], newPath: fields[2]}
		}
	}
	return incomingRename{}
}
