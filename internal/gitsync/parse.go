package gitsync

import (
	"sort"
	"strings"
)

// parsePullConflictLines extracts paths from the CONFLICT lines a failed
// pull prints, as a fallback when the index has no unmerged entries yet.
func parsePullConflictLines(text string) []string {
	paths := make([]string, 0, 2)
	seen := make(map[string]struct{})

	add := func(candidate string) {
		path := strings.TrimSpace(candidate)
		if path == "" {
			return
		}
		if _, exists := seen[path]; exists {
			return
		}
		seen[path] = struct{}{}
		paths = append(paths, path)
	}

	for _, line := range strings.Split(text, "\n") {
		if !strings.Contains(line, "CONFLICT") {
			continue
		}
		if idx := strings.LastIndex(line, " in "); idx >= 0 {
			add(line[idx+len(" in "):])
			continue
		}
		if idx := strings.LastIndexByte(line, ':'); idx >= 0 {
			add(line[idx+1:])
		}
	}

	return paths
}

// parseMergeTreeConflictPaths walks `merge-tree --messages` output,
// tracking whether the current informational block describes a conflict,
// and collects the paths those blocks name.
func parseMergeTreeConflictPaths(output string) []string {
	files := make([]string, 0, 2)
	inConflictBlock := false

	for _, line := range strings.Split(output, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}

		startsWithAlpha := isASCIIAlpha(trimmed[0])
		sideLine := strings.HasPrefix(trimmed, "base ") ||
			strings.HasPrefix(trimmed, "our ") ||
			strings.HasPrefix(trimmed, "their ")

		if startsWithAlpha && !sideLine {
			inConflictBlock = mergeTreeHeaderIsConflict(trimmed)
			if inConflictBlock && strings.Contains(strings.ToLower(trimmed), "conflict") {
				if path := conflictPathFromHeader(trimmed); path != "" {
					files = append(files, path)
				}
			}
			continue
		}
		if !inConflictBlock {
			continue
		}

		if rest, ok := strings.CutPrefix(trimmed, "diff --cc "); ok {
			if path := normalizeConflictPathCandidate(rest); path != "" {
				files = append(files, path)
			}
			continue
		}
		if rest, ok := strings.CutPrefix(trimmed, "diff --combined "); ok {
			if path := normalizeConflictPathCandidate(rest); path != "" {
				files = append(files, path)
			}
			continue
		}
		if sideLine {
			fields := strings.Fields(trimmed)
			if len(fields) >= 4 {
				if path := strings.TrimSpace(strings.Join(fields[3:], " ")); path != "" {
					files = append(files, path)
				}
			} else if len(fields) > 0 {
				if path := strings.TrimSpace(fields[len(fields)-1]); path != "" {
					files = append(files, path)
				}
			}
		}
	}

	sort.Strings(files)
	return dedupeSorted(files)
}

func mergeTreeHeaderIsConflict(header string) bool {
	lowered := strings.ToLower(strings.TrimSpace(header))
	for _, marker := range []string{
		"conflict",
		"changed in both",
		"added in both",
		"deleted in both",
		"removed in both",
		"rename",
		"modify/delete",
		"delete/modify",
		"directory/file",
		"file/directory",
	} {
		if strings.Contains(lowered, marker) {
			return true
		}
	}
	return false
}

// conflictPathFromHeader pulls the path out of an explicit conflict
// header like "CONFLICT (content): Merge conflict in src/app.go".
func conflictPathFromHeader(header string) string {
	h := strings.TrimSpace(header)
	if h == "" {
		return ""
	}

	afterColon := h
	if idx := strings.IndexByte(h, ':'); idx >= 0 {
		afterColon = h[idx+1:]
	}
	afterColon = strings.TrimSpace(afterColon)
	if afterColon == "" {
		return ""
	}

	lowered := strings.ToLower(afterColon)
	if idx := strings.Index(lowered, "merge conflict in "); idx >= 0 {
		if path := normalizeConflictPathCandidate(afterColon[idx+len("merge conflict in "):]); path != "" {
			return path
		}
	}

	first := ""
	if fields := strings.Fields(afterColon); len(fields) > 0 {
		first = normalizeConflictPathCandidate(fields[0])
	}
	if first == "" || strings.EqualFold(first, "merge") || strings.EqualFold(first, "conflict") {
		return ""
	}
	return first
}

func normalizeConflictPathCandidate(s string) string {
	t := strings.TrimSpace(s)
	t = strings.Trim(t, ".")
	t = strings.Trim(t, ":")
	return strings.TrimSpace(t)
}

func isASCIIAlpha(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func dedupeSorted(sorted []string) []string {
	out := sorted[:0]
	for i, v := range sorted {
		if i == 0 || sorted[i-1] != v {
			out = append(out, v)
		}
	}
	return out
}
