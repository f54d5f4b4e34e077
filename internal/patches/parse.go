package patches

import (
	"strconv"
	"strings"
)

// touchedPaths collects the distinct paths named by `diff --git` headers,
// preferring the post-image side. Paths with special characters arrive as
// C-style quoted tokens and are decoded before the prefix strip.
func touchedPaths(patchText string) []string {
	paths := make([]string, 0, 4)
	seen := make(map[string]struct{})

	for _, line := range strings.Split(normalizeNewlines(patchText), "\n") {
		rest, ok := strings.CutPrefix(strings.TrimRight(line, " \t"), "diff --git ")
		if !ok {
			continue
		}

		left, remainder, ok := consumePatchToken(rest)
		if !ok {
			continue
		}
		right, _, _ := consumePatchToken(remainder)

		pick := right
		if pick == "" {
			pick = left
		}
		path, ok := decodePatchPathToken(pick)
		if !ok {
			continue
		}
		if _, exists := seen[path]; exists {
			continue
		}
		seen[path] = struct{}{}
		paths = append(paths, path)
	}

	return paths
}

// diffPayload strips a mailbox preamble down to the raw diff the dry-run
// check understands. A payload with no diff marker passes through as-is.
func diffPayload(patchText string) string {
	normalized := normalizeNewlines(patchText)
	for idx := 0; idx < len(normalized); {
		end := strings.IndexByte(normalized[idx:], '\n')
		if end < 0 {
			end = len(normalized) - idx
		}
		if strings.HasPrefix(normalized[idx:idx+end], "diff --git ") {
			return normalized[idx:]
		}
		idx += end + 1
	}
	return normalized
}

// patchSubjects extracts mailbox Subject lines, capped at max, with the
// [PATCH] marker stripped.
func patchSubjects(patchText string, max int) []string {
	subjects := make([]string, 0, max)
	for _, line := range strings.Split(normalizeNewlines(patchText), "\n") {
		if len(subjects) >= max {
			break
		}
		rest, ok := strings.CutPrefix(line, "Subject:")
		if !ok {
			continue
		}
		subject := strings.TrimSpace(rest)
		if subject == "" {
			continue
		}
		if stripped := strings.TrimSpace(strings.TrimPrefix(subject, "[PATCH]")); stripped != "" {
			subject = stripped
		}
		subjects = append(subjects, subject)
	}
	return subjects
}

// conflictPathsFromDiagnostic pattern-matches the dry-run failure text for
// paths git names in its error lines. Tokens that do not look like paths
// (bare words, the literal "patch") are discarded.
func conflictPathsFromDiagnostic(message string) []string {
	paths := make([]string, 0, 2)
	seen := make(map[string]struct{})

	add := func(candidate string) {
		path := strings.TrimSpace(candidate)
		if !looksLikePath(path) {
			return
		}
		if _, exists := seen[path]; exists {
			return
		}
		seen[path] = struct{}{}
		paths = append(paths, path)
	}

	for _, line := range strings.Split(normalizeNewlines(message), "\n") {
		trimmed := strings.TrimSpace(line)
		if rest, ok := strings.CutPrefix(trimmed, "error: patch failed:"); ok {
			if path, ok := pathBeforeColon(rest); ok {
				add(path)
			}
			continue
		}
		if rest, ok := strings.CutPrefix(trimmed, "error:"); ok {
			if path, ok := pathBeforeColon(rest); ok {
				add(path)
			}
		}
	}

	return paths
}

// pathBeforeColon cuts "path:rest", keeping Windows drive prefixes intact.
func pathBeforeColon(s string) (string, bool) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return "", false
	}

	if len(trimmed) >= 3 && trimmed[1] == ':' && (trimmed[2] == '\\' || trimmed[2] == '/') {
		idx := strings.IndexByte(trimmed[2:], ':')
		if idx < 0 {
			return "", false
		}
		path := strings.TrimSpace(trimmed[:idx+2])
		return path, path != ""
	}

	idx := strings.IndexByte(trimmed, ':')
	if idx < 0 {
		return "", false
	}
	path := strings.TrimSpace(trimmed[:idx])
	return path, path != ""
}

func looksLikePath(candidate string) bool {
	if candidate == "" || strings.ContainsAny(candidate, " \t") {
		return false
	}
	if strings.EqualFold(candidate, "patch") {
		return false
	}
	return strings.ContainsAny(candidate, "./\\")
}

// consumePatchToken splits off one header token, honoring C-style quoting.
func consumePatchToken(raw string) (string, string, bool) {
	trimmed := strings.TrimLeft(raw, " \t")
	if trimmed == "" {
		return "", "", false
	}

	if trimmed[0] != '"' {
		if idx := strings.IndexAny(trimmed, " \t"); idx >= 0 {
			return trimmed[:idx], trimmed[idx:], true
		}
		return trimmed, "", true
	}

	escaped := false
	for i := 1; i < len(trimmed); i++ {
		switch {
		case escaped:
			escaped = false
		case trimmed[i] == '\\':
			escaped = true
		case trimmed[i] == '"':
			return trimmed[:i+1], trimmed[i+1:], true
		}
	}
	return "", "", false
}

func decodePatchPathToken(raw string) (string, bool) {
	token := strings.TrimSpace(raw)
	if token == "" || token == "/dev/null" {
		return "", false
	}

	if strings.HasPrefix(token, "\"") {
		unquoted, err := strconv.Unquote(token)
		if err != nil {
			return "", false
		}
		token = strings.TrimSpace(unquoted)
	}
	if token == "" || token == "/dev/null" {
		return "", false
	}

	if strings.HasPrefix(token, "a/") || strings.HasPrefix(token, "b/") {
		token = token[2:]
	}
	if token == "" {
		return "", false
	}
	return token, true
}

func normalizeNewlines(text string) string {
	return strings.ReplaceAll(text, "\r\n", "\n")
}
