package rebase

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/Redysz/Graphoria/internal/gitexec"
)

// buildTodo translates a caller plan into native todo lines plus the
// reword map the auto-advance loop consumes.
//
// Reword becomes `edit` so the new message can be applied by amending,
// never through an editor. Squash collapses to the native fixup
// instruction; combining messages is the caller's job before submitting
// the plan, which keeps the native squash editor out of the picture. A
// Pick or Edit carrying an author or message override is upgraded to
// `edit` with a map entry, so it auto-resumes like a reword.
func buildTodo(entries []TodoEntry) ([]string, rewordMap, error) {
	lines := make([]string, 0, len(entries))
	rewords := rewordMap{}

	for _, entry := range entries {
		hash := strings.TrimSpace(entry.Hash)
		if hash == "" {
			return nil, nil, gitexec.NewBindingError(
				gitexec.CodeValidation,
				"Every todo entry needs a commit hash.",
				"",
			)
		}
		subject := strings.TrimSpace(entry.OriginalSubject)

		switch TodoAction(strings.ToLower(strings.TrimSpace(string(entry.Action)))) {
		case ActionDrop:
			continue
		case ActionReword:
			lines = append(lines, todoLine("edit", hash, subject))
			rewords[hash] = overrideEntry(entry)
		case ActionEdit:
			lines = append(lines, todoLine("edit", hash, subject))
			if entry.NewMessage != "" || entry.NewAuthor != "" {
				rewords[hash] = overrideEntry(entry)
			}
		case ActionSquash, ActionFixup:
			lines = append(lines, todoLine("fixup", hash, subject))
		case ActionPick, "":
			if entry.NewAuthor != "" {
				lines = append(lines, todoLine("edit", hash, subject))
				rewords[hash] = rewordEntry{Author: strPtr(entry.NewAuthor)}
				continue
			}
			lines = append(lines, todoLine("pick", hash, subject))
		default:
			return nil, nil, gitexec.NewBindingError(
				gitexec.CodeValidation,
				fmt.Sprintf("Unknown todo action %q.", entry.Action),
				hash,
			)
		}
	}

	return lines, rewords, nil
}

func todoLine(action string, hash string, subject string) string {
	if subject == "" {
		return action + " " + hash
	}
	return action + " " + hash + " " + subject
}

func overrideEntry(entry TodoEntry) rewordEntry {
	out := rewordEntry{}
	if strings.TrimSpace(entry.NewMessage) != "" {
		out.Message = strPtr(entry.NewMessage)
	}
	if strings.TrimSpace(entry.NewAuthor) != "" {
		out.Author = strPtr(entry.NewAuthor)
	}
	return out
}

func strPtr(s string) *string {
	return &s
}

// sequenceEditorScript builds the GIT_SEQUENCE_EDITOR value that
// overwrites whatever todo git generated with our pre-built file. The
// shell appends the todo path as the final argument.
func sequenceEditorScript(todoPath string) string {
	if runtime.GOOS == "windows" {
		escaped := strings.ReplaceAll(todoPath, "'", "''")
		return fmt.Sprintf(
			`powershell.exe -NoProfile -NonInteractive -ExecutionPolicy Bypass -Command "Copy-Item -LiteralPath '%s' -Destination $args[0] -Force"`,
			escaped,
		)
	}
	escaped := strings.ReplaceAll(todoPath, "'", `'\''`)
	return fmt.Sprintf("cp '%s'", escaped)
}
