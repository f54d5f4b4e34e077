package gitexec

import (
	"context"
	"strings"
)

// FallbackStrategy runs Primary and, when it fails with a diagnostic that
// looks like an unsupported flag or subcommand, retries once with
// Fallback. Used to bridge git version skew, e.g. `merge --continue`
// (git >= 2.12) downgrading to `commit --no-edit`.
type FallbackStrategy struct {
	Primary  []string
	Fallback []string
}

func (s FallbackStrategy) Run(ctx context.Context, r *Runner, repoRoot string, extraEnv []string) (string, error) {
	out, err := r.RunWriteEnv(ctx, repoRoot, extraEnv, s.Primary...)
	if err == nil || len(s.Fallback) == 0 {
		return out, err
	}

	bindingErr := AsBindingError(err)
	if bindingErr == nil || bindingErr.Code != CodeCommandFailed {
		return out, err
	}
	if !looksLikeUnsupportedInvocation(bindingErr.Message + " " + bindingErr.Details) {
		return out, err
	}

	return r.RunWriteEnv(ctx, repoRoot, extraEnv, s.Fallback...)
}

func looksLikeUnsupportedInvocation(diagnostic string) bool {
	lowered := strings.ToLower(diagnostic)
	return strings.Contains(lowered, "unknown option") ||
		strings.Contains(lowered, "unknown switch") ||
		strings.Contains(lowered, "is not a git command") ||
		strings.Contains(lowered, "usage: git")
}
