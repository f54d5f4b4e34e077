package gitexec

import (
	"context"
	"sync"
)

// TrustRegistry tracks repository roots the user trusted for this session.
// Trusted roots get `-c safe.directory=<root>` injected on every
// invocation. The registry is owned by the App and injected into the
// runner; nothing in this module keeps ambient global state.
type TrustRegistry struct {
	mu    sync.RWMutex
	roots map[string]struct{}
}

func NewTrustRegistry() *TrustRegistry {
	return &TrustRegistry{roots: make(map[string]struct{})}
}

func (t *TrustRegistry) TrustSession(repoPath string) {
	root := NormalizeRepoPath(repoPath)
	if root == "" {
		return
	}
	t.mu.Lock()
	t.roots[root] = struct{}{}
	t.mu.Unlock()
}

func (t *TrustRegistry) IsTrusted(repoPath string) bool {
	root := NormalizeRepoPath(repoPath)
	if root == "" {
		return false
	}
	t.mu.RLock()
	_, ok := t.roots[root]
	t.mu.RUnlock()
	return ok
}

// TrustGlobally persists the trust decision into the user's global git
// config and also trusts the root for the current session.
func (r *Runner) TrustGlobally(ctx context.Context, repoPath string) error {
	root := NormalizeRepoPath(repoPath)
	if root == "" {
		return NewBindingError(
			CodeRepoNotResolved,
			"Repository path is required.",
			"Provide an absolute repository root.",
		)
	}

	if _, err := r.RunGlobal(ctx, "config", "--global", "--add", "safe.directory", root); err != nil {
		return err
	}
	if r.trust != nil {
		r.trust.TrustSession(root)
	}
	return nil
}
