package gitexec

import "sync"

// Locks serializes mutating operations per repository. Keys are normalized
// roots, so `/repo` and `/repo/` contend on the same mutex. Locks are
// never dropped for the process lifetime; a desktop session touches a
// handful of repositories at most.
type Locks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewLocks() *Locks {
	return &Locks{locks: make(map[string]*sync.Mutex)}
}

func (l *Locks) lockFor(repoPath string) *sync.Mutex {
	root := NormalizeRepoPath(repoPath)

	l.mu.Lock()
	defer l.mu.Unlock()

	if lock, ok := l.locks[root]; ok {
		return lock
	}
	lock := &sync.Mutex{}
	l.locks[root] = lock
	return lock
}

// WithRepoLock runs fn while holding the repository's operation lock.
// Concurrent callers for the same root block until fn returns; there is no
// try-lock and no queue jumping.
func (l *Locks) WithRepoLock(repoPath string, fn func() error) error {
	lock := l.lockFor(repoPath)
	lock.Lock()
	defer lock.Unlock()
	return fn()
}
