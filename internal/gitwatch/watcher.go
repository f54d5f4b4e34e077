package gitwatch

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// EventEmitter delivers change notifications to the frontend.
type EventEmitter func(eventName string, data interface{})

const (
	eventStatusChanged    = "git:status_changed"
	eventConflictsChanged = "git:conflicts_changed"
)

// operationSentinels are the files and directories whose appearance or
// disappearance means a composite operation started or ended.
var operationSentinels = map[string]struct{}{
	"MERGE_HEAD":       {},
	"CHERRY_PICK_HEAD": {},
	"REBASE_HEAD":      {},
	"MERGE_MSG":        {},
	"rebase-merge":     {},
	"rebase-apply":     {},
}

// Watcher observes git dirs with fsnotify, debounces the raw event
// storm git produces, and reports classified changes.
type Watcher struct {
	mu       sync.RWMutex
	watcher  *fsnotify.Watcher
	handlers []func(Event)
	debounce map[string]*time.Timer
	recent   map[string]time.Time
	repos    map[string]string // repo root -> resolved git dir
	loopOn   bool
	done     chan struct{}
	closed   bool
	window   time.Duration
	emit     EventEmitter
}

func NewWatcher(emit EventEmitter) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	if emit == nil {
		emit = func(string, interface{}) {}
	}
	return &Watcher{
		watcher:  fsw,
		handlers: make([]func(Event), 0),
		debounce: make(map[string]*time.Timer),
		recent:   make(map[string]time.Time),
		repos:    make(map[string]string),
		done:     make(chan struct{}),
		window:   900 * time.Millisecond,
		emit:     emit,
	}, nil
}

// Watch starts observing a repository's git dir. Watching an already
// watched repository is a no-op.
func (w *Watcher) Watch(repoPath string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return fmt.Errorf("watcher is closed")
	}

	repoPath = filepath.Clean(repoPath)
	if _, watching := w.repos[repoPath]; watching {
		return nil
	}

	gitDir, err := resolveGitDir(repoPath)
	if err != nil {
		return fmt.Errorf("not a git repository: %s", repoPath)
	}

	for _, p := range collectWatchPaths(gitDir) {
		if err := w.watcher.Add(p); err != nil {
			log.Printf("[Graphoria] watch: could not observe %s: %v", p, err)
		}
	}

	w.repos[repoPath] = gitDir

	if !w.loopOn {
		w.loopOn = true
		go w.eventLoop()
	}
	return nil
}

// Unwatch stops observing a repository.
func (w *Watcher) Unwatch(repoPath string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	repoPath = filepath.Clean(repoPath)
	gitDir, watching := w.repos[repoPath]
	if !watching {
		return nil
	}
	for _, p := range collectWatchPaths(gitDir) {
		_ = w.watcher.Remove(p)
	}
	delete(w.repos, repoPath)
	return nil
}

// OnChange registers a handler invoked for each classified event.
func (w *Watcher) OnChange(handler func(Event)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers = append(w.handlers, handler)
}

// Close stops the loop and releases every watch.
func (w *Watcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true
	for _, timer := range w.debounce {
		timer.Stop()
	}
	close(w.done)
	return w.watcher.Close()
}

func (w *Watcher) eventLoop() {
	for {
		select {
		case <-w.done:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			// Git updates refs through lock+rename, so every operation
			// kind matters, not just writes.
			if !event.Has(fsnotify.Write) &&
				!event.Has(fsnotify.Create) &&
				!event.Has(fsnotify.Rename) &&
				!event.Has(fsnotify.Remove) &&
				!event.Has(fsnotify.Chmod) {
				continue
			}

			key := normalizeEventPath(event.Name)
			w.mu.Lock()
			if timer, exists := w.debounce[key]; exists {
				timer.Stop()
			}
			ev := event
			w.debounce[key] = time.AfterFunc(200*time.Millisecond, func() {
				w.handleDebouncedEvent(ev)
			})
			w.mu.Unlock()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("[Graphoria] watch error: %v", err)
		}
	}
}

func (w *Watcher) handleDebouncedEvent(event fsnotify.Event) {
	// A new refs subdirectory (a branch with a slash in its name) needs
	// its own watch, or its future updates are lost.
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			w.mu.Lock()
			if !w.closed {
				if err := w.watcher.Add(event.Name); err != nil {
					log.Printf("[Graphoria] watch: could not observe new directory %s: %v", event.Name, err)
				}
			}
			w.mu.Unlock()
		}
	}

	normalizedPath := normalizeEventPath(event.Name)
	repoPath := w.repoFor(normalizedPath)
	if repoPath == "" {
		return
	}

	classified := classifyEvent(normalizedPath, repoPath)
	if classified == nil || !w.shouldEmit(*classified) {
		return
	}

	w.mu.RLock()
	handlers := make([]func(Event), len(w.handlers))
	copy(handlers, w.handlers)
	w.mu.RUnlock()
	for _, handler := range handlers {
		handler(*classified)
	}

	payload := map[string]string{"repoPath": repoPath, "type": classified.Type}
	w.emit(eventStatusChanged, payload)
	if classified.Type == EventOperationChange {
		w.emit(eventConflictsChanged, payload)
	}
}

// shouldEmit drops semantic repeats inside the dedupe window.
func (w *Watcher) shouldEmit(event Event) bool {
	key := semanticEventKey(event)
	now := time.Now()
	cutoff := now.Add(-3 * w.window)

	w.mu.Lock()
	defer w.mu.Unlock()

	for k, ts := range w.recent {
		if ts.Before(cutoff) {
			delete(w.recent, k)
		}
	}
	if last, exists := w.recent[key]; exists && now.Sub(last) <= w.window {
		return false
	}
	w.recent[key] = now
	return true
}

func semanticEventKey(event Event) string {
	var b strings.Builder
	b.Grow(128)
	b.WriteString(event.Type)
	b.WriteString("|")
	b.WriteString(normalizeEventPath(event.Path))
	if branch, ok := event.Details["branch"]; ok && branch != "" {
		b.WriteString("|branch=")
		b.WriteString(branch)
	}
	if ref, ok := event.Details["ref"]; ok && ref != "" {
		b.WriteString("|ref=")
		b.WriteString(ref)
	}
	return b.String()
}

func (w *Watcher) repoFor(eventPath string) string {
	w.mu.RLock()
	defer w.mu.RUnlock()

	clean := filepath.Clean(eventPath)
	for repoPath, gitDir := range w.repos {
		cleanGitDir := filepath.Clean(gitDir)
		if clean == cleanGitDir || strings.HasPrefix(clean, cleanGitDir+string(os.PathSeparator)) {
			return repoPath
		}
	}
	return ""
}

// classifyEvent maps a git dir path to the change it means for the UI.
func classifyEvent(eventPath string, repoPath string) *Event {
	name := filepath.Base(eventPath)
	now := time.Now()

	if _, sentinel := operationSentinels[name]; sentinel {
		return &Event{
			Type:      EventOperationChange,
			RepoPath:  repoPath,
			Path:      eventPath,
			Timestamp: now,
			Details:   map[string]string{"sentinel": name},
		}
	}

	switch {
	case name == "HEAD":
		branch, _ := readCurrentBranch(repoPath)
		return &Event{
			Type:      EventBranchChanged,
			RepoPath:  repoPath,
			Path:      eventPath,
			Timestamp: now,
			Details:   map[string]string{"branch": branch},
		}

	case strings.Contains(eventPath, filepath.Join("refs", "heads")):
		return &Event{
			Type:      EventCommit,
			RepoPath:  repoPath,
			Path:      eventPath,
			Timestamp: now,
			Details:   map[string]string{"ref": name},
		}

	case strings.Contains(eventPath, filepath.Join("refs", "remotes")):
		return &Event{
			Type:      EventFetch,
			RepoPath:  repoPath,
			Path:      eventPath,
			Timestamp: now,
			Details:   map[string]string{"ref": name},
		}

	case name == "FETCH_HEAD":
		return &Event{
			Type:      EventFetch,
			RepoPath:  repoPath,
			Path:      eventPath,
			Timestamp: now,
			Details:   map[string]string{},
		}

	case name == "index":
		return &Event{
			Type:      EventIndex,
			RepoPath:  repoPath,
			Path:      eventPath,
			Timestamp: now,
			Details:   map[string]string{},
		}
	}

	// Rebase progress files live under the sentinel directories.
	parent := filepath.Base(filepath.Dir(eventPath))
	if parent == "rebase-merge" || parent == "rebase-apply" {
		return &Event{
			Type:      EventOperationChange,
			RepoPath:  repoPath,
			Path:      eventPath,
			Timestamp: now,
			Details:   map[string]string{"sentinel": parent},
		}
	}

	return nil
}

// readCurrentBranch resolves the checked-out branch from HEAD directly,
// avoiding a subprocess on the watch path.
func readCurrentBranch(repoPath string) (string, error) {
	gitDir, err := resolveGitDir(repoPath)
	if err != nil {
		return "", err
	}

	data, err := os.ReadFile(filepath.Join(gitDir, "HEAD"))
	if err != nil {
		return "", fmt.Errorf("failed to read HEAD: %w", err)
	}

	content := strings.TrimSpace(string(data))
	if after, ok := strings.CutPrefix(content, "ref: refs/heads/"); ok {
		return after, nil
	}
	if len(content) >= 8 {
		return content[:8] + " (detached)", nil
	}
	return content, nil
}

// resolveGitDir handles both a plain .git directory and the .git file
// indirection used by worktrees and submodules.
func resolveGitDir(repoPath string) (string, error) {
	gitPath := filepath.Join(repoPath, ".git")
	info, err := os.Stat(gitPath)
	if err != nil {
		return "", err
	}
	if info.IsDir() {
		return filepath.Clean(gitPath), nil
	}

	data, err := os.ReadFile(gitPath)
	if err != nil {
		return "", fmt.Errorf("failed to read .git file: %w", err)
	}
	content := strings.TrimSpace(string(data))
	if !strings.HasPrefix(strings.ToLower(content), "gitdir:") {
		return "", fmt.Errorf("invalid .git file format")
	}
	gitDir := strings.TrimSpace(content[len("gitdir:"):])
	if gitDir == "" {
		return "", fmt.Errorf("empty gitdir in .git file")
	}
	if !filepath.IsAbs(gitDir) {
		gitDir = filepath.Join(repoPath, gitDir)
	}
	return filepath.Clean(gitDir), nil
}

func collectWatchPaths(gitDir string) []string {
	paths := []string{gitDir}
	candidates := []string{
		filepath.Join(gitDir, "refs", "heads"),
		filepath.Join(gitDir, "refs", "remotes"),
		filepath.Join(gitDir, "rebase-merge"),
		filepath.Join(gitDir, "rebase-apply"),
	}

	for _, candidate := range candidates {
		if _, err := os.Stat(candidate); err != nil {
			continue
		}
		paths = append(paths, candidate)
		entries, _ := os.ReadDir(candidate)
		for _, entry := range entries {
			if entry.IsDir() {
				paths = append(paths, filepath.Join(candidate, entry.Name()))
			}
		}
	}

	unique := make([]string, 0, len(paths))
	seen := make(map[string]struct{}, len(paths))
	for _, path := range paths {
		clean := filepath.Clean(path)
		if _, exists := seen[clean]; exists {
			continue
		}
		seen[clean] = struct{}{}
		unique = append(unique, clean)
	}
	return unique
}

// normalizeEventPath folds lockfile events onto their target, since git
// writes everything through "<file>.lock" renames.
func normalizeEventPath(path string) string {
	clean := filepath.Clean(path)
	if strings.HasSuffix(clean, ".lock") {
		return strings.TrimSuffix(clean, ".lock")
	}
	return clean
}
