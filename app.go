package main

import (
	"context"
	"log"
	"strings"

	"github.com/wailsapp/wails/v2/pkg/runtime"

	"github.com/Redysz/Graphoria/internal/config"
	"github.com/Redysz/Graphoria/internal/conflicts"
	"github.com/Redysz/Graphoria/internal/credentials"
	"github.com/Redysz/Graphoria/internal/gitexec"
	"github.com/Redysz/Graphoria/internal/gitstatus"
	"github.com/Redysz/Graphoria/internal/gitsync"
	"github.com/Redysz/Graphoria/internal/gitwatch"
	"github.com/Redysz/Graphoria/internal/patches"
	"github.com/Redysz/Graphoria/internal/rebase"
	"github.com/Redysz/Graphoria/internal/repostore"
)

// App wires the services together and exposes the binding surface the
// frontend calls. Every binding takes the repository path first and
// returns either a structured result or a normalized error contract.
type App struct {
	ctx context.Context

	trust  *gitexec.TrustRegistry
	locks  *gitexec.Locks
	runner *gitexec.Runner

	status    *gitstatus.Service
	conflicts *conflicts.Service
	rebase    *rebase.Service
	patches   *patches.Service
	sync      *gitsync.Service

	watcher *gitwatch.Watcher
	store   *repostore.Service
	creds   *credentials.Service
}

func NewApp() *App {
	app := &App{
		trust: gitexec.NewTrustRegistry(),
		locks: gitexec.NewLocks(),
		creds: credentials.NewService(),
	}
	app.runner = gitexec.NewRunner(app.trust)

	emit := app.emitEvent
	app.status = gitstatus.NewService(app.runner)
	app.conflicts = conflicts.NewService(app.runner, app.locks, emit)
	app.rebase = rebase.NewService(app.runner, app.locks, app.conflicts, emit)
	app.patches = patches.NewService(app.runner, app.locks, emit)
	app.sync = gitsync.NewService(app.runner, app.locks, app.conflicts, emit)

	return app
}

// emitEvent forwards service notifications to the frontend once the
// runtime context exists; before startup they are dropped.
func (a *App) emitEvent(eventName string, data interface{}) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventName, data)
}

// Startup initializes the persistent pieces. A failing repository store
// degrades to an in-session-only list instead of blocking launch.
func (a *App) Startup(ctx context.Context) {
	a.ctx = ctx

	if err := config.EnsureDataDirs(); err != nil {
		log.Printf("[Graphoria] could not create data dirs: %v", err)
	}

	store, err := repostore.NewService()
	if err != nil {
		log.Printf("[Graphoria] repository store unavailable: %v", err)
	} else {
		a.store = store
	}

	watcher, err := gitwatch.NewWatcher(a.emitEvent)
	if err != nil {
		log.Printf("[Graphoria] file watcher unavailable: %v", err)
	} else {
		a.watcher = watcher
	}
}

func (a *App) DomReady(ctx context.Context) {}

func (a *App) Shutdown(ctx context.Context) {
	if a.watcher != nil {
		if err := a.watcher.Close(); err != nil {
			log.Printf("[Graphoria] watcher close: %v", err)
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			log.Printf("[Graphoria] store close: %v", err)
		}
	}
}

// wrapErr converts any service error into the JSON contract the
// frontend parses.
func wrapErr(err error) error {
	if err == nil {
		return nil
	}
	return gitexec.NormalizeBindingError(err)
}

// === Repository management ===

func (a *App) ListRepositories() ([]repostore.Repository, error) {
	if a.store == nil {
		return []repostore.Repository{}, nil
	}
	repos, err := a.store.List()
	return repos, wrapErr(err)
}

func (a *App) AddRepository(repoPath string, name string) (*repostore.Repository, error) {
	root, err := a.runner.EnsureWorkingCopy(a.ctx, repoPath)
	if err != nil {
		return nil, wrapErr(err)
	}
	if a.store == nil {
		return &repostore.Repository{Path: root, Name: name}, nil
	}
	repo, err := a.store.Add(root, name)
	return repo, wrapErr(err)
}

func (a *App) RemoveRepository(id string) error {
	if a.store == nil {
		return nil
	}
	return wrapErr(a.store.Remove(id))
}

// OpenRepository marks the repository as current: bumps its recency,
// restores its trust decision and starts watching its git dir.
func (a *App) OpenRepository(id string) (*repostore.Repository, error) {
	if a.store == nil {
		return nil, wrapErr(repostore.ErrNotFound)
	}
	repo, err := a.store.Get(id)
	if err != nil {
		return nil, wrapErr(err)
	}
	_ = a.store.Touch(id)
	if repo.TrustedGlobally {
		a.trust.TrustSession(repo.Path)
	}
	if a.watcher != nil {
		if err := a.watcher.Watch(repo.Path); err != nil {
			log.Printf("[Graphoria] could not watch %s: %v", repo.Path, err)
		}
	}
	return repo, nil
}

func (a *App) SetPullRebase(id string, pullRebase bool) error {
	if a.store == nil {
		return nil
	}
	repo, err := a.store.Get(id)
	if err != nil {
		return wrapErr(err)
	}
	repo.PullRebase = pullRebase
	return wrapErr(a.store.Update(repo))
}

// TrustRepository marks a dubious-ownership repository as safe, both in
// the global git config and for this session.
func (a *App) TrustRepository(repoPath string) error {
	if err := a.runner.TrustGlobally(a.ctx, repoPath); err != nil {
		return wrapErr(err)
	}
	if a.store != nil {
		if repo, err := a.store.GetByPath(repoPath); err == nil {
			_ = a.store.SetTrustedGlobally(repo.ID, true)
		}
	}
	return nil
}

func (a *App) WatchRepository(repoPath string) error {
	if a.watcher == nil {
		return nil
	}
	return wrapErr(a.watcher.Watch(repoPath))
}

func (a *App) UnwatchRepository(repoPath string) error {
	if a.watcher == nil {
		return nil
	}
	return wrapErr(a.watcher.Unwatch(repoPath))
}

// === Status ===

func (a *App) GetStatus(repoPath string) (*gitstatus.Report, error) {
	report, err := a.status.Status(a.ctx, repoPath)
	return report, wrapErr(err)
}

func (a *App) GetStatusSummary(repoPath string) (*gitstatus.Summary, error) {
	summary, err := a.status.Summary(a.ctx, repoPath)
	return summary, wrapErr(err)
}

func (a *App) HasStagedChanges(repoPath string) (bool, error) {
	staged, err := a.status.HasStagedChanges(a.ctx, repoPath)
	return staged, wrapErr(err)
}

// === Conflicts ===

func (a *App) GetConflictState(repoPath string) (*conflicts.State, error) {
	state, err := a.conflicts.State(a.ctx, repoPath)
	return state, wrapErr(err)
}

func (a *App) GetConflictFileVersions(repoPath string, filePath string) (*conflicts.FileVersions, error) {
	versions, err := a.conflicts.FileVersions(a.ctx, repoPath, filePath)
	return versions, wrapErr(err)
}

func (a *App) TakeOurs(repoPath string, filePath string) error {
	return wrapErr(a.conflicts.TakeOurs(a.ctx, repoPath, filePath))
}

func (a *App) TakeTheirs(repoPath string, filePath string) error {
	return wrapErr(a.conflicts.TakeTheirs(a.ctx, repoPath, filePath))
}

func (a *App) ResolveRename(repoPath string, filePath string, keepName string, keepContent string) error {
	return wrapErr(a.conflicts.ResolveRename(a.ctx, repoPath, filePath, conflicts.Side(keepName), conflicts.Side(keepContent)))
}

func (a *App) ApplyAndStage(repoPath string, filePath string, content string) error {
	return wrapErr(a.conflicts.ApplyAndStage(a.ctx, repoPath, filePath, content))
}

func (a *App) ContinueOperation(repoPath string) (string, error) {
	kind, err := a.conflicts.Continue(a.ctx, repoPath)
	return string(kind), wrapErr(err)
}

func (a *App) AbortOperation(repoPath string) (string, error) {
	kind, err := a.conflicts.Abort(a.ctx, repoPath)
	return string(kind), wrapErr(err)
}

func (a *App) SkipOperation(repoPath string) (string, error) {
	kind, err := a.conflicts.Skip(a.ctx, repoPath)
	return string(kind), wrapErr(err)
}

// === Interactive rebase ===

func (a *App) StartInteractiveRebase(repoPath string, baseRef string, entries []rebase.TodoEntry) (*rebase.Result, error) {
	result, err := a.rebase.Start(a.ctx, repoPath, baseRef, entries)
	return result, wrapErr(err)
}

func (a *App) ContinueInteractiveRebase(repoPath string) (*rebase.Result, error) {
	result, err := a.rebase.Continue(a.ctx, repoPath)
	return result, wrapErr(err)
}

func (a *App) AbortInteractiveRebase(repoPath string) error {
	return wrapErr(a.rebase.Abort(a.ctx, repoPath))
}

func (a *App) AmendStoppedCommit(repoPath string, message string, author string) (string, error) {
	out, err := a.rebase.AmendStopped(a.ctx, repoPath, message, author)
	return out, wrapErr(err)
}

func (a *App) GetInteractiveRebaseStatus(repoPath string) (*rebase.StatusInfo, error) {
	info, err := a.rebase.Status(a.ctx, repoPath)
	return info, wrapErr(err)
}

func (a *App) ListRebaseCommits(repoPath string, baseRef string) ([]rebase.CommitInfo, error) {
	commits, err := a.rebase.EligibleCommits(a.ctx, repoPath, baseRef)
	return commits, wrapErr(err)
}

func (a *App) ListStoppedCommitFiles(repoPath string) ([]string, error) {
	files, err := a.rebase.StoppedCommitFiles(a.ctx, repoPath)
	return files, wrapErr(err)
}

func (a *App) ReadStoppedFile(repoPath string, filePath string) (string, error) {
	content, err := a.rebase.ReadWorktreeFile(a.ctx, repoPath, filePath)
	return content, wrapErr(err)
}

func (a *App) WriteStoppedFile(repoPath string, filePath string, content string) error {
	return wrapErr(a.rebase.WriteWorktreeFile(a.ctx, repoPath, filePath, content))
}

func (a *App) RenameStoppedFile(repoPath string, fromPath string, toPath string) error {
	return wrapErr(a.rebase.RenameWorktreeFile(a.ctx, repoPath, fromPath, toPath))
}

func (a *App) DeleteStoppedFile(repoPath string, filePath string) error {
	return wrapErr(a.rebase.DeleteWorktreeFile(a.ctx, repoPath, filePath))
}

func (a *App) RestoreStoppedFile(repoPath string, filePath string) error {
	return wrapErr(a.rebase.RestoreFileFromHead(a.ctx, repoPath, filePath))
}

// === Patches ===

func (a *App) PredictPatch(repoPath string, patchPath string, method string) (*patches.PredictResult, error) {
	result, err := a.patches.Predict(a.ctx, repoPath, patchPath, method)
	return result, wrapErr(err)
}

func (a *App) ApplyPatch(repoPath string, patchPath string, method string) (string, error) {
	out, err := a.patches.Apply(a.ctx, repoPath, patchPath, method)
	return out, wrapErr(err)
}

func (a *App) ExportCommitPatch(repoPath string, commit string, outPath string) error {
	return wrapErr(a.patches.Export(a.ctx, repoPath, commit, outPath))
}

// === Sync ===

func (a *App) GetAheadBehind(repoPath string, remote string) (*gitsync.AheadBehind, error) {
	counts, err := a.sync.AheadBehind(a.ctx, repoPath, remote)
	return counts, wrapErr(err)
}

func (a *App) Fetch(repoPath string, remote string) (string, error) {
	out, err := a.sync.Fetch(a.ctx, repoPath, remote)
	return out, wrapErr(err)
}

func (a *App) Pull(repoPath string, remote string) (*gitsync.PullResult, error) {
	result, err := a.sync.Pull(a.ctx, repoPath, remote)
	return result, wrapErr(err)
}

func (a *App) PullWithRebase(repoPath string, remote string) (*gitsync.PullResult, error) {
	result, err := a.sync.PullRebase(a.ctx, repoPath, remote)
	return result, wrapErr(err)
}

func (a *App) PredictPull(repoPath string, remote string, useRebase bool) (*gitsync.PullPrediction, error) {
	prediction, err := a.sync.PredictPull(a.ctx, repoPath, remote, useRebase)
	return prediction, wrapErr(err)
}

func (a *App) GetPullConflictPreview(repoPath string, upstream string, filePath string) (string, error) {
	preview, err := a.sync.ConflictPreview(a.ctx, repoPath, upstream, filePath)
	return preview, wrapErr(err)
}

// === Credentials ===

func (a *App) SetRemoteToken(host string, token string) error {
	return wrapErr(a.creds.SetToken(host, token))
}

func (a *App) HasRemoteToken(host string) (bool, error) {
	token, err := a.creds.GetToken(host)
	if err != nil {
		return false, wrapErr(err)
	}
	return strings.TrimSpace(token) != "", nil
}

func (a *App) DeleteRemoteToken(host string) error {
	return wrapErr(a.creds.DeleteToken(host))
}
