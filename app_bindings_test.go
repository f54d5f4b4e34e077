package main

import (
	"errors"
	"testing"

	"github.com/zalando/go-keyring"

	"github.com/Redysz/Graphoria/internal/gitexec"
)

func TestNewAppWiresAllServices(t *testing.T) {
	app := NewApp()

	if app.runner == nil || app.trust == nil || app.locks == nil {
		t.Fatal("git execution layer not wired")
	}
	if app.status == nil || app.conflicts == nil || app.rebase == nil {
		t.Fatal("core git services not wired")
	}
	if app.patches == nil || app.sync == nil || app.creds == nil {
		t.Fatal("patch/sync/credential services not wired")
	}
}

func TestEmitEventBeforeStartupIsANoOp(t *testing.T) {
	app := NewApp()

	// No runtime context yet; must not panic.
	app.emitEvent("git:status_changed", map[string]string{"repoPath": "/tmp/x"})
}

func TestWrapErrPreservesBindingContract(t *testing.T) {
	if wrapErr(nil) != nil {
		t.Fatal("nil error must stay nil")
	}

	original := gitexec.NewBindingError(gitexec.CodeOpInProgress, "An operation is in progress.", "")
	wrapped := wrapErr(original)
	bindErr := gitexec.AsBindingError(wrapped)
	if bindErr == nil || bindErr.Code != gitexec.CodeOpInProgress {
		t.Fatalf("contract lost: %v", wrapped)
	}

	// Arbitrary errors are folded into the unknown code.
	bindErr = gitexec.AsBindingError(wrapErr(errors.New("boom")))
	if bindErr == nil || bindErr.Code != gitexec.CodeUnknown {
		t.Fatalf("plain error not normalized: %v", bindErr)
	}
	if bindErr.Details != "boom" {
		t.Fatalf("details = %q, want boom", bindErr.Details)
	}
}

func TestListRepositoriesWithoutStoreReturnsEmptyList(t *testing.T) {
	app := NewApp()

	repos, err := app.ListRepositories()
	if err != nil {
		t.Fatalf("ListRepositories: %v", err)
	}
	if repos == nil || len(repos) != 0 {
		t.Fatalf("repos = %v, want empty non-nil slice", repos)
	}
}

func TestRemoteTokenBindingsRoundTrip(t *testing.T) {
	keyring.MockInit()
	app := NewApp()

	has, err := app.HasRemoteToken("github.com")
	if err != nil {
		t.Fatalf("HasRemoteToken: %v", err)
	}
	if has {
		t.Fatal("token reported before one was stored")
	}

	if err := app.SetRemoteToken("github.com", "tok-1"); err != nil {
		t.Fatalf("SetRemoteToken: %v", err)
	}
	has, err = app.HasRemoteToken("GitHub.com")
	if err != nil {
		t.Fatalf("HasRemoteToken: %v", err)
	}
	if !has {
		t.Fatal("stored token not reported")
	}

	if err := app.DeleteRemoteToken("github.com"); err != nil {
		t.Fatalf("DeleteRemoteToken: %v", err)
	}
}
