package patches

import (
	"reflect"
	"strings"
	"testing"
)

func TestTouchedPathsPrefersPostImageAndDeduplicates(t *testing.T) {
	patch := strings.Join([]string{
		"diff --git a/src/old.go b/src/new.go",
		"index 111..222 100644",
		"--- a/src/old.go",
		"+++ b/src/new.go",
		"@@ -1 +1 @@",
		"-x",
		"+y",
		"diff --git a/src/new.go b/src/new.go",
		"@@ -2 +2 @@",
		"-a",
		"+b",
	}, "\n")

	got := touchedPaths(patch)
	want := []string{"src/new.go"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("touchedPaths = %v, want %v", got, want)
	}
}

func TestTouchedPathsDecodesQuotedTokens(t *testing.T) {
	patch := `diff --git "a/dir with space/ol\303\251.txt" "b/dir with space/ol\303\251.txt"` + "\n"

	got := touchedPaths(patch)
	if len(got) != 1 || got[0] != "dir with space/olé.txt" {
		t.Fatalf("touchedPaths = %v", got)
	}
}

func TestTouchedPathsEmptyForNonPatchText(t *testing.T) {
	if got := touchedPaths("just some\nplain text\n"); len(got) != 0 {
		t.Fatalf("expected no paths, got %v", got)
	}
}

func TestDiffPayloadStripsMailboxPreamble(t *testing.T) {
	mbox := strings.Join([]string{
		"From 123abc Mon Sep 17 00:00:00 2001",
		"From: Jo Doe <jo@example.com>",
		"Subject: [PATCH] tweak",
		"",
		"diff --git a/f.txt b/f.txt",
		"--- a/f.txt",
		"+++ b/f.txt",
	}, "\n")

	got := diffPayload(mbox)
	if !strings.HasPrefix(got, "diff --git a/f.txt") {
		t.Fatalf("payload did not start at the diff marker: %q", got)
	}
}

func TestDiffPayloadPassesRawDiffThrough(t *testing.T) {
	raw := "diff --git a/f.txt b/f.txt\n--- a/f.txt\n+++ b/f.txt\n"
	if got := diffPayload(raw); got != raw {
		t.Fatalf("raw diff was modified: %q", got)
	}
}

func TestPatchSubjectsStripsMarker(t *testing.T) {
	mbox := strings.Join([]string{
		"Subject: [PATCH] first change",
		"body",
		"Subject: second change",
		"Subject: [PATCH 2/2] third change",
	}, "\n")

	got := patchSubjects(mbox, 2)
	want := []string{"first change", "second change"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("patchSubjects = %v, want %v", got, want)
	}
}

func TestConflictPathsFromDiagnostic(t *testing.T) {
	message := strings.Join([]string{
		"error: patch failed: src/main.go:12",
		"error: src/main.go: patch does not apply",
		"error: docs/readme.md: already exists in working directory",
		"error: patch with only garbage at line 4",
		"error: corrupt: something",
	}, "\n")

	got := conflictPathsFromDiagnostic(message)
	want := []string{"src/main.go", "docs/readme.md"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("conflictPathsFromDiagnostic = %v, want %v", got, want)
	}
}

func TestConflictPathsKeepsWindowsDrivePrefix(t *testing.T) {
	got := conflictPathsFromDiagnostic(`error: patch failed: C:\work\repo\f.txt:3`)
	if len(got) != 1 || got[0] != `C:\work\repo\f.txt` {
		t.Fatalf("conflictPathsFromDiagnostic = %v", got)
	}
}
