package conflicts

// OperationKind identifies which merge-like operation owns the current
// conflict state.
type OperationKind string

const (
	KindIdle         OperationKind = "idle"
	KindMerge        OperationKind = "merge"
	KindRebase       OperationKind = "rebase"
	KindCherryPick   OperationKind = "cherry_pick"
	KindMailboxApply OperationKind = "mailbox_apply"
)

// ConflictKind classifies how the two sides diverged on one path.
type ConflictKind string

const (
	ConflictText         ConflictKind = "text"
	ConflictRename       ConflictKind = "rename"
	ConflictModifyDelete ConflictKind = "modify_delete"
)

// SentinelProbe captures the on-disk sentinels DetectOperation decides on.
type SentinelProbe struct {
	MailboxApplying bool // <gitdir>/rebase-apply/applying exists
	RebaseHead      bool // REBASE_HEAD resolves
	RebaseMergeDir  bool // <gitdir>/rebase-merge exists
	RebaseApplyDir  bool // <gitdir>/rebase-apply exists
	MergeHead       bool // MERGE_HEAD resolves
	CherryPickHead  bool // CHERRY_PICK_HEAD resolves
}

// FileEntry is one unmerged path. Status and the stage booleans are
// annotations from secondary queries and degrade to "U" and all-false when
// those queries fail.
type FileEntry struct {
	Path      string `json:"path"`
	Status    string `json:"status"`
	HasBase   bool   `json:"hasBase"`
	HasOurs   bool   `json:"hasOurs"`
	HasTheirs bool   `json:"hasTheirs"`
}

// State is the full conflict picture for a repository.
type State struct {
	InProgress bool          `json:"inProgress"`
	Kind       OperationKind `json:"kind"`
	Files      []FileEntry   `json:"files"`
}

// FileVersions holds the sides of one conflicted path plus its
// classification. Content absent at a stage is an empty string; binary
// content never reaches this struct. For rename conflicts TheirsPath names
// where the incoming side moved the file and Theirs carries the content at
// that target.
type FileVersions struct {
	Path          string       `json:"path"`
	Base          string       `json:"base"`
	Ours          string       `json:"ours"`
	Theirs        string       `json:"theirs"`
	Working       string       `json:"working"`
	OursPath      string       `json:"oursPath"`
	TheirsPath    string       `json:"theirsPath,omitempty"`
	OursDeleted   bool         `json:"oursDeleted"`
	TheirsDeleted bool         `json:"theirsDeleted"`
	Kind          ConflictKind `json:"kind"`
}

// Side selects which conflict side a resolution keeps.
type Side string

const (
	SideOurs   Side = "ours"
	SideTheirs Side = "theirs"
)
