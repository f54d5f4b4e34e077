package gitstatus

// StatusEntry is one porcelain record after rename reconciliation.
// IndexState and WorktreeState carry the raw porcelain letters; a
// reconciled unstaged rename is reported as WorktreeState "R" with
// OrigPath set to the vanished path.
type StatusEntry struct {
	Path          string `json:"path"`
	OrigPath      string `json:"origPath,omitempty"`
	IndexState    string `json:"indexState"`
	WorktreeState string `json:"worktreeState"`
	Conflicted    bool   `json:"conflicted"`
	Untracked     bool   `json:"untracked"`
}

// BranchInfo is parsed from the porcelain `--branch` header record.
type BranchInfo struct {
	Name     string `json:"name"`
	Upstream string `json:"upstream,omitempty"`
	Ahead    int    `json:"ahead"`
	Behind   int    `json:"behind"`
	Detached bool   `json:"detached"`
}

// Report is the full working-copy status delivered to the UI.
type Report struct {
	Branch  BranchInfo    `json:"branch"`
	Entries []StatusEntry `json:"entries"`
}

// Summary aggregates entry counts for badges.
type Summary struct {
	Staged     int `json:"staged"`
	Unstaged   int `json:"unstaged"`
	Untracked  int `json:"untracked"`
	Conflicted int `json:"conflicted"`
}
