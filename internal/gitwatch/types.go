package gitwatch

import "time"

// Event types reported for changes inside a watched git dir.
const (
	EventBranchChanged   = "branch_changed"
	EventCommit          = "commit"
	EventFetch           = "fetch"
	EventIndex           = "index"
	EventOperationChange = "operation_changed"
)

// Event is one debounced, classified change in a repository's git dir.
type Event struct {
	Type      string            `json:"type"`
	RepoPath  string            `json:"repoPath"`
	Path      string            `json:"path"`
	Timestamp time.Time         `json:"timestamp"`
	Details   map[string]string `json:"details"`
}
