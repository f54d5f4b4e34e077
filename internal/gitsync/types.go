package gitsync

// AheadBehind counts the divergence between HEAD and its upstream.
type AheadBehind struct {
	Ahead       int    `json:"ahead"`
	Behind      int    `json:"behind"`
	Upstream    string `json:"upstream,omitempty"`
	HasUpstream bool   `json:"hasUpstream"`
}

// PullResult statuses.
const (
	PullStatusOK        = "ok"
	PullStatusConflicts = "conflicts"
)

// PullResult describes how a pull ended. A conflicted pull is a result,
// not an error: the repository is left mid-merge or mid-rebase for the
// conflict machinery to finish.
type PullResult struct {
	Status        string   `json:"status"`
	Operation     string   `json:"operation"`
	Message       string   `json:"message"`
	ConflictFiles []string `json:"conflictFiles"`
}

// PullPrediction previews what a pull would do without mutating anything
// beyond the fetch.
type PullPrediction struct {
	Upstream      string   `json:"upstream,omitempty"`
	Ahead         int      `json:"ahead"`
	Behind        int      `json:"behind"`
	Action        string   `json:"action"`
	ConflictFiles []string `json:"conflictFiles"`
}
