package patches

// Method selects how a patch file is applied.
type Method string

const (
	// MethodDirect applies the raw diff to the working tree.
	MethodDirect Method = "apply"
	// MethodMailbox replays one or more mailbox-formatted commits.
	MethodMailbox Method = "am"
)

// PredictResult is the outcome of a dry-run applicability check.
type PredictResult struct {
	OK            bool     `json:"ok"`
	Message       string   `json:"message"`
	Files         []string `json:"files"`
	ConflictFiles []string `json:"conflictFiles"`
}
