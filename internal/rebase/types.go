package rebase

// TodoAction is one instruction kind in a rebase plan.
type TodoAction string

const (
	ActionPick   TodoAction = "pick"
	ActionReword TodoAction = "reword"
	ActionEdit   TodoAction = "edit"
	ActionSquash TodoAction = "squash"
	ActionFixup  TodoAction = "fixup"
	ActionDrop   TodoAction = "drop"
)

// TodoEntry is one commit in the caller-built rebase plan.
type TodoEntry struct {
	Action          TodoAction `json:"action"`
	Hash            string     `json:"hash"`
	OriginalSubject string     `json:"originalSubject,omitempty"`
	NewMessage      string     `json:"newMessage,omitempty"`
	NewAuthor       string     `json:"newAuthor,omitempty"` // "Name <email>"
}

// Result statuses reported by Start and Continue.
const (
	StatusCompleted     = "completed"
	StatusStoppedAtEdit = "stopped_at_edit"
	StatusConflicts     = "conflicts"
)

// Result describes where a rebase invocation landed.
type Result struct {
	Status         string   `json:"status"`
	Message        string   `json:"message"`
	CurrentStep    int      `json:"currentStep,omitempty"`
	TotalSteps     int      `json:"totalSteps,omitempty"`
	StoppedHash    string   `json:"stoppedHash,omitempty"`
	StoppedMessage string   `json:"stoppedMessage,omitempty"`
	ConflictFiles  []string `json:"conflictFiles"`
}

// StatusInfo is the poll-friendly view of an in-flight rebase.
type StatusInfo struct {
	InProgress     bool     `json:"inProgress"`
	CurrentStep    int      `json:"currentStep,omitempty"`
	TotalSteps     int      `json:"totalSteps,omitempty"`
	StoppedHash    string   `json:"stoppedHash,omitempty"`
	StoppedMessage string   `json:"stoppedMessage,omitempty"`
	ConflictFiles  []string `json:"conflictFiles"`
	AwaitingEdit   bool     `json:"awaitingEdit"`
}

// CommitInfo is one commit eligible for an interactive rebase plan.
type CommitInfo struct {
	Hash        string `json:"hash"`
	ShortHash   string `json:"shortHash"`
	Subject     string `json:"subject"`
	Body        string `json:"body"`
	AuthorName  string `json:"authorName"`
	AuthorEmail string `json:"authorEmail"`
	AuthorDate  string `json:"authorDate"`
	IsPushed    bool   `json:"isPushed"`
}
