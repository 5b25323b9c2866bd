package models

type BatchFailure struct {
	ID    string `json:"id"`
	Error string `json:"error"`
}

// BatchResult is the outcome of a multi-task remote operation. Already
// persisted members stay persisted; failures are reported per task.
type BatchResult struct {
	Success []string       `json:"success"`
	Failed  []BatchFailure `json:"failed"`
}

func (r BatchResult) AllOK() bool {
	return len(r.Failed) == 0
}

// SyncState mirrors the orchestrator's loading flag and last error for the
// UI. Only the orchestrator writes it.
type SyncState struct {
	Loading   bool   `json:"loading"`
	LastError string `json:"last_error,omitempty"`
}
