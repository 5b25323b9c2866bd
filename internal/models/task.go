package models

import "time"

type TaskKind string

const (
	KindMilestone TaskKind = "milestone"
	KindIssue     TaskKind = "issue"
	KindTask      TaskKind = "task"
	KindSummary   TaskKind = "summary"
)

// RemoteRef ties a local task or link to its identity on the remote tracker.
// A zero RemoteRef means the entity has not been confirmed remotely yet.
type RemoteRef struct {
	IID      int64  `json:"iid"`
	GlobalID string `json:"global_id"`
	Type     string `json:"type"`
}

func (r RemoteRef) Confirmed() bool {
	return r.IID != 0 || r.GlobalID != ""
}

type Task struct {
	ID            string     `json:"id"`
	ParentID      string     `json:"parent_id"`
	Kind          TaskKind   `json:"kind"`
	Name          string     `json:"name"`
	Start         *time.Time `json:"start"`
	End           *time.Time `json:"end"`
	Workdays      int        `json:"workdays"`
	BaselineStart *time.Time `json:"baseline_start"`
	BaselineEnd   *time.Time `json:"baseline_end"`
	Remote        RemoteRef  `json:"remote"`
	Open          bool       `json:"open"`
}

// HasSpan reports whether the task carries both dates. Tasks without a full
// span bypass workday preservation entirely.
func (t Task) HasSpan() bool {
	return t.Start != nil && t.End != nil
}
