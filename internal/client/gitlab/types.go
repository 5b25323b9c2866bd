package gitlab

type GitLabError struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

type GitLabMilestoneRef struct {
	ID  int64 `json:"id"`
	IID int64 `json:"iid"`
}

type GitLabIssue struct {
	ID        int64               `json:"id"`
	IID       int64               `json:"iid"`
	ProjectID int64               `json:"project_id"`
	Title     string              `json:"title"`
	IssueType string              `json:"issue_type"`
	State     string              `json:"state"`
	StartDate string              `json:"start_date"`
	DueDate   string              `json:"due_date"`
	Milestone *GitLabMilestoneRef `json:"milestone"`
}

type GitLabMilestone struct {
	ID        int64  `json:"id"`
	IID       int64  `json:"iid"`
	Title     string `json:"title"`
	State     string `json:"state"`
	StartDate string `json:"start_date"`
	DueDate   string `json:"due_date"`
}

type GitLabIssueLink struct {
	IssueLinkID int64  `json:"issue_link_id"`
	LinkType    string `json:"link_type"`
	ID          int64  `json:"id"`
	IID         int64  `json:"iid"`
}

type GitLabProject struct {
	ID                int64  `json:"id"`
	Name              string `json:"name"`
	PathWithNamespace string `json:"path_with_namespace"`
}

type CreateIssueRequest struct {
	Title       string `json:"title"`
	IssueType   string `json:"issue_type,omitempty"`
	StartDate   string `json:"start_date,omitempty"`
	DueDate     string `json:"due_date,omitempty"`
	MilestoneID int64  `json:"milestone_id,omitempty"`
}

type UpdateIssueRequest struct {
	Title     string `json:"title,omitempty"`
	StartDate string `json:"start_date,omitempty"`
	DueDate   string `json:"due_date,omitempty"`
}

type CreateMilestoneRequest struct {
	Title     string `json:"title"`
	StartDate string `json:"start_date,omitempty"`
	DueDate   string `json:"due_date,omitempty"`
}

type CreateLinkRequest struct {
	TargetProjectID string `json:"target_project_id"`
	TargetIssueIID  int64  `json:"target_issue_iid"`
	LinkType        string `json:"link_type"`
}

type CreateLinkResponse struct {
	SourceIssue GitLabIssue `json:"source_issue"`
	TargetIssue GitLabIssue `json:"target_issue"`
	LinkType    string      `json:"link_type"`
	IssueLinkID int64       `json:"issue_link_id"`
}

type ReorderRequest struct {
	MoveBeforeID int64 `json:"move_before_id,omitempty"`
	MoveAfterID  int64 `json:"move_after_id,omitempty"`
}
