package gitlab

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/MartinBspheroid/gantt-sync/internal/models"
)

type GitLabClient struct {
	baseUrl    string
	token      string
	httpClient *http.Client
}

func NewGitLabClient(baseUrl, token string) *GitLabClient {
	if baseUrl == "" {
		baseUrl = "https://gitlab.com/api/v4"
	}
	return &GitLabClient{
		baseUrl:    strings.TrimRight(baseUrl, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func parseDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return nil, fmt.Errorf("parse date (gitlab): %w", err)
	}
	utc := time.Date(t.Year(), t.Month(), t.Day(), 12, 0, 0, 0, time.UTC)
	return &utc, nil
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format("2006-01-02")
}

func issueTaskID(id int64) string {
	return strconv.FormatInt(id, 10)
}

func milestoneTaskID(id int64) string {
	return "milestone-" + strconv.FormatInt(id, 10)
}

func milestoneIDFromTaskID(taskID string) int64 {
	id, err := strconv.ParseInt(strings.TrimPrefix(taskID, "milestone-"), 10, 64)
	if err != nil {
		return 0
	}
	return id
}

func (c *GitLabClient) do(method, path string, reqBody any) ([]byte, error) {
	var bodyReader io.Reader
	if reqBody != nil {
		b, err := json.Marshal(reqBody)
		if err != nil {
			return nil, fmt.Errorf("marshal request body (gitlab): %w", err)
		}
		bodyReader = bytes.NewBuffer(b)
	}

	req, err := http.NewRequest(method, c.baseUrl+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("build request (gitlab): %w", err)
	}
	req.Header.Set("PRIVATE-TOKEN", c.token)
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s (gitlab): %w", method, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body (gitlab): %w", err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		var glErr GitLabError
		if err := json.Unmarshal(body, &glErr); err == nil {
			if glErr.Message != "" {
				return nil, fmt.Errorf("GitLab error: %s", glErr.Message)
			}
			if glErr.Error != "" {
				return nil, fmt.Errorf("GitLab error: %s", glErr.Error)
			}
		}
		return nil, fmt.Errorf("API error status: %d", resp.StatusCode)
	}

	return body, nil
}

func taskFromIssue(issue GitLabIssue) (models.Task, error) {
	start, err := parseDate(issue.StartDate)
	if err != nil {
		return models.Task{}, err
	}
	end, err := parseDate(issue.DueDate)
	if err != nil {
		return models.Task{}, err
	}

	kind := models.KindIssue
	if issue.IssueType == "task" {
		kind = models.KindTask
	}

	parentID := ""
	if issue.Milestone != nil {
		parentID = milestoneTaskID(issue.Milestone.ID)
	}

	return models.Task{
		ID:       issueTaskID(issue.ID),
		ParentID: parentID,
		Kind:     kind,
		Name:     issue.Title,
		Start:    start,
		End:      end,
		Remote: models.RemoteRef{
			IID:      issue.IID,
			GlobalID: issueTaskID(issue.ID),
			Type:     "issue",
		},
		Open: true,
	}, nil
}

func taskFromMilestone(m GitLabMilestone) (models.Task, error) {
	start, err := parseDate(m.StartDate)
	if err != nil {
		return models.Task{}, err
	}
	end, err := parseDate(m.DueDate)
	if err != nil {
		return models.Task{}, err
	}

	return models.Task{
		ID:    milestoneTaskID(m.ID),
		Kind:  models.KindMilestone,
		Name:  m.Title,
		Start: start,
		End:   end,
		Remote: models.RemoteRef{
			IID:      m.IID,
			GlobalID: milestoneTaskID(m.ID),
			Type:     "milestone",
		},
		Open: true,
	}, nil
}

func (c *GitLabClient) fetchIssues(projectId string) ([]GitLabIssue, error) {
	body, err := c.do("GET", "/projects/"+url.PathEscape(projectId)+"/issues?per_page=100&state=opened", nil)
	if err != nil {
		return nil, fmt.Errorf("get issues: %w", err)
	}

	var issues []GitLabIssue
	if err := json.Unmarshal(body, &issues); err != nil {
		return nil, fmt.Errorf("parse issues (gitlab): %w", err)
	}
	return issues, nil
}

func (c *GitLabClient) GetTasks(projectId string) ([]models.Task, error) {
	body, err := c.do("GET", "/projects/"+url.PathEscape(projectId)+"/milestones?state=active", nil)
	if err != nil {
		return nil, fmt.Errorf("get milestones: %w", err)
	}

	var milestones []GitLabMilestone
	if err := json.Unmarshal(body, &milestones); err != nil {
		return nil, fmt.Errorf("parse milestones (gitlab): %w", err)
	}

	issues, err := c.fetchIssues(projectId)
	if err != nil {
		return nil, err
	}

	tasks := make([]models.Task, 0, len(milestones)+len(issues))
	for _, m := range milestones {
		task, err := taskFromMilestone(m)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	for _, issue := range issues {
		task, err := taskFromIssue(issue)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}

	return tasks, nil
}

func (c *GitLabClient) GetLinks(projectId string) ([]models.Link, error) {
	issues, err := c.fetchIssues(projectId)
	if err != nil {
		return nil, err
	}

	seen := make(map[int64]struct{})
	var links []models.Link

	for _, issue := range issues {
		path := "/projects/" + url.PathEscape(projectId) + "/issues/" + strconv.FormatInt(issue.IID, 10) + "/links"
		body, err := c.do("GET", path, nil)
		if err != nil {
			return nil, fmt.Errorf("get links for issue %d: %w", issue.IID, err)
		}

		var issueLinks []GitLabIssueLink
		if err := json.Unmarshal(body, &issueLinks); err != nil {
			return nil, fmt.Errorf("parse links (gitlab): %w", err)
		}

		for _, il := range issueLinks {
			if _, ok := seen[il.IssueLinkID]; ok {
				continue
			}
			seen[il.IssueLinkID] = struct{}{}

			source, target := issueTaskID(issue.ID), issueTaskID(il.ID)
			kind := models.LinkStartToStart
			switch il.LinkType {
			case "blocks":
				kind = models.LinkEndToStart
			case "is_blocked_by":
				kind = models.LinkEndToStart
				source, target = target, source
			}

			links = append(links, models.Link{
				ID:     strconv.FormatInt(il.IssueLinkID, 10),
				Source: source,
				Target: target,
				Kind:   kind,
				Remote: models.RemoteRef{
					IID:      il.IssueLinkID,
					GlobalID: strconv.FormatInt(il.IssueLinkID, 10),
					Type:     "issue_link",
				},
			})
		}
	}

	return links, nil
}

func (c *GitLabClient) CreateTask(projectId string, task models.Task) (*models.Task, error) {
	if task.Kind == models.KindMilestone {
		reqBody := CreateMilestoneRequest{
			Title:     task.Name,
			StartDate: formatDate(task.Start),
			DueDate:   formatDate(task.End),
		}
		body, err := c.do("POST", "/projects/"+url.PathEscape(projectId)+"/milestones", reqBody)
		if err != nil {
			return nil, fmt.Errorf("create milestone: %w", err)
		}

		var created GitLabMilestone
		if err := json.Unmarshal(body, &created); err != nil {
			return nil, fmt.Errorf("parse created milestone (gitlab): %w", err)
		}
		result, err := taskFromMilestone(created)
		if err != nil {
			return nil, err
		}
		return &result, nil
	}

	issueType := "issue"
	if task.Kind == models.KindTask {
		issueType = "task"
	}
	reqBody := CreateIssueRequest{
		Title:       task.Name,
		IssueType:   issueType,
		StartDate:   formatDate(task.Start),
		DueDate:     formatDate(task.End),
		MilestoneID: milestoneIDFromTaskID(task.ParentID),
	}
	body, err := c.do("POST", "/projects/"+url.PathEscape(projectId)+"/issues", reqBody)
	if err != nil {
		return nil, fmt.Errorf("create issue: %w", err)
	}

	var created GitLabIssue
	if err := json.Unmarshal(body, &created); err != nil {
		return nil, fmt.Errorf("parse created issue (gitlab): %w", err)
	}
	result, err := taskFromIssue(created)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *GitLabClient) UpdateTask(projectId string, task models.Task) error {
	iid := strconv.FormatInt(task.Remote.IID, 10)

	if task.Kind == models.KindMilestone {
		reqBody := CreateMilestoneRequest{
			Title:     task.Name,
			StartDate: formatDate(task.Start),
			DueDate:   formatDate(task.End),
		}
		if _, err := c.do("PUT", "/projects/"+url.PathEscape(projectId)+"/milestones/"+iid, reqBody); err != nil {
			return fmt.Errorf("update milestone %s: %w", iid, err)
		}
		return nil
	}

	reqBody := UpdateIssueRequest{
		Title:     task.Name,
		StartDate: formatDate(task.Start),
		DueDate:   formatDate(task.End),
	}
	if _, err := c.do("PUT", "/projects/"+url.PathEscape(projectId)+"/issues/"+iid, reqBody); err != nil {
		return fmt.Errorf("update issue %s: %w", iid, err)
	}
	return nil
}

func (c *GitLabClient) DeleteTask(projectId string, task models.Task) error {
	iid := strconv.FormatInt(task.Remote.IID, 10)

	kind := "issues"
	if task.Kind == models.KindMilestone {
		kind = "milestones"
	}
	if _, err := c.do("DELETE", "/projects/"+url.PathEscape(projectId)+"/"+kind+"/"+iid, nil); err != nil {
		return fmt.Errorf("delete %s %s: %w", kind, iid, err)
	}
	return nil
}

func linkTypeFor(kind models.LinkKind) string {
	if kind == models.LinkEndToStart {
		return "blocks"
	}
	return "relates_to"
}

func (c *GitLabClient) CreateLink(projectId string, source, target models.Task, link models.Link) (*models.Link, error) {
	reqBody := CreateLinkRequest{
		TargetProjectID: projectId,
		TargetIssueIID:  target.Remote.IID,
		LinkType:        linkTypeFor(link.Kind),
	}
	path := "/projects/" + url.PathEscape(projectId) + "/issues/" + strconv.FormatInt(source.Remote.IID, 10) + "/links"
	body, err := c.do("POST", path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("create link %s->%s: %w", link.Source, link.Target, err)
	}

	var created CreateLinkResponse
	if err := json.Unmarshal(body, &created); err != nil {
		return nil, fmt.Errorf("parse created link (gitlab): %w", err)
	}

	result := link
	result.ID = strconv.FormatInt(created.IssueLinkID, 10)
	result.Remote = models.RemoteRef{
		IID:      created.IssueLinkID,
		GlobalID: strconv.FormatInt(created.IssueLinkID, 10),
		Type:     "issue_link",
	}
	return &result, nil
}

// DeleteLink matches the remote link by the (source, target) issue pair.
// Remote link ids are not guaranteed to equal locally-assigned ones, so the
// source issue's link list is the authority.
func (c *GitLabClient) DeleteLink(projectId string, source, target models.Task) error {
	sourceIID := strconv.FormatInt(source.Remote.IID, 10)
	path := "/projects/" + url.PathEscape(projectId) + "/issues/" + sourceIID + "/links"
	body, err := c.do("GET", path, nil)
	if err != nil {
		return fmt.Errorf("list links of issue %s: %w", sourceIID, err)
	}

	var issueLinks []GitLabIssueLink
	if err := json.Unmarshal(body, &issueLinks); err != nil {
		return fmt.Errorf("parse links (gitlab): %w", err)
	}

	for _, il := range issueLinks {
		if issueTaskID(il.ID) != target.ID {
			continue
		}
		linkID := strconv.FormatInt(il.IssueLinkID, 10)
		if _, err := c.do("DELETE", path+"/"+linkID, nil); err != nil {
			return fmt.Errorf("delete link %s: %w", linkID, err)
		}
		return nil
	}

	return fmt.Errorf("link %s->%s not found on remote", source.ID, target.ID)
}

func (c *GitLabClient) ReorderTask(projectId string, moved, target models.Task, mode string) error {
	targetID, err := strconv.ParseInt(target.Remote.GlobalID, 10, 64)
	if err != nil {
		return fmt.Errorf("parse target id %q: %w", target.Remote.GlobalID, err)
	}

	var reqBody ReorderRequest
	if mode == "before" {
		reqBody.MoveBeforeID = targetID
	} else {
		reqBody.MoveAfterID = targetID
	}

	path := "/projects/" + url.PathEscape(projectId) + "/issues/" + strconv.FormatInt(moved.Remote.IID, 10) + "/reorder"
	if _, err := c.do("PUT", path, reqBody); err != nil {
		return fmt.Errorf("reorder issue %s: %w", moved.ID, err)
	}
	return nil
}

func (c *GitLabClient) GetProjects() ([]models.Project, error) {
	body, err := c.do("GET", "/projects?membership=true&per_page=100", nil)
	if err != nil {
		return nil, fmt.Errorf("get projects: %w", err)
	}

	var glProjects []GitLabProject
	if err := json.Unmarshal(body, &glProjects); err != nil {
		return nil, fmt.Errorf("parse projects (gitlab): %w", err)
	}

	projects := make([]models.Project, len(glProjects))
	for i, p := range glProjects {
		projects[i] = models.Project{
			ID:   strconv.FormatInt(p.ID, 10),
			Name: p.Name,
			Path: p.PathWithNamespace,
		}
	}
	return projects, nil
}

func (c *GitLabClient) GetMilestones(projectId string) ([]models.Milestone, error) {
	body, err := c.do("GET", "/projects/"+url.PathEscape(projectId)+"/milestones?state=active", nil)
	if err != nil {
		return nil, fmt.Errorf("get milestones: %w", err)
	}

	var milestones []GitLabMilestone
	if err := json.Unmarshal(body, &milestones); err != nil {
		return nil, fmt.Errorf("parse milestones (gitlab): %w", err)
	}

	result := make([]models.Milestone, len(milestones))
	for i, m := range milestones {
		result[i] = models.Milestone{
			ID:    strconv.FormatInt(m.ID, 10),
			Title: m.Title,
			State: m.State,
		}
	}
	return result, nil
}
