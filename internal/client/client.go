package client

import "github.com/MartinBspheroid/gantt-sync/internal/models"

type TaskSource interface {
	GetTasks(projectId string) ([]models.Task, error)
	GetLinks(projectId string) ([]models.Link, error)
}

type TaskWriter interface {
	CreateTask(projectId string, task models.Task) (*models.Task, error)
	UpdateTask(projectId string, task models.Task) error
	DeleteTask(projectId string, task models.Task) error
}

// LinkWriter persists dependency links. Deletion is matched remotely by the
// (source, target) pair, so both endpoint tasks travel with the call.
type LinkWriter interface {
	CreateLink(projectId string, source, target models.Task, link models.Link) (*models.Link, error)
	DeleteLink(projectId string, source, target models.Task) error
}

type Reorderer interface {
	ReorderTask(projectId string, moved, target models.Task, mode string) error
}

type ProjectProvider interface {
	GetProjects() ([]models.Project, error)
	GetMilestones(projectId string) ([]models.Milestone, error)
}

type TrackerProvider interface {
	TaskSource
	TaskWriter
	LinkWriter
	Reorderer
}
