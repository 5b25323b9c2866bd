package service

import (
	"github.com/MartinBspheroid/gantt-sync/internal/client"
	"github.com/MartinBspheroid/gantt-sync/internal/models"
)

// ProjectService backs the UI's project and milestone selectors.
type ProjectService struct {
	provider client.ProjectProvider
}

func NewProjectService(provider client.ProjectProvider) *ProjectService {
	return &ProjectService{provider: provider}
}

func (s *ProjectService) GetProjects() ([]models.Project, error) {
	return s.provider.GetProjects()
}

func (s *ProjectService) GetMilestones(projectId string) ([]models.Milestone, error) {
	return s.provider.GetMilestones(projectId)
}
