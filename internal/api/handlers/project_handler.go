package handlers

import (
	"net/http"

	"github.com/MartinBspheroid/gantt-sync/internal/service"
)

type ProjectHandler struct {
	projectService *service.ProjectService
}

func NewProjectHandler(projectService *service.ProjectService) *ProjectHandler {
	return &ProjectHandler{projectService: projectService}
}

func (h *ProjectHandler) GetProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := h.projectService.GetProjects()
	if err != nil {
		writeError(w, http.StatusBadGateway, "Error trying to get projects: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"projects": projects})
}

func (h *ProjectHandler) GetMilestones(w http.ResponseWriter, r *http.Request) {
	projectId := r.PathValue("id")

	milestones, err := h.projectService.GetMilestones(projectId)
	if err != nil {
		writeError(w, http.StatusBadGateway, "Error trying to get milestones: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"milestones": milestones})
}
