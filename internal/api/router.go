package api

import (
	"database/sql"
	"net/http"

	"github.com/MartinBspheroid/gantt-sync/internal/api/handlers"
	"github.com/MartinBspheroid/gantt-sync/internal/client/gitlab"
	"github.com/MartinBspheroid/gantt-sync/internal/repository"
	"github.com/MartinBspheroid/gantt-sync/internal/service"
)

func SetupRouter(db *sql.DB, gitlabBaseUrl, gitlabToken string) *http.ServeMux {
	mux := http.NewServeMux()

	gitlabClient := gitlab.NewGitLabClient(gitlabBaseUrl, gitlabToken)

	settingsRepo := repository.NewCalendarSettingsRepository(db)
	foldRepo := repository.NewFoldStateRepository(db)
	historyRepo := repository.NewSyncHistoryRepository(db)

	syncService := service.NewSyncService(gitlabClient, settingsRepo, foldRepo, historyRepo)
	projectService := service.NewProjectService(gitlabClient)

	ganttHandler := handlers.NewGanttHandler(syncService)
	taskHandler := handlers.NewTaskHandler(syncService)
	settingsHandler := handlers.NewSettingsHandler(syncService)
	projectHandler := handlers.NewProjectHandler(projectService)

	mux.HandleFunc("GET /projects", projectHandler.GetProjects)
	mux.HandleFunc("GET /projects/{id}/milestones", projectHandler.GetMilestones)

	mux.HandleFunc("GET /projects/{id}/gantt", ganttHandler.GetGantt)
	mux.HandleFunc("POST /projects/{id}/sync", ganttHandler.ForceSync)
	mux.HandleFunc("POST /projects/{id}/fold", ganttHandler.SaveFoldState)
	mux.HandleFunc("GET /projects/{id}/history", ganttHandler.GetHistory)

	mux.HandleFunc("GET /projects/{id}/calendar", settingsHandler.GetCalendar)
	mux.HandleFunc("PUT /projects/{id}/calendar", settingsHandler.SaveCalendar)

	mux.HandleFunc("POST /projects/{id}/tasks", taskHandler.CreateTask)
	mux.HandleFunc("PUT /projects/{id}/tasks/{taskId}", taskHandler.UpdateTask)
	mux.HandleFunc("DELETE /projects/{id}/tasks/{taskId}", taskHandler.DeleteTask)
	mux.HandleFunc("PUT /projects/{id}/tasks/{taskId}/drag", taskHandler.DragTask)
	mux.HandleFunc("POST /projects/{id}/tasks/{taskId}/cascade", taskHandler.CascadeMove)
	mux.HandleFunc("POST /projects/{id}/tasks/{taskId}/reorder", taskHandler.ReorderTask)

	mux.HandleFunc("POST /projects/{id}/links", taskHandler.CreateLink)
	mux.HandleFunc("DELETE /projects/{id}/links", taskHandler.DeleteLink)

	return mux
}
