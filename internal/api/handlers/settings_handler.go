package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/MartinBspheroid/gantt-sync/internal/models"
	"github.com/MartinBspheroid/gantt-sync/internal/service"
)

type SettingsHandler struct {
	syncService *service.SyncService
}

func NewSettingsHandler(syncService *service.SyncService) *SettingsHandler {
	return &SettingsHandler{syncService: syncService}
}

func (h *SettingsHandler) GetCalendar(w http.ResponseWriter, r *http.Request) {
	projectId := r.PathValue("id")

	settings, err := h.syncService.CalendarSettings(projectId)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Error trying to get calendar settings: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"calendar": settings})
}

func (h *SettingsHandler) SaveCalendar(w http.ResponseWriter, r *http.Request) {
	projectId := r.PathValue("id")

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Error trying to read the body: "+err.Error())
		return
	}

	var settings models.CalendarSettings
	if err := json.Unmarshal(body, &settings); err != nil {
		writeError(w, http.StatusBadRequest, "JSON error: "+err.Error())
		return
	}
	settings.ProjectID = projectId

	if err := h.syncService.SaveCalendarSettings(settings); err != nil {
		writeError(w, http.StatusInternalServerError, "Error trying to save calendar settings: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "saved"})
}
