package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/MartinBspheroid/gantt-sync/internal/service"
)

type GanttHandler struct {
	syncService *service.SyncService
}

func NewGanttHandler(syncService *service.SyncService) *GanttHandler {
	return &GanttHandler{syncService: syncService}
}

func (h *GanttHandler) GetGantt(w http.ResponseWriter, r *http.Request) {
	projectId := r.PathValue("id")

	tasks, links, state, err := h.syncService.Gantt(projectId)
	if err != nil {
		writeError(w, http.StatusBadGateway, "Error trying to load gantt: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"tasks": tasks,
		"links": links,
		"state": state,
	})
}

func (h *GanttHandler) ForceSync(w http.ResponseWriter, r *http.Request) {
	projectId := r.PathValue("id")

	if err := h.syncService.Resync(projectId); err != nil {
		writeError(w, http.StatusBadGateway, "Error trying to resync: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "synced"})
}

func (h *GanttHandler) SaveFoldState(w http.ResponseWriter, r *http.Request) {
	projectId := r.PathValue("id")

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Error trying to read the body: "+err.Error())
		return
	}

	var open map[string]bool
	if err := json.Unmarshal(body, &open); err != nil {
		writeError(w, http.StatusBadRequest, "JSON error: "+err.Error())
		return
	}

	if err := h.syncService.SetFoldState(projectId, open); err != nil {
		writeError(w, http.StatusInternalServerError, "Error trying to save fold state: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "saved"})
}

func (h *GanttHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	projectId := r.PathValue("id")

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	records, err := h.syncService.History(projectId, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Error trying to get history: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"history": records})
}
