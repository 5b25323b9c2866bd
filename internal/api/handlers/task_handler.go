package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/MartinBspheroid/gantt-sync/internal/models"
	"github.com/MartinBspheroid/gantt-sync/internal/schedule"
	"github.com/MartinBspheroid/gantt-sync/internal/service"
)

func parseDateField(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q", s)
	}
	utc := time.Date(t.Year(), t.Month(), t.Day(), 12, 0, 0, 0, time.UTC)
	return &utc, nil
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, service.ErrUnknownTask), errors.Is(err, service.ErrUnknownLink):
		return http.StatusNotFound
	case errors.Is(err, service.ErrInvertedSpan):
		return http.StatusBadRequest
	case errors.Is(err, schedule.ErrNoCompatibleSibling), errors.Is(err, schedule.ErrMilestoneMove):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

type CreateTaskRequestBody struct {
	ParentID string `json:"parent_id"`
	Kind     string `json:"kind"`
	Name     string `json:"name"`
	Start    string `json:"start"`
	End      string `json:"end"`
}

type UpdateTaskRequestBody struct {
	Name  *string `json:"name"`
	Start *string `json:"start"`
	End   *string `json:"end"`
}

type DragRequestBody struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

type CascadeRequestBody struct {
	OffsetDays int `json:"offset_days"`
}

type ReorderRequestBody struct {
	TargetID string `json:"target_id"`
	Mode     string `json:"mode"`
	Refresh  bool   `json:"refresh"`
}

type CreateLinkRequestBody struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Kind   string `json:"kind"`
}

type DeleteLinkRequestBody struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

type TaskHandler struct {
	syncService *service.SyncService
}

func NewTaskHandler(syncService *service.SyncService) *TaskHandler {
	return &TaskHandler{syncService: syncService}
}

func (h *TaskHandler) CreateTask(w http.ResponseWriter, r *http.Request) {
	projectId := r.PathValue("id")

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Error trying to read the body: "+err.Error())
		return
	}

	var reqBody CreateTaskRequestBody
	if err := json.Unmarshal(body, &reqBody); err != nil {
		writeError(w, http.StatusBadRequest, "JSON error: "+err.Error())
		return
	}

	start, err := parseDateField(reqBody.Start)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	end, err := parseDateField(reqBody.End)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	task := models.Task{
		ParentID: reqBody.ParentID,
		Kind:     models.TaskKind(reqBody.Kind),
		Name:     reqBody.Name,
		Start:    start,
		End:      end,
		Open:     true,
	}

	id, err := h.syncService.CreateTask(projectId, task)
	if err != nil {
		writeError(w, statusForError(err), "Error trying to create task: "+err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{"id": id})
}

func (h *TaskHandler) UpdateTask(w http.ResponseWriter, r *http.Request) {
	projectId := r.PathValue("id")
	taskId := r.PathValue("taskId")

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Error trying to read the body: "+err.Error())
		return
	}

	var reqBody UpdateTaskRequestBody
	if err := json.Unmarshal(body, &reqBody); err != nil {
		writeError(w, http.StatusBadRequest, "JSON error: "+err.Error())
		return
	}

	changes := service.TaskChanges{Name: reqBody.Name}
	if reqBody.Start != nil {
		changes.Start, err = parseDateField(*reqBody.Start)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	if reqBody.End != nil {
		changes.End, err = parseDateField(*reqBody.End)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	if err := h.syncService.UpdateTask(projectId, taskId, changes); err != nil {
		writeError(w, statusForError(err), "Error trying to update task: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (h *TaskHandler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	projectId := r.PathValue("id")
	taskId := r.PathValue("taskId")

	if err := h.syncService.DeleteTask(projectId, taskId); err != nil {
		writeError(w, statusForError(err), "Error trying to delete task: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *TaskHandler) DragTask(w http.ResponseWriter, r *http.Request) {
	projectId := r.PathValue("id")
	taskId := r.PathValue("taskId")

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Error trying to read the body: "+err.Error())
		return
	}

	var reqBody DragRequestBody
	if err := json.Unmarshal(body, &reqBody); err != nil {
		writeError(w, http.StatusBadRequest, "JSON error: "+err.Error())
		return
	}

	start, err := parseDateField(reqBody.Start)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	end, err := parseDateField(reqBody.End)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	task, err := h.syncService.ApplyDrag(projectId, taskId, start, end)
	if err != nil {
		writeError(w, statusForError(err), "Error trying to apply drag: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"task": task})
}

func (h *TaskHandler) CascadeMove(w http.ResponseWriter, r *http.Request) {
	projectId := r.PathValue("id")
	taskId := r.PathValue("taskId")

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Error trying to read the body: "+err.Error())
		return
	}

	var reqBody CascadeRequestBody
	if err := json.Unmarshal(body, &reqBody); err != nil {
		writeError(w, http.StatusBadRequest, "JSON error: "+err.Error())
		return
	}

	result, err := h.syncService.CascadeMove(projectId, taskId, reqBody.OffsetDays)
	if err != nil {
		writeError(w, statusForError(err), "Error trying to cascade move: "+err.Error())
		return
	}

	status := http.StatusOK
	if !result.AllOK() {
		status = http.StatusMultiStatus
	}
	writeJSON(w, status, map[string]any{"result": result})
}

func (h *TaskHandler) ReorderTask(w http.ResponseWriter, r *http.Request) {
	projectId := r.PathValue("id")
	taskId := r.PathValue("taskId")

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Error trying to read the body: "+err.Error())
		return
	}

	var reqBody ReorderRequestBody
	if err := json.Unmarshal(body, &reqBody); err != nil {
		writeError(w, http.StatusBadRequest, "JSON error: "+err.Error())
		return
	}

	mode := schedule.PlaceAfter
	if reqBody.Mode == string(schedule.PlaceBefore) {
		mode = schedule.PlaceBefore
	}

	resolved, err := h.syncService.Reorder(projectId, taskId, reqBody.TargetID, mode, reqBody.Refresh)
	if err != nil {
		writeError(w, statusForError(err), "Error trying to reorder task: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"moved_id":  resolved.MovedID,
		"target_id": resolved.TargetID,
		"mode":      resolved.Mode,
	})
}

func (h *TaskHandler) CreateLink(w http.ResponseWriter, r *http.Request) {
	projectId := r.PathValue("id")

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Error trying to read the body: "+err.Error())
		return
	}

	var reqBody CreateLinkRequestBody
	if err := json.Unmarshal(body, &reqBody); err != nil {
		writeError(w, http.StatusBadRequest, "JSON error: "+err.Error())
		return
	}

	link := models.Link{
		Source: reqBody.Source,
		Target: reqBody.Target,
		Kind:   models.LinkKind(reqBody.Kind),
	}

	created, err := h.syncService.CreateLink(projectId, link)
	if err != nil {
		writeError(w, statusForError(err), "Error trying to create link: "+err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{"link": created})
}

func (h *TaskHandler) DeleteLink(w http.ResponseWriter, r *http.Request) {
	projectId := r.PathValue("id")

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Error trying to read the body: "+err.Error())
		return
	}

	var reqBody DeleteLinkRequestBody
	if err := json.Unmarshal(body, &reqBody); err != nil {
		writeError(w, http.StatusBadRequest, "JSON error: "+err.Error())
		return
	}

	if err := h.syncService.DeleteLink(projectId, reqBody.Source, reqBody.Target); err != nil {
		writeError(w, statusForError(err), "Error trying to delete link: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
