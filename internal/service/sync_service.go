package service

import (
	"errors"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MartinBspheroid/gantt-sync/internal/client"
	"github.com/MartinBspheroid/gantt-sync/internal/models"
	"github.com/MartinBspheroid/gantt-sync/internal/repository"
	"github.com/MartinBspheroid/gantt-sync/internal/schedule"
)

var (
	ErrUnknownTask  = errors.New("unknown task")
	ErrUnknownLink  = errors.New("unknown link")
	ErrInvertedSpan = errors.New("end date before start date")
)

// SyncService owns the task/link collection per project and is its sole
// writer. Every mutation goes remote-first-or-rollback: a failed remote
// call is answered with a full resync, never a partial local rollback.
type SyncService struct {
	tracker      client.TrackerProvider
	settingsRepo *repository.CalendarSettingsRepository
	foldRepo     *repository.FoldStateRepository
	historyRepo  *repository.SyncHistoryRepository

	// Delay between the last child delete settling and the parent's own
	// remote delete call; the tracker rejects parent deletes that race
	// with still-propagating child deletes.
	graceDelay time.Duration

	mu       sync.Mutex
	projects map[string]*projectState
}

type projectState struct {
	tasks   []models.Task
	links   []models.Link
	cal     *schedule.Calendar
	drag    *schedule.DragReconciler
	open    map[string]bool
	loaded  bool
	loading bool
	lastErr error

	// In-flight delete operations keyed by task id; closed when settled.
	pendingDeletes map[string]chan struct{}
}

func NewSyncService(
	tracker client.TrackerProvider,
	settingsRepo *repository.CalendarSettingsRepository,
	foldRepo *repository.FoldStateRepository,
	historyRepo *repository.SyncHistoryRepository,
) *SyncService {
	return &SyncService{
		tracker:      tracker,
		settingsRepo: settingsRepo,
		foldRepo:     foldRepo,
		historyRepo:  historyRepo,
		graceDelay:   200 * time.Millisecond,
		projects:     make(map[string]*projectState),
	}
}

// state returns the per-project state, creating it on first use. Caller
// must hold s.mu.
func (s *SyncService) state(projectId string) *projectState {
	st, ok := s.projects[projectId]
	if !ok {
		st = &projectState{
			open:           make(map[string]bool),
			pendingDeletes: make(map[string]chan struct{}),
		}
		s.projects[projectId] = st
	}
	return st
}

// normalizeID maps numeric-looking ids to a canonical decimal form so fold
// state survives the remote's numeric ids meeting locally stringly ones.
func normalizeID(id string) string {
	if n, err := strconv.ParseInt(id, 10, 64); err == nil {
		return strconv.FormatInt(n, 10)
	}
	return id
}

func (s *SyncService) record(projectId, operation, taskID string, opErr error) {
	rec := &repository.SyncRecord{
		ProjectID: projectId,
		Operation: operation,
		TaskID:    taskID,
		Status:    "success",
	}
	if opErr != nil {
		rec.Status = "failed"
		rec.ErrorMessage = opErr.Error()
	}
	if err := s.historyRepo.Record(rec); err != nil {
		log.Printf("record sync history: %v", err)
	}
}

// ensureCalendar loads the project's calendar settings once. Caller must
// hold s.mu.
func (s *SyncService) ensureCalendar(projectId string, st *projectState) error {
	if st.cal != nil {
		return nil
	}
	settings, err := s.settingsRepo.Get(projectId)
	if err != nil {
		return fmt.Errorf("load calendar settings: %w", err)
	}
	st.cal = schedule.NewCalendar(settings.Holidays, settings.ExtraWorkdays)
	st.drag = schedule.NewDragReconciler(st.cal)
	return nil
}

// recomputeDerived refreshes every task's workday count and every parent's
// baseline envelope. Caller must hold s.mu.
func recomputeDerived(st *projectState) {
	for i := range st.tasks {
		st.tasks[i].Workdays = st.cal.WorkdaysBetween(st.tasks[i].Start, st.tasks[i].End)
	}

	type span struct {
		start, end *time.Time
	}
	envelope := make(map[string]*span)
	for _, t := range st.tasks {
		if t.ParentID == "" || !t.HasSpan() {
			continue
		}
		e, ok := envelope[t.ParentID]
		if !ok {
			e = &span{}
			envelope[t.ParentID] = e
		}
		if e.start == nil || t.Start.Before(*e.start) {
			e.start = t.Start
		}
		if e.end == nil || t.End.After(*e.end) {
			e.end = t.End
		}
	}
	for i := range st.tasks {
		if e, ok := envelope[st.tasks[i].ID]; ok {
			st.tasks[i].BaselineStart = e.start
			st.tasks[i].BaselineEnd = e.end
		}
	}
}

// Resync replaces the local collection with authoritative remote state.
// The fold state captured beforehand is reapplied afterwards so a
// background refresh never collapses the user's view.
func (s *SyncService) Resync(projectId string) error {
	s.mu.Lock()
	st := s.state(projectId)
	if err := s.ensureCalendar(projectId, st); err != nil {
		s.mu.Unlock()
		return err
	}

	open := make(map[string]bool, len(st.open))
	for id, v := range st.open {
		open[normalizeID(id)] = v
	}
	for _, t := range st.tasks {
		if _, ok := open[normalizeID(t.ID)]; !ok {
			open[normalizeID(t.ID)] = t.Open
		}
	}
	firstLoad := !st.loaded
	st.loading = true
	s.mu.Unlock()

	if firstLoad {
		persisted, err := s.foldRepo.Get(projectId)
		if err != nil {
			log.Printf("load fold state: %v", err)
		}
		for id, v := range persisted {
			open[normalizeID(id)] = v
		}
	}

	tasks, err := s.tracker.GetTasks(projectId)
	var links []models.Link
	if err == nil {
		links, err = s.tracker.GetLinks(projectId)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	st.loading = false
	if err != nil {
		st.lastErr = err
		s.record(projectId, "resync", "", err)
		return fmt.Errorf("resync project %s: %w", projectId, err)
	}

	for i := range tasks {
		if v, ok := open[normalizeID(tasks[i].ID)]; ok {
			tasks[i].Open = v
		}
	}

	st.tasks = tasks
	st.links = links
	st.open = open
	st.loaded = true
	st.lastErr = nil
	recomputeDerived(st)
	return nil
}

func (s *SyncService) ensureLoaded(projectId string) error {
	s.mu.Lock()
	loaded := s.state(projectId).loaded
	s.mu.Unlock()
	if loaded {
		return nil
	}
	return s.Resync(projectId)
}

// Gantt returns a snapshot of the project's tasks, links and sync state.
func (s *SyncService) Gantt(projectId string) ([]models.Task, []models.Link, models.SyncState, error) {
	if err := s.ensureLoaded(projectId); err != nil {
		return nil, nil, models.SyncState{LastError: err.Error()}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.state(projectId)

	tasks := make([]models.Task, len(st.tasks))
	copy(tasks, st.tasks)
	links := make([]models.Link, len(st.links))
	copy(links, st.links)

	state := models.SyncState{Loading: st.loading}
	if st.lastErr != nil {
		state.LastError = st.lastErr.Error()
	}
	return tasks, links, state, nil
}

// validSpan allows open-ended spans; a full span must not end before it
// starts.
func validSpan(start, end *time.Time) bool {
	return start == nil || end == nil || !end.Before(*start)
}

func (s *SyncService) findTask(st *projectState, taskID string) (int, bool) {
	for i := range st.tasks {
		if st.tasks[i].ID == taskID {
			return i, true
		}
	}
	return -1, false
}

// CreateTask inserts an optimistic placeholder under a temporary id, issues
// the remote create, and resyncs so the authoritative entry replaces the
// placeholder. A failed create removes the placeholder and surfaces the
// error.
func (s *SyncService) CreateTask(projectId string, task models.Task) (string, error) {
	if err := s.ensureLoaded(projectId); err != nil {
		return "", err
	}
	if !validSpan(task.Start, task.End) {
		return "", fmt.Errorf("create task: %w", ErrInvertedSpan)
	}

	if task.ID == "" {
		task.ID = "tmp-" + uuid.NewString()
	}
	tempID := task.ID

	s.mu.Lock()
	st := s.state(projectId)
	task.Workdays = st.cal.WorkdaysBetween(task.Start, task.End)
	st.tasks = append(st.tasks, task)
	s.mu.Unlock()

	created, err := s.tracker.CreateTask(projectId, task)
	s.record(projectId, "create_task", tempID, err)
	if err != nil {
		s.mu.Lock()
		if idx, ok := s.findTask(st, tempID); ok {
			st.tasks = append(st.tasks[:idx], st.tasks[idx+1:]...)
		}
		st.lastErr = err
		s.mu.Unlock()
		return "", fmt.Errorf("create task: %w", err)
	}

	if err := s.Resync(projectId); err != nil {
		return created.ID, err
	}

	// The resync is authoritative; a leftover placeholder means the remote
	// listing lagged behind the create, drop it either way.
	s.mu.Lock()
	if idx, ok := s.findTask(st, tempID); ok {
		st.tasks = append(st.tasks[:idx], st.tasks[idx+1:]...)
	}
	s.mu.Unlock()

	return created.ID, nil
}

// TaskChanges is a partial update; nil fields stay untouched.
type TaskChanges struct {
	Name  *string
	Start *time.Time
	End   *time.Time
}

// UpdateTask applies the change locally, persists it keyed by the task's
// remote id, and on failure discards the unconfirmed local change through a
// resync. No rollback buffer exists; the remote is the source of truth.
func (s *SyncService) UpdateTask(projectId, taskID string, changes TaskChanges) error {
	if err := s.ensureLoaded(projectId); err != nil {
		return err
	}

	s.mu.Lock()
	st := s.state(projectId)
	idx, ok := s.findTask(st, taskID)
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("update task %s: %w", taskID, ErrUnknownTask)
	}
	if !st.tasks[idx].Remote.Confirmed() {
		s.mu.Unlock()
		if err := s.Resync(projectId); err != nil {
			return err
		}
		return fmt.Errorf("update task %s: not yet confirmed remotely", taskID)
	}

	start, end := st.tasks[idx].Start, st.tasks[idx].End
	if changes.Start != nil {
		start = changes.Start
	}
	if changes.End != nil {
		end = changes.End
	}
	if !validSpan(start, end) {
		s.mu.Unlock()
		return fmt.Errorf("update task %s: %w", taskID, ErrInvertedSpan)
	}

	if changes.Name != nil {
		st.tasks[idx].Name = *changes.Name
	}
	if changes.Start != nil {
		st.tasks[idx].Start = changes.Start
	}
	if changes.End != nil {
		st.tasks[idx].End = changes.End
	}
	recomputeDerived(st)
	updated := st.tasks[idx]
	s.mu.Unlock()

	err := s.tracker.UpdateTask(projectId, updated)
	s.record(projectId, "update_task", taskID, err)
	if err != nil {
		if rerr := s.Resync(projectId); rerr != nil {
			log.Printf("resync after failed update: %v", rerr)
		}
		return fmt.Errorf("update task %s: %w", taskID, err)
	}
	return nil
}

// ApplyDrag runs the two-phase workday preservation protocol for one drag
// gesture and persists exactly one update: the corrected one when the naive
// end date lost workdays to weekends or holidays, the raw one otherwise.
func (s *SyncService) ApplyDrag(projectId, taskID string, newStart, newEnd *time.Time) (models.Task, error) {
	if err := s.ensureLoaded(projectId); err != nil {
		return models.Task{}, err
	}

	s.mu.Lock()
	st := s.state(projectId)
	idx, ok := s.findTask(st, taskID)
	if !ok {
		s.mu.Unlock()
		return models.Task{}, fmt.Errorf("drag task %s: %w", taskID, ErrUnknownTask)
	}
	task := st.tasks[idx]
	if !task.Remote.Confirmed() {
		s.mu.Unlock()
		if err := s.Resync(projectId); err != nil {
			return models.Task{}, err
		}
		return models.Task{}, fmt.Errorf("drag task %s: not yet confirmed remotely", taskID)
	}
	if !validSpan(newStart, newEnd) {
		s.mu.Unlock()
		return models.Task{}, fmt.Errorf("drag task %s: %w", taskID, ErrInvertedSpan)
	}

	st.drag.Capture(taskID, task.Start, task.End)
	out := st.drag.Observe(schedule.DragUpdate{TaskID: taskID, Start: newStart, End: newEnd})

	finalEnd := newEnd
	switch out.Action {
	case schedule.DragSuppress:
		s.mu.Unlock()
		return task, nil
	case schedule.DragCorrect:
		corrected := out.CorrectedEnd
		finalEnd = &corrected
		st.drag.Observe(schedule.DragUpdate{
			TaskID:     taskID,
			Start:      newStart,
			End:        finalEnd,
			Correction: true,
		})
	}

	st.tasks[idx].Start = newStart
	st.tasks[idx].End = finalEnd
	recomputeDerived(st)
	updated := st.tasks[idx]
	s.mu.Unlock()

	err := s.tracker.UpdateTask(projectId, updated)
	s.record(projectId, "drag_task", taskID, err)
	if err != nil {
		if rerr := s.Resync(projectId); rerr != nil {
			log.Printf("resync after failed drag: %v", rerr)
		}
		return models.Task{}, fmt.Errorf("drag task %s: %w", taskID, err)
	}
	return updated, nil
}

// CascadeMove shifts a parent by offsetDays and recomputes all descendants
// off an immutable snapshot. The planned spans are applied locally as one
// unit; each one is persisted independently and failures are reported per
// task, followed by a resync instead of a rollback.
func (s *SyncService) CascadeMove(projectId, taskID string, offsetDays int) (models.BatchResult, error) {
	if err := s.ensureLoaded(projectId); err != nil {
		return models.BatchResult{}, err
	}

	s.mu.Lock()
	st := s.state(projectId)
	snap := schedule.Snapshot{
		Tasks: append([]models.Task(nil), st.tasks...),
		Links: append([]models.Link(nil), st.links...),
	}
	changes, err := schedule.PlanCascade(snap, st.cal, taskID, offsetDays)
	if err != nil {
		s.mu.Unlock()
		return models.BatchResult{}, err
	}

	updated := make([]models.Task, 0, len(changes))
	for _, ch := range changes {
		idx, ok := s.findTask(st, ch.TaskID)
		if !ok {
			continue
		}
		start, end := ch.Start, ch.End
		st.tasks[idx].Start = &start
		st.tasks[idx].End = &end
		updated = append(updated, st.tasks[idx])
	}
	recomputeDerived(st)
	s.mu.Unlock()

	var result models.BatchResult
	for _, task := range updated {
		if !task.Remote.Confirmed() {
			err := errors.New("not yet confirmed remotely")
			s.record(projectId, "cascade_move", task.ID, err)
			result.Failed = append(result.Failed, models.BatchFailure{ID: task.ID, Error: err.Error()})
			continue
		}
		err := s.tracker.UpdateTask(projectId, task)
		s.record(projectId, "cascade_move", task.ID, err)
		if err != nil {
			result.Failed = append(result.Failed, models.BatchFailure{ID: task.ID, Error: err.Error()})
			continue
		}
		result.Success = append(result.Success, task.ID)
	}

	if !result.AllOK() {
		if rerr := s.Resync(projectId); rerr != nil {
			log.Printf("resync after failed cascade: %v", rerr)
		}
	}
	return result, nil
}

// DeleteTask removes a task remotely and locally. A milestone waits for all
// in-flight deletes of its own children to settle, then a grace delay, so
// the tracker never sees a parent delete racing its children.
func (s *SyncService) DeleteTask(projectId, taskID string) error {
	if err := s.ensureLoaded(projectId); err != nil {
		return err
	}

	s.mu.Lock()
	st := s.state(projectId)
	idx, ok := s.findTask(st, taskID)
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("delete task %s: %w", taskID, ErrUnknownTask)
	}
	task := st.tasks[idx]

	done := make(chan struct{})
	st.pendingDeletes[taskID] = done
	settled := false
	settle := func() {
		if settled {
			return
		}
		settled = true
		delete(st.pendingDeletes, taskID)
		close(done)
	}

	var waiters []chan struct{}
	if task.Kind == models.KindMilestone {
		for _, t := range st.tasks {
			if t.ParentID != taskID {
				continue
			}
			if ch, ok := st.pendingDeletes[t.ID]; ok {
				waiters = append(waiters, ch)
			}
		}
	}
	s.mu.Unlock()

	if task.Kind == models.KindMilestone {
		for _, ch := range waiters {
			<-ch
		}
		time.Sleep(s.graceDelay)
	}

	if !task.Remote.Confirmed() {
		s.mu.Lock()
		if idx, ok := s.findTask(st, taskID); ok {
			st.tasks = append(st.tasks[:idx], st.tasks[idx+1:]...)
		}
		settle()
		s.mu.Unlock()
		return nil
	}

	err := s.tracker.DeleteTask(projectId, task)
	s.record(projectId, "delete_task", taskID, err)

	s.mu.Lock()
	settle()
	if err != nil {
		st.lastErr = err
		s.mu.Unlock()
		if rerr := s.Resync(projectId); rerr != nil {
			log.Printf("resync after failed delete: %v", rerr)
		}
		return fmt.Errorf("delete task %s: %w", taskID, err)
	}

	if idx, ok := s.findTask(st, taskID); ok {
		st.tasks = append(st.tasks[:idx], st.tasks[idx+1:]...)
	}
	kept := st.links[:0]
	for _, l := range st.links {
		if l.Source != taskID && l.Target != taskID {
			kept = append(kept, l)
		}
	}
	st.links = kept
	recomputeDerived(st)
	s.mu.Unlock()
	return nil
}

// CreateLink validates both endpoints, appends an optimistic entry and
// persists it. The remote-assigned link id replaces the temporary one on
// success.
func (s *SyncService) CreateLink(projectId string, link models.Link) (models.Link, error) {
	if err := s.ensureLoaded(projectId); err != nil {
		return models.Link{}, err
	}

	s.mu.Lock()
	st := s.state(projectId)
	srcIdx, srcOK := s.findTask(st, link.Source)
	dstIdx, dstOK := s.findTask(st, link.Target)
	if !srcOK || !dstOK {
		s.mu.Unlock()
		return models.Link{}, fmt.Errorf("create link %s->%s: %w", link.Source, link.Target, ErrUnknownTask)
	}
	if link.ID == "" {
		link.ID = "tmp-" + uuid.NewString()
	}
	source, target := st.tasks[srcIdx], st.tasks[dstIdx]
	st.links = append(st.links, link)
	s.mu.Unlock()

	created, err := s.tracker.CreateLink(projectId, source, target, link)
	s.record(projectId, "create_link", link.ID, err)
	if err != nil {
		s.mu.Lock()
		kept := st.links[:0]
		for _, l := range st.links {
			if l.ID != link.ID {
				kept = append(kept, l)
			}
		}
		st.links = kept
		s.mu.Unlock()
		if rerr := s.Resync(projectId); rerr != nil {
			log.Printf("resync after failed link create: %v", rerr)
		}
		return models.Link{}, fmt.Errorf("create link: %w", err)
	}

	s.mu.Lock()
	for i := range st.links {
		if st.links[i].ID == link.ID {
			st.links[i] = *created
			break
		}
	}
	s.mu.Unlock()
	return *created, nil
}

// DeleteLink matches the link by its (source, target) pair. A link that was
// never confirmed remotely cannot be deleted remotely; the collection is
// resynced instead.
func (s *SyncService) DeleteLink(projectId, sourceID, targetID string) error {
	if err := s.ensureLoaded(projectId); err != nil {
		return err
	}

	s.mu.Lock()
	st := s.state(projectId)
	var link *models.Link
	for i := range st.links {
		if st.links[i].Source == sourceID && st.links[i].Target == targetID {
			link = &st.links[i]
			break
		}
	}
	if link == nil {
		s.mu.Unlock()
		return fmt.Errorf("delete link %s->%s: %w", sourceID, targetID, ErrUnknownLink)
	}
	if !link.Remote.Confirmed() {
		s.mu.Unlock()
		s.record(projectId, "delete_link", sourceID+"->"+targetID, errors.New("link not confirmed remotely"))
		return s.Resync(projectId)
	}
	srcIdx, srcOK := s.findTask(st, sourceID)
	dstIdx, dstOK := s.findTask(st, targetID)
	if !srcOK || !dstOK {
		s.mu.Unlock()
		return fmt.Errorf("delete link %s->%s: %w", sourceID, targetID, ErrUnknownTask)
	}
	source, target := st.tasks[srcIdx], st.tasks[dstIdx]
	s.mu.Unlock()

	err := s.tracker.DeleteLink(projectId, source, target)
	s.record(projectId, "delete_link", sourceID+"->"+targetID, err)
	if err != nil {
		if rerr := s.Resync(projectId); rerr != nil {
			log.Printf("resync after failed link delete: %v", rerr)
		}
		return fmt.Errorf("delete link: %w", err)
	}

	s.mu.Lock()
	kept := st.links[:0]
	for _, l := range st.links {
		if !(l.Source == sourceID && l.Target == targetID) {
			kept = append(kept, l)
		}
	}
	st.links = kept
	s.mu.Unlock()
	return nil
}

// Reorder resolves the drop gesture to a type-compatible target and issues
// exactly one remote relative-position call. With refresh false the local
// order is left alone until the next resync (the host view avoids the
// flicker of an immediate reload).
func (s *SyncService) Reorder(projectId, movedID, targetID string, mode schedule.Placement, refresh bool) (schedule.ReorderTarget, error) {
	if err := s.ensureLoaded(projectId); err != nil {
		return schedule.ReorderTarget{}, err
	}

	s.mu.Lock()
	st := s.state(projectId)
	resolved, err := schedule.ResolveReorder(st.tasks, movedID, targetID, mode)
	if err != nil {
		s.mu.Unlock()
		s.record(projectId, "reorder", movedID, err)
		return schedule.ReorderTarget{}, err
	}
	movedIdx, movedOK := s.findTask(st, resolved.MovedID)
	targetIdx, targetOK := s.findTask(st, resolved.TargetID)
	if !movedOK || !targetOK {
		s.mu.Unlock()
		return schedule.ReorderTarget{}, fmt.Errorf("reorder %s: %w", movedID, ErrUnknownTask)
	}
	moved, target := st.tasks[movedIdx], st.tasks[targetIdx]
	s.mu.Unlock()

	err = s.tracker.ReorderTask(projectId, moved, target, string(resolved.Mode))
	s.record(projectId, "reorder", movedID, err)
	if err != nil {
		if rerr := s.Resync(projectId); rerr != nil {
			log.Printf("resync after failed reorder: %v", rerr)
		}
		return schedule.ReorderTarget{}, fmt.Errorf("reorder %s: %w", movedID, err)
	}

	if refresh {
		if rerr := s.Resync(projectId); rerr != nil {
			log.Printf("resync after reorder: %v", rerr)
		}
	}
	return resolved, nil
}

// SetFoldState records which parents are expanded, both in memory and
// persistently.
func (s *SyncService) SetFoldState(projectId string, open map[string]bool) error {
	s.mu.Lock()
	st := s.state(projectId)
	for id, v := range open {
		st.open[normalizeID(id)] = v
	}
	for i := range st.tasks {
		if v, ok := st.open[normalizeID(st.tasks[i].ID)]; ok {
			st.tasks[i].Open = v
		}
	}
	snapshot := make(map[string]bool, len(st.open))
	for id, v := range st.open {
		snapshot[id] = v
	}
	s.mu.Unlock()

	return s.foldRepo.Save(projectId, snapshot)
}

func (s *SyncService) History(projectId string, limit int) ([]repository.SyncRecord, error) {
	return s.historyRepo.ListByProject(projectId, limit)
}

func (s *SyncService) CalendarSettings(projectId string) (models.CalendarSettings, error) {
	return s.settingsRepo.Get(projectId)
}

// SaveCalendarSettings persists the new holiday/extra-workday sets and
// rebuilds the project's calendar and derived workday counts.
func (s *SyncService) SaveCalendarSettings(settings models.CalendarSettings) error {
	if err := s.settingsRepo.Save(settings); err != nil {
		return fmt.Errorf("save calendar settings: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.state(settings.ProjectID)
	st.cal = schedule.NewCalendar(settings.Holidays, settings.ExtraWorkdays)
	st.drag = schedule.NewDragReconciler(st.cal)
	if st.loaded {
		recomputeDerived(st)
	}
	return nil
}
