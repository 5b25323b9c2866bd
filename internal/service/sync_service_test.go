package service

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/MartinBspheroid/gantt-sync/internal/models"
	"github.com/MartinBspheroid/gantt-sync/internal/repository"
	"github.com/MartinBspheroid/gantt-sync/internal/schedule"
)

type fakeTracker struct {
	mu           sync.Mutex
	tasks        []models.Task
	links        []models.Link
	getTaskCalls int
	updates      []models.Task
	deleted      []string
	linkDeletes  []string
	linkCreates  []models.Link
	reorders     []string

	failCreate  bool
	failUpdate  bool
	failDelete  bool
	failReorder bool
	failLink    bool

	// When set for a task id, DeleteTask blocks until the channel closes.
	deleteGates map[string]chan struct{}
}

func (f *fakeTracker) GetTasks(projectId string) ([]models.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getTaskCalls++
	return append([]models.Task(nil), f.tasks...), nil
}

func (f *fakeTracker) GetLinks(projectId string) ([]models.Link, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Link(nil), f.links...), nil
}

func (f *fakeTracker) CreateTask(projectId string, task models.Task) (*models.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCreate {
		return nil, errors.New("remote rejected create")
	}
	created := task
	created.ID = fmt.Sprintf("%d", 100+len(f.tasks))
	created.Remote = models.RemoteRef{IID: int64(100 + len(f.tasks)), GlobalID: created.ID, Type: "issue"}
	f.tasks = append(f.tasks, created)
	return &created, nil
}

func (f *fakeTracker) UpdateTask(projectId string, task models.Task) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failUpdate {
		return errors.New("remote rejected update")
	}
	f.updates = append(f.updates, task)
	for i := range f.tasks {
		if f.tasks[i].ID == task.ID {
			f.tasks[i] = task
		}
	}
	return nil
}

func (f *fakeTracker) DeleteTask(projectId string, task models.Task) error {
	f.mu.Lock()
	gate := f.deleteGates[task.ID]
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failDelete {
		return errors.New("remote rejected delete")
	}
	f.deleted = append(f.deleted, task.ID)
	kept := f.tasks[:0]
	for _, t := range f.tasks {
		if t.ID != task.ID {
			kept = append(kept, t)
		}
	}
	f.tasks = kept
	return nil
}

func (f *fakeTracker) CreateLink(projectId string, source, target models.Task, link models.Link) (*models.Link, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failLink {
		return nil, errors.New("remote rejected link")
	}
	created := link
	created.ID = fmt.Sprintf("%d", 500+len(f.links))
	created.Remote = models.RemoteRef{IID: int64(500 + len(f.links)), GlobalID: created.ID, Type: "issue_link"}
	f.links = append(f.links, created)
	f.linkCreates = append(f.linkCreates, created)
	return &created, nil
}

func (f *fakeTracker) DeleteLink(projectId string, source, target models.Task) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failLink {
		return errors.New("remote rejected link delete")
	}
	f.linkDeletes = append(f.linkDeletes, source.ID+"->"+target.ID)
	return nil
}

func (f *fakeTracker) ReorderTask(projectId string, moved, target models.Task, mode string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failReorder {
		return errors.New("remote rejected reorder")
	}
	f.reorders = append(f.reorders, moved.ID+" "+mode+" "+target.ID)
	return nil
}

func noonDate(s string) *time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	utc := time.Date(t.Year(), t.Month(), t.Day(), 12, 0, 0, 0, time.UTC)
	return &utc
}

func remoteTask(id string, iid int64, kind models.TaskKind, parent, start, end string) models.Task {
	t := models.Task{
		ID:       id,
		ParentID: parent,
		Kind:     kind,
		Name:     "task " + id,
		Remote:   models.RemoteRef{IID: iid, GlobalID: id, Type: string(kind)},
		Open:     true,
	}
	if start != "" {
		t.Start = noonDate(start)
		t.End = noonDate(end)
	}
	return t
}

func newTestService(t *testing.T, tracker *fakeTracker) *SyncService {
	t.Helper()
	db, err := repository.InitDB(filepath.Join(t.TempDir(), "gantt_test.db"))
	if err != nil {
		t.Fatalf("init db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	svc := NewSyncService(
		tracker,
		repository.NewCalendarSettingsRepository(db),
		repository.NewFoldStateRepository(db),
		repository.NewSyncHistoryRepository(db),
	)
	svc.graceDelay = time.Millisecond
	return svc
}

func TestGanttLoadsAndDerivesWorkdays(t *testing.T) {
	tracker := &fakeTracker{
		tasks: []models.Task{
			remoteTask("1", 1, models.KindIssue, "", "2025-01-06", "2025-01-10"),
		},
	}
	svc := newTestService(t, tracker)

	tasks, _, state, err := svc.Gantt("p1")
	require.NoError(t, err)
	require.False(t, state.Loading)
	require.Empty(t, state.LastError)
	require.Len(t, tasks, 1)
	require.Equal(t, 5, tasks[0].Workdays)
}

func TestResyncRecomputesBaselines(t *testing.T) {
	tracker := &fakeTracker{
		tasks: []models.Task{
			remoteTask("milestone-1", 1, models.KindMilestone, "", "", ""),
			remoteTask("1", 1, models.KindIssue, "milestone-1", "2025-01-06", "2025-01-08"),
			remoteTask("2", 2, models.KindIssue, "milestone-1", "2025-01-09", "2025-01-14"),
		},
	}
	svc := newTestService(t, tracker)

	tasks, _, _, err := svc.Gantt("p1")
	require.NoError(t, err)

	var parent models.Task
	for _, task := range tasks {
		if task.ID == "milestone-1" {
			parent = task
		}
	}
	require.NotNil(t, parent.BaselineStart)
	require.NotNil(t, parent.BaselineEnd)
	require.Equal(t, "2025-01-06", parent.BaselineStart.Format("2006-01-02"))
	require.Equal(t, "2025-01-14", parent.BaselineEnd.Format("2006-01-02"))
}

func TestCreateTaskSuccessResyncs(t *testing.T) {
	tracker := &fakeTracker{}
	svc := newTestService(t, tracker)

	id, err := svc.CreateTask("p1", models.Task{
		Kind:  models.KindIssue,
		Name:  "new work",
		Start: noonDate("2025-01-06"),
		End:   noonDate("2025-01-08"),
	})
	require.NoError(t, err)
	require.Equal(t, "100", id)

	tasks, _, _, err := svc.Gantt("p1")
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	require.Equal(t, "100", tasks[0].ID)
	for _, task := range tasks {
		require.False(t, strings.HasPrefix(task.ID, "tmp-"))
	}
}

func TestCreateTaskFailureRemovesPlaceholder(t *testing.T) {
	tracker := &fakeTracker{failCreate: true}
	svc := newTestService(t, tracker)

	_, err := svc.CreateTask("p1", models.Task{Kind: models.KindIssue, Name: "doomed"})
	require.Error(t, err)

	tasks, _, _, err := svc.Gantt("p1")
	require.NoError(t, err)
	require.Empty(t, tasks)
}

func TestCreateTaskRejectsInvertedSpan(t *testing.T) {
	tracker := &fakeTracker{}
	svc := newTestService(t, tracker)

	_, err := svc.CreateTask("p1", models.Task{
		Kind:  models.KindIssue,
		Name:  "backwards",
		Start: noonDate("2025-01-10"),
		End:   noonDate("2025-01-05"),
	})
	require.ErrorIs(t, err, ErrInvertedSpan)

	tasks, _, _, err := svc.Gantt("p1")
	require.NoError(t, err)
	require.Empty(t, tasks)
}

func TestUpdateTaskRejectsInvertedSpan(t *testing.T) {
	tracker := &fakeTracker{
		tasks: []models.Task{
			remoteTask("1", 1, models.KindIssue, "", "2025-01-06", "2025-01-10"),
		},
	}
	svc := newTestService(t, tracker)
	_, _, _, err := svc.Gantt("p1")
	require.NoError(t, err)

	// The new end alone inverts the span against the kept start.
	err = svc.UpdateTask("p1", "1", TaskChanges{End: noonDate("2025-01-02")})
	require.ErrorIs(t, err, ErrInvertedSpan)

	tracker.mu.Lock()
	require.Empty(t, tracker.updates)
	tracker.mu.Unlock()

	tasks, _, _, err := svc.Gantt("p1")
	require.NoError(t, err)
	require.Equal(t, "2025-01-10", tasks[0].End.Format("2006-01-02"))
}

func TestDragRejectsInvertedSpan(t *testing.T) {
	tracker := &fakeTracker{
		tasks: []models.Task{
			remoteTask("1", 1, models.KindIssue, "", "2025-01-06", "2025-01-10"),
		},
	}
	svc := newTestService(t, tracker)
	_, _, _, err := svc.Gantt("p1")
	require.NoError(t, err)

	_, err = svc.ApplyDrag("p1", "1", noonDate("2025-01-10"), noonDate("2025-01-05"))
	require.ErrorIs(t, err, ErrInvertedSpan)

	tracker.mu.Lock()
	defer tracker.mu.Unlock()
	require.Empty(t, tracker.updates)
}

func TestUpdateTaskFailureResyncsToRemoteState(t *testing.T) {
	tracker := &fakeTracker{
		tasks: []models.Task{
			remoteTask("1", 1, models.KindIssue, "", "2025-01-06", "2025-01-10"),
		},
	}
	svc := newTestService(t, tracker)
	_, _, _, err := svc.Gantt("p1")
	require.NoError(t, err)

	tracker.mu.Lock()
	tracker.failUpdate = true
	callsBefore := tracker.getTaskCalls
	tracker.mu.Unlock()

	name := "renamed"
	err = svc.UpdateTask("p1", "1", TaskChanges{Name: &name})
	require.Error(t, err)

	tracker.mu.Lock()
	require.Greater(t, tracker.getTaskCalls, callsBefore)
	tracker.mu.Unlock()

	// The unconfirmed local change was discarded by the resync.
	tasks, _, _, err := svc.Gantt("p1")
	require.NoError(t, err)
	require.Equal(t, "task 1", tasks[0].Name)
}

func TestDragPersistsExactlyOneCorrectedUpdate(t *testing.T) {
	tracker := &fakeTracker{
		tasks: []models.Task{
			remoteTask("1", 1, models.KindIssue, "", "2024-12-30", "2025-01-03"),
		},
	}
	svc := newTestService(t, tracker)
	require.NoError(t, svc.SaveCalendarSettings(models.CalendarSettings{
		ProjectID: "p1",
		Holidays:  []string{"2025-01-01"},
	}))

	_, _, _, err := svc.Gantt("p1")
	require.NoError(t, err)

	// The widget shifts the 4-workday span to Monday and keeps the raw
	// calendar length, landing the naive end on 01-10.
	updated, err := svc.ApplyDrag("p1", "1", noonDate("2025-01-06"), noonDate("2025-01-10"))
	require.NoError(t, err)
	require.Equal(t, "2025-01-09", updated.End.Format("2006-01-02"))
	require.Equal(t, 4, updated.Workdays)

	tracker.mu.Lock()
	defer tracker.mu.Unlock()
	require.Len(t, tracker.updates, 1)
	require.Equal(t, "2025-01-09", tracker.updates[0].End.Format("2006-01-02"))
}

func TestDragWithoutSpanForwardsAsIs(t *testing.T) {
	task := remoteTask("1", 1, models.KindIssue, "", "", "")
	task.End = noonDate("2025-01-10")
	tracker := &fakeTracker{tasks: []models.Task{task}}
	svc := newTestService(t, tracker)
	_, _, _, err := svc.Gantt("p1")
	require.NoError(t, err)

	updated, err := svc.ApplyDrag("p1", "1", noonDate("2025-01-06"), noonDate("2025-01-08"))
	require.NoError(t, err)
	require.Equal(t, "2025-01-08", updated.End.Format("2006-01-02"))

	tracker.mu.Lock()
	defer tracker.mu.Unlock()
	require.Len(t, tracker.updates, 1)
}

func TestDragUnconfirmedTaskResyncs(t *testing.T) {
	tracker := &fakeTracker{}
	svc := newTestService(t, tracker)
	_, _, _, err := svc.Gantt("p1")
	require.NoError(t, err)

	// A placeholder whose remote create is still in flight.
	svc.mu.Lock()
	st := svc.state("p1")
	st.tasks = append(st.tasks, models.Task{
		ID: "tmp-x", Kind: models.KindIssue,
		Start: noonDate("2025-01-06"), End: noonDate("2025-01-08"),
	})
	svc.mu.Unlock()

	tracker.mu.Lock()
	callsBefore := tracker.getTaskCalls
	tracker.mu.Unlock()

	_, err = svc.ApplyDrag("p1", "tmp-x", noonDate("2025-01-07"), noonDate("2025-01-09"))
	require.Error(t, err)

	tracker.mu.Lock()
	defer tracker.mu.Unlock()
	require.Empty(t, tracker.updates)
	require.Greater(t, tracker.getTaskCalls, callsBefore)
}

func TestCascadeMovePersistsEachMember(t *testing.T) {
	tracker := &fakeTracker{
		tasks: []models.Task{
			remoteTask("milestone-1", 1, models.KindMilestone, "", "2025-03-03", "2025-03-14"),
			remoteTask("1", 1, models.KindIssue, "milestone-1", "2025-03-03", "2025-03-05"),
			remoteTask("2", 2, models.KindIssue, "milestone-1", "2025-03-10", "2025-03-12"),
		},
	}
	svc := newTestService(t, tracker)
	_, _, _, err := svc.Gantt("p1")
	require.NoError(t, err)

	result, err := svc.CascadeMove("p1", "milestone-1", 7)
	require.NoError(t, err)
	require.True(t, result.AllOK())
	require.Len(t, result.Success, 3)

	tracker.mu.Lock()
	defer tracker.mu.Unlock()
	require.Len(t, tracker.updates, 3)
}

func TestCascadeMoveFailureReportsPerTaskAndResyncs(t *testing.T) {
	tracker := &fakeTracker{
		tasks: []models.Task{
			remoteTask("milestone-1", 1, models.KindMilestone, "", "2025-03-03", "2025-03-14"),
			remoteTask("1", 1, models.KindIssue, "milestone-1", "2025-03-03", "2025-03-05"),
		},
	}
	svc := newTestService(t, tracker)
	_, _, _, err := svc.Gantt("p1")
	require.NoError(t, err)

	tracker.mu.Lock()
	tracker.failUpdate = true
	callsBefore := tracker.getTaskCalls
	tracker.mu.Unlock()

	result, err := svc.CascadeMove("p1", "milestone-1", 7)
	require.NoError(t, err)
	require.Len(t, result.Failed, 2)
	for _, f := range result.Failed {
		require.NotEmpty(t, f.Error)
	}

	tracker.mu.Lock()
	require.Greater(t, tracker.getTaskCalls, callsBefore)
	tracker.mu.Unlock()
}

func TestCascadeSkipsUnconfirmedMembers(t *testing.T) {
	tracker := &fakeTracker{
		tasks: []models.Task{
			remoteTask("milestone-1", 1, models.KindMilestone, "", "2025-03-03", "2025-03-07"),
		},
	}
	svc := newTestService(t, tracker)
	_, _, _, err := svc.Gantt("p1")
	require.NoError(t, err)

	svc.mu.Lock()
	st := svc.state("p1")
	st.tasks = append(st.tasks, models.Task{
		ID: "tmp-y", ParentID: "milestone-1", Kind: models.KindIssue,
		Start: noonDate("2025-03-03"), End: noonDate("2025-03-05"),
	})
	svc.mu.Unlock()

	result, err := svc.CascadeMove("p1", "milestone-1", 7)
	require.NoError(t, err)
	require.Equal(t, []string{"milestone-1"}, result.Success)
	require.Len(t, result.Failed, 1)
	require.Equal(t, "tmp-y", result.Failed[0].ID)

	// Only the confirmed member reached the remote.
	tracker.mu.Lock()
	defer tracker.mu.Unlock()
	require.Len(t, tracker.updates, 1)
	require.Equal(t, "milestone-1", tracker.updates[0].ID)
}

func TestMilestoneDeleteWaitsForChildDeletes(t *testing.T) {
	gate := make(chan struct{})
	tracker := &fakeTracker{
		tasks: []models.Task{
			remoteTask("milestone-1", 1, models.KindMilestone, "", "", ""),
			remoteTask("1", 1, models.KindIssue, "milestone-1", "", ""),
		},
		deleteGates: map[string]chan struct{}{"1": gate},
	}
	svc := newTestService(t, tracker)
	_, _, _, err := svc.Gantt("p1")
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		require.NoError(t, svc.DeleteTask("p1", "1"))
	}()
	time.Sleep(20 * time.Millisecond)
	go func() {
		defer wg.Done()
		require.NoError(t, svc.DeleteTask("p1", "milestone-1"))
	}()

	// The child delete is stuck on the gate; the milestone's own remote
	// call must not have been issued yet.
	time.Sleep(50 * time.Millisecond)
	tracker.mu.Lock()
	require.NotContains(t, tracker.deleted, "milestone-1")
	tracker.mu.Unlock()

	close(gate)
	wg.Wait()

	tracker.mu.Lock()
	defer tracker.mu.Unlock()
	require.Equal(t, []string{"1", "milestone-1"}, tracker.deleted)
}

func TestDeleteLinkUnconfirmedResyncsInsteadOfDelete(t *testing.T) {
	tracker := &fakeTracker{
		tasks: []models.Task{
			remoteTask("1", 1, models.KindIssue, "", "", ""),
			remoteTask("2", 2, models.KindIssue, "", "", ""),
		},
	}
	svc := newTestService(t, tracker)
	_, _, _, err := svc.Gantt("p1")
	require.NoError(t, err)

	// Inject an unconfirmed link the way an in-flight create would.
	svc.mu.Lock()
	st := svc.state("p1")
	st.links = append(st.links, models.Link{ID: "tmp-x", Source: "1", Target: "2", Kind: models.LinkEndToStart})
	svc.mu.Unlock()

	tracker.mu.Lock()
	callsBefore := tracker.getTaskCalls
	tracker.mu.Unlock()

	require.NoError(t, svc.DeleteLink("p1", "1", "2"))

	tracker.mu.Lock()
	defer tracker.mu.Unlock()
	require.Empty(t, tracker.linkDeletes)
	require.Greater(t, tracker.getTaskCalls, callsBefore)
}

func TestDeleteLinkMatchesBySourceTargetPair(t *testing.T) {
	tracker := &fakeTracker{
		tasks: []models.Task{
			remoteTask("1", 1, models.KindIssue, "", "", ""),
			remoteTask("2", 2, models.KindIssue, "", "", ""),
		},
		links: []models.Link{
			{
				ID: "900", Source: "1", Target: "2", Kind: models.LinkEndToStart,
				Remote: models.RemoteRef{IID: 900, GlobalID: "900", Type: "issue_link"},
			},
		},
	}
	svc := newTestService(t, tracker)
	_, _, _, err := svc.Gantt("p1")
	require.NoError(t, err)

	require.NoError(t, svc.DeleteLink("p1", "1", "2"))

	tracker.mu.Lock()
	require.Equal(t, []string{"1->2"}, tracker.linkDeletes)
	tracker.mu.Unlock()

	_, links, _, err := svc.Gantt("p1")
	require.NoError(t, err)
	require.Empty(t, links)
}

func TestCreateLinkAdoptsRemoteID(t *testing.T) {
	tracker := &fakeTracker{
		tasks: []models.Task{
			remoteTask("1", 1, models.KindIssue, "", "", ""),
			remoteTask("2", 2, models.KindIssue, "", "", ""),
		},
	}
	svc := newTestService(t, tracker)
	_, _, _, err := svc.Gantt("p1")
	require.NoError(t, err)

	created, err := svc.CreateLink("p1", models.Link{Source: "1", Target: "2", Kind: models.LinkEndToStart})
	require.NoError(t, err)
	require.True(t, created.Remote.Confirmed())

	_, links, _, err := svc.Gantt("p1")
	require.NoError(t, err)
	require.Len(t, links, 1)
	require.False(t, strings.HasPrefix(links[0].ID, "tmp-"))
}

func TestCreateLinkUnknownEndpointRejectedBeforeRemoteCall(t *testing.T) {
	tracker := &fakeTracker{
		tasks: []models.Task{remoteTask("1", 1, models.KindIssue, "", "", "")},
	}
	svc := newTestService(t, tracker)
	_, _, _, err := svc.Gantt("p1")
	require.NoError(t, err)

	_, err = svc.CreateLink("p1", models.Link{Source: "1", Target: "missing"})
	require.ErrorIs(t, err, ErrUnknownTask)

	tracker.mu.Lock()
	defer tracker.mu.Unlock()
	require.Empty(t, tracker.linkCreates)
}

func TestReorderRetargetsAwayFromMilestone(t *testing.T) {
	tracker := &fakeTracker{
		tasks: []models.Task{
			remoteTask("1", 1, models.KindIssue, "", "", ""),
			remoteTask("2", 2, models.KindIssue, "", "", ""),
			remoteTask("milestone-1", 3, models.KindMilestone, "", "", ""),
		},
	}
	svc := newTestService(t, tracker)
	_, _, _, err := svc.Gantt("p1")
	require.NoError(t, err)

	resolved, err := svc.Reorder("p1", "1", "milestone-1", schedule.PlaceAfter, false)
	require.NoError(t, err)
	require.Equal(t, "2", resolved.TargetID)
	require.Equal(t, schedule.PlaceAfter, resolved.Mode)

	tracker.mu.Lock()
	defer tracker.mu.Unlock()
	require.Equal(t, []string{"1 after 2"}, tracker.reorders)
}

func TestReorderStructuralRejectionSkipsRemoteCall(t *testing.T) {
	tracker := &fakeTracker{
		tasks: []models.Task{
			remoteTask("1", 1, models.KindIssue, "", "", ""),
			remoteTask("milestone-1", 2, models.KindMilestone, "", "", ""),
		},
	}
	svc := newTestService(t, tracker)
	_, _, _, err := svc.Gantt("p1")
	require.NoError(t, err)

	_, err = svc.Reorder("p1", "1", "milestone-1", schedule.PlaceAfter, false)
	require.ErrorIs(t, err, schedule.ErrNoCompatibleSibling)

	tracker.mu.Lock()
	defer tracker.mu.Unlock()
	require.Empty(t, tracker.reorders)
}

func TestResyncPreservesFoldState(t *testing.T) {
	tracker := &fakeTracker{
		tasks: []models.Task{
			remoteTask("7", 7, models.KindMilestone, "", "", ""),
			remoteTask("8", 8, models.KindIssue, "7", "", ""),
		},
	}
	svc := newTestService(t, tracker)
	_, _, _, err := svc.Gantt("p1")
	require.NoError(t, err)

	// Fold id arrives in a different numeric representation than the
	// task's own id.
	require.NoError(t, svc.SetFoldState("p1", map[string]bool{"007": false}))

	require.NoError(t, svc.Resync("p1"))

	tasks, _, _, err := svc.Gantt("p1")
	require.NoError(t, err)
	for _, task := range tasks {
		if task.ID == "7" {
			require.False(t, task.Open)
		}
	}
}

func TestHistoryRecordsOperations(t *testing.T) {
	tracker := &fakeTracker{failCreate: true}
	svc := newTestService(t, tracker)

	_, err := svc.CreateTask("p1", models.Task{Kind: models.KindIssue, Name: "doomed"})
	require.Error(t, err)

	records, err := svc.History("p1", 10)
	require.NoError(t, err)
	require.NotEmpty(t, records)
	require.Equal(t, "create_task", records[0].Operation)
	require.Equal(t, "failed", records[0].Status)
}
