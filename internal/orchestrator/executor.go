// internal/orchestrator/executor.go
package orchestrator

import (
	"context"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"taskmill/internal/events"
	"taskmill/internal/models"
	"taskmill/internal/storage"
	"taskmill/internal/storage/cache"
	"taskmill/internal/task"
)

// skipAlreadyRunning is the skip reason for duplicate-run conflicts. Not an
// error: a concurrent same-named run simply wins.
const skipAlreadyRunning = "already running"

// Executor runs one group's tasks to completion, strictly in declared order,
// applying the killOnFail propagation policy and persisting every lifecycle
// transition to the run store.
type Executor struct {
	store     storage.Store
	loader    *task.Loader
	lastCache *cache.Client
	events    *events.Publisher
	log       zerolog.Logger

	// guard serializes the duplicate-group check against the group run
	// insert that follows it. The duplicate-task check holds it too, but the
	// task row only reaches in_progress later inside Start, so both checks
	// stay advisory; the window is narrowed, not closed.
	guard sync.Mutex

	mu      sync.Mutex
	running map[string]*task.Task // live tasks keyed by task name
}

func NewExecutor(store storage.Store, loader *task.Loader, lastCache *cache.Client, publisher *events.Publisher, log zerolog.Logger) *Executor {
	return &Executor{
		store:     store,
		loader:    loader,
		lastCache: lastCache,
		events:    publisher,
		log:       log.With().Str("component", "executor").Logger(),
		running:   make(map[string]*task.Task),
	}
}

// ExecuteGroup performs one run of a group configuration: guard against a
// duplicate group run, create all task records, execute tasks sequentially,
// and finalize the group run status exactly once.
func (e *Executor) ExecuteGroup(ctx context.Context, cfg models.TaskGroupConfig) error {
	run := models.NewTaskGroupRun(cfg.GroupName)
	log := e.log.With().Str("group", cfg.GroupName).Str("group_run_id", run.ID).Logger()

	e.guard.Lock()
	alreadyRunning, err := e.store.IsGroupRunning(ctx, cfg.GroupName)
	if err != nil {
		e.guard.Unlock()
		return fmt.Errorf("failed to check running group: %w", err)
	}
	if alreadyRunning {
		now := time.Now().UTC()
		run.Status = models.GroupStatusSkipped
		run.Message = skipAlreadyRunning
		run.EndTime = &now
		err := e.store.InsertTaskGroupRun(ctx, run)
		e.guard.Unlock()
		if err != nil {
			return err
		}
		log.Info().Msg("group already running, recorded skipped run")
		e.publishGroup(run)
		return nil
	}
	if err := e.store.InsertTaskGroupRun(ctx, run); err != nil {
		e.guard.Unlock()
		return err
	}
	e.guard.Unlock()

	log.Info().Int("tasks", len(cfg.Tasks)).Msg("group run started")
	e.publishGroup(run)

	killTask, runErr := e.runTasks(ctx, cfg, run)

	now := time.Now().UTC()
	upd := storage.GroupRunUpdate{EndTime: &now}
	switch {
	case runErr != nil:
		// A failure of the run machinery itself, e.g. a malformed task
		// module. Individual task failures never reach here.
		stack := string(debug.Stack())
		status := models.GroupStatusError
		message := runErr.Error()
		upd.Status = &status
		upd.Message = &message
		upd.StackTrace = &stack
		e.failRemainingTasks(ctx, run.ID, message)
		log.Error().Err(runErr).Msg("group run failed")
	case killTask != "":
		status := models.GroupStatusError
		message := fmt.Sprintf("terminated early: task %q failed", killTask)
		upd.Status = &status
		upd.Message = &message
		log.Warn().Str("task", killTask).Msg("group run terminated early")
	default:
		status := models.GroupStatusCompleted
		upd.Status = &status
		log.Info().Msg("group run completed")
	}

	if err := e.store.UpdateTaskGroupRun(ctx, run.ID, upd); err != nil {
		return fmt.Errorf("failed to finalize group run: %w", err)
	}
	run.Status = *upd.Status
	if upd.Message != nil {
		run.Message = *upd.Message
	}
	run.EndTime = &now
	e.publishGroup(run)
	return runErr
}

type taskUnit struct {
	cfg models.TaskConfig
	t   *task.Task
	row *models.TaskRun
}

// runTasks creates every task record up front, then executes the sequence.
// Returns the name of the killOnFail task that halted the sequence, if any.
func (e *Executor) runTasks(ctx context.Context, cfg models.TaskGroupConfig, run *models.TaskGroupRun) (string, error) {
	units := make([]taskUnit, 0, len(cfg.Tasks))
	for _, tc := range cfg.Tasks {
		id := uuid.New().String()
		t, err := e.loader.Load(ctx, tc, id, run.ID)
		if err != nil {
			return "", fmt.Errorf("failed to load task %q: %w", tc.Name, err)
		}
		row, err := models.NewTaskRun(id, run.ID, tc, t.Params())
		if err != nil {
			return "", err
		}
		if err := e.store.InsertTaskRun(ctx, row); err != nil {
			return "", err
		}
		units = append(units, taskUnit{cfg: tc, t: t, row: row})
	}

	var killTask string
	for _, u := range units {
		if killTask != "" {
			e.skipTask(ctx, u, fmt.Sprintf("skipped: task %q failed", killTask))
			continue
		}

		e.guard.Lock()
		dup, err := e.store.IsTaskRunning(ctx, u.cfg.Name)
		if err != nil {
			e.guard.Unlock()
			return killTask, fmt.Errorf("failed to check running task: %w", err)
		}
		if dup {
			e.skipTask(ctx, u, skipAlreadyRunning)
			e.guard.Unlock()
			continue
		}
		e.guard.Unlock()

		e.attach(u.t)
		e.track(u.t)
		startErr := u.t.Start(ctx)
		e.untrack(u.cfg.Name)

		snap := u.t.Snapshot()
		e.persistSnapshot(snap)

		if startErr != nil || snap.Status == models.TaskStatusError {
			e.log.Warn().
				Str("group", cfg.GroupName).
				Str("task", u.cfg.Name).
				AnErr("error", startErr).
				Str("message", snap.Message).
				Msg("task failed")
			if u.cfg.KillOnFail {
				killTask = u.cfg.Name
			}
			continue
		}
		if snap.Status == models.TaskStatusCompleted {
			e.cacheCompleted(u.row, snap)
		}
	}
	return killTask, nil
}

func (e *Executor) skipTask(ctx context.Context, u taskUnit, reason string) {
	if err := u.t.Skip(reason); err != nil {
		e.log.Warn().Err(err).Str("task", u.cfg.Name).Msg("failed to skip task")
		return
	}
	snap := u.t.Snapshot()
	e.persistSnapshot(snap)
	e.publishTask(snap)
}

// attach subscribes the persistence observers. This is the executor's sole
// change-detection mechanism during execution; the final flush after Start
// and the periodic flush cover notification-free stretches.
func (e *Executor) attach(t *task.Task) {
	flush := func(ev task.Event) {
		snap := t.Snapshot()
		e.persistSnapshot(snap)
		if ev.Kind == task.EventStatus {
			e.publishTask(snap)
		}
	}
	t.Subscribe(task.EventStatus, flush)
	t.Subscribe(task.EventProgress, flush)
	t.Subscribe(task.EventSummary, flush)
}

// persistSnapshot projects a task's live state onto its store row. A write
// failure surfaces as dashboard staleness, not as a task failure.
func (e *Executor) persistSnapshot(snap task.Snapshot) {
	status := snap.Status
	message := snap.Message
	upd := storage.TaskRunUpdate{
		Status:     &status,
		Message:    &message,
		Summary:    snap.Summary,
		Percentage: snap.Percentage,
		StartTime:  snap.StartTime,
		EndTime:    snap.EndTime,
	}
	if err := e.store.UpdateTaskRun(context.Background(), snap.ID, upd); err != nil {
		e.log.Error().Err(err).Str("task", snap.Name).Str("task_run_id", snap.ID).Msg("failed to persist task state")
	}
}

// failRemainingTasks finalizes any task row of the group run still in a
// non-terminal status. No task run may outlive its group run's terminal
// status.
func (e *Executor) failRemainingTasks(ctx context.Context, groupRunID, message string) {
	rows, err := e.store.GetTaskRunsForGroupRun(ctx, groupRunID)
	if err != nil {
		e.log.Error().Err(err).Str("group_run_id", groupRunID).Msg("failed to list task runs for cleanup")
		return
	}
	now := time.Now().UTC()
	status := models.TaskStatusError
	for _, row := range rows {
		if row.Status.Terminal() {
			continue
		}
		upd := storage.TaskRunUpdate{Status: &status, Message: &message, EndTime: &now}
		if err := e.store.UpdateTaskRun(ctx, row.ID, upd); err != nil {
			e.log.Error().Err(err).Str("task_run_id", row.ID).Msg("failed to finalize task run")
		}
	}
}

// cacheCompleted refreshes the last-completed-run cache consumed by the
// loader's lastChanged computation.
func (e *Executor) cacheCompleted(row *models.TaskRun, snap task.Snapshot) {
	finalized := *row
	finalized.Status = snap.Status
	finalized.Message = snap.Message
	finalized.Summary = snap.Summary
	finalized.Percentage = snap.Percentage
	finalized.StartTime = snap.StartTime
	finalized.EndTime = snap.EndTime

	data, err := finalized.ToJSON()
	if err != nil {
		return
	}
	if err := e.lastCache.Put(cache.LastCompletedKey(row.TaskName), data); err != nil {
		e.log.Warn().Err(err).Str("task", row.TaskName).Msg("failed to refresh last-completed cache")
	}
}

func (e *Executor) track(t *task.Task) {
	e.mu.Lock()
	e.running[t.Name()] = t
	e.mu.Unlock()
}

func (e *Executor) untrack(name string) {
	e.mu.Lock()
	delete(e.running, name)
	e.mu.Unlock()
}

// RunningSnapshots returns the live state of every currently-executing task,
// ordered by task name.
func (e *Executor) RunningSnapshots() []task.Snapshot {
	e.mu.Lock()
	tasks := make([]*task.Task, 0, len(e.running))
	for _, t := range e.running {
		tasks = append(tasks, t)
	}
	e.mu.Unlock()

	snaps := make([]task.Snapshot, 0, len(tasks))
	for _, t := range tasks {
		snaps = append(snaps, t.Snapshot())
	}
	sort.Slice(snaps, func(i, j int) bool { return snaps[i].Name < snaps[j].Name })
	return snaps
}

// FlushRunning re-persists every live task's state, bounding dashboard
// staleness for tasks that emit no progress notifications.
func (e *Executor) FlushRunning() {
	for _, snap := range e.RunningSnapshots() {
		e.persistSnapshot(snap)
	}
}

func (e *Executor) publishGroup(run *models.TaskGroupRun) {
	e.events.PublishStatus(models.StatusMessage{
		Type:      "group",
		ID:        run.ID,
		Name:      run.GroupName,
		Status:    string(run.Status),
		Timestamp: time.Now().UTC(),
		Metadata:  map[string]string{"message": run.Message},
	})
}

func (e *Executor) publishTask(snap task.Snapshot) {
	e.events.PublishStatus(models.StatusMessage{
		Type:      "task",
		ID:        snap.ID,
		Name:      snap.Name,
		Status:    string(snap.Status),
		Timestamp: time.Now().UTC(),
		Metadata:  map[string]string{"message": snap.Message},
	})
}
