// internal/orchestrator/status.go
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"taskmill/internal/models"
	"taskmill/internal/storage"
	"taskmill/internal/task"
)

// Staleness levels computed from the advisory warning/error-hour thresholds.
const (
	StalenessOK      = "ok"
	StalenessWarning = "warning"
	StalenessError   = "error"
	StalenessUnknown = "unknown"
)

// GroupView describes one configured group for the dashboard.
type GroupView struct {
	GroupName string     `json:"groupName"`
	Cron      string     `json:"cron"`
	TaskNames []string   `json:"taskNames"`
	NextRun   *time.Time `json:"nextRun,omitempty"`
}

// RunningTaskView is the live state of a currently-executing task.
type RunningTaskView struct {
	ID         string     `json:"id"`
	TaskName   string     `json:"taskName"`
	Status     string     `json:"status"`
	Message    string     `json:"message,omitempty"`
	Percentage *float64   `json:"percentage,omitempty"`
	StartTime  *time.Time `json:"startTime,omitempty"`
}

// Status is the scheduler-wide dashboard payload.
type Status struct {
	SchedulerRunning bool                  `json:"schedulerRunning"`
	Groups           []GroupView           `json:"groups"`
	RunningGroups    []models.TaskGroupRun `json:"runningGroups"`
	RunningTasks     []RunningTaskView     `json:"runningTasks"`
	UpdatedAt        time.Time             `json:"updatedAt"`
}

// TaskSummaryItem is one task's latest known state with its advisory
// staleness indicator.
type TaskSummaryItem struct {
	TaskName   string     `json:"taskName"`
	Status     string     `json:"status"`
	Message    string     `json:"message,omitempty"`
	Summary    *string    `json:"summary,omitempty"`
	Percentage *float64   `json:"percentage,omitempty"`
	StartTime  *time.Time `json:"startTime,omitempty"`
	EndTime    *time.Time `json:"endTime,omitempty"`
	Staleness  string     `json:"staleness"`
	Live       bool       `json:"live"`
}

// Facade is the read-side aggregation over the run store and the executor's
// live running-task set, consumed by the HTTP layer.
type Facade struct {
	store storage.Store
	sched *Scheduler
	exec  *Executor
	log   zerolog.Logger
}

func NewFacade(store storage.Store, sched *Scheduler, exec *Executor, log zerolog.Logger) *Facade {
	return &Facade{
		store: store,
		sched: sched,
		exec:  exec,
		log:   log.With().Str("component", "facade").Logger(),
	}
}

// GetStatus reports the scheduler state, configured groups with next trigger
// times, and everything currently running.
func (f *Facade) GetStatus(ctx context.Context) (*Status, error) {
	runningGroups, err := f.store.GetRunningGroups(ctx)
	if err != nil {
		return nil, err
	}

	groups := f.sched.Groups()
	views := make([]GroupView, 0, len(groups))
	for _, g := range groups {
		names := make([]string, 0, len(g.Tasks))
		for _, t := range g.Tasks {
			names = append(names, t.Name)
		}
		view := GroupView{GroupName: g.GroupName, Cron: g.Cron, TaskNames: names}
		if next, err := f.sched.NextRun(g.GroupName); err == nil && !next.IsZero() {
			view.NextRun = &next
		}
		views = append(views, view)
	}

	snaps := f.exec.RunningSnapshots()
	running := make([]RunningTaskView, 0, len(snaps))
	for _, s := range snaps {
		running = append(running, RunningTaskView{
			ID:         s.ID,
			TaskName:   s.Name,
			Status:     string(s.Status),
			Message:    s.Message,
			Percentage: s.Percentage,
			StartTime:  s.StartTime,
		})
	}

	return &Status{
		SchedulerRunning: f.sched.Running(),
		Groups:           views,
		RunningGroups:    runningGroups,
		RunningTasks:     running,
		UpdatedAt:        time.Now().UTC(),
	}, nil
}

// GetTaskSummary returns the most recent run per task name, overlaid with
// live progress. The overlay is keyed by task name, not run id: when two
// same-named tasks from different groups run back-to-back the live progress
// can attach to the other run's row. Kept as-is; see DESIGN.md.
func (f *Facade) GetTaskSummary(ctx context.Context) ([]TaskSummaryItem, error) {
	latest, err := f.store.GetLatestTaskRuns(ctx)
	if err != nil {
		return nil, err
	}

	live := make(map[string]task.Snapshot)
	for _, s := range f.exec.RunningSnapshots() {
		live[s.Name] = s
	}

	now := time.Now().UTC()
	thresholds := f.taskThresholds()

	items := make([]TaskSummaryItem, 0, len(latest))
	for _, run := range latest {
		item := TaskSummaryItem{
			TaskName:   run.TaskName,
			Status:     string(run.Status),
			Message:    run.Message,
			Summary:    run.Summary,
			Percentage: run.Percentage,
			StartTime:  run.StartTime,
			EndTime:    run.EndTime,
		}
		if s, ok := live[run.TaskName]; ok {
			item.Status = string(s.Status)
			item.Message = s.Message
			item.Summary = s.Summary
			item.Percentage = s.Percentage
			item.StartTime = s.StartTime
			item.EndTime = s.EndTime
			item.Live = true
		}
		th := thresholds[run.TaskName]
		item.Staleness = Staleness(lastActivity(&run), th.warn, th.err, now)
		items = append(items, item)
	}
	return items, nil
}

// GetErrorTasks returns task runs that failed within the given window.
func (f *Facade) GetErrorTasks(ctx context.Context, hours int) ([]models.TaskRun, error) {
	if hours <= 0 {
		return nil, fmt.Errorf("hours must be positive, got %d", hours)
	}
	since := time.Now().UTC().Add(-time.Duration(hours) * time.Hour)
	return f.store.GetErrorTaskRuns(ctx, since)
}

// Cleanup removes run records older than the retention window. In-progress
// and newer rows are untouched.
func (f *Facade) Cleanup(ctx context.Context, daysToKeep int) (int64, error) {
	if daysToKeep <= 0 {
		return 0, fmt.Errorf("daysToKeep must be positive, got %d", daysToKeep)
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -daysToKeep)
	n, err := f.store.DeleteRecordsOlderThan(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	f.log.Info().Int64("records", n).Int("days", daysToKeep).Msg("cleanup removed old run records")
	return n, nil
}

// RunGroupNow dispatches a manual group run.
func (f *Facade) RunGroupNow(groupName string) error {
	return f.sched.RunGroupNow(groupName)
}

// RunTaskNow dispatches a manual single-task run.
func (f *Facade) RunTaskNow(groupName, taskName string) error {
	return f.sched.RunTaskNow(groupName, taskName)
}

type threshold struct {
	warn float64
	err  float64
}

// taskThresholds resolves advisory warning/error hours per task name, with
// task-level values overriding group-level ones.
func (f *Facade) taskThresholds() map[string]threshold {
	out := make(map[string]threshold)
	for _, g := range f.sched.Groups() {
		for _, t := range g.Tasks {
			th := threshold{warn: g.WarningHours, err: g.ErrorHours}
			if t.WarningHours > 0 {
				th.warn = t.WarningHours
			}
			if t.ErrorHours > 0 {
				th.err = t.ErrorHours
			}
			out[t.Name] = th
		}
	}
	return out
}

// lastActivity picks the task run timestamp staleness is measured from.
func lastActivity(run *models.TaskRun) *time.Time {
	if run.EndTime != nil {
		return run.EndTime
	}
	if run.StartTime != nil {
		return run.StartTime
	}
	return &run.CreatedAt
}

// Staleness is a pure function over recorded timestamps: how overdue a
// task's last activity is relative to its advisory thresholds. Unset
// thresholds report ok; a task with no recorded activity reports unknown.
func Staleness(last *time.Time, warnHours, errHours float64, now time.Time) string {
	if last == nil || last.IsZero() {
		return StalenessUnknown
	}
	if warnHours <= 0 && errHours <= 0 {
		return StalenessOK
	}
	age := now.Sub(*last).Hours()
	if errHours > 0 && age >= errHours {
		return StalenessError
	}
	if warnHours > 0 && age >= warnHours {
		return StalenessWarning
	}
	return StalenessOK
}
