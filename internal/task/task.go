// internal/task/task.go
package task

import (
	"context"
	"fmt"
	"sync"
	"time"

	"taskmill/internal/models"
)

// EventKind identifies a notification category emitted by a Task.
type EventKind string

const (
	EventStatus   EventKind = "status"
	EventProgress EventKind = "progress"
	EventSummary  EventKind = "summary"
)

// Event carries a task notification to observers.
type Event struct {
	Kind     EventKind
	TaskID   string
	TaskName string
	At       time.Time
}

// Observer receives task notifications. Observers are invoked synchronously,
// in registration order.
type Observer func(Event)

// Hook is the user-supplied execution body of a task.
type Hook func(ctx context.Context, t *Task) error

// Snapshot is an immutable copy of a task's mutable state, taken for
// persistence flushes.
type Snapshot struct {
	ID         string
	Name       string
	Status     models.TaskStatus
	Message    string
	Summary    *string
	Percentage *float64
	StartTime  *time.Time
	EndTime    *time.Time
}

// Task encapsulates one unit of work's mutable execution state and notifies
// observers of changes. An instance is owned by the group executor for the
// duration of one execution and discarded afterward; the store row is the
// durable projection of its final state.
type Task struct {
	name   string
	id     string
	params map[string]interface{}
	hook   Hook

	mu         sync.Mutex
	status     models.TaskStatus
	message    string
	summary    *string
	percentage *float64
	startTime  *time.Time
	endTime    *time.Time
	observers  map[EventKind][]Observer
}

// New creates a task in created status.
func New(name, id string, params map[string]interface{}, hook Hook) *Task {
	return &Task{
		name:      name,
		id:        id,
		params:    params,
		hook:      hook,
		status:    models.TaskStatusCreated,
		observers: make(map[EventKind][]Observer),
	}
}

func (t *Task) Name() string { return t.name }
func (t *Task) ID() string   { return t.id }

// Params returns the computed parameter map the task was constructed with.
func (t *Task) Params() map[string]interface{} { return t.params }

// Subscribe registers an observer for one notification kind.
func (t *Task) Subscribe(kind EventKind, fn Observer) {
	t.mu.Lock()
	t.observers[kind] = append(t.observers[kind], fn)
	t.mu.Unlock()
}

// Start transitions created→in_progress, runs the hook, and finalizes the
// status from the outcome. A hook failure (returned error or panic) is
// recorded and returned so the caller observes it directly, not only through
// emitted state. A prior ReportFailure call survives a nil hook return.
func (t *Task) Start(ctx context.Context) (err error) {
	t.mu.Lock()
	if t.status != models.TaskStatusCreated {
		status := t.status
		t.mu.Unlock()
		return fmt.Errorf("task %s: cannot start from status %q", t.name, status)
	}
	now := time.Now().UTC()
	t.status = models.TaskStatusInProgress
	t.startTime = &now
	t.mu.Unlock()
	t.emit(EventStatus)

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
		end := time.Now().UTC()
		t.mu.Lock()
		t.endTime = &end
		if err != nil {
			t.status = models.TaskStatusError
			t.message = err.Error()
		} else if t.status == models.TaskStatusInProgress {
			t.status = models.TaskStatusCompleted
		}
		t.mu.Unlock()
		t.emit(EventStatus)
	}()

	err = t.hook(ctx, t)
	return err
}

// ReportProgress updates the progress snapshot. Does not alter status; may be
// called at any point in the task's life.
func (t *Task) ReportProgress(message string, percentage ...float64) {
	t.mu.Lock()
	t.message = message
	if len(percentage) > 0 {
		p := percentage[0]
		t.percentage = &p
	}
	t.mu.Unlock()
	t.emit(EventProgress)
}

// ReportSummary sets the final human-readable summary, independent of status.
func (t *Task) ReportSummary(text string) {
	t.mu.Lock()
	t.summary = &text
	t.mu.Unlock()
	t.emit(EventSummary)
}

// ReportFailure marks the task failed without raising, letting the hook's own
// control flow decide whether to stop further work.
func (t *Task) ReportFailure(message string) {
	t.mu.Lock()
	t.status = models.TaskStatusError
	t.message = message
	t.mu.Unlock()
	t.emit(EventStatus)
}

// Skip transitions created→skipped, bypassing in_progress, and records the
// reason as the summary.
func (t *Task) Skip(reason string) error {
	t.mu.Lock()
	if t.status != models.TaskStatusCreated {
		status := t.status
		t.mu.Unlock()
		return fmt.Errorf("task %s: cannot skip from status %q", t.name, status)
	}
	now := time.Now().UTC()
	t.status = models.TaskStatusSkipped
	t.summary = &reason
	t.message = reason
	t.endTime = &now
	t.mu.Unlock()
	t.emit(EventStatus)
	return nil
}

// Status returns the task's current status.
func (t *Task) Status() models.TaskStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// Duration returns endTime−startTime once both are set.
func (t *Task) Duration() (time.Duration, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.startTime == nil || t.endTime == nil {
		return 0, false
	}
	return t.endTime.Sub(*t.startTime), true
}

// Snapshot copies the task's current state.
func (t *Task) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Snapshot{
		ID:         t.id,
		Name:       t.name,
		Status:     t.status,
		Message:    t.message,
		Summary:    copyStr(t.summary),
		Percentage: copyFloat(t.percentage),
		StartTime:  copyTime(t.startTime),
		EndTime:    copyTime(t.endTime),
	}
}

func (t *Task) emit(kind EventKind) {
	t.mu.Lock()
	observers := make([]Observer, len(t.observers[kind]))
	copy(observers, t.observers[kind])
	id, name := t.id, t.name
	t.mu.Unlock()

	ev := Event{Kind: kind, TaskID: id, TaskName: name, At: time.Now().UTC()}
	for _, fn := range observers {
		fn(ev)
	}
}

func copyStr(v *string) *string {
	if v == nil {
		return nil
	}
	s := *v
	return &s
}

func copyFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	f := *v
	return &f
}

func copyTime(v *time.Time) *time.Time {
	if v == nil {
		return nil
	}
	t := *v
	return &t
}
