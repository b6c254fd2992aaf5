// internal/models/status.go
package models

import (
	"time"
)

// GroupStatus represents the current state of a task-group run
type GroupStatus string

const (
	GroupStatusInProgress GroupStatus = "in_progress"
	GroupStatusCompleted  GroupStatus = "completed"
	GroupStatusError      GroupStatus = "error"
	GroupStatusSkipped    GroupStatus = "skipped"
)

// Terminal reports whether the status is final. A group run leaves
// in_progress exactly once and never re-enters it.
func (s GroupStatus) Terminal() bool {
	return s != GroupStatusInProgress
}

// TaskStatus represents the current state of a task run
type TaskStatus string

const (
	TaskStatusCreated    TaskStatus = "created"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusError      TaskStatus = "error"
	TaskStatusSkipped    TaskStatus = "skipped"
)

// Terminal reports whether the status is final.
func (s TaskStatus) Terminal() bool {
	switch s {
	case TaskStatusCompleted, TaskStatusError, TaskStatusSkipped:
		return true
	}
	return false
}

// StatusMessage represents a lifecycle update published on the event stream
// for group and task runs.
type StatusMessage struct {
	Type      string      `json:"type"`      // "group" or "task"
	ID        string      `json:"id"`        // run id of the entity
	Name      string      `json:"name"`      // configured group or task name
	Status    string      `json:"status"`    // current status of the entity
	Timestamp time.Time   `json:"timestamp"` // when the status was observed
	Metadata  interface{} `json:"metadata,omitempty"`
}
