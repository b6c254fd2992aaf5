// internal/models/task.go
package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// TaskConfig represents one task within a group's ordered task list. Name
// identifies the task across repeated runs and across groups; it backs the
// "already running" and "last completed run" lookups.
type TaskConfig struct {
	Name         string                 `json:"name"`
	FilePath     string                 `json:"filePath"`
	Params       map[string]interface{} `json:"params,omitempty"`
	WarningHours float64                `json:"warningHours,omitempty"`
	ErrorHours   float64                `json:"errorHours,omitempty"`
	KillOnFail   bool                   `json:"killOnFail,omitempty"`
}

// TaskRun represents a single execution attempt of a task within a group run.
type TaskRun struct {
	ID         string     `json:"id"`
	GroupRunID string     `json:"groupRunId"`
	TaskName   string     `json:"taskName"`
	FilePath   string     `json:"filePath"`
	Params     string     `json:"params"` // serialized parameter map
	Status     TaskStatus `json:"status"`
	Message    string     `json:"message,omitempty"`
	Summary    *string    `json:"summary,omitempty"`
	Percentage *float64   `json:"percentage,omitempty"`
	StartTime  *time.Time `json:"startTime,omitempty"`
	EndTime    *time.Time `json:"endTime,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}

// NewTaskRun creates a task run record in created status, with the computed
// parameter map serialized for the dashboard.
func NewTaskRun(id, groupRunID string, cfg TaskConfig, params map[string]interface{}) (*TaskRun, error) {
	serialized, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal task params: %w", err)
	}
	now := time.Now().UTC()
	return &TaskRun{
		ID:         id,
		GroupRunID: groupRunID,
		TaskName:   cfg.Name,
		FilePath:   cfg.FilePath,
		Params:     string(serialized),
		Status:     TaskStatusCreated,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// ToJSON converts the task run to JSON.
func (tr *TaskRun) ToJSON() ([]byte, error) {
	return json.Marshal(tr)
}

// FromJSON populates the task run from JSON.
func (tr *TaskRun) FromJSON(data []byte) error {
	return json.Unmarshal(data, tr)
}
