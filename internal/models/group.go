// internal/models/group.go
package models

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
)

// TaskGroupConfig represents a named, cron-scheduled ordered list of tasks.
// Loaded once at startup; immutable for the process lifetime.
type TaskGroupConfig struct {
	GroupName    string       `json:"groupName"`
	Cron         string       `json:"cron"`
	WarningHours float64      `json:"warningHours,omitempty"`
	ErrorHours   float64      `json:"errorHours,omitempty"`
	Tasks        []TaskConfig `json:"tasks"`
}

// TaskGroupRun represents a single execution of a task group, scheduled or
// manual. One row per trigger.
type TaskGroupRun struct {
	ID         string      `json:"id"`
	GroupName  string      `json:"groupName"`
	Status     GroupStatus `json:"status"`
	Message    string      `json:"message,omitempty"`
	StackTrace *string     `json:"stackTrace,omitempty"`
	StartTime  time.Time   `json:"startTime"`
	EndTime    *time.Time  `json:"endTime,omitempty"`
	CreatedAt  time.Time   `json:"createdAt"`
	UpdatedAt  time.Time   `json:"updatedAt"`
}

// NewTaskGroupRun creates a group run record in in_progress status.
func NewTaskGroupRun(groupName string) *TaskGroupRun {
	now := time.Now().UTC()
	return &TaskGroupRun{
		ID:        uuid.New().String(),
		GroupName: groupName,
		Status:    GroupStatusInProgress,
		StartTime: now,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// LoadGroupConfigs reads and validates the task-group document, a JSON array
// of TaskGroupConfig.
func LoadGroupConfigs(path string) ([]TaskGroupConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read group config: %w", err)
	}
	var groups []TaskGroupConfig
	if err := json.Unmarshal(data, &groups); err != nil {
		return nil, fmt.Errorf("failed to parse group config: %w", err)
	}
	if err := ValidateGroupConfigs(groups); err != nil {
		return nil, err
	}
	return groups, nil
}

// ValidateGroupConfigs checks the structural rules the scheduler relies on:
// unique non-empty group names, a cron expression per group, and non-empty
// task lists with named tasks.
func ValidateGroupConfigs(groups []TaskGroupConfig) error {
	seen := make(map[string]bool, len(groups))
	for i, g := range groups {
		if g.GroupName == "" {
			return fmt.Errorf("group %d: groupName is required", i)
		}
		if seen[g.GroupName] {
			return fmt.Errorf("group %q: duplicate groupName", g.GroupName)
		}
		seen[g.GroupName] = true
		if g.Cron == "" {
			return fmt.Errorf("group %q: cron expression is required", g.GroupName)
		}
		if len(g.Tasks) == 0 {
			return fmt.Errorf("group %q: at least one task is required", g.GroupName)
		}
		for j, t := range g.Tasks {
			if t.Name == "" {
				return fmt.Errorf("group %q: task %d: name is required", g.GroupName, j)
			}
			if t.FilePath == "" {
				return fmt.Errorf("group %q: task %q: filePath is required", g.GroupName, t.Name)
			}
		}
	}
	return nil
}
