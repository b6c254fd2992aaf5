// internal/storage/store.go
package storage

import (
	"context"
	"errors"
	"time"

	"taskmill/internal/models"
)

// ErrNotFound is returned when a requested run record does not exist.
var ErrNotFound = errors.New("record not found")

// GroupRunUpdate is a partial update of a group run; nil fields are left
// untouched.
type GroupRunUpdate struct {
	Status     *models.GroupStatus
	Message    *string
	StackTrace *string
	EndTime    *time.Time
}

// TaskRunUpdate is a partial update of a task run; nil fields are left
// untouched.
type TaskRunUpdate struct {
	Status     *models.TaskStatus
	Message    *string
	Summary    *string
	Percentage *float64
	StartTime  *time.Time
	EndTime    *time.Time
}

// Store is the durable record of group and task runs. It is the source of
// truth for dashboard queries and for crash recovery; a single shared
// instance is passed to every component that needs it.
type Store interface {
	InsertTaskGroupRun(ctx context.Context, run *models.TaskGroupRun) error
	UpdateTaskGroupRun(ctx context.Context, id string, upd GroupRunUpdate) error
	GetTaskGroupRun(ctx context.Context, id string) (*models.TaskGroupRun, error)
	IsGroupRunning(ctx context.Context, groupName string) (bool, error)
	GetRunningGroups(ctx context.Context) ([]models.TaskGroupRun, error)

	InsertTaskRun(ctx context.Context, run *models.TaskRun) error
	UpdateTaskRun(ctx context.Context, id string, upd TaskRunUpdate) error
	GetTaskRun(ctx context.Context, id string) (*models.TaskRun, error)
	IsTaskRunning(ctx context.Context, taskName string) (bool, error)
	GetLastCompletedRun(ctx context.Context, taskName string) (*models.TaskRun, error)
	GetTaskRunsForGroupRun(ctx context.Context, groupRunID string) ([]models.TaskRun, error)
	GetLatestTaskRuns(ctx context.Context) ([]models.TaskRun, error)
	GetErrorTaskRuns(ctx context.Context, since time.Time) ([]models.TaskRun, error)

	MarkAllInProgressAsError(ctx context.Context, message string) (int64, error)
	DeleteRecordsOlderThan(ctx context.Context, cutoff time.Time) (int64, error)

	Close() error
}
