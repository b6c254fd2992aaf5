// internal/task/loader.go
package task

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"taskmill/internal/localtime"
	"taskmill/internal/models"
	"taskmill/internal/storage"
	"taskmill/internal/storage/cache"
)

const (
	lastChangedKey    = "lastChanged"
	lastChangedMargin = 10 * time.Minute
)

// lastChangedEpoch is the default window start when a task has never
// completed.
var lastChangedEpoch = time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC)

// HistorySource supplies the most recent completed run for a task name.
// Satisfied by the run store.
type HistorySource interface {
	GetLastCompletedRun(ctx context.Context, taskName string) (*models.TaskRun, error)
}

// Loader resolves a TaskConfig to a ready-to-run Task with computed
// parameters merged in.
type Loader struct {
	registry *Registry
	history  HistorySource
	cache    *cache.Client
	zone     *localtime.Converter
	log      zerolog.Logger
}

func NewLoader(registry *Registry, history HistorySource, cacheClient *cache.Client, zone *localtime.Converter, log zerolog.Logger) *Loader {
	return &Loader{
		registry: registry,
		history:  history,
		cache:    cacheClient,
		zone:     zone,
		log:      log.With().Str("component", "loader").Logger(),
	}
}

// Load computes the task's parameter map and constructs its hook through the
// registered factory. The factory runs on every call so repeated runs never
// share state.
func (l *Loader) Load(ctx context.Context, cfg models.TaskConfig, taskID, groupRunID string) (*Task, error) {
	params := make(map[string]interface{}, len(cfg.Params)+1)
	for k, v := range cfg.Params {
		params[k] = v
	}

	if _, ok := params[lastChangedKey]; !ok {
		value, err := l.computeLastChanged(ctx, cfg.Name)
		if err != nil {
			return nil, err
		}
		params[lastChangedKey] = value
	}

	factory, err := l.registry.Resolve(cfg.FilePath)
	if err != nil {
		return nil, err
	}

	hook, err := factory(cfg.Name, taskID, params)
	if err != nil {
		return nil, &ModuleContractError{Path: cfg.FilePath, Reason: err.Error()}
	}
	if hook == nil {
		return nil, &ModuleContractError{Path: cfg.FilePath, Reason: "factory returned no hook"}
	}

	l.log.Debug().
		Str("task", cfg.Name).
		Str("task_run_id", taskID).
		Str("group_run_id", groupRunID).
		Msg("task loaded")

	return New(cfg.Name, taskID, params, hook), nil
}

// computeLastChanged derives the default history window start: the last
// completed run's start time minus a safety margin, or a fixed epoch when the
// task has never completed. The instant is re-expressed in the fixed zone's
// wall clock because the downstream filter compares against local-time
// columns.
func (l *Loader) computeLastChanged(ctx context.Context, taskName string) (string, error) {
	last, err := l.lastCompleted(ctx, taskName)
	if err != nil {
		return "", fmt.Errorf("failed to look up last completed run for %q: %w", taskName, err)
	}

	base := lastChangedEpoch
	if last != nil && last.StartTime != nil {
		base = last.StartTime.Add(-lastChangedMargin)
	}
	return l.zone.FormatWallClock(base), nil
}

func (l *Loader) lastCompleted(ctx context.Context, taskName string) (*models.TaskRun, error) {
	key := cache.LastCompletedKey(taskName)
	if data, err := l.cache.Get(key); err == nil && data != nil {
		var run models.TaskRun
		if err := run.FromJSON(data); err == nil {
			return &run, nil
		}
		l.log.Warn().Str("task", taskName).Msg("discarding malformed cache entry")
	}

	run, err := l.history.GetLastCompletedRun(ctx, taskName)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if data, err := run.ToJSON(); err == nil {
		if err := l.cache.Put(key, data); err != nil {
			l.log.Warn().Err(err).Str("task", taskName).Msg("failed to cache last completed run")
		}
	}
	return run, nil
}
