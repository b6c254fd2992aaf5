// internal/orchestrator/scheduler.go
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"taskmill/internal/localtime"
	"taskmill/internal/models"
	"taskmill/internal/storage"
)

var (
	// ErrUnknownGroup is returned when a manual trigger names a group that
	// is not configured.
	ErrUnknownGroup = errors.New("unknown task group")
	// ErrUnknownTask is returned when a manual trigger names a task absent
	// from the given group.
	ErrUnknownTask = errors.New("unknown task")
)

const (
	recoveryMessage = "interrupted: process was restarted while run was in progress"
	shutdownMessage = "interrupted: scheduler stopped"
)

// Scheduler owns the fixed set of configured groups, binds each to a cron
// trigger evaluated in a single fixed time zone, and gates execution on its
// running flag. Configuration is loaded once; there is no hot reload.
type Scheduler struct {
	store         storage.Store
	exec          *Executor
	zone          *localtime.Converter
	flushInterval time.Duration
	log           zerolog.Logger
	parser        cron.Parser

	mu        sync.Mutex
	groups    []models.TaskGroupConfig
	byName    map[string]models.TaskGroupConfig
	cron      *cron.Cron
	entries   map[string]cron.EntryID
	running   bool
	stopFlush chan struct{}
}

func NewScheduler(store storage.Store, exec *Executor, zone *localtime.Converter, flushInterval time.Duration, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		store:         store,
		exec:          exec,
		zone:          zone,
		flushInterval: flushInterval,
		log:           log.With().Str("component", "scheduler").Logger(),
		// 5-field, minute-granularity cron expressions.
		parser:  cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
		byName:  make(map[string]models.TaskGroupConfig),
		entries: make(map[string]cron.EntryID),
	}
}

// LoadFile loads the task-group document from a JSON file.
func (s *Scheduler) LoadFile(ctx context.Context, path string) error {
	groups, err := models.LoadGroupConfigs(path)
	if err != nil {
		return err
	}
	return s.Load(ctx, groups)
}

// Load registers a cron trigger for every group and then finalizes any run
// left non-terminal by a previous process lifetime. The store's saved state
// is the only evidence of an unclean shutdown.
func (s *Scheduler) Load(ctx context.Context, groups []models.TaskGroupConfig) error {
	if err := models.ValidateGroupConfigs(groups); err != nil {
		return err
	}

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("cannot load configuration while scheduler is running")
	}

	c := cron.New(cron.WithParser(s.parser), cron.WithLocation(s.zone.Location()))
	entries := make(map[string]cron.EntryID, len(groups))
	byName := make(map[string]models.TaskGroupConfig, len(groups))
	for _, g := range groups {
		g := g
		id, err := c.AddFunc(g.Cron, func() { s.fire(g) })
		if err != nil {
			s.mu.Unlock()
			return fmt.Errorf("group %q: invalid cron expression %q: %w", g.GroupName, g.Cron, err)
		}
		entries[g.GroupName] = id
		byName[g.GroupName] = g
	}
	s.groups = groups
	s.byName = byName
	s.cron = c
	s.entries = entries
	s.mu.Unlock()

	s.log.Info().Int("groups", len(groups)).Str("tz", s.zone.Location().String()).Msg("task groups loaded")
	return s.recover(ctx)
}

// fire handles one cron trigger. Firing after Stop is a no-op: a trigger can
// race process exit between signal receipt and termination.
func (s *Scheduler) fire(cfg models.TaskGroupConfig) {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()
	if !running {
		s.log.Debug().Str("group", cfg.GroupName).Msg("ignoring trigger while stopped")
		return
	}

	if err := s.exec.ExecuteGroup(context.Background(), cfg); err != nil {
		s.log.Error().Err(err).Str("group", cfg.GroupName).Msg("scheduled group run failed")
	}
}

// Start activates every registered trigger and begins the periodic flush of
// live task state. Idempotent: starting a running scheduler is a warning
// no-op.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.log.Warn().Msg("scheduler already running")
		return nil
	}
	if s.cron == nil {
		s.mu.Unlock()
		return errors.New("no configuration loaded")
	}
	s.mu.Unlock()

	// Load already recovered, but configuration may be reloaded without a
	// process restart in embedding scenarios, so recover again here.
	if err := s.recover(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	s.running = true
	s.stopFlush = make(chan struct{})
	go s.flushLoop(s.stopFlush)
	s.cron.Start()
	s.mu.Unlock()

	s.log.Info().Msg("scheduler started")
	return nil
}

// Stop finalizes all in-flight runs as shutdown errors, deactivates triggers
// and cancels the periodic flush. Idempotent, and safe to invoke from a
// process-exit signal handler: a later Start must never see stale
// in-progress rows.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	close(s.stopFlush)
	s.stopFlush = nil
	c := s.cron
	s.mu.Unlock()

	// Deactivate triggers without waiting for in-flight hooks. A hook may
	// block indefinitely, and the shutdown-error write below must happen
	// before the process exits regardless; whatever the hook does in memory
	// after this point is lost.
	if c != nil {
		c.Stop()
	}

	n, err := s.store.MarkAllInProgressAsError(ctx, shutdownMessage)
	if err != nil {
		return fmt.Errorf("failed to finalize in-flight runs: %w", err)
	}
	if n > 0 {
		s.log.Warn().Int64("records", n).Msg("marked in-flight runs as shutdown errors")
	}
	s.log.Info().Msg("scheduler stopped")
	return nil
}

func (s *Scheduler) recover(ctx context.Context) error {
	n, err := s.store.MarkAllInProgressAsError(ctx, recoveryMessage)
	if err != nil {
		return fmt.Errorf("startup recovery failed: %w", err)
	}
	if n > 0 {
		s.log.Warn().Int64("records", n).Msg("recovered interrupted runs from previous lifetime")
	}
	return nil
}

func (s *Scheduler) flushLoop(stop <-chan struct{}) {
	ticker := time.NewTicker(s.flushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.exec.FlushRunning()
		case <-stop:
			return
		}
	}
}

// Running reports the scheduler's running flag.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Groups returns the configured task groups.
func (s *Scheduler) Groups() []models.TaskGroupConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.TaskGroupConfig, len(s.groups))
	copy(out, s.groups)
	return out
}

// NextRun returns a group's next trigger time, evaluated in the same fixed
// zone as trigger firing so displayed times match actual firings. The zero
// time means the scheduler is not running.
func (s *Scheduler) NextRun(groupName string) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.entries[groupName]
	if !ok {
		return time.Time{}, ErrUnknownGroup
	}
	if !s.running || s.cron == nil {
		return time.Time{}, nil
	}
	return s.cron.Entry(id).Next, nil
}

// RunGroupNow triggers one group run immediately, independent of cron timing.
// Execution is asynchronous: the call acknowledges dispatch and failures
// surface through subsequent status queries. The duplicate-group guard still
// applies.
func (s *Scheduler) RunGroupNow(groupName string) error {
	s.mu.Lock()
	cfg, ok := s.byName[groupName]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownGroup, groupName)
	}

	go func() {
		if err := s.exec.ExecuteGroup(context.Background(), cfg); err != nil {
			s.log.Error().Err(err).Str("group", groupName).Msg("manual group run failed")
		}
	}()
	return nil
}

// RunTaskNow triggers a single task immediately by synthesizing a one-task
// ad-hoc group. The run gets its own group-run record; the group name is
// suffixed with the task name so the ad-hoc run is not mistaken for (or
// blocked by) a full run of the parent group, while the duplicate-task guard
// still applies against any running task of the same name.
func (s *Scheduler) RunTaskNow(groupName, taskName string) error {
	s.mu.Lock()
	cfg, ok := s.byName[groupName]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownGroup, groupName)
	}

	var target *models.TaskConfig
	for i := range cfg.Tasks {
		if cfg.Tasks[i].Name == taskName {
			target = &cfg.Tasks[i]
			break
		}
	}
	if target == nil {
		return fmt.Errorf("%w: %q in group %q", ErrUnknownTask, taskName, groupName)
	}

	adhoc := models.TaskGroupConfig{
		GroupName:    fmt.Sprintf("%s:%s", cfg.GroupName, taskName),
		Cron:         cfg.Cron, // display only, never re-scheduled
		WarningHours: cfg.WarningHours,
		ErrorHours:   cfg.ErrorHours,
		Tasks:        []models.TaskConfig{*target},
	}

	go func() {
		if err := s.exec.ExecuteGroup(context.Background(), adhoc); err != nil {
			s.log.Error().Err(err).Str("group", groupName).Str("task", taskName).Msg("manual task run failed")
		}
	}()
	return nil
}
