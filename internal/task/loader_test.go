package task

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"taskmill/internal/localtime"
	"taskmill/internal/models"
	"taskmill/internal/storage"
)

type fakeHistory struct {
	runs map[string]*models.TaskRun
}

func (f *fakeHistory) GetLastCompletedRun(ctx context.Context, taskName string) (*models.TaskRun, error) {
	run, ok := f.runs[taskName]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return run, nil
}

func newTestLoader(history *fakeHistory, offset int) *Loader {
	registry := NewRegistry()
	registry.Register("mod/ok", func(name, id string, params map[string]interface{}) (Hook, error) {
		return func(ctx context.Context, t *Task) error { return nil }, nil
	})
	registry.Register("mod/bad-factory", func(name, id string, params map[string]interface{}) (Hook, error) {
		return nil, errors.New("missing constructor export")
	})
	registry.Register("mod/nil-hook", func(name, id string, params map[string]interface{}) (Hook, error) {
		return nil, nil
	})
	return NewLoader(registry, history, nil, localtime.New(offset), zerolog.Nop())
}

func TestLoadComputesLastChangedDefault(t *testing.T) {
	t.Parallel()
	l := newTestLoader(&fakeHistory{runs: map[string]*models.TaskRun{}}, 5)

	tk, err := l.Load(context.Background(), models.TaskConfig{Name: "sync", FilePath: "mod/ok"}, "tid", "gid")
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	got := tk.Params()["lastChanged"]
	if got != "2000-01-01T05:00:00Z" {
		t.Fatalf("lastChanged = %v, want 2000-01-01T05:00:00Z", got)
	}
}

func TestLoadComputesLastChangedFromHistory(t *testing.T) {
	t.Parallel()
	start := time.Date(2024, time.June, 1, 12, 0, 0, 0, time.UTC)
	history := &fakeHistory{runs: map[string]*models.TaskRun{
		"sync": {TaskName: "sync", Status: models.TaskStatusCompleted, StartTime: &start},
	}}
	l := newTestLoader(history, 2)

	tk, err := l.Load(context.Background(), models.TaskConfig{Name: "sync", FilePath: "mod/ok"}, "tid", "gid")
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	// start − 10 minutes, shifted into the +2 zone's wall clock.
	if got := tk.Params()["lastChanged"]; got != "2024-06-01T13:50:00Z" {
		t.Fatalf("lastChanged = %v, want 2024-06-01T13:50:00Z", got)
	}
}

func TestLoadKeepsExplicitLastChanged(t *testing.T) {
	t.Parallel()
	l := newTestLoader(&fakeHistory{runs: map[string]*models.TaskRun{}}, 0)

	cfg := models.TaskConfig{
		Name:     "sync",
		FilePath: "mod/ok",
		Params:   map[string]interface{}{"lastChanged": "2023-01-01T00:00:00Z"},
	}
	tk, err := l.Load(context.Background(), cfg, "tid", "gid")
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if got := tk.Params()["lastChanged"]; got != "2023-01-01T00:00:00Z" {
		t.Fatalf("explicit lastChanged overwritten: %v", got)
	}
}

func TestLoadDoesNotMutateConfigParams(t *testing.T) {
	t.Parallel()
	l := newTestLoader(&fakeHistory{runs: map[string]*models.TaskRun{}}, 0)

	cfg := models.TaskConfig{Name: "sync", FilePath: "mod/ok", Params: map[string]interface{}{"a": 1}}
	if _, err := l.Load(context.Background(), cfg, "tid", "gid"); err != nil {
		t.Fatal(err)
	}
	if _, ok := cfg.Params["lastChanged"]; ok {
		t.Fatal("Load must not write computed params back into the shared config")
	}
}

func TestLoadModuleContractErrors(t *testing.T) {
	t.Parallel()
	l := newTestLoader(&fakeHistory{runs: map[string]*models.TaskRun{}}, 0)

	tests := []struct {
		name string
		path string
	}{
		{name: "unregistered module", path: "mod/missing"},
		{name: "factory error", path: "mod/bad-factory"},
		{name: "nil hook", path: "mod/nil-hook"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			_, err := l.Load(context.Background(), models.TaskConfig{Name: "x", FilePath: tt.path}, "tid", "gid")
			var contractErr *ModuleContractError
			if !errors.As(err, &contractErr) {
				t.Fatalf("error = %v, want ModuleContractError", err)
			}
		})
	}
}

func TestRegistryRejectsDuplicate(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	factory := func(name, id string, params map[string]interface{}) (Hook, error) { return nil, nil }
	if err := r.Register("mod/a", factory); err != nil {
		t.Fatal(err)
	}
	if err := r.Register("mod/a", factory); err == nil {
		t.Fatal("expected duplicate registration error")
	}
}
