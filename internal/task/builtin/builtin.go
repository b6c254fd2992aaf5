// internal/task/builtin/builtin.go
package builtin

import (
	"context"
	"fmt"
	"time"

	"taskmill/internal/task"
)

// Register wires the built-in task modules into a registry. They serve as
// working references for task authors and as targets for smoke-testing a
// deployment's group configuration.
func Register(r *task.Registry) error {
	modules := map[string]task.Factory{
		"builtin/noop":  noopFactory,
		"builtin/sleep": sleepFactory,
		"builtin/fail":  failFactory,
	}
	for path, factory := range modules {
		if err := r.Register(path, factory); err != nil {
			return err
		}
	}
	return nil
}

// noopFactory builds a task that completes immediately.
func noopFactory(name, id string, params map[string]interface{}) (task.Hook, error) {
	return func(ctx context.Context, t *task.Task) error {
		t.ReportSummary("nothing to do")
		return nil
	}, nil
}

// sleepFactory builds a task that sleeps for params["seconds"] (default 5),
// reporting progress once per second. Demonstrates progress and summary
// reporting plus context awareness.
func sleepFactory(name, id string, params map[string]interface{}) (task.Hook, error) {
	seconds := 5
	if raw, ok := params["seconds"]; ok {
		f, ok := raw.(float64) // JSON numbers decode as float64
		if !ok || f <= 0 {
			return nil, fmt.Errorf("seconds must be a positive number, got %v", raw)
		}
		seconds = int(f)
	}

	return func(ctx context.Context, t *task.Task) error {
		for i := 1; i <= seconds; i++ {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
			}
			t.ReportProgress(fmt.Sprintf("slept %d/%d seconds", i, seconds), float64(i)/float64(seconds)*100)
		}
		t.ReportSummary(fmt.Sprintf("slept for %d seconds", seconds))
		return nil
	}, nil
}

// failFactory builds a task that always fails, either by returning an error
// (the default) or via ReportFailure when params["report"] is true.
func failFactory(name, id string, params map[string]interface{}) (task.Hook, error) {
	report := false
	if raw, ok := params["report"]; ok {
		report, _ = raw.(bool)
	}

	return func(ctx context.Context, t *task.Task) error {
		if report {
			t.ReportFailure("deliberate failure (reported)")
			return nil
		}
		return fmt.Errorf("deliberate failure")
	}, nil
}
