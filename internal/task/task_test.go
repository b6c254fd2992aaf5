package task

import (
	"context"
	"errors"
	"testing"

	"taskmill/internal/models"
)

func TestStartSuccess(t *testing.T) {
	t.Parallel()
	ran := false
	tk := New("demo", "id-1", nil, func(ctx context.Context, t *Task) error {
		ran = true
		return nil
	})

	if err := tk.Start(context.Background()); err != nil {
		t.Fatalf("Start error: %v", err)
	}
	if !ran {
		t.Fatal("hook did not run")
	}
	if got := tk.Status(); got != models.TaskStatusCompleted {
		t.Fatalf("status = %s, want completed", got)
	}
	if _, ok := tk.Duration(); !ok {
		t.Fatal("duration should be set after completion")
	}
}

func TestStartFailure(t *testing.T) {
	t.Parallel()
	hookErr := errors.New("boom")
	tk := New("demo", "id-1", nil, func(ctx context.Context, t *Task) error {
		return hookErr
	})

	err := tk.Start(context.Background())
	if !errors.Is(err, hookErr) {
		t.Fatalf("Start error = %v, want %v", err, hookErr)
	}
	snap := tk.Snapshot()
	if snap.Status != models.TaskStatusError {
		t.Fatalf("status = %s, want error", snap.Status)
	}
	if snap.Message != "boom" {
		t.Fatalf("message = %q, want boom", snap.Message)
	}
	if snap.EndTime == nil {
		t.Fatal("end time should be set after failure")
	}
}

func TestStartRecoversPanic(t *testing.T) {
	t.Parallel()
	tk := New("demo", "id-1", nil, func(ctx context.Context, t *Task) error {
		panic("kaput")
	})

	err := tk.Start(context.Background())
	if err == nil {
		t.Fatal("expected error from panicking hook")
	}
	if got := tk.Status(); got != models.TaskStatusError {
		t.Fatalf("status = %s, want error", got)
	}
}

func TestStartTwice(t *testing.T) {
	t.Parallel()
	tk := New("demo", "id-1", nil, func(ctx context.Context, t *Task) error { return nil })
	if err := tk.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := tk.Start(context.Background()); err == nil {
		t.Fatal("expected error starting from terminal status")
	}
}

func TestReportFailureSurvivesCleanReturn(t *testing.T) {
	t.Parallel()
	tk := New("demo", "id-1", nil, func(ctx context.Context, t *Task) error {
		t.ReportFailure("gave up halfway")
		return nil
	})

	if err := tk.Start(context.Background()); err != nil {
		t.Fatalf("Start error: %v", err)
	}
	snap := tk.Snapshot()
	if snap.Status != models.TaskStatusError {
		t.Fatalf("status = %s, want error", snap.Status)
	}
	if snap.Message != "gave up halfway" {
		t.Fatalf("message = %q", snap.Message)
	}
}

func TestSkip(t *testing.T) {
	t.Parallel()
	tk := New("demo", "id-1", nil, func(ctx context.Context, t *Task) error { return nil })
	if err := tk.Skip("already running"); err != nil {
		t.Fatalf("Skip error: %v", err)
	}
	snap := tk.Snapshot()
	if snap.Status != models.TaskStatusSkipped {
		t.Fatalf("status = %s, want skipped", snap.Status)
	}
	if snap.Summary == nil || *snap.Summary != "already running" {
		t.Fatalf("summary = %v, want reason", snap.Summary)
	}
	if snap.StartTime != nil {
		t.Fatal("skip must bypass in_progress, start time should be unset")
	}
	if err := tk.Skip("again"); err == nil {
		t.Fatal("expected error skipping from terminal status")
	}
}

func TestObserversSynchronousInOrder(t *testing.T) {
	t.Parallel()
	tk := New("demo", "id-1", nil, func(ctx context.Context, t *Task) error {
		t.ReportProgress("halfway", 50)
		t.ReportSummary("done")
		return nil
	})

	var order []string
	tk.Subscribe(EventStatus, func(ev Event) { order = append(order, "status-a") })
	tk.Subscribe(EventStatus, func(ev Event) { order = append(order, "status-b") })
	tk.Subscribe(EventProgress, func(ev Event) { order = append(order, "progress") })
	tk.Subscribe(EventSummary, func(ev Event) { order = append(order, "summary") })

	if err := tk.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	want := []string{
		"status-a", "status-b", // created → in_progress
		"progress",
		"summary",
		"status-a", "status-b", // in_progress → completed
	}
	if len(order) != len(want) {
		t.Fatalf("got %d notifications %v, want %d", len(order), order, len(want))
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("notification %d = %s, want %s (full: %v)", i, order[i], want[i], order)
		}
	}
}

func TestProgressSnapshot(t *testing.T) {
	t.Parallel()
	tk := New("demo", "id-1", nil, func(ctx context.Context, t *Task) error { return nil })
	tk.ReportProgress("step 1", 25)
	tk.ReportProgress("step 2", 75)

	snap := tk.Snapshot()
	if snap.Message != "step 2" {
		t.Fatalf("message = %q, want step 2", snap.Message)
	}
	if snap.Percentage == nil || *snap.Percentage != 75 {
		t.Fatalf("percentage = %v, want 75", snap.Percentage)
	}

	// Progress without percentage keeps the previous value.
	tk.ReportProgress("step 3")
	snap = tk.Snapshot()
	if snap.Percentage == nil || *snap.Percentage != 75 {
		t.Fatalf("percentage = %v, want 75 preserved", snap.Percentage)
	}
}
