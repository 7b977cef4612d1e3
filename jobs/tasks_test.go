package jobs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/hibiken/asynq"
)

type stubReconciler struct {
	repaired int
	err      error
	calls    int
	actor    string
}

func (s *stubReconciler) Reconcile(_ context.Context, actor string) (int, error) {
	s.calls++
	s.actor = actor
	return s.repaired, s.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestReconcileHandlerRunsRepairPass(t *testing.T) {
	rec := &stubReconciler{repaired: 3}
	handler := NewReconcileHandler(rec, nil, discardLogger())

	task, err := NewReconcileTask(ReconcilePayload{Reason: "scheduled"})
	if err != nil {
		t.Fatalf("new task: %v", err)
	}
	if err := handler(context.Background(), task); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if rec.calls != 1 {
		t.Fatalf("reconciler called %d times", rec.calls)
	}
	if rec.actor != "scheduler" {
		t.Fatalf("actor = %q", rec.actor)
	}
}

func TestReconcileHandlerSkipsRetryOnBadPayload(t *testing.T) {
	rec := &stubReconciler{}
	handler := NewReconcileHandler(rec, nil, discardLogger())

	task := asynq.NewTask(TaskReconcileMemberships, []byte("{not json"))
	if err := handler(context.Background(), task); !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("err = %v, want SkipRetry", err)
	}
	if rec.calls != 0 {
		t.Fatal("reconciler must not run on malformed payload")
	}
}

func TestReconcileHandlerPropagatesFailure(t *testing.T) {
	boom := errors.New("scan failed")
	rec := &stubReconciler{err: boom}
	handler := NewReconcileHandler(rec, nil, discardLogger())

	task, err := NewReconcileTask(ReconcilePayload{Reason: "manual"})
	if err != nil {
		t.Fatalf("new task: %v", err)
	}
	if err := handler(context.Background(), task); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
}
