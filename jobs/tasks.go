package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/opsrelay/opsrelay/internal/observability"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskReconcileMemberships is the task type for the periodic membership
	// repair pass.
	TaskReconcileMemberships = "access:reconcile_memberships"
)

// ReconcilePayload parameterizes a reconciliation run.
type ReconcilePayload struct {
	Reason string `json:"reason"`
}

// NewReconcileTask constructs an Asynq task for a reconciliation run.
func NewReconcileTask(payload ReconcilePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReconcileMemberships, data), nil
}

// MembershipReconciler runs the membership repair pass. Implemented by the
// group service.
type MembershipReconciler interface {
	Reconcile(ctx context.Context, actor string) (int, error)
}

// NewReconcileHandler returns the handler func for reconciliation tasks.
func NewReconcileHandler(reconciler MembershipReconciler, metrics *observability.Metrics, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload ReconcilePayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		repaired, err := reconciler.Reconcile(ctx, "scheduler")
		if err != nil {
			logger.Error("scheduled reconciliation failed",
				slog.String("reason", payload.Reason),
				slog.Any("error", err))
			return err
		}
		metrics.CountRepairs(repaired)
		logger.Info("scheduled reconciliation finished",
			slog.String("reason", payload.Reason),
			slog.Int("repaired", repaired))
		return nil
	}
}
