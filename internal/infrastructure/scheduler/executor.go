package scheduler

import (
	"context"

	appinventory "github.com/channelsync/backend/internal/application/inventory"
)

// ChannelReconciler is the application port the executor drives
type ChannelReconciler interface {
	ReconcileChannel(ctx context.Context, channelUID string) (*appinventory.ChannelRunReport, error)
}

// ReconcileJobExecutor adapts the reconciliation service to the scheduler's
// executor contract.
type ReconcileJobExecutor struct {
	reconciler ChannelReconciler
}

// NewReconcileJobExecutor creates a new executor around the given reconciler
func NewReconcileJobExecutor(reconciler ChannelReconciler) *ReconcileJobExecutor {
	return &ReconcileJobExecutor{reconciler: reconciler}
}

// Execute implements ReconcileExecutor
func (e *ReconcileJobExecutor) Execute(ctx context.Context, job *ReconcileJob) error {
	report, err := e.reconciler.ReconcileChannel(ctx, job.ChannelUID)
	if err != nil {
		return err
	}

	job.Complete(report.Products, report.Total, report.Succeeded, report.Failed, report.Skipped)
	return nil
}

var _ ReconcileExecutor = (*ReconcileJobExecutor)(nil)
