package river

import (
	"context"
	"log/slog"

	"github.com/riverqueue/river"
)

// EventWorker processes lifecycle event jobs from the River queue.
// It records each event in the log; tenant notifications hang off here.
type EventWorker struct {
	river.WorkerDefaults[EventJobArgs]
}

// Work processes a single event job.
func (w *EventWorker) Work(ctx context.Context, job *river.Job[EventJobArgs]) error {
	attrs := []any{
		"event", job.Args.Event,
		"tenant_id", job.Args.TenantID,
		"hostname", job.Args.Hostname,
		"status", job.Args.Status,
		"job_id", job.ID,
		"attempt", job.Attempt,
	}
	if job.Args.FailureKind != "" {
		attrs = append(attrs, "failure_kind", job.Args.FailureKind, "last_error", job.Args.LastError)
	}
	slog.InfoContext(ctx, "processing domain event", attrs...)
	return nil
}
