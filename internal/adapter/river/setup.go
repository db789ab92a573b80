package river

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riversqlite"
	"github.com/riverqueue/river/rivermigrate"
)

// QueueEvents is the queue lifecycle event jobs are inserted into.
const QueueEvents = "domain_events"

const (
	eventWorkers     = 2
	eventMaxAttempts = 5
	eventJobTimeout  = 30 * time.Second
)

// Setup migrates River's schema on db and returns a client with the event
// worker registered on QueueEvents. The caller owns Start and Stop.
func Setup(ctx context.Context, db *sql.DB) (*Client, error) {
	driver := riversqlite.New(db)

	// River keeps its own tables (river_job, river_leader, ...) next to the
	// goose-managed domains table.
	migrator, err := rivermigrate.New(driver, nil)
	if err != nil {
		return nil, fmt.Errorf("creating river migrator: %w", err)
	}
	res, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil)
	if err != nil {
		return nil, fmt.Errorf("running river migrations: %w", err)
	}
	for _, v := range res.Versions {
		slog.DebugContext(ctx, "applied river migration", "version", v.Version)
	}

	workers := river.NewWorkers()
	if err := river.AddWorkerSafely(workers, &EventWorker{}); err != nil {
		return nil, fmt.Errorf("registering event worker: %w", err)
	}

	client, err := river.NewClient(driver, &river.Config{
		Queues: map[string]river.QueueConfig{
			QueueEvents: {MaxWorkers: eventWorkers},
		},
		Workers:    workers,
		Logger:     slog.Default(),
		JobTimeout: eventJobTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("creating river client: %w", err)
	}

	return client, nil
}
