package jobs

import (
	"context"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	jobmetrics "github.com/campuslink/campuslink-admin/internal/jobs"
)

// TaskSessionSweep prunes expired session rows nightly.
const TaskSessionSweep = "sessions:sweep"

// NewSessionSweepTask constructs an Asynq task for the session sweep.
func NewSessionSweepTask() *asynq.Task {
	return asynq.NewTask(TaskSessionSweep, nil, asynq.Queue(QueueDefault))
}

// SweepExpiredSessions deletes session rows past their expiry.
func SweepExpiredSessions(ctx context.Context, pool *pgxpool.Pool, logger *slog.Logger) error {
	if pool == nil {
		return nil
	}
	tag, err := pool.Exec(ctx, `DELETE FROM sessions WHERE expires_at < NOW()`)
	if err != nil {
		if logger != nil {
			logger.Error("session sweep", slog.Any("error", err))
		}
		return err
	}
	if logger != nil {
		logger.Info("session sweep completed",
			slog.String("job", "session_sweep"),
			slog.Int64("removed", tag.RowsAffected()))
	}
	return nil
}

// NewSessionSweepHandler returns the Asynq handler for the session sweep.
func NewSessionSweepHandler(pool *pgxpool.Pool, metrics *jobmetrics.Metrics, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		tracker := metrics.Track("session_sweep")
		return tracker.End(SweepExpiredSessions(ctx, pool, logger))
	}
}
