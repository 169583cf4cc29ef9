package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/brigade-ops/brigade/internal/ledger"
	"github.com/brigade-ops/brigade/internal/observability"
)

// IntegrityChecker compares the snapshot against ledger sums.
type IntegrityChecker interface {
	CheckIntegrity(ctx context.Context) ([]ledger.IntegrityDrift, error)
}

// KeyCleaner expires old idempotency keys alongside the nightly run.
type KeyCleaner interface {
	Cleanup(ctx context.Context, olderThan time.Duration) error
}

// IntegrityCheckJob runs the nightly snapshot-vs-ledger comparison. Drift
// is reported, never auto-corrected.
type IntegrityCheckJob struct {
	Checker      IntegrityChecker
	Keys         KeyCleaner
	KeyRetention time.Duration
	Logger       *slog.Logger
	Metrics      *observability.Metrics
}

// NewIntegrityCheckJob initialises the integrity handler.
func NewIntegrityCheckJob(checker IntegrityChecker, keys KeyCleaner, logger *slog.Logger, metrics *observability.Metrics) *IntegrityCheckJob {
	return &IntegrityCheckJob{Checker: checker, Keys: keys, KeyRetention: 30 * 24 * time.Hour, Logger: logger, Metrics: metrics}
}

// Handle executes one integrity pass.
func (j *IntegrityCheckJob) Handle(ctx context.Context, _ *asynq.Task) error {
	if j == nil || j.Checker == nil {
		return errors.New("integrity check: handler not configured")
	}
	start := time.Now()
	logger := j.logger()
	j.Metrics.RecordJob(TaskIntegrityCheck)

	drifts, err := j.Checker.CheckIntegrity(ctx)
	if err != nil {
		logger.Error("integrity check failed", slog.Any("error", err))
		return err
	}
	for _, d := range drifts {
		logger.Warn("ledger drift detected",
			slog.String("team_id", d.TeamID),
			slog.String("item_id", d.ItemID),
			slog.String("location_id", d.LocationID),
			slog.Float64("snapshot", d.Snapshot),
			slog.Float64("ledger_sum", d.LedgerSum),
		)
	}
	if j.Keys != nil {
		if err := j.Keys.Cleanup(ctx, j.KeyRetention); err != nil {
			logger.Warn("idempotency key cleanup failed", slog.Any("error", err))
		}
	}
	logger.Info("completed integrity check",
		slog.Int("drifts", len(drifts)),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}

func (j *IntegrityCheckJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskIntegrityCheck))
	}
	return slog.Default().With(slog.String("job", TaskIntegrityCheck))
}
