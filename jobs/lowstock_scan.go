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

// StockReader is the slice of the ledger read model the scan needs.
type StockReader interface {
	ListTeams(ctx context.Context) ([]string, error)
	ListLowStock(ctx context.Context, teamID string) ([]ledger.StockItem, error)
}

// Enqueuer submits follow-up tasks to the queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, task *asynq.Task) error
}

// LowStockScanJob walks every team and enqueues one alert per item whose
// total stock sits at or below the reorder point.
type LowStockScanJob struct {
	Reader  StockReader
	Queue   Enqueuer
	Logger  *slog.Logger
	Metrics *observability.Metrics
}

// NewLowStockScanJob initialises the scan handler.
func NewLowStockScanJob(reader StockReader, queue Enqueuer, logger *slog.Logger, metrics *observability.Metrics) *LowStockScanJob {
	return &LowStockScanJob{Reader: reader, Queue: queue, Logger: logger, Metrics: metrics}
}

// Handle executes one scan pass.
func (j *LowStockScanJob) Handle(ctx context.Context, _ *asynq.Task) error {
	if j == nil || j.Reader == nil {
		return errors.New("lowstock scan: handler not configured")
	}
	start := time.Now()
	logger := j.logger()
	j.Metrics.RecordJob(TaskLowStockScan)

	teams, err := j.Reader.ListTeams(ctx)
	if err != nil {
		logger.Error("list teams failed", slog.Any("error", err))
		return err
	}

	var alerts int
	for _, teamID := range teams {
		items, err := j.Reader.ListLowStock(ctx, teamID)
		if err != nil {
			logger.Error("low stock query failed", slog.String("team_id", teamID), slog.Any("error", err))
			continue
		}
		for _, item := range items {
			task, err := NewLowStockAlertTask(LowStockAlertPayload{
				TeamID:       teamID,
				ItemID:       item.ID,
				Name:         item.Name,
				Unit:         item.Unit,
				Total:        item.TotalQuantity(),
				ReorderPoint: item.ReorderPoint,
			})
			if err != nil {
				return err
			}
			if j.Queue != nil {
				if err := j.Queue.Enqueue(ctx, task); err != nil {
					logger.Error("enqueue alert failed", slog.String("item_id", item.ID), slog.Any("error", err))
					continue
				}
			}
			alerts++
		}
	}

	logger.Info("completed low stock scan",
		slog.Int("teams", len(teams)),
		slog.Int("alerts", alerts),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}

func (j *LowStockScanJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskLowStockScan))
	}
	return slog.Default().With(slog.String("job", TaskLowStockScan))
}
