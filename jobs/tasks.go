package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskLowStockScan walks every team and flags items at or below their reorder point.
	TaskLowStockScan = "ledger:lowstock_scan"
	// TaskLowStockAlert notifies a team about one low-stock item.
	TaskLowStockAlert = "ledger:lowstock_alert"
	// TaskIntegrityCheck compares the stock snapshot against ledger sums.
	TaskIntegrityCheck = "ledger:integrity_check"
)

// LowStockAlertPayload identifies the item a team should reorder.
type LowStockAlertPayload struct {
	TeamID       string  `json:"team_id"`
	ItemID       string  `json:"item_id"`
	Name         string  `json:"name"`
	Unit         string  `json:"unit"`
	Total        float64 `json:"total"`
	ReorderPoint float64 `json:"reorder_point"`
}

// NewLowStockAlertTask constructs an Asynq task.
func NewLowStockAlertTask(payload LowStockAlertPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLowStockAlert, data), nil
}

// NewLowStockScanTask constructs the periodic scan task.
func NewLowStockScanTask() *asynq.Task {
	return asynq.NewTask(TaskLowStockScan, nil)
}

// NewIntegrityCheckTask constructs the periodic integrity task.
func NewIntegrityCheckTask() *asynq.Task {
	return asynq.NewTask(TaskIntegrityCheck, nil)
}

// HandleLowStockAlertTask processes TaskLowStockAlert tasks. Delivery is a
// structured log line for now; notification channels come later.
func HandleLowStockAlertTask(_ context.Context, t *asynq.Task) error {
	var payload LowStockAlertPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	slog.Warn("low stock alert",
		slog.String("team_id", payload.TeamID),
		slog.String("item_id", payload.ItemID),
		slog.String("name", payload.Name),
		slog.Float64("total", payload.Total),
		slog.Float64("reorder_point", payload.ReorderPoint),
	)
	return nil
}
