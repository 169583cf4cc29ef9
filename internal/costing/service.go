package costing

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

// Service exposes the cost record read/refresh side. Creation happens
// inside the ledger engine's receive commit.
type Service struct {
	repo Repository
}

// NewService builds Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// GetByItem returns the cost record linked to an item.
func (s *Service) GetByItem(ctx context.Context, teamID, itemID string) (CostRecord, error) {
	if teamID == "" || itemID == "" {
		return CostRecord{}, errors.New("costing: team and item required")
	}
	return s.repo.GetByItem(ctx, teamID, itemID)
}

// RefreshPrice overwrites the record's unit and price with imported values.
func (s *Service) RefreshPrice(ctx context.Context, teamID, itemID, unit string, price decimal.Decimal) error {
	if teamID == "" || itemID == "" {
		return errors.New("costing: team and item required")
	}
	if unit == "" {
		return errors.New("costing: unit required")
	}
	if price.IsNegative() {
		return errors.New("costing: unit price must be >= 0")
	}
	return s.repo.UpdatePrice(ctx, teamID, itemID, unit, price)
}
