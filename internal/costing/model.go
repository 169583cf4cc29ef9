package costing

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// CostRecord links a stock item to its current unit cost. Records are
// minted together with items discovered during reconciliation import and
// their price/unit refresh on every matched re-import.
type CostRecord struct {
	ID        string          `json:"id"`
	TeamID    string          `json:"team_id"`
	ItemID    string          `json:"item_id"`
	Unit      string          `json:"unit"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// ErrNotFound indicates no cost record for the item.
var ErrNotFound = errors.New("costing: cost record not found")
