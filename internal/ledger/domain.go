package ledger

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType enumerates supported stock movements.
type TransactionType string

const (
	// TransactionTypeTransferOut is the source leg of a transfer.
	TransactionTypeTransferOut TransactionType = "transfer_out"
	// TransactionTypeTransferIn is the destination leg of a transfer.
	TransactionTypeTransferIn TransactionType = "transfer_in"
	// TransactionTypeManualAdd records an operator adding stock.
	TransactionTypeManualAdd TransactionType = "manual_add"
	// TransactionTypeManualSubtract records an operator removing stock.
	TransactionTypeManualSubtract TransactionType = "manual_subtract"
	// TransactionTypeStockTake records a reconciliation against a physical count.
	TransactionTypeStockTake TransactionType = "stock_take_adjustment"
	// TransactionTypeReceipt records stock added from an external document.
	TransactionTypeReceipt TransactionType = "receipt"
	// TransactionTypeWaste records discarded stock.
	TransactionTypeWaste TransactionType = "waste"
)

// Transaction is one entry in the append-only ledger. Entries are never
// updated or deleted once written.
type Transaction struct {
	ID             string          `json:"id"`
	TeamID         string          `json:"team_id"`
	ItemID         string          `json:"item_id"`
	LocationID     string          `json:"location_id"`
	Type           TransactionType `json:"type"`
	QuantityChange float64         `json:"quantity_change"`
	RelatedTxID    string          `json:"related_tx_id,omitempty"`
	ActorID        string          `json:"actor_id"`
	Notes          string          `json:"notes,omitempty"`
	OccurredAt     time.Time       `json:"occurred_at"`
}

// LocationQuantity is one entry of an item's sparse per-location snapshot.
// A location absent from the list holds quantity zero.
type LocationQuantity struct {
	LocationID string  `json:"location_id"`
	Quantity   float64 `json:"quantity"`
}

// StockItem is the current-state snapshot for a stock-keeping item. It is
// mutated exclusively by the Service, always together with a ledger append.
type StockItem struct {
	ID                string             `json:"id"`
	TeamID            string             `json:"team_id"`
	Name              string             `json:"name"`
	Unit              string             `json:"unit"`
	ReorderPoint      float64            `json:"reorder_point"`
	CostRefID         string             `json:"cost_ref_id,omitempty"`
	DefaultLocationID string             `json:"default_location_id,omitempty"`
	Version           int64              `json:"version"`
	Locations         []LocationQuantity `json:"locations"`
	CreatedAt         time.Time          `json:"created_at"`
	UpdatedAt         time.Time          `json:"updated_at"`
}

// TotalQuantity sums the item's stock across all locations.
func (i StockItem) TotalQuantity() float64 {
	var total float64
	for _, l := range i.Locations {
		total += l.Quantity
	}
	return total
}

// IsLowStock reports whether total stock is at or below the reorder point.
func (i StockItem) IsLowStock() bool {
	return i.TotalQuantity() <= i.ReorderPoint
}

// QuantityAt returns the quantity held at a location, zero when absent.
func (i StockItem) QuantityAt(locationID string) float64 {
	for _, l := range i.Locations {
		if l.LocationID == locationID {
			return l.Quantity
		}
	}
	return 0
}

// AdjustDirection selects between adding and subtracting stock.
type AdjustDirection string

const (
	AdjustAdd      AdjustDirection = "add"
	AdjustSubtract AdjustDirection = "subtract"
)

// TransferInput describes a stock move between two locations.
type TransferInput struct {
	TeamID         string
	ItemID         string
	FromLocationID string
	ToLocationID   string
	Quantity       float64
	ActorID        string
	Notes          string
}

// AdjustInput describes a manual add or subtract at one location.
type AdjustInput struct {
	TeamID     string
	ItemID     string
	LocationID string
	Quantity   float64
	Direction  AdjustDirection
	ActorID    string
	Notes      string
}

// StockTakeInput describes a reconciliation against a physical count.
type StockTakeInput struct {
	TeamID          string
	ItemID          string
	LocationID      string
	CountedQuantity float64
	ActorID         string
}

// NewItemSpec describes an item created implicitly on first receipt.
type NewItemSpec struct {
	Name         string
	Unit         string
	ReorderPoint float64
}

// ReceiveInput describes stock received from an external document. Exactly
// one of ItemID or NewItem must be set. OccurredAt lets a batch importer
// stamp every line with a shared timestamp; zero means the service clock.
type ReceiveInput struct {
	TeamID     string
	ItemID     string
	NewItem    *NewItemSpec
	LocationID string
	Quantity   float64
	UnitPrice  decimal.Decimal
	ActorID    string
	Notes      string
	OccurredAt time.Time
}

// WasteInput describes stock discarded from the item's default location.
type WasteInput struct {
	TeamID   string
	ItemID   string
	Quantity float64
	Reason   string
	Notes    string
	ActorID  string
}

// TransferResult reports the two linked legs of a completed transfer.
type TransferResult struct {
	Out Transaction `json:"out"`
	In  Transaction `json:"in"`
}

// AdjustResult reports an applied adjustment. When a subtract or waste is
// clamped at zero, Applied carries the real delta and Clamped is set; the
// Transaction pointer is nil when nothing moved.
type AdjustResult struct {
	ItemID      string       `json:"item_id"`
	LocationID  string       `json:"location_id"`
	Requested   float64      `json:"requested"`
	Applied     float64      `json:"applied"`
	NewQuantity float64      `json:"new_quantity"`
	Clamped     bool         `json:"clamped"`
	Transaction *Transaction `json:"transaction,omitempty"`
}

// StockTakeResult reports a reconciliation. Transaction is nil when the
// count already matched the recorded quantity.
type StockTakeResult struct {
	ItemID      string       `json:"item_id"`
	LocationID  string       `json:"location_id"`
	Previous    float64      `json:"previous"`
	Counted     float64      `json:"counted"`
	Diff        float64      `json:"diff"`
	Transaction *Transaction `json:"transaction,omitempty"`
}

// ReceiveResult reports a completed receipt. Created is set when the item
// was minted by this call, with CostRefID linking its new cost record.
type ReceiveResult struct {
	ItemID      string      `json:"item_id"`
	Created     bool        `json:"created"`
	CostRefID   string      `json:"cost_ref_id,omitempty"`
	NewQuantity float64     `json:"new_quantity"`
	Transaction Transaction `json:"transaction"`
}

// IntegrityDrift reports a snapshot row whose quantity disagrees with the
// sum of its ledger entries.
type IntegrityDrift struct {
	TeamID     string  `json:"team_id"`
	ItemID     string  `json:"item_id"`
	LocationID string  `json:"location_id"`
	Snapshot   float64 `json:"snapshot"`
	LedgerSum  float64 `json:"ledger_sum"`
}

// ErrInsufficientStock is returned when a transfer exceeds source stock.
var ErrInsufficientStock = errors.New("ledger: insufficient stock at source location")

// ErrInvalidQuantity indicates a non-positive quantity where a positive one is required.
var ErrInvalidQuantity = errors.New("ledger: quantity must be positive")

// ErrSameLocation indicates a transfer onto itself.
var ErrSameLocation = errors.New("ledger: source and destination location must differ")

// ErrItemNotFound indicates an unknown stock item id.
var ErrItemNotFound = errors.New("ledger: stock item not found")

// ErrLocationNotFound indicates an unknown location id.
var ErrLocationNotFound = errors.New("ledger: location not found")

// ErrVersionConflict indicates a concurrent writer won the item update.
var ErrVersionConflict = errors.New("ledger: stock item modified concurrently")

// ErrNoDefaultLocation indicates a waste deduction against an item that has
// no default location and no stock entries to fall back to.
var ErrNoDefaultLocation = errors.New("ledger: item has no default location")
