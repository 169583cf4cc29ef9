package reconcile

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// ImportLine is one parsed invoice line. An upstream matcher has already
// resolved it to either an existing item id or "new".
type ImportLine struct {
	Name      string
	Unit      string
	Quantity  float64
	UnitPrice decimal.Decimal
	IsNew     bool
	ItemID    string
}

// ImportInput is a batch of invoice lines received into one location.
// ImportID doubles as the idempotency key for the batch.
type ImportInput struct {
	ImportID         string
	TeamID           string
	TargetLocationID string
	ActorID          string
	Lines            []ImportLine
}

// LineResult reports the outcome of one line. Lines are independent
// receipts, so a failed line never rolls back earlier ones.
type LineResult struct {
	Index     int     `json:"index"`
	Name      string  `json:"name"`
	ItemID    string  `json:"item_id,omitempty"`
	Created   bool    `json:"created"`
	Quantity  float64 `json:"quantity"`
	Succeeded bool    `json:"succeeded"`
	Error     string  `json:"error,omitempty"`
}

// ImportResult aggregates per-line outcomes of one batch.
type ImportResult struct {
	ImportID   string       `json:"import_id"`
	ImportedAt time.Time    `json:"imported_at"`
	Succeeded  int          `json:"succeeded"`
	Failed     int          `json:"failed"`
	Lines      []LineResult `json:"lines"`
}

// ErrDuplicateImport indicates the batch was already processed.
var ErrDuplicateImport = errors.New("reconcile: import already processed")

// ErrEmptyImport indicates a batch with no lines.
var ErrEmptyImport = errors.New("reconcile: import contains no lines")
