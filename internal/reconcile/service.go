package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/brigade-ops/brigade/internal/ledger"
	"github.com/brigade-ops/brigade/internal/shared"
)

// LedgerPort is the slice of the ledger engine the importer drives.
type LedgerPort interface {
	Receive(ctx context.Context, input ledger.ReceiveInput) (ledger.ReceiveResult, error)
}

// CostingPort refreshes the cost record of a matched line. Price refresh
// is a documented side effect of importing, not just a receipt.
type CostingPort interface {
	RefreshPrice(ctx context.Context, teamID, itemID, unit string, price decimal.Decimal) error
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service turns a parsed invoice into a sequence of receipt calls.
type Service struct {
	logger  *slog.Logger
	ledger  LedgerPort
	costing CostingPort
	idem    *shared.IdempotencyStore
	audit   AuditPort
	now     func() time.Time
}

// NewService builds Service. A nil idempotency store disables duplicate
// batch detection, which is only acceptable in tests.
func NewService(logger *slog.Logger, ledgerSvc LedgerPort, costing CostingPort, idem *shared.IdempotencyStore, audit AuditPort) *Service {
	return &Service{
		logger:  logger,
		ledger:  ledgerSvc,
		costing: costing,
		idem:    idem,
		audit:   audit,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

var titleCaser = cases.Title(language.English)

// Import processes a batch of lines against one target location. Lines
// are applied in order and independently: a failing line is reported and
// skipped, it does not block later lines or roll back earlier ones. All
// lines of one batch share a single import timestamp.
func (s *Service) Import(ctx context.Context, input ImportInput) (ImportResult, error) {
	if input.ImportID == "" || input.TeamID == "" || input.TargetLocationID == "" {
		return ImportResult{}, errors.New("reconcile: import id, team and target location required")
	}
	if len(input.Lines) == 0 {
		return ImportResult{}, ErrEmptyImport
	}
	if s.idem != nil {
		err := s.idem.CheckAndInsert(ctx, "import:"+input.ImportID, "reconcile")
		if errors.Is(err, shared.ErrIdempotencyConflict) {
			return ImportResult{}, ErrDuplicateImport
		}
		if err != nil {
			return ImportResult{}, fmt.Errorf("reconcile: reserve import key: %w", err)
		}
	}

	batchAt := s.now()
	result := ImportResult{ImportID: input.ImportID, ImportedAt: batchAt, Lines: make([]LineResult, 0, len(input.Lines))}
	for i, line := range input.Lines {
		lr := s.processLine(ctx, input, i, line, batchAt)
		if lr.Succeeded {
			result.Succeeded++
		} else {
			result.Failed++
		}
		result.Lines = append(result.Lines, lr)
	}

	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			TeamID:   input.TeamID,
			ActorID:  input.ActorID,
			Action:   "reconcile:import",
			Entity:   "import",
			EntityID: input.ImportID,
			Meta:     map[string]any{"lines": len(input.Lines), "succeeded": result.Succeeded, "failed": result.Failed},
		})
	}
	if result.Failed > 0 {
		s.logger.Warn("import finished with failed lines",
			slog.String("import_id", input.ImportID),
			slog.Int("succeeded", result.Succeeded),
			slog.Int("failed", result.Failed))
	}
	return result, nil
}

func (s *Service) processLine(ctx context.Context, input ImportInput, idx int, line ImportLine, batchAt time.Time) LineResult {
	lr := LineResult{Index: idx, Name: line.Name, Quantity: line.Quantity}
	recv := ledger.ReceiveInput{
		TeamID:     input.TeamID,
		LocationID: input.TargetLocationID,
		Quantity:   line.Quantity,
		UnitPrice:  line.UnitPrice,
		ActorID:    input.ActorID,
		Notes:      "import " + input.ImportID,
		OccurredAt: batchAt,
	}
	if line.IsNew {
		recv.NewItem = &ledger.NewItemSpec{
			Name: normalizeName(line.Name),
			Unit: line.Unit,
		}
	} else {
		recv.ItemID = line.ItemID
	}

	res, err := s.ledger.Receive(ctx, recv)
	if err != nil {
		lr.Error = err.Error()
		return lr
	}
	lr.ItemID = res.ItemID
	lr.Created = res.Created
	lr.Succeeded = true

	// New items get their cost record inside the receive commit; matched
	// lines refresh the existing record with the imported unit and price.
	if !line.IsNew {
		if err := s.costing.RefreshPrice(ctx, input.TeamID, res.ItemID, line.Unit, line.UnitPrice); err != nil {
			s.logger.Warn("cost refresh failed after receipt",
				slog.String("item_id", res.ItemID),
				slog.Any("error", err))
		}
	}
	return lr
}

// normalizeName trims and title-cases an imported item name so repeated
// invoices spell new items consistently.
func normalizeName(name string) string {
	return titleCaser.String(strings.Join(strings.Fields(name), " "))
}
