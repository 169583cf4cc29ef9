package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/brigade-ops/brigade/internal/observability"
	"github.com/brigade-ops/brigade/internal/shared"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetItem(ctx context.Context, teamID, itemID string) (StockItem, error)
	History(ctx context.Context, teamID, itemID string) ([]Transaction, error)
	ListLowStock(ctx context.Context, teamID string) ([]StockItem, error)
	ListTeams(ctx context.Context) ([]string, error)
	IntegrityReport(ctx context.Context) ([]IntegrityDrift, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// ServiceConfig groups optional settings. Zero values fall back to the
// UTC wall clock and random UUIDs.
type ServiceConfig struct {
	Clock       func() time.Time
	IDGenerator func() string
}

// Service is the ledger engine: the sole mutator of the stock snapshot.
// Every mutation commits atomically with its ledger append(s).
type Service struct {
	repo    RepositoryPort
	audit   AuditPort
	cache   *Cache
	metrics *observability.Metrics
	now     func() time.Time
	newID   func() string

	lowStockGroup singleflight.Group
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort, cache *Cache, metrics *observability.Metrics, cfg ServiceConfig) *Service {
	now := cfg.Clock
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	newID := cfg.IDGenerator
	if newID == nil {
		newID = uuid.NewString
	}
	return &Service{repo: repo, audit: audit, cache: cache, metrics: metrics, now: now, newID: newID}
}

// Transfer moves stock between two locations of one item. It rejects with
// ErrInsufficientStock when the source holds less than the requested
// quantity; on success the two appended entries reference each other and
// their deltas sum to zero.
func (s *Service) Transfer(ctx context.Context, input TransferInput) (TransferResult, error) {
	if input.TeamID == "" || input.ItemID == "" || input.FromLocationID == "" || input.ToLocationID == "" {
		return TransferResult{}, errors.New("ledger: team, item and locations required")
	}
	if input.FromLocationID == input.ToLocationID {
		return TransferResult{}, ErrSameLocation
	}
	if input.Quantity <= 0 {
		return TransferResult{}, ErrInvalidQuantity
	}
	now := s.now()
	outID, inID := s.newID(), s.newID()
	var result TransferResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		item, err := tx.GetItemForUpdate(ctx, input.TeamID, input.ItemID)
		if err != nil {
			return err
		}
		for _, loc := range []string{input.FromLocationID, input.ToLocationID} {
			ok, err := tx.LocationExists(ctx, input.TeamID, loc)
			if err != nil {
				return err
			}
			if !ok {
				return ErrLocationNotFound
			}
		}
		source := item.QuantityAt(input.FromLocationID)
		if source < input.Quantity {
			return ErrInsufficientStock
		}
		if err := tx.UpsertItemLocation(ctx, item.ID, input.FromLocationID, source-input.Quantity); err != nil {
			return err
		}
		if err := tx.UpsertItemLocation(ctx, item.ID, input.ToLocationID, item.QuantityAt(input.ToLocationID)+input.Quantity); err != nil {
			return err
		}
		if err := tx.BumpVersion(ctx, item.ID, item.Version); err != nil {
			return err
		}
		out := Transaction{
			ID:             outID,
			TeamID:         input.TeamID,
			ItemID:         item.ID,
			LocationID:     input.FromLocationID,
			Type:           TransactionTypeTransferOut,
			QuantityChange: -input.Quantity,
			RelatedTxID:    inID,
			ActorID:        input.ActorID,
			Notes:          input.Notes,
			OccurredAt:     now,
		}
		in := Transaction{
			ID:             inID,
			TeamID:         input.TeamID,
			ItemID:         item.ID,
			LocationID:     input.ToLocationID,
			Type:           TransactionTypeTransferIn,
			QuantityChange: input.Quantity,
			RelatedTxID:    outID,
			ActorID:        input.ActorID,
			Notes:          input.Notes,
			OccurredAt:     now,
		}
		if err := tx.InsertTransaction(ctx, out); err != nil {
			return err
		}
		if err := tx.InsertTransaction(ctx, in); err != nil {
			return err
		}
		result = TransferResult{Out: out, In: in}
		return nil
	})
	if err != nil {
		return TransferResult{}, err
	}
	s.afterMutation(ctx, input.TeamID, input.ActorID, "ledger:transfer", input.ItemID, map[string]any{
		"from": input.FromLocationID,
		"to":   input.ToLocationID,
		"qty":  input.Quantity,
	}, TransactionTypeTransferOut, TransactionTypeTransferIn)
	return result, nil
}

// ManualAdjust adds or removes stock at one location. Subtractions are
// clamped at zero; the appended entry always records the applied delta, so
// the ledger matches the real movement even when clamped. A fully clamped
// request (nothing available) appends no entry.
func (s *Service) ManualAdjust(ctx context.Context, input AdjustInput) (AdjustResult, error) {
	if input.TeamID == "" || input.ItemID == "" || input.LocationID == "" {
		return AdjustResult{}, errors.New("ledger: team, item and location required")
	}
	if input.Quantity <= 0 {
		return AdjustResult{}, ErrInvalidQuantity
	}
	if input.Direction != AdjustAdd && input.Direction != AdjustSubtract {
		return AdjustResult{}, fmt.Errorf("ledger: unknown adjust direction %q", input.Direction)
	}
	now := s.now()
	txID := s.newID()
	var result AdjustResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		item, err := tx.GetItemForUpdate(ctx, input.TeamID, input.ItemID)
		if err != nil {
			return err
		}
		ok, err := tx.LocationExists(ctx, input.TeamID, input.LocationID)
		if err != nil {
			return err
		}
		if !ok {
			return ErrLocationNotFound
		}
		current := item.QuantityAt(input.LocationID)
		var applied, delta float64
		txType := TransactionTypeManualAdd
		if input.Direction == AdjustAdd {
			applied = input.Quantity
			delta = input.Quantity
		} else {
			txType = TransactionTypeManualSubtract
			applied = min(input.Quantity, current)
			delta = -applied
		}
		result = AdjustResult{
			ItemID:      item.ID,
			LocationID:  input.LocationID,
			Requested:   input.Quantity,
			Applied:     applied,
			NewQuantity: current + delta,
			Clamped:     applied < input.Quantity,
		}
		if applied == 0 {
			// Subtract against an empty location: no movement, no entry.
			return nil
		}
		if err := tx.UpsertItemLocation(ctx, item.ID, input.LocationID, current+delta); err != nil {
			return err
		}
		if err := tx.BumpVersion(ctx, item.ID, item.Version); err != nil {
			return err
		}
		entry := Transaction{
			ID:             txID,
			TeamID:         input.TeamID,
			ItemID:         item.ID,
			LocationID:     input.LocationID,
			Type:           txType,
			QuantityChange: delta,
			ActorID:        input.ActorID,
			Notes:          input.Notes,
			OccurredAt:     now,
		}
		if err := tx.InsertTransaction(ctx, entry); err != nil {
			return err
		}
		result.Transaction = &entry
		return nil
	})
	if err != nil {
		return AdjustResult{}, err
	}
	if result.Transaction != nil {
		s.afterMutation(ctx, input.TeamID, input.ActorID, "ledger:manual_adjust", input.ItemID, map[string]any{
			"location":  input.LocationID,
			"direction": string(input.Direction),
			"requested": input.Quantity,
			"applied":   result.Applied,
		}, result.Transaction.Type)
	}
	return result, nil
}

// ReconcileStockTake sets a location's recorded quantity to the counted one
// and records the difference. A matching count is a pure no-op.
func (s *Service) ReconcileStockTake(ctx context.Context, input StockTakeInput) (StockTakeResult, error) {
	if input.TeamID == "" || input.ItemID == "" || input.LocationID == "" {
		return StockTakeResult{}, errors.New("ledger: team, item and location required")
	}
	if input.CountedQuantity < 0 {
		return StockTakeResult{}, ErrInvalidQuantity
	}
	now := s.now()
	txID := s.newID()
	var result StockTakeResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		item, err := tx.GetItemForUpdate(ctx, input.TeamID, input.ItemID)
		if err != nil {
			return err
		}
		ok, err := tx.LocationExists(ctx, input.TeamID, input.LocationID)
		if err != nil {
			return err
		}
		if !ok {
			return ErrLocationNotFound
		}
		current := item.QuantityAt(input.LocationID)
		diff := input.CountedQuantity - current
		result = StockTakeResult{
			ItemID:     item.ID,
			LocationID: input.LocationID,
			Previous:   current,
			Counted:    input.CountedQuantity,
			Diff:       diff,
		}
		if diff == 0 {
			return nil
		}
		if err := tx.UpsertItemLocation(ctx, item.ID, input.LocationID, input.CountedQuantity); err != nil {
			return err
		}
		if err := tx.BumpVersion(ctx, item.ID, item.Version); err != nil {
			return err
		}
		entry := Transaction{
			ID:             txID,
			TeamID:         input.TeamID,
			ItemID:         item.ID,
			LocationID:     input.LocationID,
			Type:           TransactionTypeStockTake,
			QuantityChange: diff,
			ActorID:        input.ActorID,
			Notes:          fmt.Sprintf("stock take: recorded %g, counted %g", current, input.CountedQuantity),
			OccurredAt:     now,
		}
		if err := tx.InsertTransaction(ctx, entry); err != nil {
			return err
		}
		result.Transaction = &entry
		return nil
	})
	if err != nil {
		return StockTakeResult{}, err
	}
	if result.Transaction != nil {
		s.afterMutation(ctx, input.TeamID, input.ActorID, "ledger:stock_take", input.ItemID, map[string]any{
			"location": input.LocationID,
			"counted":  input.CountedQuantity,
			"diff":     result.Diff,
		}, TransactionTypeStockTake)
	}
	return result, nil
}

// Receive books stock arriving from an external document. When NewItem is
// set the item and its linked cost record are created in the same commit as
// the receipt entry.
func (s *Service) Receive(ctx context.Context, input ReceiveInput) (ReceiveResult, error) {
	if input.TeamID == "" || input.LocationID == "" {
		return ReceiveResult{}, errors.New("ledger: team and location required")
	}
	if (input.ItemID == "") == (input.NewItem == nil) {
		return ReceiveResult{}, errors.New("ledger: exactly one of item id or new item spec required")
	}
	if input.Quantity <= 0 {
		return ReceiveResult{}, ErrInvalidQuantity
	}
	occurredAt := input.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = s.now()
	}
	txID := s.newID()
	var result ReceiveResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		ok, err := tx.LocationExists(ctx, input.TeamID, input.LocationID)
		if err != nil {
			return err
		}
		if !ok {
			return ErrLocationNotFound
		}
		itemID := input.ItemID
		var newQty float64
		if itemID != "" {
			item, err := tx.GetItemForUpdate(ctx, input.TeamID, itemID)
			if err != nil {
				return err
			}
			newQty = item.QuantityAt(input.LocationID) + input.Quantity
			if err := tx.UpsertItemLocation(ctx, item.ID, input.LocationID, newQty); err != nil {
				return err
			}
			if err := tx.BumpVersion(ctx, item.ID, item.Version); err != nil {
				return err
			}
		} else {
			if input.NewItem.Name == "" || input.NewItem.Unit == "" {
				return errors.New("ledger: new item requires name and unit")
			}
			itemID = s.newID()
			costID := s.newID()
			item := StockItem{
				ID:                itemID,
				TeamID:            input.TeamID,
				Name:              input.NewItem.Name,
				Unit:              input.NewItem.Unit,
				ReorderPoint:      input.NewItem.ReorderPoint,
				DefaultLocationID: input.LocationID,
				Version:           1,
			}
			if err := tx.InsertItem(ctx, item); err != nil {
				return err
			}
			if err := tx.UpsertItemLocation(ctx, itemID, input.LocationID, input.Quantity); err != nil {
				return err
			}
			if err := tx.InsertCostRecord(ctx, CostRecordParams{
				ID:        costID,
				TeamID:    input.TeamID,
				ItemID:    itemID,
				Unit:      input.NewItem.Unit,
				UnitPrice: input.UnitPrice,
			}); err != nil {
				return err
			}
			if err := tx.SetItemCostRef(ctx, itemID, costID); err != nil {
				return err
			}
			newQty = input.Quantity
			result.Created = true
			result.CostRefID = costID
		}
		entry := Transaction{
			ID:             txID,
			TeamID:         input.TeamID,
			ItemID:         itemID,
			LocationID:     input.LocationID,
			Type:           TransactionTypeReceipt,
			QuantityChange: input.Quantity,
			ActorID:        input.ActorID,
			Notes:          input.Notes,
			OccurredAt:     occurredAt,
		}
		if err := tx.InsertTransaction(ctx, entry); err != nil {
			return err
		}
		result.ItemID = itemID
		result.NewQuantity = newQty
		result.Transaction = entry
		return nil
	})
	if err != nil {
		return ReceiveResult{}, err
	}
	s.afterMutation(ctx, input.TeamID, input.ActorID, "ledger:receive", result.ItemID, map[string]any{
		"location": input.LocationID,
		"qty":      input.Quantity,
		"created":  result.Created,
	}, TransactionTypeReceipt)
	return result, nil
}

// DeductWaste removes discarded stock from the item's default location,
// clamped at zero like a manual subtract.
func (s *Service) DeductWaste(ctx context.Context, input WasteInput) (AdjustResult, error) {
	if input.TeamID == "" || input.ItemID == "" {
		return AdjustResult{}, errors.New("ledger: team and item required")
	}
	if input.Quantity <= 0 {
		return AdjustResult{}, ErrInvalidQuantity
	}
	now := s.now()
	txID := s.newID()
	notes := input.Reason
	if input.Notes != "" {
		notes = fmt.Sprintf("%s: %s", input.Reason, input.Notes)
	}
	var result AdjustResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		item, err := tx.GetItemForUpdate(ctx, input.TeamID, input.ItemID)
		if err != nil {
			return err
		}
		loc := item.DefaultLocationID
		if loc == "" && len(item.Locations) > 0 {
			// Items created before the explicit default existed.
			loc = item.Locations[0].LocationID
		}
		if loc == "" {
			return ErrNoDefaultLocation
		}
		current := item.QuantityAt(loc)
		applied := min(input.Quantity, current)
		result = AdjustResult{
			ItemID:      item.ID,
			LocationID:  loc,
			Requested:   input.Quantity,
			Applied:     applied,
			NewQuantity: current - applied,
			Clamped:     applied < input.Quantity,
		}
		if applied == 0 {
			return nil
		}
		if err := tx.UpsertItemLocation(ctx, item.ID, loc, current-applied); err != nil {
			return err
		}
		if err := tx.BumpVersion(ctx, item.ID, item.Version); err != nil {
			return err
		}
		entry := Transaction{
			ID:             txID,
			TeamID:         input.TeamID,
			ItemID:         item.ID,
			LocationID:     loc,
			Type:           TransactionTypeWaste,
			QuantityChange: -applied,
			ActorID:        input.ActorID,
			Notes:          notes,
			OccurredAt:     now,
		}
		if err := tx.InsertTransaction(ctx, entry); err != nil {
			return err
		}
		result.Transaction = &entry
		return nil
	})
	if err != nil {
		return AdjustResult{}, err
	}
	if result.Transaction != nil {
		s.afterMutation(ctx, input.TeamID, input.ActorID, "ledger:waste", input.ItemID, map[string]any{
			"location": result.LocationID,
			"reason":   input.Reason,
			"applied":  result.Applied,
		}, TransactionTypeWaste)
	}
	return result, nil
}

// GetItem loads the current snapshot for an item.
func (s *Service) GetItem(ctx context.Context, teamID, itemID string) (StockItem, error) {
	if teamID == "" || itemID == "" {
		return StockItem{}, errors.New("ledger: team and item required")
	}
	return s.repo.GetItem(ctx, teamID, itemID)
}

// History returns the item's ledger entries in timestamp order.
func (s *Service) History(ctx context.Context, teamID, itemID string) ([]Transaction, error) {
	if teamID == "" || itemID == "" {
		return nil, errors.New("ledger: team and item required")
	}
	if _, err := s.repo.GetItem(ctx, teamID, itemID); err != nil {
		return nil, err
	}
	return s.repo.History(ctx, teamID, itemID)
}

// ListLowStock lists items whose total stock is at or below their reorder
// point, served from the cache when warm.
func (s *Service) ListLowStock(ctx context.Context, teamID string) ([]StockItem, error) {
	if teamID == "" {
		return nil, errors.New("ledger: team required")
	}
	if items, ok := s.cache.Get(ctx, teamID); ok {
		return items, nil
	}
	// Collapse concurrent cache misses for the same team into one query.
	v, err, _ := s.lowStockGroup.Do(teamID, func() (any, error) {
		items, err := s.repo.ListLowStock(ctx, teamID)
		if err != nil {
			return nil, err
		}
		s.cache.Set(ctx, teamID, items)
		return items, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]StockItem), nil
}

// ListTeams returns every tenant holding stock, for background scans.
func (s *Service) ListTeams(ctx context.Context) ([]string, error) {
	return s.repo.ListTeams(ctx)
}

// CheckIntegrity recomputes each snapshot row from its ledger sum and
// returns the rows that drifted apart.
func (s *Service) CheckIntegrity(ctx context.Context) ([]IntegrityDrift, error) {
	drifts, err := s.repo.IntegrityReport(ctx)
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.SetIntegrityDrift(len(drifts))
	}
	return drifts, nil
}

func (s *Service) afterMutation(ctx context.Context, teamID, actorID, action, itemID string, meta map[string]any, types ...TransactionType) {
	if s.metrics != nil {
		for _, t := range types {
			s.metrics.RecordLedgerOperation(string(t))
		}
	}
	s.cache.Invalidate(ctx, teamID)
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			TeamID:   teamID,
			ActorID:  actorID,
			Action:   action,
			Entity:   "stock_item",
			EntityID: itemID,
			Meta:     meta,
		})
	}
}
