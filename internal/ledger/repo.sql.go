package ledger

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/brigade-ops/brigade/internal/platform/db"
)

// Repository persists ledger data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// CostRecordParams carries the fields written when a cost record is minted
// together with a newly-discovered item.
type CostRecordParams struct {
	ID        string
	TeamID    string
	ItemID    string
	Unit      string
	UnitPrice decimal.Decimal
}

// TxRepository exposes transactional operations used by Service. All writes
// of one engine operation go through a single TxRepository so the snapshot
// update and the ledger append commit or roll back together.
type TxRepository interface {
	GetItemForUpdate(ctx context.Context, teamID, itemID string) (StockItem, error)
	LocationExists(ctx context.Context, teamID, locationID string) (bool, error)
	InsertItem(ctx context.Context, item StockItem) error
	SetItemCostRef(ctx context.Context, itemID, costRefID string) error
	UpsertItemLocation(ctx context.Context, itemID, locationID string, quantity float64) error
	BumpVersion(ctx context.Context, itemID string, fromVersion int64) error
	InsertTransaction(ctx context.Context, tx Transaction) error
	InsertCostRecord(ctx context.Context, rec CostRecordParams) error
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("ledger repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

const itemColumns = `id, team_id, name, unit, reorder_point, cost_ref_id, default_location_id, version, created_at, updated_at`

// GetItem loads an item snapshot with its location entries.
func (r *Repository) GetItem(ctx context.Context, teamID, itemID string) (StockItem, error) {
	if r == nil {
		return StockItem{}, errors.New("ledger repository not initialised")
	}
	return scanItem(ctx, r.pool, teamID, itemID, false)
}

// History returns the ledger entries for an item in timestamp order.
func (r *Repository) History(ctx context.Context, teamID, itemID string) ([]Transaction, error) {
	if r == nil {
		return nil, errors.New("ledger repository not initialised")
	}
	rows, err := r.pool.Query(ctx, `SELECT id, team_id, item_id, location_id, tx_type, quantity_change, related_tx_id, actor_id, notes, occurred_at
FROM inventory_transactions
WHERE team_id=$1 AND item_id=$2
ORDER BY occurred_at ASC, id ASC`, teamID, itemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	entries := []Transaction{}
	for rows.Next() {
		var t Transaction
		var related, notes *string
		if err := rows.Scan(&t.ID, &t.TeamID, &t.ItemID, &t.LocationID, &t.Type, &t.QuantityChange, &related, &t.ActorID, &notes, &t.OccurredAt); err != nil {
			return nil, err
		}
		t.RelatedTxID = deref(related)
		t.Notes = deref(notes)
		entries = append(entries, t)
	}
	return entries, rows.Err()
}

// ListLowStock returns items whose total stock is at or below the reorder point.
func (r *Repository) ListLowStock(ctx context.Context, teamID string) ([]StockItem, error) {
	if r == nil {
		return nil, errors.New("ledger repository not initialised")
	}
	rows, err := r.pool.Query(ctx, `SELECT i.id, i.team_id, i.name, i.unit, i.reorder_point, i.cost_ref_id, i.default_location_id, i.version, i.created_at, i.updated_at
FROM stock_items i
LEFT JOIN stock_item_locations l ON l.item_id = i.id
WHERE i.team_id = $1
GROUP BY i.id
HAVING COALESCE(SUM(l.quantity), 0) <= i.reorder_point
ORDER BY i.name ASC`, teamID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []StockItem{}
	for rows.Next() {
		item, err := scanItemRow(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range items {
		locs, err := loadLocations(ctx, r.pool, items[i].ID, false)
		if err != nil {
			return nil, err
		}
		items[i].Locations = locs
	}
	return items, nil
}

// ListTeams returns every tenant that owns stock items.
func (r *Repository) ListTeams(ctx context.Context) ([]string, error) {
	if r == nil {
		return nil, errors.New("ledger repository not initialised")
	}
	rows, err := r.pool.Query(ctx, `SELECT DISTINCT team_id FROM stock_items ORDER BY team_id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	teams := []string{}
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		teams = append(teams, t)
	}
	return teams, rows.Err()
}

// IntegrityReport compares every snapshot row against the summed ledger
// entries for its (item, location) pair and returns the rows that drifted.
func (r *Repository) IntegrityReport(ctx context.Context) ([]IntegrityDrift, error) {
	if r == nil {
		return nil, errors.New("ledger repository not initialised")
	}
	rows, err := r.pool.Query(ctx, `WITH sums AS (
	SELECT team_id, item_id, location_id, SUM(quantity_change) AS total
	FROM inventory_transactions
	GROUP BY team_id, item_id, location_id
), snap AS (
	SELECT i.team_id, l.item_id, l.location_id, l.quantity
	FROM stock_item_locations l
	JOIN stock_items i ON i.id = l.item_id
)
SELECT COALESCE(s.team_id, t.team_id),
       COALESCE(s.item_id, t.item_id),
       COALESCE(s.location_id, t.location_id),
       COALESCE(s.quantity, 0),
       COALESCE(t.total, 0)
FROM snap s
FULL OUTER JOIN sums t ON t.item_id = s.item_id AND t.location_id = s.location_id
WHERE ABS(COALESCE(s.quantity, 0) - COALESCE(t.total, 0)) > 0.0001`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	drifts := []IntegrityDrift{}
	for rows.Next() {
		var d IntegrityDrift
		if err := rows.Scan(&d.TeamID, &d.ItemID, &d.LocationID, &d.Snapshot, &d.LedgerSum); err != nil {
			return nil, err
		}
		drifts = append(drifts, d)
	}
	return drifts, rows.Err()
}

func (r *txRepository) GetItemForUpdate(ctx context.Context, teamID, itemID string) (StockItem, error) {
	return scanItem(ctx, r.tx, teamID, itemID, true)
}

func (r *txRepository) LocationExists(ctx context.Context, teamID, locationID string) (bool, error) {
	var exists bool
	err := r.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM locations WHERE team_id=$1 AND id=$2)`, teamID, locationID).Scan(&exists)
	return exists, err
}

func (r *txRepository) InsertItem(ctx context.Context, item StockItem) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO stock_items (id, team_id, name, unit, reorder_point, cost_ref_id, default_location_id, version, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,NOW(),NOW())`,
		item.ID, item.TeamID, item.Name, item.Unit, item.ReorderPoint, nullString(item.CostRefID), nullString(item.DefaultLocationID), item.Version)
	return err
}

func (r *txRepository) SetItemCostRef(ctx context.Context, itemID, costRefID string) error {
	_, err := r.tx.Exec(ctx, `UPDATE stock_items SET cost_ref_id=$2, updated_at=NOW() WHERE id=$1`, itemID, costRefID)
	return err
}

func (r *txRepository) UpsertItemLocation(ctx context.Context, itemID, locationID string, quantity float64) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO stock_item_locations (item_id, location_id, quantity)
VALUES ($1,$2,$3)
ON CONFLICT (item_id, location_id) DO UPDATE SET quantity=EXCLUDED.quantity`, itemID, locationID, quantity)
	return err
}

func (r *txRepository) BumpVersion(ctx context.Context, itemID string, fromVersion int64) error {
	tag, err := r.tx.Exec(ctx, `UPDATE stock_items SET version=version+1, updated_at=NOW() WHERE id=$1 AND version=$2`, itemID, fromVersion)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrVersionConflict
	}
	return nil
}

func (r *txRepository) InsertTransaction(ctx context.Context, t Transaction) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO inventory_transactions (id, team_id, item_id, location_id, tx_type, quantity_change, related_tx_id, actor_id, notes, occurred_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		t.ID, t.TeamID, t.ItemID, t.LocationID, string(t.Type), t.QuantityChange, nullString(t.RelatedTxID), t.ActorID, nullString(t.Notes), t.OccurredAt)
	return err
}

func (r *txRepository) InsertCostRecord(ctx context.Context, rec CostRecordParams) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO cost_records (id, team_id, item_id, unit, unit_price, updated_at)
VALUES ($1,$2,$3,$4,$5,NOW())`, rec.ID, rec.TeamID, rec.ItemID, rec.Unit, rec.UnitPrice.String())
	return err
}

type queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func scanItem(ctx context.Context, q queryer, teamID, itemID string, forUpdate bool) (StockItem, error) {
	query := `SELECT ` + itemColumns + ` FROM stock_items WHERE team_id=$1 AND id=$2`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	row := q.QueryRow(ctx, query, teamID, itemID)
	item, err := scanItemValues(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return StockItem{}, ErrItemNotFound
		}
		return StockItem{}, err
	}
	locs, err := loadLocations(ctx, q, item.ID, forUpdate)
	if err != nil {
		return StockItem{}, err
	}
	item.Locations = locs
	return item, nil
}

func loadLocations(ctx context.Context, q queryer, itemID string, forUpdate bool) ([]LocationQuantity, error) {
	query := `SELECT location_id, quantity FROM stock_item_locations WHERE item_id=$1 ORDER BY location_id ASC`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	rows, err := q.Query(ctx, query, itemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	locs := []LocationQuantity{}
	for rows.Next() {
		var l LocationQuantity
		if err := rows.Scan(&l.LocationID, &l.Quantity); err != nil {
			return nil, err
		}
		locs = append(locs, l)
	}
	return locs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItemRow(row rowScanner) (StockItem, error) {
	return scanItemValues(row)
}

func scanItemValues(row rowScanner) (StockItem, error) {
	var item StockItem
	var costRef, defaultLoc *string
	if err := row.Scan(&item.ID, &item.TeamID, &item.Name, &item.Unit, &item.ReorderPoint, &costRef, &defaultLoc, &item.Version, &item.CreatedAt, &item.UpdatedAt); err != nil {
		return StockItem{}, err
	}
	item.CostRefID = deref(costRef)
	item.DefaultLocationID = deref(defaultLoc)
	return item, nil
}

func nullString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
