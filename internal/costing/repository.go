package costing

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Repository abstracts cost record persistence.
type Repository interface {
	GetByItem(ctx context.Context, teamID, itemID string) (CostRecord, error)
	UpdatePrice(ctx context.Context, teamID, itemID, unit string, price decimal.Decimal) error
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) GetByItem(ctx context.Context, teamID, itemID string) (CostRecord, error) {
	var rec CostRecord
	var price string
	err := r.pool.QueryRow(ctx, `SELECT id, team_id, item_id, unit, unit_price, updated_at
FROM cost_records WHERE team_id=$1 AND item_id=$2`, teamID, itemID).
		Scan(&rec.ID, &rec.TeamID, &rec.ItemID, &rec.Unit, &price, &rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return CostRecord{}, ErrNotFound
		}
		return CostRecord{}, err
	}
	rec.UnitPrice, err = decimal.NewFromString(price)
	if err != nil {
		return CostRecord{}, err
	}
	return rec, nil
}

func (r *repository) UpdatePrice(ctx context.Context, teamID, itemID, unit string, price decimal.Decimal) error {
	tag, err := r.pool.Exec(ctx, `UPDATE cost_records SET unit=$3, unit_price=$4, updated_at=NOW()
WHERE team_id=$1 AND item_id=$2`, teamID, itemID, unit, price.String())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
