package locations

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository abstracts location persistence.
type Repository interface {
	List(ctx context.Context, teamID string) ([]Location, error)
	Get(ctx context.Context, teamID, id string) (Location, error)
	Create(ctx context.Context, loc Location) error
	Rename(ctx context.Context, teamID, id, name string) error
	Delete(ctx context.Context, teamID, id string) error
	HasStock(ctx context.Context, teamID, id string) (bool, error)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) List(ctx context.Context, teamID string) ([]Location, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, team_id, name, created_at, updated_at
FROM locations WHERE team_id=$1 ORDER BY name ASC`, teamID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	locs := []Location{}
	for rows.Next() {
		var l Location
		if err := rows.Scan(&l.ID, &l.TeamID, &l.Name, &l.CreatedAt, &l.UpdatedAt); err != nil {
			return nil, err
		}
		locs = append(locs, l)
	}
	return locs, rows.Err()
}

func (r *repository) Get(ctx context.Context, teamID, id string) (Location, error) {
	var l Location
	err := r.pool.QueryRow(ctx, `SELECT id, team_id, name, created_at, updated_at
FROM locations WHERE team_id=$1 AND id=$2`, teamID, id).
		Scan(&l.ID, &l.TeamID, &l.Name, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Location{}, ErrNotFound
		}
		return Location{}, err
	}
	return l, nil
}

func (r *repository) Create(ctx context.Context, loc Location) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO locations (id, team_id, name, created_at, updated_at)
VALUES ($1,$2,$3,NOW(),NOW())`, loc.ID, loc.TeamID, loc.Name)
	return err
}

func (r *repository) Rename(ctx context.Context, teamID, id, name string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE locations SET name=$3, updated_at=NOW() WHERE team_id=$1 AND id=$2`, teamID, id, name)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) Delete(ctx context.Context, teamID, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM locations WHERE team_id=$1 AND id=$2`, teamID, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) HasStock(ctx context.Context, teamID, id string) (bool, error) {
	var has bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (
SELECT 1 FROM stock_item_locations l
JOIN stock_items i ON i.id = l.item_id
WHERE i.team_id=$1 AND l.location_id=$2 AND l.quantity > 0)`, teamID, id).Scan(&has)
	return has, err
}
