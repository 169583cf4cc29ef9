package locations

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

type memoryRepo struct {
	locations map[string]Location
	stocked   map[string]bool
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{locations: make(map[string]Location), stocked: make(map[string]bool)}
}

func (r *memoryRepo) List(ctx context.Context, teamID string) ([]Location, error) {
	locs := []Location{}
	for _, l := range r.locations {
		if l.TeamID == teamID {
			locs = append(locs, l)
		}
	}
	return locs, nil
}

func (r *memoryRepo) Get(ctx context.Context, teamID, id string) (Location, error) {
	l, ok := r.locations[id]
	if !ok || l.TeamID != teamID {
		return Location{}, ErrNotFound
	}
	return l, nil
}

func (r *memoryRepo) Create(ctx context.Context, loc Location) error {
	r.locations[loc.ID] = loc
	return nil
}

func (r *memoryRepo) Rename(ctx context.Context, teamID, id, name string) error {
	l, ok := r.locations[id]
	if !ok || l.TeamID != teamID {
		return ErrNotFound
	}
	l.Name = name
	r.locations[id] = l
	return nil
}

func (r *memoryRepo) Delete(ctx context.Context, teamID, id string) error {
	l, ok := r.locations[id]
	if !ok || l.TeamID != teamID {
		return ErrNotFound
	}
	delete(r.locations, id)
	return nil
}

func (r *memoryRepo) HasStock(ctx context.Context, teamID, id string) (bool, error) {
	return r.stocked[id], nil
}

func TestCreateValidatesName(t *testing.T) {
	svc := NewService(newMemoryRepo())

	_, err := svc.Create(context.Background(), "team-1", "   ")
	require.Error(t, err)

	loc, err := svc.Create(context.Background(), "team-1", "Walk-in Fridge")
	require.NoError(t, err)
	require.NotEmpty(t, loc.ID)
	require.Equal(t, "team-1", loc.TeamID)
}

func TestDeleteRefusedWhileStocked(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo)
	ctx := context.Background()

	loc, err := svc.Create(ctx, "team-1", "Dry Storage")
	require.NoError(t, err)

	repo.stocked[loc.ID] = true
	require.ErrorIs(t, svc.Delete(ctx, "team-1", loc.ID), ErrLocationInUse)

	repo.stocked[loc.ID] = false
	require.NoError(t, svc.Delete(ctx, "team-1", loc.ID))

	_, err = svc.Get(ctx, "team-1", loc.ID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestTenantsAreIsolated(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo)
	ctx := context.Background()

	loc, err := svc.Create(ctx, "team-1", "Freezer")
	require.NoError(t, err)

	_, err = svc.Get(ctx, "team-2", loc.ID)
	require.ErrorIs(t, err, ErrNotFound)

	require.ErrorIs(t, svc.Rename(ctx, "team-2", loc.ID, "Other"), ErrNotFound)
}
