package locations

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// Service coordinates the location registry.
type Service struct {
	repo  Repository
	newID func() string
}

// NewService builds Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, newID: uuid.NewString}
}

func (s *Service) List(ctx context.Context, teamID string) ([]Location, error) {
	if teamID == "" {
		return nil, errors.New("locations: team required")
	}
	return s.repo.List(ctx, teamID)
}

func (s *Service) Get(ctx context.Context, teamID, id string) (Location, error) {
	if teamID == "" || id == "" {
		return Location{}, errors.New("locations: team and id required")
	}
	return s.repo.Get(ctx, teamID, id)
}

func (s *Service) Create(ctx context.Context, teamID, name string) (Location, error) {
	loc := Location{ID: s.newID(), TeamID: teamID, Name: name}
	if err := s.validate(loc); err != nil {
		return Location{}, err
	}
	if err := s.repo.Create(ctx, loc); err != nil {
		return Location{}, err
	}
	return loc, nil
}

func (s *Service) Rename(ctx context.Context, teamID, id, name string) error {
	if err := s.validate(Location{ID: id, TeamID: teamID, Name: name}); err != nil {
		return err
	}
	return s.repo.Rename(ctx, teamID, id, name)
}

// Delete removes a location. Locations still holding stock for any item are
// refused; the caller must transfer or write the stock off first.
func (s *Service) Delete(ctx context.Context, teamID, id string) error {
	if teamID == "" || id == "" {
		return errors.New("locations: team and id required")
	}
	has, err := s.repo.HasStock(ctx, teamID, id)
	if err != nil {
		return err
	}
	if has {
		return ErrLocationInUse
	}
	return s.repo.Delete(ctx, teamID, id)
}
