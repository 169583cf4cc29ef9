package locations

import (
	"errors"
	"strings"
)

func (s *Service) validate(l Location) error {
	if l.TeamID == "" {
		return errors.New("locations: team is required")
	}
	if l.ID == "" {
		return errors.New("locations: id is required")
	}
	if strings.TrimSpace(l.Name) == "" {
		return errors.New("locations: name is required")
	}
	return nil
}
