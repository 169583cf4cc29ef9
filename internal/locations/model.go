package locations

import (
	"errors"
	"time"
)

// Location is a named physical storage place belonging to one tenant.
// Only the name changes after creation.
type Location struct {
	ID        string    `json:"id"`
	TeamID    string    `json:"team_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ErrNotFound indicates an unknown location id.
var ErrNotFound = errors.New("locations: location not found")

// ErrLocationInUse indicates a delete against a location that still holds stock.
var ErrLocationInUse = errors.New("locations: location still holds stock")
