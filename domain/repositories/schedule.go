package repositories

import (
	"context"

	"github.com/tripot/companion/domain/entities"
)

// ScheduleRepository fetches the authoritative reminder schedule for a
// user from the backend.
type ScheduleRepository interface {
	// Fetch returns the enabled call times for the user.
	Fetch(ctx context.Context, userID string) (entities.Schedule, error)
}
