package publication

import (
	"context"

	"github.com/google/uuid"
)

// Repository defines read access over publications.
type Repository interface {
	ListActiveByOwner(ctx context.Context, ownerID uuid.UUID) ([]*Publication, error)
}
