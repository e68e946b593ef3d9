// internal/domain/celebration/repository.go
package celebration

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository defines persistence for celebration records.
type Repository interface {
	// ExistsSince reports whether any record (regardless of status) exists for the unit
	// with created_at >= since.
	ExistsSince(ctx context.Context, publicationID, accountID uuid.UUID, eventType EventType, since time.Time) (bool, error)
	// Insert stores rec. It returns database.ErrDuplicateCelebration when the unit already
	// has a record for rec.CelebrationDay.
	Insert(ctx context.Context, rec *Record) error
	// ExpireDue flips every active record whose expires_at is strictly before now.
	ExpireDue(ctx context.Context, now time.Time) (int64, error)
	ListLive(ctx context.Context, publicationID uuid.UUID, now time.Time) ([]*Record, error)
}
