package publication

import (
	"time"

	"github.com/google/uuid"
)

// Publication is a blog owned by an account. Celebration posts land on it.
type Publication struct {
	ID        uuid.UUID
	OwnerID   uuid.UUID
	Title     string
	IsActive  bool
	CreatedAt time.Time
}
