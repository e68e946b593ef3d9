// internal/domain/celebration/record.go
package celebration

import (
	"time"

	"github.com/google/uuid"
)

// Record is a celebratory post materialised on one publication for one account event.
// Corresponds to the 'celebration_records' table.
type Record struct {
	ID             uuid.UUID
	PublicationID  uuid.UUID
	AccountID      uuid.UUID
	EventType      EventType
	BodyText       string
	CelebrationDay time.Time // local date of the run that created it; part of the unique key
	Status         Status
	CreatedAt      time.Time
	ExpiresAt      time.Time
}

// LiveAt reports whether the record should still be displayed at t.
// Display must respect ExpiresAt even when the sweeper has not yet flipped Status.
func (r *Record) LiveAt(t time.Time) bool {
	return r.Status == StatusActive && t.Before(r.ExpiresAt)
}

// Expire moves the record to its terminal state. It is a no-op on expired records.
func (r *Record) Expire() {
	r.Status = StatusExpired
}
