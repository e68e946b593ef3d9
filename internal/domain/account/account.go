package account

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// Account is a platform profile as seen by the celebration job.
// The job never writes accounts; their lifecycle is owned by the main application.
type Account struct {
	ID           uuid.UUID
	DisplayName  string
	ContactEmail string
	DateOfBirth  sql.NullTime // DATE column, no zone
	IsActive     bool
	CreatedAt    time.Time
}
