package notify

import (
	"context"

	"celebration_job/internal/domain/celebration"
	"github.com/google/uuid"
)

// Notification is the payload handed to the external mailer for one qualifying account.
type Notification struct {
	IdempotencyKey  string                `json:"idempotency_key"`
	AccountID       uuid.UUID             `json:"account_id"`
	ContactAddress  string                `json:"contact_address"`
	DisplayName     string                `json:"display_name"`
	EventType       celebration.EventType `json:"event_type"`
	YearsOnPlatform int                   `json:"years_on_platform,omitempty"`
	OccurredOn      string                `json:"occurred_on"` // YYYY-MM-DD in the job's zone
}

// Dispatcher defines an interface for handing a notification to an external channel.
// This decouples the job from the transport (broker, log, ...).
type Dispatcher interface {
	Dispatch(ctx context.Context, n Notification) error
}
