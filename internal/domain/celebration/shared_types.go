// internal/domain/celebration/shared_types.go
package celebration

// EventType identifies the calendar event a record celebrates.
type EventType string

const (
	EventTypeBirthday           EventType = "birthday"
	EventTypeAccountAnniversary EventType = "account_anniversary"
)

// Valid reports whether t is a known event type.
func (t EventType) Valid() bool {
	switch t {
	case EventTypeBirthday, EventTypeAccountAnniversary:
		return true
	default:
		return false
	}
}

// Status is the lifecycle state of a record. Transitions only go active -> expired.
type Status string

const (
	StatusActive  Status = "active"
	StatusExpired Status = "expired"
)
