// internal/domain/celebration/message.go
package celebration

import "fmt"

// YearsPhrase renders a year count with the right noun form: "1 year", "3 years".
func YearsPhrase(years int) string {
	if years == 1 {
		return "1 year"
	}
	return fmt.Sprintf("%d years", years)
}

// BodyText builds the post text for an event. yearsOnPlatform is only used for anniversaries.
func BodyText(eventType EventType, displayName string, yearsOnPlatform int) (string, error) {
	switch eventType {
	case EventTypeBirthday:
		return fmt.Sprintf("🎂 Happy birthday, %s! Wishing you a wonderful year ahead from all of us.", displayName), nil
	case EventTypeAccountAnniversary:
		return fmt.Sprintf("🎉 Happy anniversary, %s! Today marks %s on the platform. Thank you for writing with us.",
			displayName, YearsPhrase(yearsOnPlatform)), nil
	default:
		return "", fmt.Errorf("unknown event type: %s", eventType)
	}
}
