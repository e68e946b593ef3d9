package messaging

import (
	"encoding/json"
	"fmt"

	"celebration_job/internal/domain/notify"
)

const contentTypeJSON = "application/json"

func encodeNotification(n notify.Notification) ([]byte, error) {
	body, err := json.Marshal(n)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize notification: %w", err)
	}
	return body, nil
}
