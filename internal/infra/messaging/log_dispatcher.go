package messaging

import (
	"context"

	"celebration_job/internal/domain/notify"

	"github.com/sirupsen/logrus"
)

// LogDispatcher writes notifications to the log instead of a broker. Used in development.
type LogDispatcher struct {
	logger *logrus.Entry
}

func NewLogDispatcher(logger *logrus.Entry) *LogDispatcher {
	return &LogDispatcher{logger: logger}
}

func (d *LogDispatcher) Dispatch(_ context.Context, n notify.Notification) error {
	d.logger.WithFields(logrus.Fields{
		"account_id":        n.AccountID,
		"contact_address":   n.ContactAddress,
		"display_name":      n.DisplayName,
		"event_type":        n.EventType,
		"years_on_platform": n.YearsOnPlatform,
		"idempotency_key":   n.IdempotencyKey,
	}).Info("Celebration notification (log backend)")
	return nil
}
