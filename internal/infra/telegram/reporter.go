// internal/infra/telegram/reporter.go
package telegram

import (
	"context"
	"fmt"
	"strings"

	"celebration_job/internal/app"

	"github.com/sirupsen/logrus"
)

// OperatorReporter sends the outcome of scheduled runs to the admin chat.
type OperatorReporter struct {
	client  Client
	adminID int64
	logger  *logrus.Entry
}

func NewOperatorReporter(client Client, adminID int64, logger *logrus.Entry) *OperatorReporter {
	return &OperatorReporter{client: client, adminID: adminID, logger: logger}
}

// ReportRun never fails the caller; delivery problems are only logged.
func (r *OperatorReporter) ReportRun(_ context.Context, summary *app.RunSummary, runErr error) {
	if err := r.client.SendMessage(r.adminID, FormatRunReport(summary, runErr), nil); err != nil {
		r.logger.WithError(err).WithField("admin_id", r.adminID).Warn("Failed to send run report to operator")
	}
}

// FormatRunReport renders a run outcome as a chat message.
func FormatRunReport(summary *app.RunSummary, runErr error) string {
	if runErr != nil {
		return fmt.Sprintf("❌ Celebration run failed: %v", runErr)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "✅ Celebration run %s (%s)\n", summary.RunID, summary.Day)
	fmt.Fprintf(&b, "Qualifying accounts: %d\n", summary.Qualifying)
	fmt.Fprintf(&b, "Birthday posts: %d\n", summary.Birthdays)
	fmt.Fprintf(&b, "Anniversary posts: %d\n", summary.Anniversaries)
	fmt.Fprintf(&b, "Already posted today: %d\n", summary.Skipped)
	fmt.Fprintf(&b, "Expired: %d", summary.Expired)
	if summary.Failures > 0 {
		fmt.Fprintf(&b, "\n⚠️ Failed units: %d (retried on the next run)", summary.Failures)
	}
	return b.String()
}
