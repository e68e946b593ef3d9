package scheduler

import (
	"context"
	"time"

	"celebration_job/internal/app" // For Runner and RunSummary

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// RunReporter receives the outcome of every scheduled run (e.g. an operator chat).
type RunReporter interface {
	ReportRun(ctx context.Context, summary *app.RunSummary, runErr error)
}

type CelebrationScheduler struct {
	cronEngine *cron.Cron
	runner     app.Runner
	reporter   RunReporter // optional
	logger     *logrus.Entry
	cronSpec   string
	runTimeout time.Duration
}

func NewCelebrationScheduler(
	runner app.Runner,
	reporter RunReporter,
	logger *logrus.Entry,
	loc *time.Location, // zone the cron spec is evaluated in; same zone as the job's "today"
	cronSpec string, // e.g., "5 0 * * *" (00:05 daily)
	runTimeout time.Duration,
) *CelebrationScheduler {
	return &CelebrationScheduler{
		cronEngine: cron.New(cron.WithLocation(loc)),
		runner:     runner,
		reporter:   reporter,
		logger:     logger,
		cronSpec:   cronSpec,
		runTimeout: runTimeout,
	}
}

// Start registers the daily job and starts the cron engine.
func (s *CelebrationScheduler) Start() error {
	s.logger.Info("Starting celebration scheduler...")

	_, err := s.cronEngine.AddFunc(s.cronSpec, func() {
		s.logger.Info("Cron job triggered for celebration run.")
		s.RunOnce(context.Background())
	})
	if err != nil {
		return err
	}

	s.cronEngine.Start()
	s.logger.WithField("cron_spec", s.cronSpec).Info("Celebration scheduler started.")
	return nil
}

// RunOnce executes a single run with the configured timeout and reports the outcome.
func (s *CelebrationScheduler) RunOnce(parent context.Context) {
	ctx, cancel := context.WithTimeout(parent, s.runTimeout)
	defer cancel()

	summary, err := s.runner.Run(ctx)
	if err != nil {
		s.logger.WithError(err).Error("Scheduled celebration run failed")
	} else {
		s.logger.WithField("run_id", summary.RunID).Info(summary.Message())
	}

	if s.reporter != nil {
		s.reporter.ReportRun(ctx, summary, err)
	}
}

func (s *CelebrationScheduler) Stop() {
	s.logger.Info("Stopping celebration scheduler...")
	ctx := s.cronEngine.Stop() // Stops the scheduler from adding new jobs, waits for running jobs.
	<-ctx.Done()
	s.logger.Info("Celebration scheduler gracefully stopped.")
}
