// internal/app/celebration_service.go
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"celebration_job/internal/domain/account"
	"celebration_job/internal/domain/celebration"
	"celebration_job/internal/domain/notify"
	"celebration_job/internal/domain/publication"
	idb "celebration_job/internal/infra/database" // For ErrDuplicateCelebration
	"celebration_job/internal/infra/metrics"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// ErrAccountsUnavailable is the only fatal run error: without the account list nothing can be detected.
var ErrAccountsUnavailable = errors.New("cannot list active accounts")

const (
	DefaultExpiryWindow  = 24 * time.Hour
	defaultWorkers       = 4
	defaultNotifyTimeout = 10 * time.Second
)

// Runner runs one celebration pass. Implemented by CelebrationService.
type Runner interface {
	Run(ctx context.Context) (*RunSummary, error)
}

// RunSummary reports what a run did.
type RunSummary struct {
	RunID                  string
	StartedAt              time.Time
	Day                    string // YYYY-MM-DD in the job's zone
	Qualifying             int
	Birthdays              int
	Anniversaries          int
	Skipped                int
	Failures               int
	Expired                int64
	NotificationsAttempted int
}

// Message is a short human readable description of the summary.
func (s *RunSummary) Message() string {
	msg := fmt.Sprintf("Created %d birthday and %d anniversary celebration posts for %s", s.Birthdays, s.Anniversaries, s.Day)
	if s.Failures > 0 {
		msg += fmt.Sprintf(" (%d units failed and will be retried on the next run)", s.Failures)
	}
	return msg
}

// Options configures a CelebrationService. Zero values fall back to defaults.
type Options struct {
	Location      *time.Location
	ExpiryWindow  time.Duration
	Workers       int
	NotifyTimeout time.Duration
	Now           func() time.Time
}

// CelebrationService sweeps expired records, detects today's events and fans out
// celebration records to every active publication of each qualifying account.
type CelebrationService struct {
	accountRepo     account.Repository
	publicationRepo publication.Repository
	celebrationRepo celebration.Repository
	dispatcher      notify.Dispatcher
	detector        *Detector
	logger          *logrus.Entry

	expiryWindow  time.Duration
	workers       int
	notifyTimeout time.Duration
	now           func() time.Time

	flight  singleflight.Group
	pending sync.WaitGroup // detached notification dispatches
}

func NewCelebrationService(
	ar account.Repository,
	pr publication.Repository,
	cr celebration.Repository,
	d notify.Dispatcher,
	logger *logrus.Entry,
	opts Options,
) *CelebrationService {
	s := &CelebrationService{
		accountRepo:     ar,
		publicationRepo: pr,
		celebrationRepo: cr,
		dispatcher:      d,
		detector:        NewDetector(opts.Location),
		logger:          logger,
		expiryWindow:    opts.ExpiryWindow,
		workers:         opts.Workers,
		notifyTimeout:   opts.NotifyTimeout,
		now:             opts.Now,
	}
	if s.expiryWindow <= 0 {
		s.expiryWindow = DefaultExpiryWindow
	}
	if s.workers <= 0 {
		s.workers = defaultWorkers
	}
	if s.notifyTimeout <= 0 {
		s.notifyTimeout = defaultNotifyTimeout
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Run executes one pass. Concurrent callers inside this process share a single pass
// and receive the same summary; the first caller's context governs it.
func (s *CelebrationService) Run(ctx context.Context) (*RunSummary, error) {
	v, err, shared := s.flight.Do("celebration-run", func() (interface{}, error) {
		return s.run(ctx)
	})
	if shared {
		s.logger.Debug("Joined an in-flight celebration run")
	}
	if err != nil {
		return nil, err
	}
	return v.(*RunSummary), nil
}

func (s *CelebrationService) run(ctx context.Context) (*RunSummary, error) {
	now := s.now()
	dayStart := s.detector.DayStart(now)
	summary := &RunSummary{
		RunID:     uuid.NewString(),
		StartedAt: now,
		Day:       dayStart.Format("2006-01-02"),
	}
	log := s.logger.WithFields(logrus.Fields{"run_id": summary.RunID, "day": summary.Day})
	log.Info("Starting celebration run")

	timer := time.Now()
	defer func() { metrics.RunDuration.Observe(time.Since(timer).Seconds()) }()

	// 1. Sweep. Best effort: display logic respects expires_at on its own.
	summary.Expired = s.Sweep(ctx, now, log)

	// 2. Detect
	accounts, err := s.accountRepo.ListActive(ctx)
	if err != nil {
		log.WithError(err).Error("Failed to list active accounts, aborting run")
		return nil, fmt.Errorf("%w: %w", ErrAccountsUnavailable, err)
	}
	occasions := s.detector.Detect(now, accounts)
	summary.Qualifying = len(occasions)
	log.WithFields(logrus.Fields{
		"active_accounts": len(accounts),
		"qualifying":      len(occasions),
	}).Info("Detection complete")

	// 3. Fan out + notify, accounts in parallel up to the worker limit.
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for _, occ := range occasions {
		if gctx.Err() != nil {
			log.WithError(gctx.Err()).Warn("Run cancelled; remaining accounts left for the next run")
			break
		}
		g.Go(func() error {
			tally := s.fanOut(gctx, occ, now, dayStart, log)
			s.notify(gctx, occ, summary.RunID, summary.Day, log)

			mu.Lock()
			defer mu.Unlock()
			summary.Birthdays += tally.birthdays
			summary.Anniversaries += tally.anniversaries
			summary.Skipped += tally.skipped
			summary.Failures += tally.failures
			summary.NotificationsAttempted++
			return nil
		})
	}
	_ = g.Wait() // unit goroutines never fail the group

	metrics.LastRunSuccess.SetToCurrentTime()
	log.WithFields(logrus.Fields{
		"birthdays":     summary.Birthdays,
		"anniversaries": summary.Anniversaries,
		"skipped":       summary.Skipped,
		"failures":      summary.Failures,
		"expired":       summary.Expired,
	}).Info("Celebration run finished")
	return summary, nil
}

// Sweep expires every active record whose window has elapsed. Errors are logged and swallowed.
func (s *CelebrationService) Sweep(ctx context.Context, now time.Time, log *logrus.Entry) int64 {
	n, err := s.celebrationRepo.ExpireDue(ctx, now)
	if err != nil {
		metrics.UnitFailures.WithLabelValues(metrics.StageSweep).Inc()
		log.WithError(err).Warn("Expiry sweep failed; continuing")
		return 0
	}
	if n > 0 {
		metrics.RecordsExpired.Add(float64(n))
		log.WithField("expired", n).Info("Expired stale celebration records")
	}
	return n
}

type fanOutTally struct {
	birthdays     int
	anniversaries int
	skipped       int
	failures      int
}

// fanOut materialises one record per (publication, event type) for the account.
// Every unit is isolated: a failure is counted and logged, siblings still run.
func (s *CelebrationService) fanOut(ctx context.Context, occ Occasion, now, dayStart time.Time, log *logrus.Entry) fanOutTally {
	var tally fanOutTally
	acc := occ.Account
	accLog := log.WithField("account_id", acc.ID)

	pubs, err := s.publicationRepo.ListActiveByOwner(ctx, acc.ID)
	if err != nil {
		metrics.UnitFailures.WithLabelValues(metrics.StagePublications).Inc()
		accLog.WithError(err).Error("Failed to list publications for account")
		tally.failures++
		return tally
	}
	if len(pubs) == 0 {
		accLog.Debug("Account has no active publications; nothing to post")
		return tally
	}

	for _, pub := range pubs {
		for _, eventType := range occ.EventTypes() {
			if ctx.Err() != nil {
				return tally
			}
			unitLog := accLog.WithFields(logrus.Fields{
				"publication_id": pub.ID,
				"event_type":     eventType,
			})
			created, err := s.materialize(ctx, pub, occ, eventType, now, dayStart)
			switch {
			case err != nil:
				tally.failures++
				unitLog.WithError(err).Error("Failed to materialize celebration record")
			case !created:
				tally.skipped++
				metrics.RecordsSkipped.WithLabelValues(string(eventType)).Inc()
				unitLog.Debug("Celebration record already exists for today, skipping")
			default:
				metrics.RecordsCreated.WithLabelValues(string(eventType)).Inc()
				unitLog.Info("Celebration record created")
				if eventType == celebration.EventTypeBirthday {
					tally.birthdays++
				} else {
					tally.anniversaries++
				}
			}
		}
	}
	return tally
}

// materialize creates the record for one unit unless one already exists since dayStart.
// The existence check is on created_at, not status, so an early-expired record still blocks.
func (s *CelebrationService) materialize(ctx context.Context, pub *publication.Publication, occ Occasion, eventType celebration.EventType, now, dayStart time.Time) (bool, error) {
	exists, err := s.celebrationRepo.ExistsSince(ctx, pub.ID, occ.Account.ID, eventType, dayStart)
	if err != nil {
		metrics.UnitFailures.WithLabelValues(metrics.StageCheck).Inc()
		return false, err
	}
	if exists {
		return false, nil
	}

	body, err := celebration.BodyText(eventType, occ.Account.DisplayName, occ.YearsOnPlatform)
	if err != nil {
		metrics.UnitFailures.WithLabelValues(metrics.StageRender).Inc()
		return false, err
	}

	rec := &celebration.Record{
		ID:             uuid.New(),
		PublicationID:  pub.ID,
		AccountID:      occ.Account.ID,
		EventType:      eventType,
		BodyText:       body,
		CelebrationDay: dayStart,
		Status:         celebration.StatusActive,
		CreatedAt:      now,
		ExpiresAt:      now.Add(s.expiryWindow),
	}
	if err := s.celebrationRepo.Insert(ctx, rec); err != nil {
		if errors.Is(err, idb.ErrDuplicateCelebration) {
			// Lost the race with a concurrent run; the unique key kept the invariant.
			return false, nil
		}
		metrics.UnitFailures.WithLabelValues(metrics.StageInsert).Inc()
		return false, err
	}
	return true, nil
}

// notify fires one notification for the account without waiting for the outcome.
// The dispatch outlives cancellation of the run context but is bounded by notifyTimeout.
func (s *CelebrationService) notify(ctx context.Context, occ Occasion, runID, day string, log *logrus.Entry) {
	n := notify.Notification{
		IdempotencyKey: runID + ":" + occ.Account.ID.String(),
		AccountID:      occ.Account.ID,
		ContactAddress: occ.Account.ContactEmail,
		DisplayName:    occ.Account.DisplayName,
		EventType:      occ.PrimaryEvent(),
		OccurredOn:     day,
	}
	if occ.IsAnniversary {
		n.YearsOnPlatform = occ.YearsOnPlatform
	}

	dispatchCtx := context.WithoutCancel(ctx)
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		ctx, cancel := context.WithTimeout(dispatchCtx, s.notifyTimeout)
		defer cancel()

		notifLog := log.WithFields(logrus.Fields{"account_id": n.AccountID, "event_type": n.EventType})
		if err := s.dispatcher.Dispatch(ctx, n); err != nil {
			metrics.Notifications.WithLabelValues("error").Inc()
			notifLog.WithError(err).Warn("Notification dispatch failed")
			return
		}
		metrics.Notifications.WithLabelValues("sent").Inc()
		notifLog.Debug("Notification dispatched")
	}()
}

// WaitNotifications blocks until detached dispatches finish or ctx is done.
func (s *CelebrationService) WaitNotifications(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.pending.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// LiveCelebrations returns the records currently displayable on a publication.
func (s *CelebrationService) LiveCelebrations(ctx context.Context, publicationID uuid.UUID) ([]*celebration.Record, error) {
	return s.celebrationRepo.ListLive(ctx, publicationID, s.now())
}
