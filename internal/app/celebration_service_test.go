package app

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"celebration_job/internal/domain/account"
	"celebration_job/internal/domain/celebration"
	"celebration_job/internal/domain/notify"
	"celebration_job/internal/domain/publication"
	idb "celebration_job/internal/infra/database"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- fakes ---

type fakeAccountRepo struct {
	accounts []*account.Account
	err      error
}

func (f *fakeAccountRepo) ListActive(_ context.Context) ([]*account.Account, error) {
	return f.accounts, f.err
}

type fakePublicationRepo struct {
	byOwner map[uuid.UUID][]*publication.Publication
	errFor  map[uuid.UUID]error
}

func (f *fakePublicationRepo) ListActiveByOwner(_ context.Context, ownerID uuid.UUID) ([]*publication.Publication, error) {
	if err := f.errFor[ownerID]; err != nil {
		return nil, err
	}
	return f.byOwner[ownerID], nil
}

type unitKey struct {
	pub, acc uuid.UUID
	event    celebration.EventType
	day      string
}

// fakeCelebrationRepo mimics the Postgres unique key on (publication, account, event, day).
type fakeCelebrationRepo struct {
	mu          sync.Mutex
	records     []*celebration.Record
	keys        map[unitKey]bool
	insertErr   map[uuid.UUID]error // by publication
	sweepErr    error
	blindExists bool // always report "not found" to simulate two runs racing past the check
}

func newFakeCelebrationRepo() *fakeCelebrationRepo {
	return &fakeCelebrationRepo{keys: map[unitKey]bool{}, insertErr: map[uuid.UUID]error{}}
}

func (f *fakeCelebrationRepo) ExistsSince(_ context.Context, pubID, accID uuid.UUID, ev celebration.EventType, since time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.blindExists {
		return false, nil
	}
	for _, r := range f.records {
		if r.PublicationID == pubID && r.AccountID == accID && r.EventType == ev && !r.CreatedAt.Before(since) {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeCelebrationRepo) Insert(_ context.Context, rec *celebration.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.insertErr[rec.PublicationID]; err != nil {
		return err
	}
	k := unitKey{rec.PublicationID, rec.AccountID, rec.EventType, rec.CelebrationDay.Format("2006-01-02")}
	if f.keys[k] {
		return idb.ErrDuplicateCelebration
	}
	f.keys[k] = true
	cp := *rec
	f.records = append(f.records, &cp)
	return nil
}

func (f *fakeCelebrationRepo) ExpireDue(_ context.Context, now time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sweepErr != nil {
		return 0, f.sweepErr
	}
	var n int64
	for _, r := range f.records {
		if r.Status == celebration.StatusActive && r.ExpiresAt.Before(now) {
			r.Expire()
			n++
		}
	}
	return n, nil
}

func (f *fakeCelebrationRepo) ListLive(_ context.Context, pubID uuid.UUID, now time.Time) ([]*celebration.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*celebration.Record
	for _, r := range f.records {
		if r.PublicationID == pubID && r.LiveAt(now) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeCelebrationRepo) count(pubID, accID uuid.UUID, ev celebration.EventType) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, r := range f.records {
		if r.PublicationID == pubID && r.AccountID == accID && r.EventType == ev {
			n++
		}
	}
	return n
}

type fakeDispatcher struct {
	mu   sync.Mutex
	sent []notify.Notification
	err  error
}

func (f *fakeDispatcher) Dispatch(_ context.Context, n notify.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, n)
	return f.err
}

func (f *fakeDispatcher) notifications() []notify.Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]notify.Notification(nil), f.sent...)
}

// --- fixture ---

type fixture struct {
	accounts     *fakeAccountRepo
	publications *fakePublicationRepo
	celebrations *fakeCelebrationRepo
	dispatcher   *fakeDispatcher
	now          time.Time
}

func newFixture() *fixture {
	return &fixture{
		accounts:     &fakeAccountRepo{},
		publications: &fakePublicationRepo{byOwner: map[uuid.UUID][]*publication.Publication{}, errFor: map[uuid.UUID]error{}},
		celebrations: newFakeCelebrationRepo(),
		dispatcher:   &fakeDispatcher{},
		now:          time.Date(2026, 3, 15, 9, 0, 0, 0, time.UTC),
	}
}

func (f *fixture) addAccount(acc *account.Account, pubs int) []*publication.Publication {
	f.accounts.accounts = append(f.accounts.accounts, acc)
	out := make([]*publication.Publication, 0, pubs)
	for i := 0; i < pubs; i++ {
		out = append(out, &publication.Publication{ID: uuid.New(), OwnerID: acc.ID, IsActive: true})
	}
	f.publications.byOwner[acc.ID] = out
	return out
}

func (f *fixture) service() *CelebrationService {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return NewCelebrationService(f.accounts, f.publications, f.celebrations, f.dispatcher, logrus.NewEntry(l), Options{
		Location: time.UTC,
		Workers:  2,
		Now:      func() time.Time { return f.now },
	})
}

func runAndDrain(t *testing.T, svc *CelebrationService) *RunSummary {
	t.Helper()
	summary, err := svc.Run(context.Background())
	require.NoError(t, err)
	require.NoError(t, svc.WaitNotifications(context.Background()))
	return summary
}

func birthdayAccount() *account.Account {
	return newAccount(date(1990, 3, 15), time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC))
}

// --- tests ---

func TestRun_IdempotentWithinDay(t *testing.T) {
	f := newFixture()
	acc := birthdayAccount()
	pubs := f.addAccount(acc, 1)
	svc := f.service()

	first := runAndDrain(t, svc)
	assert.Equal(t, 1, first.Birthdays)
	assert.Equal(t, 0, first.Anniversaries)

	for i := 0; i < 3; i++ {
		f.now = f.now.Add(time.Hour)
		again := runAndDrain(t, svc)
		assert.Equal(t, 0, again.Birthdays)
		assert.Equal(t, 1, again.Skipped)
	}
	assert.Equal(t, 1, f.celebrations.count(pubs[0].ID, acc.ID, celebration.EventTypeBirthday))
}

func TestRun_FanOutBreadth(t *testing.T) {
	f := newFixture()
	acc := birthdayAccount()
	pubs := f.addAccount(acc, 3)

	summary := runAndDrain(t, f.service())

	assert.Equal(t, 3, summary.Birthdays)
	for _, p := range pubs {
		assert.Equal(t, 1, f.celebrations.count(p.ID, acc.ID, celebration.EventTypeBirthday))
	}
	for _, r := range f.celebrations.records {
		assert.Equal(t, celebration.StatusActive, r.Status)
		assert.Equal(t, f.now.Add(24*time.Hour), r.ExpiresAt)
		assert.Contains(t, r.BodyText, acc.DisplayName)
	}
	assert.Len(t, f.dispatcher.notifications(), 1, "one notification per account, not per publication")
}

func TestRun_BirthdayAndAnniversarySameDay(t *testing.T) {
	f := newFixture()
	acc := newAccount(date(1990, 3, 15), time.Date(2023, 3, 15, 10, 0, 0, 0, time.UTC))
	pubs := f.addAccount(acc, 2)

	summary := runAndDrain(t, f.service())

	assert.Equal(t, 2, summary.Birthdays)
	assert.Equal(t, 2, summary.Anniversaries)
	for _, p := range pubs {
		assert.Equal(t, 1, f.celebrations.count(p.ID, acc.ID, celebration.EventTypeAccountAnniversary))
	}
	for _, r := range f.celebrations.records {
		if r.EventType == celebration.EventTypeAccountAnniversary {
			assert.Contains(t, r.BodyText, "3 years")
		}
	}

	sent := f.dispatcher.notifications()
	require.Len(t, sent, 1)
	assert.Equal(t, celebration.EventTypeBirthday, sent[0].EventType)
	assert.Equal(t, 3, sent[0].YearsOnPlatform)
	assert.Equal(t, acc.ContactEmail, sent[0].ContactAddress)
	assert.Equal(t, "2026-03-15", sent[0].OccurredOn)
}

func TestRun_NoSameDayResurrection(t *testing.T) {
	f := newFixture()
	acc := birthdayAccount()
	pubs := f.addAccount(acc, 1)
	svc := f.service()

	runAndDrain(t, svc)
	// Simulate an early sweep that already expired today's record.
	for _, r := range f.celebrations.records {
		r.Expire()
	}

	f.now = f.now.Add(2 * time.Hour)
	summary := runAndDrain(t, svc)
	assert.Equal(t, 0, summary.Birthdays)
	assert.Equal(t, 1, f.celebrations.count(pubs[0].ID, acc.ID, celebration.EventTypeBirthday))
}

func TestRun_NewDayCreatesNewRecord(t *testing.T) {
	f := newFixture()
	acc := newAccount(date(1990, 3, 15), time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC))
	pubs := f.addAccount(acc, 1)
	svc := f.service()

	runAndDrain(t, svc)

	f.now = time.Date(2027, 3, 15, 9, 0, 0, 0, time.UTC)
	summary := runAndDrain(t, svc)
	assert.Equal(t, 1, summary.Birthdays)
	assert.Equal(t, 1, summary.Anniversaries)
	assert.EqualValues(t, 2, summary.Expired, "last year's records are swept first")
	assert.Equal(t, 2, f.celebrations.count(pubs[0].ID, acc.ID, celebration.EventTypeBirthday))
}

func TestRun_ExpiryTransition(t *testing.T) {
	f := newFixture()
	pubID := uuid.New()
	stale := &celebration.Record{ID: uuid.New(), PublicationID: pubID, Status: celebration.StatusActive,
		CreatedAt: f.now.Add(-30 * time.Hour), ExpiresAt: f.now.Add(-6 * time.Hour)}
	fresh := &celebration.Record{ID: uuid.New(), PublicationID: pubID, Status: celebration.StatusActive,
		CreatedAt: f.now.Add(-time.Hour), ExpiresAt: f.now.Add(23 * time.Hour)}
	f.celebrations.records = []*celebration.Record{stale, fresh}

	svc := f.service()
	summary := runAndDrain(t, svc)

	assert.EqualValues(t, 1, summary.Expired)
	assert.Equal(t, celebration.StatusExpired, stale.Status)
	assert.Equal(t, celebration.StatusActive, fresh.Status)

	live, err := svc.LiveCelebrations(context.Background(), pubID)
	require.NoError(t, err)
	require.Len(t, live, 1)
	assert.Equal(t, fresh.ID, live[0].ID)
}

func TestRun_InsertFailureIsIsolated(t *testing.T) {
	f := newFixture()
	acc := birthdayAccount()
	pubs := f.addAccount(acc, 2)
	f.celebrations.insertErr[pubs[1].ID] = errors.New("connection reset")
	other := birthdayAccount()
	otherPubs := f.addAccount(other, 1)
	svc := f.service()

	summary := runAndDrain(t, svc)
	assert.Equal(t, 2, summary.Birthdays)
	assert.Equal(t, 1, summary.Failures)
	assert.Equal(t, 1, f.celebrations.count(pubs[0].ID, acc.ID, celebration.EventTypeBirthday))
	assert.Equal(t, 0, f.celebrations.count(pubs[1].ID, acc.ID, celebration.EventTypeBirthday))
	assert.Equal(t, 1, f.celebrations.count(otherPubs[0].ID, other.ID, celebration.EventTypeBirthday))
	assert.Contains(t, summary.Message(), "1 units failed")

	// The next run the same day fills the gap.
	delete(f.celebrations.insertErr, pubs[1].ID)
	f.now = f.now.Add(time.Hour)
	healed := runAndDrain(t, svc)
	assert.Equal(t, 1, healed.Birthdays)
	assert.Equal(t, 0, healed.Failures)
	assert.Equal(t, 1, f.celebrations.count(pubs[0].ID, acc.ID, celebration.EventTypeBirthday))
	assert.Equal(t, 1, f.celebrations.count(pubs[1].ID, acc.ID, celebration.EventTypeBirthday))
}

func TestRun_PublicationLookupFailureStillNotifies(t *testing.T) {
	f := newFixture()
	broken := birthdayAccount()
	f.addAccount(broken, 1)
	f.publications.errFor[broken.ID] = errors.New("timeout")
	healthy := birthdayAccount()
	f.addAccount(healthy, 1)

	summary := runAndDrain(t, f.service())
	assert.Equal(t, 1, summary.Birthdays)
	assert.Equal(t, 1, summary.Failures)
	assert.Len(t, f.dispatcher.notifications(), 2)
}

func TestRun_NoPublicationsStillNotifies(t *testing.T) {
	f := newFixture()
	acc := birthdayAccount()
	f.addAccount(acc, 0)

	summary := runAndDrain(t, f.service())
	assert.Equal(t, 0, summary.Birthdays)
	assert.Equal(t, 1, summary.Qualifying)
	assert.Empty(t, f.celebrations.records)

	sent := f.dispatcher.notifications()
	require.Len(t, sent, 1)
	assert.Equal(t, acc.ID, sent[0].AccountID)
	assert.Zero(t, sent[0].YearsOnPlatform)
}

func TestRun_NotificationFailureDoesNotAffectResult(t *testing.T) {
	f := newFixture()
	f.dispatcher.err = errors.New("smtp down")
	f.addAccount(birthdayAccount(), 2)

	summary := runAndDrain(t, f.service())
	assert.Equal(t, 2, summary.Birthdays)
	assert.Equal(t, 0, summary.Failures)
	assert.Equal(t, 1, summary.NotificationsAttempted)
}

func TestRun_SweepFailureIsNotFatal(t *testing.T) {
	f := newFixture()
	f.celebrations.sweepErr = errors.New("lock timeout")
	f.addAccount(birthdayAccount(), 1)

	summary := runAndDrain(t, f.service())
	assert.Equal(t, 1, summary.Birthdays)
	assert.Zero(t, summary.Expired)
}

func TestRun_AccountListFailureIsFatal(t *testing.T) {
	f := newFixture()
	f.accounts.err = errors.New("connection refused")

	summary, err := f.service().Run(context.Background())
	require.Error(t, err)
	assert.Nil(t, summary)
	assert.ErrorIs(t, err, ErrAccountsUnavailable)
	assert.Empty(t, f.dispatcher.notifications())
}

func TestRun_ConcurrentRunsRaceOnInsert(t *testing.T) {
	f := newFixture()
	f.celebrations.blindExists = true
	acc := birthdayAccount()
	pubs := f.addAccount(acc, 3)

	// Separate services model separate processes: no shared in-process coalescing.
	services := []*CelebrationService{f.service(), f.service(), f.service()}
	var wg sync.WaitGroup
	summaries := make([]*RunSummary, len(services))
	for i, svc := range services {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s, err := svc.Run(context.Background())
			assert.NoError(t, err)
			summaries[i] = s
		}()
	}
	wg.Wait()

	created := 0
	for i, s := range summaries {
		require.NotNil(t, s)
		require.NoError(t, services[i].WaitNotifications(context.Background()))
		created += s.Birthdays
		assert.Zero(t, s.Failures, "a lost insert race is a skip, not a failure")
	}
	assert.Equal(t, 3, created)
	for _, p := range pubs {
		assert.Equal(t, 1, f.celebrations.count(p.ID, acc.ID, celebration.EventTypeBirthday))
	}
}

func TestRun_InactiveDayProducesNothing(t *testing.T) {
	f := newFixture()
	f.addAccount(newAccount(date(1990, 8, 1), time.Date(2024, 8, 1, 0, 0, 0, 0, time.UTC)), 2)

	summary := runAndDrain(t, f.service())
	assert.Zero(t, summary.Qualifying)
	assert.Empty(t, f.celebrations.records)
	assert.Empty(t, f.dispatcher.notifications())
	assert.Equal(t, "2026-03-15", summary.Day)
}
