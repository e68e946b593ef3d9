// internal/infra/database/postgres_celebration_repository.go
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"celebration_job/internal/domain/celebration"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

const (
	uniqueViolation      = pq.ErrorCode("23505")
	unitDayConstraint    = "celebration_records_unit_day_key"
	celebrationDayLayout = "2006-01-02"
)

// ErrDuplicateCelebration is returned by Insert when the unit already has a record for the day.
var ErrDuplicateCelebration = errors.New("celebration record already exists for (publication_id, account_id, event_type, day)")

type PostgresCelebrationRepository struct {
	db *sql.DB
}

func NewPostgresCelebrationRepository(db *sql.DB) *PostgresCelebrationRepository {
	return &PostgresCelebrationRepository{db: db}
}

func (r *PostgresCelebrationRepository) ExistsSince(ctx context.Context, publicationID, accountID uuid.UUID, eventType celebration.EventType, since time.Time) (bool, error) {
	query := `SELECT EXISTS (
                 SELECT 1 FROM celebration_records
                 WHERE publication_id = $1 AND account_id = $2 AND event_type = $3 AND created_at >= $4)`
	var exists bool
	if err := r.db.QueryRowContext(ctx, query, publicationID, accountID, eventType, since).Scan(&exists); err != nil {
		return false, fmt.Errorf("error checking existing celebration record: %w", err)
	}
	return exists, nil
}

func (r *PostgresCelebrationRepository) Insert(ctx context.Context, rec *celebration.Record) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.Status == "" {
		rec.Status = celebration.StatusActive
	}

	query := `INSERT INTO celebration_records
                 (id, publication_id, account_id, event_type, body_text, celebration_day, status, created_at, expires_at)
               VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
               ON CONFLICT ON CONSTRAINT ` + unitDayConstraint + ` DO NOTHING
               RETURNING created_at`
	err := r.db.QueryRowContext(ctx, query,
		rec.ID, rec.PublicationID, rec.AccountID, rec.EventType, rec.BodyText,
		rec.CelebrationDay.Format(celebrationDayLayout), rec.Status, rec.CreatedAt, rec.ExpiresAt,
	).Scan(&rec.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) { // conflict swallowed by DO NOTHING
			return ErrDuplicateCelebration
		}
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return ErrDuplicateCelebration
		}
		return fmt.Errorf("error inserting celebration record: %w", err)
	}
	return nil
}

func (r *PostgresCelebrationRepository) ExpireDue(ctx context.Context, now time.Time) (int64, error) {
	query := `UPDATE celebration_records SET status = $1
               WHERE status = $2 AND expires_at < $3`
	res, err := r.db.ExecContext(ctx, query, celebration.StatusExpired, celebration.StatusActive, now)
	if err != nil {
		return 0, fmt.Errorf("error expiring celebration records: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("error reading expired row count: %w", err)
	}
	return n, nil
}

func (r *PostgresCelebrationRepository) ListLive(ctx context.Context, publicationID uuid.UUID, now time.Time) ([]*celebration.Record, error) {
	query := `SELECT id, publication_id, account_id, event_type, body_text, celebration_day, status, created_at, expires_at
               FROM celebration_records
               WHERE publication_id = $1 AND status = $2 AND expires_at > $3
               ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, query, publicationID, celebration.StatusActive, now)
	if err != nil {
		return nil, fmt.Errorf("error querying live celebration records: %w", err)
	}
	defer rows.Close()

	records := make([]*celebration.Record, 0)
	for rows.Next() {
		rec := celebration.Record{}
		if err := rows.Scan(
			&rec.ID, &rec.PublicationID, &rec.AccountID, &rec.EventType, &rec.BodyText,
			&rec.CelebrationDay, &rec.Status, &rec.CreatedAt, &rec.ExpiresAt,
		); err != nil {
			return nil, fmt.Errorf("error scanning celebration record row: %w", err)
		}
		records = append(records, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating celebration record rows: %w", err)
	}
	return records, nil
}
