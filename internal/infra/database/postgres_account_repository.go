package database

import (
	"context"
	"database/sql"
	"fmt"

	"celebration_job/internal/domain/account"
)

type PostgresAccountRepository struct {
	db *sql.DB
}

func NewPostgresAccountRepository(db *sql.DB) *PostgresAccountRepository {
	return &PostgresAccountRepository{db: db}
}

func (r *PostgresAccountRepository) ListActive(ctx context.Context) ([]*account.Account, error) {
	query := `SELECT id, display_name, email, date_of_birth, is_active, created_at
               FROM profiles WHERE is_active = TRUE ORDER BY created_at, id`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("error listing active accounts: %w", err)
	}
	defer rows.Close()

	accounts := make([]*account.Account, 0)
	for rows.Next() {
		a := &account.Account{}
		if err := rows.Scan(&a.ID, &a.DisplayName, &a.ContactEmail, &a.DateOfBirth, &a.IsActive, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("error scanning active account: %w", err)
		}
		accounts = append(accounts, a)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating active accounts: %w", err)
	}
	return accounts, nil
}
