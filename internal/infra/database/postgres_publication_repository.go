package database

import (
	"context"
	"database/sql"
	"fmt"

	"celebration_job/internal/domain/publication"

	"github.com/google/uuid"
)

type PostgresPublicationRepository struct {
	db *sql.DB
}

func NewPostgresPublicationRepository(db *sql.DB) *PostgresPublicationRepository {
	return &PostgresPublicationRepository{db: db}
}

func (r *PostgresPublicationRepository) ListActiveByOwner(ctx context.Context, ownerID uuid.UUID) ([]*publication.Publication, error) {
	query := `SELECT id, owner_id, title, is_active, created_at
               FROM blogs WHERE owner_id = $1 AND is_active = TRUE ORDER BY created_at, id`

	rows, err := r.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("error listing active publications for owner %s: %w", ownerID, err)
	}
	defer rows.Close()

	pubs := make([]*publication.Publication, 0)
	for rows.Next() {
		p := &publication.Publication{}
		if err := rows.Scan(&p.ID, &p.OwnerID, &p.Title, &p.IsActive, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("error scanning publication: %w", err)
		}
		pubs = append(pubs, p)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating publications: %w", err)
	}
	return pubs, nil
}
