// Package snapshot records per-run counts for observability. Append-only;
// reads always take the most recent row.
package snapshot

import (
	"context"
	"database/sql"
	"time"
)

type Snapshot struct {
	ID                int64     `json:"id"`
	ListingCount      int       `json:"listing_count"`
	DomainSearchCount int       `json:"domain_search_count"`
	CreatedAt         time.Time `json:"created_at"`
}

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) Record(ctx context.Context, listingCount, searchCount int) (*Snapshot, error) {
	s := &Snapshot{ListingCount: listingCount, DomainSearchCount: searchCount}
	query := `INSERT INTO data_updates (listing_count, domain_search_count) VALUES ($1, $2) RETURNING id, created_at`
	err := r.db.QueryRowContext(ctx, query, listingCount, searchCount).Scan(&s.ID, &s.CreatedAt)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (r *PostgresRepo) Latest(ctx context.Context) (*Snapshot, error) {
	s := &Snapshot{}
	query := `SELECT id, listing_count, domain_search_count, created_at FROM data_updates ORDER BY created_at DESC LIMIT 1`
	err := r.db.QueryRowContext(ctx, query).Scan(&s.ID, &s.ListingCount, &s.DomainSearchCount, &s.CreatedAt)
	if err != nil {
		return nil, err
	}
	return s, nil
}
