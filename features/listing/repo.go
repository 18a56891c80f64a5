package listing

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
)

// Repository is the store surface the reconciliation engine needs. The
// nearest-neighbor and count paths are exposed separately by PostgresRepo for
// the matching and snapshot features.
type Repository interface {
	URLIndex(ctx context.Context, source string) (map[string]int64, error)
	EmbeddedURLs(ctx context.Context, source string) (map[string]struct{}, error)
	UpdateVolatile(ctx context.Context, updates []VolatileUpdate) error
	Insert(ctx context.Context, records []Record) ([]IDURL, error)
	DeleteByURLs(ctx context.Context, urls []string) (int64, error)
	PendingEmbedding(ctx context.Context, source string) ([]IDURL, error)
}

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

// URLIndex loads the url -> id mapping for every listing owned by the given
// source. Ownership is decided by the marketplace link containing the source
// name.
func (r *PostgresRepo) URLIndex(ctx context.Context, source string) (map[string]int64, error) {
	query := `SELECT url, id FROM listings WHERE link LIKE '%' || $1 || '%'`
	rows, err := r.db.QueryContext(ctx, query, source)
	if err != nil {
		return nil, fmt.Errorf("loading url index for %s: %w", source, err)
	}
	defer rows.Close()

	index := make(map[string]int64)
	for rows.Next() {
		var url string
		var id int64
		if err := rows.Scan(&url, &id); err != nil {
			return nil, err
		}
		index[url] = id
	}
	return index, rows.Err()
}

// EmbeddedURLs returns the URLs owned by the source that already carry an
// embedding. These seed the missing-set intersection of a reconciliation run.
func (r *PostgresRepo) EmbeddedURLs(ctx context.Context, source string) (map[string]struct{}, error) {
	query := `SELECT url FROM listings WHERE embedding IS NOT NULL AND link LIKE '%' || $1 || '%'`
	rows, err := r.db.QueryContext(ctx, query, source)
	if err != nil {
		return nil, fmt.Errorf("loading embedded urls for %s: %w", source, err)
	}
	defer rows.Close()

	urls := make(map[string]struct{})
	for rows.Next() {
		var url string
		if err := rows.Scan(&url); err != nil {
			return nil, err
		}
		urls[url] = struct{}{}
	}
	return urls, rows.Err()
}

func (r *PostgresRepo) UpdateVolatile(ctx context.Context, updates []VolatileUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		UPDATE listings
		SET auction_end_time = $2, price = $3, valuation = $4, number_of_bids = $5, updated_at = NOW()
		WHERE id = $1`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, u := range updates {
		if _, err := stmt.ExecContext(ctx, u.ID, u.AuctionEndTime, u.Price, u.Valuation, u.NumberOfBids); err != nil {
			return fmt.Errorf("updating listing %d: %w", u.ID, err)
		}
	}
	return tx.Commit()
}

// Insert creates rows for records not yet in the store and returns the
// assigned ids. A URL already present (typically owned by another source) is
// left untouched and yields no pair, which keeps reruns safe.
func (r *PostgresRepo) Insert(ctx context.Context, records []Record) ([]IDURL, error) {
	if len(records) == 0 {
		return nil, nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO listings
			(url, link, auction_type, auction_end_time, price, number_of_bids,
			 domain_age, pageviews, valuation, monthly_parking_revenue, is_adult)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (url) DO NOTHING
		RETURNING id, url`)
	if err != nil {
		return nil, err
	}
	defer stmt.Close()

	inserted := make([]IDURL, 0, len(records))
	for _, rec := range records {
		var pair IDURL
		err := stmt.QueryRowContext(ctx,
			rec.URL, rec.Link, rec.AuctionType, rec.AuctionEndTime, rec.Price,
			rec.NumberOfBids, rec.DomainAge, rec.Pageviews, rec.Valuation,
			rec.MonthlyParkingRevenue, rec.IsAdult,
		).Scan(&pair.ID, &pair.URL)
		if err == sql.ErrNoRows {
			continue // conflicting URL, owned elsewhere
		}
		if err != nil {
			return nil, fmt.Errorf("inserting listing %s: %w", rec.URL, err)
		}
		inserted = append(inserted, pair)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return inserted, nil
}

func (r *PostgresRepo) DeleteByURLs(ctx context.Context, urls []string) (int64, error) {
	if len(urls) == 0 {
		return 0, nil
	}
	res, err := r.db.ExecContext(ctx, `DELETE FROM listings WHERE url = ANY($1)`, pq.Array(urls))
	if err != nil {
		return 0, fmt.Errorf("deleting listings: %w", err)
	}
	return res.RowsAffected()
}

// PendingEmbedding returns source-owned listings that were handed to a batch
// job at some point but still have no embedding. Reconciliation re-surfaces
// them so a failed job's listings eventually get resubmitted.
func (r *PostgresRepo) PendingEmbedding(ctx context.Context, source string) ([]IDURL, error) {
	query := `
		SELECT id, url FROM listings
		WHERE batch_job_id IS NOT NULL AND embedding IS NULL AND link LIKE '%' || $1 || '%'`
	rows, err := r.db.QueryContext(ctx, query, source)
	if err != nil {
		return nil, fmt.Errorf("loading pending embeddings for %s: %w", source, err)
	}
	defer rows.Close()

	var pairs []IDURL
	for rows.Next() {
		var p IDURL
		if err := rows.Scan(&p.ID, &p.URL); err != nil {
			return nil, err
		}
		pairs = append(pairs, p)
	}
	return pairs, rows.Err()
}

// NearestActive returns the limit closest listings to the given embedding by
// cosine distance, ascending, ties broken by id for determinism. Listings
// whose auction has ended are excluded regardless of distance.
func (r *PostgresRepo) NearestActive(ctx context.Context, embedding []float32, limit int) ([]Match, error) {
	query := `
		SELECT id, url, link, price, valuation, auction_end_time, embedding <=> $1 AS score
		FROM listings
		WHERE auction_end_time > NOW() AND embedding IS NOT NULL
		ORDER BY embedding <=> $1 ASC, id ASC
		LIMIT $2`
	rows, err := r.db.QueryContext(ctx, query, pgvector.NewVector(embedding), limit)
	if err != nil {
		return nil, fmt.Errorf("nearest-neighbor query: %w", err)
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var m Match
		if err := rows.Scan(&m.ListingID, &m.URL, &m.Link, &m.Price, &m.Valuation, &m.AuctionEndTime, &m.Score); err != nil {
			return nil, err
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

func (r *PostgresRepo) CountActive(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM listings WHERE auction_end_time > NOW()`).Scan(&count)
	return count, err
}
