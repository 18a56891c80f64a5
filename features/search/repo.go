package search

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
)

type Repository interface {
	Create(ctx context.Context, s *Search) error
	GetByHash(ctx context.Context, hash string) (*Search, error)
	GetByUUID(ctx context.Context, uuid string) (*Search, error)
	List(ctx context.Context) ([]Search, error)
	Count(ctx context.Context) (int, error)
	UpdateEmbedding(ctx context.Context, id int64, embedding []float32) error
	Associations(ctx context.Context, searchID int64) (map[int64]float64, error)
	AddAssociations(ctx context.Context, searchID int64, scores map[int64]float64) error
	RemoveAssociations(ctx context.Context, searchID int64, listingIDs []int64) error
}

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

const searchColumns = `id, uuid, prompt, prompt_hash, is_unlocked, is_example, name, email, summary, embedding, created_at`

func (r *PostgresRepo) Create(ctx context.Context, s *Search) error {
	query := `
		INSERT INTO domain_searches (uuid, prompt, prompt_hash, is_unlocked, is_example, name, email, summary, embedding)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at`
	var emb any
	if s.Embedding != nil {
		emb = pgvector.NewVector(s.Embedding)
	}
	err := r.db.QueryRowContext(ctx, query,
		s.UUID, s.Prompt, s.PromptHash, s.IsUnlocked, s.IsExample, s.Name, s.Email, s.Summary, emb,
	).Scan(&s.ID, &s.CreatedAt)
	if err != nil {
		return fmt.Errorf("creating search: %w", err)
	}
	return nil
}

func (r *PostgresRepo) GetByHash(ctx context.Context, hash string) (*Search, error) {
	query := `SELECT ` + searchColumns + ` FROM domain_searches WHERE prompt_hash = $1`
	s, err := r.scanOne(r.db.QueryRowContext(ctx, query, hash))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return s, err
}

func (r *PostgresRepo) GetByUUID(ctx context.Context, uuid string) (*Search, error) {
	query := `SELECT ` + searchColumns + ` FROM domain_searches WHERE uuid = $1`
	return r.scanOne(r.db.QueryRowContext(ctx, query, uuid))
}

func (r *PostgresRepo) List(ctx context.Context) ([]Search, error) {
	query := `SELECT ` + searchColumns + ` FROM domain_searches ORDER BY id ASC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var searches []Search
	for rows.Next() {
		s, err := scanSearch(rows.Scan)
		if err != nil {
			return nil, err
		}
		searches = append(searches, *s)
	}
	return searches, rows.Err()
}

func (r *PostgresRepo) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM domain_searches`).Scan(&count)
	return count, err
}

func (r *PostgresRepo) UpdateEmbedding(ctx context.Context, id int64, embedding []float32) error {
	query := `UPDATE domain_searches SET embedding = $1, updated_at = NOW() WHERE id = $2`
	_, err := r.db.ExecContext(ctx, query, pgvector.NewVector(embedding), id)
	return err
}

func (r *PostgresRepo) Associations(ctx context.Context, searchID int64) (map[int64]float64, error) {
	query := `SELECT listing_id, score FROM listings_to_domain_searches WHERE domain_search_id = $1`
	rows, err := r.db.QueryContext(ctx, query, searchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	scores := make(map[int64]float64)
	for rows.Next() {
		var id int64
		var score float64
		if err := rows.Scan(&id, &score); err != nil {
			return nil, err
		}
		scores[id] = score
	}
	return scores, rows.Err()
}

func (r *PostgresRepo) AddAssociations(ctx context.Context, searchID int64, scores map[int64]float64) error {
	if len(scores) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO listings_to_domain_searches (listing_id, domain_search_id, score)
		VALUES ($1, $2, $3)
		ON CONFLICT (listing_id, domain_search_id) DO UPDATE SET score = EXCLUDED.score`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for listingID, score := range scores {
		if _, err := stmt.ExecContext(ctx, listingID, searchID, score); err != nil {
			return fmt.Errorf("associating listing %d with search %d: %w", listingID, searchID, err)
		}
	}
	return tx.Commit()
}

func (r *PostgresRepo) RemoveAssociations(ctx context.Context, searchID int64, listingIDs []int64) error {
	if len(listingIDs) == 0 {
		return nil
	}
	query := `DELETE FROM listings_to_domain_searches WHERE domain_search_id = $1 AND listing_id = ANY($2)`
	_, err := r.db.ExecContext(ctx, query, searchID, pq.Array(listingIDs))
	return err
}

type scanFunc func(dest ...any) error

func (r *PostgresRepo) scanOne(row *sql.Row) (*Search, error) {
	return scanSearch(row.Scan)
}

func scanSearch(scan scanFunc) (*Search, error) {
	var s Search
	var embedding sql.NullString
	err := scan(&s.ID, &s.UUID, &s.Prompt, &s.PromptHash, &s.IsUnlocked, &s.IsExample,
		&s.Name, &s.Email, &s.Summary, &embedding, &s.CreatedAt)
	if err != nil {
		return nil, err
	}
	if embedding.Valid {
		vec, err := parseVector(embedding.String)
		if err != nil {
			return nil, fmt.Errorf("decoding search embedding: %w", err)
		}
		s.Embedding = vec
	}
	return &s, nil
}

// parseVector decodes the textual pgvector representation "[1,2,3]". The
// driver hands NULLable vector columns back as text, so this is the read
// side of pgvector.NewVector.
func parseVector(s string) ([]float32, error) {
	s = strings.TrimSpace(s)
	if len(s) < 2 || s[0] != '[' || s[len(s)-1] != ']' {
		return nil, fmt.Errorf("malformed vector literal %q", s)
	}
	parts := strings.Split(s[1:len(s)-1], ",")
	vec := make([]float32, 0, len(parts))
	for _, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return nil, err
		}
		vec = append(vec, float32(f))
	}
	return vec, nil
}
