package batch

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"github.com/urlwiz/domainwizard/features/listing"
)

// EmbeddingRow is one computed embedding to write back to a listing.
type EmbeddingRow struct {
	ListingID int64
	Embedding []float32
}

type Repository interface {
	Create(ctx context.Context, batchID string, status Status) (*Job, error)
	ListByStatus(ctx context.Context, statuses ...Status) ([]Job, error)
	SetCompleted(ctx context.Context, id int64, outputFileID string) error
	SetStatus(ctx context.Context, id int64, status Status) error
	StampListings(ctx context.Context, jobID int64, listingIDs []int64) error
	ListingsForJob(ctx context.Context, jobID int64) ([]listing.IDURL, error)
	WriteEmbeddings(ctx context.Context, jobID int64, rows []EmbeddingRow) (int64, error)
}

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) Create(ctx context.Context, batchID string, status Status) (*Job, error) {
	job := &Job{BatchID: batchID, Status: status}
	query := `INSERT INTO embedding_batch_jobs (batch_id, status) VALUES ($1, $2) RETURNING id, created_at, updated_at`
	err := r.db.QueryRowContext(ctx, query, batchID, string(status)).Scan(&job.ID, &job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("creating batch job %s: %w", batchID, err)
	}
	return job, nil
}

func (r *PostgresRepo) ListByStatus(ctx context.Context, statuses ...Status) ([]Job, error) {
	args := make([]string, len(statuses))
	for i, s := range statuses {
		args[i] = string(s)
	}
	query := `
		SELECT id, batch_id, status, output_file_id, created_at, updated_at
		FROM embedding_batch_jobs
		WHERE status = ANY($1)
		ORDER BY created_at ASC`
	rows, err := r.db.QueryContext(ctx, query, pq.Array(args))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		var j Job
		if err := rows.Scan(&j.ID, &j.BatchID, &j.Status, &j.OutputFileID, &j.CreatedAt, &j.UpdatedAt); err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

func (r *PostgresRepo) SetCompleted(ctx context.Context, id int64, outputFileID string) error {
	query := `UPDATE embedding_batch_jobs SET status = $1, output_file_id = $2, updated_at = NOW() WHERE id = $3`
	_, err := r.db.ExecContext(ctx, query, string(StatusCompleted), outputFileID, id)
	return err
}

func (r *PostgresRepo) SetStatus(ctx context.Context, id int64, status Status) error {
	query := `UPDATE embedding_batch_jobs SET status = $1, updated_at = NOW() WHERE id = $2`
	_, err := r.db.ExecContext(ctx, query, string(status), id)
	return err
}

// StampListings points the given listings at the job computing their
// embeddings. A later stamp wins: the previous job's write-back will then
// skip those rows.
func (r *PostgresRepo) StampListings(ctx context.Context, jobID int64, listingIDs []int64) error {
	query := `UPDATE listings SET batch_job_id = $1, updated_at = NOW() WHERE id = ANY($2)`
	_, err := r.db.ExecContext(ctx, query, jobID, pq.Array(listingIDs))
	if err != nil {
		return fmt.Errorf("stamping listings for job %d: %w", jobID, err)
	}
	return nil
}

func (r *PostgresRepo) ListingsForJob(ctx context.Context, jobID int64) ([]listing.IDURL, error) {
	query := `SELECT id, url FROM listings WHERE batch_job_id = $1`
	rows, err := r.db.QueryContext(ctx, query, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pairs []listing.IDURL
	for rows.Next() {
		var p listing.IDURL
		if err := rows.Scan(&p.ID, &p.URL); err != nil {
			return nil, err
		}
		pairs = append(pairs, p)
	}
	return pairs, rows.Err()
}

// WriteEmbeddings stores computed vectors on listings still owned by the
// job. The returned count may be lower than len(rows) when another job has
// since claimed a listing; callers treat that as a conflict skip, not an
// error.
func (r *PostgresRepo) WriteEmbeddings(ctx context.Context, jobID int64, rows []EmbeddingRow) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		UPDATE listings SET embedding = $2, updated_at = NOW()
		WHERE id = $1 AND batch_job_id = $3`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	var written int64
	for _, row := range rows {
		res, err := stmt.ExecContext(ctx, row.ListingID, pgvector.NewVector(row.Embedding), jobID)
		if err != nil {
			return written, fmt.Errorf("writing embedding for listing %d: %w", row.ListingID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return written, err
		}
		written += n
	}
	if err := tx.Commit(); err != nil {
		return written, err
	}
	return written, nil
}
