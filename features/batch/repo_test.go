package batch_test

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/urlwiz/domainwizard/features/batch"
)

func TestPostgresRepo_Create(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := batch.NewPostgresRepo(db)

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO embedding_batch_jobs (batch_id, status) VALUES ($1, $2) RETURNING id, created_at, updated_at")).
		WithArgs("batch_abc", "processing").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).
			AddRow(int64(1), time.Now(), time.Now()))

	job, err := repo.Create(context.Background(), "batch_abc", batch.StatusProcessing)
	require.NoError(t, err)
	assert.Equal(t, int64(1), job.ID)
	assert.Equal(t, batch.StatusProcessing, job.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_ListByStatus(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := batch.NewPostgresRepo(db)

	fileID := "file_1"
	rows := sqlmock.NewRows([]string{"id", "batch_id", "status", "output_file_id", "created_at", "updated_at"}).
		AddRow(int64(1), "batch_a", "completed", fileID, time.Now(), time.Now()).
		AddRow(int64(2), "batch_b", "processing", nil, time.Now(), time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("WHERE status = ANY($1)")).
		WithArgs(pq.Array([]string{"completed", "processing"})).
		WillReturnRows(rows)

	jobs, err := repo.ListByStatus(context.Background(), batch.StatusCompleted, batch.StatusProcessing)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	require.NotNil(t, jobs[0].OutputFileID)
	assert.Equal(t, fileID, *jobs[0].OutputFileID)
	assert.Nil(t, jobs[1].OutputFileID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_StampListings(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := batch.NewPostgresRepo(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE listings SET batch_job_id = $1, updated_at = NOW() WHERE id = ANY($2)")).
		WithArgs(int64(7), pq.Array([]int64{1, 2, 3})).
		WillReturnResult(sqlmock.NewResult(0, 3))

	require.NoError(t, repo.StampListings(context.Background(), 7, []int64{1, 2, 3}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_WriteEmbeddings(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := batch.NewPostgresRepo(db)

	mock.ExpectBegin()
	prep := mock.ExpectPrepare(regexp.QuoteMeta("UPDATE listings SET embedding = $2, updated_at = NOW() WHERE id = $1 AND batch_job_id = $3"))
	prep.ExpectExec().
		WithArgs(int64(10), pgvector.NewVector([]float32{0.1, 0.2}), int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	// Listing 11 was claimed by a newer job; the guarded update touches
	// nothing and the write count stays short.
	prep.ExpectExec().
		WithArgs(int64(11), pgvector.NewVector([]float32{0.3, 0.4}), int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	written, err := repo.WriteEmbeddings(context.Background(), 7, []batch.EmbeddingRow{
		{ListingID: 10, Embedding: []float32{0.1, 0.2}},
		{ListingID: 11, Embedding: []float32{0.3, 0.4}},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), written)
	assert.NoError(t, mock.ExpectationsWereMet())
}
