package search

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseVector(t *testing.T) {
	vec, err := parseVector("[0.5, -1.25, 3]")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, -1.25, 3}, vec)

	_, err = parseVector("0.5,1.0")
	assert.Error(t, err)

	_, err = parseVector("[0.5,abc]")
	assert.Error(t, err)
}

func TestPostgresRepo_GetByHash(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewPostgresRepo(db)

	t.Run("found", func(t *testing.T) {
		rows := sqlmock.NewRows([]string{
			"id", "uuid", "prompt", "prompt_hash", "is_unlocked", "is_example",
			"name", "email", "summary", "embedding", "created_at",
		}).AddRow(int64(1), "u-1", "coffee", "hash1", true, false, nil, nil, nil, "[0.1,0.2]", time.Now())

		mock.ExpectQuery(regexp.QuoteMeta("FROM domain_searches WHERE prompt_hash = $1")).
			WithArgs("hash1").
			WillReturnRows(rows)

		s, err := repo.GetByHash(context.Background(), "hash1")
		require.NoError(t, err)
		require.NotNil(t, s)
		assert.Equal(t, "u-1", s.UUID)
		assert.Equal(t, []float32{0.1, 0.2}, s.Embedding)
	})

	t.Run("miss is not an error", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta("FROM domain_searches WHERE prompt_hash = $1")).
			WithArgs("unknown").
			WillReturnRows(sqlmock.NewRows([]string{"id"}))

		s, err := repo.GetByHash(context.Background(), "unknown")
		require.NoError(t, err)
		assert.Nil(t, s)
	})
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_Associations(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewPostgresRepo(db)

	rows := sqlmock.NewRows([]string{"listing_id", "score"}).
		AddRow(int64(3), 0.12).
		AddRow(int64(4), 0.34)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT listing_id, score FROM listings_to_domain_searches WHERE domain_search_id = $1")).
		WithArgs(int64(9)).
		WillReturnRows(rows)

	scores, err := repo.Associations(context.Background(), 9)
	require.NoError(t, err)
	assert.Equal(t, map[int64]float64{3: 0.12, 4: 0.34}, scores)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_AddAssociations(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewPostgresRepo(db)

	mock.ExpectBegin()
	prep := mock.ExpectPrepare(regexp.QuoteMeta("INSERT INTO listings_to_domain_searches"))
	prep.ExpectExec().
		WithArgs(int64(3), int64(9), 0.12).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err = repo.AddAssociations(context.Background(), 9, map[int64]float64{3: 0.12})
	require.NoError(t, err)

	// An empty set issues no statements at all.
	require.NoError(t, repo.AddAssociations(context.Background(), 9, nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_RemoveAssociations(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewPostgresRepo(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM listings_to_domain_searches WHERE domain_search_id = $1 AND listing_id = ANY($2)")).
		WithArgs(int64(9), pq.Array([]int64{3, 4})).
		WillReturnResult(sqlmock.NewResult(0, 2))

	require.NoError(t, repo.RemoveAssociations(context.Background(), 9, []int64{3, 4}))
	require.NoError(t, repo.RemoveAssociations(context.Background(), 9, nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}
