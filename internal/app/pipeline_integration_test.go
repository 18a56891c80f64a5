package app_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/urlwiz/domainwizard/features/batch"
	"github.com/urlwiz/domainwizard/features/listing"
	"github.com/urlwiz/domainwizard/features/search"
	"github.com/urlwiz/domainwizard/internal/testutils"
)

func pipelineVector(axis int) []float32 {
	vec := make([]float32, 1536)
	vec[axis] = 1
	return vec
}

// memorySource yields a fixed dataset, standing in for a marketplace dump.
type memorySource struct {
	records []listing.Record
}

func (s *memorySource) Name() string { return "godaddy" }

func (s *memorySource) Accept(url string) bool { return !listing.LowQuality(url) }

func (s *memorySource) Listings(ctx context.Context) iter.Seq2[listing.Record, error] {
	return func(yield func(listing.Record, error) bool) {
		for _, rec := range s.records {
			if !yield(rec, nil) {
				return
			}
		}
	}
}

// scriptedProvider completes every submitted batch immediately and serves
// results with one embedding per requested URL.
type scriptedProvider struct {
	payloads map[string]string
	vectors  map[string][]float32
	n        int
}

func (p *scriptedProvider) Submit(ctx context.Context, payload io.Reader) (string, error) {
	body, err := io.ReadAll(payload)
	if err != nil {
		return "", err
	}
	p.n++
	id := fmt.Sprintf("batch_e2e_%d", p.n)
	p.payloads[id] = string(body)
	return id, nil
}

func (p *scriptedProvider) Poll(ctx context.Context, batchID string) (batch.ProviderStatus, error) {
	return batch.ProviderStatus{State: "completed", OutputFileID: "result_" + batchID}, nil
}

func (p *scriptedProvider) Download(ctx context.Context, fileID string) (io.ReadCloser, error) {
	payload, ok := p.payloads[strings.TrimPrefix(fileID, "result_")]
	if !ok {
		return nil, fmt.Errorf("unknown result file %s", fileID)
	}

	var out strings.Builder
	for _, line := range strings.Split(strings.TrimSpace(payload), "\n") {
		var req struct {
			CustomID string `json:"custom_id"`
		}
		if err := json.Unmarshal([]byte(line), &req); err != nil {
			return nil, err
		}
		url := req.CustomID[strings.LastIndex(req.CustomID, ":")+1:]
		result := map[string]any{
			"custom_id": req.CustomID,
			"response": map[string]any{
				"body": map[string]any{
					"data": []map[string]any{{"embedding": p.vectors[url]}},
				},
			},
		}
		b, err := json.Marshal(result)
		if err != nil {
			return nil, err
		}
		out.Write(b)
		out.WriteByte('\n')
	}
	return io.NopCloser(strings.NewReader(out.String())), nil
}

func (p *scriptedProvider) DeleteFile(ctx context.Context, fileID string) error { return nil }

type staticEmbedder struct {
	vector []float32
}

func (e *staticEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return e.vector, nil
}

func TestPipeline_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := testutils.NewIntegrationSuite(t)
	s.Setup()
	defer s.Teardown()

	ctx := context.Background()
	listingRepo := listing.NewPostgresRepo(s.DB)
	batchRepo := batch.NewPostgresRepo(s.DB)
	searchRepo := search.NewPostgresRepo(s.DB)

	end := time.Now().Add(48 * time.Hour).UTC()
	src := &memorySource{records: []listing.Record{
		{URL: "a.com", Link: "https://auctions.godaddy.com/a", AuctionEndTime: &end},
		{URL: "b.com", Link: "https://auctions.godaddy.com/b", AuctionEndTime: &end},
	}}

	// First run: both listings are new and get embeddings through the
	// full batch lifecycle.
	pairs, err := listing.NewReconciler(listingRepo, 100).Run(ctx, src)
	require.NoError(t, err)
	require.Len(t, pairs, 2)

	provider := &scriptedProvider{
		payloads: map[string]string{},
		vectors: map[string][]float32{
			"a.com": pipelineVector(0),
			"b.com": pipelineVector(1),
		},
	}
	batchSvc := batch.NewService(batchRepo, provider, nil, batch.Options{GroupSize: 100})
	require.NoError(t, batchSvc.CreateJobs(ctx, pairs))
	require.NoError(t, batchSvc.PollOpen(ctx))
	require.NoError(t, batchSvc.DownloadCompleted(ctx))

	finalized, err := batchRepo.ListByStatus(ctx, batch.StatusFinalized)
	require.NoError(t, err)
	require.Len(t, finalized, 1)

	// A search whose embedding matches a.com associates with both, a.com
	// closest.
	searchSvc := search.NewService(searchRepo, listingRepo, &staticEmbedder{vector: pipelineVector(0)}, nil, nil, 2)
	sr, err := searchSvc.CreateOrGet(ctx, "short brandable coffee domain")
	require.NoError(t, err)

	index, err := listingRepo.URLIndex(ctx, "godaddy")
	require.NoError(t, err)

	scores, err := searchRepo.Associations(ctx, sr.ID)
	require.NoError(t, err)
	require.Len(t, scores, 2)
	assert.InDelta(t, 0.0, scores[index["a.com"]], 1e-6)

	// Second run: a.com left the marketplace. Its row and association go
	// with it, and re-matching converges on what remains.
	src.records = src.records[1:]
	pairs, err = listing.NewReconciler(listingRepo, 100).Run(ctx, src)
	require.NoError(t, err)
	assert.Empty(t, pairs)

	matches, err := listingRepo.NearestActive(ctx, pipelineVector(0), 10)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "b.com", matches[0].URL)

	scores, err = searchRepo.Associations(ctx, sr.ID)
	require.NoError(t, err)
	require.Len(t, scores, 1)
	assert.Contains(t, scores, index["b.com"])

	_, err = searchSvc.RefreshMatches(ctx, sr)
	require.NoError(t, err)
	scores, err = searchRepo.Associations(ctx, sr.ID)
	require.NoError(t, err)
	require.Len(t, scores, 1)
}
