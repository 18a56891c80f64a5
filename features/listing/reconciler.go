package listing

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
)

// SourceAdapter is the capability a marketplace connector must provide. The
// reconciler never sees marketplace specifics, only normalized records.
type SourceAdapter interface {
	Name() string
	Listings(ctx context.Context) iter.Seq2[Record, error]
	Accept(url string) bool
}

// Reconciler converges the store's rows owned by one source with a freshly
// fetched dataset, chunk by chunk. Chunking bounds statement size; the
// missing-set intersection across chunks guarantees a row is only deleted
// when it is absent from the entire dataset, not just one chunk.
type Reconciler struct {
	repo      Repository
	chunkSize int
}

func NewReconciler(repo Repository, chunkSize int) *Reconciler {
	if chunkSize < 1 {
		chunkSize = 100000
	}
	return &Reconciler{repo: repo, chunkSize: chunkSize}
}

// Run reconciles one source and returns the listings that need an embedding:
// freshly inserted rows, or, when the dataset brought nothing new, rows whose
// earlier batch job never delivered.
func (r *Reconciler) Run(ctx context.Context, src SourceAdapter) ([]IDURL, error) {
	name := src.Name()
	slog.InfoContext(ctx, "reconciliation started", "source", name)

	urlToID, err := r.repo.URLIndex(ctx, name)
	if err != nil {
		return nil, err
	}
	embedded, err := r.repo.EmbeddedURLs(ctx, name)
	if err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "loaded source index", "source", name, "known", len(urlToID), "embedded", len(embedded))

	var (
		inserted []IDURL
		missing  map[string]struct{}
		first    = true
		chunks   int
	)

	flush := func(chunk map[string]Record) error {
		updates := make([]VolatileUpdate, 0, len(chunk))
		creates := make([]Record, 0, len(chunk))
		for url, rec := range chunk {
			if id, ok := urlToID[url]; ok {
				updates = append(updates, rec.volatile(id))
			} else {
				creates = append(creates, rec)
			}
		}
		if err := r.repo.UpdateVolatile(ctx, updates); err != nil {
			return fmt.Errorf("chunk %d update: %w", chunks, err)
		}
		pairs, err := r.repo.Insert(ctx, creates)
		if err != nil {
			return fmt.Errorf("chunk %d insert: %w", chunks, err)
		}
		inserted = append(inserted, pairs...)

		// Seed or narrow the set of embedded URLs absent from the dataset.
		// Only URLs missing from every chunk survive to deletion.
		if first {
			missing = make(map[string]struct{}, len(embedded))
			for url := range embedded {
				if _, ok := chunk[url]; !ok {
					missing[url] = struct{}{}
				}
			}
			first = false
		} else {
			for url := range missing {
				if _, ok := chunk[url]; ok {
					delete(missing, url)
				}
			}
		}
		chunks++
		slog.InfoContext(ctx, "chunk reconciled", "source", name, "chunk", chunks,
			"updated", len(updates), "inserted", len(pairs), "missing_candidates", len(missing))
		return nil
	}

	chunk := make(map[string]Record, r.chunkSize)
	for rec, err := range src.Listings(ctx) {
		if err != nil {
			return nil, fmt.Errorf("fetching %s dataset: %w", name, err)
		}
		if !src.Accept(rec.URL) || LowQuality(rec.URL) {
			continue
		}
		chunk[rec.URL] = rec
		if len(chunk) >= r.chunkSize {
			if err := flush(chunk); err != nil {
				return nil, err
			}
			chunk = make(map[string]Record, r.chunkSize)
		}
	}
	// The final (possibly empty) chunk still participates in the
	// intersection: an empty dataset means every embedded URL is gone.
	if err := flush(chunk); err != nil {
		return nil, err
	}

	if len(missing) > 0 {
		urls := make([]string, 0, len(missing))
		for url := range missing {
			urls = append(urls, url)
		}
		deleted, err := r.repo.DeleteByURLs(ctx, urls)
		if err != nil {
			return nil, err
		}
		slog.InfoContext(ctx, "deleted listings absent from dataset", "source", name, "count", deleted)
	}

	if len(inserted) == 0 {
		pending, err := r.repo.PendingEmbedding(ctx, name)
		if err != nil {
			return nil, err
		}
		if len(pending) > 0 {
			slog.InfoContext(ctx, "re-surfacing listings without embeddings", "source", name, "count", len(pending))
		}
		inserted = pending
	}

	slog.InfoContext(ctx, "reconciliation finished", "source", name, "chunks", chunks, "needs_embedding", len(inserted))
	return inserted, nil
}
