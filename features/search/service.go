package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/google/uuid"

	"github.com/urlwiz/domainwizard/features/listing"
)

// ListingFinder is the nearest-neighbor primitive the matching engine runs
// on. Only listings with a live auction are candidates.
type ListingFinder interface {
	NearestActive(ctx context.Context, embedding []float32, limit int) ([]listing.Match, error)
}

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type Summarizer interface {
	Summarize(ctx context.Context, prompt string) (string, error)
}

type Notifier interface {
	SendUpdate(ctx context.Context, s *Search, fresh []listing.Match) error
}

// Service owns search creation and the incremental re-matching that keeps
// each search's association set equal to its current top-K listings.
type Service struct {
	repo       Repository
	listings   ListingFinder
	embedder   Embedder
	summarizer Summarizer // optional
	notifier   Notifier   // optional
	limit      int
}

func NewService(repo Repository, listings ListingFinder, embedder Embedder, summarizer Summarizer, notifier Notifier, limit int) *Service {
	if limit < 1 {
		limit = 100
	}
	return &Service{
		repo:       repo,
		listings:   listings,
		embedder:   embedder,
		summarizer: summarizer,
		notifier:   notifier,
		limit:      limit,
	}
}

// CreateOrGet dedupes by prompt hash. A novel prompt gets its embedding
// computed eagerly, a summary when a summarizer is configured, and an
// initial match run.
func (s *Service) CreateOrGet(ctx context.Context, prompt string) (*Search, error) {
	normalized, hash := HashPrompt(prompt)
	if normalized == "" {
		return nil, errors.New("empty prompt")
	}

	existing, err := s.repo.GetByHash(ctx, hash)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	embedding, err := s.embedder.Embed(ctx, normalized)
	if err != nil {
		return nil, fmt.Errorf("embedding prompt: %w", err)
	}

	sr := &Search{
		UUID:       uuid.New().String(),
		Prompt:     normalized,
		PromptHash: hash,
		Embedding:  embedding,
	}
	if s.summarizer != nil {
		summary, err := s.summarizer.Summarize(ctx, normalized)
		if err != nil {
			slog.WarnContext(ctx, "prompt summary failed", "error", err)
		} else {
			sr.Summary = &summary
		}
	}
	if err := s.repo.Create(ctx, sr); err != nil {
		return nil, err
	}
	if _, err := s.RefreshMatches(ctx, sr); err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "search created", "uuid", sr.UUID)
	return sr, nil
}

// RefreshMatches reconciles the search's association set against the current
// top-K nearest active listings: new entrants are added with their score,
// dropped ones removed, survivors keep their stored score. It returns the
// newly associated listings ordered by score descending, the payload for a
// "what's new" notification.
func (s *Service) RefreshMatches(ctx context.Context, sr *Search) ([]listing.Match, error) {
	if sr.Embedding == nil {
		embedding, err := s.embedder.Embed(ctx, sr.Prompt)
		if err != nil {
			return nil, fmt.Errorf("embedding prompt: %w", err)
		}
		if err := s.repo.UpdateEmbedding(ctx, sr.ID, embedding); err != nil {
			return nil, err
		}
		sr.Embedding = embedding
	}

	matches, err := s.listings.NearestActive(ctx, sr.Embedding, s.limit)
	if err != nil {
		return nil, err
	}
	existing, err := s.repo.Associations(ctx, sr.ID)
	if err != nil {
		return nil, err
	}

	var fresh []listing.Match
	added := make(map[int64]float64)
	current := make(map[int64]struct{}, len(matches))
	for _, m := range matches {
		current[m.ListingID] = struct{}{}
		if _, ok := existing[m.ListingID]; !ok {
			added[m.ListingID] = m.Score
			fresh = append(fresh, m)
		}
	}
	var stale []int64
	for id := range existing {
		if _, ok := current[id]; !ok {
			stale = append(stale, id)
		}
	}

	if err := s.repo.AddAssociations(ctx, sr.ID, added); err != nil {
		return nil, err
	}
	if err := s.repo.RemoveAssociations(ctx, sr.ID, stale); err != nil {
		return nil, err
	}

	sort.Slice(fresh, func(i, j int) bool { return fresh[i].Score > fresh[j].Score })
	if len(fresh) > 0 || len(stale) > 0 {
		slog.InfoContext(ctx, "associations refreshed", "search", sr.UUID, "added", len(fresh), "removed", len(stale))
	}
	return fresh, nil
}

// MatchAll refreshes every search and notifies the subscribed ones about new
// associations. One search's failure never blocks the rest.
func (s *Service) MatchAll(ctx context.Context) error {
	searches, err := s.repo.List(ctx)
	if err != nil {
		return err
	}

	var errs []error
	for i := range searches {
		sr := &searches[i]
		fresh, err := s.RefreshMatches(ctx, sr)
		if err != nil {
			slog.ErrorContext(ctx, "match refresh failed", "search", sr.UUID, "error", err)
			errs = append(errs, fmt.Errorf("search %s: %w", sr.UUID, err))
			continue
		}
		if len(fresh) == 0 || s.notifier == nil || !sr.Notifiable() {
			continue
		}
		if err := s.notifier.SendUpdate(ctx, sr, fresh); err != nil {
			slog.ErrorContext(ctx, "update notification failed", "search", sr.UUID, "error", err)
			errs = append(errs, fmt.Errorf("notify %s: %w", sr.UUID, err))
		}
	}
	return errors.Join(errs...)
}
