// Package cli wires the pipeline's discrete batch runs into commands. Each
// stage is its own command so schedulers can trigger and observe them
// independently.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/urlwiz/domainwizard/features/batch"
	"github.com/urlwiz/domainwizard/features/listing"
	"github.com/urlwiz/domainwizard/features/search"
	"github.com/urlwiz/domainwizard/features/snapshot"
	"github.com/urlwiz/domainwizard/internal/adapter/gemini"
	"github.com/urlwiz/domainwizard/internal/adapter/openai"
	"github.com/urlwiz/domainwizard/internal/app"
	"github.com/urlwiz/domainwizard/internal/config"
	"github.com/urlwiz/domainwizard/internal/notify"
)

func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "domainwizard",
		Short:         "Domain listing reconciliation and embedding pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newReconcileCommand(),
		newProcessCommand(),
		newSearchCommand(),
		newWorkerCommand(),
	)
	return root
}

// runtime bundles the config, connections and services one command run
// needs. Built per invocation, torn down with Close.
type runtime struct {
	cfg  *config.Config
	deps *app.Dependencies

	listings  *listing.PostgresRepo
	searches  *search.PostgresRepo
	batches   *batch.PostgresRepo
	snapshots *snapshot.PostgresRepo

	provider *openai.Client
	batchSvc *batch.Service
}

func setup(ctx context.Context) (*runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	deps, err := app.Bootstrap(cfg)
	if err != nil {
		return nil, err
	}

	provider := openai.NewClient(cfg.OpenAIAPIKey, cfg.EmbeddingModel)
	if cfg.OpenAIBaseURL != "" {
		provider.SetBaseURL(cfg.OpenAIBaseURL)
	}
	provider.SetTimeout(time.Duration(cfg.ProviderTimeoutSecs) * time.Second)

	rt := &runtime{
		cfg:       cfg,
		deps:      deps,
		listings:  listing.NewPostgresRepo(deps.DB),
		searches:  search.NewPostgresRepo(deps.DB),
		batches:   batch.NewPostgresRepo(deps.DB),
		snapshots: snapshot.NewPostgresRepo(deps.DB),
		provider:  provider,
	}
	rt.batchSvc = batch.NewService(rt.batches, provider, deps.NSQProducer, batch.Options{
		GroupSize:       cfg.EmbedBatchSize,
		WriteBatchSize:  cfg.EmbedWriteBatchSize,
		DownloadRetries: cfg.DownloadMaxRetries,
		ResubmitWindow:  time.Duration(cfg.ResubmitWindowHours) * time.Hour,
		Concurrency:     cfg.DownloadConcurrency,
		Model:           cfg.EmbeddingModel,
		FinalizedTopic:  config.TopicEmbeddingsFinalized,
	})
	return rt, nil
}

// searchService assembles the matching engine with its optional
// collaborators: summaries need a Gemini key, notifications an SMTP setup.
func (rt *runtime) searchService(ctx context.Context) (*search.Service, error) {
	var summarizer search.Summarizer
	if rt.cfg.GeminiAPIKey != "" {
		s, err := gemini.NewSummarizer(ctx, rt.cfg.GeminiAPIKey)
		if err != nil {
			return nil, fmt.Errorf("creating summarizer: %w", err)
		}
		summarizer = s
	} else {
		slog.Warn("GEMINI_API_KEY not set, searches get no summaries")
	}

	var notifier search.Notifier
	if rt.cfg.SMTPHost != "" && rt.cfg.EmailFrom != "" {
		notifier = notify.NewEmailNotifier(rt.cfg.SMTPHost, rt.cfg.SMTPPort, rt.cfg.EmailFrom, rt.cfg.EmailPass)
	} else {
		slog.Warn("SMTP not configured, update notifications disabled")
	}

	return search.NewService(rt.searches, rt.listings, rt.provider, summarizer, notifier, rt.cfg.MatchLimit), nil
}

func (rt *runtime) Close() {
	rt.deps.Close()
}
