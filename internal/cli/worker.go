package cli

import (
	"fmt"
	"log/slog"

	"github.com/nsqio/go-nsq"
	"github.com/spf13/cobra"

	"github.com/urlwiz/domainwizard/internal/config"
	"github.com/urlwiz/domainwizard/internal/worker"
)

func newWorkerCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run the matching worker, re-ranking searches whenever embeddings land",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()

			svc, err := rt.searchService(cmd.Context())
			if err != nil {
				return err
			}

			consumer, err := nsq.NewConsumer(config.TopicEmbeddingsFinalized, config.ChannelMatcher, nsq.NewConfig())
			if err != nil {
				return fmt.Errorf("creating consumer: %w", err)
			}
			consumer.AddHandler(worker.NewMatchConsumer(svc))
			if err := consumer.ConnectToNSQLookupd(rt.cfg.NSQLookupd); err != nil {
				return fmt.Errorf("connecting to nsqlookupd: %w", err)
			}
			slog.Info("matching worker started", "topic", config.TopicEmbeddingsFinalized)

			<-cmd.Context().Done()
			consumer.Stop()
			<-consumer.StopChan
			return nil
		},
	}
}
