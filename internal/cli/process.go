package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/urlwiz/domainwizard/internal/correlate"
)

func newProcessCommand() *cobra.Command {
	var inlineMatch bool
	cmd := &cobra.Command{
		Use:   "process",
		Short: "Poll open embedding batch jobs and download completed results",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()

			ctx := correlate.NewContext(cmd.Context())

			var errs []error
			if err := rt.batchSvc.PollOpen(ctx); err != nil {
				errs = append(errs, err)
			}
			if err := rt.batchSvc.DownloadCompleted(ctx); err != nil {
				errs = append(errs, err)
			}

			// Without a worker deployment the finalized events go nowhere, so
			// offer the matching pass inline.
			if inlineMatch {
				svc, err := rt.searchService(ctx)
				if err != nil {
					errs = append(errs, err)
				} else if err := svc.MatchAll(ctx); err != nil {
					errs = append(errs, err)
				}
			}
			return errors.Join(errs...)
		},
	}
	cmd.Flags().BoolVar(&inlineMatch, "match", false, "re-run matching for all searches after downloads")
	return cmd
}
