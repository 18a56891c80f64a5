package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/urlwiz/domainwizard/features/listing"
	"github.com/urlwiz/domainwizard/internal/correlate"
	"github.com/urlwiz/domainwizard/internal/source"
)

func newReconcileCommand() *cobra.Command {
	var only string
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Fetch marketplace datasets, converge the listing store and submit embedding jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()

			ctx := correlate.NewContext(cmd.Context())
			reconciler := listing.NewReconciler(rt.listings, rt.cfg.ReconcileChunkSize)
			timeout := time.Duration(rt.cfg.SourceTimeoutSecs) * time.Second

			var errs []error
			for _, adapter := range source.Defaults(timeout) {
				if only != "" && adapter.Name() != only {
					continue
				}
				pairs, err := reconciler.Run(ctx, adapter)
				if err != nil {
					// One source's failure must not starve the others.
					slog.ErrorContext(ctx, "reconciliation failed", "source", adapter.Name(), "error", err)
					errs = append(errs, fmt.Errorf("source %s: %w", adapter.Name(), err))
					continue
				}
				if len(pairs) > 0 {
					if err := rt.batchSvc.CreateJobs(ctx, pairs); err != nil {
						slog.ErrorContext(ctx, "batch job creation failed", "source", adapter.Name(), "error", err)
						errs = append(errs, fmt.Errorf("source %s: %w", adapter.Name(), err))
					}
				}
			}

			if err := recordSnapshot(cmd, rt); err != nil {
				errs = append(errs, err)
			}
			return errors.Join(errs...)
		},
	}
	cmd.Flags().StringVar(&only, "source", "", "reconcile a single source by name")
	return cmd
}

func recordSnapshot(cmd *cobra.Command, rt *runtime) error {
	ctx := cmd.Context()
	listings, err := rt.listings.CountActive(ctx)
	if err != nil {
		return fmt.Errorf("counting active listings: %w", err)
	}
	searches, err := rt.searches.Count(ctx)
	if err != nil {
		return fmt.Errorf("counting searches: %w", err)
	}
	snap, err := rt.snapshots.Record(ctx, listings, searches)
	if err != nil {
		return fmt.Errorf("recording snapshot: %w", err)
	}
	slog.InfoContext(ctx, "snapshot recorded", "active_listings", snap.ListingCount, "searches", snap.DomainSearchCount)
	return nil
}
