package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/urlwiz/domainwizard/internal/correlate"
)

func newSearchCommand() *cobra.Command {
	var top int
	cmd := &cobra.Command{
		Use:   "search <prompt>",
		Short: "Create (or fetch) a domain search for a prompt and print its best matches",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()

			ctx := correlate.NewContext(cmd.Context())
			svc, err := rt.searchService(ctx)
			if err != nil {
				return err
			}

			prompt := strings.Join(args, " ")
			sr, err := svc.CreateOrGet(ctx, prompt)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "search %s\n", sr.UUID)
			if sr.Summary != nil {
				fmt.Fprintf(out, "summary: %s\n", *sr.Summary)
			}

			matches, err := rt.listings.NearestActive(ctx, sr.Embedding, top)
			if err != nil {
				return err
			}
			for i, m := range matches {
				fmt.Fprintf(out, "%3d. %-40s %.4f  %s\n", i+1, m.URL, m.Score, m.Link)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&top, "top", 10, "number of matches to print")
	return cmd
}
