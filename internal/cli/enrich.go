package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/cnyre/internal/enrich"
)

// NewEnrichCommand creates the enrich command.
func NewEnrichCommand(rootOpts *RootOptions) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "enrich [property-id...]",
		Short: "Recompute trend rows without loading",
		Long: `Recompute full-value trends from the stored assessments and ratios.

Pass property IDs to recompute just those, or --all for every stored
property. Each property's trend rows are replaced wholesale, so the
command can be re-run at any time.

Example:
  cnyre enrich --db ./cnyre.db --all
  cnyre enrich '312600|100.-1-1'`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if all == (len(args) > 0) {
				return NewExitError(ExitCommandError, "pass property IDs or --all, not both")
			}
			st, err := openExisting(rootOpts)
			if err != nil {
				return err
			}
			defer st.Close()

			ids := args
			if all {
				if ids, err = st.AllPropertyIDs(cmd.Context()); err != nil {
					return WrapExitError(ExitFailure, "list properties failed", err)
				}
			}
			stats, err := enrich.New(st, nil).Run(cmd.Context(), ids)
			if err != nil {
				return WrapExitError(ExitFailure, "enrichment failed", err)
			}
			if err := newFormatter(rootOpts, cmd).Success(statsView(stats)); err != nil {
				return err
			}
			if len(stats.Inconsistent) > 0 {
				return NewExitError(ExitRejections,
					fmt.Sprintf("%d properties have assessments without ratios", len(stats.Inconsistent)))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "recompute every stored property")
	return cmd
}

type statsView enrich.Stats

// RenderText implements TextRenderer.
func (s statsView) RenderText(w io.Writer) error {
	fmt.Fprintf(w, "enriched %d properties (%d points, %d summaries)\n", s.Properties, s.Points, s.Summaries)
	for _, id := range s.Inconsistent {
		fmt.Fprintf(w, "  inconsistent: %s\n", id)
	}
	return nil
}
