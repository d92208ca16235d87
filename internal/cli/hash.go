package cli

import (
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"
)

// NewHashCommand creates the hash command.
func NewHashCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "hash",
		Short: "Print the content hash of the domain tables",
		Long: `Print a SHA-256 digest of every domain table (ratios, properties,
assessments, trends and summaries) in key order, plus row counts.

Two stores with the same hash hold identical domain data. Running the
pipeline twice over one snapshot must not change it.

Example:
  cnyre hash --db ./cnyre.db`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openExisting(rootOpts)
			if err != nil {
				return err
			}
			defer st.Close()

			h, err := st.ContentHash(cmd.Context())
			if err != nil {
				return WrapExitError(ExitFailure, "hash failed", err)
			}
			counts, err := st.TableCounts(cmd.Context())
			if err != nil {
				return WrapExitError(ExitFailure, "count failed", err)
			}
			return newFormatter(rootOpts, cmd).Success(hashView{Hash: h, Counts: counts})
		},
	}
}

type hashView struct {
	Hash   string           `json:"hash"`
	Counts map[string]int64 `json:"counts"`
}

// RenderText implements TextRenderer.
func (v hashView) RenderText(w io.Writer) error {
	fmt.Fprintln(w, v.Hash)
	tables := make([]string, 0, len(v.Counts))
	for t := range v.Counts {
		tables = append(tables, t)
	}
	sort.Strings(tables)
	for _, t := range tables {
		fmt.Fprintf(w, "  %-32s %d\n", t, v.Counts[t])
	}
	return nil
}
