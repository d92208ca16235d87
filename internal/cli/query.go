package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/cnyre/internal/model"
	"github.com/roach88/cnyre/internal/queryir"
	"github.com/roach88/cnyre/internal/store"
)

// QueryOptions holds flags for the query command.
type QueryOptions struct {
	*RootOptions
	Classes   []string
	Zips      []string
	Districts []string
	Limit     int
	Offset    int
	Explain   bool
}

// NewQueryCommand creates the query command.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "query",
		Short: "Read properties through the query facade",
		Long: `Read property rows filtered by class, zip and school district.

Rows are ordered by (property_id, roll_year). Each filter accepts a
comma-separated list or may be repeated.

Example:
  cnyre query --db ./cnyre.db --zip 13031 --class 210
  cnyre query --district 312601,312602 --limit 50 --offset 100 --format json
  cnyre query --zip 13031 --explain`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(opts, cmd)
		},
	}

	cmd.Flags().StringSliceVar(&opts.Classes, "class", nil, "property class codes")
	cmd.Flags().StringSliceVar(&opts.Zips, "zip", nil, "5-digit zip codes")
	cmd.Flags().StringSliceVar(&opts.Districts, "district", nil, "school district codes")
	cmd.Flags().IntVar(&opts.Limit, "limit", queryir.DefaultLimit, fmt.Sprintf("page size (max %d)", queryir.MaxLimit))
	cmd.Flags().IntVar(&opts.Offset, "offset", 0, "rows to skip")
	cmd.Flags().BoolVar(&opts.Explain, "explain", false, "print the SQLite query plan instead of rows")

	return cmd
}

func runQuery(opts *QueryOptions, cmd *cobra.Command) error {
	if opts.Limit < 1 || opts.Limit > queryir.MaxLimit {
		return NewExitError(ExitCommandError, fmt.Sprintf("--limit must be in [1, %d]", queryir.MaxLimit))
	}
	if opts.Offset < 0 {
		return NewExitError(ExitCommandError, "--offset must not be negative")
	}

	st, err := openExisting(opts.RootOptions)
	if err != nil {
		return err
	}
	defer st.Close()

	filters := queryir.Filters{
		PropertyClasses: opts.Classes,
		Zips:            opts.Zips,
		SchoolDistricts: opts.Districts,
	}
	page := queryir.Page{Limit: opts.Limit, Offset: opts.Offset}
	out := newFormatter(opts.RootOptions, cmd)

	if opts.Explain {
		plan, err := st.ExplainQuery(cmd.Context(), filters.Select(page))
		if err != nil {
			return WrapExitError(ExitFailure, "explain failed", err)
		}
		return out.Success(planView(plan))
	}

	rows, err := st.QueryProperties(cmd.Context(), filters, page)
	if err != nil {
		return WrapExitError(ExitFailure, "query failed", err)
	}
	return out.Success(rowsView(rows))
}

// openExisting opens the configured store for a read or maintenance
// command.
func openExisting(opts *RootOptions) (*store.Store, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}
	st, err := store.Open(cfg.Database.Path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return st, nil
}

type rowsView []model.PropertyRow

// RenderText implements TextRenderer.
func (rows rowsView) RenderText(w io.Writer) error {
	for _, r := range rows {
		fullValue := "-"
		change := "-"
		if r.Trend != nil {
			fullValue = fmt.Sprintf("%d", r.Trend.FullValue)
			if r.Trend.FullValueChangePct != nil {
				change = r.Trend.FullValueChangePct.StringFixed(2) + "%"
			}
		}
		fmt.Fprintf(w, "%-24s %d  class=%-4s zip=%-5s district=%-6s fmv=%-9d full=%-9s yoy=%s  %s %s\n",
			r.Property.ID, r.Assessment.RollYear, r.Assessment.PropertyClass,
			r.Property.Zip, r.Property.SchoolDistrictCode, r.Assessment.FullMarketValue,
			fullValue, change, r.Property.AddressNumber, r.Property.AddressStreet)
	}
	fmt.Fprintf(w, "%d rows\n", len(rows))
	return nil
}

type planView []string

// RenderText implements TextRenderer.
func (p planView) RenderText(w io.Writer) error {
	for _, line := range p {
		fmt.Fprintln(w, line)
	}
	return nil
}
