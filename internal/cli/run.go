package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/cnyre/internal/config"
	"github.com/roach88/cnyre/internal/feed"
	"github.com/roach88/cnyre/internal/metrics"
	"github.com/roach88/cnyre/internal/model"
	"github.com/roach88/cnyre/internal/pipeline"
	"github.com/roach88/cnyre/internal/store"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	RollsDir      string
	RatiosDir     string
	FullRecompute bool

	// RunIDs and Now override run identity and time (for testing).
	// Nil means UUIDv7 IDs and wall-clock time.
	RunIDs pipeline.RunIDGenerator
	Now    func() time.Time
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the pipeline once over saved feed pages",
		Long: `Run one pipeline pass: fetch both feeds, normalize, gate, load and
enrich, then print the run report.

Each feed is read from a directory of JSON page files (feeds.rolls.dir and
feeds.ratios.dir in the config, or --rolls / --ratios).

Exit status:
  0  run completed cleanly
  1  run failed (no source data, store unavailable)
  2  command error
  3  run completed with rejected records, drifted or skipped pages

Example:
  cnyre run --config cnyre.yaml
  cnyre run --db ./cnyre.db --rolls ./data/rolls --ratios ./data/ratios --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.RollsDir, "rolls", "", "directory of roll feed pages (overrides feeds.rolls.dir)")
	cmd.Flags().StringVar(&opts.RatiosDir, "ratios", "", "directory of ratio feed pages (overrides feeds.ratios.dir)")
	cmd.Flags().BoolVar(&opts.FullRecompute, "full-recompute", false, "enrich every stored property, not just the ones loaded")

	return cmd
}

func runPipeline(opts *RunOptions, cmd *cobra.Command) error {
	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return err
	}
	if opts.RollsDir != "" {
		cfg.Feeds.Rolls.Dir = opts.RollsDir
	}
	if opts.RatiosDir != "" {
		cfg.Feeds.Ratios.Dir = opts.RatiosDir
	}
	if opts.FullRecompute {
		cfg.Enrich.FullRecompute = true
	}

	sources, err := fileSources(cfg)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open feeds", err)
	}

	slog.Info("opening database", "path", cfg.Database.Path)
	st, err := store.Open(cfg.Database.Path)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to open database", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()

	ctx, stop := signalContext(cmd)
	defer stop()

	m := metrics.New()
	p := pipeline.New(st, sources, pipeline.Options{
		Counties:      cfg.Scope.Counties,
		EarliestYear:  cfg.Scope.EarliestYear,
		ExtraPasses:   cfg.Gate.ExtraPasses,
		PageRetries:   cfg.Loader.PageRetries,
		FullRecompute: cfg.Enrich.FullRecompute,
		RunIDs:        opts.RunIDs,
		Now:           opts.Now,
		Metrics:       m,
	})
	report, runErr := p.Run(ctx)

	if cfg.Metrics.Textfile != "" {
		if err := m.WriteTextfile(cfg.Metrics.Textfile); err != nil {
			slog.Warn("metrics not written", "path", cfg.Metrics.Textfile, "error", err)
		}
	}

	out := newFormatter(opts.RootOptions, cmd)
	if runErr != nil {
		code := "E_RUN"
		if c, ok := model.CodeOf(runErr); ok {
			code = string(c)
		}
		if err := out.Error(code, runErr.Error(), reportView{report}); err != nil {
			return err
		}
		return WrapExitError(ExitFailure, "run failed", runErr)
	}

	if err := out.SuccessWithRun(report.RunID, reportView{report}); err != nil {
		return err
	}
	if !report.Clean() {
		return NewExitError(ExitRejections, fmt.Sprintf("run %s completed with rejections", report.RunID))
	}
	return nil
}

func fileSources(cfg *config.Config) ([]feed.Source, error) {
	ratios, err := feed.NewFileSource(model.FeedRatios, cfg.Feeds.Ratios.Dir)
	if err != nil {
		return nil, err
	}
	rolls, err := feed.NewFileSource(model.FeedRolls, cfg.Feeds.Rolls.Dir)
	if err != nil {
		return nil, err
	}
	return []feed.Source{ratios, rolls}, nil
}

// signalContext cancels on SIGINT/SIGTERM. Uses the command's context if
// available (for testing).
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// reportView renders a run report. It marshals as the report itself.
type reportView struct {
	*pipeline.Report
}

// RenderText implements TextRenderer.
func (v reportView) RenderText(w io.Writer) error {
	r := v.Report
	if r == nil {
		return errors.New("no report")
	}
	fmt.Fprintf(w, "run %s: %s\n", r.RunID, r.Status)
	fmt.Fprintf(w, "  fetched:    %d (%s)\n", r.TotalFetched(), feedCounts(r.Fetched))
	fmt.Fprintf(w, "  normalized: %d ratios, %d properties, %d assessments\n",
		r.Normalized.Ratios, r.Normalized.Properties, r.Normalized.Assessments)
	fmt.Fprintf(w, "  filtered:   %d\n", r.Filtered)
	fmt.Fprintf(w, "  rejected:   %d\n", r.TotalRejected())
	for _, code := range sortedCodes(r.Rejected) {
		fmt.Fprintf(w, "    %-24s %d\n", code, r.Rejected[code])
	}
	fmt.Fprintf(w, "  deferred:   %d (%d retry passes)\n", r.Deferred, r.RetryPasses)
	fmt.Fprintf(w, "  loaded:     %d ratios, %d properties, %d assessments\n",
		r.Loaded.Ratios, r.Loaded.Properties, r.Loaded.Assessments)
	fmt.Fprintf(w, "  enriched:   %d properties, %d points\n", r.Enriched.Properties, r.Enriched.Points)
	for _, id := range r.Enriched.Inconsistent {
		fmt.Fprintf(w, "    inconsistent: %s\n", id)
	}
	for _, p := range r.LoadFailures {
		fmt.Fprintf(w, "  skipped page: %s\n", p)
	}
	for _, f := range r.FetchFailures {
		fmt.Fprintf(w, "  fetch failure: %s\n", f)
	}
	return nil
}

func feedCounts(m map[model.Feed]int) string {
	return fmt.Sprintf("%s %d, %s %d",
		model.FeedRatios, m[model.FeedRatios],
		model.FeedRolls, m[model.FeedRolls])
}

func sortedCodes(m map[model.ErrorCode]int) []model.ErrorCode {
	codes := make([]model.ErrorCode, 0, len(m))
	for c := range m {
		codes = append(codes, c)
	}
	sort.Slice(codes, func(i, j int) bool { return codes[i] < codes[j] })
	return codes
}
