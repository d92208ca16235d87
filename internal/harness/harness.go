package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"reflect"
	"sort"
	"strings"

	"github.com/roach88/cnyre/internal/feed"
	"github.com/roach88/cnyre/internal/model"
	"github.com/roach88/cnyre/internal/pipeline"
	"github.com/roach88/cnyre/internal/store"
	"github.com/roach88/cnyre/internal/testutil"
)

// defaultCounties scopes scenarios that do not set options.counties.
var defaultCounties = []string{"ONONDAGA"}

// Harness executes one scenario against its own store.
type Harness struct {
	store  *store.Store
	clock  *testutil.StepClock
	runIDs *testutil.FixedRunIDs
	logger *slog.Logger
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
// Deterministic helpers ensure reproducible results.
//
// Execution flow:
// 1. Create fresh in-memory database
// 2. Execute each run, checking its expect clause
// 3. Evaluate assertions against the final store
//
// Run returns an error only when the harness itself cannot proceed; a
// failing expectation is reported in the Result.
func Run(scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	h := &Harness{
		store:  st,
		clock:  testutil.NewStepClock(),
		runIDs: testutil.NewFixedRunIDs(),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)), // Suppress logs in tests
	}
	return h.execute(context.Background(), scenario)
}

func (h *Harness) execute(ctx context.Context, scenario *Scenario) (*Result, error) {
	result := NewResult()
	for i, step := range scenario.Runs {
		outcome, err := h.runStep(ctx, scenario.Options, step)
		if err != nil {
			return nil, fmt.Errorf("run %d: %w", i+1, err)
		}
		result.Runs = append(result.Runs, outcome)
		for _, msg := range checkExpect(step.Expect, outcome) {
			result.AddError(fmt.Sprintf("run %d: %s", i+1, msg))
		}
	}

	trends, err := readTrends(ctx, h.store)
	if err != nil {
		return nil, fmt.Errorf("read trends: %w", err)
	}
	result.Trends = trends

	actx := &AssertionContext{Store: h.store, Ctx: ctx}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}
	return result, nil
}

func (h *Harness) runStep(ctx context.Context, opts Options, step RunStep) (RunOutcome, error) {
	src := buildSource(step.Pages)

	counties := opts.Counties
	if len(counties) == 0 {
		counties = defaultCounties
	}
	p := pipeline.New(h.store, []feed.Source{src}, pipeline.Options{
		Counties:      counties,
		EarliestYear:  opts.EarliestYear,
		LatestYear:    opts.LatestYear,
		ExtraPasses:   opts.ExtraPasses,
		PageRetries:   opts.PageRetries,
		FullRecompute: opts.FullRecompute,
		RunIDs:        h.runIDs,
		Now:           h.clock.Now,
		Logger:        h.logger,
	})
	rep, runErr := p.Run(ctx)

	outcome := RunOutcome{Report: rep, Err: runErr}
	var err error
	if outcome.Rejections, err = h.store.RejectionsForRun(ctx, rep.RunID); err != nil {
		return RunOutcome{}, err
	}
	if outcome.ContentHash, err = h.store.ContentHash(ctx); err != nil {
		return RunOutcome{}, err
	}
	h.logger.Info("scenario run completed", "run_id", rep.RunID, "status", rep.Status)
	return outcome, nil
}

// readTrends returns every stored trend point ordered by property and year.
func readTrends(ctx context.Context, st *store.Store) ([]model.TrendPoint, error) {
	ids, err := st.AllPropertyIDs(ctx)
	if err != nil {
		return nil, err
	}
	out := []model.TrendPoint{}
	for _, id := range ids {
		points, err := st.ReadTrends(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, points...)
	}
	return out, nil
}

// buildSource turns page specs into one ordered source.
func buildSource(specs []PageSpec) *feed.SequenceSource {
	pages := make([]feed.Page, 0, len(specs))
	numbers := make(map[model.Feed]int)
	failAt := 0
	var failErr error
	for i, spec := range specs {
		f := model.Feed(spec.Feed)
		numbers[f]++
		if spec.Fail != "" {
			failAt = i + 1
			failErr = errors.New(spec.Fail)
		}
		rows := make([]map[string]string, len(spec.Rows))
		for j, row := range spec.Rows {
			rows[j] = templateRow(f, spec.Raw, row)
		}
		pages = append(pages, feed.NewPage(f, numbers[f], rows))
	}
	src := feed.NewSequenceSource(pages...)
	src.FailAt = failAt
	src.FailErr = failErr
	return src
}

func templateRow(f model.Feed, raw bool, row map[string]string) map[string]string {
	if raw {
		out := make(map[string]string, len(row))
		for k, v := range row {
			if v != "-" {
				out[k] = v
			}
		}
		return out
	}
	if f == model.FeedRatios {
		return testutil.RatioRow(0, "", row)
	}
	return testutil.RollRow("", 0, 0, 0, row)
}

// checkExpect compares a run's report with its expect clause.
func checkExpect(e *ExpectClause, o RunOutcome) []string {
	rep := o.Report
	if e == nil {
		if rep.Status == store.RunFailed {
			return []string{fmt.Sprintf("run failed: %v", o.Err)}
		}
		return nil
	}

	var errs []string
	check := func(name string, want, got any) {
		if !reflect.DeepEqual(want, got) {
			errs = append(errs, fmt.Sprintf("%s: expected %v, got %v", name, want, got))
		}
	}

	check("status", e.Status, rep.Status)
	if e.Error != "" {
		if o.Err == nil || !strings.Contains(o.Err.Error(), e.Error) {
			errs = append(errs, fmt.Sprintf("error: expected %q in %v", e.Error, o.Err))
		}
	}
	if e.Rejected != nil {
		got := make(map[string]int, len(rep.Rejected))
		for code, n := range rep.Rejected {
			got[string(code)] = n
		}
		check("rejected", e.Rejected, got)
	}
	if e.Filtered != nil {
		check("filtered", *e.Filtered, rep.Filtered)
	}
	if e.Deferred != nil {
		check("deferred", *e.Deferred, rep.Deferred)
	}
	if e.RetryPasses != nil {
		check("retry_passes", *e.RetryPasses, rep.RetryPasses)
	}
	if e.Loaded != nil {
		check("loaded", *e.Loaded, rep.Loaded)
	}
	if e.Enriched != nil {
		check("enriched", *e.Enriched, rep.Enriched.Properties)
	}
	if e.Inconsistent != nil {
		got := append([]string{}, rep.Enriched.Inconsistent...)
		sort.Strings(got)
		check("inconsistent", e.Inconsistent, got)
	}
	if e.LoadFailures != nil {
		check("load_failures", *e.LoadFailures, len(rep.LoadFailures))
	}
	if e.FetchFailures != nil {
		check("fetch_failures", *e.FetchFailures, len(rep.FetchFailures))
	}
	return errs
}
