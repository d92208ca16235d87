package harness

import (
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/shopspring/decimal"

	"github.com/roach88/cnyre/internal/canon"
	"github.com/roach88/cnyre/internal/model"
)

// Snapshot is the golden form of a scenario result: every run report, the
// rejections each run wrote, and the final trend table. It is serialized as
// canonical JSON (package canon), so equal results give identical bytes.
func Snapshot(name string, result *Result) ([]byte, error) {
	runs := make([]any, len(result.Runs))
	for i, o := range result.Runs {
		runs[i] = runSnapshot(o)
	}
	trends := make([]any, len(result.Trends))
	for i, tp := range result.Trends {
		trends[i] = map[string]any{
			"property_id":             tp.PropertyID,
			"roll_year":               tp.RollYear,
			"full_value":              tp.FullValue,
			"ratio":                   tp.Ratio.StringFixed(model.RatioPlaces),
			"full_value_change_pct":   fixedOrNil(tp.FullValueChangePct, model.PercentPlaces),
			"market_value_change_pct": fixedOrNil(tp.MarketValueChangePct, model.PercentPlaces),
		}
	}
	return canon.Marshal(map[string]any{
		"scenario": name,
		"runs":     runs,
		"trends":   trends,
	})
}

func runSnapshot(o RunOutcome) map[string]any {
	rep := o.Report

	rejected := make(map[string]any, len(rep.Rejected))
	for code, n := range rep.Rejected {
		rejected[string(code)] = n
	}
	rejections := make([]any, len(o.Rejections))
	for i, r := range o.Rejections {
		rejections[i] = map[string]any{
			"feed":       r.Feed,
			"source_key": r.SourceKey,
			"reason":     r.Reason,
			"field":      r.Field,
		}
	}
	inconsistent := make([]any, len(rep.Enriched.Inconsistent))
	for i, id := range rep.Enriched.Inconsistent {
		inconsistent[i] = id
	}

	return map[string]any{
		"run_id":      rep.RunID,
		"status":      rep.Status,
		"error":       rep.Error,
		"started_at":  rep.StartedAt.UTC().Format(time.RFC3339),
		"finished_at": rep.FinishedAt.UTC().Format(time.RFC3339),
		"fetched": map[string]any{
			string(model.FeedRatios): rep.Fetched[model.FeedRatios],
			string(model.FeedRolls):  rep.Fetched[model.FeedRolls],
		},
		"normalized":   countsSnapshot(rep.Normalized),
		"filtered":     rep.Filtered,
		"rejected":     rejected,
		"deferred":     rep.Deferred,
		"retry_passes": rep.RetryPasses,
		"loaded":       countsSnapshot(rep.Loaded),
		"enriched": map[string]any{
			"properties":   rep.Enriched.Properties,
			"points":       rep.Enriched.Points,
			"summaries":    rep.Enriched.Summaries,
			"inconsistent": inconsistent,
		},
		"fetch_failures": stringsSnapshot(rep.FetchFailures),
		"load_failures":  stringsSnapshot(rep.LoadFailures),
		"rejections":     rejections,
	}
}

func countsSnapshot(c model.Counts) map[string]any {
	return map[string]any{
		"ratios":      c.Ratios,
		"properties":  c.Properties,
		"assessments": c.Assessments,
	}
}

func stringsSnapshot(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

func fixedOrNil(d *decimal.Decimal, places int32) any {
	if d == nil {
		return nil
	}
	return d.StringFixed(places)
}

// RunWithGolden executes a scenario and compares its snapshot against a
// golden file stored in testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns the result for further checks. Test failure (via goldie) occurs if
// the snapshot doesn't match the golden file.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result against a golden file without
// re-running the scenario.
func AssertGolden(t *testing.T, name string, result *Result) error {
	t.Helper()

	snapshot, err := Snapshot(name, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, snapshot)
	return nil
}
