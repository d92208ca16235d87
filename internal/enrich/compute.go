// Package enrich derives per-property trend statistics from persisted
// assessments and ratios.
//
// Compute is a pure function of a property's history; Enricher.Run feeds it
// from the store and swaps each property's derived rows wholesale.
package enrich

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/stat"

	"github.com/roach88/cnyre/internal/model"
)

var (
	hundred     = decimal.NewFromInt(100)
	maxCurrency = decimal.NewFromInt(math.MaxInt64)
)

// Compute derives the trend points and summary of one property.
//
// For each roll year: full_value = assessment_total / ratio, rounded to a
// whole unit. Between consecutive available years:
//
//	full_value_change_pct   = (t2/r2 - t1/r1) / (t1/r1) * 100
//	market_value_change_pct = (fmv2 - fmv1) / fmv1 * 100
//
// both rounded to model.PercentPlaces and computed from unrounded operands,
// so a constant ratio makes the two agree exactly. A change is nil when its
// base is zero and on the first year. The summary's change statistics and
// slope are nil with fewer than two years.
//
// history must be ordered by roll year. A year with no ratio, or whose full
// value does not fit a currency column, returns
// *model.EnrichmentInconsistency.
func Compute(propertyID string, history []model.HistoryPoint) ([]model.TrendPoint, *model.TrendSummary, error) {
	if len(history) == 0 {
		return nil, nil, nil
	}

	points := make([]model.TrendPoint, len(history))
	for i, hp := range history {
		if hp.Ratio == nil || !hp.Ratio.IsPositive() {
			return nil, nil, &model.EnrichmentInconsistency{
				PropertyID: propertyID,
				Missing:    model.RatioKey{MunicipalityCode: hp.MunicipalityCode, RateYear: hp.RollYear},
			}
		}
		full := decimal.NewFromInt(hp.AssessmentTotal).Div(*hp.Ratio).Round(0)
		if full.GreaterThan(maxCurrency) {
			return nil, nil, &model.EnrichmentInconsistency{
				PropertyID: propertyID,
				Missing:    model.RatioKey{MunicipalityCode: hp.MunicipalityCode, RateYear: hp.RollYear},
				Reason:     fmt.Sprintf("full value %s for %d exceeds the currency range", full, hp.RollYear),
			}
		}
		points[i] = model.TrendPoint{
			PropertyID: propertyID,
			RollYear:   hp.RollYear,
			FullValue:  full.IntPart(),
			Ratio:      hp.Ratio.Round(model.RatioPlaces),
		}
		if i == 0 {
			continue
		}
		prev := history[i-1]
		points[i].FullValueChangePct = adjustedChange(prev, hp)
		points[i].MarketValueChangePct = percentChange(
			decimal.NewFromInt(prev.FullMarketValue),
			decimal.NewFromInt(hp.FullMarketValue),
		)
	}

	return points, summarize(propertyID, history, points), nil
}

// adjustedChange compares ratio-adjusted values without dividing twice:
// (t2*r1 - t1*r2) / (t1*r2) equals (t2/r2 - t1/r1) / (t1/r1).
func adjustedChange(prev, cur model.HistoryPoint) *decimal.Decimal {
	t1 := decimal.NewFromInt(prev.AssessmentTotal)
	t2 := decimal.NewFromInt(cur.AssessmentTotal)
	base := t1.Mul(*cur.Ratio)
	if base.IsZero() {
		return nil
	}
	pct := t2.Mul(*prev.Ratio).Sub(base).Mul(hundred).Div(base).Round(model.PercentPlaces)
	return &pct
}

func percentChange(from, to decimal.Decimal) *decimal.Decimal {
	if from.IsZero() {
		return nil
	}
	pct := to.Sub(from).Mul(hundred).Div(from).Round(model.PercentPlaces)
	return &pct
}

func summarize(propertyID string, history []model.HistoryPoint, points []model.TrendPoint) *model.TrendSummary {
	first, last := history[0], history[len(history)-1]
	s := &model.TrendSummary{
		PropertyID:    propertyID,
		FirstRollYear: first.RollYear,
		LastRollYear:  last.RollYear,
		YearsObserved: len(history),
	}
	if len(history) < 2 {
		return s
	}

	s.TotalChangePct = adjustedChange(first, last)

	var sum decimal.Decimal
	var n int64
	for _, p := range points[1:] {
		if p.FullValueChangePct != nil {
			sum = sum.Add(*p.FullValueChangePct)
			n++
		}
	}
	if n > 0 {
		mean := sum.Div(decimal.NewFromInt(n)).Round(model.PercentPlaces)
		s.MeanChangePct = &mean
	}

	xs := make([]float64, len(points))
	ys := make([]float64, len(points))
	for i, p := range points {
		xs[i] = float64(p.RollYear)
		ys[i] = float64(p.FullValue)
	}
	_, beta := stat.LinearRegression(xs, ys, nil, false)
	slope := decimal.NewFromFloat(beta).Round(model.SlopePlaces)
	s.SlopePerYear = &slope

	return s
}
