package enrich

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cnyre/internal/model"
)

func ratioOf(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func point(year int, fmv, total int64, ratio string) model.HistoryPoint {
	hp := model.HistoryPoint{RollYear: year, MunicipalityCode: "312600", FullMarketValue: fmv, AssessmentTotal: total}
	if ratio != "" {
		hp.Ratio = ratioOf(ratio)
	}
	return hp
}

func TestCompute_ConstantRatioTenPercent(t *testing.T) {
	history := []model.HistoryPoint{
		point(2022, 100000, 88000, "0.8800"),
		point(2023, 110000, 96800, "0.8800"),
	}
	points, summary, err := Compute("312600|1", history)
	require.NoError(t, err)
	require.Len(t, points, 2)

	assert.Equal(t, int64(100000), points[0].FullValue)
	assert.Equal(t, int64(110000), points[1].FullValue)
	assert.Nil(t, points[0].FullValueChangePct)
	assert.Nil(t, points[0].MarketValueChangePct)

	require.NotNil(t, points[1].FullValueChangePct)
	require.NotNil(t, points[1].MarketValueChangePct)
	assert.Equal(t, "10.0000", points[1].FullValueChangePct.StringFixed(4))
	assert.Equal(t, "10.0000", points[1].MarketValueChangePct.StringFixed(4))

	require.NotNil(t, summary)
	assert.Equal(t, 2022, summary.FirstRollYear)
	assert.Equal(t, 2023, summary.LastRollYear)
	assert.Equal(t, 2, summary.YearsObserved)
	assert.Equal(t, "10.0000", summary.TotalChangePct.StringFixed(4))
	assert.Equal(t, "10.0000", summary.MeanChangePct.StringFixed(4))
	assert.Equal(t, "10000.00", summary.SlopePerYear.StringFixed(2))
}

func TestCompute_SingleYearHasNoChange(t *testing.T) {
	points, summary, err := Compute("312600|1", []model.HistoryPoint{point(2024, 100000, 88000, "0.88")})
	require.NoError(t, err)
	require.Len(t, points, 1)
	assert.Nil(t, points[0].FullValueChangePct)
	assert.Nil(t, points[0].MarketValueChangePct)

	require.NotNil(t, summary)
	assert.Equal(t, 1, summary.YearsObserved)
	assert.Nil(t, summary.TotalChangePct)
	assert.Nil(t, summary.MeanChangePct)
	assert.Nil(t, summary.SlopePerYear)
}

func TestCompute_RatioChangeMovesFullValue(t *testing.T) {
	// Assessment unchanged, ratio drops: full value rises 10%.
	history := []model.HistoryPoint{
		point(2023, 100000, 88000, "0.88"),
		point(2024, 100000, 88000, "0.80"),
	}
	points, _, err := Compute("312600|1", history)
	require.NoError(t, err)
	assert.Equal(t, int64(110000), points[1].FullValue)
	assert.Equal(t, "10.0000", points[1].FullValueChangePct.StringFixed(4))
	assert.Equal(t, "0.0000", points[1].MarketValueChangePct.StringFixed(4))
}

func TestCompute_ZeroBaseIsUndefined(t *testing.T) {
	history := []model.HistoryPoint{
		point(2023, 0, 0, "0.88"),
		point(2024, 50000, 44000, "0.88"),
	}
	points, summary, err := Compute("312600|1", history)
	require.NoError(t, err)
	assert.Nil(t, points[1].FullValueChangePct)
	assert.Nil(t, points[1].MarketValueChangePct)
	assert.Nil(t, summary.TotalChangePct)
	assert.Nil(t, summary.MeanChangePct)
	assert.NotNil(t, summary.SlopePerYear)
}

func TestCompute_MissingRatioIsInconsistency(t *testing.T) {
	history := []model.HistoryPoint{
		point(2023, 100000, 88000, "0.88"),
		point(2024, 110000, 96800, ""),
	}
	_, _, err := Compute("312600|1", history)
	require.Error(t, err)

	var inc *model.EnrichmentInconsistency
	require.ErrorAs(t, err, &inc)
	assert.Equal(t, "312600|1", inc.PropertyID)
	assert.Equal(t, model.RatioKey{MunicipalityCode: "312600", RateYear: 2024}, inc.Missing)
}

func TestCompute_FullValueOverflowIsInconsistency(t *testing.T) {
	history := []model.HistoryPoint{
		point(2024, math.MaxInt64, math.MaxInt64, "0.0001"),
	}
	points, summary, err := Compute("312600|1", history)
	require.Error(t, err)
	assert.Nil(t, points)
	assert.Nil(t, summary)

	var inc *model.EnrichmentInconsistency
	require.ErrorAs(t, err, &inc)
	assert.Equal(t, model.RatioKey{MunicipalityCode: "312600", RateYear: 2024}, inc.Missing)
	assert.Contains(t, err.Error(), "exceeds the currency range")
}

func TestCompute_FullValueAtCurrencyLimit(t *testing.T) {
	points, _, err := Compute("312600|1", []model.HistoryPoint{
		point(2024, math.MaxInt64, math.MaxInt64, "1"),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(math.MaxInt64), points[0].FullValue)
}

func TestCompute_Deterministic(t *testing.T) {
	history := []model.HistoryPoint{
		point(2019, 123457, 98765, "0.8123"),
		point(2020, 130001, 99999, "0.7999"),
		point(2022, 140333, 101010, "0.7511"),
	}
	p1, s1, err := Compute("x|1", history)
	require.NoError(t, err)
	p2, s2, err := Compute("x|1", history)
	require.NoError(t, err)
	assert.Equal(t, p1, p2)
	assert.Equal(t, s1, s2)

	// Gaps compare consecutive available years, not calendar neighbours.
	require.NotNil(t, p1[2].MarketValueChangePct)
	assert.Equal(t, "7.9476", p1[2].MarketValueChangePct.StringFixed(4))
}

func TestCompute_Empty(t *testing.T) {
	points, summary, err := Compute("x|1", nil)
	require.NoError(t, err)
	assert.Nil(t, points)
	assert.Nil(t, summary)
}
