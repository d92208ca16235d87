package enrich

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cnyre/internal/model"
	"github.com/roach88/cnyre/internal/store"
)

func openStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "enrich.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func seed(t *testing.T, s *store.Store, ratios map[int]string, years ...int) {
	t.Helper()
	var b model.Batch
	for year, pct := range ratios {
		b.Ratios = append(b.Ratios, model.Ratio{
			MunicipalityCode: "312600",
			RateYear:         year,
			MunicipalityName: "Camillus",
			CountyName:       "Onondaga",
			MunicipalityType: "Town",
			Ratio:            decimal.RequireFromString(pct),
		})
	}
	b.Properties = []model.Property{{
		ID:               "312600|1",
		SwisCode:         "312600",
		PrintKeyCode:     "1",
		MunicipalityCode: "312600",
		MunicipalityName: "Camillus",
		CountyName:       "Onondaga",
		Zip:              "13031",
		LastRollYear:     years[len(years)-1],
	}}
	fmv, total := int64(100000), int64(88000)
	for _, y := range years {
		b.Assessments = append(b.Assessments, model.Assessment{
			PropertyID:      "312600|1",
			RollYear:        y,
			PropertyClass:   "210",
			FullMarketValue: fmv,
			AssessmentTotal: total,
		})
		fmv += fmv / 10
		total += total / 10
	}
	require.NoError(t, s.WriteBatch(context.Background(), b))
}

func TestEnricher_PersistsTrends(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	seed(t, s, map[int]string{2023: "0.88", 2024: "0.88"}, 2023, 2024)

	stats, err := New(s, nil).Run(ctx, []string{"312600|1"})
	require.NoError(t, err)
	assert.Equal(t, Stats{Properties: 1, Points: 2, Summaries: 1}, stats)

	points, err := s.ReadTrends(ctx, "312600|1")
	require.NoError(t, err)
	require.Len(t, points, 2)
	assert.Equal(t, int64(100000), points[0].FullValue)
	assert.Equal(t, int64(110000), points[1].FullValue)
	assert.Equal(t, "10.0000", points[1].FullValueChangePct.StringFixed(4))

	summary, err := s.ReadSummary(ctx, "312600|1")
	require.NoError(t, err)
	require.NotNil(t, summary)
	assert.Equal(t, "10.0000", summary.TotalChangePct.StringFixed(4))
	assert.Equal(t, "10000.00", summary.SlopePerYear.StringFixed(2))
}

func TestEnricher_RerunIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	seed(t, s, map[int]string{2022: "0.9", 2023: "0.88", 2024: "0.85"}, 2022, 2023, 2024)

	e := New(s, nil)
	_, err := e.Run(ctx, []string{"312600|1"})
	require.NoError(t, err)
	first, err := s.ContentHash(ctx)
	require.NoError(t, err)

	_, err = e.Run(ctx, []string{"312600|1", "312600|1"})
	require.NoError(t, err)
	second, err := s.ContentHash(ctx)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestEnricher_InconsistencyDeletesAndContinues(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	seed(t, s, map[int]string{2023: "0.88", 2024: "0.88"}, 2023, 2024)

	e := New(s, nil)
	_, err := e.Run(ctx, []string{"312600|1"})
	require.NoError(t, err)

	// A later assessment year with no ratio: the earlier trends must go.
	require.NoError(t, s.WriteBatch(ctx, model.Batch{Assessments: []model.Assessment{{
		PropertyID: "312600|1", RollYear: 2025, PropertyClass: "210",
		FullMarketValue: 120000, AssessmentTotal: 100000,
	}}}))

	stats, err := e.Run(ctx, []string{"312600|1", "312600|404"})
	require.NoError(t, err)
	assert.Equal(t, []string{"312600|1"}, stats.Inconsistent)
	assert.Equal(t, 1, stats.Properties)
	assert.Zero(t, stats.Points)

	points, err := s.ReadTrends(ctx, "312600|1")
	require.NoError(t, err)
	assert.Empty(t, points)
	summary, err := s.ReadSummary(ctx, "312600|1")
	require.NoError(t, err)
	assert.Nil(t, summary)
}

type failingStore struct {
	Store
	err error
}

func (f failingStore) AssessmentHistory(context.Context, string) ([]model.HistoryPoint, error) {
	return nil, f.err
}

func TestEnricher_StoreErrorEndsRun(t *testing.T) {
	boom := errors.New("disk gone")
	_, err := New(failingStore{err: boom}, nil).Run(context.Background(), []string{"a|1"})
	require.ErrorIs(t, err, boom)
}

func TestEnricher_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(failingStore{}, nil).Run(ctx, []string{"a|1"})
	require.ErrorIs(t, err, context.Canceled)
}
