package store

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cnyre/internal/model"
	"github.com/roach88/cnyre/internal/queryir"
)

// seedFacade writes four properties across two zips, two districts and two
// classes, with two roll years each.
func seedFacade(t *testing.T, s *Store) {
	t.Helper()
	b := model.Batch{
		Ratios: []model.Ratio{
			createTestRatio("312600", 2023, "88.00"),
			createTestRatio("312600", 2024, "88.00"),
		},
	}
	props := []struct {
		id, zip, district, class string
	}{
		{"312600|1", "13031", "312601", "210"},
		{"312600|2", "13031", "312602", "220"},
		{"312600|3", "13209", "312601", "210"},
		{"312600|4", "13209", "312602", "311"},
	}
	for _, p := range props {
		b.Properties = append(b.Properties, createTestProperty(p.id, "312600", p.zip, p.district, 2024))
		b.Assessments = append(b.Assessments,
			createTestAssessment(p.id, 2023, p.class, 100000, 88000),
			createTestAssessment(p.id, 2024, p.class, 110000, 96800),
		)
	}
	mustWrite(t, s, b)
}

func rowKeys(rows []model.PropertyRow) []string {
	keys := make([]string, len(rows))
	for i, r := range rows {
		keys[i] = r.Assessment.Key().String()
	}
	return keys
}

func TestQueryProperties_Filters(t *testing.T) {
	s := createTestStore(t)
	seedFacade(t, s)
	ctx := t.Context()

	tests := []struct {
		name    string
		filters queryir.Filters
		want    []string
	}{
		{"by zip", queryir.Filters{Zips: []string{"13209"}},
			[]string{"312600|3@2023", "312600|3@2024", "312600|4@2023", "312600|4@2024"}},
		{"by district", queryir.Filters{SchoolDistricts: []string{"312602"}},
			[]string{"312600|2@2023", "312600|2@2024", "312600|4@2023", "312600|4@2024"}},
		{"by class set", queryir.Filters{PropertyClasses: []string{"220", "311"}},
			[]string{"312600|2@2023", "312600|2@2024", "312600|4@2023", "312600|4@2024"}},
		{"combined", queryir.Filters{Zips: []string{"13031"}, PropertyClasses: []string{"210"}},
			[]string{"312600|1@2023", "312600|1@2024"}},
		{"no match", queryir.Filters{Zips: []string{"00000"}}, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows, err := s.QueryProperties(ctx, tt.filters, queryir.Page{})
			require.NoError(t, err)
			assert.Equal(t, tt.want, rowKeys(rows))
		})
	}
}

func TestQueryProperties_Pagination(t *testing.T) {
	s := createTestStore(t)
	seedFacade(t, s)
	ctx := t.Context()

	all, err := s.QueryProperties(ctx, queryir.Filters{}, queryir.Page{})
	require.NoError(t, err)
	require.Len(t, all, 8)

	var paged []model.PropertyRow
	for offset := 0; offset < 8; offset += 3 {
		rows, err := s.QueryProperties(ctx, queryir.Filters{}, queryir.Page{Limit: 3, Offset: offset})
		require.NoError(t, err)
		paged = append(paged, rows...)
	}
	assert.Equal(t, rowKeys(all), rowKeys(paged))
}

func TestQueryProperties_JoinsTrend(t *testing.T) {
	s := createTestStore(t)
	seedFacade(t, s)
	ctx := t.Context()

	change := decimal.RequireFromString("10.0000")
	points := []model.TrendPoint{
		{PropertyID: "312600|1", RollYear: 2023, FullValue: 100000, Ratio: decimal.RequireFromString("0.88")},
		{PropertyID: "312600|1", RollYear: 2024, FullValue: 110000, Ratio: decimal.RequireFromString("0.88"),
			FullValueChangePct: &change, MarketValueChangePct: &change},
	}
	require.NoError(t, s.ReplaceTrends(ctx, "312600|1", points, nil))

	rows, err := s.QueryProperties(ctx, queryir.Filters{Zips: []string{"13031"}}, queryir.Page{})
	require.NoError(t, err)
	require.Len(t, rows, 4)

	require.NotNil(t, rows[0].Trend)
	assert.Nil(t, rows[0].Trend.FullValueChangePct)
	require.NotNil(t, rows[1].Trend)
	assert.Equal(t, "10.0000", rows[1].Trend.FullValueChangePct.StringFixed(4))
	assert.Nil(t, rows[2].Trend, "unenriched rows carry no trend")
}

func TestExplainQuery_UsesIndexes(t *testing.T) {
	s := createTestStore(t)
	seedFacade(t, s)
	ctx := t.Context()

	tests := []struct {
		name    string
		filters queryir.Filters
		index   string
	}{
		{"zip", queryir.Filters{Zips: []string{"13031"}}, "idx_properties_zip"},
		{"district", queryir.Filters{SchoolDistricts: []string{"312601"}}, "idx_properties_school_district"},
		{"class", queryir.Filters{PropertyClasses: []string{"210"}}, "idx_assessments_class"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, err := s.ExplainQuery(ctx, tt.filters.Select(queryir.Page{}))
			require.NoError(t, err)
			joined := strings.Join(plan, "\n")
			assert.Contains(t, joined, tt.index)
			for _, line := range plan {
				assert.False(t, strings.HasPrefix(line, "SCAN a"), "full scan of assessments: %s", joined)
				assert.False(t, strings.HasPrefix(line, "SCAN p"), "full scan of properties: %s", joined)
			}
		})
	}
}

func TestGetProperty_NotFound(t *testing.T) {
	s := createTestStore(t)
	_, err := s.GetProperty(t.Context(), "999999|1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReplaceTrends_DeleteThenInsert(t *testing.T) {
	s := createTestStore(t)
	seedFacade(t, s)
	ctx := t.Context()

	ratio := decimal.RequireFromString("0.88")
	first := []model.TrendPoint{
		{PropertyID: "312600|1", RollYear: 2023, FullValue: 1, Ratio: ratio},
		{PropertyID: "312600|1", RollYear: 2024, FullValue: 2, Ratio: ratio},
	}
	total := decimal.RequireFromString("10")
	summary := &model.TrendSummary{
		PropertyID: "312600|1", FirstRollYear: 2023, LastRollYear: 2024, YearsObserved: 2,
		TotalChangePct: &total,
	}
	require.NoError(t, s.ReplaceTrends(ctx, "312600|1", first, summary))

	second := first[1:]
	require.NoError(t, s.ReplaceTrends(ctx, "312600|1", second, nil))

	got, err := s.ReadTrends(ctx, "312600|1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 2024, got[0].RollYear)

	sum, err := s.ReadSummary(ctx, "312600|1")
	require.NoError(t, err)
	assert.Nil(t, sum, "summary from the earlier run must be gone")

	require.Error(t, s.ReplaceTrends(ctx, "312600|2", first, nil), "points for another property are refused")
}

func TestAssessmentHistory(t *testing.T) {
	s := createTestStore(t)
	ctx := t.Context()
	mustWrite(t, s, model.Batch{
		Ratios:     []model.Ratio{createTestRatio("312600", 2024, "88.00")},
		Properties: []model.Property{createTestProperty("312600|1", "312600", "13031", "312601", 2024)},
		Assessments: []model.Assessment{
			createTestAssessment("312600|1", 2024, "210", 110000, 96800),
			createTestAssessment("312600|1", 2023, "210", 100000, 88000),
		},
	})

	h, err := s.AssessmentHistory(ctx, "312600|1")
	require.NoError(t, err)
	require.Len(t, h, 2)
	assert.Equal(t, 2023, h[0].RollYear)
	assert.Nil(t, h[0].Ratio, "no ratio stored for 2023")
	require.NotNil(t, h[1].Ratio)
	assert.Equal(t, "0.8800", h[1].Ratio.StringFixed(4))

	ids, err := s.AllPropertyIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"312600|1"}, ids)
}

func TestPropertyIDsInMunicipality(t *testing.T) {
	s := createTestStore(t)
	ctx := t.Context()

	mustWrite(t, s, model.Batch{Properties: []model.Property{
		createTestProperty("312600|2", "312600", "13031", "312601", 2024),
		createTestProperty("312600|1", "312600", "13031", "312601", 2024),
		createTestProperty("314200|1", "314200", "13088", "314201", 2024),
	}})

	ids, err := s.PropertyIDsInMunicipality(ctx, "312600")
	require.NoError(t, err)
	assert.Equal(t, []string{"312600|1", "312600|2"}, ids)

	ids, err = s.PropertyIDsInMunicipality(ctx, "999999")
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestRecordRun_RejectionsUpsert(t *testing.T) {
	s := createTestStore(t)
	ctx := t.Context()

	rej := []Rejection{
		{Feed: "rolls", SourceKey: "b", Reason: "NormalizationError", Field: "full_market_value", Detail: "fractional"},
		{Feed: "rolls", SourceKey: "a", Reason: "MalformedIdentity", Field: "print_key_code", Detail: "empty"},
	}
	require.NoError(t, s.RecordRun(ctx, RunRecord{RunID: "run-1", Status: RunCompletedRejection, Report: []byte(`{"n":1}`)}, rej))
	require.NoError(t, s.RecordRun(ctx, RunRecord{RunID: "run-2", Status: RunCompletedRejection, Report: []byte(`{"n":2}`)}, rej))

	first, err := s.RejectionsForRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Empty(t, first, "rejections move to the run that last reported them")

	second, err := s.RejectionsForRun(ctx, "run-2")
	require.NoError(t, err)
	require.Len(t, second, 2)
	assert.Equal(t, "a", second[0].SourceKey)

	var n int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM rejected_records`).Scan(&n))
	assert.Equal(t, 2, n)
}
