package querysql

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cnyre/internal/queryir"
)

func TestCompile_Unfiltered(t *testing.T) {
	stmt, err := Compile(queryir.Filters{}.Select(queryir.Page{}))
	require.NoError(t, err)

	assert.NotContains(t, stmt.SQL, "WHERE")
	assert.NotContains(t, stmt.SQL, "INDEXED BY")
	assert.Contains(t, stmt.SQL, "FROM ny_property_assessments AS a JOIN properties AS p")
	assert.True(t, strings.HasSuffix(stmt.SQL,
		"ORDER BY a.property_id ASC COLLATE BINARY, a.roll_year ASC LIMIT ? OFFSET ?"))
	assert.Equal(t, []any{int64(100), int64(0)}, stmt.Args)
	assert.Empty(t, stmt.Index)
}

func TestCompile_Parameterized(t *testing.T) {
	f := queryir.Filters{PropertyClasses: []string{"210", "220"}}
	stmt, err := Compile(f.Select(queryir.Page{Limit: 10, Offset: 20}))
	require.NoError(t, err)

	assert.Contains(t, stmt.SQL, "WHERE a.property_class IN (?, ?)")
	assert.NotContains(t, stmt.SQL, "210")
	assert.Equal(t, []any{"210", "220", int64(10), int64(20)}, stmt.Args)
}

func TestCompile_DrivingIndexPriority(t *testing.T) {
	tests := []struct {
		name    string
		filters queryir.Filters
		index   string
		from    string
	}{
		{
			name:    "class only",
			filters: queryir.Filters{PropertyClasses: []string{"210"}},
			index:   IndexAssessmentsClass,
			from:    "FROM ny_property_assessments AS a INDEXED BY idx_assessments_class JOIN",
		},
		{
			name:    "district beats class",
			filters: queryir.Filters{PropertyClasses: []string{"210"}, SchoolDistricts: []string{"312601"}},
			index:   IndexPropertiesDistrict,
			from:    "FROM properties AS p INDEXED BY idx_properties_school_district JOIN",
		},
		{
			name: "zip beats district",
			filters: queryir.Filters{
				PropertyClasses: []string{"210"},
				Zips:            []string{"13031"},
				SchoolDistricts: []string{"312601"},
			},
			index: IndexPropertiesZip,
			from:  "FROM properties AS p INDEXED BY idx_properties_zip JOIN",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stmt, err := Compile(tt.filters.Select(queryir.Page{}))
			require.NoError(t, err)
			assert.Equal(t, tt.index, stmt.Index)
			assert.Contains(t, stmt.SQL, tt.from)
			assert.Equal(t, 1, strings.Count(stmt.SQL, "INDEXED BY"))
		})
	}
}

func TestCompile_ArgsFollowPredicateOrder(t *testing.T) {
	sel := queryir.Select{
		From: queryir.ViewPropertyAssessments,
		Page: queryir.Page{Limit: 5},
		Filter: queryir.And{Predicates: []queryir.Predicate{
			queryir.Equals{Field: queryir.FieldRollYear, Value: queryir.Int(2024)},
			queryir.In{Field: queryir.FieldZip, Values: []queryir.Value{queryir.String("13021")}},
		}},
	}
	stmt, err := Compile(sel)
	require.NoError(t, err)

	assert.Contains(t, stmt.SQL, "WHERE a.roll_year = ? AND p.zip IN (?)")
	assert.Equal(t, []any{int64(2024), "13021", int64(5), int64(0)}, stmt.Args)
	assert.Equal(t, IndexPropertiesZip, stmt.Index)
}

func TestCompile_RejectsInvalid(t *testing.T) {
	_, err := Compile(nil)
	assert.Error(t, err)

	_, err = Compile(queryir.Select{From: "sync_firings", Page: queryir.Page{Limit: 1}})
	assert.ErrorContains(t, err, "unknown view")

	_, err = Compile(queryir.Select{
		From:   queryir.ViewPropertyAssessments,
		Page:   queryir.Page{Limit: 1},
		Filter: queryir.Equals{Field: "owner; DROP TABLE properties", Value: queryir.String("x")},
	})
	assert.ErrorContains(t, err, "not filterable")
}

func TestCompile_PointerSelect(t *testing.T) {
	sel := queryir.Filters{Zips: []string{"13021"}}.Select(queryir.Page{})
	a, err := Compile(sel)
	require.NoError(t, err)
	b, err := Compile(&sel)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}
