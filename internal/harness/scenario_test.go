package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cnyre/internal/model"
)

func TestLoadScenario(t *testing.T) {
	s := loadScenario(t, "camillus_two_years")

	assert.Equal(t, "camillus_two_years", s.Name)
	assert.Equal(t, []string{"ONONDAGA"}, s.Options.Counties)
	require.Len(t, s.Runs, 2)
	// The second run reuses the first run's pages through a YAML alias.
	assert.Equal(t, s.Runs[0].Pages, s.Runs[1].Pages)
	require.Len(t, s.Runs[0].Pages, 3)
	assert.Equal(t, "2023", s.Runs[0].Pages[0].Rows[0]["rate_year"])
	require.NotNil(t, s.Runs[0].Expect)
	assert.Equal(t, &model.Counts{Ratios: 2, Properties: 4, Assessments: 4}, s.Runs[0].Expect.Loaded)
	assert.Equal(t, map[string]int{}, s.Runs[0].Expect.Rejected)
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestLoadScenario_FromDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
name: minimal
description: "One ratio"
runs:
  - pages:
      - feed: ratios
        rows: [{rate_year: "2024"}]
`), 0o644))

	s, err := LoadScenario(path)
	require.NoError(t, err)
	assert.Equal(t, "minimal", s.Name)
	assert.Nil(t, s.Runs[0].Expect)
}

func TestParseScenario_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "unknown_field",
			yaml: "name: x\ndescription: d\nrun: []\n",
			want: "failed to parse YAML",
		},
		{
			name: "missing_name",
			yaml: "description: d\nruns: [{pages: []}]\n",
			want: "name is required",
		},
		{
			name: "missing_description",
			yaml: "name: x\nruns: [{pages: []}]\n",
			want: "description is required",
		},
		{
			name: "no_runs",
			yaml: "name: x\ndescription: d\n",
			want: "runs list is required",
		},
		{
			name: "unknown_feed",
			yaml: "name: x\ndescription: d\nruns: [{pages: [{feed: parcels}]}]\n",
			want: `unknown feed "parcels"`,
		},
		{
			name: "failing_page_with_rows",
			yaml: "name: x\ndescription: d\nruns: [{pages: [{feed: rolls, fail: boom, rows: [{a: b}]}]}]\n",
			want: "a failing page has no rows",
		},
		{
			name: "failing_page_not_last",
			yaml: "name: x\ndescription: d\nruns: [{pages: [{feed: rolls, fail: boom}, {feed: rolls}]}]\n",
			want: "only the last page may fail",
		},
		{
			name: "expect_without_status",
			yaml: "name: x\ndescription: d\nruns: [{pages: [], expect: {deferred: 1}}]\n",
			want: "status is required",
		},
		{
			name: "final_state_without_table",
			yaml: "name: x\ndescription: d\nruns: [{pages: []}]\nassertions: [{type: final_state, expect: {a: 1}}]\n",
			want: "table is required for final_state",
		},
		{
			name: "final_state_without_expect",
			yaml: "name: x\ndescription: d\nruns: [{pages: []}]\nassertions: [{type: final_state, table: t}]\n",
			want: "expect is required for final_state",
		},
		{
			name: "rejected_without_reason",
			yaml: "name: x\ndescription: d\nruns: [{pages: []}]\nassertions: [{type: rejected, feed: rolls}]\n",
			want: "feed and reason are required",
		},
		{
			name: "hash_unchanged_single_run",
			yaml: "name: x\ndescription: d\nruns: [{pages: []}]\nassertions: [{type: hash_unchanged}]\n",
			want: "needs at least two runs",
		},
		{
			name: "unknown_assertion",
			yaml: "name: x\ndescription: d\nruns: [{pages: []}]\nassertions: [{type: trace_order}]\n",
			want: `unknown assertion type "trace_order"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
