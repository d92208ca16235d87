package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "cnyre.db", cfg.Database.Path)
	assert.Equal(t, DefaultCounties, cfg.Scope.Counties)
	assert.Equal(t, 2009, cfg.Scope.EarliestYear)
	assert.Equal(t, 1, cfg.Gate.ExtraPasses)
	assert.Equal(t, 1, cfg.Loader.PageRetries)
	assert.False(t, cfg.Enrich.FullRecompute)
	assert.Equal(t, ":8080", cfg.Server.Addr)
}

func TestParse_MergesOverDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
database:
  path: /var/lib/cnyre/cnyre.db
loader:
  page_retries: 0
enrich:
  full_recompute: true
`))
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/cnyre/cnyre.db", cfg.Database.Path)
	assert.Equal(t, 0, cfg.Loader.PageRetries, "explicit zero is kept")
	assert.True(t, cfg.Enrich.FullRecompute)
	assert.Equal(t, 1, cfg.Gate.ExtraPasses, "omitted key keeps its default")
	assert.Equal(t, "data/rolls", cfg.Feeds.Rolls.Dir)
}

func TestParse_EmptyCountiesMeansAll(t *testing.T) {
	cfg, err := Parse([]byte("scope:\n  counties: []\n"))
	require.NoError(t, err)
	assert.Empty(t, cfg.Scope.Counties)

	cfg, err = Parse([]byte("scope:\n  counties:\n"))
	require.NoError(t, err)
	assert.Empty(t, cfg.Scope.Counties)
}

func TestParse_EmptyDocument(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestParse_UnknownKey(t *testing.T) {
	_, err := Parse([]byte("gate:\n  extra_pass: 2\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "extra_pass")
}

func TestValidate_Constraints(t *testing.T) {
	tests := []struct {
		name  string
		yaml  string
		field string
	}{
		{"extra passes above cap", "gate:\n  extra_passes: 4\n", "gate.extra_passes"},
		{"extra passes zero", "gate:\n  extra_passes: 0\n", "gate.extra_passes"},
		{"negative retries", "loader:\n  page_retries: -1\n", "loader.page_retries"},
		{"empty db path", "database:\n  path: \"\"\n", "database.path"},
		{"bad addr", "server:\n  addr: localhost\n", "server.addr"},
		{"ancient year", "scope:\n  earliest_year: 1900\n", "scope.earliest_year"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cnyre.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  addr: 127.0.0.1:9000\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Addr)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
