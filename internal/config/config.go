// Package config loads the cnyre YAML configuration.
//
// A file is merged over Default: keys it omits keep their default values.
// Unknown keys are an error, so a misspelt key cannot silently fall back to
// a default. The merged result is then checked against the embedded CUE
// schema (schema.cue).
package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaSource string

// DefaultCounties is the pipeline's home region.
var DefaultCounties = []string{"Cayuga", "Cortland", "Madison", "Onondaga", "Oswego"}

// Config is the effective configuration of a run or server.
type Config struct {
	Database DatabaseConfig `yaml:"database" json:"database"`
	Feeds    FeedsConfig    `yaml:"feeds" json:"feeds"`
	Scope    ScopeConfig    `yaml:"scope" json:"scope"`
	Gate     GateConfig     `yaml:"gate" json:"gate"`
	Loader   LoaderConfig   `yaml:"loader" json:"loader"`
	Enrich   EnrichConfig   `yaml:"enrich" json:"enrich"`
	Metrics  MetricsConfig  `yaml:"metrics" json:"metrics"`
	Server   ServerConfig   `yaml:"server" json:"server"`
}

// DatabaseConfig locates the SQLite file.
type DatabaseConfig struct {
	Path string `yaml:"path" json:"path"`
}

// FeedsConfig locates saved feed pages, one directory per feed.
type FeedsConfig struct {
	Rolls  FeedConfig `yaml:"rolls" json:"rolls"`
	Ratios FeedConfig `yaml:"ratios" json:"ratios"`
}

// FeedConfig locates one feed.
type FeedConfig struct {
	Dir string `yaml:"dir" json:"dir"`
}

// ScopeConfig limits what the normalizer accepts.
type ScopeConfig struct {
	// Counties to keep. Empty keeps every county.
	Counties     []string `yaml:"counties" json:"counties"`
	EarliestYear int      `yaml:"earliest_year" json:"earliest_year"`
}

// GateConfig bounds the integrity gate.
type GateConfig struct {
	ExtraPasses int `yaml:"extra_passes" json:"extra_passes"`
}

// LoaderConfig configures page transactions.
type LoaderConfig struct {
	PageRetries int `yaml:"page_retries" json:"page_retries"`
}

// EnrichConfig configures the trend enricher.
type EnrichConfig struct {
	FullRecompute bool `yaml:"full_recompute" json:"full_recompute"`
}

// MetricsConfig configures run metrics output.
type MetricsConfig struct {
	// Textfile, when set, receives the metrics after each run.
	Textfile string `yaml:"textfile" json:"textfile"`
}

// ServerConfig configures `cnyre serve`.
type ServerConfig struct {
	Addr           string   `yaml:"addr" json:"addr"`
	AllowedOrigins []string `yaml:"allowed_origins" json:"allowed_origins"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{Path: "cnyre.db"},
		Feeds: FeedsConfig{
			Rolls:  FeedConfig{Dir: "data/rolls"},
			Ratios: FeedConfig{Dir: "data/ratios"},
		},
		Scope: ScopeConfig{
			Counties:     append([]string(nil), DefaultCounties...),
			EarliestYear: 2009,
		},
		Gate:   GateConfig{ExtraPasses: 1},
		Loader: LoaderConfig{PageRetries: 1},
		Server: ServerConfig{
			Addr:           ":8080",
			AllowedOrigins: []string{"http://localhost:5173", "http://localhost:8080"},
		},
	}
}

// Load reads a YAML file over Default and validates the result. An empty
// path returns the validated defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		cfg := Default()
		return cfg, cfg.Validate()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML over Default and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration against the CUE schema.
func (c *Config) Validate() error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("config schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))

	// A null list would fail the list constraints; it means "empty".
	eff := *c
	if eff.Scope.Counties == nil {
		eff.Scope.Counties = []string{}
	}
	if eff.Server.AllowedOrigins == nil {
		eff.Server.AllowedOrigins = []string{}
	}

	v := def.Unify(ctx.Encode(eff))
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return formatCUEError(err)
	}
	return nil
}

// ValidationError reports the first configuration value the schema
// rejected.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid config: " + e.Message
	}
	return fmt.Sprintf("invalid config: %s: %s", e.Field, e.Message)
}

// formatCUEError reduces a CUE error list to its first error, keyed by
// config path.
func formatCUEError(err error) error {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return &ValidationError{Message: err.Error()}
	}
	first := errs[0]
	format, args := first.Msg()
	var path []string
	for _, sel := range first.Path() {
		if !strings.HasPrefix(sel, "#") {
			path = append(path, sel)
		}
	}
	return &ValidationError{
		Field:   strings.Join(path, "."),
		Message: fmt.Sprintf(format, args...),
	}
}
