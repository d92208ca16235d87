package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/cnyre/internal/model"
)

// Scenario defines an end-to-end pipeline scenario.
type Scenario struct {
	// Name uniquely identifies this scenario. It also names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Options configures every run of the scenario.
	Options Options `yaml:"options,omitempty"`

	// Runs are executed in order against the same store.
	Runs []RunStep `yaml:"runs"`

	// Assertions validate the store after the last run.
	Assertions []Assertion `yaml:"assertions"`
}

// Options mirrors the pipeline options a scenario may set. Zero values mean
// the pipeline defaults, except Counties, which defaults to Onondaga.
type Options struct {
	Counties      []string `yaml:"counties,omitempty"`
	EarliestYear  int      `yaml:"earliest_year,omitempty"`
	LatestYear    int      `yaml:"latest_year,omitempty"`
	ExtraPasses   int      `yaml:"extra_passes,omitempty"`
	PageRetries   int      `yaml:"page_retries,omitempty"`
	FullRecompute bool     `yaml:"full_recompute,omitempty"`
}

// RunStep is one pipeline run.
type RunStep struct {
	// Pages are served in order through one source.
	Pages []PageSpec `yaml:"pages"`

	// Expect checks the run report. If nil, only a non-failed status is
	// required.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// PageSpec is one feed page.
type PageSpec struct {
	// Feed is "rolls" or "ratios".
	Feed string `yaml:"feed"`

	// Raw disables merging rows over the feed's well-formed record.
	Raw bool `yaml:"raw,omitempty"`

	// Rows are the page's records as published (string fields).
	Rows []map[string]string `yaml:"rows"`

	// Fail, when set, makes the source fail at this page with this message.
	Fail string `yaml:"fail,omitempty"`
}

// ExpectClause checks a run report. Nil fields are not checked.
type ExpectClause struct {
	// Status is the run status (succeeded, completed_with_rejections,
	// failed).
	Status string `yaml:"status"`

	// Error is a substring of the run's fatal error.
	Error string `yaml:"error,omitempty"`

	// Rejected is the exact rejection tally by reason code.
	Rejected map[string]int `yaml:"rejected,omitempty"`

	Filtered      *int          `yaml:"filtered,omitempty"`
	Deferred      *int          `yaml:"deferred,omitempty"`
	RetryPasses   *int          `yaml:"retry_passes,omitempty"`
	Loaded        *model.Counts `yaml:"loaded,omitempty"`
	Enriched      *int          `yaml:"enriched,omitempty"`
	Inconsistent  []string      `yaml:"inconsistent,omitempty"`
	LoadFailures  *int          `yaml:"load_failures,omitempty"`
	FetchFailures *int          `yaml:"fetch_failures,omitempty"`
}

// Assertion validates the store after the last run.
type Assertion struct {
	// Type specifies the assertion type:
	// - "final_state": one row of Table matching Where has the Expect values
	// - "row_count": Count rows of Table match Where
	// - "rejected": the last run's sink holds a row matching Feed, Reason
	//   and, when set, SourceKey and Field
	// - "hash_unchanged": the last two runs left the same content hash
	Type string `yaml:"type"`

	// Table is the table name (final_state, row_count).
	Table string `yaml:"table,omitempty"`

	// Where specifies column filters. All must match exactly.
	Where map[string]any `yaml:"where,omitempty"`

	// Expect contains expected column values (final_state).
	Expect map[string]any `yaml:"expect,omitempty"`

	// Count is the expected number of rows (row_count).
	Count int `yaml:"count,omitempty"`

	// Feed, Reason, SourceKey and Field match a sink row (rejected).
	Feed      string `yaml:"feed,omitempty"`
	Reason    string `yaml:"reason,omitempty"`
	SourceKey string `yaml:"source_key,omitempty"`
	Field     string `yaml:"field,omitempty"`
}

// Assertion type constants.
const (
	AssertFinalState    = "final_state"
	AssertRowCount      = "row_count"
	AssertRejected      = "rejected"
	AssertHashUnchanged = "hash_unchanged"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Parse YAML with strict field validation (catches typos like "assertion:" vs "assertions:")
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Runs) == 0 {
		return fmt.Errorf("runs list is required and must be non-empty")
	}

	for i, run := range s.Runs {
		for j, page := range run.Pages {
			switch model.Feed(page.Feed) {
			case model.FeedRolls, model.FeedRatios:
			default:
				return fmt.Errorf("runs[%d].pages[%d]: unknown feed %q", i, j, page.Feed)
			}
			if page.Fail != "" && len(page.Rows) > 0 {
				return fmt.Errorf("runs[%d].pages[%d]: a failing page has no rows", i, j)
			}
			if page.Fail != "" && j != len(run.Pages)-1 {
				return fmt.Errorf("runs[%d].pages[%d]: only the last page may fail", i, j)
			}
		}
		if run.Expect != nil && run.Expect.Status == "" {
			return fmt.Errorf("runs[%d].expect: status is required", i)
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion, len(s.Runs)); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion, runs int) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertFinalState:
		if a.Table == "" {
			return fmt.Errorf("assertions[%d]: table is required for final_state", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
	case AssertRowCount:
		if a.Table == "" {
			return fmt.Errorf("assertions[%d]: table is required for row_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for row_count", index)
		}
	case AssertRejected:
		if a.Feed == "" || a.Reason == "" {
			return fmt.Errorf("assertions[%d]: feed and reason are required for rejected", index)
		}
	case AssertHashUnchanged:
		if runs < 2 {
			return fmt.Errorf("assertions[%d]: hash_unchanged needs at least two runs", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
