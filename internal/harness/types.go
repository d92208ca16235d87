package harness

import (
	"github.com/roach88/cnyre/internal/model"
	"github.com/roach88/cnyre/internal/pipeline"
	"github.com/roach88/cnyre/internal/store"
)

// RunOutcome is what one pipeline run of a scenario produced.
type RunOutcome struct {
	Report *pipeline.Report

	// Err is the run's fatal error, if any.
	Err error

	// Rejections is the sink rows written by the run.
	Rejections []store.Rejection

	// ContentHash is the store's content hash after the run.
	ContentHash string
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every expect clause and assertion held.
	Pass bool `json:"pass"`

	// Runs holds one outcome per scenario run, in order.
	Runs []RunOutcome `json:"-"`

	// Trends is the derived trend table after the last run.
	Trends []model.TrendPoint `json:"-"`

	// Errors lists failed expectations. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Last returns the final run's outcome.
func (r *Result) Last() *RunOutcome {
	if len(r.Runs) == 0 {
		return nil
	}
	return &r.Runs[len(r.Runs)-1]
}
