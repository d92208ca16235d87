package pipeline

import (
	"encoding/json"
	"time"

	"github.com/roach88/cnyre/internal/enrich"
	"github.com/roach88/cnyre/internal/model"
	"github.com/roach88/cnyre/internal/store"
)

// Statuses lists every run status, in severity order.
var Statuses = []string{store.RunSucceeded, store.RunCompletedRejection, store.RunFailed}

// Report is the structured summary of one run. It is stored as JSON in
// pipeline_runs and printed by `cnyre run`.
type Report struct {
	RunID      string    `json:"run_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Status     string    `json:"status"`

	// Fetched counts raw records per feed.
	Fetched map[model.Feed]int `json:"fetched"`

	// Normalized counts entities produced by the normalizer.
	Normalized model.Counts `json:"normalized"`

	// Filtered counts valid records outside the county scope.
	Filtered int `json:"filtered"`

	// Rejected tallies rejected records by reason.
	Rejected map[model.ErrorCode]int `json:"rejected"`

	// Deferred counts assessments the gate held back at least once.
	Deferred    int `json:"deferred"`
	RetryPasses int `json:"retry_passes"`

	Loaded   model.Counts `json:"loaded"`
	Enriched enrich.Stats `json:"enriched"`

	FetchFailures []string `json:"fetch_failures,omitempty"`
	LoadFailures  []string `json:"load_failures,omitempty"`

	// Error is set when the run failed.
	Error string `json:"error,omitempty"`
}

func newReport(runID string, started time.Time) *Report {
	return &Report{
		RunID:     runID,
		StartedAt: started,
		Fetched:   make(map[model.Feed]int),
		Rejected:  make(map[model.ErrorCode]int),
	}
}

// TotalFetched sums Fetched over all feeds.
func (r *Report) TotalFetched() int {
	n := 0
	for _, c := range r.Fetched {
		n += c
	}
	return n
}

// TotalRejected sums the rejection tally.
func (r *Report) TotalRejected() int {
	n := 0
	for _, c := range r.Rejected {
		n += c
	}
	return n
}

// Clean reports whether the run completed with nothing dropped.
func (r *Report) Clean() bool {
	return r.TotalRejected() == 0 &&
		len(r.LoadFailures) == 0 &&
		len(r.FetchFailures) == 0 &&
		len(r.Enriched.Inconsistent) == 0
}

// JSON encodes the report for storage.
func (r *Report) JSON() ([]byte, error) {
	return json.Marshal(r)
}
