package enrich

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/roach88/cnyre/internal/model"
)

// Store is the enricher's view of persistence.
type Store interface {
	AssessmentHistory(ctx context.Context, propertyID string) ([]model.HistoryPoint, error)
	ReplaceTrends(ctx context.Context, propertyID string, points []model.TrendPoint, summary *model.TrendSummary) error
	DeleteTrends(ctx context.Context, propertyID string) error
}

// Stats summarizes one enrichment run.
type Stats struct {
	Properties   int      `json:"properties"`
	Points       int      `json:"points"`
	Summaries    int      `json:"summaries"`
	Inconsistent []string `json:"inconsistent,omitempty"`
}

// Enricher recomputes derived rows for a set of properties.
type Enricher struct {
	store  Store
	logger *slog.Logger
}

// New creates an Enricher. A nil logger means slog.Default().
func New(s Store, logger *slog.Logger) *Enricher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Enricher{store: s, logger: logger}
}

// Run recomputes each property's trend rows from its current assessments,
// replacing whatever was derived before. Properties are processed in ID
// order.
//
// A property whose history references a missing ratio is an enrichment
// inconsistency: its derived rows are deleted, it is listed in
// Stats.Inconsistent, and the run continues with the next property. Store
// errors end the run.
func (e *Enricher) Run(ctx context.Context, propertyIDs []string) (Stats, error) {
	var stats Stats
	for _, id := range sortedUnique(propertyIDs) {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		history, err := e.store.AssessmentHistory(ctx, id)
		if err != nil {
			return stats, fmt.Errorf("enrich %s: %w", id, err)
		}

		points, summary, err := Compute(id, history)
		var inconsistent *model.EnrichmentInconsistency
		if errors.As(err, &inconsistent) {
			e.logger.Error("enrichment inconsistency",
				"property_id", id,
				"reason", model.CodeEnrichmentInconsistency,
				"error", err)
			if err := e.store.DeleteTrends(ctx, id); err != nil {
				return stats, fmt.Errorf("enrich %s: %w", id, err)
			}
			stats.Inconsistent = append(stats.Inconsistent, id)
			continue
		}
		if err != nil {
			return stats, fmt.Errorf("enrich %s: %w", id, err)
		}

		if err := e.store.ReplaceTrends(ctx, id, points, summary); err != nil {
			return stats, fmt.Errorf("enrich %s: %w", id, err)
		}
		stats.Properties++
		stats.Points += len(points)
		if summary != nil {
			stats.Summaries++
		}
	}
	return stats, nil
}

func sortedUnique(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}
