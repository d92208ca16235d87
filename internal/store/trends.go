package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/cnyre/internal/model"
)

// AssessmentHistory returns a property's assessments ordered by roll year,
// each joined with the ratio for (property.municipality_code, roll_year).
func (s *Store) AssessmentHistory(ctx context.Context, propertyID string) ([]model.HistoryPoint, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT a.roll_year, p.municipality_code, a.full_market_value, a.assessment_total,
		       r.residential_assessment_ratio
		FROM ny_property_assessments a
		JOIN properties p ON p.id = a.property_id
		LEFT JOIN municipality_assessment_ratios r
		       ON r.municipality_code = p.municipality_code AND r.rate_year = a.roll_year
		WHERE a.property_id = ?
		ORDER BY a.roll_year ASC
	`, propertyID)
	if err != nil {
		return nil, fmt.Errorf("query history %s: %w", propertyID, err)
	}
	defer rows.Close()

	var history []model.HistoryPoint
	for rows.Next() {
		var hp model.HistoryPoint
		var ratio sql.NullString
		if err := rows.Scan(&hp.RollYear, &hp.MunicipalityCode, &hp.FullMarketValue, &hp.AssessmentTotal, &ratio); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		if hp.Ratio, err = parseNullDecimal("residential_assessment_ratio", ratio); err != nil {
			return nil, err
		}
		history = append(history, hp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return history, nil
}

// ReplaceTrends swaps a property's derived rows for the given ones in one
// transaction: delete-then-insert, never a partial patch. A nil summary
// leaves the property without one.
func (s *Store) ReplaceTrends(ctx context.Context, propertyID string, points []model.TrendPoint, summary *model.TrendSummary) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("replace trends: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	if err := deleteTrends(ctx, tx, propertyID); err != nil {
		return fmt.Errorf("replace trends: %w", err)
	}

	for _, tp := range points {
		if tp.PropertyID != propertyID {
			return fmt.Errorf("replace trends: point for %s in %s", tp.PropertyID, propertyID)
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO property_trends
			(property_id, roll_year, full_value, residential_assessment_ratio,
			 full_value_change_pct, market_value_change_pct)
			VALUES (?, ?, ?, ?, ?, ?)
		`,
			tp.PropertyID,
			tp.RollYear,
			tp.FullValue,
			formatDecimal(tp.Ratio, model.RatioPlaces),
			formatNullDecimal(tp.FullValueChangePct, model.PercentPlaces),
			formatNullDecimal(tp.MarketValueChangePct, model.PercentPlaces),
		)
		if err != nil {
			return fmt.Errorf("replace trends: insert %s@%d: %w", tp.PropertyID, tp.RollYear, err)
		}
	}

	if summary != nil {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO property_trend_summaries
			(property_id, first_roll_year, last_roll_year, years_observed,
			 total_change_pct, mean_change_pct, slope_per_year)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`,
			propertyID,
			summary.FirstRollYear,
			summary.LastRollYear,
			summary.YearsObserved,
			formatNullDecimal(summary.TotalChangePct, model.PercentPlaces),
			formatNullDecimal(summary.MeanChangePct, model.PercentPlaces),
			formatNullDecimal(summary.SlopePerYear, model.SlopePlaces),
		)
		if err != nil {
			return fmt.Errorf("replace trends: insert summary %s: %w", propertyID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("replace trends: commit: %w", err)
	}
	return nil
}

// DeleteTrends removes a property's derived rows.
func (s *Store) DeleteTrends(ctx context.Context, propertyID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("delete trends: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	if err := deleteTrends(ctx, tx, propertyID); err != nil {
		return fmt.Errorf("delete trends: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("delete trends: commit: %w", err)
	}
	return nil
}

func deleteTrends(ctx context.Context, tx *sql.Tx, propertyID string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM property_trends WHERE property_id = ?`, propertyID); err != nil {
		return fmt.Errorf("delete trend points %s: %w", propertyID, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM property_trend_summaries WHERE property_id = ?`, propertyID); err != nil {
		return fmt.Errorf("delete trend summary %s: %w", propertyID, err)
	}
	return nil
}

// AllPropertyIDs returns every stored property ID in key order.
func (s *Store) AllPropertyIDs(ctx context.Context) ([]string, error) {
	return s.propertyIDs(ctx, `SELECT id FROM properties ORDER BY id COLLATE BINARY ASC`)
}

// PropertyIDsInMunicipality returns the IDs of the properties currently
// assigned to a municipality, in key order. A reloaded ratio changes the
// full values of exactly these properties.
func (s *Store) PropertyIDsInMunicipality(ctx context.Context, code string) ([]string, error) {
	return s.propertyIDs(ctx, `
		SELECT id FROM properties INDEXED BY idx_properties_municipality
		WHERE municipality_code = ?
		ORDER BY id COLLATE BINARY ASC
	`, code)
}

func (s *Store) propertyIDs(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query property ids: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan property id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate property ids: %w", err)
	}
	return ids, nil
}
