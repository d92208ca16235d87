package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/roach88/cnyre/internal/model"
)

// PropertyMunicipality returns the stored municipality code of a property.
func (s *Store) PropertyMunicipality(ctx context.Context, propertyID string) (string, bool, error) {
	var code string
	err := s.db.QueryRowContext(ctx,
		`SELECT municipality_code FROM properties WHERE id = ?`, propertyID,
	).Scan(&code)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("lookup property %s: %w", propertyID, err)
	}
	return code, true, nil
}

// HasRatio reports whether a ratio is stored for the key.
func (s *Store) HasRatio(ctx context.Context, key model.RatioKey) (bool, error) {
	_, ok, err := s.Ratio(ctx, key)
	return ok, err
}

// Ratio returns the stored ratio for the key.
func (s *Store) Ratio(ctx context.Context, key model.RatioKey) (decimal.Decimal, bool, error) {
	var text string
	err := s.db.QueryRowContext(ctx, `
		SELECT residential_assessment_ratio
		FROM municipality_assessment_ratios
		WHERE municipality_code = ? AND rate_year = ?
	`, key.MunicipalityCode, key.RateYear).Scan(&text)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, false, nil
	}
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("lookup ratio %s: %w", key, err)
	}
	r, err := parseDecimal("residential_assessment_ratio", text)
	if err != nil {
		return decimal.Zero, false, err
	}
	return r, true, nil
}
