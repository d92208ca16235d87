package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/cnyre/internal/model"
	"github.com/roach88/cnyre/internal/queryir"
	"github.com/roach88/cnyre/internal/querysql"
)

// ErrNotFound is returned by single-row reads when the row does not exist.
var ErrNotFound = errors.New("not found")

// QueryProperties is the query facade read: properties joined with their
// assessments and trend points, filtered by class, zip and school district,
// ordered by (property_id, roll_year).
//
// Returns an empty slice (not nil) when nothing matches.
func (s *Store) QueryProperties(ctx context.Context, filters queryir.Filters, page queryir.Page) ([]model.PropertyRow, error) {
	return s.Query(ctx, filters.Select(page))
}

// Query runs an arbitrary facade query.
func (s *Store) Query(ctx context.Context, q queryir.Query) ([]model.PropertyRow, error) {
	stmt, err := querysql.Compile(q)
	if err != nil {
		return nil, fmt.Errorf("query properties: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return nil, fmt.Errorf("query properties: %w", err)
	}
	defer rows.Close()

	out := []model.PropertyRow{}
	for rows.Next() {
		row, err := scanPropertyRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate properties: %w", err)
	}
	return out, nil
}

// ExplainQuery returns the EXPLAIN QUERY PLAN detail lines of a facade
// query, outermost first.
func (s *Store) ExplainQuery(ctx context.Context, q queryir.Query) ([]string, error) {
	stmt, err := querysql.Compile(q)
	if err != nil {
		return nil, fmt.Errorf("explain: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, "EXPLAIN QUERY PLAN "+stmt.SQL, stmt.Args...)
	if err != nil {
		return nil, fmt.Errorf("explain: %w", err)
	}
	defer rows.Close()

	var plan []string
	for rows.Next() {
		var id, parent, notused int
		var detail string
		if err := rows.Scan(&id, &parent, &notused, &detail); err != nil {
			return nil, fmt.Errorf("explain: scan: %w", err)
		}
		plan = append(plan, detail)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("explain: iterate: %w", err)
	}
	return plan, nil
}

// scanPropertyRow scans one row in querysql.Columns order.
func scanPropertyRow(rows *sql.Rows) (model.PropertyRow, error) {
	var r model.PropertyRow
	p := &r.Property
	a := &r.Assessment
	var front, depth string
	var fullValue sql.NullInt64
	var ratio, fvChange, mvChange sql.NullString

	err := rows.Scan(
		&p.ID, &p.SwisCode, &p.PrintKeyCode, &p.MunicipalityCode, &p.MunicipalityName,
		&p.CountyName, &p.SchoolDistrictCode, &p.SchoolDistrictName, &p.AddressNumber,
		&p.AddressStreet, &p.MailingCity, &p.MailingState, &p.Zip, &p.LastRollYear,
		&a.RollYear, &a.PropertyClass, &a.PropertyClassDescription, &front, &depth,
		&a.FullMarketValue, &a.AssessmentLand, &a.AssessmentTotal,
		&a.CountyTaxableValue, &a.TownTaxableValue, &a.SchoolTaxableValue,
		&fullValue, &ratio, &fvChange, &mvChange,
	)
	if err != nil {
		return model.PropertyRow{}, fmt.Errorf("scan property row: %w", err)
	}
	a.PropertyID = p.ID
	if a.Front, err = parseDecimal("front", front); err != nil {
		return model.PropertyRow{}, err
	}
	if a.Depth, err = parseDecimal("depth", depth); err != nil {
		return model.PropertyRow{}, err
	}

	if fullValue.Valid && ratio.Valid {
		tp := &model.TrendPoint{PropertyID: p.ID, RollYear: a.RollYear, FullValue: fullValue.Int64}
		if tp.Ratio, err = parseDecimal("residential_assessment_ratio", ratio.String); err != nil {
			return model.PropertyRow{}, err
		}
		if tp.FullValueChangePct, err = parseNullDecimal("full_value_change_pct", fvChange); err != nil {
			return model.PropertyRow{}, err
		}
		if tp.MarketValueChangePct, err = parseNullDecimal("market_value_change_pct", mvChange); err != nil {
			return model.PropertyRow{}, err
		}
		r.Trend = tp
	}
	return r, nil
}

// GetProperty returns everything stored about one property.
// Returns ErrNotFound if the property does not exist.
func (s *Store) GetProperty(ctx context.Context, id string) (model.PropertyDetail, error) {
	var d model.PropertyDetail
	p := &d.Property
	err := s.db.QueryRowContext(ctx, `
		SELECT id, swis_code, print_key_code, municipality_code, municipality_name, county_name,
		       school_district_code, school_district_name, address_number, address_street,
		       mailing_city, mailing_state, zip, last_roll_year
		FROM properties
		WHERE id = ?
	`, id).Scan(
		&p.ID, &p.SwisCode, &p.PrintKeyCode, &p.MunicipalityCode, &p.MunicipalityName,
		&p.CountyName, &p.SchoolDistrictCode, &p.SchoolDistrictName, &p.AddressNumber,
		&p.AddressStreet, &p.MailingCity, &p.MailingState, &p.Zip, &p.LastRollYear,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return model.PropertyDetail{}, fmt.Errorf("property %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return model.PropertyDetail{}, fmt.Errorf("get property %s: %w", id, err)
	}

	if d.Assessments, err = s.readAssessments(ctx, id); err != nil {
		return model.PropertyDetail{}, err
	}
	if d.Trends, err = s.readTrends(ctx, id); err != nil {
		return model.PropertyDetail{}, err
	}
	if d.Summary, err = s.readSummary(ctx, id); err != nil {
		return model.PropertyDetail{}, err
	}
	return d, nil
}

func (s *Store) readAssessments(ctx context.Context, id string) ([]model.Assessment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT property_id, roll_year, property_class, property_class_description, front, depth,
		       full_market_value, assessment_land, assessment_total,
		       county_taxable_value, town_taxable_value, school_taxable_value
		FROM ny_property_assessments
		WHERE property_id = ?
		ORDER BY roll_year ASC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("query assessments: %w", err)
	}
	defer rows.Close()

	out := []model.Assessment{}
	for rows.Next() {
		var a model.Assessment
		var front, depth string
		if err := rows.Scan(&a.PropertyID, &a.RollYear, &a.PropertyClass, &a.PropertyClassDescription,
			&front, &depth, &a.FullMarketValue, &a.AssessmentLand, &a.AssessmentTotal,
			&a.CountyTaxableValue, &a.TownTaxableValue, &a.SchoolTaxableValue); err != nil {
			return nil, fmt.Errorf("scan assessment: %w", err)
		}
		if a.Front, err = parseDecimal("front", front); err != nil {
			return nil, err
		}
		if a.Depth, err = parseDecimal("depth", depth); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate assessments: %w", err)
	}
	return out, nil
}

// ReadTrends returns a property's trend points ordered by roll year.
func (s *Store) ReadTrends(ctx context.Context, id string) ([]model.TrendPoint, error) {
	return s.readTrends(ctx, id)
}

func (s *Store) readTrends(ctx context.Context, id string) ([]model.TrendPoint, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT property_id, roll_year, full_value, residential_assessment_ratio,
		       full_value_change_pct, market_value_change_pct
		FROM property_trends
		WHERE property_id = ?
		ORDER BY roll_year ASC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("query trends: %w", err)
	}
	defer rows.Close()

	out := []model.TrendPoint{}
	for rows.Next() {
		var tp model.TrendPoint
		var ratio string
		var fvChange, mvChange sql.NullString
		if err := rows.Scan(&tp.PropertyID, &tp.RollYear, &tp.FullValue, &ratio, &fvChange, &mvChange); err != nil {
			return nil, fmt.Errorf("scan trend: %w", err)
		}
		if tp.Ratio, err = parseDecimal("residential_assessment_ratio", ratio); err != nil {
			return nil, err
		}
		if tp.FullValueChangePct, err = parseNullDecimal("full_value_change_pct", fvChange); err != nil {
			return nil, err
		}
		if tp.MarketValueChangePct, err = parseNullDecimal("market_value_change_pct", mvChange); err != nil {
			return nil, err
		}
		out = append(out, tp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trends: %w", err)
	}
	return out, nil
}

// ReadSummary returns a property's trend summary, or nil if it has none.
func (s *Store) ReadSummary(ctx context.Context, id string) (*model.TrendSummary, error) {
	return s.readSummary(ctx, id)
}

func (s *Store) readSummary(ctx context.Context, id string) (*model.TrendSummary, error) {
	var ts model.TrendSummary
	var total, mean, slope sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT property_id, first_roll_year, last_roll_year, years_observed,
		       total_change_pct, mean_change_pct, slope_per_year
		FROM property_trend_summaries
		WHERE property_id = ?
	`, id).Scan(&ts.PropertyID, &ts.FirstRollYear, &ts.LastRollYear, &ts.YearsObserved, &total, &mean, &slope)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query summary: %w", err)
	}
	if ts.TotalChangePct, err = parseNullDecimal("total_change_pct", total); err != nil {
		return nil, err
	}
	if ts.MeanChangePct, err = parseNullDecimal("mean_change_pct", mean); err != nil {
		return nil, err
	}
	if ts.SlopePerYear, err = parseNullDecimal("slope_per_year", slope); err != nil {
		return nil, err
	}
	return &ts, nil
}
