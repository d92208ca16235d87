package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/cnyre/internal/model"
)

// WriteBatch upserts a batch in one all-or-nothing transaction.
//
// Rows are written ratios first, then properties, then assessments, so the
// assessments' foreign keys see properties written by the same batch. Each
// row is keyed on its natural key:
//   - ratios: (municipality_code, rate_year), all columns replaced
//   - properties: id, descriptive columns replaced only when the incoming
//     last_roll_year is not older than the stored one
//   - assessments: (property_id, roll_year), the whole row replaced
//
// Sink rows of earlier runs for the ratios and assessments written are
// deleted in the same transaction: once a key loads, its old rejections no
// longer describe the store.
//
// On any error the transaction is rolled back and nothing from the batch
// is visible.
func (s *Store) WriteBatch(ctx context.Context, batch model.Batch) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write batch: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	if err := writeRatios(ctx, tx, batch.Ratios); err != nil {
		return fmt.Errorf("write batch: %w", err)
	}
	if err := writeProperties(ctx, tx, batch.Properties); err != nil {
		return fmt.Errorf("write batch: %w", err)
	}
	if err := writeAssessments(ctx, tx, batch.Assessments); err != nil {
		return fmt.Errorf("write batch: %w", err)
	}
	if err := clearRejections(ctx, tx, batch); err != nil {
		return fmt.Errorf("write batch: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write batch: commit: %w", err)
	}
	return nil
}

func writeRatios(ctx context.Context, tx *sql.Tx, ratios []model.Ratio) error {
	if len(ratios) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO municipality_assessment_ratios
		(municipality_code, rate_year, municipality_name, county_name, municipality_type, residential_assessment_ratio)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(municipality_code, rate_year) DO UPDATE SET
			municipality_name            = excluded.municipality_name,
			county_name                  = excluded.county_name,
			municipality_type            = excluded.municipality_type,
			residential_assessment_ratio = excluded.residential_assessment_ratio
	`)
	if err != nil {
		return fmt.Errorf("prepare ratio upsert: %w", err)
	}
	defer stmt.Close()

	for _, r := range ratios {
		_, err := stmt.ExecContext(ctx,
			r.MunicipalityCode,
			r.RateYear,
			r.MunicipalityName,
			r.CountyName,
			r.MunicipalityType,
			formatDecimal(r.Ratio, model.RatioPlaces),
		)
		if err != nil {
			return fmt.Errorf("upsert ratio %s: %w", r.Key(), err)
		}
	}
	return nil
}

func writeProperties(ctx context.Context, tx *sql.Tx, props []model.Property) error {
	if len(props) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO properties
		(id, swis_code, print_key_code, municipality_code, municipality_name, county_name,
		 school_district_code, school_district_name, address_number, address_street,
		 mailing_city, mailing_state, zip, last_roll_year)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			municipality_code    = excluded.municipality_code,
			municipality_name    = excluded.municipality_name,
			county_name          = excluded.county_name,
			school_district_code = excluded.school_district_code,
			school_district_name = excluded.school_district_name,
			address_number       = excluded.address_number,
			address_street       = excluded.address_street,
			mailing_city         = excluded.mailing_city,
			mailing_state        = excluded.mailing_state,
			zip                  = excluded.zip,
			last_roll_year       = excluded.last_roll_year
		WHERE excluded.last_roll_year >= properties.last_roll_year
	`)
	if err != nil {
		return fmt.Errorf("prepare property upsert: %w", err)
	}
	defer stmt.Close()

	for _, p := range props {
		_, err := stmt.ExecContext(ctx,
			p.ID,
			p.SwisCode,
			p.PrintKeyCode,
			p.MunicipalityCode,
			p.MunicipalityName,
			p.CountyName,
			p.SchoolDistrictCode,
			p.SchoolDistrictName,
			p.AddressNumber,
			p.AddressStreet,
			p.MailingCity,
			p.MailingState,
			p.Zip,
			p.LastRollYear,
		)
		if err != nil {
			return fmt.Errorf("upsert property %s: %w", p.ID, err)
		}
	}
	return nil
}

func writeAssessments(ctx context.Context, tx *sql.Tx, rows []model.Assessment) error {
	if len(rows) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO ny_property_assessments
		(property_id, roll_year, property_class, property_class_description, front, depth,
		 full_market_value, assessment_land, assessment_total,
		 county_taxable_value, town_taxable_value, school_taxable_value)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(property_id, roll_year) DO UPDATE SET
			property_class             = excluded.property_class,
			property_class_description = excluded.property_class_description,
			front                      = excluded.front,
			depth                      = excluded.depth,
			full_market_value          = excluded.full_market_value,
			assessment_land            = excluded.assessment_land,
			assessment_total           = excluded.assessment_total,
			county_taxable_value       = excluded.county_taxable_value,
			town_taxable_value         = excluded.town_taxable_value,
			school_taxable_value       = excluded.school_taxable_value
	`)
	if err != nil {
		return fmt.Errorf("prepare assessment upsert: %w", err)
	}
	defer stmt.Close()

	for _, a := range rows {
		_, err := stmt.ExecContext(ctx,
			a.PropertyID,
			a.RollYear,
			a.PropertyClass,
			a.PropertyClassDescription,
			formatDecimal(a.Front, model.DimensionPlaces),
			formatDecimal(a.Depth, model.DimensionPlaces),
			a.FullMarketValue,
			a.AssessmentLand,
			a.AssessmentTotal,
			a.CountyTaxableValue,
			a.TownTaxableValue,
			a.SchoolTaxableValue,
		)
		if err != nil {
			return fmt.Errorf("upsert assessment %s: %w", a.Key(), err)
		}
	}
	return nil
}

// clearRejections drops sink rows keyed by the natural keys of a loaded
// batch, whatever their reason. Records rejected before their identity
// resolved are keyed by a field hash and are never matched here.
func clearRejections(ctx context.Context, tx *sql.Tx, batch model.Batch) error {
	if len(batch.Ratios) == 0 && len(batch.Assessments) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, `
		DELETE FROM rejected_records WHERE feed = ? AND source_key = ?
	`)
	if err != nil {
		return fmt.Errorf("prepare rejection delete: %w", err)
	}
	defer stmt.Close()

	for _, r := range batch.Ratios {
		if _, err := stmt.ExecContext(ctx, string(model.FeedRatios), r.Key().String()); err != nil {
			return fmt.Errorf("clear rejections for ratio %s: %w", r.Key(), err)
		}
	}
	for _, a := range batch.Assessments {
		if _, err := stmt.ExecContext(ctx, string(model.FeedRolls), a.Key().String()); err != nil {
			return fmt.Errorf("clear rejections for assessment %s: %w", a.Key(), err)
		}
	}
	return nil
}
