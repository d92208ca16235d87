package model

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Feed identifies one of the source datasets.
type Feed string

const (
	// FeedRolls is the Open NY "property assessment data from local
	// assessment rolls" dataset (7vem-aaz7).
	FeedRolls Feed = "rolls"

	// FeedRatios is the Open NY residential assessment ratio dataset
	// (bsmp-6um6).
	FeedRatios Feed = "ratios"
)

// Precision of persisted decimals.
const (
	RatioPlaces     = 4
	PercentPlaces   = 4
	DimensionPlaces = 2
	SlopePlaces     = 2
)

// Entity is a normalized record ready for the integrity gate.
//
// This is a sealed interface - only types in this package implement it.
type Entity interface {
	entityNode()
}

// RatioKey is the natural key of a MunicipalityAssessmentRatio.
type RatioKey struct {
	MunicipalityCode string
	RateYear         int
}

func (k RatioKey) String() string {
	return fmt.Sprintf("%s/%d", k.MunicipalityCode, k.RateYear)
}

// Ratio is one municipality's residential assessment ratio for a year.
// Ratio is a fraction (0.8800), not the published percentage (88.00).
type Ratio struct {
	MunicipalityCode string          `json:"municipality_code"`
	RateYear         int             `json:"rate_year"`
	MunicipalityName string          `json:"municipality_name"`
	CountyName       string          `json:"county_name"`
	MunicipalityType string          `json:"municipality_type"`
	Ratio            decimal.Decimal `json:"residential_assessment_ratio"`
}

func (Ratio) entityNode() {}

// Key returns the ratio's natural key.
func (r Ratio) Key() RatioKey {
	return RatioKey{MunicipalityCode: r.MunicipalityCode, RateYear: r.RateYear}
}

// Property is a parcel. Descriptive fields are last-write-wins keyed on
// LastRollYear: a newer roll year replaces them, an older one never does.
type Property struct {
	ID                 string `json:"id"`
	SwisCode           string `json:"swis_code"`
	PrintKeyCode       string `json:"print_key_code"`
	MunicipalityCode   string `json:"municipality_code"`
	MunicipalityName   string `json:"municipality_name"`
	CountyName         string `json:"county_name"`
	SchoolDistrictCode string `json:"school_district_code"`
	SchoolDistrictName string `json:"school_district_name"`
	AddressNumber      string `json:"address_number"`
	AddressStreet      string `json:"address_street"`
	MailingCity        string `json:"mailing_city"`
	MailingState       string `json:"mailing_state"`
	Zip                string `json:"zip"`
	LastRollYear       int    `json:"last_roll_year"`
}

func (Property) entityNode() {}

// AssessmentKey is the natural key of a PropertyAssessment.
type AssessmentKey struct {
	PropertyID string
	RollYear   int
}

func (k AssessmentKey) String() string {
	return fmt.Sprintf("%s@%d", k.PropertyID, k.RollYear)
}

// Assessment is one roll-year snapshot of a property's values. A re-run of
// the same roll year replaces the whole row.
type Assessment struct {
	PropertyID               string          `json:"property_id"`
	RollYear                 int             `json:"roll_year"`
	PropertyClass            string          `json:"property_class"`
	PropertyClassDescription string          `json:"property_class_description"`
	Front                    decimal.Decimal `json:"front"`
	Depth                    decimal.Decimal `json:"depth"`
	FullMarketValue          int64           `json:"full_market_value"`
	AssessmentLand           int64           `json:"assessment_land"`
	AssessmentTotal          int64           `json:"assessment_total"`
	CountyTaxableValue       int64           `json:"county_taxable_value"`
	TownTaxableValue         int64           `json:"town_taxable_value"`
	SchoolTaxableValue       int64           `json:"school_taxable_value"`
}

func (Assessment) entityNode() {}

// Key returns the assessment's natural key.
func (a Assessment) Key() AssessmentKey {
	return AssessmentKey{PropertyID: a.PropertyID, RollYear: a.RollYear}
}

// TrendPoint is the derived statistic for one property and roll year.
// Change percentages are nil for the first available year.
type TrendPoint struct {
	PropertyID           string           `json:"property_id"`
	RollYear             int              `json:"roll_year"`
	FullValue            int64            `json:"full_value"`
	Ratio                decimal.Decimal  `json:"residential_assessment_ratio"`
	FullValueChangePct   *decimal.Decimal `json:"full_value_change_pct,omitempty"`
	MarketValueChangePct *decimal.Decimal `json:"market_value_change_pct,omitempty"`
}

// TrendSummary is the rolling summary across all of a property's years.
// The optional statistics are nil when fewer than two years exist.
type TrendSummary struct {
	PropertyID     string           `json:"property_id"`
	FirstRollYear  int              `json:"first_roll_year"`
	LastRollYear   int              `json:"last_roll_year"`
	YearsObserved  int              `json:"years_observed"`
	TotalChangePct *decimal.Decimal `json:"total_change_pct,omitempty"`
	MeanChangePct  *decimal.Decimal `json:"mean_change_pct,omitempty"`
	SlopePerYear   *decimal.Decimal `json:"slope_per_year,omitempty"`
}
