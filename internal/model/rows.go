package model

import "github.com/shopspring/decimal"

// PropertyRow is one row of the query facade: a property joined with one
// of its assessments and, once enrichment has run, that year's trend point.
type PropertyRow struct {
	Property   Property    `json:"property"`
	Assessment Assessment  `json:"assessment"`
	Trend      *TrendPoint `json:"trend,omitempty"`
}

// PropertyDetail is everything persisted about one property.
type PropertyDetail struct {
	Property    Property      `json:"property"`
	Assessments []Assessment  `json:"assessments"`
	Trends      []TrendPoint  `json:"trends"`
	Summary     *TrendSummary `json:"summary,omitempty"`
}

// HistoryPoint is one roll year of a property's assessments joined with
// the ratio of the property's municipality for that year.
type HistoryPoint struct {
	RollYear         int
	MunicipalityCode string
	FullMarketValue  int64
	AssessmentTotal  int64

	// Ratio is nil when no ratio is stored for the year.
	Ratio *decimal.Decimal
}
