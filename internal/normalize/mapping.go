package normalize

import "github.com/roach88/cnyre/internal/model"

// Raw field names as published by data.ny.gov. These names are a contract:
// a rename upstream surfaces as SchemaDrift, never as a silent default.
const (
	// Roll feed (7vem-aaz7).
	FieldRollYear                 = "roll_year"
	FieldSwisCode                 = "swis_code"
	FieldPrintKeyCode             = "print_key_code"
	FieldMunicipalityCode         = "municipality_code"
	FieldMunicipalityName         = "municipality_name"
	FieldCountyName               = "county_name"
	FieldSchoolDistrictCode       = "school_district_code"
	FieldSchoolDistrictName       = "school_district_name"
	FieldPropertyClass            = "property_class"
	FieldPropertyClassDescription = "property_class_description"
	FieldFront                    = "front"
	FieldDepth                    = "depth"
	FieldFullMarketValue          = "full_market_value"
	FieldAssessmentLand           = "assessment_land"
	FieldAssessmentTotal          = "assessment_total"
	FieldCountyTaxableValue       = "county_taxable_value"
	FieldTownTaxable              = "town_taxable"
	FieldSchoolTaxable            = "school_taxable"
	FieldParcelAddressNumber      = "parcel_address_number"
	FieldParcelAddressStreet      = "parcel_address_street"
	FieldParcelAddressSuffix      = "parcel_address_suff"
	FieldParcelAddress            = "parcel_address"
	FieldMailingCity              = "mailing_address_city"
	FieldMailingState             = "mailing_address_state"
	FieldMailingZip               = "mailing_address_zip"

	// Ratio feed (bsmp-6um6).
	FieldRateYear                   = "rate_year"
	FieldMunicipalityType           = "type"
	FieldVillageName                = "village_name"
	FieldResidentialAssessmentRatio = "residential_assessment_ratio"
)

// Mapping lists the fields a feed is expected to publish.
//
// Required fields must be present on every record; a required field absent
// from a whole page is schema drift. Optional fields are read when present.
// Ignored fields are published but unused. Anything else is unknown and
// logged once per run, since a new name is often the other half of a rename.
type Mapping struct {
	Feed     model.Feed
	Required []string
	Optional []string
	Ignored  []string
}

// Known reports whether name is part of the mapping.
func (m Mapping) Known(name string) bool {
	for _, group := range [][]string{m.Required, m.Optional, m.Ignored} {
		for _, f := range group {
			if f == name {
				return true
			}
		}
	}
	return false
}

// Mappings holds the field contract of every supported feed.
var Mappings = map[model.Feed]Mapping{
	model.FeedRolls: {
		Feed: model.FeedRolls,
		Required: []string{
			FieldRollYear,
			FieldSwisCode,
			FieldPrintKeyCode,
			FieldMunicipalityName,
			FieldCountyName,
			FieldPropertyClass,
			FieldFullMarketValue,
			FieldAssessmentTotal,
		},
		Optional: []string{
			FieldMunicipalityCode,
			FieldSchoolDistrictCode,
			FieldSchoolDistrictName,
			FieldPropertyClassDescription,
			FieldFront,
			FieldDepth,
			FieldAssessmentLand,
			FieldCountyTaxableValue,
			FieldTownTaxable,
			FieldSchoolTaxable,
			FieldParcelAddressNumber,
			FieldParcelAddressStreet,
			FieldParcelAddressSuffix,
			FieldParcelAddress,
			FieldMailingCity,
			FieldMailingState,
			FieldMailingZip,
		},
		Ignored: []string{
			"roll_section",
			"primary_owner_first_name",
			"primary_owner_mi",
			"primary_owner_last_name",
			"primary_owner_suffix",
			"additional_owner_first_name",
			"additional_owner_mi",
			"additional_owner_last_name",
			"additional_owner_suffix",
			"mailing_address_number",
			"mailing_address_prefix",
			"mailing_address_street",
			"mailing_address_suff",
			"mailing_address_po_box",
			"mailing_address_unit_name",
			"mailing_address_unit_number",
			"grid_east",
			"grid_north",
			"deed_book",
			"deed_page",
			"book",
			"page",
		},
	},
	model.FeedRatios: {
		Feed: model.FeedRatios,
		Required: []string{
			FieldRateYear,
			FieldSwisCode,
			FieldCountyName,
			FieldMunicipalityName,
			FieldResidentialAssessmentRatio,
		},
		Optional: []string{
			FieldMunicipalityType,
			FieldVillageName,
		},
	},
}
