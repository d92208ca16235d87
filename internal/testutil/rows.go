// Package testutil provides deterministic time, run IDs and raw feed rows
// for tests across packages.
package testutil

import (
	"fmt"
	"maps"
	"strconv"
)

// RollRow returns a well-formed raw roll record for Camillus, Onondaga
// County. Values are strings as the feed publishes them; overrides replace
// or add fields, and an override of "-" deletes the field.
func RollRow(printKey string, year int, fullMarket, total int64, overrides ...map[string]string) map[string]string {
	row := map[string]string{
		"roll_year":                  strconv.Itoa(year),
		"swis_code":                  "312600",
		"print_key_code":             printKey,
		"municipality_code":          "312600",
		"municipality_name":          "CAMILLUS",
		"county_name":                "ONONDAGA",
		"school_district_code":       "312601",
		"school_district_name":       "West Genesee",
		"property_class":             "210",
		"property_class_description": "1 Family Res",
		"front":                      "75.00",
		"depth":                      "150.00",
		"full_market_value":          strconv.FormatInt(fullMarket, 10),
		"assessment_land":            "20000",
		"assessment_total":           strconv.FormatInt(total, 10),
		"county_taxable_value":       strconv.FormatInt(total, 10),
		"town_taxable":               strconv.FormatInt(total, 10),
		"school_taxable":             strconv.FormatInt(total, 10),
		"parcel_address_number":      "104",
		"parcel_address_street":      "Warners",
		"parcel_address_suff":        "Rd",
		"mailing_address_city":       "Camillus",
		"mailing_address_state":      "NY",
		"mailing_address_zip":        "13031",
	}
	return apply(row, overrides)
}

// RatioRow returns a well-formed raw ratio record for Camillus with the
// ratio published as a percentage ("88.00").
func RatioRow(year int, percent string, overrides ...map[string]string) map[string]string {
	row := map[string]string{
		"rate_year":                    strconv.Itoa(year),
		"swis_code":                    "312600",
		"type":                         "Town",
		"county_name":                  "Onondaga",
		"municipality_name":            "Camillus",
		"residential_assessment_ratio": percent,
	}
	return apply(row, overrides)
}

// RollRows returns n well-formed roll records with print keys 100.-1-1,
// 100.-1-2, and so on.
func RollRows(n, year int) []map[string]string {
	rows := make([]map[string]string, n)
	for i := range rows {
		rows[i] = RollRow(fmt.Sprintf("100.-1-%d", i+1), year, 100000, 88000)
	}
	return rows
}

func apply(row map[string]string, overrides []map[string]string) map[string]string {
	for _, o := range overrides {
		maps.Copy(row, o)
	}
	for k, v := range row {
		if v == "-" {
			delete(row, k)
		}
	}
	return row
}
