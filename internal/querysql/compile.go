// Package querysql compiles queryir queries to parameterized SQLite SQL.
//
// Every statement is ordered by (property_id, roll_year) and every literal
// is a ? parameter, never interpolated. The compiler also picks the driving
// index and pins it with INDEXED BY, so a filtered facade read can never
// degrade into a full table scan: SQLite refuses to prepare the statement
// instead.
package querysql

import (
	"fmt"
	"strings"

	"github.com/roach88/cnyre/internal/queryir"
)

// Index names declared in the store schema.
const (
	IndexPropertiesZip      = "idx_properties_zip"
	IndexPropertiesDistrict = "idx_properties_school_district"
	IndexAssessmentsClass   = "idx_assessments_class"
)

// Columns is the select list of the property_assessments view, in scan
// order. The store's row scanner depends on this order.
var Columns = []string{
	"p.id",
	"p.swis_code",
	"p.print_key_code",
	"p.municipality_code",
	"p.municipality_name",
	"p.county_name",
	"p.school_district_code",
	"p.school_district_name",
	"p.address_number",
	"p.address_street",
	"p.mailing_city",
	"p.mailing_state",
	"p.zip",
	"p.last_roll_year",
	"a.roll_year",
	"a.property_class",
	"a.property_class_description",
	"a.front",
	"a.depth",
	"a.full_market_value",
	"a.assessment_land",
	"a.assessment_total",
	"a.county_taxable_value",
	"a.town_taxable_value",
	"a.school_taxable_value",
	"t.full_value",
	"t.residential_assessment_ratio",
	"t.full_value_change_pct",
	"t.market_value_change_pct",
}

// columnOf maps filterable view fields to qualified columns.
var columnOf = map[string]string{
	queryir.FieldPropertyClass:      "a.property_class",
	queryir.FieldZip:                "p.zip",
	queryir.FieldSchoolDistrictCode: "p.school_district_code",
	queryir.FieldMunicipalityCode:   "p.municipality_code",
	queryir.FieldCountyName:         "p.county_name",
	queryir.FieldPropertyID:         "a.property_id",
	queryir.FieldRollYear:           "a.roll_year",
}

// drivers lists candidate driving indexes in priority order. Zip and
// school district are the most selective filters in practice; class codes
// repeat across the whole roll.
var drivers = []struct {
	field string
	index string
	table string // "p" or "a"
}{
	{queryir.FieldZip, IndexPropertiesZip, "p"},
	{queryir.FieldSchoolDistrictCode, IndexPropertiesDistrict, "p"},
	{queryir.FieldPropertyClass, IndexAssessmentsClass, "a"},
}

// Statement is a compiled query.
type Statement struct {
	SQL  string
	Args []any

	// Index is the index pinned with INDEXED BY ("" when unfiltered).
	Index string
}

// Compile converts a query to a parameterized statement.
func Compile(q queryir.Query) (Statement, error) {
	if res := queryir.Validate(q); !res.Valid {
		return Statement{}, fmt.Errorf("invalid query: %s", strings.Join(res.Problems, "; "))
	}
	switch query := q.(type) {
	case queryir.Select:
		return compileSelect(query)
	case *queryir.Select:
		return compileSelect(*query)
	default:
		return Statement{}, fmt.Errorf("unsupported query type: %T", q)
	}
}

func compileSelect(sel queryir.Select) (Statement, error) {
	var where string
	var args []any
	if sel.Filter != nil {
		sql, params, err := compilePredicate(sel.Filter)
		if err != nil {
			return Statement{}, fmt.Errorf("compile filter: %w", err)
		}
		where = " WHERE " + sql
		args = params
	}

	index, table := drivingIndex(sel.Filter)
	var from string
	if table == "p" {
		from = "properties AS p INDEXED BY " + index +
			" JOIN ny_property_assessments AS a ON a.property_id = p.id"
	} else {
		from = "ny_property_assessments AS a"
		if index != "" {
			from += " INDEXED BY " + index
		}
		from += " JOIN properties AS p ON p.id = a.property_id"
	}
	from += " LEFT JOIN property_trends AS t ON t.property_id = a.property_id AND t.roll_year = a.roll_year"

	sql := fmt.Sprintf("SELECT %s FROM %s%s ORDER BY %s LIMIT ? OFFSET ?",
		strings.Join(Columns, ", "),
		from,
		where,
		stableOrderKey())
	args = append(args, int64(sel.Page.Limit), int64(sel.Page.Offset))

	return Statement{SQL: sql, Args: args, Index: index}, nil
}

// stableOrderKey is the ORDER BY of every facade read. COLLATE BINARY keeps
// text ordering identical across SQLite builds.
func stableOrderKey() string {
	return "a.property_id ASC COLLATE BINARY, a.roll_year ASC"
}

// drivingIndex picks the index for the first matching top-level predicate.
// Only conjunct-level predicates qualify; a constraint nested elsewhere
// could not be used for the lookup.
func drivingIndex(filter queryir.Predicate) (index, table string) {
	fields := make(map[string]bool)
	for _, p := range conjuncts(filter) {
		switch pred := p.(type) {
		case queryir.In:
			fields[pred.Field] = true
		case queryir.Equals:
			fields[pred.Field] = true
		}
	}
	for _, d := range drivers {
		if fields[d.field] {
			return d.index, d.table
		}
	}
	return "", ""
}

func conjuncts(p queryir.Predicate) []queryir.Predicate {
	switch pred := p.(type) {
	case nil:
		return nil
	case queryir.And:
		var out []queryir.Predicate
		for _, sub := range pred.Predicates {
			out = append(out, conjuncts(sub)...)
		}
		return out
	default:
		return []queryir.Predicate{p}
	}
}

func compilePredicate(p queryir.Predicate) (string, []any, error) {
	switch pred := p.(type) {
	case queryir.Equals:
		col, err := column(pred.Field)
		if err != nil {
			return "", nil, err
		}
		param, err := valueToParam(pred.Value)
		if err != nil {
			return "", nil, err
		}
		return col + " = ?", []any{param}, nil
	case queryir.In:
		col, err := column(pred.Field)
		if err != nil {
			return "", nil, err
		}
		marks := make([]string, len(pred.Values))
		params := make([]any, len(pred.Values))
		for i, v := range pred.Values {
			param, err := valueToParam(v)
			if err != nil {
				return "", nil, err
			}
			marks[i] = "?"
			params[i] = param
		}
		return fmt.Sprintf("%s IN (%s)", col, strings.Join(marks, ", ")), params, nil
	case queryir.And:
		return compileAnd(pred)
	default:
		return "", nil, fmt.Errorf("unsupported predicate type: %T", p)
	}
}

func compileAnd(and queryir.And) (string, []any, error) {
	if len(and.Predicates) == 0 {
		return "1 = 1", nil, nil
	}
	parts := make([]string, 0, len(and.Predicates))
	var params []any
	for _, pred := range and.Predicates {
		sql, p, err := compilePredicate(pred)
		if err != nil {
			return "", nil, err
		}
		parts = append(parts, sql)
		params = append(params, p...)
	}
	return strings.Join(parts, " AND "), params, nil
}

func column(field string) (string, error) {
	col, ok := columnOf[field]
	if !ok {
		return "", fmt.Errorf("unknown field %q", field)
	}
	return col, nil
}

func valueToParam(v queryir.Value) (any, error) {
	switch val := v.(type) {
	case queryir.String:
		return string(val), nil
	case queryir.Int:
		return int64(val), nil
	default:
		return nil, fmt.Errorf("unsupported value type for SQL parameter: %T", v)
	}
}
