package queryir

import "strings"

// Pagination limits.
const (
	DefaultLimit = 100
	MaxLimit     = 1000
)

// Page is a window over an ordered result.
type Page struct {
	Limit  int
	Offset int
}

// Normalize applies the default limit and clamps to MaxLimit. Negative
// offsets become zero.
func (p Page) Normalize() Page {
	if p.Limit <= 0 {
		p.Limit = DefaultLimit
	}
	if p.Limit > MaxLimit {
		p.Limit = MaxLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

// Filters is the facade's filter set. Each dimension is optional; an empty
// slice means no filter on that dimension.
type Filters struct {
	PropertyClasses []string
	Zips            []string
	SchoolDistricts []string
}

// Empty reports whether no dimension is filtered.
func (f Filters) Empty() bool {
	return len(f.PropertyClasses) == 0 && len(f.Zips) == 0 && len(f.SchoolDistricts) == 0
}

// Select builds the query for the filter set. Values are trimmed and
// upper-cased to match how codes are stored; duplicates and blanks are
// dropped.
func (f Filters) Select(page Page) Select {
	var preds []Predicate
	add := func(field string, values []string) {
		if in, ok := inStrings(field, values); ok {
			preds = append(preds, in)
		}
	}
	add(FieldPropertyClass, f.PropertyClasses)
	add(FieldZip, f.Zips)
	add(FieldSchoolDistrictCode, f.SchoolDistricts)

	sel := Select{From: ViewPropertyAssessments, Page: page.Normalize()}
	switch len(preds) {
	case 0:
	case 1:
		sel.Filter = preds[0]
	default:
		sel.Filter = And{Predicates: preds}
	}
	return sel
}

func inStrings(field string, values []string) (In, bool) {
	seen := make(map[string]bool, len(values))
	in := In{Field: field}
	for _, v := range values {
		v = strings.ToUpper(strings.TrimSpace(v))
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		in.Values = append(in.Values, String(v))
	}
	return in, len(in.Values) > 0
}
