package queryir

import "fmt"

// ValidationResult lists the problems found in a query.
type ValidationResult struct {
	Valid    bool
	Problems []string
}

// Validate checks a query against the fragment rules:
//  1. Select reads a known view
//  2. Predicates reference filterable fields only
//  3. In carries at least one value, and no value is nil
//  4. Page is within [1, MaxLimit] with a non-negative offset
//
// Validate is a pure function with no side effects.
func Validate(q Query) ValidationResult {
	v := &validator{}
	v.validateQuery(q)
	return ValidationResult{Valid: len(v.problems) == 0, Problems: v.problems}
}

var filterable = map[string]bool{
	FieldPropertyClass:      true,
	FieldZip:                true,
	FieldSchoolDistrictCode: true,
	FieldMunicipalityCode:   true,
	FieldCountyName:         true,
	FieldPropertyID:         true,
	FieldRollYear:           true,
}

type validator struct {
	problems []string
}

func (v *validator) addProblem(format string, args ...any) {
	v.problems = append(v.problems, fmt.Sprintf(format, args...))
}

func (v *validator) validateQuery(q Query) {
	switch query := q.(type) {
	case Select:
		v.validateSelect(query)
	case *Select:
		if query == nil {
			v.addProblem("nil query")
			return
		}
		v.validateSelect(*query)
	case nil:
		v.addProblem("nil query")
	default:
		v.addProblem("unknown query type: %T", q)
	}
}

func (v *validator) validateSelect(sel Select) {
	if sel.From != ViewPropertyAssessments {
		v.addProblem("unknown view %q", sel.From)
	}
	if sel.Page.Limit < 1 || sel.Page.Limit > MaxLimit {
		v.addProblem("limit %d outside [1, %d]", sel.Page.Limit, MaxLimit)
	}
	if sel.Page.Offset < 0 {
		v.addProblem("negative offset %d", sel.Page.Offset)
	}
	if sel.Filter != nil {
		v.validatePredicate(sel.Filter)
	}
}

func (v *validator) validatePredicate(p Predicate) {
	switch pred := p.(type) {
	case Equals:
		v.validateField(pred.Field)
		if pred.Value == nil {
			v.addProblem("field %q compared to nil", pred.Field)
		}
	case In:
		v.validateField(pred.Field)
		if len(pred.Values) == 0 {
			v.addProblem("empty IN set for field %q", pred.Field)
		}
		for _, val := range pred.Values {
			if val == nil {
				v.addProblem("nil value in IN set for field %q", pred.Field)
			}
		}
	case And:
		for _, sub := range pred.Predicates {
			v.validatePredicate(sub)
		}
	default:
		v.addProblem("unknown predicate type: %T", p)
	}
}

func (v *validator) validateField(field string) {
	if !filterable[field] {
		v.addProblem("field %q is not filterable", field)
	}
}
