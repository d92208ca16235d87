package queryir

// Query is an abstract read. Sealed to this package.
type Query interface {
	queryNode()
}

// Predicate filters rows of a query. Sealed to this package.
type Predicate interface {
	predicateNode()
}

// Value is a literal in a predicate. Sealed to this package.
type Value interface {
	valueNode()
}

// String is a text literal.
type String string

func (String) valueNode() {}

// Int is an integer literal.
type Int int64

func (Int) valueNode() {}

// ViewPropertyAssessments is the joined property/assessment/trend view
// served by the facade.
const ViewPropertyAssessments = "property_assessments"

// Filterable fields of ViewPropertyAssessments.
const (
	FieldPropertyClass      = "property_class"
	FieldZip                = "zip"
	FieldSchoolDistrictCode = "school_district_code"
	FieldMunicipalityCode   = "municipality_code"
	FieldCountyName         = "county_name"
	FieldPropertyID         = "property_id"
	FieldRollYear           = "roll_year"
)

// Select reads rows of a view.
//
//	SELECT <view columns> FROM <From> WHERE <Filter>
//	ORDER BY property_id, roll_year LIMIT <Page.Limit> OFFSET <Page.Offset>
type Select struct {
	From   string
	Filter Predicate // nil means all rows
	Page   Page
}

func (Select) queryNode() {}

// Equals is field = value.
type Equals struct {
	Field string
	Value Value
}

func (Equals) predicateNode() {}

// In is field IN (values). Values must be non-empty; an absent filter is
// expressed by leaving the predicate out, not by an empty set.
type In struct {
	Field  string
	Values []Value
}

func (In) predicateNode() {}

// And is a conjunction. An empty And is always true.
type And struct {
	Predicates []Predicate
}

func (And) predicateNode() {}
