// Package normalize converts raw feed records into typed entities.
//
// The Normalizer is configured once per run with the county scope and the
// accepted year window. It is driven by the pipeline's single consumer and
// is not safe for concurrent use.
package normalize

import (
	"log/slog"
	"sort"
	"time"

	"github.com/roach88/cnyre/internal/feed"
	"github.com/roach88/cnyre/internal/identity"
	"github.com/roach88/cnyre/internal/model"
)

// DefaultEarliestYear is the first roll year the feeds carry in usable form.
const DefaultEarliestYear = 2009

// Options configures a Normalizer.
type Options struct {
	// Counties limits records to these county names. Empty means all.
	Counties []string

	// EarliestYear and LatestYear bound roll and rate years. Zero values
	// default to DefaultEarliestYear and the current year plus one.
	EarliestYear int
	LatestYear   int

	Logger *slog.Logger
}

// Result is the outcome of normalizing one record.
type Result struct {
	// Entities are the typed records derived from the source row.
	Entities []model.Entity

	// Filtered is true when the record is valid but outside the county
	// scope. Filtered records carry no entities and are not rejections.
	Filtered bool
}

// Normalizer converts feed records into entities.
type Normalizer struct {
	counties map[string]bool
	earliest int
	latest   int
	logger   *slog.Logger

	warned map[model.Feed]map[string]bool
}

// New creates a Normalizer.
func New(opts Options) *Normalizer {
	n := &Normalizer{
		earliest: opts.EarliestYear,
		latest:   opts.LatestYear,
		logger:   opts.Logger,
		warned:   make(map[model.Feed]map[string]bool),
	}
	if n.earliest == 0 {
		n.earliest = DefaultEarliestYear
	}
	if n.latest == 0 {
		n.latest = time.Now().Year() + 1
	}
	if n.logger == nil {
		n.logger = slog.Default()
	}
	if len(opts.Counties) > 0 {
		n.counties = make(map[string]bool, len(opts.Counties))
		for _, c := range opts.Counties {
			n.counties[titleName(c)] = true
		}
	}
	return n
}

// MinDriftRecords is the smallest page CheckSchema judges for drift. On a
// single record a missing field is indistinguishable from a null value the
// publisher omitted, so that record fails on its own in Normalize.
const MinDriftRecords = 2

// CheckSchema compares the page's field set against the feed mapping.
//
// A required field that no record of the page carries means the publisher
// renamed or dropped it, and every record would fail the same way. That is
// reported as *model.SchemaDrift for the page. Unknown fields are logged
// once per feed.
func (n *Normalizer) CheckSchema(page feed.Page) error {
	if len(page.Records) == 0 {
		return nil
	}
	m, ok := Mappings[page.Feed]
	if !ok {
		return &model.SchemaDrift{Feed: page.Feed, Page: page.Label, Missing: []string{"<unknown feed>"}}
	}

	seen := make(map[string]bool)
	for _, rec := range page.Records {
		for name := range rec.Fields {
			seen[name] = true
		}
	}

	var missing []string
	if len(page.Records) >= MinDriftRecords {
		for _, f := range m.Required {
			if !seen[f] {
				missing = append(missing, f)
			}
		}
	}
	if len(missing) > 0 {
		return &model.SchemaDrift{Feed: page.Feed, Page: page.Label, Missing: missing}
	}

	var unknown []string
	for name := range seen {
		if !m.Known(name) && !n.warnedAbout(page.Feed, name) {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		n.logger.Warn("unknown source fields",
			"feed", page.Feed,
			"page", page.Label,
			"fields", unknown)
	}
	return nil
}

func (n *Normalizer) warnedAbout(f model.Feed, name string) bool {
	fields := n.warned[f]
	if fields == nil {
		fields = make(map[string]bool)
		n.warned[f] = fields
	}
	if fields[name] {
		return true
	}
	fields[name] = true
	return false
}

// Normalize converts one record. Errors are per-record and belong to the
// taxonomy in package model: *model.IdentityError when the identity cannot
// be resolved, *model.NormalizationError otherwise.
func (n *Normalizer) Normalize(rec feed.Record) (Result, error) {
	switch rec.Feed {
	case model.FeedRolls:
		return n.normalizeRoll(rec)
	case model.FeedRatios:
		return n.normalizeRatio(rec)
	default:
		return Result{}, fieldErr("feed", "unsupported feed %q", rec.Feed)
	}
}

func (n *Normalizer) normalizeRoll(rec feed.Record) (Result, error) {
	id, err := identity.ForRoll(rec)
	if err != nil {
		return Result{}, err
	}

	county, err := required(rec, FieldCountyName)
	if err != nil {
		return Result{}, err
	}
	county = titleName(county)
	if !n.inScope(county) {
		return Result{Filtered: true}, nil
	}

	year, err := parseYear(FieldRollYear, rec.Value(FieldRollYear), n.earliest, n.latest)
	if err != nil {
		return Result{}, err
	}
	muniName, err := required(rec, FieldMunicipalityName)
	if err != nil {
		return Result{}, err
	}
	class, err := required(rec, FieldPropertyClass)
	if err != nil {
		return Result{}, err
	}

	front, err := parseDimension(FieldFront, rec.Value(FieldFront))
	if err != nil {
		return Result{}, err
	}
	depth, err := parseDimension(FieldDepth, rec.Value(FieldDepth))
	if err != nil {
		return Result{}, err
	}

	values := currencyReader{rec: rec}
	fullMarket := values.required(FieldFullMarketValue)
	total := values.required(FieldAssessmentTotal)
	land := values.optional(FieldAssessmentLand)
	countyTaxable := values.optional(FieldCountyTaxableValue)
	townTaxable := values.optional(FieldTownTaxable)
	schoolTaxable := values.optional(FieldSchoolTaxable)
	if values.err != nil {
		return Result{}, values.err
	}

	muniCode := identity.CleanCode(rec.Value(FieldMunicipalityCode))
	if muniCode == "" {
		muniCode = id.SwisCode
	}
	number, street := reconstructAddress(rec)

	prop := model.Property{
		ID:                 id.ID,
		SwisCode:           id.SwisCode,
		PrintKeyCode:       id.PrintKeyCode,
		MunicipalityCode:   muniCode,
		MunicipalityName:   titleName(muniName),
		CountyName:         county,
		SchoolDistrictCode: identity.CleanCode(rec.Value(FieldSchoolDistrictCode)),
		SchoolDistrictName: titleName(rec.Value(FieldSchoolDistrictName)),
		AddressNumber:      number,
		AddressStreet:      street,
		MailingCity:        upperText(rec.Value(FieldMailingCity)),
		MailingState:       upperText(rec.Value(FieldMailingState)),
		Zip:                parseZip(rec.Value(FieldMailingZip)),
		LastRollYear:       year,
	}
	asmt := model.Assessment{
		PropertyID:               id.ID,
		RollYear:                 year,
		PropertyClass:            identity.CleanCode(class),
		PropertyClassDescription: upperText(rec.Value(FieldPropertyClassDescription)),
		Front:                    front,
		Depth:                    depth,
		FullMarketValue:          fullMarket,
		AssessmentLand:           land,
		AssessmentTotal:          total,
		CountyTaxableValue:       countyTaxable,
		TownTaxableValue:         townTaxable,
		SchoolTaxableValue:       schoolTaxable,
	}
	return Result{Entities: []model.Entity{prop, asmt}}, nil
}

func (n *Normalizer) normalizeRatio(rec feed.Record) (Result, error) {
	key, err := identity.ForRatio(rec)
	if err != nil {
		return Result{}, err
	}

	county, err := required(rec, FieldCountyName)
	if err != nil {
		return Result{}, err
	}
	county = titleName(county)
	if !n.inScope(county) {
		return Result{Filtered: true}, nil
	}

	if _, err := checkYear(FieldRateYear, key.RateYear, n.earliest, n.latest); err != nil {
		return Result{}, err
	}
	name, err := required(rec, FieldMunicipalityName)
	if err != nil {
		return Result{}, err
	}
	ratio, err := parseRatio(FieldResidentialAssessmentRatio, rec.Value(FieldResidentialAssessmentRatio))
	if err != nil {
		return Result{}, err
	}

	r := model.Ratio{
		MunicipalityCode: key.MunicipalityCode,
		RateYear:         key.RateYear,
		MunicipalityName: titleName(name),
		CountyName:       county,
		MunicipalityType: titleName(rec.Value(FieldMunicipalityType)),
		Ratio:            ratio,
	}
	return Result{Entities: []model.Entity{r}}, nil
}

func (n *Normalizer) inScope(county string) bool {
	return n.counties == nil || n.counties[county]
}

// required returns the trimmed value of a field that must be present and
// non-empty on every record.
func required(rec feed.Record, field string) (string, error) {
	if _, ok := rec.Get(field); !ok {
		return "", fieldErr(field, "missing")
	}
	v := rec.Value(field)
	if v == "" {
		return "", fieldErr(field, "empty")
	}
	return v, nil
}

// currencyReader parses a run of currency fields and keeps the first error.
type currencyReader struct {
	rec feed.Record
	err error
}

func (c *currencyReader) required(field string) int64 {
	return c.read(field, parseCurrency)
}

func (c *currencyReader) optional(field string) int64 {
	return c.read(field, optionalCurrency)
}

func (c *currencyReader) read(field string, parse func(string, string) (int64, error)) int64 {
	if c.err != nil {
		return 0
	}
	v, err := parse(field, c.rec.Value(field))
	if err != nil {
		c.err = err
	}
	return v
}
