// Package identity derives the stable composite identifiers of the data
// model from raw source fields.
//
// A property ID is swis_code + Separator + print_key_code after cleaning.
// Print keys routinely contain '.', '-' and '/', and SWIS codes are digits,
// so Separator is '|'. It is validated on every call rather than assumed:
// a field containing it is rejected as MalformedIdentity, which keeps the
// concatenation injective (distinct pairs never produce the same ID).
//
// Everything here is a pure function of its input.
package identity

import (
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/cnyre/internal/feed"
	"github.com/roach88/cnyre/internal/model"
)

// Separator joins swis_code and print_key_code in a property ID.
const Separator = "|"

// Raw field names identity depends on.
const (
	FieldSwisCode     = "swis_code"
	FieldPrintKeyCode = "print_key_code"
	FieldRateYear     = "rate_year"
)

// PropertyIdentity is the resolved identity of a roll record.
type PropertyIdentity struct {
	ID           string
	SwisCode     string
	PrintKeyCode string
}

// CleanCode normalizes a code field: NFC, trimmed, upper-cased.
func CleanCode(raw string) string {
	return strings.ToUpper(strings.TrimSpace(norm.NFC.String(raw)))
}

// PropertyID builds the composite ID from raw swis and print key values.
func PropertyID(swisCode, printKeyCode string) (string, error) {
	swis, err := cleanPart(model.FeedRolls, FieldSwisCode, swisCode, true)
	if err != nil {
		return "", err
	}
	printKey, err := cleanPart(model.FeedRolls, FieldPrintKeyCode, printKeyCode, true)
	if err != nil {
		return "", err
	}
	return swis + Separator + printKey, nil
}

// ForRoll resolves the property identity of a roll record.
func ForRoll(rec feed.Record) (PropertyIdentity, error) {
	swisRaw, ok := rec.Get(FieldSwisCode)
	swis, err := cleanPart(rec.Feed, FieldSwisCode, swisRaw, ok)
	if err != nil {
		return PropertyIdentity{}, err
	}
	printKeyRaw, ok := rec.Get(FieldPrintKeyCode)
	printKey, err := cleanPart(rec.Feed, FieldPrintKeyCode, printKeyRaw, ok)
	if err != nil {
		return PropertyIdentity{}, err
	}
	return PropertyIdentity{
		ID:           swis + Separator + printKey,
		SwisCode:     swis,
		PrintKeyCode: printKey,
	}, nil
}

// ForRatio resolves (municipality_code, rate_year) of a ratio record.
// The ratio feed publishes the municipality code as swis_code.
func ForRatio(rec feed.Record) (model.RatioKey, error) {
	raw, ok := rec.Get(FieldSwisCode)
	code, err := cleanPart(rec.Feed, FieldSwisCode, raw, ok)
	if err != nil {
		return model.RatioKey{}, err
	}
	rawYear, ok := rec.Get(FieldRateYear)
	yearText, err := cleanPart(rec.Feed, FieldRateYear, rawYear, ok)
	if err != nil {
		return model.RatioKey{}, err
	}
	year, err := strconv.Atoi(yearText)
	if err != nil {
		return model.RatioKey{}, &model.IdentityError{Feed: rec.Feed, Field: FieldRateYear, Reason: "not an integer year: " + strconv.Quote(yearText)}
	}
	return model.RatioKey{MunicipalityCode: code, RateYear: year}, nil
}

// Split reverses PropertyID. ok is false for strings that are not IDs.
func Split(id string) (swisCode, printKeyCode string, ok bool) {
	swisCode, printKeyCode, ok = strings.Cut(id, Separator)
	if !ok || swisCode == "" || printKeyCode == "" || strings.Contains(printKeyCode, Separator) {
		return "", "", false
	}
	return swisCode, printKeyCode, true
}

func cleanPart(f model.Feed, field, raw string, present bool) (string, error) {
	if !present {
		return "", &model.IdentityError{Feed: f, Field: field, Reason: "missing"}
	}
	v := CleanCode(raw)
	if v == "" {
		return "", &model.IdentityError{Feed: f, Field: field, Reason: "empty"}
	}
	if strings.Contains(v, Separator) {
		return "", &model.IdentityError{Feed: f, Field: field, Reason: "contains separator " + strconv.Quote(Separator)}
	}
	return v, nil
}
