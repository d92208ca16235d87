package normalize

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/roach88/cnyre/internal/model"
)

var (
	maxCurrency = decimal.NewFromInt(math.MaxInt64)
	hundred     = decimal.NewFromInt(100)
	maxRatio    = decimal.NewFromInt(2)
)

func fieldErr(field, format string, args ...any) *model.NormalizationError {
	return &model.NormalizationError{Code: model.CodeNormalization, Field: field, Reason: fmt.Sprintf(format, args...)}
}

// parseCurrency coerces a whole-unit currency value. Thousands separators
// and a zero fractional part ("123000.0") are accepted; fractional cents,
// negatives and values beyond int64 are not.
func parseCurrency(field, raw string) (int64, error) {
	s := strings.ReplaceAll(strings.TrimSpace(raw), ",", "")
	s = strings.TrimPrefix(s, "$")
	if s == "" {
		return 0, fieldErr(field, "missing")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fieldErr(field, "not a number: %q", raw)
	}
	if d.IsNegative() {
		return 0, fieldErr(field, "negative currency: %s", s)
	}
	if !d.Equal(d.Truncate(0)) {
		return 0, fieldErr(field, "fractional currency: %s", s)
	}
	if d.GreaterThan(maxCurrency) {
		return 0, fieldErr(field, "overflows int64: %s", s)
	}
	return d.IntPart(), nil
}

// optionalCurrency is parseCurrency with empty meaning zero.
func optionalCurrency(field, raw string) (int64, error) {
	if strings.TrimSpace(raw) == "" {
		return 0, nil
	}
	return parseCurrency(field, raw)
}

// parseDimension coerces a lot dimension in feet. Empty means zero.
func parseDimension(field, raw string) (decimal.Decimal, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fieldErr(field, "not a number: %q", raw)
	}
	if d.IsNegative() {
		return decimal.Zero, fieldErr(field, "negative dimension: %s", s)
	}
	return d.Round(model.DimensionPlaces), nil
}

// parseRatio converts the published percentage ("88.00") into a fraction
// with RatioPlaces digits. Results outside (0, 2] are a source data error
// and carry CodeSuspiciousRatio so they land in the rejected sink.
func parseRatio(field, raw string) (decimal.Decimal, error) {
	s := strings.TrimSuffix(strings.TrimSpace(raw), "%")
	if s == "" {
		return decimal.Zero, fieldErr(field, "missing")
	}
	pct, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fieldErr(field, "not a number: %q", raw)
	}
	r := pct.Div(hundred).Round(model.RatioPlaces)
	if !r.IsPositive() || r.GreaterThan(maxRatio) {
		return decimal.Zero, &model.NormalizationError{
			Code:   model.CodeSuspiciousRatio,
			Field:  field,
			Reason: fmt.Sprintf("ratio %s outside (0, 2]", r.StringFixed(model.RatioPlaces)),
		}
	}
	return r, nil
}

// parseYear coerces a roll or rate year and checks it against the window.
func parseYear(field, raw string, earliest, latest int) (int, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, fieldErr(field, "missing")
	}
	y, err := strconv.Atoi(s)
	if err != nil {
		return 0, fieldErr(field, "not an integer year: %q", raw)
	}
	return checkYear(field, y, earliest, latest)
}

func checkYear(field string, y, earliest, latest int) (int, error) {
	if y < earliest || y > latest {
		return 0, fieldErr(field, "year %d outside [%d, %d]", y, earliest, latest)
	}
	return y, nil
}

// parseZip keeps the five-digit ZIP of a US mailing address. Foreign and
// malformed postal codes normalize to "" rather than failing the record;
// the zip only feeds query filters.
func parseZip(raw string) string {
	s := strings.TrimSpace(raw)
	if len(s) < 5 {
		return ""
	}
	for _, c := range s[:5] {
		if c < '0' || c > '9' {
			return ""
		}
	}
	if len(s) > 5 && s[5] != '-' && s[5] != ' ' && (s[5] < '0' || s[5] > '9') {
		return ""
	}
	return s[:5]
}
