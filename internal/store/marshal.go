package store

import (
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"
)

// formatDecimal renders d as TEXT with a fixed number of places, so equal
// values always store as equal strings.
func formatDecimal(d decimal.Decimal, places int32) string {
	return d.StringFixed(places)
}

// formatNullDecimal is formatDecimal for optional values; nil stores NULL.
func formatNullDecimal(d *decimal.Decimal, places int32) any {
	if d == nil {
		return nil
	}
	return d.StringFixed(places)
}

// parseDecimal reads a TEXT decimal column.
func parseDecimal(column, text string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(text)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse %s %q: %w", column, text, err)
	}
	return d, nil
}

// parseNullDecimal reads a nullable TEXT decimal column.
func parseNullDecimal(column string, text sql.NullString) (*decimal.Decimal, error) {
	if !text.Valid {
		return nil, nil
	}
	d, err := parseDecimal(column, text.String)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
