package normalize

import (
	"strings"
	"unicode"

	"github.com/roach88/cnyre/internal/feed"
)

// reconstructAddress converges the two published address layouts on one
// (number, street) shape.
//
// Split layout:       parcel_address_number="123", parcel_address_street="MAIN",
//                     parcel_address_suff="ST"  ->  ("123", "MAIN ST")
// Single-line layout: parcel_address="123 Main St" ->  ("123", "MAIN ST")
//
// The split layout wins when any of its fields is present.
func reconstructAddress(rec feed.Record) (number, street string) {
	_, hasNumber := rec.Get(FieldParcelAddressNumber)
	_, hasStreet := rec.Get(FieldParcelAddressStreet)
	if hasNumber || hasStreet {
		number = upperText(rec.Value(FieldParcelAddressNumber))
		street = joinNonEmpty(
			upperText(rec.Value(FieldParcelAddressStreet)),
			upperText(rec.Value(FieldParcelAddressSuffix)),
		)
		return number, street
	}
	return splitAddressLine(rec.Value(FieldParcelAddress))
}

// splitAddressLine takes the leading token as the house number when it
// starts with a digit ("123", "123-125", "12A").
func splitAddressLine(line string) (number, street string) {
	tokens := strings.Fields(upperText(line))
	if len(tokens) == 0 {
		return "", ""
	}
	first := []rune(tokens[0])
	if unicode.IsDigit(first[0]) {
		return tokens[0], strings.Join(tokens[1:], " ")
	}
	return "", strings.Join(tokens, " ")
}

func joinNonEmpty(parts ...string) string {
	kept := parts[:0:0]
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, " ")
}
