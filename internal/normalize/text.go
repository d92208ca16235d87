package normalize

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// collapse NFC-normalizes s, trims it and squeezes internal whitespace runs.
func collapse(s string) string {
	return strings.Join(strings.Fields(norm.NFC.String(s)), " ")
}

// titleName renders place names the way the ratio feed publishes them
// ("ONONDAGA" and "onondaga" both become "Onondaga").
// A Caser is not safe for concurrent use, so one is built per call.
func titleName(s string) string {
	return cases.Title(language.English).String(collapse(s))
}

// upperText renders free text such as streets and class descriptions.
func upperText(s string) string {
	return cases.Upper(language.English).String(collapse(s))
}
