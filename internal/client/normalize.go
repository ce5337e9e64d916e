package client

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// stripDiacritics decomposes accented letters and drops the combining
// marks, so "Ñañez" becomes "Nanez".
var stripDiacritics = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

var titleCaser = cases.Title(language.Und)

// Normalize derives the two stored forms of a client name. It is pure and
// deterministic: equal inputs up to casing, accents and spacing yield the
// same search key.
//
//	"  HOTEL   diego DE almagro " → ("Hotel Diego De Almagro", "HOTEL DIEGO DE ALMAGRO")
//	"Constructora Ñañez"          → ("Constructora Ñañez",     "CONSTRUCTORA NANEZ")
func Normalize(raw string) (canonical, searchKey string) {
	collapsed := strings.Join(strings.Fields(raw), " ")
	canonical = titleCaser.String(collapsed)

	stripped, _, err := transform.String(stripDiacritics, canonical)
	if err != nil {
		stripped = canonical
	}

	return canonical, strings.ToUpper(stripped)
}
