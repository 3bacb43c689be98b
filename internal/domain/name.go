package domain

import (
	"strings"
	"unicode"
)

// CanonicalName is the single correlation key between sources and jobs:
// lowercase, with every run of characters that are not letters or digits
// collapsed to one hyphen and no leading or trailing hyphen.
// "Jumbo Retail_CL" and "jumbo-retail-cl" are the same source.
func CanonicalName(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	pendingHyphen := false
	for _, r := range strings.ToLower(s) {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			pendingHyphen = b.Len() > 0
			continue
		}
		if pendingHyphen {
			b.WriteByte('-')
			pendingHyphen = false
		}
		b.WriteRune(r)
	}
	return b.String()
}
