package redact

import (
	"regexp"
)

// Range is a half-open [Start,End) character interval in the scanned text.
type Range struct {
	Start int
	End   int
}

var (
	emailRE = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)

	// US-style phone numbers with separators. Bare 10-digit runs are left
	// alone: spreadsheet-derived text is full of them and they are usually
	// amounts or identifiers, not phones.
	phoneRE = regexp.MustCompile(`(?:\+?1[-.\s])?\(?\d{3}\)?[-.\s]\d{3}[-.\s]\d{4}`)

	// Street addresses: number + 1-3 capitalized name tokens + suffix, with
	// an optional unit. Deliberately conservative — a missed address is
	// recoverable downstream, a false positive mangles real content.
	addressRE = regexp.MustCompile(
		`\b\d{1,5}\s+(?:[A-Z][A-Za-z]+\s+){1,3}` +
			`(?:Street|St|Avenue|Ave|Road|Rd|Boulevard|Blvd|Lane|Ln|Drive|Dr|Court|Ct|Place|Pl|Way|Terrace|Ter|Circle|Cir|Parkway|Pkwy|Highway|Hwy)\b\.?` +
			`(?:,?\s+(?:Suite|Ste|Apt|Unit|Floor|Fl|#)\.?\s*[A-Za-z0-9-]+)?`)
)

// FindEmails returns the spans of well-formed email addresses in text.
func FindEmails(text string) []Range {
	return toRanges(emailRE.FindAllStringIndex(text, -1))
}

// FindPhones returns the spans of phone numbers in text. A candidate that is
// part of a longer numeric run — preceded or followed by a digit, or preceded
// by "digit." as in a decimal — is rejected, so 1,234,567.8901 style values
// from spreadsheets do not get flagged.
func FindPhones(text string) []Range {
	var out []Range
	for _, m := range phoneRE.FindAllStringIndex(text, -1) {
		s, e := m[0], m[1]
		if s > 0 {
			prev := text[s-1]
			if isDigit(prev) {
				continue
			}
			if prev == '.' && s > 1 && isDigit(text[s-2]) {
				continue
			}
		}
		if e < len(text) && isDigit(text[e]) {
			continue
		}
		out = append(out, Range{Start: s, End: e})
	}
	return out
}

// FindAddresses returns the spans of street addresses in text.
func FindAddresses(text string) []Range {
	return toRanges(addressRE.FindAllStringIndex(text, -1))
}

// HasEmail reports whether any email pattern is present.
func HasEmail(text string) bool {
	return emailRE.MatchString(text)
}

// HasPhone reports whether any phone pattern is present.
func HasPhone(text string) bool {
	return len(FindPhones(text)) > 0
}

// HasAddress reports whether any address pattern is present.
func HasAddress(text string) bool {
	return addressRE.MatchString(text)
}

func toRanges(idx [][]int) []Range {
	out := make([]Range, 0, len(idx))
	for _, m := range idx {
		out = append(out, Range{Start: m[0], End: m[1]})
	}
	return out
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
