package roster

import (
	"strings"
)

// legalSuffixes are corporate-form tokens stripped from the end of a client
// name to produce a bare-name variant. Matching is case-insensitive and
// tolerates a trailing period ("Inc.").
var legalSuffixes = []string{
	"incorporated", "corporation", "limited", "company", "holdings",
	"corp", "inc", "llc", "llp", "ltd", "plc", "co", "lp", "pc",
}

// fillerTokens are low-signal words removed to produce an additional variant
// ("The Hartford Group" -> "Hartford").
var fillerTokens = map[string]bool{
	"the":      true,
	"group":    true,
	"holdings": true,
}

// minGeneratedLen guards against generated variants short enough to collide
// with unrelated words. Short aliases ("MS") are still honored when they come
// from the roster's explicit alias column.
const minGeneratedLen = 4

// GenerateVariants derives the deterministic name variants for one client.
// It is a pure function of the name: no acronyms or nicknames are invented,
// because two-letter abbreviations collide too easily ("MS" is Morgan Stanley
// to one team and Microsoft to another). Those must come from explicit roster
// aliases or contextual detection.
//
// Produced forms: the original name, a whitespace-normalized lowercase form,
// legal-suffix-stripped forms, ampersand<->"and" swaps, filler-word-free
// forms, and a collapsed no-space form.
func GenerateVariants(name string) []string {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil
	}

	seen := map[string]bool{}
	var out []string
	add := func(v string) {
		v = normalizeSpace(v)
		if v == "" {
			return
		}
		key := strings.ToLower(v)
		if seen[key] {
			return
		}
		seen[key] = true
		out = append(out, v)
	}

	add(name)
	add(strings.ToLower(normalizeSpace(name)))

	// Suffix stripping can expose a second suffix ("Acme Holdings Inc"), so
	// strip repeatedly until stable.
	stripped := name
	for {
		next := stripLegalSuffix(stripped)
		if next == stripped {
			break
		}
		stripped = next
		add(stripped)
		add(strings.ToLower(normalizeSpace(stripped)))
	}

	// Ampersand and "and" are interchangeable in legal names.
	for _, base := range []string{name, stripped} {
		if strings.Contains(base, "&") {
			add(strings.ReplaceAll(base, "&", "and"))
			add(strings.ReplaceAll(base, "&", " and "))
		}
		lower := strings.ToLower(base)
		if strings.Contains(" "+lower+" ", " and ") {
			add(replaceWordInsensitive(base, "and", "&"))
		}
	}

	// Filler removal ("The Hartford Group" -> "Hartford").
	if noFiller := removeFillerTokens(stripped); noFiller != "" && !strings.EqualFold(noFiller, stripped) {
		add(noFiller)
		add(strings.ToLower(noFiller))
	}

	// Collapsed form catches identifier-style mentions ("MorganStanley").
	collapsed := strings.ReplaceAll(normalizeSpace(stripped), " ", "")
	if collapsed != stripped {
		add(collapsed)
	}

	// Drop generated forms too short to be safe. The original name is always
	// kept, whatever its length.
	filtered := out[:0]
	for i, v := range out {
		if i == 0 || len(v) >= minGeneratedLen {
			filtered = append(filtered, v)
		}
	}
	return filtered
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// stripLegalSuffix removes one trailing legal-form token, plus any comma or
// period that joined it to the name. Returns the input unchanged when no
// suffix is present or stripping would leave nothing.
func stripLegalSuffix(name string) string {
	fields := strings.Fields(name)
	if len(fields) < 2 {
		return name
	}
	last := strings.ToLower(strings.TrimRight(fields[len(fields)-1], "."))
	for _, suffix := range legalSuffixes {
		if last == suffix {
			kept := strings.Join(fields[:len(fields)-1], " ")
			kept = strings.TrimRight(kept, ",. ")
			if kept == "" {
				return name
			}
			return kept
		}
	}
	return name
}

func removeFillerTokens(name string) string {
	fields := strings.Fields(name)
	kept := make([]string, 0, len(fields))
	for _, f := range fields {
		if fillerTokens[strings.ToLower(strings.Trim(f, ",."))] {
			continue
		}
		kept = append(kept, f)
	}
	if len(kept) == 0 || len(kept) == len(fields) {
		return ""
	}
	return strings.Join(kept, " ")
}

// replaceWordInsensitive swaps whole-word occurrences of old (case-insensitive)
// with new.
func replaceWordInsensitive(s, old, new string) string {
	fields := strings.Fields(s)
	for i, f := range fields {
		if strings.EqualFold(f, old) {
			fields[i] = new
		}
	}
	return strings.Join(fields, " ")
}
