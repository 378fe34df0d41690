package roster

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// placeholderRE matches redaction placeholder tokens already present in the
// text. Replacement never writes inside one.
var placeholderRE = regexp.MustCompile(`<<[^>]{1,80}>>`)

// matcher pairs one name variant with its compiled pattern.
type matcher struct {
	variant string
	re      *regexp.Regexp
}

// Registry is the read-only client-alias registry. Construct once per worker;
// safe for concurrent reads, no locking needed.
type Registry struct {
	records  map[string]ClientRecord
	order    []string                  // client ids in roster order
	matchers map[string][]matcher      // per client, longest variant first
	nameREs  map[string]*regexp.Regexp // canonical-name matcher, for validation
}

// New builds a Registry from normalized records, generating variants and
// compiling one matcher per alias/variant.
func New(records []ClientRecord) (*Registry, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("roster: no client records")
	}

	r := &Registry{
		records:  make(map[string]ClientRecord, len(records)),
		matchers: make(map[string][]matcher, len(records)),
		nameREs:  make(map[string]*regexp.Regexp, len(records)),
	}

	for _, rec := range records {
		if rec.ID == "" || rec.Name == "" {
			return nil, fmt.Errorf("roster: record missing id or name: %+v", rec)
		}
		rec.Variants = GenerateVariants(rec.Name)

		ms, err := compileMatchers(rec)
		if err != nil {
			return nil, fmt.Errorf("roster: client %s: %w", rec.ID, err)
		}
		nameRE, err := regexp.Compile(variantPattern(rec.Name))
		if err != nil {
			return nil, fmt.Errorf("roster: client %s: compiling name pattern: %w", rec.ID, err)
		}

		r.records[rec.ID] = rec
		r.order = append(r.order, rec.ID)
		r.matchers[rec.ID] = ms
		r.nameREs[rec.ID] = nameRE
	}
	return r, nil
}

// compileMatchers builds one pattern per variant in the union of explicit
// aliases and generated variants, sorted longest-first so a short alias never
// shadows a longer, more specific form.
func compileMatchers(rec ClientRecord) ([]matcher, error) {
	seen := map[string]bool{}
	var variants []string
	for _, v := range append(append([]string{}, rec.Aliases...), rec.Variants...) {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		key := strings.ToLower(v)
		if seen[key] {
			continue
		}
		seen[key] = true
		variants = append(variants, v)
	}

	sort.SliceStable(variants, func(i, j int) bool {
		return len(variants[i]) > len(variants[j])
	})

	ms := make([]matcher, 0, len(variants))
	for _, v := range variants {
		re, err := regexp.Compile(variantPattern(v))
		if err != nil {
			return nil, fmt.Errorf("compiling pattern for %q: %w", v, err)
		}
		ms = append(ms, matcher{variant: v, re: re})
	}
	return ms, nil
}

// variantPattern builds a case-insensitive pattern for one variant. Internal
// whitespace is flexible. Boundaries are enforced separately (see
// alnumBounded): plain \b would reject matches joined by underscores or
// punctuation ("Aramark_DC_Upgrade"), which we need to catch.
func variantPattern(variant string) string {
	fields := strings.Fields(variant)
	quoted := make([]string, len(fields))
	for i, f := range fields {
		quoted[i] = regexp.QuoteMeta(f)
	}
	return `(?i)` + strings.Join(quoted, `\s+`)
}

// alnumBounded reports whether the match [start,end) sits on alphanumeric
// boundaries: the characters immediately outside the match must not be ASCII
// letters or digits. Underscore and punctuation count as boundaries.
func alnumBounded(text string, start, end int) bool {
	if start > 0 && isAlnum(text[start-1]) {
		return false
	}
	if end < len(text) && isAlnum(text[end]) {
		return false
	}
	return true
}

func isAlnum(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

// ReplaceClientNames replaces every alias/variant match for the given client
// with its replacement token. Matches for each matcher are applied
// right-to-left so earlier offsets stay valid while the text length changes.
// Matches inside existing placeholder tokens are skipped. Returns the new
// text and the number of replacements.
func (r *Registry) ReplaceClientNames(text, clientID string) (string, int, error) {
	rec, ok := r.records[clientID]
	if !ok {
		return text, 0, fmt.Errorf("roster: unknown client id %q", clientID)
	}
	token := replacementToken(rec)

	total := 0
	for _, m := range r.matchers[clientID] {
		protected := placeholderRE.FindAllStringIndex(text, -1)
		matches := m.re.FindAllStringIndex(text, -1)
		for i := len(matches) - 1; i >= 0; i-- {
			s, e := matches[i][0], matches[i][1]
			if !alnumBounded(text, s, e) {
				continue
			}
			if overlapsAny(protected, s, e) {
				continue
			}
			text = text[:s] + token + text[e:]
			total++
		}
	}
	return text, total, nil
}

func overlapsAny(ranges [][]int, start, end int) bool {
	for _, r := range ranges {
		if start < r[1] && end > r[0] {
			return true
		}
	}
	return false
}

func replacementToken(rec ClientRecord) string {
	return fmt.Sprintf("<<CLIENT: %s>>", rec.IndustryLabel)
}

// ReplacementToken returns the placeholder written for this client's
// mentions, e.g. "<<CLIENT: Healthcare>>".
func (r *Registry) ReplacementToken(clientID string) (string, error) {
	rec, ok := r.records[clientID]
	if !ok {
		return "", fmt.Errorf("roster: unknown client id %q", clientID)
	}
	return replacementToken(rec), nil
}

// GeneratedVariants returns the derived name variants for a client. Used for
// prompt building and ORG-span filtering; callers must not mutate the slice.
func (r *Registry) GeneratedVariants(clientID string) []string {
	return r.records[clientID].Variants
}

// KnownNames returns the client's canonical name, explicit aliases, and
// generated variants as one list. This is the alias universe the orchestrator
// filters detected ORG spans against.
func (r *Registry) KnownNames(clientID string) []string {
	rec, ok := r.records[clientID]
	if !ok {
		return nil
	}
	out := make([]string, 0, 1+len(rec.Aliases)+len(rec.Variants))
	out = append(out, rec.Name)
	out = append(out, rec.Aliases...)
	out = append(out, rec.Variants...)
	return out
}

// ContainsName reports whether the client's canonical name still appears in
// text, using the same alphanumeric-boundary convention as replacement. The
// matcher is compiled at construction; strict validation calls this on
// redacted output.
func (r *Registry) ContainsName(text, clientID string) bool {
	re, ok := r.nameREs[clientID]
	if !ok {
		return false
	}
	for _, m := range re.FindAllStringIndex(text, -1) {
		if alnumBounded(text, m[0], m[1]) {
			return true
		}
	}
	return false
}

// Record returns the record for a client id.
func (r *Registry) Record(clientID string) (ClientRecord, bool) {
	rec, ok := r.records[clientID]
	return rec, ok
}

// Clients returns all records in roster order.
func (r *Registry) Clients() []ClientRecord {
	out := make([]ClientRecord, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.records[id])
	}
	return out
}
