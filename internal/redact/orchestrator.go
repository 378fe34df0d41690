package redact

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/meridianhq/docscrub/internal/detect"
	"github.com/meridianhq/docscrub/internal/metrics"
	"github.com/meridianhq/docscrub/internal/roster"
)

// placeholderRE matches placeholder tokens already written into the text.
// No stage writes inside one.
var placeholderRE = regexp.MustCompile(`<<[^>]{1,80}>>`)

// tailCollapseRE catches the dangling remainder of a partially replaced
// legal-entity name: up to ten title-cased tokens ending in a legal suffix,
// immediately after a placeholder ("<<CLIENT: X>> and Hospitals Authority
// Inc"). The whole run collapses back into the placeholder.
var tailCollapseRE = regexp.MustCompile(
	`(<<[^>]{1,80}>>)` +
		`(?:[ \t]+(?:and|of|the|&))?` +
		`(?:[ \t]+[A-Z][A-Za-z&'-]*){0,9}` +
		`[ \t]+(?:Incorporated|Inc|LLC|Ltd|Limited|Corporation|Corp|Company|Co|PLC|LLP|LP|PC|Authority|Holdings|Group)\b\.?`)

// EntityDetector is the LLM span-detection collaborator. *detect.Detector
// satisfies it; tests substitute a scripted fake.
type EntityDetector interface {
	DetectSpans(ctx context.Context, text string, hints detect.Hints) ([]detect.EntitySpan, error)
	ModelName() string
}

// Orchestrator runs the redaction pipeline: pattern stage, optional entity
// stage, client backstop, tail collapse, then strict validation when enabled.
// Stages run in fixed order, each consuming the previous stage's output.
// Construct one per worker; it holds only read-only collaborators.
type Orchestrator struct {
	registry *roster.Registry // nil = no client-name redaction
	detector EntityDetector   // nil = deterministic stages only
	strict   bool
}

// NewOrchestrator builds a pipeline. Both collaborators are optional: without
// a registry the client stages are skipped, without a detector the entity
// stage is skipped.
func NewOrchestrator(registry *roster.Registry, detector EntityDetector, strict bool) *Orchestrator {
	return &Orchestrator{registry: registry, detector: detector, strict: strict}
}

// Redact runs the full pipeline over one document and returns its immutable
// result. An entity-stage failure degrades to the deterministic stages with a
// warning; only strict validation can mark the result unsuccessful.
func (o *Orchestrator) Redact(ctx context.Context, text string, rctx Context) Result {
	start := time.Now()
	res := Result{Success: true, ValidationPassed: true}

	text, res.Counts = o.patternStage(text)

	if o.detector != nil && rctx.HasClientInfo() {
		res.Model = o.detector.ModelName()
		redacted, err := o.entityStage(ctx, text, rctx, &res.Counts)
		if err != nil {
			res.Warnings = append(res.Warnings,
				fmt.Sprintf("entity stage skipped, continuing with deterministic stages: %v", err))
			metrics.EntityStageDegraded.Inc()
		} else {
			text = redacted
		}
	}

	if o.registry != nil && rctx.HasClientInfo() {
		replaced, n, err := o.registry.ReplaceClientNames(text, rctx.ClientID)
		if err != nil {
			res.Errors = append(res.Errors, err.Error())
			res.Success = false
		} else {
			text = replaced
			res.Counts.Client += n
		}
	}

	text = CollapseTails(text)
	res.RedactedText = text

	if o.strict {
		failures := NewValidator(o.registry).Validate(text, rctx)
		if len(failures) > 0 {
			res.ValidationPassed = false
			res.ValidationFailures = failures
			res.Success = false
			res.Errors = append(res.Errors, "strict validation failed")
			metrics.ValidationFailures.Inc()
		}
	}

	o.observe(res)
	metrics.RedactionDuration.Observe(time.Since(start).Seconds())
	return res
}

func (o *Orchestrator) observe(res Result) {
	outcome := "redacted"
	if !res.Success {
		outcome = "failed"
	}
	metrics.DocumentsProcessed.WithLabelValues(outcome).Inc()
	metrics.Replacements.WithLabelValues("client").Add(float64(res.Counts.Client))
	metrics.Replacements.WithLabelValues("person").Add(float64(res.Counts.Person))
	metrics.Replacements.WithLabelValues("email").Add(float64(res.Counts.Email))
	metrics.Replacements.WithLabelValues("phone").Add(float64(res.Counts.Phone))
	metrics.Replacements.WithLabelValues("address").Add(float64(res.Counts.Address))
}

// patternStage replaces emails, phones, and addresses in that order. Each
// category's matches are applied right-to-left so earlier offsets stay valid.
func (o *Orchestrator) patternStage(text string) (string, Counts) {
	var counts Counts
	text, counts.Email = replaceRanges(text, FindEmails(text), TokenEmail)
	text, counts.Phone = replaceRanges(text, FindPhones(text), TokenPhone)
	text, counts.Address = replaceRanges(text, FindAddresses(text), TokenAddress)
	return text, counts
}

// replaceRanges splices token over each range, descending by start, skipping
// ranges inside existing placeholders. Reprocessing already-redacted text is
// therefore a no-op.
func replaceRanges(text string, ranges []Range, token string) (string, int) {
	protected := placeholderRE.FindAllStringIndex(text, -1)
	n := 0
	for i := len(ranges) - 1; i >= 0; i-- {
		r := ranges[i]
		if overlapsAny(protected, r.Start, r.End) {
			continue
		}
		text = text[:r.Start] + token + text[r.End:]
		n++
	}
	return text, n
}

// entityStage detects PERSON and ORG spans and applies them. PERSON spans are
// replaced unconditionally; ORG spans only when they match the current
// client's known names — the safety valve that keeps vendor and competitor
// organizations intact. It runs before the backstop stage so the model sees
// complete legal-entity names, not fragments.
func (o *Orchestrator) entityStage(ctx context.Context, text string, rctx Context, counts *Counts) (string, error) {
	hints := detect.Hints{ClientName: rctx.ClientName, VendorName: rctx.VendorName}
	names := []string{rctx.ClientName}
	if o.registry != nil {
		if rec, ok := o.registry.Record(rctx.ClientID); ok {
			if hints.ClientName == "" {
				hints.ClientName = rec.Name
			}
			names = o.registry.KnownNames(rctx.ClientID)
			hints.ClientAliases = names
		}
	}

	spans, err := o.detector.DetectSpans(ctx, text, hints)
	if err != nil {
		return "", err
	}

	orgToken := o.orgToken(rctx)
	type repl struct {
		span  detect.EntitySpan
		token string
	}
	var repls []repl
	for _, s := range spans {
		switch s.Type {
		case detect.EntityPerson:
			repls = append(repls, repl{span: s, token: TokenPerson})
		case detect.EntityOrg:
			if orgMatchesClient(s.Text, names) {
				repls = append(repls, repl{span: s, token: orgToken})
			}
		}
	}

	sort.Slice(repls, func(i, j int) bool { return repls[i].span.Start > repls[j].span.Start })

	protected := placeholderRE.FindAllStringIndex(text, -1)
	lastStart := len(text) + 1
	for _, r := range repls {
		s, e := r.span.Start, r.span.End
		if e > len(text) || s < 0 {
			continue
		}
		if e > lastStart || overlapsAny(protected, s, e) {
			continue
		}
		text = text[:s] + r.token + text[e:]
		lastStart = s
		if r.token == TokenPerson {
			counts.Person++
		} else {
			counts.Client++
		}
	}
	return text, nil
}

func (o *Orchestrator) orgToken(rctx Context) string {
	if o.registry != nil {
		if token, err := o.registry.ReplacementToken(rctx.ClientID); err == nil {
			return token
		}
	}
	label := rctx.Industry
	if label == "" {
		label = "Client"
	}
	return fmt.Sprintf("<<CLIENT: %s>>", label)
}

// orgMatchesClient reports whether a detected ORG span refers to the current
// client: equality or substring overlap in either direction against the known
// names, case-insensitive.
func orgMatchesClient(spanText string, names []string) bool {
	st := strings.ToLower(strings.TrimSpace(spanText))
	if st == "" {
		return false
	}
	for _, n := range names {
		nl := strings.ToLower(strings.TrimSpace(n))
		if nl == "" {
			continue
		}
		if st == nl || strings.Contains(st, nl) || strings.Contains(nl, st) {
			return true
		}
	}
	return false
}

// CollapseTails removes dangling legal-entity fragments left immediately after
// a placeholder, folding them back into the placeholder itself.
func CollapseTails(text string) string {
	return tailCollapseRE.ReplaceAllString(text, "$1")
}

func overlapsAny(ranges [][]int, start, end int) bool {
	for _, r := range ranges {
		if start < r[1] && end > r[0] {
			return true
		}
	}
	return false
}
