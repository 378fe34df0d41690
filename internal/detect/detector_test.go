package detect

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/meridianhq/docscrub/internal/llm"
)

// scriptedProvider returns canned completions (or errors) in order.
type scriptedProvider struct {
	replies []string
	errs    []error
	calls   int
}

func (p *scriptedProvider) Name() string { return "test/scripted" }

func (p *scriptedProvider) Complete(ctx context.Context, prompt string, opts llm.CompletionOpts) (llm.Completion, error) {
	i := p.calls
	p.calls++
	if i < len(p.errs) && p.errs[i] != nil {
		return llm.Completion{}, p.errs[i]
	}
	reply := ""
	if i < len(p.replies) {
		reply = p.replies[i]
	}
	return llm.Completion{Content: reply, ID: fmt.Sprintf("call-%d", i), FinishReason: "stop"}, nil
}

func fastConfig() Config {
	cfg := DefaultConfig()
	cfg.MaxRetries = 2
	cfg.RetryBaseDelay = time.Millisecond
	return cfg
}

func TestDetectSpansSingleWindow(t *testing.T) {
	text := "Jane Doe of Acme Corp met the Globex sales team."
	provider := &scriptedProvider{replies: []string{
		`{"spans": [
			{"start": 0, "end": 8, "entityType": "PERSON", "text": "Jane Doe"},
			{"start": 12, "end": 21, "entityType": "ORG", "text": "Acme Corp"}
		]}`,
	}}

	d, err := New(provider, fastConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	spans, err := d.DetectSpans(context.Background(), text, Hints{ClientName: "Acme Corp"})
	if err != nil {
		t.Fatalf("DetectSpans: %v", err)
	}
	if len(spans) != 2 {
		t.Fatalf("want 2 spans, got %v", spans)
	}
	if spans[0].Type != EntityPerson || text[spans[0].Start:spans[0].End] != "Jane Doe" {
		t.Errorf("span 0: %+v", spans[0])
	}
	if spans[1].Type != EntityOrg || spans[1].Text != "Acme Corp" {
		t.Errorf("span 1: %+v", spans[1])
	}
	if provider.calls != 1 {
		t.Errorf("calls: got %d, want 1", provider.calls)
	}
}

func TestDetectSpansDropsInvalid(t *testing.T) {
	text := "Jane Doe signed."
	provider := &scriptedProvider{replies: []string{
		`{"spans": [
			{"start": 0, "end": 8, "entityType": "PERSON", "text": "Jane Doe"},
			{"start": 5, "end": 3, "entityType": "PERSON", "text": "x"},
			{"start": 0, "end": 999, "entityType": "PERSON", "text": "x"},
			{"start": -1, "end": 4, "entityType": "PERSON", "text": "x"},
			{"start": 0, "end": 4, "entityType": "PRODUCT", "text": "Jane"}
		]}`,
	}}

	d, _ := New(provider, fastConfig())
	spans, err := d.DetectSpans(context.Background(), text, Hints{})
	if err != nil {
		t.Fatalf("DetectSpans: %v", err)
	}
	if len(spans) != 1 {
		t.Fatalf("want only the valid span, got %v", spans)
	}
}

func TestDetectSpansEmptyText(t *testing.T) {
	provider := &scriptedProvider{}
	d, _ := New(provider, fastConfig())
	spans, err := d.DetectSpans(context.Background(), "", Hints{})
	if err != nil || spans != nil {
		t.Errorf("empty text: spans=%v err=%v", spans, err)
	}
	if provider.calls != 0 {
		t.Errorf("empty text should not call the model")
	}
}

func TestDetectSpansRetriesTransient(t *testing.T) {
	provider := &scriptedProvider{
		replies: []string{"", "not json at all", `{"spans": []}`},
	}
	d, _ := New(provider, fastConfig())

	spans, err := d.DetectSpans(context.Background(), "some text", Hints{})
	if err != nil {
		t.Fatalf("expected recovery after transient failures: %v", err)
	}
	if len(spans) != 0 {
		t.Errorf("spans: %v", spans)
	}
	if provider.calls != 3 {
		t.Errorf("calls: got %d, want 3", provider.calls)
	}
}

func TestDetectSpansRetryExhaustionIsLoud(t *testing.T) {
	provider := &scriptedProvider{replies: []string{"", "", ""}}
	d, _ := New(provider, fastConfig())

	_, err := d.DetectSpans(context.Background(), "some text", Hints{})
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if !strings.Contains(err.Error(), "after 3 attempts") {
		t.Errorf("error should report attempts: %v", err)
	}
}

func TestDetectSpansPermanentErrorNoRetry(t *testing.T) {
	provider := &scriptedProvider{
		errs: []error{&llm.HTTPError{StatusCode: 400, Message: "bad request"}},
	}
	d, _ := New(provider, fastConfig())

	_, err := d.DetectSpans(context.Background(), "some text", Hints{})
	if err == nil {
		t.Fatal("expected error")
	}
	if provider.calls != 1 {
		t.Errorf("permanent errors must not be retried: %d calls", provider.calls)
	}
}

func TestDetectSpansRateLimitIsTransient(t *testing.T) {
	provider := &scriptedProvider{
		errs:    []error{&llm.HTTPError{StatusCode: 429, Message: "slow down", RetryAfter: time.Millisecond}, nil},
		replies: []string{"", `{"spans": []}`},
	}
	d, _ := New(provider, fastConfig())

	if _, err := d.DetectSpans(context.Background(), "some text", Hints{}); err != nil {
		t.Fatalf("429 should be retried: %v", err)
	}
	if provider.calls != 2 {
		t.Errorf("calls: got %d, want 2", provider.calls)
	}
}

func TestDetectSpansBatchSchemaForSingleWindowRetried(t *testing.T) {
	// A batch-schema reply to a single-window request violates the contract;
	// it must be retried rather than silently read as zero spans.
	provider := &scriptedProvider{replies: []string{
		`{"results": [{"windowId": 0, "spans": [{"start": 0, "end": 8, "entityType": "PERSON", "text": "Jane Doe"}]}]}`,
		`{"spans": [{"start": 0, "end": 8, "entityType": "PERSON", "text": "Jane Doe"}]}`,
	}}
	d, _ := New(provider, fastConfig())

	spans, err := d.DetectSpans(context.Background(), "Jane Doe signed.", Hints{})
	if err != nil {
		t.Fatalf("DetectSpans: %v", err)
	}
	if len(spans) != 1 || spans[0].Text != "Jane Doe" {
		t.Fatalf("spans: %v", spans)
	}
	if provider.calls != 2 {
		t.Errorf("wrong-schema reply must trigger a retry: %d calls", provider.calls)
	}
}

func TestDetectSpansMissingSpansKeyIsLoud(t *testing.T) {
	provider := &scriptedProvider{replies: []string{`{}`, `{}`, `{}`}}
	d, _ := New(provider, fastConfig())

	_, err := d.DetectSpans(context.Background(), "Jane Doe signed.", Hints{})
	if err == nil {
		t.Fatal("an object without a spans key must not pass as zero spans")
	}
	if !strings.Contains(err.Error(), "spans") {
		t.Errorf("error should name the missing key: %v", err)
	}
	if provider.calls != 3 {
		t.Errorf("calls: got %d, want 3", provider.calls)
	}
}

func TestDetectSpansEmptySpansAccepted(t *testing.T) {
	provider := &scriptedProvider{replies: []string{`{"spans": []}`}}
	d, _ := New(provider, fastConfig())

	spans, err := d.DetectSpans(context.Background(), "nothing sensitive here", Hints{})
	if err != nil {
		t.Fatalf("explicit empty spans is a valid answer: %v", err)
	}
	if len(spans) != 0 || provider.calls != 1 {
		t.Errorf("spans=%v calls=%d", spans, provider.calls)
	}
}

func TestDetectSpansDropsTextMismatch(t *testing.T) {
	// "Café" is 5 bytes for 4 characters: a model counting characters
	// reports 15..23 where the bytes say 16..24. The mismatched echo is
	// dropped instead of splicing the wrong substring.
	text := "Café staff met Jane Doe."
	provider := &scriptedProvider{replies: []string{
		`{"spans": [
			{"start": 15, "end": 23, "entityType": "PERSON", "text": "Jane Doe"},
			{"start": 16, "end": 24, "entityType": "PERSON", "text": "Jane Doe"}
		]}`,
	}}
	d, _ := New(provider, fastConfig())

	spans, err := d.DetectSpans(context.Background(), text, Hints{})
	if err != nil {
		t.Fatalf("DetectSpans: %v", err)
	}
	if len(spans) != 1 {
		t.Fatalf("want only the byte-accurate span, got %v", spans)
	}
	if spans[0].Start != 16 || spans[0].End != 24 || text[spans[0].Start:spans[0].End] != "Jane Doe" {
		t.Errorf("span: %+v", spans[0])
	}
}

func TestMergeSpansKeepsLonger(t *testing.T) {
	spans := []EntitySpan{
		{Start: 10, End: 18, Type: EntityPerson, Text: "Jane Doe"},
		{Start: 10, End: 30, Type: EntityPerson, Text: "Jane Doe of Acme Co."},
		{Start: 40, End: 45, Type: EntityOrg, Text: "Acme2"},
	}
	merged := MergeSpans(spans)
	if len(merged) != 2 {
		t.Fatalf("want 2 spans, got %v", merged)
	}
	if merged[0].End != 30 {
		t.Errorf("overlap should keep the longer span: %+v", merged[0])
	}
}

var windowSectionRE = regexp.MustCompile(`(?s)--- BEGIN WINDOW (\d+) \(untrusted document data\) ---\n(.*?)\n--- END WINDOW`)

// nameFinder emulates the collaborator: it scans each window in the prompt
// for a fixed person name and reports window-relative offsets.
type nameFinder struct {
	name  string
	calls int
}

func (p *nameFinder) Name() string { return "test/name-finder" }

func (p *nameFinder) Complete(ctx context.Context, prompt string, opts llm.CompletionOpts) (llm.Completion, error) {
	p.calls++
	type result struct {
		WindowID int        `json:"windowId"`
		Spans    []wireSpan `json:"spans"`
	}
	var results []result

	for _, m := range windowSectionRE.FindAllStringSubmatch(prompt, -1) {
		var id int
		fmt.Sscanf(m[1], "%d", &id)
		windowText := m[2]
		r := result{WindowID: id, Spans: []wireSpan{}}
		for at := 0; ; {
			idx := strings.Index(windowText[at:], p.name)
			if idx < 0 {
				break
			}
			start := at + idx
			r.Spans = append(r.Spans, wireSpan{Start: start, End: start + len(p.name), EntityType: "PERSON", Text: p.name})
			at = start + len(p.name)
		}
		results = append(results, r)
	}

	single := strings.Contains(prompt, "Return the single-window schema")
	var body []byte
	if single && len(results) == 1 {
		body, _ = json.Marshal(singleResponse{Spans: results[0].Spans})
	} else {
		body, _ = json.Marshal(map[string]any{"results": results})
	}
	return llm.Completion{Content: string(body), FinishReason: "stop"}, nil
}

// A 120,000-char document with a person name straddling the 50,000 window
// boundary must come back as exactly one span after the merge — the overlap
// buffer makes the name fully visible to the second window, and the
// boundary-truncated sighting must not produce a duplicate or a fragment.
func TestDetectSpansBoundaryStraddle(t *testing.T) {
	const name = "Jonathan Pierce"
	doc := []byte(strings.Repeat("a", 120000))
	// Straddles the first window boundary at 50,000.
	straddleAt := 49993
	copy(doc[straddleAt:], name)
	// Sits fully inside the overlap buffer, visible to windows 0 and 1.
	overlapAt := 49100
	copy(doc[overlapAt:], name)
	text := string(doc)

	provider := &nameFinder{name: name}
	cfg := fastConfig()
	cfg.WindowSize = 50000
	cfg.WindowOverlap = 1000
	cfg.MaxCharsPerCall = 200000
	cfg.MaxWindowsPerCall = 4

	d, err := New(provider, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	spans, err := d.DetectSpans(context.Background(), text, Hints{ClientName: "Acme Corp"})
	if err != nil {
		t.Fatalf("DetectSpans: %v", err)
	}

	if len(spans) != 2 {
		t.Fatalf("want exactly 2 spans (one per planted name), got %d: %v", len(spans), spans)
	}
	for _, s := range spans {
		if text[s.Start:s.End] != name {
			t.Errorf("span does not cover the full name: %+v", s)
		}
	}
	if spans[0].Start != overlapAt || spans[1].Start != straddleAt {
		t.Errorf("global offsets wrong: got %d and %d, want %d and %d",
			spans[0].Start, spans[1].Start, overlapAt, straddleAt)
	}
}
