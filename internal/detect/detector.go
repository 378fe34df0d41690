// Package detect finds PERSON and client-ORG entity spans in arbitrary-length
// text by windowing it through an LLM collaborator. Results come back merged
// into global document offsets. The detector holds no per-call mutable state;
// one instance per worker is safe without locks.
package detect

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/meridianhq/docscrub/internal/llm"
	"github.com/meridianhq/docscrub/internal/metrics"
)

// EntityType classifies a detected span.
type EntityType string

const (
	EntityPerson EntityType = "PERSON"
	EntityOrg    EntityType = "ORG"
)

// EntitySpan is a half-open interval over the original document's character
// coordinates. Invariant: 0 <= Start < End <= len(document).
type EntitySpan struct {
	Start int
	End   int
	Type  EntityType
	Text  string
}

// Hints carries the client/vendor context given to the model so it can
// separate client mentions from vendor mentions.
type Hints struct {
	ClientName    string
	ClientAliases []string
	VendorName    string
}

// Config tunes windowing, batching, and retry behavior.
type Config struct {
	WindowSize        int
	WindowOverlap     int
	MaxWindowsPerCall int
	MaxCharsPerCall   int
	MaxRetries        int           // attempts = MaxRetries + 1
	RetryBaseDelay    time.Duration // 0 = 1s; backoff doubles per attempt
	MaxTokens         int           // response budget per call (0 = provider default)
}

// DefaultConfig returns the tuned defaults.
func DefaultConfig() Config {
	return Config{
		WindowSize:        DefaultWindowSize,
		WindowOverlap:     DefaultWindowOverlap,
		MaxWindowsPerCall: DefaultMaxWindowsPerCall,
		MaxCharsPerCall:   DefaultMaxCharsPerCall,
		MaxRetries:        3,
		RetryBaseDelay:    time.Second,
	}
}

// Detector sends windowed text to an LLM provider and merges the detected
// spans back to global offsets.
type Detector struct {
	provider llm.Provider
	cfg      Config
}

// New creates a Detector. The provider is required.
func New(provider llm.Provider, cfg Config) (*Detector, error) {
	if provider == nil {
		return nil, fmt.Errorf("detect: provider is required")
	}
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = DefaultWindowSize
	}
	if cfg.WindowOverlap < 0 || cfg.WindowOverlap >= cfg.WindowSize {
		cfg.WindowOverlap = DefaultWindowOverlap
	}
	if cfg.MaxWindowsPerCall <= 0 {
		cfg.MaxWindowsPerCall = DefaultMaxWindowsPerCall
	}
	if cfg.MaxCharsPerCall <= 0 {
		cfg.MaxCharsPerCall = DefaultMaxCharsPerCall
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = time.Second
	}
	return &Detector{provider: provider, cfg: cfg}, nil
}

// ModelName identifies the model used, recorded in redaction results.
func (d *Detector) ModelName() string {
	return d.provider.Name()
}

// Wire types for the collaborator contract.
type wireSpan struct {
	Start      int    `json:"start"`
	End        int    `json:"end"`
	EntityType string `json:"entityType"`
	Text       string `json:"text"`
}

type singleResponse struct {
	Spans []wireSpan `json:"spans"`
}

type batchResponse struct {
	Results []struct {
		WindowID int        `json:"windowId"`
		Spans    []wireSpan `json:"spans"`
	} `json:"results"`
}

// DetectSpans finds PERSON and client-ORG spans across the whole text.
// Batches are issued sequentially, keeping external API load predictable.
// An empty or malformed model response is retried with bounded exponential
// backoff; exhausting retries is a loud error — silently returning no spans
// would let PII through undetected.
func (d *Detector) DetectSpans(ctx context.Context, text string, hints Hints) ([]EntitySpan, error) {
	if text == "" {
		return nil, nil
	}

	windows := SplitWindows(text, d.cfg.WindowSize, d.cfg.WindowOverlap)
	batches := BatchWindows(windows, d.cfg.MaxWindowsPerCall, d.cfg.MaxCharsPerCall)

	var all []EntitySpan
	for _, batch := range batches {
		spansByWindow, err := d.callWithRetry(ctx, batch, hints)
		if err != nil {
			return nil, err
		}
		for _, w := range batch {
			for _, ws := range spansByWindow[w.ID] {
				if !validSpan(ws, w.Text) {
					// Log shape only; window content never reaches the logs.
					fmt.Fprintf(os.Stderr, "Warning: dropping invalid span window=%d windowLen=%d start=%d end=%d type=%q textLen=%d\n",
						w.ID, len(w.Text), ws.Start, ws.End, ws.EntityType, len(ws.Text))
					continue
				}
				all = append(all, EntitySpan{
					Start: w.GlobalOffset + ws.Start,
					End:   w.GlobalOffset + ws.End,
					Type:  EntityType(ws.EntityType),
					Text:  w.Text[ws.Start:ws.End],
				})
			}
		}
	}

	return MergeSpans(all), nil
}

// validSpan checks bounds, type, and the text echo. The echo must equal the
// window bytes at [start,end): a model counting characters instead of bytes
// drifts on non-ASCII text, and splicing the wrong substring is worse than
// dropping the span.
func validSpan(ws wireSpan, window string) bool {
	if ws.Start < 0 || ws.Start >= ws.End || ws.End > len(window) {
		return false
	}
	if ws.Text != window[ws.Start:ws.End] {
		return false
	}
	t := EntityType(ws.EntityType)
	return t == EntityPerson || t == EntityOrg
}

// MergeSpans sorts spans by start and collapses overlaps, keeping the longer
// span. Duplicate detections inside the window overlap buffer land here as
// overlapping spans from adjacent windows.
func MergeSpans(spans []EntitySpan) []EntitySpan {
	if len(spans) <= 1 {
		return spans
	}
	sorted := make([]EntitySpan, len(spans))
	copy(sorted, spans)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Start != sorted[j].Start {
			return sorted[i].Start < sorted[j].Start
		}
		return (sorted[i].End - sorted[i].Start) > (sorted[j].End - sorted[j].Start)
	})

	merged := sorted[:1]
	for _, s := range sorted[1:] {
		last := &merged[len(merged)-1]
		if s.Start < last.End {
			if s.End-s.Start > last.End-last.Start {
				*last = s
			}
			continue
		}
		merged = append(merged, s)
	}
	return merged
}

// Outcome of one model call: the tagged result the retry loop dispatches on.
type outcomeKind int

const (
	outcomeOK outcomeKind = iota
	outcomeTransient
	outcomePermanent
)

type attemptOutcome struct {
	kind       outcomeKind
	reason     string
	retryAfter time.Duration
	spans      map[int][]wireSpan
}

func (d *Detector) callWithRetry(ctx context.Context, batch []Window, hints Hints) (map[int][]wireSpan, error) {
	var lastReason string
	for attempt := 0; attempt <= d.cfg.MaxRetries; attempt++ {
		out := d.attempt(ctx, batch, hints)
		switch out.kind {
		case outcomeOK:
			return out.spans, nil
		case outcomePermanent:
			return nil, fmt.Errorf("entity detection: %s", out.reason)
		}

		lastReason = out.reason
		if attempt == d.cfg.MaxRetries {
			break
		}

		metrics.LLMRetries.Inc()
		backoff := d.cfg.RetryBaseDelay << attempt
		if out.retryAfter > 0 {
			backoff = out.retryAfter
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}
	return nil, fmt.Errorf("entity detection failed after %d attempts: %s", d.cfg.MaxRetries+1, lastReason)
}

// attempt makes one model call and classifies the result. Empty and non-JSON
// responses are transient: models intermittently return them and a retry
// usually succeeds. Client-side errors other than rate limiting are
// permanent — retrying a rejected request only burns quota.
func (d *Detector) attempt(ctx context.Context, batch []Window, hints Hints) attemptOutcome {
	comp, err := d.provider.Complete(ctx, buildPrompt(batch, hints), llm.CompletionOpts{
		Temperature: 0.0,
		Format:      "json",
		System:      systemPrompt,
		MaxTokens:   d.cfg.MaxTokens,
	})
	if err != nil {
		if ctx.Err() != nil {
			return attemptOutcome{kind: outcomePermanent, reason: ctx.Err().Error()}
		}
		var httpErr *llm.HTTPError
		if errors.As(err, &httpErr) {
			if httpErr.StatusCode == 429 || httpErr.StatusCode >= 500 {
				return attemptOutcome{
					kind:       outcomeTransient,
					reason:     fmt.Sprintf("HTTP %d from provider", httpErr.StatusCode),
					retryAfter: httpErr.RetryAfter,
				}
			}
			return attemptOutcome{kind: outcomePermanent, reason: httpErr.Error()}
		}
		// Network-level failures are worth retrying.
		return attemptOutcome{kind: outcomeTransient, reason: err.Error()}
	}

	content := strings.TrimSpace(comp.Content)
	if content == "" {
		return attemptOutcome{kind: outcomeTransient, reason: "empty model response"}
	}

	spans, err := parseSpans(content, batch)
	if err != nil {
		return attemptOutcome{kind: outcomeTransient, reason: err.Error()}
	}
	return attemptOutcome{kind: outcomeOK, spans: spans}
}

// parseSpans decodes either the single-window or batch schema into spans
// keyed by window id.
func parseSpans(content string, batch []Window) (map[int][]wireSpan, error) {
	out := make(map[int][]wireSpan, len(batch))

	if len(batch) == 1 {
		// A pointer field separates a legitimate empty {"spans": []} from a
		// reply that merely parses as JSON — a batch-schema or unrelated
		// object must retry, not silently yield zero spans.
		var single struct {
			Spans *[]wireSpan `json:"spans"`
		}
		if err := json.Unmarshal([]byte(content), &single); err != nil {
			return nil, fmt.Errorf("non-JSON model response (%d bytes)", len(content))
		}
		if single.Spans == nil {
			return nil, fmt.Errorf("response missing spans key (%d bytes)", len(content))
		}
		out[batch[0].ID] = *single.Spans
		return out, nil
	}

	var resp batchResponse
	if err := json.Unmarshal([]byte(content), &resp); err != nil {
		return nil, fmt.Errorf("non-JSON model response (%d bytes)", len(content))
	}
	if len(resp.Results) == 0 {
		return nil, fmt.Errorf("batch response missing results (%d bytes)", len(content))
	}
	known := make(map[int]bool, len(batch))
	for _, w := range batch {
		known[w.ID] = true
	}
	for _, r := range resp.Results {
		if !known[r.WindowID] {
			continue // window id we never sent; drop
		}
		out[r.WindowID] = append(out[r.WindowID], r.Spans...)
	}
	return out, nil
}
