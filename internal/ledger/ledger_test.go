package ledger

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/meridianhq/docscrub/internal/redact"
)

func openTestLedger(t *testing.T) *Ledger {
	t.Helper()
	l, err := Open(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	return l
}

func TestRecordAndGet(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()

	res := redact.Result{
		RedactedText:     "redacted",
		Counts:           redact.Counts{Email: 2, Client: 1},
		Success:          true,
		ValidationPassed: true,
		Model:            "google/gemini-2.5-flash",
	}
	id, err := l.Record(ctx, "/docs/contract.pdf", "C1", "pdf", res)
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if id == "" {
		t.Fatal("empty id")
	}

	got, err := l.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.SourcePath != "/docs/contract.pdf" || got.ClientID != "C1" || got.FileType != "pdf" {
		t.Errorf("entry: %+v", got)
	}
	if got.Result.Counts != res.Counts || !got.Result.Success {
		t.Errorf("result round trip: %+v", got.Result)
	}
	if got.ProcessedAt.IsZero() {
		t.Error("processed_at not recorded")
	}
}

func TestGetMissing(t *testing.T) {
	l := openTestLedger(t)
	if _, err := l.Get(context.Background(), "nope"); err == nil {
		t.Fatal("expected error for missing entry")
	}
}

func TestListFiltersByClient(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()

	for _, c := range []string{"C1", "C2", "C1"} {
		if _, err := l.Record(ctx, "/doc", c, "pdf", redact.Result{Success: true, ValidationPassed: true}); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	all, err := l.List(ctx, "", 10)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("all: %d entries", len(all))
	}

	c1, err := l.List(ctx, "C1", 10)
	if err != nil {
		t.Fatalf("List C1: %v", err)
	}
	if len(c1) != 2 {
		t.Errorf("C1: %d entries", len(c1))
	}
}

func TestStats(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()

	l.Record(ctx, "/a", "C1", "pdf", redact.Result{Success: true, ValidationPassed: true})
	l.Record(ctx, "/b", "C1", "pdf", redact.Result{Success: false})

	s, err := l.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if s.Total != 2 || s.Succeeded != 1 || s.Failed != 1 {
		t.Errorf("stats: %+v", s)
	}
}
