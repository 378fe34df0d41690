package redact

import (
	"strings"
	"testing"
)

func TestValidateCleanTextPasses(t *testing.T) {
	v := NewValidator(testRegistry(t))
	failures := v.Validate("All identifying details are <<PERSON>> and <<EMAIL>>.", Context{ClientID: "C1"})
	if len(failures) != 0 {
		t.Errorf("clean text should pass: %v", failures)
	}
}

func TestValidateResidualEmail(t *testing.T) {
	v := NewValidator(nil)
	failures := v.Validate("leaked: jane@acme.com", Context{})
	if len(failures) != 1 || !strings.Contains(failures[0], "email") {
		t.Errorf("failures: %v", failures)
	}
}

func TestValidateResidualPhone(t *testing.T) {
	v := NewValidator(nil)

	failures := v.Validate("call 555-123-4567", Context{FileType: "pdf"})
	if len(failures) != 1 || !strings.Contains(failures[0], "phone") {
		t.Errorf("failures: %v", failures)
	}

	// Spreadsheet-derived text is dense with numbers; the phone check is
	// relaxed there, case-insensitively on the file type.
	for _, ft := range []string{"xlsx", "XLSX", "csv", "xls"} {
		if failures := v.Validate("call 555-123-4567", Context{FileType: ft}); len(failures) != 0 {
			t.Errorf("file type %q: phone check should be skipped, got %v", ft, failures)
		}
	}
}

func TestValidateEmailCheckedEvenForSpreadsheets(t *testing.T) {
	v := NewValidator(nil)
	failures := v.Validate("jane@acme.com", Context{FileType: "xlsx"})
	if len(failures) != 1 || !strings.Contains(failures[0], "email") {
		t.Errorf("failures: %v", failures)
	}
}

func TestValidateResidualClientName(t *testing.T) {
	v := NewValidator(testRegistry(t))

	failures := v.Validate("Meeting notes for Acme Corp review", Context{ClientID: "C1"})
	if len(failures) != 1 || !strings.Contains(failures[0], "client") {
		t.Errorf("failures: %v", failures)
	}

	// Boundary convention: a name embedded in an alphanumeric run is not a
	// leak, but punctuation counts as a boundary.
	if failures := v.Validate("XAcme CorpY internal id", Context{ClientID: "C1"}); len(failures) != 0 {
		t.Errorf("embedded run should not fail: %v", failures)
	}
	if failures := v.Validate("re: Acme Corp/2024 review", Context{ClientID: "C1"}); len(failures) != 1 {
		t.Errorf("slash-adjacent name is a leak: %v", failures)
	}
}

func TestValidateNoClientContext(t *testing.T) {
	v := NewValidator(testRegistry(t))
	if failures := v.Validate("Acme Corp everywhere", Context{}); len(failures) != 0 {
		t.Errorf("without client context the name check is skipped: %v", failures)
	}
}
