package redact

import (
	"strings"

	"github.com/meridianhq/docscrub/internal/roster"
)

// spreadsheetTypes are file types whose numeric density makes phone-pattern
// validation failures unacceptable. Phone redaction still runs for them; only
// the hard post-condition check is relaxed.
var spreadsheetTypes = map[string]bool{
	"csv":  true,
	"xls":  true,
	"xlsx": true,
	"xlsm": true,
}

// Validator re-scans redacted output for residual leakage. It is pure: one
// instance can validate any number of documents concurrently.
type Validator struct {
	registry *roster.Registry // nil = no client-name check
}

// NewValidator builds a Validator. The registry is optional.
func NewValidator(registry *roster.Registry) *Validator {
	return &Validator{registry: registry}
}

// Validate returns human-readable failure strings; empty means pass.
// Email leakage always fails. Phone leakage fails except for spreadsheet
// file types. Client-name leakage is checked with the same
// alphanumeric-boundary convention replacement uses.
func (v *Validator) Validate(text string, rctx Context) []string {
	var failures []string

	if HasEmail(text) {
		failures = append(failures, "email pattern remains in redacted text")
	}

	if !spreadsheetTypes[strings.ToLower(rctx.FileType)] && HasPhone(text) {
		failures = append(failures, "phone pattern remains in redacted text")
	}

	if v.registry != nil && rctx.HasClientInfo() && v.registry.ContainsName(text, rctx.ClientID) {
		failures = append(failures, "client name remains in redacted text")
	}

	return failures
}
