// Package redact implements the de-identification pipeline for extracted
// document text: deterministic pattern redaction, LLM-assisted entity
// redaction filtered to the current client, a deterministic alias backstop,
// and a strict post-condition validator.
//
// The orchestrator is the only stateful coordinator; the pattern matcher and
// validator are pure, and the roster registry and entity detector are
// read-only collaborators constructed once per worker.
package redact

// Placeholder tokens substituted for detected PII. The <<...>> bracket
// convention keeps placeholders syntactically distinguishable from document
// content; later pipeline stages never write inside an existing placeholder.
const (
	TokenEmail   = "<<EMAIL>>"
	TokenPhone   = "<<PHONE>>"
	TokenAddress = "<<ADDRESS>>"
	TokenPerson  = "<<PERSON>>"
)

// Context carries the per-document redaction context. Every field is
// optional, except that client-name redaction requires ClientID.
type Context struct {
	ClientID   string
	ClientName string
	Industry   string
	VendorName string
	FileType   string // lowercase extension, e.g. "xlsx"
	DocType    string // e.g. "contract", "invoice"
}

// HasClientInfo reports whether client-name redaction can run.
func (c Context) HasClientInfo() bool {
	return c.ClientID != ""
}

// Counts tracks replacements per category for one document.
type Counts struct {
	Client  int `json:"client"`
	Person  int `json:"person"`
	Email   int `json:"email"`
	Phone   int `json:"phone"`
	Address int `json:"address"`
}

// Total returns the sum across all categories.
func (c Counts) Total() int {
	return c.Client + c.Person + c.Email + c.Phone + c.Address
}

// Result is the immutable outcome of redacting one document. It is consumed
// by the downstream chunking collaborator and recorded in the processing
// ledger.
type Result struct {
	RedactedText       string   `json:"redacted_text"`
	Counts             Counts   `json:"counts"`
	Success            bool     `json:"success"`
	ValidationPassed   bool     `json:"validation_passed"`
	ValidationFailures []string `json:"validation_failures,omitempty"`
	Warnings           []string `json:"warnings,omitempty"`
	Errors             []string `json:"errors,omitempty"`
	Model              string   `json:"model,omitempty"`
}
