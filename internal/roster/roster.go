// Package roster provides the client-alias registry used to redact client
// names from document text.
//
// A roster file (CSV) is loaded once into immutable ClientRecords, one per
// client id. Each record carries the client's primary name, its industry
// label (used as the replacement label), explicit aliases from the roster,
// and a derived set of generated name variants. Two roster header layouts
// are tolerated: the generic docscrub schema and the account-export layout
// produced by the CRM. The registry is read-only after construction, so one
// instance per worker needs no locking.
package roster

import (
	"encoding/csv"
	"fmt"
	"os"
	"strings"
)

// ClientRecord holds everything known about one client. Immutable after
// roster load.
type ClientRecord struct {
	ID            string
	Name          string
	IndustryLabel string
	Aliases       []string // explicit aliases from the roster
	Variants      []string // generated from Name, see GenerateVariants
}

// rosterSchema identifies which header layout a roster file uses.
type rosterSchema int

const (
	schemaUnknown rosterSchema = iota
	schemaGeneric              // client_id, client_name, industry_label, aliases
	schemaCRM                  // Account ID, Account Name, Industry, [Account Aliases]
)

// Load reads a roster CSV from disk and builds a Registry. A missing or
// malformed roster is a permanent configuration error: it fails here, before
// any document is processed.
func Load(path string) (*Registry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening roster %s: %w", path, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	// Tolerate CRM exports with trailing metadata columns.
	reader.FieldsPerRecord = -1

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parsing roster %s: %w", path, err)
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("roster %s: need a header row and at least one client", path)
	}

	records, err := parseRows(rows)
	if err != nil {
		return nil, fmt.Errorf("roster %s: %w", path, err)
	}
	return New(records)
}

// parseRows normalizes both tolerated header schemas into ClientRecords.
func parseRows(rows [][]string) ([]ClientRecord, error) {
	header := rows[0]
	// Excel-produced CSVs carry a UTF-8 byte-order mark on the first header.
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	schema, cols := detectSchema(header)
	if schema == schemaUnknown {
		return nil, fmt.Errorf("unrecognized header layout: %v", header)
	}

	var records []ClientRecord
	for i, row := range rows[1:] {
		get := func(col int) string {
			if col < 0 || col >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[col])
		}

		id := get(cols.id)
		name := get(cols.name)
		if id == "" || name == "" {
			continue // blank or partial row
		}

		rec := ClientRecord{
			ID:            id,
			Name:          name,
			IndustryLabel: get(cols.industry),
			Aliases:       splitAliases(get(cols.aliases)),
		}
		if rec.IndustryLabel == "" {
			rec.IndustryLabel = "Client"
		}
		if prev := findByID(records, id); prev >= 0 {
			return nil, fmt.Errorf("row %d: duplicate client id %q", i+2, id)
		}
		records = append(records, rec)
	}

	if len(records) == 0 {
		return nil, fmt.Errorf("no usable client rows")
	}
	return records, nil
}

// columnIndexes maps logical roster columns to CSV positions. -1 = absent.
type columnIndexes struct {
	id       int
	name     int
	industry int
	aliases  int
}

// detectSchema inspects the header row and returns the schema plus column
// positions. Header matching is case-insensitive and ignores surrounding
// whitespace.
func detectSchema(header []string) (rosterSchema, columnIndexes) {
	cols := columnIndexes{id: -1, name: -1, industry: -1, aliases: -1}
	norm := make([]string, len(header))
	for i, h := range header {
		norm[i] = strings.ToLower(strings.TrimSpace(h))
	}

	find := func(names ...string) int {
		for i, h := range norm {
			for _, n := range names {
				if h == n {
					return i
				}
			}
		}
		return -1
	}

	// Generic docscrub schema.
	if id := find("client_id", "clientid"); id >= 0 {
		cols.id = id
		cols.name = find("client_name", "clientname")
		cols.industry = find("industry_label", "industry")
		cols.aliases = find("aliases")
		if cols.name >= 0 {
			return schemaGeneric, cols
		}
	}

	// CRM account export.
	if id := find("account id", "account_id"); id >= 0 {
		cols.id = id
		cols.name = find("account name", "account_name")
		cols.industry = find("industry")
		cols.aliases = find("account aliases", "account_aliases", "aliases")
		if cols.name >= 0 {
			return schemaCRM, cols
		}
	}

	return schemaUnknown, cols
}

// splitAliases splits the roster's alias column. Both ';' and '|' are used
// in the wild depending on which system exported the file.
func splitAliases(raw string) []string {
	if raw == "" {
		return nil
	}
	split := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ';' || r == '|'
	})
	var out []string
	for _, a := range split {
		a = strings.TrimSpace(a)
		if a != "" {
			out = append(out, a)
		}
	}
	return out
}

func findByID(records []ClientRecord, id string) int {
	for i, r := range records {
		if r.ID == id {
			return i
		}
	}
	return -1
}
