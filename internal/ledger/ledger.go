// Package ledger records per-document redaction outcomes in a SQLite
// database. Downstream tooling and the MCP surface read it to answer "what
// happened to this document" without re-running the pipeline. Redacted text
// itself is stored only when the caller opts in; the ledger is primarily
// status and counts.
package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/meridianhq/docscrub/internal/redact"
)

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	id           TEXT PRIMARY KEY,
	source_path  TEXT NOT NULL,
	client_id    TEXT NOT NULL DEFAULT '',
	file_type    TEXT NOT NULL DEFAULT '',
	success      INTEGER NOT NULL,
	validated    INTEGER NOT NULL,
	result_json  TEXT NOT NULL,
	processed_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_documents_client ON documents(client_id);
CREATE INDEX IF NOT EXISTS idx_documents_processed ON documents(processed_at);
`

// Entry is one recorded document outcome.
type Entry struct {
	ID          string
	SourcePath  string
	ClientID    string
	FileType    string
	Result      redact.Result
	ProcessedAt time.Time
}

// Stats summarizes the ledger.
type Stats struct {
	Total     int64 `json:"total"`
	Succeeded int64 `json:"succeeded"`
	Failed    int64 `json:"failed"`
}

// Ledger is the SQLite-backed processing record store.
type Ledger struct {
	db   *sql.DB
	path string
}

// Open creates or opens a ledger database. Pass ":memory:" for tests.
func Open(path string) (*Ledger, error) {
	if path == "" {
		return nil, fmt.Errorf("ledger: path is required")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("creating ledger directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening ledger: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging ledger: %w", err)
	}
	for _, p := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting pragma %q: %w", p, err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating ledger schema: %w", err)
	}
	return &Ledger{db: db, path: path}, nil
}

// Close closes the database.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// Record stores one document outcome and returns its generated id.
func (l *Ledger) Record(ctx context.Context, sourcePath, clientID, fileType string, res redact.Result) (string, error) {
	body, err := json.Marshal(res)
	if err != nil {
		return "", fmt.Errorf("encoding result: %w", err)
	}
	id := uuid.NewString()
	_, err = l.db.ExecContext(ctx, `
		INSERT INTO documents (id, source_path, client_id, file_type, success, validated, result_json, processed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, sourcePath, clientID, fileType,
		boolInt(res.Success), boolInt(res.ValidationPassed),
		string(body), time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return "", fmt.Errorf("recording document: %w", err)
	}
	return id, nil
}

// Get returns one entry by id.
func (l *Ledger) Get(ctx context.Context, id string) (*Entry, error) {
	row := l.db.QueryRowContext(ctx, `
		SELECT id, source_path, client_id, file_type, result_json, processed_at
		FROM documents WHERE id = ?`, id)
	return scanEntry(row)
}

// List returns the most recent entries, newest first. A non-empty clientID
// filters to one client.
func (l *Ledger) List(ctx context.Context, clientID string, limit int) ([]*Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, source_path, client_id, file_type, result_json, processed_at
		FROM documents`
	args := []any{}
	if clientID != "" {
		query += " WHERE client_id = ?"
		args = append(args, clientID)
	}
	query += " ORDER BY processed_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	defer rows.Close()

	var out []*Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Stats returns ledger-wide counts.
func (l *Ledger) Stats(ctx context.Context) (Stats, error) {
	var s Stats
	err := l.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(success), 0),
		       COALESCE(SUM(CASE WHEN success = 0 THEN 1 ELSE 0 END), 0)
		FROM documents`).Scan(&s.Total, &s.Succeeded, &s.Failed)
	if err != nil {
		return Stats{}, fmt.Errorf("reading ledger stats: %w", err)
	}
	return s, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*Entry, error) {
	var e Entry
	var body, processedAt string
	err := row.Scan(&e.ID, &e.SourcePath, &e.ClientID, &e.FileType, &body, &processedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("ledger: entry not found")
	}
	if err != nil {
		return nil, fmt.Errorf("scanning entry: %w", err)
	}
	if err := json.Unmarshal([]byte(body), &e.Result); err != nil {
		return nil, fmt.Errorf("decoding result for %s: %w", e.ID, err)
	}
	if t, err := time.Parse(time.RFC3339Nano, processedAt); err == nil {
		e.ProcessedAt = t
	}
	return &e, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
