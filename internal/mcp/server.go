// Package mcp provides a Model Context Protocol server for docscrub.
//
// It exposes the redaction pipeline (redact, validate, roster listing) as MCP
// tools and ledger statistics as an MCP resource, over stdio transport.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/meridianhq/docscrub/internal/ledger"
	"github.com/meridianhq/docscrub/internal/redact"
	"github.com/meridianhq/docscrub/internal/roster"
)

// ServerConfig holds the collaborators behind the MCP surface. Orchestrator
// is required; Registry and Ledger are optional.
type ServerConfig struct {
	Orchestrator *redact.Orchestrator
	Registry     *roster.Registry
	Ledger       *ledger.Ledger
	Version      string
}

// ledgerMu serializes ledger writes. mcp-go dispatches handlers on separate
// goroutines and SQLite supports a single writer.
var ledgerMu sync.Mutex

// NewServer creates a configured MCP server with all docscrub tools and
// resources.
func NewServer(cfg ServerConfig) *server.MCPServer {
	ver := cfg.Version
	if ver == "" {
		ver = "dev"
	}

	s := server.NewMCPServer(
		"docscrub",
		ver,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(true, false),
	)

	registerRedactTool(s, cfg)
	registerValidateTool(s, cfg)
	registerClientsTool(s, cfg)

	if cfg.Ledger != nil {
		registerStatsResource(s, cfg.Ledger)
	}

	return s
}

func registerRedactTool(s *server.MCPServer, cfg ServerConfig) {
	tool := mcp.NewTool("scrub_redact",
		mcp.WithDescription("Run the de-identification pipeline over document text. Replaces emails, phones, addresses, person names, and client-organization mentions with placeholder tokens. Returns the redacted text with per-category counts."),
		mcp.WithString("text",
			mcp.Required(),
			mcp.Description("Raw extracted document text"),
		),
		mcp.WithString("client_id",
			mcp.Description("Roster client id; enables client-name and entity redaction"),
		),
		mcp.WithString("file_type",
			mcp.Description("Lowercase source file extension, e.g. 'pdf' or 'xlsx'"),
		),
		mcp.WithString("vendor",
			mcp.Description("Known vendor name that must be preserved"),
		),
		mcp.WithString("source_path",
			mcp.Description("Source document path, recorded in the processing ledger"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		text, err := req.RequireString("text")
		if err != nil {
			return mcp.NewToolResultError("text is required"), nil
		}

		rctx := redact.Context{
			ClientID:   optString(req, "client_id"),
			FileType:   optString(req, "file_type"),
			VendorName: optString(req, "vendor"),
		}
		if cfg.Registry != nil && rctx.ClientID != "" {
			rec, ok := cfg.Registry.Record(rctx.ClientID)
			if !ok {
				return mcp.NewToolResultError(fmt.Sprintf("unknown client id %q", rctx.ClientID)), nil
			}
			rctx.ClientName = rec.Name
			rctx.Industry = rec.IndustryLabel
		}

		res := cfg.Orchestrator.Redact(ctx, text, rctx)

		if cfg.Ledger != nil {
			ledgerMu.Lock()
			_, lerr := cfg.Ledger.Record(ctx, optString(req, "source_path"), rctx.ClientID, rctx.FileType, res)
			ledgerMu.Unlock()
			if lerr != nil {
				res.Warnings = append(res.Warnings, fmt.Sprintf("ledger write failed: %v", lerr))
			}
		}

		data, err := json.MarshalIndent(res, "", "  ")
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("encoding result: %v", err)), nil
		}
		return mcp.NewToolResultText(string(data)), nil
	})
}

func registerValidateTool(s *server.MCPServer, cfg ServerConfig) {
	tool := mcp.NewTool("scrub_validate",
		mcp.WithDescription("Re-scan redacted text for residual PII or client-name leakage. Returns a JSON list of failure strings; empty means the text passes strict validation."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithString("text",
			mcp.Required(),
			mcp.Description("Redacted text to check"),
		),
		mcp.WithString("client_id",
			mcp.Description("Roster client id; enables the client-name leakage check"),
		),
		mcp.WithString("file_type",
			mcp.Description("Lowercase source file extension; spreadsheet types relax the phone check"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		text, err := req.RequireString("text")
		if err != nil {
			return mcp.NewToolResultError("text is required"), nil
		}

		failures := redact.NewValidator(cfg.Registry).Validate(text, redact.Context{
			ClientID: optString(req, "client_id"),
			FileType: optString(req, "file_type"),
		})
		if failures == nil {
			failures = []string{}
		}

		data, err := json.MarshalIndent(map[string]any{
			"passed":   len(failures) == 0,
			"failures": failures,
		}, "", "  ")
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("encoding result: %v", err)), nil
		}
		return mcp.NewToolResultText(string(data)), nil
	})
}

func registerClientsTool(s *server.MCPServer, cfg ServerConfig) {
	tool := mcp.NewTool("scrub_clients",
		mcp.WithDescription("List roster clients with their industry labels and alias counts."),
		mcp.WithReadOnlyHintAnnotation(true),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if cfg.Registry == nil {
			return mcp.NewToolResultError("no roster loaded"), nil
		}

		type clientInfo struct {
			ID            string `json:"id"`
			Name          string `json:"name"`
			IndustryLabel string `json:"industry_label"`
			AliasCount    int    `json:"alias_count"`
			VariantCount  int    `json:"variant_count"`
		}
		var out []clientInfo
		for _, rec := range cfg.Registry.Clients() {
			out = append(out, clientInfo{
				ID:            rec.ID,
				Name:          rec.Name,
				IndustryLabel: rec.IndustryLabel,
				AliasCount:    len(rec.Aliases),
				VariantCount:  len(rec.Variants),
			})
		}

		data, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("encoding result: %v", err)), nil
		}
		return mcp.NewToolResultText(string(data)), nil
	})
}

func registerStatsResource(s *server.MCPServer, l *ledger.Ledger) {
	resource := mcp.NewResource(
		"scrub://stats",
		"Processing Statistics",
		mcp.WithResourceDescription("Ledger-wide document counts by outcome."),
		mcp.WithMIMEType("application/json"),
	)

	s.AddResource(resource, func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		stats, err := l.Stats(ctx)
		if err != nil {
			return nil, fmt.Errorf("reading ledger stats: %w", err)
		}
		data, err := json.MarshalIndent(stats, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("encoding stats: %w", err)
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{URI: req.Params.URI, MIMEType: "application/json", Text: string(data)},
		}, nil
	})
}

func optString(req mcp.CallToolRequest, key string) string {
	if v, err := req.RequireString(key); err == nil {
		return v
	}
	return ""
}
