package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/mark3labs/mcp-go/server"

	"github.com/meridianhq/docscrub/internal/config"
	"github.com/meridianhq/docscrub/internal/detect"
	"github.com/meridianhq/docscrub/internal/ledger"
	"github.com/meridianhq/docscrub/internal/llm"
	"github.com/meridianhq/docscrub/internal/mcp"
	"github.com/meridianhq/docscrub/internal/redact"
	"github.com/meridianhq/docscrub/internal/roster"
)

const version = "0.1.0-dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(0)
	}

	var err error
	switch os.Args[1] {
	case "redact":
		err = runRedact(os.Args[2:])
	case "validate":
		err = runValidate(os.Args[2:])
	case "clients":
		err = runClients(os.Args[2:])
	case "history":
		err = runHistory(os.Args[2:])
	case "serve-mcp":
		err = runServeMCP(os.Args[2:])
	case "config":
		err = runConfig(os.Args[2:])
	case "version", "--version", "-v":
		fmt.Printf("docscrub %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// cliFlags are the flags shared by most commands, parsed by hand in the
// same loop style as the positional arguments.
type cliFlags struct {
	paths      []string
	clientID   string
	vendor     string
	fileType   string
	out        string
	configPath string
	rosterPath string
	ledgerPath string
	llmFlag    string
	strictFlag string
	noLLM      bool
	asJSON     bool
	limit      int
}

func parseArgs(args []string) (cliFlags, error) {
	var f cliFlags
	for i := 0; i < len(args); i++ {
		arg := args[i]
		next := func() (string, error) {
			i++
			if i >= len(args) {
				return "", fmt.Errorf("flag %s needs a value", arg)
			}
			return args[i], nil
		}
		var err error
		switch {
		case arg == "--client" || arg == "-c":
			f.clientID, err = next()
		case arg == "--vendor":
			f.vendor, err = next()
		case arg == "--file-type":
			f.fileType, err = next()
		case arg == "--out" || arg == "-o":
			f.out, err = next()
		case arg == "--config":
			f.configPath, err = next()
		case arg == "--roster":
			f.rosterPath, err = next()
		case arg == "--ledger":
			f.ledgerPath, err = next()
		case arg == "--llm":
			f.llmFlag, err = next()
		case arg == "--strict":
			f.strictFlag = "true"
		case arg == "--no-strict":
			f.strictFlag = "false"
		case arg == "--no-llm":
			f.noLLM = true
		case arg == "--json":
			f.asJSON = true
		case arg == "--limit":
			var v string
			if v, err = next(); err == nil {
				if _, serr := fmt.Sscanf(v, "%d", &f.limit); serr != nil {
					err = fmt.Errorf("invalid --limit %q", v)
				}
			}
		case strings.HasPrefix(arg, "-"):
			err = fmt.Errorf("unknown flag: %s", arg)
		default:
			f.paths = append(f.paths, arg)
		}
		if err != nil {
			return f, err
		}
	}
	return f, nil
}

func (f cliFlags) resolve() (config.ResolvedConfig, error) {
	return config.ResolveConfig(config.ResolveOptions{
		ConfigPath:    f.configPath,
		CLILLM:        f.llmFlag,
		CLIRoster:     f.rosterPath,
		CLILedgerPath: f.ledgerPath,
		CLIStrict:     f.strictFlag,
	})
}

func loadRegistry(resolved config.ResolvedConfig) (*roster.Registry, error) {
	path := resolved.RosterPath.Value
	if path == "" {
		return nil, nil
	}
	return roster.Load(path)
}

func buildDetector(resolved config.ResolvedConfig) (*detect.Detector, error) {
	cfg, err := llm.ParseLLMFlag(resolved.LLMModel.Value)
	if err != nil {
		return nil, err
	}
	if key := resolved.APIKeyForProvider(cfg.Provider); key.Value != "" {
		cfg.APIKey = key.Value
	}
	provider, err := llm.NewProvider(cfg)
	if err != nil {
		return nil, err
	}
	return detect.New(provider, detect.DefaultConfig())
}

func runRedact(args []string) error {
	f, err := parseArgs(args)
	if err != nil {
		return err
	}
	if len(f.paths) != 1 {
		return fmt.Errorf("usage: docscrub redact <file> [--client <id>] [--roster <csv>] [--llm provider/model] [--no-llm] [--no-strict] [--out <file>] [--json]")
	}

	resolved, err := f.resolve()
	if err != nil {
		return err
	}

	registry, err := loadRegistry(resolved)
	if err != nil {
		return err
	}
	if f.clientID != "" && registry == nil {
		return fmt.Errorf("--client requires a roster (--roster or config roster_path)")
	}

	var detector redact.EntityDetector
	if f.clientID != "" && !f.noLLM {
		d, err := buildDetector(resolved)
		if err != nil {
			return err
		}
		detector = d
	}

	raw, err := os.ReadFile(f.paths[0])
	if err != nil {
		return fmt.Errorf("reading %s: %w", f.paths[0], err)
	}

	rctx := redact.Context{
		ClientID:   f.clientID,
		VendorName: f.vendor,
		FileType:   strings.ToLower(strings.TrimPrefix(f.fileType, ".")),
	}
	if rctx.FileType == "" {
		rctx.FileType = fileTypeOf(f.paths[0])
	}
	if registry != nil && f.clientID != "" {
		rec, ok := registry.Record(f.clientID)
		if !ok {
			return fmt.Errorf("unknown client id %q", f.clientID)
		}
		rctx.ClientName = rec.Name
		rctx.Industry = rec.IndustryLabel
	}

	orchestrator := redact.NewOrchestrator(registry, detector, resolved.StrictEnabled())
	res := orchestrator.Redact(context.Background(), string(raw), rctx)

	if l, err := ledger.Open(resolved.LedgerPath.Value); err == nil {
		if _, lerr := l.Record(context.Background(), f.paths[0], rctx.ClientID, rctx.FileType, res); lerr != nil {
			fmt.Fprintf(os.Stderr, "Warning: ledger write failed: %v\n", lerr)
		}
		l.Close()
	} else {
		fmt.Fprintf(os.Stderr, "Warning: opening ledger: %v\n", err)
	}

	for _, w := range res.Warnings {
		fmt.Fprintf(os.Stderr, "Warning: %s\n", w)
	}

	if f.asJSON {
		return printJSON(res)
	}

	if f.out != "" {
		if err := os.WriteFile(f.out, []byte(res.RedactedText), 0o600); err != nil {
			return fmt.Errorf("writing %s: %w", f.out, err)
		}
	} else {
		fmt.Println(res.RedactedText)
	}

	fmt.Fprintf(os.Stderr, "Replacements: client=%d person=%d email=%d phone=%d address=%d\n",
		res.Counts.Client, res.Counts.Person, res.Counts.Email, res.Counts.Phone, res.Counts.Address)

	if !res.Success {
		for _, e := range res.Errors {
			fmt.Fprintf(os.Stderr, "Error: %s\n", e)
		}
		for _, v := range res.ValidationFailures {
			fmt.Fprintf(os.Stderr, "Validation: %s\n", v)
		}
		return fmt.Errorf("redaction failed")
	}
	return nil
}

func runValidate(args []string) error {
	f, err := parseArgs(args)
	if err != nil {
		return err
	}
	if len(f.paths) != 1 {
		return fmt.Errorf("usage: docscrub validate <file> [--client <id>] [--roster <csv>]")
	}

	resolved, err := f.resolve()
	if err != nil {
		return err
	}
	registry, err := loadRegistry(resolved)
	if err != nil {
		return err
	}

	raw, err := os.ReadFile(f.paths[0])
	if err != nil {
		return fmt.Errorf("reading %s: %w", f.paths[0], err)
	}

	rctx := redact.Context{ClientID: f.clientID, FileType: f.fileType}
	if rctx.FileType == "" {
		rctx.FileType = fileTypeOf(f.paths[0])
	}

	failures := redact.NewValidator(registry).Validate(string(raw), rctx)
	if len(failures) == 0 {
		fmt.Println("PASS")
		return nil
	}
	for _, v := range failures {
		fmt.Printf("FAIL: %s\n", v)
	}
	return fmt.Errorf("%d validation failure(s)", len(failures))
}

func runClients(args []string) error {
	f, err := parseArgs(args)
	if err != nil {
		return err
	}
	resolved, err := f.resolve()
	if err != nil {
		return err
	}
	registry, err := loadRegistry(resolved)
	if err != nil {
		return err
	}
	if registry == nil {
		return fmt.Errorf("no roster configured (--roster or config roster_path)")
	}

	if f.asJSON {
		return printJSON(registry.Clients())
	}
	for _, rec := range registry.Clients() {
		fmt.Printf("%-12s %-30s %-20s aliases=%d variants=%d\n",
			rec.ID, rec.Name, rec.IndustryLabel, len(rec.Aliases), len(rec.Variants))
	}
	return nil
}

func runHistory(args []string) error {
	f, err := parseArgs(args)
	if err != nil {
		return err
	}
	resolved, err := f.resolve()
	if err != nil {
		return err
	}

	l, err := ledger.Open(resolved.LedgerPath.Value)
	if err != nil {
		return err
	}
	defer l.Close()

	ctx := context.Background()
	entries, err := l.List(ctx, f.clientID, f.limit)
	if err != nil {
		return err
	}
	if f.asJSON {
		return printJSON(entries)
	}
	for _, e := range entries {
		status := "ok"
		if !e.Result.Success {
			status = "FAILED"
		}
		fmt.Printf("%s  %-6s  %-10s  %-4d repl  %s\n",
			e.ProcessedAt.Format("2006-01-02 15:04:05"), status, e.ClientID, e.Result.Counts.Total(), e.SourcePath)
	}

	stats, err := l.Stats(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("\nTotal: %d  succeeded: %d  failed: %d\n", stats.Total, stats.Succeeded, stats.Failed)
	return nil
}

func runServeMCP(args []string) error {
	f, err := parseArgs(args)
	if err != nil {
		return err
	}
	resolved, err := f.resolve()
	if err != nil {
		return err
	}
	registry, err := loadRegistry(resolved)
	if err != nil {
		return err
	}

	var detector redact.EntityDetector
	if registry != nil && !f.noLLM {
		d, err := buildDetector(resolved)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: entity detection disabled: %v\n", err)
		} else {
			detector = d
		}
	}

	l, err := ledger.Open(resolved.LedgerPath.Value)
	if err != nil {
		return err
	}
	defer l.Close()

	srv := mcp.NewServer(mcp.ServerConfig{
		Orchestrator: redact.NewOrchestrator(registry, detector, resolved.StrictEnabled()),
		Registry:     registry,
		Ledger:       l,
		Version:      version,
	})
	return server.ServeStdio(srv)
}

func runConfig(args []string) error {
	f, err := parseArgs(args)
	if err != nil {
		return err
	}
	resolved, err := f.resolve()
	if err != nil {
		return err
	}
	return printJSON(resolved)
}

func fileTypeOf(path string) string {
	if idx := strings.LastIndex(path, "."); idx >= 0 && idx < len(path)-1 {
		return strings.ToLower(path[idx+1:])
	}
	return ""
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printUsage() {
	fmt.Printf(`docscrub %s — document de-identification pipeline

Usage:
  docscrub <command> [arguments]

Commands:
  redact <file>       Redact PII and client names from extracted text
  validate <file>     Check redacted text for residual leakage
  clients             List roster clients and their generated variants
  history             Show the processing ledger
  serve-mcp           Serve the pipeline over MCP (stdio)
  config              Print the resolved configuration and value sources
  version             Print version

Flags:
  -c, --client <id>   Roster client id for this document
      --roster <csv>  Client roster file
      --vendor <name> Vendor name to preserve
      --file-type <t> Source file type (relaxes phone validation for spreadsheets)
      --llm <p/m>     LLM for entity detection, e.g. google/gemini-2.5-flash
      --no-llm        Skip the LLM entity stage
      --no-strict     Disable strict post-redaction validation
      --ledger <db>   Processing ledger path
      --config <yaml> Config file (default ~/.docscrub/config.yaml)
  -o, --out <file>    Write redacted text to a file instead of stdout
      --json          Emit JSON output
      --limit <n>     Max history entries
  -h, --help          Show this help message
  -v, --version       Print version
`, version)
}
