package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestResolveConfig_Precedence_ConfigEnvCLI(t *testing.T) {
	tmp := t.TempDir()
	cfgPath := filepath.Join(tmp, "config.yaml")
	yaml := `ledger_path: ~/.docscrub/from-config.db
roster_path: /data/roster.csv
llm:
  model: openrouter/x-ai/grok-4.1-fast
`
	if err := os.WriteFile(cfgPath, []byte(yaml), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("DOCSCRUB_LEDGER", "~/from-env.db")
	t.Setenv("DOCSCRUB_LLM", "google/gemini-2.5-flash")

	resolved, err := ResolveConfig(ResolveOptions{
		ConfigPath:    cfgPath,
		CLILLM:        "openrouter/google/gemini-2.0-flash-001",
		CLILedgerPath: "~/from-cli.db",
	})
	if err != nil {
		t.Fatalf("ResolveConfig: %v", err)
	}

	if resolved.LedgerPath.Source != SourceCLI {
		t.Fatalf("expected ledger path source cli, got %s", resolved.LedgerPath.Source)
	}
	if resolved.LLMModel.Source != SourceCLI {
		t.Fatalf("expected llm model source cli, got %s", resolved.LLMModel.Source)
	}
	if resolved.RosterPath.Source != SourceConfig {
		t.Fatalf("expected roster path from config, got %s", resolved.RosterPath.Source)
	}
}

func TestResolveConfig_Defaults(t *testing.T) {
	resolved, err := ResolveConfig(ResolveOptions{ConfigPath: filepath.Join(t.TempDir(), "missing.yaml")})
	if err != nil {
		t.Fatalf("ResolveConfig: %v", err)
	}
	if resolved.LedgerPath.Source != SourceDefault || resolved.LedgerPath.Value == "" {
		t.Fatalf("ledger path default: %+v", resolved.LedgerPath)
	}
	if !resolved.StrictEnabled() {
		t.Fatal("strict mode should default on")
	}
}

func TestStrictEnabled(t *testing.T) {
	tests := []struct {
		value string
		want  bool
	}{
		{"true", true},
		{"false", false},
		{"0", false},
		{"no", false},
		{"OFF", false},
		{"", true},
		{"yes", true},
	}
	for _, tt := range tests {
		r := ResolvedConfig{Strict: ResolvedValue{Value: tt.value}}
		if got := r.StrictEnabled(); got != tt.want {
			t.Errorf("StrictEnabled(%q) = %v, want %v", tt.value, got, tt.want)
		}
	}
}

func TestAPIKeyForProvider_EnvOverridesConfig(t *testing.T) {
	tmp := t.TempDir()
	cfgPath := filepath.Join(tmp, "config.yaml")
	yaml := `llm:
  model: openrouter/x-ai/grok-4.1-fast
  api_key: config-key
`
	if err := os.WriteFile(cfgPath, []byte(yaml), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("OPENROUTER_API_KEY", "env-key")

	resolved, err := ResolveConfig(ResolveOptions{ConfigPath: cfgPath})
	if err != nil {
		t.Fatalf("ResolveConfig: %v", err)
	}
	k := resolved.APIKeyForProvider("openrouter/some-model")
	if k.Value != "env-key" {
		t.Fatalf("expected env key, got %q", k.Value)
	}
	if k.Source != SourceEnv {
		t.Fatalf("expected source env, got %s", k.Source)
	}
}
