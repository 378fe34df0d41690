package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

type ValueSource string

const (
	SourceUnknown ValueSource = "unknown"
	SourceConfig  ValueSource = "config"
	SourceEnv     ValueSource = "env"
	SourceCLI     ValueSource = "cli"
	SourceDefault ValueSource = "default"
)

// ResolvedValue is a setting plus where it came from, so `docscrub config`
// can show users why a value is in effect.
type ResolvedValue struct {
	Value  string      `json:"value"`
	Source ValueSource `json:"source"`
	From   string      `json:"from,omitempty"`
}

type ResolveOptions struct {
	ConfigPath    string
	CLILLM        string
	CLIRoster     string
	CLILedgerPath string
	CLIStrict     string // "", "true", "false"
}

type ResolvedConfig struct {
	ConfigPath string `json:"config_path"`

	LedgerPath ResolvedValue `json:"ledger_path"`
	RosterPath ResolvedValue `json:"roster_path"`
	LLMModel   ResolvedValue `json:"llm_model"`
	Strict     ResolvedValue `json:"strict"`

	LLMKeys map[string]ResolvedValue `json:"llm_keys,omitempty"`
}

type fileConfig struct {
	LedgerPath string `yaml:"ledger_path"`
	RosterPath string `yaml:"roster_path"`
	Strict     *bool  `yaml:"strict"`
	LLM        struct {
		Model  string `yaml:"model"`
		APIKey string `yaml:"api_key"`
	} `yaml:"llm"`
}

func DefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".docscrub", "config.yaml")
}

// DefaultLedgerPath is where the processing ledger lives when nothing
// overrides it.
func DefaultLedgerPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".docscrub", "ledger.db")
}

// ResolveConfig layers the config file, DOCSCRUB_* environment variables, and
// CLI flags, in ascending precedence.
func ResolveConfig(opts ResolveOptions) (ResolvedConfig, error) {
	path := strings.TrimSpace(opts.ConfigPath)
	if path == "" {
		path = DefaultConfigPath()
	}

	out := ResolvedConfig{
		ConfigPath: path,
		LLMKeys:    map[string]ResolvedValue{},
		LedgerPath: ResolvedValue{Value: DefaultLedgerPath(), Source: SourceDefault, From: "built-in default"},
		Strict:     ResolvedValue{Value: "true", Source: SourceDefault, From: "built-in default"},
	}

	cfg, err := loadConfig(path)
	if err != nil {
		return out, err
	}

	if cfg != nil {
		apply(&out.LedgerPath, cfg.LedgerPath, SourceConfig, path)
		apply(&out.RosterPath, cfg.RosterPath, SourceConfig, path)
		apply(&out.LLMModel, cfg.LLM.Model, SourceConfig, path)
		if cfg.Strict != nil {
			out.Strict = ResolvedValue{Value: fmt.Sprintf("%t", *cfg.Strict), Source: SourceConfig, From: path}
		}
		if key := strings.TrimSpace(cfg.LLM.APIKey); key != "" {
			provider := providerOf(cfg.LLM.Model)
			if provider == "" {
				provider = "default"
			}
			out.LLMKeys[provider] = ResolvedValue{Value: key, Source: SourceConfig, From: path}
		}
	}

	applyEnv(&out.LedgerPath, "DOCSCRUB_LEDGER")
	applyEnv(&out.RosterPath, "DOCSCRUB_ROSTER")
	applyEnv(&out.LLMModel, "DOCSCRUB_LLM")
	applyEnv(&out.Strict, "DOCSCRUB_STRICT")

	for env, provider := range map[string]string{
		"OPENROUTER_API_KEY": "openrouter",
		"GEMINI_API_KEY":     "google",
		"GOOGLE_API_KEY":     "google",
	} {
		if v := strings.TrimSpace(os.Getenv(env)); v != "" {
			out.LLMKeys[provider] = ResolvedValue{Value: v, Source: SourceEnv, From: env}
		}
	}

	apply(&out.LLMModel, opts.CLILLM, SourceCLI, "--llm")
	apply(&out.RosterPath, opts.CLIRoster, SourceCLI, "--roster")
	apply(&out.LedgerPath, opts.CLILedgerPath, SourceCLI, "--ledger")
	apply(&out.Strict, opts.CLIStrict, SourceCLI, "--strict")

	out.LedgerPath.Value = expandUserPath(out.LedgerPath.Value)
	out.RosterPath.Value = expandUserPath(out.RosterPath.Value)

	return out, nil
}

// StrictEnabled interprets the resolved strict flag; anything other than an
// explicit "false"/"0"/"no" keeps strict mode on.
func (r ResolvedConfig) StrictEnabled() bool {
	switch strings.ToLower(strings.TrimSpace(r.Strict.Value)) {
	case "false", "0", "no", "off":
		return false
	}
	return true
}

// APIKeyForProvider returns the key for a "provider/model" string or bare
// provider name.
func (r ResolvedConfig) APIKeyForProvider(providerOrModel string) ResolvedValue {
	provider := providerOf(providerOrModel)
	if provider == "" {
		return ResolvedValue{}
	}
	if v, ok := r.LLMKeys[provider]; ok && strings.TrimSpace(v.Value) != "" {
		return v
	}
	if v, ok := r.LLMKeys["default"]; ok && strings.TrimSpace(v.Value) != "" {
		return v
	}
	return ResolvedValue{}
}

func providerOf(providerOrModel string) string {
	v := strings.ToLower(strings.TrimSpace(providerOrModel))
	if v == "" {
		return ""
	}
	if idx := strings.Index(v, "/"); idx > 0 {
		return v[:idx]
	}
	return v
}

func apply(dst *ResolvedValue, raw string, source ValueSource, from string) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return
	}
	*dst = ResolvedValue{Value: v, Source: source, From: from}
}

func applyEnv(dst *ResolvedValue, envKey string) {
	if v := strings.TrimSpace(os.Getenv(envKey)); v != "" {
		*dst = ResolvedValue{Value: v, Source: SourceEnv, From: envKey}
	}
}

func loadConfig(path string) (*fileConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var cfg fileConfig
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return &cfg, nil
}

func expandUserPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
