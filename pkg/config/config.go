// Package config loads provider credentials and model limits for the
// completion handlers, and exposes a small encrypted-at-rest secrets store.
package config

import (
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// Known model identifiers. Callers are free to use any string; these are
// the ones ModelDefaults knows limits for out of the box.
const (
	ModelClaudeSonnet4 = "claude-sonnet-4-20250514"
	ModelGPT4o         = "gpt-4o"
	ModelGemini25Pro   = "gemini-2.5-pro"
	ModelLlama3        = "llama3"
)

// Model describes the operating limits for a single model.
type Model struct {
	Name             string  `yaml:"name" json:"name"`
	MaxContextTokens int     `yaml:"max_context_tokens" json:"max_context_tokens"`
	MaxOutputTokens  int     `yaml:"max_output_tokens" json:"max_output_tokens"`
	MaxTPM           int     `yaml:"max_tpm" json:"max_tpm"`
	MaxConnections   int     `yaml:"max_connections" json:"max_connections"`
	CPM              float64 `yaml:"cpm" json:"cpm"`
}

// ModelDefaults carries context-window and rate limits for the models this
// module ships providers for. Unknown models fall back to ModelDefault.
//
//nolint:gochecknoglobals // read-only table of defaults
var ModelDefaults = map[string]Model{
	ModelClaudeSonnet4: {Name: ModelClaudeSonnet4, MaxContextTokens: 200000, MaxOutputTokens: 8192, MaxTPM: 300000, MaxConnections: 5, CPM: 3.0},
	ModelGPT4o:         {Name: ModelGPT4o, MaxContextTokens: 128000, MaxOutputTokens: 16384, MaxTPM: 300000, MaxConnections: 5, CPM: 2.5},
	ModelGemini25Pro:   {Name: ModelGemini25Pro, MaxContextTokens: 1000000, MaxOutputTokens: 8192, MaxTPM: 300000, MaxConnections: 5, CPM: 1.25},
	ModelLlama3:        {Name: ModelLlama3, MaxContextTokens: 8192, MaxOutputTokens: 4096, MaxTPM: 0, MaxConnections: 10, CPM: 0},
}

// ModelDefault is returned by LookupModel for names ModelDefaults doesn't know.
var ModelDefault = Model{Name: "unknown", MaxContextTokens: 8192, MaxOutputTokens: 2048, MaxConnections: 2} //nolint:gochecknoglobals

// LookupModel returns the known limits for name, or ModelDefault if name
// isn't in ModelDefaults.
func LookupModel(name string) Model {
	if m, ok := ModelDefaults[name]; ok {
		return m
	}
	m := ModelDefault
	m.Name = name
	return m
}

// ProviderConfig names the model and secret key a provider entry uses.
type ProviderConfig struct {
	Model      string `yaml:"model" json:"model"`
	SecretName string `yaml:"secret_name" json:"secret_name"`
	BaseURL    string `yaml:"base_url,omitempty" json:"base_url,omitempty"`
}

// Config is the on-disk provider configuration, keyed by provider name
// ("anthropic", "openai", "google", "ollama").
type Config struct {
	Providers map[string]ProviderConfig `yaml:"providers" json:"providers"`
}

var (
	currentConfig   = &Config{Providers: map[string]ProviderConfig{}} //nolint:gochecknoglobals
	currentConfigMu sync.RWMutex                                     //nolint:gochecknoglobals
)

// Load reads a YAML provider configuration file and installs it as the
// process-wide config returned by GetConfig.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if cfg.Providers == nil {
		cfg.Providers = map[string]ProviderConfig{}
	}

	currentConfigMu.Lock()
	currentConfig = &cfg
	currentConfigMu.Unlock()

	return &cfg, nil
}

// GetConfig returns a copy of the currently loaded configuration.
func GetConfig() *Config {
	currentConfigMu.RLock()
	defer currentConfigMu.RUnlock()

	cp := Config{Providers: make(map[string]ProviderConfig, len(currentConfig.Providers))}
	for k, v := range currentConfig.Providers {
		cp.Providers[k] = v
	}
	return &cp
}

// LogInfo is a small stand-in for the config package's own user-facing
// status lines (kept separate from pkg/logx, which is component-scoped).
func LogInfo(format string, args ...any) {
	fmt.Printf(format+"\n", args...)
}
