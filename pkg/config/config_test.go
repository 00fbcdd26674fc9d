package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookupModelReturnsKnownDefaults(t *testing.T) {
	m := LookupModel(ModelClaudeSonnet4)
	assert.Equal(t, 200000, m.MaxContextTokens)
}

func TestLookupModelFallsBackForUnknownModel(t *testing.T) {
	m := LookupModel("some-future-model")
	assert.Equal(t, "some-future-model", m.Name)
	assert.Equal(t, ModelDefault.MaxContextTokens, m.MaxContextTokens)
}

func TestLoadParsesYAMLAndInstallsCurrentConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yamlContent := "providers:\n  anthropic:\n    model: claude-sonnet-4-20250514\n    secret_name: ANTHROPIC_API_KEY\n"
	require.NoError(t, os.WriteFile(path, []byte(yamlContent), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Contains(t, cfg.Providers, "anthropic")
	assert.Equal(t, "ANTHROPIC_API_KEY", cfg.Providers["anthropic"].SecretName)

	got := GetConfig()
	assert.Equal(t, cfg.Providers["anthropic"], got.Providers["anthropic"])
}

func TestLoadRejectsMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadTreatsEmptyProvidersAsEmptyMapNotNil(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("{}\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.NotNil(t, cfg.Providers)
	assert.Empty(t, cfg.Providers)
}
