package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loopforge/autocore/pkg/decision"
)

func writeTestConfig(t *testing.T, yamlBody string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "autocore.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yamlBody), 0o644))
	return path
}

func TestLoader_File_LoadAppliesDefaults(t *testing.T) {
	path := writeTestConfig(t, `
session:
  unattended: true
`)

	loader, err := NewLoader(LoaderOptions{Type: SourceFile, Path: path})
	require.NoError(t, err)
	defer loader.Stop()

	cfg, err := loader.Load()
	require.NoError(t, err)

	assert.True(t, cfg.Session.Unattended)
	assert.Equal(t, 3, cfg.Session.MaxConcurrentTasks)
	assert.Equal(t, decision.Bold, cfg.Autonomy)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoader_File_ExpandsEnvironmentVariables(t *testing.T) {
	t.Setenv("AUTOCORE_ADDR", ":9999")
	path := writeTestConfig(t, `
server:
  addr: ${AUTOCORE_ADDR}
`)

	loader, err := NewLoader(LoaderOptions{Type: SourceFile, Path: path})
	require.NoError(t, err)
	defer loader.Stop()

	cfg, err := loader.Load()
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.Server.Addr)
}

func TestLoader_File_EnvVarWithDefaultFallsBackWhenUnset(t *testing.T) {
	path := writeTestConfig(t, `
server:
  addr: ${AUTOCORE_UNSET_ADDR:-:7070}
`)

	loader, err := NewLoader(LoaderOptions{Type: SourceFile, Path: path})
	require.NoError(t, err)
	defer loader.Stop()

	cfg, err := loader.Load()
	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.Server.Addr)
}

func TestNewLoader_RequiresPath(t *testing.T) {
	_, err := NewLoader(LoaderOptions{Type: SourceFile})
	assert.Error(t, err)
}

func TestParseSourceType(t *testing.T) {
	got, err := ParseSourceType("Consul")
	require.NoError(t, err)
	assert.Equal(t, SourceConsul, got)

	_, err = ParseSourceType("bogus")
	assert.Error(t, err)
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("AUTOCORE_NAME", "widget")
	assert.Equal(t, "hello widget", expandEnvVars("hello $AUTOCORE_NAME"))
	assert.Equal(t, "hello widget", expandEnvVars("hello ${AUTOCORE_NAME}"))
	assert.Equal(t, "fallback", expandEnvVars("${AUTOCORE_MISSING:-fallback}"))
	assert.Equal(t, "no vars here", expandEnvVars("no vars here"))
}
