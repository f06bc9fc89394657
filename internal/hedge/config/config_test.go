package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeTempConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "hedge_engine.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadConfig_DefaultsApplyWhenSectionsOmitted(t *testing.T) {
	path := writeTempConfig(t, "symbols: [BTC-PERP, ETH-PERP]\n")
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, DefaultConfig().Executor, cfg.Executor)
	require.Equal(t, []string{"BTC-PERP", "ETH-PERP"}, cfg.Symbols)
}

func TestLoadConfig_ExpandsEnvironmentVariables(t *testing.T) {
	t.Setenv("HEDGE_TEST_SYMBOL", "SOL-PERP")
	path := writeTempConfig(t, "symbols: [${HEDGE_TEST_SYMBOL}]\n")
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, []string{"SOL-PERP"}, cfg.Symbols)
}

func TestLoadConfig_MissingFileErrors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.Error(t, err)
}

func TestLoadConfig_InvalidSectionFailsValidation(t *testing.T) {
	path := writeTempConfig(t, "executor:\n  min_fill_timeout_seconds: 0\nsymbols: [BTC-PERP]\n")
	_, err := LoadConfig(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "min_fill_timeout_seconds")
}

func TestValidate_RejectsDuplicateSymbols(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Symbols = []string{"BTC-PERP", "BTC-PERP"}
	err := cfg.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "duplicate symbol entry")
}

func TestValidate_RejectsEmptySymbol(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Symbols = []string{""}
	err := cfg.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "symbols[]")
}

func TestValidate_CollectsMultipleFailures(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Executor.MinFillTimeoutSeconds = 0
	cfg.Rollback.QueueCapacity = 0
	cfg.Symbols = []string{"BTC-PERP", "BTC-PERP"}

	err := cfg.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "executor.min_fill_timeout_seconds")
	require.Contains(t, err.Error(), "rollback.queue_capacity")
	require.Contains(t, err.Error(), "duplicate symbol entry")
}

func TestValidate_DefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Symbols = []string{"BTC-PERP"}
	require.NoError(t, cfg.Validate())
}

func TestExpandEnvVars_LeavesUnsetReferenceUntouched(t *testing.T) {
	require.NoError(t, os.Unsetenv("HEDGE_TEST_UNSET_VAR"))
	out := expandEnvVars("value: $HEDGE_TEST_UNSET_VAR")
	require.Equal(t, "value: $HEDGE_TEST_UNSET_VAR", out)
}
