package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "db_postcodes.db", cfg.Store.DatabaseURL)
	assert.Equal(t, "https://api.postcodes.io", cfg.API.BaseURL)
	assert.Equal(t, 5, cfg.API.TimeoutSecs)
	assert.Zero(t, cfg.API.RateLimit)
	assert.Equal(t, 17, cfg.Enrich.Workers)
	assert.Equal(t, 20, cfg.Enrich.ProgressEvery)
	assert.Equal(t, "api_errors.log", cfg.Enrich.ErrorLog)
	assert.Empty(t, cfg.Input.Encoding)
	assert.Empty(t, cfg.Input.Sheet)
	assert.Equal(t, "enriched_data.csv", cfg.Report.CSVPath)
	assert.Equal(t, "report_summary.txt", cfg.Report.SummaryPath)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/postcodes
enrich:
  workers: 4
  progress_every: 5
log:
  level: debug
  format: json
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/postcodes", cfg.Store.DatabaseURL)
	assert.Equal(t, 4, cfg.Enrich.Workers)
	assert.Equal(t, 5, cfg.Enrich.ProgressEvery)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	// Defaults still apply for unset values
	assert.Equal(t, "https://api.postcodes.io", cfg.API.BaseURL)
	assert.Equal(t, "api_errors.log", cfg.Enrich.ErrorLog)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
store:
  driver: sqlite
enrich:
  workers: 4
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("POSTCODE_STORE_DRIVER", "postgres")
	t.Setenv("POSTCODE_ENRICH_WORKERS", "8")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, 8, cfg.Enrich.Workers)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	t.Setenv("POSTCODE_API_TIMEOUT_SECS", "10")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.API.TimeoutSecs)
}

// validDefaults returns a Config with all defaults populated for validation tests.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Store.Driver = "sqlite"
	cfg.Store.DatabaseURL = "db_postcodes.db"
	cfg.API.BaseURL = "https://api.postcodes.io"
	cfg.API.TimeoutSecs = 5
	cfg.Enrich.Workers = 17
	cfg.Enrich.ProgressEvery = 20
	cfg.Enrich.ErrorLog = "api_errors.log"
	return cfg
}

func TestValidateOK(t *testing.T) {
	assert.NoError(t, validDefaults().Validate())
}

func TestValidateUnknownDriver(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "oracle"

	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "store.driver must be sqlite or postgres")
}

func TestValidateMissingFields(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.DatabaseURL = ""
	cfg.API.BaseURL = ""
	cfg.Enrich.ErrorLog = ""

	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "store.database_url is required")
	assert.Contains(t, err.Error(), "api.base_url is required")
	assert.Contains(t, err.Error(), "enrich.error_log is required")
}

func TestValidateWorkerBounds(t *testing.T) {
	cfg := validDefaults()

	cfg.Enrich.Workers = 0
	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "enrich.workers must be between 1 and 128")

	cfg.Enrich.Workers = 129
	err = cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "enrich.workers must be between 1 and 128")

	cfg.Enrich.Workers = 128
	assert.NoError(t, cfg.Validate())
}

func TestValidateProgressAndTimeout(t *testing.T) {
	cfg := validDefaults()

	cfg.Enrich.ProgressEvery = 0
	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "enrich.progress_every must be >= 1")

	cfg.Enrich.ProgressEvery = 20
	cfg.API.TimeoutSecs = 0
	err = cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "api.timeout_secs must be > 0")

	cfg.API.TimeoutSecs = 5
	cfg.API.RateLimit = -1
	err = cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "api.rate_limit must be >= 0")
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}
