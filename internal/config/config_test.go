package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tainan-eats/storedir/internal/acquire"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck
	return dir
}

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DriverSQLite, cfg.Store.Driver)
	assert.Equal(t, "storedir.db", cfg.Store.Path)
	assert.Equal(t, int32(10), cfg.Store.MaxConns)
	assert.Equal(t, "https://maps.googleapis.com/maps/api/place", cfg.Places.BaseURL)
	assert.Equal(t, "zh-TW", cfg.Places.Language)
	assert.Equal(t, 800, cfg.Places.PhotoMaxWidth)
	assert.True(t, cfg.Ingest.FetchDetails)
	assert.Equal(t, 1, cfg.Ingest.Workers)
	assert.InDelta(t, 5.0, cfg.Ingest.PerSecond, 0.001)
	assert.Equal(t, 2*time.Second, cfg.PageDelay())
	assert.Equal(t, "Asia/Taipei", cfg.Ingest.Timezone)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, 5, cfg.Circuit.FailureThreshold)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, []string{"*"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, 300, cfg.Monitoring.CheckIntervalSecs)
	assert.Equal(t, 24, cfg.Monitoring.LookbackWindowHours)
	assert.InDelta(t, 0.10, cfg.Monitoring.FailureRateThreshold, 1e-9)
	assert.Equal(t, 20, cfg.Monitoring.RetireThreshold)
	assert.Empty(t, cfg.Monitoring.WebhookURL)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/storedir
log:
  level: debug
  format: console
ingest:
  workers: 4
  strategies:
    - name: bulk_text
      keywords: ["牛肉湯 台南"]
      per_second: 2
    - name: proximity
      radius_m: 3000
      center: {lat: 22.99, lng: 120.2}
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DriverPostgres, cfg.Store.Driver)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 4, cfg.Ingest.Workers)
	require.Len(t, cfg.Ingest.Strategies, 2)
	assert.Equal(t, acquire.KindBulkText, cfg.Ingest.Strategies[0].Name)
	assert.InDelta(t, 2.0, cfg.Ingest.Strategies[0].PerSecond, 0.001)
	require.NotNil(t, cfg.Ingest.Strategies[1].Center)
	assert.InDelta(t, 22.99, cfg.Ingest.Strategies[1].Center.Lat, 1e-9)
	// Defaults still apply for unset values
	assert.Equal(t, 8080, cfg.Server.Port)

	plan, err := cfg.Plan()
	require.NoError(t, err)
	assert.Len(t, plan.Strategies, 2)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("log:\n  level: debug\n"), 0o644))

	t.Setenv("STOREDIR_LOG_LEVEL", "warn")
	t.Setenv("STOREDIR_PLACES_KEY", "env-key")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "env-key", cfg.Places.Key)
}

func TestLoadBadYAML(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("store: [unterminated"), 0o644))

	_, err := Load()
	assert.Error(t, err)
}

func validDefaults() *Config {
	cfg := &Config{}
	cfg.Store.Driver = DriverSQLite
	cfg.Store.Path = "storedir.db"
	cfg.Places.Key = "key"
	cfg.Ingest.Workers = 1
	cfg.Ingest.FetchDetails = true
	cfg.Ingest.Timezone = "Asia/Taipei"
	cfg.Server.Port = 8080
	return cfg
}

func TestValidateIngest(t *testing.T) {
	assert.NoError(t, validDefaults().Validate("ingest"))
}

func TestValidateIngest_MissingKey(t *testing.T) {
	cfg := validDefaults()
	cfg.Places.Key = ""

	err := cfg.Validate("ingest")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "places.key is required")
}

func TestValidateIngest_SnapshotOnlyNeedsNoKey(t *testing.T) {
	cfg := validDefaults()
	cfg.Places.Key = ""
	cfg.Ingest.FetchDetails = false
	cfg.Ingest.Strategies = []acquire.Spec{{Name: acquire.KindSnapshot, Snapshots: []string{"a.json"}}}

	assert.NoError(t, cfg.Validate("ingest"))
}

func TestValidateIngest_CollectsErrors(t *testing.T) {
	cfg := validDefaults()
	cfg.Places.Key = ""
	cfg.Ingest.Workers = 0
	cfg.Store.Driver = "mongo"

	err := cfg.Validate("ingest")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.driver must be sqlite or postgres")
	assert.Contains(t, err.Error(), "places.key is required")
	assert.Contains(t, err.Error(), "ingest.workers must be between 1 and 32")
}

func TestValidateIngest_BadStrategy(t *testing.T) {
	cfg := validDefaults()
	cfg.Ingest.Strategies = []acquire.Spec{{Name: "crawl_everything"}}

	err := cfg.Validate("ingest")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ingest plan")
}

func TestValidateIngest_BadTimezone(t *testing.T) {
	cfg := validDefaults()
	cfg.Ingest.Timezone = "Mars/Olympus"

	err := cfg.Validate("ingest")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timezone")
}

func TestValidatePostgresNeedsURL(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = DriverPostgres

	err := cfg.Validate("catalog")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.database_url is required")

	cfg.Store.DatabaseURL = "postgres://localhost/test"
	assert.NoError(t, cfg.Validate("catalog"))
}

func TestValidateServe_InvalidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0

	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")
}

func TestValidateUnknownMode(t *testing.T) {
	err := validDefaults().Validate("unknown")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestPlan_FromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plan.yaml")
	require.NoError(t, os.WriteFile(path, []byte("strategies:\n  - name: district_keyword\n    keywords: [\"{district} 牛肉湯\"]\n"), 0o644))

	cfg := validDefaults()
	cfg.Ingest.PlanFile = path
	cfg.Ingest.Strategies = []acquire.Spec{{Name: acquire.KindBulkText}}

	plan, err := cfg.Plan()
	require.NoError(t, err)
	require.Len(t, plan.Strategies, 1)
	assert.Equal(t, acquire.KindDistrictKeyword, plan.Strategies[0].Name)
}

func TestPlan_Default(t *testing.T) {
	plan, err := validDefaults().Plan()
	require.NoError(t, err)
	assert.Equal(t, acquire.DefaultPlan(), plan)
}

func TestGuardConfig(t *testing.T) {
	cfg := validDefaults()
	cfg.Retry.MaxAttempts = 4
	cfg.Circuit.CooldownSecs = 12
	cfg.Places.TimeoutSecs = 7

	g := cfg.GuardConfig()
	assert.Equal(t, 4, g.MaxAttempts)
	assert.Equal(t, 12, g.CooldownSecs)
	assert.Equal(t, 7, g.TimeoutSecs)
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
