package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/tainan-eats/storedir/internal/acquire"
	"github.com/tainan-eats/storedir/internal/db"
	"github.com/tainan-eats/storedir/internal/resilience"
)

// Store drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Places     PlacesConfig     `yaml:"places" mapstructure:"places"`
	Ingest     IngestConfig     `yaml:"ingest" mapstructure:"ingest"`
	Retry      RetryConfig      `yaml:"retry" mapstructure:"retry"`
	Circuit    CircuitConfig    `yaml:"circuit" mapstructure:"circuit"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the catalog backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	// Path is the SQLite file used when Driver is sqlite.
	Path     string `yaml:"path" mapstructure:"path"`
	MaxConns int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// PlacesConfig holds the places provider credentials and request defaults.
type PlacesConfig struct {
	Key           string `yaml:"key" mapstructure:"key"`
	BaseURL       string `yaml:"base_url" mapstructure:"base_url"`
	Language      string `yaml:"language" mapstructure:"language"`
	Region        string `yaml:"region" mapstructure:"region"`
	TimeoutSecs   int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	PhotoMaxWidth int    `yaml:"photo_max_width" mapstructure:"photo_max_width"`
}

// IngestConfig configures the ingestion batch.
type IngestConfig struct {
	// PlanFile, when set, replaces Strategies.
	PlanFile   string         `yaml:"plan_file" mapstructure:"plan_file"`
	Strategies []acquire.Spec `yaml:"strategies" mapstructure:"strategies"`

	FetchDetails    bool    `yaml:"fetch_details" mapstructure:"fetch_details"`
	Workers         int     `yaml:"workers" mapstructure:"workers"`
	PerSecond       float64 `yaml:"per_second" mapstructure:"per_second"`
	DetailPerSecond float64 `yaml:"detail_per_second" mapstructure:"detail_per_second"`
	PageDelayMs     int     `yaml:"page_delay_ms" mapstructure:"page_delay_ms"`
	MaxPages        int     `yaml:"max_pages" mapstructure:"max_pages"`
	Timezone        string  `yaml:"timezone" mapstructure:"timezone"`
}

// RetryConfig configures retries of provider calls.
type RetryConfig struct {
	MaxAttempts      int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	Multiplier       float64 `yaml:"multiplier" mapstructure:"multiplier"`
}

// CircuitConfig configures the provider circuit breaker.
type CircuitConfig struct {
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	CooldownSecs     int `yaml:"cooldown_secs" mapstructure:"cooldown_secs"`
}

// ServerConfig configures the read API.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// MonitoringConfig configures run health alerts.
type MonitoringConfig struct {
	// WebhookURL receives alerts as JSON. Alerts are only logged when empty.
	WebhookURL          string `yaml:"webhook_url" mapstructure:"webhook_url"`
	CheckIntervalSecs   int    `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	LookbackWindowHours int    `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
	// FailureRateThreshold is the share of failed stores per window (0-1).
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	// RetireThreshold flags a window that retired more stores than this.
	RetireThreshold int `yaml:"retire_threshold" mapstructure:"retire_threshold"`
	// StaleHours flags a catalog with no run in this many hours. 0 disables.
	StaleHours int `yaml:"stale_hours" mapstructure:"stale_hours"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("STOREDIR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", DriverSQLite)
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.path", "storedir.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("places.key", "")
	v.SetDefault("places.base_url", "https://maps.googleapis.com/maps/api/place")
	v.SetDefault("places.language", "zh-TW")
	v.SetDefault("places.region", "tw")
	v.SetDefault("places.timeout_secs", 10)
	v.SetDefault("places.photo_max_width", 800)
	v.SetDefault("ingest.plan_file", "")
	v.SetDefault("ingest.fetch_details", true)
	v.SetDefault("ingest.workers", 1)
	v.SetDefault("ingest.per_second", 5.0)
	v.SetDefault("ingest.detail_per_second", 0.0)
	v.SetDefault("ingest.page_delay_ms", 2000)
	v.SetDefault("ingest.max_pages", 3)
	v.SetDefault("ingest.timezone", "Asia/Taipei")
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_backoff_ms", 1000)
	v.SetDefault("retry.max_backoff_ms", 20000)
	v.SetDefault("retry.multiplier", 2.0)
	v.SetDefault("circuit.failure_threshold", 5)
	v.SetDefault("circuit.cooldown_secs", 30)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("monitoring.webhook_url", "")
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.lookback_window_hours", 24)
	v.SetDefault("monitoring.failure_rate_threshold", 0.10)
	v.SetDefault("monitoring.retire_threshold", 20)
	v.SetDefault("monitoring.stale_hours", 48)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Plan resolves the acquisition plan: the plan file, then configured
// strategies, then acquire.DefaultPlan.
func (c *Config) Plan() (*acquire.Plan, error) {
	if c.Ingest.PlanFile != "" {
		return acquire.LoadPlan(c.Ingest.PlanFile)
	}
	if len(c.Ingest.Strategies) > 0 {
		p := &acquire.Plan{Strategies: c.Ingest.Strategies}
		if err := p.Validate(); err != nil {
			return nil, err
		}
		return p, nil
	}
	return acquire.DefaultPlan(), nil
}

// Validate checks the settings the given command depends on. Every problem
// found is reported in one error.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch c.Store.Driver {
	case DriverSQLite:
		if c.Store.Path == "" {
			errs = append(errs, "store.path is required for the sqlite driver")
		}
	case DriverPostgres:
		if c.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required for the postgres driver")
		}
	default:
		errs = append(errs, "store.driver must be sqlite or postgres")
	}

	switch mode {
	case "ingest":
		plan, err := c.Plan()
		switch {
		case err != nil:
			errs = append(errs, "ingest plan: "+err.Error())
		case (plan.HasLive() || c.Ingest.FetchDetails) && c.Places.Key == "":
			errs = append(errs, "places.key is required for live acquisition or detail fetching")
		}
		if c.Ingest.Workers < 1 || c.Ingest.Workers > 32 {
			errs = append(errs, "ingest.workers must be between 1 and 32")
		}
		if _, err := c.Location(); err != nil {
			errs = append(errs, err.Error())
		}
	case "serve":
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, "server.port must be > 0 and <= 65535")
		}
	case "catalog", "menu", "migrate", "runs":
	default:
		errs = append(errs, "unknown mode "+mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Location returns the configured ingest timezone.
func (c *Config) Location() (*time.Location, error) {
	name := c.Ingest.Timezone
	if name == "" {
		name = "Asia/Taipei"
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, eris.Wrapf(err, "config: load timezone %s", name)
	}
	return loc, nil
}

// GuardConfig maps the retry and circuit sections onto resilience settings.
func (c *Config) GuardConfig() resilience.GuardConfig {
	return resilience.GuardConfig{
		MaxAttempts:      c.Retry.MaxAttempts,
		InitialBackoffMs: c.Retry.InitialBackoffMs,
		MaxBackoffMs:     c.Retry.MaxBackoffMs,
		Multiplier:       c.Retry.Multiplier,
		FailureThreshold: c.Circuit.FailureThreshold,
		CooldownSecs:     c.Circuit.CooldownSecs,
		TimeoutSecs:      c.Places.TimeoutSecs,
	}
}

// PoolConfig returns the Postgres pool sizing.
func (c *Config) PoolConfig() *db.PoolConfig {
	return &db.PoolConfig{MaxConns: c.Store.MaxConns, MinConns: c.Store.MinConns}
}

// PageDelay is the pause before requesting a pagination token's page.
func (c *Config) PageDelay() time.Duration {
	return time.Duration(c.Ingest.PageDelayMs) * time.Millisecond
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
