package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store  StoreConfig  `yaml:"store" mapstructure:"store"`
	API    APIConfig    `yaml:"api" mapstructure:"api"`
	Enrich EnrichConfig `yaml:"enrich" mapstructure:"enrich"`
	Input  InputConfig  `yaml:"input" mapstructure:"input"`
	Report ReportConfig `yaml:"report" mapstructure:"report"`
	Log    LogConfig    `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// APIConfig holds postcodes.io API settings.
type APIConfig struct {
	BaseURL     string  `yaml:"base_url" mapstructure:"base_url"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RateLimit   float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// EnrichConfig configures the concurrent enrichment phase.
type EnrichConfig struct {
	Workers       int    `yaml:"workers" mapstructure:"workers"`
	ProgressEvery int    `yaml:"progress_every" mapstructure:"progress_every"`
	ErrorLog      string `yaml:"error_log" mapstructure:"error_log"`
}

// InputConfig configures input dataset parsing.
type InputConfig struct {
	Encoding string `yaml:"encoding" mapstructure:"encoding"`
	Sheet    string `yaml:"sheet" mapstructure:"sheet"`
}

// ReportConfig configures report artifact paths.
type ReportConfig struct {
	CSVPath     string `yaml:"csv_path" mapstructure:"csv_path"`
	SummaryPath string `yaml:"summary_path" mapstructure:"summary_path"`
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
	v.SetEnvPrefix("POSTCODE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "db_postcodes.db")
	v.SetDefault("api.base_url", "https://api.postcodes.io")
	v.SetDefault("api.timeout_secs", 5)
	v.SetDefault("api.rate_limit", 0)
	v.SetDefault("enrich.workers", 17)
	v.SetDefault("enrich.progress_every", 20)
	v.SetDefault("enrich.error_log", "api_errors.log")
	v.SetDefault("input.encoding", "")
	v.SetDefault("input.sheet", "")
	v.SetDefault("report.csv_path", "enriched_data.csv")
	v.SetDefault("report.summary_path", "report_summary.txt")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

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

// Validate checks the configuration for values the pipeline cannot run with.
func (c *Config) Validate() error {
	var problems []string

	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		problems = append(problems, "store.driver must be sqlite or postgres")
	}
	if c.Store.DatabaseURL == "" {
		problems = append(problems, "store.database_url is required")
	}
	if c.API.BaseURL == "" {
		problems = append(problems, "api.base_url is required")
	}
	if c.API.TimeoutSecs <= 0 {
		problems = append(problems, "api.timeout_secs must be > 0")
	}
	if c.API.RateLimit < 0 {
		problems = append(problems, "api.rate_limit must be >= 0")
	}
	if c.Enrich.Workers < 1 || c.Enrich.Workers > 128 {
		problems = append(problems, "enrich.workers must be between 1 and 128")
	}
	if c.Enrich.ProgressEvery < 1 {
		problems = append(problems, "enrich.progress_every must be >= 1")
	}
	if c.Enrich.ErrorLog == "" {
		problems = append(problems, "enrich.error_log is required")
	}

	if len(problems) > 0 {
		return eris.New("config: " + strings.Join(problems, "; "))
	}
	return nil
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
