package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Default risk-rating cutoffs, in percent.
const (
	DefaultVeryLowCutoff = 90.0
	DefaultLowCutoff     = 75.0
	DefaultMediumCutoff  = 50.0
	DefaultHighCutoff    = 30.0
)

// Config holds the full application configuration.
type Config struct {
	Store   StoreConfig   `yaml:"store" mapstructure:"store"`
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
	Risk    RiskConfig    `yaml:"risk" mapstructure:"risk"`
	Scoring ScoringConfig `yaml:"scoring" mapstructure:"scoring"`
	Retry   RetryConfig   `yaml:"retry" mapstructure:"retry"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port               int      `yaml:"port" mapstructure:"port"`
	RateLimitRPS       float64  `yaml:"rate_limit_rps" mapstructure:"rate_limit_rps"`
	RateLimitBurst     int      `yaml:"rate_limit_burst" mapstructure:"rate_limit_burst"`
	CORSOrigins        []string `yaml:"cors_origins" mapstructure:"cors_origins"`
	RequestTimeoutSecs int      `yaml:"request_timeout_secs" mapstructure:"request_timeout_secs"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// RiskConfig holds the four percentage cut points that band an aggregate
// score into a risk rating. They must be strictly descending.
type RiskConfig struct {
	VeryLowCutoff float64 `yaml:"very_low_cutoff" mapstructure:"very_low_cutoff"`
	LowCutoff     float64 `yaml:"low_cutoff" mapstructure:"low_cutoff"`
	MediumCutoff  float64 `yaml:"medium_cutoff" mapstructure:"medium_cutoff"`
	HighCutoff    float64 `yaml:"high_cutoff" mapstructure:"high_cutoff"`
}

// ScoringConfig configures the posture engine surface.
type ScoringConfig struct {
	DefaultFramework        string   `yaml:"default_framework" mapstructure:"default_framework"`
	Frameworks              []string `yaml:"frameworks" mapstructure:"frameworks"`
	AttentionLimit          int      `yaml:"attention_limit" mapstructure:"attention_limit"`
	TaxonomyPath            string   `yaml:"taxonomy_path" mapstructure:"taxonomy_path"`
	MaxConcurrentFrameworks int      `yaml:"max_concurrent_frameworks" mapstructure:"max_concurrent_frameworks"`
}

// RetryConfig controls retries of repository reads.
type RetryConfig struct {
	MaxAttempts      int `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
}

// DefaultRiskConfig returns the stock 90/75/50/30 cutoffs.
func DefaultRiskConfig() RiskConfig {
	return RiskConfig{
		VeryLowCutoff: DefaultVeryLowCutoff,
		LowCutoff:     DefaultLowCutoff,
		MediumCutoff:  DefaultMediumCutoff,
		HighCutoff:    DefaultHighCutoff,
	}
}

// Validate checks that the cutoffs lie in [0, 100] and are strictly descending.
func (r RiskConfig) Validate() error {
	var errs []string

	cutoffs := []struct {
		name  string
		value float64
	}{
		{"very_low_cutoff", r.VeryLowCutoff},
		{"low_cutoff", r.LowCutoff},
		{"medium_cutoff", r.MediumCutoff},
		{"high_cutoff", r.HighCutoff},
	}
	for _, c := range cutoffs {
		if !(c.value >= 0 && c.value <= 100) {
			errs = append(errs, fmt.Sprintf("%s must be between 0 and 100, got %v", c.name, c.value))
		}
	}
	for i := 1; i < len(cutoffs); i++ {
		prev, cur := cutoffs[i-1], cutoffs[i]
		if !(prev.value > cur.value) {
			errs = append(errs, fmt.Sprintf("%s (%v) must be greater than %s (%v)", prev.name, prev.value, cur.name, cur.value))
		}
	}

	if len(errs) > 0 {
		return eris.Errorf("config: risk thresholds invalid: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Validate checks cross-field constraints that would otherwise surface on first use.
func (c *Config) Validate() error {
	if err := c.Risk.Validate(); err != nil {
		return err
	}
	switch c.Store.Driver {
	case "postgres", "sqlite":
	default:
		return eris.Errorf("config: store.driver must be postgres or sqlite (got %q)", c.Store.Driver)
	}
	if c.Scoring.DefaultFramework == "" {
		return eris.New("config: scoring.default_framework is required")
	}
	return nil
}

// Load reads configuration from ./config.yaml (if present) and environment and
// validates it. Invalid risk thresholds fail here rather than on first
// classification.
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile is Load with an explicit config file. An empty path falls back to
// the optional ./config.yaml; a named file must exist.
func LoadFile(path string) (*Config, error) {
	v := viper.New()

	// Config file
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	// Environment
	v.SetEnvPrefix("POSTURE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "posture.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.rate_limit_rps", 20.0)
	v.SetDefault("server.rate_limit_burst", 40)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.request_timeout_secs", 30)
	v.SetDefault("risk.very_low_cutoff", DefaultVeryLowCutoff)
	v.SetDefault("risk.low_cutoff", DefaultLowCutoff)
	v.SetDefault("risk.medium_cutoff", DefaultMediumCutoff)
	v.SetDefault("risk.high_cutoff", DefaultHighCutoff)
	v.SetDefault("scoring.default_framework", "nist_csf_2")
	v.SetDefault("scoring.frameworks", []string{"nist_csf_2", "ai_rmf"})
	v.SetDefault("scoring.attention_limit", 10)
	v.SetDefault("scoring.taxonomy_path", "")
	v.SetDefault("scoring.max_concurrent_frameworks", 4)
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_backoff_ms", 200)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrapf(err, "config: read file %s", v.ConfigFileUsed())
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
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
