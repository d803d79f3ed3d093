package config

import (
	"math"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Budget    BudgetConfig    `yaml:"budget" mapstructure:"budget"`
	Pipeline  PipelineConfig  `yaml:"pipeline" mapstructure:"pipeline"`
	Batch     BatchConfig     `yaml:"batch" mapstructure:"batch"`
	Providers ProvidersConfig `yaml:"providers" mapstructure:"providers"`
	RateLimit RateLimitConfig `yaml:"rate_limit" mapstructure:"rate_limit"`
	Alerts    AlertConfig     `yaml:"alerts" mapstructure:"alerts"`
	Scoring   ScoringConfig   `yaml:"scoring" mapstructure:"scoring"`
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// BudgetConfig configures the admission controller's cost ledger.
type BudgetConfig struct {
	TotalUSD       float64            `yaml:"total_usd" mapstructure:"total_usd"`
	HardLimit      bool               `yaml:"hard_limit" mapstructure:"hard_limit"`
	MaxCostPerLead float64            `yaml:"max_cost_per_lead" mapstructure:"max_cost_per_lead"`
	Allocations    map[string]float64 `yaml:"allocations" mapstructure:"allocations"`
}

// PipelineConfig configures stage gating and qualification.
type PipelineConfig struct {
	QualityThreshold      float64 `yaml:"quality_threshold" mapstructure:"quality_threshold"`
	PreValidationMin      int     `yaml:"pre_validation_min" mapstructure:"pre_validation_min"`
	PropertyScoreMin      int     `yaml:"property_score_min" mapstructure:"property_score_min"`
	EmailScoreMin         int     `yaml:"email_score_min" mapstructure:"email_score_min"`
	EmailScoreMinMatched  int     `yaml:"email_score_min_matched" mapstructure:"email_score_min_matched"`
	MaxEmailVerifications int     `yaml:"max_email_verifications" mapstructure:"max_email_verifications"`
}

// BatchConfig configures batch processing.
type BatchConfig struct {
	MaxConcurrency int `yaml:"max_concurrency" mapstructure:"max_concurrency"`
	MaxResults     int `yaml:"max_results" mapstructure:"max_results"`
}

// ProviderConfig configures a single provider source.
type ProviderConfig struct {
	Enabled     bool    `yaml:"enabled" mapstructure:"enabled"`
	CostPerCall float64 `yaml:"cost_per_call" mapstructure:"cost_per_call"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// ProvidersConfig holds per-source provider settings.
type ProvidersConfig struct {
	Discovery            ProviderConfig `yaml:"discovery" mapstructure:"discovery"`
	EmailDiscovery       ProviderConfig `yaml:"email_discovery" mapstructure:"email_discovery"`
	EmailVerification    ProviderConfig `yaml:"email_verification" mapstructure:"email_verification"`
	SecondaryDiscovery   ProviderConfig `yaml:"secondary_discovery" mapstructure:"secondary_discovery"`
	GovernmentValidation ProviderConfig `yaml:"government_validation" mapstructure:"government_validation"`
	Property             ProviderConfig `yaml:"property" mapstructure:"property"`
	ProbeTimeoutSecs     int            `yaml:"probe_timeout_secs" mapstructure:"probe_timeout_secs"`
	ProbePerSecond       float64        `yaml:"probe_per_second" mapstructure:"probe_per_second"`
}

// RateLimitConfig configures per-source admission rate windows.
type RateLimitConfig struct {
	WindowSecs int            `yaml:"window_secs" mapstructure:"window_secs"`
	PerSource  map[string]int `yaml:"per_source" mapstructure:"per_source"`
	Default    int            `yaml:"default" mapstructure:"default"`
}

// AlertConfig configures staged budget alerts.
type AlertConfig struct {
	WarningPct      float64 `yaml:"warning_pct" mapstructure:"warning_pct"`
	CriticalPct     float64 `yaml:"critical_pct" mapstructure:"critical_pct"`
	EmergencyPct    float64 `yaml:"emergency_pct" mapstructure:"emergency_pct"`
	EnableAutoPause bool    `yaml:"enable_auto_pause" mapstructure:"enable_auto_pause"`
	WebhookURL      string  `yaml:"webhook_url" mapstructure:"webhook_url"`
}

// ScoringConfig points at an optional YAML table override.
type ScoringConfig struct {
	TablePath string `yaml:"table_path" mapstructure:"table_path"`
}

// StoreConfig configures the optional persistence backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
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
	v.SetEnvPrefix("LEADQ")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("budget.total_usd", 100.0)
	v.SetDefault("budget.hard_limit", true)
	v.SetDefault("budget.max_cost_per_lead", 2.0)
	v.SetDefault("budget.allocations", map[string]float64{
		"discovery":             0.40,
		"email_discovery":       0.25,
		"email_verification":    0.20,
		"secondary_discovery":   0.10,
		"government_validation": 0.05,
	})
	v.SetDefault("pipeline.quality_threshold", 75.0)
	v.SetDefault("pipeline.pre_validation_min", 50)
	v.SetDefault("pipeline.property_score_min", 65)
	v.SetDefault("pipeline.email_score_min", 70)
	v.SetDefault("pipeline.email_score_min_matched", 60)
	v.SetDefault("pipeline.max_email_verifications", 2)
	v.SetDefault("batch.max_concurrency", 8)
	v.SetDefault("batch.max_results", 0)
	v.SetDefault("providers.discovery.enabled", true)
	v.SetDefault("providers.discovery.cost_per_call", 0.017)
	v.SetDefault("providers.discovery.timeout_secs", 10)
	v.SetDefault("providers.email_discovery.enabled", true)
	v.SetDefault("providers.email_discovery.cost_per_call", 0.049)
	v.SetDefault("providers.email_discovery.timeout_secs", 10)
	v.SetDefault("providers.email_verification.enabled", true)
	v.SetDefault("providers.email_verification.cost_per_call", 0.008)
	v.SetDefault("providers.email_verification.timeout_secs", 10)
	v.SetDefault("providers.secondary_discovery.enabled", false)
	v.SetDefault("providers.secondary_discovery.cost_per_call", 0.01)
	v.SetDefault("providers.secondary_discovery.timeout_secs", 10)
	v.SetDefault("providers.government_validation.enabled", true)
	v.SetDefault("providers.government_validation.cost_per_call", 0.0)
	v.SetDefault("providers.government_validation.timeout_secs", 10)
	v.SetDefault("providers.property.enabled", true)
	v.SetDefault("providers.property.cost_per_call", 0.0)
	v.SetDefault("providers.property.timeout_secs", 10)
	v.SetDefault("providers.probe_timeout_secs", 5)
	v.SetDefault("providers.probe_per_second", 10.0)
	v.SetDefault("rate_limit.window_secs", 60)
	v.SetDefault("rate_limit.default", 1000)
	v.SetDefault("alerts.warning_pct", 0.75)
	v.SetDefault("alerts.critical_pct", 0.90)
	v.SetDefault("alerts.emergency_pct", 0.95)
	v.SetDefault("alerts.enable_auto_pause", true)
	v.SetDefault("store.driver", "")
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

// Validate rejects obviously invalid configuration at run start.
// Invalid values are an error, never silently clamped.
func (c *Config) Validate() error {
	if c.Budget.TotalUSD <= 0 {
		return eris.Errorf("config: budget.total_usd must be positive, got %.2f", c.Budget.TotalUSD)
	}
	if c.Budget.MaxCostPerLead < 0 {
		return eris.Errorf("config: budget.max_cost_per_lead must not be negative, got %.2f", c.Budget.MaxCostPerLead)
	}
	var allocTotal float64
	for source, pct := range c.Budget.Allocations {
		if pct < 0 || pct > 1 {
			return eris.Errorf("config: budget.allocations[%s] must be in [0,1], got %.2f", source, pct)
		}
		allocTotal += pct
	}
	if len(c.Budget.Allocations) > 0 && math.Abs(allocTotal-1.0) > 0.001 {
		return eris.Errorf("config: budget.allocations must sum to 1.0, got %.3f", allocTotal)
	}
	if c.Pipeline.QualityThreshold < 0 || c.Pipeline.QualityThreshold > 100 {
		return eris.Errorf("config: pipeline.quality_threshold must be in [0,100], got %.1f", c.Pipeline.QualityThreshold)
	}
	if c.Pipeline.PreValidationMin < 0 || c.Pipeline.PreValidationMin > 100 {
		return eris.Errorf("config: pipeline.pre_validation_min must be in [0,100], got %d", c.Pipeline.PreValidationMin)
	}
	if c.Batch.MaxConcurrency <= 0 {
		return eris.Errorf("config: batch.max_concurrency must be positive, got %d", c.Batch.MaxConcurrency)
	}
	if c.RateLimit.WindowSecs <= 0 {
		return eris.Errorf("config: rate_limit.window_secs must be positive, got %d", c.RateLimit.WindowSecs)
	}
	if !(c.Alerts.WarningPct <= c.Alerts.CriticalPct && c.Alerts.CriticalPct <= c.Alerts.EmergencyPct) {
		return eris.Errorf("config: alert thresholds must be ordered warning <= critical <= emergency (%.2f/%.2f/%.2f)",
			c.Alerts.WarningPct, c.Alerts.CriticalPct, c.Alerts.EmergencyPct)
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
