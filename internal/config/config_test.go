package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.InDelta(t, 100.0, cfg.Budget.TotalUSD, 0.001)
	assert.True(t, cfg.Budget.HardLimit)
	assert.InDelta(t, 75.0, cfg.Pipeline.QualityThreshold, 0.001)
	assert.Equal(t, 50, cfg.Pipeline.PreValidationMin)
	assert.Equal(t, 8, cfg.Batch.MaxConcurrency)
	assert.Equal(t, 60, cfg.RateLimit.WindowSecs)
	assert.True(t, cfg.Alerts.EnableAutoPause)

	// Default source allocations cover the full budget.
	var total float64
	for _, pct := range cfg.Budget.Allocations {
		total += pct
	}
	assert.InDelta(t, 1.0, total, 0.001)

	assert.NoError(t, cfg.Validate())
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("LEADQ_BUDGET_TOTAL_USD", "25.5")
	t.Setenv("LEADQ_PIPELINE_QUALITY_THRESHOLD", "80")

	cfg, err := Load()
	require.NoError(t, err)
	assert.InDelta(t, 25.5, cfg.Budget.TotalUSD, 0.001)
	assert.InDelta(t, 80.0, cfg.Pipeline.QualityThreshold, 0.001)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	valid := func() *Config {
		return &Config{
			Budget: BudgetConfig{
				TotalUSD:  100,
				HardLimit: true,
				Allocations: map[string]float64{
					"discovery":       0.60,
					"email_discovery": 0.40,
				},
			},
			Pipeline:  PipelineConfig{QualityThreshold: 75, PreValidationMin: 50},
			Batch:     BatchConfig{MaxConcurrency: 4},
			RateLimit: RateLimitConfig{WindowSecs: 60},
			Alerts:    AlertConfig{WarningPct: 0.75, CriticalPct: 0.90, EmergencyPct: 0.95},
		}
	}
	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
		errSub string
	}{
		{
			name:   "non-positive budget",
			mutate: func(c *Config) { c.Budget.TotalUSD = 0 },
			errSub: "total_usd",
		},
		{
			name:   "negative max cost per lead",
			mutate: func(c *Config) { c.Budget.MaxCostPerLead = -1 },
			errSub: "max_cost_per_lead",
		},
		{
			name:   "allocation out of range",
			mutate: func(c *Config) { c.Budget.Allocations["discovery"] = 1.4 },
			errSub: "allocations[discovery]",
		},
		{
			name:   "allocations must sum to one",
			mutate: func(c *Config) { c.Budget.Allocations["discovery"] = 0.50 },
			errSub: "sum to 1.0",
		},
		{
			name:   "threshold out of range",
			mutate: func(c *Config) { c.Pipeline.QualityThreshold = 120 },
			errSub: "quality_threshold",
		},
		{
			name:   "gate out of range",
			mutate: func(c *Config) { c.Pipeline.PreValidationMin = -5 },
			errSub: "pre_validation_min",
		},
		{
			name:   "non-positive concurrency",
			mutate: func(c *Config) { c.Batch.MaxConcurrency = 0 },
			errSub: "max_concurrency",
		},
		{
			name:   "non-positive rate window",
			mutate: func(c *Config) { c.RateLimit.WindowSecs = 0 },
			errSub: "window_secs",
		},
		{
			name:   "misordered alert thresholds",
			mutate: func(c *Config) { c.Alerts.CriticalPct = 0.97 },
			errSub: "ordered",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errSub)
		})
	}
}

func TestValidate_EmptyAllocationsAllowed(t *testing.T) {
	t.Parallel()
	cfg := &Config{
		Budget:    BudgetConfig{TotalUSD: 1},
		Pipeline:  PipelineConfig{QualityThreshold: 75},
		Batch:     BatchConfig{MaxConcurrency: 1},
		RateLimit: RateLimitConfig{WindowSecs: 60},
		Alerts:    AlertConfig{WarningPct: 0.75, CriticalPct: 0.90, EmergencyPct: 0.95},
	}
	assert.NoError(t, cfg.Validate())
}
