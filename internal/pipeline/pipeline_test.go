package pipeline

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lead-qualifier/internal/budget"
	"github.com/sells-group/lead-qualifier/internal/config"
	"github.com/sells-group/lead-qualifier/internal/model"
	"github.com/sells-group/lead-qualifier/internal/provider"
	"github.com/sells-group/lead-qualifier/internal/scoring"
)

type fakeRegistry struct {
	name   string
	result *provider.RegistrySearchResult
	err    error
	calls  atomic.Int32
}

func (f *fakeRegistry) Name() string { return f.name }

func (f *fakeRegistry) Search(ctx context.Context, businessName string) (*provider.RegistrySearchResult, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type fakeProperty struct {
	info  *model.PropertyInfo
	calls atomic.Int32
}

func (f *fakeProperty) Lookup(ctx context.Context, address string) (*model.PropertyInfo, error) {
	f.calls.Add(1)
	return f.info, nil
}

type fakeEmailDiscovery struct {
	result *provider.EmailDiscoveryResult
	calls  atomic.Int32
}

func (f *fakeEmailDiscovery) Discover(ctx context.Context, domain string) (*provider.EmailDiscoveryResult, error) {
	f.calls.Add(1)
	return f.result, nil
}

type fakeEmailVerification struct {
	result *provider.EmailVerificationResult
	calls  atomic.Int32
}

func (f *fakeEmailVerification) Verify(ctx context.Context, emails []string) (*provider.EmailVerificationResult, error) {
	f.calls.Add(1)
	return f.result, nil
}

type fakeProbe struct {
	result *model.ProbeResult
	calls  atomic.Int32
}

func (f *fakeProbe) Check(ctx context.Context, url string) (*model.ProbeResult, error) {
	f.calls.Add(1)
	return f.result, nil
}

func testCfg() *config.Config {
	return &config.Config{
		Budget: config.BudgetConfig{TotalUSD: 10, HardLimit: true},
		Pipeline: config.PipelineConfig{
			QualityThreshold:      75,
			PreValidationMin:      50,
			PropertyScoreMin:      65,
			EmailScoreMin:         70,
			EmailScoreMinMatched:  60,
			MaxEmailVerifications: 2,
		},
		Batch: config.BatchConfig{MaxConcurrency: 2},
		Providers: config.ProvidersConfig{
			GovernmentValidation: config.ProviderConfig{Enabled: true, CostPerCall: 0.05, TimeoutSecs: 5},
			Property:             config.ProviderConfig{Enabled: true, CostPerCall: 0.02, TimeoutSecs: 5},
			EmailDiscovery:       config.ProviderConfig{Enabled: true, CostPerCall: 0.10, TimeoutSecs: 5},
			EmailVerification:    config.ProviderConfig{Enabled: true, CostPerCall: 0.01, TimeoutSecs: 5},
			ProbeTimeoutSecs:     2,
		},
		RateLimit: config.RateLimitConfig{WindowSecs: 60, Default: 1000},
		Alerts:    config.AlertConfig{WarningPct: 0.75, CriticalPct: 0.90, EmergencyPct: 0.95},
	}
}

func goodCandidate() model.Candidate {
	return model.Candidate{
		Name:    "Joe's Hardware",
		Address: "123 Oak St, Springfield, IL 62701",
		Phone:   "(217) 555-0199",
		Website: "joeshardware.com",
	}
}

func newTestPipeline(t *testing.T, cfg *config.Config, providers *provider.Registry) (*Pipeline, *budget.Controller) {
	t.Helper()
	admission := budget.NewController("run-test", cfg.Budget, cfg.RateLimit, cfg.Alerts)
	engine := scoring.NewEngine(scoring.DefaultTable(), cfg.Pipeline.QualityThreshold)
	return New(cfg, providers, admission, engine, "run-test"), admission
}

func TestProcess_FilteredAtFreeGate(t *testing.T) {
	t.Parallel()
	reg := &fakeRegistry{name: "state_sos"}
	providers := provider.NewRegistry()
	providers.AddRegistryProvider(reg)

	p, admission := newTestPipeline(t, testCfg(), providers)

	// Name alone scores 25, below the 50 gate.
	scored := p.Process(context.Background(), model.Candidate{Name: "Joe's Hardware"})

	assert.Equal(t, model.StateFiltered, scored.State)
	assert.Equal(t, 25, scored.PreValidationScore)
	assert.Zero(t, scored.ProcessingCost)
	assert.Zero(t, admission.State().Spent)
	assert.Zero(t, reg.calls.Load(), "no paid call may run for a gated candidate")
}

func TestProcess_GateBoundary(t *testing.T) {
	t.Parallel()

	t.Run("exactly at the gate proceeds to enrichment", func(t *testing.T) {
		t.Parallel()
		reg := &fakeRegistry{name: "state_sos", result: &provider.RegistrySearchResult{Found: true}}
		providers := provider.NewRegistry()
		providers.AddRegistryProvider(reg)

		p, _ := newTestPipeline(t, testCfg(), providers)

		// Full address 30 + website 20 meets the 50 gate exactly.
		c := model.Candidate{
			Address: "123 Oak St, Springfield, IL 62701",
			Website: "joeshardware.com",
		}
		scored := p.Process(context.Background(), c)

		assert.Equal(t, 50, scored.PreValidationScore)
		assert.Equal(t, model.StateCompleted, scored.State)
		assert.Equal(t, int32(1), reg.calls.Load())
	})

	t.Run("just below the gate filters free", func(t *testing.T) {
		t.Parallel()
		reg := &fakeRegistry{name: "state_sos", result: &provider.RegistrySearchResult{Found: true}}
		providers := provider.NewRegistry()
		providers.AddRegistryProvider(reg)

		p, admission := newTestPipeline(t, testCfg(), providers)

		// Name 25 + website 20 stops short of the gate.
		c := model.Candidate{
			Name:    "Joe's Hardware",
			Website: "joeshardware.com",
		}
		scored := p.Process(context.Background(), c)

		assert.Equal(t, 45, scored.PreValidationScore)
		assert.Equal(t, model.StateFiltered, scored.State)
		assert.Zero(t, scored.ProcessingCost)
		assert.Zero(t, admission.State().Spent)
		assert.Zero(t, reg.calls.Load())
	})
}

func TestProcess_RegistryHintBypassesGate(t *testing.T) {
	t.Parallel()
	reg := &fakeRegistry{name: "state_sos", result: &provider.RegistrySearchResult{
		Found:   true,
		Matches: []model.RegistryMatch{{Source: "state_sos", Found: true, ConfidenceBoost: 20}},
	}}
	providers := provider.NewRegistry()
	providers.AddRegistryProvider(reg)

	p, _ := newTestPipeline(t, testCfg(), providers)

	c := model.Candidate{Name: "Joe's Hardware", RegistryHint: true}
	scored := p.Process(context.Background(), c)

	assert.Equal(t, model.StateCompleted, scored.State)
	assert.Equal(t, int32(1), reg.calls.Load())
}

func TestProcess_FullEnrichment(t *testing.T) {
	t.Parallel()
	reg := &fakeRegistry{name: "state_sos", result: &provider.RegistrySearchResult{
		Found:   true,
		Matches: []model.RegistryMatch{{Source: "state_sos", Found: true, ConfidenceBoost: 40, Weight: 0.75}},
	}}
	prop := &fakeProperty{info: &model.PropertyInfo{Found: true, IsCommercial: true}}
	disc := &fakeEmailDiscovery{result: &provider.EmailDiscoveryResult{
		Emails: []model.DiscoveredEmail{{Address: "info@joeshardware.com"}},
		Cost:   0.08,
	}}
	ver := &fakeEmailVerification{result: &provider.EmailVerificationResult{
		Results: []model.EmailVerification{{Email: "info@joeshardware.com", Deliverable: true, Confidence: 0.9}},
		Cost:    0.01,
	}}
	probe := &fakeProbe{result: &model.ProbeResult{Accessible: true, StatusCode: 200}}

	providers := provider.NewRegistry()
	providers.AddRegistryProvider(reg)
	providers.SetProperty(prop)
	providers.SetEmailDiscovery(disc)
	providers.SetEmailVerification(ver)
	providers.SetProbe(probe)

	p, admission := newTestPipeline(t, testCfg(), providers)
	scored := p.Process(context.Background(), goodCandidate())

	assert.Equal(t, model.StateCompleted, scored.State)
	assert.Equal(t, int32(1), reg.calls.Load())
	assert.Equal(t, int32(1), prop.calls.Load())
	assert.Equal(t, int32(1), disc.calls.Load())
	assert.Equal(t, int32(1), ver.calls.Load())
	assert.Equal(t, int32(1), probe.calls.Load())

	// Registry 0.05 + property 0.02 + discovery actual 0.08 + verification 0.01.
	assert.InDelta(t, 0.16, scored.ProcessingCost, 0.001)
	assert.InDelta(t, 0.16, admission.State().Spent, 0.001)

	assert.True(t, scored.Breakdown.Qualified)
	assert.InDelta(t, 20.0, scored.Breakdown.GovernmentBoost, 0.01)
	assert.Empty(t, scored.BudgetSkips)
}

func TestProcess_BudgetExhaustedSkipsToFinal(t *testing.T) {
	t.Parallel()
	reg := &fakeRegistry{name: "state_sos", result: &provider.RegistrySearchResult{Found: true}}
	probe := &fakeProbe{result: &model.ProbeResult{Accessible: true}}

	cfg := testCfg()
	cfg.Budget.TotalUSD = 0.01 // every estimate projects past the limit
	providers := provider.NewRegistry()
	providers.AddRegistryProvider(reg)
	providers.SetProbe(probe)

	p, _ := newTestPipeline(t, cfg, providers)
	scored := p.Process(context.Background(), goodCandidate())

	// Degraded, not failed: the free stages still complete.
	assert.Equal(t, model.StateCompleted, scored.State)
	assert.Zero(t, reg.calls.Load())
	assert.Zero(t, scored.ProcessingCost)
	assert.Equal(t, budget.ReasonBudgetExceeded, scored.BudgetSkips[provider.SourceGovernmentValidation])

	// With every paid enrichment rejected, validation is skipped too.
	assert.Zero(t, probe.calls.Load())
}

func TestProcess_RateLimitedSkip(t *testing.T) {
	t.Parallel()
	reg := &fakeRegistry{name: "state_sos", result: &provider.RegistrySearchResult{Found: true}}

	cfg := testCfg()
	cfg.RateLimit.PerSource = map[string]int{provider.SourceGovernmentValidation: 1}
	providers := provider.NewRegistry()
	providers.AddRegistryProvider(reg)

	p, _ := newTestPipeline(t, cfg, providers)

	first := p.Process(context.Background(), goodCandidate())
	assert.Empty(t, first.BudgetSkips)

	second := p.Process(context.Background(), goodCandidate())
	assert.Equal(t, "rate_limited", second.BudgetSkips[provider.SourceGovernmentValidation])
	assert.Equal(t, int32(1), reg.calls.Load())
}

func TestProcess_ProviderFailureDegrades(t *testing.T) {
	t.Parallel()
	reg := &fakeRegistry{name: "state_sos", err: eris.New("upstream 503")}
	providers := provider.NewRegistry()
	providers.AddRegistryProvider(reg)

	p, admission := newTestPipeline(t, testCfg(), providers)
	scored := p.Process(context.Background(), goodCandidate())

	assert.Equal(t, model.StateCompleted, scored.State)
	require.Len(t, scored.Failures, 1)
	assert.Equal(t, "state_sos", scored.Failures[0].Source)

	// The failed call still cost money.
	assert.InDelta(t, 0.05, admission.State().Spent, 0.001)
	assert.False(t, scored.Breakdown.Qualified)
}

func TestProcess_EmailDiscoveryGating(t *testing.T) {
	t.Parallel()

	// Pre-validation score 60: name 25 + partial address 15 + website 20.
	borderline := model.Candidate{
		Name:    "Joe's Hardware",
		Address: "123 Oak St",
		Website: "joeshardware.com",
	}

	t.Run("below bar without registry corroboration", func(t *testing.T) {
		t.Parallel()
		disc := &fakeEmailDiscovery{result: &provider.EmailDiscoveryResult{}}
		providers := provider.NewRegistry()
		providers.SetEmailDiscovery(disc)

		p, _ := newTestPipeline(t, testCfg(), providers)
		p.Process(context.Background(), borderline)
		assert.Zero(t, disc.calls.Load())
	})

	t.Run("registry match lowers the bar", func(t *testing.T) {
		t.Parallel()
		reg := &fakeRegistry{name: "state_sos", result: &provider.RegistrySearchResult{
			Found:   true,
			Matches: []model.RegistryMatch{{Source: "state_sos", Found: true}},
		}}
		disc := &fakeEmailDiscovery{result: &provider.EmailDiscoveryResult{}}
		providers := provider.NewRegistry()
		providers.AddRegistryProvider(reg)
		providers.SetEmailDiscovery(disc)

		p, _ := newTestPipeline(t, testCfg(), providers)
		p.Process(context.Background(), borderline)
		assert.Equal(t, int32(1), disc.calls.Load())
	})
}

func TestProcess_PropertyGatedOnAddress(t *testing.T) {
	t.Parallel()
	prop := &fakeProperty{info: &model.PropertyInfo{Found: true}}
	providers := provider.NewRegistry()
	providers.SetProperty(prop)

	p, _ := newTestPipeline(t, testCfg(), providers)

	// No address: lookup must not run even though the score clears the bar.
	c := model.Candidate{
		Name:    "Joe's Hardware",
		Phone:   "(217) 555-0199",
		Website: "joeshardware.com",
	}
	p.Process(context.Background(), c)
	assert.Zero(t, prop.calls.Load())

	p.Process(context.Background(), goodCandidate())
	assert.Equal(t, int32(1), prop.calls.Load())
}

func TestProcess_VerificationCappedAtTopEmails(t *testing.T) {
	t.Parallel()
	disc := &fakeEmailDiscovery{result: &provider.EmailDiscoveryResult{
		Emails: []model.DiscoveredEmail{
			{Address: "a@joeshardware.com"},
			{Address: "b@joeshardware.com"},
			{Address: "c@joeshardware.com"},
			{Address: "d@joeshardware.com"},
		},
	}}
	var verified []string
	ver := &fakeEmailVerification{result: &provider.EmailVerificationResult{}}

	providers := provider.NewRegistry()
	providers.SetEmailDiscovery(disc)
	providers.SetEmailVerification(&captureVerifier{inner: ver, got: &verified})

	p, _ := newTestPipeline(t, testCfg(), providers)
	p.Process(context.Background(), goodCandidate())

	assert.Equal(t, []string{"a@joeshardware.com", "b@joeshardware.com"}, verified)
}

type captureVerifier struct {
	inner *fakeEmailVerification
	got   *[]string
}

func (c *captureVerifier) Verify(ctx context.Context, emails []string) (*provider.EmailVerificationResult, error) {
	*c.got = append([]string{}, emails...)
	return c.inner.Verify(ctx, emails)
}

func TestProcess_CancelledContext(t *testing.T) {
	t.Parallel()
	providers := provider.NewRegistry()
	p, _ := newTestPipeline(t, testCfg(), providers)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	scored := p.Process(ctx, goodCandidate())
	assert.Equal(t, model.StateFiltered, scored.State)
}
