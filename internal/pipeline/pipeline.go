// Package pipeline sequences the four qualification stages per
// candidate and drives bounded-concurrency batch runs over them.
package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/lead-qualifier/internal/budget"
	"github.com/sells-group/lead-qualifier/internal/config"
	"github.com/sells-group/lead-qualifier/internal/model"
	"github.com/sells-group/lead-qualifier/internal/prevalidate"
	"github.com/sells-group/lead-qualifier/internal/provider"
	"github.com/sells-group/lead-qualifier/internal/resilience"
	"github.com/sells-group/lead-qualifier/internal/scoring"
)

// Pipeline runs the staged qualification flow for candidates.
type Pipeline struct {
	cfg       *config.Config
	providers *provider.Registry
	admission *budget.Controller
	engine    *scoring.Engine
	retry     resilience.RetryConfig
	runID     string
	stats     *statTracker
}

// New creates a pipeline with all dependencies.
func New(cfg *config.Config, providers *provider.Registry, admission *budget.Controller, engine *scoring.Engine, runID string) *Pipeline {
	return &Pipeline{
		cfg:       cfg,
		providers: providers,
		admission: admission,
		engine:    engine,
		retry:     resilience.DefaultRetryConfig(),
		runID:     runID,
		stats:     newStatTracker(),
	}
}

// Process runs one candidate through the four stages. Provider
// failures and admission rejections degrade the result, never fail it;
// only the free gate and cancellation produce a filtered state.
func (p *Pipeline) Process(ctx context.Context, c model.Candidate) *model.ScoredCandidate {
	log := zap.L().With(zap.String("candidate", c.ID()), zap.String("run_id", p.runID))

	chain := &model.StageChain{Candidate: c}

	// ===== Stage 1: pre-validation (free) =====
	preScore := prevalidate.Score(c)
	chain.PreValidationScore = preScore
	chain.Append(model.StageResult{Stage: model.StagePreValidation})

	if preScore < p.cfg.Pipeline.PreValidationMin && !c.RegistryHint {
		log.Debug("pipeline: filtered at pre-validation", zap.Int("score", preScore))
		return p.filtered(chain, preScore)
	}

	// ===== Stage 2: enrichment =====
	enrichment, anyAllowed := p.runEnrichment(ctx, chain, preScore, log)
	chain.Append(enrichment)

	if err := ctx.Err(); err != nil {
		return p.filtered(chain, preScore)
	}

	// Every remaining paid call was rejected: abort straight to the
	// free final scoring rather than burning the validation stage.
	if !anyAllowed && len(enrichment.BudgetSkips) > 0 {
		log.Debug("pipeline: enrichment fully rejected, skipping validation")
		return p.completed(chain, preScore)
	}

	// ===== Stage 3: validation / risk =====
	chain.Append(p.runValidation(ctx, chain, log))

	if err := ctx.Err(); err != nil {
		return p.filtered(chain, preScore)
	}

	// ===== Stage 4: final scoring =====
	return p.completed(chain, preScore)
}

// runEnrichment performs registry search, property lookup and email
// discovery, each gated on score and admission control. The second
// return is false when every attempted paid call was rejected.
func (p *Pipeline) runEnrichment(ctx context.Context, chain *model.StageChain, preScore int, log *zap.Logger) (model.StageResult, bool) {
	c := chain.Candidate
	result := model.StageResult{Stage: model.StageEnrichment, BudgetSkips: make(map[string]string)}
	attempted, allowed := 0, 0
	var stageCost float64

	// Registry corroboration.
	if p.cfg.Providers.GovernmentValidation.Enabled {
		for _, rp := range p.providers.RegistryProviders() {
			if ctx.Err() != nil {
				return result, allowed > 0
			}
			attempted++
			cost := p.cfg.Providers.GovernmentValidation.CostPerCall
			if !p.admit(provider.SourceGovernmentValidation, cost, &result) {
				continue
			}
			allowed++

			p.stats.call(provider.SourceGovernmentValidation)
			search, err := callProvider(ctx, p.cfg.Providers.GovernmentValidation, p.retry, func(ctx context.Context) (*provider.RegistrySearchResult, error) {
				return rp.Search(ctx, c.Name)
			})
			stageCost += p.record(ctx, provider.SourceGovernmentValidation, cost, cost)
			if err != nil {
				result.Failures = append(result.Failures, model.ProviderFailure{
					Source: rp.Name(), Stage: model.StageEnrichment, Reason: err.Error(),
				})
				log.Debug("pipeline: registry search failed", zap.String("registry", rp.Name()), zap.Error(err))
				continue
			}
			if search.Found {
				p.stats.hit(provider.SourceGovernmentValidation)
				result.Registry = append(result.Registry, search.Matches...)
			}
		}
	}

	registryFound := len(result.Registry) > 0

	// Property intelligence.
	if p.cfg.Providers.Property.Enabled && p.providers.Property() != nil &&
		c.Address != "" && preScore >= p.cfg.Pipeline.PropertyScoreMin {
		attempted++
		cost := p.cfg.Providers.Property.CostPerCall
		if p.admit(provider.SourceProperty, cost, &result) {
			allowed++
			p.stats.call(provider.SourceProperty)
			info, err := callProvider(ctx, p.cfg.Providers.Property, p.retry, func(ctx context.Context) (*model.PropertyInfo, error) {
				return p.providers.Property().Lookup(ctx, c.Address)
			})
			stageCost += p.record(ctx, provider.SourceProperty, cost, cost)
			if err != nil {
				result.Failures = append(result.Failures, model.ProviderFailure{
					Source: provider.SourceProperty, Stage: model.StageEnrichment, Reason: err.Error(),
				})
			} else {
				if info.Found {
					p.stats.hit(provider.SourceProperty)
				}
				result.Property = info
			}
		}
	}

	// Email discovery: higher bar without registry corroboration.
	emailMin := p.cfg.Pipeline.EmailScoreMin
	if registryFound {
		emailMin = p.cfg.Pipeline.EmailScoreMinMatched
	}
	if p.cfg.Providers.EmailDiscovery.Enabled && p.providers.EmailDiscovery() != nil &&
		c.Website != "" && preScore >= emailMin {
		attempted++
		cost := p.cfg.Providers.EmailDiscovery.CostPerCall
		if p.admit(provider.SourceEmailDiscovery, cost, &result) {
			allowed++
			p.stats.call(provider.SourceEmailDiscovery)
			disc, err := callProvider(ctx, p.cfg.Providers.EmailDiscovery, p.retry, func(ctx context.Context) (*provider.EmailDiscoveryResult, error) {
				return p.providers.EmailDiscovery().Discover(ctx, c.Domain())
			})
			if err != nil {
				// Failed calls may still incur provider cost.
				stageCost += p.record(ctx, provider.SourceEmailDiscovery, cost, cost)
				result.Failures = append(result.Failures, model.ProviderFailure{
					Source: provider.SourceEmailDiscovery, Stage: model.StageEnrichment, Reason: err.Error(),
				})
			} else {
				stageCost += p.record(ctx, provider.SourceEmailDiscovery, cost, disc.Cost)
				if len(disc.Emails) > 0 {
					p.stats.hit(provider.SourceEmailDiscovery)
				}
				result.Emails = disc.Emails
			}
		}
	}

	result.Cost = stageCost
	return result, allowed > 0 || attempted == 0
}

// runValidation probes the website and verifies the top discovered
// emails when budget allows.
func (p *Pipeline) runValidation(ctx context.Context, chain *model.StageChain, log *zap.Logger) model.StageResult {
	c := chain.Candidate
	result := model.StageResult{Stage: model.StageValidation, BudgetSkips: make(map[string]string)}
	var stageCost float64

	// Website reachability (free).
	if c.Website != "" && p.providers.Probe() != nil {
		p.stats.call(provider.SourceProbe)
		probe, err := callProvider(ctx, config.ProviderConfig{TimeoutSecs: p.cfg.Providers.ProbeTimeoutSecs}, p.retry, func(ctx context.Context) (*model.ProbeResult, error) {
			return p.providers.Probe().Check(ctx, c.Website)
		})
		if err != nil {
			result.Failures = append(result.Failures, model.ProviderFailure{
				Source: provider.SourceProbe, Stage: model.StageValidation, Reason: err.Error(),
			})
			log.Debug("pipeline: website probe failed", zap.String("website", c.Website), zap.Error(err))
		} else {
			if probe.Accessible {
				p.stats.hit(provider.SourceProbe)
			}
			result.Probe = probe
		}
	}

	// Verify the top discovered emails.
	emails := chain.Emails()
	if len(emails) > 0 && p.cfg.Providers.EmailVerification.Enabled && p.providers.EmailVerification() != nil {
		max := p.cfg.Pipeline.MaxEmailVerifications
		if max <= 0 {
			max = 2
		}
		if len(emails) > max {
			emails = emails[:max]
		}

		cost := p.cfg.Providers.EmailVerification.CostPerCall * float64(len(emails))
		if p.admit(provider.SourceEmailVerification, cost, &result) {
			addrs := make([]string, len(emails))
			for i, e := range emails {
				addrs[i] = e.Address
			}

			p.stats.call(provider.SourceEmailVerification)
			ver, err := callProvider(ctx, p.cfg.Providers.EmailVerification, p.retry, func(ctx context.Context) (*provider.EmailVerificationResult, error) {
				return p.providers.EmailVerification().Verify(ctx, addrs)
			})
			if err != nil {
				stageCost += p.record(ctx, provider.SourceEmailVerification, cost, cost)
				result.Failures = append(result.Failures, model.ProviderFailure{
					Source: provider.SourceEmailVerification, Stage: model.StageValidation, Reason: err.Error(),
				})
			} else {
				stageCost += p.record(ctx, provider.SourceEmailVerification, cost, ver.Cost)
				if len(ver.Results) > 0 {
					p.stats.hit(provider.SourceEmailVerification)
				}
				result.Verifications = ver.Results
			}
		}
	}

	result.Cost = stageCost
	return result
}

// admit runs the budget and rate checks for one prospective call,
// noting the rejection reason on the stage when denied.
func (p *Pipeline) admit(source string, estimatedCost float64, result *model.StageResult) bool {
	if estimatedCost > 0 {
		if decision := p.admission.CheckBudget(source, estimatedCost); !decision.Allowed {
			result.BudgetSkips[source] = decision.Reason
			return false
		}
	}
	if rl := p.admission.CheckRateLimit(source); !rl.Allowed {
		p.admission.Release(source, estimatedCost)
		result.BudgetSkips[source] = "rate_limited"
		return false
	}
	return true
}

// record reports the completed call's actual cost to the ledger and
// returns it for stage accounting. Zero-cost operations are not
// ledgered.
func (p *Pipeline) record(ctx context.Context, source string, estimated, actual float64) float64 {
	if estimated <= 0 && actual <= 0 {
		return 0
	}
	p.admission.RecordActualCost(ctx, model.CostLedgerEntry{
		Source:        source,
		EstimatedCost: estimated,
		ActualCost:    &actual,
	})
	return actual
}

func (p *Pipeline) filtered(chain *model.StageChain, preScore int) *model.ScoredCandidate {
	return &model.ScoredCandidate{
		Candidate:          chain.Candidate,
		State:              model.StateFiltered,
		PreValidationScore: preScore,
		Breakdown: model.ScoreBreakdown{
			FinalScore: float64(preScore),
			Tier:       model.TierFor(float64(preScore)),
		},
		ProcessingCost: chain.ProcessingCost(),
		Failures:       chain.Failures(),
		BudgetSkips:    chain.BudgetSkips(),
	}
}

func (p *Pipeline) completed(chain *model.StageChain, preScore int) *model.ScoredCandidate {
	chain.Append(model.StageResult{Stage: model.StageFinal})
	breakdown := p.engine.Score(chain)

	return &model.ScoredCandidate{
		Candidate:          chain.Candidate,
		State:              model.StateCompleted,
		PreValidationScore: preScore,
		Breakdown:          breakdown,
		ProcessingCost:     chain.ProcessingCost(),
		Failures:           chain.Failures(),
		BudgetSkips:        chain.BudgetSkips(),
	}
}

// callProvider runs one provider call under the configured timeout
// with transient-error retry.
func callProvider[T any](ctx context.Context, cfg config.ProviderConfig, retry resilience.RetryConfig, fn func(ctx context.Context) (T, error)) (T, error) {
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return resilience.DoVal(ctx, retry, func(ctx context.Context) (T, error) {
		callCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		return fn(callCtx)
	})
}
