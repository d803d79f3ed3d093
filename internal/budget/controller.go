// Package budget implements the admission controller: every costly
// operation asks it for permission first, and every completed paid
// operation reports its actual cost back through it.
package budget

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/lead-qualifier/internal/config"
	"github.com/sells-group/lead-qualifier/internal/model"
)

// Rejection reason codes.
const (
	ReasonBudgetExceeded       = "budget_exceeded"
	ReasonSourceBudgetExceeded = "source_budget_exceeded"
	ReasonCostPerOpTooHigh     = "cost_per_operation_too_high"
	ReasonRunPaused            = "run_paused"
)

// Decision is the outcome of a budget check.
type Decision struct {
	Allowed     bool    `json:"allowed"`
	Reason      string  `json:"reason,omitempty"`
	Utilization float64 `json:"utilization"`
}

// Store is the optional persistence backend for budget state. Absent
// a store, state is run-scoped and in-memory only.
type Store interface {
	LoadBudgetState(ctx context.Context, runID string) (*model.BudgetState, error)
	AppendCostEntry(ctx context.Context, entry model.CostLedgerEntry) error
}

// Controller owns the cost ledger and rate windows. All mutation goes
// through one mutex so concurrent workers never double-count spend or
// race past a hard budget limit.
type Controller struct {
	mu      sync.Mutex
	state   model.BudgetState
	entries []model.CostLedgerEntry
	windows map[string]*rateWindow

	// reserved tracks the estimates of admitted calls that have not
	// recorded yet, so racing workers cannot collectively overshoot a
	// hard limit between their checks and their recordings.
	reserved         float64
	reservedBySource map[string]float64

	budgetCfg config.BudgetConfig
	rateCfg   config.RateLimitConfig
	alertCfg  config.AlertConfig
	alerter   *Alerter

	runID    string
	store    Store
	degraded bool
	paused   bool
	// lastAlerted is the high-water severity mark; each threshold
	// fires once per upward crossing.
	lastAlerted Severity
	onPause     func()
	now         func() time.Time
}

// Option configures a Controller.
type Option func(*Controller)

// WithStore attaches a persistence backend for the ledger.
func WithStore(s Store) Option {
	return func(c *Controller) { c.store = s }
}

// WithOnPause registers the run-level pause signal invoked on an
// emergency-threshold auto-pause.
func WithOnPause(fn func()) Option {
	return func(c *Controller) { c.onPause = fn }
}

// WithClock overrides the time source for testing.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// NewController creates an admission controller for one run.
func NewController(runID string, budgetCfg config.BudgetConfig, rateCfg config.RateLimitConfig, alertCfg config.AlertConfig, opts ...Option) *Controller {
	c := &Controller{
		state: model.BudgetState{
			TotalBudget:   budgetCfg.TotalUSD,
			HardLimit:     budgetCfg.HardLimit,
			Allocations:   budgetCfg.Allocations,
			SpentBySource: make(map[string]float64),
		},
		windows:          make(map[string]*rateWindow),
		reservedBySource: make(map[string]float64),
		budgetCfg:        budgetCfg,
		rateCfg:          rateCfg,
		alertCfg:         alertCfg,
		alerter:          NewAlerter(alertCfg),
		runID:            runID,
		now:              time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Load hydrates budget state from the persistence backend, if any.
// A backend failure flips the controller into degraded (allow-by-
// default) mode rather than blocking the run.
func (c *Controller) Load(ctx context.Context) {
	if c.store == nil {
		return
	}
	state, err := c.store.LoadBudgetState(ctx, c.runID)
	if err != nil {
		c.mu.Lock()
		c.setDegraded(err)
		c.mu.Unlock()
		return
	}
	if state == nil {
		return
	}
	c.mu.Lock()
	c.state.Spent = state.Spent
	for src, v := range state.SpentBySource {
		c.state.SpentBySource[src] = v
	}
	c.mu.Unlock()
}

// CheckBudget decides whether a paid operation may proceed. An allowed
// check reserves the estimate until the matching RecordActualCost (or
// Release) arrives, so workers racing between check and record cannot
// collectively exceed a hard limit.
func (c *Controller) CheckBudget(source string, estimatedCost float64) Decision {
	var crossed []Severity
	var util, spent, total float64
	defer func() { c.deliver(context.Background(), crossed, util, spent, total) }()

	c.mu.Lock()
	defer c.mu.Unlock()

	utilization := c.state.Utilization()

	if c.paused {
		return Decision{Allowed: false, Reason: ReasonRunPaused, Utilization: utilization}
	}

	if c.budgetCfg.MaxCostPerLead > 0 && estimatedCost > c.budgetCfg.MaxCostPerLead {
		return Decision{Allowed: false, Reason: ReasonCostPerOpTooHigh, Utilization: utilization}
	}

	if c.degraded {
		// Control plane unhealthy: allow, bounded by the per-op ceiling.
		return Decision{Allowed: true, Utilization: utilization}
	}

	projected := utilization
	if c.state.TotalBudget > 0 {
		projected = (c.state.Spent + c.reserved + estimatedCost) / c.state.TotalBudget
	}

	if c.state.HardLimit && projected >= 1.0 {
		crossed = c.raiseAlerts(SeverityEmergency)
		util, spent, total = c.state.Utilization(), c.state.Spent, c.state.TotalBudget
		return Decision{Allowed: false, Reason: ReasonBudgetExceeded, Utilization: projected}
	}

	if pct, ok := c.state.Allocations[source]; ok && pct > 0 && c.state.TotalBudget > 0 {
		sourceBudget := c.state.TotalBudget * pct
		if c.state.SpentBySource[source]+c.reservedBySource[source]+estimatedCost >= sourceBudget {
			return Decision{Allowed: false, Reason: ReasonSourceBudgetExceeded, Utilization: projected}
		}
	}

	if estimatedCost > 0 {
		c.reserved += estimatedCost
		c.reservedBySource[source] += estimatedCost
	}
	return Decision{Allowed: true, Utilization: projected}
}

// Release returns an admitted call's reservation without recording
// cost, for operations abandoned between check and provider call.
func (c *Controller) Release(source string, estimatedCost float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.release(source, estimatedCost)
}

// release drops a pending reservation. Caller holds the mutex. Clamped
// at zero so a release without a matching reservation (degraded-mode
// admissions) stays harmless.
func (c *Controller) release(source string, estimatedCost float64) {
	if estimatedCost <= 0 {
		return
	}
	c.reserved -= estimatedCost
	if c.reserved < 0 {
		c.reserved = 0
	}
	c.reservedBySource[source] -= estimatedCost
	if c.reservedBySource[source] < 0 {
		c.reservedBySource[source] = 0
	}
}

// CheckRateLimit counts a prospective call against the source's
// sliding window, admitting and recording it or rejecting with a
// retry-after.
func (c *Controller) CheckRateLimit(source string) RateDecision {
	c.mu.Lock()
	defer c.mu.Unlock()

	w, ok := c.windows[source]
	if !ok {
		limit := c.rateCfg.Default
		if perSource, found := c.rateCfg.PerSource[source]; found {
			limit = perSource
		}
		if limit <= 0 {
			limit = 1000
		}
		window := time.Duration(c.rateCfg.WindowSecs) * time.Second
		if window <= 0 {
			window = time.Minute
		}
		w = newRateWindow(window, limit)
		c.windows[source] = w
	}

	return w.check(c.now())
}

// RecordActualCost releases the call's pending reservation, appends a
// ledger entry, updates cumulative and per-source spend exactly once
// per completed operation, and re-evaluates every alert threshold
// against the new utilization.
func (c *Controller) RecordActualCost(ctx context.Context, entry model.CostLedgerEntry) {
	var crossed []Severity
	var util, spent, total float64
	defer func() { c.deliver(ctx, crossed, util, spent, total) }()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.release(entry.Source, entry.EstimatedCost)

	if entry.RunID == "" {
		entry.RunID = c.runID
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = c.now().UTC()
	}

	c.entries = append(c.entries, entry)
	cost := entry.Cost()
	c.state.Spent += cost
	c.state.SpentBySource[entry.Source] += cost

	if c.store != nil {
		if err := c.store.AppendCostEntry(ctx, entry); err != nil {
			c.setDegraded(err)
		}
	}

	crossed = c.raiseAlerts(c.alerter.severityFor(c.state.Utilization()))
	util, spent, total = c.state.Utilization(), c.state.Spent, c.state.TotalBudget
}

// raiseAlerts advances the high-water severity mark and trips the
// auto-pause, returning the severities newly crossed so the caller can
// deliver them after the mutex is released. A slow webhook endpoint
// must not stall admission checks. Caller holds the mutex.
func (c *Controller) raiseAlerts(sev Severity) []Severity {
	var crossed []Severity
	for s := c.lastAlerted + 1; s <= sev; s++ {
		crossed = append(crossed, s)
	}
	if sev > c.lastAlerted {
		c.lastAlerted = sev
	}
	if sev >= SeverityEmergency && c.alertCfg.EnableAutoPause && !c.paused {
		c.paused = true
		zap.L().Warn("budget: emergency threshold crossed, pausing run",
			zap.String("run_id", c.runID),
			zap.Float64("utilization", c.state.Utilization()),
		)
		if c.onPause != nil {
			c.onPause()
		}
	}
	return crossed
}

// deliver emits crossed alerts without holding the controller mutex.
func (c *Controller) deliver(ctx context.Context, crossed []Severity, utilization, spent, total float64) {
	for _, s := range crossed {
		c.alerter.emit(ctx, s, c.runID, utilization, spent, total)
	}
}

// setDegraded records a control-plane failure. Caller holds the mutex.
func (c *Controller) setDegraded(err error) {
	if c.degraded {
		return
	}
	c.degraded = true
	zap.L().Warn("budget: state backend unavailable, degrading to allow-by-default",
		zap.String("run_id", c.runID),
		zap.Error(err),
	)
}

// Paused reports whether the emergency auto-pause has tripped.
func (c *Controller) Paused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused
}

// State returns a copy of the current budget state.
func (c *Controller) State() model.BudgetState {
	c.mu.Lock()
	defer c.mu.Unlock()

	state := c.state
	state.SpentBySource = make(map[string]float64, len(c.state.SpentBySource))
	for k, v := range c.state.SpentBySource {
		state.SpentBySource[k] = v
	}
	return state
}

// Entries returns a copy of the run's cost ledger.
func (c *Controller) Entries() []model.CostLedgerEntry {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]model.CostLedgerEntry, len(c.entries))
	copy(out, c.entries)
	return out
}
