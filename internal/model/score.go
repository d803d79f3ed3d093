package model

import (
	"encoding/json"
	"time"
)

// RiskLevel buckets the risk assessment for a candidate.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskModerate RiskLevel = "moderate"
	RiskHigh     RiskLevel = "high"
	RiskVeryHigh RiskLevel = "very_high"
)

// ComponentScores holds the per-field scores, each clamped to [0,100]
// before any combination.
type ComponentScores struct {
	BusinessName float64 `json:"business_name"`
	Address      float64 `json:"address"`
	Phone        float64 `json:"phone"`
	Website      float64 `json:"website"`
	Email        float64 `json:"email"`
	Registration float64 `json:"registration"`
}

// ScoreBreakdown is the full audit trail of the confidence computation.
type ScoreBreakdown struct {
	Components       ComponentScores `json:"components"`
	BaseScore        float64         `json:"base_score"`
	GovernmentBoost  float64         `json:"government_boost"`
	MultiSourceBonus float64         `json:"multi_source_bonus"`
	Sector           EntityType      `json:"sector"`
	SectorBonus      float64         `json:"sector_bonus"`
	RiskLevel        RiskLevel       `json:"risk_level"`
	RiskFactors      []string        `json:"risk_factors,omitempty"`
	RiskPenalty      float64         `json:"risk_penalty"`
	FinalScore       float64         `json:"final_score"`
	Tier             QualityTier     `json:"tier"`
	Qualified        bool            `json:"qualified"`
}

// CandidateState is the terminal pipeline state for a candidate.
type CandidateState string

const (
	// StateCompleted means all stages ran; qualification is a data
	// attribute, not a distinct terminal state.
	StateCompleted CandidateState = "completed"
	// StateFiltered means the candidate exited at the free gate or was
	// cut short by cancellation.
	StateFiltered CandidateState = "filtered"
)

// ScoredCandidate is the per-candidate pipeline output.
type ScoredCandidate struct {
	Candidate          Candidate         `json:"candidate"`
	State              CandidateState    `json:"state"`
	PreValidationScore int               `json:"pre_validation_score"`
	Breakdown          ScoreBreakdown    `json:"breakdown"`
	ProcessingCost     float64           `json:"processing_cost"`
	Failures           []ProviderFailure `json:"failures,omitempty"`
	BudgetSkips        map[string]string `json:"budget_skips,omitempty"`
}

// CostLedgerEntry is one append-only record of provider spend.
// ActualCost stays nil until the operation completes; budget
// utilization folds actual cost where set.
type CostLedgerEntry struct {
	ID            string    `json:"id"`
	RunID         string    `json:"run_id"`
	Source        string    `json:"source"`
	EstimatedCost float64   `json:"estimated_cost"`
	ActualCost    *float64  `json:"actual_cost,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// Cost returns the actual cost when recorded, else the estimate.
func (e CostLedgerEntry) Cost() float64 {
	if e.ActualCost != nil {
		return *e.ActualCost
	}
	return e.EstimatedCost
}

// BudgetState is the controller-owned spend snapshot. It is mutated
// only by the admission controller, once per completed paid operation.
type BudgetState struct {
	TotalBudget   float64            `json:"total_budget"`
	HardLimit     bool               `json:"hard_limit"`
	Allocations   map[string]float64 `json:"allocations"`
	Spent         float64            `json:"spent"`
	SpentBySource map[string]float64 `json:"spent_by_source"`
}

// Utilization returns cumulative spend as a fraction of total budget.
func (b BudgetState) Utilization() float64 {
	if b.TotalBudget <= 0 {
		return 0
	}
	return b.Spent / b.TotalBudget
}

// SourceUtilization returns a source's spend against its allocation.
func (b BudgetState) SourceUtilization(source string) float64 {
	pct, ok := b.Allocations[source]
	if !ok || pct <= 0 || b.TotalBudget <= 0 {
		return 0
	}
	return b.SpentBySource[source] / (b.TotalBudget * pct)
}

// ProviderStats tracks call and hit counts for one provider.
type ProviderStats struct {
	Calls int `json:"calls"`
	Hits  int `json:"hits"`
}

// RunMetrics aggregates run-level outcomes for a batch.
type RunMetrics struct {
	Processed        int                      `json:"processed"`
	Qualified        int                      `json:"qualified"`
	Filtered         int                      `json:"filtered"`
	TotalCost        float64                  `json:"total_cost"`
	AvgConfidence    float64                  `json:"avg_confidence"`
	CostPerQualified float64                  `json:"cost_per_qualified"`
	Providers        map[string]ProviderStats `json:"providers,omitempty"`
	DurationMs       int64                    `json:"duration_ms"`
}

// Run is a persisted batch run record. Config holds the effective
// configuration snapshot taken when the run started.
type Run struct {
	ID          string          `json:"id"`
	StartedAt   time.Time       `json:"started_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	Config      json.RawMessage `json:"config,omitempty"`
	Metrics     *RunMetrics     `json:"metrics,omitempty"`
}
