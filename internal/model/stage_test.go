package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStageChainAccumulates(t *testing.T) {
	t.Parallel()

	chain := &StageChain{Candidate: Candidate{Name: "Joe's Hardware"}}
	chain.Append(StageResult{Stage: StagePreValidation})
	chain.Append(StageResult{
		Stage: StageEnrichment,
		Cost:  0.07,
		Registry: []RegistryMatch{
			{Source: "state_sos", Found: true},
			{Source: "irs_eo", Found: false}, // miss, excluded from matches
		},
		Emails: []DiscoveredEmail{{Address: "info@joeshardware.com"}},
	})
	chain.Append(StageResult{
		Stage: StageValidation,
		Cost:  0.01,
		Probe: &ProbeResult{Accessible: true, StatusCode: 200},
		Verifications: []EmailVerification{
			{Email: "info@joeshardware.com", Deliverable: true, Confidence: 0.9},
		},
	})

	assert.InDelta(t, 0.08, chain.ProcessingCost(), 0.001)
	assert.Len(t, chain.RegistryMatches(), 1)
	assert.Len(t, chain.Emails(), 1)
	assert.Len(t, chain.Verifications(), 1)
	assert.True(t, chain.Probe().Accessible)
}

func TestStageChainFirstValueWins(t *testing.T) {
	t.Parallel()

	chain := &StageChain{}
	chain.Append(StageResult{
		Stage:    StageEnrichment,
		Property: &PropertyInfo{Found: true, IsCommercial: true},
		Probe:    &ProbeResult{Accessible: false},
	})
	chain.Append(StageResult{
		Stage:    StageValidation,
		Property: &PropertyInfo{Found: false},
		Probe:    &ProbeResult{Accessible: true},
	})

	// Later stages add data but never shadow earlier values.
	assert.True(t, chain.Property().IsCommercial)
	assert.False(t, chain.Probe().Accessible)
}

func TestStageChainBudgetSkips(t *testing.T) {
	t.Parallel()

	chain := &StageChain{}
	chain.Append(StageResult{
		Stage:       StageEnrichment,
		BudgetSkips: map[string]string{"email_discovery": "budget_exceeded"},
	})
	chain.Append(StageResult{
		Stage: StageValidation,
		BudgetSkips: map[string]string{
			"email_discovery":    "rate_limited", // first reason is kept
			"email_verification": "source_budget_exceeded",
		},
	})

	skips := chain.BudgetSkips()
	assert.Equal(t, "budget_exceeded", skips["email_discovery"])
	assert.Equal(t, "source_budget_exceeded", skips["email_verification"])
}

func TestCostLedgerEntryCost(t *testing.T) {
	t.Parallel()

	e := CostLedgerEntry{EstimatedCost: 0.30}
	assert.InDelta(t, 0.30, e.Cost(), 0.001)

	actual := 0.10
	e.ActualCost = &actual
	assert.InDelta(t, 0.10, e.Cost(), 0.001)
}

func TestBudgetStateUtilization(t *testing.T) {
	t.Parallel()

	s := BudgetState{TotalBudget: 10, Spent: 4}
	assert.InDelta(t, 0.4, s.Utilization(), 0.001)

	s.Allocations = map[string]float64{"discovery": 0.5}
	s.SpentBySource = map[string]float64{"discovery": 2.5}
	assert.InDelta(t, 0.5, s.SourceUtilization("discovery"), 0.001)
	assert.Zero(t, s.SourceUtilization("unallocated"))

	assert.Zero(t, BudgetState{}.Utilization())
}
