package scoring

import (
	"github.com/sells-group/lead-qualifier/internal/model"
)

// Engine computes confidence scores from a completed stage chain.
// Scoring is deterministic: the same chain always yields the same
// breakdown.
type Engine struct {
	table     Table
	threshold float64
}

// NewEngine creates a scoring engine. The table must already be
// validated; threshold is the nominal qualification bar.
func NewEngine(table Table, qualityThreshold float64) *Engine {
	return &Engine{table: table, threshold: qualityThreshold}
}

// Score fuses the stage chain's signals into a ScoreBreakdown. Pure
// given the chain; performs no I/O.
func (e *Engine) Score(chain *model.StageChain) model.ScoreBreakdown {
	c := chain.Candidate
	matches := chain.RegistryMatches()

	components := model.ComponentScores{
		BusinessName: clamp(scoreBusinessName(c.Name)),
		Address:      clamp(scoreAddress(c.Address, chain.Property())),
		Phone:        clamp(scorePhone(c.Phone)),
		Website:      clamp(scoreWebsite(c, chain.Probe())),
		Email:        clamp(scoreEmail(c, chain.Emails(), chain.Verifications())),
		Registration: clamp(scoreRegistration(matches)),
	}

	w := e.table.Weights
	base := components.BusinessName*w.BusinessName +
		components.Address*w.Address +
		components.Phone*w.Phone +
		components.Website*w.Website +
		components.Email*w.Email +
		components.Registration*w.Registration

	govBoost := e.governmentBoost(matches)
	multiBonus := e.multiSourceBonus(matches)

	sector := classifySector(matches)
	adj, ok := e.table.Sectors[sector]
	if !ok {
		adj = SectorAdjustment{Multiplier: 1.0}
	}
	sectorBonus := base*(adj.Multiplier-1.0) + adj.FlatBonus

	risk := e.assessRisk(chain)

	final := clamp(base + govBoost + multiBonus + sectorBonus - risk.penalty)

	return model.ScoreBreakdown{
		Components:       components,
		BaseScore:        base,
		GovernmentBoost:  govBoost,
		MultiSourceBonus: multiBonus,
		Sector:           sector,
		SectorBonus:      sectorBonus,
		RiskLevel:        risk.level,
		RiskFactors:      risk.factors,
		RiskPenalty:      risk.penalty,
		FinalScore:       final,
		Tier:             model.TierFor(final),
		Qualified:        e.qualifies(final, govBoost, sector),
	}
}

// governmentBoost sums per-source weighted boosts, each bounded by its
// source cap, with the total capped independently of the multi-source
// bonus (the two caps are deliberately separate).
func (e *Engine) governmentBoost(matches []model.RegistryMatch) float64 {
	var total float64
	for _, m := range matches {
		weight := m.Weight
		if weight <= 0 {
			weight = 1.0
		}
		maxBoost := m.MaxBoost
		if maxBoost <= 0 {
			maxBoost = e.table.DefaultSourceMaxBoost
		}
		boost := m.ConfidenceBoost * weight
		if boost > maxBoost {
			boost = maxBoost
		}
		total += boost
	}
	if total > e.table.GovBoostCap {
		total = e.table.GovBoostCap
	}
	return total
}

// multiSourceBonus steps by the count of distinct corroborating
// registries.
func (e *Engine) multiSourceBonus(matches []model.RegistryMatch) float64 {
	sources := make(map[string]bool, len(matches))
	for _, m := range matches {
		sources[m.Source] = true
	}
	n := len(sources)

	if e.table.AllSourcesCount > 0 && n >= e.table.AllSourcesCount {
		return e.table.AllSourcesBonus
	}
	if bonus, ok := e.table.MultiSourceSteps[n]; ok {
		return bonus
	}
	// Walk down to the highest configured step at or below n.
	best := 0.0
	for count, bonus := range e.table.MultiSourceSteps {
		if n >= count && bonus > best {
			best = bonus
		}
	}
	return best
}

// qualifies applies the widened acceptance window: strongly
// corroborated or high-value-sector records may qualify slightly
// below the nominal bar.
func (e *Engine) qualifies(final, govBoost float64, sector model.EntityType) bool {
	if final >= e.threshold {
		return true
	}
	if govBoost >= 15 && final >= e.threshold-10 {
		return true
	}
	for _, hv := range e.table.HighValueSectors {
		if sector == hv && final >= e.threshold-15 {
			return true
		}
	}
	return false
}
