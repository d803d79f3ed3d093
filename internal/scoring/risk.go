package scoring

import (
	"github.com/sells-group/lead-qualifier/internal/model"
	"github.com/sells-group/lead-qualifier/internal/prevalidate"
)

// Risk factor labels recorded on the breakdown.
const (
	FactorFakePhone      = "fake_phone"
	FactorNoWebsite      = "no_website"
	FactorNoRegistration = "no_state_registration"
)

// riskAssessment is the intermediate risk computation for a candidate.
type riskAssessment struct {
	level   model.RiskLevel
	factors []string
	penalty float64
}

// assessRisk derives the risk level from negative signals, adjusted
// down by government validation and multi-source corroboration, then
// converts it into a bounded penalty.
func (e *Engine) assessRisk(chain *model.StageChain) riskAssessment {
	c := chain.Candidate
	matches := chain.RegistryMatches()

	var factors []string
	score := 0.0

	fakePhone := prevalidate.IsFakePhone(c.Phone)
	if fakePhone {
		factors = append(factors, FactorFakePhone)
		score += 30
	}
	if c.Website == "" {
		factors = append(factors, FactorNoWebsite)
		score += 15
	}
	if len(matches) == 0 {
		factors = append(factors, FactorNoRegistration)
		score += 15
	}

	topTier := false
	governmentValidated := false
	for _, m := range matches {
		if m.PublicRegistry {
			topTier = true
		}
		governmentValidated = true
	}
	if governmentValidated {
		score -= 20
	}
	if len(matches) >= 2 {
		score -= 10
	}
	if len(matches) >= 3 {
		score -= 5
	}
	if score < 0 {
		score = 0
	}

	var level model.RiskLevel
	switch {
	case score < 20:
		level = model.RiskLow
	case score < 40:
		level = model.RiskModerate
	case score < 60:
		level = model.RiskHigh
	default:
		level = model.RiskVeryHigh
	}

	penalty := e.table.RiskBase[level]
	if fakePhone {
		penalty += 10
	}
	if c.Website == "" {
		penalty += 5
	}
	if len(matches) == 0 {
		penalty += 15
	}
	if len(matches) > 0 {
		penalty -= 25
		if topTier {
			penalty -= 15
		}
	}
	if penalty < 0 {
		penalty = 0
	}
	if penalty > e.table.RiskPenaltyCap {
		penalty = e.table.RiskPenaltyCap
	}

	return riskAssessment{level: level, factors: factors, penalty: penalty}
}

// sectorPrecedence orders classifications when multiple registries
// report different entity types.
var sectorPrecedence = []model.EntityType{
	model.EntityPublicCompany,
	model.EntityNonprofit,
	model.EntityForeignCompany,
	model.EntityStateRegistered,
}

// classifySector picks the primary sector from the registry payloads.
func classifySector(matches []model.RegistryMatch) model.EntityType {
	present := make(map[model.EntityType]bool, len(matches))
	for _, m := range matches {
		present[m.EntityType] = true
	}
	for _, sector := range sectorPrecedence {
		if present[sector] {
			return sector
		}
	}
	return model.EntityUnknown
}
