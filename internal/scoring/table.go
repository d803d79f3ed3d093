// Package scoring fuses heterogeneous enrichment signals into one
// bounded confidence score with a full audit breakdown.
package scoring

import (
	"math"
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/lead-qualifier/internal/model"
)

// Weights are the fixed per-component weights; they must sum to 1.0.
type Weights struct {
	BusinessName float64 `yaml:"business_name"`
	Address      float64 `yaml:"address"`
	Phone        float64 `yaml:"phone"`
	Website      float64 `yaml:"website"`
	Email        float64 `yaml:"email"`
	Registration float64 `yaml:"registration"`
}

func (w Weights) sum() float64 {
	return w.BusinessName + w.Address + w.Phone + w.Website + w.Email + w.Registration
}

// SectorAdjustment applies a multiplier to the base score plus a flat
// bonus for one sector classification.
type SectorAdjustment struct {
	Multiplier float64 `yaml:"multiplier"`
	FlatBonus  float64 `yaml:"flat_bonus"`
}

// Table holds every tunable constant of the scoring engine.
type Table struct {
	Weights Weights `yaml:"weights"`

	// Government boost: per-source min(raw x weight, max), capped in total.
	GovBoostCap           float64 `yaml:"gov_boost_cap"`
	DefaultSourceMaxBoost float64 `yaml:"default_source_max_boost"`

	// Multi-source bonus, stepped by distinct corroborating registries.
	MultiSourceSteps map[int]float64 `yaml:"multi_source_steps"`
	AllSourcesCount  int             `yaml:"all_sources_count"`
	AllSourcesBonus  float64         `yaml:"all_sources_bonus"`

	Sectors          map[model.EntityType]SectorAdjustment `yaml:"sectors"`
	HighValueSectors []model.EntityType                    `yaml:"high_value_sectors"`

	RiskBase       map[model.RiskLevel]float64 `yaml:"risk_base"`
	RiskPenaltyCap float64                     `yaml:"risk_penalty_cap"`
}

// DefaultTable returns the production scoring constants.
func DefaultTable() Table {
	return Table{
		Weights: Weights{
			BusinessName: 0.20,
			Address:      0.15,
			Phone:        0.15,
			Website:      0.15,
			Email:        0.10,
			Registration: 0.25,
		},
		GovBoostCap:           30,
		DefaultSourceMaxBoost: 20,
		MultiSourceSteps:      map[int]float64{2: 10, 3: 18, 4: 25},
		AllSourcesCount:       5,
		AllSourcesBonus:       30,
		Sectors: map[model.EntityType]SectorAdjustment{
			model.EntityPublicCompany:   {Multiplier: 1.15, FlatBonus: 15},
			model.EntityNonprofit:       {Multiplier: 1.10, FlatBonus: 12},
			model.EntityForeignCompany:  {Multiplier: 1.08, FlatBonus: 10},
			model.EntityStateRegistered: {Multiplier: 1.05, FlatBonus: 8},
			model.EntityUnknown:         {Multiplier: 1.00, FlatBonus: 0},
		},
		HighValueSectors: []model.EntityType{
			model.EntityPublicCompany,
			model.EntityNonprofit,
		},
		RiskBase: map[model.RiskLevel]float64{
			model.RiskLow:      0,
			model.RiskModerate: 15,
			model.RiskHigh:     25,
			model.RiskVeryHigh: 40,
		},
		RiskPenaltyCap: 40,
	}
}

// Validate rejects a malformed table; invalid tables are fatal at run
// start, never clamped.
func (t Table) Validate() error {
	if math.Abs(t.Weights.sum()-1.0) > 0.001 {
		return eris.Errorf("scoring: component weights must sum to 1.0, got %.3f", t.Weights.sum())
	}
	if t.GovBoostCap < 0 || t.GovBoostCap > 100 {
		return eris.Errorf("scoring: gov_boost_cap must be in [0,100], got %.1f", t.GovBoostCap)
	}
	if t.RiskPenaltyCap < 0 || t.RiskPenaltyCap > 100 {
		return eris.Errorf("scoring: risk_penalty_cap must be in [0,100], got %.1f", t.RiskPenaltyCap)
	}
	for sector, adj := range t.Sectors {
		if adj.Multiplier <= 0 {
			return eris.Errorf("scoring: sector %s multiplier must be positive, got %.2f", sector, adj.Multiplier)
		}
	}
	return nil
}

// LoadTable reads a scoring table override from a YAML file.
func LoadTable(path string) (Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Table{}, eris.Wrapf(err, "scoring: read table %s", path)
	}

	table := DefaultTable()
	if err := yaml.Unmarshal(data, &table); err != nil {
		return Table{}, eris.Wrap(err, "scoring: parse table")
	}
	if err := table.Validate(); err != nil {
		return Table{}, err
	}
	return table, nil
}

// clamp bounds a score to [0,100]. Applied to every component and
// boost before combination, not only to the final score.
func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
