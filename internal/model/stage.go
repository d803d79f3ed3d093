package model

// Stage identifies one phase of the qualification pipeline.
type Stage string

const (
	StagePreValidation Stage = "pre_validation"
	StageEnrichment    Stage = "enrichment"
	StageValidation    Stage = "validation"
	StageFinal         Stage = "final_scoring"
)

// EntityType classifies a registry match by the kind of registration.
type EntityType string

const (
	EntityPublicCompany   EntityType = "public_company"
	EntityNonprofit       EntityType = "nonprofit"
	EntityForeignCompany  EntityType = "foreign_company"
	EntityStateRegistered EntityType = "state_registered"
	EntityUnknown         EntityType = "unknown"
)

// RegistryMatch is a corroboration hit from one registry source.
type RegistryMatch struct {
	Source          string     `json:"source"`
	Found           bool       `json:"found"`
	ConfidenceBoost float64    `json:"confidence_boost"`
	QualityScore    float64    `json:"quality_score"`
	Weight          float64    `json:"weight"`
	MaxBoost        float64    `json:"max_boost"`
	EntityType      EntityType `json:"entity_type,omitempty"`
	Jurisdictions   []string   `json:"jurisdictions,omitempty"`
	PublicRegistry  bool       `json:"public_registry,omitempty"`
}

// PropertyInfo is the property-intelligence lookup result for an address.
type PropertyInfo struct {
	Found        bool `json:"found"`
	IsCommercial bool `json:"is_commercial"`
}

// DiscoveredEmail is one address returned by the email-discovery provider.
type DiscoveredEmail struct {
	Address string `json:"address"`
	Source  string `json:"source,omitempty"`
}

// EmailVerification is the per-address verification outcome.
type EmailVerification struct {
	Email       string  `json:"email"`
	Deliverable bool    `json:"deliverable"`
	Confidence  float64 `json:"confidence"`
}

// ProbeResult is the website reachability check outcome.
type ProbeResult struct {
	Accessible     bool  `json:"accessible"`
	StatusCode     int   `json:"status_code"`
	ResponseTimeMs int64 `json:"response_time_ms"`
}

// ProviderFailure annotates a recovered provider error so callers can
// distinguish "did not qualify" from "enrichment was skipped".
type ProviderFailure struct {
	Source string `json:"source"`
	Stage  Stage  `json:"stage"`
	Reason string `json:"reason"`
}

// StageResult is the append-only output of one pipeline stage.
type StageResult struct {
	Stage         Stage               `json:"stage"`
	Cost          float64             `json:"cost"`
	Registry      []RegistryMatch     `json:"registry,omitempty"`
	Property      *PropertyInfo       `json:"property,omitempty"`
	Emails        []DiscoveredEmail   `json:"emails,omitempty"`
	Verifications []EmailVerification `json:"verifications,omitempty"`
	Probe         *ProbeResult        `json:"probe,omitempty"`
	Failures      []ProviderFailure   `json:"failures,omitempty"`
	// BudgetSkips lists sources whose call was rejected by admission
	// control during this stage (reason code per source).
	BudgetSkips map[string]string `json:"budget_skips,omitempty"`
}

// StageChain accumulates the per-stage results for one candidate.
// Accessors consult stages in order and stop at the first present
// value, so later stages can only add data, never shadow it.
type StageChain struct {
	Candidate          Candidate     `json:"candidate"`
	PreValidationScore int           `json:"pre_validation_score"`
	Stages             []StageResult `json:"stages"`
}

// Append chains a stage result onto the candidate's history.
func (c *StageChain) Append(r StageResult) {
	c.Stages = append(c.Stages, r)
}

// ProcessingCost folds the incurred cost across all stages.
func (c *StageChain) ProcessingCost() float64 {
	var total float64
	for _, s := range c.Stages {
		total += s.Cost
	}
	return total
}

// RegistryMatches returns all registry hits across stages, earliest first.
func (c *StageChain) RegistryMatches() []RegistryMatch {
	var matches []RegistryMatch
	for _, s := range c.Stages {
		for _, m := range s.Registry {
			if m.Found {
				matches = append(matches, m)
			}
		}
	}
	return matches
}

// Property returns the first property lookup result, or nil.
func (c *StageChain) Property() *PropertyInfo {
	for _, s := range c.Stages {
		if s.Property != nil {
			return s.Property
		}
	}
	return nil
}

// Emails returns all discovered emails across stages.
func (c *StageChain) Emails() []DiscoveredEmail {
	var emails []DiscoveredEmail
	for _, s := range c.Stages {
		emails = append(emails, s.Emails...)
	}
	return emails
}

// Verifications returns all email verification outcomes across stages.
func (c *StageChain) Verifications() []EmailVerification {
	var vs []EmailVerification
	for _, s := range c.Stages {
		vs = append(vs, s.Verifications...)
	}
	return vs
}

// Probe returns the first website probe result, or nil.
func (c *StageChain) Probe() *ProbeResult {
	for _, s := range c.Stages {
		if s.Probe != nil {
			return s.Probe
		}
	}
	return nil
}

// Failures returns all provider failure annotations across stages.
func (c *StageChain) Failures() []ProviderFailure {
	var fs []ProviderFailure
	for _, s := range c.Stages {
		fs = append(fs, s.Failures...)
	}
	return fs
}

// BudgetSkips merges the admission-rejection reasons across stages.
func (c *StageChain) BudgetSkips() map[string]string {
	skips := make(map[string]string)
	for _, s := range c.Stages {
		for src, reason := range s.BudgetSkips {
			if _, ok := skips[src]; !ok {
				skips[src] = reason
			}
		}
	}
	return skips
}
