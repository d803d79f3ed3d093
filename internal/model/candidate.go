package model

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Candidate is a raw business record awaiting qualification.
// It is immutable once ingested; enrichment output accumulates in the
// StageChain, never on the candidate itself.
type Candidate struct {
	PlaceID     string  `json:"place_id,omitempty"`
	Name        string  `json:"name"`
	Address     string  `json:"address"`
	Phone       string  `json:"phone"`
	Website     string  `json:"website"`
	Category    string  `json:"category,omitempty"`
	Rating      float64 `json:"rating,omitempty"`
	ReviewCount int     `json:"review_count,omitempty"`
	// RegistryHint forces the candidate past the free gate when the
	// caller already knows of a government or registry record.
	RegistryHint bool `json:"registry_hint,omitempty"`
}

// ID returns the candidate identity: the caller-supplied place id when
// present, otherwise a content hash over the identifying fields.
func (c Candidate) ID() string {
	if c.PlaceID != "" {
		return c.PlaceID
	}
	h := sha256.Sum256([]byte(strings.Join([]string{c.Name, c.Address, c.Phone, c.Website}, "|")))
	return hex.EncodeToString(h[:16])
}

// Domain extracts the bare hostname from the candidate website.
func (c Candidate) Domain() string {
	d := strings.TrimSpace(strings.ToLower(c.Website))
	d = strings.TrimPrefix(d, "https://")
	d = strings.TrimPrefix(d, "http://")
	d = strings.TrimPrefix(d, "www.")
	if i := strings.IndexAny(d, "/?#"); i >= 0 {
		d = d[:i]
	}
	return d
}

// QualityTier is a named bucket derived from the final confidence score.
type QualityTier string

const (
	TierExcellent  QualityTier = "excellent"
	TierHigh       QualityTier = "high"
	TierGood       QualityTier = "good"
	TierAcceptable QualityTier = "acceptable"
	TierPoor       QualityTier = "poor"
	TierVeryPoor   QualityTier = "very_poor"
)

// TierFor maps a 0-100 confidence score onto its quality tier.
func TierFor(score float64) QualityTier {
	switch {
	case score >= 90:
		return TierExcellent
	case score >= 80:
		return TierHigh
	case score >= 70:
		return TierGood
	case score >= 60:
		return TierAcceptable
	case score >= 40:
		return TierPoor
	default:
		return TierVeryPoor
	}
}
