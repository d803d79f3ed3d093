package scoring

import (
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/lead-qualifier/internal/model"
	"github.com/sells-group/lead-qualifier/internal/prevalidate"
)

// testNameTokens mark obvious test or sample records.
var testNameTokens = map[string]bool{
	"test":   true,
	"sample": true,
	"asdf":   true,
	"qwerty": true,
	"xxx":    true,
	"todo":   true,
	"n/a":    true,
}

// scoreBusinessName penalizes generic name patterns, rewards specific
// multi-word names, and hard-penalizes test tokens.
func scoreBusinessName(name string) float64 {
	name = strings.TrimSpace(norm.NFKC.String(name))
	if name == "" {
		return 0
	}

	words := strings.Fields(strings.ToLower(name))
	for _, w := range words {
		if testNameTokens[strings.Trim(w, ".,'\"")] {
			return 5
		}
	}

	if prevalidate.IsGenericName(name) {
		return 30
	}

	switch {
	case len(words) >= 3:
		return 90
	case len(words) == 2:
		return 85
	default:
		return 70
	}
}

// scoreAddress boosts heavily on confirmed commercial property, falls
// back to the heuristic completeness signals otherwise.
func scoreAddress(address string, property *model.PropertyInfo) float64 {
	if property != nil && property.Found {
		if property.IsCommercial {
			return 95
		}
		return 45
	}

	address = strings.TrimSpace(address)
	if address == "" {
		return 0
	}
	// Sub-signal points are 0-30; scale onto 0-90 so an unconfirmed
	// address never outranks a commercial-confirmed one.
	pts := prevalidate.Score(model.Candidate{Address: address}) // address-only candidate
	return float64(pts) * 3
}

// scorePhone penalizes known-fake patterns with a hard floor and
// rewards valid 10/11-digit formats.
func scorePhone(phone string) float64 {
	digits := prevalidate.Digits(phone)
	if len(digits) == 11 && digits[0] == '1' {
		digits = digits[1:]
	}
	if len(digits) != 10 {
		return 0
	}
	if prevalidate.IsFakePhone(phone) {
		return 10
	}
	return 90
}

// scoreWebsite combines presence, placeholder rejection, the
// reachability probe outcome, and a small https bonus.
func scoreWebsite(c model.Candidate, probe *model.ProbeResult) float64 {
	site := strings.TrimSpace(strings.ToLower(c.Website))
	if site == "" {
		return 0
	}
	if prevalidate.IsPlaceholderDomain(c.Domain()) {
		return 15
	}

	score := 70.0
	if probe != nil {
		if probe.Accessible {
			score = 90
		} else {
			score = 30
		}
	}
	if strings.HasPrefix(site, "https://") {
		score += 5
	}
	return clamp(score)
}

// scoreEmail is driven by verification confidence plus a bonus when
// the best email's domain matches the website domain. With no
// discovered emails the component sits at its neutral absent default.
func scoreEmail(c model.Candidate, emails []model.DiscoveredEmail, verifications []model.EmailVerification) float64 {
	if len(emails) == 0 {
		return 50
	}
	if len(verifications) == 0 {
		return 60
	}

	best := 0.0
	var bestEmail string
	for _, v := range verifications {
		var s float64
		if v.Deliverable {
			s = 70 + v.Confidence*25
		} else {
			s = 20
		}
		if s > best {
			best = s
			bestEmail = v.Email
		}
	}

	if domain := c.Domain(); domain != "" && emailDomain(bestEmail) == domain {
		best += 5
	}
	return clamp(best)
}

// scoreRegistration boosts on any registry match and further on
// multi-registry and multi-state corroboration.
func scoreRegistration(matches []model.RegistryMatch) float64 {
	if len(matches) == 0 {
		return 25
	}

	score := 75.0
	if len(matches) >= 2 {
		score = 90
	}
	for _, m := range matches {
		if len(m.Jurisdictions) >= 2 {
			score += 5
			break
		}
	}
	return clamp(score)
}

func emailDomain(email string) string {
	i := strings.LastIndex(email, "@")
	if i < 0 {
		return ""
	}
	return strings.ToLower(email[i+1:])
}
