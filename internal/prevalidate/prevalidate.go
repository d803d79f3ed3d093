// Package prevalidate computes the free heuristic score that gates a
// candidate's entry into paid enrichment stages.
package prevalidate

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/lead-qualifier/internal/model"
)

// Component point values. They sum to 100; Score caps at 100.
const (
	namePoints    = 25
	addressPoints = 30
	phonePoints   = 25
	websitePoints = 20
)

// genericNameTokens are tokens that by themselves name no business.
var genericNameTokens = map[string]bool{
	"business":   true,
	"company":    true,
	"store":      true,
	"shop":       true,
	"services":   true,
	"enterprise": true,
	"llc":        true,
	"inc":        true,
	"corp":       true,
	"test":       true,
	"sample":     true,
	"example":    true,
}

// placeholderDomains never point at a real business site.
var placeholderDomains = map[string]bool{
	"example.com":     true,
	"test.com":        true,
	"website.com":     true,
	"yourwebsite.com": true,
	"sitename.com":    true,
	"domain.com":      true,
	"localhost":       true,
}

var (
	streetNumberPattern = regexp.MustCompile(`^\d+\s`)
	streetTypePattern   = regexp.MustCompile(`(?i)\b(st|street|ave|avenue|rd|road|blvd|boulevard|dr|drive|ln|lane|way|ct|court|pkwy|parkway|pl|place|hwy|highway)\b`)
	stateCodePattern    = regexp.MustCompile(`\b[A-Z]{2}\b`)
	zipPattern          = regexp.MustCompile(`\b\d{5}(-\d{4})?\b`)
	fakeAreaCodes       = map[string]bool{"555": true, "000": true, "111": true, "999": true}
)

// Score computes the zero-cost heuristic score for a candidate.
// Pure, no I/O; malformed or missing fields score zero for that
// component rather than erroring.
func Score(c model.Candidate) int {
	total := scoreName(c.Name) + scoreAddress(c.Address) + scorePhone(c.Phone) + scoreWebsite(c.Website)
	if total > 100 {
		total = 100
	}
	return total
}

func scoreName(name string) int {
	name = strings.TrimSpace(norm.NFKC.String(name))
	if name == "" {
		return 0
	}
	words := strings.Fields(strings.ToLower(name))
	generic := 0
	for _, w := range words {
		if genericNameTokens[strings.Trim(w, ".,'")] {
			generic++
		}
	}
	// A name made entirely of generic tokens carries no signal.
	if generic == len(words) {
		return 0
	}
	return namePoints
}

// scoreAddress awards partial credit per completeness sub-signal.
func scoreAddress(address string) int {
	address = strings.TrimSpace(address)
	if address == "" {
		return 0
	}

	score := 0
	if streetNumberPattern.MatchString(address) {
		score += 8
	}
	if streetTypePattern.MatchString(address) {
		score += 7
	}
	if strings.Count(address, ",") >= 2 {
		score += 5
	}
	if stateCodePattern.MatchString(address) {
		score += 5
	}
	if zipPattern.MatchString(address) {
		score += 5
	}
	if score > addressPoints {
		score = addressPoints
	}
	return score
}

func scorePhone(phone string) int {
	digits := Digits(phone)
	if len(digits) == 11 && digits[0] == '1' {
		digits = digits[1:]
	}
	if len(digits) != 10 {
		return 0
	}
	if IsFakePhone(phone) {
		return 0
	}
	return phonePoints
}

func scoreWebsite(website string) int {
	website = strings.TrimSpace(strings.ToLower(website))
	if website == "" {
		return 0
	}
	c := model.Candidate{Website: website}
	if placeholderDomains[c.Domain()] {
		return 0
	}
	return websitePoints
}

// Digits strips everything but the decimal digits from a phone string.
func Digits(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// IsFakePhone reports whether a phone number matches a known fake
// pattern: a reserved area code, a 000 exchange, or the full 555-5555
// exchange/line pair.
func IsFakePhone(phone string) bool {
	digits := Digits(phone)
	if len(digits) == 11 && digits[0] == '1' {
		digits = digits[1:]
	}
	if len(digits) != 10 {
		return false
	}
	area, exchange, line := digits[0:3], digits[3:6], digits[6:10]
	if fakeAreaCodes[area] {
		return true
	}
	if exchange == "000" {
		return true
	}
	if exchange == "555" && line == "5555" {
		return true
	}
	return false
}

// IsPlaceholderDomain reports whether a domain is a known placeholder.
func IsPlaceholderDomain(domain string) bool {
	return placeholderDomains[strings.ToLower(strings.TrimPrefix(domain, "www."))]
}

// IsGenericName reports whether a business name is made entirely of
// generic tokens (or is empty).
func IsGenericName(name string) bool {
	return scoreName(name) == 0
}
