// Package provider defines the adapter contracts for the external
// data services the pipeline enriches candidates through. Concrete
// HTTP clients live outside the core; the pipeline consumes only
// these interfaces.
package provider

import (
	"context"
	"sync"

	"github.com/sells-group/lead-qualifier/internal/model"
)

// Source names used for admission control and the cost ledger.
const (
	SourceDiscovery            = "discovery"
	SourceEmailDiscovery       = "email_discovery"
	SourceEmailVerification    = "email_verification"
	SourceSecondaryDiscovery   = "secondary_discovery"
	SourceGovernmentValidation = "government_validation"
	SourceProperty             = "property"
	SourceProbe                = "website_probe"
)

// RegistrySearchResult is the registry lookup response for a name.
type RegistrySearchResult struct {
	Found           bool                  `json:"found"`
	Matches         []model.RegistryMatch `json:"matches,omitempty"`
	ConfidenceBoost float64               `json:"confidence_boost"`
	QualityScore    float64               `json:"quality_score"`
}

// EmailDiscoveryResult holds discovered addresses and the provider's
// reported cost for the call.
type EmailDiscoveryResult struct {
	Emails []model.DiscoveredEmail `json:"emails"`
	Cost   float64                 `json:"cost"`
}

// EmailVerificationResult holds per-address outcomes and call cost.
type EmailVerificationResult struct {
	Results []model.EmailVerification `json:"results"`
	Cost    float64                   `json:"cost"`
}

// RegistryProvider corroborates a business name against a corporate
// or government registry.
type RegistryProvider interface {
	Name() string
	Search(ctx context.Context, businessName string) (*RegistrySearchResult, error)
}

// PropertyProvider looks up property intelligence for an address.
type PropertyProvider interface {
	Lookup(ctx context.Context, address string) (*model.PropertyInfo, error)
}

// EmailDiscoveryProvider finds contact addresses for a domain.
type EmailDiscoveryProvider interface {
	Discover(ctx context.Context, domain string) (*EmailDiscoveryResult, error)
}

// EmailVerificationProvider checks deliverability of addresses.
type EmailVerificationProvider interface {
	Verify(ctx context.Context, emails []string) (*EmailVerificationResult, error)
}

// WebsiteProbe checks whether a candidate website is reachable.
type WebsiteProbe interface {
	Check(ctx context.Context, url string) (*model.ProbeResult, error)
}

// Registry holds the adapter set wired into one pipeline run.
type Registry struct {
	mu         sync.RWMutex
	registries []RegistryProvider
	property   PropertyProvider
	emailDisc  EmailDiscoveryProvider
	emailVer   EmailVerificationProvider
	probe      WebsiteProbe
}

// NewRegistry creates an empty adapter registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// AddRegistryProvider wires one registry corroboration source.
func (r *Registry) AddRegistryProvider(p RegistryProvider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.registries = append(r.registries, p)
}

// RegistryProviders returns the wired registry sources.
func (r *Registry) RegistryProviders() []RegistryProvider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]RegistryProvider, len(r.registries))
	copy(out, r.registries)
	return out
}

// SetProperty wires the property-intelligence adapter.
func (r *Registry) SetProperty(p PropertyProvider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.property = p
}

// Property returns the property adapter, or nil.
func (r *Registry) Property() PropertyProvider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.property
}

// SetEmailDiscovery wires the email-discovery adapter.
func (r *Registry) SetEmailDiscovery(p EmailDiscoveryProvider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.emailDisc = p
}

// EmailDiscovery returns the email-discovery adapter, or nil.
func (r *Registry) EmailDiscovery() EmailDiscoveryProvider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.emailDisc
}

// SetEmailVerification wires the email-verification adapter.
func (r *Registry) SetEmailVerification(p EmailVerificationProvider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.emailVer = p
}

// EmailVerification returns the verification adapter, or nil.
func (r *Registry) EmailVerification() EmailVerificationProvider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.emailVer
}

// SetProbe wires the website probe.
func (r *Registry) SetProbe(p WebsiteProbe) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.probe = p
}

// Probe returns the website probe, or nil.
func (r *Registry) Probe() WebsiteProbe {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.probe
}
