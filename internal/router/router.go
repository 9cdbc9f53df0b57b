// Package router chooses the financial and pricing providers for a market.
// Explicit configuration wins; otherwise the first provider in the market's
// fallback chain whose credential is configured is used. Instances are
// shared by name, so a provider serving both roles has one governor.
package router

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/bobmcallan/growthfund/internal/common"
	"github.com/bobmcallan/growthfund/internal/interfaces"
	"github.com/bobmcallan/growthfund/internal/models"
)

// Factory builds a provider from the resolved credential.
type Factory func(cfg *common.Config, apiKey string, logger *common.Logger) interfaces.Provider

// Registration binds a provider name to its factory and the credential it
// needs. Credential is empty for free providers.
type Registration struct {
	Name       string
	Credential string // environment variable named in errors
	KeyName    string // key passed to common.ResolveAPIKey
	ConfigKey  func(cfg *common.Config) string
	Factory    Factory
}

// Fallback chains per market, most preferred first.
var (
	financialChains = map[string][]string{
		models.MarketSP500.ID:   {"twelvedata", "eodhd", "fmp"},
		models.MarketTASE125.ID: {"twelvedata", "eodhd"},
	}
	pricingChains = map[string][]string{
		models.MarketSP500.ID:   {"yahoo", "twelvedata", "eodhd", "fmp"},
		models.MarketTASE125.ID: {"yahoo", "twelvedata", "eodhd"},
	}
)

// Role names a provider's job in a run.
type Role string

const (
	RoleFinancial Role = "financial"
	RolePricing   Role = "pricing"
)

// Sources is the resolved provider pair for a market.
type Sources struct {
	Market        string
	Financial     interfaces.Provider
	Pricing       interfaces.Provider
	FinancialName string
	PricingName   string
}

// Router resolves and caches provider instances.
type Router struct {
	cfg    *common.Config
	logger *common.Logger

	mu            sync.Mutex
	registrations map[string]Registration
	instances     map[string]interfaces.Provider
}

// Option configures a Router.
type Option func(*Router)

// WithRegistrations replaces the default provider set.
func WithRegistrations(regs ...Registration) Option {
	return func(r *Router) {
		r.registrations = make(map[string]Registration, len(regs))
		for _, reg := range regs {
			r.registrations[reg.Name] = reg
		}
	}
}

// New creates a Router with the default providers.
func New(cfg *common.Config, logger *common.Logger, opts ...Option) *Router {
	r := &Router{
		cfg:       cfg,
		logger:    logger,
		instances: make(map[string]interfaces.Provider),
	}
	WithRegistrations(DefaultRegistrations()...)(r)
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Names returns the registered provider names, sorted.
func (r *Router) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.registrations))
	for n := range r.registrations {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// credential resolves a registration's key. ok is false when one is needed
// and none is configured.
func (r *Router) credential(reg Registration) (string, bool) {
	if reg.KeyName == "" {
		return "", true
	}
	fallback := ""
	if reg.ConfigKey != nil {
		fallback = reg.ConfigKey(r.cfg)
	}
	key, err := common.ResolveAPIKey(reg.KeyName, fallback)
	if err != nil || key == "" {
		return "", false
	}
	return key, true
}

// instance returns the cached provider for name, building it on first use.
func (r *Router) instance(name string) (interfaces.Provider, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p, ok := r.instances[name]; ok {
		return p, nil
	}
	reg, ok := r.registrations[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown data source %q (available: %s)",
			common.ErrConfiguration, name, strings.Join(r.namesLocked(), ", "))
	}
	key, ok := r.credential(reg)
	if !ok {
		return nil, fmt.Errorf("%w: data source %s requires %s", common.ErrConfiguration, name, reg.Credential)
	}
	p := reg.Factory(r.cfg, key, r.logger)
	r.instances[name] = p
	r.logger.Debug().Str("provider", name).Msg("Provider instance created")
	return p, nil
}

// Named returns the provider registered as name, for comparing sources.
func (r *Router) Named(name string) (interfaces.Provider, error) {
	return r.instance(normalizeName(name))
}

func (r *Router) namesLocked() []string {
	names := make([]string, 0, len(r.registrations))
	for n := range r.registrations {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func (r *Router) explicit(role Role) string {
	switch role {
	case RoleFinancial:
		return normalizeName(r.cfg.Providers.FinancialSource)
	case RolePricing:
		return normalizeName(r.cfg.Providers.PricingSource)
	}
	return ""
}

// Provider returns the provider for a role in a market.
func (r *Router) Provider(market string, role Role) (interfaces.Provider, error) {
	m, ok := models.LookupMarket(market)
	if !ok {
		return nil, fmt.Errorf("%w: unknown market %q (available: %s)",
			common.ErrConfiguration, market, strings.Join(models.MarketIDs(), ", "))
	}

	if name := r.explicit(role); name != "" {
		return r.instance(name)
	}

	chain := financialChains[m.ID]
	if role == RolePricing {
		chain = pricingChains[m.ID]
	}

	var missing []string
	for _, name := range chain {
		r.mu.Lock()
		reg, registered := r.registrations[name]
		r.mu.Unlock()
		if !registered {
			continue
		}
		if _, ok := r.credential(reg); !ok {
			missing = append(missing, reg.Credential)
			continue
		}
		return r.instance(name)
	}
	return nil, fmt.Errorf("%w: no %s data source configured for %s, set one of %s",
		common.ErrConfiguration, role, m.ID, strings.Join(missing, ", "))
}

// Financial returns the financial-statement provider for a market.
func (r *Router) Financial(market string) (interfaces.Provider, error) {
	return r.Provider(market, RoleFinancial)
}

// Pricing returns the pricing provider for a market.
func (r *Router) Pricing(market string) (interfaces.Provider, error) {
	return r.Provider(market, RolePricing)
}

// Resolve returns both providers for a market.
func (r *Router) Resolve(market string) (*Sources, error) {
	fin, err := r.Financial(market)
	if err != nil {
		return nil, err
	}
	pricing, err := r.Pricing(market)
	if err != nil {
		return nil, err
	}
	m, _ := models.LookupMarket(market)
	return &Sources{
		Market:        m.ID,
		Financial:     fin,
		Pricing:       pricing,
		FinancialName: fin.Name(),
		PricingName:   pricing.Name(),
	}, nil
}

// Authenticate resolves both providers and checks their credentials. A
// failing financial source is fatal; a failing pricing source is replaced
// by the financial source.
func (r *Router) Authenticate(ctx context.Context, market string) (*Sources, error) {
	s, err := r.Resolve(market)
	if err != nil {
		return nil, err
	}

	if err := s.Financial.Authenticate(ctx); err != nil {
		return nil, fmt.Errorf("financial source %s login failed: %w", s.FinancialName, err)
	}
	r.logger.Info().Str("market", s.Market).Str("provider", s.FinancialName).Msg("Financial source ready")

	if s.Pricing == s.Financial {
		return s, nil
	}
	if err := s.Pricing.Authenticate(ctx); err != nil {
		r.logger.Warn().Err(err).Str("provider", s.PricingName).Str("fallback", s.FinancialName).
			Msg("Pricing source login failed, using financial source for pricing")
		s.Pricing = s.Financial
		s.PricingName = s.FinancialName
		return s, nil
	}
	r.logger.Info().Str("market", s.Market).Str("provider", s.PricingName).Msg("Pricing source ready")
	return s, nil
}
