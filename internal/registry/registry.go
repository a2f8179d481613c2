// Package registry holds endpoint metadata for registry-driven providers.
// Endpoints are data, not code: adding one is a single Register call, and
// the provider adapter derives URL building, parameter filtering and
// validation from the entry.
package registry

import "sync"

// Tier is the API access tier an endpoint requires.
type Tier string

const (
	TierFree    Tier = "free"
	TierPremium Tier = "premium"
)

// Category groups endpoints for discovery.
type Category string

const (
	CategorySearch        Category = "search"
	CategoryCompany       Category = "company"
	CategoryQuotes        Category = "quotes"
	CategoryFinancials    Category = "financials"
	CategoryCharts        Category = "charts"
	CategoryEconomics     Category = "economics"
	CategoryCalendars     Category = "calendars"
	CategoryNews          Category = "news"
	CategoryAnalyst       Category = "analyst"
	CategoryInstitutional Category = "institutional"
	CategoryPerformance   Category = "performance"
	CategoryTechnical     Category = "technical"
	CategoryETF           Category = "etf"
	CategoryInsider       Category = "insider"
	CategoryIndexes       Category = "indexes"
	CategoryForex         Category = "forex"
	CategoryCrypto        Category = "crypto"
	CategoryCommodities   Category = "commodities"
	CategoryDCF           Category = "dcf"
	CategoryOther         Category = "other"
)

// Endpoint describes one API endpoint. Path may contain {param} placeholders
// that are substituted from request parameters.
type Endpoint struct {
	Name           string   `json:"name"`
	Path           string   `json:"path"`
	Category       Category `json:"category"`
	Tier           Tier     `json:"tier"`
	Description    string   `json:"description,omitempty"`
	RequiredParams []string `json:"required_params,omitempty"`
	OptionalParams []string `json:"optional_params,omitempty"`
}

// AllParams returns required followed by optional parameter names.
func (e Endpoint) AllParams() []string {
	out := make([]string, 0, len(e.RequiredParams)+len(e.OptionalParams))
	out = append(out, e.RequiredParams...)
	out = append(out, e.OptionalParams...)
	return out
}

// StatsReport summarises a registry.
type StatsReport struct {
	Total      int              `json:"total"`
	Free       int              `json:"free"`
	Premium    int              `json:"premium"`
	Categories map[Category]int `json:"categories"`
}

// Registry is a concurrency-safe endpoint catalog. Registration order is
// preserved for listings.
type Registry struct {
	mu        sync.RWMutex
	endpoints map[string]Endpoint
	order     []string
}

func New() *Registry {
	return &Registry{endpoints: make(map[string]Endpoint)}
}

// Register adds or replaces an endpoint.
func (r *Registry) Register(e Endpoint) {
	if e.Tier == "" {
		e.Tier = TierFree
	}
	if e.Category == "" {
		e.Category = CategoryOther
	}
	r.mu.Lock()
	if _, exists := r.endpoints[e.Name]; !exists {
		r.order = append(r.order, e.Name)
	}
	r.endpoints[e.Name] = e
	r.mu.Unlock()
}

// Get returns the endpoint and whether it exists.
func (r *Registry) Get(name string) (Endpoint, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.endpoints[name]
	return e, ok
}

func (r *Registry) Exists(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.endpoints[name]
	return ok
}

// Names returns endpoint names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// All returns every endpoint in registration order.
func (r *Registry) All() []Endpoint {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Endpoint, 0, len(r.order))
	for _, n := range r.order {
		out = append(out, r.endpoints[n])
	}
	return out
}

// ByCategory returns endpoints in the given category, registration order.
func (r *Registry) ByCategory(c Category) []Endpoint {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Endpoint
	for _, n := range r.order {
		if e := r.endpoints[n]; e.Category == c {
			out = append(out, e)
		}
	}
	return out
}

// ByTier returns endpoints in the given tier, registration order.
func (r *Registry) ByTier(t Tier) []Endpoint {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Endpoint
	for _, n := range r.order {
		if e := r.endpoints[n]; e.Tier == t {
			out = append(out, e)
		}
	}
	return out
}

// Categories returns endpoint counts per category.
func (r *Registry) Categories() map[Category]int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[Category]int)
	for _, e := range r.endpoints {
		out[e.Category]++
	}
	return out
}

// Stats returns totals and the category breakdown.
func (r *Registry) Stats() StatsReport {
	r.mu.RLock()
	defer r.mu.RUnlock()
	st := StatsReport{Categories: make(map[Category]int)}
	for _, e := range r.endpoints {
		st.Total++
		if e.Tier == TierPremium {
			st.Premium++
		} else {
			st.Free++
		}
		st.Categories[e.Category]++
	}
	return st
}
