// Package fmp adapts the Financial Modeling Prep stable API.
//
// The adapter is registry-driven: every endpoint it serves is described by a
// registry.Endpoint entry (see endpoints.go), and URL building, parameter
// filtering and validation all derive from that entry.
package fmp

import (
	"context"
	"net/url"
	"strings"

	"github.com/omnidata/nexus/internal/httpx"
	"github.com/omnidata/nexus/internal/providers"
	"github.com/omnidata/nexus/internal/registry"
)

const (
	providerName   = "fmp"
	defaultBaseURL = "https://financialmodelingprep.com"
	authParam      = "apikey"
)

// Provider is the FMP adapter.
type Provider struct {
	apiKey  string
	baseURL string
	client  *httpx.Client
	reg     *registry.Registry
}

// Option configures the Provider.
type Option func(*Provider)

// WithBaseURL overrides the API base URL (used in tests).
func WithBaseURL(u string) Option {
	return func(p *Provider) { p.baseURL = strings.TrimRight(u, "/") }
}

// WithRegistry injects a custom endpoint registry.
func WithRegistry(r *registry.Registry) Option {
	return func(p *Provider) { p.reg = r }
}

// New builds the adapter with the default endpoint catalog.
func New(apiKey string, client *httpx.Client, opts ...Option) *Provider {
	p := &Provider{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		client:  client,
		reg:     DefaultRegistry(),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

func (p *Provider) Name() string { return providerName }

// Registry exposes the endpoint catalog for discovery handlers.
func (p *Provider) Registry() *registry.Registry { return p.reg }

func (p *Provider) Endpoints() []string { return p.reg.Names() }

func (p *Provider) ValidateEndpoint(endpoint string) bool { return p.reg.Exists(endpoint) }

// CacheKey excludes the credential and hashes over-long keys.
func (p *Provider) CacheKey(endpoint string, params map[string]string) string {
	return providers.BuildCacheKey(endpoint, authParam, params)
}

// Fetch performs one upstream call and normalizes the response.
func (p *Provider) Fetch(ctx context.Context, endpoint string, params map[string]string) (any, error) {
	ep, ok := p.reg.Get(endpoint)
	if !ok {
		return nil, &providers.UnknownEndpointError{Endpoint: endpoint}
	}
	for _, req := range ep.RequiredParams {
		if params[req] == "" {
			return nil, &providers.MissingParamError{Endpoint: endpoint, Param: req}
		}
	}

	path, used := providers.SubstitutePath(ep.Path, params)

	query := url.Values{}
	query.Set(authParam, p.apiKey)
	for _, name := range ep.AllParams() {
		if used[name] {
			continue
		}
		if v, ok := params[name]; ok && v != "" {
			query.Set(name, v)
		}
	}

	resp, err := p.client.Get(ctx, p.baseURL+path, query)
	if err != nil {
		return nil, err
	}
	return p.normalize(resp.Data, ep), nil
}

// normalize applies the common FMP response patterns: error envelopes,
// single-item list extraction for symbol-keyed endpoints, and historical
// payload reshaping.
func (p *Provider) normalize(data any, ep registry.Endpoint) any {
	if m, ok := data.(map[string]any); ok {
		if msg, ok := m["Error Message"]; ok {
			return map[string]any{"error": msg, "data": nil}
		}
		if hist, ok := m["historical"]; ok {
			return map[string]any{
				"symbol":     m["symbol"],
				"historical": hist,
			}
		}
	}

	if list, ok := data.([]any); ok && len(list) == 1 && requiresSymbol(ep) {
		return list[0]
	}

	return data
}

func requiresSymbol(ep registry.Endpoint) bool {
	for _, r := range ep.RequiredParams {
		if r == "symbol" {
			return true
		}
	}
	return false
}

// ValidateSymbol checks the basic FMP ticker shape: alphanumeric plus '.'
// and '-', at most 10 characters.
func ValidateSymbol(symbol string) bool {
	if symbol == "" || len(symbol) > 10 {
		return false
	}
	for _, c := range symbol {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '.', c == '-':
		default:
			return false
		}
	}
	return true
}
