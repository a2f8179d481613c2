// Package polygon adapts the Polygon.io market data API: daily aggregates,
// trades, options snapshots and the market-wide snapshot.
package polygon

import (
	"context"
	"net/url"
	"strings"

	"github.com/omnidata/nexus/internal/httpx"
	"github.com/omnidata/nexus/internal/providers"
)

const (
	providerName   = "polygon"
	defaultBaseURL = "https://api.polygon.io"
	authParam      = "apiKey"
)

type endpointDef struct {
	path      string
	pathParam []string // params substituted into the path
	params    []string // allowed query params
}

var endpoints = map[string]endpointDef{
	"aggs_daily": {
		path:      "/v2/aggs/ticker/{symbol}/range/1/day/{start}/{end}",
		pathParam: []string{"symbol", "start", "end"},
		params:    []string{"adjusted", "sort", "limit"},
	},
	"trades": {
		path:      "/v3/trades/{symbol}",
		pathParam: []string{"symbol"},
		params:    []string{"timestamp", "timestamp.gte", "timestamp.lte", "order", "limit", "sort"},
	},
	"options_snapshot": {
		path:      "/v3/snapshot/options/{underlyingAsset}",
		pathParam: []string{"underlyingAsset"},
		params:    []string{"strike_price", "expiration_date", "contract_type", "order", "limit", "sort"},
	},
	"market_snapshot": {
		path:   "/v2/snapshot/locale/us/markets/stocks/tickers",
		params: []string{"tickers", "include_otc"},
	},
}

var endpointOrder = []string{"aggs_daily", "trades", "options_snapshot", "market_snapshot"}

// Provider is the Polygon.io adapter.
type Provider struct {
	apiKey  string
	baseURL string
	client  *httpx.Client
}

type Option func(*Provider)

// WithBaseURL overrides the API base URL (used in tests).
func WithBaseURL(u string) Option {
	return func(p *Provider) { p.baseURL = strings.TrimRight(u, "/") }
}

func New(apiKey string, client *httpx.Client, opts ...Option) *Provider {
	p := &Provider{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		client:  client,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

func (p *Provider) Name() string { return providerName }

func (p *Provider) Endpoints() []string {
	out := make([]string, len(endpointOrder))
	copy(out, endpointOrder)
	return out
}

func (p *Provider) ValidateEndpoint(endpoint string) bool {
	_, ok := endpoints[endpoint]
	return ok
}

func (p *Provider) CacheKey(endpoint string, params map[string]string) string {
	return providers.BuildCacheKey(endpoint, authParam, params)
}

func (p *Provider) Fetch(ctx context.Context, endpoint string, params map[string]string) (any, error) {
	def, ok := endpoints[endpoint]
	if !ok {
		return nil, &providers.UnknownEndpointError{Endpoint: endpoint}
	}

	path := def.path
	for _, name := range def.pathParam {
		v := params[name]
		// options_snapshot accepts "symbol" as an alias for the underlying.
		if v == "" && name == "underlyingAsset" {
			v = params["symbol"]
		}
		if v == "" {
			return nil, &providers.MissingParamError{Endpoint: endpoint, Param: name}
		}
		path = strings.ReplaceAll(path, "{"+name+"}", v)
	}

	query := url.Values{}
	query.Set(authParam, p.apiKey)
	for _, name := range def.params {
		if v, ok := params[name]; ok && v != "" {
			query.Set(name, v)
		}
	}

	resp, err := p.client.Get(ctx, p.baseURL+path, query)
	if err != nil {
		return nil, err
	}
	return normalize(resp.Data, endpoint), nil
}

// normalize flattens the Polygon response envelope per endpoint. Error
// responses (status == "ERROR") become a uniform error envelope.
func normalize(data any, endpoint string) any {
	m, ok := data.(map[string]any)
	if !ok {
		return data
	}

	if status, _ := m["status"].(string); strings.EqualFold(status, "ERROR") {
		out := map[string]any{
			"error": "Unknown error",
			"data":  nil,
		}
		if e, ok := m["error"]; ok {
			out["error"] = e
		}
		if msg, ok := m["message"]; ok {
			out["message"] = msg
		}
		return out
	}

	switch endpoint {
	case "aggs_daily":
		return map[string]any{
			"ticker":       m["ticker"],
			"queryCount":   orZero(m["queryCount"]),
			"resultsCount": orZero(m["resultsCount"]),
			"adjusted":     m["adjusted"] == true,
			"results":      orList(m["results"]),
		}
	case "trades", "options_snapshot":
		return map[string]any{
			"results":  orList(m["results"]),
			"next_url": m["next_url"],
		}
	case "market_snapshot":
		return map[string]any{
			"tickers": orList(m["tickers"]),
			"count":   orZero(m["count"]),
		}
	default:
		return data
	}
}

func orZero(v any) any {
	if v == nil {
		return float64(0)
	}
	return v
}

func orList(v any) any {
	if v == nil {
		return []any{}
	}
	return v
}

const symbolChars = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789.-:"

// ValidateSymbol accepts stock and options tickers: uppercase alphanumerics
// plus '.', '-' and ':', at most 21 characters (options symbols are long).
func ValidateSymbol(symbol string) bool {
	if symbol == "" || len(symbol) > 21 {
		return false
	}
	for _, c := range strings.ToUpper(symbol) {
		if !strings.ContainsRune(symbolChars, c) {
			return false
		}
	}
	return true
}
