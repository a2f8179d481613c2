// Package fred adapts the FRED (Federal Reserve Economic Data) API.
//
// FRED is the strictest upstream here: a single-request concurrency limit
// and an API key that the service expects lowercased. A friendly alias
// catalog maps common indicator names ("gdp", "cpi") to FRED series IDs.
package fred

import (
	"context"
	"net/url"
	"strings"

	"github.com/omnidata/nexus/internal/httpx"
	"github.com/omnidata/nexus/internal/providers"
)

const (
	providerName   = "fred"
	defaultBaseURL = "https://api.stlouisfed.org/fred"
	authParam      = "api_key"
)

// Series maps friendly indicator aliases to FRED series IDs.
var Series = map[string]string{
	"gdp":                   "GDP",
	"gdp_real":              "GDPC1",
	"cpi":                   "CPIAUCSL",
	"core_cpi":              "CPILFESL",
	"pce":                   "PCE",
	"core_pce":              "PCEPILFE",
	"ppi":                   "PPIACO",
	"unemployment":          "UNRATE",
	"payrolls":              "PAYEMS",
	"initial_claims":        "ICSA",
	"continuing_claims":     "CCSA",
	"fed_funds":             "FEDFUNDS",
	"treasury_3m":           "DGS3MO",
	"treasury_2y":           "DGS2",
	"treasury_10y":          "DGS10",
	"treasury_30y":          "DGS30",
	"yield_spread_10y_2y":   "T10Y2Y",
	"mortgage_30y":          "MORTGAGE30US",
	"housing_starts":        "HOUST",
	"retail_sales":          "RSAFS",
	"industrial_production": "INDPRO",
	"capacity_utilization":  "TCU",
	"consumer_sentiment":    "UMCSENT",
	"personal_income":       "PI",
	"savings_rate":          "PSAVERT",
	"m2":                    "M2SL",
	"sp500":                 "SP500",
	"vix":                   "VIXCLS",
	"wti":                   "DCOILWTICO",
	"brent":                 "DCOILBRENTEU",
	"dollar_index":          "DTWEXBGS",
	"recession_prob":        "RECPROUSM156N",
}

type endpointDef struct {
	path   string
	params []string
}

var endpoints = map[string]endpointDef{
	"series": {
		path: "/series/observations",
		params: []string{"series_id", "observation_start", "observation_end",
			"units", "frequency", "aggregation_method", "limit", "sort_order"},
	},
	"series_info": {
		path:   "/series",
		params: []string{"series_id"},
	},
	"releases": {
		path:   "/releases",
		params: []string{"realtime_start", "realtime_end", "limit", "offset", "order_by", "sort_order"},
	},
}

var endpointOrder = []string{"series", "series_info", "releases"}

// Provider is the FRED adapter.
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
	resolved := make(map[string]string, len(params))
	for k, v := range params {
		resolved[k] = v
	}
	if id, ok := resolved["series_id"]; ok {
		resolved["series_id"] = ResolveSeries(id)
	}
	return providers.BuildCacheKey(endpoint, authParam, resolved)
}

func (p *Provider) Fetch(ctx context.Context, endpoint string, params map[string]string) (any, error) {
	def, ok := endpoints[endpoint]
	if !ok {
		return nil, &providers.UnknownEndpointError{Endpoint: endpoint}
	}

	if endpoint == "series" || endpoint == "series_info" {
		if params["series_id"] == "" {
			return nil, &providers.MissingParamError{Endpoint: endpoint, Param: "series_id"}
		}
	}

	query := url.Values{}
	// The upstream rejects mixed-case keys; always send lowercased.
	query.Set(authParam, strings.ToLower(p.apiKey))
	query.Set("file_type", "json")
	for _, name := range def.params {
		v, ok := params[name]
		if !ok || v == "" {
			continue
		}
		if name == "series_id" {
			v = ResolveSeries(v)
		}
		query.Set(name, v)
	}

	resp, err := p.client.Get(ctx, p.baseURL+def.path, query)
	if err != nil {
		return nil, err
	}
	return normalize(resp.Data, endpoint), nil
}

// normalize reshapes FRED responses: error envelopes, observation payloads
// and the single-series unwrap for series_info.
func normalize(data any, endpoint string) any {
	m, ok := data.(map[string]any)
	if !ok {
		return data
	}

	if code, ok := m["error_code"]; ok {
		return map[string]any{
			"error": m["error_message"],
			"code":  code,
			"data":  nil,
		}
	}

	switch endpoint {
	case "series":
		if obs, ok := m["observations"].([]any); ok {
			return map[string]any{
				"observations": obs,
				"count":        len(obs),
				"units":        m["units"],
			}
		}
	case "series_info":
		if list, ok := m["seriess"].([]any); ok && len(list) == 1 {
			return list[0]
		}
	case "releases":
		if rel, ok := m["releases"].([]any); ok {
			return map[string]any{
				"releases": rel,
				"count":    len(rel),
			}
		}
	}
	return data
}

// ResolveSeries maps a friendly alias to its FRED series ID; unknown names
// pass through uppercased (FRED IDs are uppercase).
func ResolveSeries(name string) string {
	if id, ok := Series[strings.ToLower(name)]; ok {
		return id
	}
	return strings.ToUpper(name)
}

// ValidateSeriesID checks the FRED series ID shape: uppercase alphanumerics,
// 1 to 25 characters.
func ValidateSeriesID(id string) bool {
	if id == "" || len(id) > 25 {
		return false
	}
	for _, c := range id {
		switch {
		case c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		default:
			return false
		}
	}
	return true
}
