package fmp

import "github.com/omnidata/nexus/internal/registry"

// DefaultRegistry builds the stable-API endpoint catalog. The set below is
// the slice of the API the loader exercises; adding an endpoint is a single
// Register call.
func DefaultRegistry() *registry.Registry {
	r := registry.New()

	for _, e := range []registry.Endpoint{
		// ── Search ───────────────────────────────────────────────────────────
		{Name: "search_symbol", Path: "/stable/search-symbol", Category: registry.CategorySearch,
			Description:    "Search tickers by symbol fragment",
			RequiredParams: []string{"query"}, OptionalParams: []string{"limit", "exchange"}},
		{Name: "search_name", Path: "/stable/search-name", Category: registry.CategorySearch,
			Description:    "Search tickers by company name",
			RequiredParams: []string{"query"}, OptionalParams: []string{"limit", "exchange"}},
		{Name: "screener", Path: "/stable/company-screener", Category: registry.CategorySearch,
			Description:    "Screen companies by fundamentals",
			OptionalParams: []string{"marketCapMoreThan", "marketCapLowerThan", "sector", "industry", "betaMoreThan", "betaLowerThan", "exchange", "limit"}},

		// ── Company ──────────────────────────────────────────────────────────
		{Name: "profile", Path: "/stable/profile", Category: registry.CategoryCompany,
			Description:    "Company profile",
			RequiredParams: []string{"symbol"}},
		{Name: "market_cap", Path: "/stable/market-capitalization", Category: registry.CategoryCompany,
			RequiredParams: []string{"symbol"}},
		{Name: "executives", Path: "/stable/key-executives", Category: registry.CategoryCompany,
			RequiredParams: []string{"symbol"}},
		{Name: "employee_count", Path: "/stable/employee-count", Category: registry.CategoryCompany,
			RequiredParams: []string{"symbol"}, OptionalParams: []string{"limit"}},

		// ── Quotes ───────────────────────────────────────────────────────────
		{Name: "quote", Path: "/stable/quote", Category: registry.CategoryQuotes,
			Description:    "Full quote",
			RequiredParams: []string{"symbol"}},
		{Name: "quote_short", Path: "/stable/quote-short", Category: registry.CategoryQuotes,
			RequiredParams: []string{"symbol"}},
		{Name: "batch_quote", Path: "/stable/batch-quote", Category: registry.CategoryQuotes,
			RequiredParams: []string{"symbols"}},
		{Name: "aftermarket_quote", Path: "/stable/aftermarket-quote", Category: registry.CategoryQuotes,
			RequiredParams: []string{"symbol"}},

		// ── Financial statements ─────────────────────────────────────────────
		{Name: "income_statement", Path: "/stable/income-statement", Category: registry.CategoryFinancials,
			RequiredParams: []string{"symbol"}, OptionalParams: []string{"period", "limit"}},
		{Name: "balance_sheet", Path: "/stable/balance-sheet-statement", Category: registry.CategoryFinancials,
			RequiredParams: []string{"symbol"}, OptionalParams: []string{"period", "limit"}},
		{Name: "cash_flow", Path: "/stable/cash-flow-statement", Category: registry.CategoryFinancials,
			RequiredParams: []string{"symbol"}, OptionalParams: []string{"period", "limit"}},
		{Name: "ratios", Path: "/stable/ratios", Category: registry.CategoryFinancials,
			RequiredParams: []string{"symbol"}, OptionalParams: []string{"period", "limit"}},
		{Name: "key_metrics", Path: "/stable/key-metrics", Category: registry.CategoryFinancials,
			Tier:           registry.TierPremium,
			RequiredParams: []string{"symbol"}, OptionalParams: []string{"period", "limit"}},
		{Name: "financial_growth", Path: "/stable/financial-growth", Category: registry.CategoryFinancials,
			Tier:           registry.TierPremium,
			RequiredParams: []string{"symbol"}, OptionalParams: []string{"period", "limit"}},

		// ── Charts ───────────────────────────────────────────────────────────
		{Name: "historical_price", Path: "/stable/historical-price-eod/full", Category: registry.CategoryCharts,
			Description:    "Daily OHLCV history",
			RequiredParams: []string{"symbol"}, OptionalParams: []string{"from", "to"}},
		{Name: "historical_price_light", Path: "/stable/historical-price-eod/light", Category: registry.CategoryCharts,
			RequiredParams: []string{"symbol"}, OptionalParams: []string{"from", "to"}},
		{Name: "intraday_5min", Path: "/stable/historical-chart/5min", Category: registry.CategoryCharts,
			Tier:           registry.TierPremium,
			RequiredParams: []string{"symbol"}, OptionalParams: []string{"from", "to"}},

		// ── Economics ────────────────────────────────────────────────────────
		{Name: "treasury_rates", Path: "/stable/treasury-rates", Category: registry.CategoryEconomics,
			OptionalParams: []string{"from", "to"}},
		{Name: "economic_indicators", Path: "/stable/economic-indicators", Category: registry.CategoryEconomics,
			RequiredParams: []string{"name"}, OptionalParams: []string{"from", "to"}},

		// ── Calendars ────────────────────────────────────────────────────────
		{Name: "earnings_calendar", Path: "/stable/earnings-calendar", Category: registry.CategoryCalendars,
			OptionalParams: []string{"from", "to"}},
		{Name: "dividends_calendar", Path: "/stable/dividends-calendar", Category: registry.CategoryCalendars,
			OptionalParams: []string{"from", "to"}},
		{Name: "ipo_calendar", Path: "/stable/ipos-calendar", Category: registry.CategoryCalendars,
			OptionalParams: []string{"from", "to"}},
		{Name: "splits_calendar", Path: "/stable/splits-calendar", Category: registry.CategoryCalendars,
			OptionalParams: []string{"from", "to"}},

		// ── News ─────────────────────────────────────────────────────────────
		{Name: "stock_news", Path: "/stable/news/stock", Category: registry.CategoryNews,
			OptionalParams: []string{"symbols", "from", "to", "page", "limit"}},
		{Name: "press_releases", Path: "/stable/news/press-releases", Category: registry.CategoryNews,
			OptionalParams: []string{"symbols", "page", "limit"}},

		// ── Analyst ──────────────────────────────────────────────────────────
		{Name: "price_target_summary", Path: "/stable/price-target-summary", Category: registry.CategoryAnalyst,
			RequiredParams: []string{"symbol"}},
		{Name: "grades", Path: "/stable/grades", Category: registry.CategoryAnalyst,
			RequiredParams: []string{"symbol"}},
		{Name: "analyst_estimates", Path: "/stable/analyst-estimates", Category: registry.CategoryAnalyst,
			Tier:           registry.TierPremium,
			RequiredParams: []string{"symbol"}, OptionalParams: []string{"period", "page", "limit"}},

		// ── Institutional / insider ──────────────────────────────────────────
		{Name: "institutional_holders", Path: "/stable/institutional-ownership/holders", Category: registry.CategoryInstitutional,
			Tier:           registry.TierPremium,
			RequiredParams: []string{"symbol"}, OptionalParams: []string{"page", "limit"}},
		{Name: "insider_trading", Path: "/stable/insider-trading/search", Category: registry.CategoryInsider,
			OptionalParams: []string{"symbol", "page", "limit"}},

		// ── Performance / technical ──────────────────────────────────────────
		{Name: "gainers", Path: "/stable/biggest-gainers", Category: registry.CategoryPerformance},
		{Name: "losers", Path: "/stable/biggest-losers", Category: registry.CategoryPerformance},
		{Name: "most_active", Path: "/stable/most-actives", Category: registry.CategoryPerformance},
		{Name: "sma", Path: "/stable/technical-indicators/sma", Category: registry.CategoryTechnical,
			RequiredParams: []string{"symbol", "periodLength", "timeframe"}, OptionalParams: []string{"from", "to"}},
		{Name: "rsi", Path: "/stable/technical-indicators/rsi", Category: registry.CategoryTechnical,
			RequiredParams: []string{"symbol", "periodLength", "timeframe"}, OptionalParams: []string{"from", "to"}},

		// ── ETF / indexes / forex / crypto / commodities ─────────────────────
		{Name: "etf_holdings", Path: "/stable/etf/holdings", Category: registry.CategoryETF,
			Tier:           registry.TierPremium,
			RequiredParams: []string{"symbol"}},
		{Name: "etf_info", Path: "/stable/etf/info", Category: registry.CategoryETF,
			RequiredParams: []string{"symbol"}},
		{Name: "index_list", Path: "/stable/index-list", Category: registry.CategoryIndexes},
		{Name: "forex_list", Path: "/stable/forex-list", Category: registry.CategoryForex},
		{Name: "crypto_list", Path: "/stable/cryptocurrency-list", Category: registry.CategoryCrypto},
		{Name: "commodities_list", Path: "/stable/commodities-list", Category: registry.CategoryCommodities},

		// ── DCF ──────────────────────────────────────────────────────────────
		{Name: "dcf", Path: "/stable/discounted-cash-flow", Category: registry.CategoryDCF,
			RequiredParams: []string{"symbol"}},
		{Name: "levered_dcf", Path: "/stable/levered-discounted-cash-flow", Category: registry.CategoryDCF,
			Tier:           registry.TierPremium,
			RequiredParams: []string{"symbol"}},
	} {
		r.Register(e)
	}

	return r
}
