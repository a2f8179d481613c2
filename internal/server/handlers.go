package server

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/valyala/fasthttp"

	"github.com/omnidata/nexus/internal/breaker"
	"github.com/omnidata/nexus/internal/health"
	"github.com/omnidata/nexus/internal/loader"
	"github.com/omnidata/nexus/pkg/apierr"
)

const maxBatchSize = 50

func (s *Server) handleFetch(ctx *fasthttp.RequestCtx) {
	provider := ctx.UserValue("provider").(string)
	endpoint := ctx.UserValue("endpoint").(string)

	params := make(map[string]string)
	ctx.QueryArgs().VisitAll(func(k, v []byte) {
		params[string(k)] = string(v)
	})

	res, err := s.loader.Fetch(ctx, provider, endpoint, params)
	if err != nil {
		writeFetchError(ctx, err)
		return
	}
	if !res.Success {
		status, errType, code := apierr.Classify(res.Error)
		apierr.Write(ctx, status, res.Error, errType, code)
		return
	}
	writeJSON(ctx, res)
}

// writeFetchError maps the loader's typed errors onto the envelope.
func writeFetchError(ctx *fasthttp.RequestCtx, err error) {
	var roErr *loader.ReadOnlyError
	var openErr *breaker.OpenError
	switch {
	case errors.As(err, &roErr):
		apierr.Write(ctx, fasthttp.StatusServiceUnavailable,
			roErr.Error(), apierr.TypeReadOnly, apierr.CodeReadOnlyMode)
	case errors.As(err, &openErr):
		apierr.Write(ctx, fasthttp.StatusServiceUnavailable,
			openErr.Error(), apierr.TypeCircuitOpen, apierr.CodeCircuitOpen)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		apierr.Write(ctx, fasthttp.StatusServiceUnavailable,
			err.Error(), apierr.TypeServerError, apierr.CodeInternalError)
	default:
		apierr.Write(ctx, fasthttp.StatusInternalServerError,
			err.Error(), apierr.TypeServerError, apierr.CodeInternalError)
	}
}

func (s *Server) handleBatch(ctx *fasthttp.RequestCtx) {
	var body struct {
		Requests []loader.Request `json:"requests"`
	}
	if err := json.Unmarshal(ctx.PostBody(), &body); err != nil {
		apierr.WriteInvalid(ctx, "malformed JSON body")
		return
	}
	if len(body.Requests) == 0 {
		apierr.WriteInvalid(ctx, "requests must not be empty")
		return
	}
	if len(body.Requests) > maxBatchSize {
		apierr.WriteInvalid(ctx, "too many requests in one batch (max 50)")
		return
	}

	results, err := s.loader.FetchMany(ctx, body.Requests)
	if err != nil {
		writeFetchError(ctx, err)
		return
	}
	writeJSON(ctx, map[string]any{
		"results": results,
		"count":   len(results),
	})
}

func (s *Server) handleHealth(ctx *fasthttp.RequestCtx) {
	writeJSON(ctx, s.loader.Health())
}

func (s *Server) handleReadiness(ctx *fasthttp.RequestCtx) {
	report := s.loader.Health()
	if report.OverallStatus == health.StatusUnhealthy {
		ctx.SetStatusCode(fasthttp.StatusServiceUnavailable)
		writeJSON(ctx, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(ctx, map[string]string{"status": "ok"})
}

func (s *Server) handleEndpoints(ctx *fasthttp.RequestCtx) {
	writeJSON(ctx, map[string]any{
		"providers": s.loader.SupportedEndpoints(),
	})
}

func (s *Server) handleProviderEndpoints(ctx *fasthttp.RequestCtx) {
	provider := ctx.UserValue("provider").(string)
	eps, ok := s.loader.SupportedEndpoints()[provider]
	if !ok {
		apierr.Write(ctx, fasthttp.StatusNotFound,
			"Unknown provider: "+provider, apierr.TypeInvalidRequest, apierr.CodeUnknownProvider)
		return
	}
	writeJSON(ctx, map[string]any{
		"provider":  provider,
		"endpoints": eps,
		"count":     len(eps),
	})
}

func (s *Server) handleCacheStats(ctx *fasthttp.RequestCtx) {
	stats, err := s.loader.CacheStats(ctx)
	if err != nil {
		apierr.Write(ctx, fasthttp.StatusInternalServerError,
			err.Error(), apierr.TypeServerError, apierr.CodeInternalError)
		return
	}
	if stats == nil {
		writeJSON(ctx, map[string]any{"enabled": false})
		return
	}
	writeJSON(ctx, map[string]any{
		"enabled":   true,
		"providers": stats,
	})
}

func (s *Server) handleCacheClear(ctx *fasthttp.RequestCtx) {
	provider := ctx.UserValue("provider").(string)
	removed, err := s.loader.ClearCache(ctx, provider)
	if err != nil {
		apierr.Write(ctx, fasthttp.StatusInternalServerError,
			err.Error(), apierr.TypeServerError, apierr.CodeInternalError)
		return
	}
	writeJSON(ctx, map[string]any{
		"provider": provider,
		"removed":  removed,
	})
}

func (s *Server) handleBreakerReset(ctx *fasthttp.RequestCtx) {
	provider := string(ctx.QueryArgs().Peek("provider"))
	s.loader.ResetCircuitBreaker(provider)
	writeJSON(ctx, map[string]string{"status": "ok"})
}

func (s *Server) handleHealthReset(ctx *fasthttp.RequestCtx) {
	provider := string(ctx.QueryArgs().Peek("provider"))
	s.loader.ResetHealth(provider)
	writeJSON(ctx, map[string]string{"status": "ok"})
}

func (s *Server) handleSetMode(ctx *fasthttp.RequestCtx) {
	var body struct {
		Mode string `json:"mode"`
	}
	if err := json.Unmarshal(ctx.PostBody(), &body); err != nil {
		apierr.WriteInvalid(ctx, "malformed JSON body")
		return
	}
	mode, err := loader.ParseMode(body.Mode)
	if err != nil {
		apierr.WriteInvalid(ctx, err.Error())
		return
	}
	s.loader.SetMode(mode)
	writeJSON(ctx, map[string]string{"mode": string(mode)})
}

func writeJSON(ctx *fasthttp.RequestCtx, v any) {
	ctx.SetContentType("application/json")
	data, _ := json.Marshal(v)
	ctx.SetBody(data)
}
