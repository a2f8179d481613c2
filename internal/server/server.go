// Package server is the HTTP facade over the loader: data fetch routes,
// health and cache introspection, admin controls and the metrics endpoint.
package server

import (
	"log/slog"
	"time"

	"github.com/fasthttp/router"
	"github.com/valyala/fasthttp"

	"github.com/omnidata/nexus/internal/loader"
	"github.com/omnidata/nexus/internal/metrics"
)

// Options configures the facade. Metrics is optional; nil disables the
// /metrics route and the HTTP observation middleware.
type Options struct {
	CORSOrigins []string
	Metrics     *metrics.Registry
	Logger      *slog.Logger
}

// Server serves the facade routes.
type Server struct {
	loader  *loader.Loader
	metrics *metrics.Registry
	origins []string
	log     *slog.Logger

	srv *fasthttp.Server
}

func New(l *loader.Loader, opts Options) *Server {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		loader:  l,
		metrics: opts.Metrics,
		origins: opts.CORSOrigins,
		log:     log,
	}
}

// Handler builds the routed handler with the full middleware chain. Exposed
// separately from Start for tests.
func (s *Server) Handler() fasthttp.RequestHandler {
	r := router.New()

	r.GET("/v1/data/{provider}/{endpoint}", s.handleFetch)
	r.POST("/v1/data:batch", s.handleBatch)

	r.GET("/health", s.handleHealth)
	r.GET("/readiness", s.handleReadiness)

	r.GET("/v1/endpoints", s.handleEndpoints)
	r.GET("/v1/endpoints/{provider}", s.handleProviderEndpoints)

	r.GET("/v1/cache/stats", s.handleCacheStats)
	r.DELETE("/v1/cache/{provider}", s.handleCacheClear)

	r.POST("/v1/admin/breaker/reset", s.handleBreakerReset)
	r.POST("/v1/admin/health/reset", s.handleHealthReset)
	r.PUT("/v1/admin/mode", s.handleSetMode)

	if s.metrics != nil {
		r.GET("/metrics", s.metrics.Handler())
	}

	return applyMiddleware(r.Handler,
		s.recovery,
		requestID,
		timing,
		s.observe,
		corsHandler(s.origins),
		securityHeaders,
	)
}

// Start serves on addr (e.g. ":8080") until Shutdown is called.
func (s *Server) Start(addr string) error {
	s.srv = &fasthttp.Server{
		Handler:      s.Handler(),
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
	}
	s.log.Info("http server listening", slog.String("addr", addr))
	return s.srv.ListenAndServe(addr)
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown() error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown()
}
