package server

import (
	"log/slog"
	"strings"
	"testing"

	"github.com/valyala/fasthttp"
)

func TestRecoveryCatchesPanic(t *testing.T) {
	s := &Server{log: slog.Default()}
	handler := s.recovery(func(ctx *fasthttp.RequestCtx) {
		panic("mock panic")
	})

	ctx := &fasthttp.RequestCtx{}
	handler(ctx)

	if ctx.Response.StatusCode() != fasthttp.StatusInternalServerError {
		t.Errorf("expected 500, got %d", ctx.Response.StatusCode())
	}
	if !strings.Contains(string(ctx.Response.Body()), "internal server error") {
		t.Errorf("unexpected body: %s", ctx.Response.Body())
	}
}

func TestRequestIDPreservesClientID(t *testing.T) {
	handler := requestID(func(ctx *fasthttp.RequestCtx) {})

	ctx := &fasthttp.RequestCtx{}
	ctx.Request.Header.Set("X-Request-ID", "client-supplied")
	handler(ctx)

	if got := string(ctx.Response.Header.Peek("X-Request-ID")); got != "client-supplied" {
		t.Errorf("X-Request-ID = %q", got)
	}
}

func TestCORSPreflight(t *testing.T) {
	handler := corsHandler([]string{"https://app.example.com"})(func(ctx *fasthttp.RequestCtx) {
		t.Error("preflight must not reach the next handler")
	})

	ctx := &fasthttp.RequestCtx{}
	ctx.Request.Header.SetMethod(fasthttp.MethodOptions)
	handler(ctx)

	if ctx.Response.StatusCode() != fasthttp.StatusNoContent {
		t.Errorf("expected 204, got %d", ctx.Response.StatusCode())
	}
	if got := string(ctx.Response.Header.Peek("Access-Control-Allow-Origin")); got != "https://app.example.com" {
		t.Errorf("Allow-Origin = %q", got)
	}
}

func TestCORSDefaultsToOpen(t *testing.T) {
	handler := corsHandler(nil)(func(ctx *fasthttp.RequestCtx) {})

	ctx := &fasthttp.RequestCtx{}
	handler(ctx)

	if got := string(ctx.Response.Header.Peek("Access-Control-Allow-Origin")); got != "*" {
		t.Errorf("Allow-Origin = %q, want *", got)
	}
}

func TestApplyMiddlewareOrder(t *testing.T) {
	var order []string
	mw := func(name string) func(fasthttp.RequestHandler) fasthttp.RequestHandler {
		return func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
			return func(ctx *fasthttp.RequestCtx) {
				order = append(order, name)
				next(ctx)
			}
		}
	}

	h := applyMiddleware(func(ctx *fasthttp.RequestCtx) {
		order = append(order, "handler")
	}, mw("outer"), mw("inner"))

	h(&fasthttp.RequestCtx{})

	want := "outer,inner,handler"
	if got := strings.Join(order, ","); got != want {
		t.Errorf("order = %s, want %s", got, want)
	}
}
