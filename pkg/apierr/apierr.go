// Package apierr provides the structured error envelope returned by the HTTP
// facade and its mapping from fetch failures to HTTP statuses.
package apierr

import (
	"encoding/json"
	"strings"

	"github.com/valyala/fasthttp"
)

// ErrorType constants.
const (
	TypeInvalidRequest = "invalid_request_error"
	TypeProviderError  = "provider_error"
	TypeRateLimitError = "rate_limit_error"
	TypeCircuitOpen    = "circuit_open_error"
	TypeReadOnly       = "read_only_error"
	TypeServerError    = "server_error"
)

// Code constants.
const (
	CodeUnknownProvider   = "unknown_provider"
	CodeUnknownEndpoint   = "unknown_endpoint"
	CodeMissingParam      = "missing_parameter"
	CodeRateLimitExceeded = "rate_limit_exceeded"
	CodeCircuitOpen       = "circuit_open"
	CodeReadOnlyMode      = "read_only_mode"
	CodeUpstreamError     = "upstream_error"
	CodeInternalError     = "internal_error"
	CodeInvalidRequest    = "invalid_request"
)

// APIError is the structured error returned to clients.
type (
	APIError struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	}
	envelope struct {
		Error APIError `json:"error"`
	}
)

// Write writes the error as JSON with the given HTTP status.
func Write(ctx *fasthttp.RequestCtx, status int, message, errType, code string) {
	ctx.SetStatusCode(status)
	ctx.SetContentType("application/json")
	body, _ := json.Marshal(envelope{Error: APIError{
		Message: message,
		Type:    errType,
		Code:    code,
	}})
	ctx.SetBody(body)
}

// WriteInvalid writes a 400 invalid-request error.
func WriteInvalid(ctx *fasthttp.RequestCtx, message string) {
	Write(ctx, fasthttp.StatusBadRequest, message, TypeInvalidRequest, CodeInvalidRequest)
}

// Classify maps a failure-shaped fetch response to (status, type, code). The
// loader reports these failures as messages with fixed prefixes. Mode
// refusals and breaker rejections never come through here — the loader
// returns them as typed errors and the facade maps them directly.
func Classify(message string) (status int, errType, code string) {
	switch {
	case strings.HasPrefix(message, "Unknown provider"):
		return fasthttp.StatusNotFound, TypeInvalidRequest, CodeUnknownProvider
	case strings.HasPrefix(message, "Unknown endpoint"):
		return fasthttp.StatusNotFound, TypeInvalidRequest, CodeUnknownEndpoint
	case strings.Contains(message, "requires parameter"):
		return fasthttp.StatusBadRequest, TypeInvalidRequest, CodeMissingParam
	case strings.Contains(message, "Rate limit exceeded"):
		return fasthttp.StatusTooManyRequests, TypeRateLimitError, CodeRateLimitExceeded
	default:
		return fasthttp.StatusBadGateway, TypeProviderError, CodeUpstreamError
	}
}
