// Package httpx is the HTTP transport used by all provider adapters.
//
// Every upstream call goes through Client.Get, which measures latency,
// decodes the JSON body and classifies any failure into one of the typed
// errors in errors.go. Callers never see a bare non-2xx response.
package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const defaultTimeout = 30 * time.Second

// Response is the decoded result of a successful upstream call.
type Response struct {
	Status    int
	Data      any
	Headers   http.Header
	URL       string
	ElapsedMs float64
}

func (r *Response) IsSuccess() bool     { return r.Status >= 200 && r.Status < 300 }
func (r *Response) IsRateLimited() bool { return r.Status == http.StatusTooManyRequests }
func (r *Response) IsServerError() bool { return r.Status >= 500 }

// Client wraps net/http with per-request timeouts and error classification.
type Client struct {
	hc      *http.Client
	timeout time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout overrides the default per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithHTTPClient replaces the underlying http.Client (used in tests).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.hc = hc
		}
	}
}

func New(opts ...Option) *Client {
	c := &Client{
		hc:      &http.Client{},
		timeout: defaultTimeout,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Get performs a GET against rawURL with the given query parameters and
// returns the decoded response. Non-2xx statuses come back as typed errors:
// RateLimitError (429), ServerError (5xx), ClientError (other 4xx).
func (c *Client) Get(ctx context.Context, rawURL string, params url.Values) (*Response, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, &TransportError{Message: fmt.Sprintf("invalid url: %v", err)}
	}
	if len(params) > 0 {
		q := u.Query()
		for k, vs := range params {
			for _, v := range vs {
				q.Set(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, &TransportError{Message: fmt.Sprintf("build request: %v", err)}
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.hc.Do(req)
	elapsed := float64(time.Since(start)) / float64(time.Millisecond)
	if err != nil {
		return nil, classifyTransport(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classifyTransport(err)
	}

	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	var data any
	if len(body) > 0 {
		if err := json.Unmarshal(body, &data); err != nil {
			// Some endpoints return plain text on success; keep it as a string.
			data = string(body)
		}
	}

	return &Response{
		Status:    resp.StatusCode,
		Data:      data,
		Headers:   resp.Header,
		URL:       u.String(),
		ElapsedMs: elapsed,
	}, nil
}

// checkStatus maps non-2xx responses to the error taxonomy.
func checkStatus(resp *http.Response) error {
	code := resp.StatusCode
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusTooManyRequests:
		return &RateLimitError{
			Message:    "Rate limit exceeded",
			StatusCode: code,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	case code >= 500:
		return &ServerError{
			Message:    fmt.Sprintf("Server error: %d", code),
			StatusCode: code,
		}
	default:
		return &ClientError{
			Message:    fmt.Sprintf("Client error: %d", code),
			StatusCode: code,
		}
	}
}

// classifyTransport converts a net/http error into the taxonomy.
func classifyTransport(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &TimeoutError{Message: fmt.Sprintf("request timed out: %v", err)}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &TimeoutError{Message: fmt.Sprintf("request timed out: %v", err)}
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return &ConnectionError{Message: fmt.Sprintf("connection failed: %v", err)}
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return &ConnectionError{Message: fmt.Sprintf("connection failed: %v", err)}
	}
	return &TransportError{Message: err.Error(), Err: err}
}

func parseRetryAfter(v string) int {
	if v == "" {
		return 0
	}
	if n, err := strconv.Atoi(v); err == nil && n >= 0 {
		return n
	}
	return 0
}
