package httpx

// The transport error taxonomy. Every error that can leave this package is
// one of the types below. Types that originate from an HTTP status carry it
// and expose HTTPStatus so the retry driver can filter non-retryable codes.

// StatusCoder is implemented by errors that map to an HTTP status code.
type StatusCoder interface {
	HTTPStatus() int
}

// TimeoutError means the request exceeded its deadline.
type TimeoutError struct {
	Message string
}

func (e *TimeoutError) Error() string { return e.Message }

// ConnectionError means the request never reached the server (dial failure,
// connection refused, DNS resolution).
type ConnectionError struct {
	Message string
}

func (e *ConnectionError) Error() string { return e.Message }

// RateLimitError is an HTTP 429. RetryAfter is the parsed Retry-After header
// in seconds, 0 when the header was absent or unparseable.
type RateLimitError struct {
	Message    string
	StatusCode int
	RetryAfter int
}

func (e *RateLimitError) Error() string   { return e.Message }
func (e *RateLimitError) HTTPStatus() int { return e.StatusCode }

// ServerError is any HTTP 5xx.
type ServerError struct {
	Message    string
	StatusCode int
}

func (e *ServerError) Error() string   { return e.Message }
func (e *ServerError) HTTPStatus() int { return e.StatusCode }

// ClientError is any HTTP 4xx other than 429.
type ClientError struct {
	Message    string
	StatusCode int
}

func (e *ClientError) Error() string   { return e.Message }
func (e *ClientError) HTTPStatus() int { return e.StatusCode }

// TransportError covers everything else below the HTTP layer. Err keeps the
// underlying cause in the chain, so errors.Is can see a context cancellation
// that surfaced through the transport.
type TransportError struct {
	Message string
	Err     error
}

func (e *TransportError) Error() string { return e.Message }
func (e *TransportError) Unwrap() error { return e.Err }

// ErrorType returns the error-kind label for an error, used by the health
// monitor, the audit log and metrics ("timeout", "connection", "rate_limit",
// "server_error", "client_error", "unexpected"). Transport-level failures
// below the HTTP layer count as "connection".
func ErrorType(err error) string {
	switch err.(type) {
	case *TimeoutError:
		return "timeout"
	case *ConnectionError, *TransportError:
		return "connection"
	case *RateLimitError:
		return "rate_limit"
	case *ServerError:
		return "server_error"
	case *ClientError:
		return "client_error"
	default:
		return "unexpected"
	}
}
