package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// UpstreamError reports an upstream failure together with the HTTP status
// the gateway should surface for it.
type UpstreamError struct {
	Provider   string
	StatusCode int
	Message    string
}

// Error returns a formatted error string including provider and status.
func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s: HTTP %d: %s", e.Provider, e.StatusCode, e.Message)
}

// HTTPStatus returns the status the gateway responds with.
func (e *UpstreamError) HTTPStatus() int { return e.StatusCode }

// TransportError classifies a failed round trip: timeouts surface as 504,
// everything else (refused connection, DNS failure) as 502.
func TransportError(provider string, err error) error {
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		return &UpstreamError{
			Provider:   provider,
			StatusCode: http.StatusGatewayTimeout,
			Message:    "upstream request timed out",
		}
	}
	return &UpstreamError{
		Provider:   provider,
		StatusCode: http.StatusBadGateway,
		Message:    "upstream connection failed",
	}
}
