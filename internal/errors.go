package gateway

import "errors"

// Sentinel errors for the gateway domain.
var (
	ErrMissingAPIKey        = errors.New("missing API key")
	ErrInvalidAPIKey        = errors.New("invalid API key")
	ErrClientSuspended      = errors.New("client suspended")
	ErrModelNotAllowed      = errors.New("model not allowed")
	ErrRateLimited          = errors.New("rate limit exceeded")
	ErrBadRequest           = errors.New("bad request")
	ErrStreamingUnsupported = errors.New("streaming is not supported in this environment")
	ErrProviderError        = errors.New("provider error")
)
