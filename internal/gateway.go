// Package gateway defines domain types and interfaces for the Bastion LLM
// security gateway. This package has no project imports -- it is the
// dependency root.
package gateway

import (
	"context"
	"slices"
)

// --- Providers ---

// ProviderOpenAI and ProviderBedrock are the supported upstream kinds.
const (
	ProviderOpenAI  = "openai"
	ProviderBedrock = "bedrock"
)

// Provider is the interface all upstream LLM adapters implement.
// body is the client's chat-completions request, forwarded or translated
// by the adapter; apiKey is the per-client upstream credential (empty means
// the adapter falls back to its own global credential or ambient IAM);
// modelID is the provider-specific model identifier (Bedrock only).
type Provider interface {
	// Name returns the provider identifier ("openai", "bedrock").
	Name() string
	// ChatCompletion sends a non-streaming chat completion request.
	ChatCompletion(ctx context.Context, body []byte, apiKey, modelID string) (*ProviderResponse, error)
	// ChatCompletionStream sends a streaming request. The returned channel
	// delivers chunks in upstream order and is closed after the terminal
	// chunk (Done=true) or an error chunk.
	ChatCompletionStream(ctx context.Context, body []byte, apiKey, modelID string) (<-chan StreamChunk, error)
	// Close releases held connections. Safe to call once at shutdown.
	Close() error
}

// ProviderResponse is an upstream response passed through the gateway.
// Body is the response JSON, returned to the client verbatim (OpenAI) or
// after translation to the chat-completions shape (Bedrock).
type ProviderResponse struct {
	StatusCode int
	Body       []byte
}

// StreamChunk is a single SSE frame from a streaming completion.
type StreamChunk struct {
	Data      []byte // raw SSE data payload, forwarded as "data: <Data>\n\n"
	TextDelta string // extracted assistant text, accumulated for response scanning
	Done      bool   // true on the terminal "[DONE]" chunk
	Err       error
}

// --- Client directory ---

// ClientStatusActive and ClientStatusSuspended are the two record states.
// Suspended records exist in the directory but reject all requests.
const (
	ClientStatusActive    = "active"
	ClientStatusSuspended = "suspended"
)

// ClientRecord is the gateway's principal entity: one provisioned API client.
// Records are immutable snapshots; directory reloads replace the set
// atomically and in-flight requests keep the snapshot they authenticated with.
type ClientRecord struct {
	ClientID       string   `json:"client_id" dynamodbav:"client_id"`
	APIKey         string   `json:"api_key" dynamodbav:"api_key"`
	Provider       string   `json:"provider" dynamodbav:"provider"`
	RateLimitRPM   int      `json:"rate_limit_rpm" dynamodbav:"rate_limit_rpm"`
	ModelAllowlist []string `json:"model_allowlist" dynamodbav:"model_allowlist"`
	UpstreamAPIKey string   `json:"upstream_api_key" dynamodbav:"upstream_api_key"`
	BedrockModelID string   `json:"bedrock_model_id" dynamodbav:"bedrock_model_id"`
	Status         string   `json:"status" dynamodbav:"status"`
}

// Normalize fills zero-value fields with directory defaults. Records loaded
// from external stores may omit optional attributes.
func (c *ClientRecord) Normalize() {
	if c.Provider == "" {
		c.Provider = ProviderOpenAI
	}
	if c.RateLimitRPM <= 0 {
		c.RateLimitRPM = 60
	}
	if c.Status == "" {
		c.Status = ClientStatusActive
	}
}

// Suspended reports whether the record rejects requests.
func (c *ClientRecord) Suspended() bool { return c.Status == ClientStatusSuspended }

// ModelAllowed reports whether the client may request the given model.
// An empty allowlist means all models are allowed.
func (c *ClientRecord) ModelAllowed(model string) bool {
	return len(c.ModelAllowlist) == 0 || slices.Contains(c.ModelAllowlist, model)
}

// --- Rate limiting ---

// RateLimitResult is the outcome of a sliding-window admission check.
// ResetSeconds is the time until the oldest windowed entry expires.
type RateLimitResult struct {
	Allowed      bool
	Limit        int
	Remaining    int
	ResetSeconds float64
}

// --- Authentication ---

// Authenticator validates a presented API key and resolves the client record.
type Authenticator interface {
	Authenticate(ctx context.Context, apiKey string) (*ClientRecord, error)
}

// --- Context keys ---

type contextKey int

const ctxKeyMeta contextKey = 0

// requestMeta bundles per-request values into a single context allocation.
// The Client field is set by the authenticate middleware via mutation of the
// same pointer, avoiding a second context.WithValue + Request.WithContext.
type requestMeta struct {
	RequestID string
	Client    *ClientRecord
}

func metaFromContext(ctx context.Context) *requestMeta {
	m, _ := ctx.Value(ctxKeyMeta).(*requestMeta)
	return m
}

// RequestIDFromContext extracts the request ID from ctx, or "".
func RequestIDFromContext(ctx context.Context) string {
	if m := metaFromContext(ctx); m != nil {
		return m.RequestID
	}
	return ""
}

// ContextWithRequestID returns a context carrying the given request ID.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKeyMeta, &requestMeta{RequestID: id})
}

// ClientFromContext extracts the authenticated client record from ctx, or nil.
func ClientFromContext(ctx context.Context) *ClientRecord {
	if m := metaFromContext(ctx); m != nil {
		return m.Client
	}
	return nil
}

// ContextWithClient stores the client in the existing requestMeta if present,
// avoiding a new context allocation. Falls back to creating new metadata if
// none exists (e.g., in tests).
func ContextWithClient(ctx context.Context, c *ClientRecord) context.Context {
	if m := metaFromContext(ctx); m != nil {
		m.Client = c
		return ctx
	}
	return context.WithValue(ctx, ctxKeyMeta, &requestMeta{Client: c})
}
