// Package bedrock implements the gateway.Provider adapter for AWS Bedrock.
// Requests are translated between the OpenAI chat-completions shape and the
// Bedrock Converse API; credentials come from the ambient IAM identity, not
// from per-request keys.
package bedrock

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/smithy-go"

	gateway "github.com/bastionlabs/bastion/internal"
	"github.com/bastionlabs/bastion/internal/provider"
)

const providerName = "bedrock"

var _ gateway.Provider = (*Client)(nil)

// ConverseAPI is the slice of the Bedrock runtime client the adapter uses.
type ConverseAPI interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
	ConverseStream(ctx context.Context, params *bedrockruntime.ConverseStreamInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseStreamOutput, error)
}

// Client adapts the Bedrock Converse API to the gateway.Provider contract.
type Client struct {
	api ConverseAPI
	now func() time.Time
}

// New creates a Client over api.
func New(api ConverseAPI) *Client {
	return &Client{api: api, now: time.Now}
}

// Name returns the provider identifier.
func (c *Client) Name() string { return providerName }

// ChatCompletion translates body to a Converse call and the result back to
// the chat-completions shape. The per-client apiKey is ignored; modelID is
// required because Bedrock has no model field fallback.
func (c *Client) ChatCompletion(ctx context.Context, body []byte, _ string, modelID string) (*gateway.ProviderResponse, error) {
	if modelID == "" {
		return nil, errMissingModelID()
	}

	out, err := c.api.Converse(ctx, translateRequest(body, modelID).converseInput())
	if err != nil {
		return nil, mapError(err)
	}
	return &gateway.ProviderResponse{
		StatusCode: http.StatusOK,
		Body:       translateResponse(out, modelID, c.now()),
	}, nil
}

// ChatCompletionStream starts a ConverseStream call and relays its events
// as OpenAI-style chunks.
func (c *Client) ChatCompletionStream(ctx context.Context, body []byte, _ string, modelID string) (<-chan gateway.StreamChunk, error) {
	if modelID == "" {
		return nil, errMissingModelID()
	}

	out, err := c.api.ConverseStream(ctx, translateRequest(body, modelID).converseStreamInput())
	if err != nil {
		return nil, mapError(err)
	}

	ch := make(chan gateway.StreamChunk, 8)
	go relay(ctx, out.GetStream(), chunkID(c.now()), modelID, ch)
	return ch, nil
}

// Close is a no-op; the underlying SDK client holds no resources needing
// explicit release.
func (c *Client) Close() error { return nil }

func errMissingModelID() error {
	return &provider.UpstreamError{
		Provider:   providerName,
		StatusCode: http.StatusBadRequest,
		Message:    "bedrock_model_id is required for Bedrock provider",
	}
}

// mapError converts SDK failures to the HTTP statuses the gateway surfaces.
func mapError(err error) error {
	var ae smithy.APIError
	if errors.As(err, &ae) {
		switch ae.ErrorCode() {
		case "ThrottlingException":
			return &provider.UpstreamError{Provider: providerName, StatusCode: http.StatusTooManyRequests, Message: "Bedrock rate limit exceeded"}
		case "ValidationException":
			return &provider.UpstreamError{Provider: providerName, StatusCode: http.StatusBadRequest, Message: "Bedrock validation error: " + ae.ErrorMessage()}
		case "ModelNotReadyException":
			return &provider.UpstreamError{Provider: providerName, StatusCode: http.StatusServiceUnavailable, Message: "Bedrock model not ready"}
		case "AccessDeniedException":
			return &provider.UpstreamError{Provider: providerName, StatusCode: http.StatusForbidden, Message: "Bedrock access denied, check IAM permissions"}
		}
	}
	return &provider.UpstreamError{Provider: providerName, StatusCode: http.StatusBadGateway, Message: "Bedrock error: " + err.Error()}
}
