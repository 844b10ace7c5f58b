// Package openai implements the gateway.Provider adapter for OpenAI-compatible
// upstreams. Request bodies are forwarded verbatim so client-supplied fields
// the gateway does not model still reach the upstream.
package openai

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	gateway "github.com/bastionlabs/bastion/internal"
	"github.com/bastionlabs/bastion/internal/provider"
	"github.com/bastionlabs/bastion/internal/provider/sseutil"
)

const providerName = "openai"

// unaryTimeout bounds a non-streaming round trip end to end. Streams run
// unbounded; their lifetime is the client connection's.
const unaryTimeout = 60 * time.Second

var _ gateway.Provider = (*Client)(nil)

// Client forwards chat completion requests to an OpenAI-compatible API.
type Client struct {
	baseURL   string
	globalKey string
	http      *http.Client
	timeout   time.Duration
}

// New creates a Client for baseURL. globalKey is the upstream credential used
// when the calling client has no key of its own. The provided http.Client
// must not enforce a total timeout if streaming is expected; unary calls get
// their deadline from the Client itself.
func New(baseURL, globalKey string, client *http.Client) *Client {
	if client == nil {
		client = &http.Client{}
	}
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		globalKey: globalKey,
		http:      client,
		timeout:   unaryTimeout,
	}
}

// Name returns the provider identifier.
func (c *Client) Name() string { return providerName }

// ChatCompletion forwards body to the upstream and passes the response
// through untouched, including non-200 statuses. Only transport failures
// become errors.
func (c *Client) ChatCompletion(ctx context.Context, body []byte, apiKey, _ string) (*gateway.ProviderResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.post(ctx, body, apiKey)
	if err != nil {
		return nil, provider.TransportError(providerName, err)
	}
	defer resp.Body.Close()

	out, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, provider.TransportError(providerName, err)
	}
	return &gateway.ProviderResponse{StatusCode: resp.StatusCode, Body: out}, nil
}

// ChatCompletionStream forwards body with stream forced on and relays the
// upstream SSE frames as StreamChunks. The channel closes after the Done
// sentinel or an error chunk.
func (c *Client) ChatCompletionStream(ctx context.Context, body []byte, apiKey, _ string) (<-chan gateway.StreamChunk, error) {
	streamBody, err := sjson.SetBytes(body, "stream", true)
	if err != nil {
		return nil, fmt.Errorf("openai: set stream flag: %w", err)
	}

	resp, err := c.post(ctx, streamBody, apiKey)
	if err != nil {
		return nil, provider.TransportError(providerName, err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &provider.UpstreamError{
			Provider:   providerName,
			StatusCode: resp.StatusCode,
			Message:    string(msg),
		}
	}

	ch := make(chan gateway.StreamChunk, 8)
	go readStream(ctx, resp, ch)
	return ch, nil
}

// Close releases idle upstream connections.
func (c *Client) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

func (c *Client) post(ctx context.Context, body []byte, apiKey string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	key := apiKey
	if key == "" {
		key = c.globalKey
	}
	req.Header.Set("Authorization", "Bearer "+key)
	return c.http.Do(req)
}

// readStream relays SSE data lines from resp until [DONE] or EOF.
func readStream(ctx context.Context, resp *http.Response, ch chan<- gateway.StreamChunk) {
	defer close(ch)
	defer resp.Body.Close()

	scanner := sseutil.NewScanner(resp.Body)
	for scanner.Scan() {
		_, data, ok := sseutil.ParseSSELine(scanner.Text())
		if !ok || data == "" {
			continue
		}
		if data == "[DONE]" {
			select {
			case ch <- gateway.StreamChunk{Done: true}:
			case <-ctx.Done():
			}
			return
		}

		chunk := gateway.StreamChunk{
			Data:      []byte(data),
			TextDelta: gjson.Get(data, "choices.0.delta.content").String(),
		}
		select {
		case ch <- chunk:
		case <-ctx.Done():
			sendErr(ch, ctx.Err())
			return
		}
	}
	if err := scanner.Err(); err != nil {
		select {
		case ch <- gateway.StreamChunk{Err: fmt.Errorf("openai: read stream: %w", err)}:
		case <-ctx.Done():
		}
	}
}

// sendErr makes a best-effort delivery of a terminal error chunk. The
// consumer may already be gone, so it never blocks.
func sendErr(ch chan<- gateway.StreamChunk, err error) {
	select {
	case ch <- gateway.StreamChunk{Err: err}:
	default:
	}
}
