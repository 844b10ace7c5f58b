// Package testutil provides configurable test fakes for gateway interfaces.
package testutil

import (
	"context"
	"net/http"

	gateway "github.com/bastionlabs/bastion/internal"
)

// FakeProvider is a configurable gateway.Provider for testing. Calls counts
// every unary or stream invocation, so tests can assert that blocked
// requests never reach the upstream.
type FakeProvider struct {
	ProviderName string
	ChatFn       func(ctx context.Context, body []byte, apiKey, modelID string) (*gateway.ProviderResponse, error)
	StreamFn     func(ctx context.Context, body []byte, apiKey, modelID string) (<-chan gateway.StreamChunk, error)

	Calls    int
	LastBody []byte
}

// Name returns the configured provider name.
func (f *FakeProvider) Name() string { return f.ProviderName }

// ChatCompletion delegates to ChatFn or returns a default completion.
func (f *FakeProvider) ChatCompletion(ctx context.Context, body []byte, apiKey, modelID string) (*gateway.ProviderResponse, error) {
	f.Calls++
	f.LastBody = body
	if f.ChatFn != nil {
		return f.ChatFn(ctx, body, apiKey, modelID)
	}
	return &gateway.ProviderResponse{
		StatusCode: http.StatusOK,
		Body: []byte(`{"id":"chatcmpl-fake","object":"chat.completion","model":"fake-model",` +
			`"choices":[{"index":0,"message":{"role":"assistant","content":"hello"},"finish_reason":"stop"}]}`),
	}, nil
}

// ChatCompletionStream delegates to StreamFn or returns an error.
func (f *FakeProvider) ChatCompletionStream(ctx context.Context, body []byte, apiKey, modelID string) (<-chan gateway.StreamChunk, error) {
	f.Calls++
	f.LastBody = body
	if f.StreamFn != nil {
		return f.StreamFn(ctx, body, apiKey, modelID)
	}
	return nil, gateway.ErrProviderError
}

// Close is a no-op.
func (f *FakeProvider) Close() error { return nil }

// FakeStreamChan returns a channel pre-loaded with the given chunks, followed
// by a Done sentinel. The channel is closed after all chunks are sent.
func FakeStreamChan(chunks ...gateway.StreamChunk) <-chan gateway.StreamChunk {
	ch := make(chan gateway.StreamChunk, len(chunks)+1)
	for _, c := range chunks {
		ch <- c
	}
	ch <- gateway.StreamChunk{Done: true}
	close(ch)
	return ch
}
