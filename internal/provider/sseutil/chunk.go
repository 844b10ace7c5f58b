package sseutil

import "encoding/json"

// chatChunk is a minimal chat.completion.chunk frame, used by adapters that
// synthesize OpenAI-style streaming events from a non-SSE upstream.
type chatChunk struct {
	ID      string        `json:"id"`
	Object  string        `json:"object"`
	Model   string        `json:"model"`
	Choices []chunkChoice `json:"choices"`
}

type chunkChoice struct {
	Index        int        `json:"index"`
	Delta        chunkDelta `json:"delta"`
	FinishReason any        `json:"finish_reason"`
}

type chunkDelta struct {
	Content *string `json:"content,omitempty"`
}

// BuildDeltaChunk encodes one assistant text delta as a chat.completion.chunk
// payload.
func BuildDeltaChunk(id, model, text string) []byte {
	b, _ := json.Marshal(chatChunk{
		ID:     id,
		Object: "chat.completion.chunk",
		Model:  model,
		Choices: []chunkChoice{
			{Index: 0, Delta: chunkDelta{Content: &text}, FinishReason: nil},
		},
	})
	return b
}

// BuildFinishChunk encodes the terminal chunk carrying the finish reason and
// an empty delta.
func BuildFinishChunk(id, model, finishReason string) []byte {
	b, _ := json.Marshal(chatChunk{
		ID:     id,
		Object: "chat.completion.chunk",
		Model:  model,
		Choices: []chunkChoice{
			{Index: 0, Delta: chunkDelta{}, FinishReason: finishReason},
		},
	})
	return b
}
