package bedrock

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	gateway "github.com/bastionlabs/bastion/internal"
	"github.com/bastionlabs/bastion/internal/provider/sseutil"
)

// eventStream is the part of the SDK's ConverseStream event stream the relay
// consumes. Narrowed for testability.
type eventStream interface {
	Events() <-chan types.ConverseStreamOutput
	Close() error
	Err() error
}

func chunkID(now time.Time) string {
	return fmt.Sprintf("bedrock-%d", now.Unix())
}

// relay converts Converse stream events to OpenAI-style chunks: each
// contentBlockDelta becomes a delta chunk, messageStop becomes a finish
// chunk followed by the Done sentinel. Other event kinds (messageStart,
// contentBlockStop, metadata) carry nothing a chat-completions client needs
// and are skipped.
func relay(ctx context.Context, stream eventStream, id, modelID string, ch chan<- gateway.StreamChunk) {
	defer close(ch)
	defer stream.Close()

	for event := range stream.Events() {
		var chunk gateway.StreamChunk
		switch e := event.(type) {
		case *types.ConverseStreamOutputMemberContentBlockDelta:
			text := ""
			if d, ok := e.Value.Delta.(*types.ContentBlockDeltaMemberText); ok {
				text = d.Value
			}
			chunk = gateway.StreamChunk{
				Data:      sseutil.BuildDeltaChunk(id, modelID, text),
				TextDelta: text,
			}

		case *types.ConverseStreamOutputMemberMessageStop:
			select {
			case ch <- gateway.StreamChunk{Data: sseutil.BuildFinishChunk(id, modelID, finishReason(e.Value.StopReason))}:
			case <-ctx.Done():
				sendErr(ch, ctx.Err())
				return
			}
			select {
			case ch <- gateway.StreamChunk{Done: true}:
			case <-ctx.Done():
			}
			return

		default:
			continue
		}

		select {
		case ch <- chunk:
		case <-ctx.Done():
			sendErr(ch, ctx.Err())
			return
		}
	}
	if err := stream.Err(); err != nil {
		select {
		case ch <- gateway.StreamChunk{Err: mapError(err)}:
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
