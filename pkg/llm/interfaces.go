// Package llm provides streaming model access and the latency-based
// tier promoter used by the evaluation gate and the query healer.
package llm

import (
	"context"
)

// StreamEventType defines types of streaming events.
type StreamEventType string

const (
	StreamEventToken StreamEventType = "token"
	StreamEventDone  StreamEventType = "done"
	StreamEventError StreamEventType = "error"
)

// StreamEvent is one unit of streamed model output.
type StreamEvent struct {
	Type    StreamEventType
	Content string
	Err     error
}

// ChatRequest describes a single-turn completion request.
type ChatRequest struct {
	SystemPrompt string
	Prompt       string
	Temperature  float64
	MaxTokens    int
}

// StreamClient starts a streaming completion against a named model.
// The returned channel yields zero or more token events followed by exactly
// one done or error event, then closes. Cancelling ctx aborts the stream.
type StreamClient interface {
	Stream(ctx context.Context, model string, req ChatRequest) (<-chan StreamEvent, error)
}

// ClientResolver maps a provider name to a stream client.
// Tier chains may mix providers, so the promoter resolves per tier.
type ClientResolver interface {
	ForProvider(provider string) (StreamClient, error)
}
