package llm

import (
	"context"
	"time"
)

// MockStreamClient is a configurable mock for testing streaming behavior.
// Set the function field to control behavior in tests.
type MockStreamClient struct {
	// StreamFunc is called when Stream is invoked.
	// If nil, returns an immediately-done empty stream.
	StreamFunc func(ctx context.Context, model string, req ChatRequest) (<-chan StreamEvent, error)

	// StreamCalls records each invocation for verification.
	StreamCalls []MockStreamCall
}

// MockStreamCall records a call to Stream.
type MockStreamCall struct {
	Model   string
	Request ChatRequest
}

// NewMockStreamClient creates a new mock with sensible defaults.
func NewMockStreamClient() *MockStreamClient {
	return &MockStreamClient{}
}

// Stream implements StreamClient.
func (m *MockStreamClient) Stream(ctx context.Context, model string, req ChatRequest) (<-chan StreamEvent, error) {
	m.StreamCalls = append(m.StreamCalls, MockStreamCall{Model: model, Request: req})
	if m.StreamFunc != nil {
		return m.StreamFunc(ctx, model, req)
	}

	events := make(chan StreamEvent, 1)
	events <- StreamEvent{Type: StreamEventDone}
	close(events)
	return events, nil
}

// Reset clears call tracking.
func (m *MockStreamClient) Reset() {
	m.StreamCalls = nil
}

// Ensure MockStreamClient implements StreamClient at compile time.
var _ StreamClient = (*MockStreamClient)(nil)

// ScriptedStream builds a StreamFunc that waits firstTokenDelay, then emits
// the given tokens and a done event. Cancelling the context aborts the
// script with an error event, mirroring real client behavior.
func ScriptedStream(firstTokenDelay time.Duration, tokens ...string) func(ctx context.Context, model string, req ChatRequest) (<-chan StreamEvent, error) {
	return func(ctx context.Context, model string, req ChatRequest) (<-chan StreamEvent, error) {
		events := make(chan StreamEvent, len(tokens)+1)

		go func() {
			defer close(events)

			if firstTokenDelay > 0 {
				select {
				case <-time.After(firstTokenDelay):
				case <-ctx.Done():
					events <- StreamEvent{Type: StreamEventError, Err: ClassifyError(ctx.Err())}
					return
				}
			}

			for _, token := range tokens {
				select {
				case events <- StreamEvent{Type: StreamEventToken, Content: token}:
				case <-ctx.Done():
					events <- StreamEvent{Type: StreamEventError, Err: ClassifyError(ctx.Err())}
					return
				}
			}
			events <- StreamEvent{Type: StreamEventDone}
		}()

		return events, nil
	}
}

// ErrorStream builds a StreamFunc whose stream fails immediately with err.
func ErrorStream(err error) func(ctx context.Context, model string, req ChatRequest) (<-chan StreamEvent, error) {
	return func(ctx context.Context, model string, req ChatRequest) (<-chan StreamEvent, error) {
		events := make(chan StreamEvent, 1)
		events <- StreamEvent{Type: StreamEventError, Err: err}
		close(events)
		return events, nil
	}
}

// MockResolver is a ClientResolver backed by a fixed provider map.
type MockResolver struct {
	Clients map[string]StreamClient
}

// ForProvider implements ClientResolver.
func (m *MockResolver) ForProvider(provider string) (StreamClient, error) {
	if client, ok := m.Clients[provider]; ok {
		return client, nil
	}
	return nil, &Error{Type: ErrorTypeEndpoint, Message: "unknown provider " + provider}
}

// Ensure MockResolver implements ClientResolver at compile time.
var _ ClientResolver = (*MockResolver)(nil)
