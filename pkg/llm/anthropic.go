package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/liushuangls/go-anthropic/v2"
	"go.uber.org/zap"
)

const anthropicDefaultMaxTokens = 2048

// AnthropicClient streams messages from the Anthropic API.
type AnthropicClient struct {
	client *anthropic.Client
	logger *zap.Logger
}

// NewAnthropicClient creates a new Anthropic stream client.
func NewAnthropicClient(apiKey string, logger *zap.Logger) (*AnthropicClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required")
	}

	return &AnthropicClient{
		client: anthropic.NewClient(apiKey),
		logger: logger.Named("llm-anthropic"),
	}, nil
}

// Stream implements StreamClient. The underlying SDK delivers deltas via
// callbacks and blocks until the stream ends, so the call runs in its own
// goroutine and forwards tokens onto the event channel.
func (c *AnthropicClient) Stream(ctx context.Context, model string, req ChatRequest) (<-chan StreamEvent, error) {
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = anthropicDefaultMaxTokens
	}

	temperature := float32(req.Temperature)
	if temperature == 0 {
		temperature = 0.3
	}

	events := make(chan StreamEvent, 16)
	start := time.Now()

	go func() {
		defer close(events)

		streamReq := anthropic.MessagesStreamRequest{
			MessagesRequest: anthropic.MessagesRequest{
				Model:       anthropic.Model(model),
				MaxTokens:   maxTokens,
				Temperature: &temperature,
				Messages: []anthropic.Message{
					anthropic.NewUserTextMessage(req.Prompt),
				},
			},
			OnContentBlockDelta: func(data anthropic.MessagesEventContentBlockDeltaData) {
				if data.Delta.Text == nil || *data.Delta.Text == "" {
					return
				}
				c.emit(ctx, events, StreamEvent{Type: StreamEventToken, Content: *data.Delta.Text})
			},
		}
		if req.SystemPrompt != "" {
			streamReq.System = req.SystemPrompt
		}

		_, err := c.client.CreateMessagesStream(ctx, streamReq)
		if err != nil {
			c.emit(ctx, events, StreamEvent{Type: StreamEventError, Err: ClassifyError(err)})
			return
		}

		c.logger.Debug("Stream completed",
			zap.String("model", model),
			zap.Duration("elapsed", time.Since(start)))
		c.emit(ctx, events, StreamEvent{Type: StreamEventDone})
	}()

	return events, nil
}

func (c *AnthropicClient) emit(ctx context.Context, events chan<- StreamEvent, ev StreamEvent) bool {
	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// Ensure AnthropicClient implements StreamClient at compile time.
var _ StreamClient = (*AnthropicClient)(nil)
