package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// OpenAIConfig holds configuration for the OpenAI-compatible stream client.
type OpenAIConfig struct {
	BaseURL string // e.g. "https://api.openai.com/v1"
	APIKey  string // Optional for local endpoints
}

// OpenAIClient streams chat completions from any OpenAI-compatible endpoint.
type OpenAIClient struct {
	client *openai.Client
	logger *zap.Logger
}

// NewOpenAIClient creates a new OpenAI-compatible stream client.
func NewOpenAIClient(cfg *OpenAIConfig, logger *zap.Logger) (*OpenAIClient, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	clientConfig.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")

	return &OpenAIClient{
		client: openai.NewClientWithConfig(clientConfig),
		logger: logger.Named("llm-openai"),
	}, nil
}

// Stream implements StreamClient.
func (c *OpenAIClient) Stream(ctx context.Context, model string, req ChatRequest) (<-chan StreamEvent, error) {
	messages := []openai.ChatCompletionMessage{}
	if req.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.SystemPrompt,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.Prompt,
	})

	temperature := float32(req.Temperature)
	if temperature == 0 {
		temperature = 0.3
	}

	start := time.Now()

	stream, err := c.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		Temperature: temperature,
		MaxTokens:   req.MaxTokens,
		Stream:      true,
	})
	if err != nil {
		c.logger.Error("Failed to create stream",
			zap.String("model", model),
			zap.Error(err))
		return nil, ClassifyError(err)
	}

	events := make(chan StreamEvent, 16)

	go func() {
		defer close(events)
		defer stream.Close()

		tokens := 0
		for {
			response, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				c.logger.Debug("Stream completed",
					zap.String("model", model),
					zap.Int("tokens", tokens),
					zap.Duration("elapsed", time.Since(start)))
				c.emit(ctx, events, StreamEvent{Type: StreamEventDone})
				return
			}
			if err != nil {
				c.emit(ctx, events, StreamEvent{Type: StreamEventError, Err: ClassifyError(err)})
				return
			}

			if len(response.Choices) == 0 {
				continue
			}

			delta := response.Choices[0].Delta.Content
			if delta == "" {
				continue
			}

			tokens++
			if !c.emit(ctx, events, StreamEvent{Type: StreamEventToken, Content: delta}) {
				return
			}
		}
	}()

	return events, nil
}

// emit sends an event unless the context is gone. Returns false when the
// consumer has stopped listening.
func (c *OpenAIClient) emit(ctx context.Context, events chan<- StreamEvent, ev StreamEvent) bool {
	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// Ensure OpenAIClient implements StreamClient at compile time.
var _ StreamClient = (*OpenAIClient)(nil)
