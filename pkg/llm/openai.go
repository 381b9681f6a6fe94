package llm

import (
	"context"
	"errors"
	"fmt"
	"io"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// streamBuffer bounds how far token production can run ahead of the consumer.
const streamBuffer = 16

// OpenAIProvider talks to any endpoint that speaks the OpenAI chat
// completion protocol, including self-hosted gateways and Ollama.
type OpenAIProvider struct {
	client       *openai.Client
	model        string
	systemPrompt string
	logger       *zap.Logger
}

func NewOpenAIProvider(apiKey, baseURL, model, systemPrompt string) *OpenAIProvider {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIProvider{
		client:       openai.NewClientWithConfig(cfg),
		model:        model,
		systemPrompt: systemPrompt,
		logger:       zap.L(),
	}
}

// StreamCompletion opens a streaming chat completion and forwards sanitized
// token deltas. The system prompt is prepended here so callers only manage
// user and assistant turns.
func (p *OpenAIProvider) StreamCompletion(ctx context.Context, messages []Message) (<-chan string, <-chan error) {
	tokens := make(chan string, streamBuffer)
	errs := make(chan error, 1)

	req := openai.ChatCompletionRequest{
		Model:    p.model,
		Messages: p.buildMessages(messages),
		Stream:   true,
	}

	go func() {
		defer close(tokens)
		defer close(errs)

		stream, err := p.client.CreateChatCompletionStream(ctx, req)
		if err != nil {
			if ctx.Err() == nil {
				errs <- fmt.Errorf("create completion stream: %w", err)
			}
			return
		}
		defer stream.Close()

		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				if ctx.Err() == nil {
					errs <- fmt.Errorf("read completion stream: %w", err)
				}
				return
			}
			if len(resp.Choices) == 0 {
				continue
			}
			delta := SanitizeChunk(resp.Choices[0].Delta.Content)
			if delta == "" {
				continue
			}
			select {
			case tokens <- delta:
			case <-ctx.Done():
				return
			}
		}
	}()

	return tokens, errs
}

func (p *OpenAIProvider) buildMessages(messages []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages)+1)
	if p.systemPrompt != "" {
		out = append(out, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: p.systemPrompt,
		})
	}
	for _, m := range messages {
		out = append(out, openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		})
	}
	return out
}
