package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/lumenhq/lumen/internal/config"
)

// chatAPI is the slice of the OpenAI client the provider uses.
type chatAPI interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// openAIProvider speaks the OpenAI chat completion API. It also covers
// xAI, which exposes the same API under a different base URL.
type openAIProvider struct {
	id      string
	client  chatAPI
	model   string
	timeout time.Duration
}

func newOpenAIProvider(c config.ProviderConfig) *openAIProvider {
	clientCfg := openai.DefaultConfig(c.APIKey)
	if c.BaseURL != "" {
		clientCfg.BaseURL = c.BaseURL
	}
	return &openAIProvider{
		id:      c.ID,
		client:  openai.NewClientWithConfig(clientCfg),
		model:   c.Model,
		timeout: c.Timeout,
	}
}

func (p *openAIProvider) ID() string {
	return p.id
}

func (p *openAIProvider) Timeout() time.Duration {
	return p.timeout
}

func (p *openAIProvider) Call(ctx context.Context, messages []Message) (Result, error) {
	req := openai.ChatCompletionRequest{
		Model:       p.model,
		Temperature: 0.3,
		Messages:    make([]openai.ChatCompletionMessage, len(messages)),
	}
	for i, m := range messages {
		req.Messages[i] = openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
	}

	resp, err := p.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return Result{}, fmt.Errorf("%s chat completion: %w", p.id, err)
	}
	if len(resp.Choices) == 0 {
		return Result{}, fmt.Errorf("%s chat completion: no choices in response", p.id)
	}

	result := Result{Text: resp.Choices[0].Message.Content}
	if resp.Usage.PromptTokens > 0 || resp.Usage.CompletionTokens > 0 {
		in, out := resp.Usage.PromptTokens, resp.Usage.CompletionTokens
		result.InputTokens = &in
		result.OutputTokens = &out
	}
	return result, nil
}
