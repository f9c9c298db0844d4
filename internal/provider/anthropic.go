package provider

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/lumenhq/lumen/internal/config"
)

// messagesAPI is the slice of the Anthropic client the provider uses.
type messagesAPI interface {
	New(ctx context.Context, params anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

type anthropicProvider struct {
	id       string
	messages messagesAPI
	model    string
	timeout  time.Duration
}

func newAnthropicProvider(c config.ProviderConfig) *anthropicProvider {
	opts := []option.RequestOption{option.WithAPIKey(c.APIKey)}
	if c.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(c.BaseURL))
	}
	client := anthropic.NewClient(opts...)
	return &anthropicProvider{
		id:       c.ID,
		messages: &client.Messages,
		model:    c.Model,
		timeout:  c.Timeout,
	}
}

func (p *anthropicProvider) ID() string {
	return p.id
}

func (p *anthropicProvider) Timeout() time.Duration {
	return p.timeout
}

// Call maps the neutral message list onto the Anthropic API, which
// takes system text as a top-level parameter instead of a role.
func (p *anthropicProvider) Call(ctx context.Context, messages []Message) (Result, error) {
	var system []string
	var turns []anthropic.MessageParam
	for _, m := range messages {
		switch m.Role {
		case "system":
			system = append(system, m.Content)
		case "assistant":
			turns = append(turns, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			turns = append(turns, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(p.model),
		MaxTokens:   8192,
		Temperature: anthropic.Float(0.3),
		Messages:    turns,
	}
	if len(system) > 0 {
		params.System = []anthropic.TextBlockParam{{Text: strings.Join(system, "\n\n")}}
	}

	msg, err := p.messages.New(ctx, params)
	if err != nil {
		return Result{}, fmt.Errorf("%s message: %w", p.id, err)
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	result := Result{Text: text.String()}
	if msg.Usage.InputTokens > 0 || msg.Usage.OutputTokens > 0 {
		in := int(msg.Usage.InputTokens)
		out := int(msg.Usage.OutputTokens)
		result.InputTokens = &in
		result.OutputTokens = &out
	}
	return result, nil
}
