// Package provider abstracts the AI chat providers the engine fans
// out to. Each provider makes exactly one attempt per call; retries
// and aggregation live in the fanout coordinator.
package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/lumenhq/lumen/internal/config"
)

// Message is one chat message in the provider-neutral format.
type Message struct {
	Role    string // "system", "user", "assistant"
	Content string
}

// Result is a successful provider response. Token counts are nil when
// the provider did not report usage; absent is not zero.
type Result struct {
	Text         string
	InputTokens  *int
	OutputTokens *int
}

// Provider is a single configured AI backend.
type Provider interface {
	// ID is the stable provider identifier used in outcomes and audit rows.
	ID() string
	// Timeout is the per-call deadline; 0 means the coordinator default.
	Timeout() time.Duration
	// Call sends the messages and blocks until the full response or ctx expiry.
	Call(ctx context.Context, messages []Message) (Result, error)
}

// Outcome is the per-provider result of one fan-out, success or not.
type Outcome struct {
	Provider     string
	OK           bool
	Text         string
	ErrorDetail  string
	LatencyMS    int64
	InputTokens  *int
	OutputTokens *int
}

// BuildRegistry constructs providers from configuration in config
// order. Unknown types are an error at startup, not at request time.
func BuildRegistry(cfgs []config.ProviderConfig) ([]Provider, error) {
	providers := make([]Provider, 0, len(cfgs))
	for _, c := range cfgs {
		switch c.Type {
		case "openai", "xai":
			providers = append(providers, newOpenAIProvider(c))
		case "anthropic":
			providers = append(providers, newAnthropicProvider(c))
		default:
			return nil, fmt.Errorf("unknown provider type %q for %s", c.Type, c.ID)
		}
	}
	return providers, nil
}
