// Package fanout dispatches one assembled context to every configured
// provider concurrently and joins all results. It is a barrier, never
// a race: slow or failing providers cannot suppress the others.
package fanout

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lumenhq/lumen/internal/provider"
)

// Coordinator runs provider fan-outs.
type Coordinator struct {
	defaultTimeout time.Duration
	logger         *slog.Logger
}

func New(defaultTimeout time.Duration) *Coordinator {
	if defaultTimeout <= 0 {
		defaultTimeout = 60 * time.Second
	}
	return &Coordinator{defaultTimeout: defaultTimeout, logger: slog.Default()}
}

// Fanout calls every provider with the same messages and waits for all
// of them. The returned slice always has one outcome per provider, in
// provider order, regardless of failures. Each provider gets exactly
// one attempt under its own timeout; latency covers dispatch to full
// completion. The only error is an empty provider set.
func (c *Coordinator) Fanout(ctx context.Context, messages []provider.Message, providers []provider.Provider) ([]provider.Outcome, error) {
	if len(providers) == 0 {
		return nil, fmt.Errorf("no providers configured")
	}

	outcomes := make([]provider.Outcome, len(providers))
	var wg sync.WaitGroup
	for i, p := range providers {
		wg.Add(1)
		go func(i int, p provider.Provider) {
			defer wg.Done()
			outcomes[i] = c.callOne(ctx, p, messages)
		}(i, p)
	}
	wg.Wait()

	return outcomes, ctx.Err()
}

func (c *Coordinator) callOne(ctx context.Context, p provider.Provider, messages []provider.Message) provider.Outcome {
	timeout := p.Timeout()
	if timeout <= 0 {
		timeout = c.defaultTimeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	result, err := p.Call(callCtx, messages)
	latency := time.Since(start).Milliseconds()

	if err != nil {
		c.logger.Warn("provider failed", "provider", p.ID(), "latency_ms", latency, "error", err)
		return provider.Outcome{
			Provider:    p.ID(),
			OK:          false,
			ErrorDetail: err.Error(),
			LatencyMS:   latency,
		}
	}

	return provider.Outcome{
		Provider:     p.ID(),
		OK:           true,
		Text:         result.Text,
		LatencyMS:    latency,
		InputTokens:  result.InputTokens,
		OutputTokens: result.OutputTokens,
	}
}
