// Package audit persists the append-only trail of fan-out requests and
// provider outcomes. Response text is encrypted before it is written;
// plaintext never reaches storage through this package.
package audit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/lumenhq/lumen/internal/provider"
	"github.com/lumenhq/lumen/internal/storage"
	"github.com/lumenhq/lumen/internal/vault"
)

// RequestStore is the slice of storage the writer appends to.
type RequestStore interface {
	InsertRequest(r storage.AIRequest) error
	InsertResponse(r storage.AIResponse) error
}

// Writer records requests and their provider outcomes.
type Writer struct {
	store  RequestStore
	cipher vault.Cipher
	keyID  string
	logger *slog.Logger
}

func NewWriter(store RequestStore, cipher vault.Cipher, keyID string) *Writer {
	return &Writer{store: store, cipher: cipher, keyID: keyID, logger: slog.Default()}
}

// RecordRequest appends the request row for one fan-out and returns
// its id.
func (w *Writer) RecordRequest(ctx context.Context, threadID, turnID string) (string, error) {
	req := storage.AIRequest{
		ID:        uuid.New().String(),
		ThreadID:  threadID,
		TurnID:    turnID,
		CreatedAt: time.Now().UTC(),
	}
	if err := w.store.InsertRequest(req); err != nil {
		return "", fmt.Errorf("recording request: %w", err)
	}
	return req.ID, nil
}

// Stored reports one persisted outcome. Err is non-nil when this
// outcome could not be written; a persistence failure here is distinct
// from the provider failure already captured in the outcome itself.
type Stored struct {
	ResponseID string
	Provider   string
	Err        error
}

// RecordResponses writes one response row per outcome, independently:
// a failed write never blocks sibling writes. The returned slice is
// index-aligned with outcomes. The error is the join of all write
// failures, nil when every row landed.
func (w *Writer) RecordResponses(ctx context.Context, requestID string, outcomes []provider.Outcome) ([]Stored, error) {
	stored := make([]Stored, len(outcomes))
	var errs []error
	for i, o := range outcomes {
		stored[i] = Stored{Provider: o.Provider}

		textEnc := ""
		if o.OK && o.Text != "" {
			enc, err := w.cipher.Encrypt(ctx, w.keyID, o.Text)
			if err != nil {
				err = fmt.Errorf("encrypting %s response: %w", o.Provider, err)
				w.logger.Error("response not persisted", "provider", o.Provider, "error", err)
				stored[i].Err = err
				errs = append(errs, err)
				continue
			}
			textEnc = enc
		}

		resp := storage.AIResponse{
			ID:           uuid.New().String(),
			RequestID:    requestID,
			Provider:     o.Provider,
			TextEnc:      textEnc,
			OK:           o.OK,
			ErrorDetail:  o.ErrorDetail,
			LatencyMS:    o.LatencyMS,
			InputTokens:  o.InputTokens,
			OutputTokens: o.OutputTokens,
			CreatedAt:    time.Now().UTC(),
		}
		if err := w.store.InsertResponse(resp); err != nil {
			err = fmt.Errorf("persisting %s response: %w", o.Provider, err)
			w.logger.Error("response not persisted", "provider", o.Provider, "error", err)
			stored[i].Err = err
			errs = append(errs, err)
			continue
		}
		stored[i].ResponseID = resp.ID
	}
	return stored, errors.Join(errs...)
}
