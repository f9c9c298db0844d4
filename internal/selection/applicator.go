// Package selection applies a chosen provider draft back onto the
// document, producing the next version atomically.
package selection

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lumenhq/lumen/internal/sanitize"
	"github.com/lumenhq/lumen/internal/storage"
	"github.com/lumenhq/lumen/internal/vault"
)

// Merge modes.
const (
	MergeAppend   = "append"
	MergeReplace  = "replace"
	MergeInsertAt = "insert_at"
)

// ApplyStore is the slice of storage the applicator needs.
type ApplyStore interface {
	GetDocument(id string) (storage.Document, error)
	GetResponse(id string) (storage.AIResponse, error)
	ApplyVersion(w storage.VersionWrite) (int, error)
}

// Applicator merges a selected response into its document under the
// optimistic version check.
type Applicator struct {
	store  ApplyStore
	cipher vault.Cipher
	keyID  string
}

func NewApplicator(store ApplyStore, cipher vault.Cipher, keyID string) *Applicator {
	return &Applicator{store: store, cipher: cipher, keyID: keyID}
}

// Input names the response to apply and how to merge it.
type Input struct {
	DocumentID string
	ResponseID string
	MergeMode  string
	// InsertAt is the character offset for insert_at; out-of-range
	// values are clamped to the document bounds, never an error.
	InsertAt int
	// OverrideText replaces the response text when the user edited the
	// draft before applying. Recorded in the selection row.
	OverrideText string
	// ThreadID, when set, writes the applied text back into the thread
	// as a system turn so later assemblies see it.
	ThreadID string
	Actor    string
}

// Apply merges the chosen text into the document and bumps its version.
// The version row, document bump, selection row, audit row and the
// optional thread write-back land in one transaction. A lost race
// returns storage.ErrConflict; the caller re-reads and retries.
func (a *Applicator) Apply(ctx context.Context, in Input) (int, error) {
	if in.MergeMode != MergeAppend && in.MergeMode != MergeReplace && in.MergeMode != MergeInsertAt {
		return 0, fmt.Errorf("unknown merge mode %q", in.MergeMode)
	}

	// The response is loaded even under an override so the selection
	// row always points at a real response and its request.
	resp, err := a.store.GetResponse(in.ResponseID)
	if err != nil {
		return 0, fmt.Errorf("loading response %s: %w", in.ResponseID, err)
	}
	chosen := in.OverrideText
	if chosen == "" {
		if !resp.OK || resp.TextEnc == "" {
			return 0, fmt.Errorf("response %s has no applicable text", in.ResponseID)
		}
		chosen, err = a.cipher.Decrypt(ctx, a.keyID, resp.TextEnc)
		if err != nil {
			return 0, fmt.Errorf("decrypting response text: %w", err)
		}
	}

	doc, err := a.store.GetDocument(in.DocumentID)
	if err != nil {
		return 0, fmt.Errorf("loading document %s: %w", in.DocumentID, err)
	}
	current := ""
	if doc.ContentEnc != "" {
		current, err = a.cipher.Decrypt(ctx, a.keyID, doc.ContentEnc)
		if err != nil {
			return 0, fmt.Errorf("decrypting document content: %w", err)
		}
	}

	merged := merge(current, chosen, in.MergeMode, in.InsertAt)
	mergedEnc, err := a.cipher.Encrypt(ctx, a.keyID, merged)
	if err != nil {
		return 0, fmt.Errorf("encrypting merged content: %w", err)
	}

	write := storage.VersionWrite{
		DocumentID:      in.DocumentID,
		ExpectedVersion: doc.Version,
		NewContentEnc:   mergedEnc,
		Selection: &storage.AISelection{
			ID:         uuid.New().String(),
			RequestID:  resp.RequestID,
			ResponseID: in.ResponseID,
			MergeMode:  in.MergeMode,
			Overridden: in.OverrideText != "",
		},
	}

	details, err := json.Marshal(map[string]any{
		"response_id": in.ResponseID,
		"merge_mode":  in.MergeMode,
		"overridden":  in.OverrideText != "",
	})
	if err != nil {
		return 0, err
	}
	write.Audit = &storage.AuditEntry{
		ID:          uuid.New().String(),
		Actor:       in.Actor,
		Action:      "apply_selection",
		Target:      in.DocumentID,
		DetailsJSON: string(details),
	}

	if in.ThreadID != "" {
		turn, err := a.writeBackTurn(ctx, in.ThreadID, chosen)
		if err != nil {
			return 0, err
		}
		write.Turn = turn
	}

	newVersion, err := a.store.ApplyVersion(write)
	if err != nil {
		return 0, fmt.Errorf("applying version: %w", err)
	}
	return newVersion, nil
}

// writeBackTurn builds the dual-encrypted system turn recording the
// applied draft in the thread.
func (a *Applicator) writeBackTurn(ctx context.Context, threadID, text string) (*storage.Turn, error) {
	rawEnc, err := a.cipher.Encrypt(ctx, a.keyID, text)
	if err != nil {
		return nil, fmt.Errorf("encrypting applied text: %w", err)
	}
	saneEnc, err := a.cipher.Encrypt(ctx, a.keyID, sanitize.Sanitize(text))
	if err != nil {
		return nil, fmt.Errorf("encrypting sanitized applied text: %w", err)
	}
	hash := sha256.Sum256([]byte(text))
	return &storage.Turn{
		ID:           uuid.New().String(),
		ThreadID:     threadID,
		Role:         "system",
		RawEnc:       rawEnc,
		SanitizedEnc: saneEnc,
		ContentHash:  hex.EncodeToString(hash[:]),
	}, nil
}

// merge combines the current document with the chosen text.
func merge(current, chosen, mode string, insertAt int) string {
	switch mode {
	case MergeReplace:
		return chosen
	case MergeInsertAt:
		runes := []rune(current)
		if insertAt < 0 {
			insertAt = 0
		}
		if insertAt > len(runes) {
			insertAt = len(runes)
		}
		return string(runes[:insertAt]) + chosen + string(runes[insertAt:])
	default: // append
		if current == "" {
			return chosen
		}
		if strings.HasSuffix(current, "\n") {
			return current + "\n" + chosen
		}
		return current + "\n\n" + chosen
	}
}
