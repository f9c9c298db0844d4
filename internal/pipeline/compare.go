// Package pipeline orchestrates one compare request end to end:
// sanitize and persist the user turn, assemble the bounded context,
// fan out to every provider and record the outcomes.
package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lumenhq/lumen/internal/assemble"
	"github.com/lumenhq/lumen/internal/audit"
	"github.com/lumenhq/lumen/internal/fanout"
	"github.com/lumenhq/lumen/internal/provider"
	"github.com/lumenhq/lumen/internal/sanitize"
	"github.com/lumenhq/lumen/internal/storage"
	"github.com/lumenhq/lumen/internal/vault"
)

// CompareStore is the slice of storage the pipeline reads and writes.
type CompareStore interface {
	GetThread(id string) (storage.Thread, error)
	SaveTurn(t storage.Turn) error
	ListTurns(threadID string) ([]storage.Turn, error)
	GetDocument(id string) (storage.Document, error)
	ListFiles(threadID string) ([]storage.AttachedFile, error)
}

// Comparer wires the compare flow together.
type Comparer struct {
	store       CompareStore
	cipher      vault.Cipher
	keyID       string
	assembler   *assemble.Assembler
	coordinator *fanout.Coordinator
	providers   []provider.Provider
	writer      *audit.Writer
	logger      *slog.Logger
}

func NewComparer(store CompareStore, cipher vault.Cipher, keyID string,
	assembler *assemble.Assembler, coordinator *fanout.Coordinator,
	providers []provider.Provider, writer *audit.Writer) *Comparer {
	return &Comparer{
		store:       store,
		cipher:      cipher,
		keyID:       keyID,
		assembler:   assembler,
		coordinator: coordinator,
		providers:   providers,
		writer:      writer,
		logger:      slog.Default(),
	}
}

// Input is one compare call.
type Input struct {
	ThreadID string
	Message  string
	Mode     assemble.Mode
	// SystemOverride replaces the default preamble for this call only.
	SystemOverride string
}

// Card is one provider's draft as returned to the caller. Text is
// plaintext here; only ciphertext was persisted.
type Card struct {
	ResponseID   string
	Provider     string
	OK           bool
	Text         string
	ErrorDetail  string
	LatencyMS    int64
	InputTokens  *int
	OutputTokens *int
}

// Result is the outcome of one compare request.
type Result struct {
	RequestID string
	TurnID    string
	Cards     []Card
}

// Compare runs the full flow. Input is validated before any
// persistence or network call; a cancelled context discards provider
// results instead of persisting them.
func (c *Comparer) Compare(ctx context.Context, in Input) (Result, error) {
	if strings.TrimSpace(in.Message) == "" {
		return Result{}, fmt.Errorf("message must not be empty")
	}
	if in.Mode == "" {
		in.Mode = assemble.ModeEdit
	}
	if in.Mode != assemble.ModeEdit && in.Mode != assemble.ModeQA {
		return Result{}, fmt.Errorf("unknown mode %q", in.Mode)
	}
	if len(c.providers) == 0 {
		return Result{}, fmt.Errorf("no providers configured")
	}

	thread, err := c.store.GetThread(in.ThreadID)
	if err != nil {
		return Result{}, fmt.Errorf("loading thread %s: %w", in.ThreadID, err)
	}

	// History is everything before this turn.
	prior, err := c.store.ListTurns(in.ThreadID)
	if err != nil {
		return Result{}, fmt.Errorf("loading history: %w", err)
	}

	sanitized := sanitize.Sanitize(in.Message)
	turn, err := c.saveUserTurn(ctx, in.ThreadID, in.Message, sanitized)
	if err != nil {
		return Result{}, err
	}

	asmIn, err := c.buildAssemblyInput(ctx, thread, prior, sanitized, in)
	if err != nil {
		return Result{}, err
	}
	pctx, err := c.assembler.Assemble(ctx, asmIn)
	if err != nil {
		return Result{}, fmt.Errorf("assembling context: %w", err)
	}

	requestID, err := c.writer.RecordRequest(ctx, in.ThreadID, turn.ID)
	if err != nil {
		return Result{}, err
	}

	outcomes, err := c.coordinator.Fanout(ctx, pctx.Messages(), c.providers)
	if err != nil {
		// Caller cancelled: late results are discarded, not persisted.
		return Result{}, fmt.Errorf("fan-out aborted: %w", err)
	}

	stored, persistErr := c.writer.RecordResponses(ctx, requestID, outcomes)
	if persistErr != nil {
		c.logger.Error("some responses not persisted", "request_id", requestID, "error", persistErr)
	}

	cards := make([]Card, len(outcomes))
	for i, o := range outcomes {
		cards[i] = Card{
			ResponseID:   stored[i].ResponseID,
			Provider:     o.Provider,
			OK:           o.OK,
			Text:         o.Text,
			ErrorDetail:  o.ErrorDetail,
			LatencyMS:    o.LatencyMS,
			InputTokens:  o.InputTokens,
			OutputTokens: o.OutputTokens,
		}
		if o.OK && stored[i].Err != nil {
			cards[i].ErrorDetail = fmt.Sprintf("draft produced but not persisted: %v", stored[i].Err)
		}
	}

	return Result{RequestID: requestID, TurnID: turn.ID, Cards: cards}, nil
}

// saveUserTurn dual-encrypts and appends the incoming message.
func (c *Comparer) saveUserTurn(ctx context.Context, threadID, raw, sanitized string) (storage.Turn, error) {
	rawEnc, err := c.cipher.Encrypt(ctx, c.keyID, raw)
	if err != nil {
		return storage.Turn{}, fmt.Errorf("encrypting message: %w", err)
	}
	saneEnc, err := c.cipher.Encrypt(ctx, c.keyID, sanitized)
	if err != nil {
		return storage.Turn{}, fmt.Errorf("encrypting sanitized message: %w", err)
	}
	hash := sha256.Sum256([]byte(raw))

	turn := storage.Turn{
		ID:           uuid.New().String(),
		ThreadID:     threadID,
		Role:         "user",
		RawEnc:       rawEnc,
		SanitizedEnc: saneEnc,
		ContentHash:  hex.EncodeToString(hash[:]),
		CreatedAt:    time.Now().UTC(),
	}
	if err := c.store.SaveTurn(turn); err != nil {
		return storage.Turn{}, fmt.Errorf("saving turn: %w", err)
	}
	return turn, nil
}

// buildAssemblyInput decrypts the value snapshot the assembler works
// from. Only sanitized turn text ever enters the context.
func (c *Comparer) buildAssemblyInput(ctx context.Context, thread storage.Thread,
	prior []storage.Turn, sanitizedMessage string, in Input) (assemble.Input, error) {

	asmIn := assemble.Input{
		Mode:        in.Mode,
		Preamble:    in.SystemOverride,
		Instruction: sanitizedMessage,
	}

	for _, t := range prior {
		text, err := c.cipher.Decrypt(ctx, c.keyID, t.SanitizedEnc)
		if err != nil {
			return assemble.Input{}, fmt.Errorf("decrypting turn %s: %w", t.ID, err)
		}
		asmIn.History = append(asmIn.History, assemble.HistoryTurn{Role: t.Role, Text: text})
	}

	if in.Mode == assemble.ModeEdit && thread.DocumentID != "" {
		doc, err := c.store.GetDocument(thread.DocumentID)
		if err != nil {
			return assemble.Input{}, fmt.Errorf("loading document %s: %w", thread.DocumentID, err)
		}
		content := ""
		if doc.ContentEnc != "" {
			content, err = c.cipher.Decrypt(ctx, c.keyID, doc.ContentEnc)
			if err != nil {
				return assemble.Input{}, fmt.Errorf("decrypting document: %w", err)
			}
		}
		asmIn.Document = &assemble.DocumentSnapshot{Title: doc.Title, Content: content}
	}

	files, err := c.store.ListFiles(thread.ID)
	if err != nil {
		return assemble.Input{}, fmt.Errorf("loading files: %w", err)
	}
	for _, f := range files {
		switch {
		case f.RetrievalMode == storage.RetrievalModeDirect:
			asmIn.DirectFiles = append(asmIn.DirectFiles, assemble.FileText{
				Filename: f.Filename, Text: f.ExtractedText,
			})
		case f.IndexStatus == storage.IndexStatusReady:
			asmIn.IndexedFiles = append(asmIn.IndexedFiles, assemble.FileRef{
				ID: f.ID, Filename: f.Filename,
			})
		default:
			c.logger.Debug("skipping unindexed file", "file_id", f.ID, "status", f.IndexStatus)
		}
	}

	return asmIn, nil
}
