package audit

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/lumenhq/lumen/internal/provider"
	"github.com/lumenhq/lumen/internal/storage"
)

// reversibleCipher marks text instead of encrypting it, so tests can
// assert ciphertext-only persistence without a vault server.
type reversibleCipher struct {
	failOn string
}

func (c *reversibleCipher) Encrypt(ctx context.Context, keyID, plaintext string) (string, error) {
	if c.failOn != "" && strings.Contains(plaintext, c.failOn) {
		return "", errors.New("vault sealed")
	}
	return "enc(" + plaintext + ")", nil
}

func (c *reversibleCipher) Decrypt(ctx context.Context, keyID, ciphertext string) (string, error) {
	return strings.TrimSuffix(strings.TrimPrefix(ciphertext, "enc("), ")"), nil
}

func openTestStore(t *testing.T) *storage.Store {
	t.Helper()
	s, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRecordResponsesEncryptsText(t *testing.T) {
	s := openTestStore(t)
	w := NewWriter(s, &reversibleCipher{}, "tenant-key")
	ctx := context.Background()

	reqID, err := w.RecordRequest(ctx, "th-1", "turn-1")
	if err != nil {
		t.Fatalf("RecordRequest: %v", err)
	}

	in := 10
	outcomes := []provider.Outcome{
		{Provider: "openai", OK: true, Text: "secret draft", LatencyMS: 500, InputTokens: &in},
		{Provider: "xai", OK: false, ErrorDetail: "timeout", LatencyMS: 30000},
	}
	stored, err := w.RecordResponses(ctx, reqID, outcomes)
	if err != nil {
		t.Fatalf("RecordResponses: %v", err)
	}
	if len(stored) != 2 {
		t.Fatalf("got %d stored, want 2", len(stored))
	}

	rows, err := s.ListResponses(reqID)
	if err != nil {
		t.Fatalf("ListResponses: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}
	var ok, failed *storage.AIResponse
	for i := range rows {
		if rows[i].Provider == "openai" {
			ok = &rows[i]
		} else {
			failed = &rows[i]
		}
	}
	if ok == nil || failed == nil {
		t.Fatalf("rows = %+v", rows)
	}
	if ok.TextEnc != "enc(secret draft)" {
		t.Errorf("TextEnc = %q, plaintext must not be stored", ok.TextEnc)
	}
	if ok.InputTokens == nil || *ok.InputTokens != 10 {
		t.Errorf("InputTokens = %v", ok.InputTokens)
	}
	if failed.OK || failed.ErrorDetail != "timeout" || failed.TextEnc != "" {
		t.Errorf("failed row = %+v", failed)
	}
}

func TestRecordResponsesIndependentWrites(t *testing.T) {
	s := openTestStore(t)
	w := NewWriter(s, &reversibleCipher{failOn: "poison"}, "tenant-key")
	ctx := context.Background()

	reqID, err := w.RecordRequest(ctx, "th-1", "turn-1")
	if err != nil {
		t.Fatalf("RecordRequest: %v", err)
	}

	outcomes := []provider.Outcome{
		{Provider: "openai", OK: true, Text: "poison pill"},
		{Provider: "anthropic", OK: true, Text: "good draft"},
	}
	stored, err := w.RecordResponses(ctx, reqID, outcomes)
	if err == nil {
		t.Fatal("expected joined error for the failed write")
	}
	if stored[0].Err == nil {
		t.Error("failed outcome should carry its persistence error")
	}
	if stored[1].Err != nil || stored[1].ResponseID == "" {
		t.Errorf("sibling write blocked: %+v", stored[1])
	}

	rows, err := s.ListResponses(reqID)
	if err != nil {
		t.Fatalf("ListResponses: %v", err)
	}
	if len(rows) != 1 || rows[0].Provider != "anthropic" {
		t.Errorf("rows = %+v, want only the anthropic row", rows)
	}
}
