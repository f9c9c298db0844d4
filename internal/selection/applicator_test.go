package selection

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/lumenhq/lumen/internal/storage"
)

type markerCipher struct{}

func (markerCipher) Encrypt(ctx context.Context, keyID, plaintext string) (string, error) {
	return "enc(" + plaintext + ")", nil
}

func (markerCipher) Decrypt(ctx context.Context, keyID, ciphertext string) (string, error) {
	return strings.TrimSuffix(strings.TrimPrefix(ciphertext, "enc("), ")"), nil
}

type fixture struct {
	store *storage.Store
	app   *Applicator
}

// newFixture seeds a document at version 0 with the given content and
// one successful response holding the draft text.
func newFixture(t *testing.T, docContent, draft string) fixture {
	t.Helper()
	s, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	contentEnc := ""
	if docContent != "" {
		contentEnc = "enc(" + docContent + ")"
	}
	if err := s.CreateDocument(storage.Document{ID: "doc-1", Title: "Draft", ContentEnc: contentEnc}); err != nil {
		t.Fatalf("CreateDocument: %v", err)
	}
	if err := s.InsertRequest(storage.AIRequest{ID: "req-1", ThreadID: "th-1", TurnID: "turn-1", CreatedAt: time.Now()}); err != nil {
		t.Fatalf("InsertRequest: %v", err)
	}
	if err := s.InsertResponse(storage.AIResponse{
		ID: "resp-1", RequestID: "req-1", Provider: "openai",
		TextEnc: "enc(" + draft + ")", OK: true, LatencyMS: 100, CreatedAt: time.Now(),
	}); err != nil {
		t.Fatalf("InsertResponse: %v", err)
	}

	return fixture{store: s, app: NewApplicator(s, markerCipher{}, "tenant-key")}
}

func (f fixture) documentText(t *testing.T) string {
	t.Helper()
	doc, err := f.store.GetDocument("doc-1")
	if err != nil {
		t.Fatalf("GetDocument: %v", err)
	}
	text, err := markerCipher{}.Decrypt(context.Background(), "k", doc.ContentEnc)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	return text
}

func (f fixture) bumpTo(t *testing.T, version int) {
	t.Helper()
	for i := 0; i < version; i++ {
		if _, err := f.store.ApplyVersion(storage.VersionWrite{
			DocumentID: "doc-1", ExpectedVersion: i, NewContentEnc: "enc(old content)",
		}); err != nil {
			t.Fatalf("setup bump %d: %v", i, err)
		}
	}
}

func TestApplyReplace(t *testing.T) {
	f := newFixture(t, "old content", "new draft")
	f.bumpTo(t, 3)

	v, err := f.app.Apply(context.Background(), Input{
		DocumentID: "doc-1", ResponseID: "resp-1", MergeMode: MergeReplace, Actor: "api",
	})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if v != 4 {
		t.Errorf("new version = %d, want 4", v)
	}
	if got := f.documentText(t); got != "new draft" {
		t.Errorf("document = %q, want the draft verbatim", got)
	}

	snap, err := f.store.GetVersion("doc-1", 4)
	if err != nil {
		t.Fatalf("GetVersion: %v", err)
	}
	if snap.ContentEnc != "enc(new draft)" {
		t.Errorf("version snapshot = %q", snap.ContentEnc)
	}
}

func TestApplyAppend(t *testing.T) {
	f := newFixture(t, "intro paragraph", "closing paragraph")

	if _, err := f.app.Apply(context.Background(), Input{
		DocumentID: "doc-1", ResponseID: "resp-1", MergeMode: MergeAppend, Actor: "api",
	}); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	want := "intro paragraph\n\nclosing paragraph"
	if got := f.documentText(t); got != want {
		t.Errorf("document = %q, want %q", got, want)
	}
}

func TestApplyInsertAtClamps(t *testing.T) {
	tests := []struct {
		name     string
		insertAt int
		want     string
	}{
		{"mid-document offset", 5, "HelloXX world"},
		{"negative clamps to start", -5, "XXHello world"},
		{"past end clamps to end", 99, "Hello worldXX"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, "Hello world", "XX")
			if _, err := f.app.Apply(context.Background(), Input{
				DocumentID: "doc-1", ResponseID: "resp-1",
				MergeMode: MergeInsertAt, InsertAt: tt.insertAt, Actor: "api",
			}); err != nil {
				t.Fatalf("Apply: %v", err)
			}
			if got := f.documentText(t); got != tt.want {
				t.Errorf("document = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestApplyInsertAtEmptyDocument(t *testing.T) {
	f := newFixture(t, "", "inserted")
	if _, err := f.app.Apply(context.Background(), Input{
		DocumentID: "doc-1", ResponseID: "resp-1",
		MergeMode: MergeInsertAt, InsertAt: 10, Actor: "api",
	}); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if got := f.documentText(t); got != "inserted" {
		t.Errorf("document = %q, want %q", got, "inserted")
	}
}

func TestApplyAppendAfterTrailingNewline(t *testing.T) {
	f := newFixture(t, "intro paragraph\n", "closing paragraph")

	if _, err := f.app.Apply(context.Background(), Input{
		DocumentID: "doc-1", ResponseID: "resp-1", MergeMode: MergeAppend, Actor: "api",
	}); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	want := "intro paragraph\n\nclosing paragraph"
	if got := f.documentText(t); got != want {
		t.Errorf("document = %q, want %q", got, want)
	}
}

func TestApplyOverrideText(t *testing.T) {
	f := newFixture(t, "", "provider draft")

	if _, err := f.app.Apply(context.Background(), Input{
		DocumentID: "doc-1", ResponseID: "resp-1", MergeMode: MergeReplace,
		OverrideText: "hand-edited draft", Actor: "api",
	}); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if got := f.documentText(t); got != "hand-edited draft" {
		t.Errorf("document = %q", got)
	}

	entries, err := f.store.ListAuditEntries(1)
	if err != nil || len(entries) != 1 {
		t.Fatalf("audit entries: %v, %v", entries, err)
	}
	if !strings.Contains(entries[0].DetailsJSON, `"overridden":true`) {
		t.Errorf("audit details = %q", entries[0].DetailsJSON)
	}
}

func TestApplySelectionRowReferencesRequest(t *testing.T) {
	f := newFixture(t, "old content", "new draft")

	v, err := f.app.Apply(context.Background(), Input{
		DocumentID: "doc-1", ResponseID: "resp-1", MergeMode: MergeReplace, Actor: "api",
	})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}

	var selID string
	if err := f.store.DB().QueryRow(`SELECT id FROM ai_selections`).Scan(&selID); err != nil {
		t.Fatalf("reading selection id: %v", err)
	}
	sel, err := f.store.GetSelection(selID)
	if err != nil {
		t.Fatalf("GetSelection: %v", err)
	}
	if sel.RequestID != "req-1" {
		t.Errorf("selection request_id = %q, want %q", sel.RequestID, "req-1")
	}
	if sel.ResponseID != "resp-1" || sel.DocumentID != "doc-1" {
		t.Errorf("selection = %+v", sel)
	}
	if sel.AppliedVersion != v {
		t.Errorf("applied_version = %d, want %d", sel.AppliedVersion, v)
	}
}

func TestApplyOverrideStillReferencesRequest(t *testing.T) {
	f := newFixture(t, "", "provider draft")

	if _, err := f.app.Apply(context.Background(), Input{
		DocumentID: "doc-1", ResponseID: "resp-1", MergeMode: MergeReplace,
		OverrideText: "hand-edited draft", Actor: "api",
	}); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	var selID string
	if err := f.store.DB().QueryRow(`SELECT id FROM ai_selections`).Scan(&selID); err != nil {
		t.Fatalf("reading selection id: %v", err)
	}
	sel, err := f.store.GetSelection(selID)
	if err != nil {
		t.Fatalf("GetSelection: %v", err)
	}
	if sel.RequestID != "req-1" {
		t.Errorf("selection request_id = %q, want %q", sel.RequestID, "req-1")
	}
	if !sel.Overridden {
		t.Error("selection row should record the override")
	}
}

func TestApplyOverrideUnknownResponse(t *testing.T) {
	f := newFixture(t, "", "draft")

	_, err := f.app.Apply(context.Background(), Input{
		DocumentID: "doc-1", ResponseID: "resp-missing", MergeMode: MergeReplace,
		OverrideText: "hand-edited draft", Actor: "api",
	})
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound for unknown response", err)
	}
}

func TestApplyWritesBackSystemTurn(t *testing.T) {
	f := newFixture(t, "", "the applied draft with a@b.io inside")
	if err := f.store.CreateThread(storage.Thread{ID: "th-1", CreatedAt: time.Now()}); err != nil {
		t.Fatalf("CreateThread: %v", err)
	}

	if _, err := f.app.Apply(context.Background(), Input{
		DocumentID: "doc-1", ResponseID: "resp-1", MergeMode: MergeReplace,
		ThreadID: "th-1", Actor: "api",
	}); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	turns, err := f.store.ListTurns("th-1")
	if err != nil {
		t.Fatalf("ListTurns: %v", err)
	}
	if len(turns) != 1 || turns[0].Role != "system" {
		t.Fatalf("turns = %+v", turns)
	}
	if !strings.Contains(turns[0].SanitizedEnc, "[EMAIL]") {
		t.Errorf("write-back sanitized text = %q, PII not redacted", turns[0].SanitizedEnc)
	}
	if !strings.Contains(turns[0].RawEnc, "a@b.io") {
		t.Errorf("write-back raw text lost content: %q", turns[0].RawEnc)
	}
}

func TestApplyConcurrentOneWinner(t *testing.T) {
	f := newFixture(t, "base", "draft")
	f.bumpTo(t, 5)

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = f.app.Apply(context.Background(), Input{
				DocumentID: "doc-1", ResponseID: "resp-1", MergeMode: MergeReplace, Actor: "api",
			})
		}(i)
	}
	wg.Wait()

	var wins, conflicts int
	for _, err := range results {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, storage.ErrConflict):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if wins != 1 || conflicts != 1 {
		t.Errorf("wins = %d, conflicts = %d; want exactly one of each", wins, conflicts)
	}

	doc, err := f.store.GetDocument("doc-1")
	if err != nil {
		t.Fatalf("GetDocument: %v", err)
	}
	if doc.Version != 6 {
		t.Errorf("document version = %d, want exactly 6", doc.Version)
	}
}

func TestApplyRejectsFailedResponse(t *testing.T) {
	f := newFixture(t, "", "draft")
	if err := f.store.InsertResponse(storage.AIResponse{
		ID: "resp-bad", RequestID: "req-1", Provider: "xai",
		OK: false, ErrorDetail: "timeout", CreatedAt: time.Now(),
	}); err != nil {
		t.Fatalf("InsertResponse: %v", err)
	}

	if _, err := f.app.Apply(context.Background(), Input{
		DocumentID: "doc-1", ResponseID: "resp-bad", MergeMode: MergeReplace, Actor: "api",
	}); err == nil {
		t.Error("expected error applying a failed response")
	}
}

func TestApplyUnknownMergeMode(t *testing.T) {
	f := newFixture(t, "", "draft")
	if _, err := f.app.Apply(context.Background(), Input{
		DocumentID: "doc-1", ResponseID: "resp-1", MergeMode: "squash",
	}); err == nil {
		t.Error("expected error for unknown merge mode")
	}
}
