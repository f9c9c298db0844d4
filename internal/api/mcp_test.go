package api

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/lumenhq/lumen/internal/pipeline"
	"github.com/lumenhq/lumen/internal/retrieval"
	"github.com/lumenhq/lumen/internal/storage"
)

type mockSearcher struct {
	gotFileIDs []string
	chunks     []retrieval.Chunk
	err        error
}

func (m *mockSearcher) Retrieve(_ context.Context, fileIDs []string, _ string, _ int, _ float32) ([]retrieval.Chunk, error) {
	m.gotFileIDs = fileIDs
	return m.chunks, m.err
}

func newTestMCPDeps(t *testing.T) (MCPDeps, *storage.Store, *stubComparer, *stubApplier, *mockSearcher) {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	comparer := &stubComparer{}
	applier := &stubApplier{version: 2}
	searcher := &mockSearcher{}
	deps := MCPDeps{
		Store:    store,
		Comparer: comparer,
		Applier:  applier,
		Searcher: searcher,
		MinScore: 0.3,
	}
	return deps, store, comparer, applier, searcher
}

func makeCallToolRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func toolText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("no content in result")
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", result.Content[0])
	}
	return tc.Text
}

func TestMCPCompareDrafts(t *testing.T) {
	deps, _, comparer, _, _ := newTestMCPDeps(t)
	comparer.result = pipeline.Result{
		RequestID: "req-1",
		Cards: []pipeline.Card{
			{ResponseID: "resp-1", Provider: "openai", OK: true, Text: "draft one"},
		},
	}
	handler := mcpCompareDrafts(deps)

	res, err := handler(context.Background(), makeCallToolRequest("compare_drafts", map[string]interface{}{
		"thread_id": "th-1",
		"message":   "shorten the close",
		"mode":      "qa",
	}))
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if res.IsError {
		t.Fatalf("tool error: %s", toolText(t, res))
	}
	if comparer.got.ThreadID != "th-1" || string(comparer.got.Mode) != "qa" {
		t.Errorf("comparer input = %+v", comparer.got)
	}
	if !strings.Contains(toolText(t, res), "draft one") {
		t.Errorf("result text = %s", toolText(t, res))
	}
}

func TestMCPCompareDraftsMissingArgs(t *testing.T) {
	deps, _, _, _, _ := newTestMCPDeps(t)
	handler := mcpCompareDrafts(deps)

	res, err := handler(context.Background(), makeCallToolRequest("compare_drafts", map[string]interface{}{
		"thread_id": "th-1",
	}))
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if !res.IsError {
		t.Error("expected tool error for missing message")
	}
}

func TestMCPApplySelection(t *testing.T) {
	deps, _, _, applier, _ := newTestMCPDeps(t)
	handler := mcpApplySelection(deps)

	res, err := handler(context.Background(), makeCallToolRequest("apply_selection", map[string]interface{}{
		"document_id": "doc-1",
		"response_id": "resp-1",
		"merge_mode":  "append",
	}))
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if res.IsError {
		t.Fatalf("tool error: %s", toolText(t, res))
	}
	if applier.got.DocumentID != "doc-1" || applier.got.Actor != "mcp" {
		t.Errorf("applier input = %+v", applier.got)
	}
	if !strings.Contains(toolText(t, res), "version 2") {
		t.Errorf("result text = %s", toolText(t, res))
	}
}

func TestMCPApplySelectionConflict(t *testing.T) {
	deps, _, _, applier, _ := newTestMCPDeps(t)
	applier.err = errors.New("version conflict")
	handler := mcpApplySelection(deps)

	res, err := handler(context.Background(), makeCallToolRequest("apply_selection", map[string]interface{}{
		"document_id": "doc-1",
		"response_id": "resp-1",
	}))
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if !res.IsError {
		t.Error("expected tool error when the apply fails")
	}
}

func TestMCPSearchFilesOnlyReadyIndexed(t *testing.T) {
	deps, store, _, _, searcher := newTestMCPDeps(t)
	if err := store.CreateThread(storage.Thread{ID: "th-1", CreatedAt: time.Now()}); err != nil {
		t.Fatal(err)
	}
	files := []storage.AttachedFile{
		{ID: "f-direct", ThreadID: "th-1", Filename: "a.txt", RetrievalMode: storage.RetrievalModeDirect, IndexStatus: storage.IndexStatusReady, CreatedAt: time.Now()},
		{ID: "f-pending", ThreadID: "th-1", Filename: "b.txt", RetrievalMode: storage.RetrievalModeIndexed, IndexStatus: storage.IndexStatusPending, CreatedAt: time.Now()},
		{ID: "f-ready", ThreadID: "th-1", Filename: "c.txt", RetrievalMode: storage.RetrievalModeIndexed, IndexStatus: storage.IndexStatusReady, CreatedAt: time.Now()},
	}
	for _, f := range files {
		if err := store.SaveFile(f); err != nil {
			t.Fatal(err)
		}
	}
	searcher.chunks = []retrieval.Chunk{
		{FileID: "f-ready", ChunkIndex: 3, Section: "Terms", Text: "payment within 30 days", Score: 0.91},
	}
	handler := mcpSearchFiles(deps)

	res, err := handler(context.Background(), makeCallToolRequest("search_files", map[string]interface{}{
		"thread_id": "th-1",
		"query":     "payment terms",
	}))
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if res.IsError {
		t.Fatalf("tool error: %s", toolText(t, res))
	}
	if len(searcher.gotFileIDs) != 1 || searcher.gotFileIDs[0] != "f-ready" {
		t.Errorf("searched file IDs = %v, want only the ready indexed file", searcher.gotFileIDs)
	}

	var results []struct {
		FileID string  `json:"file_id"`
		Score  float32 `json:"score"`
	}
	if err := json.Unmarshal([]byte(toolText(t, res)), &results); err != nil {
		t.Fatalf("decoding result: %v", err)
	}
	if len(results) != 1 || results[0].FileID != "f-ready" {
		t.Errorf("results = %+v", results)
	}
}

func TestMCPSearchFilesNoIndexedFiles(t *testing.T) {
	deps, store, _, _, searcher := newTestMCPDeps(t)
	if err := store.CreateThread(storage.Thread{ID: "th-1", CreatedAt: time.Now()}); err != nil {
		t.Fatal(err)
	}
	handler := mcpSearchFiles(deps)

	res, err := handler(context.Background(), makeCallToolRequest("search_files", map[string]interface{}{
		"thread_id": "th-1",
		"query":     "anything",
	}))
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if toolText(t, res) != "[]" {
		t.Errorf("result = %s, want empty list", toolText(t, res))
	}
	if searcher.gotFileIDs != nil {
		t.Error("search must not run without indexed files")
	}
}

func TestMCPAuditResource(t *testing.T) {
	deps, store, _, _, _ := newTestMCPDeps(t)
	if err := store.InsertAuditEntry(storage.AuditEntry{
		ID: "a-1", Actor: "mcp", Action: "apply_selection", Target: "doc-1", CreatedAt: time.Now(),
	}); err != nil {
		t.Fatal(err)
	}
	handler := mcpResourceAudit(deps)

	contents, err := handler(context.Background(), mcp.ReadResourceRequest{
		Params: mcp.ReadResourceParams{URI: "audit://recent"},
	})
	if err != nil {
		t.Fatalf("resource error: %v", err)
	}
	if len(contents) != 1 {
		t.Fatalf("contents = %+v", contents)
	}
	text, ok := contents[0].(mcp.TextResourceContents)
	if !ok {
		t.Fatalf("expected TextResourceContents, got %T", contents[0])
	}
	if !strings.Contains(text.Text, "apply_selection") {
		t.Errorf("resource text = %s", text.Text)
	}
}
