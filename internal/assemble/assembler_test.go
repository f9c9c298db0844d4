package assemble

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/lumenhq/lumen/internal/retrieval"
)

type fakeGateway struct {
	chunks      []retrieval.Chunk
	err         error
	gotFileIDs  []string
	gotQuery    string
	gotPerFile  int
	gotMinScore float32
	calls       int
}

func (f *fakeGateway) Retrieve(ctx context.Context, fileIDs []string, query string, topKPerFile int, minScore float32) ([]retrieval.Chunk, error) {
	f.calls++
	f.gotFileIDs = fileIDs
	f.gotQuery = query
	f.gotPerFile = topKPerFile
	f.gotMinScore = minScore
	return f.chunks, f.err
}

func testBudgets() Budgets {
	return Budgets{History: 8000, Document: 24000, File: 50000}
}

func segmentLabels(p PromptContext) []string {
	labels := make([]string, len(p.Segments))
	for i, s := range p.Segments {
		labels[i] = s.Label
	}
	return labels
}

func findSegment(t *testing.T, p PromptContext, labelPrefix string) *Segment {
	t.Helper()
	for i := range p.Segments {
		if strings.HasPrefix(p.Segments[i].Label, labelPrefix) {
			return &p.Segments[i]
		}
	}
	return nil
}

func TestAssembleSegmentOrder(t *testing.T) {
	gw := &fakeGateway{chunks: []retrieval.Chunk{
		{FileID: "f1", ChunkIndex: 2, Text: "clause text", Score: 0.8},
	}}
	a := New(gw, testBudgets(), 12, 0.3)

	got, err := a.Assemble(context.Background(), Input{
		Mode:         ModeEdit,
		History:      []HistoryTurn{{Role: "user", Text: "shorten it"}},
		Document:     &DocumentSnapshot{Title: "Offer", Content: "full document body"},
		DirectFiles:  []FileText{{Filename: "style.md", Text: "style guide"}},
		IndexedFiles: []FileRef{{ID: "f1", Filename: "contract.pdf"}},
		Instruction:  "tighten the second paragraph",
	})
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}

	want := []string{"", "Conversation so far", "Current document: Offer", "Attached file: style.md", "Relevant excerpts", ""}
	if !reflect.DeepEqual(segmentLabels(got), want) {
		t.Errorf("segment order = %v, want %v", segmentLabels(got), want)
	}

	last := got.Segments[len(got.Segments)-1]
	if last.Role != "user" || last.Content != "tighten the second paragraph" {
		t.Errorf("instruction segment = %+v", last)
	}

	excerpts := findSegment(t, got, "Relevant excerpts")
	if excerpts == nil {
		t.Fatal("missing excerpts segment")
	}
	if !strings.Contains(excerpts.Content, "contract.pdf#2") || !strings.Contains(excerpts.Content, "score: 0.80") {
		t.Errorf("excerpt formatting: %q", excerpts.Content)
	}
	if gw.gotQuery != "tighten the second paragraph" {
		t.Errorf("gateway query = %q", gw.gotQuery)
	}
}

func TestAssembleQAModeNeverIncludesDocument(t *testing.T) {
	a := New(&fakeGateway{}, testBudgets(), 12, 0.3)

	got, err := a.Assemble(context.Background(), Input{
		Mode:        ModeQA,
		Document:    &DocumentSnapshot{Title: "Offer", Content: "secret document body"},
		Instruction: "what does the contract say about notice periods?",
	})
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	for _, s := range got.Segments {
		if strings.Contains(s.Content, "secret document body") {
			t.Errorf("qa mode leaked document content into segment %q", s.Label)
		}
	}
	if findSegment(t, got, "Current document") != nil {
		t.Error("qa mode produced a document segment")
	}
}

func TestAssembleEditModeIncludesDocument(t *testing.T) {
	a := New(&fakeGateway{}, testBudgets(), 12, 0.3)

	got, err := a.Assemble(context.Background(), Input{
		Mode:        ModeEdit,
		Document:    &DocumentSnapshot{Content: "document body"},
		Instruction: "revise",
	})
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	doc := findSegment(t, got, "Current document")
	if doc == nil || doc.Content != "document body" {
		t.Fatalf("document segment = %+v", doc)
	}
}

func TestAssembleHistoryKeepsMostRecent(t *testing.T) {
	budgets := testBudgets()
	budgets.History = 100
	a := New(&fakeGateway{}, budgets, 12, 0.3)

	turns := make([]HistoryTurn, 5)
	for i := range turns {
		marker := string(rune('A' + i))
		turns[i] = HistoryTurn{Role: "user", Text: strings.Repeat(marker, 500)}
	}

	got, err := a.Assemble(context.Background(), Input{
		Mode:        ModeQA,
		History:     turns,
		Instruction: "question",
	})
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	h := findSegment(t, got, "Conversation so far")
	if h == nil {
		t.Fatal("missing history segment")
	}
	if len(h.Content) > 100 {
		t.Errorf("history is %d chars, budget is 100", len(h.Content))
	}
	if !strings.Contains(h.Content, "E") {
		t.Error("history lost the most recent turn")
	}
	if strings.Contains(h.Content, "A") {
		t.Error("history kept the oldest turn instead of the newest")
	}
}

func TestAssembleDocumentTruncatedFromEnd(t *testing.T) {
	budgets := testBudgets()
	budgets.Document = 10
	a := New(&fakeGateway{}, budgets, 12, 0.3)

	got, err := a.Assemble(context.Background(), Input{
		Mode:        ModeEdit,
		Document:    &DocumentSnapshot{Content: "begin middle end"},
		Instruction: "revise",
	})
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	doc := findSegment(t, got, "Current document")
	if doc.Content != "begin midd" {
		t.Errorf("document truncation kept %q, want the beginning", doc.Content)
	}
}

func TestAssembleDirectFileFullText(t *testing.T) {
	gw := &fakeGateway{}
	a := New(gw, testBudgets(), 12, 0.3)

	text := strings.Repeat("z", 40000)
	got, err := a.Assemble(context.Background(), Input{
		Mode:        ModeQA,
		DirectFiles: []FileText{{Filename: "dump.txt", Text: text}},
		Instruction: "summarize the file",
	})
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	f := findSegment(t, got, "Attached file: dump.txt")
	if f == nil || f.Content != text {
		t.Error("direct file must be inlined in full")
	}
	if gw.calls != 0 {
		t.Errorf("gateway called %d times for a direct-only request, want 0", gw.calls)
	}
}

func TestAssemblePerFileChunkBudget(t *testing.T) {
	gw := &fakeGateway{}
	a := New(gw, testBudgets(), 12, 0.3)

	files := make([]FileRef, 6)
	for i := range files {
		files[i] = FileRef{ID: string(rune('a' + i)), Filename: "f"}
	}
	if _, err := a.Assemble(context.Background(), Input{
		Mode:         ModeQA,
		IndexedFiles: files,
		Instruction:  "q",
	}); err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	// 12 / 6 = 2, floored to the per-file minimum of 3.
	if gw.gotPerFile != 3 {
		t.Errorf("per-file top-k = %d, want 3", gw.gotPerFile)
	}
	if gw.calls != 1 {
		t.Errorf("gateway called %d times, want exactly 1", gw.calls)
	}

	if _, err := a.Assemble(context.Background(), Input{
		Mode:         ModeQA,
		IndexedFiles: files[:2],
		Instruction:  "q",
	}); err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if gw.gotPerFile != 6 {
		t.Errorf("per-file top-k = %d, want 12/2 = 6", gw.gotPerFile)
	}
}

func TestAssembleDegradesOnGatewayFailure(t *testing.T) {
	gw := &fakeGateway{err: errors.New("index offline")}
	a := New(gw, testBudgets(), 12, 0.3)

	got, err := a.Assemble(context.Background(), Input{
		Mode:         ModeQA,
		IndexedFiles: []FileRef{{ID: "f1", Filename: "contract.pdf"}},
		Instruction:  "what are the payment terms?",
	})
	if err != nil {
		t.Fatalf("Assemble should degrade, got error: %v", err)
	}
	if findSegment(t, got, "Relevant excerpts") != nil {
		t.Error("excerpt segment present despite gateway failure")
	}
	last := got.Segments[len(got.Segments)-1]
	if last.Content != "what are the payment terms?" {
		t.Error("instruction segment missing after degradation")
	}
}

func TestAssemblePreambleOverride(t *testing.T) {
	a := New(&fakeGateway{}, testBudgets(), 12, 0.3)

	got, err := a.Assemble(context.Background(), Input{
		Mode:        ModeEdit,
		Preamble:    "You are a contract lawyer.",
		Instruction: "revise",
	})
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if got.Segments[0].Content != "You are a contract lawyer." {
		t.Errorf("preamble = %q", got.Segments[0].Content)
	}

	got, err = a.Assemble(context.Background(), Input{Mode: ModeQA, Instruction: "q"})
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if got.Segments[0].Content != qaPreamble {
		t.Errorf("default qa preamble missing, got %q", got.Segments[0].Content)
	}
}

func TestAssembleDeterministic(t *testing.T) {
	gw := &fakeGateway{chunks: []retrieval.Chunk{{FileID: "f1", Text: "c", Score: 0.9}}}
	a := New(gw, testBudgets(), 12, 0.3)

	in := Input{
		Mode:         ModeEdit,
		History:      []HistoryTurn{{Role: "user", Text: "hello"}},
		Document:     &DocumentSnapshot{Title: "D", Content: "body"},
		IndexedFiles: []FileRef{{ID: "f1", Filename: "f.pdf"}},
		Instruction:  "revise",
	}
	first, err := a.Assemble(context.Background(), in)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	second, err := a.Assemble(context.Background(), in)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Error("same input produced different contexts")
	}
}

func TestAssembleRejectsEmptyInstruction(t *testing.T) {
	a := New(&fakeGateway{}, testBudgets(), 12, 0.3)
	if _, err := a.Assemble(context.Background(), Input{Mode: ModeQA, Instruction: "   "}); err == nil {
		t.Error("expected error for blank instruction")
	}
}

func TestAssembleRejectsUnknownMode(t *testing.T) {
	a := New(&fakeGateway{}, testBudgets(), 12, 0.3)

	for _, mode := range []Mode{"bogus", "EDIT", "Qa"} {
		if _, err := a.Assemble(context.Background(), Input{Mode: mode, Instruction: "revise"}); err == nil {
			t.Errorf("mode %q accepted, want error", mode)
		}
	}

	got, err := a.Assemble(context.Background(), Input{
		Mode:        "",
		Document:    &DocumentSnapshot{Title: "D", Content: "body"},
		Instruction: "revise",
	})
	if err != nil {
		t.Fatalf("empty mode should default to edit: %v", err)
	}
	if got.Mode != ModeEdit {
		t.Errorf("mode = %q, want %q", got.Mode, ModeEdit)
	}
}

func TestMessagesRendering(t *testing.T) {
	p := PromptContext{Segments: []Segment{
		{Role: "system", Content: "preamble"},
		{Label: "Current document", Role: "system", Content: "body"},
		{Role: "user", Content: "revise"},
	}}
	msgs := p.Messages()
	if len(msgs) != 3 {
		t.Fatalf("got %d messages, want 3", len(msgs))
	}
	if msgs[0].Content != "preamble" {
		t.Errorf("unlabeled segment altered: %q", msgs[0].Content)
	}
	if !strings.HasPrefix(msgs[1].Content, "## Current document") {
		t.Errorf("labeled segment missing heading: %q", msgs[1].Content)
	}
	if msgs[2].Role != "user" || msgs[2].Content != "revise" {
		t.Errorf("user message = %+v", msgs[2])
	}
}
