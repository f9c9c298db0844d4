package assemble

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/lumenhq/lumen/internal/retrieval"
)

// Budgets caps each context segment in characters.
type Budgets struct {
	History  int
	Document int
	File     int
}

// HistoryTurn is one prior turn, already decrypted to its sanitized
// text by the caller.
type HistoryTurn struct {
	Role string
	Text string
}

// DocumentSnapshot is the linked document's decrypted state at
// assembly time.
type DocumentSnapshot struct {
	Title   string
	Content string
}

// FileText is a direct-mode file inlined into the context.
type FileText struct {
	Filename string
	Text     string
}

// FileRef is an indexed file available through the retrieval gateway.
type FileRef struct {
	ID       string
	Filename string
}

// Input is the value snapshot the assembler works from. Everything is
// plaintext already; the assembler never touches storage or ciphers.
type Input struct {
	Mode         Mode
	Preamble     string // optional override of the mode default
	History      []HistoryTurn
	Document     *DocumentSnapshot
	DirectFiles  []FileText
	IndexedFiles []FileRef
	Instruction  string
}

// Assembler builds prompt contexts under per-segment budgets, pulling
// chunks for indexed files through the retrieval gateway.
type Assembler struct {
	gateway  retrieval.Gateway
	budgets  Budgets
	topK     int
	minScore float32
	logger   *slog.Logger
}

func New(gateway retrieval.Gateway, budgets Budgets, topK int, minScore float32) *Assembler {
	return &Assembler{
		gateway:  gateway,
		budgets:  budgets,
		topK:     topK,
		minScore: minScore,
		logger:   slog.Default(),
	}
}

// minChunksPerFile guarantees every indexed file is represented when
// the top-k split across many files would starve some of them.
const minChunksPerFile = 3

// Assemble produces the ordered labeled segments for one request.
// Retrieval is best effort: a gateway failure drops the excerpt
// segment and logs, it never fails the request.
func (a *Assembler) Assemble(ctx context.Context, in Input) (PromptContext, error) {
	if strings.TrimSpace(in.Instruction) == "" {
		return PromptContext{}, fmt.Errorf("instruction must not be empty")
	}
	mode := in.Mode
	if mode == "" {
		mode = ModeEdit
	}
	if mode != ModeEdit && mode != ModeQA {
		return PromptContext{}, fmt.Errorf("unknown mode %q", mode)
	}

	var segments []Segment

	preamble := in.Preamble
	if preamble == "" {
		preamble = preambleFor(mode)
	}
	segments = append(segments, Segment{Role: "system", Content: preamble})

	if len(in.History) > 0 {
		if h := renderHistory(in.History, a.budgets.History); h != "" {
			segments = append(segments, Segment{
				Label: "Conversation so far", Role: "system", Content: h,
			})
		}
	}

	if mode == ModeEdit && in.Document != nil {
		content := truncateTail(in.Document.Content, a.budgets.Document)
		label := "Current document"
		if in.Document.Title != "" {
			label = fmt.Sprintf("Current document: %s", in.Document.Title)
		}
		segments = append(segments, Segment{Label: label, Role: "system", Content: content})
	}

	for _, f := range in.DirectFiles {
		segments = append(segments, Segment{
			Label:   fmt.Sprintf("Attached file: %s", f.Filename),
			Role:    "system",
			Content: truncateTail(f.Text, a.budgets.File),
		})
	}

	if len(in.IndexedFiles) > 0 {
		if excerpt := a.retrieveExcerpts(ctx, in); excerpt != "" {
			segments = append(segments, Segment{
				Label: "Relevant excerpts", Role: "system", Content: excerpt,
			})
		}
	}

	segments = append(segments, Segment{Role: "user", Content: in.Instruction})

	return PromptContext{Mode: mode, Segments: segments}, nil
}

// retrieveExcerpts makes the single gateway call for this request,
// splitting the chunk budget evenly across the indexed files.
func (a *Assembler) retrieveExcerpts(ctx context.Context, in Input) string {
	perFile := a.topK / len(in.IndexedFiles)
	if perFile < minChunksPerFile {
		perFile = minChunksPerFile
	}

	fileIDs := make([]string, len(in.IndexedFiles))
	names := make(map[string]string, len(in.IndexedFiles))
	for i, f := range in.IndexedFiles {
		fileIDs[i] = f.ID
		names[f.ID] = f.Filename
	}

	chunks, err := a.gateway.Retrieve(ctx, fileIDs, in.Instruction, perFile, a.minScore)
	if err != nil {
		a.logger.Warn("retrieval degraded, assembling without excerpts", "error", err)
		return ""
	}
	if len(chunks) == 0 {
		return ""
	}

	var b strings.Builder
	for i, c := range chunks {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "(score: %.2f, source: %s#%d)\n%s", c.Score, names[c.FileID], c.ChunkIndex, c.Text)
	}
	return b.String()
}

// renderHistory joins turns oldest to newest, then trims from the
// oldest end until the budget holds. The most recent turns always
// survive.
func renderHistory(turns []HistoryTurn, budget int) string {
	lines := make([]string, 0, len(turns))
	for _, t := range turns {
		lines = append(lines, fmt.Sprintf("%s: %s", t.Role, t.Text))
	}

	start := 0
	total := joinedLen(lines)
	for start < len(lines)-1 && total > budget {
		total -= len(lines[start]) + 1
		start++
	}
	joined := strings.Join(lines[start:], "\n")
	if budget > 0 && len(joined) > budget {
		// Even the newest turn alone is over budget: keep its tail.
		runes := []rune(joined)
		if len(runes) > budget {
			joined = string(runes[len(runes)-budget:])
		}
	}
	return joined
}

func joinedLen(lines []string) int {
	total := 0
	for i, l := range lines {
		if i > 0 {
			total++
		}
		total += len(l)
	}
	return total
}

// truncateTail keeps the beginning of s up to budget runes.
func truncateTail(s string, budget int) string {
	if budget <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= budget {
		return s
	}
	return string(runes[:budget])
}
