package api

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/lumenhq/lumen/internal/assemble"
	"github.com/lumenhq/lumen/internal/pipeline"
	"github.com/lumenhq/lumen/internal/retrieval"
	"github.com/lumenhq/lumen/internal/selection"
	"github.com/lumenhq/lumen/internal/storage"
)

// MCPSearcher abstracts semantic search over indexed files.
type MCPSearcher interface {
	Retrieve(ctx context.Context, fileIDs []string, query string, topKPerFile int, minScore float32) ([]retrieval.Chunk, error)
}

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Store    *storage.Store
	Comparer CompareRunner
	Applier  SelectionApplier
	Searcher MCPSearcher
	MinScore float32
}

// NewMCPServer creates an MCP server exposing the compare/apply flow
// and indexed-file search as tools.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"lumen",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("lumen — multi-provider draft comparison over encrypted documents and threads."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("compare_drafts",
			mcp.WithDescription("Send an instruction to every configured AI provider and return one draft card per provider."),
			mcp.WithString("thread_id", mcp.Description("Thread to run the comparison in"), mcp.Required()),
			mcp.WithString("message", mcp.Description("The instruction or question"), mcp.Required()),
			mcp.WithString("mode", mcp.Description("Assembly mode: edit (default) or qa")),
		),
		mcpCompareDrafts(deps),
	)

	s.AddTool(
		mcp.NewTool("apply_selection",
			mcp.WithDescription("Merge a chosen provider draft into its document, producing the next document version."),
			mcp.WithString("document_id", mcp.Description("Document to update"), mcp.Required()),
			mcp.WithString("response_id", mcp.Description("Provider response to apply"), mcp.Required()),
			mcp.WithString("merge_mode", mcp.Description("replace (default), append, or insert_at")),
			mcp.WithNumber("insert_at", mcp.Description("Paragraph index for insert_at")),
			mcp.WithString("thread_id", mcp.Description("Thread to record the applied text in")),
		),
		mcpApplySelection(deps),
	)

	s.AddTool(
		mcp.NewTool("search_files",
			mcp.WithDescription("Semantically search the indexed files attached to a thread."),
			mcp.WithString("thread_id", mcp.Description("Thread whose files to search"), mcp.Required()),
			mcp.WithString("query", mcp.Description("Search query"), mcp.Required()),
			mcp.WithNumber("limit", mcp.Description("Maximum chunks per file (default 5)")),
		),
		mcpSearchFiles(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"audit://recent",
			"Recent Audit Entries",
			mcp.WithResourceDescription("Last 20 audit log entries as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceAudit(deps),
	)

	return s
}

func mcpCompareDrafts(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		threadID, err := req.RequireString("thread_id")
		if err != nil {
			return mcpError("thread_id is required"), nil
		}
		message, err := req.RequireString("message")
		if err != nil {
			return mcpError("message is required"), nil
		}
		mode := req.GetString("mode", string(assemble.ModeEdit))

		res, err := deps.Comparer.Compare(ctx, pipeline.Input{
			ThreadID: threadID,
			Message:  message,
			Mode:     assemble.Mode(mode),
		})
		if err != nil {
			return mcpError(fmt.Sprintf("compare failed: %v", err)), nil
		}

		type card struct {
			ResponseID  string `json:"response_id,omitempty"`
			Provider    string `json:"provider"`
			OK          bool   `json:"ok"`
			Text        string `json:"text,omitempty"`
			ErrorDetail string `json:"error_detail,omitempty"`
			LatencyMS   int64  `json:"latency_ms"`
		}
		cards := make([]card, len(res.Cards))
		for i, c := range res.Cards {
			cards[i] = card{
				ResponseID:  c.ResponseID,
				Provider:    c.Provider,
				OK:          c.OK,
				Text:        c.Text,
				ErrorDetail: c.ErrorDetail,
				LatencyMS:   c.LatencyMS,
			}
		}
		b, err := json.Marshal(map[string]any{"request_id": res.RequestID, "cards": cards})
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpApplySelection(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		documentID, err := req.RequireString("document_id")
		if err != nil {
			return mcpError("document_id is required"), nil
		}
		responseID, err := req.RequireString("response_id")
		if err != nil {
			return mcpError("response_id is required"), nil
		}
		mergeMode := req.GetString("merge_mode", selection.MergeReplace)
		insertAt := req.GetInt("insert_at", 0)
		threadID := req.GetString("thread_id", "")

		version, err := deps.Applier.Apply(ctx, selection.Input{
			DocumentID: documentID,
			ResponseID: responseID,
			MergeMode:  mergeMode,
			InsertAt:   insertAt,
			ThreadID:   threadID,
			Actor:      "mcp",
		})
		if err != nil {
			return mcpError(fmt.Sprintf("apply failed: %v", err)), nil
		}
		return mcpText(fmt.Sprintf("Applied response %s to document %s, now at version %d", responseID, documentID, version)), nil
	}
}

func mcpSearchFiles(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		threadID, err := req.RequireString("thread_id")
		if err != nil {
			return mcpError("thread_id is required"), nil
		}
		query, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}
		limit := req.GetInt("limit", 5)
		if limit <= 0 {
			limit = 5
		}
		if limit > 50 {
			limit = 50
		}

		files, err := deps.Store.ListFiles(threadID)
		if err != nil {
			return mcpError(fmt.Sprintf("listing files: %v", err)), nil
		}
		var fileIDs []string
		for _, f := range files {
			if f.RetrievalMode == storage.RetrievalModeIndexed && f.IndexStatus == storage.IndexStatusReady {
				fileIDs = append(fileIDs, f.ID)
			}
		}
		if len(fileIDs) == 0 {
			return mcpText("[]"), nil
		}

		chunks, err := deps.Searcher.Retrieve(ctx, fileIDs, query, limit, deps.MinScore)
		if err != nil {
			return mcpError(fmt.Sprintf("search failed: %v", err)), nil
		}
		if len(chunks) == 0 {
			return mcpText("[]"), nil
		}

		type chunkResult struct {
			FileID     string  `json:"file_id"`
			ChunkIndex int     `json:"chunk_index"`
			Section    string  `json:"section,omitempty"`
			Text       string  `json:"text"`
			Score      float32 `json:"score"`
		}
		results := make([]chunkResult, len(chunks))
		for i, c := range chunks {
			results[i] = chunkResult{
				FileID:     c.FileID,
				ChunkIndex: c.ChunkIndex,
				Section:    c.Section,
				Text:       c.Text,
				Score:      c.Score,
			}
		}
		b, err := json.Marshal(results)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal results: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpResourceAudit(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		entries, err := deps.Store.ListAuditEntries(20)
		if err != nil {
			return nil, fmt.Errorf("failed to list audit entries: %w", err)
		}

		type auditSummary struct {
			ID        string `json:"id"`
			Actor     string `json:"actor"`
			Action    string `json:"action"`
			Target    string `json:"target"`
			CreatedAt string `json:"created_at"`
		}
		summaries := make([]auditSummary, len(entries))
		for i, a := range entries {
			summaries[i] = auditSummary{
				ID:        a.ID,
				Actor:     a.Actor,
				Action:    a.Action,
				Target:    a.Target,
				CreatedAt: a.CreatedAt.UTC().Format(time.RFC3339),
			}
		}

		b, err := json.Marshal(summaries)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal audit entries: %w", err)
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
