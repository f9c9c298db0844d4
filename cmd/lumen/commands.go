package main

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
)

// --- documents ---

var documentsCmd = &cobra.Command{
	Use:   "documents",
	Short: "Manage documents",
}

var documentsCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a document",
	RunE: func(cmd *cobra.Command, args []string) error {
		title, _ := cmd.Flags().GetString("title")
		file, _ := cmd.Flags().GetString("file")
		if title == "" {
			return fmt.Errorf("--title is required")
		}

		content := ""
		if file != "" {
			data, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("reading file: %w", err)
			}
			content = string(data)
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/documents", map[string]any{
			"title":   title,
			"content": content,
		})
		if err != nil {
			return err
		}

		var result struct {
			ID      string `json:"id"`
			Version int    `json:"version"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		printSuccess("Created document %s (version %d)", result.ID, result.Version)
		return nil
	},
}

var documentsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List documents",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/documents")
		if err != nil {
			return err
		}

		var docs []struct {
			ID        string `json:"id"`
			Title     string `json:"title"`
			Version   int    `json:"version"`
			UpdatedAt string `json:"updated_at"`
		}
		if err := decodeJSON(resp, &docs); err != nil {
			return err
		}
		if len(docs) == 0 {
			fmt.Println("No documents found.")
			return nil
		}
		for _, d := range docs {
			fmt.Printf("%s  v%-3d  %s  %s\n",
				colorize(colorCyan, d.ID[:8]), d.Version, d.UpdatedAt, d.Title)
		}
		return nil
	},
}

var documentsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a document's current content",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/documents/"+args[0])
		if err != nil {
			return err
		}

		var doc struct {
			Title   string `json:"title"`
			Content string `json:"content"`
			Version int    `json:"version"`
		}
		if err := decodeJSON(resp, &doc); err != nil {
			return err
		}
		fmt.Printf("%s (version %d)\n\n%s\n", colorize(colorBold, doc.Title), doc.Version, doc.Content)
		return nil
	},
}

var documentsSaveCmd = &cobra.Command{
	Use:   "save <id>",
	Short: "Save edited content as the next document version",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		file, _ := cmd.Flags().GetString("file")
		expected, _ := cmd.Flags().GetInt("expected-version")
		if file == "" {
			return fmt.Errorf("--file is required")
		}
		data, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("reading file: %w", err)
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.put(cmd.Context(), "/documents/"+args[0]+"/content", map[string]any{
			"content":          string(data),
			"expected_version": expected,
		})
		if err != nil {
			return err
		}

		var result struct {
			Version int `json:"version"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		printSuccess("Saved version %d", result.Version)
		return nil
	},
}

var documentsVersionsCmd = &cobra.Command{
	Use:   "versions <id>",
	Short: "List a document's version history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/documents/"+args[0]+"/versions")
		if err != nil {
			return err
		}

		var versions []struct {
			Version   int    `json:"version"`
			CreatedAt string `json:"created_at"`
		}
		if err := decodeJSON(resp, &versions); err != nil {
			return err
		}
		if len(versions) == 0 {
			fmt.Println("No versions yet.")
			return nil
		}
		for _, v := range versions {
			fmt.Printf("v%-3d  %s\n", v.Version, v.CreatedAt)
		}
		return nil
	},
}

func init() {
	documentsCreateCmd.Flags().String("title", "", "document title")
	documentsCreateCmd.Flags().String("file", "", "initial content file")
	documentsSaveCmd.Flags().String("file", "", "content file to save")
	documentsSaveCmd.Flags().Int("expected-version", 0, "version the edit was based on")
	documentsCmd.AddCommand(documentsCreateCmd)
	documentsCmd.AddCommand(documentsListCmd)
	documentsCmd.AddCommand(documentsShowCmd)
	documentsCmd.AddCommand(documentsSaveCmd)
	documentsCmd.AddCommand(documentsVersionsCmd)
}

// --- threads ---

var threadsCmd = &cobra.Command{
	Use:   "threads",
	Short: "Manage conversation threads",
}

var threadsCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a thread",
	RunE: func(cmd *cobra.Command, args []string) error {
		documentID, _ := cmd.Flags().GetString("document")
		title, _ := cmd.Flags().GetString("title")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/threads", map[string]any{
			"document_id": documentID,
			"title":       title,
		})
		if err != nil {
			return err
		}

		var result struct {
			ID string `json:"id"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		printSuccess("Created thread %s", result.ID)
		return nil
	},
}

var threadsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List threads",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/threads")
		if err != nil {
			return err
		}

		var threads []struct {
			ID         string `json:"id"`
			DocumentID string `json:"document_id"`
			Title      string `json:"title"`
			CreatedAt  string `json:"created_at"`
		}
		if err := decodeJSON(resp, &threads); err != nil {
			return err
		}
		if len(threads) == 0 {
			fmt.Println("No threads found.")
			return nil
		}
		for _, t := range threads {
			doc := "-"
			if t.DocumentID != "" {
				doc = t.DocumentID[:8]
			}
			fmt.Printf("%s  doc:%-8s  %s  %s\n",
				colorize(colorCyan, t.ID[:8]), doc, t.CreatedAt, t.Title)
		}
		return nil
	},
}

var threadsTurnsCmd = &cobra.Command{
	Use:   "turns <id>",
	Short: "Show a thread's transcript (sanitized)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/threads/"+args[0]+"/turns")
		if err != nil {
			return err
		}

		var turns []struct {
			Role      string `json:"role"`
			Text      string `json:"text"`
			CreatedAt string `json:"created_at"`
		}
		if err := decodeJSON(resp, &turns); err != nil {
			return err
		}
		for _, t := range turns {
			fmt.Printf("%s %s\n%s\n\n", colorize(colorBold, "["+t.Role+"]"), t.CreatedAt, t.Text)
		}
		return nil
	},
}

func init() {
	threadsCreateCmd.Flags().String("document", "", "document to attach the thread to")
	threadsCreateCmd.Flags().String("title", "", "thread title")
	threadsCmd.AddCommand(threadsCreateCmd)
	threadsCmd.AddCommand(threadsListCmd)
	threadsCmd.AddCommand(threadsTurnsCmd)
}

// --- files ---

var filesCmd = &cobra.Command{
	Use:   "files",
	Short: "Manage attached files",
}

var filesUploadCmd = &cobra.Command{
	Use:   "upload <thread-id> <path>",
	Short: "Attach a file to a thread",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[1])
		if err != nil {
			return fmt.Errorf("reading file: %w", err)
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/threads/"+args[0]+"/files", map[string]any{
			"filename": filepath.Base(args[1]),
			"content":  base64.StdEncoding.EncodeToString(data),
		})
		if err != nil {
			return err
		}

		var result struct {
			ID            string `json:"id"`
			RetrievalMode string `json:"retrieval_mode"`
			IndexStatus   string `json:"index_status"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		printSuccess("Uploaded file %s (%s, %s)", result.ID, result.RetrievalMode, result.IndexStatus)
		return nil
	},
}

var filesListCmd = &cobra.Command{
	Use:   "list <thread-id>",
	Short: "List a thread's attached files",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/threads/"+args[0]+"/files")
		if err != nil {
			return err
		}

		var files []struct {
			ID             string `json:"id"`
			Filename       string `json:"filename"`
			ExtractedChars int    `json:"extracted_chars"`
			RetrievalMode  string `json:"retrieval_mode"`
			IndexStatus    string `json:"index_status"`
		}
		if err := decodeJSON(resp, &files); err != nil {
			return err
		}
		if len(files) == 0 {
			fmt.Println("No files attached.")
			return nil
		}
		for _, f := range files {
			fmt.Printf("%s  %-8s %-8s %8d chars  %s\n",
				colorize(colorCyan, f.ID[:8]), f.RetrievalMode, f.IndexStatus, f.ExtractedChars, f.Filename)
		}
		return nil
	},
}

func init() {
	filesCmd.AddCommand(filesUploadCmd)
	filesCmd.AddCommand(filesListCmd)
}

// --- compare ---

var compareCmd = &cobra.Command{
	Use:   "compare <thread-id>",
	Short: "Send an instruction to all providers and show their drafts",
	Long: `Send an instruction to every configured AI provider and show one
draft card per provider.

Examples:
  lumen compare 4f1c2d3a -m "tighten the introduction"
  lumen compare 4f1c2d3a -m "what does clause 4 mean?" --mode qa`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		message, _ := cmd.Flags().GetString("message")
		mode, _ := cmd.Flags().GetString("mode")
		if message == "" {
			return fmt.Errorf("--message is required")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/ai/compare", map[string]any{
			"thread_id": args[0],
			"message":   message,
			"mode":      mode,
		})
		if err != nil {
			return err
		}

		var result struct {
			RequestID string `json:"request_id"`
			Cards     []struct {
				ResponseID  string `json:"response_id"`
				Provider    string `json:"provider"`
				OK          bool   `json:"ok"`
				Text        string `json:"text"`
				ErrorDetail string `json:"error_detail"`
				LatencyMS   int64  `json:"latency_ms"`
			} `json:"cards"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		for _, c := range result.Cards {
			header := fmt.Sprintf("%s (%dms)", c.Provider, c.LatencyMS)
			if c.OK {
				fmt.Printf("\n%s  %s\n%s\n", colorize(colorBold, header),
					colorize(colorCyan, c.ResponseID), c.Text)
			} else {
				fmt.Printf("\n%s\n", colorize(colorBold, header))
				printError("%s", c.ErrorDetail)
			}
		}
		fmt.Printf("\nrequest: %s\n", result.RequestID)
		return nil
	},
}

func init() {
	compareCmd.Flags().StringP("message", "m", "", "instruction or question")
	compareCmd.Flags().String("mode", "edit", "assembly mode: edit or qa")
}

// --- apply ---

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Apply a chosen draft to its document",
	RunE: func(cmd *cobra.Command, args []string) error {
		documentID, _ := cmd.Flags().GetString("document")
		responseID, _ := cmd.Flags().GetString("response")
		mergeMode, _ := cmd.Flags().GetString("merge")
		insertAt, _ := cmd.Flags().GetInt("insert-at")
		threadID, _ := cmd.Flags().GetString("thread")
		overrideFile, _ := cmd.Flags().GetString("override-file")
		if documentID == "" || responseID == "" {
			return fmt.Errorf("--document and --response are required")
		}

		overrideText := ""
		if overrideFile != "" {
			data, err := os.ReadFile(overrideFile)
			if err != nil {
				return fmt.Errorf("reading override file: %w", err)
			}
			overrideText = string(data)
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/ai/apply", map[string]any{
			"document_id":   documentID,
			"response_id":   responseID,
			"merge_mode":    mergeMode,
			"insert_at":     insertAt,
			"thread_id":     threadID,
			"override_text": overrideText,
		})
		if err != nil {
			return err
		}

		var result struct {
			Version int `json:"version"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			if strings.Contains(err.Error(), "409") {
				printWarning("Document changed underneath; re-read it and retry")
			}
			return err
		}
		printSuccess("Document %s now at version %d", documentID, result.Version)
		return nil
	},
}

func init() {
	applyCmd.Flags().String("document", "", "document to update")
	applyCmd.Flags().String("response", "", "provider response to apply")
	applyCmd.Flags().String("merge", "replace", "merge mode: replace, append or insert_at")
	applyCmd.Flags().Int("insert-at", 0, "paragraph index for insert_at")
	applyCmd.Flags().String("thread", "", "thread to record the applied text in")
	applyCmd.Flags().String("override-file", "", "file with hand-edited draft text")
}

// --- audit ---

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Show recent audit log entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), fmt.Sprintf("/audit?limit=%d", limit))
		if err != nil {
			return err
		}

		var entries []struct {
			Actor     string          `json:"actor"`
			Action    string          `json:"action"`
			Target    string          `json:"target"`
			Details   json.RawMessage `json:"details"`
			CreatedAt string          `json:"created_at"`
		}
		if err := decodeJSON(resp, &entries); err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Println("No audit entries.")
			return nil
		}
		for _, e := range entries {
			fmt.Printf("%s  %-6s %-16s %s  %s\n",
				e.CreatedAt, e.Actor, colorize(colorBold, e.Action), e.Target, string(e.Details))
		}
		return nil
	},
}

func init() {
	auditCmd.Flags().Int("limit", 50, "maximum number of entries")
}
