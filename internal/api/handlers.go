// Package api exposes the REST surface: threads, documents, file
// uploads, compare and apply. All bodies are JSON; document and turn
// text crosses this boundary as plaintext only after bearer auth, and
// is stored as ciphertext underneath.
package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/lumenhq/lumen/internal/assemble"
	"github.com/lumenhq/lumen/internal/ingest"
	"github.com/lumenhq/lumen/internal/pipeline"
	"github.com/lumenhq/lumen/internal/selection"
	"github.com/lumenhq/lumen/internal/storage"
	"github.com/lumenhq/lumen/internal/vault"
)

const maxRequestBodySize = 1 << 20 // 1MB
const maxUploadBodySize = 32 << 20 // 32MB, base64 inflates the raw file

// CompareRunner runs one compare request through the pipeline.
type CompareRunner interface {
	Compare(ctx context.Context, in pipeline.Input) (pipeline.Result, error)
}

// SelectionApplier merges a chosen draft into its document.
type SelectionApplier interface {
	Apply(ctx context.Context, in selection.Input) (int, error)
}

// Uploader ingests one uploaded file.
type Uploader interface {
	SaveUpload(ctx context.Context, threadID, filename string, data []byte) (storage.AttachedFile, error)
}

type Deps struct {
	Store    *storage.Store
	Cipher   vault.Cipher
	KeyID    string
	Token    string
	Comparer CompareRunner
	Applier  SelectionApplier
	Ingestor Uploader
}

func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Post("/threads", handleCreateThread(deps))
		r.Get("/threads", handleListThreads(deps))
		r.Get("/threads/{id}", handleGetThread(deps))
		r.Get("/threads/{id}/turns", handleListTurns(deps))
		r.Post("/threads/{id}/files", handleUploadFile(deps))
		r.Get("/threads/{id}/files", handleListFiles(deps))
		r.Get("/files/{id}", handleGetFile(deps))

		r.Post("/documents", handleCreateDocument(deps))
		r.Get("/documents", handleListDocuments(deps))
		r.Get("/documents/{id}", handleGetDocument(deps))
		r.Put("/documents/{id}/content", handleSaveDocument(deps))
		r.Get("/documents/{id}/versions", handleListVersions(deps))
		r.Get("/documents/{id}/versions/{version}", handleGetVersion(deps))

		r.Post("/ai/compare", handleCompare(deps))
		r.Post("/ai/apply", handleApply(deps))

		r.Get("/audit", handleListAudit(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

type threadResponse struct {
	ID         string `json:"id"`
	DocumentID string `json:"document_id,omitempty"`
	Title      string `json:"title,omitempty"`
	CreatedAt  string `json:"created_at"`
}

func toThreadResponse(t storage.Thread) threadResponse {
	return threadResponse{
		ID:         t.ID,
		DocumentID: t.DocumentID,
		Title:      t.Title,
		CreatedAt:  t.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func handleCreateThread(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req struct {
			DocumentID string `json:"document_id"`
			Title      string `json:"title"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		if req.DocumentID != "" {
			if _, err := deps.Store.GetDocument(req.DocumentID); errors.Is(err, storage.ErrNotFound) {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "document %s does not exist", req.DocumentID)
				return
			} else if err != nil {
				httpError(w, http.StatusInternalServerError, "api_error", "checking document: %v", err)
				return
			}
		}

		t := storage.Thread{
			ID:         uuid.New().String(),
			DocumentID: req.DocumentID,
			Title:      req.Title,
			CreatedAt:  time.Now().UTC(),
		}
		if err := deps.Store.CreateThread(t); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "creating thread: %v", err)
			return
		}
		writeJSON(w, http.StatusCreated, toThreadResponse(t))
	}
}

func handleListThreads(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 20, 100)
		threads, err := deps.Store.ListThreads(limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "listing threads: %v", err)
			return
		}
		out := make([]threadResponse, 0, len(threads))
		for _, t := range threads {
			out = append(out, toThreadResponse(t))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func handleGetThread(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t, err := deps.Store.GetThread(chi.URLParam(r, "id"))
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "thread not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "getting thread: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, toThreadResponse(t))
	}
}

// handleListTurns returns the sanitized transcript. Raw ciphertext
// never leaves the server through this endpoint.
func handleListTurns(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		threadID := chi.URLParam(r, "id")
		if _, err := deps.Store.GetThread(threadID); errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "thread not found")
			return
		} else if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "getting thread: %v", err)
			return
		}

		turns, err := deps.Store.ListTurns(threadID)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "listing turns: %v", err)
			return
		}

		type turnResponse struct {
			ID        string `json:"id"`
			Role      string `json:"role"`
			Text      string `json:"text"`
			CreatedAt string `json:"created_at"`
		}
		out := make([]turnResponse, 0, len(turns))
		for _, t := range turns {
			text, err := deps.Cipher.Decrypt(r.Context(), deps.KeyID, t.SanitizedEnc)
			if err != nil {
				httpError(w, http.StatusInternalServerError, "api_error", "decrypting turn %s: %v", t.ID, err)
				return
			}
			out = append(out, turnResponse{
				ID: t.ID, Role: t.Role, Text: text,
				CreatedAt: t.CreatedAt.UTC().Format(time.RFC3339),
			})
		}
		writeJSON(w, http.StatusOK, out)
	}
}

type fileResponse struct {
	ID             string `json:"id"`
	ThreadID       string `json:"thread_id"`
	Filename       string `json:"filename"`
	ExtractedChars int    `json:"extracted_chars"`
	RetrievalMode  string `json:"retrieval_mode"`
	IndexStatus    string `json:"index_status"`
	IndexError     string `json:"index_error,omitempty"`
	CreatedAt      string `json:"created_at"`
}

func toFileResponse(f storage.AttachedFile) fileResponse {
	return fileResponse{
		ID:             f.ID,
		ThreadID:       f.ThreadID,
		Filename:       f.Filename,
		ExtractedChars: f.ExtractedChars,
		RetrievalMode:  f.RetrievalMode,
		IndexStatus:    f.IndexStatus,
		IndexError:     f.IndexError,
		CreatedAt:      f.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func handleUploadFile(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxUploadBodySize)
		defer r.Body.Close()

		threadID := chi.URLParam(r, "id")
		if _, err := deps.Store.GetThread(threadID); errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "thread not found")
			return
		} else if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "getting thread: %v", err)
			return
		}

		var req struct {
			Filename string `json:"filename"`
			Content  string `json:"content"` // base64
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Filename == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "filename is required")
			return
		}
		data, err := base64.StdEncoding.DecodeString(req.Content)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid base64 content")
			return
		}

		file, err := deps.Ingestor.SaveUpload(r.Context(), threadID, req.Filename, data)
		if err != nil {
			if errors.Is(err, ingest.ErrUnsupportedContent) {
				httpError(w, http.StatusUnprocessableEntity, "invalid_request_error", "unsupported file content: %v", err)
				return
			}
			httpError(w, http.StatusInternalServerError, "api_error", "ingesting file: %v", err)
			return
		}
		writeJSON(w, http.StatusCreated, toFileResponse(file))
	}
}

func handleListFiles(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		files, err := deps.Store.ListFiles(chi.URLParam(r, "id"))
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "listing files: %v", err)
			return
		}
		out := make([]fileResponse, 0, len(files))
		for _, f := range files {
			out = append(out, toFileResponse(f))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func handleGetFile(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f, err := deps.Store.GetFile(chi.URLParam(r, "id"))
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "file not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "getting file: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, toFileResponse(f))
	}
}

type documentResponse struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Content   string `json:"content,omitempty"`
	Version   int    `json:"version"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

func handleCreateDocument(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxUploadBodySize)
		defer r.Body.Close()

		var req struct {
			Title   string `json:"title"`
			Content string `json:"content"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Title == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "title is required")
			return
		}

		contentEnc := ""
		if req.Content != "" {
			var err error
			contentEnc, err = deps.Cipher.Encrypt(r.Context(), deps.KeyID, req.Content)
			if err != nil {
				httpError(w, http.StatusInternalServerError, "api_error", "encrypting content: %v", err)
				return
			}
		}

		d := storage.Document{
			ID:         uuid.New().String(),
			Title:      req.Title,
			ContentEnc: contentEnc,
			CreatedAt:  time.Now().UTC(),
		}
		if err := deps.Store.CreateDocument(d); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "creating document: %v", err)
			return
		}
		writeJSON(w, http.StatusCreated, documentResponse{
			ID: d.ID, Title: d.Title, Content: req.Content, Version: 0,
			CreatedAt: d.CreatedAt.Format(time.RFC3339),
			UpdatedAt: d.CreatedAt.Format(time.RFC3339),
		})
	}
}

func handleListDocuments(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 20, 100)
		docs, err := deps.Store.ListDocuments(limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "listing documents: %v", err)
			return
		}
		// Content omitted from list views.
		out := make([]documentResponse, 0, len(docs))
		for _, d := range docs {
			out = append(out, documentResponse{
				ID: d.ID, Title: d.Title, Version: d.Version,
				CreatedAt: d.CreatedAt.UTC().Format(time.RFC3339),
				UpdatedAt: d.UpdatedAt.UTC().Format(time.RFC3339),
			})
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func handleGetDocument(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d, err := deps.Store.GetDocument(chi.URLParam(r, "id"))
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "document not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "getting document: %v", err)
			return
		}
		content := ""
		if d.ContentEnc != "" {
			content, err = deps.Cipher.Decrypt(r.Context(), deps.KeyID, d.ContentEnc)
			if err != nil {
				httpError(w, http.StatusInternalServerError, "api_error", "decrypting content: %v", err)
				return
			}
		}
		writeJSON(w, http.StatusOK, documentResponse{
			ID: d.ID, Title: d.Title, Content: content, Version: d.Version,
			CreatedAt: d.CreatedAt.UTC().Format(time.RFC3339),
			UpdatedAt: d.UpdatedAt.UTC().Format(time.RFC3339),
		})
	}
}

// handleSaveDocument writes user-edited content as the next version
// under the same optimistic check an apply uses, so manual edits and
// applied drafts can never silently overwrite each other.
func handleSaveDocument(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxUploadBodySize)
		defer r.Body.Close()

		id := chi.URLParam(r, "id")
		var req struct {
			Content         string `json:"content"`
			ExpectedVersion int    `json:"expected_version"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		contentEnc, err := deps.Cipher.Encrypt(r.Context(), deps.KeyID, req.Content)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "encrypting content: %v", err)
			return
		}

		newVersion, err := deps.Store.ApplyVersion(storage.VersionWrite{
			DocumentID:      id,
			ExpectedVersion: req.ExpectedVersion,
			NewContentEnc:   contentEnc,
			Audit: &storage.AuditEntry{
				ID:     uuid.New().String(),
				Actor:  "api",
				Action: "save_document",
				Target: id,
			},
		})
		switch {
		case errors.Is(err, storage.ErrNotFound):
			httpError(w, http.StatusNotFound, "not_found", "document not found")
			return
		case errors.Is(err, storage.ErrConflict):
			httpError(w, http.StatusConflict, "conflict", "document changed since version %d, re-read and retry", req.ExpectedVersion)
			return
		case err != nil:
			httpError(w, http.StatusInternalServerError, "api_error", "saving document: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"version": newVersion})
	}
}

func handleListVersions(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if _, err := deps.Store.GetDocument(id); errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "document not found")
			return
		} else if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "getting document: %v", err)
			return
		}

		versions, err := deps.Store.ListVersions(id)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "listing versions: %v", err)
			return
		}
		type versionResponse struct {
			Version   int    `json:"version"`
			CreatedAt string `json:"created_at"`
		}
		out := make([]versionResponse, 0, len(versions))
		for _, v := range versions {
			out = append(out, versionResponse{Version: v.Version, CreatedAt: v.CreatedAt.UTC().Format(time.RFC3339)})
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func handleGetVersion(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		version, err := strconv.Atoi(chi.URLParam(r, "version"))
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "version must be an integer")
			return
		}
		v, err := deps.Store.GetVersion(id, version)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "version not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "getting version: %v", err)
			return
		}
		content, err := deps.Cipher.Decrypt(r.Context(), deps.KeyID, v.ContentEnc)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "decrypting version: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"version":    v.Version,
			"content":    content,
			"created_at": v.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
}

type compareCard struct {
	ResponseID   string `json:"response_id,omitempty"`
	Provider     string `json:"provider"`
	OK           bool   `json:"ok"`
	Text         string `json:"text,omitempty"`
	ErrorDetail  string `json:"error_detail,omitempty"`
	LatencyMS    int64  `json:"latency_ms"`
	InputTokens  *int   `json:"input_tokens,omitempty"`
	OutputTokens *int   `json:"output_tokens,omitempty"`
}

func handleCompare(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req struct {
			ThreadID       string `json:"thread_id"`
			Message        string `json:"message"`
			Mode           string `json:"mode"`
			SystemOverride string `json:"system_override"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.ThreadID == "" || req.Message == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "thread_id and message are required")
			return
		}
		mode := assemble.Mode(req.Mode)
		if mode == "" {
			mode = assemble.ModeEdit
		}
		if mode != assemble.ModeEdit && mode != assemble.ModeQA {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "mode must be %q or %q", assemble.ModeEdit, assemble.ModeQA)
			return
		}

		res, err := deps.Comparer.Compare(r.Context(), pipeline.Input{
			ThreadID:       req.ThreadID,
			Message:        req.Message,
			Mode:           mode,
			SystemOverride: req.SystemOverride,
		})
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "thread not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "compare failed: %v", err)
			return
		}

		cards := make([]compareCard, len(res.Cards))
		for i, c := range res.Cards {
			cards[i] = compareCard{
				ResponseID:   c.ResponseID,
				Provider:     c.Provider,
				OK:           c.OK,
				Text:         c.Text,
				ErrorDetail:  c.ErrorDetail,
				LatencyMS:    c.LatencyMS,
				InputTokens:  c.InputTokens,
				OutputTokens: c.OutputTokens,
			}
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"request_id": res.RequestID,
			"turn_id":    res.TurnID,
			"cards":      cards,
		})
	}
}

func handleApply(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxUploadBodySize)
		defer r.Body.Close()

		var req struct {
			DocumentID   string `json:"document_id"`
			ResponseID   string `json:"response_id"`
			MergeMode    string `json:"merge_mode"`
			InsertAt     int    `json:"insert_at"`
			OverrideText string `json:"override_text"`
			ThreadID     string `json:"thread_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.DocumentID == "" || req.ResponseID == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "document_id and response_id are required")
			return
		}
		if req.MergeMode == "" {
			req.MergeMode = selection.MergeReplace
		}

		version, err := deps.Applier.Apply(r.Context(), selection.Input{
			DocumentID:   req.DocumentID,
			ResponseID:   req.ResponseID,
			MergeMode:    req.MergeMode,
			InsertAt:     req.InsertAt,
			OverrideText: req.OverrideText,
			ThreadID:     req.ThreadID,
			Actor:        "api",
		})
		switch {
		case errors.Is(err, storage.ErrNotFound):
			httpError(w, http.StatusNotFound, "not_found", "document or response not found")
			return
		case errors.Is(err, storage.ErrConflict):
			httpError(w, http.StatusConflict, "conflict", "document changed underneath, re-read and retry")
			return
		case err != nil:
			httpError(w, http.StatusBadRequest, "invalid_request_error", "apply failed: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"version": version})
	}
}

func handleListAudit(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 50, 500)
		entries, err := deps.Store.ListAuditEntries(limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "listing audit entries: %v", err)
			return
		}
		type auditResponse struct {
			ID        string          `json:"id"`
			Actor     string          `json:"actor"`
			Action    string          `json:"action"`
			Target    string          `json:"target"`
			Details   json.RawMessage `json:"details"`
			CreatedAt string          `json:"created_at"`
		}
		out := make([]auditResponse, 0, len(entries))
		for _, a := range entries {
			details := a.DetailsJSON
			if details == "" {
				details = "{}"
			}
			out = append(out, auditResponse{
				ID: a.ID, Actor: a.Actor, Action: a.Action, Target: a.Target,
				Details:   json.RawMessage(details),
				CreatedAt: a.CreatedAt.UTC().Format(time.RFC3339),
			})
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
