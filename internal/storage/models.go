package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when an optimistic version check fails
// because another writer bumped the document first. Callers may
// re-read and retry.
var ErrConflict = errors.New("version conflict")

// Retrieval modes for attached files. The mode is decided once at
// ingestion from the extracted character count and persisted; no other
// code path derives it.
const (
	RetrievalModeDirect  = "direct"
	RetrievalModeIndexed = "indexed"
)

// Index status lifecycle for attached files.
const (
	IndexStatusPending = "pending"
	IndexStatusReady   = "ready"
	IndexStatusError   = "error"
)

// Thread is a conversation, optionally linked to one document.
type Thread struct {
	ID         string
	DocumentID string // empty when the thread has no document
	Title      string
	CreatedAt  time.Time
}

// Turn is one message in a thread. Text is stored dual-encrypted: the
// raw form and the sanitized form are both ciphertext, and the hash is
// SHA-256 over the raw plaintext.
type Turn struct {
	ID           string
	ThreadID     string
	Role         string // "user", "assistant", "system"
	RawEnc       string
	SanitizedEnc string
	ContentHash  string
	CreatedAt    time.Time
}

// Document is the current state of a drafted document. Content is
// ciphertext; Version counts applied revisions starting at 0.
type Document struct {
	ID         string
	Title      string
	ContentEnc string
	Version    int
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// DocumentVersion is an immutable snapshot created by each apply.
type DocumentVersion struct {
	DocumentID string
	Version    int
	ContentEnc string
	CreatedAt  time.Time
}

// AttachedFile is an uploaded file scoped to a thread.
type AttachedFile struct {
	ID             string
	ThreadID       string
	Filename       string
	ExtractedText  string
	ExtractedChars int
	RetrievalMode  string
	IndexStatus    string
	IndexError     string
	CreatedAt      time.Time
}

// AIRequest records one fan-out dispatch.
type AIRequest struct {
	ID        string
	ThreadID  string
	TurnID    string
	CreatedAt time.Time
}

// AIResponse records one provider outcome for a request. Text is
// ciphertext. Token counts are nil when the provider did not report
// them; absent is not zero.
type AIResponse struct {
	ID           string
	RequestID    string
	Provider     string
	TextEnc      string
	OK           bool
	ErrorDetail  string
	LatencyMS    int64
	InputTokens  *int
	OutputTokens *int
	CreatedAt    time.Time
}

// AISelection records which response was applied to which document
// version.
type AISelection struct {
	ID             string
	RequestID      string
	ResponseID     string
	DocumentID     string
	AppliedVersion int
	MergeMode      string
	Overridden     bool // true when the caller supplied edited text
	CreatedAt      time.Time
}

// AuditEntry is one append-only audit log row.
type AuditEntry struct {
	ID          string
	Actor       string
	Action      string
	Target      string
	DetailsJSON string
	CreatedAt   time.Time
}

// Job is a queued background task (file indexing).
type Job struct {
	ID          string
	Type        string
	PayloadJSON string
	Status      string // "pending", "running", "completed", "failed"
	Attempts    int
	MaxAttempts int
	RunAfter    time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastError   string
}
