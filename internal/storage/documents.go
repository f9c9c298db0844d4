package storage

import (
	"database/sql"
	"fmt"
	"time"
)

func (s *Store) CreateDocument(d Document) error {
	now := d.CreatedAt
	if now.IsZero() {
		now = time.Now().UTC()
	}
	_, err := s.db.Exec(`
		INSERT INTO documents (id, title, content_enc, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		d.ID, d.Title, d.ContentEnc, d.Version,
		now.UTC().Format(time.RFC3339), now.UTC().Format(time.RFC3339),
	)
	return err
}

func (s *Store) GetDocument(id string) (Document, error) {
	var d Document
	var createdAt, updatedAt string
	err := s.db.QueryRow(`
		SELECT id, title, content_enc, version, created_at, updated_at
		FROM documents WHERE id = ?`, id,
	).Scan(&d.ID, &d.Title, &d.ContentEnc, &d.Version, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return Document{}, ErrNotFound
	}
	if err != nil {
		return Document{}, err
	}
	if d.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return Document{}, fmt.Errorf("parsing created_at: %w", err)
	}
	if d.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return Document{}, fmt.Errorf("parsing updated_at: %w", err)
	}
	return d, nil
}

func (s *Store) ListDocuments(limit int) ([]Document, error) {
	rows, err := s.db.Query(`
		SELECT id, title, content_enc, version, created_at, updated_at
		FROM documents ORDER BY updated_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Document
	for rows.Next() {
		var d Document
		var createdAt, updatedAt string
		if err := rows.Scan(&d.ID, &d.Title, &d.ContentEnc, &d.Version, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		if d.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		if d.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
			return nil, fmt.Errorf("parsing updated_at: %w", err)
		}
		results = append(results, d)
	}
	return results, rows.Err()
}

// ListVersions returns a document's version history, newest first.
// Content is omitted; fetch a single version for the snapshot body.
func (s *Store) ListVersions(documentID string) ([]DocumentVersion, error) {
	rows, err := s.db.Query(`
		SELECT document_id, version, created_at
		FROM document_versions WHERE document_id = ? ORDER BY version DESC`, documentID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []DocumentVersion
	for rows.Next() {
		var v DocumentVersion
		var createdAt string
		if err := rows.Scan(&v.DocumentID, &v.Version, &createdAt); err != nil {
			return nil, err
		}
		if v.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		results = append(results, v)
	}
	return results, rows.Err()
}

func (s *Store) GetVersion(documentID string, version int) (DocumentVersion, error) {
	var v DocumentVersion
	var createdAt string
	err := s.db.QueryRow(`
		SELECT document_id, version, content_enc, created_at
		FROM document_versions WHERE document_id = ? AND version = ?`,
		documentID, version,
	).Scan(&v.DocumentID, &v.Version, &v.ContentEnc, &createdAt)
	if err == sql.ErrNoRows {
		return DocumentVersion{}, ErrNotFound
	}
	if err != nil {
		return DocumentVersion{}, err
	}
	if v.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return DocumentVersion{}, fmt.Errorf("parsing created_at: %w", err)
	}
	return v, nil
}

// VersionWrite is the unit of work for bumping a document. All rows
// land in one transaction so a version number can never exist without
// its snapshot, selection and audit records.
type VersionWrite struct {
	DocumentID      string
	ExpectedVersion int
	NewContentEnc   string
	Selection       *AISelection // nil for direct saves
	Audit           *AuditEntry  // nil to skip the audit row
	Turn            *Turn        // nil to skip the thread write-back
}

// ApplyVersion bumps the document from ExpectedVersion to
// ExpectedVersion+1 and writes the snapshot plus any companion rows
// atomically. Returns ErrConflict when another writer got there first
// and ErrNotFound when the document does not exist.
func (s *Store) ApplyVersion(w VersionWrite) (int, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("beginning apply transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format(time.RFC3339)
	newVersion := w.ExpectedVersion + 1

	res, err := tx.Exec(`
		UPDATE documents SET content_enc = ?, version = ?, updated_at = ?
		WHERE id = ? AND version = ?`,
		w.NewContentEnc, newVersion, now, w.DocumentID, w.ExpectedVersion,
	)
	if err != nil {
		return 0, fmt.Errorf("updating document: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n == 0 {
		// Distinguish a missing document from a lost race.
		var exists int
		if err := tx.QueryRow(`SELECT COUNT(*) FROM documents WHERE id = ?`, w.DocumentID).Scan(&exists); err != nil {
			return 0, err
		}
		if exists == 0 {
			return 0, ErrNotFound
		}
		return 0, ErrConflict
	}

	if _, err := tx.Exec(`
		INSERT INTO document_versions (document_id, version, content_enc, created_at)
		VALUES (?, ?, ?, ?)`,
		w.DocumentID, newVersion, w.NewContentEnc, now,
	); err != nil {
		return 0, fmt.Errorf("inserting version row: %w", err)
	}

	if w.Selection != nil {
		sel := w.Selection
		if _, err := tx.Exec(`
			INSERT INTO ai_selections (id, request_id, response_id, document_id, applied_version, merge_mode, overridden, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			sel.ID, sel.RequestID, sel.ResponseID, w.DocumentID, newVersion,
			sel.MergeMode, boolToInt(sel.Overridden), now,
		); err != nil {
			return 0, fmt.Errorf("inserting selection row: %w", err)
		}
	}

	if w.Audit != nil {
		a := w.Audit
		if _, err := tx.Exec(`
			INSERT INTO audit_log (id, actor, action, target, details_json, created_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			a.ID, a.Actor, a.Action, a.Target, a.DetailsJSON, now,
		); err != nil {
			return 0, fmt.Errorf("inserting audit row: %w", err)
		}
	}

	if w.Turn != nil {
		t := w.Turn
		if _, err := tx.Exec(`
			INSERT INTO chat_turns (id, thread_id, role, raw_enc, sanitized_enc, content_hash, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			t.ID, t.ThreadID, t.Role, t.RawEnc, t.SanitizedEnc, t.ContentHash, now,
		); err != nil {
			return 0, fmt.Errorf("inserting turn row: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing apply: %w", err)
	}
	return newVersion, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
