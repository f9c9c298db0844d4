package storage

import (
	"database/sql"
	"fmt"
	"time"
)

func (s *Store) InsertRequest(r AIRequest) error {
	_, err := s.db.Exec(`
		INSERT INTO ai_requests (id, thread_id, turn_id, created_at)
		VALUES (?, ?, ?, ?)`,
		r.ID, r.ThreadID, r.TurnID, r.CreatedAt.UTC().Format(time.RFC3339),
	)
	return err
}

func (s *Store) GetRequest(id string) (AIRequest, error) {
	var r AIRequest
	var createdAt string
	err := s.db.QueryRow(`
		SELECT id, thread_id, turn_id, created_at FROM ai_requests WHERE id = ?`, id,
	).Scan(&r.ID, &r.ThreadID, &r.TurnID, &createdAt)
	if err == sql.ErrNoRows {
		return AIRequest{}, ErrNotFound
	}
	if err != nil {
		return AIRequest{}, err
	}
	if r.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return AIRequest{}, fmt.Errorf("parsing created_at: %w", err)
	}
	return r, nil
}

func (s *Store) InsertResponse(r AIResponse) error {
	_, err := s.db.Exec(`
		INSERT INTO ai_responses (id, request_id, provider, text_enc, ok, error_detail, latency_ms, input_tokens, output_tokens, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.RequestID, r.Provider, r.TextEnc, boolToInt(r.OK), r.ErrorDetail,
		r.LatencyMS, nullableInt(r.InputTokens), nullableInt(r.OutputTokens),
		r.CreatedAt.UTC().Format(time.RFC3339),
	)
	return err
}

func (s *Store) GetResponse(id string) (AIResponse, error) {
	rows, err := s.db.Query(responseColumns+` WHERE id = ?`, id)
	if err != nil {
		return AIResponse{}, err
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return AIResponse{}, err
		}
		return AIResponse{}, ErrNotFound
	}
	return scanResponse(rows)
}

// ListResponses returns all recorded outcomes for a request in
// provider dispatch order.
func (s *Store) ListResponses(requestID string) ([]AIResponse, error) {
	rows, err := s.db.Query(responseColumns+` WHERE request_id = ? ORDER BY created_at ASC, id ASC`, requestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []AIResponse
	for rows.Next() {
		r, err := scanResponse(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

const responseColumns = `
	SELECT id, request_id, provider, text_enc, ok, error_detail, latency_ms, input_tokens, output_tokens, created_at
	FROM ai_responses`

func scanResponse(rows *sql.Rows) (AIResponse, error) {
	var r AIResponse
	var ok int
	var inTok, outTok sql.NullInt64
	var createdAt string
	if err := rows.Scan(&r.ID, &r.RequestID, &r.Provider, &r.TextEnc, &ok, &r.ErrorDetail,
		&r.LatencyMS, &inTok, &outTok, &createdAt); err != nil {
		return AIResponse{}, err
	}
	r.OK = ok != 0
	if inTok.Valid {
		v := int(inTok.Int64)
		r.InputTokens = &v
	}
	if outTok.Valid {
		v := int(outTok.Int64)
		r.OutputTokens = &v
	}
	t, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return AIResponse{}, fmt.Errorf("parsing created_at: %w", err)
	}
	r.CreatedAt = t
	return r, nil
}

func (s *Store) GetSelection(id string) (AISelection, error) {
	var sel AISelection
	var overridden int
	var createdAt string
	err := s.db.QueryRow(`
		SELECT id, request_id, response_id, document_id, applied_version, merge_mode, overridden, created_at
		FROM ai_selections WHERE id = ?`, id,
	).Scan(&sel.ID, &sel.RequestID, &sel.ResponseID, &sel.DocumentID,
		&sel.AppliedVersion, &sel.MergeMode, &overridden, &createdAt)
	if err == sql.ErrNoRows {
		return AISelection{}, ErrNotFound
	}
	if err != nil {
		return AISelection{}, err
	}
	sel.Overridden = overridden != 0
	if sel.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return AISelection{}, fmt.Errorf("parsing created_at: %w", err)
	}
	return sel, nil
}

func (s *Store) InsertAuditEntry(a AuditEntry) error {
	details := a.DetailsJSON
	if details == "" {
		details = "{}"
	}
	_, err := s.db.Exec(`
		INSERT INTO audit_log (id, actor, action, target, details_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		a.ID, a.Actor, a.Action, a.Target, details,
		a.CreatedAt.UTC().Format(time.RFC3339),
	)
	return err
}

func (s *Store) ListAuditEntries(limit int) ([]AuditEntry, error) {
	rows, err := s.db.Query(`
		SELECT id, actor, action, target, details_json, created_at
		FROM audit_log ORDER BY created_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []AuditEntry
	for rows.Next() {
		var a AuditEntry
		var createdAt string
		if err := rows.Scan(&a.ID, &a.Actor, &a.Action, &a.Target, &a.DetailsJSON, &createdAt); err != nil {
			return nil, err
		}
		if a.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		results = append(results, a)
	}
	return results, rows.Err()
}

func nullableInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}
