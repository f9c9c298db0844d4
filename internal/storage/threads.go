package storage

import (
	"database/sql"
	"fmt"
	"time"
)

func (s *Store) CreateThread(t Thread) error {
	_, err := s.db.Exec(`
		INSERT INTO threads (id, document_id, title, created_at)
		VALUES (?, ?, ?, ?)`,
		t.ID, t.DocumentID, t.Title, t.CreatedAt.UTC().Format(time.RFC3339),
	)
	return err
}

func (s *Store) GetThread(id string) (Thread, error) {
	var t Thread
	var createdAt string
	err := s.db.QueryRow(`
		SELECT id, document_id, title, created_at FROM threads WHERE id = ?`, id,
	).Scan(&t.ID, &t.DocumentID, &t.Title, &createdAt)
	if err == sql.ErrNoRows {
		return Thread{}, ErrNotFound
	}
	if err != nil {
		return Thread{}, err
	}
	if t.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return Thread{}, fmt.Errorf("parsing created_at: %w", err)
	}
	return t, nil
}

func (s *Store) ListThreads(limit int) ([]Thread, error) {
	rows, err := s.db.Query(`
		SELECT id, document_id, title, created_at
		FROM threads ORDER BY created_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Thread
	for rows.Next() {
		var t Thread
		var createdAt string
		if err := rows.Scan(&t.ID, &t.DocumentID, &t.Title, &createdAt); err != nil {
			return nil, err
		}
		if t.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		results = append(results, t)
	}
	return results, rows.Err()
}

// SaveTurn appends one turn to a thread. Turns are never updated.
func (s *Store) SaveTurn(t Turn) error {
	_, err := s.db.Exec(`
		INSERT INTO chat_turns (id, thread_id, role, raw_enc, sanitized_enc, content_hash, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.ThreadID, t.Role, t.RawEnc, t.SanitizedEnc, t.ContentHash,
		t.CreatedAt.UTC().Format(time.RFC3339),
	)
	return err
}

// ListTurns returns all turns of a thread in chronological order.
func (s *Store) ListTurns(threadID string) ([]Turn, error) {
	rows, err := s.db.Query(`
		SELECT id, thread_id, role, raw_enc, sanitized_enc, content_hash, created_at
		FROM chat_turns WHERE thread_id = ? ORDER BY created_at ASC, id ASC`, threadID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Turn
	for rows.Next() {
		var t Turn
		var createdAt string
		if err := rows.Scan(&t.ID, &t.ThreadID, &t.Role, &t.RawEnc, &t.SanitizedEnc, &t.ContentHash, &createdAt); err != nil {
			return nil, err
		}
		if t.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		results = append(results, t)
	}
	return results, rows.Err()
}

func (s *Store) GetTurn(id string) (Turn, error) {
	var t Turn
	var createdAt string
	err := s.db.QueryRow(`
		SELECT id, thread_id, role, raw_enc, sanitized_enc, content_hash, created_at
		FROM chat_turns WHERE id = ?`, id,
	).Scan(&t.ID, &t.ThreadID, &t.Role, &t.RawEnc, &t.SanitizedEnc, &t.ContentHash, &createdAt)
	if err == sql.ErrNoRows {
		return Turn{}, ErrNotFound
	}
	if err != nil {
		return Turn{}, err
	}
	if t.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return Turn{}, fmt.Errorf("parsing created_at: %w", err)
	}
	return t, nil
}
