package storage

import (
	"database/sql"
	"fmt"
	"time"
)

func (s *Store) SaveFile(f AttachedFile) error {
	_, err := s.db.Exec(`
		INSERT INTO attached_files (id, thread_id, filename, extracted_text, extracted_chars, retrieval_mode, index_status, index_error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.ID, f.ThreadID, f.Filename, f.ExtractedText, f.ExtractedChars,
		f.RetrievalMode, f.IndexStatus, f.IndexError,
		f.CreatedAt.UTC().Format(time.RFC3339),
	)
	return err
}

func (s *Store) GetFile(id string) (AttachedFile, error) {
	var f AttachedFile
	var createdAt string
	err := s.db.QueryRow(`
		SELECT id, thread_id, filename, extracted_text, extracted_chars, retrieval_mode, index_status, index_error, created_at
		FROM attached_files WHERE id = ?`, id,
	).Scan(&f.ID, &f.ThreadID, &f.Filename, &f.ExtractedText, &f.ExtractedChars,
		&f.RetrievalMode, &f.IndexStatus, &f.IndexError, &createdAt)
	if err == sql.ErrNoRows {
		return AttachedFile{}, ErrNotFound
	}
	if err != nil {
		return AttachedFile{}, err
	}
	if f.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return AttachedFile{}, fmt.Errorf("parsing created_at: %w", err)
	}
	return f, nil
}

// ListFiles returns a thread's attached files in upload order.
func (s *Store) ListFiles(threadID string) ([]AttachedFile, error) {
	rows, err := s.db.Query(`
		SELECT id, thread_id, filename, extracted_text, extracted_chars, retrieval_mode, index_status, index_error, created_at
		FROM attached_files WHERE thread_id = ? ORDER BY created_at ASC, id ASC`, threadID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []AttachedFile
	for rows.Next() {
		var f AttachedFile
		var createdAt string
		if err := rows.Scan(&f.ID, &f.ThreadID, &f.Filename, &f.ExtractedText, &f.ExtractedChars,
			&f.RetrievalMode, &f.IndexStatus, &f.IndexError, &createdAt); err != nil {
			return nil, err
		}
		if f.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		results = append(results, f)
	}
	return results, rows.Err()
}

// UpdateFileIndexStatus moves a file through the indexing lifecycle.
func (s *Store) UpdateFileIndexStatus(id, status, indexError string) error {
	res, err := s.db.Exec(`
		UPDATE attached_files SET index_status = ?, index_error = ? WHERE id = ?`,
		status, indexError, id,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
