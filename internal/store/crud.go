package store

import (
	"database/sql"
	"fmt"
)

// FileByPath returns the file row for path, or nil when it was never
// checked.
func (s *Store) FileByPath(path string) (*File, error) {
	row := s.db.QueryRow(
		`SELECT id, path, language, hash, snapshot, last_checked FROM files WHERE path = ?`, path)
	var f File
	var checked sql.NullTime
	var snapshot []byte
	err := row.Scan(&f.ID, &f.Path, &f.Language, &f.Hash, &snapshot, &checked)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("file by path: %w", err)
	}
	f.Snapshot = snapshot
	if checked.Valid {
		f.LastChecked = checked.Time
	}
	return &f, nil
}

// UpsertFile inserts or replaces the file row for f.Path and returns its id.
func (s *Store) UpsertFile(f *File) (int64, error) {
	_, err := s.db.Exec(
		`INSERT INTO files (path, language, hash, snapshot, last_checked)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(path) DO UPDATE SET
		   language = excluded.language,
		   hash = excluded.hash,
		   snapshot = excluded.snapshot,
		   last_checked = excluded.last_checked`,
		f.Path, f.Language, f.Hash, f.Snapshot, f.LastChecked)
	if err != nil {
		return 0, fmt.Errorf("upsert file: %w", err)
	}
	row := s.db.QueryRow(`SELECT id FROM files WHERE path = ?`, f.Path)
	var id int64
	if err := row.Scan(&id); err != nil {
		return 0, fmt.Errorf("upsert file id: %w", err)
	}
	return id, nil
}

// DeleteFileData removes a file row and everything hanging off it.
func (s *Store) DeleteFileData(fileID int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("delete file data: %w", err)
	}
	defer tx.Rollback()
	if _, err := tx.Exec(`DELETE FROM diagnostics WHERE file_id = ?`, fileID); err != nil {
		return fmt.Errorf("delete diagnostics: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM files WHERE id = ?`, fileID); err != nil {
		return fmt.Errorf("delete file: %w", err)
	}
	return tx.Commit()
}

// ReplaceDiagnostics swaps a file's stored findings in one transaction.
func (s *Store) ReplaceDiagnostics(fileID int64, diags []Diagnostic) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("replace diagnostics: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM diagnostics WHERE file_id = ?`, fileID); err != nil {
		return fmt.Errorf("clear diagnostics: %w", err)
	}
	stmt, err := tx.Prepare(
		`INSERT INTO diagnostics (file_id, decl, rule, severity, message, start_byte, end_byte)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare diagnostics insert: %w", err)
	}
	defer stmt.Close()
	for _, d := range diags {
		if _, err := stmt.Exec(fileID, d.Decl, d.Rule, d.Severity, d.Message, d.StartByte, d.EndByte); err != nil {
			return fmt.Errorf("insert diagnostic: %w", err)
		}
	}
	return tx.Commit()
}

// DiagnosticsByFile returns a file's stored findings ordered by position.
func (s *Store) DiagnosticsByFile(fileID int64) ([]Diagnostic, error) {
	rows, err := s.db.Query(
		`SELECT id, file_id, decl, rule, severity, message, start_byte, end_byte
		 FROM diagnostics WHERE file_id = ? ORDER BY start_byte, rule`, fileID)
	if err != nil {
		return nil, fmt.Errorf("diagnostics by file: %w", err)
	}
	defer rows.Close()
	var out []Diagnostic
	for rows.Next() {
		var d Diagnostic
		if err := rows.Scan(&d.ID, &d.FileID, &d.Decl, &d.Rule, &d.Severity, &d.Message, &d.StartByte, &d.EndByte); err != nil {
			return nil, fmt.Errorf("scan diagnostic: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// Files returns every checked file ordered by path.
func (s *Store) Files() ([]File, error) {
	rows, err := s.db.Query(
		`SELECT id, path, language, hash, snapshot, last_checked FROM files ORDER BY path`)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	defer rows.Close()
	var out []File
	for rows.Next() {
		var f File
		var checked sql.NullTime
		if err := rows.Scan(&f.ID, &f.Path, &f.Language, &f.Hash, &f.Snapshot, &checked); err != nil {
			return nil, fmt.Errorf("scan file: %w", err)
		}
		if checked.Valid {
			f.LastChecked = checked.Time
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// GetMetadata returns the value for key, empty when unset.
func (s *Store) GetMetadata(key string) (string, error) {
	row := s.db.QueryRow(`SELECT value FROM metadata WHERE key = ?`, key)
	var value string
	err := row.Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get metadata: %w", err)
	}
	return value, nil
}

// SetMetadata inserts or replaces a metadata key.
func (s *Store) SetMetadata(key, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO metadata (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("set metadata: %w", err)
	}
	return nil
}
