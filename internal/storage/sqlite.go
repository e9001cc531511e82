package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/eeg-findings-server/internal/domain"
)

// SQLiteStore implements the Store interface using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteStore creates a new SQLite store.
// It creates the database file and schema if they don't exist.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		dbPath: dbPath,
	}, nil
}

// createSchema creates the database tables and indexes.
func createSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS files (
		id TEXT PRIMARY KEY,
		file_name TEXT NOT NULL,
		file_url TEXT NOT NULL DEFAULT '',
		page_count INTEGER NOT NULL DEFAULT 0,
		upload_date DATETIME NOT NULL,
		patient_info TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS page_analyses (
		id TEXT PRIMARY KEY,
		file_id TEXT NOT NULL REFERENCES files(id) ON DELETE CASCADE,
		page_number INTEGER NOT NULL,
		image_url TEXT NOT NULL DEFAULT '',
		analysis TEXT NOT NULL DEFAULT '',
		comment TEXT NOT NULL DEFAULT '',
		timestamp DATETIME NOT NULL,
		UNIQUE(file_id, page_number)
	);

	CREATE INDEX IF NOT EXISTS idx_files_upload_date ON files(upload_date);
	CREATE INDEX IF NOT EXISTS idx_page_analyses_file_id ON page_analyses(file_id);
	`

	_, err := db.Exec(schema)
	return err
}

// CreateFile stores a new file record.
func (s *SQLiteStore) CreateFile(ctx context.Context, file *FileRecord) error {
	file.ID = uuid.NewString()
	file.UploadDate = time.Now().UTC()
	return s.insertFile(ctx, file)
}

func (s *SQLiteStore) insertFile(ctx context.Context, file *FileRecord) error {
	if file.ID == "" {
		file.ID = uuid.NewString()
	}
	if file.UploadDate.IsZero() {
		file.UploadDate = time.Now().UTC()
	}
	patient, err := encodePatient(file.PatientInfo)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO files (id, file_name, file_url, page_count, upload_date, patient_info)
		VALUES (?, ?, ?, ?, ?, ?)
	`, file.ID, file.FileName, file.FileURL, file.PageCount, file.UploadDate, patient)
	if err != nil {
		return fmt.Errorf("failed to insert file: %w", err)
	}
	if file.Analyses == nil {
		file.Analyses = []*PageAnalysis{}
	}
	return nil
}

// GetFile returns a file with its analyses ordered by page number.
func (s *SQLiteStore) GetFile(ctx context.Context, id string) (*FileRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, file_name, file_url, page_count, upload_date, patient_info
		FROM files
		WHERE id = ?
	`, id)

	f, err := scanFile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan file: %w", err)
	}

	if err := attachPages(ctx, []*FileRecord{f}, s.listPages); err != nil {
		return nil, err
	}
	return f, nil
}

// ListFiles returns files newest first.
func (s *SQLiteStore) ListFiles(ctx context.Context, limit, offset int) ([]*FileRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, file_name, file_url, page_count, upload_date, patient_info
		FROM files
		ORDER BY upload_date DESC
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query files: %w", err)
	}

	result := []*FileRecord{}
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		result = append(result, f)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	if err := attachPages(ctx, result, s.listPages); err != nil {
		return nil, err
	}
	return result, nil
}

// CountFiles returns the total number of files.
func (s *SQLiteStore) CountFiles(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM files").Scan(&count)
	return count, err
}

func (s *SQLiteStore) listPages(ctx context.Context, fileID string) ([]*PageAnalysis, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, file_id, page_number, image_url, analysis, comment, timestamp
		FROM page_analyses
		WHERE file_id = ?
		ORDER BY page_number ASC
	`, fileID)
	if err != nil {
		return nil, fmt.Errorf("failed to query analyses: %w", err)
	}
	defer rows.Close()

	result := []*PageAnalysis{}
	for rows.Next() {
		p, err := scanPage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan analysis: %w", err)
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

// SavePageAnalysis stores or updates the analysis of a page.
func (s *SQLiteStore) SavePageAnalysis(ctx context.Context, analysis *PageAnalysis) error {
	now := time.Now().UTC()
	payload, err := encodeAnalysis(analysis.Analysis)
	if err != nil {
		return err
	}

	var exists int
	err = s.db.QueryRowContext(ctx, "SELECT 1 FROM files WHERE id = ?", analysis.FileID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to check file: %w", err)
	}

	var existingID string
	err = s.db.QueryRowContext(ctx,
		"SELECT id FROM page_analyses WHERE file_id = ? AND page_number = ?",
		analysis.FileID, analysis.PageNumber,
	).Scan(&existingID)

	if err == nil {
		analysis.ID = existingID
		analysis.Timestamp = now

		_, err = s.db.ExecContext(ctx, `
			UPDATE page_analyses SET
				analysis = ?,
				comment = ?,
				timestamp = ?
			WHERE id = ?
		`, payload, analysis.Comment, now, existingID)
		if err != nil {
			return fmt.Errorf("failed to update analysis: %w", err)
		}
		return nil
	}

	if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("failed to check existing: %w", err)
	}

	analysis.ID = uuid.NewString()
	analysis.Timestamp = now

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO page_analyses (id, file_id, page_number, image_url, analysis, comment, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, analysis.ID, analysis.FileID, analysis.PageNumber, analysis.ImageURL, payload, analysis.Comment, now)
	if err != nil {
		return fmt.Errorf("failed to insert analysis: %w", err)
	}
	return nil
}

// GetPageAnalysis returns the analysis of one page.
func (s *SQLiteStore) GetPageAnalysis(ctx context.Context, fileID string, page int) (*PageAnalysis, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, file_id, page_number, image_url, analysis, comment, timestamp
		FROM page_analyses
		WHERE file_id = ? AND page_number = ?
	`, fileID, page)

	p, err := scanPage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan analysis: %w", err)
	}
	return p, nil
}

// DeleteFile removes a file and its analyses.
func (s *SQLiteStore) DeleteFile(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM page_analyses WHERE file_id = ?", id); err != nil {
		return fmt.Errorf("failed to delete analyses: %w", err)
	}
	res, err := tx.ExecContext(ctx, "DELETE FROM files WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.ErrNotFound
	}
	return tx.Commit()
}

// ExportJSON exports all files to a JSON writer.
func (s *SQLiteStore) ExportJSON(ctx context.Context, writer io.Writer) error {
	return exportHistory(ctx, s, writer)
}

// ImportJSON imports files from a JSON reader.
func (s *SQLiteStore) ImportJSON(ctx context.Context, reader io.Reader) (imported int, skipped int, err error) {
	return importHistory(ctx, s, s.insertFile, reader)
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the store and releases resources.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
