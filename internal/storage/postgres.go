package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/eeg-findings-server/internal/domain"
)

// PostgresStore implements the Store interface using PostgreSQL.
type PostgresStore struct {
	db      *sql.DB
	onClose func() // releases the pool the handle was opened from
}

// NewPostgresStore creates a new PostgreSQL store.
// It expects the schema to already exist (created via migrations).
func NewPostgresStore(db *sql.DB) (*PostgresStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

// NewPostgresStoreFromURL creates a new PostgreSQL store from a connection URL.
func NewPostgresStoreFromURL(databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	store, err := NewPostgresStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

const pgFileColumns = `id, file_name, file_url, page_count, upload_date, patient_info`

const pgPageColumns = `id, file_id, page_number, image_url, analysis, comment, timestamp`

// CreateFile stores a new file record.
func (s *PostgresStore) CreateFile(ctx context.Context, file *FileRecord) error {
	file.ID = uuid.NewString()
	file.UploadDate = time.Now().UTC()
	return s.insertFile(ctx, file)
}

func (s *PostgresStore) insertFile(ctx context.Context, file *FileRecord) error {
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
		INSERT INTO files (`+pgFileColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6)
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
func (s *PostgresStore) GetFile(ctx context.Context, id string) (*FileRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+pgFileColumns+` FROM files WHERE id = $1`, id)

	f, err := scanFile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get file: %w", err)
	}

	if err := attachPages(ctx, []*FileRecord{f}, s.listPages); err != nil {
		return nil, err
	}
	return f, nil
}

// ListFiles returns files newest first.
func (s *PostgresStore) ListFiles(ctx context.Context, limit, offset int) ([]*FileRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+pgFileColumns+`
		FROM files
		ORDER BY upload_date DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
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
func (s *PostgresStore) CountFiles(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM files").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count files: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) listPages(ctx context.Context, fileID string) ([]*PageAnalysis, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+pgPageColumns+`
		FROM page_analyses
		WHERE file_id = $1
		ORDER BY page_number ASC
	`, fileID)
	if err != nil {
		return nil, fmt.Errorf("failed to list analyses: %w", err)
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
func (s *PostgresStore) SavePageAnalysis(ctx context.Context, analysis *PageAnalysis) error {
	now := time.Now().UTC()
	payload, err := encodeAnalysis(analysis.Analysis)
	if err != nil {
		return err
	}

	var exists int
	err = s.db.QueryRowContext(ctx, "SELECT 1 FROM files WHERE id = $1", analysis.FileID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to check file: %w", err)
	}

	query := `
		INSERT INTO page_analyses (` + pgPageColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (file_id, page_number) DO UPDATE SET
			analysis = EXCLUDED.analysis,
			comment = EXCLUDED.comment,
			timestamp = EXCLUDED.timestamp
		RETURNING id
	`

	err = s.db.QueryRowContext(ctx, query,
		uuid.NewString(),
		analysis.FileID,
		analysis.PageNumber,
		analysis.ImageURL,
		payload,
		analysis.Comment,
		now,
	).Scan(&analysis.ID)
	if err != nil {
		return fmt.Errorf("failed to save analysis: %w", err)
	}

	analysis.Timestamp = now
	return nil
}

// GetPageAnalysis returns the analysis of one page.
func (s *PostgresStore) GetPageAnalysis(ctx context.Context, fileID string, page int) (*PageAnalysis, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+pgPageColumns+`
		FROM page_analyses
		WHERE file_id = $1 AND page_number = $2
	`, fileID, page)

	p, err := scanPage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get analysis: %w", err)
	}
	return p, nil
}

// DeleteFile removes a file; its analyses go with it through the cascade.
func (s *PostgresStore) DeleteFile(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM files WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ExportJSON exports all files to a JSON writer.
func (s *PostgresStore) ExportJSON(ctx context.Context, writer io.Writer) error {
	return exportHistory(ctx, s, writer)
}

// ImportJSON imports files from a JSON reader.
func (s *PostgresStore) ImportJSON(ctx context.Context, reader io.Reader) (imported int, skipped int, err error) {
	return importHistory(ctx, s, s.insertFile, reader)
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the store and releases resources.
func (s *PostgresStore) Close() error {
	if s.onClose != nil {
		s.onClose()
		return nil
	}
	return s.db.Close()
}
