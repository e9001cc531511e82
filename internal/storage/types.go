// Package storage persists uploaded EEG files and the analysis of each of their pages.
// Analyses are stored as their unclassified finding list; sections are rebuilt on read.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"
	"time"

	"github.com/eeg-findings-server/internal/domain"
)

// PatientInfo is the optional patient block attached to a file.
type PatientInfo struct {
	Name   string `json:"name"`
	ID     string `json:"id"`
	Age    string `json:"age"`
	Gender string `json:"gender"`
	Notes  string `json:"notes"`
}

// FileRecord represents one uploaded EEG record.
type FileRecord struct {
	ID                 string          `json:"id"`
	FileName           string          `json:"file_name"`
	FileURL            string          `json:"file_url"`
	PageCount          int             `json:"page_count"`
	UploadDate         time.Time       `json:"upload_date"`
	PatientInfo        *PatientInfo    `json:"patient_info,omitempty"`
	Analyses           []*PageAnalysis `json:"analyses"`
	AnalyzedPagesCount int             `json:"analyzed_pages_count"`
}

// PageAnalysis is the analysis of one page of a file.
type PageAnalysis struct {
	ID         string                 `json:"id"`
	FileID     string                 `json:"file_id"`
	PageNumber int                    `json:"page_number"`
	ImageURL   string                 `json:"image_url"`
	Analysis   *domain.AnalysisResult `json:"analysis"`
	Comment    string                 `json:"comment,omitempty"`
	Timestamp  time.Time              `json:"timestamp"`
}

// Store defines the interface for file and analysis storage operations.
type Store interface {
	// CreateFile stores a new file record and assigns its ID and upload date.
	CreateFile(ctx context.Context, file *FileRecord) error

	// GetFile returns a file with its analyses ordered by page number.
	// Returns domain.ErrNotFound if the file does not exist.
	GetFile(ctx context.Context, id string) (*FileRecord, error)

	// ListFiles returns files newest first, each with its analyses.
	ListFiles(ctx context.Context, limit, offset int) ([]*FileRecord, error)

	// CountFiles returns the total number of files.
	CountFiles(ctx context.Context) (int64, error)

	// SavePageAnalysis stores the analysis of a page. An existing analysis of the same page
	// gets the new analysis, comment and timestamp.
	SavePageAnalysis(ctx context.Context, analysis *PageAnalysis) error

	// GetPageAnalysis returns the analysis of one page, or domain.ErrNotFound.
	GetPageAnalysis(ctx context.Context, fileID string, page int) (*PageAnalysis, error)

	// DeleteFile removes a file and all of its page analyses.
	DeleteFile(ctx context.Context, id string) error

	// ExportJSON writes every file with its analyses to writer.
	ExportJSON(ctx context.Context, writer io.Writer) error

	// ImportJSON reads an export. Files whose ID already exists are skipped.
	ImportJSON(ctx context.Context, reader io.Reader) (imported int, skipped int, err error)

	// Ping checks the connection.
	Ping(ctx context.Context) error

	// Close closes the store and releases resources.
	Close() error
}

// HistoryExport represents the JSON export format.
type HistoryExport struct {
	Version    string        `json:"version"`
	ExportedAt time.Time     `json:"exported_at"`
	Count      int           `json:"count"`
	Files      []*FileRecord `json:"files"`
}

var unsafeFileChars = regexp.MustCompile(`[^a-zA-Z0-9.]`)

// SafeFileName replaces every character outside [a-zA-Z0-9.] with an underscore.
func SafeFileName(name string) string {
	return unsafeFileChars.ReplaceAllString(name, "_")
}

// maxExportLimit is the maximum number of files exported at once.
const maxExportLimit = 1000000

func encodeAnalysis(a *domain.AnalysisResult) (string, error) {
	if a == nil {
		a = domain.NewAnalysisResult(nil)
	}
	raw := domain.RawAnalysis{
		Findings: domain.ToRaw(a.Findings),
		Summary:  a.Summary,
		Provider: a.Provider,
		Model:    a.Model,
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return "", fmt.Errorf("failed to encode analysis: %w", err)
	}
	return string(b), nil
}

func decodeAnalysis(s string) (*domain.AnalysisResult, error) {
	if s == "" {
		return domain.NewAnalysisResult(nil), nil
	}
	var raw domain.RawAnalysis
	if err := json.Unmarshal([]byte(s), &raw); err != nil {
		return nil, fmt.Errorf("failed to decode analysis: %w", err)
	}
	return raw.Normalize(), nil
}

func encodePatient(p *PatientInfo) (string, error) {
	if p == nil {
		return "", nil
	}
	b, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("failed to encode patient info: %w", err)
	}
	return string(b), nil
}

func decodePatient(s string) (*PatientInfo, error) {
	if s == "" {
		return nil, nil
	}
	var p PatientInfo
	if err := json.Unmarshal([]byte(s), &p); err != nil {
		return nil, fmt.Errorf("failed to decode patient info: %w", err)
	}
	return &p, nil
}

// scanner is an interface for sql.Row and sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanFile(s scanner) (*FileRecord, error) {
	f := &FileRecord{}
	var patient string
	if err := s.Scan(&f.ID, &f.FileName, &f.FileURL, &f.PageCount, &f.UploadDate, &patient); err != nil {
		return nil, err
	}
	p, err := decodePatient(patient)
	if err != nil {
		return nil, err
	}
	f.PatientInfo = p
	f.Analyses = []*PageAnalysis{}
	return f, nil
}

func scanPage(s scanner) (*PageAnalysis, error) {
	p := &PageAnalysis{}
	var analysis string
	if err := s.Scan(&p.ID, &p.FileID, &p.PageNumber, &p.ImageURL, &analysis, &p.Comment, &p.Timestamp); err != nil {
		return nil, err
	}
	a, err := decodeAnalysis(analysis)
	if err != nil {
		return nil, err
	}
	p.Analysis = a
	return p, nil
}

// pageLister loads the analyses of one file ordered by page.
type pageLister func(ctx context.Context, fileID string) ([]*PageAnalysis, error)

func attachPages(ctx context.Context, files []*FileRecord, list pageLister) error {
	for _, f := range files {
		pages, err := list(ctx, f.ID)
		if err != nil {
			return err
		}
		f.Analyses = pages
		f.AnalyzedPagesCount = len(pages)
	}
	return nil
}

// exportHistory and importHistory are shared by both stores.
func exportHistory(ctx context.Context, s Store, writer io.Writer) error {
	all, err := s.ListFiles(ctx, maxExportLimit, 0)
	if err != nil {
		return fmt.Errorf("failed to list files: %w", err)
	}

	export := &HistoryExport{
		Version:    "1.0",
		ExportedAt: time.Now().UTC(),
		Count:      len(all),
		Files:      all,
	}

	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(export)
}

type fileInserter func(ctx context.Context, file *FileRecord) error

func importHistory(ctx context.Context, s Store, insert fileInserter, reader io.Reader) (imported int, skipped int, err error) {
	var export HistoryExport
	if err := json.NewDecoder(reader).Decode(&export); err != nil {
		return 0, 0, fmt.Errorf("failed to decode JSON: %w", err)
	}

	for _, f := range export.Files {
		if f == nil {
			continue
		}
		if f.ID != "" {
			_, err := s.GetFile(ctx, f.ID)
			if err == nil {
				skipped++
				continue
			}
			if !errors.Is(err, domain.ErrNotFound) {
				return imported, skipped, fmt.Errorf("failed to check existing: %w", err)
			}
		}

		if err := insert(ctx, f); err != nil {
			return imported, skipped, fmt.Errorf("failed to import file: %w", err)
		}
		for _, p := range f.Analyses {
			p.FileID = f.ID
			if err := s.SavePageAnalysis(ctx, p); err != nil {
				return imported, skipped, fmt.Errorf("failed to import page %d: %w", p.PageNumber, err)
			}
		}
		imported++
	}

	return imported, skipped, nil
}
