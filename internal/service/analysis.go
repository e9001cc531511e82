package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/eeg-findings-server/internal/cache"
	"github.com/eeg-findings-server/internal/domain"
	"github.com/eeg-findings-server/internal/findings"
	"github.com/eeg-findings-server/internal/logging"
	"github.com/eeg-findings-server/internal/storage"
	"github.com/eeg-findings-server/pkg/vision"
)

// ResponseCache keeps raw model answers keyed by image digest, provider and model.
type ResponseCache interface {
	Get(ctx context.Context, key string) (string, bool)
	Set(ctx context.Context, key, text string)
}

// errNoStore is returned by page operations when the service runs without persistence.
var errNoStore = errors.New("storage is not configured")

// AnalysisService turns page images into findings, persists them and rebuilds their sections.
type AnalysisService struct {
	logger   *logrus.Logger
	analyzer domain.VisionAnalyzer
	cache    ResponseCache
	store    storage.Store
}

// NewAnalysisService creates a new analysis service. cache and store may be nil.
func NewAnalysisService(logger *logrus.Logger, analyzer domain.VisionAnalyzer, responses ResponseCache, store storage.Store) *AnalysisService {
	if analyzer == nil {
		analyzer = vision.Disabled{}
	}
	return &AnalysisService{
		logger:   logger,
		analyzer: analyzer,
		cache:    responses,
		store:    store,
	}
}

// PageRequest describes one page to analyze and store.
type PageRequest struct {
	FileID   string
	Page     int
	ImageURL string
	Image    []byte
	MIME     string
	Comment  string
}

// AnalyzeImage sends one page image to the vision model and extracts its findings.
func (s *AnalysisService) AnalyzeImage(ctx context.Context, image []byte, mime string) (*domain.AnalysisResult, error) {
	if len(image) == 0 {
		return nil, domain.NewValidationError("image", "image is required", nil)
	}
	if mime == "" {
		mime = vision.SniffMIME(image)
	}
	if mime == vision.MIMEPDF || vision.SniffMIME(image) == vision.MIMEPDF {
		return nil, domain.NewValidationError("image", "PDF pages must be rasterized to images before analysis", mime)
	}

	startTime := time.Now()
	log := logging.Entry(ctx, s.logger).WithFields(logrus.Fields{
		"provider":   s.analyzer.Name(),
		"model":      s.analyzer.Model(),
		"mime":       mime,
		"image_size": len(image),
	})

	key := cache.Key(image, s.analyzer.Name(), s.analyzer.Model())
	if s.cache != nil {
		if text, ok := s.cache.Get(ctx, key); ok {
			result := s.resultFrom(text)
			result.Cached = true
			log.WithField("findings", len(result.Findings)).Debug("Served analysis from cache")
			return result, nil
		}
	}

	text, err := s.analyzer.Analyze(ctx, image, mime)
	if err != nil {
		log.WithError(err).Warn("Vision analysis failed")
		if errors.Is(err, domain.ErrEmptyImage) {
			return nil, domain.NewValidationError("image", "image is required", nil)
		}
		if errors.Is(err, domain.ErrVisionUnavailable) {
			return nil, fmt.Errorf("analyzing image: %w", err)
		}
		return nil, fmt.Errorf("%w: %w", domain.ErrVisionUnavailable, err)
	}

	// empty answers are never cached
	if s.cache != nil && strings.TrimSpace(text) != "" {
		s.cache.Set(ctx, key, text)
	}

	result := s.resultFrom(text)
	log.WithFields(logrus.Fields{
		"findings":        len(result.Findings),
		"processing_time": time.Since(startTime),
	}).Info("EEG image analyzed")
	return result, nil
}

func (s *AnalysisService) resultFrom(text string) *domain.AnalysisResult {
	result := ParseText(text)
	result.Provider = s.analyzer.Name()
	result.Model = s.analyzer.Model()
	return result
}

// ParseText extracts the findings of a model answer. Empty text gives an empty result.
func ParseText(text string) *domain.AnalysisResult {
	return domain.NewAnalysisResult(findings.ExtractAll(text))
}

// AnalyzePage analyzes a page image and stores the result under its file and page number.
func (s *AnalysisService) AnalyzePage(ctx context.Context, req PageRequest) (*storage.PageAnalysis, error) {
	if s.store == nil {
		return nil, errNoStore
	}
	if err := validatePage(req.FileID, req.Page); err != nil {
		return nil, err
	}

	result, err := s.AnalyzeImage(ctx, req.Image, req.MIME)
	if err != nil {
		return nil, err
	}

	page := &storage.PageAnalysis{
		FileID:     req.FileID,
		PageNumber: req.Page,
		ImageURL:   req.ImageURL,
		Analysis:   result,
		Comment:    req.Comment,
	}
	if err := s.store.SavePageAnalysis(ctx, page); err != nil {
		return nil, fmt.Errorf("saving page analysis: %w", err)
	}
	return page, nil
}

// SavePageAnalysis stores an analysis produced elsewhere, normalizing its findings first.
func (s *AnalysisService) SavePageAnalysis(ctx context.Context, fileID string, page int, imageURL string, raw domain.RawAnalysis, comment string) (*storage.PageAnalysis, error) {
	if s.store == nil {
		return nil, errNoStore
	}
	if err := validatePage(fileID, page); err != nil {
		return nil, err
	}

	analysis := &storage.PageAnalysis{
		FileID:     fileID,
		PageNumber: page,
		ImageURL:   imageURL,
		Analysis:   raw.Normalize(),
		Comment:    comment,
	}
	if err := s.store.SavePageAnalysis(ctx, analysis); err != nil {
		return nil, fmt.Errorf("saving page analysis: %w", err)
	}

	logging.Entry(ctx, s.logger).WithFields(logrus.Fields{
		"file_id":  fileID,
		"page":     page,
		"findings": len(analysis.Analysis.Findings),
	}).Info("Page analysis saved")
	return analysis, nil
}

// PageSections loads the stored findings of a page and classifies them.
func (s *AnalysisService) PageSections(ctx context.Context, fileID string, page int) (domain.Sections, error) {
	if s.store == nil {
		return domain.Sections{}, errNoStore
	}
	if err := validatePage(fileID, page); err != nil {
		return domain.Sections{}, err
	}

	analysis, err := s.store.GetPageAnalysis(ctx, fileID, page)
	if err != nil {
		return domain.Sections{}, err
	}
	return findings.ClassifyFindings(analysis.Analysis.Findings), nil
}

// Sections normalizes findings received from outside the process and classifies them.
func (s *AnalysisService) Sections(raw []domain.RawFinding) domain.Sections {
	return findings.ClassifyFindings(domain.NormalizeFindings(raw))
}

func validatePage(fileID string, page int) error {
	if fileID == "" {
		return domain.NewValidationError("file_id", "file id is required", fileID)
	}
	if page < 1 {
		return domain.NewValidationError("page", "page numbers start at 1", page)
	}
	return nil
}
