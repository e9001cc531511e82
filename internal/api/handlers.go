package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/eeg-findings-server/internal/domain"
	"github.com/eeg-findings-server/internal/findings"
	"github.com/eeg-findings-server/internal/middleware"
	"github.com/eeg-findings-server/internal/service"
	"github.com/eeg-findings-server/internal/storage"
	"github.com/eeg-findings-server/pkg/vision"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

type extractRequest struct {
	Text string `json:"text"`
}

type classifyRequest struct {
	Findings []domain.RawFinding `json:"findings"`
	Text     string              `json:"text,omitempty"`
}

type createFileRequest struct {
	FileName    string               `json:"file_name"`
	FileURL     string               `json:"file_url"`
	PageCount   int                  `json:"page_count"`
	PatientInfo *storage.PatientInfo `json:"patient_info,omitempty"`
}

type savePageRequest struct {
	ImageURL string             `json:"image_url"`
	Analysis domain.RawAnalysis `json:"analysis"`
	Comment  string             `json:"comment"`
}

type listFilesResponse struct {
	Files  []*storage.FileRecord `json:"files"`
	Total  int64                 `json:"total"`
	Limit  int                   `json:"limit"`
	Offset int                   `json:"offset"`
}

// handleHealth handles health check requests
func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	checks := make(map[string]string, len(s.checks))
	for name, p := range s.checks {
		if err := p.Ping(ctx); err != nil {
			checks[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	state := "healthy"
	if status != http.StatusOK {
		state = "degraded"
	}
	c.JSON(status, gin.H{
		"status":    state,
		"timestamp": time.Now().UTC(),
		"version":   Version,
		"checks":    checks,
	})
}

// handleAnalyze analyzes an uploaded page image. With a file_id the result is also stored.
func (s *Server) handleAnalyze(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.config.MaxUploadBytes)

	fh, err := c.FormFile("image")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.respondError(c, domain.NewValidationError("image", fmt.Sprintf("image exceeds %d bytes", s.config.MaxUploadBytes), nil))
			return
		}
		s.respondError(c, domain.NewValidationError("image", "multipart field 'image' is required", nil))
		return
	}

	f, err := fh.Open()
	if err != nil {
		s.respondError(c, fmt.Errorf("opening upload: %w", err))
		return
	}
	image, err := io.ReadAll(f)
	f.Close()
	if err != nil {
		s.respondError(c, fmt.Errorf("reading upload: %w", err))
		return
	}

	mime := fh.Header.Get("Content-Type")
	if !strings.HasPrefix(mime, "image/") && mime != vision.MIMEPDF {
		mime = ""
	}

	fileID := c.PostForm("file_id")
	if fileID == "" {
		result, err := s.analysis.AnalyzeImage(c.Request.Context(), image, mime)
		if err != nil {
			s.respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
		return
	}

	page := 1
	if raw := c.PostForm("page"); raw != "" {
		page, err = strconv.Atoi(raw)
		if err != nil {
			s.respondError(c, domain.NewValidationError("page", "page must be an integer", raw))
			return
		}
	}

	stored, err := s.analysis.AnalyzePage(c.Request.Context(), service.PageRequest{
		FileID:   fileID,
		Page:     page,
		ImageURL: c.PostForm("image_url"),
		Image:    image,
		MIME:     mime,
		Comment:  c.PostForm("comment"),
	})
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stored.Analysis)
}

func (s *Server) handleExtract(c *gin.Context) {
	var req extractRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, domain.NewValidationError("body", err.Error(), nil))
		return
	}
	c.JSON(http.StatusOK, service.ParseText(req.Text))
}

func (s *Server) handleClassify(c *gin.Context) {
	var req classifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, domain.NewValidationError("body", err.Error(), nil))
		return
	}
	if req.Findings == nil && req.Text != "" {
		c.JSON(http.StatusOK, findings.Parse(req.Text))
		return
	}
	c.JSON(http.StatusOK, s.analysis.Sections(req.Findings))
}

func (s *Server) handleCreateFile(c *gin.Context) {
	var req createFileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, domain.NewValidationError("body", err.Error(), nil))
		return
	}
	if strings.TrimSpace(req.FileName) == "" {
		s.respondError(c, domain.NewValidationError("file_name", "file name is required", req.FileName))
		return
	}
	if req.PageCount < 0 {
		s.respondError(c, domain.NewValidationError("page_count", "page count cannot be negative", req.PageCount))
		return
	}

	file := &storage.FileRecord{
		FileName:    req.FileName,
		FileURL:     req.FileURL,
		PageCount:   req.PageCount,
		PatientInfo: req.PatientInfo,
	}
	if err := s.store.CreateFile(c.Request.Context(), file); err != nil {
		s.respondError(c, err)
		return
	}

	s.logger.WithFields(logrus.Fields{
		"correlation_id": c.GetString(middleware.CorrelationIDKey),
		"file_id":        file.ID,
		"pages":          file.PageCount,
	}).Info("File created")
	c.JSON(http.StatusCreated, gin.H{"id": file.ID})
}

func (s *Server) handleListFiles(c *gin.Context) {
	limit, err := queryInt(c, "limit", defaultPageSize)
	if err != nil {
		s.respondError(c, err)
		return
	}
	offset, err := queryInt(c, "offset", 0)
	if err != nil {
		s.respondError(c, err)
		return
	}
	if limit < 1 || limit > maxPageSize {
		limit = defaultPageSize
	}
	if offset < 0 {
		offset = 0
	}

	ctx := c.Request.Context()
	files, err := s.store.ListFiles(ctx, limit, offset)
	if err != nil {
		s.respondError(c, err)
		return
	}
	total, err := s.store.CountFiles(ctx)
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, listFilesResponse{Files: files, Total: total, Limit: limit, Offset: offset})
}

func (s *Server) handleGetFile(c *gin.Context) {
	file, err := s.store.GetFile(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, file)
}

func (s *Server) handleDeleteFile(c *gin.Context) {
	if err := s.store.DeleteFile(c.Request.Context(), c.Param("id")); err != nil {
		s.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleSavePage(c *gin.Context) {
	page, err := pathPage(c)
	if err != nil {
		s.respondError(c, err)
		return
	}

	var req savePageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, domain.NewValidationError("body", err.Error(), nil))
		return
	}

	saved, err := s.analysis.SavePageAnalysis(c.Request.Context(), c.Param("id"), page, req.ImageURL, req.Analysis, req.Comment)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, saved)
}

func (s *Server) handlePageSections(c *gin.Context) {
	page, err := pathPage(c)
	if err != nil {
		s.respondError(c, err)
		return
	}

	sections, err := s.analysis.PageSections(c.Request.Context(), c.Param("id"), page)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sections)
}

func (s *Server) handleExport(c *gin.Context) {
	name := storage.SafeFileName(fmt.Sprintf("eeg-history-%s.json", time.Now().UTC().Format("2006-01-02")))
	c.Header("Content-Type", "application/json")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	c.Status(http.StatusOK)

	if err := s.store.ExportJSON(c.Request.Context(), c.Writer); err != nil {
		// headers are gone; the truncated body is all the client gets
		s.logger.WithError(err).Error("History export failed")
		_ = c.Error(err)
	}
}

func pathPage(c *gin.Context) (int, error) {
	raw := c.Param("page")
	page, err := strconv.Atoi(raw)
	if err != nil || page < 1 {
		return 0, domain.NewValidationError("page", "page must be a positive integer", raw)
	}
	return page, nil
}

func queryInt(c *gin.Context, name string, def int) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, domain.NewValidationError(name, "must be an integer", raw)
	}
	return v, nil
}

// respondError maps domain errors to HTTP statuses and writes an APIError body.
func (s *Server) respondError(c *gin.Context, err error) {
	requestID := c.GetString(middleware.CorrelationIDKey)

	var (
		status int
		apiErr *domain.APIError
		verr   *domain.ValidationError
	)
	switch {
	case errors.As(err, &verr):
		status = http.StatusBadRequest
		apiErr = domain.NewAPIError(domain.ErrValidation, verr.Message, verr.Field, requestID)
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
		apiErr = domain.NewAPIError(domain.ErrNotFoundCode, "Resource not found", "", requestID)
	case errors.Is(err, domain.ErrVisionUnavailable):
		status = http.StatusBadGateway
		apiErr = domain.NewAPIError(domain.ErrVisionAPI, "Vision analysis failed", "the vision provider did not return an answer", requestID)
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
		apiErr = domain.NewAPIError(domain.ErrVisionAPI, "Request timed out", "", requestID)
	default:
		status = http.StatusInternalServerError
		apiErr = domain.NewAPIError(domain.ErrInternalServer, "Internal server error", "", requestID)
		s.logger.WithError(err).WithField("correlation_id", requestID).Error("Request failed")
	}

	_ = c.Error(err)
	c.AbortWithStatusJSON(status, apiErr)
}
