package mcp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/eeg-findings-server/internal/domain"
	"github.com/eeg-findings-server/internal/findings"
	"github.com/eeg-findings-server/internal/service"
)

// Tool names
const (
	ToolExtractFindings  = "extract_findings"
	ToolClassifyFindings = "classify_findings"
	ToolAnalyzeImage     = "analyze_eeg_image"
	ToolListFiles        = "list_files"
	ToolPageSections     = "get_page_sections"
)

type extractInput struct {
	Text string `json:"text" jsonschema:"EEG report text, one finding per line"`
}

type classifyInput struct {
	Text     string              `json:"text,omitempty" jsonschema:"EEG report text to extract and classify"`
	Findings []domain.RawFinding `json:"findings,omitempty" jsonschema:"previously extracted findings, used when text is empty"`
}

type analyzeInput struct {
	ImageBase64 string `json:"image_base64" jsonschema:"page image, base64 or a data URL"`
	MimeType    string `json:"mime_type,omitempty" jsonschema:"image MIME type, detected when empty"`
	FileID      string `json:"file_id,omitempty" jsonschema:"store the result under this file"`
	Page        int    `json:"page,omitempty" jsonschema:"page number within the file, defaults to 1"`
	Comment     string `json:"comment,omitempty"`
}

type analyzeOutput struct {
	Analysis *domain.AnalysisResult `json:"analysis"`
	Sections domain.Sections        `json:"sections"`
}

type listFilesInput struct {
	Limit  int `json:"limit,omitempty" jsonschema:"maximum number of files, default 20"`
	Offset int `json:"offset,omitempty"`
}

type pageSectionsInput struct {
	FileID string `json:"file_id"`
	Page   int    `json:"page"`
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        ToolExtractFindings,
		Description: "Extract positioned findings from an EEG report. Each non-blank line becomes a finding with a location and 0-1000 grid coordinates.",
	}, s.handleExtract)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        ToolClassifyFindings,
		Description: "Group EEG findings into the four report sections: Zemin Aktivitesi, Anormal Bulgular, Artefaktlar, Sonuç ve Öneriler.",
	}, s.handleClassify)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        ToolAnalyzeImage,
		Description: "Send an EEG page image to the configured vision model and return its findings and sections.",
	}, s.handleAnalyze)

	if s.store == nil {
		return
	}

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        ToolListFiles,
		Description: "List uploaded EEG records, newest first.",
	}, s.handleListFiles)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        ToolPageSections,
		Description: "Return the classified sections of a stored page analysis.",
	}, s.handlePageSections)
}

func (s *Server) handleExtract(ctx context.Context, req *mcp.CallToolRequest, in extractInput) (*mcp.CallToolResult, any, error) {
	result := service.ParseText(in.Text)
	s.logger.WithField("findings", len(result.Findings)).Debug("extract_findings")
	return jsonResult(result)
}

func (s *Server) handleClassify(ctx context.Context, req *mcp.CallToolRequest, in classifyInput) (*mcp.CallToolResult, any, error) {
	if in.Text != "" {
		return jsonResult(findings.Parse(in.Text))
	}
	return jsonResult(s.analysis.Sections(in.Findings))
}

func (s *Server) handleAnalyze(ctx context.Context, req *mcp.CallToolRequest, in analyzeInput) (*mcp.CallToolResult, any, error) {
	image, mime, err := decodeImage(in.ImageBase64)
	if err != nil {
		return toolError(err)
	}
	if in.MimeType != "" {
		mime = in.MimeType
	}

	var result *domain.AnalysisResult
	if in.FileID != "" && s.store != nil {
		page := in.Page
		if page == 0 {
			page = 1
		}
		stored, err := s.analysis.AnalyzePage(ctx, service.PageRequest{
			FileID:  in.FileID,
			Page:    page,
			Image:   image,
			MIME:    mime,
			Comment: in.Comment,
		})
		if err != nil {
			return toolError(err)
		}
		result = stored.Analysis
	} else {
		result, err = s.analysis.AnalyzeImage(ctx, image, mime)
		if err != nil {
			return toolError(err)
		}
	}

	s.logger.WithFields(logrus.Fields{
		"findings": len(result.Findings),
		"cached":   result.Cached,
	}).Info("analyze_eeg_image")
	return jsonResult(analyzeOutput{Analysis: result, Sections: findings.ClassifyFindings(result.Findings)})
}

func (s *Server) handleListFiles(ctx context.Context, req *mcp.CallToolRequest, in listFilesInput) (*mcp.CallToolResult, any, error) {
	limit := in.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	files, err := s.store.ListFiles(ctx, limit, max(in.Offset, 0))
	if err != nil {
		return toolError(err)
	}
	return jsonResult(map[string]any{"files": files})
}

func (s *Server) handlePageSections(ctx context.Context, req *mcp.CallToolRequest, in pageSectionsInput) (*mcp.CallToolResult, any, error) {
	sections, err := s.analysis.PageSections(ctx, in.FileID, in.Page)
	if err != nil {
		return toolError(err)
	}
	return jsonResult(sections)
}

// decodeImage accepts raw base64 or a data URL and returns the bytes and, for data URLs,
// the declared MIME type.
func decodeImage(s string) ([]byte, string, error) {
	s = strings.TrimSpace(s)
	mime := ""
	if rest, ok := strings.CutPrefix(s, "data:"); ok {
		header, payload, found := strings.Cut(rest, ",")
		if !found {
			return nil, "", domain.NewValidationError("image_base64", "malformed data URL", nil)
		}
		mime, _, _ = strings.Cut(header, ";")
		s = payload
	}
	if s == "" {
		return nil, "", domain.NewValidationError("image_base64", "image is required", nil)
	}

	image, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, "", domain.NewValidationError("image_base64", fmt.Sprintf("invalid base64: %v", err), nil)
	}
	return image, mime, nil
}

func jsonResult(v any) (*mcp.CallToolResult, any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, nil, fmt.Errorf("encoding result: %w", err)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(b)}},
	}, nil, nil
}

func toolError(err error) (*mcp.CallToolResult, any, error) {
	msg := err.Error()
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		msg = fmt.Sprintf("invalid %s: %s", verr.Field, verr.Message)
	case errors.Is(err, domain.ErrNotFound):
		msg = "not found"
	}
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{&mcp.TextContent{Text: msg}},
	}, nil, nil
}
