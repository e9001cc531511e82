package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/eeg-findings-server/internal/domain"
	"github.com/eeg-findings-server/pkg/vision"
)

// Resource URIs
const (
	ResourceSections     = "eeg://sections"
	ResourceSystemPrompt = "eeg://prompt/system"
)

// PromptReportFormat is the prompt clients use to ask their own model for a report in the
// format the tools parse.
const PromptReportFormat = "eeg_report_format"

type sectionInfo struct {
	Key  domain.SectionKey  `json:"key"`
	Kind domain.SectionKind `json:"kind"`
}

func (s *Server) registerResources() {
	s.mcpServer.AddResource(&mcp.Resource{
		URI:         ResourceSections,
		Name:        "sections",
		Description: "The fixed report sections in display order",
		MIMEType:    "application/json",
	}, func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		infos := make([]sectionInfo, 0, len(domain.SectionOrder))
		for _, key := range domain.SectionOrder {
			infos = append(infos, sectionInfo{Key: key, Kind: key.Kind()})
		}
		b, err := json.Marshal(infos)
		if err != nil {
			return nil, fmt.Errorf("encoding sections: %w", err)
		}
		return &mcp.ReadResourceResult{Contents: []*mcp.ResourceContents{
			{URI: ResourceSections, MIMEType: "application/json", Text: string(b)},
		}}, nil
	})

	s.mcpServer.AddResource(&mcp.Resource{
		URI:         ResourceSystemPrompt,
		Name:        "system-prompt",
		Description: "System prompt sent to the vision model",
		MIMEType:    "text/plain",
	}, func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		return &mcp.ReadResourceResult{Contents: []*mcp.ResourceContents{
			{URI: ResourceSystemPrompt, MIMEType: "text/plain", Text: vision.SystemPrompt},
		}}, nil
	})
}

func (s *Server) registerPrompts() {
	s.mcpServer.AddPrompt(&mcp.Prompt{
		Name:        PromptReportFormat,
		Description: "Instructions for writing an EEG report that extract_findings and classify_findings understand",
	}, func(ctx context.Context, req *mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
		return &mcp.GetPromptResult{
			Description: "EEG report format",
			Messages: []*mcp.PromptMessage{
				{Role: "user", Content: &mcp.TextContent{Text: vision.SystemPrompt + "\n\n" + vision.UserPrompt}},
			},
		}, nil
	})
}
