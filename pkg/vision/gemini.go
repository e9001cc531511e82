package vision

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/eeg-findings-server/internal/domain"
)

// GeminiAnalyzer sends page images to a Gemini model through the Go SDK.
type GeminiAnalyzer struct {
	apiKey    string
	model     string
	maxTokens int
}

// GeminiConfig represents configuration for the Gemini client
type GeminiConfig struct {
	APIKey    string `json:"api_key"`
	Model     string `json:"model"`
	MaxTokens int    `json:"max_tokens"`
}

// NewGeminiAnalyzer creates a new Gemini vision client
func NewGeminiAnalyzer(config GeminiConfig) *GeminiAnalyzer {
	if config.Model == "" {
		config.Model = "gemini-1.5-flash"
	}
	if config.MaxTokens == 0 {
		config.MaxTokens = 1000
	}
	return &GeminiAnalyzer{
		apiKey:    strings.TrimSpace(config.APIKey),
		model:     strings.TrimSpace(config.Model),
		maxTokens: config.MaxTokens,
	}
}

func (g *GeminiAnalyzer) Name() string  { return "gemini" }
func (g *GeminiAnalyzer) Model() string { return g.model }

func (g *GeminiAnalyzer) Analyze(ctx context.Context, image []byte, mime string) (string, error) {
	if len(image) == 0 {
		return "", domain.ErrEmptyImage
	}
	if g.apiKey == "" {
		return "", fmt.Errorf("gemini api key is empty")
	}
	if mime == "" {
		mime = SniffMIME(image)
	}

	cl, err := genai.NewClient(ctx, option.WithAPIKey(g.apiKey))
	if err != nil {
		return "", fmt.Errorf("failed to create gemini client: %w", err)
	}
	defer cl.Close()

	m := cl.GenerativeModel(g.model)
	m.GenerationConfig = genai.GenerationConfig{
		Temperature:     ptrFloat32(0),
		MaxOutputTokens: ptrInt32(int32(g.maxTokens)),
	}
	m.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(SystemPrompt)},
	}

	resp, err := m.GenerateContent(ctx,
		&genai.Blob{MIMEType: mime, Data: image},
		genai.Text(UserPrompt),
	)
	if err != nil {
		return "", fmt.Errorf("gemini generate content failed: %w", err)
	}
	return responseText(resp), nil
}

// responseText joins the text parts of the first candidate that has content.
func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	for _, c := range resp.Candidates {
		if c == nil || c.Content == nil {
			continue
		}
		var sb strings.Builder
		for _, p := range c.Content.Parts {
			if t, ok := p.(genai.Text); ok {
				sb.WriteString(string(t))
			}
		}
		if sb.Len() > 0 {
			return sb.String()
		}
	}
	return ""
}

func ptrFloat32(v float32) *float32 { return &v }
func ptrInt32(v int32) *int32       { return &v }
