package vision

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/eeg-findings-server/internal/domain"
)

// OpenAIAnalyzer sends page images to an OpenAI-compatible chat completions endpoint.
type OpenAIAnalyzer struct {
	client    *resty.Client
	apiKey    string
	model     string
	maxTokens int
}

// OpenAIConfig represents configuration for the OpenAI client
type OpenAIConfig struct {
	BaseURL    string        `json:"base_url"`
	APIKey     string        `json:"api_key"`
	Model      string        `json:"model"`
	Timeout    time.Duration `json:"timeout"`
	MaxTokens  int           `json:"max_tokens"`
	RetryCount int           `json:"retry_count"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

// chatMessage content is a string for the system turn and a list of parts for the user turn.
type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type openAIErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// NewOpenAIAnalyzer creates a new OpenAI vision client
func NewOpenAIAnalyzer(config OpenAIConfig) *OpenAIAnalyzer {
	if config.BaseURL == "" {
		config.BaseURL = "https://api.openai.com/v1"
	}
	if config.Model == "" {
		config.Model = "gpt-4-turbo"
	}
	if config.Timeout == 0 {
		config.Timeout = 60 * time.Second
	}
	if config.MaxTokens == 0 {
		config.MaxTokens = 1000
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(config.BaseURL, "/")).
		SetTimeout(config.Timeout).
		SetRetryCount(config.RetryCount).
		SetHeader("Content-Type", "application/json")
	if config.APIKey != "" {
		client.SetAuthToken(config.APIKey)
	}

	return &OpenAIAnalyzer{
		client:    client,
		apiKey:    config.APIKey,
		model:     config.Model,
		maxTokens: config.MaxTokens,
	}
}

func (a *OpenAIAnalyzer) Name() string  { return "openai" }
func (a *OpenAIAnalyzer) Model() string { return a.model }

// Analyze returns the text of the first choice, or "" when the model answered with nothing.
func (a *OpenAIAnalyzer) Analyze(ctx context.Context, image []byte, mime string) (string, error) {
	if len(image) == 0 {
		return "", domain.ErrEmptyImage
	}
	if a.apiKey == "" {
		return "", fmt.Errorf("openai api key is empty")
	}
	if mime == "" {
		mime = SniffMIME(image)
	}

	body := chatRequest{
		Model: a.model,
		Messages: []chatMessage{
			{Role: "system", Content: SystemPrompt},
			{Role: "user", Content: []contentPart{
				{Type: "image_url", ImageURL: &imageURL{URL: DataURL(mime, image)}},
				{Type: "text", Text: UserPrompt},
			}},
		},
		Temperature: 0,
		MaxTokens:   a.maxTokens,
	}

	var out chatResponse
	var apiErr openAIErrorResponse
	resp, err := a.client.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&out).
		SetError(&apiErr).
		Post("/chat/completions")
	if err != nil {
		return "", fmt.Errorf("openai request failed: %w", err)
	}
	if resp.IsError() {
		msg := apiErr.Error.Message
		if msg == "" {
			msg = strings.TrimSpace(resp.String())
		}
		return "", fmt.Errorf("openai returned status %d: %s", resp.StatusCode(), msg)
	}

	if len(out.Choices) == 0 {
		return "", nil
	}
	return out.Choices[0].Message.Content, nil
}
