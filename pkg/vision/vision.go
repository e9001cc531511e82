// Package vision sends EEG page images to vision-capable language models and returns their raw
// text report. Providers are selected from configuration and wrapped with a circuit breaker and a
// rate limiter.
package vision

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/eeg-findings-server/internal/domain"
)

// Provider names accepted in configuration.
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
	ProviderNone   = "none"
)

// New builds the analyzer configured in cfg.
func New(cfg domain.VisionConfig, logger *logrus.Logger) (domain.VisionAnalyzer, error) {
	var base domain.VisionAnalyzer
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case ProviderOpenAI:
		base = NewOpenAIAnalyzer(OpenAIConfig{
			BaseURL:   cfg.OpenAI.BaseURL,
			APIKey:    cfg.OpenAI.APIKey,
			Model:     cfg.OpenAI.Model,
			Timeout:   cfg.Timeout,
			MaxTokens: cfg.MaxTokens,
		})
	case ProviderGemini:
		base = NewGeminiAnalyzer(GeminiConfig{
			APIKey:    cfg.Gemini.APIKey,
			Model:     cfg.Gemini.Model,
			MaxTokens: cfg.MaxTokens,
		})
	case ProviderNone, "":
		return Disabled{}, nil
	default:
		return nil, fmt.Errorf("unknown vision provider %q", cfg.Provider)
	}

	return NewResilientAnalyzer(base, ResilienceConfig{RateLimit: cfg.RateLimit}, logger), nil
}

// Disabled is the analyzer used when no provider is configured. Parsing and classification of
// supplied text keep working.
type Disabled struct{}

func (Disabled) Name() string  { return ProviderNone }
func (Disabled) Model() string { return "" }

func (Disabled) Analyze(context.Context, []byte, string) (string, error) {
	return "", fmt.Errorf("%w: no vision provider configured", domain.ErrVisionUnavailable)
}
