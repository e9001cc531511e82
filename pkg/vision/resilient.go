package vision

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/eeg-findings-server/internal/domain"
)

// ResilienceConfig represents circuit breaker and rate limit settings for a vision provider
type ResilienceConfig struct {
	RateLimit    float64       `json:"rate_limit"` // requests per second, 0 disables limiting
	Burst        int           `json:"burst"`
	MaxRequests  uint32        `json:"max_requests"` // allowed while half-open
	Interval     time.Duration `json:"interval"`
	Timeout      time.Duration `json:"timeout"` // open -> half-open
	MinRequests  uint32        `json:"min_requests"`
	FailureRatio float64       `json:"failure_ratio"`
}

// ResilientAnalyzer wraps an analyzer with a circuit breaker and a token bucket.
type ResilientAnalyzer struct {
	next    domain.VisionAnalyzer
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter
}

// NewResilientAnalyzer creates a new resilient analyzer around next
func NewResilientAnalyzer(next domain.VisionAnalyzer, config ResilienceConfig, logger *logrus.Logger) *ResilientAnalyzer {
	if config.MaxRequests == 0 {
		config.MaxRequests = 3
	}
	if config.Interval == 0 {
		config.Interval = 30 * time.Second
	}
	if config.Timeout == 0 {
		config.Timeout = 60 * time.Second
	}
	if config.MinRequests == 0 {
		config.MinRequests = 3
	}
	if config.FailureRatio == 0 {
		config.FailureRatio = 0.6
	}
	if config.Burst == 0 {
		config.Burst = 1
	}

	limit := rate.Inf
	if config.RateLimit > 0 {
		limit = rate.Limit(config.RateLimit)
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        next.Name(),
		MaxRequests: config.MaxRequests,
		Interval:    config.Interval,
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= config.MinRequests && failureRatio >= config.FailureRatio
		},
		IsSuccessful: func(err error) bool {
			// empty images and cancellations do not count against the provider
			return err == nil ||
				errors.Is(err, domain.ErrEmptyImage) ||
				errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			if logger == nil {
				return
			}
			logger.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Vision circuit breaker changed state")
		},
	})

	return &ResilientAnalyzer{
		next:    next,
		breaker: breaker,
		limiter: rate.NewLimiter(limit, config.Burst),
	}
}

func (r *ResilientAnalyzer) Name() string  { return r.next.Name() }
func (r *ResilientAnalyzer) Model() string { return r.next.Model() }

// State returns the breaker state.
func (r *ResilientAnalyzer) State() gobreaker.State { return r.breaker.State() }

func (r *ResilientAnalyzer) Analyze(ctx context.Context, image []byte, mime string) (string, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit wait failed: %w", err)
	}

	result, err := r.breaker.Execute(func() (interface{}, error) {
		return r.next.Analyze(ctx, image, mime)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return "", fmt.Errorf("%w: %s circuit breaker is %s", domain.ErrVisionUnavailable, r.Name(), r.breaker.State())
	}
	if err != nil {
		return "", err
	}
	return result.(string), nil
}
