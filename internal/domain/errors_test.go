package domain

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewAPIError(t *testing.T) {
	err := NewAPIError(ErrVisionAPI, "Analysis failed", "upstream returned 503", "req-456")

	assert.Equal(t, ErrVisionAPI, err.Code)
	assert.Equal(t, "upstream returned 503", err.Details)
	assert.Equal(t, "req-456", err.RequestID)
	assert.WithinDuration(t, time.Now().UTC(), err.Timestamp, time.Minute)
	assert.Equal(t, "VISION_API_ERROR: Analysis failed", err.Error())
}

func TestValidationError(t *testing.T) {
	tests := []struct {
		field   string
		message string
		value   interface{}
		want    string
	}{
		{"file_name", "file name is required", "", "validation error for field 'file_name': file name is required"},
		{"page", "must be positive", -1, "validation error for field 'page': must be positive"},
		{"image", "image is empty", nil, "validation error for field 'image': image is empty"},
	}

	for _, tt := range tests {
		t.Run(tt.field, func(t *testing.T) {
			err := NewValidationError(tt.field, tt.message, tt.value)
			assert.Equal(t, tt.value, err.Value)
			assert.EqualError(t, err, tt.want)

			var verr *ValidationError
			wrapped := fmt.Errorf("saving page: %w", err)
			assert.True(t, errors.As(wrapped, &verr))
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestSentinelsSurviveWrapping(t *testing.T) {
	for _, sentinel := range []error{ErrNotFound, ErrVisionUnavailable, ErrEmptyImage} {
		wrapped := fmt.Errorf("%w: provider timeout", sentinel)
		assert.ErrorIs(t, wrapped, sentinel)
	}
	assert.NotErrorIs(t, ErrNotFound, ErrVisionUnavailable)
}

func TestAPIErrorCodes(t *testing.T) {
	codes := []string{ErrValidation, ErrNotFoundCode, ErrVisionAPI, ErrRateLimit, ErrInternalServer}

	seen := map[string]bool{}
	for _, code := range codes {
		assert.Regexp(t, `^[A-Z_]+$`, code)
		assert.False(t, seen[code], "duplicate code %s", code)
		seen[code] = true
	}
}
