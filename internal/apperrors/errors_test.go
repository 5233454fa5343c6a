package apperrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSentinels(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		sentinel error
	}{
		{"not found", NewNotFoundError("post", ""), ErrNotFound},
		{"validation", NewValidationError("question", "question is required"), ErrValidation},
		{"upstream", NewUpstreamError("gladia", "upload", errors.New("502")), ErrUpstream},
		{"timeout", NewTimeoutError("transcription poll", ""), ErrTimeout},
		{"malformed", NewMalformedOutputError("missing [SEP]", "Title : x"), ErrMalformedOutput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := fmt.Errorf("service: %w", tt.err)
			assert.ErrorIs(t, wrapped, tt.sentinel)
		})
	}
}

func TestSentinels_DoNotCrossMatch(t *testing.T) {
	err := NewTimeoutError("poll", "")

	assert.NotErrorIs(t, err, ErrUpstream)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestUpstreamError_Unwrap(t *testing.T) {
	cause := errors.New("connection reset")
	err := NewUpstreamError("openai", "chat completion", cause)

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "openai chat completion: connection reset", err.Error())
}

func TestErrorMessages(t *testing.T) {
	assert.Equal(t, "post not found", NewNotFoundError("post", "").Error())
	assert.Equal(t, "validation failed for field: audio_url", NewValidationError("audio_url", "").Error())
	assert.Equal(t, "transcription poll timed out", NewTimeoutError("transcription poll", "").Error())
	assert.Equal(t, "malformed model output", (&MalformedOutputError{}).Error())
}
