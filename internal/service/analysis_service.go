// Package service holds the application services the HTTP handlers and workers call into.
package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/sdt-zeiss/prototype-ai/internal/apperrors"
	"github.com/sdt-zeiss/prototype-ai/internal/models"
	"github.com/sdt-zeiss/prototype-ai/internal/topics"
	"github.com/sdt-zeiss/prototype-ai/internal/transcription"
)

// Transcriber turns audio into utterances.
type Transcriber interface {
	TranscribeFile(ctx context.Context, filename, ext string, audio io.Reader) ([]models.Utterance, error)
	Transcribe(ctx context.Context, audioURL string) ([]models.Utterance, error)
}

// PostPipeline turns utterances into persisted posts.
type PostPipeline interface {
	Run(ctx context.Context, utterances []models.Utterance) (*topics.Result, error)
}

// AnalysisService runs transcription followed by the topic pipeline.
type AnalysisService struct {
	transcriber  Transcriber
	pipeline     PostPipeline
	snapshotPath string
}

// NewAnalysisService creates the service. When snapshotPath is set every transcript is also
// written there as CSV, overwriting the previous one.
func NewAnalysisService(transcriber Transcriber, pipeline PostPipeline, snapshotPath string) *AnalysisService {
	return &AnalysisService{transcriber: transcriber, pipeline: pipeline, snapshotPath: snapshotPath}
}

// AnalyzeFile uploads audio, transcribes it and generates posts.
func (s *AnalysisService) AnalyzeFile(ctx context.Context, filename, ext string, audio io.Reader) (*topics.Result, error) {
	utterances, err := s.transcriber.TranscribeFile(ctx, filename, ext, audio)
	if err != nil {
		return nil, fmt.Errorf("transcribe upload: %w", err)
	}

	return s.analyze(ctx, utterances)
}

// AnalyzeURL transcribes hosted audio and generates posts.
func (s *AnalysisService) AnalyzeURL(ctx context.Context, audioURL string) (*topics.Result, error) {
	if audioURL == "" {
		return nil, apperrors.NewValidationError("audio_url", "audio_url is required")
	}

	utterances, err := s.transcriber.Transcribe(ctx, audioURL)
	if err != nil {
		return nil, fmt.Errorf("transcribe url: %w", err)
	}

	return s.analyze(ctx, utterances)
}

func (s *AnalysisService) analyze(ctx context.Context, utterances []models.Utterance) (*topics.Result, error) {
	if s.snapshotPath != "" {
		if err := transcription.WriteSnapshot(s.snapshotPath, utterances); err != nil {
			slog.WarnContext(ctx, "Failed to write transcript snapshot", "path", s.snapshotPath, "error", err)
		}
	}

	slog.InfoContext(ctx, "Transcription finished", "utterances", len(utterances))

	result, err := s.pipeline.Run(ctx, utterances)
	if err != nil {
		return nil, fmt.Errorf("generate posts: %w", err)
	}

	return result, nil
}
