// Package transcription is a client for the Gladia v2 speech-to-text API:
// upload audio, submit a diarized job, poll it to completion and reshape the utterances.
package transcription

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/sdt-zeiss/prototype-ai/internal/apperrors"
	"github.com/sdt-zeiss/prototype-ai/internal/models"
	"github.com/sdt-zeiss/prototype-ai/internal/observability"
)

const vendor = "gladia"

// Job statuses reported by the polling endpoint.
const (
	StatusQueued     = "queued"
	StatusProcessing = "processing"
	StatusDone       = "done"
	StatusError      = "error"
)

var (
	// ErrUploadFailed is returned when the upload endpoint rejects the audio or returns no audio_url.
	ErrUploadFailed = errors.New("audio upload failed")
	// ErrTranscriptionFailed is returned when a job cannot be created or finishes with status "error".
	ErrTranscriptionFailed = errors.New("transcription failed")
	// ErrPollTimeout is returned when polling exhausts its attempt or wall-clock budget.
	ErrPollTimeout = apperrors.NewTimeoutError("transcription poll", "transcription did not finish in time")
)

// ClientOptions configures the Gladia client.
type ClientOptions struct {
	// BaseURL is the API root (default: "https://api.gladia.io"); /v2 is added automatically.
	BaseURL string
	// APIKey is sent as the x-gladia-key header.
	APIKey string
	// RetryMax is the maximum number of HTTP retries per request (default: 3).
	RetryMax int
	// Timeout is the per-request HTTP timeout (default: 5 minutes, uploads can be large).
	Timeout time.Duration
	// PollInterval is the fixed wait between status polls (default: 1 second).
	PollInterval time.Duration
	// MaxPolls bounds the number of status polls (default: 1800).
	MaxPolls int
	// MaxWait bounds the total polling time (default: 30 minutes).
	MaxWait time.Duration
	// OnPoll, when set, is called after every status poll.
	OnPoll func(attempt int, status string)

	VendorMetrics   observability.VendorMetrics
	PipelineMetrics observability.PipelineMetrics
}

// Client is the Gladia API client.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *retryablehttp.Client
	opts       ClientOptions
}

// NewClient creates a Gladia client, filling unset options with defaults.
func NewClient(opts ClientOptions) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = "https://api.gladia.io"
	}

	opts.BaseURL = strings.TrimSuffix(opts.BaseURL, "/")
	opts.BaseURL = strings.TrimSuffix(opts.BaseURL, "/v2")

	if opts.Timeout == 0 {
		opts.Timeout = 5 * time.Minute
	}

	if opts.RetryMax == 0 {
		opts.RetryMax = 3
	}

	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second
	}

	if opts.MaxPolls <= 0 {
		opts.MaxPolls = 1800
	}

	if opts.MaxWait <= 0 {
		opts.MaxWait = 30 * time.Minute
	}

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = opts.RetryMax
	retryClient.HTTPClient.Timeout = opts.Timeout
	retryClient.Logger = nil

	return &Client{
		baseURL:    opts.BaseURL,
		apiKey:     opts.APIKey,
		httpClient: retryClient,
		opts:       opts,
	}
}

func (c *Client) v2URL() string {
	return c.baseURL + "/v2"
}

type uploadResponse struct {
	AudioURL string `json:"audio_url"`
}

type transcriptionJob struct {
	ID        string `json:"id"`
	ResultURL string `json:"result_url"`
}

// Upload sends audio to the upload endpoint as multipart field "audio" with content type audio/<ext>
// and returns the hosted audio URL.
func (c *Client) Upload(ctx context.Context, filename, ext string, audio io.Reader) (string, error) {
	body, contentType, err := multipartAudio(filename, ext, audio)
	if err != nil {
		return "", err
	}

	var out uploadResponse

	err = observability.TimeVendorCall(ctx, c.opts.VendorMetrics, vendor, "upload", func() error {
		return c.doJSON(ctx, http.MethodPost, c.v2URL()+"/upload", contentType, body, &out)
	})
	if err != nil {
		return "", apperrors.NewUpstreamError(vendor, "upload", fmt.Errorf("%w: %w", ErrUploadFailed, err))
	}

	if out.AudioURL == "" {
		return "", apperrors.NewUpstreamError(vendor, "upload", fmt.Errorf("%w: response has no audio_url", ErrUploadFailed))
	}

	return out.AudioURL, nil
}

// RequestTranscription submits a diarized transcription job for audioURL and returns its polling URL.
func (c *Client) RequestTranscription(ctx context.Context, audioURL string) (string, error) {
	payload, err := json.Marshal(map[string]any{
		"audio_url":   audioURL,
		"diarization": true,
	})
	if err != nil {
		return "", fmt.Errorf("marshal transcription request: %w", err)
	}

	var job transcriptionJob

	err = observability.TimeVendorCall(ctx, c.opts.VendorMetrics, vendor, "request", func() error {
		return c.doJSON(ctx, http.MethodPost, c.v2URL()+"/transcription", "application/json", payload, &job)
	})
	if err != nil {
		return "", apperrors.NewUpstreamError(vendor, "request", fmt.Errorf("%w: %w", ErrTranscriptionFailed, err))
	}

	if job.ResultURL == "" {
		return "", apperrors.NewUpstreamError(vendor, "request",
			fmt.Errorf("%w: response has no result_url", ErrTranscriptionFailed))
	}

	return job.ResultURL, nil
}

// GetTranscription fetches the current state of a job from its polling URL.
func (c *Client) GetTranscription(ctx context.Context, resultURL string) (*TranscriptionResponse, error) {
	var out TranscriptionResponse

	err := observability.TimeVendorCall(ctx, c.opts.VendorMetrics, vendor, "poll", func() error {
		return c.doJSON(ctx, http.MethodGet, resultURL, "", nil, &out)
	})
	if err != nil {
		return nil, apperrors.NewUpstreamError(vendor, "poll", err)
	}

	return &out, nil
}

// TranscribeFile uploads audio and runs Transcribe on the hosted URL.
func (c *Client) TranscribeFile(ctx context.Context, filename, ext string, audio io.Reader) ([]models.Utterance, error) {
	audioURL, err := c.Upload(ctx, filename, ext, audio)
	if err != nil {
		return nil, err
	}

	return c.Transcribe(ctx, audioURL)
}

// Transcribe submits a job for audioURL and polls at a fixed interval until it is done.
// Polling stops after MaxPolls attempts or MaxWait, whichever comes first, and when ctx is cancelled.
func (c *Client) Transcribe(ctx context.Context, audioURL string) ([]models.Utterance, error) {
	resultURL, err := c.RequestTranscription(ctx, audioURL)
	if err != nil {
		return nil, err
	}

	resp, err := c.poll(ctx, resultURL)
	if err != nil {
		return nil, err
	}

	return GenerateUtterances(resp)
}

func (c *Client) poll(ctx context.Context, resultURL string) (*TranscriptionResponse, error) {
	waitCtx, cancel := context.WithTimeout(ctx, c.opts.MaxWait)
	defer cancel()

	for attempt := 1; attempt <= c.opts.MaxPolls; attempt++ {
		if attempt > 1 {
			timer := time.NewTimer(c.opts.PollInterval)

			select {
			case <-waitCtx.Done():
				timer.Stop()

				return nil, c.pollStopped(ctx, attempt-1)
			case <-timer.C:
			}
		}

		resp, err := c.GetTranscription(waitCtx, resultURL)
		if err != nil {
			if waitCtx.Err() != nil {
				return nil, c.pollStopped(ctx, attempt)
			}

			return nil, err
		}

		if c.opts.OnPoll != nil {
			c.opts.OnPoll(attempt, resp.Status)
		}

		switch resp.Status {
		case StatusDone:
			c.recordPolls(ctx, attempt)

			return resp, nil
		case StatusError:
			c.recordPolls(ctx, attempt)

			return nil, apperrors.NewUpstreamError(vendor, "poll",
				fmt.Errorf("%w: job %s ended with status error (code %d)", ErrTranscriptionFailed, resp.ID, resp.ErrorCode))
		default:
			slog.DebugContext(ctx, "Transcription not ready", "status", resp.Status, "attempt", attempt)
		}
	}

	c.recordPolls(ctx, c.opts.MaxPolls)

	return nil, fmt.Errorf("%w: %d polls", ErrPollTimeout, c.opts.MaxPolls)
}

// pollStopped reports why polling ended early: caller cancellation or the MaxWait budget.
func (c *Client) pollStopped(ctx context.Context, polls int) error {
	c.recordPolls(ctx, polls)

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("transcription polling cancelled: %w", err)
	}

	return fmt.Errorf("%w: waited %s", ErrPollTimeout, c.opts.MaxWait)
}

func (c *Client) recordPolls(ctx context.Context, polls int) {
	if c.opts.PipelineMetrics != nil {
		c.opts.PipelineMetrics.RecordTranscriptionPolls(ctx, polls)
	}
}

// doJSON executes a request and decodes a 2xx JSON response into out.
// body may be nil, a []byte or a retryablehttp.ReaderFunc.
func (c *Client) doJSON(ctx context.Context, method, url, contentType string, body, out any) error {
	req, err := retryablehttp.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("x-gladia-key", c.apiKey)
	req.Header.Set("Accept", "application/json")

	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Error("Failed to close response body", "error", err)
		}
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}

// multipartAudio builds a replayable multipart body holding the audio as field "audio".
// Seekable readers (temp files) are streamed and rewound on retry; others are buffered once.
func multipartAudio(filename, ext string, audio io.Reader) (retryablehttp.ReaderFunc, string, error) {
	ext = strings.TrimPrefix(strings.ToLower(ext), ".")
	if filename == "" {
		filename = "audio." + ext
	}

	seeker, seekable := audio.(io.ReadSeeker)
	if !seekable {
		data, err := io.ReadAll(audio)
		if err != nil {
			return nil, "", fmt.Errorf("read audio: %w", err)
		}

		seeker = bytes.NewReader(data)
	}

	boundary := multipart.NewWriter(io.Discard).Boundary()

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="audio"; filename=%q`, filename))
	header.Set("Content-Type", "audio/"+ext)

	readerFunc := func() (io.Reader, error) {
		if _, err := seeker.Seek(0, io.SeekStart); err != nil {
			return nil, fmt.Errorf("rewind audio: %w", err)
		}

		pr, pw := io.Pipe()

		go func() {
			mw := multipart.NewWriter(pw)
			if err := mw.SetBoundary(boundary); err != nil {
				pw.CloseWithError(err)

				return
			}

			part, err := mw.CreatePart(header)
			if err != nil {
				pw.CloseWithError(err)

				return
			}

			if _, err := io.Copy(part, seeker); err != nil {
				pw.CloseWithError(err)

				return
			}

			pw.CloseWithError(mw.Close())
		}()

		return pr, nil
	}

	return readerFunc, "multipart/form-data; boundary=" + boundary, nil
}
