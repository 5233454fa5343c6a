package transcription

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sdt-zeiss/prototype-ai/internal/apperrors"
)

// fakeGladia serves upload, transcription and polling endpoints.
// statuses are returned by successive polls; the last one repeats.
type fakeGladia struct {
	t        *testing.T
	statuses []string
	polls    atomic.Int32
	server   *httptest.Server

	uploadedContentType string
	uploadedBytes       []byte
	requestBody         map[string]any
}

func newFakeGladia(t *testing.T, statuses ...string) *fakeGladia {
	t.Helper()

	f := &fakeGladia{t: t, statuses: statuses}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v2/upload", f.upload)
	mux.HandleFunc("POST /v2/transcription", f.transcription)
	mux.HandleFunc("GET /v2/transcription/job-1", f.poll)

	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)

	return f
}

func (f *fakeGladia) upload(w http.ResponseWriter, r *http.Request) {
	assert.Equal(f.t, "secret", r.Header.Get("x-gladia-key"))

	file, header, err := r.FormFile("audio")
	require.NoError(f.t, err)

	defer file.Close()

	f.uploadedContentType = header.Header.Get("Content-Type")
	f.uploadedBytes, _ = io.ReadAll(file)

	writeJSON(w, map[string]any{"audio_url": "https://api.gladia.io/file/abc"})
}

func (f *fakeGladia) transcription(w http.ResponseWriter, r *http.Request) {
	require.NoError(f.t, json.NewDecoder(r.Body).Decode(&f.requestBody))

	writeJSON(w, map[string]any{"id": "job-1", "result_url": f.server.URL + "/v2/transcription/job-1"})
}

func (f *fakeGladia) poll(w http.ResponseWriter, _ *http.Request) {
	n := int(f.polls.Add(1))
	status := f.statuses[min(n, len(f.statuses))-1]

	body := map[string]any{"id": "job-1", "status": status}
	if status == StatusDone {
		body["result"] = map[string]any{
			"transcription": map[string]any{
				"utterances": []map[string]any{
					{"text": "Welcome to the show.", "speaker": 0, "start": 0.5, "end": 2.1},
					{"text": "Thanks for having me.", "speaker": 1, "start": 2.4, "end": 3.9},
					{"text": "Let's talk gardening.", "speaker": 0, "start": 4.0, "end": 6.2},
				},
			},
		}
	}

	writeJSON(w, body)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func (f *fakeGladia) client(opts ClientOptions) *Client {
	opts.BaseURL = f.server.URL
	opts.APIKey = "secret"
	opts.RetryMax = 1

	if opts.PollInterval == 0 {
		opts.PollInterval = time.Millisecond
	}

	return NewClient(opts)
}

func TestTranscribe_QueuedThenDone_PollsTwice(t *testing.T) {
	fake := newFakeGladia(t, StatusQueued, StatusDone)

	var seen []string

	client := fake.client(ClientOptions{OnPoll: func(_ int, status string) { seen = append(seen, status) }})

	utterances, err := client.Transcribe(t.Context(), "https://example.com/episode.mp3")
	require.NoError(t, err)

	assert.Equal(t, int32(2), fake.polls.Load())
	assert.Equal(t, []string{StatusQueued, StatusDone}, seen)
	assert.Len(t, utterances, 3)
	assert.Equal(t, "https://example.com/episode.mp3", fake.requestBody["audio_url"])
	assert.Equal(t, true, fake.requestBody["diarization"])
}

func TestTranscribe_ProcessingKeepsPolling(t *testing.T) {
	fake := newFakeGladia(t, StatusQueued, StatusProcessing, StatusProcessing, StatusDone)

	_, err := fake.client(ClientOptions{}).Transcribe(t.Context(), "https://example.com/a.mp3")
	require.NoError(t, err)
	assert.Equal(t, int32(4), fake.polls.Load())
}

func TestTranscribe_ErrorStatus(t *testing.T) {
	fake := newFakeGladia(t, StatusQueued, StatusError)

	_, err := fake.client(ClientOptions{}).Transcribe(t.Context(), "https://example.com/a.mp3")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTranscriptionFailed)
	assert.ErrorIs(t, err, apperrors.ErrUpstream)
}

func TestTranscribe_MaxPollsExhausted(t *testing.T) {
	fake := newFakeGladia(t, StatusQueued)

	_, err := fake.client(ClientOptions{MaxPolls: 3}).Transcribe(t.Context(), "https://example.com/a.mp3")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPollTimeout)
	assert.ErrorIs(t, err, apperrors.ErrTimeout)
	assert.Equal(t, int32(3), fake.polls.Load())
}

func TestTranscribe_MaxWaitExhausted(t *testing.T) {
	fake := newFakeGladia(t, StatusQueued)

	client := fake.client(ClientOptions{PollInterval: 20 * time.Millisecond, MaxWait: 50 * time.Millisecond})

	_, err := client.Transcribe(t.Context(), "https://example.com/a.mp3")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrTimeout)
}

func TestTranscribe_ContextCancelled(t *testing.T) {
	fake := newFakeGladia(t, StatusQueued)

	ctx, cancel := context.WithCancel(t.Context())
	client := fake.client(ClientOptions{
		PollInterval: 10 * time.Millisecond,
		OnPoll:       func(int, string) { cancel() },
	})

	_, err := client.Transcribe(ctx, "https://example.com/a.mp3")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, apperrors.ErrTimeout)
}

func TestTranscribeFile_UploadsMultipart(t *testing.T) {
	fake := newFakeGladia(t, StatusDone)

	audio := []byte("ID3 fake mp3 bytes")

	utterances, err := fake.client(ClientOptions{}).TranscribeFile(t.Context(), "episode.mp3", "mp3", bytes.NewReader(audio))
	require.NoError(t, err)

	assert.Equal(t, "audio/mp3", fake.uploadedContentType)
	assert.Equal(t, audio, fake.uploadedBytes)
	assert.Len(t, utterances, 3)
}

func TestUpload_NonSeekableReader(t *testing.T) {
	fake := newFakeGladia(t, StatusDone)

	url, err := fake.client(ClientOptions{}).Upload(t.Context(), "", "WAV", io.NopCloser(strings.NewReader("RIFF")))
	require.NoError(t, err)

	assert.Equal(t, "https://api.gladia.io/file/abc", url)
	assert.Equal(t, "audio/wav", fake.uploadedContentType)
	assert.Equal(t, []byte("RIFF"), fake.uploadedBytes)
}

func TestUpload_MissingAudioURL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, map[string]any{})
	}))
	t.Cleanup(server.Close)

	client := NewClient(ClientOptions{BaseURL: server.URL, APIKey: "secret", RetryMax: 1})

	_, err := client.Upload(t.Context(), "a.mp3", "mp3", strings.NewReader("x"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUploadFailed)
	assert.ErrorIs(t, err, apperrors.ErrUpstream)
}

func TestRequestTranscription_RejectedRequest(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"message":"invalid audio_url"}`))
	}))
	t.Cleanup(server.Close)

	client := NewClient(ClientOptions{BaseURL: server.URL + "/v2/", APIKey: "secret", RetryMax: 1})

	_, err := client.RequestTranscription(t.Context(), "not-a-url")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTranscriptionFailed)
	assert.Contains(t, err.Error(), "422")
}
