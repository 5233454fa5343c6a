package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sdt-zeiss/prototype-ai/internal/api/response"
	"github.com/sdt-zeiss/prototype-ai/internal/apperrors"
	"github.com/sdt-zeiss/prototype-ai/internal/jobs"
	"github.com/sdt-zeiss/prototype-ai/internal/models"
	"github.com/sdt-zeiss/prototype-ai/internal/topics"
)

type fakeAnswerer struct {
	calls  int
	answer string
	err    error
}

func (f *fakeAnswerer) Answer(context.Context, string) (string, error) {
	f.calls++

	return f.answer, f.err
}

func decodeProblem(t *testing.T, rec *httptest.ResponseRecorder) response.ProblemDetails {
	t.Helper()

	var problem response.ProblemDetails
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))

	return problem
}

func TestAskHandler(t *testing.T) {
	t.Run("missing question is 400 without vendor call", func(t *testing.T) {
		answerer := &fakeAnswerer{}
		rec := httptest.NewRecorder()

		NewAskHandler(answerer).Ask(rec, httptest.NewRequest(http.MethodPost, "/ask", strings.NewReader(`{}`)))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
		assert.Equal(t, http.StatusBadRequest, decodeProblem(t, rec).Status)
		assert.Zero(t, answerer.calls)
	})

	t.Run("malformed body is 400", func(t *testing.T) {
		answerer := &fakeAnswerer{}
		rec := httptest.NewRecorder()

		NewAskHandler(answerer).Ask(rec, httptest.NewRequest(http.MethodPost, "/ask", strings.NewReader(`{"question":`)))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Zero(t, answerer.calls)
	})

	t.Run("returns answer verbatim", func(t *testing.T) {
		answerer := &fakeAnswerer{answer: "  People want more benches.\n"}
		rec := httptest.NewRecorder()

		NewAskHandler(answerer).Ask(rec, httptest.NewRequest(http.MethodPost, "/ask", strings.NewReader(`{"question":"benches?"}`)))

		require.Equal(t, http.StatusOK, rec.Code)

		var resp AskResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "  People want more benches.\n", resp.Answer)
	})

	t.Run("extra body fields are ignored", func(t *testing.T) {
		answerer := &fakeAnswerer{answer: "ok"}
		rec := httptest.NewRecorder()

		NewAskHandler(answerer).Ask(rec, httptest.NewRequest(http.MethodPost, "/ask",
			strings.NewReader(`{"question":"benches?","user_id":"u-1","history":[]}`)))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 1, answerer.calls)
	})

	t.Run("upstream failure is 502", func(t *testing.T) {
		answerer := &fakeAnswerer{err: apperrors.NewUpstreamError("openai", "chat", errors.New("503"))}
		rec := httptest.NewRecorder()

		NewAskHandler(answerer).Ask(rec, httptest.NewRequest(http.MethodPost, "/ask", strings.NewReader(`{"question":"q"}`)))

		assert.Equal(t, http.StatusBadGateway, rec.Code)
	})
}

type fakeAnalysis struct {
	gotFile     string
	gotExt      string
	gotURL      string
	tempPathSaw string
	result      *topics.Result
	err         error
}

func (f *fakeAnalysis) AnalyzeFile(_ context.Context, filename, ext string, audio io.Reader) (*topics.Result, error) {
	data, _ := io.ReadAll(audio)
	f.gotFile, f.gotExt = filename+":"+string(data), ext

	if file, ok := audio.(*os.File); ok {
		f.tempPathSaw = file.Name()
	}

	return f.result, f.err
}

func (f *fakeAnalysis) AnalyzeURL(_ context.Context, audioURL string) (*topics.Result, error) {
	f.gotURL = audioURL

	return f.result, f.err
}

type fakeInserter struct {
	analyze []jobs.AnalyzeURLArgs
	reindex []jobs.ReindexCommentsArgs
}

func (f *fakeInserter) InsertReindexComments(_ context.Context, args jobs.ReindexCommentsArgs) (int64, error) {
	f.reindex = append(f.reindex, args)

	return 11, nil
}

func (f *fakeInserter) InsertAnalyzeURL(_ context.Context, args jobs.AnalyzeURLArgs) (int64, error) {
	f.analyze = append(f.analyze, args)

	return 42, nil
}

type fakeUploadMetrics struct {
	rejected []string
	sizes    []int64
}

func (f *fakeUploadMetrics) RecordRequestBodyTooLarge(context.Context, string) {}

func (f *fakeUploadMetrics) RecordUploadRejected(_ context.Context, reason string) {
	f.rejected = append(f.rejected, reason)
}

func (f *fakeUploadMetrics) RecordUploadBytes(_ context.Context, n int64) {
	f.sizes = append(f.sizes, n)
}

func multipartRequest(t *testing.T, target, field, filename, content string) *http.Request {
	t.Helper()

	var body bytes.Buffer

	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("note", "ignored"))

	part, err := mw.CreateFormFile(field, filename)
	require.NoError(t, err)

	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, target, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	return req
}

func samplePosts() *topics.Result {
	return &topics.Result{Posts: []models.Post{{
		ID:      uuid.New(),
		Title:   "Quiet Rooms",
		Content: "Where do you go to think? \n Image: https://images.example/1.png",
	}}}
}

func TestAnalysisHandler_AnalyzeAudio(t *testing.T) {
	t.Run("spools upload and returns posts", func(t *testing.T) {
		svc := &fakeAnalysis{result: samplePosts()}
		rec := httptest.NewRecorder()

		NewAnalysisHandler(svc, nil, nil).AnalyzeAudio(rec, multipartRequest(t, "/analyze-audio", AudioFormField, "episode.MP3", "audio-bytes"))

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, "episode.MP3:audio-bytes", svc.gotFile)
		assert.Equal(t, "mp3", svc.gotExt)

		var resp PostsResult
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Len(t, resp.Posts, 1)
		assert.Equal(t, "Quiet Rooms", resp.Posts[0].Title)

		require.NotEmpty(t, svc.tempPathSaw)
		_, err := os.Stat(svc.tempPathSaw)
		assert.True(t, os.IsNotExist(err), "temporary upload must be removed")
	})

	t.Run("html format renders report", func(t *testing.T) {
		svc := &fakeAnalysis{result: samplePosts()}
		rec := httptest.NewRecorder()

		NewAnalysisHandler(svc, nil, nil).AnalyzeAudio(rec, multipartRequest(t, "/analyze-audio?format=html", AudioFormField, "a.wav", "x"))

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
		assert.Contains(t, rec.Body.String(), "Quiet Rooms")
	})

	t.Run("missing part is 400", func(t *testing.T) {
		rec := httptest.NewRecorder()

		NewAnalysisHandler(&fakeAnalysis{}, nil, nil).AnalyzeAudio(rec, multipartRequest(t, "/analyze-audio", "other", "a.mp3", "x"))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "No audio file part", decodeProblem(t, rec).Detail)
	})

	t.Run("unsupported extension is 400", func(t *testing.T) {
		svc := &fakeAnalysis{}
		metrics := &fakeUploadMetrics{}
		rec := httptest.NewRecorder()

		NewAnalysisHandler(svc, nil, metrics).AnalyzeAudio(rec, multipartRequest(t, "/analyze-audio", AudioFormField, "notes.txt", "x"))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Empty(t, svc.gotFile)
		assert.Equal(t, []string{"unsupported_ext"}, metrics.rejected)
	})

	t.Run("records accepted upload size", func(t *testing.T) {
		metrics := &fakeUploadMetrics{}
		rec := httptest.NewRecorder()

		NewAnalysisHandler(&fakeAnalysis{result: &topics.Result{}}, nil, metrics).
			AnalyzeAudio(rec, multipartRequest(t, "/analyze-audio", AudioFormField, "a.ogg", "12345"))

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, []int64{5}, metrics.sizes)
		assert.JSONEq(t, `{"posts":[]}`, rec.Body.String())
	})

	t.Run("not multipart is 400", func(t *testing.T) {
		rec := httptest.NewRecorder()

		NewAnalysisHandler(&fakeAnalysis{}, nil, nil).AnalyzeAudio(rec, httptest.NewRequest(http.MethodPost, "/analyze-audio", strings.NewReader("raw")))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("transcription timeout is 504", func(t *testing.T) {
		svc := &fakeAnalysis{err: apperrors.NewTimeoutError("transcription poll", "slow")}
		rec := httptest.NewRecorder()

		NewAnalysisHandler(svc, nil, nil).AnalyzeAudio(rec, multipartRequest(t, "/analyze-audio", AudioFormField, "a.mp3", "x"))

		assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
	})
}

func TestAnalysisHandler_AnalyzeURL(t *testing.T) {
	t.Run("sync", func(t *testing.T) {
		svc := &fakeAnalysis{result: samplePosts()}
		rec := httptest.NewRecorder()

		body := `{"audio_url":"https://audio.example/a.mp3"}`
		NewAnalysisHandler(svc, nil, nil).AnalyzeURL(rec, httptest.NewRequest(http.MethodPost, "/analyze-url", strings.NewReader(body)))

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "https://audio.example/a.mp3", svc.gotURL)
	})

	t.Run("async queues job", func(t *testing.T) {
		svc := &fakeAnalysis{}
		inserter := &fakeInserter{}
		rec := httptest.NewRecorder()

		body := `{"audio_url":"https://audio.example/a.mp3"}`
		NewAnalysisHandler(svc, inserter, nil).AnalyzeURL(rec, httptest.NewRequest(http.MethodPost, "/analyze-url?async=true", strings.NewReader(body)))

		require.Equal(t, http.StatusAccepted, rec.Code)

		var resp JobAccepted
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, int64(42), resp.JobID)
		require.Len(t, inserter.analyze, 1)
		assert.Equal(t, "https://audio.example/a.mp3", inserter.analyze[0].AudioURL)
		assert.Empty(t, svc.gotURL)
	})

	t.Run("async without queue is 503", func(t *testing.T) {
		rec := httptest.NewRecorder()

		body := `{"audio_url":"https://audio.example/a.mp3"}`
		NewAnalysisHandler(&fakeAnalysis{}, nil, nil).AnalyzeURL(rec, httptest.NewRequest(http.MethodPost, "/analyze-url?async=1", strings.NewReader(body)))

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})

	t.Run("invalid url is 400", func(t *testing.T) {
		svc := &fakeAnalysis{}
		rec := httptest.NewRecorder()

		NewAnalysisHandler(svc, nil, nil).AnalyzeURL(rec, httptest.NewRequest(http.MethodPost, "/analyze-url", strings.NewReader(`{"audio_url":"not a url"}`)))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Empty(t, svc.gotURL)
	})
}

type fakeIndexer struct {
	preprocessed int
	added        []string
	err          error
}

func (f *fakeIndexer) PreprocessComments(context.Context, string) (int, error) {
	f.preprocessed++

	return 5, f.err
}

func (f *fakeIndexer) AddVector(_ context.Context, content string) (int, error) {
	f.added = append(f.added, content)

	return 1, f.err
}

func TestIndexHandler(t *testing.T) {
	t.Run("preprocess comments", func(t *testing.T) {
		indexer := &fakeIndexer{}
		rec := httptest.NewRecorder()

		NewIndexHandler(indexer, nil).PreprocessComments(rec, httptest.NewRequest(http.MethodPost, "/preprocess-comments", http.NoBody))

		require.Equal(t, http.StatusOK, rec.Code)

		var resp IndexResult
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, IndexResult{Status: "success", Indexed: 5}, resp)
	})

	t.Run("preprocess comments async", func(t *testing.T) {
		indexer := &fakeIndexer{}
		inserter := &fakeInserter{}
		rec := httptest.NewRecorder()

		NewIndexHandler(indexer, inserter).PreprocessComments(rec, httptest.NewRequest(http.MethodPost, "/preprocess-comments?async=true", http.NoBody))

		assert.Equal(t, http.StatusAccepted, rec.Code)
		assert.Len(t, inserter.reindex, 1)
		assert.Zero(t, indexer.preprocessed)
	})

	t.Run("preprocess failure maps to 500", func(t *testing.T) {
		rec := httptest.NewRecorder()

		NewIndexHandler(&fakeIndexer{err: errors.New("db down")}, nil).PreprocessComments(rec, httptest.NewRequest(http.MethodPost, "/preprocess-comments", http.NoBody))

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.NotContains(t, rec.Body.String(), "db down")
	})

	t.Run("add vector", func(t *testing.T) {
		indexer := &fakeIndexer{}
		rec := httptest.NewRecorder()

		NewIndexHandler(indexer, nil).AddVector(rec, httptest.NewRequest(http.MethodPost, "/add-vector", strings.NewReader(`{"content":"new comment"}`)))

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, []string{"new comment"}, indexer.added)
	})

	t.Run("add vector requires content", func(t *testing.T) {
		indexer := &fakeIndexer{}
		rec := httptest.NewRecorder()

		NewIndexHandler(indexer, nil).AddVector(rec, httptest.NewRequest(http.MethodPost, "/add-vector", strings.NewReader(`{}`)))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Empty(t, indexer.added)
	})
}

type fakePosts struct {
	post    *models.Post
	err     error
	filters *models.ListPostsFilters
}

func (f *fakePosts) GetPost(context.Context, uuid.UUID) (*models.Post, error) {
	return f.post, f.err
}

func (f *fakePosts) ListPosts(_ context.Context, filters *models.ListPostsFilters) (*models.ListPostsResponse, error) {
	f.filters = filters

	var data []models.Post
	if f.post != nil {
		data = append(data, *f.post)
	}

	return &models.ListPostsResponse{Data: data, Total: int64(len(data)), Limit: filters.Limit}, f.err
}

func TestPostsHandler(t *testing.T) {
	t.Run("list decodes query", func(t *testing.T) {
		svc := &fakePosts{post: &models.Post{Title: "A"}}
		rec := httptest.NewRecorder()

		NewPostsHandler(svc).List(rec, httptest.NewRequest(http.MethodGet, "/posts?limit=5&offset=10&status=ai_generated_unreviewed", http.NoBody))

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 5, svc.filters.Limit)
		assert.Equal(t, 10, svc.filters.Offset)
		assert.Equal(t, "ai_generated_unreviewed", svc.filters.Status)
	})

	t.Run("list rejects bad limit", func(t *testing.T) {
		rec := httptest.NewRecorder()

		NewPostsHandler(&fakePosts{}).List(rec, httptest.NewRequest(http.MethodGet, "/posts?limit=1000", http.NoBody))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("get invalid id", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/posts/abc", http.NoBody)
		req.SetPathValue("id", "abc")

		NewPostsHandler(&fakePosts{}).Get(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("get not found", func(t *testing.T) {
		rec := httptest.NewRecorder()
		id := uuid.New()
		req := httptest.NewRequest(http.MethodGet, "/posts/"+id.String(), http.NoBody)
		req.SetPathValue("id", id.String())

		NewPostsHandler(&fakePosts{err: apperrors.NewNotFoundError("post", "post not found")}).Get(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("report renders html", func(t *testing.T) {
		rec := httptest.NewRecorder()

		NewPostsHandler(&fakePosts{post: &models.Post{Title: "Quiet Rooms"}}).Report(rec, httptest.NewRequest(http.MethodGet, "/posts/report", http.NoBody))

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "Quiet Rooms")
	})
}

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

func TestHealthHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	NewHealthHandler(nil).Check(rec, httptest.NewRequest(http.MethodGet, "/health", http.NoBody))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())

	rec = httptest.NewRecorder()
	NewHealthHandler(fakePinger{err: errors.New("refused")}).Ready(rec, httptest.NewRequest(http.MethodGet, "/ready", http.NoBody))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = httptest.NewRecorder()
	NewHealthHandler(fakePinger{}).Ready(rec, httptest.NewRequest(http.MethodGet, "/ready", http.NoBody))
	assert.Equal(t, http.StatusOK, rec.Code)
}
