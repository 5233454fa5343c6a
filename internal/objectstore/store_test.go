package objectstore

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pngHeader is enough for content sniffing.
var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func newTestStore(t *testing.T, maxBytes int64) *Store {
	t.Helper()

	s, err := New(Options{
		Endpoint:      "localhost:9000",
		AccessKey:     "test-access",
		SecretKey:     "test-secret",
		Bucket:        "images",
		MaxImageBytes: maxBytes,
		RetryMax:      1,
	})
	require.NoError(t, err)

	return s
}

func TestNew_RequiresConfig(t *testing.T) {
	_, err := New(Options{Endpoint: "localhost:9000", Bucket: "images"})

	require.ErrorIs(t, err, ErrMissingConfig)
}

func TestDownload_SniffsContentType(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write(pngHeader)
	}))
	defer server.Close()

	data, contentType, err := newTestStore(t, 0).download(t.Context(), server.URL+"/img")
	require.NoError(t, err)

	assert.Equal(t, pngHeader, data)
	assert.Equal(t, "image/png", contentType)
}

func TestDownload_Errors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		max     int64
		wantErr error
	}{
		{
			name: "not found",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusNotFound)
			},
		},
		{
			name: "too large",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write(pngHeader)
			},
			max:     4,
			wantErr: ErrImageTooLarge,
		},
		{
			name: "html body",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "text/html")
				_, _ = w.Write([]byte("<html>expired</html>"))
			},
			wantErr: ErrNotAnImage,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			_, _, err := newTestStore(t, tt.max).download(t.Context(), server.URL)
			require.Error(t, err)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestDetectContentType(t *testing.T) {
	assert.Equal(t, "image/webp", detectContentType("image/webp; charset=binary", nil))
	assert.Equal(t, "image/png", detectContentType("", pngHeader))
	assert.Equal(t, "text/plain; charset=utf-8", detectContentType("text/plain", []byte("hello")))
}

func TestObjectKey(t *testing.T) {
	key := objectKey("image/png")

	require.True(t, strings.HasSuffix(key, ".png"))

	id, err := uuid.Parse(strings.TrimSuffix(key, ".png"))
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), id.Version())

	assert.NotContains(t, objectKey("image/x-unknown"), ".")
}
