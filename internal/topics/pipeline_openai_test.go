package topics

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sdt-zeiss/prototype-ai/internal/openai"
)

// schemaRejectingServer answers like the chat API for a model without JSON schema support.
type schemaRejectingServer struct {
	mu         sync.Mutex
	structured int
	plain      int
}

func (s *schemaRejectingServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.URL.Path == "/images/generations" {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"created": 1,
			"data":    []map[string]any{{"url": "https://images.example/generated.png"}},
		})

		return
	}

	var body struct {
		Messages       []map[string]any `json:"messages"`
		ResponseFormat map[string]any   `json:"response_format"`
	}

	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		w.WriteHeader(http.StatusBadRequest)

		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if body.ResponseFormat != nil {
		s.structured++

		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{
			"message": "Invalid parameter: 'response_format' of type 'json_schema' is not supported with this model.",
			"type":    "invalid_request_error",
			"param":   "response_format",
			"code":    nil,
		}})

		return
	}

	s.plain++

	prompt, _ := body.Messages[0]["content"].(string)

	content := "topic: Garden benches\nsummary : Visitors find the benches peaceful."
	if strings.Contains(prompt, PostSeparator) {
		content = "Title : Garden Calm [SEP] Post : What makes a bench feel peaceful?"
	}

	_ = json.NewEncoder(w).Encode(map[string]any{
		"id": "chatcmpl-1", "object": "chat.completion", "created": 1, "model": "gpt-3.5-turbo",
		"choices": []map[string]any{{
			"index": 0, "finish_reason": "stop",
			"message": map[string]any{"role": "assistant", "content": content},
		}},
	})
}

func TestRun_OpenAIModelWithoutSchemaSupport(t *testing.T) {
	vendor := &schemaRejectingServer{}
	server := httptest.NewServer(vendor)
	t.Cleanup(server.Close)

	client := openai.NewClient("test-key", openai.WithBaseURL(server.URL+"/"))
	store := &fakeStore{}
	p, embedder := newTestPipeline(t, client, &fakePublisher{}, store, Options{ChatModel: "gpt-3.5-turbo"})

	result, err := p.Run(t.Context(), transcript(embedder))
	require.NoError(t, err)

	assert.Equal(t, 1, vendor.structured, "a rejected model is not asked for JSON schemas again")
	assert.Equal(t, 4, vendor.plain)

	require.Len(t, result.Posts, 2)
	require.Len(t, store.calls, 1)

	for _, post := range result.Posts {
		assert.Equal(t, "Garden Calm", post.Title)
		assert.Equal(t, "What makes a bench feel peaceful? \n Image: https://images.example/generated.png", post.Content)
		assert.True(t, strings.HasPrefix(post.ImageID, "obj-"))
	}
}
