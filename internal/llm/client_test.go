package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	werrors "github.com/docweave/docweave/internal/errors"
)

// chatServer fakes an OpenAI-compatible endpoint and records the last
// chat/completions payload.
type chatServer struct {
	ts         *httptest.Server
	posts      atomic.Int64
	modelCalls atomic.Int64

	mu       sync.Mutex
	lastBody []byte
}

func newChatServer(t *testing.T, models []string, handle http.HandlerFunc) *chatServer {
	t.Helper()

	cs := &chatServer{}
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/models", func(w http.ResponseWriter, _ *http.Request) {
		cs.modelCalls.Add(1)
		entries := make([]map[string]string, 0, len(models))
		for _, id := range models {
			entries = append(entries, map[string]string{"id": id})
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"data": entries})
	})
	mux.HandleFunc("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		cs.posts.Add(1)
		body, _ := io.ReadAll(r.Body)
		cs.mu.Lock()
		cs.lastBody = body
		cs.mu.Unlock()
		handle(w, r)
	})

	cs.ts = httptest.NewServer(mux)
	t.Cleanup(cs.ts.Close)
	return cs
}

type capturedPayload struct {
	Model            string    `json:"model"`
	Messages         []Message `json:"messages"`
	Temperature      float64   `json:"temperature"`
	TopP             float64   `json:"top_p"`
	MaxTokens        int       `json:"max_tokens"`
	FrequencyPenalty float64   `json:"frequency_penalty"`
	PresencePenalty  float64   `json:"presence_penalty"`
	Stream           bool      `json:"stream"`
}

func (cs *chatServer) payload(t *testing.T) capturedPayload {
	t.Helper()
	cs.mu.Lock()
	defer cs.mu.Unlock()

	var p capturedPayload
	require.NoError(t, json.Unmarshal(cs.lastBody, &p))
	return p
}

func (cs *chatServer) payloadKeys(t *testing.T) map[string]json.RawMessage {
	t.Helper()
	cs.mu.Lock()
	defer cs.mu.Unlock()

	keys := map[string]json.RawMessage{}
	require.NoError(t, json.Unmarshal(cs.lastBody, &keys))
	return keys
}

func replyContent(content string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		quoted, _ := json.Marshal(content)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"choices":[{"message":{"content":%s}}]}`, quoted)
	}
}

func newTestClient(cs *chatServer, model string) *Client {
	return NewClient(Config{
		BaseURL:    cs.ts.URL + "/v1",
		Model:      model,
		Timeout:    2 * time.Second,
		MaxRetries: 1,
	})
}

func TestGenerate_SendsDocumentationPayload(t *testing.T) {
	cs := newChatServer(t, nil, replyContent("## Auth\n\nDocumented."))
	client := newTestClient(cs, "qwen-chat")

	out, err := client.Generate(context.Background(), GenerateRequest{
		Content:     "package auth",
		ContentType: ContentTypeCode,
		Title:       "Auth Module",
		FileCount:   3,
	})
	require.NoError(t, err)
	assert.Equal(t, "## Auth\n\nDocumented.", out)

	p := cs.payload(t)
	assert.Equal(t, "qwen-chat", p.Model)
	assert.Equal(t, 0.15, p.Temperature)
	assert.Equal(t, 0.9, p.TopP)
	assert.Equal(t, 2500, p.MaxTokens)
	assert.Equal(t, 0.1, p.FrequencyPenalty)
	assert.Equal(t, 0.1, p.PresencePenalty)
	assert.False(t, p.Stream)

	require.Len(t, p.Messages, 2)
	assert.Equal(t, "system", p.Messages[0].Role)
	assert.Contains(t, p.Messages[0].Content, "STRICT RULES")
	assert.Contains(t, p.Messages[0].Content, "DOCUMENT MODE: CODE")
	assert.Equal(t, "user", p.Messages[1].Role)
	assert.Contains(t, p.Messages[1].Content, "USER_PROVIDED_TITLE: Auth Module\n")
	assert.Contains(t, p.Messages[1].Content, "FILES_PROCESSED: 3 file(s)\n")
	assert.Contains(t, p.Messages[1].Content, "CONTENT_TYPE: Code")
	assert.Contains(t, p.Messages[1].Content, "SOURCE CODE:")
	assert.Contains(t, p.Messages[1].Content, "package auth")
}

func TestGenerate_TextModeDefaults(t *testing.T) {
	cs := newChatServer(t, nil, replyContent("# Notes"))
	client := newTestClient(cs, "qwen-chat")

	_, err := client.Generate(context.Background(), GenerateRequest{
		Content:     "plain notes about the release",
		ContentType: ContentTypeText,
	})
	require.NoError(t, err)

	p := cs.payload(t)
	assert.Equal(t, 0.20, p.Temperature)
	assert.Contains(t, p.Messages[0].Content, "DOCUMENT MODE: TEXT/DATA")
	assert.Contains(t, p.Messages[1].Content, "CONTENT_TYPE: Text")
	assert.Contains(t, p.Messages[1].Content, "SOURCE TEXT:")
	assert.NotContains(t, p.Messages[1].Content, "USER_PROVIDED_TITLE")
}

func TestGenerate_TemperatureOverride(t *testing.T) {
	cs := newChatServer(t, nil, replyContent("output"))
	client := newTestClient(cs, "qwen-chat")

	_, err := client.Generate(context.Background(), GenerateRequest{
		Content:     "x = 1",
		ContentType: ContentTypeCode,
		Temperature: 0.5,
	})
	require.NoError(t, err)
	assert.Equal(t, 0.5, cs.payload(t).Temperature)
}

func TestMaxTokensFor(t *testing.T) {
	tests := []struct {
		length int
		want   int
	}{
		{0, 2500},
		{2000, 2500},
		{2001, 3000},
		{5000, 3000},
		{5001, 4000},
		{10000, 4000},
		{10001, 5000},
		{20000, 5000},
		{20001, 6000},
		{50000, 6000},
		{50001, 8000},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, maxTokensFor(tt.length), "length %d", tt.length)
	}
}

func TestGenerate_ToleratesResponseShapes(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"legacy text field", `{"choices":[{"text":"From the text field."}]}`, "From the text field."},
		{"bare content field", `{"content":"From the content field."}`, "From the content field."},
		{"ollama response field", `{"response":"From the response field."}`, "From the response field."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cs := newChatServer(t, nil, func(w http.ResponseWriter, _ *http.Request) {
				io.WriteString(w, tt.body)
			})
			client := newTestClient(cs, "qwen-chat")

			out, err := client.Generate(context.Background(), GenerateRequest{Content: "x = 1"})
			require.NoError(t, err)
			assert.Equal(t, tt.want, out)
		})
	}
}

func TestGenerate_CleansThinkingArtifacts(t *testing.T) {
	raw := "<think>plan the sections</think>\n\nOkay, drafting now.\n\n# Result\n\nDone."
	cs := newChatServer(t, nil, replyContent(raw))
	client := newTestClient(cs, "qwen-chat")

	out, err := client.Generate(context.Background(), GenerateRequest{Content: "x = 1"})
	require.NoError(t, err)
	assert.Equal(t, "# Result\n\nDone.", out)
}

func TestGenerate_EmptyContentRejected(t *testing.T) {
	cs := newChatServer(t, nil, replyContent("unused"))
	client := newTestClient(cs, "qwen-chat")

	_, err := client.Generate(context.Background(), GenerateRequest{Content: "   "})
	require.Error(t, err)
	assert.Equal(t, werrors.ErrCodeEmptyQuery, werrors.GetCode(err))
	assert.Equal(t, int64(0), cs.posts.Load())
}

func TestGenerate_EmptyCompletionIsInvalid(t *testing.T) {
	cs := newChatServer(t, nil, replyContent("   "))
	client := newTestClient(cs, "qwen-chat")

	_, err := client.Generate(context.Background(), GenerateRequest{Content: "x = 1"})
	require.Error(t, err)
	assert.Equal(t, werrors.ErrCodeInvalidResponse, werrors.GetCode(err))
	assert.Equal(t, int64(1), cs.posts.Load())
}

func TestGenerate_ThinkingOnlyCompletionIsInvalid(t *testing.T) {
	cs := newChatServer(t, nil, replyContent("<think>all reasoning, no answer</think>"))
	client := newTestClient(cs, "qwen-chat")

	_, err := client.Generate(context.Background(), GenerateRequest{Content: "x = 1"})
	require.Error(t, err)
	assert.Equal(t, werrors.ErrCodeInvalidResponse, werrors.GetCode(err))
}

func TestGenerate_ModelNotLoaded(t *testing.T) {
	cs := newChatServer(t, nil, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "no model loaded", http.StatusBadRequest)
	})
	client := newTestClient(cs, "qwen-chat")

	_, err := client.Generate(context.Background(), GenerateRequest{Content: "x = 1"})
	require.Error(t, err)
	assert.Equal(t, werrors.ErrCodeModelNotLoaded, werrors.GetCode(err))
	assert.ErrorContains(t, err, "HTTP 400")
	assert.Equal(t, int64(1), cs.posts.Load())
}

func TestGenerate_ChatModelMissing(t *testing.T) {
	cs := newChatServer(t, nil, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "unknown model", http.StatusNotFound)
	})
	client := newTestClient(cs, "qwen-chat")

	_, err := client.Generate(context.Background(), GenerateRequest{Content: "x = 1"})
	require.Error(t, err)
	assert.Equal(t, werrors.ErrCodeChatModelMissing, werrors.GetCode(err))
	assert.ErrorContains(t, err, `"qwen-chat"`)
	assert.Equal(t, int64(1), cs.posts.Load())
}

func TestGenerate_RetriesUpstreamErrors(t *testing.T) {
	var attempts atomic.Int64
	cs := newChatServer(t, nil, func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) <= 2 {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
			return
		}
		replyContent("recovered output")(w, r)
	})

	client := NewClient(Config{
		BaseURL:    cs.ts.URL + "/v1",
		Model:      "qwen-chat",
		Timeout:    2 * time.Second,
		MaxRetries: 3,
	})

	out, err := client.Generate(context.Background(), GenerateRequest{Content: "x = 1"})
	require.NoError(t, err)
	assert.Equal(t, "recovered output", out)
	assert.Equal(t, int64(3), attempts.Load())
}

func TestGenerate_TimeoutClassified(t *testing.T) {
	cs := newChatServer(t, nil, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(500 * time.Millisecond):
		case <-r.Context().Done():
		}
	})
	client := newTestClient(cs, "qwen-chat")

	_, err := client.Generate(context.Background(), GenerateRequest{
		Content: "x = 1",
		Timeout: 50 * time.Millisecond,
	})
	require.Error(t, err)
	assert.Equal(t, werrors.ErrCodeTimeout, werrors.GetCode(err))
	assert.ErrorContains(t, err, "timed out after")
}

func TestGenerate_ConnectionFailure(t *testing.T) {
	client := NewClient(Config{
		BaseURL:    "http://127.0.0.1:1/v1",
		Model:      "qwen-chat",
		Timeout:    time.Second,
		MaxRetries: 1,
	})

	_, err := client.Generate(context.Background(), GenerateRequest{Content: "x = 1"})
	require.Error(t, err)
	assert.Equal(t, werrors.ErrCodeConnectionFailed, werrors.GetCode(err))
}

func TestClient_DiscoversChatModel(t *testing.T) {
	models := []string{"text-embedding-nomic", "qwen-chat", "llama-3"}
	cs := newChatServer(t, models, replyContent("out"))
	client := newTestClient(cs, "")

	_, err := client.Generate(context.Background(), GenerateRequest{Content: "x = 1"})
	require.NoError(t, err)
	assert.Equal(t, "qwen-chat", cs.payload(t).Model)
	assert.Equal(t, "qwen-chat", client.ModelName())
	assert.Equal(t, int64(1), cs.modelCalls.Load())

	_, err = client.Generate(context.Background(), GenerateRequest{Content: "y = 2"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), cs.modelCalls.Load(), "discovery should run once")
}

func TestClient_NoChatModelLeavesFieldUnset(t *testing.T) {
	cs := newChatServer(t, []string{"text-embedding-nomic"}, replyContent("out"))
	client := newTestClient(cs, "")

	_, err := client.Generate(context.Background(), GenerateRequest{Content: "x = 1"})
	require.NoError(t, err)

	_, hasModel := cs.payloadKeys(t)["model"]
	assert.False(t, hasModel, "model field should be omitted when discovery finds nothing")
	assert.Equal(t, "", client.ModelName())
}

func TestClient_ExplicitModelSkipsDiscovery(t *testing.T) {
	cs := newChatServer(t, []string{"llama-3"}, replyContent("out"))
	client := newTestClient(cs, "custom-model")

	_, err := client.Generate(context.Background(), GenerateRequest{Content: "x = 1"})
	require.NoError(t, err)
	assert.Equal(t, "custom-model", cs.payload(t).Model)
	assert.Equal(t, int64(0), cs.modelCalls.Load())
}

func TestComplete_BareChatCall(t *testing.T) {
	cs := newChatServer(t, nil, replyContent("partial answer"))
	client := newTestClient(cs, "qwen-chat")

	messages := []Message{
		{Role: "system", Content: "You answer questions about a code base."},
		{Role: "user", Content: "What does the fetcher do?"},
	}
	out, err := client.Complete(context.Background(), ChatRequest{Messages: messages})
	require.NoError(t, err)
	assert.Equal(t, "partial answer", out)

	p := cs.payload(t)
	assert.Equal(t, messages, p.Messages)
	assert.Equal(t, 0.4, p.Temperature)
	assert.Equal(t, 0.95, p.TopP)

	keys := cs.payloadKeys(t)
	_, hasMaxTokens := keys["max_tokens"]
	assert.False(t, hasMaxTokens, "bare completions should not cap output tokens")
	_, hasPenalty := keys["frequency_penalty"]
	assert.False(t, hasPenalty)
}

func TestComplete_ExplicitSamplingPassedThrough(t *testing.T) {
	cs := newChatServer(t, nil, replyContent("out"))
	client := newTestClient(cs, "qwen-chat")

	_, err := client.Complete(context.Background(), ChatRequest{
		Messages:    []Message{{Role: "user", Content: "q"}},
		Temperature: 0.7,
		TopP:        0.5,
	})
	require.NoError(t, err)

	p := cs.payload(t)
	assert.Equal(t, 0.7, p.Temperature)
	assert.Equal(t, 0.5, p.TopP)
}

func TestComplete_NoMessagesRejected(t *testing.T) {
	cs := newChatServer(t, nil, replyContent("unused"))
	client := newTestClient(cs, "qwen-chat")

	_, err := client.Complete(context.Background(), ChatRequest{})
	require.Error(t, err)
	assert.Equal(t, werrors.ErrCodeEmptyQuery, werrors.GetCode(err))
}

func TestAvailable(t *testing.T) {
	cs := newChatServer(t, []string{"qwen-chat"}, replyContent("unused"))
	client := newTestClient(cs, "")
	assert.True(t, client.Available(context.Background()))

	down := NewClient(Config{BaseURL: "http://127.0.0.1:1/v1", Timeout: time.Second})
	assert.False(t, down.Available(context.Background()))
}

func TestNewClient_Defaults(t *testing.T) {
	client := NewClient(Config{})
	assert.Equal(t, DefaultBaseURL, client.baseURL)
	assert.Equal(t, DefaultTimeout, client.timeout)
	assert.Equal(t, DefaultMaxRetries, client.maxRetries)

	trimmed := NewClient(Config{BaseURL: "http://localhost:8080/v1/"})
	assert.Equal(t, "http://localhost:8080/v1", trimmed.baseURL)
}
