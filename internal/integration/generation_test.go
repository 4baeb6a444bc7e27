// Package integration exercises the whole stack end to end: an uploaded
// archive flows through ingestion, indexing, and generation behind the
// HTTP API, with fake model endpoints standing in for the real ones.
package integration

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docweave/docweave/internal/async"
	"github.com/docweave/docweave/internal/chapter"
	"github.com/docweave/docweave/internal/checkpoint"
	"github.com/docweave/docweave/internal/embed"
	"github.com/docweave/docweave/internal/llm"
	"github.com/docweave/docweave/internal/metrics"
	"github.com/docweave/docweave/internal/outline"
	"github.com/docweave/docweave/internal/pipeline"
	"github.com/docweave/docweave/internal/rag"
	"github.com/docweave/docweave/internal/server"
)

const outlineJSON = `{
  "chapters": [
    {"title": "Overview", "description": "What the service does", "queries": ["main entry point"]},
    {"title": "Configuration", "description": "Settings and env vars", "queries": ["config load"]},
    {"title": "Storage", "description": "How data is persisted", "queries": ["database schema"]},
    {"title": "API", "description": "HTTP surface", "queries": ["http handlers"]},
    {"title": "Operations", "description": "Running and monitoring", "queries": ["logging"]}
  ]
}`

// newModelEndpoints serves OpenAI-shaped chat and embedding routes.
// Completions answer with the outline JSON; streams answer with one
// canned sentence.
func newModelEndpoints(t *testing.T) string {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/embeddings", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Input string `json:"input"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)

		h := fnv.New32a()
		_, _ = h.Write([]byte(req.Input))
		vec := make([]float32, 8)
		for i := range vec {
			vec[i] = float32((h.Sum32()>>uint(i*4))&0xF) / 15
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{{"embedding": vec}},
		})
	})
	mux.HandleFunc("/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Stream bool `json:"stream"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)

		if req.Stream {
			w.Header().Set("Content-Type", "text/event-stream")
			fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"Grounded answer.\"}}]}\n\n")
			fmt.Fprint(w, "data: [DONE]\n\n")
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]any{"content": outlineJSON}}},
		})
	})

	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts.URL
}

type env struct {
	api *httptest.Server
}

// newEnv wires the real stack: clients against fake endpoints, a sqlite
// checkpoint store, the pipeline runner, the job manager, and the HTTP
// server in front of them.
func newEnv(t *testing.T) *env {
	t.Helper()

	base := newModelEndpoints(t)
	dataDir := t.TempDir()

	llmClient := llm.NewClient(llm.Config{BaseURL: base, Model: "test-chat", Timeout: 30 * time.Second})
	t.Cleanup(func() { _ = llmClient.Close() })
	embedClient := embed.NewClient(embed.Config{BaseURL: base, Model: "test-embed", Timeout: 30 * time.Second})
	t.Cleanup(func() { _ = embedClient.Close() })

	engine := rag.New(embedClient, llmClient, rag.Config{
		IndexDir: filepath.Join(dataDir, "indexes"),
	})
	t.Cleanup(engine.Close)

	checkpoints, err := checkpoint.OpenSQLite(filepath.Join(dataDir, "checkpoints.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = checkpoints.Close() })

	manager := async.NewManager(async.ManagerConfig{DataDir: dataDir})

	runner, err := pipeline.NewRunner(pipeline.Dependencies{
		Planner:     outline.NewPlanner(llmClient),
		Indexer:     engine,
		Chapters:    chapter.NewGenerator(engine, llmClient, time.Minute),
		Checkpoints: checkpoints,
		Progress:    manager,
	})
	require.NoError(t, err)
	manager.Runner = runner

	srv, err := server.New(server.Config{}, server.Dependencies{
		Manager:     manager,
		Checkpoints: checkpoints,
		Engine:      engine,
		Chat:        llmClient,
		Metrics:     metrics.New(),
	})
	require.NoError(t, err)

	api := httptest.NewServer(srv.Handler())
	t.Cleanup(api.Close)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = manager.Shutdown(ctx)
	})

	return &env{api: api}
}

func corpusZip(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	files := map[string]string{
		"demo/main.go":   "package main\n\nfunc main() { run() }\n",
		"demo/config.go": "package main\n\ntype Config struct { Port int }\n",
		"demo/README.md": "# Demo service\n\nA small service used in tests.\n",
	}
	for name, content := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = io.WriteString(w, content)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func (e *env) upload(t *testing.T, archive []byte) string {
	t.Helper()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "demo.zip")
	require.NoError(t, err)
	_, err = fw.Write(archive)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	resp, err := http.Post(e.api.URL+"/api/uploads", mw.FormDataContentType(), &body)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var accepted struct {
		RepoID string `json:"repo_id"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&accepted))
	require.NotEmpty(t, accepted.RepoID)
	return accepted.RepoID
}

func (e *env) waitForStatus(t *testing.T, repoID, want string) async.JobSnapshot {
	t.Helper()

	deadline := time.After(60 * time.Second)
	for {
		select {
		case <-deadline:
			t.Fatalf("job %s never reached %s", repoID, want)
		case <-time.After(50 * time.Millisecond):
		}

		resp, err := http.Get(e.api.URL + "/api/generations/" + repoID)
		require.NoError(t, err)
		var snap async.JobSnapshot
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
		resp.Body.Close()

		switch snap.Status {
		case want:
			return snap
		case string(checkpoint.StatusFailed):
			if want != string(checkpoint.StatusFailed) {
				t.Fatalf("job %s failed: %s", repoID, snap.Error)
			}
			return snap
		}
	}
}

func TestUploadToMarkdown(t *testing.T) {
	e := newEnv(t)

	repoID := e.upload(t, corpusZip(t))
	snap := e.waitForStatus(t, repoID, string(checkpoint.StatusCompleted))

	assert.Equal(t, 100, snap.Progress)
	assert.False(t, snap.Running)
	assert.Equal(t, 3, snap.FileCount)

	resp, err := http.Get(e.api.URL + "/api/generations/" + repoID + "/markdown")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	markdown, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(markdown), "Overview")
	assert.Contains(t, string(markdown), "Operations")
}

func TestGroundedChatAfterGeneration(t *testing.T) {
	e := newEnv(t)

	repoID := e.upload(t, corpusZip(t))
	e.waitForStatus(t, repoID, string(checkpoint.StatusCompleted))

	payload, _ := json.Marshal(map[string]string{
		"repo_id": repoID,
		"message": "What does the service do?",
	})
	resp, err := http.Post(e.api.URL+"/api/chat", "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "Grounded answer.")
	assert.Contains(t, string(body), "[DONE]")
}

func TestGenerationListingAndDeletion(t *testing.T) {
	e := newEnv(t)

	repoID := e.upload(t, corpusZip(t))
	e.waitForStatus(t, repoID, string(checkpoint.StatusCompleted))

	resp, err := http.Get(e.api.URL + "/api/generations")
	require.NoError(t, err)
	var listing struct {
		Generations []async.JobSnapshot `json:"generations"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&listing))
	resp.Body.Close()
	require.Len(t, listing.Generations, 1)
	assert.Equal(t, repoID, listing.Generations[0].RepoID)

	req, err := http.NewRequest(http.MethodDelete, e.api.URL+"/api/generations/"+repoID, nil)
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(e.api.URL + "/api/generations/" + repoID)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestProgressEventsStream(t *testing.T) {
	e := newEnv(t)

	repoID := e.upload(t, corpusZip(t))
	e.waitForStatus(t, repoID, string(checkpoint.StatusCompleted))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.api.URL+"/api/events/"+repoID, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	text := string(body)
	assert.True(t, strings.Contains(text, "completed"), "expected a completed frame, got %q", text)
}
