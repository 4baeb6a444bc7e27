package server

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docweave/docweave/internal/async"
	"github.com/docweave/docweave/internal/checkpoint"
	"github.com/docweave/docweave/internal/fetch"
	"github.com/docweave/docweave/internal/pipeline"
)

func TestCreateGeneration_SubmitsJob(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.postJSON(t, "/api/generations", map[string]string{
		"repo_url": "https://github.com/acme/widgets",
	})
	require.Equal(t, http.StatusAccepted, resp.StatusCode, "body: %s", body)

	out := decodeJSON(t, body)
	repoID, _ := out["repo_id"].(string)
	assert.True(t, strings.HasPrefix(repoID, "acme_widgets_"), "repo_id %q", repoID)
	assert.Equal(t, "accepted", out["status"])

	_, err := env.manager.Wait(repoID)
	require.NoError(t, err)

	require.Len(t, env.runner.runs, 1)
	assert.Equal(t, repoID, env.runner.runs[0].RepoID)
	assert.Equal(t, "https://github.com/acme/widgets", env.runner.runs[0].SourceURL)
	assert.NotNil(t, env.runner.runs[0].Source)

	resp, body = env.get(t, "/api/generations/"+repoID)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	snap := decodeJSON(t, body)
	assert.Equal(t, repoID, snap["repo_id"])
	assert.Equal(t, false, snap["running"])
}

func TestCreateGeneration_RejectsBadRequests(t *testing.T) {
	env := newTestEnv(t)

	resp, _ := env.postJSON(t, "/api/generations", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body := env.postJSON(t, "/api/generations", map[string]string{"repo_url": "not a repo"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	out := decodeJSON(t, body)
	assert.NotEmpty(t, out["error"])
}

// zipUpload builds a multipart body carrying an in-memory zip archive
// under the form field the API expects.
func zipUpload(t *testing.T, filename string, files map[string]string) (*bytes.Buffer, string) {
	t.Helper()

	var archive bytes.Buffer
	zw := zip.NewWriter(&archive)
	for name, content := range files {
		f, err := zw.Create(name)
		require.NoError(t, err)
		_, err = f.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write(archive.Bytes())
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	return &body, mw.FormDataContentType()
}

func TestUpload_SubmitsZipJob(t *testing.T) {
	env := newTestEnv(t)

	body, contentType := zipUpload(t, "project.zip", map[string]string{
		"src/main.py": "print('hello')",
	})
	resp, err := http.Post(env.ts.URL+"/api/uploads", contentType, body)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	repoID, _ := out["repo_id"].(string)
	assert.True(t, strings.HasPrefix(repoID, "zip_upload_"), "repo_id %q", repoID)

	_, err = env.manager.Wait(repoID)
	require.NoError(t, err)
	require.Len(t, env.runner.runs, 1)
	assert.Equal(t, repoID, env.runner.runs[0].RepoID)
	assert.Empty(t, env.runner.runs[0].SourceURL)
	assert.NotNil(t, env.runner.runs[0].Source)
}

func TestUpload_RejectsNonZip(t *testing.T) {
	env := newTestEnv(t)

	body, contentType := zipUpload(t, "notes.txt", map[string]string{"a.py": "x"})
	resp, err := http.Post(env.ts.URL+"/api/uploads", contentType, body)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUpload_RequiresFileField(t *testing.T) {
	env := newTestEnv(t)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("name", "no file here"))
	require.NoError(t, mw.Close())

	resp, err := http.Post(env.ts.URL+"/api/uploads", mw.FormDataContentType(), &body)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestListGenerations_MergesLiveAndCheckpointed(t *testing.T) {
	env := newTestEnv(t)
	env.runner.block = make(chan struct{})

	_, err := env.manager.Submit(pipeline.Request{RepoID: "live_1"})
	require.NoError(t, err)
	defer func() {
		close(env.runner.block)
		_, _ = env.manager.Wait("live_1")
	}()

	require.NoError(t, env.store.Save(t.Context(), "stale_1", checkpoint.Patch{
		Type:        checkpoint.Ptr(string(fetch.SourceGitHub)),
		Status:      checkpoint.Ptr(checkpoint.StatusIndexing),
		Progress:    checkpoint.Ptr(40),
		CurrentStep: checkpoint.Ptr("Indexing content"),
	}))

	resp, body := env.get(t, "/api/generations")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		Generations []async.JobSnapshot `json:"generations"`
		Count       int                 `json:"count"`
	}
	require.NoError(t, json.Unmarshal(body, &out))
	require.Equal(t, 2, out.Count)

	assert.Equal(t, "live_1", out.Generations[0].RepoID)
	assert.True(t, out.Generations[0].Running)

	assert.Equal(t, "stale_1", out.Generations[1].RepoID)
	assert.False(t, out.Generations[1].Running)
	assert.Equal(t, string(checkpoint.StatusIndexing), out.Generations[1].Status)
	assert.Equal(t, 40, out.Generations[1].Progress)
}

func TestGetGeneration_FallsBackToCheckpoint(t *testing.T) {
	env := newTestEnv(t)

	require.NoError(t, env.store.Save(t.Context(), "stale_1", checkpoint.Patch{
		Status:   checkpoint.Ptr(checkpoint.StatusGenerating),
		Progress: checkpoint.Ptr(60),
	}))

	resp, body := env.get(t, "/api/generations/stale_1")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	out := decodeJSON(t, body)
	assert.Equal(t, string(checkpoint.StatusGenerating), out["status"])
	assert.Equal(t, float64(60), out["progress"])
}

func TestGetGeneration_Unknown(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.get(t, "/api/generations/ghost")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	out := decodeJSON(t, body)
	assert.Contains(t, out["error"], "ghost")
}

func TestDeleteGeneration_CancelsRunningJob(t *testing.T) {
	env := newTestEnv(t)
	env.runner.block = make(chan struct{})

	_, err := env.manager.Submit(pipeline.Request{RepoID: "live_1"})
	require.NoError(t, err)

	resp, body := env.do(t, http.MethodDelete, "/api/generations/live_1")
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, "cancelling", decodeJSON(t, body)["status"])

	_, err = env.manager.Wait("live_1")
	require.ErrorIs(t, err, context.Canceled)

	// A second delete removes the now-finished job.
	resp, body = env.do(t, http.MethodDelete, "/api/generations/live_1")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "deleted", decodeJSON(t, body)["status"])

	resp, _ = env.get(t, "/api/generations/live_1")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestDeleteGeneration_RemovesCheckpoint(t *testing.T) {
	env := newTestEnv(t)

	require.NoError(t, env.store.Save(t.Context(), "stale_1", checkpoint.Patch{
		Status: checkpoint.Ptr(checkpoint.StatusFailed),
	}))

	resp, body := env.do(t, http.MethodDelete, "/api/generations/stale_1")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "deleted", decodeJSON(t, body)["status"])

	_, err := env.store.Get(t.Context(), "stale_1")
	require.ErrorIs(t, err, checkpoint.ErrNotFound)
}

func TestDeleteGeneration_Unknown(t *testing.T) {
	env := newTestEnv(t)

	resp, _ := env.do(t, http.MethodDelete, "/api/generations/ghost")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestMarkdown_FromFinishedJob(t *testing.T) {
	env := newTestEnv(t)
	env.runner.result = &pipeline.Result{RepoID: "job1", Markdown: "# Widgets\n\nDocs."}

	_, err := env.manager.Submit(pipeline.Request{RepoID: "job1"})
	require.NoError(t, err)
	_, err = env.manager.Wait("job1")
	require.NoError(t, err)

	resp, body := env.get(t, "/api/generations/job1/markdown")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/markdown")
	assert.Equal(t, "# Widgets\n\nDocs.", string(body))
}

func TestMarkdown_FromCheckpoint(t *testing.T) {
	env := newTestEnv(t)

	require.NoError(t, env.store.Save(t.Context(), "stale_1", checkpoint.Patch{
		Status:    checkpoint.Ptr(checkpoint.StatusMerging),
		Artifacts: &checkpoint.Artifacts{Markdown: "# Recovered"},
	}))

	resp, body := env.get(t, "/api/generations/stale_1/markdown")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "# Recovered", string(body))
}

func TestMarkdown_Missing(t *testing.T) {
	env := newTestEnv(t)

	resp, _ := env.get(t, "/api/generations/ghost/markdown")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	require.NoError(t, env.store.Save(t.Context(), "stale_1", checkpoint.Patch{
		Status: checkpoint.Ptr(checkpoint.StatusIndexing),
	}))
	resp, _ = env.get(t, "/api/generations/stale_1/markdown")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
