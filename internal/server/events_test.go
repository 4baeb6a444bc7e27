package server

import (
	"bufio"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docweave/docweave/internal/async"
	"github.com/docweave/docweave/internal/checkpoint"
	"github.com/docweave/docweave/internal/pipeline"
)

// readFrame returns the payload of the next SSE data frame.
func readFrame(t *testing.T, br *bufio.Reader) string {
	t.Helper()
	for {
		line, err := br.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		return strings.TrimPrefix(line, "data: ")
	}
}

// waitForSnapshot reads frames until one satisfies the predicate.
func waitForSnapshot(t *testing.T, br *bufio.Reader, pred func(async.JobSnapshot) bool) async.JobSnapshot {
	t.Helper()
	for {
		payload := readFrame(t, br)
		require.NotEqual(t, "[DONE]", payload, "stream ended before the expected snapshot")

		var snap async.JobSnapshot
		require.NoError(t, json.Unmarshal([]byte(payload), &snap))
		if pred(snap) {
			return snap
		}
	}
}

func TestEvents_StreamsProgressUntilDone(t *testing.T) {
	env := newTestEnv(t)
	env.runner.block = make(chan struct{})

	_, err := env.manager.Submit(pipeline.Request{RepoID: "job1"})
	require.NoError(t, err)

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(env.ts.URL + "/api/events/job1")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	br := bufio.NewReader(resp.Body)

	first := waitForSnapshot(t, br, func(s async.JobSnapshot) bool { return true })
	assert.Equal(t, "job1", first.RepoID)
	assert.Equal(t, string(checkpoint.StatusPending), first.Status)
	assert.True(t, first.Running)

	env.manager.Publish(pipeline.Event{
		RepoID:      "job1",
		Status:      checkpoint.StatusIndexing,
		Progress:    30,
		CurrentStep: "Indexing content",
	})
	mid := waitForSnapshot(t, br, func(s async.JobSnapshot) bool {
		return s.Status == string(checkpoint.StatusIndexing)
	})
	assert.Equal(t, 30, mid.Progress)
	assert.Equal(t, "Indexing content", mid.CurrentStep)

	env.manager.Publish(pipeline.Event{
		RepoID:   "job1",
		Status:   checkpoint.StatusCompleted,
		Progress: 100,
	})
	close(env.runner.block)
	_, err = env.manager.Wait("job1")
	require.NoError(t, err)

	final := waitForSnapshot(t, br, func(s async.JobSnapshot) bool {
		return s.Status == string(checkpoint.StatusCompleted) && !s.Running
	})
	assert.Equal(t, 100, final.Progress)

	assert.Equal(t, "[DONE]", readFrame(t, br))
}

func TestEvents_FinishedJobAnswersImmediately(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.manager.Submit(pipeline.Request{RepoID: "job1"})
	require.NoError(t, err)
	_, err = env.manager.Wait("job1")
	require.NoError(t, err)

	resp, body := env.get(t, "/api/events/job1")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	frames := strings.Split(strings.TrimSpace(string(body)), "\n\n")
	require.Len(t, frames, 2)
	assert.Equal(t, "data: [DONE]", frames[1])

	var snap async.JobSnapshot
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(frames[0], "data: ")), &snap))
	assert.Equal(t, "job1", snap.RepoID)
	assert.False(t, snap.Running)
}

func TestEvents_CheckpointFallback(t *testing.T) {
	env := newTestEnv(t)

	require.NoError(t, env.store.Save(t.Context(), "stale_1", checkpoint.Patch{
		Status:   checkpoint.Ptr(checkpoint.StatusGenerating),
		Progress: checkpoint.Ptr(70),
	}))

	resp, body := env.get(t, "/api/events/stale_1")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	frames := strings.Split(strings.TrimSpace(string(body)), "\n\n")
	require.Len(t, frames, 2)
	assert.Equal(t, "data: [DONE]", frames[1])

	var snap async.JobSnapshot
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(frames[0], "data: ")), &snap))
	assert.Equal(t, string(checkpoint.StatusGenerating), snap.Status)
	assert.Equal(t, 70, snap.Progress)
}

func TestEvents_Unknown(t *testing.T) {
	env := newTestEnv(t)

	resp, _ := env.get(t, "/api/events/ghost")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
