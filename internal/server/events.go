package server

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/docweave/docweave/internal/async"
	"github.com/docweave/docweave/internal/checkpoint"
)

// handleEvents streams job progress as SSE frames. Snapshots are sampled
// on the poll interval and emitted when they change; once the job stops
// running the final snapshot is followed by a [DONE] frame and the
// stream closes. Jobs the manager does not know answer with their
// checkpoint's last recorded state.
func (s *Server) handleEvents(c *gin.Context) {
	repoID := c.Param("repo_id")

	if _, ok := s.deps.Manager.Get(repoID); !ok {
		cp, err := s.deps.Checkpoints.Get(c.Request.Context(), repoID)
		if err != nil {
			if stderrors.Is(err, checkpoint.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("No generation found for '%s'", repoID)})
				return
			}
			writeError(c, err)
			return
		}
		sseHeaders(c)
		writeFrame(c, snapshotFromCheckpoint(cp))
		writeDone(c)
		return
	}

	sseHeaders(c)

	ticker := time.NewTicker(s.cfg.EventPollInterval)
	defer ticker.Stop()

	var last async.JobSnapshot
	for sent := false; ; {
		snap, ok := s.deps.Manager.Status(repoID)
		if !ok {
			// Deleted while streaming.
			writeDone(c)
			return
		}
		if !sent || snap != last {
			writeFrame(c, snap)
			last, sent = snap, true
		}
		if !snap.Running {
			writeDone(c)
			return
		}

		select {
		case <-c.Request.Context().Done():
			return
		case <-ticker.C:
		}
	}
}

func sseHeaders(c *gin.Context) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
}

// writeFrame emits one SSE data frame and flushes it to the client.
func writeFrame(c *gin.Context, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	fmt.Fprintf(c.Writer, "data: %s\n\n", data)
	c.Writer.Flush()
}

// writeDone emits the stream terminator frame.
func writeDone(c *gin.Context) {
	fmt.Fprint(c.Writer, "data: [DONE]\n\n")
	c.Writer.Flush()
}
