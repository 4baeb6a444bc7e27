package server

import (
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/docweave/docweave/internal/async"
	"github.com/docweave/docweave/internal/checkpoint"
	"github.com/docweave/docweave/internal/fetch"
	"github.com/docweave/docweave/internal/pipeline"
)

// maxUploadBytes caps a single archive upload.
const maxUploadBytes = 50 << 20

// createGenerationRequest is the JSON body for POST /api/generations.
type createGenerationRequest struct {
	RepoURL string `json:"repo_url" binding:"required"`
}

// handleCreateGeneration submits a documentation job for a GitHub
// repository and returns immediately with the job's repository ID.
func (s *Server) handleCreateGeneration(c *gin.Context) {
	var req createGenerationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "repo_url is required"})
		return
	}

	owner, repo, err := fetch.ParseRepoURL(req.RepoURL)
	if err != nil {
		writeError(c, err)
		return
	}
	source, err := fetch.NewGitHubSource(req.RepoURL, s.cfg.GitHub)
	if err != nil {
		writeError(c, err)
		return
	}

	repoID := fmt.Sprintf("%s_%s_%d", owner, repo, time.Now().Unix())
	job, err := s.deps.Manager.Submit(pipeline.Request{
		RepoID:    repoID,
		Source:    source,
		SourceURL: req.RepoURL,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	s.countStarted(fetch.SourceGitHub)
	c.JSON(http.StatusAccepted, gin.H{"repo_id": job.RepoID(), "status": "accepted"})
}

// handleUpload submits a documentation job for an uploaded zip archive.
func (s *Server) handleUpload(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "A zip archive named 'file' is required"})
		return
	}
	if !strings.EqualFold(filepath.Ext(file.Filename), ".zip") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Only .zip archives are supported"})
		return
	}
	if file.Size > maxUploadBytes {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Archive exceeds the %d byte upload limit", maxUploadBytes)})
		return
	}

	src, err := file.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read uploaded archive"})
		return
	}
	defer src.Close()
	data, err := io.ReadAll(io.LimitReader(src, maxUploadBytes+1))
	if err != nil || len(data) > maxUploadBytes {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read uploaded archive"})
		return
	}

	name := strings.TrimSuffix(file.Filename, filepath.Ext(file.Filename))
	source := fetch.NewZipSource(data, fetch.ZipConfig{Name: name, Limits: s.cfg.ZipLimits})

	repoID := fmt.Sprintf("%s_%d", fetch.SourceZipUpload, time.Now().Unix())
	job, err := s.deps.Manager.Submit(pipeline.Request{RepoID: repoID, Source: source})
	if err != nil {
		writeError(c, err)
		return
	}

	s.countStarted(fetch.SourceZipUpload)
	c.JSON(http.StatusAccepted, gin.H{"repo_id": job.RepoID(), "status": "accepted"})
}

// handleListGenerations merges live jobs with incomplete checkpoints from
// previous runs of the process. Live jobs come first, newest first; a
// checkpoint is skipped when the manager already tracks its job.
func (s *Server) handleListGenerations(c *gin.Context) {
	snaps := s.deps.Manager.Jobs()
	seen := make(map[string]struct{}, len(snaps))
	for _, sn := range snaps {
		seen[sn.RepoID] = struct{}{}
	}

	cps, err := s.deps.Checkpoints.ListIncomplete(c.Request.Context(), 0, 0)
	if err != nil {
		writeError(c, err)
		return
	}
	for _, cp := range cps {
		if _, ok := seen[cp.RepoID]; ok {
			continue
		}
		snaps = append(snaps, snapshotFromCheckpoint(cp))
	}

	c.JSON(http.StatusOK, gin.H{"generations": snaps, "count": len(snaps)})
}

// handleGetGeneration reports one job's status, falling back to its
// checkpoint when the manager does not know it.
func (s *Server) handleGetGeneration(c *gin.Context) {
	repoID := c.Param("repo_id")

	if snap, ok := s.deps.Manager.Status(repoID); ok {
		c.JSON(http.StatusOK, snap)
		return
	}

	cp, err := s.deps.Checkpoints.Get(c.Request.Context(), repoID)
	if err != nil {
		if stderrors.Is(err, checkpoint.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("No generation found for '%s'", repoID)})
			return
		}
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, snapshotFromCheckpoint(cp))
}

// handleDeleteGeneration cancels a running job, or removes a finished
// job and its checkpoint. Cancellation is asynchronous and keeps the
// checkpoint behind for a later resume.
func (s *Server) handleDeleteGeneration(c *gin.Context) {
	repoID := c.Param("repo_id")

	snap, tracked := s.deps.Manager.Status(repoID)
	if tracked && snap.Running {
		if err := s.deps.Manager.Cancel(repoID); err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"repo_id": repoID, "status": "cancelling"})
		return
	}

	known := tracked
	if !known {
		_, err := s.deps.Checkpoints.Get(c.Request.Context(), repoID)
		switch {
		case err == nil:
			known = true
		case stderrors.Is(err, checkpoint.ErrNotFound):
		default:
			writeError(c, err)
			return
		}
	}
	if !known {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("No generation found for '%s'", repoID)})
		return
	}

	if err := s.deps.Checkpoints.Delete(c.Request.Context(), repoID); err != nil {
		writeError(c, err)
		return
	}
	if err := s.deps.Manager.Remove(repoID); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"repo_id": repoID, "status": "deleted"})
}

// handleMarkdown serves the generated document. Finished jobs hold their
// result in memory; interrupted ones may have a merged document in their
// checkpoint.
func (s *Server) handleMarkdown(c *gin.Context) {
	repoID := c.Param("repo_id")

	if job, ok := s.deps.Manager.Get(repoID); ok && !job.IsRunning() {
		if res, err := job.Wait(); err == nil && res != nil && res.Markdown != "" {
			c.Data(http.StatusOK, "text/markdown; charset=utf-8", []byte(res.Markdown))
			return
		}
	}

	cp, err := s.deps.Checkpoints.Get(c.Request.Context(), repoID)
	if err != nil && !stderrors.Is(err, checkpoint.ErrNotFound) {
		writeError(c, err)
		return
	}
	if err == nil && cp.Artifacts.Markdown != "" {
		c.Data(http.StatusOK, "text/markdown; charset=utf-8", []byte(cp.Artifacts.Markdown))
		return
	}
	c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("No generated document for '%s'", repoID)})
}

// snapshotFromCheckpoint shapes a stored checkpoint like a live job
// snapshot so listings and lookups read the same across process
// restarts.
func snapshotFromCheckpoint(cp *checkpoint.Checkpoint) async.JobSnapshot {
	return async.JobSnapshot{
		RepoID:         cp.RepoID,
		Type:           cp.Type,
		Running:        false,
		Status:         string(cp.Status),
		Progress:       cp.Progress,
		CurrentStep:    cp.CurrentStep,
		TotalSteps:     cp.TotalSteps,
		CompletedSteps: cp.CompletedSteps,
		FileCount:      cp.Artifacts.TotalFiles,
		ElapsedSeconds: int(cp.LastUpdated.Sub(cp.StartedAt).Seconds()),
		Error:          cp.Error,
	}
}
