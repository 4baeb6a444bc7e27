package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	werrors "github.com/docweave/docweave/internal/errors"
	"github.com/docweave/docweave/internal/llm"
	"github.com/docweave/docweave/internal/rag"
)

// chatRequest is the JSON body for POST /api/chat.
type chatRequest struct {
	Message      string  `json:"message" binding:"required"`
	RepoID       string  `json:"repo_id"`
	SystemPrompt string  `json:"system_prompt"`
	Temperature  float64 `json:"temperature"`
	TopP         float64 `json:"top_p"`
	TopK         int     `json:"top_k"`
}

// handleChat streams an answer as SSE content frames ending with a
// [DONE] terminator. With a repo_id the answer is grounded in that
// corpus's index; without one the message goes straight to the chat
// model. A failure after streaming begins surfaces as an error frame in
// place of the terminator.
func (s *Server) handleChat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Message) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "A non-empty message is required"})
		return
	}

	stream, err := s.openChatStream(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}

	sseHeaders(c)
	for chunk := range stream.Chunks() {
		writeFrame(c, gin.H{"content": chunk})
	}
	if err := stream.Err(); err != nil {
		writeFrame(c, gin.H{"error": err.Error()})
		return
	}
	writeDone(c)
}

// openChatStream routes the request to the RAG engine or the plain chat
// client and reports errors before any response bytes are written.
func (s *Server) openChatStream(ctx context.Context, req chatRequest) (*llm.Stream, error) {
	if req.RepoID == "" {
		if s.deps.Chat == nil {
			return nil, werrors.InternalError("Chat is not configured on this server", nil)
		}
		var messages []llm.Message
		if req.SystemPrompt != "" {
			messages = append(messages, llm.Message{Role: "system", Content: req.SystemPrompt})
		}
		messages = append(messages, llm.Message{Role: "user", Content: req.Message})
		return s.deps.Chat.ChatStream(ctx, llm.ChatRequest{
			Messages:    messages,
			Temperature: req.Temperature,
			TopP:        req.TopP,
		})
	}

	if s.deps.Engine == nil {
		return nil, werrors.InternalError("Corpus chat is not configured on this server", nil)
	}
	indexRef, err := s.deps.Engine.LatestIndexRef(req.RepoID)
	if err != nil {
		// A repository the system knows but has not indexed yet is a
		// caller-correctable state, not a missing resource.
		if s.knownRepo(ctx, req.RepoID) {
			return nil, werrors.ValidationError(
				fmt.Sprintf("No index built for '%s' yet. Wait for the generation to finish, then ask again.", req.RepoID), nil)
		}
		return nil, err
	}
	return s.deps.Engine.Ask(ctx, indexRef, req.Message, rag.AskOptions{
		SystemPrompt: req.SystemPrompt,
		Temperature:  req.Temperature,
		TopP:         req.TopP,
		TopK:         req.TopK,
	})
}

// knownRepo reports whether the repository has a live job or a stored
// checkpoint.
func (s *Server) knownRepo(ctx context.Context, repoID string) bool {
	if _, ok := s.deps.Manager.Status(repoID); ok {
		return true
	}
	_, err := s.deps.Checkpoints.Get(ctx, repoID)
	return err == nil
}
