package preflight

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/docweave/docweave/internal/checkpoint"
)

// CheckLLMEndpoint verifies the chat endpoint answers /models.
func (c *Checker) CheckLLMEndpoint(ctx context.Context) CheckResult {
	return c.checkEndpoint(ctx, "llm_endpoint", c.cfg.Endpoints.LLMBaseURL)
}

// CheckEmbeddingEndpoint verifies the embeddings endpoint answers /models.
func (c *Checker) CheckEmbeddingEndpoint(ctx context.Context) CheckResult {
	return c.checkEndpoint(ctx, "embedding_endpoint", c.cfg.ResolvedEmbeddingsBaseURL())
}

func (c *Checker) checkEndpoint(ctx context.Context, name, baseURL string) CheckResult {
	result := CheckResult{
		Name:     name,
		Required: true,
	}

	if c.offline {
		result.Status = StatusWarn
		result.Message = "skipped (offline mode)"
		return result
	}

	url := strings.TrimSuffix(baseURL, "/") + "/models"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("invalid endpoint URL: %v", err)
		return result
	}
	if c.cfg.Endpoints.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Endpoints.APIKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("unreachable: %v", err)
		result.Details = fmt.Sprintf("Endpoint: %s", baseURL)
		return result
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("HTTP %d from %s", resp.StatusCode, url)
		return result
	}

	var parsed struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&parsed); err != nil {
		result.Status = StatusWarn
		result.Message = "reachable, but /models response was not parseable"
		result.Details = fmt.Sprintf("Endpoint: %s", baseURL)
		return result
	}

	result.Status = StatusPass
	result.Message = fmt.Sprintf("OK (%d models)", len(parsed.Data))
	result.Details = fmt.Sprintf("Endpoint: %s", baseURL)
	return result
}

// CheckCheckpointStore opens the configured checkpoint backend to prove
// jobs can persist their state.
func (c *Checker) CheckCheckpointStore(ctx context.Context) CheckResult {
	result := CheckResult{
		Name:     "checkpoint_store",
		Required: true,
	}

	switch strings.ToLower(c.cfg.Checkpoints.Backend) {
	case "none":
		result.Status = StatusWarn
		result.Required = false
		result.Message = "disabled (interrupted jobs will not be resumable)"
		return result

	case "postgres":
		if c.offline {
			result.Status = StatusWarn
			result.Message = "skipped (offline mode)"
			return result
		}
		st, err := checkpoint.NewPostgresStore(ctx, c.cfg.Checkpoints.PostgresDSN)
		if err != nil {
			result.Status = StatusFail
			result.Message = fmt.Sprintf("postgres unavailable: %v", err)
			return result
		}
		_ = st.Close()
		result.Status = StatusPass
		result.Message = "postgres reachable"
		return result

	default:
		path := c.cfg.ResolvedCheckpointPath()
		st, err := checkpoint.OpenSQLite(path)
		if err != nil {
			result.Status = StatusFail
			result.Message = fmt.Sprintf("cannot open %s: %v", path, err)
			return result
		}
		_ = st.Close()
		result.Status = StatusPass
		result.Message = "OK"
		result.Details = fmt.Sprintf("Database: %s", path)
		return result
	}
}
