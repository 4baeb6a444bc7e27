package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	werrors "github.com/docweave/docweave/internal/errors"
)

// Config holds connection settings for an OpenAI-compatible embedding endpoint.
type Config struct {
	// BaseURL is the endpoint base, e.g. "http://localhost:1234/v1".
	BaseURL string

	// Model is the explicit model id. When empty the client discovers one
	// from the endpoint's model catalog.
	Model string

	// APIKey is an optional bearer token.
	APIKey string

	// Timeout bounds each request attempt.
	Timeout time.Duration

	// MaxRetries is the total number of attempts per text.
	MaxRetries int
}

// Client embeds text via POST /embeddings on an OpenAI-compatible server.
// Each request carries a single text; batches iterate sequentially so a
// failure identifies the exact input that caused it.
type Client struct {
	baseURL    string
	apiKey     string
	timeout    time.Duration
	maxRetries int

	httpClient *http.Client
	transport  *http.Transport

	mu         sync.RWMutex
	model      string
	discovered bool
	dims       int
}

// NewClient creates an embedding client. When cfg.Model is empty the model
// id is resolved on first use from GET /models, preferring ids that contain
// "embed"; if nothing matches, the model field is omitted from requests and
// the endpoint picks its loaded default.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}

	transport := &http.Transport{
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		timeout:    cfg.Timeout,
		maxRetries: cfg.MaxRetries,
		transport:  transport,
		// No client-level timeout; each attempt gets a fresh context
		// deadline so retries do not inherit a spent budget.
		httpClient: &http.Client{Transport: transport},
		model:      cfg.Model,
		discovered: cfg.Model != "",
	}
}

type embeddingRequest struct {
	Input string `json:"input"`
	Model string `json:"model,omitempty"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

type modelList struct {
	Data []struct {
		ID string `json:"id"`
	} `json:"data"`
}

// Embed generates the embedding for a single text. Whitespace-only input
// yields a zero vector without touching the endpoint.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return c.zeroVector(ctx)
	}
	return c.embedWithRetry(ctx, text)
}

// EmbedBatch embeds texts one request at a time, preserving input order.
// Position i of the result always corresponds to texts[i].
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	results := make([][]float32, len(texts))
	for i, text := range texts {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		vec, err := c.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("embedding text %d/%d: %w", i+1, len(texts), err)
		}
		results[i] = vec
	}
	return results, nil
}

// Dimensions returns the embedding dimension observed on the first
// successful request, or 0 before any text has been embedded.
func (c *Client) Dimensions() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.dims
}

// ModelName returns the resolved model id, or "" when the endpoint
// auto-selects.
func (c *Client) ModelName() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.model
}

// Available reports whether the endpoint answers its model catalog route.
func (c *Client) Available(ctx context.Context) bool {
	reqCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, c.baseURL+"/models", nil)
	if err != nil {
		return false
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode == http.StatusOK
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.transport.CloseIdleConnections()
	return nil
}

func (c *Client) embedWithRetry(ctx context.Context, text string) ([]float32, error) {
	cfg := werrors.RetryConfig{
		MaxRetries:   c.maxRetries - 1,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     8 * time.Second,
		Multiplier:   2.0,
	}
	return werrors.RetryWithResult(ctx, cfg, func() ([]float32, error) {
		return c.doEmbed(ctx, text)
	})
}

func (c *Client) doEmbed(ctx context.Context, text string) ([]float32, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	payload := embeddingRequest{Input: text, Model: c.resolveModel(reqCtx)}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, werrors.New(werrors.ErrCodeInternal, "marshaling embedding request", err)
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, werrors.New(werrors.ErrCodeInternal, "building embedding request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, c.classifyTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.classifyStatus(resp)
	}

	var decoded embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, werrors.New(werrors.ErrCodeInvalidResponse, "decoding embedding response", err)
	}
	if len(decoded.Data) == 0 || len(decoded.Data[0].Embedding) == 0 {
		return nil, werrors.New(werrors.ErrCodeInvalidResponse, "embedding response contained no vector", nil)
	}

	vec := decoded.Data[0].Embedding
	c.recordDimensions(len(vec))
	return vec, nil
}

// zeroVector returns an all-zero embedding for empty input. When no real
// text has been embedded yet the dimension is probed from the endpoint.
func (c *Client) zeroVector(ctx context.Context) ([]float32, error) {
	c.mu.RLock()
	dims := c.dims
	c.mu.RUnlock()

	if dims == 0 {
		vec, err := c.embedWithRetry(ctx, "dimension detection")
		if err != nil {
			return nil, err
		}
		dims = len(vec)
	}
	return make([]float32, dims), nil
}

// resolveModel returns the model id to send, running catalog discovery at
// most once per client. Discovery failures leave the model unset rather
// than failing the embedding request.
func (c *Client) resolveModel(ctx context.Context) string {
	c.mu.RLock()
	if c.discovered {
		model := c.model
		c.mu.RUnlock()
		return model
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.discovered {
		return c.model
	}
	c.model = c.discoverModel(ctx)
	c.discovered = true
	return c.model
}

func (c *Client) discoverModel(ctx context.Context) string {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/models", nil)
	if err != nil {
		return ""
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return ""
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return ""
	}

	var list modelList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return ""
	}
	for _, m := range list.Data {
		if strings.Contains(strings.ToLower(m.ID), "embed") {
			return m.ID
		}
	}
	return ""
}

func (c *Client) recordDimensions(n int) {
	c.mu.Lock()
	if c.dims == 0 {
		c.dims = n
	}
	c.mu.Unlock()
}

func (c *Client) authorize(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

func (c *Client) classifyTransportError(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return werrors.New(werrors.ErrCodeTimeout,
			fmt.Sprintf("embedding request timed out after %s", c.timeout), err)
	}
	return werrors.New(werrors.ErrCodeConnectionFailed,
		"embedding endpoint unreachable at "+c.baseURL, err).
		WithSuggestion("check that an embedding server is running at the configured base URL")
}

func (c *Client) classifyStatus(resp *http.Response) error {
	snippet := readSnippet(resp.Body)
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return werrors.New(werrors.ErrCodeEmbedModelMissing,
			fmt.Sprintf("embedding model %s not found (HTTP 404)", c.describeModel()), nil).
			WithSuggestion("load an embedding model on the endpoint or set embedding.model explicitly")
	case resp.StatusCode == http.StatusTooManyRequests:
		return werrors.New(werrors.ErrCodeRateLimited,
			"embedding endpoint rate limited (HTTP 429)", nil)
	case resp.StatusCode >= 500:
		return werrors.New(werrors.ErrCodeUpstream5xx,
			fmt.Sprintf("embedding endpoint returned HTTP %d: %s", resp.StatusCode, snippet), nil)
	default:
		return werrors.New(werrors.ErrCodeInvalidResponse,
			fmt.Sprintf("embedding request rejected (HTTP %d): %s", resp.StatusCode, snippet), nil)
	}
}

func (c *Client) describeModel() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.model == "" {
		return "(auto)"
	}
	return fmt.Sprintf("%q", c.model)
}

// readSnippet returns a short prefix of the response body for error messages.
func readSnippet(r io.Reader) string {
	b, err := io.ReadAll(io.LimitReader(r, 512))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(b))
}
