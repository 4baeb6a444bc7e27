package llm

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

// Config holds connection settings for an OpenAI-compatible chat endpoint.
type Config struct {
	// BaseURL is the endpoint base, e.g. "http://localhost:1234/v1".
	BaseURL string

	// Model is the explicit chat model id. When empty the client discovers
	// one from the endpoint's model catalog.
	Model string

	// APIKey is an optional bearer token.
	APIKey string

	// Timeout bounds each non-streaming request attempt.
	Timeout time.Duration

	// MaxRetries is the total number of attempts per request.
	MaxRetries int
}

// Client drives an OpenAI-compatible /chat/completions endpoint. Generate
// issues non-streaming documentation calls with scaled token budgets;
// ChatStream normalizes upstream streaming frames into plain text fragments.
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
}

// NewClient creates an LLM client. When cfg.Model is empty the model id is
// resolved on first use from GET /models, preferring the first id that does
// not look like an embedding model; if nothing matches, the model field is
// omitted and the endpoint picks its loaded default.
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
		httpClient: &http.Client{Transport: transport},
		model:      cfg.Model,
		discovered: cfg.Model != "",
	}
}

type chatPayload struct {
	Model            string    `json:"model,omitempty"`
	Messages         []Message `json:"messages"`
	Temperature      float64   `json:"temperature"`
	TopP             float64   `json:"top_p"`
	MaxTokens        int       `json:"max_tokens,omitempty"`
	FrequencyPenalty float64   `json:"frequency_penalty,omitempty"`
	PresencePenalty  float64   `json:"presence_penalty,omitempty"`
	Stream           bool      `json:"stream,omitempty"`
}

// completionResponse tolerates the response shapes local servers produce:
// standard choices[0].message.content, legacy choices[0].text, and bare
// content/response fields.
type completionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		Text string `json:"text"`
	} `json:"choices"`
	Content  string `json:"content"`
	Response string `json:"response"`
}

func (r *completionResponse) content() string {
	if len(r.Choices) > 0 {
		if c := r.Choices[0].Message.Content; c != "" {
			return c
		}
		if c := r.Choices[0].Text; c != "" {
			return c
		}
	}
	if r.Content != "" {
		return r.Content
	}
	return r.Response
}

type modelList struct {
	Data []struct {
		ID string `json:"id"`
	} `json:"data"`
}

// Generate produces documentation for req.Content without streaming. The
// output token budget scales with the input length and the result is cleaned
// of thinking artifacts before it is returned.
func (c *Client) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	if strings.TrimSpace(req.Content) == "" {
		return "", werrors.New(werrors.ErrCodeEmptyQuery, "generation content must not be empty", nil)
	}

	temp := req.Temperature
	if temp == 0 {
		temp = temperatureFor(req.ContentType)
	}
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = c.timeout
	}

	payload := chatPayload{
		Messages: []Message{
			{Role: "system", Content: systemPrompt(req.ContentType)},
			{Role: "user", Content: userPrompt(req)},
		},
		Temperature:      temp,
		TopP:             generateTopP,
		MaxTokens:        maxTokensFor(len(req.Content)),
		FrequencyPenalty: frequencyPenalty,
		PresencePenalty:  presencePenalty,
	}

	raw, err := c.completeWithRetry(ctx, payload, timeout)
	if err != nil {
		return "", err
	}

	cleaned := CleanOutput(raw)
	if cleaned == "" {
		return "", werrors.New(werrors.ErrCodeInvalidResponse, "received empty response from LLM", nil)
	}
	return cleaned, nil
}

// ChatStream opens a streaming chat call and returns a Stream of normalized
// text fragments. The stream ends when the upstream signals completion, the
// connection closes, or ctx is cancelled; Stream.Err reports how.
func (c *Client) ChatStream(ctx context.Context, req ChatRequest) (*Stream, error) {
	if len(req.Messages) == 0 {
		return nil, werrors.New(werrors.ErrCodeEmptyQuery, "chat request has no messages", nil)
	}

	temp := req.Temperature
	if temp == 0 {
		temp = DefaultChatTemperature
	}
	topP := req.TopP
	if topP == 0 {
		topP = DefaultChatTopP
	}

	payload := chatPayload{
		Messages:    req.Messages,
		Temperature: temp,
		TopP:        topP,
		Stream:      true,
	}

	resp, err := c.openStream(ctx, payload)
	if err != nil {
		return nil, err
	}

	stream := newStream()
	go stream.consume(ctx, resp.Body)
	return stream, nil
}

// Complete issues a bare non-streaming chat call without the documentation
// prompt scaffolding. Used for multipart partial answers and outline
// planning, where callers own the full prompt.
func (c *Client) Complete(ctx context.Context, req ChatRequest) (string, error) {
	if len(req.Messages) == 0 {
		return "", werrors.New(werrors.ErrCodeEmptyQuery, "chat request has no messages", nil)
	}

	temp := req.Temperature
	if temp == 0 {
		temp = DefaultChatTemperature
	}
	topP := req.TopP
	if topP == 0 {
		topP = DefaultChatTopP
	}

	payload := chatPayload{
		Messages:    req.Messages,
		Temperature: temp,
		TopP:        topP,
	}
	return c.completeWithRetry(ctx, payload, c.timeout)
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

func (c *Client) completeWithRetry(ctx context.Context, payload chatPayload, timeout time.Duration) (string, error) {
	cfg := werrors.RetryConfig{
		MaxRetries:   c.maxRetries - 1,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     8 * time.Second,
		Multiplier:   2.0,
	}
	return werrors.RetryWithResult(ctx, cfg, func() (string, error) {
		return c.doComplete(ctx, payload, timeout)
	})
}

func (c *Client) doComplete(ctx context.Context, payload chatPayload, timeout time.Duration) (string, error) {
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	payload.Model = c.resolveModel(reqCtx)
	payload.Stream = false

	start := time.Now()
	resp, err := c.post(reqCtx, payload)
	if err != nil {
		return "", c.classifyTransportError(err, time.Since(start))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", c.classifyStatus(resp)
	}

	var decoded completionResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", werrors.New(werrors.ErrCodeInvalidResponse, "decoding chat completion", err)
	}
	content := decoded.content()
	if strings.TrimSpace(content) == "" {
		return "", werrors.New(werrors.ErrCodeInvalidResponse, "chat completion contained no content", nil)
	}
	return content, nil
}

// openStream establishes the streaming request, retrying transient failures
// before any fragment has been delivered.
func (c *Client) openStream(ctx context.Context, payload chatPayload) (*http.Response, error) {
	cfg := werrors.RetryConfig{
		MaxRetries:   c.maxRetries - 1,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     8 * time.Second,
		Multiplier:   2.0,
	}
	return werrors.RetryWithResult(ctx, cfg, func() (*http.Response, error) {
		payload.Model = c.resolveModel(ctx)

		start := time.Now()
		resp, err := c.post(ctx, payload)
		if err != nil {
			return nil, c.classifyTransportError(err, time.Since(start))
		}
		if resp.StatusCode != http.StatusOK {
			defer resp.Body.Close()
			return nil, c.classifyStatus(resp)
		}
		return resp, nil
	})
}

func (c *Client) post(ctx context.Context, payload chatPayload) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, werrors.New(werrors.ErrCodeInternal, "marshaling chat request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, werrors.New(werrors.ErrCodeInternal, "building chat request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	return c.httpClient.Do(req)
}

// resolveModel returns the model id to send, running catalog discovery at
// most once per client. Discovery failures leave the model unset rather than
// failing the call.
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

// discoverModel picks the first cataloged model that does not look like an
// embedding model.
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
		if !strings.Contains(strings.ToLower(m.ID), "embed") {
			return m.ID
		}
	}
	return ""
}

func (c *Client) authorize(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

func (c *Client) classifyTransportError(err error, elapsed time.Duration) error {
	var we *werrors.WeaveError
	if errors.As(err, &we) {
		return err
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	var netErr net.Error
	if (errors.As(err, &netErr) && netErr.Timeout()) || errors.Is(err, context.DeadlineExceeded) {
		return werrors.New(werrors.ErrCodeTimeout,
			fmt.Sprintf("LLM request timed out after %.0f seconds", elapsed.Seconds()), err).
			WithSuggestion("the model may need more time; raise the generation timeout or use a smaller model")
	}
	return werrors.New(werrors.ErrCodeConnectionFailed,
		"LLM endpoint unreachable at "+c.baseURL, err).
		WithSuggestion("check that the LLM server is running at the configured base URL")
}

func (c *Client) classifyStatus(resp *http.Response) error {
	snippet := readSnippet(resp.Body)
	switch {
	case resp.StatusCode == http.StatusBadRequest:
		return werrors.New(werrors.ErrCodeModelNotLoaded,
			fmt.Sprintf("LLM rejected the request (HTTP 400): %s", snippet), nil).
			WithSuggestion("check that a chat model is loaded and the prompt fits its context window")
	case resp.StatusCode == http.StatusNotFound:
		return werrors.New(werrors.ErrCodeChatModelMissing,
			fmt.Sprintf("chat model %s not available (HTTP 404)", c.describeModel()), nil).
			WithSuggestion("load a chat model on the endpoint or set generation.model explicitly")
	case resp.StatusCode == http.StatusTooManyRequests:
		return werrors.New(werrors.ErrCodeRateLimited, "LLM endpoint rate limited (HTTP 429)", nil)
	case resp.StatusCode >= 500:
		return werrors.New(werrors.ErrCodeUpstream5xx,
			fmt.Sprintf("LLM endpoint returned HTTP %d: %s", resp.StatusCode, snippet), nil)
	default:
		return werrors.New(werrors.ErrCodeInvalidResponse,
			fmt.Sprintf("chat request rejected (HTTP %d): %s", resp.StatusCode, snippet), nil)
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
