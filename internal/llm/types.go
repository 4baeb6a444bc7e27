package llm

import "time"

// ContentType selects the documentation mode for non-streaming generation.
type ContentType string

const (
	ContentTypeCode ContentType = "code"
	ContentTypeText ContentType = "text"
)

const (
	// DefaultBaseURL targets a local OpenAI-compatible server.
	DefaultBaseURL = "http://localhost:1234/v1"

	// DefaultTimeout bounds a non-streaming request attempt. Callers with
	// slower workloads (chapter generation) pass their own per-request
	// timeout.
	DefaultTimeout = 90 * time.Second

	// DefaultMaxRetries is the total number of attempts per request.
	DefaultMaxRetries = 3

	// DefaultChatTemperature and DefaultChatTopP apply to chat requests
	// that leave the knobs unset.
	DefaultChatTemperature = 0.4
	DefaultChatTopP        = 0.95
)

// Generation sampling constants.
const (
	codeTemperature  = 0.15
	textTemperature  = 0.20
	generateTopP     = 0.9
	frequencyPenalty = 0.1
	presencePenalty  = 0.1
)

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// GenerateRequest describes a non-streaming documentation generation call.
type GenerateRequest struct {
	// Content is the source material to document.
	Content string

	// ContentType selects the code or text documentation mode.
	ContentType ContentType

	// Title, when set, is passed to the model as the preferred title.
	Title string

	// FileCount, when positive, tells the model how many files the
	// content was assembled from.
	FileCount int

	// Temperature overrides the content-type default when non-zero.
	Temperature float64

	// Timeout overrides the client default when positive.
	Timeout time.Duration
}

// ChatRequest describes a streaming chat call.
type ChatRequest struct {
	Messages    []Message
	Temperature float64
	TopP        float64
}

// maxTokensFor scales the output budget with the input length, roughly one
// token per four characters.
func maxTokensFor(contentLength int) int {
	switch {
	case contentLength > 50000:
		return 8000
	case contentLength > 20000:
		return 6000
	case contentLength > 10000:
		return 5000
	case contentLength > 5000:
		return 4000
	case contentLength > 2000:
		return 3000
	default:
		return 2500
	}
}

// temperatureFor returns the default sampling temperature per content type.
func temperatureFor(ct ContentType) float64 {
	if ct == ContentTypeCode {
		return codeTemperature
	}
	return textTemperature
}
