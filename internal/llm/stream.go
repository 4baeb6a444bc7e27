package llm

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"strings"
	"sync"

	werrors "github.com/docweave/docweave/internal/errors"
)

// Stream delivers normalized text fragments from a streaming chat call.
// Consumers range over Chunks and then check Err.
type Stream struct {
	chunks chan string

	mu  sync.Mutex
	err error
}

func newStream() *Stream {
	return &Stream{chunks: make(chan string, 16)}
}

// Chunks returns the fragment channel. It is closed when the upstream
// completes, fails, or the context is cancelled.
func (s *Stream) Chunks() <-chan string {
	return s.chunks
}

// Err reports how the stream ended. Valid once Chunks is closed; nil means
// normal completion.
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Text drains the stream and returns the concatenated fragments.
func (s *Stream) Text() (string, error) {
	var b strings.Builder
	for fragment := range s.chunks {
		b.WriteString(fragment)
	}
	return b.String(), s.Err()
}

func (s *Stream) fail(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

// consume reads upstream lines, normalizes them, and forwards fragments
// until the terminator frame, EOF, or cancellation.
func (s *Stream) consume(ctx context.Context, body io.ReadCloser) {
	defer close(s.chunks)
	defer body.Close()

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		fragment, done, err := normalizeStreamLine(scanner.Text())
		if err != nil {
			s.fail(err)
			return
		}
		if done {
			return
		}
		if fragment == "" {
			continue
		}

		select {
		case s.chunks <- fragment:
		case <-ctx.Done():
			s.fail(ctx.Err())
			return
		}
	}

	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			s.fail(ctx.Err())
			return
		}
		s.fail(werrors.New(werrors.ErrCodeConnectionFailed, "chat stream interrupted", err))
	}
}

// streamFrame tolerates the frame shapes local servers produce: OpenAI
// deltas, full message objects, legacy text completions, and bare
// content/response fields.
type streamFrame struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		Text string `json:"text"`
	} `json:"choices"`
	Content  string `json:"content"`
	Response string `json:"response"`
	Error    string `json:"error"`
}

func (f *streamFrame) fragment() string {
	if len(f.Choices) > 0 {
		c := f.Choices[0]
		if c.Delta.Content != "" {
			return c.Delta.Content
		}
		if c.Message.Content != "" {
			return c.Message.Content
		}
		return c.Text
	}
	if f.Content != "" {
		return f.Content
	}
	return f.Response
}

// normalizeStreamLine converts one upstream line into a plain text fragment.
// It accepts SSE "data: {json}" frames, bare JSON lines, and raw text; SSE
// comments and blank lines yield nothing, and "data: [DONE]" ends the
// stream.
func normalizeStreamLine(line string) (fragment string, done bool, err error) {
	line = strings.TrimRight(line, "\r")
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || strings.HasPrefix(trimmed, ":") {
		return "", false, nil
	}

	payload := trimmed
	if strings.HasPrefix(trimmed, "data:") {
		payload = strings.TrimSpace(strings.TrimPrefix(trimmed, "data:"))
	}
	if payload == "[DONE]" {
		return "", true, nil
	}

	if strings.HasPrefix(payload, "{") {
		var frame streamFrame
		if jsonErr := json.Unmarshal([]byte(payload), &frame); jsonErr == nil {
			if frame.Error != "" {
				return "", false, werrors.New(werrors.ErrCodeInvalidResponse,
					"chat stream reported an error: "+frame.Error, nil)
			}
			return frame.fragment(), false, nil
		}
	}

	// Raw text upstream; restore the newline the line split consumed so
	// multi-line answers keep their structure.
	return line + "\n", false, nil
}
