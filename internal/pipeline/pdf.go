package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	werrors "github.com/docweave/docweave/internal/errors"
)

const (
	// DefaultRenderTimeout bounds one webhook render round trip.
	DefaultRenderTimeout = 2 * time.Minute

	// maxPDFBytes caps how much of a renderer response is read.
	maxPDFBytes = 64 << 20
)

// NopRenderer discards render requests. Jobs complete without a PDF.
type NopRenderer struct{}

func (NopRenderer) Render(ctx context.Context, markdown, outputPath string) error {
	return nil
}

// WebhookRenderer posts the merged markdown to an external rendering
// service and writes the returned PDF bytes to the output path.
type WebhookRenderer struct {
	url    string
	client *http.Client
}

// NewWebhookRenderer points at a rendering endpoint.
func NewWebhookRenderer(url string, timeout time.Duration) *WebhookRenderer {
	if timeout <= 0 {
		timeout = DefaultRenderTimeout
	}
	return &WebhookRenderer{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

type renderRequest struct {
	Markdown string `json:"markdown"`
	Filename string `json:"filename"`
}

// Render requests a PDF for the markdown. The response body is the PDF
// document itself.
func (w *WebhookRenderer) Render(ctx context.Context, markdown, outputPath string) error {
	body, err := json.Marshal(renderRequest{
		Markdown: markdown,
		Filename: filepath.Base(outputPath),
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return werrors.ValidationError(fmt.Sprintf("Invalid PDF renderer URL: %s", w.url), err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return werrors.TransientError(fmt.Sprintf("PDF renderer unreachable at %s", w.url), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return werrors.UpstreamError(fmt.Sprintf("PDF renderer returned HTTP %d", resp.StatusCode), nil)
	}

	pdf, err := io.ReadAll(io.LimitReader(resp.Body, maxPDFBytes))
	if err != nil {
		return werrors.TransientError("Failed reading PDF renderer response", err)
	}
	if len(pdf) == 0 {
		return werrors.NoContentError("PDF renderer returned an empty document")
	}

	tmpPath := outputPath + ".tmp"
	if err := os.WriteFile(tmpPath, pdf, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, outputPath); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}
