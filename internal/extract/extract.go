// Package extract reads corpus files into normalized UTF-8 text.
//
// PDF files go through the pdf reader with pages joined by newlines; every
// other whitelisted file is treated as text, with invalid byte sequences
// replaced so downstream chunking always sees valid UTF-8.
package extract

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"

	werrors "github.com/docweave/docweave/internal/errors"
)

// File extracts text from the file at path.
// Returns a typed no-content error when nothing readable is found.
func File(path string) (string, error) {
	if isPDF(path) {
		f, reader, err := pdf.Open(path)
		if err != nil {
			return "", fmt.Errorf("open pdf %s: %w", path, err)
		}
		defer f.Close()
		return finish(path, pdfText(reader))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return finish(path, textContent(data))
}

// Bytes extracts text from in-memory content, dispatching on the file name.
// Archive entries use this path since they never touch the filesystem.
func Bytes(name string, data []byte) (string, error) {
	if isPDF(name) {
		reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
		if err != nil {
			return "", fmt.Errorf("open pdf %s: %w", name, err)
		}
		return finish(name, pdfText(reader))
	}
	return finish(name, textContent(data))
}

func isPDF(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".pdf")
}

func finish(name, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", werrors.NoContentError(fmt.Sprintf("no readable text in %s", name))
	}
	return text, nil
}

// pdfText concatenates the plain text of every page with newlines. A page
// that cannot be decoded contributes an empty string rather than failing
// the whole document.
func pdfText(reader *pdf.Reader) string {
	numPages := reader.NumPage()
	pages := make([]string, 0, numPages)
	for i := 1; i <= numPages; i++ {
		pages = append(pages, pageText(reader, i))
	}
	return strings.Join(pages, "\n")
}

// pageText isolates per-page extraction. The upstream reader panics on
// some malformed content streams, so the recover keeps one bad page from
// sinking the document.
func pageText(reader *pdf.Reader, num int) (text string) {
	defer func() {
		if r := recover(); r != nil {
			text = ""
		}
	}()

	page := reader.Page(num)
	if page.V.IsNull() {
		return ""
	}
	text, err := page.GetPlainText(nil)
	if err != nil {
		return ""
	}
	return text
}

// textContent decodes data as UTF-8, replacing invalid sequences.
func textContent(data []byte) string {
	return string(bytes.ToValidUTF8(data, []byte("�")))
}
