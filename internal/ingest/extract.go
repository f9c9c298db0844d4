// Package ingest turns uploaded files into context material: it
// extracts text, decides the retrieval mode once at upload time, and
// runs the background worker that chunks and embeds indexed files.
package ingest

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"

	"github.com/lumenhq/lumen/internal/storage"
)

// ErrUnsupportedContent marks uploads no extractor can read.
var ErrUnsupportedContent = errors.New("unsupported content")

// ExtractText returns the plain text of an uploaded file. PDF is
// handled specially; everything else is treated as UTF-8 text.
func ExtractText(filename string, data []byte) (string, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return extractPDF(data)
	default:
		if !utf8.Valid(data) {
			return "", fmt.Errorf("%w: file %s is not valid UTF-8 text", ErrUnsupportedContent, filename)
		}
		return string(data), nil
	}
}

func extractPDF(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("%w: opening pdf: %v", ErrUnsupportedContent, err)
	}
	plain, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extracting pdf text: %w", err)
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(plain); err != nil {
		return "", fmt.Errorf("reading pdf text: %w", err)
	}
	return buf.String(), nil
}

// DecideMode picks the retrieval mode for a file from its extracted
// character count. The decision is made exactly once, at upload, and
// persisted with the file; nothing downstream re-derives it.
func DecideMode(extractedChars, directMaxChars int) string {
	if extractedChars <= directMaxChars {
		return storage.RetrievalModeDirect
	}
	return storage.RetrievalModeIndexed
}
