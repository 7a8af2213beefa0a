// Package cvtext extracts plain text from uploaded CV documents so they can be
// searched.
package cvtext

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"code.sajari.com/docconv"
)

// MaxChars caps stored text per document.
const MaxChars = 200_000

var ErrNoText = errors.New("document contains no extractable text")

type convertFunc func(r io.Reader, mimeType string, readability bool) (*docconv.Response, error)

type Extractor struct {
	convert convertFunc
}

func New() *Extractor {
	return &Extractor{convert: docconv.Convert}
}

// Extract converts data to text. mediaType may be empty, in which case it is
// guessed from filename.
func (e *Extractor) Extract(data []byte, mediaType, filename string) (string, error) {
	if len(data) == 0 {
		return "", ErrNoText
	}
	mimeType := baseMediaType(mediaType)
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = docconv.MimeTypeByExtension(filename)
	}

	res, err := e.convert(bytes.NewReader(data), mimeType, false)
	if err != nil {
		return "", fmt.Errorf("convert %s: %w", mimeType, err)
	}
	text := Clean(res.Body)
	if text == "" {
		return "", ErrNoText
	}
	return text, nil
}

// Clean collapses runs of blank lines and trailing spaces and enforces MaxChars.
func Clean(body string) string {
	lines := strings.Split(strings.ReplaceAll(body, "\r\n", "\n"), "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		line = strings.TrimRight(line, " \t\f\v")
		if strings.TrimSpace(line) == "" {
			if blank || len(out) == 0 {
				continue
			}
			blank = true
			out = append(out, "")
			continue
		}
		blank = false
		out = append(out, line)
	}
	text := strings.TrimSpace(strings.Join(out, "\n"))
	if runes := []rune(text); len(runes) > MaxChars {
		text = string(runes[:MaxChars])
	}
	return text
}

func baseMediaType(value string) string {
	value, _, _ = strings.Cut(value, ";")
	return strings.ToLower(strings.TrimSpace(value))
}
