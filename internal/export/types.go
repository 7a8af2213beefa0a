// Package export renders candidate profiles to PDF through headless Chrome.
package export

import "errors"

// Result contains the export output
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

var (
	// ErrPDFUnavailable indicates Chromium is not installed on this host.
	ErrPDFUnavailable = errors.New("export pdf dependency missing")
	// ErrRenderFailed wraps template failures before Chrome is involved.
	ErrRenderFailed = errors.New("export render failed")
)
