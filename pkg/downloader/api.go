// Package downloader provides a modular system for retrieving remote resources.
// It supports multiple schemes (HTTP, HTTPS, file) and reports progress via the display package.
package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"

	"assetload/pkg/common"
	"assetload/pkg/display"
)

// ErrUnsupportedKind is returned when asked to fetch a model. Models are
// delivered through bundles and never fetched by URL.
var ErrUnsupportedKind = errors.New("loading models from a URL is not supported, use a bundle")

// NetworkError is any failure to retrieve a locator.
type NetworkError struct {
	Locator string
	Message string
	Err     error
}

func (e *NetworkError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fetch %s: %s: %v", e.Locator, e.Message, e.Err)
	}
	return fmt.Sprintf("fetch %s: %s", e.Locator, e.Message)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// Raw is the undecoded result of a fetch.
type Raw struct {
	Locator string
	Data    []byte
	// ContentType is the media type reported by the source, possibly with
	// parameters (e.g. "text/plain; charset=iso-8859-1").
	ContentType string
}

// Fetcher performs a single retrieval attempt for a locator.
type Fetcher interface {
	// Fetch retrieves the resource at locator. It never retries.
	Fetch(ctx context.Context, locator string, kind common.Kind) (*Raw, error)
}

// SchemeHandler defines the interface for handling specific URI schemes (e.g., "http://").
type SchemeHandler interface {
	// Download writes the resource at uri to w and returns its content type.
	Download(ctx context.Context, uri string, w io.Writer, task display.Task) (string, error)
	// Schemes returns the list of URI schemes (e.g., ["http", "https"]) this handler can process.
	Schemes() []string
}
