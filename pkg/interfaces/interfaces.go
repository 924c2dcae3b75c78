// Package interfaces defines the core abstractions for the extractor service.
// All site extractors implement these interfaces, making the system easy
// to extend with new platforms.
package interfaces

import (
	"context"
	"net/http"

	"tokgrab/pkg/types"
)

// Extractor resolves a public share URL into a normalized video record.
// Each supported platform has its own extractor implementation.
//
// To add a new extractor:
// 1. Create a new file in pkg/extractors/
// 2. Implement this interface
// 3. Register it in the ExtractorRegistry
type Extractor interface {
	// Name returns a unique identifier for this extractor.
	Name() string

	// CanExtract returns true if this extractor can handle the given URL.
	CanExtract(url string) bool

	// Extract fetches the page behind url and resolves it to a video record.
	// Failures carry a types.ErrorKind classification.
	Extract(ctx context.Context, url string) (*types.VideoRecord, error)

	// Close releases any resources held by the extractor.
	Close() error
}

// HTTPClient abstracts HTTP operations for testability.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Logger defines the logging interface used throughout the application.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}
