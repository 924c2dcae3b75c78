// Package extractors provides site extractor implementations.
// Each extractor turns a public share URL into a normalized video record.
//
// To add a new extractor:
// 1. Create a new file (e.g., myplatform.go)
// 2. Implement the interfaces.Extractor interface
// 3. Register it in the registry (see internal/app)
package extractors

import (
	"context"
	"net/http"

	"tokgrab/pkg/httpclient"
	"tokgrab/pkg/interfaces"
	"tokgrab/pkg/logging"
	"tokgrab/pkg/types"
)

// BaseExtractor provides common functionality for extractors.
type BaseExtractor struct {
	client *httpclient.Client
	log    *logging.Logger
}

// NewBaseExtractor creates a new base extractor.
func NewBaseExtractor(client *httpclient.Client, log *logging.Logger) *BaseExtractor {
	return &BaseExtractor{
		client: client,
		log:    log,
	}
}

// Close releases resources.
func (b *BaseExtractor) Close() error {
	return nil
}

// DoRequest performs a GET request with the given headers.
func (b *BaseExtractor) DoRequest(ctx context.Context, urlStr string, headers map[string]string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return nil, err
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	return b.client.Do(req)
}

// UnsupportedExtractor is the fallback when no extractor recognizes a URL.
type UnsupportedExtractor struct {
	*BaseExtractor
}

// NewUnsupportedExtractor creates the fallback extractor.
func NewUnsupportedExtractor(client *httpclient.Client, log *logging.Logger) *UnsupportedExtractor {
	return &UnsupportedExtractor{
		BaseExtractor: NewBaseExtractor(client, log.WithComponent("unsupported-extractor")),
	}
}

// Name returns the extractor name.
func (e *UnsupportedExtractor) Name() string {
	return "unsupported"
}

// CanExtract always returns false as this is the fallback.
func (e *UnsupportedExtractor) CanExtract(url string) bool {
	return false
}

// Extract fails every URL with a malformed_url classification.
func (e *UnsupportedExtractor) Extract(ctx context.Context, urlStr string) (*types.VideoRecord, error) {
	return nil, types.NewExtractError(types.ErrMalformedURL, "unsupported URL: "+urlStr)
}

var _ interfaces.Extractor = (*UnsupportedExtractor)(nil)
