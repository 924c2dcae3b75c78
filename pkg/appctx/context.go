// Package appctx provides the application context that holds all runtime dependencies.
package appctx

import (
	"tokgrab/pkg/config"
	"tokgrab/pkg/httpclient"
	"tokgrab/pkg/logging"
	"tokgrab/pkg/registry"
)

// Context holds all application runtime dependencies.
// Pass this single struct to components instead of individual parameters.
type Context struct {
	Config     *config.Config
	Log        *logging.Logger
	HTTPClient *httpclient.Client
	Extractors *registry.ExtractorRegistry
	BaseURL    string
}

// New creates a new application context.
func New(cfg *config.Config, log *logging.Logger) *Context {
	return &Context{
		Config:  cfg,
		Log:     log,
		BaseURL: cfg.BaseURL,
	}
}

// WithHTTPClient sets the HTTP client.
func (c *Context) WithHTTPClient(client *httpclient.Client) *Context {
	c.HTTPClient = client
	return c
}

// WithExtractors sets the extractor registry.
func (c *Context) WithExtractors(reg *registry.ExtractorRegistry) *Context {
	c.Extractors = reg
	return c
}
