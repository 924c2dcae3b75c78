// Package app provides the main application setup and dependency injection.
package app

import (
	"github.com/joho/godotenv"

	"tokgrab/pkg/appctx"
	"tokgrab/pkg/config"
	"tokgrab/pkg/extractors"
	"tokgrab/pkg/handlers/api"
	"tokgrab/pkg/httpclient"
	"tokgrab/pkg/logging"
	"tokgrab/pkg/registry"
	"tokgrab/pkg/server"
)

// App is the main application container.
type App struct {
	Ctx        *appctx.Context
	Server     *server.Server
	HTTPClient *httpclient.Client
	Extractors *registry.ExtractorRegistry
}

// New creates and initializes the application.
func New() (*App, error) {
	// Load .env if present, then configuration from the environment
	_ = godotenv.Load()
	cfg := config.Load()

	// Initialize logger
	log := logging.New(cfg.LogLevel, cfg.LogJSON, nil)
	log.Info("initializing tokgrab", "port", cfg.Port, "log_level", cfg.LogLevel)

	// Create application context
	ctx := appctx.New(cfg, log)

	// Create HTTP client
	httpClient := httpclient.New(cfg, log)
	ctx.WithHTTPClient(httpClient)

	// Initialize extractor registry
	extractorReg := registry.NewExtractorRegistry()
	registerExtractors(extractorReg, httpClient, cfg, log)
	ctx.WithExtractors(extractorReg)

	// Create HTTP server
	srv := server.New(cfg, log)

	// Create API handlers
	handlers := api.NewHandlers(ctx)
	handlers.RegisterRoutes(srv.Router())

	return &App{
		Ctx:        ctx,
		Server:     srv,
		HTTPClient: httpClient,
		Extractors: extractorReg,
	}, nil
}

// Run starts the application.
func (a *App) Run() error {
	a.Ctx.Log.Info("starting tokgrab server", "port", a.Ctx.Config.Port)
	return a.Server.Start()
}

// Shutdown gracefully shuts down the application.
func (a *App) Shutdown() {
	a.Ctx.Log.Info("shutting down application")
	a.Extractors.Close()
}

// registerExtractors registers all site extractors.
// Add new extractors here by:
// 1. Creating a new extractor in pkg/extractors/
// 2. Registering it below
func registerExtractors(
	reg *registry.ExtractorRegistry,
	client *httpclient.Client,
	cfg *config.Config,
	log *logging.Logger,
) {
	// Register TikTok extractor
	tiktokExtractor := extractors.NewTikTokExtractor(client, cfg, log)
	reg.Register(tiktokExtractor)

	// Unrecognized URLs fail with a classified error
	unsupportedExtractor := extractors.NewUnsupportedExtractor(client, log)
	reg.SetFallback(unsupportedExtractor)

	log.Info("registered extractors", "count", len(reg.All()))
}
