// Package server builds the application's dependencies and runs the HTTP service.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"cloud.google.com/go/storage"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/JakeFAU/campus-extractor/internal/api"
	"github.com/JakeFAU/campus-extractor/internal/batch"
	"github.com/JakeFAU/campus-extractor/internal/catalog"
	"github.com/JakeFAU/campus-extractor/internal/clock/system"
	"github.com/JakeFAU/campus-extractor/internal/config"
	"github.com/JakeFAU/campus-extractor/internal/csvout"
	"github.com/JakeFAU/campus-extractor/internal/extract"
	"github.com/JakeFAU/campus-extractor/internal/fetcher"
	collyfetcher "github.com/JakeFAU/campus-extractor/internal/fetcher/colly"
	headlessfetcher "github.com/JakeFAU/campus-extractor/internal/fetcher/headless"
	"github.com/JakeFAU/campus-extractor/internal/headless/detector"
	"github.com/JakeFAU/campus-extractor/internal/id/uuid"
	"github.com/JakeFAU/campus-extractor/internal/ingest"
	"github.com/JakeFAU/campus-extractor/internal/llm/anthropic"
	"github.com/JakeFAU/campus-extractor/internal/metrics"
	"github.com/JakeFAU/campus-extractor/internal/normalize"
	"github.com/JakeFAU/campus-extractor/internal/pipeline"
	"github.com/JakeFAU/campus-extractor/internal/policy/ratelimit"
	memorypublisher "github.com/JakeFAU/campus-extractor/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/campus-extractor/internal/publisher/pubsub"
	gcsstorage "github.com/JakeFAU/campus-extractor/internal/storage/gcs"
	localstorage "github.com/JakeFAU/campus-extractor/internal/storage/local"
	memorystorage "github.com/JakeFAU/campus-extractor/internal/storage/memory"
	pgstore "github.com/JakeFAU/campus-extractor/internal/storage/postgres"
	"github.com/JakeFAU/campus-extractor/internal/structured"
)

// App contains the application's dependencies.
type App struct {
	cfg        config.Config
	logger     *zap.Logger
	apiServer  *api.Server
	pipelines  *pipeline.Service
	ingester   *ingest.Service
	records    extract.RecordStore
	browser    *headlessfetcher.Fetcher
	storage    *storage.Client
	pgStore    *pgstore.RecordStore
	publisher  *gcppublisher.Publisher
	normalizer *normalize.Normalizer
}

// Pipelines returns the extraction service.
func (a *App) Pipelines() api.Pipelines { return a.pipelines }

// Ingester returns the webhook ingest service.
func (a *App) Ingester() *ingest.Service { return a.ingester }

// Handler returns the HTTP handler.
func (a *App) Handler() http.Handler { return a.apiServer.Handler() }

// Build creates the application's dependencies. Closing the returned App
// releases every client it opened.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger) (_ *App, err error) {
	metrics.Init()
	app := &App{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			app.closeInfrastructure()
		}
	}()
	logger.Info("building application dependencies",
		zap.Int("port", cfg.Server.Port),
		zap.String("storage_backend", cfg.Storage.Backend),
		zap.Int("max_concurrency", cfg.Extraction.MaxConcurrency),
	)

	cat, err := catalog.New(cfg.CatalogOptions())
	if err != nil {
		return nil, fmt.Errorf("catalog init failed: %w", err)
	}

	page, err := app.setupFetcher()
	if err != nil {
		return nil, err
	}

	model := app.setupModel()
	var extractor *structured.Extractor
	if model != nil {
		if extractor, err = structured.NewExtractor(model, cfg.LLM.MaxTokens, logger); err != nil {
			return nil, fmt.Errorf("extractor init failed: %w", err)
		}
	}

	engine := batch.New("extract", cfg.Extraction.MaxConcurrency, logger)
	if app.normalizer, err = setupNormalizer(cfg, model, engine, logger); err != nil {
		return nil, err
	}

	blobs, err := app.setupStorage(ctx)
	if err != nil {
		return nil, err
	}
	if err = app.setupDatabase(ctx); err != nil {
		return nil, err
	}
	publisher, err := app.setupPublisher(ctx)
	if err != nil {
		return nil, err
	}

	clock := system.New()
	ids := uuid.New()
	gateway := &pipeline.Gateway{
		Blobs:     blobs,
		Publisher: publisher,
		Topic:     cfg.PubSub.TopicName,
		Clock:     clock,
		Logger:    logger,
	}
	if cfg.Storage.CSVDir != "" {
		gateway.CSV = csvout.NewWriter(afero.NewOsFs(), cfg.Storage.CSVDir)
	}

	app.pipelines, err = pipeline.New(pipeline.Deps{
		Catalog:    cat,
		Fetcher:    page,
		Extractor:  extractor,
		Normalizer: app.normalizer,
		Engine:     engine,
		Gateway:    gateway,
		Timeouts: map[extract.Mode]time.Duration{
			extract.ModeResearch: cfg.Timeout(extract.ModeResearch),
			extract.ModeCourses:  cfg.Timeout(extract.ModeCourses),
			extract.ModeEvents:   cfg.Timeout(extract.ModeEvents),
		},
		IDs:    ids,
		Clock:  clock,
		Logger: logger,
	})
	if err != nil {
		return nil, fmt.Errorf("pipeline init failed: %w", err)
	}
	app.ingester = ingest.New(blobs, app.records, app.normalizer, logger)

	checks := map[string]api.Check{}
	if app.pgStore != nil {
		checks["database"] = app.pgStore.Ping
	}
	app.apiServer = api.NewServer(api.Deps{
		Pipelines:        app.pipelines,
		Ingester:         app.ingester,
		Records:          app.records,
		Webhook:          api.WebhookConfig{Secret: cfg.Webhook.Secret, Bucket: cfg.Webhook.Bucket},
		PersistByDefault: true,
		Checks:           checks,
		RequestIDs:       ids,
		Logger:           logger.Named("api"),
	})
	if cfg.Webhook.Secret == "" {
		logger.Warn("webhook secret is empty, every /write-to-db call will be rejected")
	}
	return app, nil
}

// Run serves HTTP until ctx is canceled, then shuts down gracefully.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		a.logger.Info("shutdown initiated")
	case serveErr = <-errCh:
		if serveErr != nil {
			a.logger.Error("http server error", zap.Error(serveErr))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	if serveErr != nil {
		return fmt.Errorf("http server: %w", serveErr)
	}
	return nil
}

// Close gracefully shuts down the application.
func (a *App) Close() {
	a.closeInfrastructure()
	a.logger.Info("shutdown complete")
}

func (a *App) closeInfrastructure() {
	if a.browser != nil {
		a.browser.Close()
	}
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	if a.storage != nil {
		if err := a.storage.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	if a.pgStore != nil {
		a.pgStore.Close()
	}
}

func (a *App) setupFetcher() (*fetcher.Page, error) {
	cfg := a.cfg
	static := collyfetcher.New(collyfetcher.Config{
		UserAgent:     cfg.HTTP.UserAgent,
		RespectRobots: !cfg.HTTP.IgnoreRobots,
		Timeout:       time.Duration(cfg.HTTP.TimeoutSeconds) * time.Second,
	})
	a.logger.Info("using colly static fetcher", zap.String("user_agent", cfg.HTTP.UserAgent))

	opts := []fetcher.Option{
		fetcher.WithLimiter(ratelimit.New(ratelimit.Config{
			DefaultRPS:   cfg.HTTP.RequestsPerSecond,
			DefaultBurst: cfg.HTTP.Burst,
		})),
		fetcher.WithRetry(extract.NewExponentialRetryPolicy(cfg.Extraction.RetryAttempts)),
	}
	if cfg.Headless.Enabled {
		detect := detector.NewHeuristic(cfg.Headless.PromotionThresh)
		browser, err := headlessfetcher.NewChromedp(headlessfetcher.Config{
			MaxParallel:       cfg.Headless.MaxParallel,
			UserAgent:         cfg.HTTP.UserAgent,
			NavigationTimeout: time.Duration(cfg.Headless.NavTimeoutSec) * time.Second,
		})
		if err != nil {
			// Promotions fall back to the static body; debug runs report the outage.
			a.logger.Warn("headless fetcher init failed", zap.Error(err))
			opts = append(opts, fetcher.WithBrowser(headlessfetcher.NewUnavailable(err), detect))
		} else {
			a.browser = browser
			opts = append(opts, fetcher.WithBrowser(browser, detect))
			a.logger.Info("using headless fetcher", zap.Int("max_parallel", cfg.Headless.MaxParallel))
		}
	}

	page, err := fetcher.New(static, a.logger, opts...)
	if err != nil {
		return nil, fmt.Errorf("page fetcher init failed: %w", err)
	}
	return page, nil
}

// setupModel returns nil when no model is configured; extraction runs then
// fail with a capability error while the rest of the service keeps working.
func (a *App) setupModel() extract.Model {
	cfg := a.cfg.LLM
	if cfg.Provider == "none" {
		a.logger.Warn("no language model configured, extraction is disabled")
		return nil
	}
	client, err := anthropic.New(anthropic.Config{
		APIKey:    cfg.APIKey,
		Model:     cfg.Model,
		MaxTokens: cfg.MaxTokens,
		Timeout:   time.Duration(cfg.TimeoutSeconds) * time.Second,
	})
	if err != nil {
		a.logger.Warn("language model unavailable, extraction is disabled", zap.Error(err))
		return nil
	}
	a.logger.Info("using anthropic model", zap.String("model", cfg.Model))
	return client
}

func setupNormalizer(
	cfg config.Config,
	model extract.Model,
	engine *batch.Engine,
	logger *zap.Logger,
) (*normalize.Normalizer, error) {
	entries := normalize.DefaultTaxonomy()
	if len(cfg.Normalize.Taxonomy) > 0 {
		entries = make([]normalize.Entry, 0, len(cfg.Normalize.Taxonomy))
		for _, e := range cfg.Normalize.Taxonomy {
			entries = append(entries, normalize.Entry{Canonical: e.Canonical, Aliases: e.Aliases})
		}
	}
	tax, err := normalize.NewTaxonomy(entries)
	if err != nil {
		return nil, fmt.Errorf("taxonomy init failed: %w", err)
	}

	opts := []normalize.Option{normalize.WithThreshold(cfg.Normalize.FuzzyThreshold)}
	if cfg.Normalize.ClassifierEnabled && model != nil {
		classifier, err := normalize.NewModelClassifier(model, 64)
		if err != nil {
			return nil, fmt.Errorf("classifier init failed: %w", err)
		}
		opts = append(opts, normalize.WithClassifier(classifier, engine.Named("classify")))
		logger.Info("interest classifier enabled")
	}
	return normalize.New(tax, logger, opts...), nil
}

func (a *App) setupStorage(ctx context.Context) (extract.BlobStore, error) {
	cfg := a.cfg.Storage
	switch cfg.Backend {
	case "gcs":
		a.logger.Info("using GCS storage backend", zap.String("bucket", cfg.Bucket))
		var err error
		a.storage, err = storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		blobs, err := gcsstorage.New(a.storage, gcsstorage.Config{Bucket: cfg.Bucket})
		if err != nil {
			return nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		return blobs, nil
	case "local":
		a.logger.Info("using local storage backend", zap.String("path", cfg.LocalDir))
		blobs, err := localstorage.New(localstorage.Config{BaseDir: cfg.LocalDir})
		if err != nil {
			return nil, fmt.Errorf("local blob store init failed: %w", err)
		}
		return blobs, nil
	default:
		a.logger.Info("using in-memory storage backend")
		return memorystorage.NewBlobStore(), nil
	}
}

func (a *App) setupDatabase(ctx context.Context) error {
	if a.cfg.DB.DSN == "" {
		a.logger.Warn("no DSN specified for database, using in-memory record store")
		a.records = memorystorage.NewRecordStore()
		return nil
	}
	var err error
	a.pgStore, err = pgstore.NewRecordStore(ctx, pgstore.Config{
		DSN:      a.cfg.DB.DSN,
		MaxConns: int32(a.cfg.DB.MaxConns),
	})
	if err != nil {
		return fmt.Errorf("record store init failed: %w", err)
	}
	if err := a.pgStore.Migrate(ctx); err != nil {
		return fmt.Errorf("record store migrate failed: %w", err)
	}
	a.records = a.pgStore
	a.logger.Info("postgres record store initialized")
	return nil
}

func (a *App) setupPublisher(ctx context.Context) (extract.Publisher, error) {
	cfg := a.cfg.PubSub
	if cfg.TopicName == "" || cfg.ProjectID == "" {
		a.logger.Warn("no Pub/Sub topic configured, using in-memory publisher")
		return memorypublisher.New(a.logger), nil
	}
	var err error
	a.publisher, err = gcppublisher.Dial(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub client init failed: %w", err)
	}
	a.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", cfg.ProjectID),
		zap.String("topic", cfg.TopicName),
	)
	return a.publisher, nil
}
