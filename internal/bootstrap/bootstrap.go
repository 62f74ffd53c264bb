// Package bootstrap provides dependency initialization for the genjob server
// and CLI.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/maauso/genjob/internal/catalog"
	"github.com/maauso/genjob/internal/config"
	"github.com/maauso/genjob/internal/job"
	"github.com/maauso/genjob/internal/materialize"
	"github.com/maauso/genjob/internal/provider"
	"github.com/maauso/genjob/internal/storage"
)

// Dependencies holds all initialized dependencies.
type Dependencies struct {
	Orchestrator *job.Orchestrator
	Janitor      *job.Janitor
	// DefaultProvider is the provider configured through the environment.
	// Provider is empty when none is configured.
	DefaultProvider provider.Config
}

// NewDependencies creates and initializes all dependencies for the application.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	cat, err := initCatalog(cfg, logger)
	if err != nil {
		return nil, err
	}

	// Initialize storage
	store, err := initStorage(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	hc := &http.Client{}
	materializer := materialize.New(
		materialize.WithProxy(cfg.MaterializeProxyURL, hc),
		materialize.WithHTTPClient(hc),
		materialize.WithTimeout(cfg.MaterializeTimeout),
		materialize.WithRetries(cfg.MaterializeRetries, cfg.MaterializeRetryDelay),
		materialize.WithSink(store),
		materialize.WithLogger(logger),
	)

	registry := job.NewRegistry()
	orchestrator, err := job.NewOrchestrator(
		job.WithCatalog(cat),
		job.WithMaterializer(materializer),
		job.WithBackoff(job.Backoff{
			Initial:    cfg.PollInitialInterval,
			Max:        cfg.PollMaxInterval,
			Multiplier: cfg.PollMultiplier,
		}),
		job.WithTimeout(cfg.JobTimeout),
		job.WithRegistry(registry),
		job.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("create orchestrator: %w", err)
	}

	janitor, err := job.NewJanitor(registry, cfg.JanitorSchedule, cfg.JobRetention, logger)
	if err != nil {
		return nil, fmt.Errorf("create janitor: %w", err)
	}

	return &Dependencies{
		Orchestrator:    orchestrator,
		Janitor:         janitor,
		DefaultProvider: DefaultProvider(cfg),
	}, nil
}

// DefaultProvider returns the provider configuration from the environment.
func DefaultProvider(cfg *config.Config) provider.Config {
	return provider.Config{
		Provider:       cfg.Provider,
		BaseURL:        cfg.ProviderURL,
		APIKey:         cfg.ProviderAPIKey,
		PreferredModel: cfg.ProviderModel,
	}
}

func initCatalog(cfg *config.Config, logger *slog.Logger) (*catalog.Catalog, error) {
	if cfg.CatalogFile == "" {
		return catalog.Default(), nil
	}
	cat, err := catalog.Load(cfg.CatalogFile)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	logger.Info("capabilities catalog loaded", slog.String("path", cfg.CatalogFile))
	return cat, nil
}

// initStorage creates the appropriate storage backend based on configuration.
func initStorage(ctx context.Context, cfg *config.Config, logger *slog.Logger) (storage.Storage, error) {
	if cfg.S3Enabled() {
		s3Cfg := storage.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
		}
		s3Store, err := storage.NewS3Storage(ctx, s3Cfg)
		if err != nil {
			return nil, fmt.Errorf("create S3 storage: %w", err)
		}
		logger.Info("S3 storage configured",
			slog.String("bucket", cfg.S3Bucket),
			slog.String("region", cfg.S3Region),
		)
		return s3Store, nil
	}

	localStore, err := storage.NewLocalStorage(cfg.TempDir)
	if err != nil {
		return nil, fmt.Errorf("create local storage: %w", err)
	}
	logger.Info("local storage configured",
		slog.String("temp_dir", cfg.TempDir),
	)
	return localStore, nil
}
