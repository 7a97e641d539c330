// Package main wires together the catalog service binary.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	pubsubclient "cloud.google.com/go/pubsub"
	gcsclient "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/distrowiki/catalogd/internal/api"
	"github.com/distrowiki/catalogd/internal/cache"
	"github.com/distrowiki/catalogd/internal/catalog"
	"github.com/distrowiki/catalogd/internal/clock/system"
	"github.com/distrowiki/catalogd/internal/config"
	"github.com/distrowiki/catalogd/internal/id/uuid"
	"github.com/distrowiki/catalogd/internal/logging"
	"github.com/distrowiki/catalogd/internal/metrics"
	"github.com/distrowiki/catalogd/internal/proxy"
	memorypublisher "github.com/distrowiki/catalogd/internal/publisher/memory"
	pubsubpublisher "github.com/distrowiki/catalogd/internal/publisher/pubsub"
	"github.com/distrowiki/catalogd/internal/refresher"
	"github.com/distrowiki/catalogd/internal/scraper"
	"github.com/distrowiki/catalogd/internal/scraper/headless"
	"github.com/distrowiki/catalogd/internal/sheets"
	gcsarchive "github.com/distrowiki/catalogd/internal/storage/gcs"
	localarchive "github.com/distrowiki/catalogd/internal/storage/local"
	nooparchive "github.com/distrowiki/catalogd/internal/storage/noop"
	"github.com/distrowiki/catalogd/internal/storage/postgres"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)
	metrics.Init()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clock := system.New()
	idGen := uuid.New()

	snapshotStore, err := cache.New(cfg.Cache.Path, cfg.CacheTTL(), clock, logger.Named("cache"))
	if err != nil {
		logger.Fatal("snapshot store init failed", zap.Error(err))
	}

	archive, err := buildArchive(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("archive init failed", zap.Error(err))
	}

	publisher, cleanupPublisher, err := buildPublisher(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("publisher init failed", zap.Error(err))
	}
	defer cleanupPublisher()

	proxyPool := proxy.NewPool(cfg.Scrape.ProxyFailLimit)

	probe, err := scraper.NewClient(scraper.ClientConfig{
		Timeout:          cfg.ScrapeTimeout(),
		CloudflareBypass: true,
	}, proxyPool)
	if err != nil {
		logger.Fatal("scrape client init failed", zap.Error(err))
	}

	var headlessFetcher scraper.Fetcher
	if cfg.Headless.Enabled {
		hf, err := headless.New(headless.Config{
			MaxParallel:       cfg.Headless.MaxParallel,
			NavigationTimeout: time.Duration(cfg.Headless.NavTimeoutSec) * time.Second,
		})
		if err != nil {
			logger.Warn("headless fetcher init failed", zap.Error(err))
		} else {
			headlessFetcher = hf
			defer hf.Close()
		}
	}

	crawl, err := scraper.New(scraper.Config{
		BaseURL:  cfg.Scrape.BaseURL,
		DataSpan: cfg.Scrape.DataSpan,
		Limit:    cfg.Scrape.Limit,
		MinDelay: time.Duration(cfg.Scrape.MinDelayMs) * time.Millisecond,
		MaxDelay: time.Duration(cfg.Scrape.MaxDelayMs) * time.Millisecond,
	}, probe, headlessFetcher, logger.Named("scraper"))
	if err != nil {
		logger.Fatal("scraper init failed", zap.Error(err))
	}

	var sheet catalog.Source
	if cfg.Sheet.CSVURL != "" {
		src, err := sheets.New(sheets.Config{
			CSVURL:  cfg.Sheet.CSVURL,
			Timeout: time.Duration(cfg.Sheet.TimeoutSeconds) * time.Second,
		}, logger.Named("sheets"))
		if err != nil {
			logger.Fatal("sheet source init failed", zap.Error(err))
		}
		sheet = src
	}

	var community api.CommunityStore
	if cfg.DB.DSN != "" {
		store, err := postgres.NewCommunityStore(ctx, postgres.CommunityStoreConfig{
			DSN:      cfg.DB.DSN,
			MaxConns: int32(cfg.DB.MaxOpenConns),
			MinConns: int32(cfg.DB.MaxIdleConns),
		})
		if err != nil {
			logger.Fatal("community store init failed", zap.Error(err))
		}
		defer store.Close()
		community = store
	}

	refresh, err := refresher.New(refresher.Config{
		Topic:         cfg.PubSub.TopicName,
		ArchivePrefix: cfg.Archive.Prefix,
	}, refresher.Deps{
		Crawler:   crawl,
		Sheet:     sheet,
		Store:     snapshotStore,
		Archive:   archive,
		Publisher: publisher,
		Clock:     clock,
		IDs:       idGen,
		Retry: refresher.NewExponentialRetryPolicy(
			cfg.Scrape.MaxRetries,
			time.Duration(cfg.Scrape.BackoffInitialMs)*time.Millisecond,
			time.Duration(cfg.Scrape.BackoffMaxMs)*time.Millisecond,
		),
		Logger: logger.Named("refresher"),
	})
	if err != nil {
		logger.Fatal("refresher init failed", zap.Error(err))
	}

	apiServer := api.NewServer(
		snapshotStore,
		refresh,
		proxyPool,
		community,
		idGen,
		clock,
		cfg,
		logger.Named("api"),
	)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	refresh.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
}

func buildArchive(ctx context.Context, cfg config.Config, logger *zap.Logger) (catalog.ArchiveStore, error) {
	switch cfg.Archive.Provider {
	case "local":
		return localarchive.New(localarchive.Config{BaseDir: cfg.Archive.BaseDir})
	case "gcs":
		client, err := gcsclient.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client: %w", err)
		}
		return gcsarchive.New(client, gcsarchive.Config{Bucket: cfg.Archive.GCSBucket})
	default:
		logger.Info("snapshot archiving disabled")
		return nooparchive.New(), nil
	}
}

func buildPublisher(ctx context.Context, cfg config.Config, logger *zap.Logger) (catalog.Publisher, func(), error) {
	if cfg.PubSub.ProjectID == "" {
		logger.Info("pubsub not configured, events stay in memory")
		return memorypublisher.New(), func() {}, nil
	}
	client, err := pubsubclient.NewClient(ctx, cfg.PubSub.ProjectID)
	if err != nil {
		return nil, nil, fmt.Errorf("pubsub client: %w", err)
	}
	pub, err := pubsubpublisher.New(client)
	if err != nil {
		return nil, nil, fmt.Errorf("pubsub publisher: %w", err)
	}
	cleanup := func() {
		pub.Close()
		if err := client.Close(); err != nil {
			logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	return pub, cleanup, nil
}
