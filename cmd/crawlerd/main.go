// Command crawlerd runs the news-content crawl pipeline: it consumes scored
// symbol events, expands them into article URLs, downloads the articles, and
// serves the stored content over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/finstage/content-crawler/internal/api"
	"github.com/finstage/content-crawler/internal/bfs"
	"github.com/finstage/content-crawler/internal/buffer"
	"github.com/finstage/content-crawler/internal/clock/system"
	"github.com/finstage/content-crawler/internal/config"
	"github.com/finstage/content-crawler/internal/dedup"
	"github.com/finstage/content-crawler/internal/dispatcher"
	collyfetcher "github.com/finstage/content-crawler/internal/fetcher/colly"
	headlessfetcher "github.com/finstage/content-crawler/internal/fetcher/headless"
	"github.com/finstage/content-crawler/internal/headless/detector"
	"github.com/finstage/content-crawler/internal/logging"
	"github.com/finstage/content-crawler/internal/metrics"
	"github.com/finstage/content-crawler/internal/pipeline"
	"github.com/finstage/content-crawler/internal/pqueue"
	"github.com/finstage/content-crawler/internal/resolver"
	"github.com/finstage/content-crawler/internal/router"
	"github.com/finstage/content-crawler/internal/storage/gcs"
	"github.com/finstage/content-crawler/internal/storage/local"
	"github.com/finstage/content-crawler/internal/storage/memory"
	"github.com/finstage/content-crawler/internal/storage/postgres"
	"github.com/finstage/content-crawler/internal/stream/pubsub"
	"github.com/finstage/content-crawler/internal/worker"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	metrics.Init()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := buildStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	blobs, err := buildBlobStore(ctx, cfg)
	if err != nil {
		return err
	}

	clk := system.New()
	deduper := dedup.New(store)
	fetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent: cfg.HTTP.UserAgent,
		Timeout:   cfg.FetchTimeout(),
	})

	var (
		headlessFetcher pipeline.Fetcher
		promoteDetector pipeline.HeadlessDetector
	)
	if cfg.Headless.Enabled {
		hf, err := headlessfetcher.New(headlessfetcher.Config{
			MaxParallel: cfg.Headless.MaxParallel,
			UserAgent:   cfg.HTTP.UserAgent,
			NavTimeout:  time.Duration(cfg.Headless.NavTimeoutSec) * time.Second,
		})
		if err != nil {
			return fmt.Errorf("build headless fetcher: %w", err)
		}
		defer hf.Close()
		headlessFetcher = hf
		promoteDetector = detector.NewHeuristic(cfg.Headless.PromotionThresh)
	}

	downloader := worker.NewDownloader(worker.DownloaderOptions{
		Resolver:   resolver.New(cfg.FetchTimeout(), logger),
		Fetcher:    fetcher,
		Headless:   headlessFetcher,
		Detector:   promoteDetector,
		Store:      store,
		Blobs:      blobs,
		Dedup:      deduper,
		Clock:      clk,
		BlobPrefix: cfg.Archive.Prefix,
	}, logger)
	pool := worker.NewPool(cfg.Worker.MaxWorkers, downloader.Handle, logger)

	symbolQueue := pqueue.NewSymbolQueue()
	urlQueue := pqueue.NewURLQueue()

	buf := buffer.New(
		cfg.Buffer.Threshold,
		cfg.BufferTimeout(),
		func(tier pipeline.Tier, score int, task pipeline.SymbolTask) error {
			return symbolQueue.Push(tier, score, task)
		},
		clk,
		logger,
	)
	flushDriver := buffer.NewDriver(buf, cfg.FlushInterval(), logger)

	extractor := bfs.New(fetcher, store, bfs.Config{
		MaxDepth:     cfg.BFS.MaxDepth,
		MaxURLs:      cfg.BFS.MaxURLsPerSymbol,
		SeedTemplate: cfg.BFS.SeedTemplate,
	}, logger)

	symbolRouter := router.New(
		symbolQueue, urlQueue, extractor, deduper,
		cfg.Queue.URLQueueSize, cfg.RouterInterval(), logger,
	)
	urlDispatcher := dispatcher.New(urlQueue, pool, cfg.DispatchInterval(), logger)

	var wg sync.WaitGroup
	runLoop := func(f func(context.Context)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f(ctx)
		}()
	}
	runLoop(flushDriver.Run)
	runLoop(symbolRouter.Run)
	runLoop(urlDispatcher.Run)

	if cfg.Stream.ProjectID != "" && cfg.Stream.SubscriptionID != "" {
		consumer, err := pubsub.New(ctx, cfg.Stream.ProjectID, cfg.Stream.SubscriptionID, buf, logger)
		if err != nil {
			return fmt.Errorf("build stream consumer: %w", err)
		}
		defer func() { _ = consumer.Close() }()
		runLoop(func(ctx context.Context) {
			if err := consumer.Run(ctx); err != nil {
				logger.Error("stream consumer failed", zap.Error(err))
				stop()
			}
		})
	} else {
		logger.Warn("stream consumer disabled, no subscription configured")
	}

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           api.NewServer(store, logger).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	runLoop(func(ctx context.Context) {
		logger.Info("http server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server failed", zap.Error(err))
			stop()
		}
	})

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown failed", zap.Error(err))
	}

	pool.Wait()
	wg.Wait()
	logger.Info("shutdown complete")
	return nil
}

func buildStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (pipeline.ContentStore, func(), error) {
	if cfg.DB.DSN == "" {
		logger.Warn("db.dsn not set, using in-memory content store")
		return memory.NewContentStore(), func() {}, nil
	}
	store, err := postgres.NewContentStore(ctx, postgres.ContentStoreConfig{
		DSN:      cfg.DB.DSN,
		MaxConns: cfg.DB.MaxConns,
		MinConns: cfg.DB.MinConns,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("build content store: %w", err)
	}
	return store, store.Close, nil
}

func buildBlobStore(ctx context.Context, cfg config.Config) (pipeline.BlobStore, error) {
	switch cfg.Archive.Provider {
	case "gcs":
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("build storage client: %w", err)
		}
		return gcs.New(client, gcs.Config{Bucket: cfg.Archive.GCSBucket})
	case "local":
		return local.New(local.Config{BaseDir: cfg.Archive.BaseDir})
	default:
		return nil, nil
	}
}
