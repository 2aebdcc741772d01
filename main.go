package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sjsage522/jobworker/config"
	"sjsage522/jobworker/helpers"
	"sjsage522/jobworker/internal/crawler"
	"sjsage522/jobworker/logger"
	"sjsage522/jobworker/services/cache"
	"sjsage522/jobworker/services/publisher"
	"sjsage522/jobworker/services/store"
	"sjsage522/jobworker/services/worker"

	"github.com/joho/godotenv"
)

func main() {
	// Load environment variables
	godotenv.Load()

	// Initialize logger first
	logger.Init()
	log := logger.Default

	// Load and validate configuration
	cfg := config.LoadConfig()
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	log.Info().
		Str("environment", cfg.Environment).
		Str("keyword", cfg.Keyword).
		Strs("sources", cfg.Sources).
		Dur("crawl_interval", cfg.CrawlInterval).
		Msg("Starting application")

	// Set up context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Set up signal handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Initialize services
	services, err := initializeServices(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize services")
	}
	defer services.Cleanup()

	sources, err := buildSources(cfg, services)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to configure sources")
	}

	pipeline := worker.NewPipeline(services.Store, services.Publisher, worker.PipelineOptions{
		Dates: crawler.DateNormalizer{Fallback: crawler.ParseFallback(cfg.DateFallback)},
		Driver: crawler.DriverOptions{
			MaxPages: cfg.MaxPages,
			Backoff:  cfg.RetryBackoff,
		},
	})

	// Create and start worker
	w := worker.NewWorker(
		ctx,
		pipeline,
		sources,
		services.Publisher,
		cfg.Keyword,
		cfg.CrawlInterval,
	)

	// Start worker in a goroutine
	workerDone := make(chan error, 1)
	go func() {
		log.Info().Msg("Starting job worker")
		workerDone <- w.Start()
	}()

	// Wait for shutdown signal or worker error
	select {
	case sig := <-sigChan:
		log.Info().
			Str("signal", sig.String()).
			Msg("Received shutdown signal")
		cancel()
		<-workerDone
	case err := <-workerDone:
		if err != nil {
			log.Error().Err(err).Msg("Worker exited with error")
		} else {
			log.Info().Msg("Worker exited normally")
		}
	}

	statsCtx, statsCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer statsCancel()
	if st, err := services.Store.Stats(statsCtx); err == nil {
		log.Info().
			Int("jobs", st.Total).
			Int("sources", st.Sources).
			Int("companies", st.Companies).
			Int("locations", st.Locations).
			Msg("Store totals")
	}

	// Graceful shutdown
	log.Info().Msg("Shutting down gracefully...")
}

// Services holds all the initialized services
type Services struct {
	Store     *store.Store
	Cache     cache.CacheService
	Publisher publisher.Publisher
	Browser   *crawler.PlaywrightProvider
	Fetcher   *helpers.Fetcher
}

// Cleanup cleans up all services
func (s *Services) Cleanup() {
	if s.Browser != nil {
		if err := s.Browser.Close(); err != nil {
			logger.LogError("Browser", err, "failed to stop browser")
		}
	}
	if s.Publisher != nil {
		s.Publisher.Close()
	}
	if s.Store != nil {
		s.Store.Close()
	}
}

// initializeServices initializes all required services. Memcache and Redis
// are optional and skipped when their address is empty.
func initializeServices(ctx context.Context, cfg *config.Config) (*Services, error) {
	services := &Services{}

	jobStore, err := store.Open(cfg.StorePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	if err := jobStore.EnsureSchema(ctx); err != nil {
		jobStore.Close()
		return nil, fmt.Errorf("failed to prepare store: %w", err)
	}
	services.Store = jobStore
	logger.Info("Opened job store at %s", cfg.StorePath)

	// Initialize cache service
	if cfg.MemcacheAddr != "" {
		cacheService := cache.NewMemcacheService(cfg.MemcacheAddr)
		if err := cacheService.Ping(); err != nil {
			logger.LogError("Memcache", err, "memcache at %s unavailable, rate-limit blocks are not shared", cfg.MemcacheAddr)
		} else {
			services.Cache = cacheService
			logger.Info("Connected to Memcache at %s", cfg.MemcacheAddr)
		}
	}

	// Initialize publisher
	if cfg.RedisAddr != "" {
		redisPublisher := publisher.NewRedisPublisher(
			cfg.RedisAddr,
			cfg.RedisDB,
			cfg.RedisStream,
			cfg.RedisStreamCount,
			cfg.RedisStreamMaxLength,
		)
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := redisPublisher.Ping(pingCtx); err != nil {
			services.Cleanup()
			redisPublisher.Close()
			return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.RedisAddr, err)
		}
		services.Publisher = redisPublisher

		logger.Info("Connected to Redis at %s (DB: %d, Stream: %s)",
			cfg.RedisAddr, cfg.RedisDB, cfg.RedisStream)
	}

	services.Fetcher = helpers.NewFetcher(helpers.FetcherOptions{
		Timeout:   cfg.PageTimeout,
		Limiter:   helpers.NewHostLimiter(cfg.RequestsPerSecond, 1),
		Cache:     services.Cache,
		BlockTime: cfg.RateLimitBlock,
	})
	services.Browser = crawler.NewPlaywrightProvider(cfg.BrowserHeadless)

	return services, nil
}

// buildSources resolves the configured source names to adapter factories
func buildSources(cfg *config.Config, services *Services) ([]worker.Source, error) {
	catalogue := crawler.DefaultSources(cfg)
	if cfg.SelectorsFile != "" {
		if err := crawler.LoadSelectorOverrides(cfg.SelectorsFile, catalogue); err != nil {
			return nil, err
		}
	}

	deps := crawler.Dependencies{
		Fetcher:     services.Fetcher,
		Pages:       services.Browser,
		PageTimeout: cfg.PageTimeout,
	}

	var sources []worker.Source
	for _, key := range cfg.Sources {
		sc, ok := catalogue[key]
		if !ok {
			return nil, fmt.Errorf("unknown source %q", key)
		}
		sources = append(sources, worker.Source{
			Name: sc.Name,
			New: func() (crawler.Adapter, error) {
				return crawler.NewAdapter(sc, deps)
			},
		})
	}
	return sources, nil
}
