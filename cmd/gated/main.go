package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rzbill/gate/internal/config"
	"github.com/rzbill/gate/pkg/api/server"
	"github.com/rzbill/gate/pkg/enforce"
	"github.com/rzbill/gate/pkg/log"
	"github.com/rzbill/gate/pkg/metrics"
	"github.com/rzbill/gate/pkg/ratelimit"
	"github.com/rzbill/gate/pkg/snapshot"
	"github.com/rzbill/gate/pkg/version"
)

var (
	configFile    = flag.String("config", "", "Configuration file path")
	httpAddr      = flag.String("http-addr", "", "HTTP server address (overrides config)")
	snapshotURL   = flag.String("snapshot-url", "", "Control-plane snapshot URL (overrides config)")
	logLevel      = flag.String("log-level", "", "Log level (debug, info, warn, error)")
	debugLogLevel = flag.Bool("debug", false, "Enable debug mode (shorthand for --log-level=debug)")
	logFormat     = flag.String("log-format", "", "Log format (text, json)")
	showHelp      = flag.Bool("help", false, "Show help")
	showVer       = flag.Bool("version", false, "Show version")
)

func main() {
	flag.Parse()

	if *showHelp {
		flag.Usage()
		return
	}

	if *showVer {
		fmt.Println(version.Info())
		return
	}

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %s\n", err)
		os.Exit(1)
	}

	logger := buildLogger(cfg)
	logger.Info("Starting Gate Server", log.Str("version", version.Version))

	// Set up signal handler for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("Received signal", log.Str("signal", sig.String()))
		cancel()
	}()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("Server failed", log.Err(err))
		os.Exit(1)
	}

	logger.Info("Shutdown complete")
}

// loadConfig loads the config file and applies command-line overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(*configFile)
	if err != nil && *snapshotURL == "" {
		return nil, err
	}
	if cfg == nil {
		cfg = config.Default()
	}

	if *httpAddr != "" {
		cfg.Server.HTTPAddr = *httpAddr
	}
	if *snapshotURL != "" {
		cfg.Snapshot.Source = "http"
		cfg.Snapshot.URL = *snapshotURL
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if *debugLogLevel {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}

	return cfg, cfg.Validate()
}

func buildLogger(cfg *config.Config) log.Logger {
	var opts []log.Option

	level, err := log.ParseLevel(cfg.Log.Level)
	if err != nil {
		fmt.Printf("Invalid log level: %s, defaulting to 'info'\n", cfg.Log.Level)
		level = log.InfoLevel
	}
	opts = append(opts, log.WithLevel(level))

	switch strings.ToLower(cfg.Log.Format) {
	case "json":
		opts = append(opts, log.WithFormatter(&log.JSONFormatter{}))
	case "text":
		opts = append(opts, log.WithFormatter(&log.TextFormatter{}))
	default:
		fmt.Printf("Invalid log format: %s, defaulting to 'text'\n", cfg.Log.Format)
		opts = append(opts, log.WithFormatter(&log.TextFormatter{}))
	}

	return log.NewLogger(opts...)
}

func buildFetcher(cfg *config.Config, logger log.Logger) snapshot.Fetcher {
	if cfg.Snapshot.Source == "file" {
		return snapshot.NewFileFetcher(cfg.Snapshot.Path, logger)
	}
	return snapshot.NewHTTPFetcher(cfg.Snapshot.URL, logger,
		snapshot.WithFetchTimeout(cfg.Snapshot.FetchTimeout))
}

func buildBucketStore(ctx context.Context, cfg *config.Config, logger log.Logger) (ratelimit.BucketStore, error) {
	switch cfg.RateLimit.Store {
	case "badger":
		store := ratelimit.NewBadgerStore(logger)
		if err := store.Open(filepath.Join(cfg.DataDir, "ratelimit")); err != nil {
			return nil, fmt.Errorf("failed to open rate limit store: %w", err)
		}
		return store, nil
	case "redis":
		return ratelimit.NewRedisStore(ctx, ratelimit.RedisOptions{
			Addr:     cfg.RateLimit.Redis.Address,
			Password: cfg.RateLimit.Redis.Password,
			DB:       cfg.RateLimit.Redis.DB,
		}, logger)
	default:
		return ratelimit.NewMemoryStore(), nil
	}
}

func run(ctx context.Context, cfg *config.Config, logger log.Logger) error {
	cache, err := snapshot.NewCache(snapshot.CacheOptions{
		Fetcher:         buildFetcher(cfg, logger),
		RefreshInterval: cfg.Snapshot.RefreshInterval,
		TTL:             cfg.Snapshot.TTL,
		MaxStaleness:    cfg.Snapshot.MaxStaleness,
		Logger:          logger,
	})
	if err != nil {
		return err
	}
	cache.Start(ctx)
	defer cache.Stop()

	store, err := buildBucketStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	sweeper := ratelimit.NewSweeper(store, cfg.RateLimit.SweepSchedule, logger)
	if err := sweeper.Start(); err != nil {
		return fmt.Errorf("failed to start bucket sweeper: %w", err)
	}
	defer sweeper.Stop()

	limiter := ratelimit.NewLimiter(store, logger)
	pipeline := enforce.NewPipeline(cache, limiter, logger)

	srv, err := server.NewServer(server.Options{
		Addr:     cfg.Server.HTTPAddr,
		Cache:    cache,
		Pipeline: pipeline,
		Metrics:  metrics.New(cache),
		Logger:   logger,
	})
	if err != nil {
		return err
	}
	if err := srv.Start(); err != nil {
		return err
	}

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	return srv.Stop(shutdownCtx)
}
