package commands

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/vertextoedge/cacheable-image/internal/adapter/filesystem"
	"github.com/vertextoedge/cacheable-image/internal/adapter/httpfetch"
	"github.com/vertextoedge/cacheable-image/internal/adapter/sqlite"
	"github.com/vertextoedge/cacheable-image/internal/config"
	"github.com/vertextoedge/cacheable-image/internal/domain/event"
	"github.com/vertextoedge/cacheable-image/internal/logger"
	"github.com/vertextoedge/cacheable-image/internal/metrics"
	"github.com/vertextoedge/cacheable-image/internal/service/cacher"
	"github.com/vertextoedge/cacheable-image/internal/service/coordinator"
)

// app holds the wired services shared by the commands
type app struct {
	cfg        *config.Config
	logger     *zap.Logger
	fs         *filesystem.Manager
	store      *sqlite.Store
	dispatcher *event.InMemoryDispatcher
	registry   *prometheus.Registry
	prober     *cacher.Prober
	downloader *cacher.Downloader
}

// appOptions selects the optional parts of the stack
type appOptions struct {
	index   bool // open the sqlite index and record downloads
	metrics bool // register Prometheus collectors
}

// loadConfig loads configuration and initializes the global logger
func loadConfig() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	err = logger.Init(logger.Options{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
		Compress:   cfg.Logging.Compress,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, logger.GetZapLogger(), nil
}

// newApp wires the cache stack from configuration
func newApp(opts appOptions) (*app, error) {
	cfg, log, err := loadConfig()
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: log}

	a.fs, err = filesystem.NewManagerWithBufferSize(cfg.Cache.RootDir, cfg.Cache.GetBufferSize())
	if err != nil {
		return nil, fmt.Errorf("failed to create filesystem manager: %w", err)
	}

	a.dispatcher = event.NewInMemoryDispatcher(false, func(e event.DomainEvent, err error) {
		log.Warn("event handler failed", zap.String("event", e.EventName()), zap.Error(err))
	})
	a.dispatcher.Subscribe(event.NewLoggingHandler(log))

	if opts.index {
		dbPath := cfg.GetDatabasePath()
		a.store, err = sqlite.Open(dbPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open database %s: %w", dbPath, err)
		}
		a.dispatcher.Subscribe(event.NewIndexHandler(a.store, a.store))
	}

	if opts.metrics {
		a.registry = prometheus.NewRegistry()
		a.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		a.dispatcher.Subscribe(metrics.NewMetrics(a.registry))
	}

	fetcher := httpfetch.NewClient(&httpfetch.ClientConfig{
		UserAgent:             cfg.Download.UserAgent,
		ResponseHeaderTimeout: cfg.Download.GetResponseHeaderTimeout(),
		SkipTLSVerify:         cfg.Download.SkipTLSVerify,
	})
	space := cacher.NewSpaceManager(a.fs, cfg.Cache.GetMaxSizeBytes(), float64(cfg.Cache.MaxDiskUsagePercent))

	a.prober = cacher.NewProber(a.fs, cfg.Cache.MinValidSize, a.dispatcher)
	a.downloader = cacher.NewDownloader(fetcher, a.fs, space, a.dispatcher, log, cacher.DownloaderConfig{
		ProgressInterval: cfg.Download.GetProgressInterval(),
		MaxSizeBytes:     cfg.Download.GetMaxSizeBytes(),
		RequireImage:     cfg.Download.RequireImage,
		Dedupe:           cfg.Download.Dedupe,
	})

	return a, nil
}

// newCoordinator returns a coordinator bound to the app's services
func (a *app) newCoordinator() *coordinator.Coordinator {
	return coordinator.NewCoordinator(a.prober, a.downloader, a.fs, a.dispatcher, a.logger)
}

// Close releases the app's resources
func (a *app) Close() {
	if a.downloader != nil {
		a.downloader.Close()
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn("failed to close database", zap.Error(err))
		}
	}
	logger.Sync()
}
