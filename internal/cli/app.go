package cli

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/vertextoedge/batchfetch/internal/adapter/filesystem"
	"github.com/vertextoedge/batchfetch/internal/adapter/hub"
	"github.com/vertextoedge/batchfetch/internal/adapter/manifestfile"
	"github.com/vertextoedge/batchfetch/internal/adapter/sqlite"
	"github.com/vertextoedge/batchfetch/internal/config"
	"github.com/vertextoedge/batchfetch/internal/domain/event"
	"github.com/vertextoedge/batchfetch/internal/logger"
	"github.com/vertextoedge/batchfetch/internal/port"
	"github.com/vertextoedge/batchfetch/internal/service/executor"
	"github.com/vertextoedge/batchfetch/internal/service/manager"
	"github.com/vertextoedge/batchfetch/internal/service/tracker"
)

// app is the wired object graph shared by all commands
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	store   *sqlite.Store
	fs      *filesystem.Manager
	hub     *hub.Client
	events  *event.InMemoryDispatcher
	manager *manager.Manager
}

// newApp loads configuration, initialises logging and opens the ledger.
// manifestPath replaces the hub listing with a manifest file when set.
func newApp(ro *RootOpts, manifestPath string) (*app, error) {
	cfg, err := loadConfig(ro)
	if err != nil {
		return nil, err
	}

	if err := logger.Init(logger.Options{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	}); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	zapLogger := logger.GetZapLogger()

	store, err := sqlite.Open(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", cfg.Database.Path, err)
	}

	fsManager := filesystem.NewManagerWithBufferSize(cfg.Download.GetBufferSize())

	client := hub.New(hub.Config{
		Endpoint:       cfg.Hub.Endpoint,
		Token:          cfg.Hub.Token,
		RequestTimeout: cfg.Hub.GetRequestTimeout(),
	}, fsManager, zapLogger.Named("hub"))

	var lister port.Lister = client
	if manifestPath != "" {
		lister = manifestfile.New(manifestPath)
	}

	events := event.NewInMemoryDispatcher(zapLogger.Named("events"))
	events.Subscribe(event.NewLoggingHandler(zapLogger.Named("events")))

	tr := tracker.New(store, fsManager, nil, zapLogger.Named("tracker"))
	exec := executor.New(executor.Config{
		Concurrency:   cfg.Download.Concurrency,
		MaxAttempts:   uint(cfg.Download.MaxAttempts),
		RetryDelay:    cfg.Download.GetRetryDelay(),
		MaxRetryDelay: cfg.Download.GetMaxRetryDelay(),
		MinFreeBytes:  cfg.Download.GetMinFreeBytes(),
		ProbeInterval: cfg.Download.GetProbeInterval(),
	}, tr, client, client, fsManager, fsManager, events, nil, zapLogger.Named("executor"))

	mgr := manager.New(manager.Config{
		DownloadRoot:       cfg.Download.RootDir,
		SafetyMargin:       cfg.Download.SafetyMargin,
		FailureThreshold:   cfg.Download.FailureThreshold,
		MinFreeBytes:       cfg.Download.GetMinFreeBytes(),
		CancelPollInterval: cfg.Download.GetCancelPollInterval(),
	}, store, lister, exec, fsManager, fsManager, events, nil, zapLogger.Named("manager"))

	return &app{
		cfg:     cfg,
		logger:  zapLogger,
		store:   store,
		fs:      fsManager,
		hub:     client,
		events:  events,
		manager: mgr,
	}, nil
}

// loadConfig reads the config file and applies the global flag overrides
func loadConfig(ro *RootOpts) (*config.Config, error) {
	cfg, err := config.Load(ro.Config)
	if err != nil {
		return nil, err
	}
	if ro.LogLevel != "" {
		cfg.Logging.Level = ro.LogLevel
	}
	if ro.LogFile != "" {
		cfg.Logging.File = ro.LogFile
	}
	return cfg, nil
}

// Close releases the database and flushes logs
func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.logger.Warn("failed to close database", zap.Error(err))
	}
	_ = logger.Sync()
}
