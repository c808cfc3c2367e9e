package maintenance

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// StaleRecordResetter releases ledger records left in downloading by a crashed process
type StaleRecordResetter interface {
	ResetStaleDownloading(olderThan time.Duration) (int, error)
}

// TempFileCleaner removes abandoned partial files below a directory
type TempFileCleaner interface {
	CleanOldTempFiles(dir string, olderThan time.Duration) (int, error)
}

// Config contains maintenance service configuration
type Config struct {
	// DownloadRoot is scanned for abandoned partial files
	DownloadRoot string

	// StaleCheckInterval is how often to check for stale records
	StaleCheckInterval time.Duration

	// StaleRecordTimeout is when a downloading record is considered stale
	StaleRecordTimeout time.Duration

	// CleanupInterval is how often to run cleanup tasks
	CleanupInterval time.Duration

	// TempFileMaxAge is the maximum age of partial files before cleanup
	TempFileMaxAge time.Duration
}

// DefaultConfig returns default maintenance configuration
func DefaultConfig() *Config {
	return &Config{
		DownloadRoot:       "./downloads",
		StaleCheckInterval: 5 * time.Minute,
		StaleRecordTimeout: 30 * time.Minute,
		CleanupInterval:    time.Hour,
		TempFileMaxAge:     72 * time.Hour,
	}
}

// Service handles periodic maintenance tasks
type Service struct {
	config  *Config
	records StaleRecordResetter
	fs      TempFileCleaner
	logger  *zap.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a new maintenance Service
func New(cfg *Config, records StaleRecordResetter, fs TempFileCleaner, logger *zap.Logger) *Service {
	def := DefaultConfig()
	if cfg == nil {
		cfg = def
	}
	if cfg.DownloadRoot == "" {
		cfg.DownloadRoot = def.DownloadRoot
	}
	if cfg.StaleCheckInterval == 0 {
		cfg.StaleCheckInterval = def.StaleCheckInterval
	}
	if cfg.StaleRecordTimeout == 0 {
		cfg.StaleRecordTimeout = def.StaleRecordTimeout
	}
	if cfg.CleanupInterval == 0 {
		cfg.CleanupInterval = def.CleanupInterval
	}
	if cfg.TempFileMaxAge == 0 {
		cfg.TempFileMaxAge = def.TempFileMaxAge
	}

	return &Service{
		config:  cfg,
		records: records,
		fs:      fs,
		logger:  logger,
	}
}

// Start runs the maintenance loops until ctx is done or Stop is called
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("maintenance service already running")
	}
	s.running = true
	ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	s.logger.Info("maintenance service started",
		zap.Duration("stale_check_interval", s.config.StaleCheckInterval),
		zap.Duration("cleanup_interval", s.config.CleanupInterval))

	// A restart after a crash should not wait a full interval
	s.releaseStaleRecords()

	s.wg.Add(1)
	go s.maintenanceLoop(ctx)

	<-ctx.Done()
	s.wg.Wait()

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
	s.logger.Info("maintenance service stopped")
	return nil
}

// Stop stops the maintenance service
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *Service) maintenanceLoop(ctx context.Context) {
	defer s.wg.Done()

	staleTicker := time.NewTicker(s.config.StaleCheckInterval)
	defer staleTicker.Stop()

	cleanupTicker := time.NewTicker(s.config.CleanupInterval)
	defer cleanupTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-staleTicker.C:
			s.releaseStaleRecords()
		case <-cleanupTicker.C:
			s.cleanupTempFiles()
		}
	}
}

// releaseStaleRecords moves records stuck in downloading back to pending
func (s *Service) releaseStaleRecords() {
	released, err := s.records.ResetStaleDownloading(s.config.StaleRecordTimeout)
	if err != nil {
		s.logger.Error("failed to release stale records", zap.Error(err))
	} else if released > 0 {
		s.logger.Info("released stale records", zap.Int("count", released))
	}
}

// cleanupTempFiles removes old partial files from the download root
func (s *Service) cleanupTempFiles() {
	fileCount, err := s.fs.CleanOldTempFiles(s.config.DownloadRoot, s.config.TempFileMaxAge)
	if err != nil {
		s.logger.Error("failed to cleanup old temp files", zap.Error(err))
	} else if fileCount > 0 {
		s.logger.Info("cleaned up old temp files", zap.Int("count", fileCount),
			zap.String("root", s.config.DownloadRoot))
	}
}
