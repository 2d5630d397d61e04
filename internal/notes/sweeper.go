package notes

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultRetentionWindow is how long a note stays in the trash before it is purged.
	DefaultRetentionWindow = 30 * 24 * time.Hour
	// DefaultSweepInterval is how often the sweeper runs.
	DefaultSweepInterval = 24 * time.Hour
)

var errMissingPurger = errors.New("trash purger is required")

// TrashPurger removes trashed notes deleted before cutoff.
type TrashPurger interface {
	PurgeExpiredTrash(ctx context.Context, cutoff time.Time) (int64, error)
}

type SweeperConfig struct {
	Purger   TrashPurger
	Interval time.Duration
	Window   time.Duration
	Clock    func() time.Time
	Logger   *zap.Logger
}

// RetentionSweeper purges notes that have sat in the trash longer than the retention window.
type RetentionSweeper struct {
	purger   TrashPurger
	interval time.Duration
	window   time.Duration
	clock    func() time.Time
	logger   *zap.Logger
}

func NewRetentionSweeper(cfg SweeperConfig) (*RetentionSweeper, error) {
	if cfg.Purger == nil {
		return nil, errMissingPurger
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	window := cfg.Window
	if window <= 0 {
		window = DefaultRetentionWindow
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &RetentionSweeper{
		purger:   cfg.Purger,
		interval: interval,
		window:   window,
		clock:    clock,
		logger:   logger,
	}, nil
}

// Run sweeps once immediately and then every interval until ctx is done.
func (s *RetentionSweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("retention sweeper started",
		zap.Duration("interval", s.interval),
		zap.Duration("window", s.window))

	s.SweepOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("retention sweeper stopped")
			return
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce runs a single purge pass. Failures are logged; the next pass retries.
func (s *RetentionSweeper) SweepOnce(ctx context.Context) int64 {
	purged, _ := s.Sweep(ctx)
	return purged
}

// Sweep runs a single purge pass, logs the outcome and returns the purge error.
func (s *RetentionSweeper) Sweep(ctx context.Context) (int64, error) {
	cutoff := s.clock().UTC().Add(-s.window)
	purged, err := s.purger.PurgeExpiredTrash(ctx, cutoff)
	if err != nil {
		s.logger.Error("retention sweep failed",
			zap.Time("cutoff", cutoff),
			zap.Error(err))
		return 0, err
	}
	s.logger.Info("retention sweep completed",
		zap.Time("cutoff", cutoff),
		zap.Int64("purged_notes", purged))
	return purged, nil
}
