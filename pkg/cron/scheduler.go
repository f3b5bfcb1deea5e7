// Package cron provides scheduled background jobs using robfig/cron.
package cron

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultSnapshotSpec republishes snapshots daily at 3:00 AM.
const DefaultSnapshotSpec = "0 3 * * *"

// SnapshotPublisher republishes every table version.
type SnapshotPublisher interface {
	PublishAll(ctx context.Context) error
}

// Scheduler manages background scheduled jobs using robfig/cron.
type Scheduler struct {
	cron      *cron.Cron
	publisher SnapshotPublisher
	spec      string
	timeout   time.Duration
	logger    *slog.Logger
}

// NewScheduler creates a new job scheduler. An empty spec uses
// DefaultSnapshotSpec.
func NewScheduler(publisher SnapshotPublisher, spec string, logger *slog.Logger) *Scheduler {
	// Create cron with seconds disabled (standard 5-field format)
	c := cron.New(cron.WithLogger(cron.VerbosePrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelDebug))))
	if spec == "" {
		spec = DefaultSnapshotSpec
	}

	return &Scheduler{
		cron:      c,
		publisher: publisher,
		spec:      spec,
		timeout:   30 * time.Minute,
		logger:    logger,
	}
}

// Start begins scheduled jobs.
func (s *Scheduler) Start() error {
	_, err := s.cron.AddFunc(s.spec, s.publishSnapshots)
	if err != nil {
		return err
	}

	s.cron.Start()
	s.logger.Info("cron scheduler started",
		slog.String("snapshot_spec", s.spec),
		slog.Int("jobs", len(s.cron.Entries())),
	)
	return nil
}

// Stop gracefully stops all scheduled jobs.
func (s *Scheduler) Stop() context.Context {
	s.logger.Info("cron scheduler stopping")
	return s.cron.Stop()
}

// RunNow manually triggers the snapshot job.
func (s *Scheduler) RunNow() {
	go s.publishSnapshots()
}

func (s *Scheduler) publishSnapshots() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	start := time.Now()
	s.logger.Info("starting scheduled snapshot publish")

	if err := s.publisher.PublishAll(ctx); err != nil {
		s.logger.Error("scheduled snapshot publish failed", slog.Any("error", err))
		return
	}

	s.logger.Info("scheduled snapshot publish completed", slog.Duration("duration", time.Since(start)))
}
