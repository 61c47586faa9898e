package worker

import (
	"context"
	"log/slog"
	"time"
)

// TimelineService runs one fetch-and-merge cycle across all subscribed
// hashtags.
type TimelineService interface {
	UpdateTimelines(ctx context.Context) error
}

// TimelineUpdater periodically drives the aggregation engine's merge cycle.
type TimelineUpdater struct {
	frequency time.Duration
	service   TimelineService
	logger    *slog.Logger
}

// NewTimelineUpdater creates the updater with the configured cycle
// frequency.
func NewTimelineUpdater(frequency time.Duration, service TimelineService, logger *slog.Logger) *TimelineUpdater {
	return &TimelineUpdater{
		frequency: frequency,
		service:   service,
		logger:    logger,
	}
}

// Name implements Worker.
func (u *TimelineUpdater) Name() string { return "timeline-updater" }

// Run performs one cycle immediately so the cache warms on startup, then
// loops on the configured frequency until cancelled.
func (u *TimelineUpdater) Run(ctx context.Context) {
	u.cycle(ctx)

	ticker := time.NewTicker(u.frequency)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			u.cycle(ctx)
		}
	}
}

func (u *TimelineUpdater) cycle(ctx context.Context) {
	start := time.Now()
	if err := u.service.UpdateTimelines(ctx); err != nil {
		u.logger.Error("timeline update cycle failed", "error", err)
		return
	}
	u.logger.Info("timeline update cycle complete", "duration", time.Since(start))
}
