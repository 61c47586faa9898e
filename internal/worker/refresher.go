package worker

import (
	"cmp"
	"context"
	"log/slog"
	"slices"
	"time"

	"tagmirror/internal/config"
	"tagmirror/internal/domain"
)

const (
	// refreshChunkSize bounds how many statuses are re-fetched back to
	// back before pausing, to stay inside the instance's rate limits.
	refreshChunkSize = 10

	// refreshChunkPause is the pause between chunks.
	refreshChunkPause = 5 * time.Second
)

// RefreshService is the slice of the aggregation engine the refresher needs.
type RefreshService interface {
	ListStaleStatuses(ctx context.Context, since, freshSince time.Time, limit int) ([]string, error)
	FetchStatuses(ctx context.Context, ids []string) ([]*domain.Status, error)
	PersistStatuses(ctx context.Context, statuses []*domain.Status) error
}

// StatusRefresher re-validates cached statuses on the configured staleness
// tiers. Each tier (max_age, frequency) means: statuses no older than
// max_age are re-fetched at least every frequency. Tiers are walked youngest
// window first so time-sensitive content refreshes most often.
type StatusRefresher struct {
	tiers     []config.RefreshTier
	listLimit int
	service   RefreshService
	logger    *slog.Logger
}

// NewStatusRefresher creates the refresher. Tiers are evaluated in ascending
// max-age order regardless of configuration order.
func NewStatusRefresher(tiers []config.RefreshTier, listLimit int, service RefreshService, logger *slog.Logger) *StatusRefresher {
	tiers = slices.Clone(tiers)
	slices.SortFunc(tiers, func(a, b config.RefreshTier) int {
		return cmp.Compare(a.MaxAge, b.MaxAge)
	})

	return &StatusRefresher{
		tiers:     tiers,
		listLimit: listLimit,
		service:   service,
		logger:    logger,
	}
}

// Name implements Worker.
func (r *StatusRefresher) Name() string { return "status-refresher" }

// Run refreshes immediately, then wakes on the tightest tier's frequency.
// With no tiers configured the worker is a no-op and returns without
// scheduling any sleeps.
func (r *StatusRefresher) Run(ctx context.Context) {
	if len(r.tiers) == 0 {
		r.logger.Warn("no status refresh tiers configured, refresher not running")
		return
	}

	minFrequency := r.tiers[0].Frequency
	for _, tier := range r.tiers[1:] {
		if tier.Frequency < minFrequency {
			minFrequency = tier.Frequency
		}
	}

	r.cycle(ctx)

	ticker := time.NewTicker(minFrequency)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.cycle(ctx)
		}
	}
}

func (r *StatusRefresher) cycle(ctx context.Context) {
	if err := r.refresh(ctx); err != nil {
		r.logger.Error("status refresh cycle failed", "error", err)
	}
}

func (r *StatusRefresher) refresh(ctx context.Context) error {
	for _, tier := range r.tiers {
		now := time.Now()
		since := now.Add(-tier.MaxAge)
		freshSince := now.Add(-tier.Frequency)

		ids, err := r.service.ListStaleStatuses(ctx, since, freshSince, r.listLimit)
		if err != nil {
			return err
		}
		r.logger.Debug("found stale statuses",
			"max_age", tier.MaxAge, "frequency", tier.Frequency, "count", len(ids))
		if len(ids) == 0 {
			continue
		}

		var refreshed []*domain.Status
		first := true
		for chunk := range slices.Chunk(ids, refreshChunkSize) {
			if !first {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(refreshChunkPause):
				}
			}
			first = false

			statuses, err := r.service.FetchStatuses(ctx, chunk)
			if err != nil {
				return err
			}
			refreshed = append(refreshed, statuses...)
		}

		if err := r.service.PersistStatuses(ctx, refreshed); err != nil {
			return err
		}
		r.logger.Info("refreshed statuses", "max_age", tier.MaxAge, "count", len(refreshed))
	}
	return nil
}
