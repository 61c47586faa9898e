package domain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// maxConcurrentFetches caps the fan-out across hashtags within one merge
// cycle so a large subscription list cannot flood the remote instance.
const maxConcurrentFetches = 8

// StatusService is the aggregation engine. It owns pagination against the
// remote timeline, merging and deduplication across hashtags, persistence
// into the content store and index, and the read-side queries.
type StatusService struct {
	client     TimelineClient
	content    ContentStore
	index      StatusIndex
	watermarks WatermarkStore
	hashtags   HashtagStore
	logger     *slog.Logger
}

// NewStatusService creates the aggregation engine over the given
// collaborators.
func NewStatusService(
	client TimelineClient,
	content ContentStore,
	index StatusIndex,
	watermarks WatermarkStore,
	hashtags HashtagStore,
	logger *slog.Logger,
) *StatusService {
	return &StatusService{
		client:     client,
		content:    content,
		index:      index,
		watermarks: watermarks,
		hashtags:   hashtags,
		logger:     logger,
	}
}

// PaginateTimeline fetches everything new for one hashtag since its
// watermark and returns it newest-first.
//
// On the very first fetch there is no lower bound: one page is fetched and
// the watermark is set to the page's last item, which is its oldest, so the
// next cycle backfills from there. Afterwards pages are fetched strictly
// sequentially with the watermark as the exclusive lower bound, advancing it
// to the maximum ID seen in each page. The watermark is persisted after
// every page so a crash mid-pagination loses at most one page of progress.
func (s *StatusService) PaginateTimeline(ctx context.Context, tag string) ([]*Status, error) {
	recent, ok, err := s.watermarks.RecentStatusID(ctx, tag)
	if err != nil {
		return nil, fmt.Errorf("load watermark for %s: %w", tag, err)
	}

	if !ok {
		page, err := s.client.GetTagTimeline(ctx, tag, "")
		if err != nil {
			return nil, fmt.Errorf("fetch first page for %s: %w", tag, err)
		}
		if len(page) > 0 {
			oldest := page[len(page)-1].ID
			if err := s.watermarks.SetRecentStatusID(ctx, tag, oldest); err != nil {
				return nil, fmt.Errorf("save watermark for %s: %w", tag, err)
			}
		}
		return page, nil
	}

	var statuses []*Status
	for {
		page, err := s.client.GetTagTimeline(ctx, tag, recent)
		if err != nil {
			return nil, fmt.Errorf("fetch page for %s after %s: %w", tag, recent, err)
		}
		if len(page) == 0 {
			break
		}

		// The page is not assumed to be in any order; take the max.
		if max := MaxID(page); CompareID(max, recent) > 0 {
			recent = max
		}
		if err := s.watermarks.SetRecentStatusID(ctx, tag, recent); err != nil {
			return nil, fmt.Errorf("save watermark for %s: %w", tag, err)
		}

		s.logger.Debug("retrieved new statuses", "tag", tag, "count", len(page), "watermark", recent)
		statuses = append(statuses, page...)
	}

	SortByIDDesc(statuses)
	return statuses, nil
}

// UpdateTimelines runs one merge cycle: paginate every subscribed hashtag
// concurrently, merge and dedupe the results, and persist them. A failed
// hashtag is logged and skipped; the cycle persists whatever succeeded and
// fails only if every hashtag failed.
func (s *StatusService) UpdateTimelines(ctx context.Context) error {
	tags, err := s.hashtags.List(ctx)
	if err != nil {
		return fmt.Errorf("list subscribed hashtags: %w", err)
	}
	if len(tags) == 0 {
		return nil
	}

	var (
		mu       sync.Mutex
		statuses []*Status
		failures []error
	)

	var g errgroup.Group
	g.SetLimit(maxConcurrentFetches)
	for _, tag := range tags {
		g.Go(func() error {
			page, err := s.PaginateTimeline(ctx, tag)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				s.logger.Error("hashtag pagination failed", "tag", tag, "error", err)
				failures = append(failures, err)
				return nil
			}
			statuses = append(statuses, page...)
			return nil
		})
	}
	g.Wait()

	if len(failures) == len(tags) {
		return fmt.Errorf("all %d hashtag fetches failed: %w", len(tags), errors.Join(failures...))
	}

	SortByIDDesc(statuses)
	statuses = DedupeByID(statuses)
	s.logger.Debug("merged timeline pages", "tags", len(tags), "statuses", len(statuses), "failed_tags", len(failures))

	if err := s.PersistStatuses(ctx, statuses); err != nil {
		return fmt.Errorf("persist merged statuses: %w", err)
	}
	return nil
}

// PersistStatuses writes the status documents to the content store and
// upserts the whole batch into the index in one transaction.
func (s *StatusService) PersistStatuses(ctx context.Context, statuses []*Status) error {
	if len(statuses) == 0 {
		return nil
	}

	var g errgroup.Group
	g.SetLimit(maxConcurrentFetches)
	for _, status := range statuses {
		g.Go(func() error {
			if err := s.content.Put(ctx, status); err != nil {
				return fmt.Errorf("store status %s: %w", status.ID, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if err := s.index.InsertStatuses(ctx, statuses); err != nil {
		return fmt.Errorf("index statuses: %w", err)
	}
	return nil
}

// RetrieveStatuses returns the known statuses for the given hashtags (all
// statuses when the slice is empty), newest created first. An indexed ID
// whose document is missing from the content store is logged and dropped
// from the result.
func (s *StatusService) RetrieveStatuses(ctx context.Context, hashtags []string, limit int) ([]*Status, error) {
	ids, err := s.index.SearchStatuses(ctx, hashtags, limit)
	if err != nil {
		return nil, fmt.Errorf("search statuses: %w", err)
	}
	return s.hydrate(ctx, ids)
}

// PopularStatuses returns statuses created at or after since ordered by
// engagement, filtered by hashtags when given.
func (s *StatusService) PopularStatuses(ctx context.Context, hashtags []string, since time.Time, limit int) ([]*Status, error) {
	ids, err := s.index.PopularStatuses(ctx, hashtags, since, limit)
	if err != nil {
		return nil, fmt.Errorf("search popular statuses: %w", err)
	}
	return s.hydrate(ctx, ids)
}

// PopularTags counts statuses per hashtag for each rolling day-window.
func (s *StatusService) PopularTags(ctx context.Context, periods []int, limit int) (map[int][]TagCount, error) {
	result := make(map[int][]TagCount, len(periods))
	for _, days := range periods {
		counts, err := s.index.PopularTags(ctx, days, limit)
		if err != nil {
			return nil, fmt.Errorf("popular tags over %d days: %w", days, err)
		}
		result[days] = counts
	}
	return result, nil
}

// ListStaleStatuses returns IDs due for re-validation.
func (s *StatusService) ListStaleStatuses(ctx context.Context, since, freshSince time.Time, limit int) ([]string, error) {
	return s.index.ListStale(ctx, since, freshSince, limit)
}

// FetchStatuses re-fetches statuses by ID from the remote instance. A status
// deleted upstream is logged and skipped.
func (s *StatusService) FetchStatuses(ctx context.Context, ids []string) ([]*Status, error) {
	statuses := make([]*Status, 0, len(ids))
	for _, id := range ids {
		status, err := s.client.GetStatus(ctx, id)
		if errors.Is(err, ErrStatusNotFound) {
			s.logger.Warn("status not found upstream, probably deleted", "id", id)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("fetch status %s: %w", id, err)
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}

// RebuildIndex re-indexes every document in the content store. Run at
// startup when the index is empty so the database file is disposable.
func (s *StatusService) RebuildIndex(ctx context.Context) error {
	walker, ok := s.content.(interface {
		Walk(ctx context.Context, fn func(*Status) error) error
	})
	if !ok {
		return nil
	}

	var batch []*Status
	err := walker.Walk(ctx, func(status *Status) error {
		batch = append(batch, status)
		if len(batch) >= 200 {
			if err := s.index.InsertStatuses(ctx, batch); err != nil {
				return err
			}
			batch = batch[:0]
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("rebuild index: %w", err)
	}
	if len(batch) > 0 {
		if err := s.index.InsertStatuses(ctx, batch); err != nil {
			return fmt.Errorf("rebuild index: %w", err)
		}
	}
	return nil
}

func (s *StatusService) hydrate(ctx context.Context, ids []string) ([]*Status, error) {
	statuses := make([]*Status, 0, len(ids))
	for _, id := range ids {
		status, err := s.content.Get(ctx, id)
		if errors.Is(err, ErrStatusNotFound) {
			s.logger.Warn("indexed status missing from content store", "id", id)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("load status %s: %w", id, err)
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}
