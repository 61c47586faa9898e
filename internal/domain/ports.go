package domain

import (
	"context"
	"errors"
	"time"
)

// ErrStatusNotFound is returned when a status does not exist, either
// upstream (deleted remotely) or in the local content store.
var ErrStatusNotFound = errors.New("status not found")

// TimelineClient fetches statuses from the remote instance.
type TimelineClient interface {
	// GetTagTimeline returns one page of statuses for a hashtag,
	// newest-first. If minID is non-empty, only statuses with an ID
	// strictly greater than minID (under CompareID) are returned. An empty
	// page means the caller is caught up.
	GetTagTimeline(ctx context.Context, tag string, minID string) ([]*Status, error)

	// GetStatus fetches a single status by ID. Returns ErrStatusNotFound
	// if the status was deleted upstream.
	GetStatus(ctx context.Context, id string) (*Status, error)
}

// ContentStore persists full status documents keyed by ID.
type ContentStore interface {
	// Put writes or overwrites the stored document for a status.
	Put(ctx context.Context, status *Status) error

	// Get loads a status by ID. Returns ErrStatusNotFound if no document
	// is stored under that ID.
	Get(ctx context.Context, id string) (*Status, error)
}

// StatusIndex is the queryable metadata index over stored statuses.
type StatusIndex interface {
	// InsertStatuses upserts a batch of statuses in a single transaction.
	// Tag associations are fully replaced and each status's refresh
	// timestamp is reset to now. The whole batch commits or none does.
	InsertStatuses(ctx context.Context, statuses []*Status) error

	// SearchStatuses returns status IDs matching any of the hashtags
	// (all statuses if the slice is empty), newest created first.
	SearchStatuses(ctx context.Context, hashtags []string, limit int) ([]string, error)

	// PopularStatuses returns status IDs created at or after since,
	// ordered by summed engagement counters descending.
	PopularStatuses(ctx context.Context, hashtags []string, since time.Time, limit int) ([]string, error)

	// ListStale returns IDs of statuses created in [since, freshSince)
	// whose refresh timestamp is missing or older than freshSince, newest
	// created first.
	ListStale(ctx context.Context, since, freshSince time.Time, limit int) ([]string, error)

	// PopularTags counts statuses per hashtag over the last given number
	// of days, most used first.
	PopularTags(ctx context.Context, days int, limit int) ([]TagCount, error)

	// CountStatuses returns the number of indexed statuses.
	CountStatuses(ctx context.Context) (int, error)
}

// WatermarkStore keeps the per-hashtag pagination cursor.
type WatermarkStore interface {
	// RecentStatusID returns the most recent status ID retrieved for a
	// hashtag. ok is false when no watermark exists yet.
	RecentStatusID(ctx context.Context, tag string) (id string, ok bool, err error)

	// SetRecentStatusID persists the watermark for a hashtag.
	SetRecentStatusID(ctx context.Context, tag, id string) error
}

// HashtagStore holds the subscribed-hashtag set and pending suggestions.
type HashtagStore interface {
	// List returns the approved hashtags, sorted by name.
	List(ctx context.Context) ([]string, error)

	// IncrementVote records a suggestion vote for a hashtag, creating it
	// unapproved if it is new.
	IncrementVote(ctx context.Context, name string) error
}
